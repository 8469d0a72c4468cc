package llm

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/pkg/errors"
)

// Anthropic is a Gateway backed by the Claude messages API. Claude has no
// native schema mode here, so the schema is appended to the system prompt.
type Anthropic struct {
	client      anthropic.Client
	model       string
	maxTokens   int
	temperature float64
}

// NewAnthropic creates an Anthropic gateway.
func NewAnthropic(opts Options) (gateway *Anthropic) {
	clientOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}

	gateway = &Anthropic{
		client:      anthropic.NewClient(clientOpts...),
		model:       modelOrDefault(opts.Model, DefaultAnthropicModel),
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
	}
	return gateway
}

// Complete sends one message request and returns the text content.
func (a *Anthropic) Complete(ctx context.Context, req Request) (resp Response, err error) {
	var system string
	system, err = systemWithSchema(req)
	if err != nil {
		return resp, err
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(a.model),
		MaxTokens:   int64(a.maxTokens),
		Temperature: anthropic.Float(a.temperature),
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.User)),
		},
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultRequestTimeout)
	defer cancel()

	var msg *anthropic.Message
	msg, err = a.client.Messages.New(ctx, params)
	if err != nil {
		err = gatewayError(ProviderAnthropic, errors.Wrap(err, "messages request failed"))
		return resp, err
	}

	resp.Usage = Usage{
		PromptTokens:       int(msg.Usage.InputTokens + msg.Usage.CacheReadInputTokens + msg.Usage.CacheCreationInputTokens),
		CachedPromptTokens: int(msg.Usage.CacheReadInputTokens),
		CompletionTokens:   int(msg.Usage.OutputTokens),
	}
	resp.Usage.TotalTokens = resp.Usage.PromptTokens + resp.Usage.CompletionTokens

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	if text.Len() == 0 {
		err = emptyPayloadError(ProviderAnthropic, errors.New("no text content in response"))
		return resp, err
	}

	resp.Content = text.String()
	return resp, err
}

// systemWithSchema appends the response schema to the system prompt for
// providers that only take a free-form instruction.
func systemWithSchema(req Request) (system string, err error) {
	system = req.System
	if req.Schema == nil {
		return system, err
	}

	var schema []byte
	schema, err = json.MarshalIndent(req.Schema, "", "  ")
	if err != nil {
		err = errors.Wrap(err, "failed to marshal response schema")
		return system, err
	}

	system = system + "\n\nRespond with a single JSON object that conforms to this JSON schema. Do not wrap it in markdown.\n" + string(schema)
	return system, err
}
