package llm

import (
	"context"
	"encoding/json"
	"regexp"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"
)

//nolint:gochecknoglobals // compiled once
var schemaNamePattern = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// OpenAI is a Gateway backed by the OpenAI chat completions API using
// JSON-schema response format.
type OpenAI struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

// NewOpenAI creates an OpenAI gateway.
func NewOpenAI(opts Options) (gateway *OpenAI) {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}

	gateway = &OpenAI{
		client:      openai.NewClientWithConfig(cfg),
		model:       modelOrDefault(opts.Model, DefaultOpenAIModel),
		maxTokens:   opts.MaxTokens,
		temperature: float32(opts.Temperature),
	}
	return gateway
}

// Complete sends one structured-output chat completion.
func (o *OpenAI) Complete(ctx context.Context, req Request) (resp Response, err error) {
	var schema []byte
	schema, err = json.Marshal(req.Schema)
	if err != nil {
		err = errors.Wrap(err, "failed to marshal response schema")
		return resp, err
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       o.model,
		MaxTokens:   o.maxTokens,
		Temperature: o.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.User},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   schemaName(req.Name),
				Schema: json.RawMessage(schema),
				Strict: false,
			},
		},
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultRequestTimeout)
	defer cancel()

	var chatResp openai.ChatCompletionResponse
	chatResp, err = o.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		err = gatewayError(ProviderOpenAI, errors.Wrap(err, "chat completion request failed"))
		return resp, err
	}

	resp.Usage = Usage{
		PromptTokens:     chatResp.Usage.PromptTokens,
		CompletionTokens: chatResp.Usage.CompletionTokens,
		TotalTokens:      chatResp.Usage.TotalTokens,
	}
	if chatResp.Usage.PromptTokensDetails != nil {
		resp.Usage.CachedPromptTokens = chatResp.Usage.PromptTokensDetails.CachedTokens
	}

	if len(chatResp.Choices) == 0 {
		err = emptyPayloadError(ProviderOpenAI, errors.New("no choices returned"))
		return resp, err
	}

	choice := chatResp.Choices[0]
	if choice.Message.Refusal != "" {
		err = emptyPayloadError(ProviderOpenAI, errors.Errorf("model refused: %s", choice.Message.Refusal))
		return resp, err
	}

	resp.Content = choice.Message.Content
	return resp, err
}

func schemaName(name string) (cleaned string) {
	cleaned = schemaNamePattern.ReplaceAllString(name, "_")
	if cleaned == "" {
		cleaned = "result"
	}
	return cleaned
}
