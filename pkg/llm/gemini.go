package llm

import (
	"context"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/pkg/errors"
	"google.golang.org/api/option"
)

// Gemini is a Gateway backed by the Google Generative AI API in JSON mode.
type Gemini struct {
	apiKey      string
	baseURL     string
	model       string
	maxTokens   int
	temperature float64
}

// NewGemini creates a Gemini gateway. The SDK client is opened per request.
func NewGemini(opts Options) (gateway *Gemini) {
	gateway = &Gemini{
		apiKey:      opts.APIKey,
		baseURL:     opts.BaseURL,
		model:       modelOrDefault(opts.Model, DefaultGeminiModel),
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
	}
	return gateway
}

// Complete sends one generateContent request.
func (g *Gemini) Complete(ctx context.Context, req Request) (resp Response, err error) {
	var system string
	system, err = systemWithSchema(req)
	if err != nil {
		return resp, err
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultRequestTimeout)
	defer cancel()

	var client *genai.Client
	client, err = genai.NewClient(ctx, g.clientOptions()...)
	if err != nil {
		err = gatewayError(ProviderGemini, errors.Wrap(err, "failed to create client"))
		return resp, err
	}
	defer client.Close()

	model := client.GenerativeModel(g.model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(system)},
	}
	model.ResponseMIMEType = "application/json"
	model.SetMaxOutputTokens(int32(g.maxTokens))
	model.SetTemperature(float32(g.temperature))

	var genResp *genai.GenerateContentResponse
	genResp, err = model.GenerateContent(ctx, genai.Text(req.User))
	if err != nil {
		err = gatewayError(ProviderGemini, errors.Wrap(err, "generate content request failed"))
		return resp, err
	}

	resp, err = geminiResponse(genResp)
	return resp, err
}

func (g *Gemini) clientOptions() (opts []option.ClientOption) {
	opts = []option.ClientOption{option.WithAPIKey(g.apiKey)}
	if g.baseURL != "" {
		opts = append(opts, option.WithEndpoint(g.baseURL))
	}
	return opts
}

// geminiResponse extracts text and usage from a generateContent response.
func geminiResponse(genResp *genai.GenerateContentResponse) (resp Response, err error) {
	if genResp == nil {
		err = emptyPayloadError(ProviderGemini, errors.New("nil response"))
		return resp, err
	}

	if genResp.UsageMetadata != nil {
		resp.Usage = Usage{
			PromptTokens:       int(genResp.UsageMetadata.PromptTokenCount),
			CachedPromptTokens: int(genResp.UsageMetadata.CachedContentTokenCount),
			CompletionTokens:   int(genResp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:        int(genResp.UsageMetadata.TotalTokenCount),
		}
	}

	if len(genResp.Candidates) == 0 || genResp.Candidates[0].Content == nil {
		err = emptyPayloadError(ProviderGemini, errors.New("no candidates returned"))
		return resp, err
	}

	var text strings.Builder
	for _, part := range genResp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}

	if text.Len() == 0 {
		err = emptyPayloadError(ProviderGemini, errors.New("no text parts in response"))
		return resp, err
	}

	resp.Content = text.String()
	return resp, err
}
