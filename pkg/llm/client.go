package llm

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Supported providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

const (
	// DefaultOpenAIModel is used when no model is configured for OpenAI.
	DefaultOpenAIModel = "gpt-4o-mini"
	// DefaultAnthropicModel is used when no model is configured for Anthropic.
	DefaultAnthropicModel = "claude-sonnet-4-20250514"
	// DefaultGeminiModel is used when no model is configured for Gemini.
	DefaultGeminiModel = "gemini-2.0-flash"
	// DefaultMaxTokens caps completion length per request.
	DefaultMaxTokens = 4096
	// DefaultRequestTimeout bounds a single provider call.
	DefaultRequestTimeout = 120 * time.Second
)

// Options configures a provider gateway.
type Options struct {
	Provider    string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	BaseURL     string // override for proxies and tests
}

// NewGateway creates the gateway for the configured provider.
func NewGateway(opts Options) (gateway Gateway, err error) {
	if opts.APIKey == "" {
		err = errors.Errorf("no API key configured for provider %q", opts.Provider)
		return gateway, err
	}

	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}

	switch strings.ToLower(opts.Provider) {
	case ProviderOpenAI, "":
		gateway = NewOpenAI(opts)
	case ProviderAnthropic:
		gateway = NewAnthropic(opts)
	case ProviderGemini:
		gateway = NewGemini(opts)
	default:
		err = errors.Errorf("unknown provider %q", opts.Provider)
		return gateway, err
	}

	return gateway, err
}

// GatewayFunc adapts a function to the Gateway interface.
type GatewayFunc func(ctx context.Context, req Request) (resp Response, err error)

// Complete calls f.
func (f GatewayFunc) Complete(ctx context.Context, req Request) (resp Response, err error) {
	resp, err = f(ctx, req)
	return resp, err
}

// DefaultModel returns the model used for a provider when none is configured.
func DefaultModel(provider string) (model string) {
	switch strings.ToLower(provider) {
	case ProviderAnthropic:
		model = DefaultAnthropicModel
	case ProviderGemini:
		model = DefaultGeminiModel
	default:
		model = DefaultOpenAIModel
	}
	return model
}

func modelOrDefault(model, fallback string) (name string) {
	name = model
	if name == "" {
		name = fallback
	}
	return name
}
