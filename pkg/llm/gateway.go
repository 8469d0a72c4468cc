package llm

import (
	"context"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/pkg/errors"
)

// Error kinds. Providers and Complete wrap failures in *Error so callers can
// tell them apart with errors.Is.
var (
	// ErrGateway marks transport or service failures.
	ErrGateway = errors.New("completion gateway failure")
	// ErrValidation marks a structured result that does not match its schema.
	ErrValidation = errors.New("structured output failed validation")
	// ErrEmptyPayload marks a completion with no content to parse.
	ErrEmptyPayload = errors.New("no content in completion response")
)

// Gateway is a completion service that answers with structured output.
type Gateway interface {
	Complete(ctx context.Context, req Request) (resp Response, err error)
}

// Request is a single structured-output completion request.
type Request struct {
	Name   string             // schema name, e.g. "summary"
	System string             // system prompt
	User   string             // user prompt
	Schema *jsonschema.Schema // expected shape of the result
}

// Response carries the raw structured payload and token usage.
type Response struct {
	Content string
	Usage   Usage
}

// Usage is token accounting for one request.
type Usage struct {
	PromptTokens       int `json:"promptTokens" yaml:"promptTokens"`
	CachedPromptTokens int `json:"cachedPromptTokens" yaml:"cachedPromptTokens"`
	CompletionTokens   int `json:"completionTokens" yaml:"completionTokens"`
	TotalTokens        int `json:"totalTokens" yaml:"totalTokens"`
}

// Add returns the sum of two usage records.
func (u Usage) Add(other Usage) (sum Usage) {
	sum = Usage{
		PromptTokens:       u.PromptTokens + other.PromptTokens,
		CachedPromptTokens: u.CachedPromptTokens + other.CachedPromptTokens,
		CompletionTokens:   u.CompletionTokens + other.CompletionTokens,
		TotalTokens:        u.TotalTokens + other.TotalTokens,
	}
	return sum
}

// Error is a classified gateway error.
type Error struct {
	Kind     error
	Provider string
	Err      error
}

func (e *Error) Error() (msg string) {
	parts := make([]string, 0, 3)
	if e.Provider != "" {
		parts = append(parts, e.Provider)
	}
	parts = append(parts, e.Kind.Error())
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	msg = strings.Join(parts, ": ")
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() (errs []error) {
	errs = []error{e.Kind}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func gatewayError(provider string, cause error) (err error) {
	err = &Error{Kind: ErrGateway, Provider: provider, Err: cause}
	return err
}

func emptyPayloadError(provider string, cause error) (err error) {
	err = &Error{Kind: ErrEmptyPayload, Provider: provider, Err: cause}
	return err
}

func validationError(name string, cause error) (err error) {
	err = &Error{Kind: ErrValidation, Provider: name, Err: cause}
	return err
}
