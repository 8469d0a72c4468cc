package llm

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/pkg/errors"
)

//nolint:gochecknoglobals // validator caches struct metadata and is safe for concurrent use
var validate = validator.New(validator.WithRequiredStructEnabled())

// SchemaFor derives the JSON schema sent to providers from a Go type.
func SchemaFor[T any]() (schema *jsonschema.Schema, err error) {
	schema, err = jsonschema.For[T](nil)
	if err != nil {
		err = errors.Wrap(err, "failed to derive JSON schema")
		return schema, err
	}
	return schema, err
}

// Complete sends one structured-output request and decodes the result into T.
// The result is checked against T's validate tags before it is returned.
func Complete[T any](ctx context.Context, gateway Gateway, name, system, user string) (result T, usage Usage, err error) {
	var schema *jsonschema.Schema
	schema, err = SchemaFor[T]()
	if err != nil {
		return result, usage, err
	}

	req := Request{
		Name:   name,
		System: system,
		User:   user,
		Schema: schema,
	}

	var resp Response
	resp, err = gateway.Complete(ctx, req)
	if err != nil {
		return result, usage, err
	}
	usage = resp.Usage

	result, err = Decode[T](name, resp.Content)
	return result, usage, err
}

// Decode parses a structured payload and validates it.
func Decode[T any](name, content string) (result T, err error) {
	cleaned := strings.TrimSpace(stripMarkdownCodeFences(strings.TrimSpace(content)))
	if cleaned == "" || cleaned == "null" {
		err = emptyPayloadError(name, nil)
		return result, err
	}

	err = json.Unmarshal([]byte(cleaned), &result)
	if err != nil {
		err = validationError(name, errors.Wrapf(err, "failed to parse response: %s", cleaned))
		return result, err
	}

	err = validate.Struct(result)
	if err != nil {
		err = validationError(name, err)
		return result, err
	}

	return result, err
}

// stripMarkdownCodeFences removes markdown code fences from JSON responses.
func stripMarkdownCodeFences(text string) (cleaned string) {
	cleaned = text

	if !strings.HasPrefix(cleaned, "```") {
		return cleaned
	}

	// Drop the opening fence line, which may carry a language tag.
	newline := strings.IndexByte(cleaned, '\n')
	if newline == -1 {
		cleaned = strings.Trim(cleaned, "`")
		return cleaned
	}
	cleaned = cleaned[newline+1:]

	cleaned = strings.TrimRight(cleaned, " \r\n")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimRight(cleaned, " \r\n")

	return cleaned
}
