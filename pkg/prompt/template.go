package prompt

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrMalformedTemplate is returned for unclosed or stray braces.
var ErrMalformedTemplate = errors.New("malformed template")

// NodeKind tags a template node.
type NodeKind int

const (
	// Literal is a run of plain text.
	Literal NodeKind = iota
	// Variable is a dotted-path reference such as {job.title}.
	Variable
)

// Node is a single parsed piece of a template.
type Node struct {
	Kind NodeKind
	Text string // literal text or the variable path
}

// Tokenize splits a template into literal and variable nodes.
func Tokenize(template string) (nodes []Node, err error) {
	var literal strings.Builder

	flush := func() {
		if literal.Len() > 0 {
			nodes = append(nodes, Node{Kind: Literal, Text: literal.String()})
			literal.Reset()
		}
	}

	for i := 0; i < len(template); i++ {
		c := template[i]

		switch c {
		case '{':
			if i+1 < len(template) && template[i+1] == '{' {
				literal.WriteByte('{')
				i++
				continue
			}

			end := strings.IndexByte(template[i+1:], '}')
			if end == -1 {
				err = errors.Wrapf(ErrMalformedTemplate, "unclosed '{' at offset %d", i)
				return nodes, err
			}

			path := template[i+1 : i+1+end]
			if strings.Contains(path, "{") {
				err = errors.Wrapf(ErrMalformedTemplate, "nested '{' in reference at offset %d", i)
				return nodes, err
			}

			path = strings.TrimSpace(path)
			if path == "" {
				err = errors.Wrapf(ErrMalformedTemplate, "empty reference at offset %d", i)
				return nodes, err
			}

			flush()
			nodes = append(nodes, Node{Kind: Variable, Text: path})
			i += end + 1

		case '}':
			if i+1 < len(template) && template[i+1] == '}' {
				literal.WriteByte('}')
				i++
				continue
			}
			err = errors.Wrapf(ErrMalformedTemplate, "stray '}' at offset %d", i)
			return nodes, err

		default:
			literal.WriteByte(c)
		}
	}

	flush()

	return nodes, err
}

// Validate reports whether a template parses, without rendering it.
func Validate(template string) (err error) {
	_, err = Tokenize(template)
	return err
}

// Render interpolates values into template. Missing paths render as empty text.
func Render(template string, values any) (rendered string, err error) {
	var nodes []Node
	nodes, err = Tokenize(template)
	if err != nil {
		return rendered, err
	}

	var data any
	data, err = normalize(values)
	if err != nil {
		err = errors.Wrap(err, "failed to normalize template values")
		return rendered, err
	}

	var out strings.Builder
	for _, node := range nodes {
		if node.Kind == Literal {
			out.WriteString(node.Text)
			continue
		}

		value, found := resolve(data, node.Text)
		if !found {
			continue
		}
		out.WriteString(stringify(value))
	}

	rendered = out.String()
	return rendered, err
}

// normalize turns arbitrary Go values into generic JSON data so that
// struct fields are addressed by their json names.
func normalize(values any) (data any, err error) {
	if values == nil {
		return data, err
	}

	var raw []byte
	raw, err = json.Marshal(values)
	if err != nil {
		return data, err
	}

	// Numbers stay json.Number so large integers render exactly.
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	err = decoder.Decode(&data)
	return data, err
}

// resolve walks a dotted path through maps and lists.
func resolve(data any, path string) (value any, found bool) {
	value = data
	for _, segment := range strings.Split(path, ".") {
		switch current := value.(type) {
		case map[string]any:
			value, found = current[segment]
			if !found {
				return nil, false
			}
		case []any:
			idx, convErr := strconv.Atoi(segment)
			if convErr != nil || idx < 0 || idx >= len(current) {
				return nil, false
			}
			value = current[idx]
		default:
			return nil, false
		}
	}

	found = value != nil
	return value, found
}

func stringify(value any) (text string) {
	if s, ok := value.(string); ok {
		text = s
		return text
	}

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	err := encoder.Encode(value)
	if err != nil {
		return text
	}

	text = strings.TrimSuffix(buf.String(), "\n")
	return text
}
