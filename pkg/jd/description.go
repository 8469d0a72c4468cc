package jd

import (
	"context"
	"os"
	"strings"

	"github.com/nikogura/cv-tailor/pkg/llm"
	"github.com/nikogura/cv-tailor/pkg/prompt"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Description is a structured job description. Every field is optional.
type Description struct {
	Title       string   `json:"title,omitempty" yaml:"title,omitempty"`
	Summary     string   `json:"summary,omitempty" yaml:"summary,omitempty"`
	Duties      []string `json:"duties,omitempty" yaml:"duties,omitempty"`
	Skills      []string `json:"skills,omitempty" yaml:"skills,omitempty"`
	ATSKeywords []string `json:"atsKeywords,omitempty" yaml:"atsKeywords,omitempty"`
}

const parseSystemPrompt = `You are an expert recruiter. You extract the structure of job postings without adding requirements that are not stated.
Respond only with a JSON object.`

// Parse turns raw job posting text into a Description with one structured
// completion request.
func Parse(ctx context.Context, gateway llm.Gateway, prompts prompt.Set, raw string) (desc Description, usage llm.Usage, err error) {
	if strings.TrimSpace(raw) == "" {
		err = errors.New("job description text is empty")
		return desc, usage, err
	}

	var user string
	user, err = prompt.Render(prompts.JobDescription, map[string]any{"text": raw})
	if err != nil {
		err = errors.Wrapf(err, "failed to render %s prompt", prompt.NameJobDescription)
		return desc, usage, err
	}

	desc, usage, err = llm.Complete[Description](ctx, gateway, prompt.NameJobDescription, parseSystemPrompt, user)
	if err != nil {
		err = errors.Wrap(err, "failed to parse job description")
		return desc, usage, err
	}

	desc = desc.Normalized()
	return desc, usage, err
}

// Normalized trims whitespace and drops empty list items.
func (d Description) Normalized() (out Description) {
	out = Description{
		Title:       strings.TrimSpace(d.Title),
		Summary:     strings.TrimSpace(d.Summary),
		Duties:      compact(d.Duties),
		Skills:      compact(d.Skills),
		ATSKeywords: compact(d.ATSKeywords),
	}
	return out
}

func compact(items []string) (out []string) {
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Load reads a parsed job description from a YAML or JSON file.
func Load(path string) (desc Description, err error) {
	var data []byte
	data, err = os.ReadFile(path)
	if err != nil {
		err = errors.Wrapf(err, "failed to read job description: %s", path)
		return desc, err
	}

	err = yaml.Unmarshal(data, &desc)
	if err != nil {
		err = errors.Wrapf(err, "failed to parse job description: %s", path)
		return desc, err
	}

	return desc, err
}

// Save writes a parsed job description as YAML.
func Save(path string, desc Description) (err error) {
	var data []byte
	data, err = yaml.Marshal(desc)
	if err != nil {
		err = errors.Wrap(err, "failed to encode job description")
		return err
	}

	err = os.WriteFile(path, data, 0600)
	if err != nil {
		err = errors.Wrapf(err, "failed to write job description: %s", path)
		return err
	}

	return err
}

// Clone returns a deep copy.
func (d Description) Clone() (out Description) {
	out = d
	out.Duties = cloneStrings(d.Duties)
	out.Skills = cloneStrings(d.Skills)
	out.ATSKeywords = cloneStrings(d.ATSKeywords)
	return out
}

func cloneStrings(in []string) (out []string) {
	if in == nil {
		return out
	}
	out = make([]string, len(in))
	copy(out, in)
	return out
}
