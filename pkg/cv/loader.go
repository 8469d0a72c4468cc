package cv

import (
	"bytes"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

//nolint:gochecknoglobals // validator caches struct metadata and is safe for concurrent use
var validate = newValidator()

func newValidator() (v *validator.Validate) {
	v = validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their document names rather than Go names.
	v.RegisterTagNameFunc(func(field reflect.StructField) (name string) {
		name = strings.SplitN(field.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			name = ""
		}
		return name
	})

	return v
}

// Load reads a CV from a YAML file and validates it.
func Load(path string) (doc Document, err error) {
	doc, err = LoadPartial(path)
	if err != nil {
		return doc, err
	}

	err = doc.Validate()
	if err != nil {
		err = errors.Wrapf(err, "invalid CV: %s", path)
		return doc, err
	}

	return doc, err
}

// LoadPartial reads a CV from a YAML file without validating it. Used for
// version overlays that only carry some sections.
func LoadPartial(path string) (doc Document, err error) {
	var fileData []byte
	fileData, err = os.ReadFile(path)
	if err != nil {
		err = errors.Wrapf(err, "failed to read CV file: %s", path)
		return doc, err
	}

	doc, err = Parse(fileData)
	if err != nil {
		err = errors.Wrapf(err, "failed to parse CV YAML: %s", path)
		return doc, err
	}

	return doc, err
}

// Parse decodes a YAML (or JSON) CV without validating it.
func Parse(data []byte) (doc Document, err error) {
	if len(bytes.TrimSpace(data)) == 0 {
		err = errors.New("CV document is empty")
		return doc, err
	}

	err = yaml.Unmarshal(data, &doc)
	if err != nil {
		err = errors.Wrap(err, "failed to decode CV")
		return doc, err
	}

	return doc, err
}

// Save writes a CV as YAML.
func Save(path string, doc Document) (err error) {
	var data []byte
	data, err = Marshal(doc)
	if err != nil {
		return err
	}

	err = os.WriteFile(path, data, 0600)
	if err != nil {
		err = errors.Wrapf(err, "failed to write CV file: %s", path)
		return err
	}

	return err
}

// Marshal encodes a CV as YAML with two-space indentation.
func Marshal(doc Document) (data []byte, err error) {
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)

	err = encoder.Encode(doc)
	if err != nil {
		err = errors.Wrap(err, "failed to encode CV")
		return data, err
	}

	err = encoder.Close()
	if err != nil {
		err = errors.Wrap(err, "failed to encode CV")
		return data, err
	}

	data = buf.Bytes()
	return data, err
}

// Validate checks that the CV is well-formed. List sections must be present,
// though they may be empty.
func (d Document) Validate() (err error) {
	err = validate.Struct(d)
	if err == nil {
		return err
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		err = errors.Wrap(err, "CV validation failed")
		return err
	}

	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		messages = append(messages, describeFieldError(fe))
	}

	err = errors.Errorf("CV validation failed: %s", strings.Join(messages, "; "))
	return err
}

func describeFieldError(fe validator.FieldError) (msg string) {
	field := strings.TrimPrefix(fe.Namespace(), "Document.")

	switch fe.Tag() {
	case "required":
		msg = field + " is required"
	case "email":
		msg = field + " must be an email address"
	case "url":
		msg = field + " must be a URL"
	case "min", "max":
		msg = field + " must be between 1 and 5"
	default:
		msg = field + " failed " + fe.Tag()
	}

	return msg
}

// Clone returns a deep copy. Absent lists stay absent.
func (d Document) Clone() (clone Document) {
	clone = d
	clone.Skills = Skills{
		Technical:    cloneStrings(d.Skills.Technical),
		NonTechnical: cloneStrings(d.Skills.NonTechnical),
	}

	if d.Experience != nil {
		clone.Experience = make([]Job, len(d.Experience))
		for i, job := range d.Experience {
			clone.Experience[i] = job
			clone.Experience[i].Responsibilities = cloneStrings(job.Responsibilities)
		}
	}

	clone.Education = cloneSlice(d.Education)
	clone.Certificates = cloneSlice(d.Certificates)
	clone.Languages = cloneSlice(d.Languages)

	return clone
}

// Merge overlays a version document on a base. Each section present in the
// version replaces the base section as a whole.
func Merge(base, version Document) (merged Document) {
	merged = base.Clone()
	version = version.Clone()

	if version.Header != (Header{}) {
		merged.Header = version.Header
	}

	if version.Summary != "" {
		merged.Summary = version.Summary
	}

	if version.Skills.Technical != nil || version.Skills.NonTechnical != nil {
		merged.Skills = version.Skills
	}

	if version.Experience != nil {
		merged.Experience = version.Experience
	}

	if version.Education != nil {
		merged.Education = version.Education
	}

	if version.Certificates != nil {
		merged.Certificates = version.Certificates
	}

	if version.Languages != nil {
		merged.Languages = version.Languages
	}

	return merged
}

func cloneStrings(in []string) (out []string) {
	out = cloneSlice(in)
	return out
}

func cloneSlice[T any](in []T) (out []T) {
	if in == nil {
		return out
	}
	out = make([]T, len(in))
	copy(out, in)
	return out
}
