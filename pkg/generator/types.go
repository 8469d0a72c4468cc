package generator

import (
	"fmt"
)

// Section names, as used in errors, logs and reports.
const (
	SectionSummary      = "summary"
	SectionTechnical    = "skills.technical"
	SectionNonTechnical = "skills.nonTechnical"
)

// ExperienceSection names the ledger slot of one experience entry.
func ExperienceSection(index int) (name string) {
	name = fmt.Sprintf("experience[%d]", index)
	return name
}

// TextRevision is the structured result of a free-text section.
type TextRevision struct {
	Result          string   `json:"result" validate:"required"`
	Changes         []string `json:"changes" validate:"required"`
	Recommendations []string `json:"recommendations" validate:"required"`
}

// ListRevision is the structured result of a list section.
type ListRevision struct {
	Result          []string `json:"result" validate:"required,min=1"`
	Changes         []string `json:"changes" validate:"required"`
	Recommendations []string `json:"recommendations" validate:"required"`
}

// SectionError reports which section a generation failure came from.
type SectionError struct {
	Section string
	Err     error
}

func (e *SectionError) Error() (msg string) {
	msg = fmt.Sprintf("generating %s: %v", e.Section, e.Err)
	return msg
}

// Unwrap returns the underlying failure.
func (e *SectionError) Unwrap() (err error) {
	err = e.Err
	return err
}
