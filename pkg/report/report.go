package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/nikogura/cv-tailor/pkg/cv"
	"github.com/nikogura/cv-tailor/pkg/generator"
	"github.com/pkg/errors"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Format selects the report layout.
type Format string

const (
	// Text is plain console output.
	Text Format = "text"
	// Markdown is a markdown document.
	Markdown Format = "markdown"
)

// Section is one reported section of a run.
type Section struct {
	Name            string
	Title           string
	Generated       bool
	Changed         bool
	Changes         []string
	Recommendations []string
	Tokens          int
}

// Report summarizes what a run changed and what it recommends.
type Report struct {
	RunID    string
	JobTitle string
	Provider string
	Model    string
	Sections []Section
	Ledger   generator.Ledger
}

// Build assembles a report from a run's documents and ledger.
func Build(base, working cv.Document, ledger generator.Ledger) (report Report) {
	report = Report{
		RunID:    ledger.RunID,
		JobTitle: ledger.JobDescription.Title,
		Provider: ledger.Provider,
		Model:    ledger.Model,
		Ledger:   ledger,
	}

	for _, section := range ledger.Sections() {
		report.Sections = append(report.Sections, Section{
			Name:            section.Section,
			Title:           sectionTitle(section.Section, base),
			Generated:       section.Entry.Usage.TotalTokens > 0,
			Changed:         sectionChanged(section.Section, base, working),
			Changes:         section.Entry.Changes,
			Recommendations: section.Entry.Recommendations,
			Tokens:          section.Entry.Usage.TotalTokens,
		})
	}

	return report
}

// Write renders the report in the given format.
func (r Report) Write(w io.Writer, format Format) (err error) {
	var content string
	switch format {
	case Markdown:
		content = r.markdown()
	case Text, "":
		content = r.text()
	default:
		err = errors.Errorf("unknown report format %q", format)
		return err
	}

	_, err = io.WriteString(w, content)
	if err != nil {
		err = errors.Wrap(err, "failed to write report")
		return err
	}

	return err
}

// WriteFile writes the report to a file, creating its directory.
func (r Report) WriteFile(path string, format Format) (err error) {
	outputDir := filepath.Dir(path)
	err = os.MkdirAll(outputDir, 0750)
	if err != nil {
		err = errors.Wrapf(err, "failed to create output directory: %s", outputDir)
		return err
	}

	var file *os.File
	file, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		err = errors.Wrapf(err, "failed to create report file: %s", path)
		return err
	}
	defer file.Close()

	err = r.Write(file, format)
	return err
}

func (r Report) text() (content string) {
	var b strings.Builder

	total := r.Ledger.Total()

	fmt.Fprintf(&b, "Run %s", r.RunID)
	if r.JobTitle != "" {
		fmt.Fprintf(&b, " for %s", r.JobTitle)
	}
	b.WriteString("\n")

	for _, section := range r.Sections {
		fmt.Fprintf(&b, "\n%s %s\n", statusMark(section), section.Title)
		for _, change := range section.Changes {
			fmt.Fprintf(&b, "    - %s\n", change)
		}
		for _, rec := range section.Recommendations {
			fmt.Fprintf(&b, "    > %s\n", rec)
		}
	}

	fmt.Fprintf(&b, "\nTokens: %d prompt (%d cached), %d completion, %d total\n",
		total.PromptTokens, total.CachedPromptTokens, total.CompletionTokens, total.TotalTokens)

	content = b.String()
	return content
}

func (r Report) markdown() (content string) {
	var b strings.Builder

	total := r.Ledger.Total()

	title := "CV Tailoring Report"
	if r.JobTitle != "" {
		title += ": " + r.JobTitle
	}
	fmt.Fprintf(&b, "# %s\n\n", title)

	fmt.Fprintf(&b, "- Run: `%s`\n", r.RunID)
	if r.Provider != "" {
		fmt.Fprintf(&b, "- Provider: %s %s\n", r.Provider, r.Model)
	}
	fmt.Fprintf(&b, "- Tokens: %d total (%d prompt, %d cached, %d completion)\n",
		total.TotalTokens, total.PromptTokens, total.CachedPromptTokens, total.CompletionTokens)

	for _, section := range r.Sections {
		fmt.Fprintf(&b, "\n## %s\n\n", section.Title)

		if !section.Generated {
			b.WriteString("_Not generated._\n")
			continue
		}

		if len(section.Changes) > 0 {
			b.WriteString("**Changes**\n\n")
			for _, change := range section.Changes {
				fmt.Fprintf(&b, "- %s\n", change)
			}
			b.WriteString("\n")
		}

		if len(section.Recommendations) > 0 {
			b.WriteString("**Recommendations**\n\n")
			for _, rec := range section.Recommendations {
				fmt.Fprintf(&b, "- %s\n", rec)
			}
			b.WriteString("\n")
		}

		fmt.Fprintf(&b, "_%d tokens_\n", section.Tokens)
	}

	content = b.String()
	return content
}

func statusMark(section Section) (mark string) {
	switch {
	case section.Changed:
		mark = "[changed]"
	case section.Generated:
		mark = "[kept]   "
	default:
		mark = "[skipped]"
	}
	return mark
}

// sectionTitle turns a ledger slot name into a heading.
func sectionTitle(name string, base cv.Document) (title string) {
	caser := cases.Title(language.English)

	switch name {
	case generator.SectionSummary:
		title = caser.String(name)
		return title
	case generator.SectionTechnical:
		title = "Technical Skills"
		return title
	case generator.SectionNonTechnical:
		title = "Non-Technical Skills"
		return title
	}

	var index int
	_, err := fmt.Sscanf(name, "experience[%d]", &index)
	if err != nil || index < 0 || index >= len(base.Experience) {
		title = caser.String(name)
		return title
	}

	job := base.Experience[index]
	title = fmt.Sprintf("Experience: %s, %s", job.Title, job.Company)
	return title
}

func sectionChanged(name string, base, working cv.Document) (changed bool) {
	switch name {
	case generator.SectionSummary:
		changed = base.Summary != working.Summary
		return changed
	case generator.SectionTechnical:
		changed = !equalStrings(base.Skills.Technical, working.Skills.Technical)
		return changed
	case generator.SectionNonTechnical:
		changed = !equalStrings(base.Skills.NonTechnical, working.Skills.NonTechnical)
		return changed
	}

	var index int
	_, err := fmt.Sscanf(name, "experience[%d]", &index)
	if err != nil || index < 0 || index >= len(base.Experience) || index >= len(working.Experience) {
		return changed
	}

	changed = !equalStrings(base.Experience[index].Responsibilities, working.Experience[index].Responsibilities)
	return changed
}

func equalStrings(a, b []string) (equal bool) {
	if len(a) != len(b) {
		return equal
	}
	for i := range a {
		if a[i] != b[i] {
			return equal
		}
	}
	equal = true
	return equal
}
