package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nikogura/cv-tailor/pkg/cv"
	"github.com/nikogura/cv-tailor/pkg/generator"
	"github.com/nikogura/cv-tailor/pkg/jd"
	"github.com/nikogura/cv-tailor/pkg/llm"
)

func testRun() (base, working cv.Document, ledger generator.Ledger) {
	base = cv.Document{
		Summary: "Original",
		Skills: cv.Skills{
			Technical: []string{"Go"},
		},
		Experience: []cv.Job{
			{Title: "Engineer", Company: "Acme", Responsibilities: []string{"built things"}},
		},
	}

	working = base.Clone()
	working.Summary = "Tailored"

	ledger = generator.NewLedger(base, jd.Description{Title: "Staff Engineer"})
	ledger.Provider = "openai"
	ledger.Model = "gpt-4o-mini"
	ledger.Summary = generator.NewLogEntry([]string{"Led with platform work"}, []string{"Add team size"}, llm.Usage{PromptTokens: 80, CachedPromptTokens: 40, CompletionTokens: 20, TotalTokens: 100})
	ledger.Experience[0] = generator.NewLogEntry(nil, nil, llm.Usage{TotalTokens: 50})

	return base, working, ledger
}

func TestBuild(t *testing.T) {
	base, working, ledger := testRun()
	report := Build(base, working, ledger)

	if report.JobTitle != "Staff Engineer" {
		t.Errorf("Expected job title 'Staff Engineer', got '%s'", report.JobTitle)
	}

	if len(report.Sections) != 4 {
		t.Fatalf("Expected 4 sections, got %d", len(report.Sections))
	}

	tests := []struct {
		index     int
		title     string
		generated bool
		changed   bool
	}{
		{index: 0, title: "Summary", generated: true, changed: true},
		{index: 1, title: "Technical Skills", generated: false, changed: false},
		{index: 2, title: "Non-Technical Skills", generated: false, changed: false},
		{index: 3, title: "Experience: Engineer, Acme", generated: true, changed: false},
	}

	for _, tt := range tests {
		section := report.Sections[tt.index]
		if section.Title != tt.title {
			t.Errorf("Section %d: expected title '%s', got '%s'", tt.index, tt.title, section.Title)
		}
		if section.Generated != tt.generated {
			t.Errorf("Section %d: expected generated %v, got %v", tt.index, tt.generated, section.Generated)
		}
		if section.Changed != tt.changed {
			t.Errorf("Section %d: expected changed %v, got %v", tt.index, tt.changed, section.Changed)
		}
	}
}

func TestWriteText(t *testing.T) {
	base, working, ledger := testRun()

	var buf bytes.Buffer
	err := Build(base, working, ledger).Write(&buf, Text)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	output := buf.String()
	for _, want := range []string{
		"for Staff Engineer",
		"[changed] Summary",
		"- Led with platform work",
		"> Add team size",
		"[skipped] Technical Skills",
		"Tokens: 80 prompt (40 cached), 20 completion, 150 total",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, output)
		}
	}
}

func TestWriteMarkdown(t *testing.T) {
	base, working, ledger := testRun()
	path := filepath.Join(t.TempDir(), "reports", "run.md")

	err := Build(base, working, ledger).WriteFile(path, Markdown)
	if err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read report: %v", err)
	}

	output := string(data)
	for _, want := range []string{
		"# CV Tailoring Report: Staff Engineer",
		"- Provider: openai gpt-4o-mini",
		"## Summary",
		"**Recommendations**",
		"_Not generated._",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected markdown to contain %q, got:\n%s", want, output)
		}
	}
}

func TestWriteUnknownFormat(t *testing.T) {
	base, working, ledger := testRun()

	var buf bytes.Buffer
	err := Build(base, working, ledger).Write(&buf, Format("pdf"))
	if err == nil {
		t.Error("Expected error for unknown format, got nil")
	}
}
