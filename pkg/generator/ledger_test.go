package generator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nikogura/cv-tailor/pkg/llm"
)

func TestNewLedger(t *testing.T) {
	base := testBase()
	ledger := NewLedger(base, testJob())

	if ledger.RunID == "" {
		t.Error("Expected run ID")
	}

	if len(ledger.Experience) != len(base.Experience) {
		t.Fatalf("Expected %d experience slots, got %d", len(base.Experience), len(ledger.Experience))
	}

	for _, section := range ledger.Sections() {
		if section.Entry.Changes == nil || section.Entry.Recommendations == nil {
			t.Errorf("Slot %s should hold empty lists, got nil", section.Section)
		}
		if section.Entry.Usage != (llm.Usage{}) {
			t.Errorf("Slot %s should start with zero usage", section.Section)
		}
	}

	if ledger.Total() != (llm.Usage{}) {
		t.Errorf("Expected zero total, got %+v", ledger.Total())
	}
}

func TestLedgerSections(t *testing.T) {
	ledger := NewLedger(testBase(), testJob())

	var names []string
	for _, section := range ledger.Sections() {
		names = append(names, section.Section)
	}

	expected := []string{
		"summary",
		"skills.technical",
		"skills.nonTechnical",
		"experience[0]",
		"experience[1]",
		"experience[2]",
	}
	if diff := cmp.Diff(expected, names); diff != "" {
		t.Errorf("Section names mismatch (-want +got):\n%s", diff)
	}
}

func TestNewLogEntryCopies(t *testing.T) {
	changes := []string{"a"}
	entry := NewLogEntry(changes, nil, llm.Usage{TotalTokens: 3})
	changes[0] = "mutated"

	if entry.Changes[0] != "a" {
		t.Error("Log entry shares its changes list with the caller")
	}

	if entry.Recommendations == nil {
		t.Error("Expected empty recommendations, got nil")
	}
}

func TestSaveLoadLedger(t *testing.T) {
	ledger := NewLedger(testBase(), testJob())
	ledger.Provider = "openai"
	ledger.Summary = NewLogEntry([]string{"rewrote"}, []string{"add metrics"}, llm.Usage{PromptTokens: 5, TotalTokens: 8, CompletionTokens: 3})
	ledger.Experience[2] = NewLogEntry(nil, []string{"quantify impact"}, llm.Usage{TotalTokens: 4})

	path := filepath.Join(t.TempDir(), "run.ledger.yaml")

	err := SaveLedger(path, ledger)
	if err != nil {
		t.Fatalf("SaveLedger failed: %v", err)
	}

	loaded, err := LoadLedger(path)
	if err != nil {
		t.Fatalf("LoadLedger failed: %v", err)
	}

	if diff := cmp.Diff(ledger, loaded); diff != "" {
		t.Errorf("Round trip mismatch (-want +got):\n%s", diff)
	}

	if loaded.Total().TotalTokens != 12 {
		t.Errorf("Expected 12 total tokens, got %d", loaded.Total().TotalTokens)
	}
}

func TestLoadLedgerMissing(t *testing.T) {
	_, err := LoadLedger(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Error("Expected error for missing ledger, got nil")
	}
}

func TestLoadLedgerRejectsNonLedger(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty", ""},
		{"garbage", ":::"},
		{"other yaml", "summary: hello\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "run.ledger.yaml")
			err := os.WriteFile(path, []byte(tt.body), 0600)
			if err != nil {
				t.Fatalf("Failed to write file: %v", err)
			}

			_, err = LoadLedger(path)
			if err == nil {
				t.Error("Expected error for a file without a run id, got nil")
			}
		})
	}
}
