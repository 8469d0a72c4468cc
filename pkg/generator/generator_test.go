package generator

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/nikogura/cv-tailor/pkg/cv"
	"github.com/nikogura/cv-tailor/pkg/jd"
	"github.com/nikogura/cv-tailor/pkg/llm"
	"github.com/nikogura/cv-tailor/pkg/prompt"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// fakeGateway answers each request by section name.
type fakeGateway struct {
	mu      sync.Mutex
	calls   []string
	users   map[string]string
	respond func(ctx context.Context, req llm.Request) (resp llm.Response, err error)
}

func (f *fakeGateway) Complete(ctx context.Context, req llm.Request) (resp llm.Response, err error) {
	f.mu.Lock()
	f.calls = append(f.calls, req.Name)
	if f.users == nil {
		f.users = make(map[string]string)
	}
	f.users[req.Name] = req.User
	f.mu.Unlock()

	resp, err = f.respond(ctx, req)
	return resp, err
}

func (f *fakeGateway) callNames() (names []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	names = append(names, f.calls...)
	return names
}

func revisionJSON(t *testing.T, result any, changes ...string) (content string) {
	t.Helper()

	if changes == nil {
		changes = []string{}
	}

	data, err := json.Marshal(map[string]any{
		"result":          result,
		"changes":         changes,
		"recommendations": []string{"add metrics"},
	})
	if err != nil {
		t.Fatalf("Failed to marshal revision: %v", err)
	}

	content = string(data)
	return content
}

// echoGateway revises every section with a predictable result.
func echoGateway(t *testing.T) (gateway *fakeGateway) {
	t.Helper()

	gateway = &fakeGateway{
		respond: func(_ context.Context, req llm.Request) (resp llm.Response, err error) {
			usage := llm.Usage{PromptTokens: 10, CachedPromptTokens: 4, CompletionTokens: 5, TotalTokens: 15}
			if req.Name == SectionSummary {
				resp = llm.Response{Content: revisionJSON(t, "Tailored summary", "rewrote summary"), Usage: usage}
				return resp, err
			}
			resp = llm.Response{Content: revisionJSON(t, []string{"revised " + req.Name}, "reordered"), Usage: usage}
			return resp, err
		},
	}
	return gateway
}

func failingGateway(section string) (err error) {
	err = &llm.Error{Kind: llm.ErrGateway, Provider: "fake", Err: errors.Errorf("%s unavailable", section)}
	return err
}

func testBase() (doc cv.Document) {
	doc = cv.Document{
		Header: cv.Header{
			Name:    "Jane Doe",
			Title:   "Platform Engineer",
			Contact: cv.Contact{Email: "jane@example.com"},
		},
		Summary: "Original summary",
		Skills: cv.Skills{
			Technical:    []string{"Go", "Kubernetes"},
			NonTechnical: []string{"Mentoring"},
		},
		Experience: []cv.Job{
			{Title: "Engineer", Company: "Alpha", Location: "Remote", Dates: "2016-2018", Responsibilities: []string{"alpha work"}},
			{Title: "Senior Engineer", Company: "Beta", Location: "Berlin", Dates: "2018-2021", Responsibilities: []string{"beta work"}},
			{Title: "Staff Engineer", Company: "Gamma", Location: "Remote", Dates: "2021-", Responsibilities: []string{"gamma work"}},
		},
		Education:    []cv.Education{},
		Certificates: []cv.Certificate{},
		Languages:    []cv.Language{},
	}
	return doc
}

func testJob() (job jd.Description) {
	job = jd.Description{
		Title:       "Principal Engineer",
		Skills:      []string{"Go"},
		ATSKeywords: []string{"platform"},
	}
	return job
}

func quietLogger() (logger *logrus.Logger) {
	logger = logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestGenerator(t *testing.T, gateway llm.Gateway, base cv.Document, opts ...Option) (g *Generator) {
	t.Helper()

	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	g, err := New(gateway, base, testJob(), opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return g
}

func TestNewRejectsMalformedPrompt(t *testing.T) {
	gateway := echoGateway(t)

	prompts := prompt.DefaultSet()
	prompts.Skills = "Revise {cv.skills"

	_, err := New(gateway, testBase(), testJob(), WithPrompts(prompts))
	if !errors.Is(err, prompt.ErrMalformedTemplate) {
		t.Fatalf("Expected ErrMalformedTemplate, got %v", err)
	}

	if len(gateway.callNames()) != 0 {
		t.Errorf("Expected no gateway calls, got %v", gateway.callNames())
	}
}

func TestNewRequiresGateway(t *testing.T) {
	_, err := New(nil, testBase(), testJob())
	if err == nil {
		t.Error("Expected error for nil gateway, got nil")
	}
}

func TestGenerateSummary(t *testing.T) {
	g := newTestGenerator(t, echoGateway(t), testBase())

	err := g.GenerateSummary(context.Background())
	if err != nil {
		t.Fatalf("GenerateSummary failed: %v", err)
	}

	if g.Working().Summary != "Tailored summary" {
		t.Errorf("Expected tailored summary, got '%s'", g.Working().Summary)
	}

	if g.Base().Summary != "Original summary" {
		t.Error("Base summary should not change")
	}

	entry := g.Ledger().Summary
	if len(entry.Changes) != 1 || entry.Changes[0] != "rewrote summary" {
		t.Errorf("Unexpected summary changes: %v", entry.Changes)
	}

	if entry.Usage.TotalTokens != 15 {
		t.Errorf("Expected 15 total tokens, got %d", entry.Usage.TotalTokens)
	}
}

func TestSummaryPromptContext(t *testing.T) {
	gateway := echoGateway(t)
	g := newTestGenerator(t, gateway, testBase())

	err := g.GenerateSummary(context.Background())
	if err != nil {
		t.Fatalf("GenerateSummary failed: %v", err)
	}

	user := gateway.users[SectionSummary]
	for _, want := range []string{"Principal Engineer", "Original summary", `"Kubernetes"`, "Gamma"} {
		if !strings.Contains(user, want) {
			t.Errorf("Expected summary prompt to contain %q", want)
		}
	}
}

func TestSectionIndependence(t *testing.T) {
	base := testBase()
	g := newTestGenerator(t, echoGateway(t), base)

	err := g.GenerateSkills(context.Background(), cv.Technical)
	if err != nil {
		t.Fatalf("GenerateSkills failed: %v", err)
	}

	working := g.Working()

	if working.Summary != base.Summary {
		t.Errorf("Skills generation changed the summary: '%s'", working.Summary)
	}

	if diff := cmp.Diff(base.Experience, working.Experience); diff != "" {
		t.Errorf("Skills generation changed experience (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff(base.Skills.NonTechnical, working.Skills.NonTechnical); diff != "" {
		t.Errorf("Technical generation changed non-technical skills (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]string{"revised skills.technical"}, working.Skills.Technical); diff != "" {
		t.Errorf("Technical skills mismatch (-want +got):\n%s", diff)
	}
}

func TestEmptyCategoryShortCircuit(t *testing.T) {
	tests := []struct {
		name     string
		category cv.SkillCategory
		skills   cv.Skills
	}{
		{
			name:     "empty technical",
			category: cv.Technical,
			skills:   cv.Skills{Technical: []string{}, NonTechnical: []string{"Mentoring"}},
		},
		{
			name:     "absent non-technical",
			category: cv.NonTechnical,
			skills:   cv.Skills{Technical: []string{"Go"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := testBase()
			base.Skills = tt.skills

			gateway := echoGateway(t)
			g := newTestGenerator(t, gateway, base)
			before := g.Ledger()

			err := g.GenerateSkills(context.Background(), tt.category)
			if err != nil {
				t.Fatalf("GenerateSkills failed: %v", err)
			}

			if calls := gateway.callNames(); len(calls) != 0 {
				t.Errorf("Expected no gateway calls, got %v", calls)
			}

			if diff := cmp.Diff(before, g.Ledger()); diff != "" {
				t.Errorf("Ledger changed (-want +got):\n%s", diff)
			}

			slot := g.Ledger().Skills.Technical
			if tt.category == cv.NonTechnical {
				slot = g.Ledger().Skills.NonTechnical
			}
			if diff := cmp.Diff(NewLogEntry(nil, nil, llm.Usage{}), slot); diff != "" {
				t.Errorf("Slot is not the zero entry (-want +got):\n%s", diff)
			}
		})
	}
}

func TestUnknownSkillCategory(t *testing.T) {
	g := newTestGenerator(t, echoGateway(t), testBase())

	err := g.GenerateSkills(context.Background(), cv.SkillCategory("hobbies"))
	if err == nil {
		t.Error("Expected error for unknown category, got nil")
	}
}

func TestIndexStableExperienceMerge(t *testing.T) {
	middleDone := make(chan struct{})

	var orderMu sync.Mutex
	var order []string

	gateway := &fakeGateway{
		respond: func(ctx context.Context, req llm.Request) (resp llm.Response, err error) {
			// The first and last entries finish only after the middle one.
			if req.Name != ExperienceSection(1) {
				select {
				case <-middleDone:
				case <-ctx.Done():
					err = ctx.Err()
					return resp, err
				case <-time.After(5 * time.Second):
					err = errors.New("middle entry never completed")
					return resp, err
				}
			}

			orderMu.Lock()
			order = append(order, req.Name)
			orderMu.Unlock()

			if req.Name == ExperienceSection(1) {
				defer close(middleDone)
			}

			resp = llm.Response{
				Content: revisionJSON(t, []string{"revised " + req.Name}),
				Usage:   llm.Usage{TotalTokens: 1},
			}
			return resp, err
		},
	}

	base := testBase()
	g := newTestGenerator(t, gateway, base)

	err := g.GenerateExperience(context.Background())
	if err != nil {
		t.Fatalf("GenerateExperience failed: %v", err)
	}

	if len(order) != 3 || order[0] != ExperienceSection(1) {
		t.Fatalf("Expected middle entry to complete first, got %v", order)
	}

	working := g.Working()
	for i, job := range working.Experience {
		if job.Company != base.Experience[i].Company {
			t.Errorf("Entry %d: expected company '%s', got '%s'", i, base.Experience[i].Company, job.Company)
		}

		expected := []string{"revised " + ExperienceSection(i)}
		if diff := cmp.Diff(expected, job.Responsibilities); diff != "" {
			t.Errorf("Entry %d responsibilities mismatch (-want +got):\n%s", i, diff)
		}

		if !strings.Contains(gateway.users[ExperienceSection(i)], base.Experience[i].Company) {
			t.Errorf("Entry %d prompt does not describe its source entry", i)
		}
	}

	ledger := g.Ledger()
	for i, entry := range ledger.Experience {
		if entry.Usage.TotalTokens != 1 {
			t.Errorf("Ledger slot %d not filled: %+v", i, entry)
		}
	}
}

func TestPartialFailureVisibility(t *testing.T) {
	gateway := &fakeGateway{
		respond: func(_ context.Context, req llm.Request) (resp llm.Response, err error) {
			if req.Name == SectionTechnical {
				err = failingGateway(req.Name)
				return resp, err
			}
			resp = llm.Response{Content: revisionJSON(t, "Tailored summary")}
			return resp, err
		},
	}

	g := newTestGenerator(t, gateway, testBase())

	err := g.GenerateSummary(context.Background())
	if err != nil {
		t.Fatalf("GenerateSummary failed: %v", err)
	}

	err = g.GenerateSkills(context.Background(), cv.Technical)
	if err == nil {
		t.Fatal("Expected error, got nil")
	}

	if !errors.Is(err, llm.ErrGateway) {
		t.Errorf("Expected ErrGateway, got %v", err)
	}

	var sectionErr *SectionError
	if !errors.As(err, &sectionErr) {
		t.Fatalf("Expected *SectionError, got %T", err)
	}

	if sectionErr.Section != SectionTechnical {
		t.Errorf("Expected section '%s', got '%s'", SectionTechnical, sectionErr.Section)
	}

	working := g.Working()
	if working.Summary != "Tailored summary" {
		t.Errorf("Generated summary was lost: '%s'", working.Summary)
	}

	if diff := cmp.Diff(testBase().Skills.Technical, working.Skills.Technical); diff != "" {
		t.Errorf("Failed section should keep base values (-want +got):\n%s", diff)
	}
}

func TestValidationFailure(t *testing.T) {
	gateway := &fakeGateway{
		respond: func(_ context.Context, _ llm.Request) (resp llm.Response, err error) {
			resp = llm.Response{Content: revisionJSON(t, []string{})}
			return resp, err
		},
	}

	g := newTestGenerator(t, gateway, testBase())

	err := g.GenerateSkills(context.Background(), cv.NonTechnical)
	if !errors.Is(err, llm.ErrValidation) {
		t.Fatalf("Expected ErrValidation, got %v", err)
	}

	if errors.Is(err, llm.ErrGateway) {
		t.Error("Validation failure should be distinct from gateway failure")
	}

	if diff := cmp.Diff(NewLogEntry(nil, nil, llm.Usage{}), g.Ledger().Skills.NonTechnical); diff != "" {
		t.Errorf("Failed section should leave its slot at zero (-want +got):\n%s", diff)
	}
}

func TestEmptyPayload(t *testing.T) {
	gateway := &fakeGateway{
		respond: func(_ context.Context, _ llm.Request) (resp llm.Response, err error) {
			return resp, err
		},
	}

	g := newTestGenerator(t, gateway, testBase())

	err := g.GenerateSummary(context.Background())
	if !errors.Is(err, llm.ErrEmptyPayload) {
		t.Errorf("Expected ErrEmptyPayload, got %v", err)
	}
}

func TestGenerateExperienceFailFast(t *testing.T) {
	gateway := &fakeGateway{
		respond: func(ctx context.Context, req llm.Request) (resp llm.Response, err error) {
			if req.Name == ExperienceSection(1) {
				err = failingGateway(req.Name)
				return resp, err
			}

			// Siblings wait for cancellation.
			select {
			case <-ctx.Done():
				err = &llm.Error{Kind: llm.ErrGateway, Provider: "fake", Err: ctx.Err()}
			case <-time.After(5 * time.Second):
				err = errors.New("sibling was not cancelled")
			}
			return resp, err
		},
	}

	base := testBase()
	g := newTestGenerator(t, gateway, base)

	err := g.GenerateExperience(context.Background())

	var sectionErr *SectionError
	if !errors.As(err, &sectionErr) {
		t.Fatalf("Expected *SectionError, got %v", err)
	}

	if sectionErr.Section != ExperienceSection(1) {
		t.Errorf("Expected failing section '%s', got '%s'", ExperienceSection(1), sectionErr.Section)
	}

	if diff := cmp.Diff(base.Experience, g.Working().Experience); diff != "" {
		t.Errorf("Failed entries should keep base values (-want +got):\n%s", diff)
	}
}

func TestGenerateAllSequential(t *testing.T) {
	gateway := echoGateway(t)
	g := newTestGenerator(t, gateway, testBase(), WithSequential())

	err := g.GenerateAll(context.Background())
	if err != nil {
		t.Fatalf("GenerateAll failed: %v", err)
	}

	expected := []string{
		SectionSummary,
		SectionTechnical,
		SectionNonTechnical,
	}
	calls := gateway.callNames()
	if len(calls) != 6 {
		t.Fatalf("Expected 6 calls, got %v", calls)
	}
	if diff := cmp.Diff(expected, calls[:3]); diff != "" {
		t.Errorf("Call order mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerateAllSequentialStopsAtFailure(t *testing.T) {
	gateway := &fakeGateway{
		respond: func(_ context.Context, req llm.Request) (resp llm.Response, err error) {
			err = failingGateway(req.Name)
			return resp, err
		},
	}

	g := newTestGenerator(t, gateway, testBase(), WithSequential())

	err := g.GenerateAll(context.Background())
	if err == nil {
		t.Fatal("Expected error, got nil")
	}

	if calls := gateway.callNames(); len(calls) != 1 {
		t.Errorf("Expected a single call before stopping, got %v", calls)
	}
}

func TestGenerateAllConcurrent(t *testing.T) {
	gateway := echoGateway(t)
	g := newTestGenerator(t, gateway, testBase(), WithProvider("fake", "fake-model"))

	err := g.GenerateAll(context.Background())
	if err != nil {
		t.Fatalf("GenerateAll failed: %v", err)
	}

	working := g.Working()
	if working.Summary != "Tailored summary" {
		t.Errorf("Expected tailored summary, got '%s'", working.Summary)
	}

	if working.Skills.NonTechnical[0] != "revised skills.nonTechnical" {
		t.Errorf("Unexpected non-technical skills: %v", working.Skills.NonTechnical)
	}

	ledger := g.Ledger()
	if ledger.Provider != "fake" || ledger.Model != "fake-model" {
		t.Errorf("Expected provider info in ledger, got '%s' '%s'", ledger.Provider, ledger.Model)
	}

	expected := llm.Usage{PromptTokens: 60, CachedPromptTokens: 24, CompletionTokens: 30, TotalTokens: 90}
	if total := ledger.Total(); total != expected {
		t.Errorf("Expected total %+v, got %+v", expected, total)
	}
}

func TestConcurrencyLimit(t *testing.T) {
	var inFlight, peak int32

	gateway := &fakeGateway{
		respond: func(_ context.Context, req llm.Request) (resp llm.Response, err error) {
			current := atomic.AddInt32(&inFlight, 1)
			for {
				old := atomic.LoadInt32(&peak)
				if current <= old || atomic.CompareAndSwapInt32(&peak, old, current) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)

			resp = llm.Response{Content: revisionJSON(t, []string{"revised " + req.Name})}
			return resp, err
		},
	}

	g := newTestGenerator(t, gateway, testBase(), WithConcurrency(1))

	err := g.GenerateExperience(context.Background())
	if err != nil {
		t.Fatalf("GenerateExperience failed: %v", err)
	}

	if got := atomic.LoadInt32(&peak); got != 1 {
		t.Errorf("Expected at most 1 request in flight, got %d", got)
	}
}

func TestWorkingAndLedgerAreCopies(t *testing.T) {
	g := newTestGenerator(t, echoGateway(t), testBase())

	err := g.GenerateAll(context.Background())
	if err != nil {
		t.Fatalf("GenerateAll failed: %v", err)
	}

	working := g.Working()
	working.Experience[0].Responsibilities[0] = "mutated"

	ledger := g.Ledger()
	ledger.Summary.Changes[0] = "mutated"

	if g.Working().Experience[0].Responsibilities[0] == "mutated" {
		t.Error("Working returned a shared document")
	}

	if g.Ledger().Summary.Changes[0] == "mutated" {
		t.Error("Ledger returned a shared ledger")
	}
}

func TestBaseIsNotAliased(t *testing.T) {
	base := testBase()
	g := newTestGenerator(t, echoGateway(t), base)

	err := g.GenerateExperience(context.Background())
	if err != nil {
		t.Fatalf("GenerateExperience failed: %v", err)
	}

	if base.Experience[0].Responsibilities[0] != "alpha work" {
		t.Error("Caller's base document was modified")
	}

	if g.Base().Experience[0].Responsibilities[0] != "alpha work" {
		t.Error("Generator base document was modified")
	}
}
