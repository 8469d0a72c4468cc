package generator

import (
	"context"

	"github.com/nikogura/cv-tailor/pkg/cv"
	"github.com/nikogura/cv-tailor/pkg/jd"
	"github.com/nikogura/cv-tailor/pkg/llm"
	"github.com/nikogura/cv-tailor/pkg/prompt"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Generator tailors one base CV to one job description. The base is never
// modified. Each Generate call revises its sections of the working copy
// and fills the matching ledger slots.
//
// Sections are generated from base values only, so they may run in any
// order or concurrently. A failed section leaves sections already written
// in place: after an error the working copy can be partly tailored.
//
// Working and Ledger must not be called while a Generate call is running.
type Generator struct {
	gateway    llm.Gateway
	base       cv.Document
	job        jd.Description
	prompts    prompt.Set
	system     string
	limit      int
	sequential bool
	logger     *logrus.Logger
	run        *run
}

// run accumulates the output of a generation run.
type run struct {
	working cv.Document
	ledger  Ledger
}

// Option configures a Generator.
type Option func(g *Generator)

// WithPrompts replaces the built-in prompt templates.
func WithPrompts(prompts prompt.Set) (opt Option) {
	opt = func(g *Generator) {
		g.prompts = prompts
	}
	return opt
}

// WithConcurrency caps in-flight experience requests. Zero means no cap.
func WithConcurrency(n int) (opt Option) {
	opt = func(g *Generator) {
		g.limit = n
	}
	return opt
}

// WithSequential makes GenerateAll run sections one after another.
func WithSequential() (opt Option) {
	opt = func(g *Generator) {
		g.sequential = true
	}
	return opt
}

// WithLogger sets the logger for per-section events.
func WithLogger(logger *logrus.Logger) (opt Option) {
	opt = func(g *Generator) {
		if logger != nil {
			g.logger = logger
		}
	}
	return opt
}

// WithProvider records the provider and model in the ledger.
func WithProvider(provider, model string) (opt Option) {
	opt = func(g *Generator) {
		g.run.ledger.Provider = provider
		g.run.ledger.Model = model
	}
	return opt
}

// New creates a Generator. Prompt templates are checked here, before any
// request is made.
func New(gateway llm.Gateway, base cv.Document, job jd.Description, opts ...Option) (g *Generator, err error) {
	if gateway == nil {
		err = errors.New("completion gateway is required")
		return g, err
	}

	base = base.Clone()
	job = job.Clone()

	g = &Generator{
		gateway: gateway,
		base:    base,
		job:     job,
		prompts: prompt.DefaultSet(),
		logger:  logrus.StandardLogger(),
		run: &run{
			working: base.Clone(),
			ledger:  NewLedger(base, job),
		},
	}

	for _, opt := range opts {
		opt(g)
	}

	err = g.prompts.Validate()
	if err != nil {
		return g, err
	}

	g.system, err = prompt.Render(g.prompts.System, map[string]any{"job": job})
	if err != nil {
		err = errors.Wrap(err, "failed to render system prompt")
		return g, err
	}

	return g, err
}

// Base returns a copy of the base document.
func (g *Generator) Base() (doc cv.Document) {
	doc = g.base.Clone()
	return doc
}

// Working returns a copy of the working document.
func (g *Generator) Working() (doc cv.Document) {
	doc = g.run.working.Clone()
	return doc
}

// Ledger returns a copy of the ledger.
func (g *Generator) Ledger() (ledger Ledger) {
	ledger = g.run.ledger.Clone()
	return ledger
}

// GenerateSummary rewrites the summary.
func (g *Generator) GenerateSummary(ctx context.Context) (err error) {
	values := map[string]any{
		"cv": map[string]any{
			"summary":    g.base.Summary,
			"skills":     g.base.Skills,
			"experience": g.base.Experience,
		},
		"job": g.job,
	}

	var revision TextRevision
	var usage llm.Usage
	revision, usage, err = complete[TextRevision](ctx, g, SectionSummary, g.prompts.Summary, values)
	if err != nil {
		err = &SectionError{Section: SectionSummary, Err: err}
		return err
	}

	g.run.working.Summary = revision.Result
	g.run.ledger.Summary = NewLogEntry(revision.Changes, revision.Recommendations, usage)

	return err
}

// GenerateSkills revises one skill category. An empty or absent category is
// skipped without a request.
func (g *Generator) GenerateSkills(ctx context.Context, category cv.SkillCategory) (err error) {
	if !category.Valid() {
		err = errors.Errorf("unknown skill category %q", category)
		return err
	}

	section := SectionTechnical
	label := "technical"
	if category == cv.NonTechnical {
		section = SectionNonTechnical
		label = "non-technical"
	}

	skills := g.base.Skills.Get(category)
	if len(skills) == 0 {
		g.logger.WithField("section", section).Debug("no skills in category, skipping")
		return err
	}

	values := map[string]any{
		"cv": map[string]any{
			"skills":     skills,
			"experience": g.base.Experience,
		},
		"job":       g.job,
		"skillType": label,
	}

	var revision ListRevision
	var usage llm.Usage
	revision, usage, err = complete[ListRevision](ctx, g, section, g.prompts.Skills, values)
	if err != nil {
		err = &SectionError{Section: section, Err: err}
		return err
	}

	g.run.working.Skills.Set(category, copyStrings(revision.Result))

	entry := NewLogEntry(revision.Changes, revision.Recommendations, usage)
	if category == cv.Technical {
		g.run.ledger.Skills.Technical = entry
	} else {
		g.run.ledger.Skills.NonTechnical = entry
	}

	return err
}

// GenerateExperience revises the responsibilities of every experience entry
// in parallel. Results are placed by entry index. The first failure cancels
// the remaining requests and is returned.
func (g *Generator) GenerateExperience(ctx context.Context) (err error) {
	group, groupCtx := errgroup.WithContext(ctx)
	if g.limit > 0 {
		group.SetLimit(g.limit)
	}

	for i := range g.base.Experience {
		group.Go(func() (taskErr error) {
			taskErr = g.generateExperienceEntry(groupCtx, i)
			return taskErr
		})
	}

	err = group.Wait()
	return err
}

func (g *Generator) generateExperienceEntry(ctx context.Context, index int) (err error) {
	section := ExperienceSection(index)

	err = ctx.Err()
	if err != nil {
		err = &SectionError{Section: section, Err: err}
		return err
	}

	values := map[string]any{
		"entry": g.base.Experience[index],
		"job":   g.job,
	}

	var revision ListRevision
	var usage llm.Usage
	revision, usage, err = complete[ListRevision](ctx, g, section, g.prompts.Experience, values)
	if err != nil {
		err = &SectionError{Section: section, Err: err}
		return err
	}

	g.run.working.Experience[index].Responsibilities = copyStrings(revision.Result)
	g.run.ledger.Experience[index] = NewLogEntry(revision.Changes, revision.Recommendations, usage)

	return err
}

// GenerateAll generates every section, concurrently unless WithSequential
// was given. It stops at the first failure.
func (g *Generator) GenerateAll(ctx context.Context) (err error) {
	steps := []func(ctx context.Context) error{
		g.GenerateSummary,
		func(ctx context.Context) error { return g.GenerateSkills(ctx, cv.Technical) },
		func(ctx context.Context) error { return g.GenerateSkills(ctx, cv.NonTechnical) },
		g.GenerateExperience,
	}

	if g.sequential {
		for _, step := range steps {
			err = step(ctx)
			if err != nil {
				return err
			}
		}
	} else {
		group, groupCtx := errgroup.WithContext(ctx)
		for _, step := range steps {
			group.Go(func() error { return step(groupCtx) })
		}

		err = group.Wait()
		if err != nil {
			return err
		}
	}

	total := g.run.ledger.Total()
	g.logger.WithFields(logrus.Fields{
		"run":    g.run.ledger.RunID,
		"tokens": total.TotalTokens,
		"cached": total.CachedPromptTokens,
	}).Info("generation complete")

	return err
}

// complete renders a section prompt and sends it through the gateway.
func complete[T any](ctx context.Context, g *Generator, section, template string, values map[string]any) (result T, usage llm.Usage, err error) {
	var user string
	user, err = prompt.Render(template, values)
	if err != nil {
		return result, usage, err
	}

	log := g.logger.WithField("section", section)
	log.Debug("requesting completion")

	result, usage, err = llm.Complete[T](ctx, g.gateway, section, g.system, user)
	if err != nil {
		log.WithError(err).Debug("completion failed")
		return result, usage, err
	}

	log.WithFields(logrus.Fields{
		"tokens": usage.TotalTokens,
		"cached": usage.CachedPromptTokens,
	}).Debug("section generated")

	return result, usage, err
}
