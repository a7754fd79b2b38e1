// Package app implements the coaching workflow: the guided interview, the
// dossier, and the serious-plan generation pipeline.
package app

import (
	"context"
	"errors"
	"time"

	"pathwise/internal/jobs"
	"pathwise/internal/lease"
	"pathwise/pkg/ai"
	"pathwise/pkg/domain"
	"pathwise/pkg/mail"
	"pathwise/pkg/render"
	"pathwise/pkg/storage"
	"pathwise/pkg/store"
)

// Config carries the tunable behavior of the workflow. Thresholds here are
// configurable defaults, not load-bearing constants.
type Config struct {
	// PlannedArtifacts are the generated documents seeded for every plan.
	PlannedArtifacts []domain.PlannedArtifact
	// FillerContent replaces artifacts the model was asked for but did not
	// return, so nothing is left stuck in generating.
	FillerContent string
	// ReadRetryAttempts/ReadRetryDelay cover read-after-write races when a
	// transcript write has not become visible yet.
	ReadRetryAttempts int
	ReadRetryDelay    time.Duration
	// AutoStartBackoff is the delay schedule used while waiting for the plan
	// card and dossier after the final module completes.
	AutoStartBackoff []time.Duration
	// PDFConcurrency limits parallel render calls during a bundle render.
	PDFConcurrency int
	// PresignTTL is the lifetime of presigned PDF download links.
	PresignTTL time.Duration
	// AppBaseURL is the public frontend URL used in delivery emails.
	AppBaseURL string
}

// DefaultPlannedArtifacts returns the standard document set for a plan.
func DefaultPlannedArtifacts() []domain.PlannedArtifact {
	return []domain.PlannedArtifact{
		{Key: "decision_snapshot", Title: "Decision Snapshot", Type: "generated", Importance: "core"},
		{Key: "action_plan", Title: "Action Plan", Type: "generated", Importance: "core"},
		{Key: "module_recap", Title: "Module Recap", Type: "generated", Importance: "supporting"},
		{Key: "resources", Title: "Resources", Type: "generated", Importance: "supporting"},
	}
}

func (c *Config) applyDefaults() {
	if len(c.PlannedArtifacts) == 0 {
		c.PlannedArtifacts = DefaultPlannedArtifacts()
	}
	if c.FillerContent == "" {
		c.FillerContent = "This document was not generated. Use the regenerate option to request it again."
	}
	if c.ReadRetryAttempts <= 0 {
		c.ReadRetryAttempts = 3
	}
	if c.ReadRetryDelay <= 0 {
		c.ReadRetryDelay = 200 * time.Millisecond
	}
	if c.PDFConcurrency <= 0 {
		c.PDFConcurrency = 3
	}
	if c.PresignTTL <= 0 {
		c.PresignTTL = 24 * time.Hour
	}
}

// App wires the store, the LLM provider, and the background-task runner into
// the coaching workflow.
type App struct {
	store    store.Store
	llm      ai.TextGenerator
	runner   *jobs.Runner
	leases   *lease.Manager
	renderer render.Renderer
	objects  storage.ObjectStore
	mailer   mail.Sender
	cfg      Config
}

// New builds the application. Renderer, object store, and mailer may be nil;
// the endpoints that need them fail with a descriptive error instead.
func New(st store.Store, llm ai.TextGenerator, runner *jobs.Runner, leases *lease.Manager,
	renderer render.Renderer, objects storage.ObjectStore, mailer mail.Sender, cfg Config) (*App, error) {
	if st == nil {
		return nil, errors.New("store required")
	}
	if llm == nil {
		return nil, errors.New("llm provider required")
	}
	if runner == nil {
		return nil, errors.New("job runner required")
	}
	if leases == nil {
		return nil, errors.New("lease manager required")
	}
	cfg.applyDefaults()
	return &App{
		store:    st,
		llm:      llm,
		runner:   runner,
		leases:   leases,
		renderer: renderer,
		objects:  objects,
		mailer:   mailer,
		cfg:      cfg,
	}, nil
}

// generateJSON prefers the provider's structured-output mode when available.
func (a *App) generateJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if jg, ok := a.llm.(ai.JSONGenerator); ok {
		return jg.GenerateJSON(ctx, systemPrompt, userPrompt)
	}
	return a.llm.GenerateText(ctx, systemPrompt, userPrompt)
}
