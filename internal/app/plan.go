package app

import (
	"context"
	"fmt"

	"pathwise/internal/jobs"
	"pathwise/internal/retry"
	"pathwise/internal/util"
	"pathwise/pkg/domain"
)

// InitResult is the outcome of plan initialization. The worker handles are
// populated only when this call started generation; callers that just poll
// ignore them, tests wait on them instead of sleeping.
type InitResult struct {
	Plan      domain.SeriousPlan
	Artifacts []domain.PlanArtifact
	Created   bool
	Letter    *jobs.Handle
	Bulk      *jobs.Handle
}

// InitPlan creates the user's serious plan, seeds its artifacts, and starts
// the two generation workers. Idempotent: if a plan already exists it is
// returned unchanged and no new workers start.
func (a *App) InitPlan(ctx context.Context, userID string) (InitResult, error) {
	t, err := a.transcriptWithRetry(ctx, userID)
	if err != nil {
		return InitResult{}, err
	}
	if !t.PaymentVerified {
		return InitResult{}, ErrPaymentRequired
	}
	if t.PlanCard == nil || t.Dossier == nil {
		return InitResult{}, fmt.Errorf("plan card or dossier missing: %w", ErrNotReady)
	}

	horizon, rationale := DeterminePlanHorizon(t.Dossier)
	plan := domain.SeriousPlan{
		ID:               util.NewID(),
		UserID:           userID,
		Status:           domain.PlanGenerating,
		LetterStatus:     domain.ArtifactPending,
		BundlePDFStatus:  domain.PDFPending,
		ClientName:       t.Dossier.ClientName,
		Horizon:          horizon,
		HorizonRationale: rationale,
	}
	created, err := a.store.CreatePlan(plan)
	if err != nil {
		return InitResult{}, fmt.Errorf("create plan: %w", err)
	}
	if !created {
		existing, ok, err := a.store.GetPlanByUser(userID)
		if err != nil {
			return InitResult{}, fmt.Errorf("load existing plan: %w", err)
		}
		if !ok {
			return InitResult{}, fmt.Errorf("plan vanished after conflict: %w", ErrNotFound)
		}
		artifacts, err := a.store.ListArtifacts(existing.ID)
		if err != nil {
			return InitResult{}, fmt.Errorf("list artifacts: %w", err)
		}
		return InitResult{Plan: existing, Artifacts: artifacts}, nil
	}

	rows := seedArtifacts(t, plan.ID, a.cfg.PlannedArtifacts)
	if err := a.store.CreateArtifacts(rows); err != nil {
		if serr := a.store.SetPlanStatus(plan.ID, domain.PlanError); serr != nil {
			util.LoggerFromContext(ctx).Error("mark plan error after seed failure",
				"plan_id", plan.ID, "err", serr)
		}
		return InitResult{}, fmt.Errorf("seed artifacts: %w", err)
	}

	letterH, bulkH, err := a.startGeneration(plan.ID)
	if err != nil {
		return InitResult{}, err
	}
	artifacts, err := a.store.ListArtifacts(plan.ID)
	if err != nil {
		return InitResult{}, fmt.Errorf("list artifacts: %w", err)
	}
	util.LoggerFromContext(ctx).Info("plan initialized",
		"plan_id", plan.ID,
		"user_id", userID,
		"horizon", plan.Horizon,
		"artifacts", len(artifacts),
	)
	return InitResult{Plan: plan, Artifacts: artifacts, Created: true, Letter: letterH, Bulk: bulkH}, nil
}

// Regenerate re-triggers generation for everything not yet complete: error
// artifacts go back to pending, the letter restarts unless finished, and both
// workers run again. Manual only; nothing requeues error artifacts on its own.
func (a *App) Regenerate(ctx context.Context, userID, planID string) (InitResult, error) {
	plan, err := a.planForOwner(userID, planID)
	if err != nil {
		return InitResult{}, err
	}
	artifacts, err := a.store.ListArtifacts(planID)
	if err != nil {
		return InitResult{}, fmt.Errorf("list artifacts: %w", err)
	}
	for _, art := range artifacts {
		if art.Type == domain.ArtifactGenerated && art.Status == domain.ArtifactError {
			if err := a.store.SetArtifactStatus(planID, art.Key, domain.ArtifactPending); err != nil {
				return InitResult{}, fmt.Errorf("reset artifact %s: %w", art.Key, err)
			}
		}
	}
	if plan.LetterStatus != domain.ArtifactComplete {
		if err := a.store.SetLetter(planID, domain.ArtifactPending, ""); err != nil {
			return InitResult{}, fmt.Errorf("reset letter: %w", err)
		}
	}
	if err := a.store.SetPlanStatus(planID, domain.PlanGenerating); err != nil {
		return InitResult{}, fmt.Errorf("reset plan status: %w", err)
	}
	letterH, bulkH, err := a.startGeneration(planID)
	if err != nil {
		return InitResult{}, err
	}
	plan, _, err = a.store.GetPlan(planID)
	if err != nil {
		return InitResult{}, fmt.Errorf("reload plan: %w", err)
	}
	return InitResult{Plan: plan, Artifacts: artifacts, Letter: letterH, Bulk: bulkH}, nil
}

// PlanForUser returns the current user's plan and artifacts, the polling read.
func (a *App) PlanForUser(ctx context.Context, userID string) (domain.SeriousPlan, []domain.PlanArtifact, error) {
	plan, ok, err := a.store.GetPlanByUser(userID)
	if err != nil {
		return domain.SeriousPlan{}, nil, fmt.Errorf("load plan: %w", err)
	}
	if !ok {
		return domain.SeriousPlan{}, nil, ErrNotFound
	}
	artifacts, err := a.store.ListArtifacts(plan.ID)
	if err != nil {
		return domain.SeriousPlan{}, nil, fmt.Errorf("list artifacts: %w", err)
	}
	return plan, artifacts, nil
}

// PlanByID returns a plan by ID with its artifacts, enforcing ownership.
func (a *App) PlanByID(ctx context.Context, userID, planID string) (domain.SeriousPlan, []domain.PlanArtifact, error) {
	plan, err := a.planForOwner(userID, planID)
	if err != nil {
		return domain.SeriousPlan{}, nil, err
	}
	artifacts, err := a.store.ListArtifacts(planID)
	if err != nil {
		return domain.SeriousPlan{}, nil, fmt.Errorf("list artifacts: %w", err)
	}
	return plan, artifacts, nil
}

func (a *App) planForOwner(userID, planID string) (domain.SeriousPlan, error) {
	plan, ok, err := a.store.GetPlan(planID)
	if err != nil {
		return domain.SeriousPlan{}, fmt.Errorf("load plan: %w", err)
	}
	if !ok {
		return domain.SeriousPlan{}, ErrNotFound
	}
	if plan.UserID != userID {
		return domain.SeriousPlan{}, ErrForbidden
	}
	return plan, nil
}

func (a *App) startGeneration(planID string) (letter, bulk *jobs.Handle, err error) {
	letter, err = a.runner.Submit("coach-letter:"+planID, func(ctx context.Context) error {
		return a.runLetterWorker(ctx, planID)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("submit letter worker: %w", err)
	}
	bulk, err = a.runner.Submit("plan-artifacts:"+planID, func(ctx context.Context) error {
		return a.runArtifactWorker(ctx, planID)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("submit artifact worker: %w", err)
	}
	return letter, bulk, nil
}

// transcriptWithRetry reads the user's transcript with a short linear retry,
// covering the window where a just-written row is not visible yet.
func (a *App) transcriptWithRetry(ctx context.Context, userID string) (domain.Transcript, error) {
	var t domain.Transcript
	err := retry.Linear(ctx, a.cfg.ReadRetryAttempts, a.cfg.ReadRetryDelay, func(ctx context.Context) error {
		loaded, ok, err := a.store.GetTranscriptByUser(userID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotReady
		}
		t = loaded
		return nil
	})
	if err != nil {
		return domain.Transcript{}, fmt.Errorf("load transcript: %w", err)
	}
	return t, nil
}
