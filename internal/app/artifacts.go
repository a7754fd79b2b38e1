package app

import (
	"context"
	"fmt"

	"pathwise/internal/util"
	"pathwise/pkg/ai"
	"pathwise/pkg/domain"
)

// artifactBatch is the expected shape of the bulk generation response.
type artifactBatch struct {
	Meta struct {
		ClientName string `json:"clientName"`
		Tone       string `json:"tone"`
	} `json:"meta"`
	Artifacts []struct {
		ArtifactKey  string `json:"artifactKey"`
		Title        string `json:"title"`
		Importance   string `json:"importance"`
		WhyImportant string `json:"whyImportant"`
		Content      string `json:"content"`
	} `json:"artifacts"`
}

// runArtifactWorker generates every pending artifact of a plan in one LLM
// round trip. All-or-nothing per invocation: full success flips the plan to
// ready and triggers the delivery email; a provider or parse failure forces
// every artifact in the batch to error and the plan with them. Keys the model
// skipped are completed with filler so nothing stays stuck in generating.
func (a *App) runArtifactWorker(ctx context.Context, planID string) error {
	targets, err := a.store.MarkArtifacts(planID, domain.ArtifactPending, domain.ArtifactGenerating)
	if err != nil {
		return fmt.Errorf("mark artifacts generating: %w", err)
	}
	if len(targets) == 0 {
		return a.settlePlan(ctx, planID)
	}

	plan, ok, err := a.store.GetPlan(planID)
	if err != nil || !ok {
		if err == nil {
			err = fmt.Errorf("plan %s: %w", planID, ErrNotFound)
		}
		return a.failBatch(ctx, planID, targets, err)
	}
	t, _, err := a.store.GetTranscriptByUser(plan.UserID)
	if err != nil {
		return a.failBatch(ctx, planID, targets, fmt.Errorf("load transcript: %w", err))
	}

	raw, err := a.generateJSON(ctx, artifactsSystemPrompt, artifactsPrompt(plan, t, targets))
	if err != nil {
		return a.failBatch(ctx, planID, targets, fmt.Errorf("generate artifacts: %w", err))
	}
	var batch artifactBatch
	if err := ai.ExtractJSON(raw, &batch); err != nil {
		return a.failBatch(ctx, planID, targets, fmt.Errorf("parse artifact batch: %w", err))
	}

	byKey := make(map[string]int, len(batch.Artifacts))
	for i, res := range batch.Artifacts {
		byKey[res.ArtifactKey] = i
	}
	filled := 0
	for _, target := range targets {
		i, ok := byKey[target.Key]
		if !ok {
			if err := a.store.SetArtifactContent(planID, target.Key, a.cfg.FillerContent, domain.ArtifactComplete); err != nil {
				return a.failBatch(ctx, planID, targets, fmt.Errorf("store filler for %s: %w", target.Key, err))
			}
			filled++
			continue
		}
		res := batch.Artifacts[i]
		if err := a.store.SetArtifactResult(planID, target.Key, res.Title, res.Importance, res.WhyImportant, res.Content); err != nil {
			return a.failBatch(ctx, planID, targets, fmt.Errorf("store artifact %s: %w", target.Key, err))
		}
	}

	if batch.Meta.ClientName != "" || batch.Meta.Tone != "" {
		if err := a.store.SetPlanSummary(planID, batch.Meta.ClientName, batch.Meta.Tone); err != nil {
			util.LoggerFromContext(ctx).Warn("store plan summary", "plan_id", planID, "err", err)
		}
	}
	if err := a.store.SetPlanStatus(planID, domain.PlanReady); err != nil {
		return fmt.Errorf("mark plan ready: %w", err)
	}
	util.LoggerFromContext(ctx).Info("plan artifacts generated",
		"plan_id", planID,
		"generated", len(targets)-filled,
		"filled", filled,
	)
	a.notifyPlanReady(ctx, planID)
	return nil
}

// failBatch forces every artifact of the batch to error along with the plan.
// Observed through polling only; the initiating request returned long ago.
func (a *App) failBatch(ctx context.Context, planID string, targets []domain.PlanArtifact, cause error) error {
	logger := util.LoggerFromContext(ctx)
	for _, target := range targets {
		if err := a.store.SetArtifactStatus(planID, target.Key, domain.ArtifactError); err != nil {
			logger.Error("mark artifact error", "plan_id", planID, "artifact_key", target.Key, "err", err)
		}
	}
	if err := a.store.SetPlanStatus(planID, domain.PlanError); err != nil {
		logger.Error("mark plan error", "plan_id", planID, "err", err)
	}
	logger.Error("artifact batch failed", "plan_id", planID, "artifacts", len(targets), "err", cause)
	return cause
}

// settlePlan handles a worker run with nothing pending, as after a regenerate
// on an already finished plan. Ready only when every artifact is complete.
func (a *App) settlePlan(ctx context.Context, planID string) error {
	artifacts, err := a.store.ListArtifacts(planID)
	if err != nil {
		return fmt.Errorf("list artifacts: %w", err)
	}
	for _, art := range artifacts {
		if art.Status != domain.ArtifactComplete {
			return nil
		}
	}
	if len(artifacts) == 0 {
		return nil
	}
	if err := a.store.SetPlanStatus(planID, domain.PlanReady); err != nil {
		return fmt.Errorf("mark plan ready: %w", err)
	}
	return nil
}
