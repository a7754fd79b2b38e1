package app

import (
	"context"
	"fmt"
	"strings"

	"pathwise/internal/util"
	"pathwise/pkg/domain"
)

// runLetterWorker produces the personalized closing note. One LLM call, no
// retries at this layer; on failure the letter status goes to error and any
// previously generated content stays in place.
func (a *App) runLetterWorker(ctx context.Context, planID string) error {
	plan, ok, err := a.store.GetPlan(planID)
	if err != nil {
		return fmt.Errorf("load plan: %w", err)
	}
	if !ok {
		return fmt.Errorf("plan %s: %w", planID, ErrNotFound)
	}
	if plan.LetterStatus == domain.ArtifactComplete {
		return nil
	}
	if err := a.store.SetLetter(planID, domain.ArtifactGenerating, ""); err != nil {
		return fmt.Errorf("mark letter generating: %w", err)
	}

	t, _, err := a.store.GetTranscriptByUser(plan.UserID)
	if err != nil {
		return fmt.Errorf("load transcript: %w", err)
	}
	text, err := a.llm.GenerateText(ctx, letterSystemPrompt, letterPrompt(plan, t))
	if err != nil {
		if serr := a.store.SetLetter(planID, domain.ArtifactError, ""); serr != nil {
			util.LoggerFromContext(ctx).Error("mark letter error", "plan_id", planID, "err", serr)
		}
		return fmt.Errorf("generate letter: %w", err)
	}
	if err := a.store.SetLetter(planID, domain.ArtifactComplete, strings.TrimSpace(text)); err != nil {
		return fmt.Errorf("store letter: %w", err)
	}
	util.LoggerFromContext(ctx).Info("coach letter generated", "plan_id", planID)
	return nil
}
