package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pathwise/internal/lease"
	"pathwise/internal/util"
	"pathwise/pkg/ai"
	"pathwise/pkg/domain"
)

// ConcludeInterview analyzes the finished intake interview into the client
// dossier and the three-module plan card. Guarded by a per-user lease so two
// concurrent requests cannot both run the analysis; the lease TTL bounds how
// long a crashed attempt can block the next one.
func (a *App) ConcludeInterview(ctx context.Context, userID string) (domain.Dossier, error) {
	held, err := a.leases.Acquire(ctx, "dossier:"+userID, util.NewID())
	if err != nil {
		if errors.Is(err, lease.ErrHeld) {
			return domain.Dossier{}, ErrGenerationInProgress
		}
		return domain.Dossier{}, fmt.Errorf("acquire dossier lease: %w", err)
	}
	defer func() {
		owned, rerr := held.Release(ctx)
		if rerr != nil {
			util.LoggerFromContext(ctx).Warn("release dossier lease", "user_id", userID, "err", rerr)
		} else if !owned {
			util.LoggerFromContext(ctx).Warn("dossier lease expired before release", "user_id", userID)
		}
	}()

	t, err := a.transcriptWithRetry(ctx, userID)
	if err != nil {
		return domain.Dossier{}, err
	}
	if len(t.Interview) == 0 {
		return domain.Dossier{}, fmt.Errorf("interview empty: %w", ErrNotReady)
	}

	raw, err := a.generateJSON(ctx, dossierSystemPrompt, dossierPrompt(t))
	if err != nil {
		return domain.Dossier{}, fmt.Errorf("generate dossier: %w", err)
	}
	var parsed struct {
		ClientName  string           `json:"clientName"`
		Situation   string           `json:"situation"`
		Constraints []string         `json:"constraints"`
		Motivations []string         `json:"motivations"`
		Fears       []string         `json:"fears"`
		KeyFacts    []string         `json:"keyFacts"`
		PlanCard    *domain.PlanCard `json:"planCard"`
	}
	if err := ai.ExtractJSON(raw, &parsed); err != nil {
		return domain.Dossier{}, fmt.Errorf("parse dossier: %w", err)
	}

	d := domain.Dossier{
		ClientName:  parsed.ClientName,
		Situation:   parsed.Situation,
		Constraints: parsed.Constraints,
		Motivations: parsed.Motivations,
		Fears:       parsed.Fears,
		KeyFacts:    parsed.KeyFacts,
		CreatedAt:   time.Now().UTC(),
	}
	// Wholesale replace keeps module analyses already accumulated.
	if t.Dossier != nil {
		d.Analyses = t.Dossier.Analyses
	}
	if err := a.store.SetDossier(userID, d); err != nil {
		return domain.Dossier{}, fmt.Errorf("store dossier: %w", err)
	}

	if parsed.PlanCard != nil && len(parsed.PlanCard.Modules) == domain.ModuleCount {
		t.PlanCard = parsed.PlanCard
		if err := a.store.SaveTranscript(t); err != nil {
			return domain.Dossier{}, fmt.Errorf("store plan card: %w", err)
		}
	}
	if parsed.ClientName != "" {
		if u, ok, _ := a.store.GetUserByID(userID); ok && u.DisplayName == "" {
			if err := a.store.SetUserDisplayName(userID, parsed.ClientName); err != nil {
				util.LoggerFromContext(ctx).Warn("set display name", "user_id", userID, "err", err)
			}
		}
	}
	util.LoggerFromContext(ctx).Info("dossier generated", "user_id", userID, "modules_analyzed", len(d.Analyses))
	return d, nil
}
