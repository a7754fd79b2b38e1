package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"pathwise/internal/jobs"
	"pathwise/internal/util"
	"pathwise/pkg/domain"
	"pathwise/pkg/render"
)

var errPDFNotConfigured = errors.New("pdf rendering not configured")

// RenderArtifactPDF starts a background render of one artifact's PDF. The
// artifact must have generated content; progress is observed through its
// pdf status.
func (a *App) RenderArtifactPDF(ctx context.Context, userID, planID, key string) (*jobs.Handle, error) {
	if a.renderer == nil || a.objects == nil {
		return nil, errPDFNotConfigured
	}
	if _, err := a.planForOwner(userID, planID); err != nil {
		return nil, err
	}
	artifact, ok, err := a.store.GetArtifactByKey(planID, key)
	if err != nil {
		return nil, fmt.Errorf("load artifact: %w", err)
	}
	if !ok {
		return nil, ErrNotFound
	}
	if artifact.Status != domain.ArtifactComplete {
		return nil, fmt.Errorf("artifact %s not generated yet: %w", key, ErrNotReady)
	}
	if err := a.store.SetArtifactPDF(planID, key, domain.PDFRendering, ""); err != nil {
		return nil, fmt.Errorf("mark artifact rendering: %w", err)
	}
	return a.runner.Submit("artifact-pdf:"+planID+":"+key, func(ctx context.Context) error {
		return a.renderArtifact(ctx, planID, key)
	})
}

// RenderBundlePDF starts a background render of the whole plan packet: the
// bundle document plus a fresh PDF per generated artifact. Requires a ready
// plan.
func (a *App) RenderBundlePDF(ctx context.Context, userID, planID string) (*jobs.Handle, error) {
	if a.renderer == nil || a.objects == nil {
		return nil, errPDFNotConfigured
	}
	plan, err := a.planForOwner(userID, planID)
	if err != nil {
		return nil, err
	}
	if plan.Status != domain.PlanReady {
		return nil, fmt.Errorf("plan not ready: %w", ErrNotReady)
	}
	if err := a.store.SetBundlePDF(planID, domain.PDFRendering, ""); err != nil {
		return nil, fmt.Errorf("mark bundle rendering: %w", err)
	}
	return a.runner.Submit("bundle-pdf:"+planID, func(ctx context.Context) error {
		return a.renderBundle(ctx, planID)
	})
}

func (a *App) renderArtifact(ctx context.Context, planID, key string) error {
	artifact, ok, err := a.store.GetArtifactByKey(planID, key)
	if err != nil || !ok {
		if err == nil {
			err = fmt.Errorf("artifact %s: %w", key, ErrNotFound)
		}
		return err
	}
	plan, _, err := a.store.GetPlan(planID)
	if err != nil {
		return fmt.Errorf("load plan: %w", err)
	}
	html, err := render.ArtifactHTML(render.ArtifactPage{
		Title:      artifact.Title,
		ClientName: plan.ClientName,
		Horizon:    render.HumanHorizon(string(plan.Horizon)),
		Content:    artifact.Content,
	})
	if err != nil {
		return a.failArtifactPDF(ctx, planID, key, err)
	}
	url, err := a.renderAndStore(ctx, html, fmt.Sprintf("plans/%s/%s.pdf", planID, key))
	if err != nil {
		return a.failArtifactPDF(ctx, planID, key, err)
	}
	if err := a.store.SetArtifactPDF(planID, key, domain.PDFComplete, url); err != nil {
		return fmt.Errorf("store artifact pdf: %w", err)
	}
	return nil
}

func (a *App) renderBundle(ctx context.Context, planID string) error {
	plan, ok, err := a.store.GetPlan(planID)
	if err != nil || !ok {
		if err == nil {
			err = fmt.Errorf("plan %s: %w", planID, ErrNotFound)
		}
		return err
	}
	artifacts, err := a.store.ListArtifacts(planID)
	if err != nil {
		return fmt.Errorf("list artifacts: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.PDFConcurrency)

	var bundleURL string
	g.Go(func() error {
		pages := make([]render.ArtifactPage, 0, len(artifacts))
		for _, art := range artifacts {
			if art.Type != domain.ArtifactGenerated || art.Status != domain.ArtifactComplete {
				continue
			}
			pages = append(pages, render.ArtifactPage{Title: art.Title, Content: art.Content})
		}
		html, err := render.BundleHTML(render.BundlePage{
			ClientName: plan.ClientName,
			Horizon:    render.HumanHorizon(string(plan.Horizon)),
			Letter:     plan.LetterContent,
			Artifacts:  pages,
		})
		if err != nil {
			return err
		}
		url, err := a.renderAndStore(gctx, html, fmt.Sprintf("plans/%s/bundle.pdf", planID))
		if err != nil {
			return err
		}
		bundleURL = url
		return nil
	})
	for _, art := range artifacts {
		if art.Type != domain.ArtifactGenerated || art.Status != domain.ArtifactComplete {
			continue
		}
		key := art.Key
		g.Go(func() error {
			if err := a.store.SetArtifactPDF(planID, key, domain.PDFRendering, ""); err != nil {
				return err
			}
			return a.renderArtifact(gctx, planID, key)
		})
	}
	if err := g.Wait(); err != nil {
		if serr := a.store.SetBundlePDF(planID, domain.PDFError, ""); serr != nil {
			util.LoggerFromContext(ctx).Error("mark bundle pdf error", "plan_id", planID, "err", serr)
		}
		return fmt.Errorf("render bundle: %w", err)
	}
	if err := a.store.SetBundlePDF(planID, domain.PDFComplete, bundleURL); err != nil {
		return fmt.Errorf("store bundle pdf: %w", err)
	}
	util.LoggerFromContext(ctx).Info("bundle pdf rendered", "plan_id", planID)
	return nil
}

// renderAndStore runs one HTML render and uploads the PDF, returning a
// presigned download link.
func (a *App) renderAndStore(ctx context.Context, html, objectKey string) (string, error) {
	pdfBytes, err := a.renderer.Render(ctx, html)
	if err != nil {
		return "", fmt.Errorf("render pdf: %w", err)
	}
	if err := a.objects.Put(ctx, objectKey, bytes.NewReader(pdfBytes), int64(len(pdfBytes)), "application/pdf"); err != nil {
		return "", fmt.Errorf("store pdf: %w", err)
	}
	url, err := a.objects.PresignGet(ctx, objectKey, a.cfg.PresignTTL)
	if err != nil {
		return "", fmt.Errorf("presign pdf: %w", err)
	}
	return url, nil
}

func (a *App) failArtifactPDF(ctx context.Context, planID, key string, cause error) error {
	if err := a.store.SetArtifactPDF(planID, key, domain.PDFError, ""); err != nil {
		util.LoggerFromContext(ctx).Error("mark artifact pdf error", "plan_id", planID, "artifact_key", key, "err", err)
	}
	return fmt.Errorf("render artifact %s: %w", key, cause)
}
