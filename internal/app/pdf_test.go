package app

import (
	"context"
	"errors"
	"testing"

	"pathwise/pkg/domain"
)

func readyPlan(t *testing.T, env *testEnv) (string, domain.SeriousPlan) {
	t.Helper()
	ctx := context.Background()
	userID := env.seedReadyUser(t, "weighing two offers")
	env.llm.setJSON(func(_, _ string) (string, error) { return batchJSON(t, defaultKeys()...), nil })
	res, err := env.app.InitPlan(ctx, userID)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := waitHandle(t, res.Bulk); err != nil {
		t.Fatalf("bulk worker: %v", err)
	}
	if err := waitHandle(t, res.Letter); err != nil {
		t.Fatalf("letter worker: %v", err)
	}
	plan, _, err := env.app.PlanForUser(ctx, userID)
	if err != nil {
		t.Fatalf("read plan: %v", err)
	}
	return userID, plan
}

func TestRenderArtifactPDF(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID, plan := readyPlan(t, env)

	h, err := env.app.RenderArtifactPDF(ctx, userID, plan.ID, "action_plan")
	if err != nil {
		t.Fatalf("render artifact pdf: %v", err)
	}
	if err := waitHandle(t, h); err != nil {
		t.Fatalf("render task: %v", err)
	}

	art, ok, err := env.store.GetArtifactByKey(plan.ID, "action_plan")
	if err != nil || !ok {
		t.Fatalf("reload artifact: %v", err)
	}
	if art.PDFStatus != domain.PDFComplete || art.PDFURL == "" {
		t.Fatalf("expected complete pdf with url, got %s %q", art.PDFStatus, art.PDFURL)
	}
	if _, stored := env.objects.Get("plans/" + plan.ID + "/action_plan.pdf"); !stored {
		t.Fatalf("pdf bytes not uploaded")
	}
}

func TestRenderArtifactPDFRequiresContent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.seedReadyUser(t, "weighing two offers")
	env.llm.setJSON(func(_, _ string) (string, error) { return "", errors.New("provider down") })

	res, err := env.app.InitPlan(ctx, userID)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	_ = waitHandle(t, res.Bulk)

	if _, err := env.app.RenderArtifactPDF(ctx, userID, res.Plan.ID, "action_plan"); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady for failed artifact, got %v", err)
	}
	if _, err := env.app.RenderArtifactPDF(ctx, userID, res.Plan.ID, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRenderBundlePDF(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID, plan := readyPlan(t, env)

	h, err := env.app.RenderBundlePDF(ctx, userID, plan.ID)
	if err != nil {
		t.Fatalf("render bundle: %v", err)
	}
	if err := waitHandle(t, h); err != nil {
		t.Fatalf("bundle task: %v", err)
	}

	plan, artifacts, err := env.app.PlanForUser(ctx, userID)
	if err != nil {
		t.Fatalf("read plan: %v", err)
	}
	if plan.BundlePDFStatus != domain.PDFComplete || plan.BundlePDFURL == "" {
		t.Fatalf("expected complete bundle pdf, got %s %q", plan.BundlePDFStatus, plan.BundlePDFURL)
	}
	if _, stored := env.objects.Get("plans/" + plan.ID + "/bundle.pdf"); !stored {
		t.Fatalf("bundle bytes not uploaded")
	}
	for _, art := range artifacts {
		if art.Type != domain.ArtifactGenerated {
			continue
		}
		if art.PDFStatus != domain.PDFComplete || art.PDFURL == "" {
			t.Fatalf("artifact %s pdf not rendered: %s", art.Key, art.PDFStatus)
		}
	}
}

func TestRenderBundlePDFFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID, plan := readyPlan(t, env)
	env.renderer.fail = true

	h, err := env.app.RenderBundlePDF(ctx, userID, plan.ID)
	if err != nil {
		t.Fatalf("render bundle: %v", err)
	}
	if err := waitHandle(t, h); err == nil {
		t.Fatalf("bundle task should fail when the renderer is down")
	}
	plan, _, err = env.app.PlanForUser(ctx, userID)
	if err != nil {
		t.Fatalf("read plan: %v", err)
	}
	if plan.BundlePDFStatus != domain.PDFError {
		t.Fatalf("expected bundle pdf error, got %s", plan.BundlePDFStatus)
	}
	if plan.Status != domain.PlanReady {
		t.Fatalf("a pdf failure must not touch plan readiness, got %s", plan.Status)
	}
}

func TestRenderBundleRequiresReadyPlan(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.seedReadyUser(t, "weighing two offers")
	env.llm.setJSON(func(_, _ string) (string, error) { return "", errors.New("provider down") })

	res, err := env.app.InitPlan(ctx, userID)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	_ = waitHandle(t, res.Bulk)

	if _, err := env.app.RenderBundlePDF(ctx, userID, res.Plan.ID); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	if _, err := env.app.RenderBundlePDF(ctx, "intruder", res.Plan.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}
