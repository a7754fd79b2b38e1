package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"pathwise/internal/jobs"
	"pathwise/internal/lease"
	"pathwise/internal/util"
	"pathwise/pkg/domain"
	"pathwise/pkg/storage"
	"pathwise/pkg/store"
)

type fakeLLM struct {
	mu     sync.Mutex
	textFn func(system, user string) (string, error)
	jsonFn func(system, user string) (string, error)
}

func (f *fakeLLM) GenerateText(_ context.Context, system, user string) (string, error) {
	f.mu.Lock()
	fn := f.textFn
	f.mu.Unlock()
	if fn != nil {
		return fn(system, user)
	}
	return "Dear client, keep going.", nil
}

func (f *fakeLLM) GenerateJSON(_ context.Context, system, user string) (string, error) {
	f.mu.Lock()
	fn := f.jsonFn
	f.mu.Unlock()
	if fn != nil {
		return fn(system, user)
	}
	return "{}", nil
}

func (f *fakeLLM) setJSON(fn func(system, user string) (string, error)) {
	f.mu.Lock()
	f.jsonFn = fn
	f.mu.Unlock()
}

func (f *fakeLLM) setText(fn func(system, user string) (string, error)) {
	f.mu.Lock()
	f.textFn = fn
	f.mu.Unlock()
}

type fakeRenderer struct {
	mu   sync.Mutex
	fail bool
}

func (f *fakeRenderer) Render(_ context.Context, _ string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("render service down")
	}
	return []byte("%PDF-fake"), nil
}

func (f *fakeRenderer) Close() error { return nil }

type fakeMailer struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeMailer) Send(_ context.Context, to, _ string, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, to)
	return nil
}

func (f *fakeMailer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type testEnv struct {
	app      *App
	store    *store.MemoryStore
	llm      *fakeLLM
	mailer   *fakeMailer
	renderer *fakeRenderer
	objects  *storage.MemoryStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	leases, err := lease.NewManager(mr.Addr(), "", "test:lease", time.Minute)
	if err != nil {
		t.Fatalf("lease manager: %v", err)
	}
	runner := jobs.NewRunner()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = runner.Shutdown(ctx)
	})

	env := &testEnv{
		store:    store.NewMemoryStore(),
		llm:      &fakeLLM{},
		mailer:   &fakeMailer{},
		renderer: &fakeRenderer{},
		objects:  storage.NewMemoryStore("https://files.test"),
	}
	env.app, err = New(env.store, env.llm, runner, leases, env.renderer, env.objects, env.mailer, Config{
		ReadRetryAttempts: 2,
		ReadRetryDelay:    time.Millisecond,
		AutoStartBackoff:  []time.Duration{time.Millisecond, 5 * time.Millisecond},
		AppBaseURL:        "https://app.test",
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return env
}

func testPlanCard() *domain.PlanCard {
	return &domain.PlanCard{Modules: []domain.PlanModule{
		{Title: "Clarity", Focus: "what the decision actually is"},
		{Title: "Constraints", Focus: "what is fixed and what is negotiable"},
		{Title: "Commitment", Focus: "the first concrete moves"},
	}}
}

// seedReadyUser stores a user with a finished interview, three completed
// modules, a plan card, a dossier, and verified payment.
func (e *testEnv) seedReadyUser(t *testing.T, situation string) string {
	t.Helper()
	userID := util.NewID()
	if err := e.store.SaveUser(domain.User{ID: userID, Email: "dana@example.com"}); err != nil {
		t.Fatalf("save user: %v", err)
	}
	tr := domain.Transcript{
		ID:     util.NewID(),
		UserID: userID,
		Interview: []domain.ChatMessage{
			{Role: "user", Content: "I need help deciding"},
			{Role: "assistant", Content: "Tell me more"},
		},
		PlanCard:        testPlanCard(),
		PaymentVerified: true,
	}
	for i := range tr.Modules {
		tr.Modules[i] = domain.ModuleLog{
			Messages:  []domain.ChatMessage{{Role: "user", Content: fmt.Sprintf("module %d work", i+1)}},
			Completed: true,
			Summary:   fmt.Sprintf("module %d summary", i+1),
		}
	}
	if err := e.store.SaveTranscript(tr); err != nil {
		t.Fatalf("save transcript: %v", err)
	}
	if err := e.store.SetDossier(userID, domain.Dossier{ClientName: "Dana Reed", Situation: situation}); err != nil {
		t.Fatalf("set dossier: %v", err)
	}
	return userID
}

// batchJSON builds a full bulk-generation response for the given keys.
func batchJSON(t *testing.T, keys ...string) string {
	t.Helper()
	type result struct {
		ArtifactKey  string `json:"artifactKey"`
		Title        string `json:"title"`
		Importance   string `json:"importance"`
		WhyImportant string `json:"whyImportant"`
		Content      string `json:"content"`
	}
	results := make([]result, 0, len(keys))
	for _, key := range keys {
		results = append(results, result{
			ArtifactKey:  key,
			Title:        strings.ReplaceAll(key, "_", " "),
			Importance:   "core",
			WhyImportant: "it matters",
			Content:      "Body for " + key,
		})
	}
	payload := map[string]any{
		"meta":      map[string]string{"clientName": "Dana Reed", "tone": "direct"},
		"artifacts": results,
	}
	b, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal batch: %v", err)
	}
	return string(b)
}

func defaultKeys() []string {
	return []string{"decision_snapshot", "action_plan", "module_recap", "resources"}
}

func waitHandle(t *testing.T, h *jobs.Handle) error {
	t.Helper()
	if h == nil {
		t.Fatalf("expected a worker handle")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return h.Wait(ctx)
}

func TestSeedArtifactsCountsAndStatuses(t *testing.T) {
	tr := domain.Transcript{
		UserID:    "u1",
		Interview: []domain.ChatMessage{{Role: "user", Content: "hello"}},
	}
	tr.Modules[0] = domain.ModuleLog{
		Messages:  []domain.ChatMessage{{Role: "user", Content: "work"}},
		Completed: true,
		Summary:   "first module",
	}
	tr.Modules[1] = domain.ModuleLog{
		Messages: []domain.ChatMessage{{Role: "user", Content: "unfinished"}},
	}

	rows := seedArtifacts(tr, "plan1", DefaultPlannedArtifacts())

	var pending, complete int
	for _, row := range rows {
		switch row.Status {
		case domain.ArtifactPending:
			pending++
			if row.Type != domain.ArtifactGenerated {
				t.Fatalf("placeholder %s has type %s", row.Key, row.Type)
			}
			if row.DisplayOrder >= transcriptOrderBase {
				t.Fatalf("placeholder %s ordered with transcripts: %d", row.Key, row.DisplayOrder)
			}
		case domain.ArtifactComplete:
			complete++
			if row.Type != domain.ArtifactTranscript {
				t.Fatalf("transcript row %s has type %s", row.Key, row.Type)
			}
			if row.DisplayOrder < transcriptOrderBase {
				t.Fatalf("transcript row %s ordered before %d: %d", row.Key, transcriptOrderBase, row.DisplayOrder)
			}
			if row.Content == "" {
				t.Fatalf("transcript row %s has no content", row.Key)
			}
		default:
			t.Fatalf("unexpected seed status %s for %s", row.Status, row.Key)
		}
	}
	if pending != 4 {
		t.Fatalf("expected 4 pending placeholders, got %d", pending)
	}
	// Interview plus one completed module; the unfinished module is skipped.
	if complete != 2 {
		t.Fatalf("expected 2 transcript artifacts, got %d", complete)
	}

	summaryRow, found := "", false
	for _, row := range rows {
		if row.Key == "transcript_module_1" {
			summaryRow, found = row.Content, true
		}
	}
	if !found || !strings.Contains(summaryRow, "first module") {
		t.Fatalf("module transcript must include its summary, got %q", summaryRow)
	}
}

func TestInitPlanRequiresPaymentAndUpstreamData(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.app.InitPlan(ctx, "nobody"); !errors.Is(err, ErrNotReady) {
		t.Fatalf("missing transcript: expected ErrNotReady, got %v", err)
	}

	userID := util.NewID()
	tr := domain.Transcript{ID: util.NewID(), UserID: userID,
		Interview: []domain.ChatMessage{{Role: "user", Content: "hi"}}}
	if err := env.store.SaveTranscript(tr); err != nil {
		t.Fatalf("save transcript: %v", err)
	}
	if _, err := env.app.InitPlan(ctx, userID); !errors.Is(err, ErrPaymentRequired) {
		t.Fatalf("unpaid: expected ErrPaymentRequired, got %v", err)
	}

	if err := env.store.SetPaymentVerified(userID, true); err != nil {
		t.Fatalf("verify payment: %v", err)
	}
	if _, err := env.app.InitPlan(ctx, userID); !errors.Is(err, ErrNotReady) {
		t.Fatalf("no dossier: expected ErrNotReady, got %v", err)
	}
}

func TestInitPlanIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.seedReadyUser(t, "weighing two offers")
	env.llm.setJSON(func(_, _ string) (string, error) { return batchJSON(t, defaultKeys()...), nil })

	first, err := env.app.InitPlan(ctx, userID)
	if err != nil {
		t.Fatalf("first init: %v", err)
	}
	if !first.Created {
		t.Fatalf("first init must create the plan")
	}
	if err := waitHandle(t, first.Bulk); err != nil {
		t.Fatalf("bulk worker: %v", err)
	}

	second, err := env.app.InitPlan(ctx, userID)
	if err != nil {
		t.Fatalf("second init: %v", err)
	}
	if second.Created {
		t.Fatalf("second init must not create a new plan")
	}
	if second.Plan.ID != first.Plan.ID {
		t.Fatalf("plan ID changed across init calls: %s vs %s", first.Plan.ID, second.Plan.ID)
	}
	if second.Bulk != nil || second.Letter != nil {
		t.Fatalf("second init must not start workers")
	}
	if len(second.Artifacts) != len(first.Artifacts) {
		t.Fatalf("artifact count changed: %d vs %d", len(first.Artifacts), len(second.Artifacts))
	}
}

func TestBulkWorkerFillsMissingKeys(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.seedReadyUser(t, "weighing two offers")
	env.llm.setJSON(func(_, _ string) (string, error) {
		return batchJSON(t, "decision_snapshot", "action_plan"), nil
	})

	res, err := env.app.InitPlan(ctx, userID)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := waitHandle(t, res.Bulk); err != nil {
		t.Fatalf("bulk worker: %v", err)
	}

	plan, artifacts, err := env.app.PlanForUser(ctx, userID)
	if err != nil {
		t.Fatalf("read plan: %v", err)
	}
	if plan.Status != domain.PlanReady {
		t.Fatalf("expected plan ready, got %s", plan.Status)
	}
	for _, art := range artifacts {
		if art.Status != domain.ArtifactComplete {
			t.Fatalf("artifact %s left at %s", art.Key, art.Status)
		}
	}
	for _, key := range []string{"module_recap", "resources"} {
		art, ok, err := env.store.GetArtifactByKey(plan.ID, key)
		if err != nil || !ok {
			t.Fatalf("artifact %s missing: %v", key, err)
		}
		if !strings.Contains(art.Content, "not generated") {
			t.Fatalf("artifact %s should carry filler content, got %q", key, art.Content)
		}
	}
}

func TestBulkWorkerFailureDowngradesBatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.seedReadyUser(t, "weighing two offers")
	env.llm.setJSON(func(_, _ string) (string, error) {
		return "", errors.New("provider timeout")
	})

	res, err := env.app.InitPlan(ctx, userID)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := waitHandle(t, res.Bulk); err == nil {
		t.Fatalf("bulk worker should report the provider failure")
	}
	if err := waitHandle(t, res.Letter); err != nil {
		t.Fatalf("letter worker: %v", err)
	}

	plan, artifacts, err := env.app.PlanForUser(ctx, userID)
	if err != nil {
		t.Fatalf("read plan: %v", err)
	}
	if plan.Status != domain.PlanError {
		t.Fatalf("expected plan error, got %s", plan.Status)
	}
	// The letter worker is an independent state machine; it still finished.
	if plan.LetterStatus != domain.ArtifactComplete {
		t.Fatalf("letter status should be unaffected, got %s", plan.LetterStatus)
	}
	for _, art := range artifacts {
		switch art.Type {
		case domain.ArtifactGenerated:
			if art.Status != domain.ArtifactError {
				t.Fatalf("generated artifact %s expected error, got %s", art.Key, art.Status)
			}
		case domain.ArtifactTranscript:
			if art.Status != domain.ArtifactComplete {
				t.Fatalf("transcript artifact %s must be untouched, got %s", art.Key, art.Status)
			}
		}
	}
	if env.mailer.count() != 0 {
		t.Fatalf("no delivery email on failure, got %d", env.mailer.count())
	}
}

func TestUnparsableBatchForcesError(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.seedReadyUser(t, "weighing two offers")
	env.llm.setJSON(func(_, _ string) (string, error) {
		return "I could not produce JSON today, sorry.", nil
	})

	res, err := env.app.InitPlan(ctx, userID)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := waitHandle(t, res.Bulk); err == nil {
		t.Fatalf("bulk worker should report the parse failure")
	}
	plan, _, err := env.app.PlanForUser(ctx, userID)
	if err != nil {
		t.Fatalf("read plan: %v", err)
	}
	if plan.Status != domain.PlanError {
		t.Fatalf("expected plan error after parse failure, got %s", plan.Status)
	}
}

func TestLetterFailureDoesNotGatePlan(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.seedReadyUser(t, "weighing two offers")
	env.llm.setJSON(func(_, _ string) (string, error) { return batchJSON(t, defaultKeys()...), nil })
	env.llm.setText(func(_, _ string) (string, error) { return "", errors.New("provider down") })

	res, err := env.app.InitPlan(ctx, userID)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := waitHandle(t, res.Letter); err == nil {
		t.Fatalf("letter worker should report the failure")
	}
	if err := waitHandle(t, res.Bulk); err != nil {
		t.Fatalf("bulk worker: %v", err)
	}

	plan, _, err := env.app.PlanForUser(ctx, userID)
	if err != nil {
		t.Fatalf("read plan: %v", err)
	}
	if plan.Status != domain.PlanReady {
		t.Fatalf("plan readiness is gated on artifacts only, got %s", plan.Status)
	}
	if plan.LetterStatus != domain.ArtifactError {
		t.Fatalf("expected letter error, got %s", plan.LetterStatus)
	}
	if env.mailer.count() != 1 {
		t.Fatalf("expected delivery email despite letter failure, got %d", env.mailer.count())
	}
}

func TestSeedFailureAbortsInit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.seedReadyUser(t, "weighing two offers")
	env.store.FailCreateArtifacts = errors.New("insert failed")

	if _, err := env.app.InitPlan(ctx, userID); err == nil {
		t.Fatalf("expected init to abort on seed failure")
	}
	plan, ok, err := env.store.GetPlanByUser(userID)
	if err != nil || !ok {
		t.Fatalf("plan row should exist: %v", err)
	}
	if plan.Status != domain.PlanError {
		t.Fatalf("expected plan error after aborted seed, got %s", plan.Status)
	}
}

func TestRegenerateRetriesFailedArtifacts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.seedReadyUser(t, "weighing two offers")
	env.llm.setJSON(func(_, _ string) (string, error) { return "", errors.New("provider timeout") })

	res, err := env.app.InitPlan(ctx, userID)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	_ = waitHandle(t, res.Bulk)
	_ = waitHandle(t, res.Letter)

	env.llm.setJSON(func(_, _ string) (string, error) { return batchJSON(t, defaultKeys()...), nil })
	regen, err := env.app.Regenerate(ctx, userID, res.Plan.ID)
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if err := waitHandle(t, regen.Bulk); err != nil {
		t.Fatalf("regenerated bulk worker: %v", err)
	}

	plan, artifacts, err := env.app.PlanForUser(ctx, userID)
	if err != nil {
		t.Fatalf("read plan: %v", err)
	}
	if plan.Status != domain.PlanReady {
		t.Fatalf("expected plan ready after regenerate, got %s", plan.Status)
	}
	for _, art := range artifacts {
		if art.Status != domain.ArtifactComplete {
			t.Fatalf("artifact %s left at %s after regenerate", art.Key, art.Status)
		}
	}
}

func TestRegenerateOwnership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.seedReadyUser(t, "weighing two offers")
	env.llm.setJSON(func(_, _ string) (string, error) { return batchJSON(t, defaultKeys()...), nil })

	res, err := env.app.InitPlan(ctx, userID)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	_ = waitHandle(t, res.Bulk)

	if _, err := env.app.Regenerate(ctx, "intruder", res.Plan.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := env.app.Regenerate(ctx, userID, "missing-plan"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEndToEndLongTermScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.seedReadyUser(t, "considering a long-term pivot")
	env.llm.setJSON(func(_, _ string) (string, error) { return batchJSON(t, defaultKeys()...), nil })

	res, err := env.app.InitPlan(ctx, userID)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if res.Plan.Horizon != domain.Horizon6Months {
		t.Fatalf("expected 6_months horizon, got %s", res.Plan.Horizon)
	}
	if err := waitHandle(t, res.Letter); err != nil {
		t.Fatalf("letter worker: %v", err)
	}
	if err := waitHandle(t, res.Bulk); err != nil {
		t.Fatalf("bulk worker: %v", err)
	}

	plan, artifacts, err := env.app.PlanForUser(ctx, userID)
	if err != nil {
		t.Fatalf("read plan: %v", err)
	}
	if plan.Status != domain.PlanReady {
		t.Fatalf("expected plan ready, got %s", plan.Status)
	}
	if plan.LetterStatus != domain.ArtifactComplete || plan.LetterContent == "" {
		t.Fatalf("expected completed letter with content, got %s %q", plan.LetterStatus, plan.LetterContent)
	}
	var generated, transcripts int
	for _, art := range artifacts {
		if art.Status != domain.ArtifactComplete {
			t.Fatalf("artifact %s not complete: %s", art.Key, art.Status)
		}
		switch art.Type {
		case domain.ArtifactGenerated:
			generated++
		case domain.ArtifactTranscript:
			transcripts++
		}
	}
	if generated != 4 {
		t.Fatalf("expected 4 generated artifacts, got %d", generated)
	}
	// Interview plus three completed modules.
	if transcripts != 4 {
		t.Fatalf("expected 4 transcript artifacts, got %d", transcripts)
	}
	if env.mailer.count() != 1 {
		t.Fatalf("expected one delivery email, got %d", env.mailer.count())
	}
}

func TestConcludeInterviewLeaseExcludesConcurrentRuns(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := util.NewID()
	if err := env.store.SaveUser(domain.User{ID: userID, Email: "dana@example.com"}); err != nil {
		t.Fatalf("save user: %v", err)
	}
	tr := domain.Transcript{ID: util.NewID(), UserID: userID,
		Interview: []domain.ChatMessage{{Role: "user", Content: "I want out of consulting"}}}
	if err := env.store.SaveTranscript(tr); err != nil {
		t.Fatalf("save transcript: %v", err)
	}

	started := make(chan struct{})
	release := make(chan struct{})
	env.llm.setJSON(func(_, _ string) (string, error) {
		close(started)
		<-release
		return `{"clientName":"Dana Reed","situation":"leaving consulting","planCard":{"modules":[{"title":"A","focus":"a"},{"title":"B","focus":"b"},{"title":"C","focus":"c"}]}}`, nil
	})

	done := make(chan error, 1)
	go func() {
		_, err := env.app.ConcludeInterview(ctx, userID)
		done <- err
	}()
	<-started

	if _, err := env.app.ConcludeInterview(ctx, userID); !errors.Is(err, ErrGenerationInProgress) {
		t.Fatalf("expected ErrGenerationInProgress, got %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first conclude: %v", err)
	}

	loaded, ok, err := env.store.GetTranscriptByUser(userID)
	if err != nil || !ok {
		t.Fatalf("reload transcript: %v", err)
	}
	if loaded.Dossier == nil || loaded.Dossier.ClientName != "Dana Reed" {
		t.Fatalf("dossier not stored: %+v", loaded.Dossier)
	}
	if loaded.PlanCard == nil || len(loaded.PlanCard.Modules) != domain.ModuleCount {
		t.Fatalf("plan card not stored: %+v", loaded.PlanCard)
	}
	user, _, _ := env.store.GetUserByID(userID)
	if user.DisplayName != "Dana Reed" {
		t.Fatalf("display name not captured, got %q", user.DisplayName)
	}
}

func TestCompleteFinalModuleAutoStartsPlan(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.seedReadyUser(t, "weighing two offers")

	// Reopen module three so completion runs for real.
	tr, _, err := env.store.GetTranscriptByUser(userID)
	if err != nil {
		t.Fatalf("load transcript: %v", err)
	}
	tr.Modules[2].Completed = false
	tr.Modules[2].Summary = ""
	if err := env.store.SaveTranscript(tr); err != nil {
		t.Fatalf("save transcript: %v", err)
	}

	env.llm.setJSON(func(system, _ string) (string, error) {
		if system == artifactsSystemPrompt {
			return batchJSON(t, defaultKeys()...), nil
		}
		return `{"summary":"committed to the pivot","insights":["wants autonomy"]}`, nil
	})

	updated, autoStart, err := env.app.CompleteModule(ctx, userID, domain.ModuleCount)
	if err != nil {
		t.Fatalf("complete module: %v", err)
	}
	if !updated.Modules[2].Completed || updated.Modules[2].Summary == "" {
		t.Fatalf("module three not closed: %+v", updated.Modules[2])
	}
	if updated.Dossier == nil || len(updated.Dossier.Analyses) != 1 {
		t.Fatalf("dossier not extended with module analysis: %+v", updated.Dossier)
	}
	if err := waitHandle(t, autoStart); err != nil {
		t.Fatalf("auto-start: %v", err)
	}
	if _, ok, _ := env.store.GetPlanByUser(userID); !ok {
		t.Fatalf("auto-start did not create the plan")
	}
}

func TestCompleteModuleValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.seedReadyUser(t, "weighing two offers")

	if _, _, err := env.app.CompleteModule(ctx, userID, 0); !errors.Is(err, ErrInvalidModule) {
		t.Fatalf("module 0: expected ErrInvalidModule, got %v", err)
	}
	if _, _, err := env.app.CompleteModule(ctx, userID, domain.ModuleCount+1); !errors.Is(err, ErrInvalidModule) {
		t.Fatalf("module overflow: expected ErrInvalidModule, got %v", err)
	}
}

func TestCoachChatRequiresReadyPlan(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := env.seedReadyUser(t, "weighing two offers")
	env.llm.setJSON(func(_, _ string) (string, error) { return batchJSON(t, defaultKeys()...), nil })

	res, err := env.app.InitPlan(ctx, userID)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := env.app.CoachChat(ctx, userID, res.Plan.ID, "can I ask now?"); !errors.Is(err, ErrNotReady) {
		// The worker may already have finished; only fail on a wrong error.
		if err != nil {
			t.Fatalf("pre-ready chat: unexpected error %v", err)
		}
	}
	if err := waitHandle(t, res.Bulk); err != nil {
		t.Fatalf("bulk worker: %v", err)
	}

	env.llm.setText(func(_, _ string) (string, error) { return "Start with the action plan.", nil })
	reply, err := env.app.CoachChat(ctx, userID, res.Plan.ID, "where do I start?")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if reply.Role != "assistant" || reply.Content == "" {
		t.Fatalf("unexpected reply: %+v", reply)
	}

	msgs, err := env.app.CoachMessages(ctx, userID, res.Plan.ID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) < 2 {
		t.Fatalf("expected both turns stored, got %d", len(msgs))
	}
	if _, err := env.app.CoachMessages(ctx, "intruder", res.Plan.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}
