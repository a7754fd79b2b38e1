package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pathwise/internal/jobs"
	"pathwise/internal/retry"
	"pathwise/internal/util"
	"pathwise/pkg/ai"
	"pathwise/pkg/domain"
)

// TranscriptTarget selects which conversation a message belongs to.
const TargetInterview = "interview"

// Transcript returns the user's transcript, ErrNotFound before first message.
func (a *App) Transcript(ctx context.Context, userID string) (domain.Transcript, error) {
	t, ok, err := a.store.GetTranscriptByUser(userID)
	if err != nil {
		return domain.Transcript{}, fmt.Errorf("load transcript: %w", err)
	}
	if !ok {
		return domain.Transcript{}, ErrNotFound
	}
	return t, nil
}

// AppendMessage records the user's message in the interview or a module log,
// generates the coach's reply, and persists both. The transcript row is
// created lazily on the first interview message.
func (a *App) AppendMessage(ctx context.Context, userID, target, content string) (domain.ChatMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.ChatMessage{}, ErrEmptyMessage
	}
	module, err := parseTarget(target)
	if err != nil {
		return domain.ChatMessage{}, err
	}

	t, ok, err := a.store.GetTranscriptByUser(userID)
	if err != nil {
		return domain.ChatMessage{}, fmt.Errorf("load transcript: %w", err)
	}
	if !ok {
		if module != 0 {
			return domain.ChatMessage{}, fmt.Errorf("no interview yet: %w", ErrNotReady)
		}
		t = domain.Transcript{
			ID:           util.NewID(),
			UserID:       userID,
			SessionToken: util.NewID(),
			CreatedAt:    time.Now().UTC(),
		}
	}

	userMsg := domain.ChatMessage{Role: "user", Content: content}
	var systemPrompt string
	var log []domain.ChatMessage
	if module == 0 {
		t.Interview = append(t.Interview, userMsg)
		systemPrompt = interviewSystemPrompt
		log = t.Interview
	} else {
		t.Modules[module-1].Messages = append(t.Modules[module-1].Messages, userMsg)
		systemPrompt = moduleSystemPrompt(t, module)
		log = t.Modules[module-1].Messages
	}

	var sb strings.Builder
	writeConversation(&sb, log)
	replyText, err := a.llm.GenerateText(ctx, systemPrompt, sb.String())
	if err != nil {
		return domain.ChatMessage{}, fmt.Errorf("generate coach reply: %w", err)
	}
	reply := domain.ChatMessage{Role: "assistant", Content: strings.TrimSpace(replyText)}
	if module == 0 {
		t.Interview = append(t.Interview, reply)
	} else {
		t.Modules[module-1].Messages = append(t.Modules[module-1].Messages, reply)
	}
	t.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveTranscript(t); err != nil {
		return domain.ChatMessage{}, fmt.Errorf("store transcript: %w", err)
	}
	return reply, nil
}

// CompleteModule marks a coaching module finished, derives its analysis into
// the dossier, and, when the final module closes, schedules plan auto-start.
// The returned handle tracks the auto-start task; nil when none was scheduled.
func (a *App) CompleteModule(ctx context.Context, userID string, module int) (domain.Transcript, *jobs.Handle, error) {
	if module < 1 || module > domain.ModuleCount {
		return domain.Transcript{}, nil, fmt.Errorf("module %d: %w", module, ErrInvalidModule)
	}
	t, err := a.transcriptWithRetry(ctx, userID)
	if err != nil {
		return domain.Transcript{}, nil, err
	}
	log := t.Modules[module-1]
	if len(log.Messages) == 0 {
		return domain.Transcript{}, nil, fmt.Errorf("module %d has no conversation: %w", module, ErrNotReady)
	}

	if !log.Completed {
		summary, insights := a.analyzeModule(ctx, t, module)
		t.Modules[module-1].Completed = true
		t.Modules[module-1].Summary = summary
		t.UpdatedAt = time.Now().UTC()
		if err := a.store.SaveTranscript(t); err != nil {
			return domain.Transcript{}, nil, fmt.Errorf("store transcript: %w", err)
		}
		if t.Dossier != nil {
			d := *t.Dossier
			d.Analyses = append(d.Analyses, domain.ModuleAnalysis{
				Module:    module,
				Summary:   summary,
				Insights:  insights,
				CreatedAt: time.Now().UTC(),
			})
			if err := a.store.SetDossier(userID, d); err != nil {
				return domain.Transcript{}, nil, fmt.Errorf("extend dossier: %w", err)
			}
			t.Dossier = &d
		}
	}

	var autoStart *jobs.Handle
	if module == domain.ModuleCount {
		autoStart = a.scheduleAutoStart(ctx, userID)
	}
	return t, autoStart, nil
}

// analyzeModule derives a summary and insights for a finished module. Analysis
// failure does not block completion; the module just closes without a summary.
func (a *App) analyzeModule(ctx context.Context, t domain.Transcript, module int) (string, []string) {
	raw, err := a.generateJSON(ctx, dossierSystemPrompt, moduleAnalysisPrompt(t, module))
	if err != nil {
		util.LoggerFromContext(ctx).Warn("module analysis failed", "user_id", t.UserID, "module", module, "err", err)
		return "", nil
	}
	var parsed struct {
		Summary  string   `json:"summary"`
		Insights []string `json:"insights"`
	}
	if err := ai.ExtractJSON(raw, &parsed); err != nil {
		util.LoggerFromContext(ctx).Warn("module analysis unparsable", "user_id", t.UserID, "module", module, "err", err)
		return "", nil
	}
	return parsed.Summary, parsed.Insights
}

// scheduleAutoStart submits the backoff loop that waits for the plan card and
// dossier, then initializes the plan. Gives up after the schedule runs out,
// logging only; the user can still initialize explicitly.
func (a *App) scheduleAutoStart(ctx context.Context, userID string) *jobs.Handle {
	h, err := a.runner.Submit("plan-autostart:"+userID, func(ctx context.Context) error {
		err := retry.WithBackoff(ctx, a.cfg.AutoStartBackoff, func(ctx context.Context) error {
			_, err := a.InitPlan(ctx, userID)
			return err
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("plan auto-start gave up: %w", err)
		}
		return err
	})
	if err != nil {
		util.LoggerFromContext(ctx).Warn("schedule plan auto-start", "user_id", userID, "err", err)
		return nil
	}
	return h
}

func parseTarget(target string) (int, error) {
	switch target {
	case TargetInterview, "":
		return 0, nil
	case "module_1":
		return 1, nil
	case "module_2":
		return 2, nil
	case "module_3":
		return 3, nil
	}
	return 0, fmt.Errorf("target %q: %w", target, ErrInvalidModule)
}
