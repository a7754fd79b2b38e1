package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pathwise/internal/util"
	"pathwise/pkg/domain"
)

// coachChatHistoryLimit bounds how much prior conversation feeds the prompt.
const coachChatHistoryLimit = 20

// CoachChat answers a follow-up question about a delivered plan. Available
// once the plan is ready; both turns are appended to the plan's chat log.
func (a *App) CoachChat(ctx context.Context, userID, planID, content string) (domain.CoachMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.CoachMessage{}, ErrEmptyMessage
	}
	plan, err := a.planForOwner(userID, planID)
	if err != nil {
		return domain.CoachMessage{}, err
	}
	if plan.Status != domain.PlanReady {
		return domain.CoachMessage{}, fmt.Errorf("plan not delivered yet: %w", ErrNotReady)
	}

	history, err := a.store.ListCoachMessages(planID, coachChatHistoryLimit)
	if err != nil {
		return domain.CoachMessage{}, fmt.Errorf("load chat history: %w", err)
	}
	userMsg := domain.CoachMessage{
		ID:        util.NewID(),
		PlanID:    planID,
		Role:      "user",
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.store.AppendCoachMessage(userMsg); err != nil {
		return domain.CoachMessage{}, fmt.Errorf("store chat message: %w", err)
	}

	t, _, err := a.store.GetTranscriptByUser(userID)
	if err != nil {
		return domain.CoachMessage{}, fmt.Errorf("load transcript: %w", err)
	}
	replyText, err := a.llm.GenerateText(ctx, chatSystemPrompt, chatPrompt(plan, t, history, content))
	if err != nil {
		return domain.CoachMessage{}, fmt.Errorf("generate chat reply: %w", err)
	}
	reply := domain.CoachMessage{
		ID:        util.NewID(),
		PlanID:    planID,
		Role:      "assistant",
		Content:   strings.TrimSpace(replyText),
		CreatedAt: time.Now().UTC(),
	}
	if err := a.store.AppendCoachMessage(reply); err != nil {
		return domain.CoachMessage{}, fmt.Errorf("store chat reply: %w", err)
	}
	return reply, nil
}

// CoachMessages lists the plan's chat log, ownership enforced.
func (a *App) CoachMessages(ctx context.Context, userID, planID string) ([]domain.CoachMessage, error) {
	if _, err := a.planForOwner(userID, planID); err != nil {
		return nil, err
	}
	msgs, err := a.store.ListCoachMessages(planID, 0)
	if err != nil {
		return nil, fmt.Errorf("load chat history: %w", err)
	}
	return msgs, nil
}
