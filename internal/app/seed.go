package app

import (
	"fmt"
	"strings"

	"pathwise/internal/util"
	"pathwise/pkg/domain"
)

// Transcript artifacts sort after generated content, so their display order
// starts well past the placeholder range.
const transcriptOrderBase = 100

// seedArtifacts builds the initial artifact rows for a new plan: one pending
// placeholder per planned document, plus read-only transcript artifacts seeded
// complete since they need no generation step. The caller inserts them in a
// single batch.
func seedArtifacts(t domain.Transcript, planID string, planned []domain.PlannedArtifact) []domain.PlanArtifact {
	rows := make([]domain.PlanArtifact, 0, len(planned)+domain.ModuleCount+1)

	order := 1
	for _, p := range planned {
		artifactType := domain.ArtifactType(p.Type)
		if artifactType == "" {
			artifactType = domain.ArtifactGenerated
		}
		rows = append(rows, domain.PlanArtifact{
			ID:           util.NewID(),
			PlanID:       planID,
			Key:          p.Key,
			Title:        p.Title,
			Type:         artifactType,
			Importance:   p.Importance,
			Status:       domain.ArtifactPending,
			PDFStatus:    domain.PDFPending,
			DisplayOrder: order,
		})
		order++
	}

	order = transcriptOrderBase
	if len(t.Interview) > 0 {
		rows = append(rows, transcriptArtifact(planID, "transcript_interview",
			"Interview Transcript", t.Interview, "", order))
		order++
	}
	for i := range t.Modules {
		m := t.Modules[i]
		if !m.Completed || len(m.Messages) == 0 {
			continue
		}
		rows = append(rows, transcriptArtifact(planID,
			fmt.Sprintf("transcript_module_%d", i+1),
			fmt.Sprintf("Module %d Transcript", i+1),
			m.Messages, m.Summary, order))
		order++
	}
	return rows
}

func transcriptArtifact(planID, key, title string, messages []domain.ChatMessage, summary string, order int) domain.PlanArtifact {
	return domain.PlanArtifact{
		ID:           util.NewID(),
		PlanID:       planID,
		Key:          key,
		Title:        title,
		Type:         domain.ArtifactTranscript,
		Importance:   "reference",
		Status:       domain.ArtifactComplete,
		Content:      renderMessageLog(messages, summary),
		PDFStatus:    domain.PDFPending,
		DisplayOrder: order,
	}
}

// renderMessageLog serializes a conversation as readable markdown.
func renderMessageLog(messages []domain.ChatMessage, summary string) string {
	var sb strings.Builder
	if summary != "" {
		sb.WriteString("## Summary\n\n")
		sb.WriteString(summary)
		sb.WriteString("\n\n## Conversation\n\n")
	}
	for _, m := range messages {
		switch m.Role {
		case "assistant":
			sb.WriteString("**Coach:** ")
		default:
			sb.WriteString("**You:** ")
		}
		sb.WriteString(m.Content)
		sb.WriteString("\n\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
