package app

import (
	"fmt"
	"strings"

	"pathwise/pkg/domain"
)

const (
	interviewSystemPrompt = `You are a pragmatic career coach running a structured intake interview.
Ask one focused question at a time. Draw out the client's situation, constraints,
motivations, and fears. Keep replies under 120 words.`

	dossierSystemPrompt = `You analyze coaching conversations and return structured JSON only.
Respond with a single JSON object and nothing else.`

	letterSystemPrompt = `You are a senior career coach writing a short personal closing note
to a client. Warm, direct, no bullet points, at most 250 words.`

	artifactsSystemPrompt = `You produce a set of career-planning documents as JSON.
Respond with a single JSON object and nothing else. Content fields are markdown.`

	chatSystemPrompt = `You are the client's career coach, answering follow-up questions about
their delivered plan. Ground every answer in the plan context provided. Be concrete.`
)

// artifactGuidelines describe what each standard document should contain. Keys
// without an entry fall back to a generic instruction.
var artifactGuidelines = map[string]string{
	"decision_snapshot": "A one-page summary of the client's core decision: the options on the table, the deciding factors, and the recommendation.",
	"action_plan":       "A week-by-week action plan for the recommended horizon, each step concrete and checkable.",
	"module_recap":      "A recap of the three coaching modules: what was worked through and what was concluded in each.",
	"resources":         "A curated list of resources (books, tools, communities) matched to the client's situation, each with one line on why.",
}

func dossierPrompt(t domain.Transcript) string {
	var sb strings.Builder
	sb.WriteString("Analyze this career-coaching intake interview and return JSON with the shape:\n")
	sb.WriteString(`{"clientName": string, "situation": string, "constraints": [string], "motivations": [string], "fears": [string], "keyFacts": [string], "planCard": {"modules": [{"title": string, "focus": string, "why": string}]}}` + "\n")
	sb.WriteString("planCard.modules must contain exactly three coaching modules for this client.\n\n")
	sb.WriteString("Interview:\n")
	writeConversation(&sb, t.Interview)
	return sb.String()
}

func moduleAnalysisPrompt(t domain.Transcript, module int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Analyze coaching module %d and return JSON with the shape:\n", module)
	sb.WriteString(`{"summary": string, "insights": [string]}` + "\n\n")
	if t.PlanCard != nil && module-1 < len(t.PlanCard.Modules) {
		m := t.PlanCard.Modules[module-1]
		fmt.Fprintf(&sb, "Module topic: %s (%s)\n\n", m.Title, m.Focus)
	}
	sb.WriteString("Conversation:\n")
	writeConversation(&sb, t.Modules[module-1].Messages)
	return sb.String()
}

func letterPrompt(plan domain.SeriousPlan, t domain.Transcript) string {
	var sb strings.Builder
	name := plan.ClientName
	if name == "" {
		name = "the client"
	}
	fmt.Fprintf(&sb, "Write the closing note for %s.\n", name)
	fmt.Fprintf(&sb, "Recommended horizon: %s. %s\n\n", plan.Horizon, plan.HorizonRationale)
	writePlanCard(&sb, t.PlanCard)
	writeDossier(&sb, t.Dossier)
	return sb.String()
}

func artifactsPrompt(plan domain.SeriousPlan, t domain.Transcript, targets []domain.PlanArtifact) string {
	var sb strings.Builder
	sb.WriteString("Produce the requested documents and return JSON with the shape:\n")
	sb.WriteString(`{"meta": {"clientName": string, "tone": string}, "artifacts": [{"artifactKey": string, "title": string, "importance": string, "whyImportant": string, "content": string}]}` + "\n")
	sb.WriteString("Include one artifacts entry per requested key, matching artifactKey exactly.\n\n")
	fmt.Fprintf(&sb, "Recommended horizon: %s. %s\n\n", plan.Horizon, plan.HorizonRationale)
	sb.WriteString("Requested documents:\n")
	for _, art := range targets {
		guideline, ok := artifactGuidelines[art.Key]
		if !ok {
			guideline = "A focused document titled " + art.Title + "."
		}
		fmt.Fprintf(&sb, "- %s (%q, importance %s): %s\n", art.Key, art.Title, art.Importance, guideline)
	}
	sb.WriteString("\n")
	writePlanCard(&sb, t.PlanCard)
	writeDossier(&sb, t.Dossier)
	return sb.String()
}

func chatPrompt(plan domain.SeriousPlan, t domain.Transcript, history []domain.CoachMessage, question string) string {
	var sb strings.Builder
	sb.WriteString("Plan context:\n")
	fmt.Fprintf(&sb, "Horizon: %s. %s\n", plan.Horizon, plan.HorizonRationale)
	if plan.LetterContent != "" {
		sb.WriteString("Closing note:\n")
		sb.WriteString(plan.LetterContent)
		sb.WriteString("\n")
	}
	writePlanCard(&sb, t.PlanCard)
	writeDossier(&sb, t.Dossier)
	if len(history) > 0 {
		sb.WriteString("\nRecent conversation:\n")
		for _, m := range history {
			fmt.Fprintf(&sb, "%s: %s\n", m.Role, m.Content)
		}
	}
	sb.WriteString("\nClient question: ")
	sb.WriteString(question)
	return sb.String()
}

func moduleSystemPrompt(t domain.Transcript, module int) string {
	base := `You are a pragmatic career coach working through a focused coaching module.
Keep the client on the module's topic. One question or exercise at a time, under 150 words.`
	if t.PlanCard != nil && module-1 < len(t.PlanCard.Modules) {
		m := t.PlanCard.Modules[module-1]
		return fmt.Sprintf("%s\nThis module: %s. Focus: %s.", base, m.Title, m.Focus)
	}
	return base
}

func writeConversation(sb *strings.Builder, messages []domain.ChatMessage) {
	for _, m := range messages {
		fmt.Fprintf(sb, "%s: %s\n", m.Role, m.Content)
	}
}

func writePlanCard(sb *strings.Builder, card *domain.PlanCard) {
	if card == nil {
		return
	}
	sb.WriteString("Agreed coaching plan:\n")
	for i, m := range card.Modules {
		fmt.Fprintf(sb, "%d. %s: %s\n", i+1, m.Title, m.Focus)
	}
	sb.WriteString("\n")
}

// writeDossier feeds the internal analysis to the model as context. Dossier
// text itself never reaches the client directly.
func writeDossier(sb *strings.Builder, d *domain.Dossier) {
	if d == nil {
		return
	}
	sb.WriteString("Client analysis:\n")
	fmt.Fprintf(sb, "Situation: %s\n", d.Situation)
	writeList(sb, "Constraints", d.Constraints)
	writeList(sb, "Motivations", d.Motivations)
	writeList(sb, "Fears", d.Fears)
	writeList(sb, "Key facts", d.KeyFacts)
	for _, analysis := range d.Analyses {
		fmt.Fprintf(sb, "Module %d findings: %s\n", analysis.Module, analysis.Summary)
	}
	sb.WriteString("\n")
}

func writeList(sb *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(sb, "%s: %s\n", label, strings.Join(items, "; "))
}
