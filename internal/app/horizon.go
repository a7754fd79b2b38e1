package app

import (
	"strings"

	"pathwise/pkg/domain"
)

// Keyword sets checked in priority order. Matching is substring-based over
// lower-cased text; there is no negation handling.
var (
	urgencyKeywords = []string{
		"laid off", "fired", "terminated", "let go", "redundan",
		"severance", "urgent", "immediately", "asap", "out of work", "unemployed",
	}
	deadlineKeywords = []string{
		"visa", "work permit", "sponsorship", "deadline",
		"notice period", "contract ends", "expires", "expiring",
	}
	longTermKeywords = []string{
		"long-term", "long term", "exploring", "someday",
		"eventually", "no rush", "curious",
	}
)

const (
	rationale30      = "Your situation calls for decisive moves in the next month."
	rationale60      = "A fixed deadline is approaching; two months keeps you ahead of it."
	rationale6Months = "You are exploring a longer arc, so the plan paces itself over six months."
	rationale90      = "Ninety days gives enough room to act without losing momentum."
)

// DeterminePlanHorizon maps dossier contents to a recommended timeframe. The
// cascade is order-sensitive: urgency wins over deadlines, deadlines win over
// long-term signals, and anything else falls through to the 90-day default.
func DeterminePlanHorizon(d *domain.Dossier) (domain.Horizon, string) {
	if d == nil {
		return domain.Horizon90Days, rationale90
	}
	parts := make([]string, 0, 1+len(d.Constraints)+len(d.KeyFacts))
	parts = append(parts, d.Situation)
	parts = append(parts, d.Constraints...)
	parts = append(parts, d.KeyFacts...)
	text := strings.ToLower(strings.Join(parts, " "))

	switch {
	case containsAny(text, urgencyKeywords):
		return domain.Horizon30Days, rationale30
	case containsAny(text, deadlineKeywords):
		return domain.Horizon60Days, rationale60
	case containsAny(text, longTermKeywords):
		return domain.Horizon6Months, rationale6Months
	}
	return domain.Horizon90Days, rationale90
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
