package ai

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON parses a model response into dst. It tries a strict unmarshal of
// the whole response first, then a single fallback: the first balanced top-level
// JSON object in the text (models often wrap output in prose or code fences).
// Truncated output fails with an error rather than a partial parse.
func ExtractJSON(text string, dst any) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return fmt.Errorf("empty model response")
	}
	if err := json.Unmarshal([]byte(trimmed), dst); err == nil {
		return nil
	}
	candidate, ok := firstJSONObject(trimmed)
	if !ok {
		return fmt.Errorf("no JSON object in model response")
	}
	if err := json.Unmarshal([]byte(candidate), dst); err != nil {
		return fmt.Errorf("parse model JSON: %w", err)
	}
	return nil
}

// firstJSONObject scans for the first brace-balanced object, honoring strings
// and escapes. Returns false when braces never balance (truncated output).
func firstJSONObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
