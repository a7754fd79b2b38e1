package ai

import "context"

// TextGenerator generates text from a system prompt and user prompt.
// All LLM providers (OpenAI, OpenAI-compatible) implement this interface.
type TextGenerator interface {
	GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// JSONGenerator is an optional capability of providers that support a
// structured-output mode. Callers fall back to GenerateText plus ExtractJSON
// when a provider does not implement it.
type JSONGenerator interface {
	GenerateJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
