// Package llm defines the Provider interface for the language models used as
// AI evaluators.
//
// A provider wraps a remote or local model API (OpenAI, Anthropic, a local
// Ollama instance, ...) behind a single blocking Complete call. Grading never
// streams: an evaluation needs the whole JSON verdict before it can be
// normalised, so the interface stays deliberately small.
//
// Implementors must be safe for concurrent use.
package llm

import "context"

// Provider is the abstraction over any LLM backend.
//
// Complete must return promptly once ctx is cancelled. Errors are returned
// as-is; callers treat every failure as "AI unavailable" and decide on their
// own fallback.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Capabilities returns static metadata describing the underlying model.
	// The result is constant for the lifetime of the Provider.
	Capabilities() ModelCapabilities
}
