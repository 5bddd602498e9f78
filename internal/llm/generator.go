// Package llm defines the text generation collaborator.
package llm

import "context"

// Options configures a single generation call.
type Options struct {
	// Temperature controls randomness (0.0 = deterministic).
	Temperature float64
	// MaxTokens caps the response length; zero leaves it to the provider.
	MaxTokens int
}

// Generator produces text from a prompt. Implementations do not retry and
// report upstream failures wrapped in domain.ErrGenerationUnavailable.
type Generator interface {
	Name() string
	Generate(ctx context.Context, prompt string, opts Options) (string, error)
}
