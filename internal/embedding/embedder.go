// Package embedding defines the text-to-vector collaborator used by both
// ingestion and retrieval, plus helpers for embedding large corpora.
package embedding

import (
	"context"

	"legalrag/internal/domain"
)

// Embedder converts free text into a numeric vector representation.
// Implementations must be safe for concurrent use and must report upstream
// failures wrapped in domain.ErrEmbeddingUnavailable.
type Embedder interface {
	Name() string
	// Dimension returns the vector size, or 0 if it is not known until the
	// first successful call.
	Dimension() int
	Embed(ctx context.Context, text string) (domain.Vector, error)
	EmbedBatch(ctx context.Context, texts []string) ([]domain.Vector, error)
}
