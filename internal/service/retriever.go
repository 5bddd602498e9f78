package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"legalrag/internal/domain"
	"legalrag/internal/embedding"
	"legalrag/internal/vectorstore"
)

// DefaultTopK is the number of reference snippets retrieved per question.
const DefaultTopK = 3

// Retriever finds the reference snippets most relevant to a question.
type Retriever struct {
	embedder     embedding.Embedder
	index        vectorstore.Index
	embedTimeout time.Duration
	logger       *zap.Logger
}

// RetrieverOptions configures a Retriever.
type RetrieverOptions struct {
	// EmbedTimeout bounds the question embedding call; zero means no extra bound.
	EmbedTimeout time.Duration
	Logger       *zap.Logger
}

// NewRetriever creates a Retriever.
func NewRetriever(e embedding.Embedder, idx vectorstore.Index, opts RetrieverOptions) *Retriever {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{embedder: e, index: idx, embedTimeout: opts.EmbedTimeout, logger: logger}
}

// Retrieve returns up to k snippet texts, best first. Snippets with exactly
// the same text are returned once. A failure to embed the question wraps
// domain.ErrEmbeddingUnavailable.
func (r *Retriever) Retrieve(ctx context.Context, question string, k int) (domain.RetrievedContext, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", domain.ErrInvalidArgument, k)
	}

	embedCtx := ctx
	if r.embedTimeout > 0 {
		var cancel context.CancelFunc
		embedCtx, cancel = context.WithTimeout(ctx, r.embedTimeout)
		defer cancel()
	}
	vec, err := r.embedder.Embed(embedCtx, question)
	if err != nil {
		if !errors.Is(err, domain.ErrEmbeddingUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err)
		}
		return nil, fmt.Errorf("embed question: %w", err)
	}

	results, err := r.index.Search(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	out := make(domain.RetrievedContext, 0, len(results))
	seen := make(map[string]struct{}, len(results))
	for _, res := range results {
		text := res.Entry.Chunk.Text
		if _, dup := seen[text]; dup {
			continue
		}
		seen[text] = struct{}{}
		out = append(out, text)
	}
	r.logger.Debug("context retrieved",
		zap.Int("k", k),
		zap.Int("hits", len(results)),
		zap.Int("snippets", len(out)),
	)
	return out, nil
}
