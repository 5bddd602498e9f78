package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"legalrag/internal/domain"
)

// BatchOptions controls how a corpus is submitted to an Embedder.
type BatchOptions struct {
	// BatchSize is the number of texts sent per EmbedBatch call.
	BatchSize int
	// MaxAttempts bounds how many times a failed batch is resubmitted.
	MaxAttempts int
	// RatePerSecond limits EmbedBatch calls; zero means unlimited.
	RatePerSecond float64
	// Backoff returns the pause before retry round n (0-based).
	Backoff func(attempt int) time.Duration
	Logger  *zap.Logger
}

func (o *BatchOptions) applyDefaults() {
	if o.BatchSize <= 0 {
		o.BatchSize = 32
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.Backoff == nil {
		o.Backoff = RetryDelay
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

type batchRange struct{ start, end int }

// BatchEmbed embeds texts in batches, preserving text-to-vector order.
// A batch that fails is retried on its own; batches that already succeeded
// are never resubmitted. All vectors must share one dimension.
func BatchEmbed(ctx context.Context, emb Embedder, texts []string, opts BatchOptions) ([]domain.Vector, error) {
	opts.applyDefaults()
	vectors := make([]domain.Vector, len(texts))
	if len(texts) == 0 {
		return vectors, nil
	}

	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	limiter := rate.NewLimiter(limit, 1)

	pending := make([]batchRange, 0, len(texts)/opts.BatchSize+1)
	for start := 0; start < len(texts); start += opts.BatchSize {
		end := start + opts.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		pending = append(pending, batchRange{start, end})
	}

	for attempt := 0; ; attempt++ {
		var failed []batchRange
		var lastErr error
		for _, b := range pending {
			if err := limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err)
			}
			out, err := emb.EmbedBatch(ctx, texts[b.start:b.end])
			if err == nil && len(out) != b.end-b.start {
				err = fmt.Errorf("%w: got %d vectors for %d texts",
					domain.ErrEmbeddingUnavailable, len(out), b.end-b.start)
			}
			if err != nil {
				opts.Logger.Warn("embedding batch failed",
					zap.Int("start", b.start), zap.Int("end", b.end),
					zap.Int("attempt", attempt+1), zap.Error(err))
				failed = append(failed, b)
				lastErr = err
				continue
			}
			copy(vectors[b.start:b.end], out)
		}
		if len(failed) == 0 {
			break
		}
		if attempt+1 >= opts.MaxAttempts {
			return nil, fmt.Errorf("%w: %d of %d batches still failing after %d attempts: %w",
				domain.ErrEmbeddingUnavailable, len(failed), len(pending), opts.MaxAttempts, lastErr)
		}
		if err := Sleep(ctx, opts.Backoff(attempt)); err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err)
		}
		pending = failed
	}

	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) == 0 || len(v) != dim {
			return nil, fmt.Errorf("%w: vector %d has %d dimensions, expected %d",
				domain.ErrDimensionMismatch, i, len(v), dim)
		}
	}
	return vectors, nil
}
