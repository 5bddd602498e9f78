// Package vectorstore defines the vector index contract shared by the
// memory, bolt and qdrant backends.
package vectorstore

import (
	"context"

	"legalrag/internal/domain"
)

// Index persists embedded chunks and answers nearest-neighbour queries.
//
// Search returns at most k results ordered by cosine similarity, highest
// first, with ties broken by insertion order. Replace swaps the whole
// contents atomically: a concurrent Search sees either the old or the new
// entries, never a mix.
type Index interface {
	Upsert(ctx context.Context, entries []domain.IndexEntry) error
	Replace(ctx context.Context, entries []domain.IndexEntry, info domain.IndexInfo) error
	Clear(ctx context.Context) error
	Search(ctx context.Context, query domain.Vector, k int) ([]domain.SearchResult, error)
	Size(ctx context.Context) (int, error)
	Info(ctx context.Context) (domain.IndexInfo, error)
	Close() error
}
