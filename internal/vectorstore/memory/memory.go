// Package memory is a process-local vector index using brute-force cosine
// similarity over an immutable snapshot.
package memory

import (
	"context"
	"sync"
	"sync/atomic"

	"legalrag/internal/domain"
	"legalrag/internal/vectorstore"
)

var _ vectorstore.Index = (*Index)(nil)

// Index keeps entries in memory. Searches read the current snapshot without
// locking; writers build a new snapshot and swap it in.
type Index struct {
	mu      sync.Mutex
	snap    atomic.Pointer[vectorstore.Snapshot]
	nextSeq uint64
}

// New returns an empty index.
func New() *Index {
	idx := &Index{}
	idx.snap.Store(vectorstore.Empty())
	return idx
}

// Upsert adds entries, replacing any with the same chunk ID.
func (idx *Index) Upsert(ctx context.Context, entries []domain.IndexEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()

	next, _, err := idx.snap.Load().Upsert(entries, idx.nextSeq)
	if err != nil {
		return err
	}
	idx.nextSeq += uint64(next.Len() - idx.snap.Load().Len())
	idx.snap.Store(next)
	return nil
}

// Replace swaps the whole contents for entries.
func (idx *Index) Replace(ctx context.Context, entries []domain.IndexEntry, info domain.IndexInfo) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	records := make([]vectorstore.Record, len(entries))
	for i, e := range entries {
		records[i] = vectorstore.Record{Seq: uint64(i), Entry: e}
	}
	next, err := vectorstore.NewSnapshot(info, records)
	if err != nil {
		return err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.snap.Store(next)
	idx.nextSeq = uint64(len(entries))
	return nil
}

// Clear removes every entry and the recorded metadata.
func (idx *Index) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.snap.Store(vectorstore.Empty())
	idx.nextSeq = 0
	return nil
}

// Search returns the k entries most similar to query.
func (idx *Index) Search(ctx context.Context, query domain.Vector, k int) ([]domain.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return idx.snap.Load().Search(query, k)
}

// Size returns the number of entries.
func (idx *Index) Size(context.Context) (int, error) {
	return idx.snap.Load().Len(), nil
}

// Info returns the metadata recorded by the last Replace.
func (idx *Index) Info(context.Context) (domain.IndexInfo, error) {
	return idx.snap.Load().Info(), nil
}

// Close is a no-op.
func (idx *Index) Close() error { return nil }
