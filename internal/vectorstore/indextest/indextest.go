// Package indextest holds behaviour tests shared by every vectorstore.Index
// implementation.
package indextest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legalrag/internal/domain"
	"legalrag/internal/vectorstore"
)

// Factory returns a fresh, empty index. Cleanup is the caller's concern.
type Factory func(t *testing.T) vectorstore.Index

// Run executes the full behaviour suite against indexes built by newIndex.
func Run(t *testing.T, newIndex Factory) {
	t.Run("EmptySearch", func(t *testing.T) { testEmptySearch(t, newIndex(t)) })
	t.Run("ReplaceAndSearch", func(t *testing.T) { testReplaceAndSearch(t, newIndex(t)) })
	t.Run("InvalidK", func(t *testing.T) { testInvalidK(t, newIndex(t)) })
	t.Run("DimensionMismatch", func(t *testing.T) { testDimensionMismatch(t, newIndex(t)) })
	t.Run("Upsert", func(t *testing.T) { testUpsert(t, newIndex(t)) })
	t.Run("Clear", func(t *testing.T) { testClear(t, newIndex(t)) })
	t.Run("ReplaceIsAtomic", func(t *testing.T) { testReplaceIsAtomic(t, newIndex(t)) })
}

// Entry builds an index entry with the given chunk ID and vector.
func Entry(id string, v ...float32) domain.IndexEntry {
	return domain.IndexEntry{
		Chunk:  domain.Chunk{ID: id, DocumentID: "doc", Source: "kb/" + id + ".txt", Text: "text of " + id},
		Vector: v,
	}
}

// IDs returns the chunk IDs of results in order.
func IDs(results []domain.SearchResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Entry.Chunk.ID
	}
	return out
}

func testEmptySearch(t *testing.T, idx vectorstore.Index) {
	ctx := context.Background()
	res, err := idx.Search(ctx, domain.Vector{1, 0, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, res)

	n, err := idx.Size(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func testReplaceAndSearch(t *testing.T, idx vectorstore.Index) {
	ctx := context.Background()
	info := domain.IndexInfo{Generation: "gen-1", ChunkSize: 1000, Overlap: 200, EmbeddingModel: "test", CreatedAt: time.Unix(1700000000, 0).UTC()}
	require.NoError(t, idx.Replace(ctx, []domain.IndexEntry{
		Entry("a", 1, 0, 0),
		Entry("b", 0, 1, 0),
		Entry("c", 0.9, 0.1, 0),
		Entry("d", 0.5, 0.5, 0),
	}, info))

	res, err := idx.Search(ctx, domain.Vector{1, 0, 0}, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "d"}, IDs(res))
	for i := 1; i < len(res); i++ {
		assert.GreaterOrEqual(t, res[i-1].Score, res[i].Score)
	}
	assert.Equal(t, "text of a", res[0].Entry.Chunk.Text)
	assert.Equal(t, "kb/a.txt", res[0].Entry.Chunk.Source)

	res, err = idx.Search(ctx, domain.Vector{1, 0, 0}, 50)
	require.NoError(t, err)
	assert.Len(t, res, 4)

	n, err := idx.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	got, err := idx.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, "gen-1", got.Generation)
	assert.Equal(t, 1000, got.ChunkSize)
	assert.Equal(t, 200, got.Overlap)
	assert.Equal(t, 3, got.Dimension)
	assert.Equal(t, 4, got.Size)
	assert.Equal(t, "test", got.EmbeddingModel)
	assert.True(t, info.CreatedAt.Equal(got.CreatedAt))
}

func testInvalidK(t *testing.T, idx vectorstore.Index) {
	ctx := context.Background()
	require.NoError(t, idx.Replace(ctx, []domain.IndexEntry{Entry("a", 1, 0)}, domain.IndexInfo{Generation: "g"}))
	for _, k := range []int{0, -1} {
		_, err := idx.Search(ctx, domain.Vector{1, 0}, k)
		assert.True(t, errors.Is(err, domain.ErrInvalidArgument), "k=%d: %v", k, err)
	}
}

func testDimensionMismatch(t *testing.T, idx vectorstore.Index) {
	ctx := context.Background()
	err := idx.Replace(ctx, []domain.IndexEntry{Entry("a", 1, 0), Entry("b", 1, 0, 0)}, domain.IndexInfo{Generation: "g"})
	assert.True(t, errors.Is(err, domain.ErrDimensionMismatch))

	require.NoError(t, idx.Replace(ctx, []domain.IndexEntry{Entry("a", 1, 0)}, domain.IndexInfo{Generation: "g"}))
	_, err = idx.Search(ctx, domain.Vector{1, 0, 0}, 1)
	assert.True(t, errors.Is(err, domain.ErrDimensionMismatch))
}

func testUpsert(t *testing.T, idx vectorstore.Index) {
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, []domain.IndexEntry{Entry("a", 1, 0), Entry("b", 0, 1)}))
	require.NoError(t, idx.Upsert(ctx, []domain.IndexEntry{Entry("a", 0, 1), Entry("c", 1, 0)}))

	n, err := idx.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// a and b now tie on (0,1); a keeps its original position.
	res, err := idx.Search(ctx, domain.Vector{0, 1}, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, IDs(res))

	res, err = idx.Search(ctx, domain.Vector{1, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, IDs(res))
}

func testClear(t *testing.T, idx vectorstore.Index) {
	ctx := context.Background()
	require.NoError(t, idx.Replace(ctx, []domain.IndexEntry{Entry("a", 1, 0)}, domain.IndexInfo{Generation: "g"}))
	require.NoError(t, idx.Clear(ctx))

	n, err := idx.Size(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	res, err := idx.Search(ctx, domain.Vector{1, 0}, 1)
	require.NoError(t, err)
	assert.Empty(t, res)
}

// testReplaceIsAtomic rebuilds the index repeatedly while readers search it.
// Every search must see one generation only.
func testReplaceIsAtomic(t *testing.T, idx vectorstore.Index) {
	ctx := context.Background()
	const size = 40
	build := func(gen string) []domain.IndexEntry {
		out := make([]domain.IndexEntry, size)
		for i := range out {
			out[i] = Entry(fmt.Sprintf("%s-%02d", gen, i), 1, float32(i)/size)
			out[i].Chunk.Text = gen
		}
		return out
	}
	genA, genB := build("A"), build("B")
	require.NoError(t, idx.Replace(ctx, genA, domain.IndexInfo{Generation: "A"}))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	errs := make(chan error, 8)
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				res, err := idx.Search(ctx, domain.Vector{1, 0.5}, size)
				if err != nil {
					errs <- err
					return
				}
				if len(res) != size {
					errs <- fmt.Errorf("partial result: %d entries", len(res))
					return
				}
				for _, r := range res[1:] {
					if r.Entry.Chunk.Text != res[0].Entry.Chunk.Text {
						errs <- fmt.Errorf("mixed generations %q and %q", res[0].Entry.Chunk.Text, r.Entry.Chunk.Text)
						return
					}
				}
			}
		}()
	}

	for i := 0; i < 10; i++ {
		next, gen := genB, "B"
		if i%2 == 1 {
			next, gen = genA, "A"
		}
		require.NoError(t, idx.Replace(ctx, next, domain.IndexInfo{Generation: gen}))
	}
	close(stop)
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
