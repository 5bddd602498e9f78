package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legalrag/internal/domain"
	"legalrag/internal/vectorstore"
	"legalrag/internal/vectorstore/indextest"
)

func TestIndex(t *testing.T) {
	indextest.Run(t, func(t *testing.T) vectorstore.Index { return New() })
}

func TestIndex_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	idx := New()
	assert.ErrorIs(t, idx.Replace(ctx, nil, domain.IndexInfo{}), context.Canceled)
	_, err := idx.Search(ctx, domain.Vector{1}, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIndex_ReplaceResetsSequence(t *testing.T) {
	ctx := context.Background()
	idx := New()
	require.NoError(t, idx.Upsert(ctx, []domain.IndexEntry{indextest.Entry("x", 1, 0), indextest.Entry("y", 1, 0)}))
	require.NoError(t, idx.Replace(ctx, []domain.IndexEntry{indextest.Entry("a", 1, 0)}, domain.IndexInfo{Generation: "g2"}))
	require.NoError(t, idx.Upsert(ctx, []domain.IndexEntry{indextest.Entry("b", 1, 0)}))

	res, err := idx.Search(ctx, domain.Vector{1, 0}, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, indextest.IDs(res))

	info, err := idx.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, "g2", info.Generation)
	assert.Equal(t, 2, info.Size)
}
