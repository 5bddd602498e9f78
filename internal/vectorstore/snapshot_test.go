package vectorstore

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legalrag/internal/domain"
)

func entry(id string, v ...float32) domain.IndexEntry {
	return domain.IndexEntry{Chunk: domain.Chunk{ID: id, Text: "text " + id}, Vector: v}
}

func records(entries ...domain.IndexEntry) []Record {
	out := make([]Record, len(entries))
	for i, e := range entries {
		out[i] = Record{Seq: uint64(i), Entry: e}
	}
	return out
}

func ids(results []domain.SearchResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Entry.Chunk.ID
	}
	return out
}

func TestSnapshot_SearchOrder(t *testing.T) {
	s, err := NewSnapshot(domain.IndexInfo{}, records(
		entry("a", 1, 0),
		entry("b", 0, 1),
		entry("c", 1, 1),
	))
	require.NoError(t, err)

	res, err := s.Search(domain.Vector{1, 0}, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "b"}, ids(res))
	assert.InDelta(t, 1.0, res[0].Score, 1e-9)
	assert.InDelta(t, 0.0, res[2].Score, 1e-9)
	for i := 1; i < len(res); i++ {
		assert.GreaterOrEqual(t, res[i-1].Score, res[i].Score)
	}
}

func TestSnapshot_TiesKeepInsertionOrder(t *testing.T) {
	var entries []domain.IndexEntry
	for i := 0; i < 20; i++ {
		entries = append(entries, entry(fmt.Sprintf("e%02d", i), 2, 2))
	}
	s, err := NewSnapshot(domain.IndexInfo{}, records(entries...))
	require.NoError(t, err)

	res, err := s.Search(domain.Vector{1, 1}, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"e00", "e01", "e02", "e03", "e04"}, ids(res))
}

func TestSnapshot_SearchBounds(t *testing.T) {
	s, err := NewSnapshot(domain.IndexInfo{}, records(entry("a", 1, 0), entry("b", 0, 1)))
	require.NoError(t, err)

	res, err := s.Search(domain.Vector{1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, res, 2)

	res, err = s.Search(domain.Vector{1, 0}, 1)
	require.NoError(t, err)
	assert.Len(t, res, 1)

	for _, k := range []int{0, -3} {
		_, err = s.Search(domain.Vector{1, 0}, k)
		assert.True(t, errors.Is(err, domain.ErrInvalidArgument), "k=%d", k)
	}

	_, err = s.Search(domain.Vector{1, 0, 0}, 1)
	assert.True(t, errors.Is(err, domain.ErrDimensionMismatch))
}

func TestSnapshot_EmptySearch(t *testing.T) {
	res, err := Empty().Search(domain.Vector{1, 2, 3}, 3)
	require.NoError(t, err)
	assert.NotNil(t, res)
	assert.Empty(t, res)
}

func TestNewSnapshot_Validation(t *testing.T) {
	_, err := NewSnapshot(domain.IndexInfo{}, records(entry("a", 1, 0), entry("b", 1, 0, 0)))
	assert.True(t, errors.Is(err, domain.ErrDimensionMismatch))

	_, err = NewSnapshot(domain.IndexInfo{Dimension: 3}, records(entry("a", 1, 0)))
	assert.True(t, errors.Is(err, domain.ErrDimensionMismatch))

	_, err = NewSnapshot(domain.IndexInfo{}, records(entry("a")))
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
}

func TestSnapshot_InfoFilled(t *testing.T) {
	s, err := NewSnapshot(domain.IndexInfo{Generation: "g1", ChunkSize: 1000}, records(entry("a", 1, 0), entry("b", 0, 1)))
	require.NoError(t, err)
	info := s.Info()
	assert.Equal(t, "g1", info.Generation)
	assert.Equal(t, 2, info.Size)
	assert.Equal(t, 2, info.Dimension)
}

func TestSnapshot_Upsert(t *testing.T) {
	s, err := NewSnapshot(domain.IndexInfo{}, records(entry("a", 1, 0), entry("b", 0, 1)))
	require.NoError(t, err)

	next, changed, err := s.Upsert([]domain.IndexEntry{entry("b", 1, 1), entry("c", 1, 0)}, 2)
	require.NoError(t, err)
	require.Len(t, changed, 2)
	assert.Equal(t, uint64(1), changed[0].Seq)
	assert.Equal(t, uint64(2), changed[1].Seq)

	assert.Equal(t, 2, s.Len(), "receiver must not change")
	assert.Equal(t, 3, next.Len())
	assert.Equal(t, domain.Vector{1, 1}, next.Records()[1].Entry.Vector)

	_, _, err = s.Upsert([]domain.IndexEntry{entry("d", 1, 2, 3)}, 3)
	assert.True(t, errors.Is(err, domain.ErrDimensionMismatch))
}

func TestCosine(t *testing.T) {
	c, err := Cosine(domain.Vector{1, 0}, domain.Vector{0, 0})
	require.NoError(t, err)
	assert.Zero(t, c)

	c, err = Cosine(domain.Vector{3, 4}, domain.Vector{6, 8})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, c, 1e-9)

	_, err = Cosine(domain.Vector{1}, domain.Vector{1, 2})
	assert.True(t, errors.Is(err, domain.ErrDimensionMismatch))
}

func TestSortResults(t *testing.T) {
	results := []domain.SearchResult{
		{Entry: entry("late"), Score: 0.5},
		{Entry: entry("best"), Score: 0.9},
		{Entry: entry("early"), Score: 0.5},
	}
	seq := map[string]uint64{"late": 7, "best": 3, "early": 1}
	SortResults(results, func(r domain.SearchResult) uint64 { return seq[r.Entry.Chunk.ID] })
	assert.Equal(t, []string{"best", "early", "late"}, ids(results))
}
