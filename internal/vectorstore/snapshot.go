package vectorstore

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"legalrag/internal/domain"
)

// Record is an index entry tagged with its insertion sequence.
type Record struct {
	Seq   uint64
	Entry domain.IndexEntry
}

// Snapshot is an immutable view of an index. Methods never modify the
// receiver, so a snapshot can be searched from many goroutines without locks.
type Snapshot struct {
	info    domain.IndexInfo
	dim     int
	records []Record
	norms   []float64
	byID    map[string]int
}

// NewSnapshot builds a snapshot from records in insertion order.
// All vectors must share one dimension, which must match info.Dimension when
// that is set.
func NewSnapshot(info domain.IndexInfo, records []Record) (*Snapshot, error) {
	dim, err := commonDimension(records, info.Dimension)
	if err != nil {
		return nil, err
	}
	s := &Snapshot{
		info:    info,
		dim:     dim,
		records: records,
		norms:   make([]float64, len(records)),
		byID:    make(map[string]int, len(records)),
	}
	for i, r := range records {
		s.norms[i] = norm(r.Entry.Vector)
		s.byID[r.Entry.Chunk.ID] = i
	}
	s.info.Dimension = dim
	s.info.Size = len(records)
	return s, nil
}

// Empty returns a snapshot with no entries.
func Empty() *Snapshot {
	return &Snapshot{byID: map[string]int{}}
}

// Info returns the recorded metadata with Size and Dimension filled in.
func (s *Snapshot) Info() domain.IndexInfo { return s.info }

// Len returns the number of entries.
func (s *Snapshot) Len() int { return len(s.records) }

// Dimension returns the vector size, or 0 for an empty snapshot.
func (s *Snapshot) Dimension() int { return s.dim }

// Records returns the entries in insertion order. Callers must not modify them.
func (s *Snapshot) Records() []Record { return s.records }

// Upsert returns a new snapshot with entries added. An entry whose chunk ID
// already exists replaces it in place and keeps its original sequence; new
// entries get sequences starting at nextSeq. The changed records are returned
// so durable backends can persist exactly those.
func (s *Snapshot) Upsert(entries []domain.IndexEntry, nextSeq uint64) (*Snapshot, []Record, error) {
	records := make([]Record, len(s.records), len(s.records)+len(entries))
	copy(records, s.records)
	pos := make(map[string]int, len(s.byID))
	for id, i := range s.byID {
		pos[id] = i
	}

	changed := make([]Record, 0, len(entries))
	for _, e := range entries {
		if i, ok := pos[e.Chunk.ID]; ok {
			records[i] = Record{Seq: records[i].Seq, Entry: e}
			changed = append(changed, records[i])
			continue
		}
		r := Record{Seq: nextSeq, Entry: e}
		nextSeq++
		pos[e.Chunk.ID] = len(records)
		records = append(records, r)
		changed = append(changed, r)
	}

	info := s.info
	info.Dimension = s.dim
	next, err := NewSnapshot(info, records)
	if err != nil {
		return nil, nil, err
	}
	return next, changed, nil
}

// Search ranks every entry against query by cosine similarity.
func (s *Snapshot) Search(query domain.Vector, k int) ([]domain.SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", domain.ErrInvalidArgument, k)
	}
	if len(s.records) == 0 {
		return []domain.SearchResult{}, nil
	}
	if len(query) != s.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d", domain.ErrDimensionMismatch, len(query), s.dim)
	}

	qn := norm(query)
	type scored struct {
		idx   int
		score float64
	}
	all := make([]scored, len(s.records))
	for i, r := range s.records {
		all[i] = scored{idx: i, score: cosine(r.Entry.Vector, query, s.norms[i], qn)}
	}
	slices.SortFunc(all, func(a, b scored) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return cmp.Compare(s.records[a.idx].Seq, s.records[b.idx].Seq)
	})

	if k > len(all) {
		k = len(all)
	}
	results := make([]domain.SearchResult, k)
	for i := 0; i < k; i++ {
		results[i] = domain.SearchResult{Entry: s.records[all[i].idx].Entry, Score: all[i].score}
	}
	return results, nil
}

// Cosine returns the cosine similarity of a and b. A zero vector has
// similarity 0 with everything.
func Cosine(a, b domain.Vector) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", domain.ErrDimensionMismatch, len(a), len(b))
	}
	return cosine(a, b, norm(a), norm(b)), nil
}

// SortResults orders results by score descending. Ties keep the order given
// by seq, lower first.
func SortResults(results []domain.SearchResult, seq func(domain.SearchResult) uint64) {
	slices.SortStableFunc(results, func(a, b domain.SearchResult) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(seq(a), seq(b))
	})
}

// CheckEntries validates that entries share one non-zero dimension and
// returns it. want, when positive, is the dimension they must have.
func CheckEntries(entries []domain.IndexEntry, want int) (int, error) {
	records := make([]Record, len(entries))
	for i, e := range entries {
		records[i] = Record{Entry: e}
	}
	return commonDimension(records, want)
}

func commonDimension(records []Record, want int) (int, error) {
	dim := want
	for _, r := range records {
		n := len(r.Entry.Vector)
		if n == 0 {
			return 0, fmt.Errorf("%w: empty vector for chunk %q", domain.ErrInvalidArgument, r.Entry.Chunk.ID)
		}
		if dim == 0 {
			dim = n
			continue
		}
		if n != dim {
			return 0, fmt.Errorf("%w: chunk %q has %d dimensions, expected %d", domain.ErrDimensionMismatch, r.Entry.Chunk.ID, n, dim)
		}
	}
	return dim, nil
}

func norm(v domain.Vector) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func cosine(a, b domain.Vector, na, nb float64) float64 {
	if na == 0 || nb == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (na * nb)
}
