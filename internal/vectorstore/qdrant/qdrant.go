// Package qdrant is a vector index backed by a Qdrant server over its REST API.
//
// The configured collection name is used as an alias. Every Replace builds a
// fresh collection "<alias>_<generation>", repoints the alias in a single
// aliases request and drops the previous collection, so searches through the
// alias see one generation at a time. IndexInfo for each generation is kept
// as a payload point in the "<alias>_meta" collection.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"legalrag/internal/domain"
	"legalrag/internal/vectorstore"
)

var _ vectorstore.Index = (*Storage)(nil)

const upsertBatch = 256

// pointNamespace derives stable point IDs from chunk IDs.
var pointNamespace = uuid.MustParse("6f1c2a52-8f0e-4c3e-9a55-2d3c0c6b7f10")

var errNotFound = errors.New("not found")

// Config configures the Qdrant client.
type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
	Logger     *zap.Logger
}

// Storage is a minimal REST client to Qdrant using cosine distance.
type Storage struct {
	url    string
	apiKey string
	alias  string
	client *http.Client
	logger *zap.Logger

	// mu serializes writers; readers go straight to the server.
	mu sync.Mutex
}

// NewStorage creates a client. No request is made until first use.
func NewStorage(cfg Config) (*Storage, error) {
	if cfg.URL == "" || cfg.Collection == "" {
		return nil, fmt.Errorf("%w: qdrant url and collection are required", domain.ErrInvalidConfiguration)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Storage{
		url:    strings.TrimRight(cfg.URL, "/"),
		apiKey: cfg.APIKey,
		alias:  cfg.Collection,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}, nil
}

type pointPayload struct {
	Seq        uint64 `json:"seq"`
	ChunkID    string `json:"chunk_id"`
	DocumentID string `json:"document_id"`
	Source     string `json:"source"`
	Index      int    `json:"index"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
	Text       string `json:"text"`
}

type point struct {
	ID      string         `json:"id"`
	Vector  domain.Vector  `json:"vector"`
	Payload map[string]any `json:"payload"`
}

type scoredPoint struct {
	ID      string        `json:"id"`
	Score   float64       `json:"score"`
	Payload pointPayload  `json:"payload"`
	Vector  domain.Vector `json:"vector"`
}

type metaPayload struct {
	Info string `json:"info"`
}

func pointID(chunkID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(chunkID)).String()
}

func (s *Storage) metaCollection() string { return s.alias + "_meta" }

func (s *Storage) generationCollection(gen string) string { return s.alias + "_" + gen }

// Upsert adds entries to the live collection, replacing points with the same
// chunk ID. When no collection exists yet a new generation is created.
func (s *Storage) Upsert(ctx context.Context, entries []domain.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	target, err := s.aliasTarget(ctx)
	if err != nil {
		return err
	}
	if target == "" {
		dim, err := vectorstore.CheckEntries(entries, 0)
		if err != nil {
			return err
		}
		info := domain.IndexInfo{Generation: uuid.NewString(), Dimension: dim, CreatedAt: time.Now().UTC()}
		return s.publish(ctx, entries, info, "")
	}

	info, err := s.readInfo(ctx, target)
	if err != nil {
		return err
	}
	if _, err := vectorstore.CheckEntries(entries, info.Dimension); err != nil {
		return err
	}

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = pointID(e.Chunk.ID)
	}
	existing, err := s.retrieveSeqs(ctx, target, ids)
	if err != nil {
		return err
	}
	next, err := s.count(ctx, target)
	if err != nil {
		return err
	}
	points := make([]point, len(entries))
	for i, e := range entries {
		seq, ok := existing[ids[i]]
		if !ok {
			seq = uint64(next)
			existing[ids[i]] = seq
			next++
		}
		points[i] = toPoint(e, seq)
	}
	if err := s.putPoints(ctx, target, points); err != nil {
		return err
	}
	info.Size = next
	return s.writeInfo(ctx, info)
}

// Replace builds a new generation collection and repoints the alias to it.
func (s *Storage) Replace(ctx context.Context, entries []domain.IndexEntry, info domain.IndexInfo) error {
	dim, err := vectorstore.CheckEntries(entries, info.Dimension)
	if err != nil {
		return err
	}
	if dim == 0 {
		return fmt.Errorf("%w: cannot create a collection without a dimension", domain.ErrInvalidArgument)
	}
	info.Dimension = dim
	if info.Generation == "" {
		info.Generation = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	previous, err := s.aliasTarget(ctx)
	if err != nil {
		return err
	}
	return s.publish(ctx, entries, info, previous)
}

// publish writes entries into a new collection for info.Generation and swaps
// the alias from previous (which may be empty) to it.
func (s *Storage) publish(ctx context.Context, entries []domain.IndexEntry, info domain.IndexInfo, previous string) error {
	name := s.generationCollection(info.Generation)
	if name == previous {
		return fmt.Errorf("%w: generation %s is already live", domain.ErrInvalidArgument, info.Generation)
	}
	if err := s.createCollection(ctx, name, info.Dimension); err != nil {
		return err
	}
	points := make([]point, len(entries))
	for i, e := range entries {
		points[i] = toPoint(e, uint64(i))
	}
	if err := s.putPoints(ctx, name, points); err != nil {
		s.dropCollection(name)
		return err
	}
	info.Size = len(entries)
	if err := s.writeInfo(ctx, info); err != nil {
		s.dropCollection(name)
		return err
	}

	var actions []map[string]any
	if previous != "" {
		actions = append(actions, map[string]any{"delete_alias": map[string]any{"alias_name": s.alias}})
	}
	actions = append(actions, map[string]any{"create_alias": map[string]any{"collection_name": name, "alias_name": s.alias}})
	if err := s.do(ctx, http.MethodPost, "/collections/aliases", map[string]any{"actions": actions}, nil); err != nil {
		s.dropCollection(name)
		return fmt.Errorf("swap alias: %w", err)
	}

	if previous != "" {
		s.dropCollection(previous)
		s.deleteInfo(strings.TrimPrefix(previous, s.alias+"_"))
	}
	s.logger.Info("qdrant generation published",
		zap.String("collection", name),
		zap.String("previous", previous),
		zap.Int("points", len(entries)),
	)
	return nil
}

// Clear removes the alias and its collection.
func (s *Storage) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, err := s.aliasTarget(ctx)
	if err != nil || target == "" {
		return err
	}
	actions := []map[string]any{{"delete_alias": map[string]any{"alias_name": s.alias}}}
	if err := s.do(ctx, http.MethodPost, "/collections/aliases", map[string]any{"actions": actions}, nil); err != nil {
		return fmt.Errorf("delete alias: %w", err)
	}
	s.dropCollection(target)
	s.deleteInfo(strings.TrimPrefix(target, s.alias+"_"))
	return nil
}

// Search queries the alias and re-sorts so equal scores keep insertion order.
// The server cuts ties at the k-th score arbitrarily, so when a full page
// comes back every point scoring at least the k-th score is fetched before
// ranking and trimming to k.
func (s *Storage) Search(ctx context.Context, query domain.Vector, k int) ([]domain.SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", domain.ErrInvalidArgument, k)
	}
	hits, err := s.search(ctx, query, k, nil)
	if errors.Is(err, errNotFound) {
		return []domain.SearchResult{}, nil
	}
	if err != nil {
		return nil, err
	}
	if len(hits) == k {
		threshold := hits[k-1].Score
		for limit := 2 * k; ; limit *= 2 {
			all, err := s.search(ctx, query, limit, &threshold)
			if errors.Is(err, errNotFound) {
				return []domain.SearchResult{}, nil
			}
			if err != nil {
				return nil, err
			}
			if len(all) < limit {
				if len(all) >= k {
					hits = all
				}
				break
			}
		}
	}

	results := make([]domain.SearchResult, 0, len(hits))
	seqs := make(map[string]uint64, len(hits))
	for _, r := range hits {
		if len(r.Vector) > 0 && len(r.Vector) != len(query) {
			return nil, fmt.Errorf("%w: query has %d dimensions, index has %d", domain.ErrDimensionMismatch, len(query), len(r.Vector))
		}
		p := r.Payload
		seqs[p.ChunkID] = p.Seq
		results = append(results, domain.SearchResult{
			Entry: domain.IndexEntry{
				Chunk: domain.Chunk{
					ID:         p.ChunkID,
					DocumentID: p.DocumentID,
					Source:     p.Source,
					Index:      p.Index,
					Start:      p.Start,
					End:        p.End,
					Text:       p.Text,
				},
				Vector: r.Vector,
			},
			Score: r.Score,
		})
	}
	vectorstore.SortResults(results, func(r domain.SearchResult) uint64 { return seqs[r.Entry.Chunk.ID] })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (s *Storage) search(ctx context.Context, query domain.Vector, limit int, threshold *float64) ([]scoredPoint, error) {
	req := map[string]any{
		"vector":       query,
		"limit":        limit,
		"with_payload": true,
		"with_vector":  true,
	}
	if threshold != nil {
		req["score_threshold"] = *threshold
	}
	var resp struct {
		Result []scoredPoint `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, "/collections/"+s.alias+"/points/search", req, &resp); err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// Size returns the number of points behind the alias.
func (s *Storage) Size(ctx context.Context) (int, error) {
	n, err := s.count(ctx, s.alias)
	if errors.Is(err, errNotFound) {
		return 0, nil
	}
	return n, err
}

// Info returns the metadata of the live generation.
func (s *Storage) Info(ctx context.Context) (domain.IndexInfo, error) {
	target, err := s.aliasTarget(ctx)
	if err != nil || target == "" {
		return domain.IndexInfo{}, err
	}
	return s.readInfo(ctx, target)
}

// Close releases idle connections.
func (s *Storage) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func toPoint(e domain.IndexEntry, seq uint64) point {
	return point{
		ID:     pointID(e.Chunk.ID),
		Vector: e.Vector,
		Payload: map[string]any{
			"seq":         seq,
			"chunk_id":    e.Chunk.ID,
			"document_id": e.Chunk.DocumentID,
			"source":      e.Chunk.Source,
			"index":       e.Chunk.Index,
			"start":       e.Chunk.Start,
			"end":         e.Chunk.End,
			"text":        e.Chunk.Text,
		},
	}
}

// aliasTarget returns the collection the alias points to, or "" if none.
func (s *Storage) aliasTarget(ctx context.Context) (string, error) {
	var resp struct {
		Result struct {
			Aliases []struct {
				AliasName      string `json:"alias_name"`
				CollectionName string `json:"collection_name"`
			} `json:"aliases"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodGet, "/aliases", nil, &resp); err != nil {
		return "", fmt.Errorf("list aliases: %w", err)
	}
	for _, a := range resp.Result.Aliases {
		if a.AliasName == s.alias {
			return a.CollectionName, nil
		}
	}
	return "", nil
}

func (s *Storage) createCollection(ctx context.Context, name string, dim int) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dim,
			"distance": "Cosine",
		},
	}
	if err := s.do(ctx, http.MethodPut, "/collections/"+name, body, nil); err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	return nil
}

func (s *Storage) ensureMetaCollection(ctx context.Context) error {
	err := s.do(ctx, http.MethodGet, "/collections/"+s.metaCollection(), nil, nil)
	if errors.Is(err, errNotFound) {
		return s.createCollection(ctx, s.metaCollection(), 1)
	}
	return err
}

// dropCollection is best-effort cleanup; failures are logged.
func (s *Storage) dropCollection(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.client.Timeout)
	defer cancel()
	if err := s.do(ctx, http.MethodDelete, "/collections/"+name, nil, nil); err != nil && !errors.Is(err, errNotFound) {
		s.logger.Warn("drop collection failed", zap.String("collection", name), zap.Error(err))
	}
}

func (s *Storage) putPoints(ctx context.Context, collection string, points []point) error {
	for start := 0; start < len(points); start += upsertBatch {
		end := min(start+upsertBatch, len(points))
		body := map[string]any{"points": points[start:end]}
		if err := s.do(ctx, http.MethodPut, "/collections/"+collection+"/points?wait=true", body, nil); err != nil {
			return fmt.Errorf("upsert points: %w", err)
		}
	}
	return nil
}

func (s *Storage) retrieveSeqs(ctx context.Context, collection string, ids []string) (map[string]uint64, error) {
	var resp struct {
		Result []struct {
			ID      string       `json:"id"`
			Payload pointPayload `json:"payload"`
		} `json:"result"`
	}
	body := map[string]any{"ids": ids, "with_payload": true}
	if err := s.do(ctx, http.MethodPost, "/collections/"+collection+"/points", body, &resp); err != nil {
		return nil, fmt.Errorf("retrieve points: %w", err)
	}
	out := make(map[string]uint64, len(resp.Result))
	for _, r := range resp.Result {
		out[r.ID] = r.Payload.Seq
	}
	return out, nil
}

func (s *Storage) count(ctx context.Context, collection string) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, "/collections/"+collection+"/points/count", map[string]any{"exact": true}, &resp); err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

func (s *Storage) writeInfo(ctx context.Context, info domain.IndexInfo) error {
	if err := s.ensureMetaCollection(ctx); err != nil {
		return err
	}
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	p := point{ID: pointID(info.Generation), Vector: domain.Vector{1}, Payload: map[string]any{"info": string(data)}}
	return s.putPoints(ctx, s.metaCollection(), []point{p})
}

func (s *Storage) readInfo(ctx context.Context, collection string) (domain.IndexInfo, error) {
	gen := strings.TrimPrefix(collection, s.alias+"_")
	var resp struct {
		Result struct {
			Payload metaPayload `json:"payload"`
		} `json:"result"`
	}
	err := s.do(ctx, http.MethodGet, "/collections/"+s.metaCollection()+"/points/"+pointID(gen), nil, &resp)
	if errors.Is(err, errNotFound) {
		return domain.IndexInfo{Generation: gen}, nil
	}
	if err != nil {
		return domain.IndexInfo{}, fmt.Errorf("read index info: %w", err)
	}
	var info domain.IndexInfo
	if err := json.Unmarshal([]byte(resp.Result.Payload.Info), &info); err != nil {
		return domain.IndexInfo{}, fmt.Errorf("decode index info: %w", err)
	}
	return info, nil
}

func (s *Storage) deleteInfo(gen string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.client.Timeout)
	defer cancel()
	body := map[string]any{"points": []string{pointID(gen)}}
	if err := s.do(ctx, http.MethodPost, "/collections/"+s.metaCollection()+"/points/delete?wait=true", body, nil); err != nil && !errors.Is(err, errNotFound) {
		s.logger.Warn("delete index info failed", zap.String("generation", gen), zap.Error(err))
	}
}

func (s *Storage) do(ctx context.Context, method, path string, body any, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.url+path, r)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("qdrant %s %s: %w", method, path, errNotFound)
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if resp.StatusCode == http.StatusBadRequest && bytes.Contains(msg, []byte("dimension error")) {
			return fmt.Errorf("qdrant %s %s: %w: %s", method, path, domain.ErrDimensionMismatch, bytes.TrimSpace(msg))
		}
		return fmt.Errorf("qdrant %s %s failed: %s: %s", method, path, resp.Status, bytes.TrimSpace(msg))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
