// Package service wires the ingestion and query pipelines.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"legalrag/internal/domain"
	"legalrag/internal/embedding"
	"legalrag/internal/loader"
	"legalrag/internal/vectorstore"
)

// Chunker splits a document into windows and reports its settings so they
// can be recorded with the index.
type Chunker interface {
	Chunk(doc domain.SourceDocument) []domain.Chunk
	ChunkSize() int
	Overlap() int
}

// IngestOptions tunes how chunks are submitted to the embedder.
type IngestOptions struct {
	Batch  embedding.BatchOptions
	Logger *zap.Logger
}

// Ingestor rebuilds the vector index from the knowledge base.
type Ingestor struct {
	loader   loader.Loader
	chunker  Chunker
	embedder embedding.Embedder
	index    vectorstore.Index
	batch    embedding.BatchOptions
	logger   *zap.Logger
	now      func() time.Time

	// mu serializes ingestion runs within a process.
	mu sync.Mutex
}

// NewIngestor creates an Ingestor.
func NewIngestor(l loader.Loader, c Chunker, e embedding.Embedder, idx vectorstore.Index, opts IngestOptions) *Ingestor {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	batch := opts.Batch
	if batch.Logger == nil {
		batch.Logger = logger
	}
	return &Ingestor{
		loader:   l,
		chunker:  c,
		embedder: e,
		index:    idx,
		batch:    batch,
		logger:   logger,
		now:      time.Now,
	}
}

// Ingest loads, chunks and embeds the knowledge base, then replaces the index
// contents in one step. On any error before the replace the existing index
// is left untouched.
func (s *Ingestor) Ingest(ctx context.Context) (domain.IngestionReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	started := s.now()
	report := domain.IngestionReport{Generation: uuid.NewString()}
	log := s.logger.With(zap.String("generation", report.Generation))

	docs, err := s.loader.LoadAll(ctx)
	if err != nil {
		return report, fmt.Errorf("load knowledge base: %w", err)
	}
	report.DocumentsLoaded = len(docs)
	log.Info("documents loaded", zap.Int("count", len(docs)))

	var chunks []domain.Chunk
	for _, d := range docs {
		cs := s.chunker.Chunk(d)
		if len(cs) == 0 {
			log.Warn("document has no text, skipping", zap.String("path", d.Path))
			continue
		}
		chunks = append(chunks, cs...)
	}
	report.ChunksProduced = len(chunks)
	if len(chunks) == 0 {
		return report, fmt.Errorf("%w: %d documents contained no text", domain.ErrNoDocumentsFound, len(docs))
	}
	log.Info("documents chunked",
		zap.Int("chunks", len(chunks)),
		zap.Int("chunk_size", s.chunker.ChunkSize()),
		zap.Int("overlap", s.chunker.Overlap()),
	)

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := embedding.BatchEmbed(ctx, s.embedder, texts, s.batch)
	if err != nil {
		return report, fmt.Errorf("embed chunks: %w", err)
	}
	report.ChunksEmbedded = len(vectors)

	entries := make([]domain.IndexEntry, len(chunks))
	for i := range chunks {
		entries[i] = domain.IndexEntry{Chunk: chunks[i], Vector: vectors[i]}
	}
	info := domain.IndexInfo{
		Generation:     report.Generation,
		ChunkSize:      s.chunker.ChunkSize(),
		Overlap:        s.chunker.Overlap(),
		Dimension:      len(vectors[0]),
		EmbeddingModel: s.embedder.Name(),
		CreatedAt:      started.UTC(),
	}
	if err := s.index.Replace(ctx, entries, info); err != nil {
		return report, fmt.Errorf("replace index: %w", err)
	}

	size, err := s.index.Size(ctx)
	if err != nil {
		return report, fmt.Errorf("index size: %w", err)
	}
	report.IndexSize = size
	report.Duration = s.now().Sub(started)
	log.Info("ingestion complete",
		zap.Int("documents", report.DocumentsLoaded),
		zap.Int("chunks", report.ChunksEmbedded),
		zap.Int("index_size", report.IndexSize),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}
