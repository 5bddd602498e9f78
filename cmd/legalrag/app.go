package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"legalrag/internal/chunker"
	"legalrag/internal/config"
	"legalrag/internal/domain"
	"legalrag/internal/embedding"
	embedgemini "legalrag/internal/embedding/gemini"
	"legalrag/internal/embedding/hashing"
	embedollama "legalrag/internal/embedding/ollama"
	embedopenai "legalrag/internal/embedding/openai"
	"legalrag/internal/llm"
	llmgemini "legalrag/internal/llm/gemini"
	llmollama "legalrag/internal/llm/ollama"
	llmopenai "legalrag/internal/llm/openai"
	"legalrag/internal/loader"
	"legalrag/internal/service"
	"legalrag/internal/vectorstore"
	"legalrag/internal/vectorstore/bolt"
	"legalrag/internal/vectorstore/memory"
	"legalrag/internal/vectorstore/qdrant"
)

// needs selects which collaborators Build constructs.
type needs uint8

const (
	needEmbedder needs = 1 << iota
	needGenerator
	needIndex
)

// App holds the collaborators one command runs with. Fields a command did
// not ask for are nil.
type App struct {
	Config    *config.AppConfig
	Logger    *zap.Logger
	Embedder  embedding.Embedder
	Generator llm.Generator
	Index     vectorstore.Index
}

// Build constructs the requested collaborators from cfg. The index is opened
// last so a failed Build holds no resources.
func Build(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger, n needs) (*App, error) {
	a := &App{Config: cfg, Logger: logger}
	var err error
	if n&needEmbedder != 0 {
		if a.Embedder, err = newEmbedder(ctx, cfg.Embedder); err != nil {
			return nil, fmt.Errorf("embedder: %w", err)
		}
	}
	if n&needGenerator != 0 {
		if a.Generator, err = newGenerator(ctx, cfg.LLM); err != nil {
			return nil, fmt.Errorf("generator: %w", err)
		}
	}
	if n&needIndex != 0 {
		if a.Index, err = openIndex(cfg.VectorStore, logger); err != nil {
			return nil, fmt.Errorf("vector store: %w", err)
		}
	}
	if a.Embedder != nil && a.Index != nil {
		a.checkIndexModel(ctx)
	}
	return a, nil
}

// Close releases the index, if one was opened.
func (a *App) Close() error {
	if a.Index == nil {
		return nil
	}
	return a.Index.Close()
}

func (a *App) checkIndexModel(ctx context.Context) {
	info, err := a.Index.Info(ctx)
	if err != nil || info.Generation == "" {
		return
	}
	if info.EmbeddingModel != a.Embedder.Name() {
		a.Logger.Warn("index was built with a different embedding model; re-run ingest",
			zap.String("index_model", info.EmbeddingModel),
			zap.String("configured_model", a.Embedder.Name()),
		)
	}
}

// Ingestor wires the knowledge-base loader and chunker to the index.
func (a *App) Ingestor() (*service.Ingestor, error) {
	ch, err := chunker.New(a.Config.Chunker.ChunkSize, a.Config.Chunker.Overlap)
	if err != nil {
		return nil, err
	}
	ld := loader.NewDirectoryLoader(a.Config.KnowledgeBase.Dir, a.Logger)
	return service.NewIngestor(ld, ch, a.Embedder, a.Index, service.IngestOptions{
		Batch: embedding.BatchOptions{
			BatchSize:     a.Config.Ingest.BatchSize,
			MaxAttempts:   a.Config.Ingest.MaxAttempts,
			RatePerSecond: a.Config.Ingest.RatePerSecond,
		},
		Logger: a.Logger,
	}), nil
}

// QueryPipeline wires retrieval and generation for document questions.
func (a *App) QueryPipeline(onState func(domain.QueryState)) *service.QueryPipeline {
	r := a.Config.Retrieval
	retriever := service.NewRetriever(a.Embedder, a.Index, service.RetrieverOptions{
		EmbedTimeout: config.Seconds(r.EmbedTimeoutSecs),
		Logger:       a.Logger,
	})
	return service.NewQueryPipeline(retriever, a.Generator, service.QueryOptions{
		TopK:            r.TopK,
		RetrieveTimeout: config.Seconds(r.RetrieveTimeoutSecs),
		GenerateTimeout: config.Seconds(r.GenerateTimeoutSecs),
		MaxTokens:       a.Config.LLM.MaxTokens,
		OnState:         onState,
		Logger:          a.Logger,
	})
}

// Analyzer wires the document overview.
func (a *App) Analyzer() *service.Analyzer {
	return service.NewAnalyzer(a.Generator, config.Seconds(a.Config.Retrieval.GenerateTimeoutSecs), a.Logger)
}

func newEmbedder(ctx context.Context, cfg config.EmbedderConfig) (embedding.Embedder, error) {
	switch cfg.Type {
	case "hashing":
		return hashing.NewEmbedder(cfg.Hashing.Dimension), nil
	case "openai":
		o := cfg.OpenAI
		return embedopenai.NewClient(embedopenai.Config{
			BaseURL:    o.BaseURL,
			APIKeyEnv:  o.APIKeyEnv,
			Model:      o.Model,
			Timeout:    config.Seconds(o.TimeoutSecs),
			MaxRetries: o.MaxRetries,
			Dimension:  o.Dimension,
		})
	case "ollama":
		o := cfg.Ollama
		return embedollama.NewClient(embedollama.Config{
			BaseURL: o.BaseURL,
			Model:   o.Model,
			Timeout: config.Seconds(o.TimeoutSecs),
		}), nil
	case "gemini":
		g := cfg.Gemini
		return embedgemini.NewClient(ctx, embedgemini.Config{
			APIKeyEnv: g.APIKeyEnv,
			Model:     g.Model,
			Dimension: g.Dimension,
		})
	default:
		return nil, fmt.Errorf("%w: unknown embedder %q", domain.ErrInvalidConfiguration, cfg.Type)
	}
}

func newGenerator(ctx context.Context, cfg config.LLMConfig) (llm.Generator, error) {
	switch cfg.Type {
	case "openai":
		o := cfg.OpenAI
		return llmopenai.NewClient(llmopenai.Config{
			BaseURL:   o.BaseURL,
			APIKeyEnv: o.APIKeyEnv,
			Model:     o.Model,
			Timeout:   config.Seconds(o.TimeoutSecs),
		})
	case "ollama":
		o := cfg.Ollama
		return llmollama.NewClient(llmollama.Config{
			BaseURL: o.BaseURL,
			Model:   o.Model,
			Timeout: config.Seconds(o.TimeoutSecs),
		}), nil
	case "gemini":
		return llmgemini.NewClient(ctx, llmgemini.Config{
			APIKeyEnv: cfg.Gemini.APIKeyEnv,
			Model:     cfg.Gemini.Model,
		})
	default:
		return nil, fmt.Errorf("%w: unknown llm %q", domain.ErrInvalidConfiguration, cfg.Type)
	}
}

func openIndex(cfg config.VectorStoreConfig, logger *zap.Logger) (vectorstore.Index, error) {
	switch cfg.Type {
	case "memory":
		logger.Warn("memory vector store does not persist; ingested data is lost on exit")
		return memory.New(), nil
	case "bolt":
		idx, err := bolt.Open(cfg.Bolt.Path, bolt.Options{
			Timeout: config.Seconds(cfg.Bolt.LockTimeoutSecs),
			Logger:  logger,
		})
		if err != nil {
			return nil, err
		}
		return idx, nil
	case "qdrant":
		q := cfg.Qdrant
		s, err := qdrant.NewStorage(qdrant.Config{
			URL:        q.URL,
			APIKey:     q.APIKey,
			Collection: q.Collection,
			Timeout:    config.Seconds(q.TimeoutSecs),
			Logger:     logger,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: unknown vector store %q", domain.ErrInvalidConfiguration, cfg.Type)
	}
}

// readUserDocument loads the document a question is about.
func readUserDocument(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: --document is required", domain.ErrInvalidArgument)
	}
	text, err := loader.ReadDocument(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: document %s does not exist", domain.ErrInvalidArgument, path)
		}
		return "", fmt.Errorf("read document %s: %w", path, err)
	}
	return text, nil
}
