package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legalrag/internal/domain"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "hashing", cfg.Embedder.Type)
	assert.Equal(t, 512, cfg.Embedder.Hashing.Dimension)
	assert.Equal(t, "bolt", cfg.VectorStore.Type)
	assert.NotEmpty(t, cfg.VectorStore.Bolt.Path)
	assert.Equal(t, 1000, cfg.Chunker.ChunkSize)
	assert.Equal(t, 200, cfg.Chunker.Overlap)
	assert.Equal(t, 3, cfg.Retrieval.TopK)
	require.NoError(t, cfg.Validate())
}

func TestLoad_AppliesSectionDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
knowledge_base:
  dir: /srv/statutes
chunker:
  chunk_size: 500
  overlap: 50
embedder:
  type: openai
llm:
  type: gemini
vector_store:
  type: qdrant
  qdrant:
    collection: leases
retrieval:
  top_k: 5
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/statutes", cfg.KnowledgeBase.Dir)
	assert.Equal(t, 500, cfg.Chunker.ChunkSize)
	assert.Equal(t, 50, cfg.Chunker.Overlap)
	require.NotNil(t, cfg.Embedder.OpenAI)
	assert.Equal(t, "OPENAI_API_KEY", cfg.Embedder.OpenAI.APIKeyEnv)
	assert.Equal(t, "text-embedding-3-small", cfg.Embedder.OpenAI.Model)
	require.NotNil(t, cfg.LLM.Gemini)
	assert.Equal(t, "gemini-2.5-flash", cfg.LLM.Gemini.Model)
	assert.Equal(t, "http://localhost:6333", cfg.VectorStore.Qdrant.URL)
	assert.Equal(t, "leases", cfg.VectorStore.Qdrant.Collection)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.Nil(t, cfg.Embedder.Hashing)
	require.NoError(t, cfg.Validate())
}

func TestLoad_MinimalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("knowledge_base: {dir: /srv/statutes}\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "hashing", cfg.Embedder.Type)
	require.NotNil(t, cfg.Embedder.Hashing)
	assert.Equal(t, "ollama", cfg.LLM.Type)
	require.NotNil(t, cfg.LLM.Ollama)
	assert.Equal(t, "http://localhost:11434", cfg.LLM.Ollama.BaseURL)
	assert.Equal(t, "bolt", cfg.VectorStore.Type)
	require.NotNil(t, cfg.VectorStore.Bolt)
	assert.NotEmpty(t, cfg.VectorStore.Bolt.Path)
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunker: [unclosed"), 0o644))

	_, err := Load(path)
	assert.True(t, errors.Is(err, domain.ErrInvalidConfiguration))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := defaultConfig()
	cfg.Retrieval.TopK = 7
	cfg.Log.Format = "json"

	require.NoError(t, Save(path, cfg))
	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AppConfig)
	}{
		{"missing knowledge base", func(c *AppConfig) { c.KnowledgeBase.Dir = "" }},
		{"zero chunk size", func(c *AppConfig) { c.Chunker.ChunkSize = 0 }},
		{"negative overlap", func(c *AppConfig) { c.Chunker.Overlap = -1 }},
		{"overlap not smaller than size", func(c *AppConfig) { c.Chunker.Overlap = c.Chunker.ChunkSize }},
		{"unknown embedder", func(c *AppConfig) { c.Embedder.Type = "word2vec" }},
		{"unknown llm", func(c *AppConfig) { c.LLM.Type = "eliza" }},
		{"unknown store", func(c *AppConfig) { c.VectorStore.Type = "faiss" }},
		{"bolt without path", func(c *AppConfig) { c.VectorStore.Bolt.Path = "" }},
		{"qdrant without settings", func(c *AppConfig) { c.VectorStore.Type = "qdrant" }},
		{"zero top k", func(c *AppConfig) { c.Retrieval.TopK = 0 }},
		{"zero batch size", func(c *AppConfig) { c.Ingest.BatchSize = 0 }},
		{"negative rate", func(c *AppConfig) { c.Ingest.RatePerSecond = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			assert.True(t, errors.Is(err, domain.ErrInvalidConfiguration), "got %v", err)
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := defaultConfig()
	cfg.Chunker.ChunkSize = 0
	cfg.Retrieval.TopK = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk_size")
	assert.Contains(t, err.Error(), "top_k")
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("LEGALRAG_TEST_KEY=from-file\n"), 0o600))
	t.Setenv("LEGALRAG_TEST_KEY", "")
	require.NoError(t, os.Unsetenv("LEGALRAG_TEST_KEY"))

	cfg := &AppConfig{EnvFile: envPath}
	require.NoError(t, cfg.LoadEnv())
	assert.Equal(t, "from-file", os.Getenv("LEGALRAG_TEST_KEY"))
}

func TestLoadEnv_ExistingVariableWins(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("LEGALRAG_TEST_KEY=from-file\n"), 0o600))
	t.Setenv("LEGALRAG_TEST_KEY", "from-shell")

	cfg := &AppConfig{EnvFile: envPath}
	require.NoError(t, cfg.LoadEnv())
	assert.Equal(t, "from-shell", os.Getenv("LEGALRAG_TEST_KEY"))
}

func TestLoadEnv_MissingFile(t *testing.T) {
	cfg := &AppConfig{EnvFile: filepath.Join(t.TempDir(), ".env")}
	assert.NoError(t, cfg.LoadEnv())
	assert.NoError(t, (&AppConfig{}).LoadEnv())
}
