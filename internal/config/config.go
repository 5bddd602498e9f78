package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"legalrag/internal/domain"
)

// KnowledgeBaseConfig locates the reference documents to ingest.
type KnowledgeBaseConfig struct {
	Dir string `yaml:"dir"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	ChunkSize int `yaml:"chunk_size"`
	Overlap   int `yaml:"overlap"`
}

// HashingEmbedderConfig configures the offline feature-hashing embedder.
type HashingEmbedderConfig struct {
	Dimension int `yaml:"dimension"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries"`
	Dimension   int    `yaml:"dimension,omitempty"`
}

// OllamaConfig holds connection details for a local Ollama server.
type OllamaConfig struct {
	BaseURL     string `yaml:"base_url"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// GeminiConfig selects a Gemini model. The key is read from APIKeyEnv.
type GeminiConfig struct {
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension,omitempty"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type    string                 `yaml:"type"`
	Hashing *HashingEmbedderConfig `yaml:"hashing,omitempty"`
	OpenAI  *OpenAIEmbedderConfig  `yaml:"openai,omitempty"`
	Ollama  *OllamaConfig          `yaml:"ollama,omitempty"`
	Gemini  *GeminiConfig          `yaml:"gemini,omitempty"`
}

// OpenAILLMConfig holds configuration for an OpenAI-compatible chat endpoint.
type OpenAILLMConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// LLMConfig selects and configures the generation client.
type LLMConfig struct {
	Type      string           `yaml:"type"`
	MaxTokens int              `yaml:"max_tokens,omitempty"`
	OpenAI    *OpenAILLMConfig `yaml:"openai,omitempty"`
	Ollama    *OllamaConfig    `yaml:"ollama,omitempty"`
	Gemini    *GeminiConfig    `yaml:"gemini,omitempty"`
}

// BoltConfig locates the on-disk index file.
type BoltConfig struct {
	Path            string `yaml:"path"`
	LockTimeoutSecs int    `yaml:"lock_timeout_secs"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type   string        `yaml:"type"`
	Bolt   *BoltConfig   `yaml:"bolt,omitempty"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// RetrievalConfig tunes the query pipeline.
type RetrievalConfig struct {
	TopK                int `yaml:"top_k"`
	EmbedTimeoutSecs    int `yaml:"embed_timeout_secs"`
	RetrieveTimeoutSecs int `yaml:"retrieve_timeout_secs"`
	GenerateTimeoutSecs int `yaml:"generate_timeout_secs"`
}

// IngestConfig tunes how the knowledge base is embedded.
type IngestConfig struct {
	BatchSize     int     `yaml:"batch_size"`
	MaxAttempts   int     `yaml:"max_attempts"`
	RatePerSecond float64 `yaml:"rate_per_second"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	// File, when set, receives log output instead of stderr.
	File string `yaml:"file,omitempty"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	EnvFile       string              `yaml:"env_file"`
	KnowledgeBase KnowledgeBaseConfig `yaml:"knowledge_base"`
	Chunker       ChunkerConfig       `yaml:"chunker"`
	Embedder      EmbedderConfig      `yaml:"embedder"`
	LLM           LLMConfig           `yaml:"llm"`
	VectorStore   VectorStoreConfig   `yaml:"vector_store"`
	Retrieval     RetrievalConfig     `yaml:"retrieval"`
	Ingest        IngestConfig        `yaml:"ingest"`
	Log           LogConfig           `yaml:"log"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", domain.ErrInvalidConfiguration, path, err)
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/legalrag/config.yaml.
// If neither exists, it writes defaults to ~/.config/legalrag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadEnv loads KEY=value pairs from cfg.EnvFile into the process
// environment. Variables that are already set win. A missing file is not an
// error.
func (cfg *AppConfig) LoadEnv() error {
	if cfg.EnvFile == "" {
		return nil
	}
	if _, err := os.Stat(cfg.EnvFile); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(cfg.EnvFile); err != nil {
		return fmt.Errorf("%w: env file %s: %w", domain.ErrInvalidConfiguration, cfg.EnvFile, err)
	}
	return nil
}

// Validate reports every setting that cannot work. The returned error wraps
// domain.ErrInvalidConfiguration.
func (cfg *AppConfig) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(cfg.KnowledgeBase.Dir != "", "knowledge_base.dir is required")
	check(cfg.Chunker.ChunkSize > 0, "chunker.chunk_size must be positive, got %d", cfg.Chunker.ChunkSize)
	check(cfg.Chunker.Overlap > 0, "chunker.overlap must be positive, got %d", cfg.Chunker.Overlap)
	check(cfg.Chunker.Overlap < cfg.Chunker.ChunkSize, "chunker.overlap (%d) must be smaller than chunk_size (%d)", cfg.Chunker.Overlap, cfg.Chunker.ChunkSize)

	switch cfg.Embedder.Type {
	case "hashing", "openai", "ollama", "gemini":
	default:
		errs = append(errs, fmt.Errorf("unknown embedder.type %q", cfg.Embedder.Type))
	}
	switch cfg.LLM.Type {
	case "openai", "ollama", "gemini":
	default:
		errs = append(errs, fmt.Errorf("unknown llm.type %q", cfg.LLM.Type))
	}
	switch cfg.VectorStore.Type {
	case "memory":
	case "bolt":
		check(cfg.VectorStore.Bolt != nil && cfg.VectorStore.Bolt.Path != "", "vector_store.bolt.path is required")
	case "qdrant":
		q := cfg.VectorStore.Qdrant
		check(q != nil && q.URL != "" && q.Collection != "", "vector_store.qdrant.url and collection are required")
	default:
		errs = append(errs, fmt.Errorf("unknown vector_store.type %q", cfg.VectorStore.Type))
	}

	check(cfg.Retrieval.TopK > 0, "retrieval.top_k must be positive, got %d", cfg.Retrieval.TopK)
	check(cfg.Ingest.BatchSize > 0, "ingest.batch_size must be positive, got %d", cfg.Ingest.BatchSize)
	check(cfg.Ingest.MaxAttempts > 0, "ingest.max_attempts must be positive, got %d", cfg.Ingest.MaxAttempts)
	check(cfg.Ingest.RatePerSecond >= 0, "ingest.rate_per_second must not be negative")

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", domain.ErrInvalidConfiguration, errors.Join(errs...))
	}
	return nil
}

// Seconds converts a *_secs setting to a duration.
func Seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "legalrag", "config.yaml"), nil
}

// DefaultChatLogPath is where the chat command logs when log.file is unset,
// since the terminal is taken by the chat screen.
func DefaultChatLogPath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "legalrag", "chat.log")
}

func defaultIndexPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("vector_db", "legalrag.db")
	}
	return filepath.Join(home, ".local", "share", "legalrag", "index.db")
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		EnvFile:       ".env",
		KnowledgeBase: KnowledgeBaseConfig{Dir: "knowledge_base"},
		Log:           LogConfig{Level: "info", Format: "console"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "hashing"
	}
	if cfg.LLM.Type == "" {
		cfg.LLM.Type = "ollama"
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "bolt"
	}
	if cfg.Chunker.ChunkSize == 0 {
		cfg.Chunker.ChunkSize = 1000
	}
	if cfg.Chunker.Overlap == 0 {
		cfg.Chunker.Overlap = 200
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 3
	}
	if cfg.Retrieval.EmbedTimeoutSecs == 0 {
		cfg.Retrieval.EmbedTimeoutSecs = 30
	}
	if cfg.Retrieval.RetrieveTimeoutSecs == 0 {
		cfg.Retrieval.RetrieveTimeoutSecs = 45
	}
	if cfg.Retrieval.GenerateTimeoutSecs == 0 {
		cfg.Retrieval.GenerateTimeoutSecs = 120
	}
	if cfg.Ingest.BatchSize == 0 {
		cfg.Ingest.BatchSize = 32
	}
	if cfg.Ingest.MaxAttempts == 0 {
		cfg.Ingest.MaxAttempts = 3
	}

	switch cfg.Embedder.Type {
	case "hashing":
		if cfg.Embedder.Hashing == nil {
			cfg.Embedder.Hashing = &HashingEmbedderConfig{}
		}
		if cfg.Embedder.Hashing.Dimension == 0 {
			cfg.Embedder.Hashing.Dimension = 512
		}
	case "openai":
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		o := cfg.Embedder.OpenAI
		if o.BaseURL == "" {
			o.BaseURL = "https://api.openai.com/v1"
		}
		if o.APIKeyEnv == "" {
			o.APIKeyEnv = "OPENAI_API_KEY"
		}
		if o.Model == "" {
			o.Model = "text-embedding-3-small"
		}
		if o.TimeoutSecs == 0 {
			o.TimeoutSecs = 30
		}
		if o.MaxRetries == 0 {
			o.MaxRetries = 3
		}
	case "ollama":
		if cfg.Embedder.Ollama == nil {
			cfg.Embedder.Ollama = &OllamaConfig{}
		}
		defaultOllama(cfg.Embedder.Ollama, "nomic-embed-text", 30)
	case "gemini":
		if cfg.Embedder.Gemini == nil {
			cfg.Embedder.Gemini = &GeminiConfig{}
		}
		defaultGemini(cfg.Embedder.Gemini, "text-embedding-004")
	}

	switch cfg.LLM.Type {
	case "openai":
		if cfg.LLM.OpenAI == nil {
			cfg.LLM.OpenAI = &OpenAILLMConfig{}
		}
		o := cfg.LLM.OpenAI
		if o.BaseURL == "" {
			o.BaseURL = "https://api.openai.com/v1"
		}
		if o.APIKeyEnv == "" {
			o.APIKeyEnv = "OPENAI_API_KEY"
		}
		if o.Model == "" {
			o.Model = "gpt-4o-mini"
		}
		if o.TimeoutSecs == 0 {
			o.TimeoutSecs = 120
		}
	case "ollama":
		if cfg.LLM.Ollama == nil {
			cfg.LLM.Ollama = &OllamaConfig{}
		}
		defaultOllama(cfg.LLM.Ollama, "llama3.2", 120)
	case "gemini":
		if cfg.LLM.Gemini == nil {
			cfg.LLM.Gemini = &GeminiConfig{}
		}
		defaultGemini(cfg.LLM.Gemini, "gemini-2.5-flash")
	}

	switch cfg.VectorStore.Type {
	case "bolt":
		if cfg.VectorStore.Bolt == nil {
			cfg.VectorStore.Bolt = &BoltConfig{}
		}
		if cfg.VectorStore.Bolt.Path == "" {
			cfg.VectorStore.Bolt.Path = defaultIndexPath()
		}
		if cfg.VectorStore.Bolt.LockTimeoutSecs == 0 {
			cfg.VectorStore.Bolt.LockTimeoutSecs = 5
		}
	case "qdrant":
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{}
		}
		q := cfg.VectorStore.Qdrant
		if q.URL == "" {
			q.URL = "http://localhost:6333"
		}
		if q.Collection == "" {
			q.Collection = "legal_knowledge"
		}
		if q.TimeoutSecs == 0 {
			q.TimeoutSecs = 15
		}
	}
}

func defaultOllama(o *OllamaConfig, model string, timeoutSecs int) {
	if o.BaseURL == "" {
		o.BaseURL = "http://localhost:11434"
	}
	if o.Model == "" {
		o.Model = model
	}
	if o.TimeoutSecs == 0 {
		o.TimeoutSecs = timeoutSecs
	}
}

func defaultGemini(g *GeminiConfig, model string) {
	if g.APIKeyEnv == "" {
		g.APIKeyEnv = "GOOGLE_API_KEY"
	}
	if g.Model == "" {
		g.Model = model
	}
}
