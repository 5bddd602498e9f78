// Package gemini provides an embedding client backed by the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"google.golang.org/genai"

	"legalrag/internal/domain"
	"legalrag/internal/embedding"
)

var _ embedding.Embedder = (*Client)(nil)

// DefaultModel is used when no model is configured.
const DefaultModel = "text-embedding-004"

// Config configures the Gemini embedding client.
type Config struct {
	APIKeyEnv string
	Model     string
	// Dimension requests a reduced output size when positive.
	Dimension int
}

// embedAPI is the subset of genai.Models used here.
type embedAPI interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// Client embeds text through the Gemini EmbedContent endpoint.
type Client struct {
	models    embedAPI
	model     string
	requested int32
	dimension atomic.Int64
}

// NewClient creates a Gemini embedding client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "GOOGLE_API_KEY"
	}
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("%w: missing API key in env %s", domain.ErrInvalidConfiguration, cfg.APIKeyEnv)
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: gemini client: %w", domain.ErrInvalidConfiguration, err)
	}
	return newClient(gc.Models, cfg), nil
}

func newClient(models embedAPI, cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	c := &Client{models: models, model: cfg.Model}
	if cfg.Dimension > 0 {
		c.requested = int32(cfg.Dimension)
		c.dimension.Store(int64(cfg.Dimension))
	}
	return c
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "gemini:" + c.model }

// Dimension returns the vector size, learned from the first response unless configured.
func (c *Client) Dimension() int { return int(c.dimension.Load()) }

// Embed returns an embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) (domain.Vector, error) {
	out, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch embeds all texts in a single EmbedContent call.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([]domain.Vector, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}
	var cfg *genai.EmbedContentConfig
	if c.requested > 0 {
		dim := c.requested
		cfg = &genai.EmbedContentConfig{OutputDimensionality: &dim}
	}

	resp, err := c.models.EmbedContent(ctx, c.model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: gemini embed: %w", domain.ErrEmbeddingUnavailable, err)
	}
	if resp == nil || len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: gemini returned an unexpected number of embeddings", domain.ErrEmbeddingUnavailable)
	}
	out := make([]domain.Vector, len(texts))
	for i, e := range resp.Embeddings {
		if e == nil || len(e.Values) == 0 {
			return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, errors.New("empty embedding"))
		}
		out[i] = domain.Vector(e.Values)
	}
	c.dimension.CompareAndSwap(0, int64(len(out[0])))
	return out, nil
}
