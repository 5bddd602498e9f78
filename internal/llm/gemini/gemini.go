// Package gemini provides a generation client backed by the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"google.golang.org/genai"

	"legalrag/internal/domain"
	"legalrag/internal/llm"
)

var _ llm.Generator = (*Client)(nil)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash"

// Config configures the Gemini generation client.
type Config struct {
	APIKeyEnv string
	Model     string
}

// generateAPI is the subset of genai.Models used here.
type generateAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client generates text with a Gemini model.
type Client struct {
	models generateAPI
	model  string
}

// NewClient creates a Gemini generation client.
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

func newClient(models generateAPI, cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	return &Client{models: models, model: cfg.Model}
}

// Name returns the provider and model.
func (c *Client) Name() string { return "gemini:" + c.model }

// Generate produces a completion for prompt.
func (c *Client) Generate(ctx context.Context, prompt string, opts llm.Options) (string, error) {
	temp := float32(opts.Temperature)
	cfg := &genai.GenerateContentConfig{Temperature: &temp}
	if opts.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(opts.MaxTokens)
	}

	resp, err := c.models.GenerateContent(ctx, c.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("%w: gemini generate: %w", domain.ErrGenerationUnavailable, err)
	}
	if resp == nil {
		return "", fmt.Errorf("%w: %w", domain.ErrGenerationUnavailable, errors.New("nil response"))
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("%w: %w", domain.ErrGenerationUnavailable, errors.New("empty response"))
	}
	return text, nil
}
