package gemini

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"legalrag/internal/domain"
	"legalrag/internal/llm"
)

type fakeModels struct {
	gotModel  string
	gotConfig *genai.GenerateContentConfig
	gotPrompt string
	resp      *genai.GenerateContentResponse
	err       error
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.gotModel = model
	f.gotConfig = config
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		f.gotPrompt = contents[0].Parts[0].Text
	}
	return f.resp, f.err
}

func textResponse(s string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{{Text: s}}},
		}},
	}
}

func TestGenerate(t *testing.T) {
	fake := &fakeModels{resp: textResponse(" The deposit is refunded within 30 days. ")}
	c := newClient(fake, Config{})

	out, err := c.Generate(context.Background(), "question", llm.Options{Temperature: 0.3, MaxTokens: 256})
	require.NoError(t, err)
	assert.Equal(t, "The deposit is refunded within 30 days.", out)
	assert.Equal(t, DefaultModel, fake.gotModel)
	assert.Equal(t, "question", fake.gotPrompt)
	require.NotNil(t, fake.gotConfig)
	require.NotNil(t, fake.gotConfig.Temperature)
	assert.InDelta(t, 0.3, *fake.gotConfig.Temperature, 1e-6)
	assert.Equal(t, int32(256), fake.gotConfig.MaxOutputTokens)
	assert.Equal(t, "gemini:"+DefaultModel, c.Name())
}

func TestGenerate_Failures(t *testing.T) {
	tests := []struct {
		name string
		fake *fakeModels
	}{
		{"upstream error", &fakeModels{err: errors.New("quota exceeded")}},
		{"nil response", &fakeModels{}},
		{"blank text", &fakeModels{resp: textResponse("   ")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newClient(tt.fake, Config{Model: "m"}).Generate(context.Background(), "p", llm.Options{})
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrGenerationUnavailable))
		})
	}
}

func TestNewClient_MissingKey(t *testing.T) {
	t.Setenv("NO_GEMINI_KEY", "")
	_, err := NewClient(context.Background(), Config{APIKeyEnv: "NO_GEMINI_KEY"})
	assert.True(t, errors.Is(err, domain.ErrInvalidConfiguration))
}
