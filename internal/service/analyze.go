package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"legalrag/internal/domain"
	"legalrag/internal/llm"
	"legalrag/internal/prompt"
)

// AnalysisFallback is returned when the overview cannot be generated.
const AnalysisFallback = "### Error\n\nCould not generate analysis. The AI service failed."

// MinDocumentLength is the shortest document, in characters, that is analyzed.
const MinDocumentLength = 100

const analysisTemperature = 0.2

// Analyzer produces a structured plain-language overview of a document.
type Analyzer struct {
	generator llm.Generator
	timeout   time.Duration
	logger    *zap.Logger
}

// NewAnalyzer creates an Analyzer. A zero timeout leaves the call unbounded
// beyond the caller's context.
func NewAnalyzer(g llm.Generator, timeout time.Duration, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{generator: g, timeout: timeout, logger: logger}
}

// Analyze returns a Markdown overview of documentText. Documents shorter than
// MinDocumentLength are rejected with domain.ErrInvalidArgument. Generation
// failures are logged and produce AnalysisFallback.
func (a *Analyzer) Analyze(ctx context.Context, documentText string) (string, error) {
	if n := utf8.RuneCountInString(strings.TrimSpace(documentText)); n < MinDocumentLength {
		return "", fmt.Errorf("%w: document has %d characters, need at least %d", domain.ErrInvalidArgument, n, MinDocumentLength)
	}

	genCtx, cancel := withTimeout(ctx, a.timeout)
	defer cancel()
	out, err := a.generator.Generate(genCtx, prompt.Overview(documentText), llm.Options{Temperature: analysisTemperature})
	if err == nil && strings.TrimSpace(out) == "" {
		err = fmt.Errorf("%w: empty analysis", domain.ErrGenerationUnavailable)
	}
	if err != nil {
		a.logger.Error("analysis failed", zap.String("generator", a.generator.Name()), zap.Error(err))
		return AnalysisFallback, nil
	}
	return strings.TrimSpace(out), nil
}
