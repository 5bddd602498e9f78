package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"legalrag/internal/domain"
	"legalrag/internal/llm"
	"legalrag/internal/prompt"
)

type staticLoader struct {
	mu    sync.Mutex
	docs  []domain.SourceDocument
	err   error
	calls int
}

func (l *staticLoader) LoadAll(context.Context) ([]domain.SourceDocument, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	return l.docs, nil
}

func (l *staticLoader) set(docs []domain.SourceDocument) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.docs = docs
}

// failingEmbedder fails every call.
type failingEmbedder struct{ err error }

func (f failingEmbedder) Name() string   { return "failing" }
func (f failingEmbedder) Dimension() int { return 0 }
func (f failingEmbedder) Embed(context.Context, string) (domain.Vector, error) {
	return nil, f.err
}
func (f failingEmbedder) EmbedBatch(context.Context, []string) ([]domain.Vector, error) {
	return nil, f.err
}

// scriptedGenerator records prompts and answers through reply.
type scriptedGenerator struct {
	mu      sync.Mutex
	prompts []string
	opts    []llm.Options
	reply   func(ctx context.Context, prompt string) (string, error)
}

func (g *scriptedGenerator) Name() string { return "scripted" }

func (g *scriptedGenerator) Generate(ctx context.Context, prompt string, opts llm.Options) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.opts = append(g.opts, opts)
	g.mu.Unlock()
	return g.reply(ctx, prompt)
}

func (g *scriptedGenerator) lastPrompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.prompts) == 0 {
		return ""
	}
	return g.prompts[len(g.prompts)-1]
}

func replyWith(text string) func(context.Context, string) (string, error) {
	return func(context.Context, string) (string, error) { return text, nil }
}

func replyErr(err error) func(context.Context, string) (string, error) {
	return func(context.Context, string) (string, error) { return "", err }
}

// sectionBody extracts the body of a prompt section.
func sectionBody(text, heading string) string {
	marker := "\n---\n" + heading + ":\n"
	i := strings.Index(text, marker)
	if i < 0 {
		return ""
	}
	rest := text[i+len(marker):]
	ends := []string{
		"\n---\n" + prompt.DocumentHeading + ":",
		"\n---\n" + prompt.ContextHeading + ":",
		"\n---\n" + prompt.QuestionHeading + ":",
		"\n---\n\nAnswer:",
	}
	for _, end := range ends {
		if j := strings.Index(rest, end); j >= 0 {
			rest = rest[:j]
		}
	}
	return rest
}

// retrieverFunc adapts a function to ContextRetriever.
type retrieverFunc func(ctx context.Context, question string, k int) (domain.RetrievedContext, error)

func (f retrieverFunc) Retrieve(ctx context.Context, question string, k int) (domain.RetrievedContext, error) {
	return f(ctx, question, k)
}

var errUpstream = errors.New("upstream unavailable")
