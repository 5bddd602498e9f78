package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"legalrag/internal/domain"
	"legalrag/internal/llm"
	"legalrag/internal/prompt"
)

// FallbackAnswer is returned to the user whenever an answer cannot be produced.
const FallbackAnswer = "I encountered an error trying to find the answer. Please try rephrasing your question."

// MinQuestionLength is the shortest question, in characters, that is answered.
const MinQuestionLength = 5

// AnswerTemperature keeps answers close to the supplied texts.
const AnswerTemperature = 0.3

// ContextRetriever returns reference snippets for a question.
type ContextRetriever interface {
	Retrieve(ctx context.Context, question string, k int) (domain.RetrievedContext, error)
}

// QueryOptions configures a QueryPipeline.
type QueryOptions struct {
	TopK            int
	RetrieveTimeout time.Duration
	GenerateTimeout time.Duration
	MaxTokens       int
	// Template overrides the default grounding contract.
	Template *prompt.Template
	// OnState, if set, is called on every state transition.
	OnState func(domain.QueryState)
	Logger  *zap.Logger
}

// QueryPipeline answers one question about a user's document. It holds no
// per-request state and is safe for concurrent use.
type QueryPipeline struct {
	retriever ContextRetriever
	generator llm.Generator
	template  prompt.Template
	opts      QueryOptions
	logger    *zap.Logger
}

// NewQueryPipeline creates a QueryPipeline.
func NewQueryPipeline(r ContextRetriever, g llm.Generator, opts QueryOptions) *QueryPipeline {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tmpl := prompt.NewTemplate(prompt.DefaultContract)
	if opts.Template != nil {
		tmpl = *opts.Template
	}
	return &QueryPipeline{retriever: r, generator: g, template: tmpl, opts: opts, logger: logger}
}

// Answer runs retrieval, composition and generation. It never returns an
// error: any failure yields FallbackAnswer in state Failed, and the cause is
// logged.
func (p *QueryPipeline) Answer(ctx context.Context, req domain.QueryRequest) domain.Answer {
	started := time.Now()
	state := domain.StateIdle
	transition := func(next domain.QueryState) {
		state = next
		if p.opts.OnState != nil {
			p.opts.OnState(next)
		}
	}
	fail := func(stage string, fields ...zap.Field) domain.Answer {
		from := state
		transition(domain.StateFailed)
		p.logger.Error("query failed", append(fields,
			zap.String("stage", stage),
			zap.Stringer("from", from),
			zap.Duration("elapsed", time.Since(started)),
		)...)
		return domain.Answer{Text: FallbackAnswer, State: domain.StateFailed, Fallback: true}
	}

	question := strings.TrimSpace(req.Question)
	if utf8.RuneCountInString(question) < MinQuestionLength {
		return fail("validate", zap.String("reason", "question too short"), zap.Int("length", utf8.RuneCountInString(question)))
	}
	if strings.TrimSpace(req.DocumentText) == "" {
		return fail("validate", zap.String("reason", "empty document"))
	}

	transition(domain.StateRetrieving)
	retrieveCtx, cancel := withTimeout(ctx, p.opts.RetrieveTimeout)
	snippets, err := p.retriever.Retrieve(retrieveCtx, question, p.opts.TopK)
	cancel()
	if err != nil {
		return fail("retrieve", zap.Error(err))
	}

	transition(domain.StateComposing)
	composed := p.template.Compose(req.DocumentText, question, snippets)

	transition(domain.StateGenerating)
	genCtx, cancel := withTimeout(ctx, p.opts.GenerateTimeout)
	text, err := p.generator.Generate(genCtx, composed.Text, llm.Options{
		Temperature: AnswerTemperature,
		MaxTokens:   p.opts.MaxTokens,
	})
	cancel()
	if err != nil {
		return fail("generate", zap.Error(err), zap.String("generator", p.generator.Name()))
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return fail("generate", zap.String("reason", "empty answer"), zap.String("generator", p.generator.Name()))
	}

	transition(domain.StateDone)
	p.logger.Info("query answered",
		zap.Int("snippets", composed.Snippets),
		zap.String("contract", composed.ContractVersion),
		zap.Duration("elapsed", time.Since(started)),
	)
	return domain.Answer{Text: text, State: domain.StateDone}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
