package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"legalrag/internal/domain"
	"legalrag/internal/embedding/hashing"
	"legalrag/internal/prompt"
	"legalrag/internal/vectorstore/memory"
)

const leaseWithDeposit = `RESIDENTIAL LEASE AGREEMENT
1. Term. The tenancy begins on 1 March 2024 and continues month to month.
2. Rent. The tenant pays 1,200 per month on the first day of each month.
3. Deposit. The landlord will refund the security deposit within 60 days after the tenant moves out.`

const leaseWithoutNotice = `RESIDENTIAL LEASE AGREEMENT
1. Term. The tenancy begins on 1 March 2024 and continues month to month.
2. Rent. The tenant pays 1,200 per month on the first day of each month.
3. Pets. No pets are allowed without written consent.`

// newIndexedPipeline ingests the test knowledge base and returns a pipeline
// over it using gen for generation.
func newIndexedPipeline(t *testing.T, gen *scriptedGenerator, opts QueryOptions) *QueryPipeline {
	t.Helper()
	idx := memory.New()
	emb := hashing.NewEmbedder(0)
	_, err := newTestIngestor(t, &staticLoader{docs: knowledgeBase()}, emb, idx, nil).Ingest(context.Background())
	require.NoError(t, err)
	return NewQueryPipeline(NewRetriever(emb, idx, RetrieverOptions{}), gen, opts)
}

func TestAnswer_DocumentConflictsWithStatute(t *testing.T) {
	gen := &scriptedGenerator{reply: func(_ context.Context, p string) (string, error) {
		doc := sectionBody(p, prompt.DocumentHeading)
		refs := sectionBody(p, prompt.ContextHeading)
		if strings.Contains(doc, "within 60 days") && strings.Contains(refs, "within 30 days") {
			return "Your document states the deposit is refunded within 60 days, while the standard legal position is 30 days.", nil
		}
		return "I cannot answer from the supplied texts.", nil
	}}
	p := newIndexedPipeline(t, gen, QueryOptions{})

	ans := p.Answer(context.Background(), domain.QueryRequest{
		DocumentText: leaseWithDeposit,
		Question:     "When must the landlord return my security deposit?",
	})
	assert.Equal(t, domain.StateDone, ans.State)
	assert.False(t, ans.Fallback)
	assert.Contains(t, ans.Text, "60 days")
	assert.Contains(t, ans.Text, "30 days")

	sent := gen.lastPrompt()
	refs := sectionBody(sent, prompt.ContextHeading)
	assert.True(t, strings.HasPrefix(refs, depositStatute), "deposit statute should rank first:\n%s", refs)
	assert.Equal(t, DefaultTopK, strings.Count(refs, "Residential Tenancies Act"))
	assert.Contains(t, sectionBody(sent, prompt.DocumentHeading), leaseWithDeposit)
	assert.InDelta(t, AnswerTemperature, gen.opts[0].Temperature, 1e-9)
}

func TestAnswer_DocumentSilent(t *testing.T) {
	gen := &scriptedGenerator{reply: func(_ context.Context, p string) (string, error) {
		doc := sectionBody(p, prompt.DocumentHeading)
		refs := sectionBody(p, prompt.ContextHeading)
		if !strings.Contains(strings.ToLower(doc), "notice") && strings.Contains(refs, "notice of termination") {
			return "Your document is silent on how much notice is required. The legal context requires written notice at least 60 days before the end date.", nil
		}
		return "I cannot answer from the supplied texts.", nil
	}}
	p := newIndexedPipeline(t, gen, QueryOptions{})

	ans := p.Answer(context.Background(), domain.QueryRequest{
		DocumentText: leaseWithoutNotice,
		Question:     "How much notice of termination must the landlord give?",
	})
	assert.Equal(t, domain.StateDone, ans.State)
	assert.Contains(t, ans.Text, "silent")
	assert.Contains(t, ans.Text, "60 days")
}

func TestAnswer_StateTransitions(t *testing.T) {
	var mu sync.Mutex
	var states []domain.QueryState
	record := func(s domain.QueryState) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, s)
	}
	retr := retrieverFunc(func(context.Context, string, int) (domain.RetrievedContext, error) {
		return domain.RetrievedContext{"snippet"}, nil
	})

	p := NewQueryPipeline(retr, &scriptedGenerator{reply: replyWith("answer")}, QueryOptions{OnState: record})
	ans := p.Answer(context.Background(), domain.QueryRequest{DocumentText: "doc", Question: "what is this?"})
	assert.Equal(t, "answer", ans.Text)
	assert.Equal(t, []domain.QueryState{domain.StateRetrieving, domain.StateComposing, domain.StateGenerating, domain.StateDone}, states)

	states = nil
	p = NewQueryPipeline(retr, &scriptedGenerator{reply: replyErr(errUpstream)}, QueryOptions{OnState: record})
	p.Answer(context.Background(), domain.QueryRequest{DocumentText: "doc", Question: "what is this?"})
	assert.Equal(t, []domain.QueryState{domain.StateRetrieving, domain.StateComposing, domain.StateGenerating, domain.StateFailed}, states)
}

func TestAnswer_EmbeddingFailureFallsBack(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	emb := failingEmbedder{err: fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, errUpstream)}
	gen := &scriptedGenerator{reply: replyWith("should not be called")}
	p := NewQueryPipeline(NewRetriever(emb, memory.New(), RetrieverOptions{}), gen, QueryOptions{Logger: zap.New(core)})

	ans := p.Answer(context.Background(), domain.QueryRequest{DocumentText: leaseWithDeposit, Question: "When is the deposit returned?"})
	assert.Equal(t, FallbackAnswer, ans.Text)
	assert.Equal(t, domain.StateFailed, ans.State)
	assert.True(t, ans.Fallback)
	assert.Empty(t, gen.prompts)

	failed := logs.FilterMessage("query failed").All()
	require.Len(t, failed, 1)
	fields := failed[0].ContextMap()
	assert.Equal(t, "retrieve", fields["stage"])
	assert.Equal(t, "retrieving", fields["from"])
	assert.Contains(t, fields["error"], "upstream unavailable")
}

func TestAnswer_GenerationFailureFallsBack(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	gen := &scriptedGenerator{reply: replyErr(fmt.Errorf("%w: %w", domain.ErrGenerationUnavailable, errUpstream))}
	p := newIndexedPipeline(t, gen, QueryOptions{Logger: zap.New(core)})

	ans := p.Answer(context.Background(), domain.QueryRequest{DocumentText: leaseWithDeposit, Question: "When is the deposit returned?"})
	assert.Equal(t, FallbackAnswer, ans.Text)
	assert.True(t, ans.Fallback)

	failed := logs.FilterMessage("query failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, "generate", failed[0].ContextMap()["stage"])
	assert.Equal(t, "scripted", failed[0].ContextMap()["generator"])
}

func TestAnswer_EmptyGenerationFallsBack(t *testing.T) {
	p := newIndexedPipeline(t, &scriptedGenerator{reply: replyWith("  \n")}, QueryOptions{})
	ans := p.Answer(context.Background(), domain.QueryRequest{DocumentText: leaseWithDeposit, Question: "When is the deposit returned?"})
	assert.True(t, ans.Fallback)
}

func TestAnswer_GenerationTimeout(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	gen := &scriptedGenerator{reply: func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", fmt.Errorf("%w: %w", domain.ErrGenerationUnavailable, ctx.Err())
	}}
	retr := retrieverFunc(func(context.Context, string, int) (domain.RetrievedContext, error) { return nil, nil })
	p := NewQueryPipeline(retr, gen, QueryOptions{GenerateTimeout: 20 * time.Millisecond, Logger: zap.New(core)})

	start := time.Now()
	ans := p.Answer(context.Background(), domain.QueryRequest{DocumentText: "doc", Question: "anything here?"})
	assert.True(t, ans.Fallback)
	assert.Less(t, time.Since(start), 5*time.Second)
	require.Equal(t, 1, logs.FilterMessage("query failed").Len())
	assert.Contains(t, logs.All()[0].ContextMap()["error"], "deadline exceeded")
}

func TestAnswer_RetrieveTimeoutApplied(t *testing.T) {
	var deadline time.Time
	var ok bool
	retr := retrieverFunc(func(ctx context.Context, _ string, k int) (domain.RetrievedContext, error) {
		deadline, ok = ctx.Deadline()
		assert.Equal(t, 5, k)
		return nil, nil
	})
	p := NewQueryPipeline(retr, &scriptedGenerator{reply: replyWith("fine")}, QueryOptions{TopK: 5, RetrieveTimeout: time.Minute})
	ans := p.Answer(context.Background(), domain.QueryRequest{DocumentText: "doc", Question: "question?"})
	assert.Equal(t, "fine", ans.Text)
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 10*time.Second)
}

func TestAnswer_InvalidInput(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	gen := &scriptedGenerator{reply: replyWith("nope")}
	retr := retrieverFunc(func(context.Context, string, int) (domain.RetrievedContext, error) {
		t.Fatal("retriever must not be called")
		return nil, nil
	})
	p := NewQueryPipeline(retr, gen, QueryOptions{Logger: zap.New(core)})

	tests := []struct {
		name   string
		req    domain.QueryRequest
		reason string
	}{
		{"short question", domain.QueryRequest{DocumentText: "doc", Question: " why "}, "question too short"},
		{"empty question", domain.QueryRequest{DocumentText: "doc"}, "question too short"},
		{"empty document", domain.QueryRequest{DocumentText: " \n", Question: "What does it say?"}, "empty document"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ans := p.Answer(context.Background(), tt.req)
			assert.Equal(t, FallbackAnswer, ans.Text)
			assert.Equal(t, domain.StateFailed, ans.State)
			last := logs.All()[logs.Len()-1]
			assert.Equal(t, tt.reason, last.ContextMap()["reason"])
			assert.Equal(t, "validate", last.ContextMap()["stage"])
		})
	}
	assert.Empty(t, gen.prompts)
}

func TestAnswer_Concurrent(t *testing.T) {
	gen := &scriptedGenerator{reply: func(_ context.Context, p string) (string, error) {
		return "echo: " + strings.TrimSpace(sectionBody(p, prompt.QuestionHeading)), nil
	}}
	p := newIndexedPipeline(t, gen, QueryOptions{})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q := fmt.Sprintf("Question number %d about the deposit?", i)
			ans := p.Answer(context.Background(), domain.QueryRequest{DocumentText: leaseWithDeposit, Question: q})
			assert.Equal(t, "echo: "+q, ans.Text)
		}(i)
	}
	wg.Wait()
	assert.Len(t, gen.prompts, 16)
}

func TestRetrieve_DeduplicatesIdenticalSnippets(t *testing.T) {
	ctx := context.Background()
	emb := hashing.NewEmbedder(0)
	idx := memory.New()
	dup := "Section 1. Identical text."
	var entries []domain.IndexEntry
	for i, text := range []string{dup, dup, "Section 2. Different text.", dup + " "} {
		v, err := emb.Embed(ctx, text)
		require.NoError(t, err)
		entries = append(entries, domain.IndexEntry{Chunk: domain.Chunk{ID: fmt.Sprint(i), Text: text}, Vector: v})
	}
	require.NoError(t, idx.Replace(ctx, entries, domain.IndexInfo{Generation: "g"}))

	got, err := NewRetriever(emb, idx, RetrieverOptions{}).Retrieve(ctx, dup, 4)
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, dup, got[0])
	assert.Contains(t, got, dup+" ")
}

func TestRetrieve_Errors(t *testing.T) {
	ctx := context.Background()
	r := NewRetriever(failingEmbedder{err: errUpstream}, memory.New(), RetrieverOptions{EmbedTimeout: time.Second})
	_, err := r.Retrieve(ctx, "question", 3)
	assert.True(t, errors.Is(err, domain.ErrEmbeddingUnavailable))
	assert.True(t, errors.Is(err, errUpstream))

	_, err = r.Retrieve(ctx, "question", 0)
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
}

func TestRetrieve_EmptyIndex(t *testing.T) {
	got, err := NewRetriever(hashing.NewEmbedder(0), memory.New(), RetrieverOptions{}).Retrieve(context.Background(), "anything", 3)
	require.NoError(t, err)
	assert.Empty(t, got)
}
