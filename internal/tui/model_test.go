package tui

import (
	"context"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legalrag/internal/domain"
)

type stubPort struct {
	mu   sync.Mutex
	reqs []domain.QueryRequest
	ans  domain.Answer
}

func (s *stubPort) Answer(_ context.Context, req domain.QueryRequest) domain.Answer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
	return s.ans
}

const lease = "The tenant pays a deposit of two months rent. The landlord returns it within 60 days."

func sized(t *testing.T, m Model) Model {
	t.Helper()
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return next.(Model)
}

func press(t *testing.T, m Model, key tea.KeyType) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(tea.KeyMsg{Type: key})
	return next.(Model), cmd
}

func TestModel_AskAndAnswer(t *testing.T) {
	port := &stubPort{ans: domain.Answer{Text: "Your lease says 60 days. The statute allows 30 days.", State: domain.StateDone}}
	m := sized(t, New(context.Background(), port, "lease.txt", lease))
	assert.Contains(t, m.View(), "No questions yet.")

	m.input.SetValue("  When is my deposit returned?  ")
	m, cmd := press(t, m, tea.KeyEnter)
	require.NotNil(t, cmd)
	assert.True(t, m.busy)
	assert.Empty(t, m.input.Value())
	assert.Contains(t, m.status, "When is my deposit returned?")

	next, _ := m.Update(cmd())
	m = next.(Model)
	assert.False(t, m.busy)
	assert.Equal(t, "Answered.", m.status)

	require.Len(t, port.reqs, 1)
	assert.Equal(t, lease, port.reqs[0].DocumentText)
	assert.Equal(t, "When is my deposit returned?", port.reqs[0].Question)

	view := m.View()
	assert.Contains(t, view, "You: When is my deposit returned?")
	assert.Contains(t, view, "60 days")
}

func TestModel_FallbackStatus(t *testing.T) {
	port := &stubPort{ans: domain.Answer{Text: "try again", State: domain.StateFailed, Fallback: true}}
	m := sized(t, New(context.Background(), port, "lease.txt", lease))

	m.input.SetValue("Is this legal?")
	m, cmd := press(t, m, tea.KeyEnter)
	next, _ := m.Update(cmd())
	m = next.(Model)

	assert.Equal(t, "The assistant could not answer that one.", m.status)
	assert.Contains(t, m.View(), "try again")
}

func TestModel_IgnoresBlankAndBusySubmits(t *testing.T) {
	port := &stubPort{}
	m := sized(t, New(context.Background(), port, "lease.txt", lease))

	m.input.SetValue("   ")
	m, cmd := press(t, m, tea.KeyEnter)
	assert.Nil(t, cmd)

	m.input.SetValue("first question")
	m, cmd = press(t, m, tea.KeyEnter)
	require.NotNil(t, cmd)

	m.input.SetValue("second question")
	_, again := press(t, m, tea.KeyEnter)
	assert.Nil(t, again)
	assert.Empty(t, port.reqs)
}

func TestModel_Quit(t *testing.T) {
	m := New(context.Background(), &stubPort{}, "lease.txt", lease)
	_, cmd := press(t, m, tea.KeyCtrlC)
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestModel_LoadingBeforeSize(t *testing.T) {
	m := New(context.Background(), &stubPort{}, "lease.txt", lease)
	assert.Equal(t, "Loading...", m.View())
}

func TestHighlightBestSentence(t *testing.T) {
	text := "The lease starts in March. The deposit is returned within 60 days"
	out := highlightBestSentence(text, "when is the deposit returned")
	assert.Equal(t, 2, len(splitSentences(text)))
	assert.True(t, strings.Contains(out, "The lease starts in March."))
	assert.True(t, strings.Contains(out, "60 days"))

	assert.Equal(t, "", highlightBestSentence("", "anything"))
}
