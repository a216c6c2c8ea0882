package framework

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fillMemory(m *ScopedMemory, n int) {
	for i := 0; i < n; i++ {
		m.Add(RoleUser, "question "+strings.Repeat("x", 60), []string{"chat"}, MemoryScopeSession)
	}
	m.Add(RoleAssistant, "done", []string{"chat"}, MemoryScopeSession)
}

func TestScopedMemoryWithinBudget(t *testing.T) {
	m := NewScopedMemory(MemoryPolicy{}, nil)
	assert.Equal(t, DefaultMemoryPolicy(), m.Policy())

	m.Add(RoleUser, "hi", nil, "")
	m.Add(RoleAssistant, "", nil, "")
	m.Add(RoleAssistant, " hello ", []string{"plan"}, MemoryScopeEphemeral)
	require.Equal(t, 2, m.Len())
	assert.Equal(t, MemoryScopeSession, m.Items()[0].Scope)

	ctx := context.Background()
	assert.Equal(t, "user: hi\nassistant: hello", m.BuildContext(ctx, nil, 0))
	assert.Equal(t, "assistant: hello", m.BuildContext(ctx, []string{"plan", "other"}, 0))
	assert.Equal(t, "", m.BuildContext(ctx, []string{"missing"}, 0))
}

func TestScopedMemoryClipsHeadWithoutSummarizer(t *testing.T) {
	m := NewScopedMemory(MemoryPolicy{KeepLast: 1, MaxChars: 200}, nil)
	fillMemory(m, 5)

	out := m.BuildContext(context.Background(), nil, 0)
	assert.True(t, strings.HasPrefix(out, "summary: user: question"), out)
	assert.True(t, strings.HasSuffix(out, "\nassistant: done"), out)
	assert.Contains(t, out, " … ")
	assert.LessOrEqual(t, utf8.RuneCountInString(out), 200)
}

func TestScopedMemoryUsesSummarizer(t *testing.T) {
	var gotBudget int
	summarizer := SummarizerFunc(func(_ context.Context, text string, maxChars int) (string, error) {
		gotBudget = maxChars
		return "  five questions asked ", nil
	})
	m := NewScopedMemory(MemoryPolicy{KeepLast: 1, MaxChars: 200, SummarizeBeyond: true}, summarizer)
	fillMemory(m, 5)

	out := m.BuildContext(context.Background(), nil, 0)
	assert.Equal(t, "summary: five questions asked\nassistant: done", out)
	assert.Equal(t, 200-len("assistant: done")-headGap, gotBudget)
}

func TestScopedMemorySummarizerFailureFallsBack(t *testing.T) {
	summarizer := SummarizerFunc(func(context.Context, string, int) (string, error) {
		return "", errors.New("backend down")
	})
	m := NewScopedMemory(MemoryPolicy{KeepLast: 1, MaxChars: 200, SummarizeBeyond: true}, summarizer)
	fillMemory(m, 5)

	out := m.BuildContext(context.Background(), nil, 0)
	assert.True(t, strings.HasPrefix(out, "summary: "))
	assert.Contains(t, out, " … ")
}

func TestScopedMemoryKeepsLastTwoWithinFifty(t *testing.T) {
	sets := [][]string{
		{"the first question is long", "an answer follows here", "another follow-up", "ok", "fin"},
		{"one two three four five", "six seven eight nine", "ten eleven", "last but one", "final word"},
	}
	for _, contents := range sets {
		m := NewScopedMemory(MemoryPolicy{KeepLast: 2, MaxChars: 50}, nil)
		for _, c := range contents {
			m.Add(RoleUser, c, nil, MemoryScopeSession)
		}
		require.Greater(t, utf8.RuneCountInString(joinItems(m.Items())), 50)

		out := m.BuildContext(context.Background(), nil, 0)
		assert.LessOrEqual(t, utf8.RuneCountInString(out), 50, out)
		assert.Contains(t, out, "user: "+contents[3])
		assert.Contains(t, out, "user: "+contents[4])
		assert.True(t, strings.HasSuffix(out, "user: "+contents[4]), out)
	}
}

func TestScopedMemoryOversizedTail(t *testing.T) {
	m := NewScopedMemory(MemoryPolicy{KeepLast: 1, MaxChars: 20}, nil)
	m.Add(RoleUser, "older", nil, "")
	m.Add(RoleAssistant, strings.Repeat("é", 40), nil, "")

	out := m.BuildContext(context.Background(), nil, 0)
	assert.Equal(t, strings.Repeat("é", 20), out)
	assert.Equal(t, "ééééé", m.BuildContext(context.Background(), nil, 5))
}

func TestScopedMemoryClearing(t *testing.T) {
	m := NewScopedMemory(DefaultMemoryPolicy(), nil)
	m.Add(RoleUser, "keep", []string{"a"}, MemoryScopeSession)
	m.Add(RoleSystem, "app fact", nil, MemoryScopeApp)
	m.Add(RoleTool, "scratch", nil, MemoryScopeEphemeral)

	m.ClearEphemeral()
	require.Equal(t, 2, m.Len())
	for _, it := range m.Items() {
		assert.NotEqual(t, MemoryScopeEphemeral, it.Scope)
	}
	assert.True(t, m.Items()[0].HasAnyTag([]string{"b", "a"}))
	assert.False(t, m.Items()[1].HasAnyTag([]string{"a"}))

	m.ClearAll()
	assert.Equal(t, 0, m.Len())
	assert.Equal(t, "", m.BuildContext(context.Background(), nil, 0))
}

type cannedModel struct {
	reply string
	err   error
	seen  []Message
}

func (m *cannedModel) Chat(_ context.Context, messages []Message, _ []Tool, _ *LLMOptions) (*Completion, error) {
	m.seen = messages
	if m.err != nil {
		return nil, m.err
	}
	return NewTextCompletion(m.reply), nil
}

func TestNaiveSummarize(t *testing.T) {
	assert.Equal(t, "ab … ij", NaiveSummarize("abcdefghij", 4))
	assert.Equal(t, "short", NaiveSummarize("short", 10))
	assert.Equal(t, "a", NaiveSummarize("abc", 1))
	assert.Equal(t, "", NaiveSummarize("abc", 0))
	assert.Equal(t, "", NaiveSummarize("", 5))
}

func TestModelSummarizer(t *testing.T) {
	model := &cannedModel{reply: "  a long summary of the notes  "}
	s := &ModelSummarizer{Model: model}
	got, err := s.Summarize(context.Background(), "notes", 6)
	require.NoError(t, err)
	assert.Equal(t, "a long", got)
	require.Len(t, model.seen, 2)
	assert.Contains(t, model.seen[1].Content, "at most 6 characters")

	_, err = (&ModelSummarizer{Model: &cannedModel{reply: "   "}}).Summarize(context.Background(), "notes", 10)
	assert.Error(t, err)
	_, err = (&ModelSummarizer{Model: &cannedModel{err: errors.New("down")}}).Summarize(context.Background(), "notes", 10)
	assert.EqualError(t, err, "down")
	_, err = (&ModelSummarizer{}).Summarize(context.Background(), "notes", 10)
	assert.Error(t, err)
}
