package agents

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexcodex/thinkloop/agents/pattern"
	"github.com/lexcodex/thinkloop/framework"
)

// replyModel answers from a queue per system prompt and records the last
// user message it saw for each.
type replyModel struct {
	mu      sync.Mutex
	replies map[string][]string
	users   map[string][]string
	tools   map[string][]string
}

func newReplyModel() *replyModel {
	return &replyModel{replies: map[string][]string{}, users: map[string][]string{}, tools: map[string][]string{}}
}

func (m *replyModel) on(system string, replies ...string) *replyModel {
	m.replies[system] = append(m.replies[system], replies...)
	return m
}

func (m *replyModel) Chat(ctx context.Context, messages []framework.Message, tools []framework.Tool, options *framework.LLMOptions) (*framework.Completion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	system := ""
	if len(messages) > 0 && messages[0].Role == framework.RoleSystem {
		system = messages[0].Content
	}
	if last := messages[len(messages)-1]; last.Role == framework.RoleUser {
		m.users[system] = append(m.users[system], last.Content)
	}
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.Name())
	}
	m.tools[system] = names
	queue := m.replies[system]
	if len(queue) == 0 {
		return nil, errors.New("no reply scripted for system prompt")
	}
	m.replies[system] = queue[1:]
	return framework.NewTextCompletion(queue[0]), nil
}

func testConfig(t *testing.T) *GlobalConfig {
	t.Helper()
	cfg := DefaultGlobalConfig()
	dir := t.TempDir()
	cfg.Tools.DatabasePath = filepath.Join(dir, "docs.db")
	cfg.Tools.SessionDir = filepath.Join(dir, "sessions")
	return cfg
}

func TestRuntimeToolSessionKeepsHistory(t *testing.T) {
	cfg := testConfig(t)
	cfg.Prompts.System = "Be brief."
	model := newReplyModel().on("Be brief.", "Hello there.", "Still here.")
	rt, err := NewRuntime(cfg, model, "test-model")
	require.NoError(t, err)
	defer rt.Close()

	s, err := rt.NewSession(ModeTool, SessionOptions{ID: "chat-1"})
	require.NoError(t, err)
	res, err := s.AskWithProgress(context.Background(), "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, "Hello there.", res.Content)
	_, err = s.AskWithProgress(context.Background(), "  again  ", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"calc", "matrix_operation", "web_search", "fetch_page", "web_news_search"}, model.tools["Be brief."])

	history, err := rt.History()
	require.NoError(t, err)
	turns, err := history.History(context.Background(), "chat-1")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "tool", turns[0].Mode)
	assert.Equal(t, "again", turns[1].Prompt)
	assert.Equal(t, "Still here.", turns[1].Content)

	_, err = s.AskWithProgress(context.Background(), "   ", nil)
	assert.ErrorIs(t, err, framework.ErrEmptyPrompt)
}

func TestRuntimeResearchSessionCitesSources(t *testing.T) {
	model := newReplyModel().on(pattern.ResearchSystemPrompt,
		"Solar output is rising (https://example.com/solar). See also https://example.com/grid.")
	rt, err := NewRuntime(testConfig(t), model, "")
	require.NoError(t, err)
	defer rt.Close()

	s, err := rt.NewSession(ModeResearch, SessionOptions{})
	require.NoError(t, err)
	res, err := s.AskWithProgress(context.Background(), "solar power", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{pattern.ResearchPrompt("solar power")}, model.users[pattern.ResearchSystemPrompt])
	assert.Contains(t, res.Content, "Solar output is rising ([1]). See also [2].")
	assert.True(t, strings.HasSuffix(res.Content, "Sources\n[1] https://example.com/solar\n[2] https://example.com/grid\n"))
}

func TestRuntimeReactSessionUsesConfiguredPrompts(t *testing.T) {
	cfg := testConfig(t)
	cfg.Prompts.Thinker = "THINK"
	cfg.Tools.Enabled = []string{"math"}
	model := newReplyModel().on("THINK", "Final Answer: 42")
	rt, err := NewRuntime(cfg, model, "")
	require.NoError(t, err)
	defer rt.Close()

	s, err := rt.NewSession(ModeReact, SessionOptions{Citations: true})
	require.NoError(t, err)
	var kinds []framework.ProgressKind
	res, err := s.AskWithProgress(context.Background(), "six times seven", func(p framework.Progress) {
		kinds = append(kinds, p.Kind)
	})
	require.NoError(t, err)
	_, final := framework.SplitTranscriptAndFinal(res.Content)
	assert.Equal(t, "42", final)
	assert.Equal(t, []framework.ProgressKind{framework.ProgressThink, framework.ProgressJudge}, kinds)
	s.Reset()
}

func TestRuntimePlannerSession(t *testing.T) {
	model := newReplyModel().
		on(pattern.BriefPlannerSystemPrompt, "1. Look it up").
		on(pattern.WorkerSystemPrompt, "Paris")
	rt, err := NewRuntime(testConfig(t), model, "")
	require.NoError(t, err)
	defer rt.Close()

	s, err := rt.NewSession(ModePlanner, SessionOptions{})
	require.NoError(t, err)
	res, err := s.AskWithProgress(context.Background(), "capital of France", nil)
	require.NoError(t, err)
	assert.Equal(t, "Plan\n1. Look it up\n\nFinal Answer\nParis", res.Content)
	assert.Empty(t, model.tools[pattern.BriefPlannerSystemPrompt])
}

func TestRuntimeRegistryOpensDocStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.Tools.Enabled = []string{"db"}
	rt, err := NewRuntime(cfg, newReplyModel(), "")
	require.NoError(t, err)

	registry, err := rt.Registry(ModeResearch)
	require.NoError(t, err)
	assert.True(t, registry.Has("db_insert_one"))
	assert.True(t, registry.Has("web_search"))
	assert.Equal(t, []string{"db", "web"}, rt.Toolkits(ModeResearch))

	again, err := rt.Registry(ModeTool)
	require.NoError(t, err)
	assert.False(t, again.Has("web_search"))
	require.NoError(t, rt.Close())
}

func TestRuntimeErrors(t *testing.T) {
	_, err := NewRuntime(nil, nil, "")
	assert.Error(t, err)

	cfg := DefaultGlobalConfig()
	cfg.Budgets.MaxRounds = 0
	_, err = NewRuntime(cfg, newReplyModel(), "")
	var cfgErr *framework.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)

	rt, err := NewRuntime(nil, newReplyModel(), "")
	require.NoError(t, err)
	_, err = rt.NewSession(Mode("swarm"), SessionOptions{})
	assert.Error(t, err)

	rt.Config.Tools.Enabled = []string{"search"}
	t.Setenv("SEARXNG_URL", "")
	_, err = rt.NewSession(ModeTool, SessionOptions{})
	assert.ErrorContains(t, err, "SearXNG")
}
