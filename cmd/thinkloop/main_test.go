package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexcodex/thinkloop/agents"
	"github.com/lexcodex/thinkloop/framework"
	"github.com/lexcodex/thinkloop/llm"
)

type scriptedModel struct {
	mu      sync.Mutex
	replies []string
	prompts []string
}

func (m *scriptedModel) Chat(ctx context.Context, messages []framework.Message, tools []framework.Tool, options *framework.LLMOptions) (*framework.Completion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == framework.RoleUser {
			m.prompts = append(m.prompts, messages[i].Content)
			break
		}
	}
	if len(m.replies) == 0 {
		return nil, errors.New("no scripted reply")
	}
	next := m.replies[0]
	m.replies = m.replies[1:]
	return framework.NewTextCompletion(next), nil
}

// setupCLI writes a config under a temp dir and routes the backend to a
// scripted model.
func setupCLI(t *testing.T, replies ...string) (*scriptedModel, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := agents.DefaultGlobalConfig()
	cfg.Tools.DatabasePath = filepath.Join(dir, "docs.db")
	cfg.Tools.SessionDir = filepath.Join(dir, "sessions")
	path := filepath.Join(dir, "thinkloop.yaml")
	require.NoError(t, agents.SaveGlobalConfig(path, cfg))

	model := &scriptedModel{replies: replies}
	prev := newChatModel
	newChatModel = func(llm.Config) (framework.ChatModel, error) { return model, nil }
	t.Cleanup(func() { newChatModel = prev })
	return model, path
}

func runCLI(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestAskPrintsAnswer(t *testing.T) {
	model, cfg := setupCLI(t, "Paris is the capital.")

	out, _, err := runCLI(t, "", "--config", cfg, "ask", "capital", "of", "France?")
	require.NoError(t, err)
	assert.Contains(t, out, "Paris is the capital.")
	assert.Equal(t, []string{"capital of France?"}, model.prompts)
}

func TestAskReadsPromptFromStdin(t *testing.T) {
	model, cfg := setupCLI(t, "4")

	out, errOut, err := runCLI(t, "what is 2+2?\n", "--config", cfg, "ask", "-q")
	require.NoError(t, err)
	assert.Contains(t, out, "4")
	assert.Empty(t, errOut)
	assert.Equal(t, []string{"what is 2+2?"}, model.prompts)
}

func TestAskRequiresPrompt(t *testing.T) {
	_, cfg := setupCLI(t)

	_, _, err := runCLI(t, "  \n", "--config", cfg, "ask")
	require.ErrorIs(t, err, framework.ErrEmptyPrompt)
	assert.Equal(t, 1, exitCode(err))
}

func TestResearchCitesSources(t *testing.T) {
	_, cfg := setupCLI(t, "Output is rising, see https://a.example/report.")

	out, _, err := runCLI(t, "", "--config", cfg, "research", "solar output")
	require.NoError(t, err)
	assert.Contains(t, out, "Output is rising, see [1].")
	assert.Contains(t, out, "Sources")
	assert.Contains(t, out, "[1] https://a.example/report")
}

func TestReactShowsTranscriptAndProgress(t *testing.T) {
	_, cfg := setupCLI(t, "Final Answer: 4")

	out, errOut, err := runCLI(t, "", "--config", cfg, "react", "what is 2+2?")
	require.NoError(t, err)
	assert.Contains(t, out, "Transcript")
	assert.Contains(t, out, "Thought: 4")
	assert.Contains(t, out, "Final Answer")
	assert.Contains(t, errOut, "validator: final")
}

func TestChatREPLKeepsGoingAfterErrors(t *testing.T) {
	model, cfg := setupCLI(t, "Hi!", "Again!")

	stdin := "hello\n/tools\n/reset\nagain\nthird\n/bogus\n/exit\nnever sent\n"
	out, errOut, err := runCLI(t, stdin, "--config", cfg, "chat", "-q")
	require.NoError(t, err)
	assert.Contains(t, out, "Hi!")
	assert.Contains(t, out, "calc")
	assert.Contains(t, out, "Conversation reset.")
	assert.Contains(t, out, "Again!")
	assert.Contains(t, errOut, "error: ")
	assert.Contains(t, errOut, "no scripted reply")
	assert.NotContains(t, out, "error: ")
	assert.Contains(t, out, "unknown command /bogus")
	assert.Equal(t, []string{"hello", "again", "third"}, model.prompts)
}

func TestConfigInitAndShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "thinkloop.yaml")

	out, _, err := runCLI(t, "", "--config", path, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Config saved to "+path)
	_, err = os.Stat(path)
	require.NoError(t, err)

	_, _, err = runCLI(t, "", "--config", path, "config", "init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, _, err = runCLI(t, "", "--config", path, "config", "init", "--force")
	require.NoError(t, err)

	out, _, err = runCLI(t, "", "--config", path, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "max_rounds: 8")
}

func TestHistoryRecordsSessions(t *testing.T) {
	_, cfg := setupCLI(t, "first answer")

	_, _, err := runCLI(t, "", "--config", cfg, "ask", "-q", "--session", "s1", "first question")
	require.NoError(t, err)

	out, _, err := runCLI(t, "", "--config", cfg, "history", "show", "s1")
	require.NoError(t, err)
	assert.Contains(t, out, "> first question")
	assert.Contains(t, out, "first answer")

	_, _, err = runCLI(t, "", "--config", cfg, "history", "clear", "s1")
	require.NoError(t, err)
	_, _, err = runCLI(t, "", "--config", cfg, "history", "show", "s1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestToolsCatalog(t *testing.T) {
	_, cfg := setupCLI(t)

	out, _, err := runCLI(t, "", "--config", cfg, "tools", "--mode", "research", "--json")
	require.NoError(t, err)
	var entries []toolEntry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
		assert.NotEmpty(t, e.Description)
	}
	assert.Equal(t, []string{"calc", "matrix_operation", "web_search", "fetch_page", "web_news_search"}, names)

	out, _, err = runCLI(t, "", "--config", cfg, "tools")
	require.NoError(t, err)
	assert.Contains(t, out, "tool mode: math, web")

	_, _, err = runCLI(t, "", "--config", cfg, "tools", "--mode", "swarm")
	require.Error(t, err)
}

func TestExitCodes(t *testing.T) {
	cfgErr := &framework.ConfigurationError{Field: "api_key", Reason: "missing API key"}
	assert.Equal(t, 2, exitCode(cfgErr))
	assert.Equal(t, 2, exitCode(fmt.Errorf("start: %w", cfgErr)))
	assert.Equal(t, 1, exitCode(errors.New("boom")))
}

func TestBackendConfigFlagsWin(t *testing.T) {
	t.Setenv("MODEL_ID", "env/model")
	t.Setenv("LMSTUDIO_BASE_URL", "")
	t.Setenv("OPENAI_BASE_URL", "")
	cfg := agents.DefaultGlobalConfig()
	cfg.Model.Name = "file/model"

	flagModel, flagBaseURL = "", ""
	assert.Equal(t, "file/model", backendConfig(cfg).Model)

	flagModel, flagBaseURL = "flag/model", "http://localhost:9999/"
	t.Cleanup(func() { flagModel, flagBaseURL = "", "" })
	got := backendConfig(cfg)
	assert.Equal(t, "flag/model", got.Model)
	assert.Equal(t, "http://localhost:9999/v1", got.BaseURL)
}
