package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexcodex/thinkloop/agents"
	"github.com/lexcodex/thinkloop/framework"
)

// stubModel replies with the queued texts in order, or with err once the
// queue is empty.
type stubModel struct {
	mu      sync.Mutex
	replies []string
	err     error
}

func (m *stubModel) Chat(ctx context.Context, messages []framework.Message, tools []framework.Tool, options *framework.LLMOptions) (*framework.Completion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.replies) == 0 {
		if m.err != nil {
			return nil, m.err
		}
		return nil, errors.New("no reply queued")
	}
	next := m.replies[0]
	m.replies = m.replies[1:]
	return framework.NewTextCompletion(next), nil
}

func newTestAPI(t *testing.T, model framework.ChatModel) *APIServer {
	t.Helper()
	cfg := agents.DefaultGlobalConfig()
	cfg.Tools.DatabasePath = filepath.Join(t.TempDir(), "docs.db")
	rt, err := agents.NewRuntime(cfg, model, "stub")
	require.NoError(t, err)
	t.Cleanup(func() { rt.Close() })
	return &APIServer{Runtime: rt, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func postAsk(t *testing.T, handler http.Handler, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/ask", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestAPIServerAskToolMode(t *testing.T) {
	api := newTestAPI(t, &stubModel{replies: []string{"Berlin, see https://de.wikipedia.org/wiki/Berlin"}})

	rec := postAsk(t, api.Handler(), AskRequest{Prompt: "capital of Germany?", Citations: true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var resp AskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Berlin, see [1]\n\nSources\n[1] https://de.wikipedia.org/wiki/Berlin\n", resp.Content)
	require.NotNil(t, resp.Usage)
}

func TestAPIServerAskReactMode(t *testing.T) {
	api := newTestAPI(t, &stubModel{replies: []string{"Final Answer: 4"}})

	rec := postAsk(t, api.Handler(), AskRequest{Mode: "react", Prompt: "2+2"})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp AskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	_, final := framework.SplitTranscriptAndFinal(resp.Content)
	assert.Equal(t, "4", final)
	assert.NotEmpty(t, resp.Transcript)
}

func TestAPIServerAskErrors(t *testing.T) {
	api := newTestAPI(t, &stubModel{err: &framework.TransientAPIError{StatusCode: 503, Body: "busy"}})
	handler := api.Handler()

	rec := postAsk(t, handler, AskRequest{Mode: "swarm", Prompt: "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown mode")

	rec = postAsk(t, handler, AskRequest{Prompt: "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), framework.ErrEmptyPrompt.Error())

	req := httptest.NewRequest(http.MethodPost, "/api/ask", bytes.NewBufferString("{"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rec = postAsk(t, handler, AskRequest{Prompt: "hello"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/ask", nil)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestAPIServerToolsHealthAndMetrics(t *testing.T) {
	api := newTestAPI(t, &stubModel{})
	handler := api.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tools?mode=research", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var payload struct {
		Mode  string     `json:"mode"`
		Tools []ToolInfo `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "research", payload.Mode)
	names := make([]string, 0, len(payload.Tools))
	for _, tool := range payload.Tools {
		names = append(names, tool.Name)
	}
	assert.Equal(t, []string{"calc", "matrix_operation", "web_search", "fetch_page", "web_news_search"}, names)
	assert.Equal(t, "object", payload.Tools[0].Parameters["type"])

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadGateway, statusFor(&framework.ClientError{StatusCode: 400}))
	assert.Equal(t, http.StatusGatewayTimeout, statusFor(context.DeadlineExceeded))
	assert.Equal(t, http.StatusInternalServerError, statusFor(&framework.RoundBudgetExceeded{Rounds: 2}))
	assert.Equal(t, http.StatusBadRequest, statusFor(framework.ErrEmptyPrompt))
}
