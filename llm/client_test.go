package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexcodex/thinkloop/framework"
)

type roundTripFunc func(*http.Request) *http.Response

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req), nil
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

const okBody = `{"model":"m","choices":[{"message":{"role":"assistant","content":"hello"},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`

func testClient(t *testing.T, rt roundTripFunc) *Client {
	t.Helper()
	client, err := NewClient(Config{
		BaseURL:       "http://fake/v1",
		APIKey:        "secret",
		Model:         "test-model",
		MaxRetries:    3,
		RetryWaitBase: time.Millisecond,
		RetryWaitMax:  5 * time.Millisecond,
	})
	require.NoError(t, err)
	client.client = &http.Client{Transport: rt}
	return client
}

func userMessages() []framework.Message {
	return []framework.Message{{Role: framework.RoleUser, Content: "hi"}}
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(Config{BaseURL: DefaultBaseURL})
	var cfgErr *framework.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "api_key", cfgErr.Field)

	_, err = NewClient(Config{BaseURL: "http://localhost:1234/v1", AllowNoKey: true})
	assert.NoError(t, err)
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	_, err := NewClient(Config{APIKey: "k"})
	var cfgErr *framework.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "base_url", cfgErr.Field)
}

func TestNormalizeBaseURL(t *testing.T) {
	assert.Equal(t, "http://localhost:1234/v1", NormalizeBaseURL("http://localhost:1234/"))
	assert.Equal(t, "http://localhost:1234/v1", NormalizeBaseURL("http://localhost:1234/v1/"))
	assert.Equal(t, "", NormalizeBaseURL("  "))
}

func TestConfigFromEnvPrefersLocalServer(t *testing.T) {
	t.Setenv("LMSTUDIO_BASE_URL", "http://127.0.0.1:1234")
	t.Setenv("LMSTUDIO_API_KEY", "")
	t.Setenv("MODEL_ID", "local-model")
	cfg := ConfigFromEnv()
	assert.Equal(t, "http://127.0.0.1:1234/v1", cfg.BaseURL)
	assert.True(t, cfg.AllowNoKey)
	assert.Equal(t, "local-model", cfg.Model)
}

func TestConfigFromEnvFallsBackToOpenAIKey(t *testing.T) {
	t.Setenv("LMSTUDIO_BASE_URL", "")
	t.Setenv("OPENROUTER_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_BASE_URL", "")
	t.Setenv("MODEL_ID", "")
	cfg := ConfigFromEnv()
	assert.Equal(t, "sk-test", cfg.APIKey)
	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, DefaultModel, cfg.Model)
}

func TestChatSendsPayload(t *testing.T) {
	parallel := false
	tool := framework.NewFuncTool("echo", "Echo text", map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{"text": map[string]interface{}{"type": "string"}},
	}, func(ctx context.Context, args map[string]interface{}) (interface{}, error) { return args["text"], nil })

	client := testClient(t, func(req *http.Request) *http.Response {
		assert.Equal(t, "/v1/chat/completions", req.URL.Path)
		assert.Equal(t, "Bearer secret", req.Header.Get("Authorization"))
		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(req.Body).Decode(&payload))
		assert.Equal(t, "override", payload["model"])
		assert.Equal(t, 0.2, payload["temperature"])
		assert.Equal(t, map[string]interface{}{"effort": "high"}, payload["reasoning"])
		assert.Equal(t, "auto", payload["tool_choice"])
		assert.Equal(t, false, payload["parallel_tool_calls"])
		assert.NotContains(t, payload, "max_tokens")
		tools := payload["tools"].([]interface{})
		require.Len(t, tools, 1)
		fn := tools[0].(map[string]interface{})["function"].(map[string]interface{})
		assert.Equal(t, "echo", fn["name"])
		return jsonResponse(200, okBody)
	})

	resp, err := client.Chat(context.Background(), userMessages(), []framework.Tool{tool}, &framework.LLMOptions{
		Model:             "override",
		Temperature:       0.2,
		ReasoningEffort:   framework.ReasoningHigh,
		ParallelToolCalls: &parallel,
	})
	require.NoError(t, err)
	text, err := resp.Content()
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
	assert.Equal(t, 5, resp.Usage.TotalTokens)
}

func TestChatRetriesRateLimitThenSucceeds(t *testing.T) {
	var calls int32
	client := testClient(t, func(req *http.Request) *http.Response {
		if atomic.AddInt32(&calls, 1) == 1 {
			return jsonResponse(429, `{"error":"slow down"}`)
		}
		return jsonResponse(200, okBody)
	})
	resp, err := client.Chat(context.Background(), userMessages(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	text, _ := resp.Content()
	assert.Equal(t, "hello", text)
}

func TestChatSurfacesTransientErrorAfterAttempts(t *testing.T) {
	var calls int32
	client := testClient(t, func(req *http.Request) *http.Response {
		atomic.AddInt32(&calls, 1)
		return jsonResponse(503, "unavailable")
	})
	_, err := client.Chat(context.Background(), userMessages(), nil, nil)
	var transient *framework.TransientAPIError
	require.ErrorAs(t, err, &transient)
	assert.Equal(t, 503, transient.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestChatHonorsRetryAfter(t *testing.T) {
	var calls int32
	var stamps []time.Time
	client := testClient(t, func(req *http.Request) *http.Response {
		stamps = append(stamps, time.Now())
		if atomic.AddInt32(&calls, 1) == 1 {
			resp := jsonResponse(429, `{"error":"slow down"}`)
			resp.Header.Set("Retry-After", "1")
			return resp
		}
		return jsonResponse(200, okBody)
	})
	_, err := client.Chat(context.Background(), userMessages(), nil, nil)
	require.NoError(t, err)
	require.Len(t, stamps, 2)
	// One second requested, capped at RetryWaitMax (5ms); the exponential
	// schedule alone would wait 1ms.
	gap := stamps[1].Sub(stamps[0])
	assert.GreaterOrEqual(t, gap, 5*time.Millisecond)
	assert.Less(t, gap, time.Second)
}

func TestChatRetryAfterExhaustedKeepsTransientError(t *testing.T) {
	client := testClient(t, func(req *http.Request) *http.Response {
		resp := jsonResponse(503, "busy")
		resp.Header.Set("Retry-After", "2")
		return resp
	})
	_, err := client.Chat(context.Background(), userMessages(), nil, nil)
	require.IsType(t, &framework.TransientAPIError{}, err)
	assert.Equal(t, 2*time.Second, err.(*framework.TransientAPIError).RetryAfter)
}

func TestRetryWait(t *testing.T) {
	client := testClient(t, nil)
	assert.Equal(t, time.Duration(0), client.retryWait(nil))
	assert.Equal(t, time.Duration(0), client.retryWait(&framework.TransientAPIError{StatusCode: 503}))
	assert.Equal(t, 5*time.Millisecond, client.retryWait(&framework.TransientAPIError{StatusCode: 429, RetryAfter: time.Minute}))

	client.cfg.RetryWaitMax = time.Minute
	assert.Equal(t, 2*time.Second, client.retryWait(&framework.TransientAPIError{StatusCode: 429, RetryAfter: 2 * time.Second}))
	assert.Equal(t, time.Duration(0), client.retryWait(&framework.ClientError{StatusCode: 400}))
}

func TestChatDoesNotRetryClientError(t *testing.T) {
	var calls int32
	client := testClient(t, func(req *http.Request) *http.Response {
		atomic.AddInt32(&calls, 1)
		return jsonResponse(400, `{"error":"bad model"}`)
	})
	_, err := client.Chat(context.Background(), userMessages(), nil, nil)
	var clientErr *framework.ClientError
	require.ErrorAs(t, err, &clientErr)
	assert.Equal(t, 400, clientErr.StatusCode)
	assert.Contains(t, clientErr.Body, "bad model")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestChatMalformedResponse(t *testing.T) {
	client := testClient(t, func(req *http.Request) *http.Response {
		return jsonResponse(200, `{"choices":[]}`)
	})
	_, err := client.Chat(context.Background(), userMessages(), nil, nil)
	var malformed *framework.MalformedResponseError
	assert.ErrorAs(t, err, &malformed)
}

func TestChatValidatesBeforeNetwork(t *testing.T) {
	client := testClient(t, func(req *http.Request) *http.Response {
		t.Fatal("no request expected")
		return nil
	})
	_, err := client.Chat(context.Background(), nil, nil, nil)
	assert.ErrorIs(t, err, framework.ErrInvalidRequest)

	_, err = client.Chat(context.Background(), userMessages(), nil, &framework.LLMOptions{Temperature: 2.5})
	assert.ErrorIs(t, err, framework.ErrInvalidRequest)
}

func TestChatAgainstServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":null,"tool_calls":[{"id":"call_abcdefghijklmnop","type":"function","function":{"name":"calc","arguments":"{\"expression\":\"2+2\"}"}}]}}]}`)
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL + "/v1", AllowNoKey: true, Model: "m"})
	require.NoError(t, err)
	defer client.Close()

	resp, err := client.Chat(context.Background(), userMessages(), nil, nil)
	require.NoError(t, err)
	calls := resp.ToolCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "calc", calls[0].Name)
	assert.Equal(t, "2+2", calls[0].Args()["expression"])
	text, err := resp.Content()
	require.NoError(t, err)
	assert.Contains(t, text, `"no_text_content"`)
	assert.Contains(t, text, `"call_abcdefg"`)
}

func TestChatCanceledContextIsNotRetried(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int32
	client := testClient(t, func(req *http.Request) *http.Response {
		atomic.AddInt32(&calls, 1)
		cancel()
		return jsonResponse(503, "down")
	})
	_, err := client.Chat(ctx, userMessages(), nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

type scriptedModel struct {
	resp *framework.Completion
	err  error
}

func (s scriptedModel) Chat(ctx context.Context, messages []framework.Message, tools []framework.Tool, options *framework.LLMOptions) (*framework.Completion, error) {
	return s.resp, s.err
}

type recordingTelemetry struct {
	events []framework.Event
}

func (r *recordingTelemetry) Emit(event framework.Event) { r.events = append(r.events, event) }

func TestInstrumentedModelEmitsEvents(t *testing.T) {
	rec := &recordingTelemetry{}
	model := NewInstrumentedModel(scriptedModel{resp: framework.NewTextCompletion("ok")}, rec, true)
	_, err := model.Chat(context.Background(), userMessages(), nil, &framework.LLMOptions{Model: "m"})
	require.NoError(t, err)
	require.Len(t, rec.events, 2)
	assert.Equal(t, framework.EventModelCall, rec.events[0].Type)
	assert.Contains(t, rec.events[0].Metadata, "messages")
	assert.Equal(t, framework.EventModelResult, rec.events[1].Type)
	assert.Equal(t, "ok", rec.events[1].Metadata["text_preview"])
}

func TestOutcomeLabels(t *testing.T) {
	assert.Equal(t, "ok", outcome(nil))
	assert.Equal(t, "transient", outcome(&framework.TransientAPIError{StatusCode: 500}))
	assert.Equal(t, "client_error", outcome(&framework.ClientError{StatusCode: 404}))
	assert.Equal(t, "canceled", outcome(context.Canceled))
}
