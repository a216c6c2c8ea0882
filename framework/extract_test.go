package framework

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completionFor(message string) *Completion {
	return &Completion{Message: json.RawMessage(message)}
}

func TestParseCompletion(t *testing.T) {
	body := `{"model":"m1","choices":[{"finish_reason":"stop","message":{"role":"assistant","content":"hi"}}],
		"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5,"completion_tokens_details":{"reasoning_tokens":1}}}`
	resp, err := ParseCompletion([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, "m1", resp.Model)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5, ReasoningTokens: 1}, resp.Usage)
	text, err := resp.Content()
	require.NoError(t, err)
	assert.Equal(t, "hi", text)
}

func TestParseCompletionMalformed(t *testing.T) {
	for _, body := range []string{`not json`, `{"choices":[]}`, `{"choices":[{"message":"text"}]}`} {
		_, err := ParseCompletion([]byte(body))
		var malformed *MalformedResponseError
		assert.ErrorAs(t, err, &malformed, body)
	}
}

func TestContentShapes(t *testing.T) {
	cases := []struct {
		name    string
		message string
		want    string
	}{
		{"plain string", `{"content":"hello"}`, "hello"},
		{"parts", `{"content":[{"type":"text","text":"a"},{"text":["b"]},"c",{"content":{"value":"d"}}]}`, "a\nb\nc\nd"},
		{"parsed", `{"content":null,"parsed":{"answer": 42}}`, `{"answer":42}`},
		{"tool calls only", `{"content":"","tool_calls":[{"id":"call_1234567890abcdef","function":{"name":"calc","arguments":"{}"}}]}`,
			`{"note":"no_text_content","tool_calls":[{"id":"call_1234567","name":"calc"}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := completionFor(tc.message).Content()
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestContentEmptyIsMalformed(t *testing.T) {
	for _, message := range []string{`{"content":"   "}`, `{"content":[]}`, `{"role":"assistant"}`} {
		_, err := completionFor(message).Content()
		var malformed *MalformedResponseError
		assert.ErrorAs(t, err, &malformed, message)
	}
	_, err := (&Completion{}).Content()
	assert.Error(t, err)
}

func TestTextIgnoresOtherShapes(t *testing.T) {
	assert.Equal(t, "plain", completionFor(`{"content":"plain"}`).Text())
	assert.Equal(t, "", completionFor(`{"content":[{"text":"part"}]}`).Text())
}

func TestReasoning(t *testing.T) {
	assert.Equal(t, "thinking", completionFor(`{"content":"x","reasoning":"thinking"}`).Reasoning())
	assert.Equal(t, `{"steps":[1,2]}`, completionFor(`{"content":"x","reasoning":{"steps": [1, 2]}}`).Reasoning())
	assert.Equal(t, "", completionFor(`{"content":"x","reasoning":null}`).Reasoning())
	assert.Equal(t, "", completionFor(`{"content":"x"}`).Reasoning())
}

func TestToolCallsArgumentShapes(t *testing.T) {
	resp := completionFor(`{"content":null,"tool_calls":[
		{"id":"a","type":"function","function":{"name":"calc","arguments":"{\"expression\":\"1+1\"}"}},
		{"id":"b","function":{"name":"web_search","arguments":{"query": "go"}}},
		{"id":"c","name":"now"}
	]}`)
	calls := resp.ToolCalls()
	require.Len(t, calls, 3)
	assert.Equal(t, ToolCall{ID: "a", Name: "calc", Arguments: `{"expression":"1+1"}`}, calls[0])
	assert.Equal(t, ToolCall{ID: "b", Name: "web_search", Arguments: `{"query":"go"}`}, calls[1])
	assert.Equal(t, ToolCall{ID: "c", Name: "now"}, calls[2])
	assert.Equal(t, map[string]interface{}{"query": "go"}, calls[1].Args())

	none := completionFor(`{"content":"done"}`).ToolCalls()
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestConstructedCompletions(t *testing.T) {
	text := NewTextCompletion("answer")
	got, err := text.Content()
	require.NoError(t, err)
	assert.Equal(t, "answer", got)

	call := ToolCall{ID: "call-1", Name: "calc", Arguments: `{"expression":"2*3"}`}
	resp := NewToolCallCompletion("", call)
	assert.Equal(t, []ToolCall{call}, resp.ToolCalls())
	assert.Equal(t, "", resp.Text())
	parsed, err := ParseCompletion(resp.Raw)
	require.NoError(t, err)
	assert.Equal(t, []ToolCall{call}, parsed.ToolCalls())
}

func TestMarshalTextKeepsHTML(t *testing.T) {
	assert.Equal(t, `{"q":"a<b>&c"}`, MarshalText(map[string]string{"q": "a<b>&c"}))
	assert.Equal(t, "hello", clipRunes("hello world", 5))
}
