package framework

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolCallArgs(t *testing.T) {
	assert.Equal(t, map[string]interface{}{}, ToolCall{}.Args())
	assert.Equal(t, map[string]interface{}{}, ToolCall{Arguments: "null"}.Args())
	assert.Equal(t, map[string]interface{}{"n": float64(2)}, ToolCall{Arguments: ` {"n": 2} `}.Args())

	bad := ToolCall{Arguments: `{"n": `}.Args()
	require.Len(t, bad, 1)
	assert.Contains(t, bad, "_parse_error")
}

func TestToolCallWireShape(t *testing.T) {
	data, err := json.Marshal(ToolCall{ID: "c1", Name: "calc"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"c1","type":"function","function":{"name":"calc","arguments":"{}"}}`, string(data))
}

func TestMessageWireShape(t *testing.T) {
	data, err := json.Marshal(MakeToolResult("c1", "4"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"tool","content":"4","tool_call_id":"c1"}`, string(data))

	data, err = json.Marshal(Message{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "c1", Name: "calc", Arguments: `{"expression":"2+2"}`}}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"assistant","content":"","tool_calls":[{"id":"c1","type":"function","function":{"name":"calc","arguments":"{\"expression\":\"2+2\"}"}}]}`, string(data))
}

func TestParseReasoningEffort(t *testing.T) {
	for raw, want := range map[string]ReasoningEffort{"": "", " HIGH ": ReasoningHigh, "low": ReasoningLow, "Medium": ReasoningMedium} {
		got, err := ParseReasoningEffort(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got)
	}
	_, err := ParseReasoningEffort("max")
	assert.Error(t, err)
}

func TestUsageAdd(t *testing.T) {
	total := Usage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3, Latency: time.Second}
	total.Add(Usage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30, ReasoningTokens: 5, Latency: time.Second})
	assert.Equal(t, Usage{PromptTokens: 11, CompletionTokens: 22, TotalTokens: 33, ReasoningTokens: 5, Latency: 2 * time.Second}, total)
}

func TestConfigOptions(t *testing.T) {
	var nilCfg *Config
	assert.Equal(t, &LLMOptions{}, nilCfg.Options())

	cfg := &Config{Model: "m", Temperature: 0.2, ReasoningEffort: ReasoningLow}
	opts := cfg.Options()
	assert.Equal(t, "m", opts.Model)
	assert.Equal(t, ReasoningLow, opts.ReasoningEffort)

	clone := opts.Clone()
	clone.Model = "other"
	assert.Equal(t, "m", opts.Model)
	var nilOpts *LLMOptions
	assert.NotNil(t, nilOpts.Clone())
}
