package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lexcodex/thinkloop/framework"
)

// InstrumentedModel wraps a ChatModel, emitting telemetry for prompts and
// responses and recording Prometheus metrics.
type InstrumentedModel struct {
	Inner     framework.ChatModel
	Telemetry framework.Telemetry
	Debug     bool
	// Model labels metrics when the call options do not name one.
	Model string
}

func NewInstrumentedModel(inner framework.ChatModel, telemetry framework.Telemetry, debug bool) *InstrumentedModel {
	m := &InstrumentedModel{Inner: inner, Telemetry: telemetry, Debug: debug}
	if c, ok := inner.(*Client); ok {
		m.Model = c.Config().Model
	}
	return m
}

// Chat implements framework.ChatModel.
func (m *InstrumentedModel) Chat(ctx context.Context, messages []framework.Message, tools []framework.Tool, options *framework.LLMOptions) (*framework.Completion, error) {
	model := m.modelName(options)
	meta := chatMeta(messages, tools, model)
	m.emitPrompt(meta.base, meta.debug)
	start := time.Now()
	resp, err := m.Inner.Chat(ctx, messages, tools, options)
	requestDuration.WithLabelValues(model).Observe(time.Since(start).Seconds())
	requestsTotal.WithLabelValues(model, outcome(err)).Inc()
	if resp != nil {
		tokensTotal.WithLabelValues(model, "prompt").Add(float64(resp.Usage.PromptTokens))
		tokensTotal.WithLabelValues(model, "completion").Add(float64(resp.Usage.CompletionTokens))
		tokensTotal.WithLabelValues(model, "reasoning").Add(float64(resp.Usage.ReasoningTokens))
	}
	m.emitResponse(resp, err)
	return resp, err
}

// outcome buckets an error into a small label set.
func outcome(err error) string {
	var (
		transient *framework.TransientAPIError
		client    *framework.ClientError
		malformed *framework.MalformedResponseError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &transient):
		return "transient"
	case errors.As(err, &client):
		return "client_error"
	case errors.As(err, &malformed):
		return "malformed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}

func (m *InstrumentedModel) modelName(options *framework.LLMOptions) string {
	if options != nil && options.Model != "" {
		return options.Model
	}
	if m.Model != "" {
		return m.Model
	}
	return "default"
}

type chatMetaPayload struct {
	base  map[string]interface{}
	debug map[string]interface{}
}

func chatMeta(messages []framework.Message, tools []framework.Tool, model string) chatMetaPayload {
	roles := make([]string, 0, len(messages))
	for _, msg := range messages {
		roles = append(roles, msg.Role)
	}
	toolNames := make([]string, 0, len(tools))
	for _, t := range tools {
		toolNames = append(toolNames, t.Name())
	}
	base := map[string]interface{}{
		"model":         model,
		"message_count": len(messages),
		"roles":         roles,
		"tool_count":    len(tools),
	}
	if len(messages) > 0 {
		base["last_preview"] = clip(messages[len(messages)-1].Content, 512)
	}
	debug := map[string]interface{}{}
	if len(messages) > 0 {
		full := make([]map[string]interface{}, 0, len(messages))
		for _, msg := range messages {
			full = append(full, map[string]interface{}{
				"role":    msg.Role,
				"content": clip(msg.Content, 8192),
			})
		}
		debug["messages"] = full
	}
	if len(tools) > 0 {
		debug["tools"] = toolNames
	}
	return chatMetaPayload{base: base, debug: debug}
}

func (m *InstrumentedModel) emitPrompt(base, debugFields map[string]interface{}) {
	if m == nil || m.Telemetry == nil {
		return
	}
	metadata := make(map[string]interface{}, len(base)+len(debugFields))
	for k, v := range base {
		metadata[k] = v
	}
	if m.Debug {
		for k, v := range debugFields {
			metadata[k] = v
		}
	}
	framework.Emit(m.Telemetry, framework.Event{
		Type:     framework.EventModelCall,
		Message:  fmt.Sprintf("llm chat prompt (%d messages)", base["message_count"]),
		Metadata: metadata,
	})
}

func (m *InstrumentedModel) emitResponse(resp *framework.Completion, err error) {
	if m == nil || m.Telemetry == nil {
		return
	}
	metadata := map[string]interface{}{}
	if resp != nil {
		metadata["finish_reason"] = resp.FinishReason
		metadata["usage"] = resp.Usage
		if text, cerr := resp.Content(); cerr == nil {
			metadata["text_preview"] = clip(text, 1024)
		}
		if calls := resp.ToolCalls(); len(calls) > 0 {
			names := make([]string, 0, len(calls))
			for _, call := range calls {
				names = append(names, call.Name)
			}
			metadata["tool_calls"] = names
		}
	}
	if err != nil {
		metadata["error"] = err.Error()
	}
	framework.Emit(m.Telemetry, framework.Event{
		Type:     framework.EventModelResult,
		Message:  "llm chat response",
		Metadata: metadata,
	})
}

func clip(s string, max int) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
