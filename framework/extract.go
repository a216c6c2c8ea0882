package framework

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Completion is one decoded chat-completions response. Message keeps the raw
// JSON of choices[0].message because models disagree on its shape; the
// extractors below walk it in a fixed order instead of binding it to a struct.
type Completion struct {
	Model        string
	FinishReason string
	Message      json.RawMessage
	Usage        Usage
	Raw          json.RawMessage
}

// ParseCompletion decodes a response body. A body without choices[0].message
// is malformed.
func ParseCompletion(body []byte) (*Completion, error) {
	if !gjson.ValidBytes(body) {
		return nil, &MalformedResponseError{Reason: "response is not valid JSON", Raw: clip(string(body), 512)}
	}
	root := gjson.ParseBytes(body)
	msg := root.Get("choices.0.message")
	if !msg.Exists() || !msg.IsObject() {
		return nil, &MalformedResponseError{Reason: "no choices in response", Raw: clip(string(body), 512)}
	}
	return &Completion{
		Model:        root.Get("model").String(),
		FinishReason: root.Get("choices.0.finish_reason").String(),
		Message:      json.RawMessage(msg.Raw),
		Usage:        parseUsage(root.Get("usage")),
		Raw:          json.RawMessage(body),
	}, nil
}

func parseUsage(u gjson.Result) Usage {
	if !u.Exists() {
		return Usage{}
	}
	reasoning := u.Get("reasoning_tokens").Int()
	if reasoning == 0 {
		reasoning = u.Get("completion_tokens_details.reasoning_tokens").Int()
	}
	return Usage{
		PromptTokens:     int(u.Get("prompt_tokens").Int()),
		CompletionTokens: int(u.Get("completion_tokens").Int()),
		TotalTokens:      int(u.Get("total_tokens").Int()),
		ReasoningTokens:  int(reasoning),
	}
}

// NewTextCompletion builds a completion whose message carries plain content.
func NewTextCompletion(text string) *Completion {
	return newCompletion(map[string]interface{}{"role": RoleAssistant, "content": text})
}

// NewToolCallCompletion builds a completion requesting tool calls.
func NewToolCallCompletion(content string, calls ...ToolCall) *Completion {
	msg := map[string]interface{}{"role": RoleAssistant, "tool_calls": calls}
	if content != "" {
		msg["content"] = content
	} else {
		msg["content"] = nil
	}
	return newCompletion(msg)
}

func newCompletion(msg map[string]interface{}) *Completion {
	raw, _ := json.Marshal(msg)
	body, _ := json.Marshal(map[string]interface{}{
		"choices": []interface{}{map[string]interface{}{"message": json.RawMessage(raw)}},
	})
	return &Completion{Message: raw, Raw: body}
}

func (c *Completion) message() gjson.Result {
	if c == nil || len(c.Message) == 0 {
		return gjson.Result{}
	}
	return gjson.ParseBytes(c.Message)
}

// Content extracts assistant text. The shapes are tried in order: a
// non-empty string, text collected from a list of parts, the parsed
// structured field, then a placeholder summarizing requested tool calls.
// Anything else is a MalformedResponseError.
func (c *Completion) Content() (string, error) {
	msg := c.message()
	if !msg.Exists() {
		return "", &MalformedResponseError{Reason: "no message in response"}
	}
	content := msg.Get("content")
	if content.Type == gjson.String && strings.TrimSpace(content.String()) != "" {
		return content.String(), nil
	}
	if content.IsArray() {
		if parts := collectText(content); len(parts) > 0 {
			return strings.Join(parts, "\n"), nil
		}
	}
	if parsed := msg.Get("parsed"); parsed.Exists() && parsed.Type != gjson.Null {
		return compactJSON(parsed.Raw), nil
	}
	if calls := msg.Get("tool_calls"); calls.IsArray() && len(calls.Array()) > 0 {
		return toolCallPlaceholder(calls), nil
	}
	return "", &MalformedResponseError{Reason: "empty content in response", Raw: clip(string(c.Message), 512)}
}

// collectText walks nested content parts. Strings count as text; objects
// contribute their "text" field (string or list) and recurse into
// content/value/message.
func collectText(node gjson.Result) []string {
	var out []string
	switch {
	case node.Type == gjson.String:
		if s := strings.TrimSpace(node.String()); s != "" {
			out = append(out, s)
		}
	case node.IsArray():
		for _, item := range node.Array() {
			out = append(out, collectText(item)...)
		}
	case node.IsObject():
		text := node.Get("text")
		if text.Type == gjson.String {
			if s := strings.TrimSpace(text.String()); s != "" {
				out = append(out, s)
			}
		} else if text.IsArray() {
			for _, item := range text.Array() {
				out = append(out, collectText(item)...)
			}
		}
		for _, key := range []string{"content", "value", "message"} {
			if v := node.Get(key); v.Exists() && v.Type != gjson.Null {
				out = append(out, collectText(v)...)
			}
		}
	}
	return out
}

type callSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func toolCallPlaceholder(calls gjson.Result) string {
	summary := make([]callSummary, 0)
	for _, call := range calls.Array() {
		summary = append(summary, callSummary{
			ID:   clipRunes(call.Get("id").String(), 12),
			Name: call.Get("function.name").String(),
		})
	}
	return MarshalText(struct {
		Note      string        `json:"note"`
		ToolCalls []callSummary `json:"tool_calls"`
	}{Note: "no_text_content", ToolCalls: summary})
}

// Text returns the content field when it is a plain string, else "". Unlike
// Content it never falls back to other shapes.
func (c *Completion) Text() string {
	content := c.message().Get("content")
	if content.Type == gjson.String {
		return content.String()
	}
	return ""
}

// Reasoning returns the reasoning field as text: strings verbatim,
// structured values as JSON, "" when absent.
func (c *Completion) Reasoning() string {
	r := c.message().Get("reasoning")
	switch {
	case !r.Exists() || r.Type == gjson.Null:
		return ""
	case r.Type == gjson.String:
		return r.String()
	default:
		return compactJSON(r.Raw)
	}
}

// ToolCalls lists the structured tool calls. It returns an empty slice,
// never an error, when none are present.
func (c *Completion) ToolCalls() []ToolCall {
	calls := c.message().Get("tool_calls")
	if !calls.IsArray() {
		return []ToolCall{}
	}
	out := make([]ToolCall, 0, len(calls.Array()))
	for _, call := range calls.Array() {
		name := call.Get("function.name").String()
		if name == "" {
			name = call.Get("name").String()
		}
		args := call.Get("function.arguments")
		if !args.Exists() {
			args = call.Get("arguments")
		}
		out = append(out, ToolCall{
			ID:        call.Get("id").String(),
			Name:      name,
			Arguments: argumentText(args),
		})
	}
	return out
}

// argumentText normalizes arguments that arrive either as a JSON string or as
// an inline object.
func argumentText(args gjson.Result) string {
	switch {
	case !args.Exists() || args.Type == gjson.Null:
		return ""
	case args.Type == gjson.String:
		return args.String()
	default:
		return compactJSON(args.Raw)
	}
}

// MarshalText renders v as compact JSON without HTML escaping. Values that
// cannot be encoded fall back to their fmt representation.
func MarshalText(v interface{}) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Sprint(v)
	}
	return strings.TrimRight(buf.String(), "\n")
}

func compactJSON(raw string) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(raw)); err != nil {
		return raw
	}
	return buf.String()
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}

func clipRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
