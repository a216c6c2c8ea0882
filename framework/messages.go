package framework

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Chat roles understood by OpenAI-compatible backends.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ReasoningEffort is forwarded to backends that expose a thinking budget.
type ReasoningEffort string

const (
	ReasoningLow    ReasoningEffort = "low"
	ReasoningMedium ReasoningEffort = "medium"
	ReasoningHigh   ReasoningEffort = "high"
)

// ParseReasoningEffort accepts "", low, medium and high (case-insensitive).
func ParseReasoningEffort(raw string) (ReasoningEffort, error) {
	switch effort := ReasoningEffort(strings.ToLower(strings.TrimSpace(raw))); effort {
	case "", ReasoningLow, ReasoningMedium, ReasoningHigh:
		return effort, nil
	default:
		return "", fmt.Errorf("reasoning effort %q: want low, medium or high", raw)
	}
}

// ToolCall encodes a function invocation requested by the model. Arguments
// holds the raw JSON text exactly as the model produced it.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

type wireToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function wireToolFunction `json:"function"`
}

type wireToolFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// MarshalJSON renders the OpenAI tool_calls entry shape.
func (c ToolCall) MarshalJSON() ([]byte, error) {
	args := c.Arguments
	if args == "" {
		args = "{}"
	}
	return json.Marshal(wireToolCall{
		ID:       c.ID,
		Type:     "function",
		Function: wireToolFunction{Name: c.Name, Arguments: args},
	})
}

// Args decodes the argument text. Empty text yields an empty map; text that
// is not a JSON object yields {"_parse_error": "..."} so the failure reaches
// the handler and, through it, the model.
func (c ToolCall) Args() map[string]interface{} {
	raw := strings.TrimSpace(c.Arguments)
	if raw == "" {
		return map[string]interface{}{}
	}
	var args map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return map[string]interface{}{"_parse_error": err.Error()}
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	return args
}

// Message is one role-tagged chat turn.
type Message struct {
	Role       string
	Content    string
	Name       string
	ToolCallID string
	ToolCalls  []ToolCall
}

// MarshalJSON renders the chat-completions message shape.
func (m Message) MarshalJSON() ([]byte, error) {
	out := map[string]interface{}{
		"role":    m.Role,
		"content": m.Content,
	}
	if m.Name != "" {
		out["name"] = m.Name
	}
	if m.ToolCallID != "" {
		out["tool_call_id"] = m.ToolCallID
	}
	if len(m.ToolCalls) > 0 {
		out["tool_calls"] = m.ToolCalls
	}
	return json.Marshal(out)
}

// MakeToolResult builds the message that feeds a tool's output back.
func MakeToolResult(toolCallID, content string) Message {
	return Message{Role: RoleTool, ToolCallID: toolCallID, Content: content}
}

// Usage aggregates token counters and wall time across backend calls.
type Usage struct {
	PromptTokens     int           `json:"prompt_tokens"`
	CompletionTokens int           `json:"completion_tokens"`
	TotalTokens      int           `json:"total_tokens"`
	ReasoningTokens  int           `json:"reasoning_tokens,omitempty"`
	Latency          time.Duration `json:"latency_ns,omitempty"`
}

// Add accumulates other into u.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
	u.ReasoningTokens += other.ReasoningTokens
	u.Latency += other.Latency
}

// LLMOptions configures one chat call. Keeping it inside the framework keeps
// provider specifics out of agent code.
type LLMOptions struct {
	Model             string
	Temperature       float64
	MaxTokens         int
	ResponseFormat    map[string]interface{}
	ReasoningEffort   ReasoningEffort
	ToolChoice        interface{}
	ParallelToolCalls *bool
}

// Clone returns a shallow copy safe to tweak per call.
func (o *LLMOptions) Clone() *LLMOptions {
	if o == nil {
		return &LLMOptions{}
	}
	cp := *o
	return &cp
}

// ChatModel produces one assistant turn for a conversation. Tools, when
// given, are advertised to the model with their JSON schemas.
type ChatModel interface {
	Chat(ctx context.Context, messages []Message, tools []Tool, options *LLMOptions) (*Completion, error)
}

// AskResult is what agents hand back for one user request.
type AskResult struct {
	Content    string    `json:"content"`
	Reasoning  string    `json:"reasoning,omitempty"`
	Usage      *Usage    `json:"usage,omitempty"`
	Messages   []Message `json:"-"`
	Transcript string    `json:"transcript,omitempty"`
}
