package pattern

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/lexcodex/thinkloop/framework"
)

const (
	defaultMaxRounds    = 6
	defaultMaxToolIters = 3
	defaultTemperature  = 0.1
)

// ToolLoopAgent answers one prompt per Ask through a bounded sequence of
// backend calls, executing the tools the model requests in between. Each
// backend call counts as a round.
type ToolLoopAgent struct {
	Model        framework.ChatModel
	Tools        *framework.ToolRegistry
	SystemPrompt string
	// KeepHistory retains the conversation across Ask calls; otherwise only
	// the system message survives a turn.
	KeepHistory     bool
	MaxRounds       int
	MaxToolIters    int
	ModelID         string
	Temperature     float64
	MaxTokens       int
	ReasoningEffort framework.ReasoningEffort
	ResponseFormat  map[string]interface{}
	// ToolChoice is forwarded when tools are advertised; nil means "auto".
	ToolChoice        interface{}
	ParallelToolCalls *bool
	// ConcurrentTools executes one round's calls in parallel. Results are
	// still appended in request order.
	ConcurrentTools bool
	// DisableInlineTools skips parsing tool calls embedded in text.
	DisableInlineTools bool
	Telemetry          framework.Telemetry
	Config             *framework.Config

	mu       sync.Mutex
	messages []framework.Message
}

// NewToolLoopAgent builds an agent with the default budgets and prompt.
func NewToolLoopAgent(model framework.ChatModel, tools *framework.ToolRegistry) *ToolLoopAgent {
	return &ToolLoopAgent{
		Model:        model,
		Tools:        tools,
		SystemPrompt: DefaultSystemPrompt,
		KeepHistory:  true,
		MaxRounds:    defaultMaxRounds,
		MaxToolIters: defaultMaxToolIters,
		Temperature:  defaultTemperature,
	}
}

// Initialize applies shared runtime configuration.
func (a *ToolLoopAgent) Initialize(cfg *framework.Config) error {
	a.Config = cfg
	if cfg == nil {
		return nil
	}
	if cfg.Model != "" {
		a.ModelID = cfg.Model
	}
	a.Temperature = cfg.Temperature
	if cfg.ReasoningEffort != "" {
		a.ReasoningEffort = cfg.ReasoningEffort
	}
	if cfg.MaxRounds > 0 {
		a.MaxRounds = cfg.MaxRounds
	}
	if cfg.MaxToolIters > 0 {
		a.MaxToolIters = cfg.MaxToolIters
	}
	if cfg.Telemetry != nil {
		a.Telemetry = cfg.Telemetry
	}
	return nil
}

func (a *ToolLoopAgent) debugf(format string, args ...interface{}) {
	if a == nil || a.Config == nil || !a.Config.DebugAgent {
		return
	}
	slog.Debug(fmt.Sprintf(format, args...), "component", "toolloop")
}

// Reset clears the conversation, keeping only the system message.
func (a *ToolLoopAgent) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resetLocked()
}

func (a *ToolLoopAgent) resetLocked() {
	a.messages = a.messages[:0]
	if a.SystemPrompt != "" {
		a.messages = append(a.messages, framework.Message{Role: framework.RoleSystem, Content: a.SystemPrompt})
	}
}

// Messages returns a copy of the retained conversation.
func (a *ToolLoopAgent) Messages() []framework.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]framework.Message(nil), a.messages...)
}

// Ask implements framework.Agent.
func (a *ToolLoopAgent) Ask(ctx context.Context, prompt string) (*framework.AskResult, error) {
	return a.AskWithProgress(ctx, prompt, nil)
}

// AskWithProgress runs the loop, reporting every tool call and observation.
func (a *ToolLoopAgent) AskWithProgress(ctx context.Context, prompt string, progress framework.ProgressFunc) (*framework.AskResult, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, framework.ErrEmptyPrompt
	}
	if a.MaxRounds < 1 || a.MaxToolIters < 0 {
		return nil, fmt.Errorf("%w: max_rounds=%d max_tool_iters=%d", framework.ErrInvalidBudget, a.MaxRounds, a.MaxToolIters)
	}
	if a.Model == nil {
		return nil, fmt.Errorf("tool loop agent missing model")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.KeepHistory || len(a.messages) == 0 {
		a.resetLocked()
	}
	messages := append([]framework.Message(nil), a.messages...)
	messages = append(messages, framework.Message{Role: framework.RoleUser, Content: prompt})

	var tools []framework.Tool
	if a.Tools != nil {
		tools = a.Tools.All()
	}
	opts := a.options(len(tools) > 0)
	usage := &framework.Usage{}
	toolIters := 0
	var last *framework.Completion

	for round := 1; ; round++ {
		if round > a.MaxRounds {
			return nil, &framework.RoundBudgetExceeded{Rounds: a.MaxRounds}
		}
		resp, err := a.Model.Chat(ctx, messages, tools, opts)
		if err != nil {
			return nil, err
		}
		last = resp
		usage.Add(resp.Usage)

		calls := resp.ToolCalls()
		if len(calls) == 0 && !a.DisableInlineTools {
			if text := resp.Text(); text != "" {
				calls = framework.ParseInlineToolCalls(text)
			}
		}
		if len(calls) > 0 && toolIters < a.MaxToolIters {
			a.debugf("round %d: %d tool call(s)", round, len(calls))
			messages = append(messages, framework.Message{
				Role:      framework.RoleAssistant,
				Content:   resp.Text(),
				ToolCalls: calls,
			})
			toolIters += len(calls)
			messages = append(messages, a.runCalls(ctx, calls, progress)...)
			continue
		}

		var content string
		if len(calls) > 0 {
			// tool budget spent while the model still asks for tools
			content = framework.MarshalText(map[string]interface{}{
				"note":              "max_tool_iters reached",
				"assistant_message": rawMessage(resp),
			})
		} else if content, err = resp.Content(); err != nil {
			return nil, err
		}
		messages = append(messages, framework.Message{Role: framework.RoleAssistant, Content: content})
		if a.KeepHistory {
			a.messages = messages
		} else {
			a.resetLocked()
		}
		return &framework.AskResult{
			Content:   content,
			Reasoning: last.Reasoning(),
			Usage:     usage,
			Messages:  append([]framework.Message(nil), messages...),
		}, nil
	}
}

func rawMessage(resp *framework.Completion) interface{} {
	if obj, ok := decodeObject(string(resp.Message)); ok {
		return obj
	}
	return string(resp.Message)
}

func (a *ToolLoopAgent) options(withTools bool) *framework.LLMOptions {
	opts := &framework.LLMOptions{
		Model:             a.ModelID,
		Temperature:       a.Temperature,
		MaxTokens:         a.MaxTokens,
		ResponseFormat:    a.ResponseFormat,
		ReasoningEffort:   a.ReasoningEffort,
		ParallelToolCalls: a.ParallelToolCalls,
	}
	if withTools {
		opts.ToolChoice = a.ToolChoice
	}
	return opts
}

// runCalls executes one round of tool calls and returns their result
// messages in request order.
func (a *ToolLoopAgent) runCalls(ctx context.Context, calls []framework.ToolCall, progress framework.ProgressFunc) []framework.Message {
	results := make([]framework.Message, len(calls))
	if !a.ConcurrentTools || len(calls) == 1 {
		for i, call := range calls {
			results[i] = framework.MakeToolResult(call.ID, a.invoke(ctx, call, progress))
		}
		return results
	}
	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	// progress callbacks are serialized; handlers are not.
	serialized := func(p framework.Progress) {
		mu.Lock()
		defer mu.Unlock()
		progress.Notify(p)
	}
	for i, call := range calls {
		g.Go(func() error {
			results[i] = framework.MakeToolResult(call.ID, a.invoke(ctx, call, serialized))
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (a *ToolLoopAgent) invoke(ctx context.Context, call framework.ToolCall, progress framework.ProgressFunc) string {
	args := call.Args()
	progress.Notify(framework.Progress{Kind: framework.ProgressTool, Tool: call.Name, Args: args})
	framework.Emit(a.Telemetry, framework.Event{
		Type:     framework.EventToolCall,
		Message:  call.Name,
		Metadata: map[string]interface{}{"id": call.ID, "args": call.Arguments},
	})
	var outcome framework.ToolOutcome
	if a.Tools == nil {
		outcome = framework.ToolOutcome{Tool: call.Name, Err: &framework.ToolExecutionError{Tool: call.Name, Unknown: true}}
	} else {
		outcome = a.Tools.Invoke(ctx, call.Name, args)
	}
	observation := outcome.Observation()
	framework.Emit(a.Telemetry, framework.Event{
		Type:     framework.EventToolResult,
		Message:  call.Name,
		Metadata: map[string]interface{}{"id": call.ID, "failed": outcome.Failed(), "preview": clipText(observation, 512)},
	})
	progress.Notify(framework.Progress{Kind: framework.ProgressObserve, Tool: call.Name, Observation: observation})
	return observation
}

func clipText(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "…"
}
