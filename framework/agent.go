package framework

import "context"

// Config contains runtime knobs supplied by the CLI or server. Agents keep
// the pointer passed to Initialize so shared defaults (model, budgets, debug
// flags) stay in one place.
type Config struct {
	Name            string
	Model           string
	Temperature     float64
	ReasoningEffort ReasoningEffort
	MaxRounds       int
	MaxToolIters    int
	MaxSteps        int
	DebugLLM        bool
	DebugAgent      bool
	Telemetry       Telemetry
}

// Options derives per-call LLM options from the config.
func (c *Config) Options() *LLMOptions {
	if c == nil {
		return &LLMOptions{}
	}
	return &LLMOptions{
		Model:           c.Model,
		Temperature:     c.Temperature,
		ReasoningEffort: c.ReasoningEffort,
	}
}

// Result is the uniform output of a graph node.
type Result struct {
	NodeID  string
	Success bool
	Data    map[string]interface{}
	Error   error
}

// Agent answers one user request.
type Agent interface {
	Ask(ctx context.Context, prompt string) (*AskResult, error)
}

// AgentFunc adapts a function into an Agent.
type AgentFunc func(ctx context.Context, prompt string) (*AskResult, error)

// Ask implements Agent.
func (f AgentFunc) Ask(ctx context.Context, prompt string) (*AskResult, error) {
	return f(ctx, prompt)
}
