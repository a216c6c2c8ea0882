package pattern

import (
	"context"
	"errors"
	"sync"

	"github.com/lexcodex/thinkloop/framework"
)

type scriptStep struct {
	completion *framework.Completion
	err        error
}

type recordedCall struct {
	System   string
	Messages []framework.Message
	Tools    []string
	Options  framework.LLMOptions
}

// scriptedModel replays canned replies. Replies are queued per system prompt
// so the Thinker and Validator of one ReAct run can be scripted separately;
// conversations without a matching queue use the fallback queue.
type scriptedModel struct {
	mu       sync.Mutex
	scripts  map[string][]scriptStep
	fallback []scriptStep
	calls    []recordedCall
}

func newScriptedModel() *scriptedModel {
	return &scriptedModel{scripts: make(map[string][]scriptStep)}
}

func (m *scriptedModel) on(system string, replies ...string) *scriptedModel {
	for _, r := range replies {
		m.scripts[system] = append(m.scripts[system], scriptStep{completion: framework.NewTextCompletion(r)})
	}
	return m
}

func (m *scriptedModel) reply(completions ...*framework.Completion) *scriptedModel {
	for _, c := range completions {
		m.fallback = append(m.fallback, scriptStep{completion: c})
	}
	return m
}

func (m *scriptedModel) fail(system string, err error) *scriptedModel {
	m.scripts[system] = append(m.scripts[system], scriptStep{err: err})
	return m
}

func (m *scriptedModel) Chat(ctx context.Context, messages []framework.Message, tools []framework.Tool, options *framework.LLMOptions) (*framework.Completion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	call := recordedCall{Messages: append([]framework.Message(nil), messages...)}
	if len(messages) > 0 && messages[0].Role == framework.RoleSystem {
		call.System = messages[0].Content
	}
	for _, t := range tools {
		call.Tools = append(call.Tools, t.Name())
	}
	if options != nil {
		call.Options = *options
	}
	m.calls = append(m.calls, call)

	queue, scripted := m.scripts[call.System]
	if !scripted {
		queue = m.fallback
	}
	if len(queue) == 0 {
		return nil, errors.New("script exhausted")
	}
	next := queue[0]
	if scripted {
		m.scripts[call.System] = queue[1:]
	} else {
		m.fallback = queue[1:]
	}
	return next.completion, next.err
}

func (m *scriptedModel) count(system string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.System == system {
			n++
		}
	}
	return n
}

func (m *scriptedModel) lastCall(system string) recordedCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.calls) - 1; i >= 0; i-- {
		if m.calls[i].System == system {
			return m.calls[i]
		}
	}
	return recordedCall{}
}

// echoTool answers "echo: <value>" and counts its invocations.
func echoTool(invocations *int) framework.Tool {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"value": map[string]interface{}{"type": "string"},
		},
		"required": []interface{}{"value"},
	}
	return framework.NewFuncTool("echo", "Echo a value back.", schema, func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		if invocations != nil {
			*invocations++
		}
		return "echo: " + args["value"].(string), nil
	})
}

func registryWith(tools ...framework.Tool) *framework.ToolRegistry {
	reg := framework.NewToolRegistry()
	reg.MustRegister(tools...)
	return reg
}

type progressLog struct {
	mu     sync.Mutex
	events []framework.Progress
}

func (l *progressLog) record(p framework.Progress) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, p)
}

func (l *progressLog) kinds(kind framework.ProgressKind) []framework.Progress {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []framework.Progress
	for _, e := range l.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}
