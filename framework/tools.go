package framework

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Tool is a named capability the model may call. Schema returns the JSON
// schema of the arguments object; the registry validates every call against
// it before Invoke runs.
type Tool interface {
	Name() string
	Description() string
	Schema() map[string]interface{}
	Invoke(ctx context.Context, args map[string]interface{}) (interface{}, error)
}

// ToolHandler is the function behind a FuncTool. It may return a string or
// any JSON-serializable value.
type ToolHandler func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// FuncTool adapts a plain function into a Tool.
type FuncTool struct {
	ToolName        string
	ToolDescription string
	Parameters      map[string]interface{}
	Handler         ToolHandler
}

// NewFuncTool builds a FuncTool.
func NewFuncTool(name, description string, parameters map[string]interface{}, handler ToolHandler) *FuncTool {
	return &FuncTool{ToolName: name, ToolDescription: description, Parameters: parameters, Handler: handler}
}

func (t *FuncTool) Name() string                   { return t.ToolName }
func (t *FuncTool) Description() string            { return t.ToolDescription }
func (t *FuncTool) Schema() map[string]interface{} { return t.Parameters }

// Invocable reports whether the tool has a handler.
func (t *FuncTool) Invocable() bool { return t != nil && t.Handler != nil }

// Invoke runs the handler.
func (t *FuncTool) Invoke(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	if t.Handler == nil {
		return nil, ErrNilHandler
	}
	return t.Handler(ctx, args)
}

// ToolDescriptor is the wire shape advertised to the backend.
type ToolDescriptor struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction describes the callable part of a descriptor.
type ToolFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// Describe renders the descriptor for a tool. A missing schema becomes an
// empty object schema.
func Describe(tool Tool) ToolDescriptor {
	params := tool.Schema()
	if params == nil {
		params = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
	}
	return ToolDescriptor{
		Type: "function",
		Function: ToolFunction{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  params,
		},
	}
}

// ToolOutcome is the result of invoking a tool through the registry: either a
// value or a ToolExecutionError, never a Go error.
type ToolOutcome struct {
	Tool  string
	Value interface{}
	Err   *ToolExecutionError
}

// Failed reports whether the invocation failed.
func (o ToolOutcome) Failed() bool { return o.Err != nil }

// Observation renders the outcome as text for the model. Strings pass
// through, other values become JSON, failures become "error: <message>".
func (o ToolOutcome) Observation() string {
	if o.Err != nil {
		return "error: " + o.Err.Error()
	}
	if s, ok := o.Value.(string); ok {
		return s
	}
	return MarshalText(o.Value)
}

type registeredTool struct {
	tool   Tool
	schema *jsonschema.Schema
}

// ToolRegistry maps names to tools. Iteration follows insertion order so the
// catalog shown to the model is reproducible; re-registering a name replaces
// the tool but keeps its position.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]registeredTool
	order []string
}

// NewToolRegistry builds a registry instance.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools: make(map[string]registeredTool),
	}
}

// Register adds or replaces a tool.
func (r *ToolRegistry) Register(tool Tool) error {
	if tool == nil {
		return ErrNilHandler
	}
	if checker, ok := tool.(interface{ Invocable() bool }); ok && !checker.Invocable() {
		return fmt.Errorf("register %s: %w", tool.Name(), ErrNilHandler)
	}
	name := tool.Name()
	if name == "" {
		return ErrToolNameEmpty
	}
	schema, err := compileSchema(name, tool.Schema())
	if err != nil {
		return fmt.Errorf("register %s: %w", name, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = registeredTool{tool: tool, schema: schema}
	return nil
}

// MustRegister registers tools and panics on the first failure. Intended for
// static toolkits assembled at startup.
func (r *ToolRegistry) MustRegister(tools ...Tool) {
	for _, tool := range tools {
		if err := r.Register(tool); err != nil {
			panic(err)
		}
	}
}

// Unregister removes a tool, reporting whether it existed.
func (r *ToolRegistry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[name]; !ok {
		return false
	}
	delete(r.tools, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Resolve fetches a tool by name.
func (r *ToolRegistry) Resolve(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.tools[name]
	return entry.tool, ok
}

// Has reports whether name is registered.
func (r *ToolRegistry) Has(name string) bool {
	_, ok := r.Resolve(name)
	return ok
}

// All returns tools in insertion order.
func (r *ToolRegistry) All() []Tool {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		res = append(res, r.tools[name].tool)
	}
	return res
}

// Names returns tool names in insertion order.
func (r *ToolRegistry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Len is the number of registered tools.
func (r *ToolRegistry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Descriptors renders the wire descriptors in insertion order.
func (r *ToolRegistry) Descriptors() []ToolDescriptor {
	all := r.All()
	out := make([]ToolDescriptor, 0, len(all))
	for _, tool := range all {
		out = append(out, Describe(tool))
	}
	return out
}

// Invoke validates args and runs the named tool. Every failure mode,
// including a panicking handler, is folded into the outcome.
func (r *ToolRegistry) Invoke(ctx context.Context, name string, args map[string]interface{}) (outcome ToolOutcome) {
	outcome.Tool = name
	r.mu.RLock()
	entry, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		outcome.Err = &ToolExecutionError{Tool: name, Unknown: true}
		return outcome
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	if msg, bad := args["_parse_error"]; bad && len(args) == 1 {
		outcome.Err = &ToolExecutionError{Tool: name, Message: fmt.Sprintf("invalid arguments: %v", msg)}
		return outcome
	}
	if err := validateArgs(entry.schema, args); err != nil {
		outcome.Err = &ToolExecutionError{Tool: name, Message: "invalid arguments: " + err.Error()}
		return outcome
	}
	defer func() {
		if rec := recover(); rec != nil {
			outcome.Value = nil
			outcome.Err = &ToolExecutionError{Tool: name, Message: fmt.Sprint(rec)}
		}
	}()
	value, err := entry.tool.Invoke(ctx, args)
	if err != nil {
		outcome.Err = &ToolExecutionError{Tool: name, Message: err.Error()}
		return outcome
	}
	outcome.Value = value
	return outcome
}

func compileSchema(name string, schema map[string]interface{}) (*jsonschema.Schema, error) {
	if len(schema) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}
	url := "mem://tools/" + name + ".json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return compiled, nil
}

// validateArgs round-trips args through JSON so the validator only sees the
// value types encoding/json produces.
func validateArgs(schema *jsonschema.Schema, args map[string]interface{}) error {
	if schema == nil {
		return nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return err
	}
	return schema.Validate(doc)
}
