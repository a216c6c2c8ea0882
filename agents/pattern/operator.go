package pattern

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/lexcodex/thinkloop/framework"
)

// Tool names the Operator infers from free text.
const (
	FetchPageTool = "fetch_page"
	WebSearchTool = "web_search"
)

var (
	actionURLPattern    = regexp.MustCompile(`https?://[^\s<>"'\)\]\}]+`)
	quotedSearchPattern = regexp.MustCompile(`(?i)\b(?:search|look\s+up|find)\b[^"“”]*?["“]([^"“”]+)["”]`)
	bareSearchPattern   = regexp.MustCompile(`(?i)\b(?:search(?:\s+(?:for|about))?|look\s+up|find)\s+(.+)$`)
)

// Operation is what the Operator did for one action.
type Operation struct {
	Observation string
	// Tool and Args are set when a tool was invoked.
	Tool    string
	Args    map[string]interface{}
	Invoked bool
	Failed  bool
	// Done marks a finish action.
	Done bool
}

// Operator maps actions to tool invocations. Freeform text is matched
// against a fixed rule order: a URL opens the page, a search phrase runs a
// web search, anything else reports that no tool was selected.
type Operator struct {
	Tools     *framework.ToolRegistry
	Telemetry framework.Telemetry
}

// Operate carries out action and returns the observation. Tool failures are
// part of the observation, never an error.
func (o *Operator) Operate(ctx context.Context, action ActionSpec, progress framework.ProgressFunc) Operation {
	switch action.Kind {
	case ActionFinish:
		return Operation{Observation: action.Say, Done: true}
	case ActionTool:
		if !o.has(action.Name) {
			return Operation{
				Observation: fmt.Sprintf("error: unknown tool '%s'. Available tools: %s", action.Name, o.available()),
				Failed:      true,
			}
		}
		return o.invoke(ctx, action.Name, action.Args, progress)
	}
	if name, args, ok := o.Infer(action.Say); ok {
		return o.invoke(ctx, name, args, progress)
	}
	return Operation{
		Observation: "no_tool_selected: could not map the action to a tool. Available tools: " + o.available(),
	}
}

// Infer resolves freeform text to a tool call. Rules only fire when their
// tool is registered and are tried in order: URL, quoted search phrase,
// unquoted search tail.
func (o *Operator) Infer(text string) (string, map[string]interface{}, bool) {
	if o.has(FetchPageTool) {
		if url := actionURLPattern.FindString(text); url != "" {
			url = strings.TrimRight(url, ".,;:!?'\"")
			return FetchPageTool, map[string]interface{}{"url": url}, true
		}
	}
	if !o.has(WebSearchTool) {
		return "", nil, false
	}
	if m := quotedSearchPattern.FindStringSubmatch(text); m != nil {
		if q := strings.TrimSpace(m[1]); q != "" {
			return WebSearchTool, map[string]interface{}{"query": q}, true
		}
	}
	if m := bareSearchPattern.FindStringSubmatch(text); m != nil {
		if q := strings.TrimSpace(strings.TrimRight(strings.TrimSpace(m[1]), ".!?")); q != "" {
			return WebSearchTool, map[string]interface{}{"query": q}, true
		}
	}
	return "", nil, false
}

func (o *Operator) invoke(ctx context.Context, name string, args map[string]interface{}, progress framework.ProgressFunc) Operation {
	if args == nil {
		args = map[string]interface{}{}
	}
	progress.Notify(framework.Progress{Kind: framework.ProgressTool, Tool: name, Args: args})
	framework.Emit(o.Telemetry, framework.Event{Type: framework.EventToolCall, Message: name, Metadata: map[string]interface{}{"args": args}})
	outcome := o.Tools.Invoke(ctx, name, args)
	framework.Emit(o.Telemetry, framework.Event{Type: framework.EventToolResult, Message: name, Metadata: map[string]interface{}{"failed": outcome.Failed()}})
	return Operation{
		Observation: outcome.Observation(),
		Tool:        name,
		Args:        args,
		Invoked:     true,
		Failed:      outcome.Failed(),
	}
}

func (o *Operator) has(name string) bool {
	return o.Tools != nil && o.Tools.Has(name)
}

func (o *Operator) available() string {
	if o.Tools == nil || o.Tools.Len() == 0 {
		return "(none)"
	}
	return strings.Join(o.Tools.Names(), ", ")
}
