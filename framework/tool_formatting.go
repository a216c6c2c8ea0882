package framework

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Catalog renders the registry as a listing the model can read: name,
// description and argument schema per tool, in insertion order.
func (r *ToolRegistry) Catalog() string {
	return RenderToolsToPrompt(r.All())
}

// RenderToolsToPrompt converts tool definitions into a schema-like string.
func RenderToolsToPrompt(tools []Tool) string {
	if len(tools) == 0 {
		return "No tools available."
	}
	var b strings.Builder
	for _, tool := range tools {
		b.WriteString(fmt.Sprintf("## %s\n", tool.Name()))
		if desc := strings.TrimSpace(tool.Description()); desc != "" {
			b.WriteString(desc + "\n")
		}
		schema := tool.Schema()
		propMap, _ := schema["properties"].(map[string]interface{})
		props, required := schemaProperties(schema)
		if len(props) == 0 {
			b.WriteString("Arguments: (none)\n\n")
			continue
		}
		b.WriteString("Arguments:\n")
		for _, name := range props {
			prop, _ := propMap[name].(map[string]interface{})
			req := "optional"
			if required[name] {
				req = "required"
			}
			typ := fmt.Sprint(prop["type"])
			if prop["type"] == nil {
				typ = "any"
			}
			line := fmt.Sprintf("  - %s (%s, %s)", name, typ, req)
			if desc, ok := prop["description"].(string); ok && desc != "" {
				line += ": " + desc
			}
			b.WriteString(line + "\n")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// schemaProperties returns property names sorted with required ones first
// (in their declared order), then the rest alphabetically.
func schemaProperties(schema map[string]interface{}) ([]string, map[string]bool) {
	props, _ := schema["properties"].(map[string]interface{})
	required := map[string]bool{}
	var names []string
	switch req := schema["required"].(type) {
	case []interface{}:
		for _, v := range req {
			if s, ok := v.(string); ok {
				if _, exists := props[s]; exists && !required[s] {
					required[s] = true
					names = append(names, s)
				}
			}
		}
	case []string:
		for _, s := range req {
			if _, exists := props[s]; exists && !required[s] {
				required[s] = true
				names = append(names, s)
			}
		}
	}
	var optional []string
	for name := range props {
		if !required[name] {
			optional = append(optional, name)
		}
	}
	sort.Strings(optional)
	return append(names, optional...), required
}

var (
	inlineTagPattern   = regexp.MustCompile(`(?s)<(tools|tool_call|tool)>\s*(\{.*?\})\s*</(tools|tool_call|tool)>`)
	inlineFencePattern = regexp.MustCompile("(?s)```[a-zA-Z0-9_-]*\\s*(\\{.*?\\})\\s*```")
)

// ParseInlineToolCalls extracts tool calls some models embed in their text
// instead of using the structured protocol. Tag forms (<tools>, <tool_call>,
// <tool>) are scanned before fenced JSON blocks. Each object must name a tool
// via name, tool or function.name; arguments come from arguments, args or
// function.arguments. Synthesized ids are inline-<n>-<name>.
func ParseInlineToolCalls(text string) []ToolCall {
	var calls []ToolCall
	add := func(raw string) {
		var obj map[string]interface{}
		if err := json.Unmarshal([]byte(raw), &obj); err != nil {
			return
		}
		fn, _ := obj["function"].(map[string]interface{})
		name := firstString(obj["name"], obj["tool"], fn["name"])
		if name == "" {
			return
		}
		args := firstPresent(obj["arguments"], obj["args"], fn["arguments"])
		argText := "{}"
		switch v := args.(type) {
		case string:
			argText = v
		case map[string]interface{}:
			argText = MarshalText(v)
		}
		calls = append(calls, ToolCall{
			ID:        fmt.Sprintf("inline-%d-%s", len(calls), name),
			Name:      name,
			Arguments: argText,
		})
	}
	for _, m := range inlineTagPattern.FindAllStringSubmatch(text, -1) {
		// RE2 has no backreferences; enforce matching open/close tags here.
		if m[1] != m[3] {
			continue
		}
		add(m[2])
	}
	for _, m := range inlineFencePattern.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	return calls
}

func firstString(values ...interface{}) string {
	for _, v := range values {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// firstPresent returns the first value that is neither nil, an empty string
// nor an empty map.
func firstPresent(values ...interface{}) interface{} {
	for _, v := range values {
		switch t := v.(type) {
		case nil:
			continue
		case string:
			if t != "" {
				return t
			}
		case map[string]interface{}:
			if len(t) > 0 {
				return t
			}
		default:
			return t
		}
	}
	return nil
}
