package pattern

import (
	"encoding/json"
	"strings"
)

// ExtractJSON returns the outermost JSON object inside a string response,
// ignoring a surrounding code fence. It returns "" when no braces are present.
func ExtractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end >= start {
		return raw[start : end+1]
	}
	return ""
}

// decodeObject parses raw as a JSON object, reporting false on any failure.
func decodeObject(raw string) (map[string]interface{}, bool) {
	if raw == "" {
		return nil, false
	}
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}
