package framework

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	citationMarkerPattern = regexp.MustCompile(`\[[0-9]+\]`)
	sourcesHeadingPattern = regexp.MustCompile(`(?mi)^\s*(sources|references)\b`)
	bareURLPattern        = regexp.MustCompile(`https?://[^\s\]\)>\}"']+`)
)

// FormatInlineCitations replaces bare http(s) URLs with [n] markers numbered
// by first appearance and appends a Sources block. Text that already has
// [n] markers or a Sources/References heading is returned unchanged, which
// makes the function idempotent.
func FormatInlineCitations(text string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	if citationMarkerPattern.MatchString(text) || sourcesHeadingPattern.MatchString(text) {
		return text
	}
	var seen []string
	index := map[string]int{}
	replaced := bareURLPattern.ReplaceAllStringFunc(text, func(url string) string {
		trimmed := strings.TrimRight(url, `.,);:'"]`)
		suffix := url[len(trimmed):]
		n, ok := index[trimmed]
		if !ok {
			seen = append(seen, trimmed)
			n = len(seen)
			index[trimmed] = n
		}
		return fmt.Sprintf("[%d]%s", n, suffix)
	})
	if len(seen) == 0 {
		return text
	}
	var b strings.Builder
	b.WriteString(strings.TrimRight(replaced, " \t\r\n"))
	b.WriteString("\n\nSources\n")
	for i, url := range seen {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, url)
	}
	return b.String()
}
