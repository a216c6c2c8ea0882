package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// StatusBar renders model, mode, token and timing metadata.
type StatusBar struct {
	model    string
	mode     string
	tools    int
	tokens   int
	duration time.Duration
}

func (s StatusBar) View(width int) string {
	left := fmt.Sprintf("model %s | mode %s | %d tools", orDash(s.model), s.mode, s.tools)
	right := fmt.Sprintf("%s tokens | %s", formatTokens(s.tokens), formatDuration(s.duration))
	padding := width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if padding < 1 {
		padding = 1
	}
	return statusBarStyle.Render(left + strings.Repeat(" ", padding) + right)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatTokens(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("%.1fk", float64(n)/1000)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Round(100 * time.Millisecond).String()
}
