package tui

import (
	"fmt"
	"strings"

	"github.com/lexcodex/thinkloop/framework"
)

const observationPreview = 240

// FormatProgress renders one progress event as a short status line. The
// line-oriented CLI drivers use it too.
func FormatProgress(p framework.Progress) string {
	prefix := ""
	if p.Step > 0 {
		prefix = fmt.Sprintf("[%d] ", p.Step)
	}
	switch p.Kind {
	case framework.ProgressPlan:
		return "plan:\n" + strings.TrimSpace(p.Text)
	case framework.ProgressThink:
		var b strings.Builder
		b.WriteString(prefix + "thought: " + oneLine(p.Thought))
		if action := strings.TrimSpace(strings.Join(nonEmpty(p.ActionKind, p.ActionName, p.ActionSay), " ")); action != "" {
			b.WriteString("\n" + prefix + "action: " + oneLine(action))
		}
		return b.String()
	case framework.ProgressTool:
		args := "{}"
		if len(p.Args) > 0 {
			args = framework.MarshalText(p.Args)
		}
		return prefix + "tool " + p.Tool + " " + args
	case framework.ProgressObserve:
		return prefix + "observation: " + clip(oneLine(p.Observation), observationPreview)
	case framework.ProgressJudge:
		if p.Decision == "final" {
			return prefix + "validator: final"
		}
		return prefix + "validator: continue"
	default:
		return prefix + oneLine(p.Text)
	}
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
