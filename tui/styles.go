package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/lexcodex/thinkloop/framework"
)

// Palette shared with the line-oriented CLI output.
var (
	inkPlan    = lipgloss.Color("#B48EAD")
	inkThought = lipgloss.Color("#81A1C1")
	inkTool    = lipgloss.Color("#EBCB8B")
	inkObserve = lipgloss.Color("#8FBCBB")
	inkAnswer  = lipgloss.Color("#A3BE8C")
	inkNotice  = lipgloss.Color("#D08770")
	inkFailure = lipgloss.Color("#BF616A")
	inkMuted   = lipgloss.Color("#4C566A")
	inkPanel   = lipgloss.Color("#2E3440")
	inkText    = lipgloss.Color("#ECEFF4")
)

var (
	questionLabel = lipgloss.NewStyle().Bold(true).Foreground(inkThought)
	agentLabel    = lipgloss.NewStyle().Bold(true).Foreground(inkAnswer)

	// Intermediate steps by progress kind; unknown kinds use observationStyle.
	stepStyles = map[framework.ProgressKind]lipgloss.Style{
		framework.ProgressPlan:    lipgloss.NewStyle().Foreground(inkPlan).PaddingLeft(2),
		framework.ProgressThink:   lipgloss.NewStyle().Foreground(inkThought).Italic(true).PaddingLeft(2),
		framework.ProgressTool:    lipgloss.NewStyle().Foreground(inkTool).PaddingLeft(2),
		framework.ProgressObserve: observationStyle,
		framework.ProgressJudge:   lipgloss.NewStyle().Foreground(inkMuted).PaddingLeft(2),
	}
	observationStyle = lipgloss.NewStyle().Foreground(inkObserve).Faint(true).PaddingLeft(2)

	answerStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderLeft(true).
			BorderForeground(inkAnswer).
			PaddingLeft(1)

	noticeStyle   = lipgloss.NewStyle().Foreground(inkNotice)
	failureStyle  = lipgloss.NewStyle().Bold(true).Foreground(inkFailure)
	hintStyle     = lipgloss.NewStyle().Foreground(inkMuted)
	greetingStyle = lipgloss.NewStyle().Foreground(inkMuted).Italic(true)

	statusBarStyle = lipgloss.NewStyle().Background(inkPanel).Foreground(inkText).Padding(0, 1)
	inputBarStyle  = lipgloss.NewStyle().Background(inkPanel).Padding(0, 1)
)

func stepStyle(kind framework.ProgressKind) lipgloss.Style {
	if s, ok := stepStyles[kind]; ok {
		return s
	}
	return observationStyle
}
