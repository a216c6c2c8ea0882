package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/lexcodex/thinkloop/framework"
	"github.com/lexcodex/thinkloop/tui"
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	stepStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))
	answerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FAFAFA"))
	nameStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#04B575"))
	noticeStyle  = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("#FFA500"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF5F5F"))
)

// progressPrinter streams agent events to w, one styled block per event.
func progressPrinter(w io.Writer) framework.ProgressFunc {
	return func(p framework.Progress) {
		fmt.Fprintln(w, stepStyle.Render(tui.FormatProgress(p)))
	}
}

// printResult writes the answer. With showTranscript the reasoning trail is
// printed above the final answer when the agent produced one.
func printResult(w io.Writer, res *framework.AskResult, showTranscript bool) {
	if res == nil {
		return
	}
	content := strings.TrimSpace(res.Content)
	if showTranscript {
		transcript := strings.TrimSpace(res.Transcript)
		final := content
		if transcript == "" {
			transcript, final = framework.SplitTranscriptAndFinal(content)
		} else if _, f := framework.SplitTranscriptAndFinal(content); f != "" {
			final = f
		}
		if transcript = strings.TrimSpace(transcript); transcript != "" && strings.TrimSpace(final) != "" {
			fmt.Fprintln(w, headingStyle.Render("Transcript"))
			fmt.Fprintln(w, stepStyle.Render(transcript))
			fmt.Fprintln(w)
			fmt.Fprintln(w, headingStyle.Render("Final Answer"))
			content = strings.TrimSpace(final)
		}
	}
	fmt.Fprintln(w, answerStyle.Render(content))
}

func printNotice(w io.Writer, text string) {
	fmt.Fprintln(w, noticeStyle.Render(text))
}

func printError(w io.Writer, err error) {
	fmt.Fprintln(w, errorStyle.Render("error: "+err.Error()))
}

func printTools(w io.Writer, registry *framework.ToolRegistry) {
	if registry.Len() == 0 {
		printNotice(w, "No tools available.")
		return
	}
	for _, tool := range registry.All() {
		fmt.Fprintf(w, "%s  %s\n", nameStyle.Render(tool.Name()), tool.Description())
	}
}
