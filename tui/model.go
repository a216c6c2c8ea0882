// Package tui is the full-screen chat driver: a scrollable feed of turns
// with live agent steps, a prompt bar and a status bar.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lexcodex/thinkloop/agents"
	"github.com/lexcodex/thinkloop/framework"
)

// Role tags a feed entry.
type Role string

const (
	RoleUser   Role = "user"
	RoleAgent  Role = "agent"
	RoleSystem Role = "system"
	RoleError  Role = "error"
)

// Step is one intermediate agent event shown above the answer.
type Step struct {
	Kind framework.ProgressKind
	Text string
}

// Entry is one block of the feed.
type Entry struct {
	Role  Role
	Text  string
	Steps []Step
}

// progressMsg carries one agent event into the update loop.
type progressMsg struct{ progress framework.Progress }

// answerMsg ends a turn.
type answerMsg struct {
	result  *framework.AskResult
	elapsed time.Duration
}

// failedMsg ends a turn with an error.
type failedMsg struct{ err error }

// Model is the Bubble Tea model of the chat.
type Model struct {
	ctx     context.Context
	runtime *agents.Runtime
	session agents.Session
	mode    agents.Mode

	input   textinput.Model
	feed    viewport.Model
	spinner spinner.Model
	status  StatusBar

	entries  []Entry
	live     *Entry
	streamCh chan tea.Msg
	busy     bool

	ready  bool
	width  int
	height int
}

// Run launches the program and blocks until the user quits.
func Run(ctx context.Context, rt *agents.Runtime, mode agents.Mode) error {
	m, err := NewModel(ctx, rt, mode)
	if err != nil {
		return err
	}
	program := tea.NewProgram(m, tea.WithContext(ctx), tea.WithAltScreen())
	_, err = program.Run()
	return err
}

// NewModel builds the initial model with a fresh session for mode.
func NewModel(ctx context.Context, rt *agents.Runtime, mode agents.Mode) (Model, error) {
	session, err := rt.NewSession(mode, agents.SessionOptions{})
	if err != nil {
		return Model{}, err
	}
	input := textinput.New()
	input.Placeholder = "Ask something, or /help for commands"
	input.CharLimit = 4000
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(inkTool)

	m := Model{
		ctx:     ctx,
		runtime: rt,
		session: session,
		mode:    mode,
		input:   input,
		spinner: sp,
		status:  StatusBar{model: rt.ModelID, mode: string(mode)},
	}
	m.status.tools = m.toolCount()
	return m, nil
}

func (m Model) toolCount() int {
	registry, err := m.runtime.Registry(m.mode)
	if err != nil {
		return 0
	}
	return registry.Len()
}

// Entries returns the finished feed entries.
func (m Model) Entries() []Entry {
	return append([]Entry(nil), m.entries...)
}

// Busy reports whether a turn is running.
func (m Model) Busy() bool { return m.busy }

// Init fulfills the Bubble Tea Model interface.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update applies incoming Bubble Tea messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg), nil
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "ctrl+d":
			return m, tea.Quit
		case "ctrl+l":
			m.entries = nil
			return m.refresh(), nil
		case "enter":
			return m.submit()
		case "up", "down", "pgup", "pgdown":
			var cmd tea.Cmd
			m.feed, cmd = m.feed.Update(msg)
			return m, cmd
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case progressMsg:
		if m.live != nil {
			m.live.Steps = append(m.live.Steps, Step{Kind: msg.progress.Kind, Text: FormatProgress(msg.progress)})
		}
		return m.refresh(), listen(m.streamCh)
	case answerMsg:
		return m.finish(msg), nil
	case failedMsg:
		m.busy = false
		m.live = nil
		m.streamCh = nil
		m.entries = append(m.entries, Entry{Role: RoleError, Text: "agent error: " + msg.err.Error()})
		return m.refresh(), nil
	}
	return m, nil
}

func (m Model) handleResize(msg tea.WindowSizeMsg) Model {
	m.width = msg.Width
	m.height = msg.Height
	feedHeight := max(1, msg.Height-2)
	if !m.ready {
		m.feed = viewport.New(msg.Width, feedHeight)
		m.ready = true
	} else {
		m.feed.Width = msg.Width
		m.feed.Height = feedHeight
	}
	m.input.Width = max(10, msg.Width-6)
	return m.refresh()
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	value := strings.TrimSpace(m.input.Value())
	if value == "" || m.busy {
		return m, nil
	}
	m.input.SetValue("")
	if strings.HasPrefix(value, "/") {
		return m.runCommand(value)
	}
	m.entries = append(m.entries, Entry{Role: RoleUser, Text: value})
	m.live = &Entry{Role: RoleAgent}
	m.busy = true
	ch := make(chan tea.Msg, 32)
	m.streamCh = ch
	go ask(m.ctx, m.session, value, ch)
	return m.refresh(), tea.Batch(listen(ch), m.spinner.Tick)
}

// ask runs one turn and reports its events on ch, then closes it.
func ask(ctx context.Context, session agents.Session, prompt string, ch chan<- tea.Msg) {
	defer close(ch)
	send := func(msg tea.Msg) {
		select {
		case ch <- msg:
		case <-ctx.Done():
		}
	}
	start := time.Now()
	res, err := session.AskWithProgress(ctx, prompt, func(p framework.Progress) {
		send(progressMsg{progress: p})
	})
	if err != nil {
		send(failedMsg{err: err})
		return
	}
	send(answerMsg{result: res, elapsed: time.Since(start)})
}

// listen adapts the turn channel to Bubble Tea commands.
func listen(ch <-chan tea.Msg) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}

func (m Model) finish(msg answerMsg) Model {
	entry := Entry{Role: RoleAgent}
	if m.live != nil {
		entry = *m.live
	}
	entry.Text = strings.TrimSpace(msg.result.Content)
	m.entries = append(m.entries, entry)
	if msg.result.Usage != nil {
		m.status.tokens += msg.result.Usage.TotalTokens
	}
	m.status.duration += msg.elapsed
	m.busy = false
	m.live = nil
	m.streamCh = nil
	return m.refresh()
}

func (m Model) system(text string) Model {
	m.entries = append(m.entries, Entry{Role: RoleSystem, Text: text})
	return m.refresh()
}

func (m Model) refresh() Model {
	if !m.ready {
		return m
	}
	m.feed.SetContent(m.renderEntries())
	m.feed.GotoBottom()
	return m
}

// View composes the feed, prompt bar and status bar.
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.feed.View(), m.renderPromptBar(), m.status.View(m.width))
}

func (m Model) renderEntries() string {
	entries := m.entries
	if m.live != nil {
		entries = append(append([]Entry(nil), entries...), *m.live)
	}
	if len(entries) == 0 {
		return greetingStyle.Render(fmt.Sprintf("Mode %s. Type a question, /help for commands.", m.mode))
	}
	width := max(20, m.width-4)
	blocks := make([]string, 0, len(entries))
	for _, e := range entries {
		blocks = append(blocks, renderEntry(e, width))
	}
	return strings.Join(blocks, "\n\n")
}

func renderEntry(e Entry, width int) string {
	switch e.Role {
	case RoleUser:
		return questionLabel.Render("you") + "\n" + lipgloss.NewStyle().Width(width).Render(e.Text)
	case RoleSystem:
		return noticeStyle.Width(width).Render(e.Text)
	case RoleError:
		return failureStyle.Width(width).Render(e.Text)
	}
	var b strings.Builder
	b.WriteString(agentLabel.Render("agent"))
	for _, step := range e.Steps {
		b.WriteString("\n" + stepStyle(step.Kind).Width(width).Render(step.Text))
	}
	if e.Text != "" {
		b.WriteString("\n" + answerStyle.Width(width).Render(e.Text))
	}
	return b.String()
}

func (m Model) renderPromptBar() string {
	prefix := "> "
	if m.busy {
		prefix = m.spinner.View() + " "
	}
	hint := hintStyle.Render(" enter to send | /help | ctrl+c to quit")
	return inputBarStyle.Width(m.width).Render(prefix + m.input.View() + hint)
}
