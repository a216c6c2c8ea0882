package tui

import (
	"fmt"
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/lexcodex/thinkloop/agents"
)

// Command is a slash command of the chat.
type Command struct {
	Name        string
	Usage       string
	Description string
	Handler     func(m Model, args []string) (Model, tea.Cmd)
}

var commandRegistry = map[string]Command{}

func init() {
	registerCommand(Command{Name: "help", Usage: "/help", Description: "List commands", Handler: handleHelp})
	registerCommand(Command{Name: "reset", Usage: "/reset", Description: "Forget the conversation", Handler: handleReset})
	registerCommand(Command{Name: "mode", Usage: "/mode <name>", Description: "Switch agent mode (" + strings.Join(agents.ModeNames(), ", ") + ")", Handler: handleMode})
	registerCommand(Command{Name: "tools", Usage: "/tools", Description: "List the tools of this mode", Handler: handleTools})
	registerCommand(Command{Name: "clear", Usage: "/clear", Description: "Clear the feed", Handler: handleClear})
	registerCommand(Command{Name: "exit", Usage: "/exit", Description: "Quit", Handler: handleExit})
}

func registerCommand(cmd Command) {
	commandRegistry[cmd.Name] = cmd
}

func parseCommand(input string) (string, []string) {
	fields := strings.Fields(strings.TrimPrefix(strings.TrimSpace(input), "/"))
	if len(fields) == 0 {
		return "", nil
	}
	return strings.ToLower(fields[0]), fields[1:]
}

func (m Model) runCommand(input string) (tea.Model, tea.Cmd) {
	name, args := parseCommand(input)
	if name == "quit" {
		name = "exit"
	}
	cmd, ok := commandRegistry[name]
	if !ok {
		return m.system(fmt.Sprintf("unknown command /%s, try /help", name)), nil
	}
	next, teaCmd := cmd.Handler(m, args)
	return next, teaCmd
}

func handleHelp(m Model, _ []string) (Model, tea.Cmd) {
	names := make([]string, 0, len(commandRegistry))
	for name := range commandRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	lines := make([]string, 0, len(names))
	for _, name := range names {
		cmd := commandRegistry[name]
		lines = append(lines, fmt.Sprintf("%-14s %s", cmd.Usage, cmd.Description))
	}
	return m.system(strings.Join(lines, "\n")), nil
}

func handleReset(m Model, _ []string) (Model, tea.Cmd) {
	m.session.Reset()
	return m.system("Conversation reset."), nil
}

func handleMode(m Model, args []string) (Model, tea.Cmd) {
	if len(args) == 0 {
		return m.system(fmt.Sprintf("current mode: %s", m.mode)), nil
	}
	mode, err := agents.ParseMode(args[0])
	if err != nil {
		return m.system(err.Error()), nil
	}
	session, err := m.runtime.NewSession(mode, agents.SessionOptions{})
	if err != nil {
		return m.system(err.Error()), nil
	}
	m.session = session
	m.mode = mode
	m.status.mode = string(mode)
	m.status.tools = m.toolCount()
	return m.system(fmt.Sprintf("Switched to %s mode.", mode)), nil
}

func handleTools(m Model, _ []string) (Model, tea.Cmd) {
	registry, err := m.runtime.Registry(m.mode)
	if err != nil {
		return m.system(err.Error()), nil
	}
	if registry.Len() == 0 {
		return m.system("No tools available."), nil
	}
	lines := make([]string, 0, registry.Len())
	for _, tool := range registry.All() {
		lines = append(lines, tool.Name()+": "+tool.Description())
	}
	return m.system(strings.Join(lines, "\n")), nil
}

func handleClear(m Model, _ []string) (Model, tea.Cmd) {
	m.entries = nil
	return m.refresh(), nil
}

func handleExit(m Model, _ []string) (Model, tea.Cmd) {
	return m, tea.Quit
}
