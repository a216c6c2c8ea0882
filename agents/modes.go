package agents

import (
	"fmt"
	"sort"
	"strings"
)

// Mode names an agent composition the drivers can run.
type Mode string

const (
	ModeTool     Mode = "tool"
	ModeReact    Mode = "react"
	ModeNext     Mode = "next"
	ModePlanner  Mode = "planner"
	ModeResearch Mode = "research"
	defaultMode       = ModeTool
)

// ModeProfile documents a mode and the toolkits it needs at minimum.
type ModeProfile struct {
	Name        Mode
	Title       string
	Description string
	// Toolkits are added to the configured ones when the mode runs.
	Toolkits []string
	// Citations post-processes answers into [n] markers plus a Sources list.
	Citations bool
}

var modeProfiles = map[Mode]ModeProfile{
	ModeTool: {
		Name:        ModeTool,
		Title:       "Tool loop",
		Description: "Single conversation with native tool calling; history is kept across turns.",
	},
	ModeReact: {
		Name:        ModeReact,
		Title:       "ReAct",
		Description: "Thinker, Operator and Validator steps until a final answer or the step budget.",
	},
	ModeNext: {
		Name:        ModeNext,
		Title:       "Plan then act",
		Description: "A planner drafts steps, a ReAct executor carries them out, scoped memory links turns.",
	},
	ModePlanner: {
		Name:        ModePlanner,
		Title:       "Planner and worker",
		Description: "A brief plan followed by a tool-calling worker that follows it.",
	},
	ModeResearch: {
		Name:        ModeResearch,
		Title:       "Research",
		Description: "Web search and page fetching with inline citations.",
		Toolkits:    []string{"web"},
		Citations:   true,
	},
}

// ParseMode resolves a mode name; the empty string selects the default.
func ParseMode(raw string) (Mode, error) {
	name := Mode(strings.ToLower(strings.TrimSpace(raw)))
	if name == "" {
		return defaultMode, nil
	}
	if _, ok := modeProfiles[name]; !ok {
		return "", fmt.Errorf("unknown mode %q (available: %s)", raw, strings.Join(ModeNames(), ", "))
	}
	return name, nil
}

// Profile returns the profile for a mode.
func Profile(mode Mode) (ModeProfile, bool) {
	p, ok := modeProfiles[mode]
	return p, ok
}

// ModeNames lists the known modes.
func ModeNames() []string {
	names := make([]string, 0, len(modeProfiles))
	for name := range modeProfiles {
		names = append(names, string(name))
	}
	sort.Strings(names)
	return names
}
