package pattern

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/lexcodex/thinkloop/framework"
)

// ActionKind tags the variants of ActionSpec.
type ActionKind string

const (
	ActionTool     ActionKind = "tool"
	ActionFinish   ActionKind = "finish"
	ActionFreeform ActionKind = "freeform"
)

// ActionSpec is what the Thinker proposes and the Operator carries out.
// Tool actions use Name and Args; finish and freeform actions use Say.
type ActionSpec struct {
	Kind ActionKind             `json:"kind"`
	Name string                 `json:"name,omitempty"`
	Args map[string]interface{} `json:"args,omitempty"`
	Say  string                 `json:"say,omitempty"`
}

// String renders the action the way it appears in transcripts.
func (a ActionSpec) String() string {
	switch a.Kind {
	case ActionTool:
		args := a.Args
		if args == nil {
			args = map[string]interface{}{}
		}
		return a.Name + " " + framework.MarshalText(args)
	case ActionFinish:
		return "finish"
	default:
		return a.Say
	}
}

// ReActStep is one Thought/Action/Observation triple. Steps are never
// modified once appended.
type ReActStep struct {
	Index       int        `json:"index"`
	Thought     string     `json:"thought"`
	Action      ActionSpec `json:"action"`
	Observation string     `json:"observation"`
}

// Text renders the step for the model-facing transcript.
func (s ReActStep) Text() string {
	return fmt.Sprintf("Step %d\nThought: %s\nAction: %s\nObservation: %s", s.Index, s.Thought, s.Action, s.Observation)
}

var (
	finalAnswerPattern  = regexp.MustCompile(`(?is)^\s*final answer:\s*(.*)$`)
	thoughtLabelPattern = regexp.MustCompile(`(?im)^\s*thought:\s*`)
	actionLabelPattern  = regexp.MustCompile(`(?im)^\s*action:\s*`)
)

// ParseThinkerOutput splits a Thinker reply into a thought and an action.
// A leading "Final Answer:" yields a finish action; otherwise the
// Thought:/Action: labels are located line by line. Action text that is a
// JSON object naming a tool becomes a tool action, anything else stays
// freeform.
func ParseThinkerOutput(text string) (string, ActionSpec) {
	if m := finalAnswerPattern.FindStringSubmatch(text); m != nil {
		return "", ActionSpec{Kind: ActionFinish, Say: strings.TrimSpace(m[1])}
	}
	actionLoc := actionLabelPattern.FindStringIndex(text)
	thoughtLoc := thoughtLabelPattern.FindStringIndex(text)
	if actionLoc == nil && thoughtLoc == nil {
		trimmed := strings.TrimSpace(text)
		return trimmed, ActionSpec{Kind: ActionFreeform, Say: trimmed}
	}

	var thought, actionText string
	switch {
	case actionLoc == nil:
		thought = text[thoughtLoc[1]:]
	case thoughtLoc == nil:
		thought = text[:actionLoc[0]]
		actionText = text[actionLoc[1]:]
	case thoughtLoc[0] < actionLoc[0]:
		thought = text[thoughtLoc[1]:actionLoc[0]]
		actionText = text[actionLoc[1]:]
	default:
		actionText = text[actionLoc[1]:thoughtLoc[0]]
		thought = text[thoughtLoc[1]:]
	}
	thought = strings.TrimSpace(thought)
	actionText = strings.TrimSpace(actionText)
	return thought, parseAction(actionText)
}

func parseAction(text string) ActionSpec {
	if m := finalAnswerPattern.FindStringSubmatch(text); m != nil {
		return ActionSpec{Kind: ActionFinish, Say: strings.TrimSpace(m[1])}
	}
	trimmed := strings.TrimSpace(strings.Trim(strings.TrimSpace(text), "`"))
	trimmed = strings.TrimPrefix(trimmed, "json")
	if strings.HasPrefix(strings.TrimSpace(trimmed), "{") {
		if obj, ok := decodeObject(ExtractJSON(trimmed)); ok {
			name := ""
			for _, key := range []string{"tool", "name"} {
				if s, ok := obj[key].(string); ok && strings.TrimSpace(s) != "" {
					name = strings.TrimSpace(s)
					break
				}
			}
			if name != "" {
				return ActionSpec{Kind: ActionTool, Name: name, Args: actionArgs(obj)}
			}
		}
	}
	return ActionSpec{Kind: ActionFreeform, Say: text}
}

func actionArgs(obj map[string]interface{}) map[string]interface{} {
	for _, key := range []string{"args", "arguments"} {
		switch v := obj[key].(type) {
		case map[string]interface{}:
			return v
		case string:
			var parsed map[string]interface{}
			if err := json.Unmarshal([]byte(v), &parsed); err == nil && parsed != nil {
				return parsed
			}
		}
	}
	return map[string]interface{}{}
}

// Thinker proposes the next thought and action. It is a tool-less,
// history-free single-round tool loop.
type Thinker struct {
	loop *ToolLoopAgent
}

// NewThinker builds a Thinker over model. An empty systemPrompt selects
// ThinkerSystemPrompt.
func NewThinker(model framework.ChatModel, systemPrompt string) *Thinker {
	return &Thinker{loop: subRole(model, firstNonEmpty(systemPrompt, ThinkerSystemPrompt))}
}

// Think returns the raw reply and its parsed form.
func (t *Thinker) Think(ctx context.Context, goal, catalog, history string) (*framework.AskResult, string, ActionSpec, error) {
	res, err := t.loop.Ask(ctx, thinkerPrompt(goal, catalog, history))
	if err != nil {
		return nil, "", ActionSpec{}, err
	}
	thought, action := ParseThinkerOutput(res.Content)
	return res, thought, action, nil
}

// subRole configures a tool loop for the Thinker and Validator: no tools,
// no history, one backend call.
func subRole(model framework.ChatModel, systemPrompt string) *ToolLoopAgent {
	loop := NewToolLoopAgent(model, nil)
	loop.SystemPrompt = systemPrompt
	loop.KeepHistory = false
	loop.MaxRounds = 1
	loop.MaxToolIters = 0
	loop.DisableInlineTools = true
	return loop
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
