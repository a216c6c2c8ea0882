package pattern

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/lexcodex/thinkloop/framework"
)

var continuePattern = regexp.MustCompile(`(?is)^\s*decision:\s*continue\b`)

// Verdict is the Validator's judgement of a transcript.
type Verdict struct {
	Final  bool
	Answer string
	// Recognized is false when the reply matched neither marker and was
	// treated as "continue".
	Recognized bool
}

// ParseVerdict reads a Validator reply. "Final Answer:" ends the loop with
// the remainder as answer, "Decision: continue" keeps going, and any other
// shape is treated as continue.
func ParseVerdict(text string) Verdict {
	if m := finalAnswerPattern.FindStringSubmatch(text); m != nil {
		return Verdict{Final: true, Answer: strings.TrimSpace(m[1]), Recognized: true}
	}
	if continuePattern.MatchString(text) {
		return Verdict{Recognized: true}
	}
	return Verdict{}
}

// Validator decides whether the transcript already answers the goal.
type Validator struct {
	loop *ToolLoopAgent
}

// NewValidator builds a Validator over model. An empty systemPrompt selects
// ValidatorSystemPrompt.
func NewValidator(model framework.ChatModel, systemPrompt string) *Validator {
	return &Validator{loop: subRole(model, firstNonEmpty(systemPrompt, ValidatorSystemPrompt))}
}

// Judge asks for a verdict on the latest step given the full transcript.
func (v *Validator) Judge(ctx context.Context, goal, lastStep, transcript string) (*framework.AskResult, Verdict, error) {
	res, err := v.loop.Ask(ctx, validatorPrompt(goal, lastStep, transcript))
	if err != nil {
		return nil, Verdict{}, err
	}
	verdict := ParseVerdict(res.Content)
	if !verdict.Recognized {
		slog.Warn("validator reply matched no marker, continuing",
			"component", "react", "reply", clipText(res.Content, 200))
	}
	return res, verdict, nil
}

// Finalize forces an answer from the transcript. The text after the last
// "Final Answer:" is used; a reply without the marker is used whole.
func (v *Validator) Finalize(ctx context.Context, goal, transcript string) (*framework.AskResult, string, error) {
	res, err := v.loop.Ask(ctx, finalizePrompt(goal, transcript))
	if err != nil {
		return nil, "", err
	}
	_, final := framework.SplitTranscriptAndFinal(res.Content)
	if final == "" {
		final = strings.TrimSpace(res.Content)
	}
	return res, final, nil
}
