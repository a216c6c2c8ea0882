package framework

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Summarizer compresses text into roughly maxChars characters.
type Summarizer interface {
	Summarize(ctx context.Context, text string, maxChars int) (string, error)
}

// SummarizerFunc adapts a function into a Summarizer.
type SummarizerFunc func(ctx context.Context, text string, maxChars int) (string, error)

// Summarize implements Summarizer.
func (f SummarizerFunc) Summarize(ctx context.Context, text string, maxChars int) (string, error) {
	return f(ctx, text, maxChars)
}

// NaiveSummarize keeps a prefix and a suffix of half the budget each, joined
// by an ellipsis, so both the earliest framing and the latest detail survive.
func NaiveSummarize(text string, maxChars int) string {
	if maxChars <= 0 || text == "" {
		return ""
	}
	if runeLen(text) <= maxChars {
		return text
	}
	take := maxChars / 2
	if take == 0 {
		return firstRunes(text, maxChars)
	}
	return strings.TrimRight(firstRunes(text, take), " \t\r\n") + " … " + strings.TrimLeft(lastRunes(text, take), " \t\r\n")
}

// ModelSummarizer asks a chat model for a compact summary. Callers such as
// ScopedMemory fall back to NaiveSummarize when it fails.
type ModelSummarizer struct {
	Model   ChatModel
	Options *LLMOptions
}

// Summarize implements Summarizer.
func (s *ModelSummarizer) Summarize(ctx context.Context, text string, maxChars int) (string, error) {
	if s == nil || s.Model == nil {
		return "", errors.New("summarizer missing model")
	}
	messages := []Message{
		{Role: RoleSystem, Content: "You compress working notes. Keep facts, decisions, numbers and URLs. No preamble."},
		{Role: RoleUser, Content: fmt.Sprintf("Summarize the following in at most %d characters:\n\n%s", maxChars, text)},
	}
	resp, err := s.Model.Chat(ctx, messages, nil, s.Options)
	if err != nil {
		return "", err
	}
	summary, err := resp.Content()
	if err != nil {
		return "", err
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return "", errors.New("summarizer returned empty text")
	}
	return firstRunes(summary, maxChars), nil
}
