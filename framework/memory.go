package framework

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// MemoryScope determines how long an item lives.
type MemoryScope string

const (
	// MemoryScopeSession items persist until an explicit ClearAll.
	MemoryScopeSession MemoryScope = "session"
	// MemoryScopeApp items describe the application rather than the run.
	MemoryScopeApp MemoryScope = "app"
	// MemoryScopeEphemeral items are dropped by ClearEphemeral.
	MemoryScopeEphemeral MemoryScope = "ephemeral"
)

// MemoryItem is one tagged entry in the log.
type MemoryItem struct {
	Role      string      `json:"role"`
	Content   string      `json:"content"`
	Tags      []string    `json:"tags,omitempty"`
	Scope     MemoryScope `json:"scope"`
	Timestamp time.Time   `json:"timestamp"`
}

// HasAnyTag reports whether the item carries at least one of tags.
func (it MemoryItem) HasAnyTag(tags []string) bool {
	for _, want := range tags {
		for _, have := range it.Tags {
			if have == want {
				return true
			}
		}
	}
	return false
}

// MemoryPolicy governs how BuildContext trims and summarizes.
type MemoryPolicy struct {
	KeepLast        int  `yaml:"keep_last" json:"keep_last"`
	MaxChars        int  `yaml:"max_chars" json:"max_chars"`
	SummarizeBeyond bool `yaml:"summarize_beyond" json:"summarize_beyond"`
}

// DefaultMemoryPolicy keeps six items verbatim inside a 4000 character budget.
func DefaultMemoryPolicy() MemoryPolicy {
	return MemoryPolicy{KeepLast: 6, MaxChars: 4000, SummarizeBeyond: true}
}

// headGap is reserved between the summarized head and the verbatim tail.
const headGap = 50

// ScopedMemory is an ordered, tagged log with a budget-bounded context
// builder. Character budgets count runes.
type ScopedMemory struct {
	mu         sync.RWMutex
	items      []MemoryItem
	policy     MemoryPolicy
	summarizer Summarizer
}

// NewScopedMemory builds a memory. A zero policy means DefaultMemoryPolicy;
// summarizer may be nil, in which case older items are clipped naively.
func NewScopedMemory(policy MemoryPolicy, summarizer Summarizer) *ScopedMemory {
	if policy == (MemoryPolicy{}) {
		policy = DefaultMemoryPolicy()
	}
	return &ScopedMemory{policy: policy, summarizer: summarizer}
}

// Policy returns the configured policy.
func (m *ScopedMemory) Policy() MemoryPolicy { return m.policy }

// Add appends an item. Empty content is ignored; an empty scope means session.
func (m *ScopedMemory) Add(role, content string, tags []string, scope MemoryScope) {
	if content == "" {
		return
	}
	if scope == "" {
		scope = MemoryScopeSession
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, MemoryItem{
		Role:      role,
		Content:   content,
		Tags:      append([]string(nil), tags...),
		Scope:     scope,
		Timestamp: time.Now().UTC(),
	})
}

// Items returns a copy of the log.
func (m *ScopedMemory) Items() []MemoryItem {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]MemoryItem(nil), m.items...)
}

// Len is the number of stored items.
func (m *ScopedMemory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// ClearEphemeral drops ephemeral-scoped items only.
func (m *ScopedMemory) ClearEphemeral() {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.items[:0]
	for _, it := range m.items {
		if it.Scope != MemoryScopeEphemeral {
			kept = append(kept, it)
		}
	}
	m.items = kept
}

// ClearAll drops every item.
func (m *ScopedMemory) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = nil
}

func (m *ScopedMemory) selectItems(tags []string) []MemoryItem {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(tags) == 0 {
		return append([]MemoryItem(nil), m.items...)
	}
	var out []MemoryItem
	for _, it := range m.items {
		if it.HasAnyTag(tags) {
			out = append(out, it)
		}
	}
	return out
}

func joinItems(items []MemoryItem) string {
	lines := make([]string, 0, len(items))
	for _, it := range items {
		lines = append(lines, it.Role+": "+strings.TrimSpace(it.Content))
	}
	return strings.Join(lines, "\n")
}

// BuildContext renders the items carrying any of tags (all items when tags is
// empty) as "role: content" lines within maxChars (the policy budget when
// maxChars <= 0). Over budget, the last KeepLast items stay verbatim and the
// older ones are summarized, or clipped head and tail, into a
// "summary: ..." line.
func (m *ScopedMemory) BuildContext(ctx context.Context, tags []string, maxChars int) string {
	items := m.selectItems(tags)
	if len(items) == 0 {
		return ""
	}
	keepLast := m.policy.KeepLast
	if keepLast < 1 {
		keepLast = 1
	}
	if maxChars <= 0 {
		maxChars = m.policy.MaxChars
	}

	raw := joinItems(items)
	if runeLen(raw) <= maxChars {
		return raw
	}

	split := len(items) - keepLast
	if split < 0 {
		split = 0
	}
	headText := joinItems(items[:split])
	tailText := joinItems(items[split:])
	if headText == "" {
		return lastRunes(tailText, maxChars)
	}
	budget := maxChars - runeLen(tailText) - headGap
	if budget <= 0 {
		return lastRunes(tailText, maxChars)
	}

	var headSummary string
	if m.policy.SummarizeBeyond && m.summarizer != nil {
		summary, err := m.summarizer.Summarize(ctx, headText, budget)
		if err != nil {
			slog.Warn("memory summarizer failed, clipping instead", "component", "memory", "error", err)
			summary = NaiveSummarize(headText, budget)
		}
		headSummary = summary
	} else {
		headSummary = NaiveSummarize(headText, budget)
	}

	var parts []string
	if headSummary != "" {
		parts = append(parts, "summary: "+strings.TrimSpace(headSummary))
	}
	if tailText != "" {
		parts = append(parts, tailText)
	}
	return lastRunes(strings.Join(parts, "\n"), maxChars)
}

func runeLen(s string) int { return len([]rune(s)) }

func lastRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}

func firstRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
