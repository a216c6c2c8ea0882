package framework

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrEmptyPrompt is returned when an agent is asked to answer nothing.
	ErrEmptyPrompt = errors.New("prompt must be non-empty")
	// ErrInvalidBudget flags loop budgets that can never make progress.
	ErrInvalidBudget = errors.New("invalid loop budget")
	// ErrInvalidRequest flags chat requests rejected before any network I/O.
	ErrInvalidRequest = errors.New("invalid chat request")
	// ErrToolNameEmpty is returned when registering a tool without a name.
	ErrToolNameEmpty = errors.New("tool name must not be empty")
	// ErrNilHandler is returned when registering a tool without a handler.
	ErrNilHandler = errors.New("tool handler must not be nil")
)

// ConfigurationError reports missing or unusable startup configuration such
// as an absent API key or base URL. It is never retried.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// TransientAPIError is a rate limit, server error, timeout or connection
// failure. Backends retry these before surfacing them.
type TransientAPIError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
	Err        error
}

func (e *TransientAPIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("transient api error: %v", e.Err)
	}
	if e.Body == "" {
		return fmt.Sprintf("transient api error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("transient api error: status %d: %s", e.StatusCode, e.Body)
}

func (e *TransientAPIError) Unwrap() error { return e.Err }

// ClientError is a non-retryable 4xx response (anything but 429).
type ClientError struct {
	StatusCode int
	Body       string
}

func (e *ClientError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("client error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("client error: status %d: %s", e.StatusCode, e.Body)
}

// MalformedResponseError means the backend answered with a shape none of the
// extractors understand.
type MalformedResponseError struct {
	Reason string
	Raw    string
}

func (e *MalformedResponseError) Error() string {
	return "malformed response: " + e.Reason
}

// RoundBudgetExceeded is returned by the single-turn tool loop when the model
// never produced plain content within MaxRounds backend calls.
type RoundBudgetExceeded struct {
	Rounds int
}

func (e *RoundBudgetExceeded) Error() string {
	return fmt.Sprintf("round budget exceeded after %d rounds without a final answer", e.Rounds)
}

// ToolExecutionError describes a failed tool invocation. Loops absorb it into
// the observation stream; it never propagates to callers.
type ToolExecutionError struct {
	Tool    string
	Message string
	Unknown bool
}

func (e *ToolExecutionError) Error() string {
	if e.Unknown {
		return fmt.Sprintf("unknown tool '%s'", e.Tool)
	}
	return e.Message
}

// IsRetryable reports whether err is worth another attempt against the backend.
func IsRetryable(err error) bool {
	var transient *TransientAPIError
	return errors.As(err, &transient)
}
