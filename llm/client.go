package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/lexcodex/thinkloop/framework"
)

// Client implements framework.ChatModel against an OpenAI-compatible
// /chat/completions endpoint.
type Client struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

// NewClient validates cfg and builds a client. Missing credentials or base
// URL yield a *framework.ConfigurationError.
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: slog.Default().With("component", "llm"),
	}, nil
}

// Config returns the effective configuration.
func (c *Client) Config() Config { return c.cfg }

// SetDebugLogging enables or disables verbose logging for requests/responses.
func (c *Client) SetDebugLogging(enabled bool) {
	c.cfg.Debug = enabled
}

// Close releases pooled connections.
func (c *Client) Close() error {
	if c.client != nil {
		c.client.CloseIdleConnections()
	}
	return nil
}

func (c *Client) model(options *framework.LLMOptions) string {
	if options != nil && options.Model != "" {
		return options.Model
	}
	return c.cfg.Model
}

// Chat sends one chat-completions request. Requests are validated locally
// first; 429, 5xx, timeouts and connection failures are retried with
// exponential backoff up to MaxRetries attempts. A Retry-After header
// replaces the exponential wait, capped at RetryWaitMax.
func (c *Client) Chat(ctx context.Context, messages []framework.Message, tools []framework.Tool, options *framework.LLMOptions) (*framework.Completion, error) {
	opts := options.Clone()
	model := c.model(opts)
	if err := validateRequest(messages, model, opts.Temperature); err != nil {
		return nil, err
	}
	body, err := json.Marshal(buildPayload(messages, tools, opts, model))
	if err != nil {
		return nil, err
	}
	c.logPayload(body)

	attempt := 0
	start := time.Now()
	completion, err := backoff.Retry(ctx, func() (*framework.Completion, error) {
		attempt++
		resp, err := c.doRequest(ctx, body)
		if err != nil && !framework.IsRetryable(err) {
			return nil, backoff.Permanent(err)
		}
		if wait := c.retryWait(err); wait > 0 {
			return nil, &serverDelay{err: err, wait: &backoff.RetryAfterError{Duration: wait}}
		}
		return resp, err
	},
		backoff.WithBackOff(c.backoffPolicy()),
		backoff.WithMaxTries(uint(c.cfg.MaxRetries)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			retriesTotal.WithLabelValues(model).Inc()
			c.logger.Warn("retrying chat request", "model", model, "attempt", attempt, "wait", wait, "error", err)
		}),
	)
	if err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			err = permanent.Unwrap()
		}
		var delayed *serverDelay
		if errors.As(err, &delayed) {
			err = delayed.err
		}
		return nil, err
	}
	if completion.Usage.Latency == 0 {
		completion.Usage.Latency = time.Since(start)
	}
	return completion, nil
}

func (c *Client) backoffPolicy() backoff.BackOff {
	return &backoff.ExponentialBackOff{
		InitialInterval:     c.cfg.RetryWaitBase,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         c.cfg.RetryWaitMax,
	}
}

// retryWait is the server-requested delay of a transient error, capped at
// RetryWaitMax. Zero means the exponential schedule applies.
func (c *Client) retryWait(err error) time.Duration {
	var transient *framework.TransientAPIError
	if !errors.As(err, &transient) || transient.RetryAfter <= 0 {
		return 0
	}
	return min(transient.RetryAfter, c.cfg.RetryWaitMax)
}

// serverDelay carries a Retry-After hint to the backoff loop alongside the
// error it came from.
type serverDelay struct {
	err  error
	wait *backoff.RetryAfterError
}

func (d *serverDelay) Error() string   { return d.err.Error() }
func (d *serverDelay) Unwrap() []error { return []error{d.wait, d.err} }

func validateRequest(messages []framework.Message, model string, temperature float64) error {
	if len(messages) == 0 {
		return fmt.Errorf("%w: messages must be non-empty", framework.ErrInvalidRequest)
	}
	if strings.TrimSpace(model) == "" {
		return fmt.Errorf("%w: model must be non-empty", framework.ErrInvalidRequest)
	}
	if temperature < 0 || temperature > 2 {
		return fmt.Errorf("%w: temperature %.2f outside [0, 2]", framework.ErrInvalidRequest, temperature)
	}
	return nil
}

// buildPayload assembles the request body. Optional fields are only sent
// when set so strict servers do not reject unknown nulls.
func buildPayload(messages []framework.Message, tools []framework.Tool, opts *framework.LLMOptions, model string) map[string]interface{} {
	payload := map[string]interface{}{
		"model":       model,
		"messages":    messages,
		"temperature": opts.Temperature,
	}
	if opts.MaxTokens > 0 {
		payload["max_tokens"] = opts.MaxTokens
	}
	if opts.ResponseFormat != nil {
		payload["response_format"] = opts.ResponseFormat
	}
	if opts.ReasoningEffort != "" {
		payload["reasoning"] = map[string]interface{}{"effort": string(opts.ReasoningEffort)}
	}
	if len(tools) > 0 {
		descriptors := make([]framework.ToolDescriptor, 0, len(tools))
		for _, tool := range tools {
			descriptors = append(descriptors, framework.Describe(tool))
		}
		payload["tools"] = descriptors
		if opts.ToolChoice != nil {
			payload["tool_choice"] = opts.ToolChoice
		} else {
			payload["tool_choice"] = "auto"
		}
	}
	if opts.ParallelToolCalls != nil {
		payload["parallel_tool_calls"] = *opts.ParallelToolCalls
	}
	return payload
}

func (c *Client) doRequest(ctx context.Context, body []byte) (*framework.Completion, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	if c.cfg.AppURL != "" {
		req.Header.Set("HTTP-Referer", c.cfg.AppURL)
	}
	if c.cfg.AppName != "" {
		req.Header.Set("X-Title", c.cfg.AppName)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, classifyStatus(resp, strings.TrimSpace(string(msg)))
	}
	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}
	c.logResponse(responseBody)
	return framework.ParseCompletion(responseBody)
}

// classifyTransportError marks timeouts and connection failures transient.
// Cancellation by the caller is returned as-is so it is never retried.
func classifyTransportError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return &framework.TransientAPIError{Err: err}
}

func classifyStatus(resp *http.Response, detail string) error {
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return &framework.TransientAPIError{
			StatusCode: resp.StatusCode,
			Body:       detail,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	return &framework.ClientError{StatusCode: resp.StatusCode, Body: detail}
}

func parseRetryAfter(raw string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func (c *Client) logPayload(payload []byte) {
	if !c.cfg.Debug {
		return
	}
	c.logger.Debug("chat request", "url", c.cfg.BaseURL+"/chat/completions", "payload", truncate(string(payload), 2048))
}

func (c *Client) logResponse(resp []byte) {
	if !c.cfg.Debug {
		return
	}
	c.logger.Debug("chat response", "payload", truncate(string(resp), 2048))
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
