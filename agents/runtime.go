package agents

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lexcodex/thinkloop/agents/pattern"
	"github.com/lexcodex/thinkloop/framework"
	"github.com/lexcodex/thinkloop/persistence"
	"github.com/lexcodex/thinkloop/tools"
)

// Session answers prompts in one mode and can forget its conversation.
type Session interface {
	AskWithProgress(ctx context.Context, prompt string, progress framework.ProgressFunc) (*framework.AskResult, error)
	Reset()
}

// SessionOptions tune a single session.
type SessionOptions struct {
	// ID names the session in the history store. Empty disables history.
	ID string
	// Citations forces inline citation formatting on any mode.
	Citations bool
}

// Runtime wires the CLI, TUI, and servers to one model and one set of
// toolkits. It owns the document store and telemetry sinks it opens.
type Runtime struct {
	Config     *GlobalConfig
	Model      framework.ChatModel
	ModelID    string
	Telemetry  framework.Telemetry
	HTTPClient *http.Client

	mu      sync.Mutex
	store   *persistence.DocStore
	history persistence.SessionStore
	closers []io.Closer
}

// NewRuntime builds a runtime over model. A nil cfg uses the defaults.
func NewRuntime(cfg *GlobalConfig, model framework.ChatModel, modelID string) (*Runtime, error) {
	if model == nil {
		return nil, fmt.Errorf("runtime requires a chat model")
	}
	if cfg == nil {
		cfg = DefaultGlobalConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rt := &Runtime{Config: cfg, Model: model, ModelID: modelID}
	var sinks []framework.Telemetry
	if path := strings.TrimSpace(cfg.Logging.TelemetryFile); path != "" {
		file, err := framework.NewJSONFileTelemetry(path)
		if err != nil {
			return nil, fmt.Errorf("open telemetry file: %w", err)
		}
		rt.closers = append(rt.closers, file)
		sinks = append(sinks, file)
	}
	if cfg.Logging.Agent {
		sinks = append(sinks, framework.LoggerTelemetry{Logger: slog.Default()})
	}
	switch len(sinks) {
	case 0:
	case 1:
		rt.Telemetry = sinks[0]
	default:
		rt.Telemetry = framework.MultiplexTelemetry{Sinks: sinks}
	}
	return rt, nil
}

// Close releases the document store and telemetry files.
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.closers = nil
	r.store = nil
	return firstErr
}

// Toolkits returns the toolkit names a mode runs with: the configured ones
// followed by whatever the mode adds.
func (r *Runtime) Toolkits(mode Mode) []string {
	names := append([]string(nil), r.Config.Tools.Enabled...)
	if len(names) == 0 {
		names = append(names, tools.DefaultToolkits...)
	}
	if profile, ok := Profile(mode); ok {
		names = append(names, profile.Toolkits...)
	}
	return names
}

// Registry builds a fresh tool registry for mode.
func (r *Runtime) Registry(mode Mode) (*framework.ToolRegistry, error) {
	names := r.Toolkits(mode)
	opts := tools.Options{
		HTTPClient:   r.HTTPClient,
		SearxngURL:   firstNonEmpty(r.Config.Tools.SearxngURL, os.Getenv("SEARXNG_URL")),
		WikiLanguage: r.Config.Tools.WikiLanguage,
	}
	for _, name := range names {
		if strings.EqualFold(strings.TrimSpace(name), tools.ToolkitDB) {
			store, err := r.docStore()
			if err != nil {
				return nil, err
			}
			opts.DocStore = store
			break
		}
	}
	return tools.BuildRegistry(names, opts)
}

func (r *Runtime) docStore() (*persistence.DocStore, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.store != nil {
		return r.store, nil
	}
	store, err := persistence.OpenDocStore(r.Config.Tools.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open document store: %w", err)
	}
	r.store = store
	r.closers = append(r.closers, store)
	return store, nil
}

// History returns the session store, opening it on first use.
func (r *Runtime) History() (persistence.SessionStore, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.history != nil {
		return r.history, nil
	}
	store, err := persistence.NewFileSessionStore(r.Config.Tools.SessionDir)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	r.history = store
	return store, nil
}

// AgentConfig is the shared per-agent config for this runtime.
func (r *Runtime) AgentConfig() *framework.Config {
	return r.Config.AgentConfig(r.ModelID, r.Telemetry)
}

// NewSession builds a session for mode with its own tool registry and
// conversation state.
func (r *Runtime) NewSession(mode Mode, opts SessionOptions) (Session, error) {
	profile, ok := Profile(mode)
	if !ok {
		return nil, fmt.Errorf("unknown mode %q", mode)
	}
	registry, err := r.Registry(mode)
	if err != nil {
		return nil, err
	}
	s := &session{mode: mode, id: opts.ID, citations: profile.Citations || opts.Citations}
	if opts.ID != "" {
		if s.history, err = r.History(); err != nil {
			return nil, err
		}
	}
	cfg := r.AgentConfig()
	prompts := r.Config.Prompts
	switch mode {
	case ModeTool, ModeResearch:
		agent := pattern.NewToolLoopAgent(r.Model, registry)
		agent.ConcurrentTools = r.Config.Budgets.ConcurrentTools
		if mode == ModeResearch {
			agent.SystemPrompt = pattern.ResearchSystemPrompt
			s.wrap = pattern.ResearchPrompt
		} else if prompts.System != "" {
			agent.SystemPrompt = prompts.System
		}
		if err := agent.Initialize(cfg); err != nil {
			return nil, err
		}
		agent.Reset()
		s.ask, s.reset = agent.AskWithProgress, agent.Reset
	case ModeReact:
		agent := pattern.NewReActAgent(r.Model, registry)
		if err := agent.Initialize(cfg); err != nil {
			return nil, err
		}
		applyReActPrompts(agent, prompts)
		s.ask, s.reset = agent.AskWithProgress, func() {}
	case ModeNext:
		orch, err := pattern.NewNextAgent(r.Model, registry, cfg, r.Config.Memory)
		if err != nil {
			return nil, err
		}
		if planner, ok := orch.Planner.(*pattern.ToolLoopAgent); ok && prompts.Planner != "" {
			planner.SystemPrompt = prompts.Planner
			planner.Reset()
		}
		if executor, ok := orch.Executor.(*pattern.ReActAgent); ok {
			applyReActPrompts(executor, prompts)
		}
		s.ask, s.reset = orch.AskWithProgress, orch.Reset
	case ModePlanner:
		agent := pattern.NewPlannerAgent(r.Model, registry)
		if err := agent.Initialize(cfg); err != nil {
			return nil, err
		}
		if prompts.Planner != "" {
			agent.Planner.SystemPrompt = prompts.Planner
		}
		if worker, ok := agent.Executor.(*pattern.ToolLoopAgent); ok {
			worker.ConcurrentTools = r.Config.Budgets.ConcurrentTools
		}
		agent.Reset()
		s.ask = func(ctx context.Context, prompt string, _ framework.ProgressFunc) (*framework.AskResult, error) {
			return agent.Ask(ctx, prompt)
		}
		s.reset = agent.Reset
	default:
		return nil, fmt.Errorf("mode %q has no session builder", mode)
	}
	return s, nil
}

func applyReActPrompts(agent *pattern.ReActAgent, prompts PromptConfig) {
	if prompts.Thinker != "" {
		agent.ThinkerPrompt = prompts.Thinker
	}
	if prompts.Validator != "" {
		agent.ValidatorPrompt = prompts.Validator
	}
}

type session struct {
	mode      Mode
	id        string
	citations bool
	history   persistence.SessionStore
	wrap      func(string) string
	ask       func(ctx context.Context, prompt string, progress framework.ProgressFunc) (*framework.AskResult, error)
	reset     func()
	mu        sync.Mutex
}

func (s *session) AskWithProgress(ctx context.Context, prompt string, progress framework.ProgressFunc) (*framework.AskResult, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, framework.ErrEmptyPrompt
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	input := prompt
	if s.wrap != nil {
		input = s.wrap(prompt)
	}
	res, err := s.ask(ctx, input, progress)
	if err != nil {
		return nil, err
	}
	if s.citations {
		res.Content = framework.FormatInlineCitations(res.Content)
	}
	if s.history != nil {
		turn := persistence.Turn{Mode: string(s.mode), Prompt: prompt, Content: res.Content, Usage: res.Usage, At: time.Now().UTC()}
		if err := s.history.Append(ctx, s.id, turn); err != nil {
			slog.Warn("session history append failed", "session", s.id, "error", err)
		}
	}
	return res, nil
}

func (s *session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
