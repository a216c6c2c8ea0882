package agents

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lexcodex/thinkloop/framework"
	"github.com/lexcodex/thinkloop/llm"
)

// DefaultConfigFile is looked up in the working directory.
const DefaultConfigFile = "thinkloop.yaml"

// GlobalConfig matches thinkloop.yaml.
type GlobalConfig struct {
	Version string                 `yaml:"version"`
	Model   ModelConfig            `yaml:"model"`
	Budgets BudgetConfig           `yaml:"budgets"`
	Prompts PromptConfig           `yaml:"prompts"`
	Memory  framework.MemoryPolicy `yaml:"memory"`
	Tools   ToolsConfig            `yaml:"tools"`
	Logging LoggingConfig          `yaml:"logging"`
	Server  ServerConfig           `yaml:"server"`
}

// ModelConfig selects the backend and sampling settings. Empty fields fall
// back to the environment.
type ModelConfig struct {
	Name            string  `yaml:"name"`
	BaseURL         string  `yaml:"base_url"`
	Temperature     float64 `yaml:"temperature"`
	ReasoningEffort string  `yaml:"reasoning_effort"`
	TimeoutSeconds  int     `yaml:"timeout_seconds"`
	MaxRetries      int     `yaml:"max_retries"`
}

// BudgetConfig bounds every loop.
type BudgetConfig struct {
	MaxRounds       int  `yaml:"max_rounds"`
	MaxToolIters    int  `yaml:"max_tool_iters"`
	MaxSteps        int  `yaml:"max_steps"`
	ConcurrentTools bool `yaml:"concurrent_tools"`
}

// PromptConfig overrides the built-in role prompts.
type PromptConfig struct {
	System    string `yaml:"system"`
	Planner   string `yaml:"planner"`
	Thinker   string `yaml:"thinker"`
	Validator string `yaml:"validator"`
}

// ToolsConfig picks toolkits and their backends.
type ToolsConfig struct {
	Enabled      []string `yaml:"enabled"`
	SearxngURL   string   `yaml:"searxng_url"`
	WikiLanguage string   `yaml:"wiki_language"`
	DatabasePath string   `yaml:"database_path"`
	SessionDir   string   `yaml:"session_dir"`
}

// LoggingConfig describes log output.
type LoggingConfig struct {
	Level         string `yaml:"level"`
	TelemetryFile string `yaml:"telemetry_file"`
	LLM           bool   `yaml:"llm_debug"`
	Agent         bool   `yaml:"agent_debug"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// DefaultGlobalConfig returns the configuration used when no file exists.
func DefaultGlobalConfig() *GlobalConfig {
	return &GlobalConfig{
		Version: "1",
		Model:   ModelConfig{Temperature: 0.1, TimeoutSeconds: 30, MaxRetries: 3},
		Budgets: BudgetConfig{MaxRounds: 8, MaxToolIters: 4, MaxSteps: 6},
		Memory:  framework.DefaultMemoryPolicy(),
		Tools: ToolsConfig{
			Enabled:      []string{"math", "web"},
			WikiLanguage: "en",
			DatabasePath: "thinkloop.db",
			SessionDir:   ".thinkloop/sessions",
		},
		Logging: LoggingConfig{Level: "info"},
		Server:  ServerConfig{Addr: ":8080"},
	}
}

// LoadGlobalConfig reads path, filling anything the file leaves unset from
// DefaultGlobalConfig. A missing file yields the defaults.
func LoadGlobalConfig(path string) (*GlobalConfig, error) {
	cfg := DefaultGlobalConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}
	var file GlobalConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.merge(&file)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// SaveGlobalConfig writes the config to disk.
func SaveGlobalConfig(path string, cfg *GlobalConfig) error {
	if cfg == nil {
		return errors.New("config missing")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (c *GlobalConfig) merge(f *GlobalConfig) {
	if f.Version != "" {
		c.Version = f.Version
	}
	mergeString(&c.Model.Name, f.Model.Name)
	mergeString(&c.Model.BaseURL, f.Model.BaseURL)
	mergeString(&c.Model.ReasoningEffort, f.Model.ReasoningEffort)
	if f.Model.Temperature != 0 {
		c.Model.Temperature = f.Model.Temperature
	}
	mergeInt(&c.Model.TimeoutSeconds, f.Model.TimeoutSeconds)
	mergeInt(&c.Model.MaxRetries, f.Model.MaxRetries)

	mergeInt(&c.Budgets.MaxRounds, f.Budgets.MaxRounds)
	mergeInt(&c.Budgets.MaxToolIters, f.Budgets.MaxToolIters)
	mergeInt(&c.Budgets.MaxSteps, f.Budgets.MaxSteps)
	c.Budgets.ConcurrentTools = c.Budgets.ConcurrentTools || f.Budgets.ConcurrentTools

	mergeString(&c.Prompts.System, f.Prompts.System)
	mergeString(&c.Prompts.Planner, f.Prompts.Planner)
	mergeString(&c.Prompts.Thinker, f.Prompts.Thinker)
	mergeString(&c.Prompts.Validator, f.Prompts.Validator)

	mergeInt(&c.Memory.KeepLast, f.Memory.KeepLast)
	mergeInt(&c.Memory.MaxChars, f.Memory.MaxChars)
	if f.Memory.KeepLast != 0 || f.Memory.MaxChars != 0 {
		c.Memory.SummarizeBeyond = f.Memory.SummarizeBeyond
	}

	if len(f.Tools.Enabled) > 0 {
		c.Tools.Enabled = f.Tools.Enabled
	}
	mergeString(&c.Tools.SearxngURL, f.Tools.SearxngURL)
	mergeString(&c.Tools.WikiLanguage, f.Tools.WikiLanguage)
	mergeString(&c.Tools.DatabasePath, f.Tools.DatabasePath)
	mergeString(&c.Tools.SessionDir, f.Tools.SessionDir)

	mergeString(&c.Logging.Level, f.Logging.Level)
	mergeString(&c.Logging.TelemetryFile, f.Logging.TelemetryFile)
	c.Logging.LLM = c.Logging.LLM || f.Logging.LLM
	c.Logging.Agent = c.Logging.Agent || f.Logging.Agent

	mergeString(&c.Server.Addr, f.Server.Addr)
}

func mergeString(dst *string, v string) {
	if strings.TrimSpace(v) != "" {
		*dst = v
	}
}

func mergeInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

// Validate rejects settings no agent can run with.
func (c *GlobalConfig) Validate() error {
	if c.Budgets.MaxRounds < 1 {
		return &framework.ConfigurationError{Field: "budgets.max_rounds", Reason: "must be at least 1"}
	}
	if c.Budgets.MaxToolIters < 0 {
		return &framework.ConfigurationError{Field: "budgets.max_tool_iters", Reason: "must not be negative"}
	}
	if c.Budgets.MaxSteps < 1 {
		return &framework.ConfigurationError{Field: "budgets.max_steps", Reason: "must be at least 1"}
	}
	if _, err := framework.ParseReasoningEffort(c.Model.ReasoningEffort); err != nil {
		return &framework.ConfigurationError{Field: "model.reasoning_effort", Reason: err.Error()}
	}
	return nil
}

// LLMConfig layers the file's model settings over base, which normally
// comes from llm.ConfigFromEnv.
func (c *GlobalConfig) LLMConfig(base llm.Config) llm.Config {
	if c == nil {
		return base
	}
	if c.Model.Name != "" {
		base.Model = c.Model.Name
	}
	if c.Model.BaseURL != "" {
		base.BaseURL = llm.NormalizeBaseURL(c.Model.BaseURL)
	}
	if c.Model.TimeoutSeconds > 0 {
		base.Timeout = time.Duration(c.Model.TimeoutSeconds) * time.Second
	}
	if c.Model.MaxRetries > 0 {
		base.MaxRetries = c.Model.MaxRetries
	}
	base.Debug = base.Debug || c.Logging.LLM
	return base
}

// AgentConfig converts the file into the per-agent runtime config.
func (c *GlobalConfig) AgentConfig(model string, telemetry framework.Telemetry) *framework.Config {
	effort, _ := framework.ParseReasoningEffort(c.Model.ReasoningEffort)
	return &framework.Config{
		Name:            "thinkloop",
		Model:           model,
		Temperature:     c.Model.Temperature,
		ReasoningEffort: effort,
		MaxRounds:       c.Budgets.MaxRounds,
		MaxToolIters:    c.Budgets.MaxToolIters,
		MaxSteps:        c.Budgets.MaxSteps,
		DebugLLM:        c.Logging.LLM,
		DebugAgent:      c.Logging.Agent,
		Telemetry:       telemetry,
	}
}
