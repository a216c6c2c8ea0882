package main

import (
	"io"
	"strings"

	"github.com/lexcodex/thinkloop/agents"
	"github.com/lexcodex/thinkloop/framework"
	"github.com/lexcodex/thinkloop/llm"
)

// newChatModel builds the backend client. Tests replace it.
var newChatModel = func(cfg llm.Config) (framework.ChatModel, error) {
	client, err := llm.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func loadConfig() (*agents.GlobalConfig, error) {
	return agents.LoadGlobalConfig(flagConfig)
}

// backendConfig layers flags over the config file over the environment.
func backendConfig(cfg *agents.GlobalConfig) llm.Config {
	out := cfg.LLMConfig(llm.ConfigFromEnv())
	if m := strings.TrimSpace(flagModel); m != "" {
		out.Model = m
	}
	if base := strings.TrimSpace(flagBaseURL); base != "" {
		out.BaseURL = llm.NormalizeBaseURL(base)
	}
	out.Debug = out.Debug || flagDebug
	return out
}

// openRuntime loads the config, connects the backend and returns a runtime
// plus a cleanup func that releases both.
func openRuntime() (*agents.Runtime, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if flagDebug {
		cfg.Logging.LLM = true
		cfg.Logging.Agent = true
	}
	backend := backendConfig(cfg)
	inner, err := newChatModel(backend)
	if err != nil {
		return nil, nil, err
	}
	model := llm.NewInstrumentedModel(inner, nil, backend.Debug)
	model.Model = backend.Model
	rt, err := agents.NewRuntime(cfg, model, backend.Model)
	if err != nil {
		closeQuietly(inner)
		return nil, nil, err
	}
	model.Telemetry = rt.Telemetry
	cleanup := func() {
		_ = rt.Close()
		closeQuietly(inner)
	}
	return rt, cleanup, nil
}

func closeQuietly(v interface{}) {
	if c, ok := v.(io.Closer); ok {
		_ = c.Close()
	}
}
