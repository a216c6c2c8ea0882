package llm

import (
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/baalimago/go_away_boilerplate/pkg/misc"

	"github.com/lexcodex/thinkloop/framework"
)

const (
	// DefaultModel is used when neither flags nor MODEL_ID pick one.
	DefaultModel = "qwen/qwen3-next-80b-a3b-thinking"
	// DefaultBaseURL points at OpenRouter's OpenAI-compatible API.
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	// DefaultLocalBaseURL is LM Studio's default server address.
	DefaultLocalBaseURL = "http://localhost:1234/v1"
)

// Config describes one OpenAI-compatible backend.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration
	// MaxRetries is the total number of attempts, the first one included.
	MaxRetries    int
	RetryWaitBase time.Duration
	RetryWaitMax  time.Duration
	// AppName and AppURL are sent as X-Title / HTTP-Referer for OpenRouter
	// attribution when set.
	AppName string
	AppURL  string
	// AllowNoKey accepts a missing API key, for local servers such as LM Studio.
	AllowNoKey bool
	Debug      bool
}

// DefaultConfig returns the hosted defaults without credentials.
func DefaultConfig() Config {
	return Config{
		BaseURL:       DefaultBaseURL,
		Model:         DefaultModel,
		Timeout:       30 * time.Second,
		MaxRetries:    3,
		RetryWaitBase: time.Second,
		RetryWaitMax:  30 * time.Second,
		AppName:       "thinkloop",
	}
}

// ConfigFromEnv reads the backend environment surface. LMSTUDIO_BASE_URL
// selects a local server (key optional); otherwise OPENAI_BASE_URL or the
// OpenRouter default is used with OPENROUTER_API_KEY, falling back to
// OPENAI_API_KEY.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	if model := strings.TrimSpace(os.Getenv("MODEL_ID")); model != "" {
		cfg.Model = model
	}
	if local := strings.TrimSpace(os.Getenv("LMSTUDIO_BASE_URL")); local != "" {
		cfg.BaseURL = NormalizeBaseURL(local)
		cfg.APIKey = os.Getenv("LMSTUDIO_API_KEY")
		cfg.AllowNoKey = true
	} else {
		if base := strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")); base != "" {
			cfg.BaseURL = NormalizeBaseURL(base)
		}
		cfg.APIKey = firstEnv("OPENROUTER_API_KEY", "OPENAI_API_KEY")
	}
	cfg.Debug = misc.Truthy(os.Getenv("DEBUG"))
	return cfg
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

// NormalizeBaseURL trims trailing slashes and makes sure the URL ends in /v1.
func NormalizeBaseURL(raw string) string {
	base := strings.TrimRight(strings.TrimSpace(raw), "/")
	if base == "" {
		return ""
	}
	if !strings.HasSuffix(base, "/v1") {
		base += "/v1"
	}
	return base
}

// Validate reports the first missing or unusable setting.
func (c Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return &framework.ConfigurationError{Field: "base_url", Reason: "missing base URL"}
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return &framework.ConfigurationError{Field: "base_url", Reason: "invalid base URL " + c.BaseURL}
	}
	if strings.TrimSpace(c.APIKey) == "" && !c.AllowNoKey {
		return &framework.ConfigurationError{Field: "api_key", Reason: "missing API key"}
	}
	return nil
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = def.MaxRetries
	}
	if c.RetryWaitBase <= 0 {
		c.RetryWaitBase = def.RetryWaitBase
	}
	if c.RetryWaitMax <= 0 {
		c.RetryWaitMax = def.RetryWaitMax
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	return c
}
