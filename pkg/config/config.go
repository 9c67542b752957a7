// Package config loads and validates the process configuration consumed by
// the store, model runner, sandbox supervisor and repository-host adapter.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Provider identifies the model provider family.
type Provider string

const (
	ProviderGemini    Provider = "gemini"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// LLMConfig holds model-runner configuration.
type LLMConfig struct {
	Provider           Provider
	GeminiAPIKey       string
	OpenAIAPIKey       string
	AnthropicAPIKey    string
	Model              string
	MaxRetries         int
	InitialRetryDelay  time.Duration
	MaxRetryDelay      time.Duration
	RetryBackoffFactor float64
}

// DockerConfig holds container supervisor configuration.
type DockerConfig struct {
	ContainerPrefix string
	ContainerLimit  int
	IdleTimeout     time.Duration
	DefaultImage    string
	SocketPath      string
}

// GitHubConfig holds repository-host adapter configuration.
type GitHubConfig struct {
	Token string
}

// SearchConfig holds web-search tool configuration. Both fields are
// optional; the google_web_search tool reports a clean error when unset.
type SearchConfig struct {
	APIKey         string
	SearchEngineID string
}

// Config is the validated top-level configuration.
type Config struct {
	LLM          LLMConfig
	Docker       DockerConfig
	GitHub       GitHubConfig
	Search       SearchConfig
	DatabaseURL  string
	DebugEnabled bool
}

// Load reads configuration from the environment. Every key can be set as an
// upper-snake environment variable (for example LLM_PROVIDER, GITHUB_TOKEN).
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("llm.provider", string(ProviderGemini))
	v.SetDefault("llm.max.retries", 10)
	v.SetDefault("llm.initial.retry.delay", 1000)
	v.SetDefault("llm.max.retry.delay", 10000)
	v.SetDefault("llm.retry.backoff.factor", 2.0)
	v.SetDefault("docker.container.prefix", "builder6-container-")
	v.SetDefault("docker.container.limit", 5)
	v.SetDefault("docker.idle.timeout", 600000)
	v.SetDefault("docker.default.image", "debian:stable-slim")

	cfg := &Config{
		LLM: LLMConfig{
			Provider:           Provider(strings.ToLower(v.GetString("llm.provider"))),
			GeminiAPIKey:       v.GetString("gemini.api.key"),
			OpenAIAPIKey:       v.GetString("openai.api.key"),
			AnthropicAPIKey:    v.GetString("anthropic.api.key"),
			Model:              v.GetString("llm.model"),
			MaxRetries:         v.GetInt("llm.max.retries"),
			InitialRetryDelay:  time.Duration(v.GetInt("llm.initial.retry.delay")) * time.Millisecond,
			MaxRetryDelay:      time.Duration(v.GetInt("llm.max.retry.delay")) * time.Millisecond,
			RetryBackoffFactor: v.GetFloat64("llm.retry.backoff.factor"),
		},
		Docker: DockerConfig{
			ContainerPrefix: v.GetString("docker.container.prefix"),
			ContainerLimit:  v.GetInt("docker.container.limit"),
			IdleTimeout:     time.Duration(v.GetInt("docker.idle.timeout")) * time.Millisecond,
			DefaultImage:    v.GetString("docker.default.image"),
			SocketPath:      v.GetString("docker.socket.path"),
		},
		GitHub: GitHubConfig{
			Token: v.GetString("github.token"),
		},
		Search: SearchConfig{
			APIKey:         v.GetString("google.search.api.key"),
			SearchEngineID: v.GetString("google.search.engine.id"),
		},
		DatabaseURL:  v.GetString("database.url"),
		DebugEnabled: v.GetBool("debug.enabled"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required keys and value ranges.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case ProviderGemini:
		if c.LLM.GeminiAPIKey == "" {
			return fmt.Errorf("geminiApiKey is required when llmProvider is gemini")
		}
	case ProviderOpenAI:
		if c.LLM.OpenAIAPIKey == "" {
			return fmt.Errorf("openaiApiKey is required when llmProvider is openai")
		}
	case ProviderAnthropic:
		if c.LLM.AnthropicAPIKey == "" {
			return fmt.Errorf("anthropicApiKey is required when llmProvider is anthropic")
		}
	default:
		return fmt.Errorf("unsupported llmProvider: %s", c.LLM.Provider)
	}

	if c.LLM.MaxRetries < 0 || c.LLM.MaxRetries > 20 {
		return fmt.Errorf("llmMaxRetries %d out of range [0, 20]", c.LLM.MaxRetries)
	}
	if d := c.LLM.InitialRetryDelay; d < 100*time.Millisecond || d > 10*time.Second {
		return fmt.Errorf("llmInitialRetryDelay %v out of range [100ms, 10s]", d)
	}
	if d := c.LLM.MaxRetryDelay; d < time.Second || d > 60*time.Second {
		return fmt.Errorf("llmMaxRetryDelay %v out of range [1s, 60s]", d)
	}
	if f := c.LLM.RetryBackoffFactor; f < 1 || f > 5 {
		return fmt.Errorf("llmRetryBackoffFactor %v out of range [1, 5]", f)
	}

	if c.GitHub.Token == "" {
		return fmt.Errorf("githubToken is required")
	}

	if c.Docker.ContainerLimit <= 0 {
		return fmt.Errorf("dockerContainerLimit must be positive")
	}
	if c.Docker.IdleTimeout <= 0 {
		return fmt.Errorf("dockerIdleTimeout must be positive")
	}
	if c.Docker.DefaultImage == "" {
		return fmt.Errorf("dockerDefaultImage is required")
	}

	if c.DatabaseURL == "" {
		return fmt.Errorf("databaseUrl is required")
	}
	if !strings.HasPrefix(c.DatabaseURL, "postgresql://") {
		if _, err := url.Parse(c.DatabaseURL); err != nil {
			return fmt.Errorf("databaseUrl is not a valid URL: %w", err)
		}
	}

	return nil
}

// Default returns a configuration with every default applied and no
// credentials. Tests fill in the fields they need.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:           ProviderGemini,
			MaxRetries:         10,
			InitialRetryDelay:  time.Second,
			MaxRetryDelay:      10 * time.Second,
			RetryBackoffFactor: 2,
		},
		Docker: DockerConfig{
			ContainerPrefix: "builder6-container-",
			ContainerLimit:  5,
			IdleTimeout:     600 * time.Second,
			DefaultImage:    "debian:stable-slim",
		},
	}
}
