// Package config provides process-level configuration for the orchestrator.
// Configuration is read from an optional YAML file and overridden by
// environment variables, so deployments can ship a base file and tune
// per-environment values without rebuilding.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the process configuration for the orchestrator service.
type Config struct {
	// Server settings
	ListenAddr string `yaml:"listen_addr"`
	LogLevel   string `yaml:"log_level"`

	// Vendor credentials
	OpenAIAPIKey     string `yaml:"openai_api_key"`
	AnthropicAPIKey  string `yaml:"anthropic_api_key"`
	DeepgramAPIKey   string `yaml:"deepgram_api_key"`
	ElevenLabsAPIKey string `yaml:"elevenlabs_api_key"`

	// AgentConfig service endpoint (the dashboard backend)
	ConfigServiceURL string `yaml:"config_service_url"`

	// FallbackAudioPath names a pre-rendered μ-law clip spoken when
	// every synthesis vendor fails. Optional.
	FallbackAudioPath string `yaml:"fallback_audio_path"`

	// Session tuning
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ReasoningBudget time.Duration `yaml:"reasoning_budget"`
	FlushBudget     time.Duration `yaml:"flush_budget"`

	// Admission control: default concurrent-call cap applied to orgs
	// without an explicit limit
	DefaultOrgCallLimit int `yaml:"default_org_call_limit"`
}

// Default returns the configuration defaults applied before file and
// env overrides.
func Default() Config {
	return Config{
		ListenAddr:          ":8080",
		LogLevel:            "info",
		IdleTimeout:         30 * time.Second,
		ReasoningBudget:     8 * time.Second,
		FlushBudget:         200 * time.Millisecond,
		DefaultOrgCallLimit: 10,
	}
}

// Load reads configuration from path (if non-empty) and applies
// environment overrides. A missing file with an empty path is not an
// error; a named file that cannot be read is.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.ListenAddr, "VOCALIQ_LISTEN_ADDR")
	setString(&c.LogLevel, "VOCALIQ_LOG_LEVEL")
	setString(&c.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(&c.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	setString(&c.DeepgramAPIKey, "DEEPGRAM_API_KEY")
	setString(&c.ElevenLabsAPIKey, "ELEVENLABS_API_KEY")
	setString(&c.ConfigServiceURL, "VOCALIQ_CONFIG_SERVICE_URL")
	setString(&c.FallbackAudioPath, "VOCALIQ_FALLBACK_AUDIO_PATH")
	setDuration(&c.IdleTimeout, "VOCALIQ_IDLE_TIMEOUT")
	setDuration(&c.ReasoningBudget, "VOCALIQ_REASONING_BUDGET")
	setDuration(&c.FlushBudget, "VOCALIQ_FLUSH_BUDGET")
	setInt(&c.DefaultOrgCallLimit, "VOCALIQ_DEFAULT_ORG_CALL_LIMIT")
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.IdleTimeout <= 0 {
		return fmt.Errorf("config: idle_timeout must be positive, got %v", c.IdleTimeout)
	}
	if c.ReasoningBudget <= 0 {
		return fmt.Errorf("config: reasoning_budget must be positive, got %v", c.ReasoningBudget)
	}
	if c.FlushBudget <= 0 {
		return fmt.Errorf("config: flush_budget must be positive, got %v", c.FlushBudget)
	}
	if c.DefaultOrgCallLimit < 1 {
		return fmt.Errorf("config: default_org_call_limit must be at least 1, got %d", c.DefaultOrgCallLimit)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
