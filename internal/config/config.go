// ABOUTME: Configuration loading and parsing for the advisor binaries
// ABOUTME: YAML with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete advisor configuration.
type Config struct {
	Backend  BackendConfig  `yaml:"backend"`
	Chat     ChatConfig     `yaml:"chat"`
	Feedback FeedbackConfig `yaml:"feedback"`
	Logging  LoggingConfig  `yaml:"logging"`
	Server   ServerConfig   `yaml:"server"`
}

// BackendConfig points the client at the assistant backend.
type BackendConfig struct {
	WSURL  string `yaml:"ws_url"`  // websocket endpoint for streaming exchanges
	APIURL string `yaml:"api_url"` // base URL for the REST surface
}

// ChatConfig tunes client-side conversation behavior.
type ChatConfig struct {
	FallbackErrorText string `yaml:"fallback_error_text"`
	HistoryLimit      int    `yaml:"history_limit"`
}

// FeedbackConfig controls the feedback prompt.
type FeedbackConfig struct {
	PromptDelay time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	PromptDelayRaw string `yaml:"prompt_delay"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ServerConfig configures the advisor-backend binary.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	DatabasePath string        `yaml:"database_path"`
	TopK         int           `yaml:"top_k"`
	ChunkDelay   time.Duration `yaml:"-"`

	ChunkDelayRaw string `yaml:"chunk_delay"`
}

// Default returns the configuration used when no file is given:
// a local backend on port 8765 and conservative client settings.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a configuration file from the given path and returns a parsed
// Config. Environment variables in the format ${VAR_NAME} are expanded, and
// missing fields fall back to defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.parseDurations(); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables become empty strings.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) parseDurations() error {
	var err error

	if c.Feedback.PromptDelayRaw != "" {
		c.Feedback.PromptDelay, err = time.ParseDuration(c.Feedback.PromptDelayRaw)
		if err != nil {
			return fmt.Errorf("parsing feedback.prompt_delay %q: %w", c.Feedback.PromptDelayRaw, err)
		}
	}

	if c.Server.ChunkDelayRaw != "" {
		c.Server.ChunkDelay, err = time.ParseDuration(c.Server.ChunkDelayRaw)
		if err != nil {
			return fmt.Errorf("parsing server.chunk_delay %q: %w", c.Server.ChunkDelayRaw, err)
		}
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.Backend.WSURL == "" {
		c.Backend.WSURL = "ws://localhost:8765/ws/chat"
	}
	if c.Backend.APIURL == "" {
		c.Backend.APIURL = "http://localhost:8765"
	}
	if c.Chat.FallbackErrorText == "" {
		c.Chat.FallbackErrorText = "The assistant ran into a problem answering that. Please try again."
	}
	if c.Chat.HistoryLimit <= 0 {
		c.Chat.HistoryLimit = 40
	}
	if c.Feedback.PromptDelay <= 0 {
		c.Feedback.PromptDelay = 2 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8765"
	}
	if c.Server.DatabasePath == "" {
		c.Server.DatabasePath = "data/advisor.db"
	}
	if c.Server.TopK <= 0 {
		c.Server.TopK = 5
	}
	if c.Server.ChunkDelay <= 0 {
		c.Server.ChunkDelay = 30 * time.Millisecond
	}
}

// Validate checks that the configuration is usable. Called after defaults,
// so failures mean a field was explicitly set to something unusable.
func (c *Config) Validate() error {
	if c.Backend.WSURL == "" {
		return fmt.Errorf("backend.ws_url is required")
	}
	if c.Backend.APIURL == "" {
		return fmt.Errorf("backend.api_url is required")
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format)
	}
	return nil
}
