// Package config loads chatdesk configuration from ~/.chatdesk/config.toml
// with environment variable overrides.
//
// Precedence, highest first:
//   - CHATDESK_* (and OPENAI_API_KEY) environment variables
//   - ~/.chatdesk/config.toml
//   - built-in defaults
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the complete chatdesk configuration
type Config struct {
	API      APIConfig      `toml:"api"`
	Features FeaturesConfig `toml:"features"`
	Storage  StorageConfig  `toml:"storage"`
	Log      LogConfig      `toml:"log"`
	Server   ServerConfig   `toml:"server"`
}

// APIConfig controls how the client reaches the backend
type APIConfig struct {
	BaseURL string `toml:"base_url"`
	// Mock swaps the HTTP client for the in-memory backend
	Mock        bool   `toml:"mock"`
	Token       string `toml:"token"`
	TimeoutSecs int    `toml:"timeout_secs"`
}

// FeaturesConfig holds feature flags
type FeaturesConfig struct {
	BulkUpload bool `toml:"bulk_upload"`
}

// StorageConfig selects the local key-value store
type StorageConfig struct {
	Driver string `toml:"driver"`
	Path   string `toml:"path"`
}

// LogConfig controls the log file
type LogConfig struct {
	Path  string `toml:"path"`
	Level string `toml:"level"`
}

// ServerConfig configures chatdesk-server
type ServerConfig struct {
	Addr string `toml:"addr"`
	// Tokens lists accepted bearer tokens; empty accepts any non-empty token
	Tokens         []string `toml:"tokens"`
	Responder      string   `toml:"responder"`
	OpenAIKey      string   `toml:"openai_key"`
	OpenAIModel    string   `toml:"openai_model"`
	OpenAIBaseURL  string   `toml:"openai_base_url"`
	AnthropicModel string   `toml:"anthropic_model"`
	ChatPerMinute  int      `toml:"chat_per_minute"`
	MinDelayMS     int      `toml:"min_delay_ms"`
	MaxDelayMS     int      `toml:"max_delay_ms"`
}

// Responders accepted by server.responder
const (
	ResponderCanned    = "canned"
	ResponderOpenAI    = "openai"
	ResponderAnthropic = "anthropic"
)

// Default returns the built-in configuration. Paths are filled by Load.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:     "http://localhost:8000",
			TimeoutSecs: 30,
		},
		Storage: StorageConfig{
			Driver: "sqlite",
		},
		Log: LogConfig{
			Level: "info",
		},
		Server: ServerConfig{
			Addr:           ":8000",
			Responder:      ResponderCanned,
			OpenAIModel:    "gpt-4o-mini",
			AnthropicModel: "claude-3-5-haiku-latest",
			ChatPerMinute:  20,
			MinDelayMS:     800,
			MaxDelayMS:     1500,
		},
	}
}

// ConfigDir returns ~/.chatdesk
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".chatdesk"), nil
}

// ConfigPath returns the path of config.toml
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads the default config file if it exists
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath reads path over the defaults, applies environment overrides
// and validates. A missing file is not an error.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode TOML file: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat config: %w", err)
	}
	cfg.ApplyEnvOverrides()
	cfg.fillPaths(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) fillPaths(dir string) {
	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(dir, "local.db")
	}
	if c.Log.Path == "" {
		c.Log.Path = filepath.Join(dir, "chatdesk.log")
	}
}

// ApplyEnvOverrides applies CHATDESK_* environment variables
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("CHATDESK_API_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("CHATDESK_MOCK"); v != "" {
		c.API.Mock = parseBool(v)
	}
	if v := os.Getenv("CHATDESK_TOKEN"); v != "" {
		c.API.Token = v
	}
	if v := os.Getenv("CHATDESK_FEATURE_BULK_UPLOAD"); v != "" {
		c.Features.BulkUpload = parseBool(v)
	}
	if v := os.Getenv("CHATDESK_STORAGE_DRIVER"); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv("CHATDESK_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("CHATDESK_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("CHATDESK_SERVER_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("CHATDESK_RESPONDER"); v != "" {
		c.Server.Responder = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Server.OpenAIKey = v
	}
}

func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "1" || v == "true" || v == "yes"
}

// Timeout returns the API request timeout
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.API.TimeoutSecs) * time.Second
}

// ValidationError is one invalid field
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors collects every invalid field
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration
func (c *Config) Validate() error {
	var errs ValidateErrors

	if !c.API.Mock {
		u, err := url.Parse(c.API.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, ValidationError{
				Field:   "api.base_url",
				Message: fmt.Sprintf("invalid URL '%s'", c.API.BaseURL),
			})
		}
	}
	if c.API.TimeoutSecs <= 0 {
		errs = append(errs, ValidationError{Field: "api.timeout_secs", Message: "must be positive"})
	}

	switch c.Storage.Driver {
	case "sqlite", "bolt", "memory":
	default:
		errs = append(errs, ValidationError{
			Field:   "storage.driver",
			Message: fmt.Sprintf("invalid driver '%s', must be one of: sqlite, bolt, memory", c.Storage.Driver),
		})
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("invalid level '%s', must be one of: debug, info, warn, error", c.Log.Level),
		})
	}

	switch c.Server.Responder {
	case ResponderCanned, ResponderAnthropic:
	case ResponderOpenAI:
		if c.Server.OpenAIKey == "" {
			errs = append(errs, ValidationError{Field: "server.openai_key", Message: "required for the openai responder"})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "server.responder",
			Message: fmt.Sprintf("invalid responder '%s', must be one of: canned, openai, anthropic", c.Server.Responder),
		})
	}
	if c.Server.ChatPerMinute < 0 {
		errs = append(errs, ValidationError{Field: "server.chat_per_minute", Message: "must not be negative"})
	}
	if c.Server.MinDelayMS < 0 || c.Server.MaxDelayMS < c.Server.MinDelayMS {
		errs = append(errs, ValidationError{Field: "server.max_delay_ms", Message: "must be at least min_delay_ms"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
