package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"DeepChat/internal/session"
)

const (
	DefaultBaseURL       = "https://api.deepseek.com/v1"
	DefaultKeyName       = "DEEPSEEK_API_KEY"
	DefaultChatModel     = "deepseek-chat"
	DefaultReasonerModel = "deepseek-reasoner"
	DefaultConfigFile    = "deepchat.toml"
	DefaultEnvFile       = ".env"
)

// Config holds application configuration
type Config struct {
	API       APIConfig       `toml:"api"`
	Models    ModelsConfig    `toml:"models"`
	Prompts   PromptsConfig   `toml:"prompts"`
	Session   SessionConfig   `toml:"session"`
	Log       LogConfig       `toml:"log"`
	Journal   JournalConfig   `toml:"journal"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// APIConfig describes the completion endpoint
type APIConfig struct {
	BaseURL string `toml:"base_url"`
	KeyName string `toml:"api_key_env"` // key in the .env file and environment
	// RequestTimeout bounds a single completion call. Zero means no limit.
	RequestTimeout time.Duration `toml:"request_timeout"`
}

// ModelsConfig maps each mode to a remote model id
type ModelsConfig struct {
	Chat     string `toml:"chat"`
	Reasoner string `toml:"reasoner"`
}

// PromptsConfig holds the system preamble sent for each mode
type PromptsConfig struct {
	Chat     string `toml:"chat"`
	Reasoner string `toml:"reasoner"`
}

type SessionConfig struct {
	MaxTurns    int    `toml:"max_turns"`
	MaxInFlight int    `toml:"max_in_flight"`
	Workers     int    `toml:"workers"`
	DefaultMode string `toml:"default_mode"`
}

type LogConfig struct {
	Dir   string `toml:"dir"`
	Debug bool   `toml:"debug"`
}

type JournalConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

type TelemetryConfig struct {
	Enabled bool `toml:"enabled"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		API: APIConfig{
			BaseURL: DefaultBaseURL,
			KeyName: DefaultKeyName,
		},
		Models: ModelsConfig{
			Chat:     DefaultChatModel,
			Reasoner: DefaultReasonerModel,
		},
		Session: SessionConfig{
			MaxTurns:    session.DefaultMaxTurns,
			MaxInFlight: 3,
			Workers:     5,
			DefaultMode: session.ModeChat.String(),
		},
		Log: LogConfig{
			Dir: "logs",
		},
		Journal: JournalConfig{
			Enabled: true,
			Path:    "deepchat.db",
		},
		Telemetry: TelemetryConfig{
			Enabled: true,
		},
	}
}

// Load reads a TOML file over the defaults. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return cfg, &Error{Field: path, Err: fmt.Errorf("failed to parse config: %w", err)}
	}

	return cfg, cfg.Validate()
}

// Validate checks that the configuration is usable
func (c Config) Validate() error {
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return &Error{Field: "api.base_url", Err: ErrInvalidValue}
	}
	if strings.TrimSpace(c.API.KeyName) == "" {
		return &Error{Field: "api.api_key_env", Err: ErrInvalidValue}
	}
	if c.API.RequestTimeout < 0 {
		return &Error{Field: "api.request_timeout", Err: ErrInvalidValue}
	}
	if c.Models.Chat == "" || c.Models.Reasoner == "" {
		return &Error{Field: "models", Err: ErrInvalidValue}
	}
	if c.Session.MaxTurns < 1 {
		return &Error{Field: "session.max_turns", Err: ErrInvalidValue}
	}
	if c.Session.MaxInFlight < 1 {
		return &Error{Field: "session.max_in_flight", Err: ErrInvalidValue}
	}
	if c.Session.Workers < 1 {
		return &Error{Field: "session.workers", Err: ErrInvalidValue}
	}
	if _, err := session.ParseMode(c.Session.DefaultMode); err != nil {
		return &Error{Field: "session.default_mode", Err: err}
	}
	return nil
}

// Model returns the remote model id for a mode
func (c Config) Model(mode session.Mode) string {
	if mode == session.ModeReasoner {
		return c.Models.Reasoner
	}
	return c.Models.Chat
}

// Preamble returns the system message content for a mode
func (c Config) Preamble(mode session.Mode) string {
	if mode == session.ModeReasoner {
		return c.Prompts.Reasoner
	}
	return c.Prompts.Chat
}

// Mode returns the configured starting mode
func (c Config) Mode() session.Mode {
	mode, err := session.ParseMode(c.Session.DefaultMode)
	if err != nil {
		return session.ModeChat
	}
	return mode
}

// Exists reports whether path names an existing file
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
