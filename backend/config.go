package backend

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/tailored-agentic-units/switchboard/core/protocol"
	"github.com/tailored-agentic-units/switchboard/dispatch"
	"github.com/tailored-agentic-units/switchboard/model"
	"github.com/tailored-agentic-units/switchboard/relay"
	"github.com/tailored-agentic-units/switchboard/session"
)

// EnvPrefix prefixes environment overrides, e.g. SWITCHBOARD_LISTEN or
// SWITCHBOARD_DISPATCH_POLL_INTERVAL.
const EnvPrefix = "SWITCHBOARD"

const (
	defaultListen   = "127.0.0.1:8420"
	defaultObserver = "slog"
	defaultLogLevel = "info"
)

// SessionSpec names a session created when the backend starts.
type SessionSpec struct {
	Name  string       `json:"name" mapstructure:"name"`
	Model model.Config `json:"model" mapstructure:"model"`
}

// Config holds initialization parameters for every backend subsystem.
type Config struct {
	Dispatch dispatch.Config `json:"dispatch" mapstructure:"dispatch"`
	Relay    relay.Config    `json:"relay" mapstructure:"relay"`
	Sessions []SessionSpec   `json:"sessions,omitempty" mapstructure:"sessions"`
	Observer string          `json:"observer,omitempty" mapstructure:"observer"`
	Listen   string          `json:"listen,omitempty" mapstructure:"listen"`
	LogLevel string          `json:"log_level,omitempty" mapstructure:"log_level"`
}

// DefaultSessions returns the sessions started when none are configured:
// a short-term chat session and a long-term session that summarizes its
// history once it outgrows the limit.
func DefaultSessions() []SessionSpec {
	longTerm := model.DefaultConfig()
	longTerm.Session = session.Config{
		InitPrompt: protocol.InitMessages(protocol.RoleSystem,
			"You are a long-term assistant. Earlier parts of the conversation may appear as a summary."),
		Caching: session.CachingConfig{Mechanism: session.MechanismSummarize, Limit: 20},
	}

	return []SessionSpec{
		{Name: "Chat Agent", Model: model.DefaultConfig()},
		{Name: "Long Term Agent", Model: longTerm},
	}
}

// DefaultConfig returns a Config with defaults for every subsystem.
func DefaultConfig() Config {
	return Config{
		Dispatch: dispatch.DefaultConfig(),
		Relay:    relay.DefaultConfig(),
		Sessions: DefaultSessions(),
		Observer: defaultObserver,
		Listen:   defaultListen,
		LogLevel: defaultLogLevel,
	}
}

// Merge applies non-zero values from source into c. A non-empty session
// list replaces the defaults.
func (c *Config) Merge(source *Config) {
	c.Dispatch.Merge(&source.Dispatch)
	c.Relay.Merge(&source.Relay)

	if len(source.Sessions) > 0 {
		c.Sessions = source.Sessions
	}
	if source.Observer != "" {
		c.Observer = source.Observer
	}
	if source.Listen != "" {
		c.Listen = source.Listen
	}
	if source.LogLevel != "" {
		c.LogLevel = source.LogLevel
	}
}

// Validate rejects session lists that would fail at start-up.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Sessions))
	for i, s := range c.Sessions {
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("session %d: %w", i, dispatch.ErrEmptySessionName)
		}
		if seen[s.Name] {
			return fmt.Errorf("%w: %s", dispatch.ErrSessionExists, s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}

// envKeys are the scalar settings that may be overridden from the
// environment.
var envKeys = []string{
	"listen",
	"observer",
	"log_level",
	"dispatch.command_buffer",
	"dispatch.mailbox_size",
	"dispatch.poll_interval",
	"dispatch.mailbox_timeout",
	"dispatch.max_restarts",
	"dispatch.restart_backoff",
	"dispatch.max_restart_backoff",
	"dispatch.shutdown_timeout",
	"relay.buffer_size",
	"relay.token_timeout",
	"relay.subscriber_buffer",
}

// LoadConfig reads a JSON, YAML or TOML file (chosen by extension), applies
// SWITCHBOARD_* environment overrides, and merges the result over
// DefaultConfig. An empty path loads defaults and environment only.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var loaded Config
	if err := v.Unmarshal(&loaded); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg := DefaultConfig()
	cfg.Merge(&loaded)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
