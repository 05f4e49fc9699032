package model

import (
	"maps"

	"github.com/tailored-agentic-units/switchboard/session"
)

// DefaultProvider is the offline provider used when none is configured.
const DefaultProvider = "echo"

// Config selects a provider and configures the session it serves.
type Config struct {
	Provider string         `json:"provider,omitempty" mapstructure:"provider"`
	Model    string         `json:"model,omitempty" mapstructure:"model"`
	Options  map[string]any `json:"options,omitempty" mapstructure:"options"`
	Session  session.Config `json:"session" mapstructure:"session"`
}

// DefaultConfig returns the echo provider over a default session.
func DefaultConfig() Config {
	return Config{
		Provider: DefaultProvider,
		Session:  session.DefaultConfig(),
	}
}

// Merge applies non-zero values from source into c. Options are merged key
// by key with source winning.
func (c *Config) Merge(source *Config) {
	if source.Provider != "" {
		c.Provider = source.Provider
	}
	if source.Model != "" {
		c.Model = source.Model
	}
	if len(source.Options) > 0 {
		if c.Options == nil {
			c.Options = make(map[string]any, len(source.Options))
		}
		maps.Copy(c.Options, source.Options)
	}
	c.Session.Merge(&source.Session)
}

// Option returns the named provider option, or fallback when it is absent
// or of a different type.
func Option[T any](cfg *Config, key string, fallback T) T {
	if v, ok := cfg.Options[key].(T); ok {
		return v
	}
	return fallback
}
