package session

import (
	"fmt"

	"github.com/tailored-agentic-units/switchboard/core/protocol"
)

// Mechanism selects how a session keeps its history bounded.
type Mechanism string

const (
	// MechanismNone keeps every message.
	MechanismNone Mechanism = "none"
	// MechanismForgetful evicts the oldest history messages beyond Limit.
	MechanismForgetful Mechanism = "forgetful"
	// MechanismSummarize folds history beyond Limit into a single system
	// summary produced by the model.
	MechanismSummarize Mechanism = "summarize"
)

const defaultCachingLimit = 50

// CachingConfig bounds a session's history.
type CachingConfig struct {
	Mechanism Mechanism `json:"mechanism,omitempty" mapstructure:"mechanism"`
	Limit     int       `json:"limit,omitempty" mapstructure:"limit"`
}

// Config holds session initialization parameters.
type Config struct {
	// InitPrompt messages are pinned at the head of memory and never evicted.
	InitPrompt []protocol.Message `json:"init_prompt,omitempty" mapstructure:"init_prompt"`
	Caching    CachingConfig      `json:"caching" mapstructure:"caching"`
}

// DefaultConfig returns a forgetful session with the default limit.
func DefaultConfig() Config {
	return Config{
		Caching: CachingConfig{
			Mechanism: MechanismForgetful,
			Limit:     defaultCachingLimit,
		},
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if len(source.InitPrompt) > 0 {
		c.InitPrompt = source.InitPrompt
	}
	if source.Caching.Mechanism != "" {
		c.Caching.Mechanism = source.Caching.Mechanism
	}
	if source.Caching.Limit > 0 {
		c.Caching.Limit = source.Caching.Limit
	}
}

// Validate reports configuration that New would reject.
func (c *Config) Validate() error {
	switch c.Caching.Mechanism {
	case MechanismNone, MechanismForgetful, MechanismSummarize:
	default:
		return fmt.Errorf("unknown caching mechanism: %q", c.Caching.Mechanism)
	}
	if c.Caching.Limit < 0 {
		return fmt.Errorf("caching limit must not be negative: %d", c.Caching.Limit)
	}
	if c.Caching.Mechanism == MechanismSummarize && c.Caching.Limit < 2 {
		return fmt.Errorf("summarize caching needs a limit of at least 2, got %d", c.Caching.Limit)
	}
	for i, msg := range c.InitPrompt {
		if _, err := protocol.ParseRole(string(msg.Role)); err != nil {
			return fmt.Errorf("init prompt message %d: %w", i, err)
		}
	}
	return nil
}

// New creates a Session from configuration. An empty mechanism falls back
// to the defaults.
func New(cfg *Config) (Session, error) {
	merged := DefaultConfig()
	merged.Merge(cfg)

	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return newMemorySession(merged.InitPrompt, merged.Caching), nil
}
