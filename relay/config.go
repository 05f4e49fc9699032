package relay

import "time"

// Config controls outbound buffering.
type Config struct {
	// BufferSize bounds the shared outbound channel.
	BufferSize int `json:"buffer_size,omitempty" mapstructure:"buffer_size"`
	// TokenTimeout bounds how long a StreamToken send may block before the
	// token is dropped. Zero or negative blocks like a critical message.
	TokenTimeout time.Duration `json:"token_timeout,omitempty" mapstructure:"token_timeout"`
	// SubscriberBuffer bounds each Fanout subscription.
	SubscriberBuffer int `json:"subscriber_buffer,omitempty" mapstructure:"subscriber_buffer"`
}

func DefaultConfig() Config {
	return Config{
		BufferSize:       100,
		TokenTimeout:     5 * time.Second,
		SubscriberBuffer: 256,
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.BufferSize > 0 {
		c.BufferSize = source.BufferSize
	}
	if source.TokenTimeout != 0 {
		c.TokenTimeout = source.TokenTimeout
	}
	if source.SubscriberBuffer > 0 {
		c.SubscriberBuffer = source.SubscriberBuffer
	}
}
