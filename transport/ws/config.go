package ws

import "time"

// Config controls connection keepalive and buffering.
type Config struct {
	// PingInterval is how often the server pings each client.
	PingInterval time.Duration `json:"ping_interval,omitempty" mapstructure:"ping_interval"`
	// ReadTimeout closes a connection that has sent nothing, not even a
	// pong, for this long. Must exceed PingInterval.
	ReadTimeout time.Duration `json:"read_timeout,omitempty" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout,omitempty" mapstructure:"write_timeout"`
	// SendBuffer bounds the queue of error replies per client.
	SendBuffer int `json:"send_buffer,omitempty" mapstructure:"send_buffer"`
	// MaxFrameSize caps an inbound frame in bytes.
	MaxFrameSize int64 `json:"max_frame_size,omitempty" mapstructure:"max_frame_size"`
}

func DefaultConfig() Config {
	return Config{
		PingInterval: 30 * time.Second,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
		SendBuffer:   16,
		MaxFrameSize: 1 << 20,
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.PingInterval > 0 {
		c.PingInterval = source.PingInterval
	}
	if source.ReadTimeout > 0 {
		c.ReadTimeout = source.ReadTimeout
	}
	if source.WriteTimeout > 0 {
		c.WriteTimeout = source.WriteTimeout
	}
	if source.SendBuffer > 0 {
		c.SendBuffer = source.SendBuffer
	}
	if source.MaxFrameSize > 0 {
		c.MaxFrameSize = source.MaxFrameSize
	}
}
