package dispatch

import "time"

// Config controls buffering, polling and the restart policy.
type Config struct {
	// CommandBuffer bounds the client command channel.
	CommandBuffer int `json:"command_buffer,omitempty" mapstructure:"command_buffer"`
	// MailboxSize bounds each session worker's mailbox.
	MailboxSize int `json:"mailbox_size,omitempty" mapstructure:"mailbox_size"`
	// PollInterval is the longest the loop sleeps between reconciliations.
	PollInterval time.Duration `json:"poll_interval,omitempty" mapstructure:"poll_interval"`
	// MailboxTimeout bounds how long the loop waits on a full mailbox.
	MailboxTimeout time.Duration `json:"mailbox_timeout,omitempty" mapstructure:"mailbox_timeout"`
	// MaxRestarts is the number of consecutive failures after which a
	// session stops restarting. 1 gives up on the first failure, negative
	// retries forever and 0 means the default.
	MaxRestarts int `json:"max_restarts,omitempty" mapstructure:"max_restarts"`
	// RestartBackoff is the delay after the first failure; it doubles per
	// consecutive failure up to MaxRestartBackoff.
	RestartBackoff    time.Duration `json:"restart_backoff,omitempty" mapstructure:"restart_backoff"`
	MaxRestartBackoff time.Duration `json:"max_restart_backoff,omitempty" mapstructure:"max_restart_backoff"`
	// ShutdownTimeout bounds how long Run waits for workers after its
	// context ends.
	ShutdownTimeout time.Duration `json:"shutdown_timeout,omitempty" mapstructure:"shutdown_timeout"`
}

func DefaultConfig() Config {
	return Config{
		CommandBuffer:     100,
		MailboxSize:       5,
		PollInterval:      2 * time.Second,
		MailboxTimeout:    5 * time.Second,
		MaxRestarts:       5,
		RestartBackoff:    500 * time.Millisecond,
		MaxRestartBackoff: 30 * time.Second,
		ShutdownTimeout:   5 * time.Second,
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.CommandBuffer > 0 {
		c.CommandBuffer = source.CommandBuffer
	}
	if source.MailboxSize > 0 {
		c.MailboxSize = source.MailboxSize
	}
	if source.PollInterval > 0 {
		c.PollInterval = source.PollInterval
	}
	if source.MailboxTimeout > 0 {
		c.MailboxTimeout = source.MailboxTimeout
	}
	if source.MaxRestarts != 0 {
		c.MaxRestarts = source.MaxRestarts
	}
	if source.RestartBackoff > 0 {
		c.RestartBackoff = source.RestartBackoff
	}
	if source.MaxRestartBackoff > 0 {
		c.MaxRestartBackoff = source.MaxRestartBackoff
	}
	if source.ShutdownTimeout > 0 {
		c.ShutdownTimeout = source.ShutdownTimeout
	}
}

// backoff returns the restart delay after n consecutive failures.
func (c *Config) backoff(n int) time.Duration {
	if n <= 0 || c.RestartBackoff <= 0 {
		return 0
	}
	d := c.RestartBackoff
	for i := 1; i < n; i++ {
		d *= 2
		if c.MaxRestartBackoff > 0 && d >= c.MaxRestartBackoff {
			return c.MaxRestartBackoff
		}
	}
	if c.MaxRestartBackoff > 0 && d > c.MaxRestartBackoff {
		return c.MaxRestartBackoff
	}
	return d
}
