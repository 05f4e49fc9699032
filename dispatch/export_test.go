package dispatch

import (
	"context"
	"time"
)

// Backoff exposes the restart delay computation to tests.
func Backoff(cfg Config, failures int) time.Duration {
	return cfg.backoff(failures)
}

// Queued reports how many requests wait in the named session's mailbox.
func Queued(ctx context.Context, d *Dispatcher, name string) (int, error) {
	var (
		n   int
		err error
	)
	qerr := d.query(ctx, func(context.Context) {
		var mailbox *Mailbox
		if mailbox, err = d.registry.Lookup(name); err == nil {
			n = mailbox.Len()
		}
	})
	if qerr != nil {
		return 0, qerr
	}
	return n, err
}

// Enqueue queues a completion request without going through a Dispatcher.
func (m *Mailbox) Enqueue(prompt, completionID string) error {
	return m.ch.TrySend(request{prompt: prompt, completionID: completionID})
}
