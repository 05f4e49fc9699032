// Package relay carries outbound messages from session workers and the
// dispatch loop to a single consumer.
//
// New returns the two ends of one bounded channel. The Sender is cloned to
// every producer; the Receiver belongs to one consumer, usually a Fanout.
// Critical messages block until delivered. Stream tokens block for at most
// Config.TokenTimeout and are then dropped with ErrDropped, so a stalled
// consumer cannot freeze a worker indefinitely.
package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/tailored-agentic-units/switchboard/core/channel"
	"github.com/tailored-agentic-units/switchboard/observability"
)

type pipe struct {
	ch       *channel.Channel[Message]
	cfg      Config
	metrics  *Metrics
	observer observability.Observer
}

// Option configures the relay created by New.
type Option func(*pipe)

// WithObserver sets the observer notified of dropped tokens and
// subscriber changes.
func WithObserver(o observability.Observer) Option {
	return func(p *pipe) {
		if o != nil {
			p.observer = o
		}
	}
}

// New creates a relay from cfg merged over DefaultConfig.
func New(cfg Config, opts ...Option) (*Sender, *Receiver) {
	merged := DefaultConfig()
	merged.Merge(&cfg)

	p := &pipe{
		ch:       channel.New[Message](merged.BufferSize),
		cfg:      merged,
		metrics:  NewMetrics(),
		observer: observability.NoOpObserver{},
	}
	for _, opt := range opts {
		opt(p)
	}

	return &Sender{p: p}, &Receiver{p: p}
}

// Sender is the producer end. It is safe for concurrent use; Clone exists
// so ownership of each copy is explicit.
type Sender struct {
	p *pipe
}

// Clone returns another handle on the same relay.
func (s *Sender) Clone() *Sender {
	return &Sender{p: s.p}
}

// Send delivers msg. It returns channel.ErrClosed once the receiver is
// closed, ctx.Err() when ctx ends first, and ErrDropped when a token
// exceeded the token timeout.
func (s *Sender) Send(ctx context.Context, msg Message) error {
	p := s.p

	err := p.ch.TrySend(msg)
	if err == nil {
		p.metrics.RecordSent(1)
		return nil
	}
	if !errors.Is(err, channel.ErrFull) {
		return err
	}

	if msg.Critical() || p.cfg.TokenTimeout <= 0 {
		if err := p.ch.Send(ctx, msg); err != nil {
			return err
		}
		p.metrics.RecordSent(1)
		return nil
	}

	tctx, cancel := context.WithTimeout(ctx, p.cfg.TokenTimeout)
	defer cancel()

	err = p.ch.Send(tctx, msg)
	switch {
	case err == nil:
		p.metrics.RecordSent(1)
		return nil
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		p.metrics.RecordDropped(1)
		p.observer.OnEvent(ctx, observability.NewEvent(
			EventTokenDropped,
			observability.LevelWarning,
			"relay",
			map[string]any{
				"kind":    string(msg.Kind()),
				"timeout": p.cfg.TokenTimeout.String(),
			},
		).ForSession(msg.Session()))
		return fmt.Errorf("%w: %s", ErrDropped, msg.Session())
	default:
		return err
	}
}

// Metrics returns a snapshot of relay counters.
func (s *Sender) Metrics() MetricsSnapshot {
	return s.p.metrics.Snapshot()
}

// Receiver is the consumer end. It must be owned by one goroutine.
type Receiver struct {
	p *pipe
}

// TryReceive returns the next message if one is buffered. Interactive
// consumers call it once per redraw tick.
func (r *Receiver) TryReceive() (Message, bool) {
	msg, ok := r.p.ch.TryReceive()
	if ok {
		r.p.metrics.RecordReceived(1)
	}
	return msg, ok
}

// Receive blocks for the next message.
func (r *Receiver) Receive(ctx context.Context) (Message, error) {
	msg, err := r.p.ch.Receive(ctx)
	if err != nil {
		return nil, err
	}
	r.p.metrics.RecordReceived(1)
	return msg, nil
}

// C exposes the underlying channel for select statements. Messages taken
// from C are not counted as received.
func (r *Receiver) C() <-chan Message {
	return r.p.ch.C()
}

// Done is closed when the receiver is closed.
func (r *Receiver) Done() <-chan struct{} {
	return r.p.ch.Done()
}

// Close disconnects the relay. Blocked and future sends fail with
// channel.ErrClosed.
func (r *Receiver) Close() {
	r.p.ch.Close()
}

// Len reports the number of buffered messages.
func (r *Receiver) Len() int {
	return r.p.ch.Len()
}

// Config returns the effective configuration.
func (r *Receiver) Config() Config {
	return r.p.cfg
}

// Metrics returns a snapshot of relay counters.
func (r *Receiver) Metrics() MetricsSnapshot {
	return r.p.metrics.Snapshot()
}

// Observer returns the observer the relay reports to.
func (r *Receiver) Observer() observability.Observer {
	return r.p.observer
}
