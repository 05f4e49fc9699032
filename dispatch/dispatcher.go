// Package dispatch routes client commands to named session workers.
//
// A Dispatcher owns a Registry of sessions and runs the dispatch loop: on
// every iteration it reconciles the registry (restarting dead workers),
// then interprets at most one pending command. Each session worker streams
// its completions through the outbound relay.
//
//	tx, rx := relay.New(relay.DefaultConfig())
//	d := dispatch.New(dispatch.DefaultConfig(), tx)
//	go d.Run(ctx)
//	d.TrySend(dispatch.CreateSession{Name: "Chat Agent"})
//	d.TrySend(dispatch.StartStreamedCompletion{SessionName: "Chat Agent", Prompt: "hello"})
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tailored-agentic-units/switchboard/core/channel"
	"github.com/tailored-agentic-units/switchboard/core/protocol"
	"github.com/tailored-agentic-units/switchboard/model"
	"github.com/tailored-agentic-units/switchboard/observability"
	"github.com/tailored-agentic-units/switchboard/relay"
)

// Reporter is called on the loop goroutine for every command that failed.
type Reporter func(cmd Command, err error)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithBuilder overrides model.Build as the session builder.
func WithBuilder(b model.Builder) Option {
	return func(d *Dispatcher) { d.build = b }
}

// WithObserver sets the event observer. Defaults to NoOpObserver.
func WithObserver(o observability.Observer) Option {
	return func(d *Dispatcher) {
		if o != nil {
			d.observer = o
		}
	}
}

// WithReporter registers a callback for failed commands.
func WithReporter(fn Reporter) Option {
	return func(d *Dispatcher) { d.report = fn }
}

// Dispatcher is the dispatch loop and its client surface.
type Dispatcher struct {
	cfg      Config
	out      *relay.Sender
	build    model.Builder
	observer observability.Observer
	report   Reporter

	commands *channel.Channel[Command]
	queries  chan func(context.Context)
	registry *Registry

	running atomic.Bool
	done    chan struct{}
}

// New creates a Dispatcher from cfg merged over DefaultConfig. Outbound
// messages are sent on out.
func New(cfg Config, out *relay.Sender, opts ...Option) *Dispatcher {
	merged := DefaultConfig()
	merged.Merge(&cfg)

	d := &Dispatcher{
		cfg:      merged,
		out:      out,
		build:    model.Build,
		observer: observability.NoOpObserver{},
		commands: channel.New[Command](merged.CommandBuffer),
		queries:  make(chan func(context.Context)),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.registry = NewRegistry(merged, d.build, out, d.observer)
	return d
}

// Config returns the effective configuration.
func (d *Dispatcher) Config() Config {
	return d.cfg
}

// Done is closed once Run has returned.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

// TrySend enqueues a command without blocking.
func (d *Dispatcher) TrySend(cmd Command) error {
	err := d.commands.TrySend(cmd)
	switch {
	case errors.Is(err, channel.ErrFull):
		return ErrBackendBusy
	case errors.Is(err, channel.ErrClosed):
		return ErrStopped
	default:
		return err
	}
}

// Send enqueues a command, blocking while the command channel is full.
func (d *Dispatcher) Send(ctx context.Context, cmd Command) error {
	if err := d.commands.Send(ctx, cmd); err != nil {
		if errors.Is(err, channel.ErrClosed) {
			return ErrStopped
		}
		return err
	}
	return nil
}

// Sessions returns a snapshot of the registry.
func (d *Dispatcher) Sessions(ctx context.Context) ([]SessionInfo, error) {
	reply := make(chan []SessionInfo, 1)
	err := d.query(ctx, func(context.Context) {
		reply <- d.registry.Sessions()
	})
	if err != nil {
		return nil, err
	}
	return <-reply, nil
}

// Memory returns a copy of the named session's memory. The request queues
// behind any completion already in the session's mailbox.
func (d *Dispatcher) Memory(ctx context.Context, name string) ([]protocol.Message, error) {
	snapshot := make(chan []protocol.Message, 1)
	forwarded := make(chan error, 1)
	var exited <-chan struct{}

	err := d.query(ctx, func(lctx context.Context) {
		mailbox, err := d.registry.Lookup(name)
		if err == nil {
			exited = mailbox.exited
			err = d.deliver(lctx, name, mailbox, request{snapshot: snapshot})
		}
		forwarded <- err
	})
	if err != nil {
		return nil, err
	}
	if err := <-forwarded; err != nil {
		return nil, err
	}

	// A worker that exits before reaching the request drops it with the
	// rest of its mailbox.
	select {
	case msgs := <-snapshot:
		return msgs, nil
	case <-exited:
		select {
		case msgs := <-snapshot:
			return msgs, nil
		default:
			return nil, fmt.Errorf("%w: %s", ErrSessionUnavailable, name)
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// query runs fn on the loop goroutine and waits for it to finish.
func (d *Dispatcher) query(ctx context.Context, fn func(context.Context)) error {
	finished := make(chan struct{})
	wrapped := func(lctx context.Context) {
		defer close(finished)
		fn(lctx)
	}

	select {
	case d.queries <- wrapped:
	case <-ctx.Done():
		return ctx.Err()
	case <-d.done:
		return ErrStopped
	}

	<-finished
	return nil
}

// Run executes the dispatch loop until ctx is cancelled, then stops every
// worker. It returns nil on cancellation.
func (d *Dispatcher) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(d.done)
	defer d.shutdown()
	defer d.commands.Close()

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return nil
		}

		d.registry.Reconcile(ctx)

		if cmd, ok := d.commands.TryReceive(); ok {
			d.handle(ctx, cmd)
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case cmd := <-d.commands.C():
			d.handle(ctx, cmd)
		case fn := <-d.queries:
			fn(ctx)
		case <-ticker.C:
		}
	}
}

func (d *Dispatcher) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.ShutdownTimeout)
	defer cancel()

	if err := d.registry.Close(ctx); err != nil {
		d.observer.OnEvent(ctx, observability.NewEvent(
			EventWorkerExited,
			observability.LevelError,
			"dispatch.loop",
			map[string]any{"error": err.Error()},
		))
	}
}

func (d *Dispatcher) handle(ctx context.Context, cmd Command) {
	var err error

	switch c := cmd.(type) {
	case CreateSession:
		err = d.createSession(ctx, c)
	case RemoveSession:
		err = d.removeSession(ctx, c)
	case StartStreamedCompletion:
		err = d.startCompletion(ctx, c)
	case PushMemory:
		err = d.pushMemory(ctx, c)
	default:
		err = fmt.Errorf("%w: %T", ErrUnknownCommand, cmd)
	}

	if err != nil {
		d.fail(ctx, cmd, err)
	}
}

func (d *Dispatcher) createSession(ctx context.Context, c CreateSession) error {
	if err := d.registry.Create(ctx, c.Name, c.Config); err != nil {
		return err
	}
	return d.out.Send(ctx, relay.SessionCreated{SessionName: c.Name})
}

func (d *Dispatcher) removeSession(ctx context.Context, c RemoveSession) error {
	if err := d.registry.Remove(ctx, c.Name); err != nil {
		return err
	}
	return d.out.Send(ctx, relay.SessionClosed{SessionName: c.Name, Reason: "removed"})
}

func (d *Dispatcher) startCompletion(ctx context.Context, c StartStreamedCompletion) error {
	id := c.CompletionID
	if id == "" {
		id = uuid.Must(uuid.NewV7()).String()
	}
	if isBlank(c.Prompt) {
		return fmt.Errorf("%w: %s", ErrEmptyPrompt, c.SessionName)
	}
	return d.forward(ctx, c.SessionName, request{prompt: c.Prompt, completionID: id})
}

func (d *Dispatcher) pushMemory(ctx context.Context, c PushMemory) error {
	if _, err := protocol.ParseRole(string(c.Message.Role)); err != nil {
		return err
	}
	msg := c.Message
	return d.forward(ctx, c.SessionName, request{memory: &msg})
}

// forward delivers req to a live session's mailbox, waiting at most
// MailboxTimeout for a free slot.
func (d *Dispatcher) forward(ctx context.Context, name string, req request) error {
	mailbox, err := d.registry.Lookup(name)
	if err != nil {
		return err
	}
	return d.deliver(ctx, name, mailbox, req)
}

// deliver queues req, waiting at most MailboxTimeout for room.
func (d *Dispatcher) deliver(ctx context.Context, name string, mailbox *Mailbox, req request) error {
	fctx, cancel := context.WithTimeout(ctx, d.cfg.MailboxTimeout)
	defer cancel()

	err := mailbox.ch.Send(fctx, req)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		return fmt.Errorf("%w: %s", ErrMailboxFull, name)
	case errors.Is(err, channel.ErrClosed):
		return fmt.Errorf("%w: %s", ErrSessionUnavailable, name)
	default:
		return err
	}
}

func (d *Dispatcher) fail(ctx context.Context, cmd Command, err error) {
	d.observer.OnEvent(ctx, observability.NewEvent(
		EventCommandFailed,
		observability.LevelWarning,
		"dispatch.loop",
		map[string]any{
			"command": string(cmd.Type()),
			"error":   err.Error(),
		},
	).ForSession(cmd.Target()))

	if d.report != nil {
		d.report(cmd, err)
	}
}
