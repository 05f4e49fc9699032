// Package backend assembles the dispatch loop, the outbound relay and its
// fanout into one runnable unit.
//
// The backend initializes from configuration via New. Functional options
// allow tests to substitute the session builder and attach observers.
//
//	cfg, err := backend.LoadConfig("switchboard.yaml")
//	b, err := backend.New(cfg)
//	sub := b.Subscribe()
//	go b.Run(ctx)
//	b.TrySend(dispatch.StartStreamedCompletion{SessionName: "Chat Agent", Prompt: "hello"})
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/tailored-agentic-units/switchboard/core/protocol"
	"github.com/tailored-agentic-units/switchboard/dispatch"
	"github.com/tailored-agentic-units/switchboard/model"
	"github.com/tailored-agentic-units/switchboard/observability"
	"github.com/tailored-agentic-units/switchboard/relay"

	_ "github.com/tailored-agentic-units/switchboard/model/echo"
	_ "github.com/tailored-agentic-units/switchboard/model/gemini"
)

// Option configures a Backend before its subsystems are created.
type Option func(*Backend)

// WithLogger sets the logger used for the slog observer and command
// failure reports. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(b *Backend) { b.logger = l }
}

// WithObserver adds o alongside the observers named in Config.Observer.
func WithObserver(o observability.Observer) Option {
	return func(b *Backend) { b.extra = append(b.extra, o) }
}

// WithBuilder overrides model.Build as the session builder.
func WithBuilder(fn model.Builder) Option {
	return func(b *Backend) { b.build = fn }
}

// Backend is the chat backend: command routing in, streamed output out.
type Backend struct {
	cfg      Config
	logger   *slog.Logger
	observer observability.Observer
	extra    []observability.Observer
	build    model.Builder

	tx         *relay.Sender
	rx         *relay.Receiver
	dispatcher *dispatch.Dispatcher
	fanout     *relay.Fanout
}

// New creates a Backend from configuration.
func New(cfg *Config, opts ...Option) (*Backend, error) {
	b := &Backend{
		cfg:    *cfg,
		logger: slog.Default(),
		build:  model.Build,
	}
	for _, opt := range opts {
		opt(b)
	}

	if err := b.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	name := b.cfg.Observer
	if name == "" {
		name = defaultObserver
	}
	named, err := observability.Resolve(name, b.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create observer: %w", err)
	}
	b.observer = observability.Join(append([]observability.Observer{named}, b.extra...)...)

	b.tx, b.rx = relay.New(b.cfg.Relay, relay.WithObserver(b.observer))
	b.fanout = relay.NewFanout(b.rx)
	b.dispatcher = dispatch.New(b.cfg.Dispatch, b.tx,
		dispatch.WithBuilder(b.build),
		dispatch.WithObserver(b.observer),
		dispatch.WithReporter(b.reportCommand),
	)

	return b, nil
}

// Config returns the configuration the backend was created with.
func (b *Backend) Config() Config {
	return b.cfg
}

// Run starts the dispatch loop and the fanout, creates the configured
// sessions, and blocks until ctx is cancelled or a component fails.
func (b *Backend) Run(ctx context.Context) error {
	defer b.rx.Close()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return b.fanout.Run(gctx)
	})
	g.Go(func() error {
		return b.dispatcher.Run(gctx)
	})
	g.Go(func() error {
		return b.seed(gctx)
	})

	b.logger.InfoContext(ctx, "backend started",
		slog.Int("sessions", len(b.cfg.Sessions)),
		slog.String("observer", b.cfg.Observer),
	)

	err := g.Wait()

	b.logger.InfoContext(context.WithoutCancel(ctx), "backend stopped",
		slog.Any("relay", b.tx.Metrics()),
	)
	return err
}

func (b *Backend) seed(ctx context.Context) error {
	for _, s := range b.cfg.Sessions {
		err := b.dispatcher.Send(ctx, dispatch.CreateSession{Name: s.Name, Config: s.Model})
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, dispatch.ErrStopped) {
				return nil
			}
			return fmt.Errorf("failed to create session %q: %w", s.Name, err)
		}
	}
	return nil
}

func (b *Backend) reportCommand(cmd dispatch.Command, err error) {
	b.logger.Warn("command failed",
		slog.String("command", string(cmd.Type())),
		slog.String("session", cmd.Target()),
		slog.String("error", err.Error()),
	)
}

// TrySend enqueues a command without blocking. It fails with
// dispatch.ErrBackendBusy when the command channel is full.
func (b *Backend) TrySend(cmd dispatch.Command) error {
	return b.dispatcher.TrySend(cmd)
}

// Send enqueues a command, blocking while the command channel is full.
func (b *Backend) Send(ctx context.Context, cmd dispatch.Command) error {
	return b.dispatcher.Send(ctx, cmd)
}

// Sessions lists the registered sessions.
func (b *Backend) Sessions(ctx context.Context) ([]dispatch.SessionInfo, error) {
	return b.dispatcher.Sessions(ctx)
}

// Memory returns a copy of a session's memory.
func (b *Backend) Memory(ctx context.Context, name string) ([]protocol.Message, error) {
	return b.dispatcher.Memory(ctx, name)
}

// Subscribe attaches a consumer to the outbound stream, optionally limited
// to the named sessions.
func (b *Backend) Subscribe(sessions ...string) *relay.Subscription {
	return b.fanout.Subscribe(sessions...)
}

// Metrics returns relay counters.
func (b *Backend) Metrics() relay.MetricsSnapshot {
	return b.tx.Metrics()
}

// Observer returns the observer shared by the backend's subsystems.
func (b *Backend) Observer() observability.Observer {
	return b.observer
}
