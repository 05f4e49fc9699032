package dispatch

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/tailored-agentic-units/switchboard/model"
	"github.com/tailored-agentic-units/switchboard/observability"
	"github.com/tailored-agentic-units/switchboard/relay"
)

// SessionInfo describes a registry entry.
type SessionInfo struct {
	Name      string    `json:"name"`
	Live      bool      `json:"live"`
	Failures  int       `json:"failures,omitempty"`
	GaveUp    bool      `json:"gave_up,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type entry struct {
	name    string
	config  model.Config
	mailbox *Mailbox
	worker  *Worker
	cancel  context.CancelFunc

	failures int
	retryAt  time.Time
	gaveUp   bool
	lastErr  error
	created  time.Time
}

func (e *entry) live() bool {
	return e.worker != nil && !e.worker.Exited()
}

// Registry holds the named sessions and their workers. It is owned by the
// dispatch loop and is not safe for concurrent use.
type Registry struct {
	cfg      Config
	build    model.Builder
	out      *relay.Sender
	observer observability.Observer
	now      func() time.Time

	entries  []*entry
	draining map[string]*Worker
}

// NewRegistry creates an empty Registry from cfg merged over DefaultConfig.
// Workers send on clones of out.
func NewRegistry(cfg Config, build model.Builder, out *relay.Sender, observer observability.Observer) *Registry {
	merged := DefaultConfig()
	merged.Merge(&cfg)

	if observer == nil {
		observer = observability.NoOpObserver{}
	}
	return &Registry{
		cfg:      merged,
		build:    build,
		out:      out,
		observer: observer,
		now:      time.Now,
		draining: make(map[string]*Worker),
	}
}

// Create registers a session and tries to start its worker. A failed start
// leaves the session registered without a worker; Reconcile retries it.
// Workers run until ctx ends or the session is removed.
func (r *Registry) Create(ctx context.Context, name string, cfg model.Config) error {
	if isBlank(name) {
		return ErrEmptySessionName
	}
	if r.find(name) >= 0 {
		return fmt.Errorf("%w: %s", ErrSessionExists, name)
	}
	if w, ok := r.draining[name]; ok {
		if !w.Exited() {
			return fmt.Errorf("%w: %s: previous worker still stopping", ErrSessionExists, name)
		}
		delete(r.draining, name)
	}

	e := &entry{name: name, config: cfg, created: r.now()}
	r.entries = append(r.entries, e)

	r.emit(ctx, EventSessionCreated, observability.LevelInfo, name, map[string]any{
		"provider": cfg.Provider,
		"model":    cfg.Model,
	})

	r.start(ctx, e)
	return nil
}

// Remove stops a session's worker and drops the entry. An in-flight
// completion is cancelled between fragments. Remove waits up to
// ShutdownTimeout for the worker to exit; one that is still running after
// that keeps the name reserved until it does.
func (r *Registry) Remove(ctx context.Context, name string) error {
	i := r.find(name)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownSession, name)
	}

	w := r.entries[i].worker
	r.stop(r.entries[i])
	r.entries = slices.Delete(r.entries, i, i+1)

	if w != nil && !r.awaitExit(ctx, w) {
		r.draining[name] = w
		r.emit(ctx, EventWorkerStuck, observability.LevelWarning, name, map[string]any{
			"timeout": r.cfg.ShutdownTimeout.String(),
		})
	}

	r.emit(ctx, EventSessionRemoved, observability.LevelInfo, name, nil)
	return nil
}

// Lookup returns the mailbox of a live session.
func (r *Registry) Lookup(name string) (*Mailbox, error) {
	i := r.find(name)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, name)
	}

	e := r.entries[i]
	if !e.live() {
		if e.lastErr != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrSessionUnavailable, name, e.lastErr)
		}
		return nil, fmt.Errorf("%w: %s", ErrSessionUnavailable, name)
	}
	return e.mailbox, nil
}

// IsLive reports whether the named session has a running worker.
func (r *Registry) IsLive(name string) bool {
	i := r.find(name)
	return i >= 0 && r.entries[i].live()
}

// Len reports the number of registered sessions.
func (r *Registry) Len() int {
	return len(r.entries)
}

// Sessions returns a snapshot of every entry in creation order.
func (r *Registry) Sessions() []SessionInfo {
	infos := make([]SessionInfo, 0, len(r.entries))
	for _, e := range r.entries {
		info := SessionInfo{
			Name:      e.name,
			Live:      e.live(),
			Failures:  e.failures,
			GaveUp:    e.gaveUp,
			CreatedAt: e.created,
		}
		if e.lastErr != nil {
			info.LastError = e.lastErr.Error()
		}
		infos = append(infos, info)
	}
	return infos
}

// Reconcile reaps exited workers and starts a fresh worker for every entry
// without one whose backoff has elapsed. A live entry is never restarted.
func (r *Registry) Reconcile(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	now := r.now()
	for _, e := range r.entries {
		r.reap(ctx, e)

		if e.worker != nil || e.gaveUp || now.Before(e.retryAt) {
			continue
		}
		r.start(ctx, e)
	}
}

// awaitExit waits for w to exit, for at most ShutdownTimeout.
func (r *Registry) awaitExit(ctx context.Context, w *Worker) bool {
	timer := time.NewTimer(r.cfg.ShutdownTimeout)
	defer timer.Stop()

	select {
	case <-w.Done():
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return w.Exited()
	}
}

// Close stops every worker and waits for them to exit or ctx to end.
// Workers still running when ctx ends are abandoned.
func (r *Registry) Close(ctx context.Context) error {
	running := make([]*Worker, 0, len(r.entries)+len(r.draining))
	for _, e := range r.entries {
		if e.worker != nil {
			running = append(running, e.worker)
		}
		r.stop(e)
	}
	for name, w := range r.draining {
		running = append(running, w)
		delete(r.draining, name)
	}
	r.entries = nil

	for _, w := range running {
		select {
		case <-w.Done():
		case <-ctx.Done():
			return fmt.Errorf("session workers still running: %w", ctx.Err())
		}
	}
	return nil
}

func (r *Registry) start(ctx context.Context, e *entry) {
	s, err := r.buildSession(e.config)
	if err != nil {
		err = fmt.Errorf("%w: %s: %w", ErrBuildFailed, e.name, err)
		r.emit(ctx, EventWorkerBuildFailed, observability.LevelError, e.name, map[string]any{
			"error":    err.Error(),
			"failures": e.failures + 1,
		})
		r.recordFailure(ctx, e, err)
		return
	}

	wctx, cancel := context.WithCancel(ctx)
	mailbox := newMailbox(r.cfg.MailboxSize)
	w := newWorker(e.name, s, mailbox, r.out.Clone(), r.observer)
	mailbox.exited = w.Done()

	e.mailbox = mailbox
	e.worker = w
	e.cancel = cancel

	go w.run(wctx)

	r.emit(ctx, EventWorkerStarted, observability.LevelVerbose, e.name, map[string]any{
		"restarts": e.failures,
	})
}

// buildSession calls the builder, converting a panic into an error.
func (r *Registry) buildSession(cfg model.Config) (s model.Session, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("builder panicked: %v", p)
		}
	}()
	return r.build(cfg)
}

// reap detaches an exited worker and counts the exit as a failure. A worker
// that served at least one request clears the failure streak first.
func (r *Registry) reap(ctx context.Context, e *entry) {
	if e.worker == nil || !e.worker.Exited() {
		return
	}

	w := e.worker
	r.stop(e)

	err := w.Err()
	if err == nil {
		err = fmt.Errorf("%w: %s", ErrWorkerExited, e.name)
	}
	if w.Served() > 0 {
		e.failures = 0
	}

	r.emit(ctx, EventWorkerExited, observability.LevelWarning, e.name, map[string]any{
		"error":  err.Error(),
		"served": w.Served(),
	})
	r.recordFailure(ctx, e, err)
}

func (r *Registry) recordFailure(ctx context.Context, e *entry, err error) {
	e.failures++
	e.lastErr = err

	if r.cfg.MaxRestarts >= 0 && e.failures >= r.cfg.MaxRestarts {
		e.gaveUp = true
		reason := fmt.Sprintf("gave up after %d consecutive failures: %v", e.failures, err)

		r.emit(ctx, EventSessionGaveUp, observability.LevelError, e.name, map[string]any{
			"failures": e.failures,
			"error":    err.Error(),
		})
		_ = r.out.Send(ctx, relay.SessionClosed{SessionName: e.name, Reason: reason})
		return
	}

	e.retryAt = r.now().Add(r.cfg.backoff(e.failures))
}

// stop disconnects the mailbox and cancels the worker without waiting.
func (r *Registry) stop(e *entry) {
	if e.mailbox != nil {
		e.mailbox.ch.Close()
	}
	if e.cancel != nil {
		e.cancel()
	}
	e.mailbox = nil
	e.worker = nil
	e.cancel = nil
}

func (r *Registry) find(name string) int {
	return slices.IndexFunc(r.entries, func(e *entry) bool { return e.name == name })
}

func (r *Registry) emit(ctx context.Context, typ observability.EventType, level observability.Level, session string, data map[string]any) {
	r.observer.OnEvent(ctx, observability.NewEvent(typ, level, "dispatch.registry", data).ForSession(session))
}
