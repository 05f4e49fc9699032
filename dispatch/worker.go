package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/tailored-agentic-units/switchboard/core/channel"
	"github.com/tailored-agentic-units/switchboard/core/protocol"
	"github.com/tailored-agentic-units/switchboard/model"
	"github.com/tailored-agentic-units/switchboard/observability"
	"github.com/tailored-agentic-units/switchboard/relay"
)

// request is one unit of work in a worker mailbox. Exactly one of prompt,
// memory or snapshot is meaningful.
type request struct {
	prompt       string
	completionID string
	memory       *protocol.Message
	snapshot     chan<- []protocol.Message
}

// Mailbox is the private request queue of one session worker. Only the
// dispatch loop sends to it or closes it.
type Mailbox struct {
	ch     *channel.Channel[request]
	exited <-chan struct{}
}

func newMailbox(size int) *Mailbox {
	return &Mailbox{ch: channel.New[request](size)}
}

// Len reports the number of queued requests.
func (m *Mailbox) Len() int {
	return m.ch.Len()
}

func (m *Mailbox) Cap() int {
	return m.ch.Cap()
}

// Worker drives one model session. It serves its mailbox one request at a
// time, so completions within a session never interleave.
type Worker struct {
	name     string
	session  model.Session
	mailbox  *Mailbox
	out      *relay.Sender
	observer observability.Observer

	served   atomic.Int64
	inflight string
	done     chan struct{}
	err      error
}

func newWorker(name string, s model.Session, mailbox *Mailbox, out *relay.Sender, observer observability.Observer) *Worker {
	return &Worker{
		name:     name,
		session:  s,
		mailbox:  mailbox,
		out:      out,
		observer: observer,
		done:     make(chan struct{}),
	}
}

// Done is closed when the worker has exited.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Exited reports whether the worker has stopped.
func (w *Worker) Exited() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

// Err returns the reason the worker stopped. Valid once Done is closed;
// nil for a clean shutdown.
func (w *Worker) Err() error {
	if !w.Exited() {
		return nil
	}
	return w.err
}

// Served reports the number of requests the worker completed.
func (w *Worker) Served() int64 {
	return w.served.Load()
}

// run serves the mailbox until it is closed or ctx ends.
func (w *Worker) run(ctx context.Context) {
	defer close(w.done)
	defer func() {
		if r := recover(); r != nil {
			w.err = fmt.Errorf("%w: %v", ErrWorkerPanic, r)
			if w.inflight != "" {
				w.report(ctx, w.inflight, w.err)
			}
		}
	}()

	for {
		req, err := w.mailbox.ch.Receive(ctx)
		if err != nil {
			return
		}
		w.handle(ctx, req)
		w.served.Add(1)
	}
}

func (w *Worker) handle(ctx context.Context, req request) {
	switch {
	case req.snapshot != nil:
		req.snapshot <- w.session.Memory()
	case req.memory != nil:
		w.session.PushMemory(req.memory.Role, req.memory.Content)
	default:
		w.inflight = req.completionID
		w.complete(ctx, req.prompt, req.completionID)
		w.inflight = ""
	}
}

// complete streams one reply. Tokens go out in model order; the reply is
// recorded only when the stream is exhausted without error.
func (w *Worker) complete(ctx context.Context, prompt, id string) {
	w.emit(ctx, EventCompletionStarted, observability.LevelVerbose, map[string]any{
		"completion_id": id,
		"prompt_length": len(prompt),
	})

	fragments, err := w.session.Stream(ctx, prompt)
	if err != nil {
		w.fail(ctx, id, err)
		return
	}

	var reply strings.Builder
	seq := 0

	for frag, err := range fragments {
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			w.fail(ctx, id, err)
			return
		}

		token := relay.StreamToken{SessionName: w.name, CompletionID: id, Seq: seq, Token: frag}
		if err := w.out.Send(ctx, token); err != nil {
			w.fail(ctx, id, err)
			return
		}
		reply.WriteString(frag)
		seq++
	}

	if ctx.Err() != nil {
		return
	}

	w.session.PushMemory(protocol.RoleAssistant, reply.String())

	if err := w.out.Send(ctx, relay.StreamDone{SessionName: w.name, CompletionID: id, Tokens: seq}); err != nil {
		w.emit(ctx, EventCompletionFailed, observability.LevelWarning, map[string]any{
			"completion_id": id,
			"error":         err.Error(),
		})
		return
	}

	w.emit(ctx, EventCompletionDone, observability.LevelVerbose, map[string]any{
		"completion_id": id,
		"tokens":        seq,
	})
}

// fail aborts a completion. A cancelled context means the session was
// removed, which is not reported.
func (w *Worker) fail(ctx context.Context, id string, cause error) {
	if ctx.Err() != nil {
		return
	}
	w.report(ctx, id, fmt.Errorf("%w: %w", ErrCompletionFailed, cause))
}

func (w *Worker) report(ctx context.Context, id string, err error) {
	w.emit(ctx, EventCompletionFailed, observability.LevelWarning, map[string]any{
		"completion_id": id,
		"error":         err.Error(),
	})

	if errors.Is(err, channel.ErrClosed) {
		return
	}
	_ = w.out.Send(ctx, relay.StreamFailed{SessionName: w.name, CompletionID: id, Error: err.Error()})
}

func (w *Worker) emit(ctx context.Context, typ observability.EventType, level observability.Level, data map[string]any) {
	w.observer.OnEvent(ctx, observability.NewEvent(typ, level, "dispatch.worker", data).ForSession(w.name))
}
