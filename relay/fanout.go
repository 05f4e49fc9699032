package relay

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/tailored-agentic-units/switchboard/core/channel"
	"github.com/tailored-agentic-units/switchboard/observability"
)

// Subscription receives the messages a Fanout delivers. Its channel is
// closed when the subscription ends, after which Err reports why.
type Subscription struct {
	id       string
	sessions []string
	ch       chan Message
	fanout   *Fanout
	err      error
}

// ID returns the subscription's UUIDv7 identifier.
func (s *Subscription) ID() string {
	return s.id
}

// C yields delivered messages in relay order.
func (s *Subscription) C() <-chan Message {
	return s.ch
}

// Err is nil while the subscription is open or after Close, ErrEvicted
// when the subscriber fell behind, and channel.ErrClosed when the relay
// shut down.
func (s *Subscription) Err() error {
	s.fanout.mu.Lock()
	defer s.fanout.mu.Unlock()
	return s.err
}

// Close ends the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.fanout.remove(s, nil)
}

func (s *Subscription) wants(msg Message) bool {
	return len(s.sessions) == 0 || slices.Contains(s.sessions, msg.Session())
}

// Fanout drains a Receiver and copies each message to every matching
// subscription. A subscription whose buffer is full is evicted rather than
// handed a stream with gaps.
type Fanout struct {
	rx     *Receiver
	buffer int

	mu      sync.Mutex
	subs    map[string]*Subscription
	stopped bool
}

// NewFanout creates a Fanout over rx. Subscriptions use the receiver's
// SubscriberBuffer.
func NewFanout(rx *Receiver) *Fanout {
	return &Fanout{
		rx:     rx,
		buffer: rx.Config().SubscriberBuffer,
		subs:   make(map[string]*Subscription),
	}
}

// Subscribe registers a subscriber. With session names given, only
// messages for those sessions are delivered.
func (f *Fanout) Subscribe(sessions ...string) *Subscription {
	sub := &Subscription{
		id:       uuid.Must(uuid.NewV7()).String(),
		sessions: sessions,
		ch:       make(chan Message, f.buffer),
		fanout:   f,
	}

	f.mu.Lock()
	if f.stopped {
		sub.err = channel.ErrClosed
		close(sub.ch)
		f.mu.Unlock()
		return sub
	}
	f.subs[sub.id] = sub
	f.mu.Unlock()

	f.rx.p.metrics.RecordSubscriber(1)
	f.emit(EventSubscriberAdded, observability.LevelVerbose, sub)
	return sub
}

// Len reports the number of open subscriptions.
func (f *Fanout) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Run delivers messages until ctx ends or the receiver is closed, then
// closes every subscription. A cancelled context is not an error.
func (f *Fanout) Run(ctx context.Context) error {
	defer f.stop()

	for {
		msg, err := f.rx.Receive(ctx)
		if err != nil {
			if errors.Is(err, channel.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		f.deliver(msg)
	}
}

func (f *Fanout) deliver(msg Message) {
	var evicted []*Subscription

	f.mu.Lock()
	for _, sub := range f.subs {
		if !sub.wants(msg) {
			continue
		}
		select {
		case sub.ch <- msg:
		default:
			evicted = append(evicted, sub)
		}
	}
	f.mu.Unlock()

	for _, sub := range evicted {
		f.remove(sub, ErrEvicted)
	}
}

// remove unregisters and closes sub, recording reason as its error. The
// event is emitted before the channel closes, with f.mu released so
// observers may call back into the Fanout.
func (f *Fanout) remove(sub *Subscription, reason error) {
	f.mu.Lock()
	if _, ok := f.subs[sub.id]; !ok {
		f.mu.Unlock()
		return
	}
	delete(f.subs, sub.id)
	sub.err = reason
	f.mu.Unlock()

	f.rx.p.metrics.RecordSubscriber(-1)
	if errors.Is(reason, ErrEvicted) {
		f.rx.p.metrics.RecordEvicted(1)
		f.emit(EventSubscriberEvicted, observability.LevelWarning, sub)
	} else {
		f.emit(EventSubscriberRemoved, observability.LevelVerbose, sub)
	}
	close(sub.ch)
}

func (f *Fanout) stop() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.stopped = true
	for id, sub := range f.subs {
		delete(f.subs, id)
		sub.err = channel.ErrClosed
		close(sub.ch)
		f.rx.p.metrics.RecordSubscriber(-1)
	}
}

func (f *Fanout) emit(typ observability.EventType, level observability.Level, sub *Subscription) {
	f.rx.p.observer.OnEvent(context.Background(), observability.NewEvent(typ, level, "relay.fanout", map[string]any{
		"subscription": sub.id,
		"sessions":     sub.sessions,
	}))
}
