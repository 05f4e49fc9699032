// Package channel provides a bounded, generic message channel that can be
// shared by many senders and closed by its owner without risking a panic on
// send. Closing signals disconnection: blocked senders and receivers return
// ErrClosed instead of racing a closed Go channel.
package channel

import (
	"context"
	"errors"
	"sync/atomic"
)

var (
	// ErrClosed is returned by operations on a closed Channel.
	ErrClosed = errors.New("channel closed")
	// ErrFull is returned by TrySend when the buffer has no free slot.
	ErrFull = errors.New("channel full")
)

// Channel is a bounded FIFO queue. All methods are safe for concurrent use.
type Channel[T any] struct {
	items  chan T
	done   chan struct{}
	closed atomic.Int32
}

// New creates a Channel with the given buffer size. A size of zero makes
// every Send rendezvous with a receiver.
func New[T any](size int) *Channel[T] {
	if size < 0 {
		size = 0
	}
	return &Channel[T]{
		items: make(chan T, size),
		done:  make(chan struct{}),
	}
}

// Send enqueues v, blocking while the buffer is full until ctx ends or the
// channel is closed.
func (c *Channel[T]) Send(ctx context.Context, v T) error {
	if c.IsClosed() {
		return ErrClosed
	}
	select {
	case c.items <- v:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	}
}

// TrySend enqueues v without blocking.
func (c *Channel[T]) TrySend(v T) error {
	if c.IsClosed() {
		return ErrClosed
	}
	select {
	case c.items <- v:
		return nil
	default:
		return ErrFull
	}
}

// Receive dequeues the next item, blocking until one is available, ctx ends,
// or the channel is closed. Items still buffered at close are discarded.
func (c *Channel[T]) Receive(ctx context.Context) (T, error) {
	var zero T
	if c.IsClosed() {
		return zero, ErrClosed
	}
	select {
	case v := <-c.items:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-c.done:
		return zero, ErrClosed
	}
}

// TryReceive dequeues an item if one is immediately available.
func (c *Channel[T]) TryReceive() (T, bool) {
	var zero T
	if c.IsClosed() {
		return zero, false
	}
	select {
	case v := <-c.items:
		return v, true
	default:
		return zero, false
	}
}

// C exposes the receive side for use in select statements. Callers must
// also watch Done to observe disconnection.
func (c *Channel[T]) C() <-chan T {
	return c.items
}

// Done is closed when the channel is closed.
func (c *Channel[T]) Done() <-chan struct{} {
	return c.done
}

// Close disconnects the channel. Subsequent calls are no-ops.
func (c *Channel[T]) Close() {
	if c.closed.CompareAndSwap(0, 1) {
		close(c.done)
	}
}

func (c *Channel[T]) IsClosed() bool {
	return c.closed.Load() == 1
}

func (c *Channel[T]) Len() int {
	return len(c.items)
}

func (c *Channel[T]) Cap() int {
	return cap(c.items)
}
