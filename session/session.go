// Package session holds the conversation memory owned by one session worker:
// a pinned init prompt followed by the ordered exchange history, trimmed by
// the configured caching mechanism.
package session

import (
	"github.com/tailored-agentic-units/switchboard/core/protocol"
)

// Session holds an ordered sequence of conversation messages. Implementations
// must be safe for concurrent use.
type Session interface {
	// ID returns the unique session identifier.
	ID() string
	// AddMessage appends a message to the history, applying forgetful eviction.
	AddMessage(msg protocol.Message)
	// Messages returns a defensive copy of init prompt plus history.
	Messages() []protocol.Message
	// Len reports the number of history messages, excluding the init prompt.
	Len() int
	// Clear resets the history. The init prompt is kept.
	Clear()
	// Overflow returns the oldest history messages that a summarizing
	// mechanism should fold away. Empty when the history is within limit.
	Overflow() []protocol.Message
	// Fold replaces the n oldest history messages with summary.
	Fold(n int, summary protocol.Message)
	// Caching returns the caching configuration in effect.
	Caching() CachingConfig
}
