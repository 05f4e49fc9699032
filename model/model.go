// Package model defines the model session capability consumed by session
// workers and the provider plumbing behind it.
//
// A Session is what a worker drives: it streams a completion for a prompt,
// accepts memory pushes, and exposes its memory. Conversation is the
// standard Session, combining a Provider with session memory. Providers are
// registered by name in a Registry and selected through Config.Provider.
package model

import (
	"context"
	"iter"

	"github.com/tailored-agentic-units/switchboard/core/protocol"
)

// Fragments is a finite, ordered sequence of completion text fragments.
// A non-nil error terminates the sequence.
type Fragments = iter.Seq2[string, error]

// Session is the model capability owned by one session worker.
type Session interface {
	// Complete produces a full reply to prompt and records the exchange.
	Complete(ctx context.Context, prompt string) (string, error)
	// Stream starts a streamed completion. The prompt is recorded as a user
	// message; the caller records the assistant reply once the sequence is
	// exhausted.
	Stream(ctx context.Context, prompt string) (Fragments, error)
	// PushMemory appends a message to memory without calling the model.
	PushMemory(role protocol.Role, content string)
	// Memory returns a copy of the session's memory.
	Memory() []protocol.Message
}

// Provider generates completions over a full message history.
type Provider interface {
	Name() string
	Generate(ctx context.Context, msgs []protocol.Message) (string, error)
	GenerateStream(ctx context.Context, msgs []protocol.Message) (Fragments, error)
}

// Factory creates a Provider from configuration.
type Factory func(cfg *Config) (Provider, error)

// Builder constructs a Session from configuration. Session workers are
// started through a Builder so tests can substitute scripted sessions.
type Builder func(cfg Config) (Session, error)

// Collect drains fragments into a single string.
func Collect(fragments Fragments) (string, error) {
	var out []byte
	for frag, err := range fragments {
		if err != nil {
			return string(out), err
		}
		out = append(out, frag...)
	}
	return string(out), nil
}
