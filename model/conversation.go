package model

import (
	"context"
	"fmt"
	"strings"

	"github.com/tailored-agentic-units/switchboard/core/protocol"
	"github.com/tailored-agentic-units/switchboard/session"
)

const summarizePrompt = "Summarize the conversation so far in a few sentences. " +
	"Keep names, facts and open questions. Reply with the summary only."

// SummaryPrefix marks the system message that replaces folded history.
const SummaryPrefix = "Summary of the earlier conversation: "

// Conversation is a Session over a Provider and session memory. It is
// driven by a single worker and is not safe for concurrent turns.
type Conversation struct {
	provider Provider
	memory   session.Session
}

// NewConversation creates a Conversation. A nil memory is replaced by an
// unbounded in-memory session.
func NewConversation(p Provider, memory session.Session) *Conversation {
	if memory == nil {
		memory = session.NewMemorySession()
	}
	return &Conversation{provider: p, memory: memory}
}

// Provider returns the underlying provider.
func (c *Conversation) Provider() Provider {
	return c.provider
}

func (c *Conversation) Complete(ctx context.Context, prompt string) (string, error) {
	msgs, err := c.prepare(ctx, prompt)
	if err != nil {
		return "", err
	}

	reply, err := c.provider.Generate(ctx, msgs)
	if err != nil {
		return "", err
	}

	c.memory.AddMessage(msgs[len(msgs)-1])
	c.memory.AddMessage(protocol.NewMessage(protocol.RoleAssistant, reply))
	return reply, nil
}

func (c *Conversation) Stream(ctx context.Context, prompt string) (Fragments, error) {
	msgs, err := c.prepare(ctx, prompt)
	if err != nil {
		return nil, err
	}

	fragments, err := c.provider.GenerateStream(ctx, msgs)
	if err != nil {
		return nil, err
	}

	c.memory.AddMessage(msgs[len(msgs)-1])
	return fragments, nil
}

func (c *Conversation) PushMemory(role protocol.Role, content string) {
	c.memory.AddMessage(protocol.NewMessage(role, content))
}

func (c *Conversation) Memory() []protocol.Message {
	return c.memory.Messages()
}

// prepare validates the prompt, folds overflowing history, and returns the
// messages to send: memory followed by the user prompt.
func (c *Conversation) prepare(ctx context.Context, prompt string) ([]protocol.Message, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, ErrEmptyPrompt
	}
	if err := c.compact(ctx); err != nil {
		return nil, err
	}

	msgs := c.memory.Messages()
	return append(msgs, protocol.NewMessage(protocol.RoleUser, prompt)), nil
}

func (c *Conversation) compact(ctx context.Context) error {
	overflow := c.memory.Overflow()
	if len(overflow) == 0 {
		return nil
	}

	request := append(overflow, protocol.NewMessage(protocol.RoleUser, summarizePrompt))
	summary, err := c.provider.Generate(ctx, request)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSummarizeFailed, err)
	}

	c.memory.Fold(len(overflow), protocol.NewMessage(protocol.RoleSystem, SummaryPrefix+summary))
	return nil
}
