package dispatch

import (
	"strings"

	"github.com/tailored-agentic-units/switchboard/core/protocol"
	"github.com/tailored-agentic-units/switchboard/model"
)

// CommandType identifies a command variant. The values double as wire type
// names.
type CommandType string

const (
	CommandCreateSession   CommandType = "session.create"
	CommandRemoveSession   CommandType = "session.remove"
	CommandStartCompletion CommandType = "completion.start"
	CommandPushMemory      CommandType = "memory.push"
)

// Command is a client request interpreted by the dispatch loop. The set of
// implementations is closed.
type Command interface {
	Type() CommandType
	// Target names the session the command addresses.
	Target() string

	command()
}

// StartStreamedCompletion streams a reply to Prompt from the named session.
// An empty CompletionID is replaced with a generated one.
type StartStreamedCompletion struct {
	SessionName  string `json:"session"`
	Prompt       string `json:"prompt"`
	CompletionID string `json:"completion_id,omitempty"`
}

// CreateSession registers a session and starts its worker.
type CreateSession struct {
	Name   string       `json:"name"`
	Config model.Config `json:"config"`
}

// RemoveSession stops a session and drops it from the registry.
type RemoveSession struct {
	Name string `json:"name"`
}

// PushMemory appends a message to a session's memory without calling the
// model.
type PushMemory struct {
	SessionName string           `json:"session"`
	Message     protocol.Message `json:"message"`
}

func (StartStreamedCompletion) Type() CommandType { return CommandStartCompletion }
func (CreateSession) Type() CommandType           { return CommandCreateSession }
func (RemoveSession) Type() CommandType           { return CommandRemoveSession }
func (PushMemory) Type() CommandType              { return CommandPushMemory }

func (c StartStreamedCompletion) Target() string { return c.SessionName }
func (c CreateSession) Target() string           { return c.Name }
func (c RemoveSession) Target() string           { return c.Name }
func (c PushMemory) Target() string              { return c.SessionName }

func (StartStreamedCompletion) command() {}
func (CreateSession) command()           {}
func (RemoveSession) command()           {}
func (PushMemory) command()              {}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
