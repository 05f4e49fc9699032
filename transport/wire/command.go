package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tailored-agentic-units/switchboard/core/protocol"
	"github.com/tailored-agentic-units/switchboard/dispatch"
	"github.com/tailored-agentic-units/switchboard/relay"
)

// EncodeCommand wraps a command for sending to a backend.
func EncodeCommand(cmd dispatch.Command) (*Envelope, error) {
	return NewEnvelope(string(cmd.Type()), cmd)
}

// DecodeCommand validates a client frame and returns the command it
// carries. The envelope is returned whenever it could be parsed so callers
// can echo its ID in an error reply.
func DecodeCommand(raw []byte) (dispatch.Command, *Envelope, error) {
	env, err := Parse(raw)
	if err != nil {
		return nil, nil, err
	}
	cmd, err := env.Command()
	return cmd, env, err
}

// Command decodes the envelope's payload into the command named by Type.
func (env *Envelope) Command() (dispatch.Command, error) {
	switch dispatch.CommandType(env.Type) {
	case dispatch.CommandCreateSession:
		var c dispatch.CreateSession
		if err := env.decode(&c); err != nil {
			return nil, err
		}
		if err := required(env.Type, "name", c.Name); err != nil {
			return nil, err
		}
		return c, nil

	case dispatch.CommandRemoveSession:
		var c dispatch.RemoveSession
		if err := env.decode(&c); err != nil {
			return nil, err
		}
		if err := required(env.Type, "name", c.Name); err != nil {
			return nil, err
		}
		return c, nil

	case dispatch.CommandStartCompletion:
		var c dispatch.StartStreamedCompletion
		if err := env.decode(&c); err != nil {
			return nil, err
		}
		if err := required(env.Type, "session", c.SessionName); err != nil {
			return nil, err
		}
		if err := required(env.Type, "prompt", c.Prompt); err != nil {
			return nil, err
		}
		return c, nil

	case dispatch.CommandPushMemory:
		var c dispatch.PushMemory
		if err := env.decode(&c); err != nil {
			return nil, err
		}
		if err := required(env.Type, "session", c.SessionName); err != nil {
			return nil, err
		}
		if _, err := protocol.ParseRole(string(c.Message.Role)); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidMessage, env.Type, err)
		}
		return c, nil

	default:
		return nil, fmt.Errorf("%w: unknown command type: %s", ErrInvalidMessage, env.Type)
	}
}

func (env *Envelope) decode(v any) error {
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return fmt.Errorf("%w: invalid payload for %s: %w", ErrInvalidMessage, env.Type, err)
	}
	return nil
}

func required(typ, field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: missing required field '%s' in %s payload", ErrInvalidMessage, field, typ)
	}
	return nil
}

// Code maps an error to the code reported to clients.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInvalidMessage),
		errors.Is(err, dispatch.ErrEmptyPrompt),
		errors.Is(err, dispatch.ErrEmptySessionName):
		return CodeInvalidMessage
	case errors.Is(err, dispatch.ErrUnknownSession):
		return CodeUnknownSession
	case errors.Is(err, dispatch.ErrSessionUnavailable),
		errors.Is(err, dispatch.ErrMailboxFull):
		return CodeSessionUnavailable
	case errors.Is(err, dispatch.ErrSessionExists):
		return CodeSessionExists
	case errors.Is(err, dispatch.ErrBackendBusy),
		errors.Is(err, relay.ErrEvicted):
		return CodeBusy
	default:
		return CodeInternal
	}
}
