package wire

import (
	"fmt"

	"github.com/tailored-agentic-units/switchboard/relay"
)

// EncodeMessage wraps an outbound message for a client.
func EncodeMessage(msg relay.Message) (*Envelope, error) {
	return NewEnvelope(string(msg.Kind()), msg)
}

// Message decodes an outbound message envelope. Error envelopes decode to
// a *RejectedError.
func (env *Envelope) Message() (relay.Message, error) {
	switch relay.Kind(env.Type) {
	case relay.KindStreamToken:
		return decodeAs[relay.StreamToken](env)
	case relay.KindStreamDone:
		return decodeAs[relay.StreamDone](env)
	case relay.KindStreamFailed:
		return decodeAs[relay.StreamFailed](env)
	case relay.KindSessionCreated:
		return decodeAs[relay.SessionCreated](env)
	case relay.KindSessionClosed:
		return decodeAs[relay.SessionClosed](env)
	}

	if env.Type == TypeError {
		var p ErrorPayload
		if err := env.decode(&p); err != nil {
			return nil, err
		}
		return nil, &RejectedError{Payload: p}
	}
	return nil, fmt.Errorf("%w: unknown message type: %s", ErrInvalidMessage, env.Type)
}

// RejectedError is a server-side rejection received by a client.
type RejectedError struct {
	Payload ErrorPayload
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("rejected (%s): %s", e.Payload.Code, e.Payload.Message)
}

func decodeAs[T relay.Message](env *Envelope) (relay.Message, error) {
	var m T
	if err := env.decode(&m); err != nil {
		return nil, err
	}
	return m, nil
}
