// Package wire defines the JSON envelope shared by the WebSocket and RPC
// transports and converts commands and outbound messages to and from it.
//
//	{"id": "...", "type": "completion.start", "payload": {...}, "timestamp": "..."}
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TypeError marks a transport-level rejection sent to the client.
const TypeError = "error"

// Error codes carried in ErrorPayload.
const (
	CodeInvalidMessage     = "INVALID_MESSAGE"
	CodeUnknownSession     = "UNKNOWN_SESSION"
	CodeSessionUnavailable = "SESSION_UNAVAILABLE"
	CodeSessionExists      = "SESSION_EXISTS"
	CodeBusy               = "BACKEND_BUSY"
	CodeInternal           = "INTERNAL"
)

// ErrInvalidMessage wraps every decoding and validation failure.
var ErrInvalidMessage = errors.New("invalid message")

// Envelope wraps every frame exchanged with a client.
type Envelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// ErrorPayload describes a rejected client frame. RequestID echoes the
// envelope ID of the offending frame when it could be read.
type ErrorPayload struct {
	Message   string `json:"message"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// NewEnvelope marshals payload into a new envelope with a UUIDv7 ID and
// the current UTC time.
func NewEnvelope(typ string, payload any) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Envelope{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Type:      typ,
		Payload:   data,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Parse decodes raw JSON into an envelope and checks the required fields.
func Parse(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %w", ErrInvalidMessage, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing 'type' field", ErrInvalidMessage)
	}
	if len(env.Payload) == 0 || string(env.Payload) == "null" {
		return nil, fmt.Errorf("%w: missing 'payload' field", ErrInvalidMessage)
	}
	return &env, nil
}

// Marshal encodes env as JSON.
func (env *Envelope) Marshal() ([]byte, error) {
	return json.Marshal(env)
}

// Error returns an error envelope for err. requestID may be empty.
func Error(err error, requestID string) *Envelope {
	env, merr := NewEnvelope(TypeError, ErrorPayload{
		Message:   err.Error(),
		Code:      Code(err),
		RequestID: requestID,
	})
	if merr != nil {
		// ErrorPayload always marshals.
		panic(merr)
	}
	return env
}
