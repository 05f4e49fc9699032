package relay

// Kind identifies an outbound message variant. The values double as wire
// type names.
type Kind string

const (
	KindStreamToken    Kind = "stream.token"
	KindStreamDone     Kind = "stream.done"
	KindStreamFailed   Kind = "stream.failed"
	KindSessionCreated Kind = "session.created"
	KindSessionClosed  Kind = "session.closed"
)

// Message is an outbound message addressed to the consumer. The set of
// implementations is closed.
type Message interface {
	Kind() Kind
	// Session names the session the message concerns.
	Session() string
	// Critical messages are never dropped under backpressure.
	Critical() bool

	outbound()
}

// StreamToken carries one fragment of a streamed completion. Seq counts
// from zero within a completion.
type StreamToken struct {
	SessionName  string `json:"session"`
	CompletionID string `json:"completion_id"`
	Seq          int    `json:"seq"`
	Token        string `json:"token"`
}

// StreamDone terminates a completion. Tokens is the number of StreamToken
// messages that preceded it.
type StreamDone struct {
	SessionName  string `json:"session"`
	CompletionID string `json:"completion_id"`
	Tokens       int    `json:"tokens"`
}

// StreamFailed terminates a completion that could not finish. Partial
// output was not recorded in memory.
type StreamFailed struct {
	SessionName  string `json:"session"`
	CompletionID string `json:"completion_id"`
	Error        string `json:"error"`
}

// SessionCreated acknowledges a new session.
type SessionCreated struct {
	SessionName string `json:"session"`
}

// SessionClosed reports that a session is gone or has stopped restarting.
type SessionClosed struct {
	SessionName string `json:"session"`
	Reason      string `json:"reason"`
}

func (StreamToken) Kind() Kind    { return KindStreamToken }
func (StreamDone) Kind() Kind     { return KindStreamDone }
func (StreamFailed) Kind() Kind   { return KindStreamFailed }
func (SessionCreated) Kind() Kind { return KindSessionCreated }
func (SessionClosed) Kind() Kind  { return KindSessionClosed }

func (m StreamToken) Session() string    { return m.SessionName }
func (m StreamDone) Session() string     { return m.SessionName }
func (m StreamFailed) Session() string   { return m.SessionName }
func (m SessionCreated) Session() string { return m.SessionName }
func (m SessionClosed) Session() string  { return m.SessionName }

func (StreamToken) Critical() bool    { return false }
func (StreamDone) Critical() bool     { return true }
func (StreamFailed) Critical() bool   { return true }
func (SessionCreated) Critical() bool { return true }
func (SessionClosed) Critical() bool  { return true }

func (StreamToken) outbound()    {}
func (StreamDone) outbound()     {}
func (StreamFailed) outbound()   {}
func (SessionCreated) outbound() {}
func (SessionClosed) outbound()  {}
