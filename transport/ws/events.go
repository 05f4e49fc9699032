package ws

import "github.com/tailored-agentic-units/switchboard/observability"

const (
	EventClientConnected    observability.EventType = "ws.client.connected"
	EventClientDisconnected observability.EventType = "ws.client.disconnected"
	EventFrameRejected      observability.EventType = "ws.frame.rejected"
)
