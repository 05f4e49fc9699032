package relay

import "github.com/tailored-agentic-units/switchboard/observability"

const (
	EventTokenDropped      observability.EventType = "relay.token.dropped"
	EventSubscriberAdded   observability.EventType = "relay.subscriber.added"
	EventSubscriberRemoved observability.EventType = "relay.subscriber.removed"
	EventSubscriberEvicted observability.EventType = "relay.subscriber.evicted"
)
