package dispatch

import "github.com/tailored-agentic-units/switchboard/observability"

// Dispatch event types.
const (
	EventSessionCreated    observability.EventType = "dispatch.session.created"
	EventSessionRemoved    observability.EventType = "dispatch.session.removed"
	EventSessionGaveUp     observability.EventType = "dispatch.session.gave_up"
	EventWorkerStarted     observability.EventType = "dispatch.worker.started"
	EventWorkerExited      observability.EventType = "dispatch.worker.exited"
	EventWorkerBuildFailed observability.EventType = "dispatch.worker.build_failed"
	EventWorkerStuck       observability.EventType = "dispatch.worker.stuck"
	EventCompletionStarted observability.EventType = "dispatch.completion.started"
	EventCompletionDone    observability.EventType = "dispatch.completion.done"
	EventCompletionFailed  observability.EventType = "dispatch.completion.failed"
	EventCommandFailed     observability.EventType = "dispatch.command.failed"
)
