package dispatch

import (
	"errors"

	"github.com/tailored-agentic-units/switchboard/model"
)

var (
	// ErrCompletionFailed wraps a model error that aborted one completion.
	// The worker keeps serving.
	ErrCompletionFailed = errors.New("completion failed")

	// ErrUnknownSession is returned when a command names no registered session.
	ErrUnknownSession = errors.New("unknown session")
	// ErrSessionUnavailable is returned when the named session has no live worker.
	ErrSessionUnavailable = errors.New("session unavailable")
	// ErrMailboxFull is returned when a session's mailbox stayed full for
	// the whole mailbox timeout.
	ErrMailboxFull = errors.New("session mailbox full")

	// ErrBuildFailed wraps a model session construction error.
	ErrBuildFailed = errors.New("session build failed")
	// ErrWorkerPanic records a recovered worker panic.
	ErrWorkerPanic = errors.New("session worker panicked")
	// ErrWorkerExited records a worker that stopped while its session was
	// still registered.
	ErrWorkerExited = errors.New("session worker exited")

	ErrEmptySessionName = errors.New("session name is empty")
	ErrSessionExists    = errors.New("session already exists")
	ErrEmptyPrompt      = model.ErrEmptyPrompt
	ErrUnknownCommand   = errors.New("unknown command")

	// ErrBackendBusy is returned by TrySend when the command channel is full.
	ErrBackendBusy = errors.New("backend busy")
	// ErrStopped is returned once the dispatch loop has exited.
	ErrStopped = errors.New("dispatcher stopped")
	// ErrAlreadyRunning is returned by a second call to Run.
	ErrAlreadyRunning = errors.New("dispatcher already running")
)
