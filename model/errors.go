package model

import "errors"

var (
	// ErrEmptyPrompt is returned when a completion is requested for a blank prompt.
	ErrEmptyPrompt = errors.New("empty prompt")
	// ErrProviderNotFound is returned when Config.Provider names no registered factory.
	ErrProviderNotFound = errors.New("provider not found")
	// ErrProviderExists is returned when registering a provider name twice.
	ErrProviderExists = errors.New("provider already registered")
	// ErrEmptyProviderName is returned when registering a provider without a name.
	ErrEmptyProviderName = errors.New("provider name is empty")
	// ErrSummarizeFailed wraps provider errors raised while folding memory.
	ErrSummarizeFailed = errors.New("memory summarization failed")
)
