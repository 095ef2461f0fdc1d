package core

import "errors"

var (
	// ErrNotFound is returned when a referenced entity is absent.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyRunning is returned when a timer start conflicts with a
	// timer already running on the same task.
	ErrAlreadyRunning = errors.New("timer already running")

	// ErrPermissionDenied is returned when the acting user is not
	// authorized for the mutation.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrValidation is returned on malformed input: bad date ranges,
	// duplicate names, mismatched reorder sets.
	ErrValidation = errors.New("invalid args")

	// ErrFeatureDisabled is returned when the corresponding feature gate
	// is switched off in configuration.
	ErrFeatureDisabled = errors.New("feature disabled")

	// ErrStoreUnavailable marks failures of the underlying persistence.
	// It is the only kind a caller should retry with backoff; all others
	// are terminal for the given request.
	ErrStoreUnavailable = errors.New("store unavailable")
)
