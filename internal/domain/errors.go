package domain

import "errors"

var (
	// ErrProviderUnavailable means the streaming provider could not be reached at all.
	ErrProviderUnavailable = errors.New("streaming provider unavailable")
	// ErrProviderRejected means the streaming provider answered but refused the request.
	ErrProviderRejected = errors.New("streaming provider rejected request")
	// ErrPersistenceFailed means a database write did not complete.
	ErrPersistenceFailed = errors.New("persistence failed")
	// ErrTimeout means a bounded operation exceeded its deadline.
	ErrTimeout = errors.New("operation timed out")
	// ErrAlreadyInProgress means a second start was attempted while one is in flight.
	ErrAlreadyInProgress = errors.New("operation already in progress")
	// ErrNotFound means the referenced entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition means a state-machine operation was called from the wrong state.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrMaxReconnectAttempts means the reconnect budget was exhausted.
	ErrMaxReconnectAttempts = errors.New("max reconnect attempts exceeded")
)
