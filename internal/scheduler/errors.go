package scheduler

import "errors"

var (
	ErrIDGenerationExhausted = errors.New("could not generate a unique event ID")
	ErrAlreadyInitialized    = errors.New("scheduler already initialized")
)

// ValidationError reports a request that was rejected before anything was stored.
// Message is suitable for showing to the user.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

var _ error = (*ValidationError)(nil)
