package eventbus

import (
	"errors"
	"fmt"
)

var (
	// ErrBusUnavailable matches every publish the bus could not accept.
	ErrBusUnavailable = errors.New("event bus unavailable")
	// ErrCircuitOpen is the cause when the producer breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker open")
	// ErrUnknownTarget is returned by NewRouter when a rule names a target
	// that was not registered.
	ErrUnknownTarget = errors.New("unknown target")
)

// PublishError describes a rejected publish.
type PublishError struct {
	Bus     string
	EventID string
	Err     error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish %s to %s: %v", e.EventID, e.Bus, e.Err)
}

// Unwrap exposes both ErrBusUnavailable and the underlying cause.
func (e *PublishError) Unwrap() []error {
	return []error{ErrBusUnavailable, e.Err}
}
