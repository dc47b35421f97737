package lifecycle

import "errors"

var (
	// ErrUnknownStatus indicates a value outside the closed status set.
	ErrUnknownStatus = errors.New("unknown project status")
	// ErrUnknownEvent indicates an event with no entry in the transition table.
	ErrUnknownEvent = errors.New("unknown lifecycle event")
	// ErrInvalidTransition indicates the event is not allowed from the current status.
	ErrInvalidTransition = errors.New("invalid status transition")
)
