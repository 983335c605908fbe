package session

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownSession is returned when an event arrives from a connection
	// that never joined.
	ErrUnknownSession = errors.New("unknown session")
	// ErrUnknownMessage is returned when a reaction or read names a message
	// the store does not hold.
	ErrUnknownMessage = errors.New("unknown message")
	// ErrUnknownRecipient is returned when a private message targets a
	// connection without a session.
	ErrUnknownRecipient = errors.New("unknown recipient")
	// ErrInvalidPayload is wrapped by every *InvalidPayloadError.
	ErrInvalidPayload = errors.New("invalid payload")
	ErrUnknownEvent   = errors.New("unknown event")
)

// InvalidPayloadError reports an inbound frame whose data could not be
// decoded or failed validation.
type InvalidPayloadError struct {
	Event string
	Err   error
}

func (e *InvalidPayloadError) Error() string {
	return fmt.Sprintf("invalid %s payload: %v", e.Event, e.Err)
}

func (e *InvalidPayloadError) Unwrap() []error {
	return []error{ErrInvalidPayload, e.Err}
}

// ignorable reports whether err belongs to the silent no-op category: the
// client observes no response and nothing is surfaced.
func ignorable(err error) bool {
	return errors.Is(err, ErrUnknownSession) ||
		errors.Is(err, ErrUnknownMessage) ||
		errors.Is(err, ErrUnknownRecipient)
}
