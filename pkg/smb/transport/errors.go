package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientCredits is returned when the credit window cannot cover
	// a request. Nothing was sent.
	ErrInsufficientCredits = errors.New("transport: insufficient credits")

	// ErrNoNextCommand reports that the next reply of a compound response
	// cannot be located.
	ErrNoNextCommand = errors.New("transport: no next command in compound response")

	// ErrTimeout reports a request that got no response in time. It is
	// terminal: the request is not retried.
	ErrTimeout = errors.New("transport: request timed out")

	// ErrClosed is returned once the transport has been closed.
	ErrClosed = errors.New("transport: closed")
)

// ReconnectedError reports that the connection was re-established while a
// request was outstanding. The request may or may not have been executed.
type ReconnectedError struct {
	// AlternateChannel is set when the new connection is a different
	// channel of the same session. Resent operations must then carry the
	// replay flag.
	AlternateChannel bool
	Cause            error
}

func (e *ReconnectedError) Error() string {
	channel := "same channel"
	if e.AlternateChannel {
		channel = "alternate channel"
	}
	if e.Cause != nil {
		return fmt.Sprintf("transport: reconnected on %s: %v", channel, e.Cause)
	}
	return "transport: reconnected on " + channel
}

func (e *ReconnectedError) Unwrap() error { return e.Cause }

// AsReconnected extracts a *ReconnectedError from err.
func AsReconnected(err error) (*ReconnectedError, bool) {
	var re *ReconnectedError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
