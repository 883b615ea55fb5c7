package beam

import (
	"errors"
	"fmt"
)

var (
	// ErrRejected matches every *Error, i.e. any 4xx answer of the proxy.
	ErrRejected = errors.New("request rejected by beam proxy")

	// ErrUnexpectedStatus is returned for status codes outside the protocol.
	// It is fatal for the calling operation.
	ErrUnexpectedStatus = errors.New("unexpected beam response status")

	// ErrInvalidTask is returned for envelopes that fail validation. They
	// are never sent.
	ErrInvalidTask = errors.New("invalid beam envelope")
)

// Error is a 4xx response of the proxy together with its message body.
type Error struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("beam proxy returned %d", e.StatusCode)
	}
	return fmt.Sprintf("beam proxy returned %d: %s", e.StatusCode, e.Message)
}

// Unwrap lets errors.Is match ErrRejected.
func (e *Error) Unwrap() error {
	return ErrRejected
}
