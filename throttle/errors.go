/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttle

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is returned (wrapped) when a Dispatcher or Gated is constructed with invalid parameters.
var ErrInvalidConfig = errors.New("invalid throttle configuration")

func invalidConfigError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// PanicError is produced when the downstream panics. It carries the recovered value and the stack trace.
type PanicError struct {
	Value interface{}
	Stack []byte
}

// Error implements error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in downstream: %v", e.Value)
}

// DownstreamError describes an item that the downstream failed to process (returned an error or panicked).
type DownstreamError[T any] struct {
	Item        T
	Err         error
	FromBacklog bool
}

// Error implements error interface.
func (e *DownstreamError[T]) Error() string {
	return "downstream failed: " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *DownstreamError[T]) Unwrap() error {
	return e.Err
}
