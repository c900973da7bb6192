// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package action

import (
	"errors"
	"fmt"
	"net/http"
)

// StatusError is a security exception carrying an HTTP-style status.
//
// 401 authentication failure, 403 denied, 500 internal or configuration
// error, 503 not initialised.
type StatusError struct {
	Status int
	Reason string
	Err    error
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *StatusError) Unwrap() error { return e.Err }

// NewStatusError creates a StatusError wrapping cause, which may be nil.
func NewStatusError(status int, cause error, format string, args ...any) *StatusError {
	return &StatusError{Status: status, Reason: fmt.Sprintf(format, args...), Err: cause}
}

// Forbidden reports a denied action.
func Forbidden(format string, args ...any) *StatusError {
	return NewStatusError(http.StatusForbidden, nil, format, args...)
}

// Unauthorized reports an authentication failure.
func Unauthorized(format string, args ...any) *StatusError {
	return NewStatusError(http.StatusUnauthorized, nil, format, args...)
}

// Internal reports an internal or configuration error.
func Internal(cause error, format string, args ...any) *StatusError {
	return NewStatusError(http.StatusInternalServerError, cause, format, args...)
}

// Unavailable reports that the security layer is not ready.
func Unavailable(format string, args ...any) *StatusError {
	return NewStatusError(http.StatusServiceUnavailable, nil, format, args...)
}

// StatusOf returns the status of err. Errors without one are internal.
func StatusOf(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return http.StatusInternalServerError
}

// PanicError wraps a recovered panic value.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Recovered converts a recover() value into an error.
func Recovered(v any) error {
	if err, ok := v.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return &PanicError{Value: v}
}
