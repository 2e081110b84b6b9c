// Package errs defines the error taxonomy shared by the notification sync layer.
package errs

import "errors"

var (
	// ErrTransport is returned when the backend or realtime endpoint cannot be reached.
	// Non-fatal: callers log it and keep their last-known-good state.
	ErrTransport = errors.New("transport failure")

	// ErrAuth is returned when the backend rejects the session token (HTTP 401).
	// Recovery belongs to the session's auth handler; the sync layer never retries it.
	ErrAuth = errors.New("unauthorized")

	// ErrPlatformUnsupported is returned when the platform lacks a background agent or push support.
	ErrPlatformUnsupported = errors.New("platform push unsupported")

	// ErrPermissionDenied is returned when the user declined the platform permission prompt.
	ErrPermissionDenied = errors.New("notification permission denied")

	// ErrSessionRequired is returned when an operation needs a valid session token.
	ErrSessionRequired = errors.New("valid session required")

	// ErrNotFound is returned when a resource is not found
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput is returned when input data is invalid
	ErrInvalidInput = errors.New("invalid input")
)
