// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
)

// ErrorType classifies bridge failures for callers that route on the
// class rather than the exact cause.
type ErrorType int

const (
	// ErrTypeUnknown is an unclassified failure.
	ErrTypeUnknown ErrorType = iota
	// ErrTypeConnection covers transport failures and unreachable or
	// unavailable upstream service.
	ErrTypeConnection
	// ErrTypeTimeout covers exceeded deadlines.
	ErrTypeTimeout
	// ErrTypeRateLimited covers HTTP 429 from the bridge.
	ErrTypeRateLimited
	// ErrTypeAuth covers rejected or missing credentials.
	ErrTypeAuth
	// ErrTypeInvalidResponse covers payloads in no recognized shape.
	ErrTypeInvalidResponse
)

// String returns the error type name.
func (t ErrorType) String() string {
	switch t {
	case ErrTypeConnection:
		return "connection"
	case ErrTypeTimeout:
		return "timeout"
	case ErrTypeRateLimited:
		return "rate_limited"
	case ErrTypeAuth:
		return "auth"
	case ErrTypeInvalidResponse:
		return "invalid_response"
	default:
		return "unknown"
	}
}

// Error is a classified bridge failure.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.Cause
}

// newError creates a classified error.
func newError(t ErrorType, message string, cause error) *Error {
	return &Error{Type: t, Message: message, Cause: cause}
}

// Sentinel errors carried as causes so callers can match with errors.Is.
var (
	// ErrAuthFailed indicates the bridge rejected the credentials.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrInsufficientCredits indicates the account cannot pay for the call.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrRateLimited indicates the bridge refused the call with HTTP 429.
	ErrRateLimited = errors.New("rate limited by bridge")

	// ErrModelNotFound indicates the bridge does not know the model ID.
	ErrModelNotFound = errors.New("model not found")

	// ErrIncompleteStream indicates a stream ended without its
	// completion marker.
	ErrIncompleteStream = errors.New("stream ended without completion")
)

// errType extracts the classification from an error chain.
func errType(err error) (ErrorType, bool) {
	var be *Error
	if errors.As(err, &be) {
		return be.Type, true
	}
	return ErrTypeUnknown, false
}

// IsTimeout reports whether err is a classified timeout.
func IsTimeout(err error) bool {
	t, ok := errType(err)
	return ok && t == ErrTypeTimeout
}

// IsConnection reports whether err is a classified transport failure.
func IsConnection(err error) bool {
	t, ok := errType(err)
	return ok && t == ErrTypeConnection
}

// IsRateLimited reports whether err is a classified bridge refusal.
func IsRateLimited(err error) bool {
	t, ok := errType(err)
	return ok && t == ErrTypeRateLimited
}

// IsAuth reports whether err is a classified credential failure.
func IsAuth(err error) bool {
	t, ok := errType(err)
	return ok && t == ErrTypeAuth
}

// IsInvalidResponse reports whether err is a classified shape failure.
func IsInvalidResponse(err error) bool {
	t, ok := errType(err)
	return ok && t == ErrTypeInvalidResponse
}

// classifyTransport maps an error from the HTTP layer onto the bridge
// taxonomy. Context cancellation passes through unchanged so callers
// can tell their own cancellation from a failing wire.
func classifyTransport(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(ErrTypeTimeout, "bridge call timed out", err)
	}

	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Timeout() {
		return newError(ErrTypeTimeout, "bridge call timed out", err)
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return newError(ErrTypeTimeout, "bridge call timed out", err)
	}

	return newError(ErrTypeConnection, "bridge unreachable", err)
}
