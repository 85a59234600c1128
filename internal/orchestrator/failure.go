// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/jeranaias/skiff/internal/bridge"
)

// =============================================================================
// FAILURE TAXONOMY
// =============================================================================

// Kind classifies a completion failure for callers that route on the
// class rather than the exact cause.
type Kind int

const (
	// KindUnknown is the catch-all for failures outside the taxonomy,
	// surfaced as-is.
	KindUnknown Kind = iota
	// KindRateLimitExceeded is an immediate admission refusal. The
	// caller may retry once the window slides.
	KindRateLimitExceeded
	// KindValidation covers bad input. Never retried.
	KindValidation
	// KindTimeout covers an exceeded request deadline. Escalates the
	// connection monitor.
	KindTimeout
	// KindNetwork covers transport failures and an unreachable bridge.
	// Escalates the connection monitor.
	KindNetwork
	// KindInvalidResponseShape covers bridge payloads in no recognized
	// shape. Logged and surfaced, not retried.
	KindInvalidResponseShape
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindRateLimitExceeded:
		return "rate_limit_exceeded"
	case KindValidation:
		return "validation"
	case KindTimeout:
		return "timeout"
	case KindNetwork:
		return "network"
	case KindInvalidResponseShape:
		return "invalid_response_shape"
	default:
		return "unknown"
	}
}

// Failure is a classified completion failure.
type Failure struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error implements the error interface.
func (f *Failure) Error() string {
	if f.Cause != nil {
		return fmt.Sprintf("%s: %v", f.Message, f.Cause)
	}
	return f.Message
}

// Unwrap returns the underlying cause for errors.Is/As chains.
func (f *Failure) Unwrap() error {
	return f.Cause
}

// newFailure creates a classified failure.
func newFailure(k Kind, message string, cause error) *Failure {
	return &Failure{Kind: k, Message: message, Cause: cause}
}

// KindOf extracts the classification from an error chain.
func KindOf(err error) (Kind, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind, true
	}
	return KindUnknown, false
}

// IsRateLimitExceeded reports whether err is an admission refusal.
func IsRateLimitExceeded(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindRateLimitExceeded
}

// IsValidation reports whether err is an input rejection.
func IsValidation(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindValidation
}

// IsTimeout reports whether err is a deadline failure.
func IsTimeout(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindTimeout
}

// IsNetwork reports whether err is a transport failure.
func IsNetwork(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindNetwork
}

// IsInvalidResponseShape reports whether err is an unrecognized-payload
// failure.
func IsInvalidResponseShape(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindInvalidResponseShape
}

// =============================================================================
// CLASSIFICATION
// =============================================================================

// classifyBridge maps a bridge or context error onto the failure
// taxonomy. Cancellation is kept out of the timeout class so a user
// abort is not mistaken for a dead network.
func classifyBridge(err error) *Failure {
	switch {
	case errors.Is(err, context.Canceled):
		return newFailure(KindUnknown, "request cancelled", err)
	case bridge.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded):
		return newFailure(KindTimeout, "the completion request timed out", err)
	case bridge.IsConnection(err):
		return newFailure(KindNetwork, "could not reach the completion bridge", err)
	case bridge.IsInvalidResponse(err):
		return newFailure(KindInvalidResponseShape, "the bridge returned a response in no recognized shape", err)
	case bridge.IsRateLimited(err):
		return newFailure(KindRateLimitExceeded, "the bridge rate limited the request", err)
	case bridge.IsAuth(err):
		return newFailure(KindUnknown, "the bridge rejected the credentials", err)
	default:
		return newFailure(KindUnknown, "completion failed", err)
	}
}

// escalates reports whether a failure of this kind marks the
// connection monitor offline.
func (k Kind) escalates() bool {
	return k == KindTimeout || k == KindNetwork
}
