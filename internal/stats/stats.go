// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stats records per-request usage statistics.
//
// Every finished completion request, successful or not, produces one
// Record. The SQLite-backed tracker persists records so usage survives
// restarts; Disabled swallows them when statistics are turned off in
// configuration.
package stats

import (
	"context"
	"time"

	"github.com/jeranaias/skiff/internal/orchestrator"
)

// ===== OUTCOMES =====

// Outcome labels describe how a request ended.
const (
	OutcomeOK           = "ok"
	OutcomeRateLimited  = "rate_limited"
	OutcomeValidation   = "validation"
	OutcomeTimeout      = "timeout"
	OutcomeNetwork      = "network"
	OutcomeInvalidShape = "invalid_shape"
	OutcomeUnknown      = "unknown"
)

// OutcomeFor maps the error returned by a completion call to an outcome
// label. A nil error is OutcomeOK; errors that carry no failure kind are
// OutcomeUnknown.
func OutcomeFor(err error) string {
	if err == nil {
		return OutcomeOK
	}
	kind, ok := orchestrator.KindOf(err)
	if !ok {
		return OutcomeUnknown
	}
	switch kind {
	case orchestrator.KindRateLimitExceeded:
		return OutcomeRateLimited
	case orchestrator.KindValidation:
		return OutcomeValidation
	case orchestrator.KindTimeout:
		return OutcomeTimeout
	case orchestrator.KindNetwork:
		return OutcomeNetwork
	case orchestrator.KindInvalidResponseShape:
		return OutcomeInvalidShape
	default:
		return OutcomeUnknown
	}
}

// ===== RECORDS =====

// Record is one request's usage entry.
type Record struct {
	Timestamp     time.Time
	Model         string
	PromptChars   int
	ResponseChars int
	DurationMs    int64
	CacheHit      bool
	Offline       bool
	Outcome       string
}

// Summary aggregates every recorded request.
type Summary struct {
	Requests      int64
	PromptChars   int64
	ResponseChars int64
	CacheHits     int64
	Offline       int64
	Failures      int64 // requests whose outcome was not OutcomeOK
	AvgDurationMs float64
}

// CacheHitRate returns cache hits as a fraction of all requests, or 0
// when nothing has been recorded.
func (s Summary) CacheHitRate() float64 {
	if s.Requests == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(s.Requests)
}

// ModelUsage aggregates recorded requests for a single model.
type ModelUsage struct {
	Model         string
	Requests      int64
	PromptChars   int64
	ResponseChars int64
	CacheHits     int64
	AvgDurationMs float64
}

// ===== TRACKER =====

// Tracker persists usage records.
type Tracker interface {
	// Record stores one usage entry.
	Record(ctx context.Context, rec Record) error

	// Summary aggregates all recorded requests.
	Summary(ctx context.Context) (Summary, error)

	// ByModel aggregates recorded requests per model, busiest first.
	ByModel(ctx context.Context) ([]ModelUsage, error)

	// Close releases the underlying storage.
	Close() error
}

// Disabled is a Tracker that records nothing. It stands in when
// statistics are turned off so callers never need a nil check.
type Disabled struct{}

func (Disabled) Record(context.Context, Record) error        { return nil }
func (Disabled) Summary(context.Context) (Summary, error)    { return Summary{}, nil }
func (Disabled) ByModel(context.Context) ([]ModelUsage, error) { return nil, nil }
func (Disabled) Close() error                                { return nil }
