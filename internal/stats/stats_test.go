// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stats

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jeranaias/skiff/internal/orchestrator"
)

func newTestTracker(t *testing.T) *SQLiteTracker {
	t.Helper()
	tracker, err := NewSQLite(filepath.Join(t.TempDir(), "stats.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { tracker.Close() })
	return tracker
}

// =============================================================================
// SQLITE TRACKER TESTS
// =============================================================================

func TestNewSQLite_CreatesDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "stats.db")

	tracker, err := NewSQLite(path)
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	defer tracker.Close()

	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected database file at %s: %v", path, err)
	}
}

func TestSQLiteTracker_RecordAndSummary(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()

	records := []Record{
		{Model: "fast", PromptChars: 10, ResponseChars: 100, DurationMs: 200, Outcome: OutcomeOK},
		{Model: "fast", PromptChars: 20, ResponseChars: 0, DurationMs: 50, CacheHit: true, Outcome: OutcomeOK},
		{Model: "deep", PromptChars: 30, ResponseChars: 0, DurationMs: 350, Offline: true, Outcome: OutcomeNetwork},
	}
	for i, rec := range records {
		if err := tracker.Record(ctx, rec); err != nil {
			t.Fatalf("Record %d failed: %v", i, err)
		}
	}

	s, err := tracker.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}

	if s.Requests != 3 {
		t.Errorf("expected 3 requests, got %d", s.Requests)
	}
	if s.PromptChars != 60 {
		t.Errorf("expected 60 prompt chars, got %d", s.PromptChars)
	}
	if s.ResponseChars != 100 {
		t.Errorf("expected 100 response chars, got %d", s.ResponseChars)
	}
	if s.CacheHits != 1 {
		t.Errorf("expected 1 cache hit, got %d", s.CacheHits)
	}
	if s.Offline != 1 {
		t.Errorf("expected 1 offline request, got %d", s.Offline)
	}
	if s.Failures != 1 {
		t.Errorf("expected 1 failure, got %d", s.Failures)
	}
	wantAvg := (200.0 + 50.0 + 350.0) / 3.0
	if math.Abs(s.AvgDurationMs-wantAvg) > 0.001 {
		t.Errorf("expected avg duration %.3f, got %.3f", wantAvg, s.AvgDurationMs)
	}
}

func TestSQLiteTracker_EmptySummary(t *testing.T) {
	tracker := newTestTracker(t)

	s, err := tracker.Summary(context.Background())
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if s.Requests != 0 || s.PromptChars != 0 || s.CacheHits != 0 || s.Failures != 0 {
		t.Errorf("expected zero summary, got %+v", s)
	}
	if s.AvgDurationMs != 0 {
		t.Errorf("expected zero avg duration, got %f", s.AvgDurationMs)
	}
	if s.CacheHitRate() != 0 {
		t.Errorf("expected zero hit rate, got %f", s.CacheHitRate())
	}
}

func TestSQLiteTracker_ByModel(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()

	// Three requests for "fast", one for "deep".
	for i := 0; i < 3; i++ {
		rec := Record{Model: "fast", PromptChars: 10, ResponseChars: 20, DurationMs: 100, Outcome: OutcomeOK}
		if i == 0 {
			rec.CacheHit = true
		}
		if err := tracker.Record(ctx, rec); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}
	if err := tracker.Record(ctx, Record{Model: "deep", PromptChars: 5, ResponseChars: 50, DurationMs: 400, Outcome: OutcomeOK}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	usage, err := tracker.ByModel(ctx)
	if err != nil {
		t.Fatalf("ByModel failed: %v", err)
	}
	if len(usage) != 2 {
		t.Fatalf("expected 2 models, got %d", len(usage))
	}

	// Busiest model first.
	if usage[0].Model != "fast" {
		t.Errorf("expected fast first, got %s", usage[0].Model)
	}
	if usage[0].Requests != 3 {
		t.Errorf("expected 3 fast requests, got %d", usage[0].Requests)
	}
	if usage[0].PromptChars != 30 || usage[0].ResponseChars != 60 {
		t.Errorf("unexpected fast char totals: %+v", usage[0])
	}
	if usage[0].CacheHits != 1 {
		t.Errorf("expected 1 fast cache hit, got %d", usage[0].CacheHits)
	}

	if usage[1].Model != "deep" {
		t.Errorf("expected deep second, got %s", usage[1].Model)
	}
	if usage[1].Requests != 1 {
		t.Errorf("expected 1 deep request, got %d", usage[1].Requests)
	}
	if usage[1].AvgDurationMs != 400 {
		t.Errorf("expected deep avg 400ms, got %f", usage[1].AvgDurationMs)
	}
}

func TestSQLiteTracker_ByModelEmpty(t *testing.T) {
	tracker := newTestTracker(t)

	usage, err := tracker.ByModel(context.Background())
	if err != nil {
		t.Fatalf("ByModel failed: %v", err)
	}
	if len(usage) != 0 {
		t.Errorf("expected no usage, got %d entries", len(usage))
	}
}

func TestSQLiteTracker_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.db")
	ctx := context.Background()

	tracker, err := NewSQLite(path)
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	rec := Record{
		Timestamp:     time.Now(),
		Model:         "fast",
		PromptChars:   7,
		ResponseChars: 11,
		DurationMs:    42,
		Outcome:       OutcomeOK,
	}
	if err := tracker.Record(ctx, rec); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := tracker.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewSQLite(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	s, err := reopened.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if s.Requests != 1 || s.PromptChars != 7 || s.ResponseChars != 11 {
		t.Errorf("expected persisted record, got %+v", s)
	}
}

// =============================================================================
// OUTCOME MAPPING TESTS
// =============================================================================

func TestOutcomeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil error", nil, OutcomeOK},
		{"rate limited", &orchestrator.Failure{Kind: orchestrator.KindRateLimitExceeded}, OutcomeRateLimited},
		{"validation", &orchestrator.Failure{Kind: orchestrator.KindValidation}, OutcomeValidation},
		{"timeout", &orchestrator.Failure{Kind: orchestrator.KindTimeout}, OutcomeTimeout},
		{"network", &orchestrator.Failure{Kind: orchestrator.KindNetwork}, OutcomeNetwork},
		{"invalid shape", &orchestrator.Failure{Kind: orchestrator.KindInvalidResponseShape}, OutcomeInvalidShape},
		{"unknown kind", &orchestrator.Failure{Kind: orchestrator.KindUnknown}, OutcomeUnknown},
		{"plain error", errors.New("boom"), OutcomeUnknown},
		{"wrapped failure", fmt.Errorf("call failed: %w", &orchestrator.Failure{Kind: orchestrator.KindNetwork}), OutcomeNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := OutcomeFor(tt.err); got != tt.want {
				t.Errorf("OutcomeFor() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSummary_CacheHitRate(t *testing.T) {
	s := Summary{Requests: 4, CacheHits: 1}
	if got := s.CacheHitRate(); got != 0.25 {
		t.Errorf("expected 0.25, got %f", got)
	}
}

// =============================================================================
// DISABLED TRACKER TESTS
// =============================================================================

func TestDisabled_IsNoOp(t *testing.T) {
	var tracker Tracker = Disabled{}
	ctx := context.Background()

	if err := tracker.Record(ctx, Record{Model: "fast", Outcome: OutcomeOK}); err != nil {
		t.Errorf("Record returned error: %v", err)
	}
	s, err := tracker.Summary(ctx)
	if err != nil {
		t.Errorf("Summary returned error: %v", err)
	}
	if s.Requests != 0 {
		t.Errorf("expected zero summary, got %+v", s)
	}
	usage, err := tracker.ByModel(ctx)
	if err != nil {
		t.Errorf("ByModel returned error: %v", err)
	}
	if usage != nil {
		t.Errorf("expected nil usage, got %v", usage)
	}
	if err := tracker.Close(); err != nil {
		t.Errorf("Close returned error: %v", err)
	}
}
