// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package internal holds cross-package tests that wire the real
// pipeline together the way the CLI does: configuration, a scripted
// bridge, the connection monitor, the orchestrator, and the history
// and stats stores behind them.
package internal

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/skiff/internal/bridge"
	"github.com/jeranaias/skiff/internal/config"
	"github.com/jeranaias/skiff/internal/conmon"
	"github.com/jeranaias/skiff/internal/history"
	"github.com/jeranaias/skiff/internal/orchestrator"
	"github.com/jeranaias/skiff/internal/stats"
)

// =============================================================================
// TEST DOUBLES
// =============================================================================

// scriptedBridge implements bridge.Bridge with canned behavior. While
// unhealthy every call fails with a connection error; while healthy,
// Invoke echoes the prompt and InvokeStream replays the configured
// chunk payloads.
type scriptedBridge struct {
	mu        sync.Mutex
	healthy   bool
	calls     int
	chunks    []string
	streamErr error
	chunkGap  time.Duration
}

func newScriptedBridge() *scriptedBridge {
	return &scriptedBridge{healthy: true}
}

func (b *scriptedBridge) setHealthy(ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.healthy = ok
}

func (b *scriptedBridge) invocations() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func (b *scriptedBridge) resetCount() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = 0
}

func (b *scriptedBridge) Invoke(ctx context.Context, req bridge.Request) ([]byte, error) {
	b.mu.Lock()
	b.calls++
	healthy := b.healthy
	b.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !healthy {
		return nil, &bridge.Error{Type: bridge.ErrTypeConnection, Message: "bridge unreachable"}
	}
	return []byte(fmt.Sprintf(`{"text":"echo: %s"}`, req.Prompt)), nil
}

func (b *scriptedBridge) InvokeStream(ctx context.Context, req bridge.Request) (<-chan bridge.Chunk, error) {
	b.mu.Lock()
	b.calls++
	healthy := b.healthy
	chunks := append([]string(nil), b.chunks...)
	streamErr := b.streamErr
	gap := b.chunkGap
	b.mu.Unlock()

	if !healthy {
		return nil, &bridge.Error{Type: bridge.ErrTypeConnection, Message: "bridge unreachable"}
	}

	out := make(chan bridge.Chunk)
	go func() {
		defer close(out)
		for _, c := range chunks {
			if gap > 0 {
				select {
				case <-time.After(gap):
				case <-ctx.Done():
					return
				}
			}
			select {
			case out <- bridge.Chunk{Raw: []byte(c)}:
			case <-ctx.Done():
				return
			}
		}
		if streamErr != nil {
			select {
			case out <- bridge.Chunk{Err: streamErr}:
			case <-ctx.Done():
			}
		}
	}()
	return out, nil
}

// =============================================================================
// PIPELINE HELPERS
// =============================================================================

// testConfig returns a default configuration tuned for fast tests:
// millisecond backoff, no passive loop, a generous admission window.
func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Bridge.APIKey = "test-key"
	cfg.Retry.MaxRetries = 2
	cfg.Retry.BaseDelayMs = 1
	cfg.Retry.CapDelayMs = 2
	cfg.Monitor.CheckIntervalMs = 0
	cfg.Request.TimeoutMs = 2000
	cfg.RateLimit.Ceiling = 50
	cfg.RateLimit.WindowMs = 60000
	return cfg
}

// newPipeline wires a monitor and orchestrator around the scripted
// bridge, leaving the monitor in its initial disconnected state.
func newPipeline(cfg *config.Config, b *scriptedBridge) (*conmon.Monitor, *orchestrator.Orchestrator) {
	probe := func(ctx context.Context) error {
		return bridge.Probe(ctx, b, "anthropic/claude-3.5-sonnet")
	}
	monitor := conmon.New(conmon.Config{
		MaxRetries:    cfg.Retry.MaxRetries,
		BaseDelay:     cfg.Retry.BaseDelay(),
		CapDelay:      cfg.Retry.CapDelay(),
		CheckInterval: cfg.Monitor.CheckInterval(),
		ForcedOffline: cfg.Monitor.Offline,
	}, probe)
	return monitor, orchestrator.New(cfg, b, monitor)
}

// mustConnect runs a reconnection pass and resets the bridge call
// counter so tests count only their own traffic.
func mustConnect(t *testing.T, monitor *conmon.Monitor, b *scriptedBridge) {
	t.Helper()
	require.NoError(t, monitor.Reconnect(context.Background()))
	require.True(t, monitor.Connected())
	b.resetCount()
}

// =============================================================================
// COMPLETION LIFECYCLE
// =============================================================================

func TestCompleteLifecycle(t *testing.T) {
	cfg := testConfig()
	b := newScriptedBridge()
	monitor, orch := newPipeline(cfg, b)
	mustConnect(t, monitor, b)
	ctx := context.Background()

	res, err := orch.Complete(ctx, "what is a slice", "sonnet", orchestrator.Options{})
	require.NoError(t, err)
	assert.Equal(t, "echo: what is a slice", res.Text)
	assert.Equal(t, "sonnet", res.Model)
	assert.NotEmpty(t, res.RequestID)
	assert.False(t, res.CacheHit)
	assert.False(t, res.Offline)
	assert.Equal(t, 1, b.invocations())

	// An identical request is served from cache without bridge traffic.
	res2, err := orch.Complete(ctx, "what is a slice", "sonnet", orchestrator.Options{})
	require.NoError(t, err)
	assert.True(t, res2.CacheHit)
	assert.Equal(t, res.Text, res2.Text)
	assert.Equal(t, 1, b.invocations())

	// ForceRefresh bypasses the lookup but still refreshes the entry.
	res3, err := orch.Complete(ctx, "what is a slice", "sonnet", orchestrator.Options{ForceRefresh: true})
	require.NoError(t, err)
	assert.False(t, res3.CacheHit)
	assert.Equal(t, 2, b.invocations())

	res4, err := orch.Complete(ctx, "what is a slice", "sonnet", orchestrator.Options{})
	require.NoError(t, err)
	assert.True(t, res4.CacheHit)
	assert.Equal(t, 2, b.invocations())
}

func TestCompleteValidationNeverReachesBridge(t *testing.T) {
	cfg := testConfig()
	b := newScriptedBridge()
	monitor, orch := newPipeline(cfg, b)
	mustConnect(t, monitor, b)
	ctx := context.Background()

	_, err := orch.Complete(ctx, "   ", "sonnet", orchestrator.Options{})
	assert.True(t, orchestrator.IsValidation(err))

	_, err = orch.Complete(ctx, "hello", "no-such-model", orchestrator.Options{})
	assert.True(t, orchestrator.IsValidation(err))

	assert.Equal(t, 0, b.invocations())
}

func TestAdmissionRefusalLeavesWindowUntouched(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.Ceiling = 2
	cfg.Cache.Enabled = false
	b := newScriptedBridge()
	monitor, orch := newPipeline(cfg, b)
	mustConnect(t, monitor, b)
	ctx := context.Background()

	_, err := orch.Complete(ctx, "first", "sonnet", orchestrator.Options{})
	require.NoError(t, err)
	_, err = orch.Complete(ctx, "second", "sonnet", orchestrator.Options{})
	require.NoError(t, err)

	_, err = orch.Complete(ctx, "third", "sonnet", orchestrator.Options{})
	require.Error(t, err)
	assert.True(t, orchestrator.IsRateLimitExceeded(err))

	// The refusal consumed no admission slot and made no bridge call.
	snap := orch.Admission()
	assert.Equal(t, 2, snap.InWindow)
	assert.Equal(t, uint64(1), snap.Refused)
	assert.Equal(t, 2, b.invocations())
}

// =============================================================================
// OFFLINE DEGRADATION
// =============================================================================

func TestOfflineFallbackAndRecovery(t *testing.T) {
	cfg := testConfig()
	b := newScriptedBridge()
	b.setHealthy(false)
	monitor, orch := newPipeline(cfg, b)
	ctx := context.Background()

	// The bridge is down: one reconnection pass runs, then the request
	// degrades to the fallback instead of failing.
	res, err := orch.Complete(ctx, "anyone there", "sonnet", orchestrator.Options{})
	require.NoError(t, err)
	assert.True(t, res.Offline)
	assert.Equal(t, orchestrator.OfflineFallback, res.Text)
	assert.True(t, monitor.Latched())
	assert.Equal(t, cfg.Retry.MaxRetries, b.invocations())

	// While latched, further requests skip the live attempt entirely.
	res2, err := orch.Complete(ctx, "still there", "sonnet", orchestrator.Options{})
	require.NoError(t, err)
	assert.True(t, res2.Offline)
	assert.Equal(t, cfg.Retry.MaxRetries, b.invocations())

	// Manual retry clears the latch once the bridge is back.
	b.setHealthy(true)
	require.NoError(t, monitor.Retry(ctx))
	assert.True(t, monitor.Connected())
	assert.False(t, monitor.Latched())

	// Fallback responses were never cached; the same prompt now goes
	// to the live bridge.
	res3, err := orch.Complete(ctx, "anyone there", "sonnet", orchestrator.Options{})
	require.NoError(t, err)
	assert.False(t, res3.Offline)
	assert.False(t, res3.CacheHit)
	assert.Equal(t, "echo: anyone there", res3.Text)
}

// =============================================================================
// STREAMING LIFECYCLE
// =============================================================================

func TestStreamLifecycle(t *testing.T) {
	cfg := testConfig()
	b := newScriptedBridge()
	b.chunks = []string{`{"text":"Hel"}`, `{"text":"lo, "}`, `{"text":"world"}`}
	monitor, orch := newPipeline(cfg, b)
	mustConnect(t, monitor, b)
	ctx := context.Background()

	var frags []string
	err := orch.Stream(ctx, "greet me", "sonnet", orchestrator.Options{}, func(f string) error {
		frags = append(frags, f)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Hel", "lo, ", "world"}, frags)

	// A clean stream cached its concatenation: the same prompt is now a
	// non-streaming cache hit, and a repeat stream is one fragment.
	res, err := orch.Complete(ctx, "greet me", "sonnet", orchestrator.Options{})
	require.NoError(t, err)
	assert.True(t, res.CacheHit)
	assert.Equal(t, "Hello, world", res.Text)

	frags = nil
	err = orch.Stream(ctx, "greet me", "sonnet", orchestrator.Options{}, func(f string) error {
		frags = append(frags, f)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Hello, world"}, frags)
}

func TestStreamMidFailureDiscardsPartial(t *testing.T) {
	cfg := testConfig()
	b := newScriptedBridge()
	b.chunks = []string{`{"text":"partial "}`, `{"text":"answer"}`}
	b.streamErr = &bridge.Error{Type: bridge.ErrTypeConnection, Message: "connection reset"}
	monitor, orch := newPipeline(cfg, b)
	mustConnect(t, monitor, b)
	ctx := context.Background()

	var frags []string
	err := orch.Stream(ctx, "tell me everything", "sonnet", orchestrator.Options{}, func(f string) error {
		frags = append(frags, f)
		return nil
	})
	require.Error(t, err)
	assert.True(t, orchestrator.IsNetwork(err))
	assert.Equal(t, []string{"partial ", "answer"}, frags)

	// The mid-stream failure escalated the monitor and left the cache
	// untouched: the next request reconnects and hits the bridge live.
	b.streamErr = nil
	res, err := orch.Complete(ctx, "tell me everything", "sonnet", orchestrator.Options{})
	require.NoError(t, err)
	assert.False(t, res.CacheHit)
	assert.Equal(t, "echo: tell me everything", res.Text)
}

func TestStreamOffline(t *testing.T) {
	cfg := testConfig()
	b := newScriptedBridge()
	b.setHealthy(false)
	_, orch := newPipeline(cfg, b)

	var frags []string
	err := orch.Stream(context.Background(), "hello", "sonnet", orchestrator.Options{}, func(f string) error {
		frags = append(frags, f)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{orchestrator.OfflineFallback}, frags)
}

// =============================================================================
// PERSISTENCE BEHIND THE PIPELINE
// =============================================================================

func TestConversationPersistenceFlow(t *testing.T) {
	cfg := testConfig()
	b := newScriptedBridge()
	monitor, orch := newPipeline(cfg, b)
	mustConnect(t, monitor, b)
	ctx := context.Background()

	store, err := history.New(t.TempDir(), 10)
	require.NoError(t, err)

	prompt := "explain goroutine leaks"
	res, err := orch.Complete(ctx, prompt, "sonnet", orchestrator.Options{})
	require.NoError(t, err)

	conv := &history.Conversation{Model: res.Model}
	conv.Messages = append(conv.Messages,
		history.NewMessage(history.RoleUser, prompt),
		history.NewMessage(history.RoleAssistant, res.Text),
	)
	id, err := store.Save(conv)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	metas, err := store.List()
	require.NoError(t, err)
	require.Len(t, metas, 1)

	loaded, err := store.LoadByIndex(0)
	require.NoError(t, err)
	assert.Equal(t, id, loaded.ID)
	require.Len(t, loaded.Messages, 2)
	assert.Equal(t, res.Text, loaded.Messages[1].Content)

	found, err := store.Search("goroutine")
	require.NoError(t, err)
	assert.Len(t, found, 1)

	require.NoError(t, store.Delete(id))
	metas, err = store.List()
	require.NoError(t, err)
	assert.Empty(t, metas)
}

func TestUsageRecordingFlow(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.Ceiling = 2
	b := newScriptedBridge()
	monitor, orch := newPipeline(cfg, b)
	mustConnect(t, monitor, b)
	ctx := context.Background()

	tracker, err := stats.NewSQLite(filepath.Join(t.TempDir(), "usage.db"))
	require.NoError(t, err)
	defer tracker.Close()

	record := func(model string, res orchestrator.Result, durMs int64, reqErr error) {
		require.NoError(t, tracker.Record(ctx, stats.Record{
			Timestamp:     time.Now(),
			Model:         model,
			PromptChars:   10,
			ResponseChars: len(res.Text),
			DurationMs:    durMs,
			CacheHit:      res.CacheHit,
			Offline:       res.Offline,
			Outcome:       stats.OutcomeFor(reqErr),
		}))
	}

	res, err := orch.Complete(ctx, "first question", "sonnet", orchestrator.Options{})
	require.NoError(t, err)
	record("sonnet", res, 12, nil)

	res2, err := orch.Complete(ctx, "first question", "sonnet", orchestrator.Options{})
	require.NoError(t, err)
	require.True(t, res2.CacheHit)
	record("sonnet", res2, 0, nil)

	_, err = orch.Complete(ctx, "one too many", "sonnet", orchestrator.Options{})
	require.True(t, orchestrator.IsRateLimitExceeded(err))
	record("sonnet", orchestrator.Result{}, 3, err)

	sum, err := tracker.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), sum.Requests)
	assert.Equal(t, int64(1), sum.CacheHits)
	assert.Equal(t, int64(1), sum.Failures)
	assert.InDelta(t, 5.0, sum.AvgDurationMs, 0.01)

	byModel, err := tracker.ByModel(ctx)
	require.NoError(t, err)
	require.Len(t, byModel, 1)
	assert.Equal(t, "sonnet", byModel[0].Model)
	assert.Equal(t, int64(3), byModel[0].Requests)
}
