// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jeranaias/skiff/internal/bridge"
	"github.com/jeranaias/skiff/internal/cache"
	"github.com/jeranaias/skiff/internal/conmon"
	"github.com/jeranaias/skiff/internal/config"
	"github.com/jeranaias/skiff/internal/ratelimit"
	"github.com/jeranaias/skiff/internal/util"
)

// OfflineFallback is the deterministic reply synthesized when the
// bridge cannot be reached. The prompt is never sent; callers detect
// the degraded path through Result.Offline.
const OfflineFallback = "You appear to be offline. This reply was generated locally and " +
	"your prompt was not sent to the completion service. Check your " +
	"connection, then try again or run \"skiff status\" for details."

// =============================================================================
// TYPES
// =============================================================================

// Options tunes one completion. The zero value asks for the configured
// defaults.
type Options struct {
	// MaxTokens overrides the model and request defaults when positive.
	MaxTokens int
	// Temperature overrides the configured default when non-zero.
	Temperature float64
	// SystemPrompt is sent alongside the prompt when non-empty.
	SystemPrompt string
	// ForceRefresh bypasses the cache lookup; the fresh response still
	// replaces the cached one.
	ForceRefresh bool
}

// Result is a finished completion.
type Result struct {
	// Text is the normalized response, or OfflineFallback when Offline
	// is set.
	Text string
	// Model is the configured alias that served the request.
	Model string
	// RequestID correlates log lines for one request.
	RequestID string
	// CacheHit marks a response served from cache, bridge untouched.
	CacheHit bool
	// Offline marks a synthesized fallback response.
	Offline bool
	// Duration is wall time from call to return.
	Duration time.Duration
}

// pendingRequest is the in-flight record for one completion: created
// on dispatch, mutated only by the request lifecycle, dropped when the
// request reaches a terminal state.
type pendingRequest struct {
	id      string
	prompt  string
	model   config.ModelConfig
	opts    Options
	attempt int
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Orchestrator drives completion requests through validation,
// admission, cache, the connection gate, and dispatch.
type Orchestrator struct {
	cfg     *config.Config
	bridge  bridge.Bridge
	monitor *conmon.Monitor
	cache   *cache.Cache
	limiter *ratelimit.Limiter
	logger  zerolog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger attaches a logger. Defaults to a disabled logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// New builds an orchestrator around an injected bridge and connection
// monitor. The response cache and the admission limiter are derived
// from cfg, which is treated as immutable for the orchestrator's
// lifetime.
func New(cfg *config.Config, b bridge.Bridge, monitor *conmon.Monitor, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:     cfg,
		bridge:  b,
		monitor: monitor,
		cache:   cache.New(cfg.Cache.MaxSize),
		limiter: ratelimit.New(cfg.RateLimit.Ceiling, cfg.RateLimit.Window()),
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// CacheStats reports response cache hit and occupancy counters.
func (o *Orchestrator) CacheStats() cache.Stats {
	return o.cache.Stats()
}

// Admission reports the limiter's current window state.
func (o *Orchestrator) Admission() ratelimit.Snapshot {
	return o.limiter.Snapshot()
}

// =============================================================================
// COMPLETION
// =============================================================================

// Complete runs one completion request through the full lifecycle and
// returns the normalized response text.
//
// A cache hit returns without touching the bridge. When the bridge is
// unreachable after the single reconnection pass, Complete returns
// OfflineFallback with Result.Offline set instead of failing. All
// other failures surface as *Failure.
func (o *Orchestrator) Complete(ctx context.Context, prompt, model string, opts Options) (Result, error) {
	start := time.Now()

	req, err := o.begin(prompt, model, opts)
	if err != nil {
		return Result{}, err
	}
	logger := o.logger.With().Str("request_id", req.id).Str("model", req.model.Name).Logger()

	key := o.cacheKey(req)
	if o.cfg.Cache.Enabled && !req.opts.ForceRefresh {
		if entry, ok := o.cache.Get(key); ok {
			logger.Debug().Msg("cache hit")
			return Result{
				Text:      entry.ResponseText,
				Model:     req.model.Name,
				RequestID: req.id,
				CacheHit:  true,
				Duration:  time.Since(start),
			}, nil
		}
	}

	connected, err := o.ensureConnected(ctx, logger)
	if err != nil {
		return Result{}, err
	}
	if !connected {
		logger.Info().Msg("offline, synthesizing fallback")
		return Result{
			Text:      OfflineFallback,
			Model:     req.model.Name,
			RequestID: req.id,
			Offline:   true,
			Duration:  time.Since(start),
		}, nil
	}

	text, err := o.dispatch(ctx, req, logger)
	if err != nil {
		return Result{}, err
	}

	if o.cfg.Cache.Enabled {
		o.cache.Put(key, text)
	}
	o.monitor.MarkSuccess()

	logger.Info().Dur("duration", time.Since(start)).Int("chars", util.RuneLen(text)).Msg("completion ok")
	return Result{
		Text:      text,
		Model:     req.model.Name,
		RequestID: req.id,
		Duration:  time.Since(start),
	}, nil
}

// begin validates the inputs and runs the admission gate, returning
// the in-flight record for one completion.
func (o *Orchestrator) begin(prompt, model string, opts Options) (*pendingRequest, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, newFailure(KindValidation, "prompt must not be empty", nil)
	}
	mc, ok := o.cfg.Model(model)
	if !ok {
		return nil, newFailure(KindValidation,
			fmt.Sprintf("model %q is not configured (known: %s)", model, strings.Join(o.cfg.ModelNames(), ", ")), nil)
	}

	if !o.limiter.TryAdmit() {
		snap := o.limiter.Snapshot()
		o.logger.Warn().
			Int("in_window", snap.InWindow).
			Int("ceiling", snap.Ceiling).
			Msg("admission refused")
		return nil, newFailure(KindRateLimitExceeded,
			fmt.Sprintf("rate limit exceeded: %d of %d admissions used, retry in about %s",
				snap.InWindow, snap.Ceiling, snap.RetryAfter.Round(time.Second)), nil)
	}

	return &pendingRequest{
		id:     uuid.NewString(),
		prompt: prompt,
		model:  mc,
		opts:   opts,
	}, nil
}

// ensureConnected runs the connection gate: a connected monitor
// passes, a latched monitor short-circuits straight to the offline
// path, and anything else gets exactly one reconnection pass. The
// error return is non-nil only when ctx died while waiting.
func (o *Orchestrator) ensureConnected(ctx context.Context, logger zerolog.Logger) (bool, error) {
	if o.monitor.Connected() {
		return true, nil
	}
	if o.monitor.Latched() {
		logger.Debug().Msg("offline latch set, skipping live attempt")
		return false, nil
	}

	if err := o.monitor.Reconnect(ctx); err != nil {
		if ctx.Err() != nil {
			return false, classifyBridge(ctx.Err())
		}
		logger.Debug().Err(err).Msg("reconnection pass failed")
	}
	return o.monitor.Connected(), nil
}

// dispatch performs the live bridge call. The call runs in its own
// goroutine racing the configured deadline; when the deadline wins,
// the in-flight call is abandoned and its late resolution lands in
// the buffered channel, unread.
func (o *Orchestrator) dispatch(ctx context.Context, req *pendingRequest, logger zerolog.Logger) (string, error) {
	req.attempt++

	callCtx, cancel := context.WithTimeout(ctx, o.cfg.Request.Timeout())
	defer cancel()

	type outcome struct {
		raw []byte
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		raw, err := o.bridge.Invoke(callCtx, o.bridgeRequest(req))
		done <- outcome{raw: raw, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-callCtx.Done():
		out = outcome{err: callCtx.Err()}
	}

	if out.err != nil {
		return "", o.fail(out.err, req, logger)
	}

	text, err := bridge.NormalizeText(out.raw)
	if err != nil {
		return "", o.fail(err, req, logger)
	}
	return text, nil
}

// fail classifies err, escalates the monitor when the class calls for
// it, and logs the terminal state of the request.
func (o *Orchestrator) fail(err error, req *pendingRequest, logger zerolog.Logger) error {
	f := classifyBridge(err)
	if f.Kind.escalates() {
		o.monitor.MarkNetworkFailure(err)
	}
	logger.Warn().
		Str("kind", f.Kind.String()).
		Int("attempt", req.attempt).
		Err(err).
		Msg("completion failed")
	return f
}

// bridgeRequest resolves the wire request from the call options, the
// model entry, and the configured defaults, in that order.
func (o *Orchestrator) bridgeRequest(req *pendingRequest) bridge.Request {
	maxTokens := o.cfg.Request.MaxTokens
	if req.model.MaxTokens > 0 {
		maxTokens = req.model.MaxTokens
	}
	if req.opts.MaxTokens > 0 {
		maxTokens = req.opts.MaxTokens
	}

	temperature := o.cfg.Request.Temperature
	if req.opts.Temperature != 0 {
		temperature = req.opts.Temperature
	}

	return bridge.Request{
		Model:       req.model.ID,
		Prompt:      req.prompt,
		System:      req.opts.SystemPrompt,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
}

// cacheKey derives the response cache key for the request. The key
// hashes the provider ID rather than the alias, so renaming an alias
// does not orphan entries.
func (o *Orchestrator) cacheKey(req *pendingRequest) string {
	return cache.KeyN(req.model.ID, req.prompt, o.cfg.Cache.PromptPrefix)
}
