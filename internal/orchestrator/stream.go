// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/jeranaias/skiff/internal/bridge"
	"github.com/jeranaias/skiff/internal/util"
)

// =============================================================================
// STREAMING
// =============================================================================

// StreamFunc receives normalized text fragments in arrival order.
// Returning a non-nil error cancels the producer; Stream returns that
// error unchanged.
type StreamFunc func(fragment string) error

// Stream is the streaming variant of Complete. It walks the same
// validation, admission, cache and connection gates; a cache hit or
// the offline fallback is delivered as a single fragment. The full
// concatenation is cached only when the stream completes cleanly. A
// mid-stream failure discards the partial accumulation, leaves the
// cache untouched, and returns the classified error.
func (o *Orchestrator) Stream(ctx context.Context, prompt, model string, opts Options, fn StreamFunc) error {
	req, err := o.begin(prompt, model, opts)
	if err != nil {
		return err
	}
	logger := o.logger.With().Str("request_id", req.id).Str("model", req.model.Name).Logger()

	key := o.cacheKey(req)
	if o.cfg.Cache.Enabled && !req.opts.ForceRefresh {
		if entry, ok := o.cache.Get(key); ok {
			logger.Debug().Msg("cache hit, emitting as one fragment")
			return fn(entry.ResponseText)
		}
	}

	connected, err := o.ensureConnected(ctx, logger)
	if err != nil {
		return err
	}
	if !connected {
		logger.Info().Msg("offline, synthesizing fallback")
		return fn(OfflineFallback)
	}

	return o.dispatchStream(ctx, req, key, fn, logger)
}

// dispatchStream runs the live streaming call and forwards normalized
// fragments to fn.
func (o *Orchestrator) dispatchStream(ctx context.Context, req *pendingRequest, key string, fn StreamFunc, logger zerolog.Logger) error {
	req.attempt++

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch, err := o.bridge.InvokeStream(streamCtx, o.bridgeRequest(req))
	if err != nil {
		return o.fail(err, req, logger)
	}

	var full strings.Builder
	for chunk := range ch {
		if chunk.Err != nil {
			// The producer closes after an error chunk. Whatever
			// accumulated so far is dropped.
			return o.fail(chunk.Err, req, logger)
		}

		frag, err := bridge.NormalizeFragment(chunk.Raw)
		if err != nil {
			cancel()
			drain(ch)
			return o.fail(err, req, logger)
		}
		if frag == "" {
			continue
		}
		full.WriteString(frag)

		if err := fn(frag); err != nil {
			cancel()
			drain(ch)
			logger.Debug().Err(err).Msg("stream consumer aborted")
			return err
		}
	}

	if err := ctx.Err(); err != nil {
		// The producer closed because ctx died mid-stream; the partial
		// accumulation is not a completed response.
		return classifyBridge(err)
	}

	text := full.String()
	if o.cfg.Cache.Enabled {
		o.cache.Put(key, text)
	}
	o.monitor.MarkSuccess()

	logger.Info().Int("chars", util.RuneLen(text)).Msg("stream complete")
	return nil
}

// drain consumes remaining chunks after cancellation so the producer
// goroutine can exit.
func drain(ch <-chan bridge.Chunk) {
	for range ch {
	}
}

// Fragment is one element of StreamChan's output. Err, when set, is
// the stream's terminal failure and arrives as the final element.
type Fragment struct {
	Text string
	Err  error
}

// StreamChan adapts Stream to channel consumption. The channel yields
// fragments in order and is closed after the final element; a failed
// stream delivers its classified error as the last element before the
// close.
func (o *Orchestrator) StreamChan(ctx context.Context, prompt, model string, opts Options) <-chan Fragment {
	out := make(chan Fragment)
	go func() {
		defer close(out)
		err := o.Stream(ctx, prompt, model, opts, func(fragment string) error {
			select {
			case out <- Fragment{Text: fragment}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil {
			select {
			case out <- Fragment{Err: err}:
			case <-ctx.Done():
			}
		}
	}()
	return out
}
