// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package bridge

import (
	"context"
)

// Request describes a single completion call.
type Request struct {
	// Model is the provider identifier, not the configured alias.
	Model string
	// Prompt is the user text, with any replayed history already folded in.
	Prompt string
	// System is an optional system prompt.
	System string
	// MaxTokens bounds the completion length. 0 lets the bridge decide.
	MaxTokens int
	// Temperature is the sampling temperature.
	Temperature float64
}

// Chunk is one element of a streaming response. Raw carries the
// unparsed fragment payload; Err, when set, terminates the stream.
type Chunk struct {
	Raw []byte
	Err error
}

// Bridge is the capability the orchestrator and the connection monitor
// depend on.
//
// Invoke returns the raw response payload; callers normalize it.
// InvokeStream returns a finite, forward-only channel of chunks that is
// closed exactly once: after the final chunk on clean completion, or
// after a chunk carrying Err. Cancelling ctx stops the producer.
type Bridge interface {
	Invoke(ctx context.Context, req Request) ([]byte, error)
	InvokeStream(ctx context.Context, req Request) (<-chan Chunk, error)
}

// Probe makes a minimal completion call and validates the response
// shape. A nil return is the proof of connectivity the connection
// monitor accepts.
func Probe(ctx context.Context, b Bridge, model string) error {
	raw, err := b.Invoke(ctx, Request{Model: model, Prompt: "ping", MaxTokens: 1})
	if err != nil {
		return err
	}
	if _, err := NormalizeText(raw); err != nil {
		return err
	}
	return nil
}
