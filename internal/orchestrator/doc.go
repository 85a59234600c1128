// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package orchestrator owns the lifecycle of outbound completion
// requests: admission, cache lookup, the connection check, the bridge
// call with its timeout, response normalization, and failure
// classification.
//
// # Request Lifecycle
//
// Every completion walks the same gate order:
//
//  1. validation: empty prompts and unconfigured models are rejected
//  2. admission: the sliding-window limiter refuses at ceiling, with
//     no queuing and no implicit wait
//  3. cache: a hit returns immediately without touching the bridge
//  4. connection: when the monitor is not connected, one reconnection
//     pass runs; a latched-offline monitor skips even that
//  5. dispatch: the bridge call races the configured timeout; the
//     normalized text is cached on success
//
// When the bridge stays unreachable the orchestrator degrades instead
// of failing: it returns OfflineFallback with Result.Offline set. That
// synthesis is the only case where a non-success turns into a success
// value.
//
// # Failures
//
// Errors surface as *Failure with a Kind from the fixed taxonomy
// (rate limit, validation, timeout, network, invalid response shape,
// unknown). Timeout and network failures escalate to the connection
// monitor; nothing is retried here beyond the single reconnection
// pass. Callers decide whether to re-invoke.
//
// The orchestrator itself holds no mutable request state between calls
// and is safe for concurrent use.
package orchestrator
