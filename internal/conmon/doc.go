// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package conmon tracks whether the bridge is reachable and owns all
// reconnection behavior: the exponential-backoff reconnection pass,
// the sticky offline latch, and the passive re-probe timer.
//
// The monitor is the only component allowed to retry. Everything else
// observes its state through Snapshot and reacts; it keeps no
// persistent storage and renders no output.
package conmon
