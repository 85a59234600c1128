// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package bridge provides the client for the hosted completion bridge.
//
// The bridge is the remote service completions are requested from. Code
// above this package depends on the Bridge interface, never on the HTTP
// implementation, so tests substitute scripted doubles.
//
// Responses come back as raw payload bytes: providers behind the bridge
// disagree about shape (a bare string, {"text": ...}, {"content": ...},
// or a stream of such fragments), and NormalizeText is the single place
// that knowledge lives.
//
// The client never retries on its own. Reconnection policy belongs to
// the connection monitor, and request-level policy to the orchestrator.
package bridge
