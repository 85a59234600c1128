// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides command-line parsing and execution for skiff.
//
// Every command runs against the same request pipeline: configuration
// is loaded once, the bridge client, connection monitor and
// orchestrator are wired by constructor injection, and handlers return
// errors instead of exiting so main can map them to exit codes.
//
// # Key Types
//
//   - Command: enumeration of the available commands
//   - Args: parsed command-line arguments, global and command-specific
//   - App: the wired pipeline shared by the request-making commands
//
// # Usage
//
// Parse and dispatch:
//
//	cmd, args := cli.Parse()
//	switch cmd {
//	case cli.CmdAsk:
//	    err = cli.HandleAsk(args)
//	case cli.CmdChat:
//	    err = cli.HandleChat(args)
//	// ... other commands
//	}
//
// # Commands Overview
//
//   - ask: one-shot completion, optionally streamed
//   - chat: interactive session with replayed context
//   - status: bridge reachability and pipeline counters
//   - models: configured model listing
//   - history: saved conversation management
//   - config: configuration inspection and editing
//   - stats: recorded usage statistics
//
// All commands support --json for machine-readable output.
package cli
