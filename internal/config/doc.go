// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management for skiff.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - ModelConfig: One selectable model (alias plus provider ID)
//   - RetryConfig: Reconnection pass tuning
//   - RateLimitConfig: Admission ceiling and window
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (SKIFF_*)
//   - ~/.skiff/config.toml
//   - ~/.skiff/config.json
//   - Built-in defaults
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// The loaded value is treated as immutable. Components receive it (or a
// section of it) at construction time; there is no package-level
// accessor to a shared mutable instance. Code that wants different
// settings builds a new value with Clone and constructs new components.
package config
