// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small shared helpers for skiff: crash-safe
// atomic file writes used by the config and history stores, and
// rune-aware string truncation for summaries and cache keys.
package util
