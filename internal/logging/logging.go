// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging builds the zerolog logger used across skiff.
//
// Components never reach for a package-level logger; the configured
// logger is passed into constructors and defaults to a no-op value, so
// library packages stay silent unless the caller opts in.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Config selects level, format and destination for the process logger.
type Config struct {
	// Level is a zerolog level name ("debug", "info", "warn", "error").
	// Unrecognized values fall back to info.
	Level string

	// Format is "console" for human-readable output or "json".
	Format string

	// File receives log output when set; empty means stderr. Logs go to
	// stderr rather than stdout so rendered responses stay pipeable.
	File string
}

// New builds a logger from cfg. It never fails: a bad level means info,
// an unopenable file means stderr.
func New(cfg Config) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var writer io.Writer = os.Stderr
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
		if err == nil {
			writer = f
		}
	}

	if cfg.Format == "console" || cfg.Format == "" {
		writer = zerolog.ConsoleWriter{Out: writer, TimeFormat: "15:04:05"}
	}

	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}
