// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Exit code mapping for skiff commands.
//
// Handlers always return errors instead of exiting; main maps the
// returned error to a process exit code through GetExitCode.

package cli

import (
	"errors"
	"fmt"

	"github.com/jeranaias/skiff/internal/orchestrator"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution.
	ExitSuccess = 0
	// ExitGeneralError indicates a runtime failure.
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments.
	ExitUsageError = 2
)

// UsageError marks a command-line mistake: a missing argument, an
// unknown subcommand, a refused destructive action. It maps to exit
// code 2.
type UsageError struct {
	msg string
}

func (e *UsageError) Error() string {
	return e.msg
}

// usageErrorf builds a UsageError with fmt formatting.
func usageErrorf(format string, a ...interface{}) error {
	return &UsageError{msg: fmt.Sprintf(format, a...)}
}

// GetExitCode determines the exit code for an error. Validation
// failures from the pipeline count as usage errors; everything else is
// a runtime failure.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var usageErr *UsageError
	if errors.As(err, &usageErr) {
		return ExitUsageError
	}

	if kind, ok := orchestrator.KindOf(err); ok && kind == orchestrator.KindValidation {
		return ExitUsageError
	}

	return ExitGeneralError
}
