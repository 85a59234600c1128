// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// styles.go - Shared lipgloss styles for command output.

package cli

import (
	"github.com/charmbracelet/lipgloss"
)

func init() {
	lipgloss.SetColorProfile(GetColorProfile())
}

var (
	// titleStyle renders command headers.
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")) // Cyan

	// errorStyle renders failure messages.
	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // Red

	// successStyle renders healthy values.
	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("82")) // Green

	// warnStyle renders degraded values.
	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("220")) // Yellow

	// dimStyle renders secondary detail.
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("242"))
)
