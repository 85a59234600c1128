// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// status.go - Status command implementation.
//
// Command: status
// Short:   Show bridge and pipeline status
// Aliases: s
//
// Examples:
//   skiff status          Show status
//   skiff s               Show status (short alias)
//   skiff status --json   Status in JSON format
//
// Status Sections:
//   Bridge:      Endpoint, key presence, live reachability probe
//   Connection:  Monitor state, offline latch, forced-offline flag
//   Rate Limit:  Window occupancy and refusal count
//   Cache:       Entries, hits, misses, hit rate

package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/skiff/internal/conmon"
)

// =============================================================================
// STYLES
// =============================================================================

var (
	// Section header style
	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("255")) // White

	// Label style for field names
	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")). // Light gray
			Width(14)

	// Value styles
	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255")) // White

	valueGreenStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("82")) // Green

	valueYellowStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("220")) // Yellow

	valueRedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // Red

	valueDimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("242")) // Dim

	// Separator line
	statusSeparatorStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240"))
)

// =============================================================================
// HANDLE STATUS
// =============================================================================

// HandleStatus handles the "status" command.
func HandleStatus(args Args) error {
	app, err := NewApp(args)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := context.Background()

	if args.JSON {
		return handleStatusJSON(ctx, app)
	}

	separator := strings.Repeat("=", 41)
	fmt.Println()
	fmt.Println(titleStyle.Render("skiff status"))
	fmt.Println(statusSeparatorStyle.Render(separator))
	fmt.Println()

	printStatus(ctx, app)
	return nil
}

// printStatus renders the status sections. Shared with the chat
// /status command.
func printStatus(ctx context.Context, app *App) {
	fmt.Println(sectionStyle.Render("Bridge"))
	fmt.Println(formatBridgeStatus(ctx, app))
	fmt.Println()

	fmt.Println(sectionStyle.Render("Connection"))
	fmt.Println(formatMonitorStatus(app))
	fmt.Println()

	fmt.Println(sectionStyle.Render("Rate Limit"))
	fmt.Println(formatRateStatus(app))
	fmt.Println()

	fmt.Println(sectionStyle.Render("Cache"))
	fmt.Println(formatCacheStatus(app))
	fmt.Println()
}

// handleStatusJSON outputs status information in JSON format.
func handleStatusJSON(ctx context.Context, app *App) error {
	data := StatusData{
		Bridge:    collectBridgeInfo(ctx, app),
		Monitor:   collectMonitorInfo(app),
		RateLimit: collectRateInfo(app),
		Cache:     collectCacheInfo(app),
	}
	return NewJSONResponse("status", data).Print()
}

// =============================================================================
// COLLECTORS (JSON)
// =============================================================================

func collectBridgeInfo(ctx context.Context, app *App) StatusBridgeInfo {
	info := StatusBridgeInfo{
		BaseURL:      app.Bridge.BaseURL(),
		KeySet:       app.Bridge.IsConfigured(),
		DefaultModel: app.Config.DefaultModel,
	}

	start := time.Now()
	if err := app.Probe(ctx); err != nil {
		info.ProbeError = err.Error()
	} else {
		info.Reachable = true
	}
	info.ProbeMs = time.Since(start).Milliseconds()

	return info
}

func collectMonitorInfo(app *App) StatusMonitorInfo {
	snap := app.Monitor.Snapshot()
	info := StatusMonitorInfo{
		State:         snap.State.String(),
		Latched:       snap.Latched,
		ForcedOffline: snap.ForcedOffline,
		Attempts:      snap.Attempts,
	}
	if snap.LastError != nil {
		info.LastError = snap.LastError.Error()
	}
	return info
}

func collectRateInfo(app *App) StatusRateInfo {
	snap := app.Orch.Admission()
	return StatusRateInfo{
		Ceiling:      snap.Ceiling,
		WindowMs:     snap.Window.Milliseconds(),
		InWindow:     snap.InWindow,
		Remaining:    snap.Remaining,
		Refused:      snap.Refused,
		RetryAfterMs: snap.RetryAfter.Milliseconds(),
	}
}

func collectCacheInfo(app *App) StatusCacheInfo {
	s := app.Orch.CacheStats()
	return StatusCacheInfo{
		Entries:    s.EntryCount,
		MaxEntries: s.MaxEntries,
		Hits:       s.Hits,
		Misses:     s.Misses,
		HitRate:    s.HitRate,
	}
}

// =============================================================================
// FORMATTERS (TEXT)
// =============================================================================

// formatBridgeStatus probes the bridge and renders endpoint health.
func formatBridgeStatus(ctx context.Context, app *App) string {
	var lines []string

	lines = append(lines, fmt.Sprintf("  %s%s",
		labelStyle.Render("Endpoint:"),
		valueStyle.Render(app.Bridge.BaseURL())))

	keyStr := valueDimStyle.Render("Not configured")
	if app.Bridge.IsConfigured() {
		keyStr = valueGreenStyle.Render("Configured")
	}
	lines = append(lines, fmt.Sprintf("  %s%s", labelStyle.Render("API Key:"), keyStr))

	lines = append(lines, fmt.Sprintf("  %s%s",
		labelStyle.Render("Model:"),
		valueStyle.Render(app.Config.DefaultModel)))

	start := time.Now()
	err := app.Probe(ctx)
	elapsed := time.Since(start)

	var probeStr string
	if err != nil {
		probeStr = valueRedStyle.Render("Unreachable: " + err.Error())
	} else {
		probeStr = valueGreenStyle.Render(fmt.Sprintf("Reachable (%s)", formatDuration(elapsed)))
	}
	lines = append(lines, fmt.Sprintf("  %s%s", labelStyle.Render("Probe:"), probeStr))

	return strings.Join(lines, "\n")
}

// formatMonitorStatus renders the connection monitor snapshot.
func formatMonitorStatus(app *App) string {
	var lines []string
	snap := app.Monitor.Snapshot()

	var stateStr string
	switch snap.State {
	case conmon.StateConnected:
		stateStr = valueGreenStyle.Render(snap.State.String())
	case conmon.StateOffline, conmon.StateError:
		stateStr = valueRedStyle.Render(snap.State.String())
	case conmon.StateConnecting:
		stateStr = valueYellowStyle.Render(snap.State.String())
	default:
		stateStr = valueDimStyle.Render(snap.State.String())
	}
	lines = append(lines, fmt.Sprintf("  %s%s", labelStyle.Render("State:"), stateStr))

	latchedStr := valueStyle.Render("No")
	if snap.Latched {
		latchedStr = valueYellowStyle.Render("Yes (manual retry required)")
	}
	lines = append(lines, fmt.Sprintf("  %s%s", labelStyle.Render("Latched:"), latchedStr))

	if snap.ForcedOffline {
		lines = append(lines, fmt.Sprintf("  %s%s",
			labelStyle.Render("Forced:"),
			valueYellowStyle.Render("Offline by configuration")))
	}

	if snap.LastError != nil {
		lines = append(lines, fmt.Sprintf("  %s%s",
			labelStyle.Render("Last Error:"),
			valueDimStyle.Render(snap.LastError.Error())))
	}

	if !snap.LastProbe.IsZero() {
		lines = append(lines, fmt.Sprintf("  %s%s",
			labelStyle.Render("Last Probe:"),
			valueDimStyle.Render(snap.LastProbe.Format("15:04:05"))))
	}

	return strings.Join(lines, "\n")
}

// formatRateStatus renders the admission window counters.
func formatRateStatus(app *App) string {
	var lines []string
	snap := app.Orch.Admission()

	lines = append(lines, fmt.Sprintf("  %s%s",
		labelStyle.Render("Window:"),
		valueStyle.Render(fmt.Sprintf("%d requests per %s", snap.Ceiling, snap.Window))))

	occupancy := fmt.Sprintf("%d used, %d remaining", snap.InWindow, snap.Remaining)
	occStr := valueStyle.Render(occupancy)
	if snap.Remaining == 0 {
		occStr = valueRedStyle.Render(occupancy)
	} else if snap.Remaining <= snap.Ceiling/4 {
		occStr = valueYellowStyle.Render(occupancy)
	}
	lines = append(lines, fmt.Sprintf("  %s%s", labelStyle.Render("Occupancy:"), occStr))

	refusedStr := valueStyle.Render(fmt.Sprintf("%d", snap.Refused))
	if snap.Refused > 0 {
		refusedStr = valueYellowStyle.Render(fmt.Sprintf("%d", snap.Refused))
	}
	lines = append(lines, fmt.Sprintf("  %s%s", labelStyle.Render("Refused:"), refusedStr))

	if snap.RetryAfter > 0 {
		lines = append(lines, fmt.Sprintf("  %s%s",
			labelStyle.Render("Retry After:"),
			valueDimStyle.Render(formatDuration(snap.RetryAfter))))
	}

	return strings.Join(lines, "\n")
}

// formatCacheStatus renders the response cache counters.
func formatCacheStatus(app *App) string {
	var lines []string
	s := app.Orch.CacheStats()

	lines = append(lines, fmt.Sprintf("  %s%s",
		labelStyle.Render("Entries:"),
		valueStyle.Render(fmt.Sprintf("%d / %d", s.EntryCount, s.MaxEntries))))

	lines = append(lines, fmt.Sprintf("  %s%s",
		labelStyle.Render("Lookups:"),
		valueStyle.Render(fmt.Sprintf("%d hits, %d misses", s.Hits, s.Misses))))

	hitRatePct := int(s.HitRate * 100)
	hitRateStr := fmt.Sprintf("%d%%", hitRatePct)
	if hitRatePct >= 50 {
		hitRateStr = valueGreenStyle.Render(hitRateStr)
	} else if hitRatePct >= 20 {
		hitRateStr = valueYellowStyle.Render(hitRateStr)
	} else {
		hitRateStr = valueDimStyle.Render(hitRateStr)
	}
	lines = append(lines, fmt.Sprintf("  %s%s", labelStyle.Render("Hit Rate:"), hitRateStr))

	return strings.Join(lines, "\n")
}
