// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// json_output.go - JSON output envelope for machine consumers.
//
// Every command supports --json; the envelope shape is identical
// across commands so log shippers and scripts can parse one format.

package cli

import (
	"encoding/json"
	"os"
	"time"

	"github.com/jeranaias/skiff/internal/history"
	"github.com/jeranaias/skiff/internal/stats"
)

// JSONResponse is the standardized response format for all CLI
// commands.
type JSONResponse struct {
	// Success indicates whether the command completed successfully.
	Success bool `json:"success"`

	// Data contains the command-specific response data.
	Data interface{} `json:"data"`

	// Error contains the error message if Success is false, null otherwise.
	Error *string `json:"error"`

	// Timestamp is the ISO8601 timestamp when the response was generated.
	Timestamp string `json:"timestamp"`

	// Command is the command that was executed.
	Command string `json:"command,omitempty"`
}

// NewJSONResponse creates a successful JSON response.
func NewJSONResponse(command string, data interface{}) *JSONResponse {
	return &JSONResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// NewJSONErrorResponse creates an error JSON response.
func NewJSONErrorResponse(command string, err error) *JSONResponse {
	errStr := err.Error()
	return &JSONResponse{
		Success:   false,
		Error:     &errStr,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// Print outputs the JSON response to stdout. Human-readable messages
// go to stderr when JSON mode is enabled.
func (r *JSONResponse) Print() error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(r)
}

// =============================================================================
// COMMAND-SPECIFIC DATA STRUCTURES
// =============================================================================

// AskData represents the data returned by the ask command.
type AskData struct {
	Response   string `json:"response"`
	Model      string `json:"model"`
	RequestID  string `json:"request_id"`
	CacheHit   bool   `json:"cache_hit"`
	Offline    bool   `json:"offline"`
	DurationMs int64  `json:"duration_ms"`
}

// StatusData represents the data returned by the status command.
type StatusData struct {
	Bridge    StatusBridgeInfo  `json:"bridge"`
	Monitor   StatusMonitorInfo `json:"monitor"`
	RateLimit StatusRateInfo    `json:"rate_limit"`
	Cache     StatusCacheInfo   `json:"cache"`
}

// StatusBridgeInfo contains bridge reachability for the status command.
type StatusBridgeInfo struct {
	BaseURL      string `json:"base_url"`
	KeySet       bool   `json:"key_configured"`
	DefaultModel string `json:"default_model"`
	Reachable    bool   `json:"reachable"`
	ProbeMs      int64  `json:"probe_ms"`
	ProbeError   string `json:"probe_error,omitempty"`
}

// StatusMonitorInfo contains connection monitor state for the status
// command.
type StatusMonitorInfo struct {
	State         string `json:"state"`
	Latched       bool   `json:"latched"`
	ForcedOffline bool   `json:"forced_offline"`
	LastError     string `json:"last_error,omitempty"`
	Attempts      int    `json:"attempts"`
}

// StatusRateInfo contains admission control counters for the status
// command.
type StatusRateInfo struct {
	Ceiling      int    `json:"ceiling"`
	WindowMs     int64  `json:"window_ms"`
	InWindow     int    `json:"in_window"`
	Remaining    int    `json:"remaining"`
	Refused      uint64 `json:"refused"`
	RetryAfterMs int64  `json:"retry_after_ms"`
}

// StatusCacheInfo contains cache counters for the status command.
type StatusCacheInfo struct {
	Entries    int     `json:"entries"`
	MaxEntries int     `json:"max_entries"`
	Hits       int     `json:"hits"`
	Misses     int     `json:"misses"`
	HitRate    float64 `json:"hit_rate"`
}

// ModelsData represents the data returned by the models command.
type ModelsData struct {
	Default string       `json:"default"`
	Models  []ModelEntry `json:"models"`
}

// ModelEntry is one configured model in the models listing.
type ModelEntry struct {
	Name      string `json:"name"`
	ID        string `json:"id"`
	MaxTokens int    `json:"max_tokens,omitempty"`
	Default   bool   `json:"default"`
}

// HistoryListData represents the data returned by history list and
// history search.
type HistoryListData struct {
	Conversations []history.Meta `json:"conversations"`
	Count         int            `json:"count"`
}

// StatsData represents the data returned by the stats command.
type StatsData struct {
	Summary stats.Summary      `json:"summary"`
	Models  []stats.ModelUsage `json:"models"`
}

// VersionData represents the data returned by the version command.
type VersionData struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version,omitempty"`
}
