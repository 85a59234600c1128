// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli tests cover argument parsing, command dispatch, exit
// code mapping and the transcript flattening used by chat.
package cli

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jeranaias/skiff/internal/history"
	"github.com/jeranaias/skiff/internal/orchestrator"
)

// =============================================================================
// ARG PARSER TESTS (args.go)
// =============================================================================

func TestArgParser_BasicParsing(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantSub  string
		validate func(*testing.T, *ArgParser)
	}{
		{
			name:    "simple subcommand",
			args:    []string{"show"},
			wantSub: "show",
		},
		{
			name:    "subcommand with flag",
			args:    []string{"list", "--limit", "20"},
			wantSub: "list",
			validate: func(t *testing.T, p *ArgParser) {
				if p.Flag("limit") != "20" {
					t.Errorf("Flag(limit) = %q, want %q", p.Flag("limit"), "20")
				}
			},
		},
		{
			name:    "flag with equals",
			args:    []string{"show", "--lines=50"},
			wantSub: "show",
			validate: func(t *testing.T, p *ArgParser) {
				if p.Flag("lines") != "50" {
					t.Errorf("Flag(lines) = %q, want %q", p.Flag("lines"), "50")
				}
			},
		},
		{
			name:    "boolean flag",
			args:    []string{"delete", "3", "--confirm"},
			wantSub: "delete",
			validate: func(t *testing.T, p *ArgParser) {
				if !p.BoolFlag("confirm") {
					t.Error("BoolFlag(confirm) should be true")
				}
				if p.Positional(1) != "3" {
					t.Errorf("Positional(1) = %q, want %q", p.Positional(1), "3")
				}
			},
		},
		{
			name:    "explicit boolean value",
			args:    []string{"list", "--confirm=false"},
			wantSub: "list",
			validate: func(t *testing.T, p *ArgParser) {
				if p.BoolFlag("confirm") {
					t.Error("BoolFlag(confirm) should be false")
				}
				if !p.HasFlag("confirm") {
					t.Error("HasFlag(confirm) should be true")
				}
			},
		},
		{
			name:    "multiple positional args",
			args:    []string{"search", "page", "fault", "handling"},
			wantSub: "search",
			validate: func(t *testing.T, p *ArgParser) {
				if p.PositionalCount() != 4 {
					t.Errorf("PositionalCount() = %d, want 4", p.PositionalCount())
				}
				joined := strings.Join(p.PositionalFrom(1), " ")
				if joined != "page fault handling" {
					t.Errorf("PositionalFrom(1) joined = %q, want %q", joined, "page fault handling")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser := NewArgParser(tt.args)
			if parser.Subcommand() != tt.wantSub {
				t.Errorf("Subcommand() = %q, want %q", parser.Subcommand(), tt.wantSub)
			}
			if tt.validate != nil {
				tt.validate(t, parser)
			}
		})
	}
}

func TestArgParser_FlagIntOrDefault(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		flagName   string
		defaultVal int
		want       int
	}{
		{
			name:       "flag present",
			args:       []string{"list", "--limit", "10"},
			flagName:   "limit",
			defaultVal: 5,
			want:       10,
		},
		{
			name:       "flag missing uses default",
			args:       []string{"list"},
			flagName:   "limit",
			defaultVal: 5,
			want:       5,
		},
		{
			name:       "invalid int uses default",
			args:       []string{"list", "--limit", "many"},
			flagName:   "limit",
			defaultVal: 5,
			want:       5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser := NewArgParser(tt.args)
			got := parser.FlagIntOrDefault(tt.flagName, tt.defaultVal)
			if got != tt.want {
				t.Errorf("FlagIntOrDefault(%q, %d) = %d, want %d", tt.flagName, tt.defaultVal, got, tt.want)
			}
		})
	}
}

func TestArgParser_HasFlag(t *testing.T) {
	parser := NewArgParser([]string{"show", "--lines", "50", "--confirm"})

	if !parser.HasFlag("lines") {
		t.Error("HasFlag(lines) should be true")
	}
	if !parser.HasFlag("confirm") {
		t.Error("HasFlag(confirm) should be true")
	}
	if parser.HasFlag("nonexistent") {
		t.Error("HasFlag(nonexistent) should be false")
	}
}

// =============================================================================
// COMMAND PARSING TESTS (cli.go)
// =============================================================================

func TestParse_Commands(t *testing.T) {
	tests := []struct {
		name     string
		argv     []string
		wantCmd  Command
		validate func(*testing.T, Args)
	}{
		{
			name:    "no args defaults to chat",
			argv:    nil,
			wantCmd: CmdChat,
		},
		{
			name:    "ask joins query words",
			argv:    []string{"ask", "what", "is", "a", "goroutine"},
			wantCmd: CmdAsk,
			validate: func(t *testing.T, a Args) {
				if a.Query != "what is a goroutine" {
					t.Errorf("Query = %q", a.Query)
				}
			},
		},
		{
			name:    "ask flags",
			argv:    []string{"ask", "--stream", "--no-cache", "--timeout", "30", "hello"},
			wantCmd: CmdAsk,
			validate: func(t *testing.T, a Args) {
				if !a.Stream || !a.NoCache {
					t.Errorf("Stream = %v, NoCache = %v, want both true", a.Stream, a.NoCache)
				}
				if a.TimeoutSec != 30 {
					t.Errorf("TimeoutSec = %d, want 30", a.TimeoutSec)
				}
				if a.Query != "hello" {
					t.Errorf("Query = %q, want %q", a.Query, "hello")
				}
			},
		},
		{
			name:    "ask temperature flag",
			argv:    []string{"ask", "--temperature", "0.2", "hi"},
			wantCmd: CmdAsk,
			validate: func(t *testing.T, a Args) {
				if a.Temperature != 0.2 {
					t.Errorf("Temperature = %v, want 0.2", a.Temperature)
				}
			},
		},
		{
			name:    "global model flag before command",
			argv:    []string{"--model", "deep", "chat"},
			wantCmd: CmdChat,
			validate: func(t *testing.T, a Args) {
				if a.Model != "deep" {
					t.Errorf("Model = %q, want %q", a.Model, "deep")
				}
			},
		},
		{
			name:    "status alias",
			argv:    []string{"s"},
			wantCmd: CmdStatus,
		},
		{
			name:    "status with json",
			argv:    []string{"status", "--json"},
			wantCmd: CmdStatus,
			validate: func(t *testing.T, a Args) {
				if !a.JSON {
					t.Error("JSON should be true")
				}
			},
		},
		{
			name:    "history passes subcommand and raw args",
			argv:    []string{"history", "show", "2"},
			wantCmd: CmdHistory,
			validate: func(t *testing.T, a Args) {
				if a.Subcommand != "show" {
					t.Errorf("Subcommand = %q, want %q", a.Subcommand, "show")
				}
				if len(a.Raw) != 2 || a.Raw[0] != "show" || a.Raw[1] != "2" {
					t.Errorf("Raw = %v", a.Raw)
				}
			},
		},
		{
			name:    "config set captures key and value",
			argv:    []string{"config", "set", "rate_limit.ceiling", "30"},
			wantCmd: CmdConfig,
			validate: func(t *testing.T, a Args) {
				if a.Subcommand != "set" || a.ConfigKey != "rate_limit.ceiling" || a.ConfigVal != "30" {
					t.Errorf("Subcommand = %q, ConfigKey = %q, ConfigVal = %q",
						a.Subcommand, a.ConfigKey, a.ConfigVal)
				}
			},
		},
		{
			name:    "explicit config path",
			argv:    []string{"--config", "/tmp/test.toml", "models"},
			wantCmd: CmdModels,
			validate: func(t *testing.T, a Args) {
				if a.ConfigPath != "/tmp/test.toml" {
					t.Errorf("ConfigPath = %q", a.ConfigPath)
				}
			},
		},
		{
			name:    "unknown first token becomes an ask prompt",
			argv:    []string{"why", "is", "the", "build", "red"},
			wantCmd: CmdAsk,
			validate: func(t *testing.T, a Args) {
				if a.Query != "why is the build red" {
					t.Errorf("Query = %q", a.Query)
				}
			},
		},
		{
			name:    "version",
			argv:    []string{"version"},
			wantCmd: CmdVersion,
		},
		{
			name:    "help flag",
			argv:    []string{"--help"},
			wantCmd: CmdHelp,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, args := parse(tt.argv)
			if cmd != tt.wantCmd {
				t.Fatalf("parse(%v) command = %v, want %v", tt.argv, cmd, tt.wantCmd)
			}
			if tt.validate != nil {
				tt.validate(t, args)
			}
		})
	}
}

// =============================================================================
// EXIT CODE TESTS (errors.go)
// =============================================================================

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{
			name: "nil is success",
			err:  nil,
			want: ExitSuccess,
		},
		{
			name: "usage error",
			err:  usageErrorf("missing argument"),
			want: ExitUsageError,
		},
		{
			name: "pipeline validation failure",
			err:  &orchestrator.Failure{Kind: orchestrator.KindValidation},
			want: ExitUsageError,
		},
		{
			name: "wrapped validation failure",
			err:  fmt.Errorf("ask: %w", &orchestrator.Failure{Kind: orchestrator.KindValidation}),
			want: ExitUsageError,
		},
		{
			name: "timeout is a runtime failure",
			err:  &orchestrator.Failure{Kind: orchestrator.KindTimeout},
			want: ExitGeneralError,
		},
		{
			name: "plain error",
			err:  errors.New("boom"),
			want: ExitGeneralError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetExitCode(tt.err); got != tt.want {
				t.Errorf("GetExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

// =============================================================================
// JSON ENVELOPE TESTS (json_output.go)
// =============================================================================

func TestNewJSONResponse(t *testing.T) {
	resp := NewJSONResponse("status", map[string]int{"requests": 3})

	if !resp.Success {
		t.Error("Success should be true")
	}
	if resp.Error != nil {
		t.Errorf("Error should be nil, got %v", *resp.Error)
	}
	if resp.Command != "status" {
		t.Errorf("Command = %q, want %q", resp.Command, "status")
	}
	if _, err := time.Parse(time.RFC3339, resp.Timestamp); err != nil {
		t.Errorf("Timestamp %q does not parse as RFC3339: %v", resp.Timestamp, err)
	}
}

func TestNewJSONErrorResponse(t *testing.T) {
	resp := NewJSONErrorResponse("ask", errors.New("bridge unreachable"))

	if resp.Success {
		t.Error("Success should be false")
	}
	if resp.Error == nil || *resp.Error != "bridge unreachable" {
		t.Errorf("Error = %v, want %q", resp.Error, "bridge unreachable")
	}
}

// =============================================================================
// HELPER TESTS (helpers.go)
// =============================================================================

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{500 * time.Millisecond, "500ms"},
		{999 * time.Millisecond, "999ms"},
		{1500 * time.Millisecond, "1.5s"},
		{12 * time.Second, "12.0s"},
	}

	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		s    string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly ten", 11, "exactly ten"},
		{"this one is too long", 10, "this on..."},
		{"abc", 2, "ab"},
	}

	for _, tt := range tests {
		if got := truncate(tt.s, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.s, tt.n, got, tt.want)
		}
	}
}

// =============================================================================
// TRANSCRIPT FLATTENING TESTS (chat.go)
// =============================================================================

func TestFlattenTranscript_SingleMessagePassesThrough(t *testing.T) {
	msgs := []history.Message{history.NewMessage(history.RoleUser, "what is a mutex")}

	got := flattenTranscript(msgs)
	if got != "what is a mutex" {
		t.Errorf("flattenTranscript() = %q, want the bare prompt", got)
	}
}

func TestFlattenTranscript_FoldsRolesInOrder(t *testing.T) {
	msgs := []history.Message{
		history.NewMessage(history.RoleUser, "first question"),
		history.NewMessage(history.RoleAssistant, "first answer"),
		history.NewMessage(history.RoleUser, "second question"),
	}

	got := flattenTranscript(msgs)
	want := "User: first question\nAssistant: first answer\nUser: second question\nAssistant:"
	if got != want {
		t.Errorf("flattenTranscript() = %q, want %q", got, want)
	}
}

func TestFlattenTranscript_SystemMessageLeads(t *testing.T) {
	msgs := []history.Message{
		history.NewMessage(history.RoleSystem, "be terse"),
		history.NewMessage(history.RoleUser, "hello"),
	}

	got := flattenTranscript(msgs)
	if !strings.HasPrefix(got, "be terse\n\n") {
		t.Errorf("system message should lead the prompt, got %q", got)
	}
	if !strings.Contains(got, "User: hello") {
		t.Errorf("user turn missing from %q", got)
	}
}
