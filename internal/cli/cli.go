// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - Command parsing and dispatch for skiff.

package cli

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdAsk Command = iota
	CmdChat
	CmdStatus
	CmdModels
	CmdHistory
	CmdConfig
	CmdStats
	CmdVersion
	CmdHelp
)

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	ConfigPath string // --config PATH
	JSON       bool   // --json
	Quiet      bool   // -q, --quiet
	Verbose    bool   // -v, --verbose
	Model      string // -m, --model NAME

	// Ask-specific
	Query       string
	Stream      bool
	NoCache     bool
	System      string
	TimeoutSec  int
	MaxTokens   int
	Temperature float64

	// Config-specific
	Subcommand string
	ConfigKey  string
	ConfigVal  string

	// Raw args (remaining after the command token), for subcommands
	// that do their own parsing.
	Raw []string
}

const usageText = `skiff - resilient LLM request pipeline for the terminal

Skiff runs every request through a supervised pipeline: input
validation, sliding-window admission control, response caching,
connection monitoring with escalating backoff, and a deterministic
offline fallback when the bridge cannot be reached.

Usage:
  skiff ask "question"       Ask a single question
  skiff chat                 Interactive chat session (default)
  skiff status, s            Show bridge and pipeline status
  skiff models               List configured models
  skiff history [subcommand] Manage saved conversations
  skiff config [subcommand]  Inspect and edit configuration
  skiff stats                Show recorded usage statistics
  skiff version              Show version information
  skiff help                 Show this help

Ask Flags:
  --stream                Print the response as it arrives
  --no-cache              Bypass the cache lookup (the fresh response is still stored)
  --system TEXT           System prompt for this request
  --timeout SECONDS       Override the request timeout
  --max-tokens N          Cap the completion length
  --temperature F         Sampling temperature

Chat Commands (inside the session):
  /help      List available commands
  /model     Show or switch the active model
  /status    Show connection and pipeline status
  /retry     Force a reconnection attempt
  /stats     Show session statistics
  /clear     Start a fresh conversation
  /quit      Exit the session

History Commands:
  skiff history list                      List saved conversations
  skiff history show <n|id>               Show one conversation
  skiff history search QUERY              Search summaries and content
  skiff history delete <n|id> --confirm   Delete one conversation
  skiff history clear --confirm           Delete all conversations

Config Commands:
  skiff config                  Show the effective configuration
  skiff config path             Print the config file path
  skiff config get KEY          Print one value (e.g. cache.max_size)
  skiff config set KEY VALUE    Set one value and save
  skiff config keys             List settable keys
  skiff config init             Write a default config file

Global Flags:
  --config PATH   Use an explicit config file
  --json          Output in JSON format
  -m, --model NAME  Override the default model
  -q, --quiet     Minimal output
  -v, --verbose   Debug logging

Examples:
  skiff ask "Explain io.Reader in two sentences"
  skiff ask --stream --model sonnet "Review this design"
  skiff ask --no-cache "What changed since the last release?"
  skiff chat --model mini
  skiff status --json
  skiff history search "virtual memory"
  skiff config set rate_limit.ceiling 30

Version: %s
`

// PrintUsage prints the usage/help text.
func PrintUsage() {
	fmt.Printf(usageText, Version)
}

// PrintVersion prints version information.
func PrintVersion() {
	fmt.Printf("skiff version %s\n", Version)
	fmt.Printf("  Git commit: %s\n", GitCommit)
	fmt.Printf("  Build date: %s\n", BuildDate)
}

// Parse parses os.Args and returns the command and parsed arguments.
func Parse() (Command, Args) {
	return parse(os.Args[1:])
}

// parse is the testable core of Parse.
func parse(argv []string) (Command, Args) {
	remaining, args := parseGlobalFlags(argv)

	// No command defaults to the interactive session.
	if len(remaining) == 0 {
		return CmdChat, args
	}

	first := remaining[0]
	cmd := strings.ToLower(first)
	remaining = remaining[1:]
	args.Raw = remaining

	switch cmd {
	case "ask":
		parseAskArgs(&args, remaining)
		return CmdAsk, args

	case "chat":
		parseChatArgs(&args, remaining)
		return CmdChat, args

	case "status", "s":
		return CmdStatus, args

	case "models":
		return CmdModels, args

	case "history", "hist":
		// Detailed parsing happens in history_cmd.go.
		if len(remaining) > 0 {
			args.Subcommand = remaining[0]
		}
		return CmdHistory, args

	case "config", "cfg":
		parseConfigArgs(&args, remaining)
		return CmdConfig, args

	case "stats":
		return CmdStats, args

	case "version", "--version":
		return CmdVersion, args

	case "help", "-h", "--help":
		return CmdHelp, args

	default:
		// An unrecognized first token is treated as a direct prompt.
		parseAskArgs(&args, append([]string{first}, remaining...))
		return CmdAsk, args
	}
}

// parseGlobalFlags extracts global flags and returns the remaining args.
func parseGlobalFlags(argv []string) ([]string, Args) {
	var remaining []string
	var args Args

	i := 0
	for i < len(argv) {
		arg := argv[i]

		switch arg {
		case "--json":
			args.JSON = true
		case "-q", "--quiet":
			args.Quiet = true
		case "-v", "--verbose":
			args.Verbose = true
		case "--config":
			if i+1 < len(argv) {
				i++
				args.ConfigPath = argv[i]
			}
		case "-m", "--model":
			if i+1 < len(argv) {
				i++
				args.Model = argv[i]
			}
		default:
			switch {
			case strings.HasPrefix(arg, "--config="):
				args.ConfigPath = strings.TrimPrefix(arg, "--config=")
			case strings.HasPrefix(arg, "--model="):
				args.Model = strings.TrimPrefix(arg, "--model=")
			default:
				remaining = append(remaining, arg)
			}
		}
		i++
	}

	return remaining, args
}

// parseAskArgs parses ask command specific arguments. Non-flag tokens
// are collected into the query.
func parseAskArgs(args *Args, remaining []string) {
	var query []string

	i := 0
	for i < len(remaining) {
		arg := remaining[i]

		switch arg {
		case "--stream":
			args.Stream = true
		case "--no-cache":
			args.NoCache = true
		case "--system":
			if i+1 < len(remaining) {
				i++
				args.System = remaining[i]
			}
		case "--timeout":
			if i+1 < len(remaining) {
				i++
				if n, err := strconv.Atoi(remaining[i]); err == nil && n > 0 {
					args.TimeoutSec = n
				}
			}
		case "--max-tokens":
			if i+1 < len(remaining) {
				i++
				if n, err := strconv.Atoi(remaining[i]); err == nil && n > 0 {
					args.MaxTokens = n
				}
			}
		case "--temperature":
			if i+1 < len(remaining) {
				i++
				if f, err := strconv.ParseFloat(remaining[i], 64); err == nil {
					args.Temperature = f
				}
			}
		default:
			switch {
			case strings.HasPrefix(arg, "--system="):
				args.System = strings.TrimPrefix(arg, "--system=")
			case strings.HasPrefix(arg, "--timeout="):
				if n, err := strconv.Atoi(strings.TrimPrefix(arg, "--timeout=")); err == nil && n > 0 {
					args.TimeoutSec = n
				}
			case strings.HasPrefix(arg, "--max-tokens="):
				if n, err := strconv.Atoi(strings.TrimPrefix(arg, "--max-tokens=")); err == nil && n > 0 {
					args.MaxTokens = n
				}
			case strings.HasPrefix(arg, "--temperature="):
				if f, err := strconv.ParseFloat(strings.TrimPrefix(arg, "--temperature="), 64); err == nil {
					args.Temperature = f
				}
			case !strings.HasPrefix(arg, "-"):
				query = append(query, arg)
			}
		}
		i++
	}

	args.Query = strings.Join(query, " ")
}

// parseChatArgs parses chat command specific arguments.
func parseChatArgs(args *Args, remaining []string) {
	for i := 0; i < len(remaining); i++ {
		arg := remaining[i]

		switch arg {
		case "--system":
			if i+1 < len(remaining) {
				i++
				args.System = remaining[i]
			}
		default:
			if strings.HasPrefix(arg, "--system=") {
				args.System = strings.TrimPrefix(arg, "--system=")
			}
		}
	}
}

// parseConfigArgs parses config command specific arguments.
func parseConfigArgs(args *Args, remaining []string) {
	var positional []string
	for _, arg := range remaining {
		if !strings.HasPrefix(arg, "-") {
			positional = append(positional, arg)
		}
	}
	if len(positional) > 0 {
		args.Subcommand = positional[0]
	}
	if len(positional) > 1 {
		args.ConfigKey = positional[1]
	}
	if len(positional) > 2 {
		args.ConfigVal = strings.Join(positional[2:], " ")
	}
}

// HandleVersion handles the "version" command.
func HandleVersion(args Args) error {
	if args.JSON {
		data := VersionData{
			Version:   Version,
			GitCommit: GitCommit,
			BuildDate: BuildDate,
			GoVersion: runtime.Version(),
		}
		return NewJSONResponse("version", data).Print()
	}
	PrintVersion()
	return nil
}

// HandleHelp handles the "help" command.
func HandleHelp() {
	PrintUsage()
}
