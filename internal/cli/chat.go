// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat session.
//
// Command: chat
// Short:   Interactive chat with replayed context
//
// Each turn folds the clipped conversation window into the prompt, so
// the model sees recent context without the transcript growing without
// bound. Replies stream as they arrive. The conversation is persisted
// after every completed turn, and a config file edit rebuilds the
// pipeline between turns.
//
// Examples:
//   skiff chat                    Start a session with the default model
//   skiff chat --model mini       Start with a specific model
//
// Slash commands: /help /model /status /retry /stats /clear /quit

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/peterh/liner"

	"github.com/jeranaias/skiff/internal/config"
	"github.com/jeranaias/skiff/internal/history"
	"github.com/jeranaias/skiff/internal/orchestrator"
)

const chatHelpText = `Commands:
  /help      List available commands
  /model     Show the active model; /model NAME switches
  /status    Show connection and pipeline status
  /retry     Force a reconnection attempt (clears the offline latch)
  /stats     Show session statistics
  /clear     Start a fresh conversation
  /quit      Exit the session

Anything else is sent to the model. Ctrl+C interrupts a streaming
reply; Ctrl+D exits.`

// =============================================================================
// LINE EDITOR
// =============================================================================

// ChatCLI wraps liner with persistent input history.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI opens the line editor and loads past input history from
// the config directory.
func NewChatCLI() (*ChatCLI, error) {
	dir, err := config.ConfigDir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	c := &ChatCLI{
		line:        line,
		historyFile: filepath.Join(dir, "chat_history"),
	}
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
	return c, nil
}

// ReadInput reads one line, recording non-empty input in the history.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	input = strings.TrimSpace(input)
	if input != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves the input history and restores the terminal. The
// history file is private: prompts can contain sensitive text.
func (c *ChatCLI) Close() {
	if f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
		c.line.WriteHistory(f)
		f.Close()
	}
	c.line.Close()
}

// =============================================================================
// SESSION
// =============================================================================

// chatSession is the state of one interactive session.
type chatSession struct {
	app    *App
	conv   *history.Conversation
	model  string
	system string

	// cancel aborts the in-flight turn on SIGINT. Guarded because the
	// signal goroutine races the REPL loop.
	mu     sync.Mutex
	cancel context.CancelFunc
}

func (s *chatSession) setCancel(fn context.CancelFunc) {
	s.mu.Lock()
	s.cancel = fn
	s.mu.Unlock()
}

// interrupt cancels the in-flight turn, if any. At the prompt liner
// owns Ctrl+C, so a signal here always means a streaming reply.
func (s *chatSession) interrupt() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
}

// HandleChat handles the "chat" command.
func HandleChat(args Args) error {
	if !IsStdinTTY() {
		return usageErrorf("chat needs an interactive terminal; use ask for piped input")
	}

	app, err := NewApp(args)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app.StartMonitor(ctx)
	app.WatchConfig(ctx, args)

	cli, err := NewChatCLI()
	if err != nil {
		return err
	}
	defer cli.Close()

	session := &chatSession{
		app:    app,
		model:  app.ModelName(args.Model),
		system: args.System,
	}
	session.conv = &history.Conversation{Model: session.model}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			session.interrupt()
		}
	}()

	printWelcome(ctx, app, session.model)

	for {
		if app.ApplyPending(ctx) {
			fmt.Println(dimStyle.Render("configuration reloaded, pipeline rebuilt"))
		}

		input, err := cli.ReadInput("you> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Println()
				break
			}
			return err
		}
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			if !session.handleSlash(ctx, input) {
				break
			}
			continue
		}

		session.turn(ctx, input)
	}

	session.saveConversation()
	return nil
}

// printWelcome shows the session banner and an initial reachability
// probe so the user knows up front whether replies will be live.
func printWelcome(ctx context.Context, app *App, model string) {
	fmt.Println(titleStyle.Render("skiff chat"))
	fmt.Println(dimStyle.Render(fmt.Sprintf("model: %s · /help for commands · Ctrl+D to exit", model)))

	if app.Config.Monitor.Offline {
		fmt.Println(warnStyle.Render("forced offline: replies use the local fallback"))
	} else if err := app.Probe(ctx); err != nil {
		fmt.Println(warnStyle.Render("bridge unreachable: replies use the local fallback until it returns"))
	}
	fmt.Println()
}

// turn runs one prompt/reply exchange.
func (s *chatSession) turn(ctx context.Context, input string) {
	s.conv.Append(history.NewMessage(history.RoleUser, input))

	window := history.Clip(s.conv.Messages, s.app.Config.Request.ContextLength)
	prompt := flattenTranscript(window)

	turnCtx, cancelTurn := context.WithCancel(ctx)
	s.setCancel(cancelTurn)
	defer func() {
		cancelTurn()
		s.setCancel(nil)
	}()

	hitsBefore := s.app.Orch.CacheStats().Hits
	start := time.Now()

	var full strings.Builder
	err := s.app.Orch.Stream(turnCtx, prompt, s.model, orchestrator.Options{SystemPrompt: s.system}, func(fragment string) error {
		fmt.Print(fragment)
		full.WriteString(fragment)
		return nil
	})
	fmt.Println()

	dur := time.Since(start)
	text := full.String()
	cacheHit := s.app.Orch.CacheStats().Hits > hitsBefore
	offline := text == orchestrator.OfflineFallback
	s.app.recordRequest(s.model, prompt, text, dur, cacheHit, offline, err)

	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Println(dimStyle.Render("(interrupted)"))
		} else {
			fmt.Println(errorStyle.Render("error: " + err.Error()))
		}
		return
	}

	reply := history.NewMessage(history.RoleAssistant, text)
	reply.DurationMs = dur.Milliseconds()
	reply.CacheHit = cacheHit
	reply.Offline = offline
	s.conv.Append(reply)

	s.saveConversation()
}

// saveConversation persists the transcript; a failure is reported but
// never ends the session.
func (s *chatSession) saveConversation() {
	if len(s.conv.Messages) == 0 {
		return
	}
	if _, err := s.app.History.Save(s.conv); err != nil {
		s.app.Logger.Warn().Err(err).Msg("conversation save failed")
	}
}

// handleSlash executes a slash command. Returns false when the session
// should end.
func (s *chatSession) handleSlash(ctx context.Context, input string) bool {
	fields := strings.Fields(input)

	switch fields[0] {
	case "/help":
		fmt.Println(chatHelpText)

	case "/model":
		if len(fields) < 2 {
			fmt.Printf("active model: %s\n", s.model)
			fmt.Println(dimStyle.Render("available: " + strings.Join(s.app.Config.ModelNames(), ", ")))
			break
		}
		name := fields[1]
		if _, ok := s.app.Config.Model(name); !ok {
			fmt.Println(errorStyle.Render(fmt.Sprintf("unknown model %q, available: %s",
				name, strings.Join(s.app.Config.ModelNames(), ", "))))
			break
		}
		s.model = name
		s.conv.Model = name
		fmt.Printf("switched to %s\n", name)

	case "/status":
		printStatus(ctx, s.app)

	case "/retry":
		fmt.Println(dimStyle.Render("reconnecting..."))
		if err := s.app.Monitor.Retry(ctx); err != nil {
			fmt.Println(errorStyle.Render("still offline: " + err.Error()))
		} else {
			fmt.Println(successStyle.Render("connected"))
		}

	case "/stats":
		s.printSessionStats()

	case "/clear":
		s.conv = &history.Conversation{Model: s.model}
		fmt.Println("started a fresh conversation")

	case "/quit", "/exit":
		return false

	default:
		fmt.Println(dimStyle.Render(fmt.Sprintf("unknown command %s, /help lists commands", fields[0])))
	}

	return true
}

// printSessionStats shows the current session's counters.
func (s *chatSession) printSessionStats() {
	var turns, userTurns int
	for _, m := range s.conv.Messages {
		switch m.Role {
		case history.RoleAssistant:
			turns++
		case history.RoleUser:
			userTurns++
		}
	}
	interrupted := userTurns - turns

	cacheStats := s.app.Orch.CacheStats()
	admission := s.app.Orch.Admission()

	fmt.Printf("turns:       %d", turns)
	if interrupted > 0 {
		fmt.Printf(" (%d unanswered)", interrupted)
	}
	fmt.Println()
	fmt.Printf("cache:       %d/%d entries, %d hits, %d misses\n",
		cacheStats.EntryCount, cacheStats.MaxEntries, cacheStats.Hits, cacheStats.Misses)
	fmt.Printf("rate limit:  %d/%d in window, %d refused\n",
		admission.InWindow, admission.Ceiling, admission.Refused)
}

// flattenTranscript folds a clipped message window into a single
// prompt. A lone first message passes through unchanged so an
// identical one-shot ask shares its cache entry.
func flattenTranscript(msgs []history.Message) string {
	if len(msgs) == 1 && msgs[0].Role == history.RoleUser {
		return msgs[0].Content
	}

	var sb strings.Builder
	for _, m := range msgs {
		switch m.Role {
		case history.RoleSystem:
			sb.WriteString(m.Content)
			sb.WriteString("\n\n")
		case history.RoleUser:
			sb.WriteString("User: ")
			sb.WriteString(m.Content)
			sb.WriteString("\n")
		case history.RoleAssistant:
			sb.WriteString("Assistant: ")
			sb.WriteString(m.Content)
			sb.WriteString("\n")
		}
	}
	sb.WriteString("Assistant:")
	return sb.String()
}
