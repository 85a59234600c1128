// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - One-shot completion command.
//
// Command: ask
// Short:   Ask a single question
//
// Examples:
//   skiff ask "What is a goroutine?"
//   skiff ask --stream "Walk me through this trace"
//   skiff ask --model mini --no-cache "Second opinion, please"
//   skiff ask --json "Summarize" | jq -r .data.response
//
// Flags:
//   --stream            Print the response as it arrives
//   --no-cache          Bypass the cache lookup
//   --system TEXT       System prompt for this request
//   --timeout SECONDS   Override the request timeout
//   --max-tokens N      Cap the completion length
//   --temperature F     Sampling temperature
//   -m, --model NAME    Use a specific configured model

package cli

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jeranaias/skiff/internal/orchestrator"
)

// HandleAsk handles the "ask" command.
func HandleAsk(args Args) error {
	if strings.TrimSpace(args.Query) == "" {
		return usageErrorf(`ask requires a prompt, e.g. skiff ask "question"`)
	}

	app, err := NewApp(args)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		cancel()
	}()

	model := app.ModelName(args.Model)
	opts := orchestrator.Options{
		MaxTokens:    args.MaxTokens,
		Temperature:  args.Temperature,
		SystemPrompt: args.System,
		ForceRefresh: args.NoCache,
	}

	// Streaming and the JSON envelope are mutually exclusive; the
	// envelope needs the complete response.
	if args.Stream && !args.JSON {
		return streamAsk(ctx, app, args.Query, model, opts)
	}

	res, err := app.Orch.Complete(ctx, args.Query, model, opts)
	app.recordRequest(model, args.Query, res.Text, res.Duration, res.CacheHit, res.Offline, err)
	if err != nil {
		if args.JSON {
			NewJSONErrorResponse("ask", err).Print()
		}
		return err
	}

	if args.JSON {
		return NewJSONResponse("ask", AskData{
			Response:   res.Text,
			Model:      res.Model,
			RequestID:  res.RequestID,
			CacheHit:   res.CacheHit,
			Offline:    res.Offline,
			DurationMs: res.Duration.Milliseconds(),
		}).Print()
	}

	displayResponse(res.Text)
	return nil
}

// streamAsk prints fragments as they arrive. Markdown rendering is
// skipped: fragments are partial markdown and would render wrong.
func streamAsk(ctx context.Context, app *App, prompt, model string, opts orchestrator.Options) error {
	hitsBefore := app.Orch.CacheStats().Hits
	start := time.Now()

	var full strings.Builder
	err := app.Orch.Stream(ctx, prompt, model, opts, func(fragment string) error {
		os.Stdout.WriteString(fragment)
		full.WriteString(fragment)
		return nil
	})
	if full.Len() > 0 {
		os.Stdout.WriteString("\n")
	}

	text := full.String()
	cacheHit := app.Orch.CacheStats().Hits > hitsBefore
	offline := text == orchestrator.OfflineFallback
	app.recordRequest(model, prompt, text, time.Since(start), cacheHit, offline, err)

	return err
}
