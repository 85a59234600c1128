// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// stats_cmd.go - Recorded usage statistics.
//
// Command: stats
// Short:   Show recorded usage statistics
//
// Examples:
//   skiff stats           Summary plus per-model breakdown
//   skiff stats --json    Statistics in JSON format
//
// Reads the usage database written by ask and chat; an existing
// database is shown even when recording is currently disabled.

package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jeranaias/skiff/internal/stats"
)

// HandleStats handles the "stats" command.
func HandleStats(args Args) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	path, err := cfg.StatsPath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if !cfg.Stats.Enabled {
			fmt.Println("usage tracking is disabled (stats.enabled = false)")
			return nil
		}
		fmt.Println("no usage recorded yet")
		return nil
	}

	tracker, err := stats.NewSQLite(path)
	if err != nil {
		return err
	}
	defer tracker.Close()

	ctx := context.Background()
	summary, err := tracker.Summary(ctx)
	if err != nil {
		return err
	}
	models, err := tracker.ByModel(ctx)
	if err != nil {
		return err
	}

	if args.JSON {
		return NewJSONResponse("stats", StatsData{
			Summary: summary,
			Models:  models,
		}).Print()
	}

	printStatsSummary(summary)
	if !cfg.Stats.Enabled {
		fmt.Println(dimStyle.Render("note: recording is currently disabled"))
	}
	if len(models) > 0 {
		fmt.Println()
		printModelUsage(models)
	}
	return nil
}

// printStatsSummary renders the lifetime counters.
func printStatsSummary(s stats.Summary) {
	fmt.Println(sectionStyle.Render("Usage"))

	fmt.Printf("  %s%s\n",
		labelStyle.Render("Requests:"),
		valueStyle.Render(fmt.Sprintf("%d", s.Requests)))

	hitRate := fmt.Sprintf("%d (%.0f%%)", s.CacheHits, s.CacheHitRate()*100)
	fmt.Printf("  %s%s\n", labelStyle.Render("Cache Hits:"), valueStyle.Render(hitRate))

	offlineStr := valueStyle.Render(fmt.Sprintf("%d", s.Offline))
	if s.Offline > 0 {
		offlineStr = valueYellowStyle.Render(fmt.Sprintf("%d", s.Offline))
	}
	fmt.Printf("  %s%s\n", labelStyle.Render("Offline:"), offlineStr)

	failStr := valueStyle.Render(fmt.Sprintf("%d", s.Failures))
	if s.Failures > 0 {
		failStr = valueRedStyle.Render(fmt.Sprintf("%d", s.Failures))
	}
	fmt.Printf("  %s%s\n", labelStyle.Render("Failures:"), failStr)

	avg := time.Duration(s.AvgDurationMs * float64(time.Millisecond))
	fmt.Printf("  %s%s\n",
		labelStyle.Render("Avg Duration:"),
		valueStyle.Render(formatDuration(avg)))

	chars := fmt.Sprintf("%d in, %d out", s.PromptChars, s.ResponseChars)
	fmt.Printf("  %s%s\n", labelStyle.Render("Characters:"), valueDimStyle.Render(chars))
}

// printModelUsage renders the per-model breakdown.
func printModelUsage(models []stats.ModelUsage) {
	fmt.Println(sectionStyle.Render("By Model"))
	fmt.Println(dimStyle.Render(fmt.Sprintf("  %-12s %9s %11s %10s", "MODEL", "REQUESTS", "CACHE HITS", "AVG")))
	for _, m := range models {
		avg := time.Duration(m.AvgDurationMs * float64(time.Millisecond))
		fmt.Printf("  %-12s %9d %11d %10s\n",
			truncate(m.Model, 12), m.Requests, m.CacheHits, formatDuration(avg))
	}
}
