// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// app.go - Pipeline wiring shared by the request-making commands.
//
// One App carries the full request path: config, logger, bridge
// client, connection monitor, orchestrator, conversation store and
// usage tracker. Everything is built by constructor injection; no
// package-level state.

package cli

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/jeranaias/skiff/internal/bridge"
	"github.com/jeranaias/skiff/internal/config"
	"github.com/jeranaias/skiff/internal/conmon"
	"github.com/jeranaias/skiff/internal/history"
	"github.com/jeranaias/skiff/internal/logging"
	"github.com/jeranaias/skiff/internal/orchestrator"
	"github.com/jeranaias/skiff/internal/stats"
	"github.com/jeranaias/skiff/internal/util"
)

// probeTimeout bounds the one-shot reachability check used by the
// status command and the chat banner.
const probeTimeout = 3 * time.Second

// App is the wired request pipeline.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Bridge  *bridge.HTTPBridge
	Monitor *conmon.Monitor
	Orch    *orchestrator.Orchestrator
	History *history.Store
	Stats   stats.Tracker

	monitorStarted bool
	pending        atomic.Pointer[config.Config]
}

// loadConfig loads the configuration for a command invocation and
// applies the CLI-level overrides that must land before wiring.
func loadConfig(args Args) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if args.ConfigPath != "" {
		cfg, err = config.LoadFromPath(args.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if args.TimeoutSec > 0 {
		cfg.Request.TimeoutMs = args.TimeoutSec * 1000
	}
	if args.Verbose {
		cfg.Logging.Level = "debug"
	} else if args.Quiet {
		cfg.Logging.Level = "error"
	}

	return cfg, nil
}

// NewApp builds the full pipeline from configuration. The connection
// monitor is constructed but not started; long-lived commands call
// StartMonitor for the periodic reachability checks.
func NewApp(args Args) (*App, error) {
	cfg, err := loadConfig(args)
	if err != nil {
		return nil, err
	}

	logger := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	})

	a := &App{}
	a.buildPipeline(cfg, logger)

	historyDir, err := cfg.HistoryDir()
	if err != nil {
		return nil, err
	}
	store, err := history.New(historyDir, cfg.History.MaxConversations)
	if err != nil {
		return nil, err
	}
	a.History = store

	a.Stats = stats.Tracker(stats.Disabled{})
	if cfg.Stats.Enabled {
		path, err := cfg.StatsPath()
		if err == nil {
			tracker, err := stats.NewSQLite(path)
			if err != nil {
				logger.Warn().Err(err).Str("path", path).Msg("usage tracking unavailable")
			} else {
				a.Stats = tracker
			}
		}
	}

	return a, nil
}

// buildPipeline wires bridge, monitor and orchestrator from cfg. Also
// used when a config reload replaces the pipeline mid-session.
func (a *App) buildPipeline(cfg *config.Config, logger zerolog.Logger) {
	b := bridge.New(cfg.Bridge.BaseURL, cfg.Bridge.APIKey,
		bridge.WithLogger(logger),
		bridge.WithPace(cfg.Bridge.PaceRPM),
	)

	probe := func(ctx context.Context) error {
		return bridge.Probe(ctx, b, a.providerModelID(cfg))
	}

	monOpts := []conmon.Option{conmon.WithLogger(logger)}
	if addr, err := conmon.BridgeAddr(cfg.Bridge.BaseURL); err == nil {
		monOpts = append(monOpts, conmon.WithReachability(conmon.DefaultReachability(addr)))
	}
	monitor := conmon.New(conmon.Config{
		MaxRetries:    cfg.Retry.MaxRetries,
		BaseDelay:     cfg.Retry.BaseDelay(),
		CapDelay:      cfg.Retry.CapDelay(),
		CheckInterval: cfg.Monitor.CheckInterval(),
		ForcedOffline: cfg.Monitor.Offline,
	}, probe, monOpts...)

	a.Config = cfg
	a.Logger = logger
	a.Bridge = b
	a.Monitor = monitor
	a.Orch = orchestrator.New(cfg, b, monitor, orchestrator.WithLogger(logger))
}

// providerModelID resolves the default model alias to its provider
// identifier for probe calls.
func (a *App) providerModelID(cfg *config.Config) string {
	if mc, ok := cfg.Model(cfg.DefaultModel); ok && mc.ID != "" {
		return mc.ID
	}
	return cfg.DefaultModel
}

// ModelName returns the model alias a request should use: the
// override when given, the configured default otherwise.
func (a *App) ModelName(override string) string {
	if override != "" {
		return override
	}
	return a.Config.DefaultModel
}

// Probe makes one reachability check against the bridge, bounded by
// probeTimeout.
func (a *App) Probe(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	return bridge.Probe(probeCtx, a.Bridge, a.providerModelID(a.Config))
}

// StartMonitor begins the periodic reachability checks. Only
// long-lived commands need this; one-shot commands probe inline.
func (a *App) StartMonitor(ctx context.Context) {
	a.Monitor.Start(ctx)
	a.monitorStarted = true
}

// WatchConfig starts watching the effective config file and stages
// reloads; ApplyPending swaps them in at a safe point. The watcher
// goroutine exits when ctx is done.
func (a *App) WatchConfig(ctx context.Context, args Args) {
	path := args.ConfigPath
	if path == "" {
		var err error
		path, err = config.ConfigPathTOML()
		if err != nil {
			a.Logger.Warn().Err(err).Msg("config watch disabled")
			return
		}
	}

	logger := a.Logger
	go func() {
		if err := config.Watch(ctx, path, logger, func(next *config.Config) {
			a.pending.Store(next)
		}); err != nil && ctx.Err() == nil {
			logger.Warn().Err(err).Msg("config watch stopped")
		}
	}()
}

// ApplyPending swaps in a staged config reload, rebuilding the bridge,
// monitor and orchestrator. The conversation store and usage tracker
// keep their handles. Returns true when a reload was applied.
//
// Callers invoke this between requests, never while one is in flight.
func (a *App) ApplyPending(ctx context.Context) bool {
	next := a.pending.Swap(nil)
	if next == nil {
		return false
	}

	logger := logging.New(logging.Config{
		Level:  next.Logging.Level,
		Format: next.Logging.Format,
		File:   next.Logging.File,
	})

	if a.monitorStarted {
		a.Monitor.Stop()
	}
	a.buildPipeline(next, logger)
	if a.monitorStarted {
		a.Monitor.Start(ctx)
	}

	logger.Info().Msg("pipeline rebuilt from reloaded config")
	return true
}

// Close releases the pipeline's resources.
func (a *App) Close() {
	if a.monitorStarted {
		a.Monitor.Stop()
	}
	if err := a.Stats.Close(); err != nil {
		a.Logger.Debug().Err(err).Msg("usage tracker close failed")
	}
}

// recordRequest writes one usage record; failures are logged, never
// surfaced, so statistics can never break a request that succeeded.
func (a *App) recordRequest(model, prompt, response string, dur time.Duration, cacheHit, offline bool, reqErr error) {
	rec := stats.Record{
		Model:         model,
		PromptChars:   util.RuneLen(prompt),
		ResponseChars: util.RuneLen(response),
		DurationMs:    dur.Milliseconds(),
		CacheHit:      cacheHit,
		Offline:       offline,
		Outcome:       stats.OutcomeFor(reqErr),
	}
	if err := a.Stats.Record(context.Background(), rec); err != nil {
		a.Logger.Debug().Err(err).Msg("usage record failed")
	}
}
