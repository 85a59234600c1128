// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// startWatch runs Watch in the background and returns the reload and
// exit channels. The short sleep gives the watcher time to register
// before the test starts rewriting the file.
func startWatch(t *testing.T, ctx context.Context, path string) (<-chan *Config, <-chan error) {
	t.Helper()

	reloads := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, zerolog.Nop(), func(c *Config) {
			reloads <- c
		})
	}()
	time.Sleep(300 * time.Millisecond)
	return reloads, done
}

func TestWatch_ReloadsOnChange(t *testing.T) {
	clearEnvOverrides(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := SaveTOML(Default(), path); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reloads, done := startWatch(t, ctx, path)

	cfg := Default()
	cfg.RateLimit.Ceiling = 42
	if err := SaveTOML(cfg, path); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-reloads:
		if got.RateLimit.Ceiling != 42 {
			t.Errorf("Reloaded ceiling = %d, want 42", got.RateLimit.Ceiling)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("No reload delivered after config change")
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Watch() returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not stop after cancel")
	}
}

func TestWatch_SkipsInvalidReload(t *testing.T) {
	clearEnvOverrides(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := SaveTOML(Default(), path); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reloads, _ := startWatch(t, ctx, path)

	// A write that fails to parse must be skipped, keeping the last
	// good config in effect.
	if err := os.WriteFile(path, []byte("broken [[["), 0600); err != nil {
		t.Fatal(err)
	}
	select {
	case got := <-reloads:
		t.Fatalf("Reload delivered for invalid config: %+v", got)
	case <-time.After(700 * time.Millisecond):
	}

	// The watcher stays alive and picks up the next valid write.
	cfg := Default()
	cfg.RateLimit.Ceiling = 42
	if err := SaveTOML(cfg, path); err != nil {
		t.Fatal(err)
	}
	select {
	case got := <-reloads:
		if got.RateLimit.Ceiling != 42 {
			t.Errorf("Reloaded ceiling = %d, want 42", got.RateLimit.Ceiling)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Watcher did not recover after invalid reload")
	}
}

func TestWatch_MissingDirectory(t *testing.T) {
	err := Watch(context.Background(), "/nonexistent-skiff-dir/config.toml", zerolog.Nop(), nil)
	if err == nil {
		t.Fatal("Watch() should fail when the config directory does not exist")
	}
}
