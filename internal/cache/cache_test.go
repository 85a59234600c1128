// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cache

import (
	"fmt"
	"strings"
	"sync"
	"testing"
)

// =============================================================================
// KEY DERIVATION TESTS
// =============================================================================

func TestKey(t *testing.T) {
	base := Key("model-a", "what is the capital of france")

	if Key("model-a", "what is the capital of france") != base {
		t.Error("Expected identical model and prompt to derive the same key")
	}
	if Key("model-b", "what is the capital of france") == base {
		t.Error("Expected different model to derive a different key")
	}
	if Key("model-a", "what is the capital of spain") == base {
		t.Error("Expected different prompt to derive a different key")
	}
}

func TestKeyPromptPrefixOnly(t *testing.T) {
	prefix := strings.Repeat("é", KeyPromptRunes)

	// Prompts that agree on the first KeyPromptRunes runes collide.
	k1 := Key("m", prefix+" tail one")
	k2 := Key("m", prefix+" completely different tail")
	if k1 != k2 {
		t.Error("Expected prompts sharing the key prefix to share a key")
	}

	// A difference inside the prefix separates them.
	altered := strings.Repeat("é", KeyPromptRunes-1) + "x"
	if Key("m", altered+" tail one") == k1 {
		t.Error("Expected prompts differing inside the prefix to get distinct keys")
	}
}

// =============================================================================
// BASIC OPERATIONS TESTS
// =============================================================================

func TestNew(t *testing.T) {
	tests := []struct {
		name       string
		maxEntries int
		expected   int
	}{
		{"default when zero", 0, 100},
		{"default when negative", -1, 100},
		{"custom value", 50, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(tt.maxEntries)
			if c.maxEntries != tt.expected {
				t.Errorf("Expected maxEntries=%d, got %d", tt.expected, c.maxEntries)
			}
			if c.entries == nil {
				t.Error("Entries map not initialized")
			}
		})
	}
}

func TestBasicOperations(t *testing.T) {
	c := New(10)
	key := Key("model-a", "hello")

	// Miss on empty cache
	if _, hit := c.Get(key); hit {
		t.Error("Expected cache miss on empty cache")
	}

	// Hit after put
	c.Put(key, "hi there")
	entry, hit := c.Get(key)
	if !hit {
		t.Fatal("Expected cache hit after put")
	}
	if entry.ResponseText != "hi there" {
		t.Errorf("Expected ResponseText='hi there', got '%s'", entry.ResponseText)
	}
	if entry.CreatedAt.IsZero() {
		t.Error("Expected CreatedAt to be set")
	}

	// Clear empties the cache
	c.Clear()
	if _, hit := c.Get(key); hit {
		t.Error("Expected cache miss after clear")
	}
	if c.Len() != 0 {
		t.Errorf("Expected Len=0 after clear, got %d", c.Len())
	}
}

// =============================================================================
// FIFO EVICTION TESTS
// =============================================================================

func TestFIFOEviction(t *testing.T) {
	c := New(3)

	keys := make([]string, 4)
	for i := range keys {
		keys[i] = Key("m", fmt.Sprintf("prompt %d", i))
		c.Put(keys[i], fmt.Sprintf("response %d", i))
	}

	if c.Len() != 3 {
		t.Errorf("Expected Len=3 after eviction, got %d", c.Len())
	}
	if _, hit := c.Get(keys[0]); hit {
		t.Error("Expected oldest entry to be evicted")
	}
	for i := 1; i < 4; i++ {
		if _, hit := c.Get(keys[i]); !hit {
			t.Errorf("Expected keys[%d] to survive eviction", i)
		}
	}
}

func TestGetDoesNotRefreshEvictionOrder(t *testing.T) {
	c := New(2)

	a := Key("m", "first")
	b := Key("m", "second")
	c.Put(a, "ra")
	c.Put(b, "rb")

	// Heavy reads on the oldest entry must not protect it.
	for i := 0; i < 10; i++ {
		c.Get(a)
	}

	c.Put(Key("m", "third"), "rc")

	if _, hit := c.Get(a); hit {
		t.Error("Expected oldest entry evicted despite recent reads")
	}
	if _, hit := c.Get(b); !hit {
		t.Error("Expected second entry to survive")
	}
}

func TestRePutKeepsInsertionOrder(t *testing.T) {
	c := New(2)

	a := Key("m", "first")
	b := Key("m", "second")
	c.Put(a, "ra")
	c.Put(b, "rb")

	// Refresh the oldest entry's value.
	c.Put(a, "ra-updated")
	entry, hit := c.Get(a)
	if !hit || entry.ResponseText != "ra-updated" {
		t.Fatalf("Expected refreshed value, got (%+v, %v)", entry, hit)
	}

	// It is still the oldest, so the next new key evicts it.
	c.Put(Key("m", "third"), "rc")
	if _, hit := c.Get(a); hit {
		t.Error("Expected re-put entry to keep its original insertion position")
	}
	if _, hit := c.Get(b); !hit {
		t.Error("Expected second entry to survive")
	}
}

// =============================================================================
// STATISTICS TESTS
// =============================================================================

func TestStats(t *testing.T) {
	c := New(10)
	key := Key("m", "p")

	stats := c.Stats()
	if stats.Hits != 0 || stats.Misses != 0 || stats.HitRate != 0.0 {
		t.Error("Expected zeroed stats initially")
	}

	c.Get(key) // miss
	c.Put(key, "r")
	c.Get(key) // hit
	c.Get(key) // hit

	stats = c.Stats()
	if stats.Hits != 2 {
		t.Errorf("Expected Hits=2, got %d", stats.Hits)
	}
	if stats.Misses != 1 {
		t.Errorf("Expected Misses=1, got %d", stats.Misses)
	}
	if want := 2.0 / 3.0; stats.HitRate != want {
		t.Errorf("Expected HitRate=%f, got %f", want, stats.HitRate)
	}
	if stats.EntryCount != 1 {
		t.Errorf("Expected EntryCount=1, got %d", stats.EntryCount)
	}
	if stats.MaxEntries != 10 {
		t.Errorf("Expected MaxEntries=10, got %d", stats.MaxEntries)
	}
}

// =============================================================================
// CONCURRENCY TESTS
// =============================================================================

func TestConcurrentAccess(t *testing.T) {
	c := New(50)

	const numGoroutines = 20
	const opsPerGoroutine = 100

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < opsPerGoroutine; j++ {
				key := Key("m", fmt.Sprintf("prompt %d", j%60))
				switch j % 3 {
				case 0:
					c.Put(key, "response")
				case 1:
					c.Get(key)
				default:
					c.Stats()
				}
			}
		}(i)
	}
	wg.Wait()

	stats := c.Stats()
	if stats.EntryCount < 0 || stats.EntryCount > 50 {
		t.Errorf("Invalid EntryCount after concurrent access: %d", stats.EntryCount)
	}
}

func TestEmptyResponseText(t *testing.T) {
	c := New(10)
	key := Key("m", "p")

	c.Put(key, "")
	entry, hit := c.Get(key)
	if !hit {
		t.Error("Expected cache hit for empty response text")
	}
	if entry.ResponseText != "" {
		t.Errorf("Expected empty ResponseText, got '%s'", entry.ResponseText)
	}
}
