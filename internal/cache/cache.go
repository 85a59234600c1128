// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cache provides an in-memory response cache for completed
// requests. Eviction is strictly first-in-first-out: reads never
// change an entry's position, so a hot entry still ages out once
// enough newer entries arrive.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/jeranaias/skiff/internal/util"
)

// KeyPromptRunes is how many leading prompt runes participate in the
// cache key. Prompts that agree on model and this prefix share an
// entry even when they diverge later.
const KeyPromptRunes = 256

// =============================================================================
// RESPONSE CACHE
// =============================================================================

// Cache is a fixed-capacity FIFO cache of response texts.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]*Entry
	order      []string // insertion order, oldest first
	maxEntries int

	// Statistics
	hits   int
	misses int
}

// Entry is a cached response.
type Entry struct {
	ResponseText string
	CreatedAt    time.Time
}

// Stats holds cache statistics.
type Stats struct {
	Hits       int
	Misses     int
	EntryCount int
	MaxEntries int
	HitRate    float64
}

// New creates a cache holding at most maxEntries responses
// (default: 100).
func New(maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = 100
	}
	return &Cache{
		entries:    make(map[string]*Entry),
		order:      make([]string, 0, maxEntries),
		maxEntries: maxEntries,
	}
}

// Key derives the cache key for a model and prompt. Only the first
// KeyPromptRunes runes of the prompt are hashed.
func Key(model, prompt string) string {
	return KeyN(model, prompt, KeyPromptRunes)
}

// KeyN is Key with a caller-chosen prompt prefix length, for callers
// that carry the length in configuration.
func KeyN(model, prompt string, n int) string {
	h := sha256.Sum256([]byte(model + "\x00" + util.PrefixRunes(prompt, n)))
	return hex.EncodeToString(h[:])
}

// Get retrieves a cached entry. Hits do not refresh the entry's
// position in the eviction order.
func (c *Cache) Get(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.misses++
		return Entry{}, false
	}

	c.hits++
	return *entry, true
}

// Put stores a response. Re-putting an existing key refreshes the
// stored text and timestamp but keeps the key's original insertion
// position. A new key evicts the oldest entry when the cache is full.
func (c *Cache) Put(key, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[key]; ok {
		existing.ResponseText = text
		existing.CreatedAt = time.Now()
		return
	}

	for len(c.order) >= c.maxEntries {
		oldest := c.order[0]
		delete(c.entries, oldest)
		c.order = append(c.order[:0], c.order[1:]...)
	}

	c.entries[key] = &Entry{
		ResponseText: text,
		CreatedAt:    time.Now(),
	}
	c.order = append(c.order, key)
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*Entry)
	c.order = c.order[:0]
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns cache statistics.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	hitRate := 0.0
	total := c.hits + c.misses
	if total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}

	return Stats{
		Hits:       c.hits,
		Misses:     c.misses,
		EntryCount: len(c.entries),
		MaxEntries: c.maxEntries,
		HitRate:    hitRate,
	}
}
