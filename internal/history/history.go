// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package history persists conversations as one JSON file each under
// the user's skiff directory.
//
// Writes are atomic, corrupted files are skipped on listing, and the
// store trims the oldest conversations once a configured limit is
// exceeded. Clip applies the configured context-length budget when a
// conversation is replayed into a new prompt.
package history

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/skiff/internal/util"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ErrNotFound is returned when a conversation does not exist.
var ErrNotFound = errors.New("conversation not found")

// =============================================================================
// STORED TYPES
// =============================================================================

// Conversation is a persisted chat session.
type Conversation struct {
	ID        string    `json:"id"`
	Summary   string    `json:"summary"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Messages []Message `json:"messages"`
}

// Message is one turn of a conversation. The assistant-side fields
// mirror what the orchestrator reports for the completion.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`

	// Statistics, filled for assistant messages.
	Chars      int   `json:"chars,omitempty"`
	DurationMs int64 `json:"duration_ms,omitempty"`
	CacheHit   bool  `json:"cache_hit,omitempty"`
	Offline    bool  `json:"offline,omitempty"`
}

// Meta is the lightweight listing view of a conversation.
type Meta struct {
	ID           string    `json:"id"`
	Summary      string    `json:"summary"`
	Model        string    `json:"model"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
	// Preview is the first user message, truncated.
	Preview string `json:"preview"`
}

// NewMessage builds a message with its ID, timestamp and character
// count filled in.
func NewMessage(role, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
		Chars:     util.RuneLen(content),
	}
}

// Append adds a message to the conversation.
func (c *Conversation) Append(m Message) {
	c.Messages = append(c.Messages, m)
}

// Preview returns the first user message, truncated for listings.
func (c *Conversation) Preview() string {
	for _, msg := range c.Messages {
		if msg.Role == RoleUser && msg.Content != "" {
			return util.TruncateRunes(strings.ReplaceAll(msg.Content, "\n", " "), 80)
		}
	}
	return ""
}

// =============================================================================
// STORE
// =============================================================================

// Store reads and writes conversations under Dir.
type Store struct {
	// Dir holds one <id>.json file per conversation.
	Dir string

	// MaxConversations bounds stored conversations; the oldest by
	// update time are removed first. 0 means unlimited.
	MaxConversations int
}

// New creates a store rooted at dir, creating the directory when
// missing.
func New(dir string, maxConversations int) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &Store{
		Dir:              dir,
		MaxConversations: maxConversations,
	}, nil
}

// Save persists the conversation and returns its ID. A missing ID or
// summary is generated; UpdatedAt is always refreshed.
func (s *Store) Save(conv *Conversation) (string, error) {
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	if conv.Summary == "" {
		conv.Summary = summarize(conv)
	}

	conv.UpdatedAt = time.Now()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = conv.UpdatedAt
	}

	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return "", err
	}

	if err := util.AtomicWriteFile(s.filePath(conv.ID), data, 0644); err != nil {
		return "", err
	}

	if s.MaxConversations > 0 {
		s.enforceLimit()
	}

	return conv.ID, nil
}

// summarize derives a one-line summary from the first user message.
func summarize(conv *Conversation) string {
	for _, msg := range conv.Messages {
		if msg.Role == RoleUser && msg.Content != "" {
			line := strings.ReplaceAll(msg.Content, "\n", " ")
			line = strings.ReplaceAll(line, "\r", "")
			return util.TruncateRunes(line, 50)
		}
	}
	return "New conversation"
}

// enforceLimit removes the oldest conversations once over the limit.
func (s *Store) enforceLimit() {
	metas, err := s.List()
	if err != nil || len(metas) <= s.MaxConversations {
		return
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].UpdatedAt.Before(metas[j].UpdatedAt)
	})

	excess := len(metas) - s.MaxConversations
	for i := 0; i < excess; i++ {
		_ = s.Delete(metas[i].ID)
	}
}

// Load retrieves a conversation by ID.
func (s *Store) Load(id string) (*Conversation, error) {
	data, err := os.ReadFile(s.filePath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var conv Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// LoadByIndex loads by position in the listing, 0 being the most
// recently updated.
func (s *Store) LoadByIndex(index int) (*Conversation, error) {
	metas, err := s.List()
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(metas) {
		return nil, ErrNotFound
	}
	return s.Load(metas[index].ID)
}

// List returns metadata for all saved conversations, most recently
// updated first. Files that fail to parse are skipped rather than
// failing the listing.
func (s *Store) List() ([]Meta, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Meta{}, nil
		}
		return nil, err
	}

	var metas []Meta
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		conv, err := s.Load(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			continue
		}

		metas = append(metas, Meta{
			ID:           conv.ID,
			Summary:      conv.Summary,
			Model:        conv.Model,
			CreatedAt:    conv.CreatedAt,
			UpdatedAt:    conv.UpdatedAt,
			MessageCount: len(conv.Messages),
			Preview:      conv.Preview(),
		})
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].UpdatedAt.After(metas[j].UpdatedAt)
	})

	return metas, nil
}

// Search returns conversations whose summary or any message content
// contains the query, case-insensitively. An empty query lists
// everything.
func (s *Store) Search(query string) ([]Meta, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}
	if query == "" {
		return all, nil
	}

	query = strings.ToLower(query)
	var results []Meta
	for _, meta := range all {
		if strings.Contains(strings.ToLower(meta.Summary), query) {
			results = append(results, meta)
			continue
		}

		conv, err := s.Load(meta.ID)
		if err != nil {
			continue
		}
		for _, msg := range conv.Messages {
			if strings.Contains(strings.ToLower(msg.Content), query) {
				results = append(results, meta)
				break
			}
		}
	}
	return results, nil
}

// Delete removes a conversation by ID.
func (s *Store) Delete(id string) error {
	if err := os.Remove(s.filePath(id)); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// Clear removes all saved conversations and reports how many were
// deleted.
func (s *Store) Clear() (int, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		if err := os.Remove(filepath.Join(s.Dir, entry.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}

func (s *Store) filePath(id string) string {
	return filepath.Join(s.Dir, id+".json")
}

// =============================================================================
// CONTEXT CLIPPING
// =============================================================================

// Clip returns the newest messages whose cumulative character count
// fits within contextLength. A system message in the first position is
// always kept and its length charged against the budget first. A
// contextLength of 0 or less clips everything except that system
// message.
func Clip(messages []Message, contextLength int) []Message {
	if len(messages) == 0 {
		return nil
	}

	var system *Message
	rest := messages
	if messages[0].Role == RoleSystem {
		system = &messages[0]
		rest = messages[1:]
	}

	budget := contextLength
	if system != nil {
		budget -= util.RuneLen(system.Content)
	}

	// Walk backwards so the newest messages win the budget.
	start := len(rest)
	for i := len(rest) - 1; i >= 0; i-- {
		cost := util.RuneLen(rest[i].Content)
		if cost > budget {
			break
		}
		budget -= cost
		start = i
	}

	kept := make([]Message, 0, len(rest)-start+1)
	if system != nil {
		kept = append(kept, *system)
	}
	kept = append(kept, rest[start:]...)
	return kept
}

