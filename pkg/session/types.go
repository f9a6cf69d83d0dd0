// Package session provides durable conversation session management.
// Each session owns an append-only message log plus user-facing
// metadata (title, tags, pin state, category). The collection of
// sessions persists across restarts through a pluggable Repository.
package session

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether the role is one of the allowed values.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

const (
	// DefaultTitle is the placeholder title for a fresh session.
	// A session still carrying it is auto-retitled from its first
	// user message.
	DefaultTitle = "New Chat"

	// DefaultCategory is assigned to sessions created without one.
	DefaultCategory = "general"

	// titleMaxRunes bounds auto-derived titles.
	titleMaxRunes = 30
)

// Message is a single conversation entry. Messages are immutable once
// created and append-only within a session.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage creates a message with a fresh ID and current timestamp.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

// Session is one conversation thread.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Tags      []string  `json:"tags"`
	IsPinned  bool      `json:"isPinned"`
	Category  string    `json:"category"`
}

// newSession creates an empty session with defaults applied.
func newSession() *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        uuid.New().String(),
		Title:     DefaultTitle,
		Messages:  []Message{},
		CreatedAt: now,
		UpdatedAt: now,
		Tags:      []string{},
		Category:  DefaultCategory,
	}
}

// normalize fills fields absent from older snapshots with defaults
// and drops message entries with unknown roles. Snapshots written by
// earlier revisions may lack tags, category, or pin state entirely.
func (s *Session) normalize() {
	if s.Title == "" {
		s.Title = DefaultTitle
	}
	kept := s.Messages[:0]
	for _, m := range s.Messages {
		if m.Role.Valid() {
			kept = append(kept, m)
		}
	}
	s.Messages = kept
	if s.Messages == nil {
		s.Messages = []Message{}
	}
	if s.Tags == nil {
		s.Tags = []string{}
	}
	if s.Category == "" {
		s.Category = DefaultCategory
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	if s.UpdatedAt.Before(s.CreatedAt) {
		s.UpdatedAt = s.CreatedAt
	}
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	c := *s
	c.Messages = make([]Message, len(s.Messages))
	copy(c.Messages, s.Messages)
	c.Tags = make([]string, len(s.Tags))
	copy(c.Tags, s.Tags)
	return &c
}

// HasTag reports whether the session carries the given tag.
func (s *Session) HasTag(tag string) bool {
	for _, t := range s.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// deriveTitle builds a session title from the first user message,
// truncated to a bounded length.
func deriveTitle(content string) string {
	content = strings.TrimSpace(content)
	runes := []rune(content)
	if len(runes) > titleMaxRunes {
		return string(runes[:titleMaxRunes]) + "..."
	}
	return content
}

// Snapshot is the serialized form of the whole collection plus the
// current-session reference. Repositories load and save snapshots
// atomically.
type Snapshot struct {
	Sessions  []*Session `json:"sessions"`
	CurrentID string     `json:"currentId"`
}
