package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/higherself-ai/higherself/pkg/observability"
)

// Store owns the session collection and the current-session
// reference. Every mutation is persisted through the repository
// before the call returns. Store is safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	sessions  map[string]*Session
	currentID string
	repo      Repository
}

// NewStore loads the collection from the repository. Sessions from
// older snapshots are migrated to the current schema. When the loaded
// collection is empty a fresh default session is created and becomes
// current.
func NewStore(ctx context.Context, repo Repository) (*Store, error) {
	snap, err := repo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}

	s := &Store{
		sessions: make(map[string]*Session, len(snap.Sessions)),
		repo:     repo,
	}

	for _, sess := range snap.Sessions {
		if sess == nil || sess.ID == "" {
			continue
		}
		sess.normalize()
		s.sessions[sess.ID] = sess
	}

	if _, ok := s.sessions[snap.CurrentID]; ok {
		s.currentID = snap.CurrentID
	} else if first := s.firstLocked(); first != nil {
		s.currentID = first.ID
	}

	if len(s.sessions) == 0 {
		sess := newSession()
		s.sessions[sess.ID] = sess
		s.currentID = sess.ID
	}

	if err := s.saveLocked(ctx); err != nil {
		return nil, err
	}

	observability.SetSessionCount(len(s.sessions))
	return s, nil
}

// Create adds a fresh session and makes it current.
func (s *Store) Create(ctx context.Context) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := newSession()
	s.sessions[sess.ID] = sess
	s.currentID = sess.ID

	if err := s.saveLocked(ctx); err != nil {
		return nil, err
	}

	observability.SetSessionCount(len(s.sessions))
	return sess.Clone(), nil
}

// Select makes the session with the given ID current. Unknown IDs
// are a no-op.
func (s *Store) Select(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return nil
	}
	s.currentID = id
	return s.saveLocked(ctx)
}

// Current returns a copy of the current session, or nil when the
// collection is empty.
func (s *Store) Current() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[s.currentID]
	if !ok {
		return nil
	}
	return sess.Clone()
}

// CurrentID returns the current session ID.
func (s *Store) CurrentID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentID
}

// Get returns a copy of the session with the given ID.
func (s *Store) Get(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess.Clone(), nil
}

// List returns copies of all sessions, pinned first, most recently
// updated next.
func (s *Store) List() []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked()
}

// Search returns sessions whose title or tags contain the query,
// case-insensitively, in List order. An empty query returns all.
func (s *Store) Search(query string) []*Session {
	query = strings.ToLower(strings.TrimSpace(query))
	all := s.List()
	if query == "" {
		return all
	}

	var out []*Session
	for _, sess := range all {
		if strings.Contains(strings.ToLower(sess.Title), query) {
			out = append(out, sess)
			continue
		}
		for _, tag := range sess.Tags {
			if strings.Contains(strings.ToLower(tag), query) {
				out = append(out, sess)
				break
			}
		}
	}
	return out
}

// Delete removes a session. When the current session is deleted the
// first remaining session becomes current; deleting the last session
// creates a fresh one so exactly one session always exists afterward.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return nil
	}
	delete(s.sessions, id)

	if s.currentID == id {
		if first := s.firstLocked(); first != nil {
			s.currentID = first.ID
		} else {
			sess := newSession()
			s.sessions[sess.ID] = sess
			s.currentID = sess.ID
		}
	}

	if err := s.saveLocked(ctx); err != nil {
		return err
	}

	observability.SetSessionCount(len(s.sessions))
	return nil
}

// Rename sets a session title. Titles empty after trimming are a
// no-op, as are unknown IDs.
func (s *Store) Rename(ctx context.Context, id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}

	sess.Title = title
	sess.UpdatedAt = time.Now().UTC()
	return s.saveLocked(ctx)
}

// AddTag adds a tag to a session. Duplicate tags and empty tags are
// no-ops.
func (s *Store) AddTag(ctx context.Context, id, tag string) error {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	if sess.HasTag(tag) {
		return nil
	}

	sess.Tags = append(sess.Tags, tag)
	sess.UpdatedAt = time.Now().UTC()
	return s.saveLocked(ctx)
}

// RemoveTag removes a tag from a session.
func (s *Store) RemoveTag(ctx context.Context, id, tag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}

	for i, t := range sess.Tags {
		if t == tag {
			sess.Tags = append(sess.Tags[:i], sess.Tags[i+1:]...)
			sess.UpdatedAt = time.Now().UTC()
			return s.saveLocked(ctx)
		}
	}
	return nil
}

// SetCategory assigns a session category. Empty categories reset to
// the default.
func (s *Store) SetCategory(ctx context.Context, id, category string) error {
	category = strings.TrimSpace(category)
	if category == "" {
		category = DefaultCategory
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}

	sess.Category = category
	sess.UpdatedAt = time.Now().UTC()
	return s.saveLocked(ctx)
}

// TogglePin flips a session's pinned state.
func (s *Store) TogglePin(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}

	sess.IsPinned = !sess.IsPinned
	sess.UpdatedAt = time.Now().UTC()
	return s.saveLocked(ctx)
}

// AppendMessage appends a message to a session's log. The first user
// message retitles a session still carrying the default placeholder.
func (s *Store) AppendMessage(ctx context.Context, id string, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}

	first := len(sess.Messages) == 0
	sess.Messages = append(sess.Messages, msg)
	sess.UpdatedAt = time.Now().UTC()

	if first && msg.Role == RoleUser && sess.Title == DefaultTitle {
		if title := deriveTitle(msg.Content); title != "" {
			sess.Title = title
		}
	}

	if err := s.saveLocked(ctx); err != nil {
		return err
	}

	observability.RecordMessageAppended(string(msg.Role))
	return nil
}

// Export produces a lossless JSON snapshot of the selected sessions.
// A nil or empty id list exports the whole collection.
func (s *Store) Export(ids []string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sessions []*Session
	if len(ids) == 0 {
		sessions = s.listLocked()
	} else {
		for _, id := range ids {
			if sess, ok := s.sessions[id]; ok {
				sessions = append(sessions, sess.Clone())
			}
		}
	}

	data, err := json.MarshalIndent(sessions, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal sessions: %w", err)
	}
	return data, nil
}

// ExportFilename builds the conventional export file name for the
// given base name and date.
func ExportFilename(name string, t time.Time) string {
	return fmt.Sprintf("%s-%s.json", name, t.Format("2006-01-02"))
}

// Import parses an exported snapshot and appends its sessions to the
// collection. Every imported session and message receives a fresh ID
// to avoid colliding with existing ones. Malformed input yields
// ErrImportParse and leaves the collection untouched.
func (s *Store) Import(ctx context.Context, data []byte) ([]*Session, error) {
	var incoming []*Session
	if err := json.Unmarshal(data, &incoming); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImportParse, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	imported := make([]*Session, 0, len(incoming))
	for _, sess := range incoming {
		if sess == nil {
			continue
		}
		sess.normalize()
		sess.ID = uuid.New().String()
		for i := range sess.Messages {
			sess.Messages[i].ID = uuid.New().String()
		}
		s.sessions[sess.ID] = sess
		imported = append(imported, sess.Clone())
	}

	if len(imported) == 0 {
		return imported, nil
	}

	if err := s.saveLocked(ctx); err != nil {
		return nil, err
	}

	observability.SetSessionCount(len(s.sessions))
	return imported, nil
}

// Count returns the number of stored sessions.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Close persists the final state and releases the repository.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.saveLocked(ctx); err != nil {
		return err
	}
	return s.repo.Close()
}

// listLocked returns clones sorted pinned-first, then by most recent
// update. Caller must hold at least a read lock.
func (s *Store) listLocked() []*Session {
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess.Clone())
	}

	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].IsPinned != sessions[j].IsPinned {
			return sessions[i].IsPinned
		}
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	return sessions
}

// firstLocked returns the first session in List order, or nil.
func (s *Store) firstLocked() *Session {
	var first *Session
	for _, sess := range s.sessions {
		if first == nil {
			first = sess
			continue
		}
		if sess.IsPinned != first.IsPinned {
			if sess.IsPinned {
				first = sess
			}
			continue
		}
		if sess.UpdatedAt.After(first.UpdatedAt) {
			first = sess
		}
	}
	return first
}

// saveLocked persists the current state. Caller must hold the lock.
func (s *Store) saveLocked(ctx context.Context) error {
	snap := &Snapshot{
		Sessions:  make([]*Session, 0, len(s.sessions)),
		CurrentID: s.currentID,
	}
	for _, sess := range s.sessions {
		snap.Sessions = append(snap.Sessions, sess)
	}

	if err := s.repo.Save(ctx, snap); err != nil {
		return fmt.Errorf("save sessions: %w", err)
	}
	return nil
}
