package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileRepository implements Repository using JSON files.
// Storage layout:
//
//	<baseDir>/
//	  ├── sessions.json    # Session collection
//	  └── current          # Current session ID
type FileRepository struct {
	baseDir string
	mu      sync.RWMutex
	closed  bool
}

// NewFileRepository creates a file-based repository rooted at baseDir.
// If baseDir is empty, uses ~/.higherself/sessions.
func NewFileRepository(baseDir string) (*FileRepository, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		baseDir = filepath.Join(home, ".higherself", "sessions")
	}

	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("create base directory: %w", err)
	}

	return &FileRepository{baseDir: baseDir}, nil
}

func (f *FileRepository) sessionsPath() string {
	return filepath.Join(f.baseDir, "sessions.json")
}

func (f *FileRepository) currentPath() string {
	return filepath.Join(f.baseDir, "current")
}

// Load retrieves the last saved snapshot. Missing files yield an
// empty snapshot.
func (f *FileRepository) Load(ctx context.Context) (*Snapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return nil, ErrRepositoryClosed
	}

	snap := &Snapshot{}

	data, err := os.ReadFile(f.sessionsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return snap, nil
		}
		return nil, fmt.Errorf("read sessions file: %w", err)
	}

	var sessions []*Session
	if err := json.Unmarshal(data, &sessions); err != nil {
		return nil, fmt.Errorf("parse sessions file: %w", err)
	}
	snap.Sessions = sessions

	current, err := os.ReadFile(f.currentPath())
	if err == nil {
		snap.CurrentID = strings.TrimSpace(string(current))
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read current session file: %w", err)
	}

	return snap, nil
}

// Save persists the snapshot. Session files carry conversation
// history, so they are written user-only.
func (f *FileRepository) Save(ctx context.Context, snap *Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrRepositoryClosed
	}

	data, err := json.MarshalIndent(snap.Sessions, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sessions: %w", err)
	}

	if err := os.WriteFile(f.sessionsPath(), data, 0600); err != nil {
		return fmt.Errorf("write sessions file: %w", err)
	}

	if err := os.WriteFile(f.currentPath(), []byte(snap.CurrentID), 0600); err != nil {
		return fmt.Errorf("write current session file: %w", err)
	}

	return nil
}

// Close releases the repository.
func (f *FileRepository) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
