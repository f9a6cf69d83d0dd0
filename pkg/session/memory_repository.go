package session

import (
	"context"
	"sync"
)

// MemoryRepository is an in-process Repository. It backs tests and
// deployments that don't need persistence across restarts.
type MemoryRepository struct {
	mu     sync.RWMutex
	snap   *Snapshot
	closed bool
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

// Load retrieves the last saved snapshot.
func (m *MemoryRepository) Load(ctx context.Context) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrRepositoryClosed
	}
	if m.snap == nil {
		return &Snapshot{}, nil
	}
	return cloneSnapshot(m.snap), nil
}

// Save persists the snapshot.
func (m *MemoryRepository) Save(ctx context.Context, snap *Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrRepositoryClosed
	}
	m.snap = cloneSnapshot(snap)
	return nil
}

// Close releases the repository.
func (m *MemoryRepository) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func cloneSnapshot(snap *Snapshot) *Snapshot {
	out := &Snapshot{
		Sessions:  make([]*Session, len(snap.Sessions)),
		CurrentID: snap.CurrentID,
	}
	for i, s := range snap.Sessions {
		out.Sessions[i] = s.Clone()
	}
	return out
}
