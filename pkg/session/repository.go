package session

import (
	"context"
	"errors"
)

// Common errors for storage operations.
var (
	// ErrSessionNotFound is returned when a session doesn't exist.
	ErrSessionNotFound = errors.New("session not found")
	// ErrRepositoryClosed is returned when operating on a closed repository.
	ErrRepositoryClosed = errors.New("session repository is closed")
	// ErrImportParse is returned when an import payload cannot be parsed.
	ErrImportParse = errors.New("malformed session import")
)

// Repository abstracts durable persistence of the session collection.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Load retrieves the last saved snapshot. A repository with no
	// saved state returns an empty snapshot, not an error.
	Load(ctx context.Context) (*Snapshot, error)

	// Save persists the snapshot, replacing any previous state.
	Save(ctx context.Context, snap *Snapshot) error

	// Close releases any resources held by the repository.
	Close() error
}
