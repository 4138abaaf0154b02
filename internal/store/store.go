// Package store provides checkpoint persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/containerd/errdefs"

	"github.com/ZhengWei0000/Shopping-Assistant/internal/domain"
)

var (
	// ErrNotFound is returned by Load when no checkpoint exists for the session.
	ErrNotFound = fmt.Errorf("checkpoint not found: %w", errdefs.ErrNotFound)

	// ErrConflict is returned by Save when the stored version no longer matches
	// the version the caller loaded.
	ErrConflict = fmt.Errorf("checkpoint version conflict: %w", errdefs.ErrConflict)
)

// CheckpointStore persists one checkpoint per session.
type CheckpointStore interface {
	// Load returns the checkpoint for sessionID or ErrNotFound.
	Load(ctx context.Context, sessionID string) (*domain.Checkpoint, error)

	// Save writes cp if the stored version still equals cp.Version. A zero
	// version means the checkpoint must not exist yet. On success cp.Version
	// and cp.UpdatedAt are advanced.
	Save(ctx context.Context, cp *domain.Checkpoint) error

	// Delete removes the checkpoint. Deleting a missing checkpoint is not an error.
	Delete(ctx context.Context, sessionID string) error

	// CleanupExpired removes checkpoints not updated within ttl.
	CleanupExpired(ctx context.Context, ttl time.Duration) (int64, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend.
	Close() error
}

// Backend names accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendBolt   = "bolt"
	BackendMemory = "memory"
)

// Open constructs the store selected by backend.
func Open(backend, sqlitePath, boltPath string) (CheckpointStore, error) {
	switch backend {
	case "", BackendSQLite:
		s, err := NewSQLite(sqlitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendBolt:
		b, err := NewBolt(boltPath)
		if err != nil {
			return nil, err
		}
		return b, nil
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown checkpoint backend %q", backend)
	}
}

// IsConflict reports whether err is a version conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
