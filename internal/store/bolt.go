package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/ZhengWei0000/Shopping-Assistant/internal/domain"
)

var checkpointsBucket = []byte("checkpoints")

// BoltStore implements CheckpointStore on an embedded bbolt file. Each
// checkpoint is one JSON value keyed by session id.
type BoltStore struct {
	db *bolt.DB
}

// NewBolt opens (or creates) the bbolt file at path.
func NewBolt(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create bolt directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(checkpointsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Load retrieves the checkpoint for a session.
func (s *BoltStore) Load(_ context.Context, sessionID string) (*domain.Checkpoint, error) {
	var cp *domain.Checkpoint
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(checkpointsBucket).Get([]byte(sessionID))
		if v == nil {
			return ErrNotFound
		}
		var decoded domain.Checkpoint
		if err := json.Unmarshal(v, &decoded); err != nil {
			return fmt.Errorf("decode checkpoint %s: %w", sessionID, err)
		}
		cp = &decoded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cp, nil
}

// Save writes the checkpoint inside one update transaction, comparing the
// stored version first.
func (s *BoltStore) Save(_ context.Context, cp *domain.Checkpoint) error {
	if cp == nil || cp.SessionID == "" {
		return errors.New("checkpoint must have a session id")
	}

	now := time.Now().UTC()
	next := *cp
	next.Version = cp.Version + 1
	next.UpdatedAt = now
	if next.CreatedAt.IsZero() {
		next.CreatedAt = now
	}
	if next.Messages == nil {
		next.Messages = []domain.Message{}
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(checkpointsBucket)
		key := []byte(cp.SessionID)

		var stored int64
		if v := b.Get(key); v != nil {
			var head struct {
				Version int64 `json:"version"`
			}
			if err := json.Unmarshal(v, &head); err != nil {
				return fmt.Errorf("decode stored version: %w", err)
			}
			stored = head.Version
		}
		if stored != cp.Version {
			return ErrConflict
		}

		enc, err := json.Marshal(&next)
		if err != nil {
			return fmt.Errorf("encode checkpoint: %w", err)
		}
		return b.Put(key, enc)
	})
	if err != nil {
		return err
	}

	cp.Version = next.Version
	cp.UpdatedAt = next.UpdatedAt
	cp.CreatedAt = next.CreatedAt
	return nil
}

// Delete removes a checkpoint.
func (s *BoltStore) Delete(_ context.Context, sessionID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(checkpointsBucket).Delete([]byte(sessionID))
	})
}

// CleanupExpired removes checkpoints older than ttl.
func (s *BoltStore) CleanupExpired(_ context.Context, ttl time.Duration) (int64, error) {
	threshold := time.Now().Add(-ttl)
	var removed int64

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(checkpointsBucket)
		var expired [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var head struct {
				UpdatedAt time.Time `json:"updated_at"`
			}
			if err := json.Unmarshal(v, &head); err != nil {
				// Malformed entries are unrecoverable; drop them with the expired ones.
				expired = append(expired, append([]byte(nil), k...))
				return nil
			}
			if head.UpdatedAt.Before(threshold) {
				expired = append(expired, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range expired {
			if err := b.Delete(k); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("cleanup expired checkpoints: %w", err)
	}
	return removed, nil
}

// Ping verifies the bolt file is still open.
func (s *BoltStore) Ping(_ context.Context) error {
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(checkpointsBucket) == nil {
			return errors.New("checkpoints bucket missing")
		}
		return nil
	})
}

// Close closes the bolt file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
