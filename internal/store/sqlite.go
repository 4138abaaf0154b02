package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ZhengWei0000/Shopping-Assistant/internal/domain"
	"github.com/ZhengWei0000/Shopping-Assistant/internal/shared"
)

// SQLiteStore implements CheckpointStore using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	writeMu sync.Mutex // serializes writers to avoid SQLITE_BUSY under WAL
}

// NewSQLite creates a new SQLite-backed checkpoint store.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	db, err := OpenSQLite(dbPath)
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

// OpenSQLite opens a SQLite database with the settings shared by every
// SQLite-backed component.
func OpenSQLite(dbPath string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", sqliteDSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// sqliteDSN applies the pragmas on every pooled connection the driver opens.
func sqliteDSN(dbPath string) string {
	return dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS checkpoints (
		session_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		state TEXT NOT NULL,
		messages_json TEXT NOT NULL,
		pending_json TEXT,
		version INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_checkpoints_updated ON checkpoints(updated_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// Load retrieves the checkpoint for a session.
func (s *SQLiteStore) Load(ctx context.Context, sessionID string) (*domain.Checkpoint, error) {
	query := `
		SELECT session_id, user_id, state, messages_json, pending_json,
		       version, created_at, updated_at
		FROM checkpoints WHERE session_id = ?`

	row := s.db.QueryRowContext(ctx, query, sessionID)

	var cp domain.Checkpoint
	var state, messagesJSON string
	var pendingJSON sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(
		&cp.SessionID, &cp.UserID, &state, &messagesJSON, &pendingJSON,
		&cp.Version, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan checkpoint: %w", err)
	}

	cp.State = domain.SessionState(state)
	cp.CreatedAt = time.UnixMilli(createdAt).UTC()
	cp.UpdatedAt = time.UnixMilli(updatedAt).UTC()

	if err := json.Unmarshal([]byte(messagesJSON), &cp.Messages); err != nil {
		return nil, fmt.Errorf("decode messages for %s: %w", sessionID, err)
	}
	if pendingJSON.Valid && pendingJSON.String != "" {
		var inv domain.ToolInvocation
		if err := json.Unmarshal([]byte(pendingJSON.String), &inv); err != nil {
			return nil, fmt.Errorf("decode pending invocation for %s: %w", sessionID, err)
		}
		cp.Pending = &inv
	}

	return &cp, nil
}

// Save writes the checkpoint using optimistic versioning.
func (s *SQLiteStore) Save(ctx context.Context, cp *domain.Checkpoint) error {
	messagesJSON, pendingJSON, err := encodeCheckpoint(cp)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	now := time.Now().UTC()
	next := cp.Version + 1

	var result sql.Result
	if cp.Version == 0 {
		created := cp.CreatedAt
		if created.IsZero() {
			created = now
		}
		result, err = s.db.ExecContext(ctx, `
			INSERT INTO checkpoints (
				session_id, user_id, state, messages_json, pending_json,
				version, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(session_id) DO NOTHING`,
			cp.SessionID, cp.UserID, string(cp.State), messagesJSON, pendingJSON,
			next, created.UnixMilli(), now.UnixMilli(),
		)
	} else {
		result, err = s.db.ExecContext(ctx, `
			UPDATE checkpoints SET
				user_id = ?, state = ?, messages_json = ?, pending_json = ?,
				version = ?, updated_at = ?
			WHERE session_id = ? AND version = ?`,
			cp.UserID, string(cp.State), messagesJSON, pendingJSON,
			next, now.UnixMilli(),
			cp.SessionID, cp.Version,
		)
	}
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("checkpoint save affected 0 rows", "session_id", cp.SessionID, "version", cp.Version)
		return ErrConflict
	}

	cp.Version = next
	cp.UpdatedAt = now
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	return nil
}

// Delete removes a checkpoint, retrying SQLITE_BUSY with exponential backoff.
func (s *SQLiteStore) Delete(ctx context.Context, sessionID string) error {
	return shared.Retry(ctx, shared.DefaultSQLiteBackoff, shared.IsSQLiteConflictError,
		"delete checkpoint "+sessionID, func() error {
			return s.deleteOnce(ctx, sessionID)
		})
}

func (s *SQLiteStore) deleteOnce(ctx context.Context, sessionID string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}

// CleanupExpired removes checkpoints older than ttl.
func (s *SQLiteStore) CleanupExpired(ctx context.Context, ttl time.Duration) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	threshold := time.Now().Add(-ttl).UnixMilli()
	result, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE updated_at < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("cleanup expired checkpoints: %w", err)
	}
	return result.RowsAffected()
}

func encodeCheckpoint(cp *domain.Checkpoint) (string, any, error) {
	if cp == nil || cp.SessionID == "" {
		return "", nil, errors.New("checkpoint must have a session id")
	}

	messages := cp.Messages
	if messages == nil {
		messages = []domain.Message{}
	}
	messagesJSON, err := json.Marshal(messages)
	if err != nil {
		return "", nil, fmt.Errorf("encode messages: %w", err)
	}

	var pendingJSON any
	if cp.Pending != nil {
		raw, err := json.Marshal(cp.Pending)
		if err != nil {
			return "", nil, fmt.Errorf("encode pending invocation: %w", err)
		}
		pendingJSON = string(raw)
	}
	return string(messagesJSON), pendingJSON, nil
}
