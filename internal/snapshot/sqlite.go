package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/quarryhq/quarry/pkg/models"
)

// SQLiteStore persists snapshots in a local SQLite file, the default
// durable backend.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (and migrates) the snapshot database at path. An
// empty path opens an in-memory database.
func NewSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot db: %w", err)
	}
	// modernc/sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent sub-agents.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS snapshots (
			id         TEXT PRIMARY KEY,
			profile    TEXT NOT NULL DEFAULT '',
			model      TEXT NOT NULL DEFAULT '',
			history    TEXT NOT NULL,
			messages   INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create snapshots table: %w", err)
	}
	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_snapshots_updated ON snapshots(updated_at)`)
	if err != nil {
		return fmt.Errorf("create snapshots index: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Save(ctx context.Context, snap *models.Snapshot) error {
	now := time.Now().UTC()
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = now
	}
	snap.UpdatedAt = now

	history, err := json.Marshal(snap.History)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (id, profile, model, history, messages, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			profile = excluded.profile,
			model = excluded.model,
			history = excluded.history,
			messages = excluded.messages,
			updated_at = excluded.updated_at
	`, snap.ID, snap.Profile, snap.Model, string(history), len(snap.History), snap.CreatedAt, snap.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, id string) (*models.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, profile, model, history, created_at, updated_at
		FROM snapshots WHERE id = ?
	`, id)

	var snap models.Snapshot
	var history string
	err := row.Scan(&snap.ID, &snap.Profile, &snap.Model, &history, &snap.CreatedAt, &snap.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	if err := json.Unmarshal([]byte(history), &snap.History); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return &snap, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Meta, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, profile, model, messages, updated_at
		FROM snapshots ORDER BY updated_at DESC LIMIT ?
	`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var metas []Meta
	for rows.Next() {
		var m Meta
		var updated time.Time
		if err := rows.Scan(&m.ID, &m.Profile, &m.Model, &m.Messages, &updated); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		m.UpdatedAt = updated.UTC().Format(time.RFC3339)
		metas = append(metas, m)
	}
	return metas, rows.Err()
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
