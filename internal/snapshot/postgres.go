package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq" // postgres driver

	"github.com/quarryhq/quarry/pkg/models"
)

// PostgresStore persists snapshots in Postgres, selected by
// QUARRY_SNAPSHOT_DSN.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres connects using the given DSN and migrates the schema.
func NewPostgres(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &PostgresStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresFromDB wraps an existing connection without migrating;
// used by tests with a mocked driver.
func NewPostgresFromDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS snapshots (
			id         TEXT PRIMARY KEY,
			profile    TEXT NOT NULL DEFAULT '',
			model      TEXT NOT NULL DEFAULT '',
			history    JSONB NOT NULL,
			messages   INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create snapshots table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, snap *models.Snapshot) error {
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
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			profile = EXCLUDED.profile,
			model = EXCLUDED.model,
			history = EXCLUDED.history,
			messages = EXCLUDED.messages,
			updated_at = EXCLUDED.updated_at
	`, snap.ID, snap.Profile, snap.Model, string(history), len(snap.History), snap.CreatedAt, snap.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, id string) (*models.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, profile, model, history, created_at, updated_at
		FROM snapshots WHERE id = $1
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

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, limit int) ([]Meta, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, profile, model, messages, updated_at
		FROM snapshots ORDER BY updated_at DESC LIMIT $1
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

func (s *PostgresStore) Close() error { return s.db.Close() }
