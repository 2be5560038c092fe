// Package snapshot persists resumable sub-agent transcripts. The core
// treats snapshots as opaque blobs; stores decide the layout.
package snapshot

import (
	"context"
	"errors"

	"github.com/quarryhq/quarry/pkg/models"
)

// ErrNotFound is returned when no snapshot exists for an id.
var ErrNotFound = errors.New("snapshot not found")

// Store persists snapshots. Save is an upsert keyed by snapshot id.
type Store interface {
	Save(ctx context.Context, snap *models.Snapshot) error
	Load(ctx context.Context, id string) (*models.Snapshot, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, limit int) ([]Meta, error)
	Close() error
}

// Meta is the listing view of a snapshot, without its history.
type Meta struct {
	ID        string `json:"id"`
	Profile   string `json:"profile,omitempty"`
	Model     string `json:"model,omitempty"`
	Messages  int    `json:"messages"`
	UpdatedAt string `json:"updated_at"`
}

const defaultListLimit = 50

func clampLimit(limit int) int {
	if limit <= 0 || limit > defaultListLimit {
		return defaultListLimit
	}
	return limit
}
