package snapshot

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quarryhq/quarry/pkg/models"
)

// MemoryStore is the in-process snapshot store, used by tests and as
// the fallback when no database is configured.
type MemoryStore struct {
	mu    sync.RWMutex
	snaps map[string]models.Snapshot
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{snaps: map[string]models.Snapshot{}}
}

func (s *MemoryStore) Save(_ context.Context, snap *models.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	if existing, ok := s.snaps[snap.ID]; ok {
		snap.CreatedAt = existing.CreatedAt
	} else if snap.CreatedAt.IsZero() {
		snap.CreatedAt = now
	}
	snap.UpdatedAt = now

	stored := *snap
	stored.History = append([]models.Message(nil), snap.History...)
	s.snaps[snap.ID] = stored
	return nil
}

func (s *MemoryStore) Load(_ context.Context, id string) (*models.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.snaps[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := stored
	out.History = append([]models.Message(nil), stored.History...)
	return &out, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.snaps[id]; !ok {
		return ErrNotFound
	}
	delete(s.snaps, id)
	return nil
}

func (s *MemoryStore) List(_ context.Context, limit int) ([]Meta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	metas := make([]Meta, 0, len(s.snaps))
	for _, snap := range s.snaps {
		metas = append(metas, Meta{
			ID:        snap.ID,
			Profile:   snap.Profile,
			Model:     snap.Model,
			Messages:  len(snap.History),
			UpdatedAt: snap.UpdatedAt.Format(time.RFC3339),
		})
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].UpdatedAt > metas[j].UpdatedAt })
	if n := clampLimit(limit); len(metas) > n {
		metas = metas[:n]
	}
	return metas, nil
}

func (s *MemoryStore) Close() error { return nil }
