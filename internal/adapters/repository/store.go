// Package repository keeps the last successfully fetched status log so the
// timeline can be shown, marked stale, when the collaborator is down.
package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/okian/eldlog/internal/domain/model"
	"github.com/okian/eldlog/pkg/logger"
	"github.com/okian/eldlog/pkg/metrics"
)

const defaultKey = "default"

// Snapshot is a saved status log.
type Snapshot struct {
	TripID  string            `json:"trip_id"`
	Records []model.RawRecord `json:"records"`
	SavedAt time.Time         `json:"saved_at"`
}

// Store persists one snapshot per key.
type Store interface {
	// Save replaces the snapshot under key. SavedAt is stamped by the store.
	Save(ctx context.Context, key string, snap Snapshot) error

	// Load returns the snapshot under key or ErrNotFound.
	Load(ctx context.Context, key string) (Snapshot, error)

	// Close releases resources.
	Close() error
}

// Key returns the store key for a trip; an empty trip maps to a shared key.
func Key(tripID string) string {
	tripID = strings.TrimSpace(tripID)
	if tripID == "" {
		return defaultKey
	}
	return tripID
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu    sync.RWMutex
	snaps map[string]Snapshot
	opts  storeOptions
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		snaps: make(map[string]Snapshot),
		opts:  applyOptions("memory-store", opts),
	}
}

// Save stores a copy of snap.
func (s *MemoryStore) Save(ctx context.Context, key string, snap Snapshot) error {
	start := time.Now()
	defer func() { metrics.RecordStoreLatency("save", float64(time.Since(start).Microseconds())/1000) }()

	snap.Records = cloneRecords(snap.Records)
	snap.SavedAt = s.opts.now()

	s.mu.Lock()
	s.snaps[key] = snap
	s.mu.Unlock()

	s.opts.logger.Debug(ctx, "snapshot saved", logger.String("key", key), logger.Int("records", len(snap.Records)))
	return nil
}

// Load returns a copy of the snapshot under key.
func (s *MemoryStore) Load(_ context.Context, key string) (Snapshot, error) {
	start := time.Now()
	defer func() { metrics.RecordStoreLatency("load", float64(time.Since(start).Microseconds())/1000) }()

	s.mu.RLock()
	snap, ok := s.snaps[key]
	s.mu.RUnlock()
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	snap.Records = cloneRecords(snap.Records)
	return snap, nil
}

// Len returns the number of stored snapshots.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snaps)
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

func cloneRecords(in []model.RawRecord) []model.RawRecord {
	out := make([]model.RawRecord, len(in))
	copy(out, in)
	for i := range out {
		if out[i].DurationHours != nil {
			h := *out[i].DurationHours
			out[i].DurationHours = &h
		}
	}
	return out
}
