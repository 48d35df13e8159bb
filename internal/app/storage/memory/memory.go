// Package memory is a thread-safe in-memory persistence layer implementing
// the storage interfaces. It is intended for tests and prototyping and
// deliberately keeps the implementation simple.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/meridianlabs/rwa-oracle/internal/app/domain/oracle"
	"github.com/meridianlabs/rwa-oracle/internal/app/storage"
)

// Store holds all oracle state in process memory.
type Store struct {
	mu        sync.RWMutex
	config    *oracle.Config
	assets    []oracle.Asset
	snapshots map[string]map[int64]oracle.Snapshot
}

var _ storage.ConfigStore = (*Store)(nil)
var _ storage.AssetStore = (*Store)(nil)
var _ storage.SnapshotStore = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		snapshots: make(map[string]map[int64]oracle.Snapshot),
	}
}

// ConfigStore implementation ---------------------------------------------------

func (s *Store) GetConfig(_ context.Context) (oracle.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.config == nil {
		return oracle.Config{}, oracle.ErrNotFound
	}
	return *s.config, nil
}

func (s *Store) SetConfig(_ context.Context, cfg oracle.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.config = &cfg
	return nil
}

// AssetStore implementation ----------------------------------------------------

func (s *Store) AppendAssets(_ context.Context, assets []oracle.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.assets = append(s.assets, assets...)
	return nil
}

func (s *Store) ListAssets(_ context.Context) ([]oracle.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]oracle.Asset(nil), s.assets...), nil
}

// SnapshotStore implementation -------------------------------------------------

func (s *Store) PutSnapshot(_ context.Context, snap oracle.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	buckets, ok := s.snapshots[snap.AssetID]
	if !ok {
		buckets = make(map[int64]oracle.Snapshot)
		s.snapshots[snap.AssetID] = buckets
	}
	buckets[snap.Timestamp] = snap
	return nil
}

func (s *Store) GetSnapshot(_ context.Context, assetID string, bucket int64) (oracle.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snapshots[assetID][bucket]
	if !ok {
		return oracle.Snapshot{}, oracle.ErrNotFound
	}
	return snap, nil
}

func (s *Store) ListSnapshots(_ context.Context, assetID string, limit int) ([]oracle.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	buckets := s.snapshots[assetID]
	result := make([]oracle.Snapshot, 0, len(buckets))
	for _, snap := range buckets {
		result = append(result, snap)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp > result[j].Timestamp
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) PruneSnapshots(_ context.Context, assetID string, olderThan int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for bucket := range s.snapshots[assetID] {
		if bucket < olderThan {
			delete(s.snapshots[assetID], bucket)
		}
	}
	return nil
}
