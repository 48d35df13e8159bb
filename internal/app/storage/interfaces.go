// Package storage defines the persistence interfaces for the oracle state.
// Implementations must provide atomic single-writer semantics per call; the
// engine relies on that guarantee instead of internal locking.
package storage

import (
	"context"

	"github.com/meridianlabs/rwa-oracle/internal/app/domain/oracle"
)

// ConfigStore persists the single oracle configuration record.
type ConfigStore interface {
	// GetConfig returns the configuration, or oracle.ErrNotFound when the
	// oracle has never been initialized.
	GetConfig(ctx context.Context) (oracle.Config, error)
	// SetConfig writes the full configuration record atomically.
	SetConfig(ctx context.Context, cfg oracle.Config) error
}

// AssetStore persists the ordered, append-only asset registry.
type AssetStore interface {
	// AppendAssets appends all entries in input order, all-or-nothing.
	AppendAssets(ctx context.Context, assets []oracle.Asset) error
	// ListAssets returns entries in registration order.
	ListAssets(ctx context.Context) ([]oracle.Asset, error)
}

// SnapshotStore persists the time-bucketed price history. Timestamps are
// resolution-aligned by the engine before they reach the store; within a
// bucket the last write wins.
type SnapshotStore interface {
	PutSnapshot(ctx context.Context, snap oracle.Snapshot) error
	// GetSnapshot returns the snapshot at the exact bucket timestamp, or
	// oracle.ErrNotFound.
	GetSnapshot(ctx context.Context, assetID string, bucket int64) (oracle.Snapshot, error)
	// ListSnapshots returns up to limit snapshots in descending time order.
	// A limit <= 0 means no limit. An empty history is not an error.
	ListSnapshots(ctx context.Context, assetID string, limit int) ([]oracle.Snapshot, error)
	// PruneSnapshots drops buckets strictly older than the cutoff.
	PruneSnapshots(ctx context.Context, assetID string, olderThan int64) error
}
