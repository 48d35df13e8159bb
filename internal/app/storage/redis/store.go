// Package redis implements the snapshot store on Redis. Each asset keeps a
// hash of bucket to snapshot plus a sorted-set index scored by bucket, so
// window scans and pruning stay O(log n) regardless of history length.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"

	"github.com/meridianlabs/rwa-oracle/internal/app/domain/oracle"
	"github.com/meridianlabs/rwa-oracle/internal/app/storage"
)

// Store persists snapshots in Redis.
type Store struct {
	client *redis.Client
	prefix string
}

var _ storage.SnapshotStore = (*Store)(nil)

// New creates a snapshot store on the provided client. The prefix namespaces
// all keys; empty defaults to "oracle".
func New(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "oracle"
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) hashKey(assetID string) string {
	return s.prefix + ":snap:" + assetID
}

func (s *Store) indexKey(assetID string) string {
	return s.prefix + ":idx:" + assetID
}

func (s *Store) PutSnapshot(ctx context.Context, snap oracle.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	field := strconv.FormatInt(snap.Timestamp, 10)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.hashKey(snap.AssetID), field, payload)
	pipe.ZAdd(ctx, s.indexKey(snap.AssetID), &redis.Z{
		Score:  float64(snap.Timestamp),
		Member: field,
	})
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Store) GetSnapshot(ctx context.Context, assetID string, bucket int64) (oracle.Snapshot, error) {
	payload, err := s.client.HGet(ctx, s.hashKey(assetID), strconv.FormatInt(bucket, 10)).Bytes()
	if err == redis.Nil {
		return oracle.Snapshot{}, oracle.ErrNotFound
	}
	if err != nil {
		return oracle.Snapshot{}, err
	}

	var snap oracle.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return oracle.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

func (s *Store) ListSnapshots(ctx context.Context, assetID string, limit int) ([]oracle.Snapshot, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	fields, err := s.client.ZRevRange(ctx, s.indexKey(assetID), 0, stop).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return []oracle.Snapshot{}, nil
	}

	payloads, err := s.client.HMGet(ctx, s.hashKey(assetID), fields...).Result()
	if err != nil {
		return nil, err
	}

	result := make([]oracle.Snapshot, 0, len(payloads))
	for _, payload := range payloads {
		raw, ok := payload.(string)
		if !ok {
			continue
		}
		var snap oracle.Snapshot
		if err := json.Unmarshal([]byte(raw), &snap); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
		result = append(result, snap)
	}
	return result, nil
}

func (s *Store) PruneSnapshots(ctx context.Context, assetID string, olderThan int64) error {
	max := "(" + strconv.FormatInt(olderThan, 10)
	fields, err := s.client.ZRangeByScore(ctx, s.indexKey(assetID), &redis.ZRangeBy{
		Min: "-inf",
		Max: max,
	}).Result()
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}

	pipe := s.client.TxPipeline()
	pipe.HDel(ctx, s.hashKey(assetID), fields...)
	pipe.ZRemRangeByScore(ctx, s.indexKey(assetID), "-inf", max)
	_, err = pipe.Exec(ctx)
	return err
}
