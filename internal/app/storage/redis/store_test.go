package redis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"

	"github.com/meridianlabs/rwa-oracle/internal/app/domain/oracle"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set; skipping redis integration test")
	}

	client := goredis.NewClient(&goredis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not reachable at %s: %v", addr, err)
	}

	prefix := fmt.Sprintf("oracle-test-%d", time.Now().UnixNano())
	return New(client, prefix)
}

func TestSnapshotRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	put := func(bucket int64, price string) {
		t.Helper()
		p, _ := decimal.NewFromString(price)
		err := store.PutSnapshot(ctx, oracle.Snapshot{AssetID: "bond", Timestamp: bucket, Price: p})
		if err != nil {
			t.Fatalf("put snapshot: %v", err)
		}
	}

	put(300000, "100")
	put(600000, "101")
	put(600000, "102")
	put(900000, "103")

	snap, err := store.GetSnapshot(ctx, "bond", 600000)
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	if !snap.Price.Equal(decimal.NewFromInt(102)) {
		t.Fatalf("expected overwrite to win, got %s", snap.Price)
	}

	if _, err := store.GetSnapshot(ctx, "bond", 450000); !errors.Is(err, oracle.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	snaps, err := store.ListSnapshots(ctx, "bond", 2)
	if err != nil {
		t.Fatalf("list snapshots: %v", err)
	}
	if len(snaps) != 2 || snaps[0].Timestamp != 900000 || snaps[1].Timestamp != 600000 {
		t.Fatalf("expected newest-first limit 2, got %#v", snaps)
	}

	if err := store.PruneSnapshots(ctx, "bond", 600000); err != nil {
		t.Fatalf("prune: %v", err)
	}
	if _, err := store.GetSnapshot(ctx, "bond", 300000); !errors.Is(err, oracle.ErrNotFound) {
		t.Fatalf("expected pruned bucket gone, got %v", err)
	}
	if _, err := store.GetSnapshot(ctx, "bond", 600000); err != nil {
		t.Fatalf("cutoff bucket should survive prune: %v", err)
	}
}

func TestListSnapshotsEmpty(t *testing.T) {
	store := newTestStore(t)

	snaps, err := store.ListSnapshots(context.Background(), "missing", 5)
	if err != nil {
		t.Fatalf("list snapshots: %v", err)
	}
	if len(snaps) != 0 {
		t.Fatalf("expected empty history, got %d", len(snaps))
	}
}
