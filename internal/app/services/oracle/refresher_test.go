package oracle

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/meridianlabs/rwa-oracle/internal/app/domain/oracle"
	"github.com/meridianlabs/rwa-oracle/internal/app/storage/memory"
)

func TestRefresherTicks(t *testing.T) {
	store := memory.New()
	svc := New(store, store, store, discardLogger())
	svc.AttachSources(nil, PriceSourceFunc(func(_ context.Context, _ string) (Observation, error) {
		return Observation{Raw: decimal.NewFromInt(100)}, nil
	}))

	cfg, err := svc.Initialize(context.Background(), domain.Config{
		Admin:             "admin",
		BaseSymbol:        "USD",
		Decimals:          2,
		MaxYieldDeviation: decimal.NewFromInt(1),
		Period:            86400000,
		Resolution:        300000,
	})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if _, err := svc.AddAssets(context.Background(), cfg.Admin, []string{"USD"}, []string{"usd-treasury"}); err != nil {
		t.Fatalf("add asset: %v", err)
	}

	// cron rounds sub-second delays up to one second.
	refresher, err := NewRefresher(svc, "@every 1s", discardLogger())
	if err != nil {
		t.Fatalf("new refresher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := refresher.Start(ctx); err != nil {
		t.Fatalf("start refresher: %v", err)
	}
	// Start is idempotent.
	if err := refresher.Start(ctx); err != nil {
		t.Fatalf("second start: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		snaps, err := svc.Prices(context.Background(), "usd-treasury", 0)
		if err != nil {
			t.Fatalf("list prices: %v", err)
		}
		if len(snaps) > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("refresher never recorded a snapshot")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := refresher.Stop(context.Background()); err != nil {
		t.Fatalf("stop refresher: %v", err)
	}
	// Stop is idempotent too.
	if err := refresher.Stop(context.Background()); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func TestRefresherRejectsBadSchedule(t *testing.T) {
	if _, err := NewRefresher(nil, "not a schedule", discardLogger()); err == nil {
		t.Fatalf("expected schedule parse error")
	}
}
