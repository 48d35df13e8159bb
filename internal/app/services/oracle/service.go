// Package oracle implements the yield oracle engine: admin-gated
// configuration, the append-only asset registry, FX normalization of raw
// observations, the yield deviation guard and the read-only query surface.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/meridianlabs/rwa-oracle/internal/app/domain/oracle"
	"github.com/meridianlabs/rwa-oracle/internal/app/metrics"
	"github.com/meridianlabs/rwa-oracle/internal/app/storage"
	"github.com/meridianlabs/rwa-oracle/pkg/logger"
)

// Service is the oracle engine. Each exported operation executes as a single
// atomic unit: state is read at entry, written at exit, and every error path
// leaves the stores untouched.
type Service struct {
	configs   storage.ConfigStore
	assets    storage.AssetStore
	snapshots storage.SnapshotStore
	rates     RateSource
	prices    PriceSource
	log       *logger.Logger
	now       func() time.Time
}

// New constructs the oracle engine. External sources are attached separately
// so callers can wire fetchers after the configuration is known.
func New(configs storage.ConfigStore, assets storage.AssetStore, snapshots storage.SnapshotStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("oracle")
	}
	return &Service{
		configs:   configs,
		assets:    assets,
		snapshots: snapshots,
		log:       log,
		now:       time.Now,
	}
}

// AttachSources wires the external FX rate and asset price providers.
func (s *Service) AttachSources(rates RateSource, prices PriceSource) {
	s.rates = rates
	s.prices = prices
}

// WithNow overrides the clock. Intended for tests.
func (s *Service) WithNow(now func() time.Time) {
	s.now = now
}

// Configuration -----------------------------------------------------------------

// Initialize persists the configuration exactly once.
func (s *Service) Initialize(ctx context.Context, cfg domain.Config) (domain.Config, error) {
	if _, err := s.configs.GetConfig(ctx); err == nil {
		return domain.Config{}, domain.ErrAlreadyInitialized
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return domain.Config{}, err
	}
	if err := s.configs.SetConfig(ctx, cfg); err != nil {
		return domain.Config{}, err
	}

	s.log.WithField("base", cfg.BaseSymbol).
		WithField("decimals", cfg.Decimals).
		WithField("period_ms", cfg.Period).
		WithField("resolution_ms", cfg.Resolution).
		Info("oracle initialized")
	return cfg, nil
}

// Config returns the current configuration.
func (s *Service) Config(ctx context.Context) (domain.Config, error) {
	return s.configs.GetConfig(ctx)
}

// UpdateConfig applies a partial, admin-authenticated configuration update.
func (s *Service) UpdateConfig(ctx context.Context, caller string, patch domain.ConfigPatch) (domain.Config, error) {
	cfg, err := s.configs.GetConfig(ctx)
	if err != nil {
		return domain.Config{}, err
	}
	if err := s.authorize(cfg, caller); err != nil {
		return domain.Config{}, err
	}

	updated := cfg.Apply(patch)
	if err := updated.Validate(); err != nil {
		return domain.Config{}, err
	}
	if err := s.configs.SetConfig(ctx, updated); err != nil {
		return domain.Config{}, err
	}

	s.log.WithField("admin", updated.Admin).Info("oracle configuration updated")
	return updated, nil
}

// Registry ----------------------------------------------------------------------

// AddAssets registers FX symbol / asset id pairs, all-or-nothing, preserving
// input order. The registry only ever grows.
func (s *Service) AddAssets(ctx context.Context, caller string, symbols, ids []string) ([]domain.Asset, error) {
	cfg, err := s.configs.GetConfig(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(cfg, caller); err != nil {
		return nil, err
	}
	if len(symbols) != len(ids) {
		return nil, fmt.Errorf("%w: %d symbols, %d ids", domain.ErrLengthMismatch, len(symbols), len(ids))
	}

	existing, err := s.assets.ListAssets(ctx)
	if err != nil {
		return nil, err
	}
	if len(existing)+len(symbols) > domain.MaxAssets {
		return nil, fmt.Errorf("%w: capacity %d", domain.ErrRegistryFull, domain.MaxAssets)
	}

	seenSymbols := make(map[string]struct{}, len(existing)+len(symbols))
	seenIDs := make(map[string]struct{}, len(existing)+len(ids))
	for _, asset := range existing {
		seenSymbols[asset.Symbol] = struct{}{}
		seenIDs[asset.ID] = struct{}{}
	}

	batch := make([]domain.Asset, 0, len(symbols))
	for i := range symbols {
		symbol := strings.ToUpper(strings.TrimSpace(symbols[i]))
		id := strings.TrimSpace(ids[i])
		if symbol == "" || id == "" {
			return nil, fmt.Errorf("%w: empty symbol or id at position %d", domain.ErrLengthMismatch, i)
		}
		if _, dup := seenSymbols[symbol]; dup {
			return nil, fmt.Errorf("%w: symbol %s", domain.ErrDuplicateAsset, symbol)
		}
		if _, dup := seenIDs[id]; dup {
			return nil, fmt.Errorf("%w: id %s", domain.ErrDuplicateAsset, id)
		}
		seenSymbols[symbol] = struct{}{}
		seenIDs[id] = struct{}{}
		batch = append(batch, domain.Asset{Symbol: symbol, ID: id})
	}

	if err := s.assets.AppendAssets(ctx, batch); err != nil {
		return nil, err
	}

	s.log.WithField("count", len(batch)).Info("assets registered")
	return batch, nil
}

// ListAssets returns the registry in registration order.
func (s *Service) ListAssets(ctx context.Context) ([]domain.Asset, error) {
	return s.assets.ListAssets(ctx)
}

// Update path -------------------------------------------------------------------

// UpdatePrice runs one observation for the asset through the full pipeline:
// fetch, normalize, guard, commit. On rejection no state is mutated.
func (s *Service) UpdatePrice(ctx context.Context, assetID string) (domain.Snapshot, error) {
	start := s.now()
	snap, err := s.updatePrice(ctx, assetID)
	metrics.RecordPriceUpdate(assetID, updateResult(err), s.now().Sub(start))
	return snap, err
}

func (s *Service) updatePrice(ctx context.Context, assetID string) (domain.Snapshot, error) {
	cfg, err := s.configs.GetConfig(ctx)
	if err != nil {
		return domain.Snapshot{}, err
	}

	asset, err := s.findAsset(ctx, assetID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if s.prices == nil {
		return domain.Snapshot{}, fmt.Errorf("%w: no price source attached", domain.ErrPriceUnavailable)
	}

	obs, err := s.prices.Price(ctx, asset.ID)
	if err != nil {
		if errors.Is(err, domain.ErrPriceUnavailable) {
			return domain.Snapshot{}, err
		}
		return domain.Snapshot{}, fmt.Errorf("%w: %v", domain.ErrPriceUnavailable, err)
	}
	raw := obs.Value()
	if !raw.IsPositive() {
		return domain.Snapshot{}, fmt.Errorf("%w: observed %s for asset %s", domain.ErrInvalidPrice, raw.String(), asset.ID)
	}

	nowMs := s.now().UnixMilli()
	normalized, err := s.normalize(ctx, cfg, asset.Symbol, raw, nowMs)
	if err != nil {
		return domain.Snapshot{}, err
	}

	bucket := domain.BucketFor(nowMs, cfg.Resolution)
	ref, found, err := s.referenceSnapshot(ctx, asset.ID, nowMs, cfg.Period)
	if err != nil {
		return domain.Snapshot{}, err
	}

	snap := domain.Snapshot{
		AssetID:   asset.ID,
		Timestamp: bucket,
		Price:     normalized,
		Yield:     decimal.Zero,
	}

	if found {
		implied, err := domain.ImpliedYield(normalized, ref.Price, cfg.Decimals)
		if err != nil {
			return domain.Snapshot{}, err
		}
		deviation := domain.Deviation(implied, ref.Yield)
		metrics.ObserveDeviation(asset.ID, deviation.InexactFloat64())
		if deviation.GreaterThan(cfg.MaxYieldDeviation) {
			s.log.WithField("asset", asset.ID).
				WithField("deviation", deviation.String()).
				WithField("threshold", cfg.MaxYieldDeviation.String()).
				Warn("price update rejected by deviation guard")
			return domain.Snapshot{}, &domain.DeviationError{
				AssetID:   asset.ID,
				Deviation: deviation,
				Threshold: cfg.MaxYieldDeviation,
			}
		}
		snap.Yield = implied
	}

	if err := s.snapshots.PutSnapshot(ctx, snap); err != nil {
		return domain.Snapshot{}, err
	}
	if err := s.snapshots.PruneSnapshots(ctx, asset.ID, nowMs-cfg.Period); err != nil {
		s.log.WithError(err).WithField("asset", asset.ID).Warn("snapshot prune failed")
	}

	s.log.WithField("asset", asset.ID).
		WithField("bucket", snap.Timestamp).
		WithField("price", snap.Price.String()).
		WithField("yield", snap.Yield.String()).
		Info("price snapshot committed")
	return snap, nil
}

// normalize converts a raw observation into the base unit via the configured
// FX source. Observations already quoted in the base unit skip the external
// call: the conversion rate is exactly one.
func (s *Service) normalize(ctx context.Context, cfg domain.Config, symbol string, raw decimal.Decimal, nowMs int64) (decimal.Decimal, error) {
	if strings.EqualFold(symbol, cfg.BaseSymbol) {
		return domain.NormalizePrice(raw, decimal.NewFromInt(1), cfg.Decimals)
	}
	if s.rates == nil {
		return decimal.Decimal{}, fmt.Errorf("%w: no fx source attached", domain.ErrFxUnavailable)
	}

	rate, err := s.rates.Rate(ctx, cfg.FxSource, symbol)
	if err != nil {
		if errors.Is(err, domain.ErrFxUnavailable) || errors.Is(err, domain.ErrStaleFxRate) {
			return decimal.Decimal{}, err
		}
		return decimal.Decimal{}, fmt.Errorf("%w: %v", domain.ErrFxUnavailable, err)
	}
	if !rate.Value.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("%w: fx rate %s for %s", domain.ErrInvalidPrice, rate.Value.String(), symbol)
	}
	// Rates drifting more than two buckets from the observation time are
	// unusable regardless of what the source claims.
	if !rate.AsOf.IsZero() {
		drift := nowMs - rate.AsOf.UnixMilli()
		if drift < 0 {
			drift = -drift
		}
		if drift > 2*cfg.Resolution {
			return decimal.Decimal{}, fmt.Errorf("%w: rate for %s is %dms away from observation", domain.ErrStaleFxRate, symbol, drift)
		}
	}

	return domain.NormalizePrice(raw, rate.Value, cfg.Decimals)
}

// referenceSnapshot locates the oldest retained snapshot still inside the
// rolling period window. Sparse histories with nothing inside the window are
// reported as not found, which re-seeds the asset.
func (s *Service) referenceSnapshot(ctx context.Context, assetID string, nowMs, period int64) (domain.Snapshot, bool, error) {
	snaps, err := s.snapshots.ListSnapshots(ctx, assetID, 0)
	if err != nil {
		return domain.Snapshot{}, false, err
	}
	cutoff := nowMs - period
	for i := len(snaps) - 1; i >= 0; i-- {
		if snaps[i].Timestamp >= cutoff {
			return snaps[i], true, nil
		}
	}
	return domain.Snapshot{}, false, nil
}

// Queries -----------------------------------------------------------------------

// LastPrice returns the most recent committed snapshot for the asset.
func (s *Service) LastPrice(ctx context.Context, assetID string) (domain.Snapshot, error) {
	snaps, err := s.snapshots.ListSnapshots(ctx, assetID, 1)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if len(snaps) == 0 {
		return domain.Snapshot{}, fmt.Errorf("%w: no snapshots for asset %s", domain.ErrNotFound, assetID)
	}
	return snaps[0], nil
}

// PriceAt returns the snapshot for the bucket containing the timestamp.
func (s *Service) PriceAt(ctx context.Context, assetID string, ts int64) (domain.Snapshot, error) {
	cfg, err := s.configs.GetConfig(ctx)
	if err != nil {
		return domain.Snapshot{}, err
	}
	snap, err := s.snapshots.GetSnapshot(ctx, assetID, domain.BucketFor(ts, cfg.Resolution))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Snapshot{}, fmt.Errorf("%w: asset %s at %d", domain.ErrNotFound, assetID, ts)
		}
		return domain.Snapshot{}, err
	}
	return snap, nil
}

// Prices returns up to count snapshots, newest first.
func (s *Service) Prices(ctx context.Context, assetID string, count int) ([]domain.Snapshot, error) {
	return s.snapshots.ListSnapshots(ctx, assetID, count)
}

// TWAP returns the arithmetic mean of the count most recent normalized
// prices. Shorter histories fail rather than silently averaging partial
// data.
func (s *Service) TWAP(ctx context.Context, assetID string, count int) (decimal.Decimal, error) {
	if count <= 0 {
		return decimal.Decimal{}, fmt.Errorf("%w: count must be positive", domain.ErrInsufficientHistory)
	}
	cfg, err := s.configs.GetConfig(ctx)
	if err != nil {
		return decimal.Decimal{}, err
	}
	snaps, err := s.snapshots.ListSnapshots(ctx, assetID, count)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if len(snaps) < count {
		return decimal.Decimal{}, fmt.Errorf("%w: have %d of %d snapshots for asset %s",
			domain.ErrInsufficientHistory, len(snaps), count, assetID)
	}

	sum := decimal.Zero
	for _, snap := range snaps {
		sum = sum.Add(snap.Price)
	}
	if err := domain.CheckRange(sum, cfg.Decimals); err != nil {
		return decimal.Decimal{}, err
	}
	mean, _ := sum.QuoRem(decimal.NewFromInt(int64(count)), int32(cfg.Decimals))
	return mean, nil
}

// Base returns the configured base unit symbol.
func (s *Service) Base(ctx context.Context) (string, error) {
	cfg, err := s.configs.GetConfig(ctx)
	if err != nil {
		return "", err
	}
	return cfg.BaseSymbol, nil
}

// Decimals returns the configured fixed-point scale.
func (s *Service) Decimals(ctx context.Context) (uint32, error) {
	cfg, err := s.configs.GetConfig(ctx)
	if err != nil {
		return 0, err
	}
	return cfg.Decimals, nil
}

// Resolution returns the snapshot bucket width in milliseconds.
func (s *Service) Resolution(ctx context.Context) (int64, error) {
	cfg, err := s.configs.GetConfig(ctx)
	if err != nil {
		return 0, err
	}
	return cfg.Resolution, nil
}

// Helpers -----------------------------------------------------------------------

func (s *Service) authorize(cfg domain.Config, caller string) error {
	if strings.TrimSpace(caller) == "" || caller != cfg.Admin {
		return domain.ErrUnauthorized
	}
	return nil
}

func (s *Service) findAsset(ctx context.Context, assetID string) (domain.Asset, error) {
	assets, err := s.assets.ListAssets(ctx)
	if err != nil {
		return domain.Asset{}, err
	}
	for _, asset := range assets {
		if asset.ID == assetID {
			return asset, nil
		}
	}
	return domain.Asset{}, fmt.Errorf("%w: asset %s is not registered", domain.ErrNotFound, assetID)
}

func updateResult(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, domain.ErrDeviationExceeded):
		return "rejected"
	default:
		return "error"
	}
}
