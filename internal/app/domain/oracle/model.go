// Package oracle holds the domain model for the yield oracle: the admin-gated
// configuration record, the append-only asset registry entries and the
// time-bucketed price snapshots, together with the fixed-point arithmetic the
// deviation guard is built on.
package oracle

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// MinDecimals and MaxDecimals bound the supported price scale.
	MinDecimals uint32 = 1
	MaxDecimals uint32 = 18

	// MaxAssets caps the registry size.
	MaxAssets = 255
)

// Config is the oracle configuration. It is written once at initialization
// and afterwards mutable only through the admin path.
type Config struct {
	// Admin is the caller identity allowed to mutate state.
	Admin string `json:"admin" yaml:"admin"`
	// BaseSymbol is the base unit all normalized prices are expressed in.
	BaseSymbol string `json:"base_symbol" yaml:"base_symbol"`
	// Decimals is the fixed-point scale of all stored and returned prices.
	Decimals uint32 `json:"decimals" yaml:"decimals"`
	// FxSource is the address of the external FX rate provider.
	FxSource string `json:"fx_source" yaml:"fx_source"`
	// MaxYieldDeviation is the maximum accepted yield change, in percent.
	MaxYieldDeviation decimal.Decimal `json:"max_yield_deviation" yaml:"max_yield_deviation"`
	// Period is the rolling yield window in milliseconds.
	Period int64 `json:"period" yaml:"period"`
	// Resolution is the snapshot bucket width in milliseconds.
	Resolution int64 `json:"resolution" yaml:"resolution"`
}

// Validate checks the configuration invariants shared by initialization and
// updates.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Admin) == "" {
		return fmt.Errorf("%w: admin identity required", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.BaseSymbol) == "" {
		return fmt.Errorf("%w: base symbol required", ErrInvalidConfig)
	}
	if c.Decimals < MinDecimals || c.Decimals > MaxDecimals {
		return fmt.Errorf("%w: decimals %d outside [%d, %d]", ErrInvalidConfig, c.Decimals, MinDecimals, MaxDecimals)
	}
	if c.Resolution <= 0 {
		return fmt.Errorf("%w: resolution must be positive", ErrInvalidConfig)
	}
	if c.Period < c.Resolution {
		return fmt.Errorf("%w: resolution %dms exceeds period %dms", ErrInvalidConfig, c.Resolution, c.Period)
	}
	if c.Period%c.Resolution != 0 {
		return fmt.Errorf("%w: resolution %dms does not divide period %dms", ErrInvalidConfig, c.Resolution, c.Period)
	}
	if c.MaxYieldDeviation.IsNegative() {
		return fmt.Errorf("%w: max yield deviation must be non-negative", ErrInvalidConfig)
	}
	return nil
}

// RetainedBuckets is the ring length of the snapshot history per asset.
func (c Config) RetainedBuckets() int64 {
	return c.Period / c.Resolution
}

// ConfigPatch is a partial configuration update; nil fields stay untouched.
type ConfigPatch struct {
	Admin             *string          `json:"admin"`
	BaseSymbol        *string          `json:"base_symbol"`
	Decimals          *uint32          `json:"decimals"`
	FxSource          *string          `json:"fx_source"`
	MaxYieldDeviation *decimal.Decimal `json:"max_yield_deviation"`
	Period            *int64           `json:"period"`
	Resolution        *int64           `json:"resolution"`
}

// Apply merges the patch into a copy of the configuration.
func (c Config) Apply(p ConfigPatch) Config {
	if p.Admin != nil {
		c.Admin = *p.Admin
	}
	if p.BaseSymbol != nil {
		c.BaseSymbol = *p.BaseSymbol
	}
	if p.Decimals != nil {
		c.Decimals = *p.Decimals
	}
	if p.FxSource != nil {
		c.FxSource = *p.FxSource
	}
	if p.MaxYieldDeviation != nil {
		c.MaxYieldDeviation = *p.MaxYieldDeviation
	}
	if p.Period != nil {
		c.Period = *p.Period
	}
	if p.Resolution != nil {
		c.Resolution = *p.Resolution
	}
	return c
}

// Asset pairs an FX symbol with the identifier of the tokenized asset it
// prices. Registration order is preserved and significant: the first entry is
// conventionally the base pairing.
type Asset struct {
	Symbol string `json:"symbol"`
	ID     string `json:"id"`
}

// Snapshot is one accepted observation: the normalized price for an asset in
// a resolution-aligned bucket, together with the yield recorded when it was
// admitted.
type Snapshot struct {
	AssetID   string          `json:"asset_id"`
	Timestamp int64           `json:"timestamp"`
	Price     decimal.Decimal `json:"price"`
	Yield     decimal.Decimal `json:"yield"`
}

// BucketFor aligns a millisecond timestamp down to its resolution bucket.
func BucketFor(ts, resolution int64) int64 {
	return ts - ts%resolution
}
