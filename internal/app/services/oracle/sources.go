package oracle

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Rate is a conversion rate from an FX symbol to the base unit, as supplied
// by the external FX source.
type Rate struct {
	Value decimal.Decimal
	AsOf  time.Time
}

// RateSource supplies conversion rates. The source address comes from the
// oracle configuration so admin updates take effect without a restart.
type RateSource interface {
	Rate(ctx context.Context, source, symbol string) (Rate, error)
}

// RateSourceFunc adapts a function to the RateSource interface.
type RateSourceFunc func(ctx context.Context, source, symbol string) (Rate, error)

func (f RateSourceFunc) Rate(ctx context.Context, source, symbol string) (Rate, error) {
	return f(ctx, source, symbol)
}

// Observation is a raw price reading from the external asset price source:
// an integer-scaled value plus the scale it was reported at.
type Observation struct {
	Raw      decimal.Decimal
	Decimals uint32
	AsOf     time.Time
}

// Value returns the observation rescaled to a plain decimal price.
func (o Observation) Value() decimal.Decimal {
	return o.Raw.Shift(-int32(o.Decimals))
}

// PriceSource supplies raw prices for registered assets.
type PriceSource interface {
	Price(ctx context.Context, assetID string) (Observation, error)
}

// PriceSourceFunc adapts a function to the PriceSource interface.
type PriceSourceFunc func(ctx context.Context, assetID string) (Observation, error)

func (f PriceSourceFunc) Price(ctx context.Context, assetID string) (Observation, error) {
	return f(ctx, assetID)
}
