package oracle

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// All stored values are fixed-point decimals truncated to the configured
// scale. Magnitudes are bounded to a 127-bit scaled-integer coefficient;
// anything larger fails with ErrOverflow instead of silently widening.
const maxCoefficientBits = 127

var oneHundred = decimal.NewFromInt(100)

// CheckRange verifies the value fits the representable range at the given
// scale.
func CheckRange(d decimal.Decimal, decimals uint32) error {
	if d.Shift(int32(decimals)).BigInt().BitLen() > maxCoefficientBits {
		return fmt.Errorf("%w: %s does not fit %d fractional digits", ErrOverflow, d.String(), decimals)
	}
	return nil
}

// NormalizePrice converts a raw observation into the base unit: multiply by
// the FX rate and truncate (round toward zero) to the configured scale.
func NormalizePrice(raw, rate decimal.Decimal, decimals uint32) (decimal.Decimal, error) {
	product := raw.Mul(rate)
	if err := CheckRange(product, decimals); err != nil {
		return decimal.Decimal{}, err
	}
	return product.Truncate(int32(decimals)), nil
}

// ImpliedYield computes the signed percentage change from reference to
// current, truncated to the configured scale. A zero reference fails closed:
// the ratio is unbounded and must never reach the deviation comparison.
func ImpliedYield(current, reference decimal.Decimal, decimals uint32) (decimal.Decimal, error) {
	if reference.IsZero() {
		return decimal.Decimal{}, fmt.Errorf("%w: reference price is zero", ErrOverflow)
	}
	numerator := current.Sub(reference).Mul(oneHundred)
	if err := CheckRange(numerator, decimals); err != nil {
		return decimal.Decimal{}, err
	}
	quotient, _ := numerator.QuoRem(reference, int32(decimals))
	return quotient, nil
}

// Deviation is the absolute difference between the implied yield and the
// yield recorded on the reference snapshot.
func Deviation(implied, recorded decimal.Decimal) decimal.Decimal {
	return implied.Sub(recorded).Abs()
}
