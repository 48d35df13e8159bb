package oracle

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Sentinel errors returned by the oracle engine. Every operation aborts on
// the first error with no partial state mutation.
var (
	ErrUnauthorized        = errors.New("caller is not the configured admin")
	ErrAlreadyInitialized  = errors.New("oracle is already initialized")
	ErrInvalidConfig       = errors.New("invalid oracle configuration")
	ErrLengthMismatch      = errors.New("fx symbol and asset id counts differ")
	ErrDuplicateAsset      = errors.New("asset is already registered")
	ErrRegistryFull        = errors.New("asset registry is full")
	ErrNotFound            = errors.New("not found")
	ErrFxUnavailable       = errors.New("fx rate unavailable")
	ErrStaleFxRate         = errors.New("fx rate is stale")
	ErrPriceUnavailable    = errors.New("asset price unavailable")
	ErrInvalidPrice        = errors.New("price must be positive")
	ErrOverflow            = errors.New("arithmetic overflow")
	ErrDeviationExceeded   = errors.New("yield deviation exceeds configured maximum")
	ErrInsufficientHistory = errors.New("insufficient price history")
)

// DeviationError reports a rejected update together with the computed
// deviation and the configured threshold so operators can tell a feed anomaly
// from a misconfigured limit.
type DeviationError struct {
	AssetID   string
	Deviation decimal.Decimal
	Threshold decimal.Decimal
}

func (e *DeviationError) Error() string {
	return fmt.Sprintf("yield deviation %s%% exceeds maximum %s%% for asset %s",
		e.Deviation.String(), e.Threshold.String(), e.AssetID)
}

func (e *DeviationError) Unwrap() error { return ErrDeviationExceeded }
