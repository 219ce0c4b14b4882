// Package units converts between on-chain integer token amounts and display
// currency values. All money goes through shopspring/decimal, never float64.
package units

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

var (
	// ErrNegativeDecimals is returned when a token declares fewer than zero decimals.
	ErrNegativeDecimals = errors.New("decimals must be non-negative")
	// ErrNegativeAmount is returned for negative raw or display amounts.
	ErrNegativeAmount = errors.New("amount must be non-negative")
	// ErrNilAmount is returned when a raw amount is nil.
	ErrNilAmount = errors.New("amount is nil")
)

// PrecisionError reports a conversion that would drop fractional raw units.
type PrecisionError struct {
	Amount   decimal.Decimal
	Decimals int
	Dropped  decimal.Decimal // fraction of one raw unit that would be lost
}

func (e *PrecisionError) Error() string {
	return fmt.Sprintf("amount %s cannot be represented with %d decimals (would drop %s raw units)",
		e.Amount.String(), e.Decimals, e.Dropped.String())
}

var hundred = decimal.NewFromInt(100)

// ToDisplayAmount scales a raw on-chain amount down by 10^decimals.
func ToDisplayAmount(raw *big.Int, decimals int) (decimal.Decimal, error) {
	if raw == nil {
		return decimal.Zero, ErrNilAmount
	}
	if decimals < 0 {
		return decimal.Zero, ErrNegativeDecimals
	}
	if raw.Sign() < 0 {
		return decimal.Zero, ErrNegativeAmount
	}
	return decimal.NewFromBigInt(raw, int32(-decimals)), nil
}

// ToRawAmount scales a display amount up by 10^decimals. The result is
// rounded toward zero; any non-zero fraction of a raw unit is a PrecisionError.
func ToRawAmount(amount decimal.Decimal, decimals int) (*big.Int, error) {
	return ToRawAmountWithTolerance(amount, decimals, decimal.Zero)
}

// ToRawAmountWithTolerance is ToRawAmount but silently truncates fractions of a
// raw unit up to tolerance (expressed in raw units, e.g. 0.5).
func ToRawAmountWithTolerance(amount decimal.Decimal, decimals int, tolerance decimal.Decimal) (*big.Int, error) {
	if decimals < 0 {
		return nil, ErrNegativeDecimals
	}
	if amount.IsNegative() {
		return nil, ErrNegativeAmount
	}

	scaled := amount.Shift(int32(decimals))
	whole := scaled.Truncate(0)
	dropped := scaled.Sub(whole)
	if dropped.GreaterThan(tolerance) {
		return nil, &PrecisionError{Amount: amount, Decimals: decimals, Dropped: dropped}
	}
	return whole.BigInt(), nil
}

// CentsToCurrency converts an integer amount of cents into whole currency.
func CentsToCurrency(cents int64) decimal.Decimal {
	return decimal.NewFromInt(cents).Div(hundred)
}

// CentsToRaw converts cents into raw units of a currency token with the given
// decimals (USDC: 6). Tokens with fewer than two decimals must not lose cents.
func CentsToRaw(cents *big.Int, decimals int) (*big.Int, error) {
	if cents == nil {
		return nil, ErrNilAmount
	}
	if cents.Sign() < 0 {
		return nil, ErrNegativeAmount
	}
	return ToRawAmount(decimal.NewFromBigInt(cents, -2), decimals)
}
