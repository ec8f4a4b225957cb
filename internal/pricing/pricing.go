// Package pricing implements the valuation math for sandglass yield-splitting
// markets: the concentration curve of the PT/YT pool, the implied yield and
// projected end price of the market, the synthetic and pool-implied PT/YT
// prices, and the aggregation of a user's LP holdings into a value.
//
// Every function here is pure. Inputs are decoded on-chain values; nothing is
// fetched, cached or mutated. Values are shopspring/decimal, never float64.
// Prices stored on chain are integers scaled by the
// market's priceBase, and every derived price that crosses that boundary is
// floored to 1/priceBase so results match the program's integer truncation.
package pricing

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// ErrInvariant is returned when inputs violate an arithmetic invariant
// (endTime < startTime, priceBase <= 0, a zero epoch span, ...).
var ErrInvariant = errors.New("pricing: arithmetic invariant violated")

const (
	// DivisionPrecision is the number of fractional digits kept by every
	// non-terminating division.
	DivisionPrecision int32 = 24

	// PowPrecision is the number of fractional digits kept by
	// exponentiation.
	PowPrecision int32 = 24

	// lnPrecision is the precision of ln(x) before it is scaled by the
	// exponent, which can be the number of seconds in a year.
	lnPrecision int32 = PowPrecision + 12
)

var (
	one  = decimal.NewFromInt(1)
	zero = decimal.Zero

	// yearSeconds is 365 days; the program does not account for leap years.
	yearSeconds = decimal.NewFromInt(365 * 24 * 60 * 60)
)

func div(a, b decimal.Decimal) decimal.Decimal {
	return a.DivRound(b, DivisionPrecision)
}

// floorTo truncates x to a multiple of 1/base.
func floorTo(x, base decimal.Decimal) decimal.Decimal {
	return div(x.Mul(base).Floor(), base)
}

// pow returns x^y as exp(y*ln(x)) at fixed precision, whatever the size of y.
func pow(x, y decimal.Decimal) (decimal.Decimal, error) {
	switch {
	case x.IsNegative():
		return zero, fmt.Errorf("%w: %s^%s: negative base", ErrInvariant, x, y)
	case x.IsZero():
		if y.IsPositive() {
			return zero, nil
		}
		return zero, fmt.Errorf("%w: %s^%s: zero base", ErrInvariant, x, y)
	case y.IsZero() || x.Equal(one):
		return one, nil
	}

	ln, err := x.Ln(lnPrecision)
	if err != nil {
		return zero, fmt.Errorf("%w: ln(%s): %v", ErrInvariant, x, err)
	}
	r, err := ln.Mul(y).Round(lnPrecision).ExpTaylor(PowPrecision)
	if err != nil {
		return zero, fmt.Errorf("%w: %s^%s: %v", ErrInvariant, x, y, err)
	}
	return r, nil
}

func fromUint64(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

// Descale converts a raw token amount into whole tokens.
func Descale(amount decimal.Decimal, decimals int32) decimal.Decimal {
	return amount.Shift(-decimals)
}
