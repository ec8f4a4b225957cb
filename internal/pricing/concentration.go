package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/sandglass/valuation-engine/internal/model"
)

// Concentration returns the virtual liquidity added to both sides of the
// PT/YT pool at time now. It moves linearly from the initial to the maturity
// concentration over [startTime, endTime]:
//
//	c = initial + (maturity - initial) * (now - start) / (end - start)
//
// A zero maturity concentration disables the curve. From endTime on the
// maturity concentration holds. A zero-length market counts as matured.
func Concentration(now int64, pool model.PoolConfig, startTime, endTime int64) decimal.Decimal {
	if pool.MaturityConcentration.IsZero() {
		return pool.InitialConcentration
	}
	if endTime <= now {
		return pool.MaturityConcentration
	}

	span := endTime - startTime
	if span <= 0 {
		return pool.MaturityConcentration
	}

	delta := pool.MaturityConcentration.Sub(pool.InitialConcentration).
		Mul(decimal.NewFromInt(now - startTime))
	return pool.InitialConcentration.Add(div(delta, decimal.NewFromInt(span)))
}
