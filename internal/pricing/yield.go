package pricing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sandglass/valuation-engine/internal/model"
)

// YieldInput is everything the yield resolver reads.
type YieldInput struct {
	Config model.MarketConfig

	// Spot is the live price of the yield-bearing asset in units of the
	// market's base asset (e.g. tETH/ETH).
	Spot decimal.Decimal

	// Clock is the chain clock; its UnixTimestamp is the "now" of every
	// time-based formula.
	Clock model.ClockSnapshot

	// WallTime decides whether an epoch-compounding market is still live.
	WallTime time.Time
}

// YieldQuote is the market's implied yield and projected end price. APY,
// EndPrice and SolPrice are descaled (not multiplied by priceBase).
type YieldQuote struct {
	APY      decimal.Decimal `json:"apy"`
	EndPrice decimal.Decimal `json:"end_price"`
	SolPrice decimal.Decimal `json:"sol_price"`

	// Refreshed is true when the stored projection was replaced by one
	// derived from the live spot price.
	Refreshed bool `json:"refreshed"`
}

// ResolveYield computes the implied APY, the projected end price and the
// market sol price for the market described by in.Config.
func ResolveYield(in YieldInput) (YieldQuote, error) {
	s, err := ScheduleOf(in.Config)
	if err != nil {
		return YieldQuote{}, err
	}

	switch s := s.(type) {
	case EpochCompounding:
		return s.Resolve(in.Spot, in.Clock, in.WallTime)
	case ContinuousDecay:
		return s.Resolve(in.Clock.UnixTimestamp), nil
	default:
		return YieldQuote{}, fmt.Errorf("%w: unknown schedule %T", ErrInvariant, s)
	}
}

// Resolve starts from the projection stored in the market and replaces it
// with one derived from spot when the market is live, the stored sol price
// is behind spot and an update is due. Updates are due at most once per
// UpdateSkipTime, measured from the last update (time-driven) or from the
// start of the current epoch (epoch-driven).
func (e EpochCompounding) Resolve(spot decimal.Decimal, clock model.ClockSnapshot, wall time.Time) (YieldQuote, error) {
	pb := e.PriceBase
	q := YieldQuote{
		APY:      div(e.MarketAPY, pb),
		SolPrice: div(e.MarketSolPrice, pb),
		EndPrice: div(e.MarketEndPrice, pb),
	}

	if !wall.Before(time.Unix(e.EndTime, 0)) || !q.SolPrice.LessThan(spot) {
		return q, nil
	}

	marketTime := decimal.NewFromInt(e.EndTime - e.StartTime)
	now := clock.UnixTimestamp

	var epochCount, yearEpoch, marketEpoch decimal.Decimal
	if e.CompoundingPeriod == 0 {
		if now > clock.EpochStartTimestamp+e.UpdateSkipTime && clock.Epoch >= e.LastUpdateEpoch {
			epochCount = fromUint64(clock.Epoch).Sub(fromUint64(e.StartEpoch))
			if !epochCount.IsPositive() {
				return q, nil
			}
			span := clock.EpochStartTimestamp - e.StartTime
			if span <= 0 {
				return YieldQuote{}, fmt.Errorf("%w: epoch start %d not after market start %d",
					ErrInvariant, clock.EpochStartTimestamp, e.StartTime)
			}
			spanD := decimal.NewFromInt(span)
			yearEpoch = div(yearSeconds, spanD).Mul(epochCount)
			marketEpoch = div(epochCount.Mul(marketTime), spanD)
		}
	} else {
		if now > e.LastUpdateTime+e.UpdateSkipTime {
			period := decimal.NewFromInt(e.CompoundingPeriod)
			epochCount = div(decimal.NewFromInt(now-e.StartTime), period)
			yearEpoch = div(yearSeconds, period)
			marketEpoch = div(marketTime, period)
		}
	}

	if !epochCount.IsPositive() {
		return q, nil
	}
	if !e.StartPrice.IsPositive() {
		return YieldQuote{}, fmt.Errorf("%w: start price %s must be positive", ErrInvariant, e.StartPrice)
	}

	// Per-period growth of the asset since the market start.
	scaledSpot := spot.Mul(pb).Floor()
	growth, err := pow(div(scaledSpot, e.StartPrice), div(one, epochCount))
	if err != nil {
		return YieldQuote{}, err
	}

	yearly, err := pow(growth, yearEpoch)
	if err != nil {
		return YieldQuote{}, err
	}
	toEnd, err := pow(growth, marketEpoch)
	if err != nil {
		return YieldQuote{}, err
	}

	return YieldQuote{
		APY:       floorTo(yearly.Sub(one), pb),
		SolPrice:  spot,
		EndPrice:  floorTo(toEnd.Mul(div(e.StartPrice, pb)), pb),
		Refreshed: true,
	}, nil
}

// Resolve interpolates the end price at time now. Decay markets carry no
// spot-derived yield: APY is 0 and the sol price is 1. From maturity on the
// end price equals the start price.
func (c ContinuousDecay) Resolve(now int64) YieldQuote {
	pb := c.PriceBase
	q := YieldQuote{
		APY:      zero,
		SolPrice: one,
		EndPrice: floorTo(div(c.StartPrice, pb), pb),
	}

	elapsed := now - c.StartTime
	marketTime := c.EndTime - c.StartTime
	if marketTime <= 0 || elapsed > marketTime {
		// Descaled like every other branch, not the raw stored startPrice.
		return q
	}

	delta := c.InitialEndPrice.Sub(c.StartPrice)
	raw := c.InitialEndPrice.Sub(div(delta.Mul(decimal.NewFromInt(elapsed)), decimal.NewFromInt(marketTime)))
	q.EndPrice = floorTo(div(raw, pb), pb)
	return q
}
