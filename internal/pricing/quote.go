package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/sandglass/valuation-engine/internal/model"
)

// Quote is the market-level output of the pricing pipeline, independent of
// any user.
type Quote struct {
	Concentration decimal.Decimal
	Yield         YieldQuote
	Synthetic     Synthetic
	Pool          PoolQuote
}

// Evaluate runs the market-level pipeline in order: concentration and yield
// from the snapshot, then synthetic prices from the projected end price, then
// pool prices from the reserves.
func Evaluate(state model.MarketState, yieldSpot decimal.Decimal, wall time.Time) (Quote, error) {
	cfg := state.Config

	yq, err := ResolveYield(YieldInput{
		Config:   cfg,
		Spot:     yieldSpot,
		Clock:    state.Clock,
		WallTime: wall,
	})
	if err != nil {
		return Quote{}, err
	}

	syn, err := SyntheticPrices(cfg.StartPrice, cfg.PriceBase, yq.EndPrice)
	if err != nil {
		return Quote{}, err
	}

	c := Concentration(state.Clock.UnixTimestamp, state.Pool, cfg.StartTime, cfg.EndTime)
	pool := PoolPrices(state.Reserves.PtPoolAmount, state.Reserves.YtPoolAmount, syn, c)

	return Quote{
		Concentration: c,
		Yield:         yq,
		Synthetic:     syn,
		Pool:          pool,
	}, nil
}
