package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/sandglass/valuation-engine/internal/model"
)

// Decimals are the token decimal counts used to descale raw amounts.
type Decimals struct {
	PT int32
	YT int32
	LP int32
}

// PositionInput is everything the position aggregator reads.
type PositionInput struct {
	Reserves model.PoolReserves
	Pool     PoolQuote
	Decimals Decimals

	// MarketSolPrice converts pool value into base-asset units and
	// BaseTokenPrice converts those into USD.
	MarketSolPrice decimal.Decimal
	BaseTokenPrice decimal.Decimal

	Holdings model.Holdings
}

// PositionValue is a user's value in one market.
type PositionValue struct {
	PoolValue   decimal.Decimal
	LpUnitValue decimal.Decimal
	Staked      decimal.Decimal
	Unstaked    decimal.Decimal
	Total       decimal.Decimal
	HasStake    bool
	HasWallet   bool
}

// PoolValue returns the value of the pool's PT and YT reserves at pool
// prices, in units of the yield-bearing asset.
func PoolValue(reserves model.PoolReserves, pool PoolQuote, dec Decimals) decimal.Decimal {
	pt := Descale(reserves.PtPoolAmount, dec.PT).Mul(pool.PtPrice)
	yt := Descale(reserves.YtPoolAmount, dec.YT).Mul(pool.YtPrice)
	return pt.Add(yt)
}

// LpUnitValue returns the value of one whole LP token. An LP mint with no
// supply has no value per unit.
func LpUnitValue(poolValue, lpSupply decimal.Decimal, lpDecimals int32) decimal.Decimal {
	supply := Descale(lpSupply, lpDecimals)
	if supply.IsZero() {
		return zero
	}
	return div(poolValue, supply)
}

// AggregatePosition values the user's staked and freely held LP tokens. A
// missing stake account or token account contributes zero and is reported
// through HasStake / HasWallet; holding nothing is a valid zero valuation.
func AggregatePosition(in PositionInput) PositionValue {
	poolValue := PoolValue(in.Reserves, in.Pool, in.Decimals)
	unit := LpUnitValue(poolValue, in.Reserves.LpSupplyAmount, in.Decimals.LP)

	value := func(lpAmount decimal.Decimal) decimal.Decimal {
		return Descale(lpAmount, in.Decimals.LP).
			Mul(unit).
			Mul(in.MarketSolPrice).
			Mul(in.BaseTokenPrice)
	}

	out := PositionValue{
		PoolValue:   poolValue,
		LpUnitValue: unit,
		Staked:      zero,
		Unstaked:    zero,
	}
	if in.Holdings.Stake != nil {
		out.HasStake = true
		out.Staked = value(in.Holdings.Stake.StakedLpAmount)
	}
	if in.Holdings.Wallet != nil {
		out.HasWallet = true
		out.Unstaked = value(in.Holdings.Wallet.FreeLpAmount)
	}
	out.Total = out.Staked.Add(out.Unstaked)
	return out
}
