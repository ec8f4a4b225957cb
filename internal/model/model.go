// Package model defines the core domain types shared across the valuation
// engine. All monetary values use shopspring/decimal, never float64.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketType selects how a market projects its end price.
type MarketType uint8

// MarketTypeEpochCompounding is the only explicitly numbered type; every
// other value is a continuously decaying market.
const MarketTypeEpochCompounding MarketType = 0

// IsEpochCompounding reports whether the market compounds a spot-derived yield.
func (t MarketType) IsEpochCompounding() bool {
	return t == MarketTypeEpochCompounding
}

func (t MarketType) String() string {
	if t.IsEpochCompounding() {
		return "epoch_compounding"
	}
	return "continuous_decay"
}

// Token describes one of a market's four tokens.
type Token struct {
	Symbol   string `json:"symbol" toml:"symbol" db:"symbol"`
	Mint     string `json:"mint" toml:"mint" db:"mint"`
	Decimals int32  `json:"decimals" toml:"decimals" db:"decimals"`
}

// MarketInfo is one entry of the market registry.
type MarketInfo struct {
	MarketAccount string `json:"market_account" toml:"market_account" db:"market_account"`
	Symbol        string `json:"symbol" toml:"symbol" db:"symbol"`
	TokenSY       Token  `json:"token_sy" toml:"token_sy"`
	TokenPT       Token  `json:"token_pt" toml:"token_pt"`
	TokenYT       Token  `json:"token_yt" toml:"token_yt"`
	TokenLP       Token  `json:"token_lp" toml:"token_lp"`

	// Oracle symbols, e.g. "Crypto.TETH/ETH.RR" and "Crypto.ETH/USD".
	// Empty means the market has no feed and prices at zero.
	YieldPriceFeed string `json:"yield_price_feed,omitempty" toml:"yield_price_feed" db:"yield_price_feed"`
	BasePriceFeed  string `json:"base_price_feed,omitempty" toml:"base_price_feed" db:"base_price_feed"`
}

// MarketConfig is the decoded market configuration. Prices are raw integers
// scaled by PriceBase; times are unix seconds.
type MarketConfig struct {
	MarketType        MarketType      `json:"market_type"`
	StartTime         int64           `json:"start_time"`
	EndTime           int64           `json:"end_time"`
	StartPrice        decimal.Decimal `json:"start_price"`
	InitialEndPrice   decimal.Decimal `json:"initial_end_price"`
	MarketAPY         decimal.Decimal `json:"market_apy"`
	MarketSolPrice    decimal.Decimal `json:"market_sol_price"`
	MarketEndPrice    decimal.Decimal `json:"market_end_price"`
	LastUpdateEpoch   uint64          `json:"last_update_epoch"`
	LastUpdateTime    int64           `json:"last_update_time"`
	StartEpoch        uint64          `json:"start_epoch"`
	UpdateSkipTime    int64           `json:"update_skip_time"`
	CompoundingPeriod int64           `json:"compounding_period"`
	PriceBase         decimal.Decimal `json:"price_base"`
}

// PoolConfig bounds the virtual-liquidity interpolation.
type PoolConfig struct {
	InitialConcentration  decimal.Decimal `json:"initial_concentration"`
	MaturityConcentration decimal.Decimal `json:"maturity_concentration"`
}

// ClockSnapshot is read from a single clock sysvar record.
type ClockSnapshot struct {
	EpochStartTimestamp int64  `json:"epoch_start_timestamp"`
	Epoch               uint64 `json:"epoch"`
	UnixTimestamp       int64  `json:"unix_timestamp"`
}

// PoolReserves holds raw (undescaled) token amounts.
type PoolReserves struct {
	PtPoolAmount   decimal.Decimal `json:"pt_pool_amount"`
	YtPoolAmount   decimal.Decimal `json:"yt_pool_amount"`
	LpSupplyAmount decimal.Decimal `json:"lp_supply_amount"`
	PtMintSupply   decimal.Decimal `json:"pt_mint_supply"`
}

// MarketState is everything read from chain for one market at one instant.
type MarketState struct {
	Address   string        `json:"address"`
	LpMint    string        `json:"lp_mint"`
	Config    MarketConfig  `json:"config"`
	Pool      PoolConfig    `json:"pool"`
	Reserves  PoolReserves  `json:"reserves"`
	Clock     ClockSnapshot `json:"clock"`
	FetchedAt time.Time     `json:"fetched_at"`
}

// StakePosition is the user's stake account for a market. A nil
// *StakePosition means the account does not exist.
type StakePosition struct {
	Address        string          `json:"address"`
	StakedLpAmount decimal.Decimal `json:"staked_lp_amount"` // raw
}

// WalletHolding is the user's LP token account. A nil *WalletHolding means
// the account does not exist.
type WalletHolding struct {
	Address      string          `json:"address"`
	FreeLpAmount decimal.Decimal `json:"free_lp_amount"` // raw
}

// Holdings groups a user's optional accounts for one market.
type Holdings struct {
	Stake  *StakePosition
	Wallet *WalletHolding
}

// MarketQuote is the full pricing pipeline output for one market.
type MarketQuote struct {
	Market         string          `json:"market"`
	Symbol         string          `json:"symbol"`
	MarketType     string          `json:"market_type"`
	Concentration  decimal.Decimal `json:"concentration"`
	APY            decimal.Decimal `json:"apy"`
	EndPrice       decimal.Decimal `json:"end_price"`
	MarketSolPrice decimal.Decimal `json:"market_sol_price"`
	PtPrice        decimal.Decimal `json:"pt_price"`
	YtPrice        decimal.Decimal `json:"yt_price"`
	PoolPtPrice    decimal.Decimal `json:"pool_pt_price"`
	PoolYtPrice    decimal.Decimal `json:"pool_yt_price"`
	PoolValue      decimal.Decimal `json:"pool_value"`
	LpUnitValue    decimal.Decimal `json:"lp_unit_value"`
	YieldSpot      decimal.Decimal `json:"yield_spot"`
	BaseTokenPrice decimal.Decimal `json:"base_token_price"`
	Reserves       PoolReserves    `json:"reserves"`
	Clock          ClockSnapshot   `json:"clock"`
	QuotedAt       time.Time       `json:"quoted_at"`
}

// MarketValuation is a user's value in one market.
type MarketValuation struct {
	Market      string          `json:"market"`
	Symbol      string          `json:"symbol"`
	Total       decimal.Decimal `json:"total"`
	Staked      decimal.Decimal `json:"staked"`
	Unstaked    decimal.Decimal `json:"unstaked"`
	HasStake    bool            `json:"has_stake"`
	HasWallet   bool            `json:"has_wallet"`
	LpUnitValue decimal.Decimal `json:"lp_unit_value"`
}

// SkippedMarket records a market that could not be valued.
type SkippedMarket struct {
	Market string `json:"market"`
	Reason string `json:"reason"`
}

// ValuationResult is the user-level valuation across the registry.
type ValuationResult struct {
	ID       string            `json:"id"`
	Address  string            `json:"address"`
	Total    decimal.Decimal   `json:"total"`
	Staked   decimal.Decimal   `json:"staked"`
	Unstaked decimal.Decimal   `json:"unstaked"`
	Markets  []MarketValuation `json:"markets"`
	Skipped  []SkippedMarket   `json:"skipped,omitempty"`
	ValuedAt time.Time         `json:"valued_at"`
}
