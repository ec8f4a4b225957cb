// Package chain reads sandglass market state from the ledger: it derives the
// user's account addresses, fetches raw accounts over RPC and decodes them
// into the model types consumed by the pricing package.
package chain

import (
	"crypto/sha256"

	"github.com/gagliardetto/solana-go"
)

// Anchor account discriminators: sha256("account:<Name>")[:8].
var (
	MarketDiscriminator    = accountDiscriminator("Market")
	SandglassDiscriminator = accountDiscriminator("SandglassAccount")
)

func accountDiscriminator(name string) [8]byte {
	sum := sha256.Sum256([]byte("account:" + name))
	var out [8]byte
	copy(out[:], sum[:8])
	return out
}

// MarketAccount is the Borsh layout of the program's market account.
type MarketAccount struct {
	Discriminator [8]byte

	TokenSyMintAddress solana.PublicKey
	TokenPtMintAddress solana.PublicKey
	TokenYtMintAddress solana.PublicKey
	TokenLpMintAddress solana.PublicKey
	PoolPtTokenAccount solana.PublicKey
	PoolYtTokenAccount solana.PublicKey

	MarketConfig MarketConfigLayout
	PoolConfig   PoolConfigLayout
}

// MarketConfigLayout mirrors the on-chain market_config struct.
type MarketConfigLayout struct {
	MarketType        uint8
	StartTime         int64
	EndTime           int64
	StartPrice        uint64
	InitialEndPrice   uint64
	MarketApy         uint64
	MarketSolPrice    uint64
	MarketEndPrice    uint64
	LastUpdateEpoch   uint64
	LastUpdateTime    int64
	StartEpoch        uint64
	UpdateSkipTime    int64
	CompoundingPeriod int64
	PriceBase         uint64
}

// PoolConfigLayout mirrors the on-chain pool_config struct.
type PoolConfigLayout struct {
	InitialConcentration  uint64
	MaturityConcentration uint64
}

// SandglassAccount is the per-user position account, derived from
// (market, user) under the sandglass program.
type SandglassAccount struct {
	Discriminator [8]byte
	Market        solana.PublicKey
	Owner         solana.PublicKey
	StakeInfo     StakeInfoLayout
}

// StakeInfoLayout mirrors the on-chain stake_info struct.
type StakeInfoLayout struct {
	StakeLpAmount uint64
	StakePtAmount uint64
	StakeYtAmount uint64
}

// ClockLayout is the clock sysvar. Only EpochStartTimestamp, Epoch and
// UnixTimestamp are read.
type ClockLayout struct {
	Slot                uint64
	EpochStartTimestamp int64
	Epoch               uint64
	LeaderScheduleEpoch uint64
	UnixTimestamp       int64
}

// ClockSize is the encoded size of the clock sysvar.
const ClockSize = 40
