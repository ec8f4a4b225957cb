package chain

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/shopspring/decimal"

	"github.com/sandglass/valuation-engine/internal/model"
)

var (
	// ErrDecode is returned when account bytes do not match the expected layout.
	ErrDecode = errors.New("chain: account data does not match layout")

	// ErrMissingAccount is returned when a required account does not exist.
	ErrMissingAccount = errors.New("chain: required account missing")
)

const (
	mintSize         = 82
	tokenAccountSize = 165
)

// DecodeMarket decodes a market account.
func DecodeMarket(data []byte) (*MarketAccount, error) {
	if len(data) < 8 || !bytes.Equal(data[:8], MarketDiscriminator[:]) {
		return nil, fmt.Errorf("%w: market discriminator mismatch", ErrDecode)
	}
	var acc MarketAccount
	if err := bin.NewBorshDecoder(data).Decode(&acc); err != nil {
		return nil, fmt.Errorf("%w: market: %v", ErrDecode, err)
	}
	return &acc, nil
}

// DecodeSandglass decodes a user position account.
func DecodeSandglass(data []byte) (*SandglassAccount, error) {
	if len(data) < 8 || !bytes.Equal(data[:8], SandglassDiscriminator[:]) {
		return nil, fmt.Errorf("%w: sandglass account discriminator mismatch", ErrDecode)
	}
	var acc SandglassAccount
	if err := bin.NewBorshDecoder(data).Decode(&acc); err != nil {
		return nil, fmt.Errorf("%w: sandglass account: %v", ErrDecode, err)
	}
	return &acc, nil
}

// DecodeMintSupply returns the supply of an SPL (or Token-2022) mint.
func DecodeMintSupply(data []byte) (decimal.Decimal, error) {
	if len(data) < mintSize {
		return decimal.Zero, fmt.Errorf("%w: mint is %d bytes, need %d", ErrDecode, len(data), mintSize)
	}
	var mint token.Mint
	if err := bin.NewBinDecoder(data).Decode(&mint); err != nil {
		return decimal.Zero, fmt.Errorf("%w: mint: %v", ErrDecode, err)
	}
	return u64(mint.Supply), nil
}

// DecodeTokenAmount returns the balance of an SPL (or Token-2022) token account.
func DecodeTokenAmount(data []byte) (decimal.Decimal, error) {
	if len(data) < tokenAccountSize {
		return decimal.Zero, fmt.Errorf("%w: token account is %d bytes, need %d", ErrDecode, len(data), tokenAccountSize)
	}
	var acc token.Account
	if err := bin.NewBinDecoder(data).Decode(&acc); err != nil {
		return decimal.Zero, fmt.Errorf("%w: token account: %v", ErrDecode, err)
	}
	return u64(acc.Amount), nil
}

// DecodeClock decodes the clock sysvar.
func DecodeClock(data []byte) (model.ClockSnapshot, error) {
	if len(data) < ClockSize {
		return model.ClockSnapshot{}, fmt.Errorf("%w: clock is %d bytes, need %d", ErrDecode, len(data), ClockSize)
	}
	var c ClockLayout
	if err := bin.NewBinDecoder(data).Decode(&c); err != nil {
		return model.ClockSnapshot{}, fmt.Errorf("%w: clock: %v", ErrDecode, err)
	}
	return model.ClockSnapshot{
		EpochStartTimestamp: c.EpochStartTimestamp,
		Epoch:               c.Epoch,
		UnixTimestamp:       c.UnixTimestamp,
	}, nil
}

// Config converts the on-chain market config to the model type.
func (m *MarketAccount) Config() model.MarketConfig {
	c := m.MarketConfig
	return model.MarketConfig{
		MarketType:        model.MarketType(c.MarketType),
		StartTime:         c.StartTime,
		EndTime:           c.EndTime,
		StartPrice:        u64(c.StartPrice),
		InitialEndPrice:   u64(c.InitialEndPrice),
		MarketAPY:         u64(c.MarketApy),
		MarketSolPrice:    u64(c.MarketSolPrice),
		MarketEndPrice:    u64(c.MarketEndPrice),
		LastUpdateEpoch:   c.LastUpdateEpoch,
		LastUpdateTime:    c.LastUpdateTime,
		StartEpoch:        c.StartEpoch,
		UpdateSkipTime:    c.UpdateSkipTime,
		CompoundingPeriod: c.CompoundingPeriod,
		PriceBase:         u64(c.PriceBase),
	}
}

// Pool converts the on-chain pool config to the model type.
func (m *MarketAccount) Pool() model.PoolConfig {
	return model.PoolConfig{
		InitialConcentration:  u64(m.PoolConfig.InitialConcentration),
		MaturityConcentration: u64(m.PoolConfig.MaturityConcentration),
	}
}

func u64(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}
