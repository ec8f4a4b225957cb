package chain

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/sandglass/valuation-engine/internal/metrics"
	"github.com/sandglass/valuation-engine/internal/model"
)

// AccountReader is the subset of *rpc.Client the fetcher needs.
type AccountReader interface {
	GetMultipleAccountsWithOpts(ctx context.Context, accounts []solana.PublicKey, opts *rpc.GetMultipleAccountsOpts) (*rpc.GetMultipleAccountsResult, error)
}

// Fetcher reads market snapshots and user holdings from the ledger.
type Fetcher struct {
	reader       AccountReader
	programID    solana.PublicKey
	tokenProgram solana.PublicKey
	commitment   rpc.CommitmentType
	now          func() time.Time
}

// NewFetcher creates a fetcher for markets owned by programID. LP token
// accounts are derived under tokenProgram.
func NewFetcher(reader AccountReader, programID, tokenProgram solana.PublicKey, commitment rpc.CommitmentType) *Fetcher {
	if commitment == "" {
		commitment = rpc.CommitmentConfirmed
	}
	return &Fetcher{
		reader:       reader,
		programID:    programID,
		tokenProgram: tokenProgram,
		commitment:   commitment,
		now:          time.Now,
	}
}

// Market reads the market record, its pool token accounts, the PT and LP
// mints and the clock sysvar. Every one of them must exist.
func (f *Fetcher) Market(ctx context.Context, address string) (*model.MarketState, error) {
	marketKey, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return nil, fmt.Errorf("parse market address %q: %w", address, err)
	}

	raw, err := f.accounts(ctx, "market", marketKey)
	if err != nil {
		return nil, err
	}
	if raw[0] == nil {
		return nil, fmt.Errorf("%w: market %s", ErrMissingAccount, address)
	}
	market, err := DecodeMarket(raw[0])
	if err != nil {
		return nil, fmt.Errorf("market %s: %w", address, err)
	}

	keys := []solana.PublicKey{
		market.TokenPtMintAddress,
		market.TokenLpMintAddress,
		market.PoolPtTokenAccount,
		market.PoolYtTokenAccount,
		solana.SysVarClockPubkey,
	}
	names := []string{"pt mint", "lp mint", "pool pt account", "pool yt account", "clock"}

	raw, err = f.accounts(ctx, "market_pool", keys...)
	if err != nil {
		return nil, err
	}
	for i, data := range raw {
		if data == nil {
			return nil, fmt.Errorf("%w: %s %s of market %s", ErrMissingAccount, names[i], keys[i], address)
		}
	}

	ptSupply, err := DecodeMintSupply(raw[0])
	if err != nil {
		return nil, fmt.Errorf("pt mint of market %s: %w", address, err)
	}
	lpSupply, err := DecodeMintSupply(raw[1])
	if err != nil {
		return nil, fmt.Errorf("lp mint of market %s: %w", address, err)
	}
	poolPt, err := DecodeTokenAmount(raw[2])
	if err != nil {
		return nil, fmt.Errorf("pool pt account of market %s: %w", address, err)
	}
	poolYt, err := DecodeTokenAmount(raw[3])
	if err != nil {
		return nil, fmt.Errorf("pool yt account of market %s: %w", address, err)
	}
	clock, err := DecodeClock(raw[4])
	if err != nil {
		return nil, err
	}

	return &model.MarketState{
		Address: address,
		LpMint:  market.TokenLpMintAddress.String(),
		Config:  market.Config(),
		Pool:    market.Pool(),
		Reserves: model.PoolReserves{
			PtPoolAmount:   poolPt,
			YtPoolAmount:   poolYt,
			LpSupplyAmount: lpSupply,
			PtMintSupply:   ptSupply,
		},
		Clock:     clock,
		FetchedAt: f.now(),
	}, nil
}

// Holdings reads the user's position account and LP token account for the
// market. Either may be absent; that is not an error.
func (f *Fetcher) Holdings(ctx context.Context, state *model.MarketState, user string) (model.Holdings, error) {
	var h model.Holdings

	userKey, err := solana.PublicKeyFromBase58(user)
	if err != nil {
		return h, fmt.Errorf("parse user address %q: %w", user, err)
	}
	marketKey, err := solana.PublicKeyFromBase58(state.Address)
	if err != nil {
		return h, fmt.Errorf("parse market address %q: %w", state.Address, err)
	}
	lpMint, err := solana.PublicKeyFromBase58(state.LpMint)
	if err != nil {
		return h, fmt.Errorf("parse lp mint %q: %w", state.LpMint, err)
	}

	positionKey, err := FindPositionAddress(marketKey, userKey, f.programID)
	if err != nil {
		return h, err
	}
	walletKey, err := FindAssociatedTokenAddress(userKey, lpMint, f.tokenProgram)
	if err != nil {
		return h, err
	}

	raw, err := f.accounts(ctx, "holdings", positionKey, walletKey)
	if err != nil {
		return h, err
	}

	if raw[0] != nil {
		pos, err := DecodeSandglass(raw[0])
		if err != nil {
			return h, fmt.Errorf("position %s: %w", positionKey, err)
		}
		h.Stake = &model.StakePosition{
			Address:        positionKey.String(),
			StakedLpAmount: u64(pos.StakeInfo.StakeLpAmount),
		}
	}
	if raw[1] != nil {
		amount, err := DecodeTokenAmount(raw[1])
		if err != nil {
			return h, fmt.Errorf("lp token account %s: %w", walletKey, err)
		}
		h.Wallet = &model.WalletHolding{
			Address:      walletKey.String(),
			FreeLpAmount: amount,
		}
	}
	return h, nil
}

// accounts fetches keys in one round trip. A nil entry means the account
// does not exist.
func (f *Fetcher) accounts(ctx context.Context, call string, keys ...solana.PublicKey) ([][]byte, error) {
	start := time.Now()
	res, err := f.reader.GetMultipleAccountsWithOpts(ctx, keys, &rpc.GetMultipleAccountsOpts{
		Commitment: f.commitment,
	})
	metrics.ObserveRPC(call, start)
	if err != nil {
		return nil, fmt.Errorf("get %s accounts: %w", call, err)
	}
	if res == nil || len(res.Value) != len(keys) {
		return nil, fmt.Errorf("get %s accounts: expected %d results", call, len(keys))
	}

	out := make([][]byte, len(keys))
	for i, acc := range res.Value {
		if acc == nil || acc.Data == nil {
			continue
		}
		out[i] = acc.Data.GetBinary()
	}
	return out, nil
}
