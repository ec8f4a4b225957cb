package valuation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"

	"github.com/sandglass/valuation-engine/internal/chain"
	"github.com/sandglass/valuation-engine/internal/metrics"
	"github.com/sandglass/valuation-engine/internal/model"
	"github.com/sandglass/valuation-engine/internal/pricing"
	"github.com/sandglass/valuation-engine/internal/registry"
)

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func addr(t *testing.T) string {
	t.Helper()
	k, err := solana.NewRandomPrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return k.PublicKey().String()
}

// fakeSnapshots serves market states and holdings from maps.
type fakeSnapshots struct {
	mu       sync.Mutex
	states   map[string]*model.MarketState
	holdings map[string]model.Holdings // by market
	errs     map[string]error          // by market
}

func (f *fakeSnapshots) Market(_ context.Context, address string) (*model.MarketState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[address]; err != nil {
		return nil, err
	}
	s, ok := f.states[address]
	if !ok {
		return nil, fmt.Errorf("%w: market %s", chain.ErrMissingAccount, address)
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSnapshots) Holdings(_ context.Context, state *model.MarketState, _ string) (model.Holdings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.holdings[state.Address], nil
}

// stubPrices returns fixed prices per feed and counts lookups.
type stubPrices struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
	calls  int
}

func (s *stubPrices) Price(_ context.Context, symbol string) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.prices[symbol]
}

const pb = 1_000_000

func marketInfo(t *testing.T, symbol string) model.MarketInfo {
	tok := func(s string) model.Token { return model.Token{Symbol: s, Mint: addr(t), Decimals: 6} }
	return model.MarketInfo{
		MarketAccount:  addr(t),
		Symbol:         symbol,
		TokenSY:        tok(symbol),
		TokenPT:        tok("PT-" + symbol),
		TokenYT:        tok("YT-" + symbol),
		TokenLP:        tok("LP-" + symbol),
		YieldPriceFeed: "Crypto.TETH/ETH.RR",
		BasePriceFeed:  "Crypto.ETH/USD",
	}
}

// balancedState prices PT at 0.8 and YT at 0.2 with 1000 of each in the pool
// and 500 LP outstanding: one LP is worth 2 units of the yield asset.
func balancedState(info model.MarketInfo, t model.MarketType) *model.MarketState {
	cfg := model.MarketConfig{
		MarketType: t,
		StartTime:  0,
		EndTime:    1000,
		StartPrice: decimal.NewFromInt(pb),
		PriceBase:  decimal.NewFromInt(pb),
	}
	if t.IsEpochCompounding() {
		cfg.EndTime = 4_000_000_000
		cfg.MarketAPY = decimal.NewFromInt(50_000)
		cfg.MarketSolPrice = decimal.NewFromInt(pb)
		cfg.MarketEndPrice = decimal.NewFromInt(1_250_000)
	} else {
		cfg.InitialEndPrice = decimal.NewFromInt(1_250_000)
	}
	return &model.MarketState{
		Address: info.MarketAccount,
		LpMint:  info.TokenLP.Mint,
		Config:  cfg,
		Pool:    model.PoolConfig{InitialConcentration: decimal.Zero, MaturityConcentration: decimal.Zero},
		Reserves: model.PoolReserves{
			PtPoolAmount:   decimal.NewFromInt(1_000_000_000),
			YtPoolAmount:   decimal.NewFromInt(1_000_000_000),
			LpSupplyAmount: decimal.NewFromInt(500_000_000),
		},
	}
}

type fixture struct {
	epoch, decay model.MarketInfo
	snapshots    *fakeSnapshots
	prices       *stubPrices
	svc          *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		epoch: marketInfo(t, "tETH"),
		decay: marketInfo(t, "mSOL"),
	}
	f.snapshots = &fakeSnapshots{
		states: map[string]*model.MarketState{
			f.epoch.MarketAccount: balancedState(f.epoch, model.MarketTypeEpochCompounding),
			f.decay.MarketAccount: balancedState(f.decay, 1),
		},
		holdings: map[string]model.Holdings{
			f.epoch.MarketAccount: {Stake: &model.StakePosition{StakedLpAmount: decimal.NewFromInt(10_000_000)}},
			f.decay.MarketAccount: {
				Stake:  &model.StakePosition{StakedLpAmount: decimal.NewFromInt(10_000_000)},
				Wallet: &model.WalletHolding{FreeLpAmount: decimal.NewFromInt(5_000_000)},
			},
		},
		errs: map[string]error{},
	}
	f.prices = &stubPrices{prices: map[string]decimal.Decimal{
		"Crypto.TETH/ETH.RR": d(1),
		"Crypto.ETH/USD":     d(2000),
	}}

	reg, err := registry.NewMemoryRegistry(f.epoch, f.decay)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	f.svc = NewService(reg, f.snapshots, f.prices)
	f.svc.now = func() time.Time { return time.Unix(500, 0) }
	return f
}

func TestQuoteMarket_CountsYieldRefreshBySymbol(t *testing.T) {
	f := newFixture(t)
	st := f.snapshots.states[f.epoch.MarketAccount]
	st.Config.CompoundingPeriod = 100
	st.Clock = model.ClockSnapshot{UnixTimestamp: 500}
	f.prices.prices["Crypto.TETH/ETH.RR"] = d(1.1)

	refreshes := metrics.YieldRefreshes.WithLabelValues(f.epoch.Symbol)
	before := testutil.ToFloat64(refreshes)

	q, err := f.svc.QuoteMarket(context.Background(), f.epoch.MarketAccount)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !q.MarketSolPrice.Equal(d(1.1)) {
		t.Fatalf("expected a refreshed projection at spot 1.1, got sol price %s", q.MarketSolPrice)
	}
	if got := testutil.ToFloat64(refreshes) - before; got != 1 {
		t.Errorf("expected one refresh counted under symbol %s, got %v", f.epoch.Symbol, got)
	}
}

func TestComputeUserValuation_AggregatesAllMarkets(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.ComputeUserValuation(context.Background(), addr(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(res.Markets) != 2 || len(res.Skipped) != 0 {
		t.Fatalf("expected 2 valued markets and none skipped, got %d / %d", len(res.Markets), len(res.Skipped))
	}
	if res.Markets[0].Market != f.epoch.MarketAccount || res.Markets[1].Market != f.decay.MarketAccount {
		t.Error("markets should be reported in registry order")
	}

	// Epoch market: 10 LP * 2 * sol price 1 * 2000 USD.
	epoch := res.Markets[0]
	if !epoch.Staked.Equal(d(40000)) || !epoch.Unstaked.IsZero() {
		t.Errorf("epoch market: expected staked=40000 unstaked=0, got %s / %s", epoch.Staked, epoch.Unstaked)
	}
	if !epoch.HasStake || epoch.HasWallet {
		t.Errorf("epoch market: expected stake only, got stake=%v wallet=%v", epoch.HasStake, epoch.HasWallet)
	}

	// Decay market is priced in its own asset: 10 LP * 2 and 5 LP * 2.
	decay := res.Markets[1]
	if !decay.Staked.Equal(d(20)) || !decay.Unstaked.Equal(d(10)) {
		t.Errorf("decay market: expected staked=20 unstaked=10, got %s / %s", decay.Staked, decay.Unstaked)
	}
	if !decay.LpUnitValue.Equal(d(2)) {
		t.Errorf("decay market: expected lp unit value 2, got %s", decay.LpUnitValue)
	}

	if !res.Staked.Equal(d(40020)) || !res.Unstaked.Equal(d(10)) || !res.Total.Equal(d(40030)) {
		t.Errorf("expected totals 40020 + 10 = 40030, got %s + %s = %s", res.Staked, res.Unstaked, res.Total)
	}
	if res.ID == "" {
		t.Error("expected a valuation id")
	}
}

func TestComputeUserValuation_DecayMarketSkipsOracle(t *testing.T) {
	f := newFixture(t)
	reg, _ := registry.NewMemoryRegistry(f.decay)
	svc := NewService(reg, f.snapshots, f.prices)

	if _, err := svc.ComputeUserValuation(context.Background(), addr(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.prices.calls != 0 {
		t.Errorf("decay markets should not query the oracle, got %d lookups", f.prices.calls)
	}
}

func TestComputeUserValuation_NoHoldings(t *testing.T) {
	f := newFixture(t)
	f.snapshots.holdings = map[string]model.Holdings{}

	res, err := f.svc.ComputeUserValuation(context.Background(), addr(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Total.IsZero() {
		t.Errorf("expected zero total, got %s", res.Total)
	}
	for _, m := range res.Markets {
		if m.HasStake || m.HasWallet {
			t.Errorf("market %s reported accounts that do not exist", m.Symbol)
		}
	}
}

func TestComputeUserValuation_SkipsBrokenMarkets(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"missing account", fmt.Errorf("%w: clock", chain.ErrMissingAccount)},
		{"decode error", fmt.Errorf("%w: market discriminator mismatch", chain.ErrDecode)},
		{"invariant", fmt.Errorf("%w: zero epoch span", pricing.ErrInvariant)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.snapshots.errs[f.epoch.MarketAccount] = tt.err

			res, err := f.svc.ComputeUserValuation(context.Background(), addr(t))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(res.Skipped) != 1 || res.Skipped[0].Market != f.epoch.MarketAccount {
				t.Fatalf("expected the epoch market to be skipped, got %+v", res.Skipped)
			}
			if len(res.Markets) != 1 || !res.Total.Equal(d(30)) {
				t.Errorf("expected the decay market alone (30), got %d markets total=%s", len(res.Markets), res.Total)
			}
		})
	}
}

func TestComputeUserValuation_TransportErrorAborts(t *testing.T) {
	f := newFixture(t)
	rpcErr := errors.New("rpc: connection reset")
	f.snapshots.errs[f.decay.MarketAccount] = rpcErr

	_, err := f.svc.ComputeUserValuation(context.Background(), addr(t))
	if !errors.Is(err, rpcErr) {
		t.Errorf("expected the transport error, got %v", err)
	}
}

func TestComputeUserValuation_AllMarketsSkipped(t *testing.T) {
	f := newFixture(t)
	f.snapshots.states = map[string]*model.MarketState{}

	_, err := f.svc.ComputeUserValuation(context.Background(), addr(t))
	if !errors.Is(err, chain.ErrMissingAccount) {
		t.Errorf("expected ErrMissingAccount when no market can be valued, got %v", err)
	}
}

func TestComputeUserValuation_EmptyRegistry(t *testing.T) {
	reg, _ := registry.NewMemoryRegistry()
	svc := NewService(reg, &fakeSnapshots{}, &stubPrices{})

	res, err := svc.ComputeUserValuation(context.Background(), addr(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Total.IsZero() || len(res.Markets) != 0 {
		t.Errorf("expected an empty zero valuation, got %+v", res)
	}
}

func TestComputeUserValuation_InvalidWallet(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.ComputeUserValuation(context.Background(), "0xdeadbeef"); !errors.Is(err, ErrInvalidWallet) {
		t.Errorf("expected ErrInvalidWallet, got %v", err)
	}
}

func TestComputeUserValuation_DegradedOracle(t *testing.T) {
	f := newFixture(t)
	f.prices.prices = map[string]decimal.Decimal{} // every lookup degrades to zero

	res, err := f.svc.ComputeUserValuation(context.Background(), addr(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Markets[0].Total.IsZero() {
		t.Errorf("epoch market should value at zero without a base price, got %s", res.Markets[0].Total)
	}
	if !res.Total.Equal(d(30)) {
		t.Errorf("decay market should be unaffected, expected total 30, got %s", res.Total)
	}
}

func TestQuoteMarket(t *testing.T) {
	f := newFixture(t)

	q, err := f.svc.QuoteMarket(context.Background(), f.epoch.MarketAccount)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.MarketType != "epoch_compounding" {
		t.Errorf("expected epoch_compounding, got %s", q.MarketType)
	}
	if !q.EndPrice.Equal(d(1.25)) || !q.APY.Equal(d(0.05)) {
		t.Errorf("expected stored projection end=1.25 apy=0.05, got end=%s apy=%s", q.EndPrice, q.APY)
	}
	if !q.PtPrice.Equal(d(0.8)) || !q.PoolPtPrice.Equal(d(0.8)) {
		t.Errorf("expected pt=0.8 pool pt=0.8, got %s / %s", q.PtPrice, q.PoolPtPrice)
	}
	if !q.PoolValue.Equal(d(1000)) || !q.LpUnitValue.Equal(d(2)) {
		t.Errorf("expected pool value 1000 and unit value 2, got %s / %s", q.PoolValue, q.LpUnitValue)
	}
	if !q.BaseTokenPrice.Equal(d(2000)) || !q.YieldSpot.Equal(d(1)) {
		t.Errorf("expected oracle prices 1 / 2000, got %s / %s", q.YieldSpot, q.BaseTokenPrice)
	}
}

func TestQuoteMarket_UnknownMarket(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.QuoteMarket(context.Background(), addr(t)); !errors.Is(err, registry.ErrNotFound) {
		t.Errorf("expected registry.ErrNotFound, got %v", err)
	}
}

type captureSink struct {
	quotes []*model.MarketQuote
}

func (c *captureSink) PublishQuote(q *model.MarketQuote) { c.quotes = append(c.quotes, q) }

func TestPoller_PublishesHealthyMarkets(t *testing.T) {
	f := newFixture(t)
	f.snapshots.errs[f.decay.MarketAccount] = fmt.Errorf("%w: pool yt", chain.ErrMissingAccount)
	sink := &captureSink{}

	n := NewPoller(f.svc, sink, time.Minute).Poll(context.Background())
	if n != 1 || len(sink.quotes) != 1 {
		t.Fatalf("expected 1 published quote, got %d", len(sink.quotes))
	}
	if sink.quotes[0].Market != f.epoch.MarketAccount {
		t.Errorf("expected the epoch market quote, got %s", sink.quotes[0].Market)
	}
}

func TestPoller_RunStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := NewPoller(f.svc, &captureSink{}, time.Hour).Run(ctx); err != nil {
		t.Errorf("expected clean shutdown, got %v", err)
	}
}
