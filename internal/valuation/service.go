// Package valuation values a user's sandglass LP positions. It wires the
// market registry, the ledger snapshot reader and the oracle into the pure
// pricing pipeline.
package valuation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/sandglass/valuation-engine/internal/chain"
	"github.com/sandglass/valuation-engine/internal/metrics"
	"github.com/sandglass/valuation-engine/internal/model"
	"github.com/sandglass/valuation-engine/internal/oracle"
	"github.com/sandglass/valuation-engine/internal/pricing"
	"github.com/sandglass/valuation-engine/internal/registry"
)

// ErrInvalidWallet is returned for a user address that is not a public key.
var ErrInvalidWallet = errors.New("valuation: invalid wallet address")

// DefaultConcurrency bounds concurrent market fetches per valuation.
const DefaultConcurrency = 4

// Snapshots reads market and user state from the ledger.
type Snapshots interface {
	Market(ctx context.Context, address string) (*model.MarketState, error)
	Holdings(ctx context.Context, state *model.MarketState, user string) (model.Holdings, error)
}

// Service computes market quotes and user valuations.
type Service struct {
	registry    registry.Registry
	snapshots   Snapshots
	prices      oracle.PriceSource
	concurrency int
	now         func() time.Time
}

// NewService creates a valuation service.
func NewService(reg registry.Registry, snapshots Snapshots, prices oracle.PriceSource) *Service {
	return &Service{
		registry:    reg,
		snapshots:   snapshots,
		prices:      prices,
		concurrency: DefaultConcurrency,
		now:         time.Now,
	}
}

// SetConcurrency sets how many markets are fetched at once. n < 1 is ignored.
func (s *Service) SetConcurrency(n int) {
	if n >= 1 {
		s.concurrency = n
	}
}

// Registry returns the market registry the service values against.
func (s *Service) Registry() registry.Registry { return s.registry }

// marketEval is one market run through the pricing pipeline.
type marketEval struct {
	info      model.MarketInfo
	state     *model.MarketState
	quote     pricing.Quote
	yieldSpot decimal.Decimal
	basePrice decimal.Decimal
	decimals  pricing.Decimals
}

// spotPrices returns the yield-asset spot and the base-asset USD price for a
// market. Decaying markets are denominated in their own asset and never
// consult the oracle.
func (s *Service) spotPrices(ctx context.Context, info model.MarketInfo, t model.MarketType) (yieldSpot, base decimal.Decimal) {
	if !t.IsEpochCompounding() {
		one := decimal.NewFromInt(1)
		return one, one
	}
	return s.prices.Price(ctx, info.YieldPriceFeed), s.prices.Price(ctx, info.BasePriceFeed)
}

func (s *Service) evaluate(ctx context.Context, info model.MarketInfo) (*marketEval, error) {
	state, err := s.snapshots.Market(ctx, info.MarketAccount)
	if err != nil {
		return nil, err
	}
	if state.LpMint != "" && state.LpMint != info.TokenLP.Mint {
		slog.Warn("registry lp mint differs from market account",
			"market", info.MarketAccount, "registry", info.TokenLP.Mint, "chain", state.LpMint)
	}

	yieldSpot, base := s.spotPrices(ctx, info, state.Config.MarketType)

	q, err := pricing.Evaluate(*state, yieldSpot, s.now())
	if err != nil {
		return nil, fmt.Errorf("market %s: %w", info.MarketAccount, err)
	}
	if q.Yield.Refreshed {
		metrics.YieldRefreshes.WithLabelValues(info.Symbol).Inc()
	}

	return &marketEval{
		info:      info,
		state:     state,
		quote:     q,
		yieldSpot: yieldSpot,
		basePrice: base,
		decimals: pricing.Decimals{
			PT: info.TokenPT.Decimals,
			YT: info.TokenYT.Decimals,
			LP: info.TokenLP.Decimals,
		},
	}, nil
}

// QuoteMarket runs the market-level pipeline for one registry market.
func (s *Service) QuoteMarket(ctx context.Context, address string) (*model.MarketQuote, error) {
	info, err := s.registry.GetMarket(ctx, address)
	if err != nil {
		return nil, err
	}
	e, err := s.evaluate(ctx, *info)
	if err != nil {
		return nil, err
	}
	return e.marketQuote(s.now()), nil
}

func (e *marketEval) marketQuote(at time.Time) *model.MarketQuote {
	poolValue := pricing.PoolValue(e.state.Reserves, e.quote.Pool, e.decimals)
	return &model.MarketQuote{
		Market:         e.info.MarketAccount,
		Symbol:         e.info.Symbol,
		MarketType:     e.state.Config.MarketType.String(),
		Concentration:  e.quote.Concentration,
		APY:            e.quote.Yield.APY,
		EndPrice:       e.quote.Yield.EndPrice,
		MarketSolPrice: e.quote.Yield.SolPrice,
		PtPrice:        e.quote.Synthetic.PtPrice,
		YtPrice:        e.quote.Synthetic.YtPrice,
		PoolPtPrice:    e.quote.Pool.PtPrice,
		PoolYtPrice:    e.quote.Pool.YtPrice,
		PoolValue:      poolValue,
		LpUnitValue:    pricing.LpUnitValue(poolValue, e.state.Reserves.LpSupplyAmount, e.decimals.LP),
		YieldSpot:      e.yieldSpot,
		BaseTokenPrice: e.basePrice,
		Reserves:       e.state.Reserves,
		Clock:          e.state.Clock,
		QuotedAt:       at.UTC(),
	}
}

// marketResult is the outcome of valuing one market for a user.
type marketResult struct {
	value *model.MarketValuation
	err   error
}

func (s *Service) valueMarket(ctx context.Context, info model.MarketInfo, user string) (*model.MarketValuation, error) {
	e, err := s.evaluate(ctx, info)
	if err != nil {
		return nil, err
	}
	holdings, err := s.snapshots.Holdings(ctx, e.state, user)
	if err != nil {
		return nil, err
	}

	v := pricing.AggregatePosition(pricing.PositionInput{
		Reserves:       e.state.Reserves,
		Pool:           e.quote.Pool,
		Decimals:       e.decimals,
		MarketSolPrice: e.quote.Yield.SolPrice,
		BaseTokenPrice: e.basePrice,
		Holdings:       holdings,
	})
	return &model.MarketValuation{
		Market:      info.MarketAccount,
		Symbol:      info.Symbol,
		Total:       v.Total,
		Staked:      v.Staked,
		Unstaked:    v.Unstaked,
		HasStake:    v.HasStake,
		HasWallet:   v.HasWallet,
		LpUnitValue: v.LpUnitValue,
	}, nil
}

// skipReason classifies per-market failures that leave the rest of the
// valuation intact. Anything else aborts the valuation.
func skipReason(err error) (string, bool) {
	switch {
	case errors.Is(err, chain.ErrMissingAccount):
		return "missing_account", true
	case errors.Is(err, chain.ErrDecode):
		return "decode_error", true
	case errors.Is(err, pricing.ErrInvariant):
		return "invariant_violation", true
	}
	return "", false
}

// ComputeUserValuation values the user's staked and unstaked LP tokens in
// every registry market. Markets that cannot be valued are listed in Skipped;
// the valuation fails only on transport errors or when no market could be
// valued.
func (s *Service) ComputeUserValuation(ctx context.Context, user string) (*model.ValuationResult, error) {
	start := time.Now()
	if _, err := solana.PublicKeyFromBase58(user); err != nil {
		metrics.ValuationsTotal.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("%w: %q", ErrInvalidWallet, user)
	}

	markets, err := s.registry.ListMarkets(ctx)
	if err != nil {
		metrics.ValuationsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("list markets: %w", err)
	}

	results := make([]marketResult, len(markets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, info := range markets {
		g.Go(func() error {
			v, err := s.valueMarket(gctx, info, user)
			if err != nil {
				if _, ok := skipReason(err); !ok {
					return err
				}
			}
			results[i] = marketResult{value: v, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		metrics.ValuationsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("value %s: %w", user, err)
	}

	res := &model.ValuationResult{
		ID:       uuid.New().String(),
		Address:  user,
		Total:    decimal.Zero,
		Staked:   decimal.Zero,
		Unstaked: decimal.Zero,
		Markets:  make([]model.MarketValuation, 0, len(markets)),
		ValuedAt: s.now().UTC(),
	}
	var firstErr error
	for i, r := range results {
		if r.err != nil {
			reason, _ := skipReason(r.err)
			metrics.MarketsSkipped.WithLabelValues(reason).Inc()
			level := slog.LevelWarn
			if reason == "invariant_violation" {
				level = slog.LevelError
			}
			slog.Log(ctx, level, "market skipped",
				"valuation_id", res.ID, "market", markets[i].MarketAccount, "reason", reason, "err", r.err)
			res.Skipped = append(res.Skipped, model.SkippedMarket{Market: markets[i].MarketAccount, Reason: r.err.Error()})
			if firstErr == nil {
				firstErr = r.err
			}
			continue
		}
		res.Markets = append(res.Markets, *r.value)
		res.Staked = res.Staked.Add(r.value.Staked)
		res.Unstaked = res.Unstaked.Add(r.value.Unstaked)
	}
	res.Total = res.Staked.Add(res.Unstaked)

	if len(markets) > 0 && len(res.Markets) == 0 {
		metrics.ValuationsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("value %s: no market could be valued: %w", user, firstErr)
	}

	metrics.ValuationsTotal.WithLabelValues("ok").Inc()
	metrics.ValuationLatency.Observe(time.Since(start).Seconds())
	slog.Info("valuation computed",
		"valuation_id", res.ID,
		"user", user,
		"total", res.Total.String(),
		"staked", res.Staked.String(),
		"unstaked", res.Unstaked.String(),
		"markets", len(res.Markets),
		"skipped", len(res.Skipped),
	)
	return res, nil
}
