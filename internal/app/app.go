// Package app assembles the valuation stack from a validated Config.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/sandglass/valuation-engine/internal/chain"
	"github.com/sandglass/valuation-engine/internal/config"
	"github.com/sandglass/valuation-engine/internal/metrics"
	"github.com/sandglass/valuation-engine/internal/oracle"
	"github.com/sandglass/valuation-engine/internal/registry"
	"github.com/sandglass/valuation-engine/internal/valuation"
)

// Stack is the wired valuation service plus the resources it holds.
type Stack struct {
	Service *valuation.Service
	cleanup []func()
}

// Close releases database and cache connections.
func (s *Stack) Close() {
	for i := len(s.cleanup) - 1; i >= 0; i-- {
		s.cleanup[i]()
	}
}

// NewLogger returns a JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// Build connects the registry, the ledger reader and the oracle.
func Build(ctx context.Context, cfg *config.Config) (*Stack, error) {
	st := &Stack{}

	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		rdb = redis.NewClient(opt)
		st.cleanup = append(st.cleanup, func() { rdb.Close() })
		slog.Info("Redis cache enabled")
	}

	reg, err := st.registry(ctx, cfg, rdb)
	if err != nil {
		st.Close()
		return nil, err
	}

	programID, err := solana.PublicKeyFromBase58(cfg.Chain.ProgramID)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("program id: %w", err)
	}
	tokenProgram, err := solana.PublicKeyFromBase58(cfg.Chain.TokenProgramID)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("token program id: %w", err)
	}
	fetcher := chain.NewFetcher(rpc.New(cfg.Chain.RPCURL), programID, tokenProgram, rpc.CommitmentType(cfg.Chain.Commitment))

	var quoter oracle.Quoter = oracle.NewHermesClient(cfg.Oracle.HermesURL, cfg.Oracle.Timeout.Duration, cfg.Oracle.MaxAge.Duration)
	if rdb != nil {
		quoter = oracle.NewCachedQuoter(quoter, rdb, cfg.Redis.PriceTTL.Duration)
	}

	st.Service = valuation.NewService(reg, fetcher, oracle.NewSource(quoter, slog.Default()))
	st.Service.SetConcurrency(cfg.Valuation.Concurrency)
	return st, nil
}

func (st *Stack) registry(ctx context.Context, cfg *config.Config, rdb *redis.Client) (registry.Registry, error) {
	if cfg.Database.URL == "" {
		slog.Warn("database url not set, using markets from config")
		reg, err := registry.NewMemoryRegistry(cfg.Markets...)
		if err != nil {
			return nil, err
		}
		metrics.RegisteredMarkets.Set(float64(len(cfg.Markets)))
		return reg, nil
	}

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	st.cleanup = append(st.cleanup, pool.Close)
	slog.Info("connected to PostgreSQL")

	pg := registry.NewPostgresRegistry(pool)
	if err := pg.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	if cfg.Database.SeedMarkets {
		for i, m := range cfg.Markets {
			if err := pg.UpsertMarket(ctx, m, i); err != nil {
				return nil, fmt.Errorf("seed market %s: %w", m.MarketAccount, err)
			}
		}
		slog.Info("seeded markets", "count", len(cfg.Markets))
	}

	markets, err := pg.ListMarkets(ctx)
	if err != nil {
		return nil, err
	}
	metrics.RegisteredMarkets.Set(float64(len(markets)))

	if rdb == nil {
		return pg, nil
	}
	cached := registry.NewCachedRegistry(pg, rdb, cfg.Redis.RegistryTTL.Duration)
	if cfg.Database.SeedMarkets {
		addrs := make([]string, 0, len(cfg.Markets))
		for _, m := range cfg.Markets {
			addrs = append(addrs, m.MarketAccount)
		}
		cached.Invalidate(ctx, addrs...)
	}
	return cached, nil
}
