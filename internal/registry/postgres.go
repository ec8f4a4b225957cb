package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sandglass/valuation-engine/internal/model"
)

// Schema creates the markets table used by PostgresRegistry.
const Schema = `
CREATE TABLE IF NOT EXISTS sandglass_markets (
	market_account   TEXT PRIMARY KEY,
	symbol           TEXT NOT NULL,
	sort_order       INTEGER NOT NULL DEFAULT 0,
	sy_symbol        TEXT NOT NULL,
	sy_mint          TEXT NOT NULL,
	sy_decimals      INTEGER NOT NULL,
	pt_symbol        TEXT NOT NULL,
	pt_mint          TEXT NOT NULL,
	pt_decimals      INTEGER NOT NULL,
	yt_symbol        TEXT NOT NULL,
	yt_mint          TEXT NOT NULL,
	yt_decimals      INTEGER NOT NULL,
	lp_symbol        TEXT NOT NULL,
	lp_mint          TEXT NOT NULL,
	lp_decimals      INTEGER NOT NULL,
	yield_price_feed TEXT NOT NULL DEFAULT '',
	base_price_feed  TEXT NOT NULL DEFAULT ''
)`

const selectMarkets = `
SELECT market_account, symbol,
       sy_symbol, sy_mint, sy_decimals,
       pt_symbol, pt_mint, pt_decimals,
       yt_symbol, yt_mint, yt_decimals,
       lp_symbol, lp_mint, lp_decimals,
       yield_price_feed, base_price_feed
FROM sandglass_markets`

// PostgresRegistry implements Registry using PostgreSQL as the source of truth.
type PostgresRegistry struct {
	pool *pgxpool.Pool
}

// NewPostgresRegistry creates a new PostgreSQL-backed registry.
func NewPostgresRegistry(pool *pgxpool.Pool) *PostgresRegistry {
	return &PostgresRegistry{pool: pool}
}

// EnsureSchema creates the markets table if it does not exist.
func (r *PostgresRegistry) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create registry schema: %w", err)
	}
	return nil
}

// UpsertMarket validates and stores a market at the given list position.
func (r *PostgresRegistry) UpsertMarket(ctx context.Context, m model.MarketInfo, order int) error {
	if err := Validate(m); err != nil {
		return err
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO sandglass_markets (market_account, symbol, sort_order,
		        sy_symbol, sy_mint, sy_decimals,
		        pt_symbol, pt_mint, pt_decimals,
		        yt_symbol, yt_mint, yt_decimals,
		        lp_symbol, lp_mint, lp_decimals,
		        yield_price_feed, base_price_feed)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		 ON CONFLICT (market_account) DO UPDATE SET
		        symbol = EXCLUDED.symbol, sort_order = EXCLUDED.sort_order,
		        sy_symbol = EXCLUDED.sy_symbol, sy_mint = EXCLUDED.sy_mint, sy_decimals = EXCLUDED.sy_decimals,
		        pt_symbol = EXCLUDED.pt_symbol, pt_mint = EXCLUDED.pt_mint, pt_decimals = EXCLUDED.pt_decimals,
		        yt_symbol = EXCLUDED.yt_symbol, yt_mint = EXCLUDED.yt_mint, yt_decimals = EXCLUDED.yt_decimals,
		        lp_symbol = EXCLUDED.lp_symbol, lp_mint = EXCLUDED.lp_mint, lp_decimals = EXCLUDED.lp_decimals,
		        yield_price_feed = EXCLUDED.yield_price_feed, base_price_feed = EXCLUDED.base_price_feed`,
		m.MarketAccount, m.Symbol, order,
		m.TokenSY.Symbol, m.TokenSY.Mint, m.TokenSY.Decimals,
		m.TokenPT.Symbol, m.TokenPT.Mint, m.TokenPT.Decimals,
		m.TokenYT.Symbol, m.TokenYT.Mint, m.TokenYT.Decimals,
		m.TokenLP.Symbol, m.TokenLP.Mint, m.TokenLP.Decimals,
		m.YieldPriceFeed, m.BasePriceFeed,
	)
	if err != nil {
		return fmt.Errorf("upsert market %s: %w", m.MarketAccount, err)
	}
	return nil
}

func (r *PostgresRegistry) ListMarkets(ctx context.Context) ([]model.MarketInfo, error) {
	rows, err := r.pool.Query(ctx, selectMarkets+` ORDER BY sort_order, market_account`)
	if err != nil {
		return nil, fmt.Errorf("list markets: %w", err)
	}
	defer rows.Close()

	var markets []model.MarketInfo
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, err
		}
		markets = append(markets, *m)
	}
	return markets, rows.Err()
}

func (r *PostgresRegistry) GetMarket(ctx context.Context, address string) (*model.MarketInfo, error) {
	m, err := scanMarket(r.pool.QueryRow(ctx, selectMarkets+` WHERE market_account = $1`, address))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, address)
	}
	if err != nil {
		return nil, fmt.Errorf("get market %s: %w", address, err)
	}
	return m, nil
}

func scanMarket(row pgx.Row) (*model.MarketInfo, error) {
	var m model.MarketInfo
	err := row.Scan(&m.MarketAccount, &m.Symbol,
		&m.TokenSY.Symbol, &m.TokenSY.Mint, &m.TokenSY.Decimals,
		&m.TokenPT.Symbol, &m.TokenPT.Mint, &m.TokenPT.Decimals,
		&m.TokenYT.Symbol, &m.TokenYT.Mint, &m.TokenYT.Decimals,
		&m.TokenLP.Symbol, &m.TokenLP.Mint, &m.TokenLP.Decimals,
		&m.YieldPriceFeed, &m.BasePriceFeed)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
