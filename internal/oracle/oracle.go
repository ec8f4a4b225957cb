// Package oracle supplies spot prices for market valuation. Lookups go
// through a Quoter (the Pyth Hermes API, optionally behind a Redis cache);
// Source turns any lookup failure into a zero price so that valuation never
// fails on oracle availability.
package oracle

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/sandglass/valuation-engine/internal/metrics"
)

var (
	// ErrUnknownFeed is returned when no feed matches a symbol.
	ErrUnknownFeed = errors.New("oracle: unknown price feed")

	// ErrNoPrice is returned when a feed has no usable price.
	ErrNoPrice = errors.New("oracle: no usable price")

	// ErrStale is returned when the latest price is older than the allowed age.
	ErrStale = errors.New("oracle: price is stale")
)

// Quoter looks up the latest price for a feed symbol such as "Crypto.ETH/USD".
type Quoter interface {
	Quote(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// PriceSource never fails: an unavailable price is reported as zero.
type PriceSource interface {
	Price(ctx context.Context, symbol string) decimal.Decimal
}

// Source adapts a Quoter to a PriceSource.
type Source struct {
	quoter Quoter
	logger *slog.Logger
}

// NewSource wraps q.
func NewSource(q Quoter, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{quoter: q, logger: logger}
}

// Price returns the latest price of symbol, or zero if it cannot be read.
// An empty symbol means the market has no feed.
func (s *Source) Price(ctx context.Context, symbol string) decimal.Decimal {
	if symbol == "" {
		return decimal.Zero
	}
	p, err := s.quoter.Quote(ctx, symbol)
	if err != nil {
		metrics.OracleFailures.WithLabelValues(symbol).Inc()
		s.logger.Warn("oracle price unavailable, using zero", "feed", symbol, "err", err)
		return decimal.Zero
	}
	return p
}
