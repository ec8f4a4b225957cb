package valuation

import (
	"context"
	"log/slog"
	"time"

	"github.com/sandglass/valuation-engine/internal/metrics"
	"github.com/sandglass/valuation-engine/internal/model"
)

// QuoteSink receives refreshed market quotes.
type QuoteSink interface {
	PublishQuote(q *model.MarketQuote)
}

// Poller periodically quotes every registry market and publishes the result.
type Poller struct {
	svc      *Service
	sink     QuoteSink
	interval time.Duration
}

// NewPoller creates a poller. interval <= 0 defaults to 30s.
func NewPoller(svc *Service, sink QuoteSink, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Poller{svc: svc, sink: sink, interval: interval}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	p.Poll(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

// Poll quotes every market once and returns how many were published.
func (p *Poller) Poll(ctx context.Context) int {
	markets, err := p.svc.registry.ListMarkets(ctx)
	if err != nil {
		slog.Error("quote poll: list markets", "err", err)
		return 0
	}
	metrics.RegisteredMarkets.Set(float64(len(markets)))

	published := 0
	for _, m := range markets {
		if ctx.Err() != nil {
			return published
		}
		q, err := p.svc.QuoteMarket(ctx, m.MarketAccount)
		if err != nil {
			slog.Warn("quote poll: market failed", "market", m.MarketAccount, "symbol", m.Symbol, "err", err)
			continue
		}
		p.sink.PublishQuote(q)
		published++
	}
	return published
}
