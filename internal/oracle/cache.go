package oracle

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/sandglass/valuation-engine/internal/metrics"
)

// CachedQuoter wraps a Quoter with a short-lived Redis cache so that a burst
// of valuations shares one oracle round trip per feed. Redis failures fall
// through to the wrapped quoter.
type CachedQuoter struct {
	next Quoter
	rdb  *redis.Client
	ttl  time.Duration
}

// NewCachedQuoter creates a cached wrapper around next.
func NewCachedQuoter(next Quoter, rdb *redis.Client, ttl time.Duration) *CachedQuoter {
	return &CachedQuoter{next: next, rdb: rdb, ttl: ttl}
}

func (q *CachedQuoter) Quote(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if s, err := q.rdb.Get(ctx, priceKey(symbol)).Result(); err == nil {
		if p, err := decimal.NewFromString(s); err == nil {
			metrics.OracleCacheHits.Inc()
			return p, nil
		}
	}

	p, err := q.next.Quote(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	q.rdb.Set(ctx, priceKey(symbol), p.String(), q.ttl)
	return p, nil
}

func priceKey(symbol string) string { return "oracle:price:" + symbol }
