package registry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sandglass/valuation-engine/internal/model"
)

// CachedRegistry wraps a primary Registry (PostgreSQL) with a Redis
// read-through cache.
type CachedRegistry struct {
	primary Registry
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedRegistry creates a cached wrapper around a primary registry.
func NewCachedRegistry(primary Registry, rdb *redis.Client, ttl time.Duration) *CachedRegistry {
	return &CachedRegistry{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

func (r *CachedRegistry) ListMarkets(ctx context.Context) ([]model.MarketInfo, error) {
	data, err := r.rdb.Get(ctx, listKey).Bytes()
	if err == nil {
		var markets []model.MarketInfo
		if json.Unmarshal(data, &markets) == nil {
			return markets, nil
		}
	}

	// Cache miss.
	markets, err := r.primary.ListMarkets(ctx)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(markets); err == nil {
		r.rdb.Set(ctx, listKey, data, r.ttl)
	}
	return markets, nil
}

func (r *CachedRegistry) GetMarket(ctx context.Context, address string) (*model.MarketInfo, error) {
	data, err := r.rdb.Get(ctx, marketKey(address)).Bytes()
	if err == nil {
		var m model.MarketInfo
		if json.Unmarshal(data, &m) == nil {
			return &m, nil
		}
	}

	m, err := r.primary.GetMarket(ctx, address)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(m); err == nil {
		r.rdb.Set(ctx, marketKey(address), data, r.ttl)
	}
	return m, nil
}

// Invalidate drops the cached list and the given markets.
func (r *CachedRegistry) Invalidate(ctx context.Context, addresses ...string) {
	keys := []string{listKey}
	for _, a := range addresses {
		keys = append(keys, marketKey(a))
	}
	r.rdb.Del(ctx, keys...)
}

const listKey = "registry:markets"

func marketKey(address string) string { return "registry:market:" + address }
