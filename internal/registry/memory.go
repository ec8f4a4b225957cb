package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/sandglass/valuation-engine/internal/model"
)

// MemoryRegistry implements Registry with an ordered in-memory list.
type MemoryRegistry struct {
	mu      sync.RWMutex
	markets []model.MarketInfo
	index   map[string]int
}

// NewMemoryRegistry creates a registry holding markets in the given order.
func NewMemoryRegistry(markets ...model.MarketInfo) (*MemoryRegistry, error) {
	r := &MemoryRegistry{index: make(map[string]int)}
	for _, m := range markets {
		if err := r.AddMarket(context.Background(), m); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// AddMarket validates and appends a market.
func (r *MemoryRegistry) AddMarket(_ context.Context, m model.MarketInfo) error {
	if err := Validate(m); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.index[m.MarketAccount]; ok {
		return fmt.Errorf("market %s already registered", m.MarketAccount)
	}
	r.index[m.MarketAccount] = len(r.markets)
	r.markets = append(r.markets, m)
	return nil
}

func (r *MemoryRegistry) ListMarkets(_ context.Context) ([]model.MarketInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.MarketInfo, len(r.markets))
	copy(out, r.markets)
	return out, nil
}

func (r *MemoryRegistry) GetMarket(_ context.Context, address string) (*model.MarketInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.index[address]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, address)
	}
	m := r.markets[i]
	return &m, nil
}
