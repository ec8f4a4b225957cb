// Package registry holds the list of sandglass markets a valuation covers.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (seeded from configuration, and for testing).
package registry

import (
	"context"
	"errors"

	"github.com/sandglass/valuation-engine/internal/model"
)

// ErrNotFound is returned when a market is not in the registry.
var ErrNotFound = errors.New("registry: market not found")

// Registry lists markets in a stable order.
type Registry interface {
	// ListMarkets returns every registered market.
	ListMarkets(ctx context.Context) ([]model.MarketInfo, error)

	// GetMarket retrieves a market by its market account address.
	GetMarket(ctx context.Context, address string) (*model.MarketInfo, error)
}
