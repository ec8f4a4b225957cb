package registry

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/gagliardetto/solana-go"

	"github.com/sandglass/valuation-engine/internal/model"
)

const maxTokenDecimals = 18

// feedRegex matches oracle symbols: {AssetClass}.{BASE}/{QUOTE}[.{SUFFIX}]
// Example: Crypto.TETH/ETH.RR
var feedRegex = regexp.MustCompile(`^[A-Za-z]+\.[A-Za-z0-9]+/[A-Za-z0-9]+(\.[A-Za-z0-9]+)?$`)

var (
	ErrInvalidMarket  = errors.New("registry: invalid market entry")
	ErrInvalidAddress = errors.New("registry: invalid account address")
	ErrInvalidFeed    = errors.New("registry: invalid price feed symbol")
)

// Validate checks a registry entry before it is stored.
func Validate(m model.MarketInfo) error {
	if m.Symbol == "" {
		return fmt.Errorf("%w: %s has no symbol", ErrInvalidMarket, m.MarketAccount)
	}
	if err := validateAddress("market account", m.MarketAccount); err != nil {
		return err
	}

	tokens := []struct {
		role string
		tok  model.Token
	}{
		{"sy", m.TokenSY}, {"pt", m.TokenPT}, {"yt", m.TokenYT}, {"lp", m.TokenLP},
	}
	for _, t := range tokens {
		if err := validateAddress(t.role+" mint", t.tok.Mint); err != nil {
			return fmt.Errorf("market %s: %w", m.Symbol, err)
		}
		if t.tok.Decimals < 0 || t.tok.Decimals > maxTokenDecimals {
			return fmt.Errorf("%w: market %s %s decimals %d outside [0, %d]",
				ErrInvalidMarket, m.Symbol, t.role, t.tok.Decimals, maxTokenDecimals)
		}
	}

	for _, feed := range []string{m.YieldPriceFeed, m.BasePriceFeed} {
		if feed != "" && !feedRegex.MatchString(feed) {
			return fmt.Errorf("%w: %s (expected {class}.{base}/{quote})", ErrInvalidFeed, feed)
		}
	}
	return nil
}

func validateAddress(role, addr string) error {
	if _, err := solana.PublicKeyFromBase58(addr); err != nil {
		return fmt.Errorf("%w: %s %q", ErrInvalidAddress, role, addr)
	}
	return nil
}
