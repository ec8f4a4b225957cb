// Package config defines the configuration for the valuation engine and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/sandglass/valuation-engine/internal/model"
	"github.com/sandglass/valuation-engine/internal/registry"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by VALUER_* environment variables.
type Config struct {
	Chain     ChainConfig        `toml:"chain"`
	Oracle    OracleConfig       `toml:"oracle"`
	Database  DatabaseConfig     `toml:"database"`
	Redis     RedisConfig        `toml:"redis"`
	Server    ServerConfig       `toml:"server"`
	Valuation ValuationConfig    `toml:"valuation"`
	Markets   []model.MarketInfo `toml:"markets"`
	LogLevel  string             `toml:"log_level"`
}

// ChainConfig selects the RPC node and the programs markets live under.
type ChainConfig struct {
	RPCURL         string `toml:"rpc_url"`
	ProgramID      string `toml:"program_id"`
	TokenProgramID string `toml:"token_program_id"`
	Commitment     string `toml:"commitment"`
}

// OracleConfig holds Pyth Hermes parameters.
type OracleConfig struct {
	HermesURL string   `toml:"hermes_url"`
	Timeout   duration `toml:"timeout"`
	MaxAge    duration `toml:"max_age"`
}

// DatabaseConfig enables the PostgreSQL market registry when URL is set.
type DatabaseConfig struct {
	URL string `toml:"url"`

	// SeedMarkets upserts the [[markets]] entries into the database at startup.
	SeedMarkets bool `toml:"seed_markets"`
}

// RedisConfig enables Redis caching of the registry and oracle prices.
type RedisConfig struct {
	URL         string   `toml:"url"`
	RegistryTTL duration `toml:"registry_ttl"`
	PriceTTL    duration `toml:"price_ttl"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port           int      `toml:"port"`
	QuoteInterval  duration `toml:"quote_interval"`
	RequestTimeout duration `toml:"request_timeout"`
}

// ValuationConfig tunes the valuation service.
type ValuationConfig struct {
	Concurrency int `toml:"concurrency"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			RPCURL:         "https://mainnetbeta-rpc.eclipse.xyz",
			TokenProgramID: "TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb",
			Commitment:     "processed",
		},
		Oracle: OracleConfig{
			HermesURL: "https://hermes.pyth.network",
			Timeout:   duration{10 * time.Second},
			MaxAge:    duration{5 * time.Minute},
		},
		Redis: RedisConfig{
			RegistryTTL: duration{30 * time.Second},
			PriceTTL:    duration{5 * time.Second},
		},
		Server: ServerConfig{
			Port:           8080,
			QuoteInterval:  duration{30 * time.Second},
			RequestTimeout: duration{30 * time.Second},
		},
		Valuation: ValuationConfig{
			Concurrency: 4,
		},
		LogLevel: "info",
	}
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validCommitments = map[string]bool{
	"processed": true,
	"confirmed": true,
	"finalized": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Chain
	if c.Chain.RPCURL == "" {
		errs = append(errs, "chain: rpc_url must not be empty")
	}
	if _, err := solana.PublicKeyFromBase58(c.Chain.ProgramID); err != nil {
		errs = append(errs, fmt.Sprintf("chain: program_id %q is not a valid public key", c.Chain.ProgramID))
	}
	if _, err := solana.PublicKeyFromBase58(c.Chain.TokenProgramID); err != nil {
		errs = append(errs, fmt.Sprintf("chain: token_program_id %q is not a valid public key", c.Chain.TokenProgramID))
	}
	if !validCommitments[c.Chain.Commitment] {
		errs = append(errs, fmt.Sprintf("chain: unknown commitment %q (valid: processed, confirmed, finalized)", c.Chain.Commitment))
	}

	// Oracle
	if c.Oracle.HermesURL == "" {
		errs = append(errs, "oracle: hermes_url must not be empty")
	}
	if c.Oracle.Timeout.Duration <= 0 {
		errs = append(errs, "oracle: timeout must be positive")
	}
	if c.Oracle.MaxAge.Duration < 0 {
		errs = append(errs, "oracle: max_age must not be negative")
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port %d out of range", c.Server.Port))
	}
	if c.Server.QuoteInterval.Duration <= 0 {
		errs = append(errs, "server: quote_interval must be positive")
	}

	if c.Valuation.Concurrency < 1 {
		errs = append(errs, "valuation: concurrency must be at least 1")
	}

	// Markets are only required when the registry is not in the database.
	if c.Database.URL == "" && len(c.Markets) == 0 {
		errs = append(errs, "markets: at least one [[markets]] entry is required without database.url")
	}
	if c.Database.SeedMarkets && c.Database.URL == "" {
		errs = append(errs, "database: seed_markets requires database.url")
	}
	seen := make(map[string]bool)
	for i, m := range c.Markets {
		if err := registry.Validate(m); err != nil {
			errs = append(errs, fmt.Sprintf("markets[%d]: %v", i, err))
		}
		if seen[m.MarketAccount] {
			errs = append(errs, fmt.Sprintf("markets[%d]: duplicate market_account %s", i, m.MarketAccount))
		}
		seen[m.MarketAccount] = true
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
