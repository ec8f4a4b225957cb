package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies VALUER_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known environment variables and overwrites the
// corresponding Config fields when a variable is set. The unprefixed PORT,
// DATABASE_URL and REDIS_URL are honored first so VALUER_* wins when both
// are present.
func applyEnvOverrides(cfg *Config) {
	setInt(&cfg.Server.Port, "PORT")
	setStr(&cfg.Database.URL, "DATABASE_URL")
	setStr(&cfg.Redis.URL, "REDIS_URL")

	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "VALUER_CHAIN_RPC_URL")
	setStr(&cfg.Chain.ProgramID, "VALUER_CHAIN_PROGRAM_ID")
	setStr(&cfg.Chain.TokenProgramID, "VALUER_CHAIN_TOKEN_PROGRAM_ID")
	setStr(&cfg.Chain.Commitment, "VALUER_CHAIN_COMMITMENT")

	// ── Oracle ──
	setStr(&cfg.Oracle.HermesURL, "VALUER_ORACLE_HERMES_URL")
	setDuration(&cfg.Oracle.Timeout, "VALUER_ORACLE_TIMEOUT")
	setDuration(&cfg.Oracle.MaxAge, "VALUER_ORACLE_MAX_AGE")

	// ── Storage ──
	setStr(&cfg.Database.URL, "VALUER_DATABASE_URL")
	setBool(&cfg.Database.SeedMarkets, "VALUER_DATABASE_SEED_MARKETS")
	setStr(&cfg.Redis.URL, "VALUER_REDIS_URL")
	setDuration(&cfg.Redis.RegistryTTL, "VALUER_REDIS_REGISTRY_TTL")
	setDuration(&cfg.Redis.PriceTTL, "VALUER_REDIS_PRICE_TTL")

	// ── Server ──
	setInt(&cfg.Server.Port, "VALUER_SERVER_PORT")
	setDuration(&cfg.Server.QuoteInterval, "VALUER_SERVER_QUOTE_INTERVAL")
	setDuration(&cfg.Server.RequestTimeout, "VALUER_SERVER_REQUEST_TIMEOUT")

	setInt(&cfg.Valuation.Concurrency, "VALUER_VALUATION_CONCURRENCY")
	setStr(&cfg.LogLevel, "VALUER_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}
