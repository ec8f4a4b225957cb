// Command valuer prints the sandglass LP valuation of one wallet as JSON.
//
// Usage:
//
//	valuer -config valuer.toml -wallet <pubkey>
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sandglass/valuation-engine/internal/app"
	"github.com/sandglass/valuation-engine/internal/config"
)

func main() {
	configPath := flag.String("config", os.Getenv("VALUER_CONFIG"), "path to the TOML config file")
	wallet := flag.String("wallet", "", "wallet public key to value")
	timeout := flag.Duration("timeout", time.Minute, "overall deadline")
	flag.Parse()

	if *wallet == "" {
		fmt.Fprintln(os.Stderr, "usage: valuer -config valuer.toml -wallet <pubkey>")
		os.Exit(2)
	}

	if err := run(*configPath, *wallet, *timeout); err != nil {
		fmt.Fprintf(os.Stderr, "valuer: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, wallet string, timeout time.Duration) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	slog.SetDefault(app.NewLogger(os.Stderr, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stack, err := app.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer stack.Close()

	res, err := stack.Service.ComputeUserValuation(ctx, wallet)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
