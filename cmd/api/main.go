package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"monad-trade-agent-go/internal/api"
	"monad-trade-agent-go/internal/chain"
	"monad-trade-agent-go/internal/config"
	"monad-trade-agent-go/internal/database"
	"monad-trade-agent-go/internal/ledger"
	"monad-trade-agent-go/internal/logger"
	"monad-trade-agent-go/internal/quote"
	"monad-trade-agent-go/internal/retry"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// api serves the read-only positions and trades API next to a running agent
// that shares its database.
func main() {
	configPath := flag.String("config", "./configs", "directory holding config.yml")
	flag.Parse()
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger, "api")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Connect to the database
	db, err := database.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	repo := database.NewRepository(db)

	// Without a gateway positions are valued at their last fill price.
	var prices ledger.PriceSource
	if cfg.Chain.RPCURL != "" {
		gw := chain.NewClient(&cfg.Chain, retry.Exponential(3, 500*time.Millisecond), log)
		sources := []quote.Source{quote.NewCurveSource(gw)}
		if cfg.Dex.Enabled && cfg.Dex.QuoteURL != "" {
			sources = append(sources, quote.NewDexSource(cfg.Dex.QuoteURL))
		}
		prices = quote.NewResolver(retry.Fixed(2, time.Second), log, sources...)
	}

	server := api.NewServer(cfg.Server, api.Deps{
		Positions: ledger.New(repo, prices, log),
		Trades:    repo,
	}, log)
	server.Start()

	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
	<-sigchan
	log.Info("Shutdown signal received, gracefully shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		log.Error("API server shutdown failed", zap.Error(err))
	}
}
