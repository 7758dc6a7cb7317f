package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"monad-trade-agent-go/internal/api"
	"monad-trade-agent-go/internal/chain"
	"monad-trade-agent-go/internal/config"
	"monad-trade-agent-go/internal/database"
	"monad-trade-agent-go/internal/events"
	"monad-trade-agent-go/internal/ledger"
	"monad-trade-agent-go/internal/models"
	"monad-trade-agent-go/internal/performance"
	"monad-trade-agent-go/internal/quote"
	"monad-trade-agent-go/internal/retry"
	"monad-trade-agent-go/internal/risk"
	sig "monad-trade-agent-go/internal/signal"
	"monad-trade-agent-go/internal/social"
	"monad-trade-agent-go/internal/trader"
	"monad-trade-agent-go/internal/wallet"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the trading agent and its API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig("agent")
			if err != nil {
				return err
			}
			defer log.Sync()
			log.Info("Configuration loaded", zap.Bool("dry_run", cfg.Trading.DryRun))
			return run(cfg, log)
		},
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-sigchan:
			log.Info("Shutdown signal received, gracefully shutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	db, err := database.NewDatabase(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	repo := database.NewRepository(db)
	log.Info("Database connection successful and schema migrated.")

	limits, err := cfg.Limits()
	if err != nil {
		return err
	}

	// Chain gateway; dry-run fills trades locally.
	client := chain.NewClient(&cfg.Chain, retry.Exponential(3, 500*time.Millisecond), log)
	if _, err := client.GetTime(ctx); err != nil {
		return fmt.Errorf("failed to connect to chain gateway: %w", err)
	}
	log.Info("Successfully connected to chain gateway.")
	var gateway chain.Gateway = client
	if cfg.Trading.DryRun {
		gateway = chain.NewSimulator(client, log)
	}

	sources := []quote.Source{quote.NewCurveSource(gateway)}
	if cfg.Dex.Enabled && cfg.Dex.QuoteURL != "" {
		sources = append(sources, quote.NewDexSource(cfg.Dex.QuoteURL))
	}
	resolver := quote.NewResolver(retry.Exponential(limits.Transaction.MaxRetries, limits.Transaction.RetryDelay), log, sources...)

	book := ledger.New(repo, resolver, log)

	wallets, err := loadWallets(ctx, cfg, repo)
	if err != nil {
		return err
	}
	addresses := make([]string, 0, len(wallets))
	snapshots := make([]performance.WalletStrategy, 0, len(wallets))
	for _, w := range wallets {
		addresses = append(addresses, w.Address())
		snapshots = append(snapshots, performance.WalletStrategy{Wallet: w.Address(), Strategy: string(w.Profile.Tier)})
	}

	// Result sinks
	hub := events.NewHub(256, log)
	go hub.Run(ctx)
	sinks := []events.Sink{hub}
	if cfg.Broker.Enabled {
		publisher, err := events.DialPublisher(ctx, cfg.Broker, log)
		if err != nil {
			return err
		}
		defer publisher.Close()
		sinks = append(sinks, publisher)
	}
	if cfg.Telegram.Token != "" {
		bot, err := events.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID, book, addresses, log)
		if err != nil {
			return fmt.Errorf("failed to start telegram bot: %w", err)
		}
		go bot.Start(ctx)
		sinks = append(sinks, bot)
	}
	fanout := events.NewFanout(log, sinks...)

	coordinator := trader.NewCoordinator(resolver, risk.NewGate(limits, log), book, gateway, fanout, trader.Options{
		Limits:       limits,
		PollInterval: 2 * time.Second,
	}, log)

	source := social.NewClient(&cfg.Social, log)
	evaluator := sig.NewEvaluator(cfg.Signal, cfg.Social.WatchedAccounts)
	engine := trader.NewEngine(log, cfg, coordinator, book, source, evaluator, wallets)

	recorder := performance.NewRecorder(repo, snapshots, log)
	if _, err := recorder.Start(ctx, cfg.Performance.Schedule); err != nil {
		return err
	}

	server := api.NewServer(cfg.Server, api.Deps{
		Positions: book,
		Trades:    repo,
		Status:    engine,
		Stream:    hub.ServeWS,
	}, log)
	server.Start()

	runErr := engine.Run(ctx)
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Error("API server shutdown failed", zap.Error(err))
	}

	log.Info("Agent has been shut down.")
	return runErr
}

// loadWallets builds the managed wallets from the config and registers them.
func loadWallets(ctx context.Context, cfg *config.Config, repo *database.Repository) ([]trader.Wallet, error) {
	table, err := cfg.Strategies()
	if err != nil {
		return nil, err
	}
	wallets := make([]trader.Wallet, 0, len(cfg.Wallets))
	for i, wc := range cfg.Wallets {
		key := wc.PrivateKey
		if key == "" {
			key = os.Getenv(walletKeyEnv(wc.Name))
		}
		acct, err := wallet.GetAccount(key)
		if err != nil {
			return nil, fmt.Errorf("wallet %d (%s): %w", i, wc.Name, err)
		}
		name := wc.Strategy
		if name == "" {
			name = cfg.Trading.Strategy
		}
		profile, err := table.Lookup(name)
		if err != nil {
			return nil, fmt.Errorf("wallet %d (%s): %w", i, wc.Name, err)
		}
		if err := repo.UpsertUser(ctx, &models.User{Name: wc.Name, Address: acct.Address(), Strategy: string(profile.Tier)}); err != nil {
			return nil, fmt.Errorf("failed to register wallet %s: %w", acct.Address(), err)
		}
		wallets = append(wallets, trader.Wallet{Name: wc.Name, Signer: acct, Profile: profile})
	}
	return wallets, nil
}

// walletKeyEnv names the environment variable holding a wallet's private key.
func walletKeyEnv(name string) string {
	upper := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		}
		return '_'
	}, name)
	return "WALLET_" + upper + "_PRIVATE_KEY"
}
