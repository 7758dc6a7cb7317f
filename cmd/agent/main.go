package main

import (
	"fmt"
	"os"

	"monad-trade-agent-go/internal/config"
	"monad-trade-agent-go/internal/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "agent",
		Short: "Social signal trading agent for Monad bonding-curve tokens",
		Long: `agent watches social accounts for token calls, scores them into trade
signals and executes risk-checked, slippage-bounded trades for its managed wallets.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Secrets usually live in .env; a missing file is fine.
			_ = godotenv.Load()
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "./configs", "directory holding config.yml")

	rootCmd.AddCommand(newRunCmd(), newWalletCmd(), newTokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads the configuration and builds the logger of a command.
func loadConfig(service string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("could not load config: %w", err)
	}
	log, err := logger.NewLogger(cfg.Logger, service)
	if err != nil {
		return nil, nil, fmt.Errorf("could not initialize logger: %w", err)
	}
	return &cfg, log, nil
}
