package main

import (
	"fmt"
	"time"

	"monad-trade-agent-go/internal/api"

	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	var subject string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the operator API endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig("token")
			if err != nil {
				return err
			}
			defer log.Sync()
			if cfg.Server.JWTSecret == "" {
				return fmt.Errorf("server.jwt_secret is not set; operator endpoints are open")
			}
			if ttl <= 0 {
				ttl = cfg.Server.TokenTTL
			}
			token, err := api.IssueToken(cfg.Server.JWTSecret, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "operator", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default server.token_ttl)")
	return cmd
}
