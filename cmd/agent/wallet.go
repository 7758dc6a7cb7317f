package main

import (
	"context"
	"fmt"
	"time"

	"monad-trade-agent-go/internal/chain"
	"monad-trade-agent-go/internal/retry"
	"monad-trade-agent-go/internal/wallet"

	"github.com/spf13/cobra"
)

func newWalletCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Create and inspect agent wallets",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "generate",
		Short: "Generate a new wallet and print its address and private key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			acct, err := wallet.Generate()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "address:     %s\n", acct.Address())
			fmt.Fprintf(out, "private key: %s\n", acct.PrivateKeyHex())
			fmt.Fprintln(out, "Store the private key in your .env; it is not saved anywhere.")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "check <address|private-key>",
		Short: "Validate an address or private key and print the MON balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			address, err := resolveAddress(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "address: %s\n", address)

			cfg, log, err := loadConfig("wallet")
			if err != nil {
				return err
			}
			defer log.Sync()
			if cfg.Chain.RPCURL == "" {
				fmt.Fprintln(out, "balance: unknown (chain.rpc_url not set)")
				return nil
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := chain.NewClient(&cfg.Chain, retry.Exponential(3, 500*time.Millisecond), log)
			balance, err := client.GetBalance(ctx, address)
			if err != nil {
				return fmt.Errorf("could not get balance: %w", err)
			}
			fmt.Fprintf(out, "balance: %s MON\n", balance.String())
			return nil
		},
	})
	return cmd
}

// resolveAddress accepts an address or a private key and returns the checksummed address.
func resolveAddress(arg string) (string, error) {
	if wallet.IsValidAddress(arg) {
		return wallet.NormalizeAddress(arg)
	}
	if wallet.IsValidPrivateKey(arg) {
		acct, err := wallet.GetAccount(arg)
		if err != nil {
			return "", err
		}
		return acct.Address(), nil
	}
	return "", fmt.Errorf("%q is neither an address nor a private key", arg)
}
