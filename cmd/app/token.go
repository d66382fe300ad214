package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"rps_wager/internal/config"
	"rps_wager/internal/service"
)

// newTokenCmd mints a bearer token with the server's secret, for local
// testing and smoke checks.
func newTokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <player-id>",
		Short: "Mint a development bearer token for a player",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if err := cfg.RequireJWTSecret(); err != nil {
				return err
			}
			token, err := service.NewTokenVerifier(cfg.JWTSecret).Sign(args[0], ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}
