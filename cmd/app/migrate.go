package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"rps_wager/internal/db"
	"rps_wager/internal/migrations"
)

func newMigrateCmd() *cobra.Command {
	var (
		dsn   string
		apply bool
	)
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "List or apply the postgres schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !apply {
				names, err := migrations.Names()
				if err != nil {
					return err
				}
				for _, n := range names {
					fmt.Fprintln(cmd.OutOrStdout(), n)
				}
				return nil
			}

			if dsn == "" {
				_ = godotenv.Load()
				dsn = os.Getenv("DATABASE_URL")
			}
			if dsn == "" {
				return errors.New("DATABASE_URL not set")
			}
			pool := db.Connect(dsn)
			defer pool.Close()

			return migrations.Apply(context.WithoutCancel(cmd.Context()), pool, func(name string) {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", name)
			})
		},
	}
	cmd.Flags().StringVar(&dsn, "dsn", "", "Postgres DSN (env: DATABASE_URL)")
	cmd.Flags().BoolVar(&apply, "apply", false, "Apply migrations instead of listing them")
	return cmd
}
