package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"freelance/internal/config"
	"freelance/internal/mpesa"
	"freelance/internal/repository/postgres"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "mpesactl",
		Short:   "Operator tool for the freelance payment service",
		Version: Version,
		// Errors are printed once by main.
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func migrateCmd() *cobra.Command {
	var down, status bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long: `Apply the embedded goose migrations to the database configured by DB_*.

Examples:
  mpesactl migrate
  mpesactl migrate --status
  mpesactl migrate --down`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			db, err := sql.Open("postgres", cfg.Database.DSN())
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer db.Close()

			switch {
			case status:
				return postgres.MigrationStatus(db)
			case down:
				return postgres.MigrateDown(db)
			default:
				if err := postgres.Migrate(db); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			}
		},
	}

	cmd.Flags().BoolVar(&down, "down", false, "roll back the most recent migration")
	cmd.Flags().BoolVar(&status, "status", false, "show migration status")

	return cmd
}

func tokenCmd() *cobra.Command {
	var reveal bool

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Fetch an M-Pesa access token to check the consumer key and secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Mpesa.Timeout+5*time.Second)
			defer cancel()

			client := mpesa.NewClient(cfg.Mpesa, nil)
			token, err := client.Tokens().Token(ctx)
			if err != nil {
				return err
			}

			if !reveal {
				token = maskToken(token)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "token from %s: %s\n", mpesa.BaseURL(cfg.Mpesa), token)
			return nil
		},
	}

	cmd.Flags().BoolVar(&reveal, "reveal", false, "print the full token")

	return cmd
}

func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Report which M-Pesa operations are fully configured",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			client := mpesa.NewClient(cfg.Mpesa, nil)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "environment: %s (%s)\n", cfg.Mpesa.Environment, mpesa.BaseURL(cfg.Mpesa))
			for _, op := range []struct {
				name string
				op   mpesa.Operation
			}{
				{"stk push", mpesa.OperationSTKPush},
				{"b2c", mpesa.OperationB2C},
			} {
				if err := client.Validate(op.op); err != nil {
					fmt.Fprintf(out, "%-9s %v\n", op.name+":", err)
					continue
				}
				fmt.Fprintf(out, "%-9s ok\n", op.name+":")
			}
			return nil
		},
	}
}

func maskToken(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
