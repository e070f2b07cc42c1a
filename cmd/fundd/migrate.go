package main

import (
	"context"

	"github.com/mborders/logmatic"
	"github.com/spf13/cobra"

	"solana-fund-dao/internal/config"
	"solana-fund-dao/internal/storage/migrations"
	pgstore "solana-fund-dao/internal/storage/postgres"
)

func migrateCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply Postgres ledger and ClickHouse activity migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := g.load()
			if err != nil {
				return err
			}
			return runMigrations(cmd.Context(), cfg, log)
		},
	}
}

// runMigrations applies Postgres and, when configured, ClickHouse migrations.
func runMigrations(ctx context.Context, cfg *config.Config, log *logmatic.Logger) error {
	if cfg.Storage.Backend == config.BackendPostgres {
		pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN, pgstore.WithApplicationName(appName+"-migrate"))
		if err != nil {
			return err
		}
		defer pool.Close()
		applied, err := migrations.RunPostgresMigrations(ctx, pool)
		if err != nil {
			return err
		}
		log.Info("Postgres migrations applied: %d %v", len(applied), applied)
	} else {
		log.Info("Memory ledger needs no migrations")
	}

	if dsn := cfg.Activity.ClickhouseDSN; dsn != "" {
		conn, applied, err := migrations.RunClickhouseMigrations(ctx, dsn)
		if err != nil {
			return err
		}
		conn.Close()
		log.Info("ClickHouse migrations applied: %d %v", len(applied), applied)
	}
	return nil
}
