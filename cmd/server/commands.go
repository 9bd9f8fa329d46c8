package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/spf13/cobra"

	"github.com/pesio-ai/be-proc-requisitions/internal/repository"
	"github.com/pesio-ai/be-proc-requisitions/internal/repository/migrations"
)

func newEscalateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "escalate",
		Short: "Run a single escalation pass against the database and print the report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			db, err := openDatabase(ctx, cfg.Database)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer db.Close()

			store := repository.NewStore(db)
			c := buildCore(ctx, cfg, store, ruleSource(cfg.Rules, store), nil, nil, log)

			report, err := c.escalation.ProcessEscalations(ctx)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			db, err := openDatabase(ctx, cfg.Database)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer db.Close()

			if _, err := db.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
				name       TEXT PRIMARY KEY,
				applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`); err != nil {
				return fmt.Errorf("create schema_migrations: %w", err)
			}

			all, err := migrations.All()
			if err != nil {
				return err
			}
			for _, mig := range all {
				applied, err := applyMigration(ctx, db.InTransaction, mig)
				if err != nil {
					return fmt.Errorf("migration %s: %w", mig.Name, err)
				}
				if applied {
					log.Info().Str("migration", mig.Name).Msg("Migration applied")
				}
			}
			return nil
		},
	}
}

func applyMigration(ctx context.Context, inTx func(context.Context, func(pgx.Tx) error) error, mig migrations.Migration) (bool, error) {
	applied := false
	err := inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `INSERT INTO schema_migrations (name) VALUES ($1) ON CONFLICT DO NOTHING`, mig.Name)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		if _, err := tx.Exec(ctx, mig.SQL); err != nil {
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}

func newRulesCommand() *cobra.Command {
	rulesCmd := &cobra.Command{
		Use:   "rules",
		Short: "Workflow rule utilities",
	}
	rulesCmd.AddCommand(&cobra.Command{
		Use:   "validate [file]",
		Short: "Parse and validate a rule file (the embedded defaults when omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			n, err := validateRulesFile(cmd.Context(), path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d rules OK\n", n)
			return nil
		},
	})
	return rulesCmd
}

