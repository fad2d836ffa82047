package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solarafrica/solarplanner/internal/migrate"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Root().PersistentPreRunE(cmd, args); err != nil {
				return err
			}
			if configFrom(cmd).DBDriver == "memory" {
				return fmt.Errorf("migrations need a sqlite or postgres db_driver")
			}
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := configFrom(cmd)
			return migrate.Up(cmd.Context(), cfg.DBDriver, cfg.DBDSN)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := configFrom(cmd)
			return migrate.Down(cmd.Context(), cfg.DBDriver, cfg.DBDSN)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := configFrom(cmd)
			if err := migrate.Status(cmd.Context(), cfg.DBDriver, cfg.DBDSN); err != nil {
				return err
			}
			v, err := migrate.Version(cmd.Context(), cfg.DBDriver, cfg.DBDSN)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version: %d\n", v)
			return nil
		},
	})
	return cmd
}
