package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bazaarino/bazaar/internal/infra"
)

func migrateCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate up|down",
		Short:     "Apply or roll back the embedded schema migrations",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if e.cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL must be set")
			}
			if err := infra.Migrate(e.cfg.DatabaseURL, args[0]); err != nil {
				return err
			}
			e.logger.Info("migration finished", "direction", args[0])
			fmt.Fprintf(cmd.OutOrStdout(), "migrated %s\n", args[0])
			return nil
		},
	}
}
