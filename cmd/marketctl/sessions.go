package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bazaarino/bazaar/internal/session"
)

func sessionsCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage login sessions",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "sweep",
		Short: "Mark every lapsed active session as expired",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			db, err := e.database(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			n, err := session.NewPostgresRepository(db).ExpireBefore(ctx, time.Now().UTC())
			if err != nil {
				return err
			}
			e.logger.Info("expired sessions swept", "count", n)
			fmt.Fprintf(cmd.OutOrStdout(), "expired %d sessions\n", n)
			return nil
		},
	})
	return cmd
}
