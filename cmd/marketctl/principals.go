package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bazaarino/bazaar/internal/identity"
)

func principalsCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "principals",
		Short: "Manage users and vendors",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "grant-admin <principal-id>",
		Short: "Add the admin role to a principal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := e.database(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			svc := identity.NewService(identity.NewPostgresRepository(db), e.logger)
			if err := svc.GrantAdmin(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "granted admin to %s\n", args[0])
			return nil
		},
	})
	return cmd
}
