// Command marketctl runs operator tasks against the marketplace database.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/bazaarino/bazaar/internal/config"
	"github.com/bazaarino/bazaar/internal/infra"
	"github.com/bazaarino/bazaar/internal/logging"
)

// Version is stamped at build time with -ldflags "-X main.Version=...".
var Version = "dev"

// env is filled by the root command before any subcommand runs.
type env struct {
	cfg    config.Config
	logger *slog.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	e := &env{}
	root := &cobra.Command{
		Use:           "marketctl",
		Short:         "Operator tasks for the marketplace backend",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadOperator()
			if err != nil {
				return err
			}
			e.cfg = cfg
			e.logger = logging.New(cfg.LogLevel, cfg.LogFormat)
			return nil
		},
	}

	root.AddCommand(migrateCmd(e))
	root.AddCommand(sessionsCmd(e))
	root.AddCommand(principalsCmd(e))
	return root
}

// database opens the Postgres pool named by DATABASE_URL.
func (e *env) database(ctx context.Context) (*pgxpool.Pool, error) {
	if e.cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL must be set")
	}
	return infra.NewPostgresPool(ctx, e.cfg.DatabaseURL)
}
