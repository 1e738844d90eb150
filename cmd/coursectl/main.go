// Command coursectl operates a coursehub deployment: schema migrations,
// catalog seeding, manual enrollments and payment reconciliation.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xenking/coursehub/internal/app"
	"github.com/xenking/coursehub/internal/storage/postgres"
)

var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var verbose bool
	root := &cobra.Command{
		Use:           "coursectl",
		Short:         "Operate the coursehub database and payments",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg := zap.NewDevelopmentConfig()
			if !verbose {
				cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
			}
			lg, err := cfg.Build()
			if err != nil {
				return errors.Wrap(err, "create logger")
			}
			cmd.SetContext(zctx.Base(cmd.Context(), lg))
			return nil
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		migrateCmd(),
		seedCmd(),
		coursesCmd(),
		enrollCmd(),
		reconcileCmd(),
		tokenCmd(),
	)
	return root
}

// connect loads the configuration and opens the database.
func connect(ctx context.Context) (*app.Config, *pgxpool.Pool, error) {
	cfg, err := app.LoadEnvConfig()
	if err != nil {
		return nil, nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, nil, errors.New("database URL is required: set COURSEHUB_DATABASE_URL or DATABASE_URL")
	}
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, errors.Wrap(err, "connect to database")
	}
	return cfg, pool, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			_, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := postgres.RunMigrations(ctx, pool); err != nil {
				return errors.Wrap(err, "run migrations")
			}
			zctx.From(ctx).Info("Schema applied")
			return nil
		},
	}
}
