// Package commands implements margctl, the operator CLI for user management,
// history seeding and road set inspection.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/couchcryptid/margdarshak/internal/app"
	"github.com/couchcryptid/margdarshak/internal/config"
	"github.com/couchcryptid/margdarshak/internal/observability"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

type options struct {
	envFile  string
	logLevel string
	services *app.App
}

// Execute runs the root command against os.Args.
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd builds the margctl command tree. Services are wired from the same
// environment as the server before any subcommand runs.
func NewRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:          "margctl",
		Short:        "MargDarshak operator tools",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.build(cmd.Context())
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if opts.services == nil {
				return nil
			}
			return opts.services.Close()
		},
	}

	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "error", "log level (debug, info, warn, error)")

	root.AddCommand(createUserCmd(opts), seedHistoryCmd(opts), roadsCmd(opts))
	return root
}

func (o *options) build(ctx context.Context) error {
	if err := godotenv.Load(o.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", o.envFile, err)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	cfg.LogLevel = o.logLevel
	logger := observability.NewLogger(cfg)

	services, err := app.Build(ctx, cfg, logger, observability.NewMetricsWith(prometheus.NewRegistry()))
	if err != nil {
		return err
	}
	o.services = services
	return nil
}
