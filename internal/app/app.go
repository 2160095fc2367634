package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jzydn/jay-clips-archive/internal/config"
	"github.com/jzydn/jay-clips-archive/internal/httpserver"
	"github.com/jzydn/jay-clips-archive/internal/logging"
)

// Run bootstraps the clip archive service with the given command line.
func Run(ctx context.Context, args []string) error {
	root := newRootCommand()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "clipsd",
		Short:         "clip archive service",
		Long:          `Stores uploaded video clips, serves them back, and manages share visibility.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(*cobra.Command, []string) error {
			return errors.New("expected command: serve, migrate, seed, sweep, or hash-key")
		},
	}

	root.AddCommand(
		newServeCommand(),
		newMigrateCommand(),
		newSeedCommand(),
		newSweepCommand(),
		newHashKeyCommand(),
	)
	return root
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func loadConfigAndLogger(w io.Writer) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}

	logger := logging.New(w, cfg.LogLevel)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func serve(ctx context.Context) error {
	cfg, logger, err := loadConfigAndLogger(os.Stdout)
	if err != nil {
		return err
	}

	repo, closeRepo, err := openClipRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeRepo()

	blobs, err := openBlobStore(ctx, cfg)
	if err != nil {
		return err
	}

	deps := buildDependencies(newClipService(repo, blobs, cfg), blobs, cfg)
	srv := httpserver.New(cfg.AppPort, newHTTPHandler(logger, deps, cfg))

	logger.Info("starting http server",
		"port", cfg.AppPort,
		"database_driver", cfg.DatabaseDriver,
		"storage_backend", cfg.Storage.Backend,
	)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = srv.Run(ctx)
	logger.Info("http server stopped", "error", err)
	return err
}
