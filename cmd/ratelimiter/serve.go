package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aesthetiq/ratelimiter/internal/config"
	"github.com/aesthetiq/ratelimiter/internal/logging"
	"github.com/aesthetiq/ratelimiter/internal/server"
)

var serveFlags struct {
	port     string
	logLevel string
	noReload bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the rate limiting server",
	Long: `Start the HTTP server with the configured storage backend and rate limits.

The rate_limits section of the config file is reloaded when the file changes.

Examples:
  # Start with default config lookup
  ratelimiter serve

  # Override the listen address
  ratelimiter serve --port :9090`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveFlags.port, "port", "p", "", "override listen address")
	serveCmd.Flags().StringVar(&serveFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	serveCmd.Flags().BoolVar(&serveFlags.noReload, "no-reload", false, "do not watch the config file")
}

func runServe(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if serveFlags.port != "" {
		cfg.Server.Port = serveFlags.port
	}
	if serveFlags.logLevel != "" {
		cfg.Log.Level = serveFlags.logLevel
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Writer: os.Stdout,
	})
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	if !serveFlags.noReload {
		loader.Watch(logging.Component(logger, "config"), srv.Reload)
	}

	if err := srv.Run(ctx); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}
