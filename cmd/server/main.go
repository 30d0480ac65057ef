package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/roomsync/internal/app"
	"github.com/vovakirdan/roomsync/internal/config"
	"github.com/vovakirdan/roomsync/internal/log"
	"github.com/vovakirdan/roomsync/internal/store/sqlite"
)

type rootFlags struct {
	configPath string
	logLevel   string
	addr       string
	dbPath     string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var flags rootFlags

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the room sync server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), &flags)
		},
	}
	serve.Flags().StringVar(&flags.addr, "addr", "", "HTTP listen address (overrides config)")
	serve.Flags().StringVar(&flags.dbPath, "db", "", "SQLite database path (overrides config)")

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema and exit",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runMigrate(&flags)
		},
	}
	migrate.Flags().StringVar(&flags.dbPath, "db", "", "SQLite database path (overrides config)")

	root := &cobra.Command{
		Use:          "roomsync",
		Short:        "Real-time room presence and messaging server",
		SilenceUsage: true,
		RunE:         serve.RunE,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to config.yaml")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.Flags().AddFlagSet(serve.Flags())
	root.AddCommand(serve, migrate)

	return root
}

// loadConfig resolves configuration and builds the logger it asks for.
func loadConfig(flags *rootFlags) (*config.Config, *zerolog.Logger, error) {
	bootLog := log.New("info", "console")

	cfg, path, err := config.Load(bootLog, flags.configPath)
	if err != nil {
		return nil, nil, err
	}
	cfg.UpdateFrom(config.Config{
		Addr:         flags.addr,
		DatabasePath: flags.dbPath,
		LogLevel:     flags.logLevel,
	})
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	logger := log.New(cfg.LogLevel, cfg.LogFormat)
	logger.Debug().Str("config_path", path).Msg("configuration loaded")
	return &cfg, logger, nil
}

func runServe(ctx context.Context, flags *rootFlags) error {
	cfg, logger, err := loadConfig(flags)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize application")
		return err
	}

	logger.Info().Str("addr", cfg.Addr).Msg("starting roomsync server")
	if err := application.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("server exited with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

func runMigrate(flags *rootFlags) error {
	cfg, logger, err := loadConfig(flags)
	if err != nil {
		return err
	}

	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("schema applied")
	return st.Close()
}
