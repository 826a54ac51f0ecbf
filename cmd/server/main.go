package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vrodas/lanchat-server/internal/app"
	"github.com/vrodas/lanchat-server/internal/config"
	"github.com/vrodas/lanchat-server/internal/log"
)

func main() {
	var (
		configPath string
		overrides  config.Config
		logLevel   string
	)

	rootCmd := &cobra.Command{
		Use:   "lanchat-server",
		Short: "LAN chat, file transfer and video relay server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := log.New(logLevel)

			cfg, path, err := config.Load(logger, configPath)
			if err != nil {
				return err
			}
			applyOverrides(&cfg, cmd, overrides)
			logger = log.New(cfg.LogLevel)
			logger.Info().Str("config", path).Msg("configuration loaded")

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(&cfg, logger)
			if err != nil {
				return err
			}

			if err := application.Run(ctx); err != nil {
				return err
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}

	flags := rootCmd.Flags()
	flags.StringVar(&configPath, "config", "", "path to config file")
	flags.StringVar(&overrides.ChatAddr, "chat-addr", "", "chat listen address")
	flags.StringVar(&overrides.FileAddr, "file-addr", "", "file transfer listen address")
	flags.StringVar(&overrides.MediaAddr, "media-addr", "", "UDP media relay address")
	flags.StringVar(&overrides.StorageDir, "storage-dir", "", "uploaded file storage directory")
	flags.StringVar(&overrides.DatabasePath, "db", "", "sqlite database path")
	flags.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// applyOverrides lets explicitly set flags win over config file and env values.
func applyOverrides(cfg *config.Config, cmd *cobra.Command, overrides config.Config) {
	if cmd.Flags().Changed("chat-addr") {
		cfg.ChatAddr = overrides.ChatAddr
	}
	if cmd.Flags().Changed("file-addr") {
		cfg.FileAddr = overrides.FileAddr
	}
	if cmd.Flags().Changed("media-addr") {
		cfg.MediaAddr = overrides.MediaAddr
	}
	if cmd.Flags().Changed("storage-dir") {
		cfg.StorageDir = overrides.StorageDir
	}
	if cmd.Flags().Changed("db") {
		cfg.DatabasePath = overrides.DatabasePath
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel, _ = cmd.Flags().GetString("log-level")
	}
}
