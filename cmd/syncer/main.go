package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"article_sync/internal/config"
)

type options struct {
	configPath string
	ephemeral  bool
}

func main() {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "syncer",
		Short:         "Import articles from remote feeds",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "config.yaml", "path to config file")
	rootCmd.PersistentFlags().BoolVar(&opts.ephemeral, "ephemeral", false, "keep all state in memory")

	rootCmd.AddCommand(
		serveCmd(opts),
		syncCmd(opts),
		sourcesCmd(opts),
		logsCmd(opts),
		cronCmd(opts),
		migrateCmd(opts),
	)

	if err := rootCmd.Execute(); err != nil {
		setupLogger("info").Error("command failed", "error", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file. A missing file is only tolerated in
// ephemeral mode, where defaults are enough to run.
func loadConfig(opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		if opts.ephemeral && errors.Is(err, fs.ErrNotExist) {
			cfg = config.Default()
		} else {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	if opts.ephemeral {
		cfg.Settings.Backend = "memory"
	}
	return cfg, nil
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
