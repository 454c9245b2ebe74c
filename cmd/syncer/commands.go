package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"article_sync/internal/api"
	"article_sync/internal/broker"
	"article_sync/internal/domain"
	"article_sync/internal/service"
	"article_sync/internal/storage/postgres"
	"article_sync/migrations"
)

func serveCmd(opts *options) *cobra.Command {
	var syncOnStart bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler, job worker and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := withSignals(cmd.Context(), a.logger)
			defer cancel()

			a.scheduler.Start(ctx)
			defer a.scheduler.Stop()

			if err := a.armEvents(syncOnStart); err != nil {
				return err
			}

			dispatcher, wait, err := a.startDispatcher(ctx)
			if err != nil {
				return err
			}

			a.logger.Info("starting article syncer",
				"schedule", a.cfg.Sync.Schedule,
				"settings_backend", a.cfg.Settings.Backend,
				"ephemeral", opts.ephemeral,
			)

			handler := api.NewHandler(a.registry, a.runner, dispatcher, a.scheduler, a.logger)
			err = api.NewServer(a.cfg.API.Addr, handler, a.logger).Run(ctx)

			cancel()
			wait()
			return err
		},
	}

	cmd.Flags().BoolVar(&syncOnStart, "sync-on-start", false, "run a full sync immediately")
	return cmd
}

// startDispatcher picks the RabbitMQ job queue when the broker is enabled and
// an in-process worker otherwise. The returned func waits for the worker.
func (a *app) startDispatcher(ctx context.Context) (api.Dispatcher, func(), error) {
	if !a.cfg.RabbitMQ.Enabled {
		local := service.NewLocalDispatcher(a.runner, 0, a.cfg.Sync.RunTimeout, a.logger)
		local.Start(ctx)
		return local, local.Wait, nil
	}

	queue, err := broker.NewJobQueue(a.brokerConfig(), a.cfg.Sync.RunTimeout, a.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connect job queue: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := queue.Consume(ctx, a.runner); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("job consumer stopped", "error", err)
		}
	}()

	return queue, func() {
		<-done
		if err := queue.Close(); err != nil {
			a.logger.Warn("error closing job queue", "error", err)
		}
	}, nil
}

func syncCmd(opts *options) *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize one source or all sources now",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := withSignals(cmd.Context(), a.logger)
			defer cancel()

			if source == "" {
				return printJSON(cmd.OutOrStdout(), a.runner.SyncAll(ctx, domain.TriggerManual))
			}

			result, err := a.runner.SyncSource(ctx, source, domain.TriggerManual)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "URL of a single source to synchronize")
	return cmd
}

func sourcesCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Manage configured sources",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List configured sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.close()

			sources, err := a.registry.List(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tURL\tPOSTS\tCATEGORY\tAUTHOR\tLAST SYNC")
			for _, s := range sources {
				lastSync := "never"
				if s.LastSyncAt != nil {
					lastSync = humanize.Time(*s.LastSyncAt)
				}
				fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%d\t%s\n", s.ID, s.URL, s.PostCount, s.CategoryID, s.AuthorID, lastSync)
			}
			return w.Flush()
		},
	}

	var candidate domain.SourceConfig
	addCmd := &cobra.Command{
		Use:   "add URL",
		Short: "Register a source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.close()

			candidate.URL = args[0]
			cfg, err := a.registry.Add(cmd.Context(), candidate)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), cfg)
		},
	}
	addCmd.Flags().IntVar(&candidate.PostCount, "post-count", domain.DefaultPostCount, "articles fetched per run (1-100)")
	addCmd.Flags().IntVar(&candidate.CategoryID, "category", 0, "category assigned to imported articles")
	addCmd.Flags().IntVar(&candidate.AuthorID, "author", 0, "author of imported articles")

	removeCmd := &cobra.Command{
		Use:   "remove URL",
		Short: "Unregister a source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.registry.Remove(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(listCmd, addCmd, removeCmd)
	return cmd
}

func logsCmd(opts *options) *cobra.Command {
	var n int

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent sync runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.close()

			entries, err := a.runner.RecentLogs(cmd.Context(), n)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "WHEN\tTRIGGER\tSOURCE\tOK\tMESSAGE")
			for _, e := range entries {
				source := "all"
				if e.SourceURL != nil {
					source = *e.SourceURL
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n", humanize.Time(e.Timestamp), e.Trigger, source, e.Success, e.Message)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&n, "number", "n", 20, "number of entries to show (0 for all)")
	return cmd
}

func cronCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "cron",
		Short: "Show the configured schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.close()
			defer a.scheduler.Stop()

			if err := a.armEvents(false); err != nil {
				return err
			}

			info := a.runner.CronInfo(cmd.Context())
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "EVENT\tSCHEDULE\tNEXT RUN")
			for _, ev := range info.Events {
				fmt.Fprintf(w, "%s\t%s\t%s\n", ev.Name, ev.Schedule, humanize.Time(ev.NextRun))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), info.NextRunMessage)
			return nil
		},
	}
}

func migrateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.ephemeral {
				return errors.New("nothing to migrate in ephemeral mode")
			}
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			logger := setupLogger(cfg.LogLevel)

			db, err := sqlx.ConnectContext(cmd.Context(), "postgres", cfg.Database.DSN())
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer db.Close()

			applied, err := postgres.Migrate(cmd.Context(), db, migrations.FS, logger)
			if err != nil {
				return err
			}
			logger.Info("migrations complete", "applied", applied)
			return nil
		},
	}
}

func withSignals(parent context.Context, logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)

		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
