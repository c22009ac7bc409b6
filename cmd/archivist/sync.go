package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mohammad-safakhou/archivist/config"
	"github.com/mohammad-safakhou/archivist/internal/index"
	"github.com/mohammad-safakhou/archivist/internal/retrieval"
	"github.com/mohammad-safakhou/archivist/internal/runtime"
	"github.com/mohammad-safakhou/archivist/internal/scheduler"
	"github.com/mohammad-safakhou/archivist/internal/store"
	"github.com/spf13/cobra"
)

func syncCMD(cfgPath *string) *cobra.Command {
	var once bool
	var noLock bool
	var sync = &cobra.Command{
		Use:   "sync",
		Short: "Periodically pull new archive records into postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(*cfgPath)
			if err != nil {
				return err
			}
			if cfg.Archive.URL == "" {
				return fmt.Errorf("archive.url must be configured to sync")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			tel, tracer, err := runtime.SetupTelemetry(ctx, cfg.Telemetry, runtime.TelemetryOptions{
				ServiceName:  "archivist-sync",
				ServeMetrics: !once,
			})
			if err != nil {
				return err
			}
			defer tel.Shutdown(cmd.Context())

			src, _, cleanup, err := buildSource(ctx, cfg, cfg.Archive.URL)
			if err != nil {
				return err
			}
			defer cleanup()

			dsn, err := runtime.BuildPostgresDSN(cfg)
			if err != nil {
				return err
			}
			st, err := store.NewWithDSN(ctx, dsn)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer st.Close()

			idx, err := index.Open(cfg.Index.Path)
			if err != nil {
				return err
			}
			defer idx.Close()

			runner := &scheduler.Runner{
				Walker:   retrieval.NewWalker(src, retrieval.WithCap(cfg.Archive.Cap), retrieval.WithTracer(tracer)),
				Store:    st,
				Index:    idx,
				Source:   cfg.Archive.URL,
				Cron:     cfg.Schedule.Cron,
				Lookback: cfg.Schedule.Lookback,
				LockTTL:  cfg.Schedule.LockTTL,
				Poll:     cfg.Schedule.Poll,
			}
			if !noLock {
				rdb, err := connectRedis(ctx, cfg)
				if err != nil {
					return fmt.Errorf("connect redis: %w", err)
				}
				defer rdb.Close()
				runner.Rdb = rdb
			}

			if once {
				rep, err := runner.RunOnce(ctx)
				if errors.Is(err, scheduler.ErrLocked) {
					fmt.Fprintln(cmd.OutOrStdout(), "another sync is running; nothing to do")
					return nil
				}
				if err != nil {
					return err
				}
				if rep == nil {
					fmt.Fprintln(cmd.OutOrStdout(), "already up to date")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "synced %d records for %s in %d queries\n", len(rep.Records), rep.Range, rep.Queries)
				return nil
			}
			runner.Start(ctx)
			return nil
		},
	}
	sync.Flags().BoolVar(&once, "once", false, "run a single sync and exit")
	sync.Flags().BoolVar(&noLock, "no-lock", false, "skip the redis lock (single instance only)")

	return sync
}
