package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/mohammad-safakhou/archivist/config"
	"github.com/mohammad-safakhou/archivist/internal/index"
	"github.com/mohammad-safakhou/archivist/internal/retrieval"
	"github.com/mohammad-safakhou/archivist/internal/runtime"
	srv "github.com/mohammad-safakhou/archivist/internal/server"
	"github.com/mohammad-safakhou/archivist/internal/store"
	"github.com/spf13/cobra"
)

func serveCMD(cfgPath *string) *cobra.Command {
	var serveAddr string
	var withStore bool
	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(*cfgPath)
			if err != nil {
				return err
			}
			if cfg.Archive.URL == "" {
				return fmt.Errorf("archive.url must be configured to serve")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			tel, tracer, err := runtime.SetupTelemetry(ctx, cfg.Telemetry, runtime.TelemetryOptions{ServiceName: "archivist-api"})
			if err != nil {
				return err
			}
			defer tel.Shutdown(cmd.Context())

			src, _, cleanup, err := buildSource(ctx, cfg, cfg.Archive.URL)
			if err != nil {
				return err
			}
			defer cleanup()

			opts := srv.Options{
				Walker:   retrieval.NewWalker(src, retrieval.WithCap(cfg.Archive.Cap), retrieval.WithTracer(tracer)),
				Source:   cfg.Archive.URL,
				Metrics:  tel.Handler(),
				Location: cfg.Archive.LoadLocation(),
			}
			if cfg.Server.JWTSecret != "" {
				secret, err := runtime.LoadJWTSecret(cfg)
				if err != nil {
					return err
				}
				opts.JWTSecret = secret
			}
			dsn, err := runtime.BuildPostgresDSN(cfg)
			switch {
			case !withStore:
			case err != nil && cmd.Flags().Changed("store"):
				return err
			case err != nil:
				log.Printf("stored records disabled: %v", err)
			default:
				st, err := store.NewWithDSN(ctx, dsn)
				if err != nil {
					return fmt.Errorf("connect postgres: %w", err)
				}
				defer st.Close()
				opts.Store = st
			}
			idx, err := index.Open(cfg.Index.Path)
			if err != nil {
				return err
			}
			defer idx.Close()
			opts.Index = idx

			addr := cfg.Server.Address
			if cmd.Flags().Changed("addr") {
				addr = serveAddr
			}
			return srv.Run(ctx, srv.New(opts), addr)
		},
	}
	serve.Flags().StringVar(&serveAddr, "addr", ":10001", "listen address (default from config)")
	serve.Flags().BoolVar(&withStore, "store", true, "serve stored records and sessions from postgres (skipped when postgres is not configured)")

	return serve
}
