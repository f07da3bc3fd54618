package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/erazemk/oprema/internal/api"
	"github.com/erazemk/oprema/internal/janitor"
)

func serveCmd(opts *globalOptions) *cobra.Command {
	var (
		addr     string
		schedule string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.close()

			if cmd.Flags().Changed("addr") {
				a.cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("janitor") {
				a.cfg.Janitor.Schedule = schedule
			}
			return serve(a)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "listen address (default: :8080)")
	cmd.Flags().StringVar(&schedule, "janitor", "", `derivative sweep schedule, e.g. "@hourly"; empty disables`)
	return cmd
}

func serve(a *app) error {
	ctx := context.Background()

	// Generated on first run and kept in the database.
	jwtSecret, err := a.store.JWTSecret(ctx)
	if err != nil {
		return fmt.Errorf("loading jwt secret: %w", err)
	}

	j, err := janitor.New(a.cache, a.cfg.Janitor.Schedule, slog.Default().With("component", "janitor"))
	if err != nil {
		return err
	}
	if err := j.Start(); err != nil {
		return err
	}
	defer j.Stop()

	router := api.NewRouter(api.Deps{
		Store:     a.store,
		Cache:     a.cache,
		Janitor:   j,
		Metrics:   a.metrics,
		JWTSecret: jwtSecret,
	})

	server := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           api.LoggingMiddleware(slog.Default(), a.metrics)(router),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-quit
		slog.Info("shutdown signal received", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
	}()

	slog.Info("server started", "addr", a.cfg.Server.Addr, "db", a.cfg.Storage.DB, "cache", a.cache.Root())
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	slog.Info("server stopped, closing database")
	return nil
}
