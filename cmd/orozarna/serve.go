package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/erazemk/orozarna/internal/api"
	"github.com/erazemk/orozarna/internal/store"
	"github.com/erazemk/orozarna/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		shutdownTracing, err := telemetry.Setup(ctx, a.cfg.Tracing)
		if err != nil {
			return err
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(flushCtx); err != nil {
				slog.Error("flushing traces", "error", err)
			}
		}()

		slog.Info("database ready", "path", a.cfg.Database.Path, "schema_version", a.schemaVersion)

		// JWT secret is generated on first run and kept in the database.
		jwtSecret, err := store.GetJWTSecret(ctx, a.db)
		if err != nil {
			return fmt.Errorf("loading JWT secret: %w", err)
		}

		proxies, err := a.cfg.TrustedProxies()
		if err != nil {
			return err
		}

		server := &http.Server{
			Addr:              a.cfg.Server.Addr,
			Handler:           api.NewRouter(a.db, a.custody, jwtSecret, proxies...),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		}

		go func() {
			<-ctx.Done()
			slog.Info("shutdown signal received")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				slog.Error("server forced to shutdown", "error", err)
			}
		}()

		slog.Info("server started", "addr", a.cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

		slog.Info("server stopped, closing database")
		return nil
	},
}
