package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/uptrace/bun/migrate"

	"github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/db/bunx"
	"github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/events"
	"github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/migrations"
	"github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/server"
	"github.com/keepitup/magjob/identityapi/cmd/identityapi/internal/telemetry"
)

var autoMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Identity API server",
	Long:  `Starts the HTTP server and the outbox relay.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		logger := slog.Default()

		shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry)
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTelemetry(flushCtx); err != nil {
				logger.Warn("telemetry shutdown failed", "error", err)
			}
		}()

		db, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer bunx.Close(db)
		logger.Info("connected to database", "type", bunx.DetectDatabaseType(cfg.DatabaseURL))

		if err := checkMigrations(ctx, migrate.NewMigrator(db, migrations.Migrations), logger); err != nil {
			return err
		}

		st, err := newStack(db, logger)
		if err != nil {
			return err
		}
		schemas, err := server.CompileSchemas()
		if err != nil {
			return fmt.Errorf("compile request schemas: %w", err)
		}
		limiter, err := server.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
		if err != nil {
			return err
		}
		serverMetrics, err := telemetry.NewServerMetrics()
		if err != nil {
			return fmt.Errorf("create server metrics: %w", err)
		}
		outboxMetrics, err := telemetry.NewOutboxMetrics()
		if err != nil {
			return fmt.Errorf("create outbox metrics: %w", err)
		}

		relay := events.NewRelay(st.outbox, st.dispatcher, events.RelayOptions{
			Interval:  cfg.Outbox.Interval,
			BatchSize: cfg.Outbox.BatchSize,
			Logger:    logger,
			Metrics:   outboxMetrics,
		})
		relayDone := make(chan struct{})
		go func() {
			defer close(relayDone)
			if err := relay.Run(ctx); err != nil {
				logger.Error("outbox relay stopped", "error", err)
			}
		}()

		srv := &http.Server{
			Addr: cfg.ServerAddr,
			Handler: server.NewH2CHandler(server.RouterOptions{
				Service: st.orgs,
				Users:   st.users,
				Schemas: schemas,
				Limiter: limiter,
				Metrics: serverMetrics,
			}),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("starting server", "addr", cfg.ServerAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErrors <- err
			}
		}()

		select {
		case err := <-serverErrors:
			stop()
			<-relayDone
			return fmt.Errorf("server error: %w", err)
		case <-ctx.Done():
			logger.Info("shutting down gracefully")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			srv.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		<-relayDone
		logger.Info("server stopped")
		return nil
	},
}

// checkMigrations applies pending migrations when --auto-migrate is set and
// otherwise refuses to start against an outdated schema.
func checkMigrations(ctx context.Context, m *migrate.Migrator, logger *slog.Logger) error {
	if autoMigrate {
		if err := m.Init(ctx); err != nil {
			return fmt.Errorf("failed to initialize migrator: %w", err)
		}
		group, err := m.Migrate(ctx)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		if !group.IsZero() {
			logger.Info("applied migrations", "group", group.ID)
		}
		return nil
	}

	ms, err := m.MigrationsWithStatus(ctx)
	if err != nil {
		return fmt.Errorf("failed to get migration status (run 'db init' and 'db migrate'): %w", err)
	}
	if pending := ms.Unapplied(); len(pending) > 0 {
		return fmt.Errorf("%d pending migrations, run 'db migrate' or start with --auto-migrate", len(pending))
	}
	return nil
}

func init() {
	serveCmd.Flags().BoolVar(&autoMigrate, "auto-migrate", false, "Apply pending migrations on startup")
	rootCmd.AddCommand(serveCmd)
}
