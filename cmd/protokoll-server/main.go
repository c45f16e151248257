package main

import (
	"context"
	crypto_rand "crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/emdr/protokoll/internal/config"
	"github.com/emdr/protokoll/internal/domain/protocol"
	"github.com/emdr/protokoll/internal/domain/therapist"
	"github.com/emdr/protokoll/internal/platform/auth"
	"github.com/emdr/protokoll/internal/platform/db"
	"github.com/emdr/protokoll/internal/platform/export"
	"github.com/emdr/protokoll/internal/platform/kvstore"
	"github.com/emdr/protokoll/internal/platform/middleware"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "protokoll-server",
		Short: "EMDR protocol documentation server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the protocol API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations (postgres backend only)",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, migrator, pool, err := newMigrator()
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := migrator.Up(context.Background())
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) from %s.\n", count, cfg.MigrationsDir)
			return nil
		},
	}
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, migrator, pool, err := newMigrator()
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := migrator.Status(context.Background())
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	cmd.AddCommand(statusCmd)

	return cmd
}

func newMigrator() (*config.Config, *db.Migrator, interface{ Close() }, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	if cfg.StoreBackend != config.BackendPostgres {
		return nil, nil, nil, fmt.Errorf("migrations only apply to the postgres backend (STORE_BACKEND=%s)", cfg.StoreBackend)
	}
	pool, err := db.NewPool(context.Background(), cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, db.NewMigrator(pool, cfg.MigrationsDir), pool, nil
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	secret := []byte(cfg.SessionSecret)
	if len(secret) == 0 {
		// Development convenience: sessions do not survive a restart.
		buf := make([]byte, 32)
		if _, err := crypto_rand.Read(buf); err != nil {
			logger.Fatal().Err(err).Msg("failed to generate session secret")
		}
		secret = []byte(hex.EncodeToString(buf))
		logger.Warn().Msg("SESSION_SECRET not set; generated a throwaway secret for this run")
	}
	sessions := auth.NewSessions(secret, cfg.SessionTTLDays)

	// Storage backend
	ctx := context.Background()
	var (
		protocolRepo  protocol.Repository
		therapistRepo therapist.Repository
		healthProbe   db.Pinger
	)
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		protocolRepo = protocol.NewRepoPG(pool)
		therapistRepo = therapist.NewRepoPG(pool)
		healthProbe = pool
		logger.Info().Msg("connected to postgres")
	case config.BackendLocal:
		store, err := kvstore.Open(cfg.LocalStorePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to open local store")
		}
		defer store.Close()
		protocolRepo = protocol.NewRepoKV(store)
		therapistRepo = therapist.NewRepoKV(store)
		healthProbe = store
		logger.Info().Str("path", cfg.LocalStorePath).Msg("opened local store")
	}

	// Services
	protocolSvc := protocol.NewService(protocolRepo)
	therapistSvc := therapist.NewService(therapistRepo, sessions)
	exporter := export.NewService(export.PDFOptions{Praxis: cfg.ExportPraxis})

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(auth.Middleware(sessions, auth.DefaultSkipper))

	// Health check
	e.GET("/health", db.HealthHandler(version, healthProbe))

	// API group
	apiV1 := e.Group("/api/v1")

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))
	apiV1.Use(middleware.BodyLimit("1M", "20M"))

	therapist.NewHandler(therapistSvc).RegisterRoutes(apiV1)
	protocol.NewHandler(protocolSvc, exporter).RegisterRoutes(apiV1)

	// Start server with graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("backend", cfg.StoreBackend).Msg("server starting")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
	logger.Info().Msg("server stopped")
	return nil
}
