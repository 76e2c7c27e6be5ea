package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/maisonfine/stockd/internal/audit"
	"github.com/maisonfine/stockd/internal/cache"
	"github.com/maisonfine/stockd/internal/config"
	"github.com/maisonfine/stockd/internal/database"
	"github.com/maisonfine/stockd/internal/handlers"
	"github.com/maisonfine/stockd/internal/listener"
	"github.com/maisonfine/stockd/internal/logger"
	"github.com/maisonfine/stockd/internal/middleware"
	"github.com/maisonfine/stockd/internal/reports"
	"github.com/maisonfine/stockd/internal/services/assets"
	"github.com/maisonfine/stockd/internal/services/inventory"
	"github.com/maisonfine/stockd/internal/store"
	"github.com/maisonfine/stockd/internal/websocket"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zl, err := logger.New(cfg.Logger)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zl.Sync()

	// 2. Initialize database (external or embedded)
	db, err := database.Connect(cfg.Database, zl)
	if err != nil {
		zl.Fatal("failed to connect to database", zap.Error(err))
	}
	// Note: db.Close() is called manually in shutdown below

	// 3. Auto-migrate schema
	zl.Info("synchronizing database schema")
	if err := db.Migrate(); err != nil {
		zl.Fatal("migration failed", zap.Error(err))
	}

	sqlDB, err := db.DB.DB()
	if err != nil {
		zl.Fatal("failed to access sql pool", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Inventory core
	generator := assets.NewFileGenerator(cfg.Assets.RootDir, cfg.Assets.PublicBaseURL, cfg.Assets.PassportBaseURL)

	hub := websocket.NewHub(zl)
	go hub.Run(ctx)

	deps := inventory.Deps{
		Store:    store.New(db.DB),
		Assets:   generator,
		Labels:   generator,
		Reports:  reports.NewReporter(sqlx.NewDb(sqlDB, "pgx")),
		Audit:    audit.NewRecorder(db.DB, zl),
		Notifier: hub,
		CacheKey: cache.ProductKey,
		Logger:   zl,
	}

	if cfg.Redis.Enabled() {
		client, err := cache.Connect(ctx, cfg.Redis)
		if err != nil {
			zl.Warn("redis unavailable, inventory details cache disabled", zap.Error(err))
		} else {
			defer client.Close()
			deps.Cache = cache.NewRedis(client, cfg.Redis.TTL)
			zl.Info("inventory details cache enabled", zap.String("addr", cfg.Redis.Addr))
		}
	}

	svc := inventory.NewService(deps)

	// 5. Order fulfillment consumer
	if cfg.Kafka.Enabled() {
		fulfillment := listener.NewFulfillment(listener.NewReader(cfg.Kafka), svc, zl)
		go fulfillment.Start(ctx)
	}

	// 6. HTTP router
	router := handlers.NewRouter(handlers.Options{
		Service:    svc,
		Auth:       middleware.Auth(cfg.Auth.JWTSecret, cfg.Auth.AdminRole),
		Hub:        hub,
		AssetsDir:  generator.Root(),
		AssetsURL:  cfg.Assets.PublicBaseURL,
		PathPrefix: cfg.Server.PathPrefix,
		Logger:     zl,
	})

	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		zl.Info("server starting",
			zap.String("port", cfg.Server.Port),
			zap.String("prefix", cfg.Server.PathPrefix),
			zap.String("env", cfg.Env),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	zl.Info("shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zl.Error("http server shutdown error", zap.Error(err))
	}

	// Close database (this also stops embedded PostgreSQL)
	zl.Info("closing database connection")
	if err := db.Close(); err != nil {
		zl.Error("database close error", zap.Error(err))
	}

	zl.Info("shutdown complete")
}
