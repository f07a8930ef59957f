package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trade-engine/config"
	"trade-engine/internal/api"
	"trade-engine/internal/app"
	"trade-engine/observability"
	"trade-engine/repository"
	"trade-engine/services"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		observability.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		observability.Fatal("invalid configuration", "error", err)
	}

	observability.InitLogger(os.Getenv("APP_ENV") == "production")
	observability.InitMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The engine degrades gracefully without a database: orders execute
	// but nothing is persisted across restarts.
	var repo *repository.Repository
	if cfg.HasDatabase() {
		repo, err = repository.NewRepository(ctx, cfg.Database.URL)
		if err != nil {
			observability.Warn("database unavailable, running without persistence", "error", err)
			repo = nil
		} else if err := repo.Migrate(ctx); err != nil {
			observability.Warn("migration failed, running without persistence", "error", err)
			repo.Close()
			repo = nil
		}
	} else {
		observability.Warn("DATABASE_URL not set, running without persistence")
	}

	// The broker is not optional. An engine that cannot reach its broker
	// has nothing to do.
	if !cfg.HasBroker() {
		observability.Fatal("ALPACA_API_KEY and ALPACA_API_SECRET are required")
	}
	broker := services.NewAlpacaBroker(cfg.Broker.APIKey, cfg.Broker.APISecret, cfg.Broker.BaseURL)

	application := app.New(cfg, repo, broker)
	if err := application.Start(ctx); err != nil {
		observability.Fatal("failed to start engine", "error", err)
	}

	handler := api.NewHandler(application, cfg)
	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      api.NewRouter(handler, cfg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		observability.Info("HTTP server listening", "addr", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			observability.Fatal("HTTP server failed", "error", err)
		}
	}()

	<-ctx.Done()
	observability.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		observability.Error("HTTP server shutdown error", "error", err)
	}

	application.Stop()
}
