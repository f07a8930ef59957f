// Package main provides a standalone server backed by a simulated broker.
// It runs the same routes and handlers as the real engine, but fills
// orders in memory, making it suitable for local development and UI or
// API testing without broker credentials.
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

	"github.com/shopspring/decimal"
)

func main() {
	observability.InitLogger(false)
	observability.InitMetrics()

	cfg, err := config.Load()
	if err != nil {
		observability.Fatal("invalid configuration", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var repo *repository.Repository
	if dbURL := os.Getenv("SIM_DATABASE_URL"); dbURL != "" {
		repo, err = repository.NewRepository(ctx, dbURL)
		if err != nil {
			observability.Fatal("failed to connect to database", "error", err)
		}
		if err := repo.Migrate(ctx); err != nil {
			observability.Fatal("failed to migrate database", "error", err)
		}
		observability.Info("connected to sim database")
	}

	cash := decimal.NewFromInt(1_000_000)
	if raw := os.Getenv("SIM_STARTING_CASH"); raw != "" {
		parsed, err := decimal.NewFromString(raw)
		if err != nil {
			observability.Fatal("invalid SIM_STARTING_CASH", "value", raw)
		}
		cash = parsed
	}
	broker := services.NewSimBroker(cash)

	application := app.New(cfg, repo, broker)
	if err := application.Start(ctx); err != nil {
		observability.Fatal("failed to start engine", "error", err)
	}

	addr := cfg.HTTP.Addr
	if port := os.Getenv("SIM_SERVER_PORT"); port != "" {
		addr = ":" + port
	}

	handler := api.NewHandler(application, cfg)
	server := &http.Server{
		Addr:         addr,
		Handler:      api.NewRouter(handler, cfg),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		observability.Info("sim server listening", "addr", addr, "starting_cash", cash.String())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			observability.Fatal("server error", "error", err)
		}
	}()

	<-ctx.Done()
	observability.Info("shutting down sim server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		observability.Error("server forced to shutdown", "error", err)
	}

	application.Stop()
}
