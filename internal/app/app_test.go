package app

import (
	"context"
	"os"
	"testing"

	"trade-engine/config"
	"trade-engine/models"
	"trade-engine/observability"
	"trade-engine/services"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

func TestMain(m *testing.M) {
	observability.SetMetrics(observability.NewMetrics(prometheus.NewRegistry()))
	os.Exit(m.Run())
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	cfg := config.NewTestConfig()
	cfg.Ledger.MinSyncInterval = 0
	return New(cfg, nil, services.NewSimBroker(decimal.NewFromInt(1_000_000)))
}

func TestStartPrimesAccountSnapshot(t *testing.T) {
	application := newTestApp(t)
	defer application.Stop()

	if err := application.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	info, err := application.GetAccountInfo(context.Background())
	if err != nil {
		t.Fatalf("account info failed: %v", err)
	}
	if !info.OrderableCash.Equal(decimal.NewFromInt(1_000_000)) {
		t.Errorf("expected orderable cash 1000000, got %s", info.OrderableCash)
	}
}

func TestPlaceOrderThroughFacade(t *testing.T) {
	application := newTestApp(t)

	result := application.PlaceOrder(context.Background(), models.OrderIntent{
		Symbol:    "AAPL",
		Side:      models.SideBuy,
		Quantity:  10,
		OrderType: models.OrderTypeMarket,
	})
	if result.Status != models.OrderStatusFilled {
		t.Fatalf("expected filled, got %s (%s)", result.Status, result.Reason)
	}

	positions := application.GetPositions()
	if len(positions) != 1 || positions[0].Quantity != 10 {
		t.Fatalf("expected one position of 10 shares, got %+v", positions)
	}
}

func TestNoDatabaseQueriesReturnError(t *testing.T) {
	application := newTestApp(t)

	if _, err := application.GetTrades(context.Background(), 10); err == nil {
		t.Error("expected error without a database")
	}
	if _, err := application.GetOrders(context.Background(), 10); err == nil {
		t.Error("expected error without a database")
	}
	if application.HasDatabase() {
		t.Error("expected HasDatabase to be false")
	}
}

func TestPauseStateRoundTrip(t *testing.T) {
	application := newTestApp(t)

	if application.Paused() {
		t.Fatal("expected unpaused at start")
	}
	application.PauseTrading()
	if !application.Paused() {
		t.Fatal("expected paused")
	}
	application.ResumeTrading()
	if application.Paused() {
		t.Fatal("expected resumed")
	}
}
