package scenarios

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"

	"trade-engine/e2e"
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

func setupHarness(t *testing.T) *e2e.TestHarness {
	t.Helper()
	h := e2e.NewTestHarness(t)
	if err := h.Setup(); err != nil {
		t.Fatalf("harness setup failed: %v", err)
	}
	t.Cleanup(h.Teardown)
	return h
}

func placeOrder(t *testing.T, h *e2e.TestHarness, body string) models.OrderResult {
	t.Helper()
	resp := h.DoRequest(http.MethodPost, "/api/orders", body)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var result models.OrderResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	return result
}

func TestBuySellRoundTrip(t *testing.T) {
	h := setupHarness(t)
	h.Broker().SetPrice("AAPL", decimal.NewFromInt(100))

	buy := placeOrder(t, h, `{"symbol":"AAPL","side":"BUY","quantity":50}`)
	if buy.Status != models.OrderStatusFilled {
		t.Fatalf("expected buy to fill, got %s (%s)", buy.Status, buy.Reason)
	}

	info, err := h.App().GetAccountInfo(h.Context())
	if err != nil {
		t.Fatalf("account info failed: %v", err)
	}
	if !info.OrderableCash.Equal(decimal.NewFromInt(995_000)) {
		t.Errorf("expected orderable cash 995000 after buy, got %s", info.OrderableCash)
	}

	h.Broker().SetPrice("AAPL", decimal.NewFromInt(110))
	sell := placeOrder(t, h, `{"symbol":"AAPL","side":"SELL","quantity":50}`)
	if sell.Status != models.OrderStatusFilled {
		t.Fatalf("expected sell to fill, got %s (%s)", sell.Status, sell.Reason)
	}

	if positions := h.App().GetPositions(); len(positions) != 0 {
		t.Errorf("expected flat book after round trip, got %+v", positions)
	}

	metrics := h.App().GetRiskMetrics()
	if !metrics.DailyPnL.Equal(decimal.NewFromInt(500)) {
		t.Errorf("expected daily pnl 500, got %s", metrics.DailyPnL)
	}
	if metrics.WinCount != 1 {
		t.Errorf("expected one winning trade, got %d", metrics.WinCount)
	}
}

func TestRiskLimitRejectsOversizedOrder(t *testing.T) {
	h := setupHarness(t)
	h.Broker().SetCash(decimal.NewFromInt(100_000_000))
	h.Broker().SetPrice("NVDA", decimal.NewFromInt(1_000))

	// A small fill first so the ledger re-syncs and sees the larger balance.
	warmup := placeOrder(t, h, `{"symbol":"AAPL","side":"BUY","quantity":1}`)
	if warmup.Status != models.OrderStatusFilled {
		t.Fatalf("expected warmup fill, got %s (%s)", warmup.Status, warmup.Reason)
	}

	// 20,000 * 1,000 = 20M, over the 10M position cap.
	result := placeOrder(t, h, `{"symbol":"NVDA","side":"BUY","quantity":20000}`)
	if result.Status != models.OrderStatusRejected {
		t.Fatalf("expected rejection, got %s", result.Status)
	}
	if result.Reason != "max_position_size" {
		t.Errorf("expected max_position_size, got %s", result.Reason)
	}

	if positions := h.App().GetPositions(); len(positions) == 0 || positions[0].Symbol != "AAPL" {
		t.Errorf("expected only the warmup position, got %+v", positions)
	}
}

func TestBrokerOutageTripsBreakerAndRecovers(t *testing.T) {
	h := setupHarness(t)
	h.Broker().SetSubmitError(&services.TransientError{Op: "submit_order", Err: fmt.Errorf("simulated outage")})

	// Each failed order counts once against the failure threshold of
	// three, however many retries it burned internally.
	for i := 0; i < 3; i++ {
		failed := placeOrder(t, h, `{"symbol":"TSLA","side":"BUY","quantity":10}`)
		if failed.Status != models.OrderStatusFailed {
			t.Fatalf("order %d: expected failure during outage, got %s (%s)", i+1, failed.Status, failed.Reason)
		}
	}

	refused := placeOrder(t, h, `{"symbol":"TSLA","side":"BUY","quantity":10}`)
	if refused.Reason != models.ReasonCircuitOpen {
		t.Fatalf("expected circuit_open, got %s", refused.Reason)
	}

	// Other symbols keep trading through the outage once it clears.
	h.Broker().SetSubmitError(nil)
	other := placeOrder(t, h, `{"symbol":"MSFT","side":"BUY","quantity":10}`)
	if other.Status != models.OrderStatusFilled {
		t.Fatalf("expected MSFT to fill, got %s (%s)", other.Status, other.Reason)
	}

	time.Sleep(150 * time.Millisecond)
	recovered := placeOrder(t, h, `{"symbol":"TSLA","side":"BUY","quantity":10}`)
	if recovered.Status != models.OrderStatusFilled {
		t.Fatalf("expected TSLA to fill after cooldown, got %s (%s)", recovered.Status, recovered.Reason)
	}
}

func TestReservationsReleasedOnCancel(t *testing.T) {
	h := setupHarness(t)
	h.Broker().SetPrice("GOOG", decimal.NewFromInt(150))

	placed := placeOrder(t, h, `{"symbol":"GOOG","side":"BUY","quantity":100,"order_type":"LIMIT","price":"145"}`)
	if placed.Status != models.OrderStatusSubmitted {
		t.Fatalf("expected limit order to rest, got %s (%s)", placed.Status, placed.Reason)
	}

	info, err := h.App().GetAccountInfo(h.Context())
	if err != nil {
		t.Fatalf("account info failed: %v", err)
	}
	if info.PendingReservations != 1 {
		t.Fatalf("expected one resting reservation, got %d", info.PendingReservations)
	}

	resp := h.DoRequest(http.MethodDelete, "/api/orders/"+placed.OrderID, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 on cancel, got %d", resp.Code)
	}

	info, err = h.App().GetAccountInfo(h.Context())
	if err != nil {
		t.Fatalf("account info failed: %v", err)
	}
	if info.PendingReservations != 0 {
		t.Errorf("expected reservation released, got %d", info.PendingReservations)
	}
	if cancelled := h.Broker().Cancelled(); len(cancelled) != 1 {
		t.Errorf("expected broker-side cancel, got %v", cancelled)
	}
}

func TestPersistedTradeHistory(t *testing.T) {
	h := setupHarness(t)
	if h.Repository() == nil {
		t.Skip("E2E_DATABASE_URL not set, skipping persistence scenario")
	}

	buy := placeOrder(t, h, `{"symbol":"AMZN","side":"BUY","quantity":5}`)
	if buy.Status != models.OrderStatusFilled {
		t.Fatalf("expected fill, got %s (%s)", buy.Status, buy.Reason)
	}

	resp := h.DoRequest(http.MethodGet, "/api/trades", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var trades []models.Trade
	if err := json.NewDecoder(resp.Body).Decode(&trades); err != nil {
		t.Fatalf("failed to decode trades: %v", err)
	}
	if len(trades) == 0 {
		t.Error("expected the fill to be persisted")
	}
}
