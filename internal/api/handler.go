package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"trade-engine/config"
	"trade-engine/internal/app"
	"trade-engine/models"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// Handler handles HTTP API requests
type Handler struct {
	app *app.App
	cfg *config.Config
}

// NewHandler creates a new Handler
func NewHandler(app *app.App, cfg *config.Config) *Handler {
	return &Handler{app: app, cfg: cfg}
}

// handleHealth returns the health status of the application
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status": "ok",
		"paused": h.app.Paused(),
		"services": map[string]string{
			"database": "unknown",
		},
	}

	if h.app.HasDatabase() {
		if err := h.app.DatabaseHealthy(r.Context()); err == nil {
			status["services"].(map[string]string)["database"] = "connected"
		} else {
			status["services"].(map[string]string)["database"] = "disconnected"
			status["status"] = "degraded"
		}
	} else {
		status["services"].(map[string]string)["database"] = "not_configured"
	}

	h.jsonResponse(w, status)
}

// handleGetAccount returns the combined account view
func (h *Handler) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	info, err := h.app.GetAccountInfo(r.Context())
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	h.jsonResponse(w, info)
}

// handleGetPositions returns all open positions
func (h *Handler) handleGetPositions(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, h.app.GetPositions())
}

// handleGetRiskMetrics returns the rolling risk state
func (h *Handler) handleGetRiskMetrics(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, h.app.GetRiskMetrics())
}

// handleGetBreakers returns per-symbol circuit breaker states
func (h *Handler) handleGetBreakers(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, h.app.BreakerStatus())
}

// placeOrderRequest is the wire shape of an order placement.
type placeOrderRequest struct {
	Symbol         string          `json:"symbol"`
	Side           string          `json:"side"`
	Quantity       int64           `json:"quantity,omitempty"`
	Price          decimal.Decimal `json:"price,omitempty"`
	OrderType      string          `json:"order_type,omitempty"`
	StrategyID     string          `json:"strategy_id,omitempty"`
	SignalStrength float64         `json:"signal_strength,omitempty"`
	Reason         string          `json:"reason,omitempty"`
}

// handlePlaceOrder runs an intent through the executor. Business
// rejections come back as 200 with the structured result.
func (h *Handler) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	if err := h.validateSymbol(req.Symbol); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	side := models.Side(strings.ToUpper(req.Side))
	if side != models.SideBuy && side != models.SideSell {
		h.jsonError(w, "side must be BUY or SELL", http.StatusBadRequest)
		return
	}

	orderType := models.OrderTypeMarket
	if strings.EqualFold(req.OrderType, string(models.OrderTypeLimit)) {
		orderType = models.OrderTypeLimit
	}

	result := h.app.PlaceOrder(r.Context(), models.OrderIntent{
		Symbol:         req.Symbol,
		Side:           side,
		Quantity:       req.Quantity,
		PriceHint:      req.Price,
		OrderType:      orderType,
		StrategyID:     req.StrategyID,
		SignalStrength: req.SignalStrength,
		Reason:         req.Reason,
	})

	h.jsonResponse(w, result)
}

// handleCancelOrder cancels a pending order by broker order id
func (h *Handler) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		h.jsonError(w, "missing order id", http.StatusBadRequest)
		return
	}

	result := h.app.CancelOrder(r.Context(), orderID)
	if result.Reason == models.ReasonOrderNotFound {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(result)
		return
	}
	h.jsonResponse(w, result)
}

// handleGetOrders returns recent persisted order records
func (h *Handler) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	limit := h.parseLimitParam(r, 50)
	orders, err := h.app.GetOrders(r.Context(), limit)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.jsonResponse(w, orders)
}

// handleGetTrades returns recent persisted trades
func (h *Handler) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	limit := h.parseLimitParam(r, 50)
	trades, err := h.app.GetTrades(r.Context(), limit)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.jsonResponse(w, trades)
}

// handlePause stops new order placement
func (h *Handler) handlePause(w http.ResponseWriter, r *http.Request) {
	h.app.PauseTrading()
	h.jsonResponse(w, map[string]bool{"paused": true})
}

// handleResume lifts the pause
func (h *Handler) handleResume(w http.ResponseWriter, r *http.Request) {
	h.app.ResumeTrading()
	h.jsonResponse(w, map[string]bool{"paused": false})
}

// Helper functions

func (h *Handler) validateSymbol(symbol string) error {
	if symbol == "" {
		return fmt.Errorf("symbol is required")
	}

	if len(symbol) > 10 {
		return fmt.Errorf("symbol too long (max 10 characters)")
	}

	matched, _ := regexp.MatchString("^[A-Z0-9.-]+$", symbol)
	if !matched {
		return fmt.Errorf("invalid symbol format (alphanumeric, dots, and dashes only)")
	}

	return nil
}

func (h *Handler) parseLimitParam(r *http.Request, defaultLimit int) int {
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			return l
		}
	}
	return defaultLimit
}

func (h *Handler) jsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
