package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"trade-engine/models"
	"trade-engine/observability"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"
)

// AlpacaBroker implements Broker against the Alpaca trading and market
// data APIs. US equities trade in single-share lots, so LotSize is
// always 1 here.
type AlpacaBroker struct {
	tradeClient *alpaca.Client
	dataClient  *marketdata.Client
}

var _ Broker = (*AlpacaBroker)(nil)

// NewAlpacaBroker creates a new AlpacaBroker instance
func NewAlpacaBroker(apiKey, apiSecret, baseURL string) *AlpacaBroker {
	tradeClient := alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   baseURL,
	})

	dataClient := marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	})

	return &AlpacaBroker{
		tradeClient: tradeClient,
		dataClient:  dataClient,
	}
}

// GetAccountBalance returns the normalized account cash figures
func (b *AlpacaBroker) GetAccountBalance(ctx context.Context) (*BrokerBalance, error) {
	metrics := observability.GetMetrics()
	metrics.RecordBrokerRequest("get_account")
	timer := metrics.NewTimer()
	defer timer.ObserveBroker("get_account")

	account, err := b.tradeClient.GetAccount()
	if err != nil {
		return nil, b.classify("get_account", err)
	}

	return &BrokerBalance{
		AvailableCash: account.Cash,
		OrderableCash: account.BuyingPower,
		TotalBalance:  account.PortfolioValue,
	}, nil
}

// GetInstrumentInfo returns instrument metadata for a symbol
func (b *AlpacaBroker) GetInstrumentInfo(ctx context.Context, symbol string) (*models.InstrumentInfo, error) {
	metrics := observability.GetMetrics()
	metrics.RecordBrokerRequest("get_asset")
	timer := metrics.NewTimer()
	defer timer.ObserveBroker("get_asset")

	asset, err := b.tradeClient.GetAsset(symbol)
	if err != nil {
		return nil, b.classify("get_asset", err)
	}
	if !asset.Tradable {
		return nil, fmt.Errorf("asset %s is not tradable", symbol)
	}

	return &models.InstrumentInfo{
		Symbol:  symbol,
		Name:    asset.Name,
		LotSize: 1,
	}, nil
}

// GetCurrentPrice returns the latest traded price for a symbol
func (b *AlpacaBroker) GetCurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	metrics := observability.GetMetrics()
	metrics.RecordBrokerRequest("get_latest_trade")
	timer := metrics.NewTimer()
	defer timer.ObserveBroker("get_latest_trade")

	trade, err := b.dataClient.GetLatestTrade(symbol, marketdata.GetLatestTradeRequest{})
	if err != nil {
		return decimal.Zero, b.classify("get_latest_trade", err)
	}

	return decimal.NewFromFloat(trade.Price), nil
}

// GetDailyCloses returns recent daily closing prices, oldest first
func (b *AlpacaBroker) GetDailyCloses(ctx context.Context, symbol string, days int) ([]decimal.Decimal, error) {
	metrics := observability.GetMetrics()
	metrics.RecordBrokerRequest("get_bars")
	timer := metrics.NewTimer()
	defer timer.ObserveBroker("get_bars")

	end := time.Now()
	start := end.AddDate(0, 0, -days)

	bars, err := b.dataClient.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     start,
		End:       end,
	})
	if err != nil {
		return nil, b.classify("get_bars", err)
	}

	closes := make([]decimal.Decimal, 0, len(bars))
	for _, bar := range bars {
		closes = append(closes, decimal.NewFromFloat(bar.Close))
	}

	return closes, nil
}

// SubmitOrder sends an order for execution
func (b *AlpacaBroker) SubmitOrder(ctx context.Context, req SubmitOrderRequest) (*SubmitOrderResponse, error) {
	metrics := observability.GetMetrics()
	metrics.RecordBrokerRequest("submit_order")
	timer := metrics.NewTimer()
	defer timer.ObserveBroker("submit_order")

	var side alpaca.Side
	if req.Side == models.SideBuy {
		side = alpaca.Buy
	} else {
		side = alpaca.Sell
	}

	qty := decimal.NewFromInt(req.Quantity)
	orderReq := alpaca.PlaceOrderRequest{
		Symbol:      req.Symbol,
		Qty:         &qty,
		Side:        side,
		Type:        alpaca.Market,
		TimeInForce: alpaca.Day,
	}
	if req.Type == models.OrderTypeLimit && !req.Price.IsZero() {
		price := req.Price
		orderReq.Type = alpaca.Limit
		orderReq.LimitPrice = &price
	}

	order, err := b.tradeClient.PlaceOrder(orderReq)
	if err != nil {
		return nil, b.classify("submit_order", err)
	}

	return &SubmitOrderResponse{
		OrderID: order.ID,
		Status:  string(order.Status),
	}, nil
}

// CancelOrder requests cancellation of an open order
func (b *AlpacaBroker) CancelOrder(ctx context.Context, orderID string) error {
	metrics := observability.GetMetrics()
	metrics.RecordBrokerRequest("cancel_order")
	timer := metrics.NewTimer()
	defer timer.ObserveBroker("cancel_order")

	if err := b.tradeClient.CancelOrder(orderID); err != nil {
		return b.classify("cancel_order", err)
	}
	return nil
}

// RefreshToken is a no-op: Alpaca authenticates every request with
// static API keys.
func (b *AlpacaBroker) RefreshToken(ctx context.Context) error {
	return nil
}

// classify maps SDK errors onto the engine's error taxonomy and records
// error metrics.
func (b *AlpacaBroker) classify(op string, err error) error {
	metrics := observability.GetMetrics()

	var apiErr *alpaca.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
			metrics.RecordBrokerError(op, "auth")
			return &AuthError{Op: op, Err: err}
		case apiErr.StatusCode == 429 || apiErr.StatusCode >= 500:
			metrics.RecordBrokerError(op, "transient")
			return &TransientError{Op: op, Err: err}
		default:
			metrics.RecordBrokerError(op, "api")
			return fmt.Errorf("broker %s failed: %w", op, err)
		}
	}

	// Anything that never produced an HTTP response is assumed retryable.
	metrics.RecordBrokerError(op, "transient")
	return &TransientError{Op: op, Err: err}
}
