package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestPosition_CalculateUnrealizedPnL(t *testing.T) {
	tests := []struct {
		name         string
		quantity     int64
		avgPrice     string
		currentPrice string
		expected     string
	}{
		{"gain", 10, "100", "150", "500"},
		{"loss", 10, "100", "80", "-200"},
		{"flat", 5, "100", "100", "0"},
		{"no price", 10, "100", "0", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Position{
				Symbol:       "005930",
				Quantity:     tt.quantity,
				AvgPrice:     decimal.RequireFromString(tt.avgPrice),
				CurrentPrice: decimal.RequireFromString(tt.currentPrice),
			}
			got := p.CalculateUnrealizedPnL()
			want := decimal.RequireFromString(tt.expected)
			if !got.Equal(want) {
				t.Errorf("expected %s, got %s", want, got)
			}
		})
	}
}

func TestPosition_PnLRate(t *testing.T) {
	p := &Position{Symbol: "005930", Quantity: 10, AvgPrice: decimal.NewFromInt(100)}

	rate := p.PnLRate(decimal.NewFromInt(105))
	if !rate.Equal(decimal.RequireFromString("0.05")) {
		t.Errorf("expected 0.05, got %s", rate)
	}

	empty := &Position{Symbol: "005930"}
	if !empty.PnLRate(decimal.NewFromInt(100)).IsZero() {
		t.Error("expected zero rate for position without cost basis")
	}
}

func TestPosition_MarketValue(t *testing.T) {
	p := &Position{Symbol: "005930", Quantity: 3}
	got := p.MarketValue(decimal.NewFromInt(70000))
	if !got.Equal(decimal.NewFromInt(210000)) {
		t.Errorf("expected 210000, got %s", got)
	}
}
