package engine

import (
	"errors"
	"testing"

	"trade-engine/models"

	"github.com/shopspring/decimal"
)

func TestWeightedAverageCost(t *testing.T) {
	book := NewPositionBook()

	if _, err := book.ApplyFill("AAPL", models.SideBuy, 10, decimal.NewFromInt(100)); err != nil {
		t.Fatalf("first buy failed: %v", err)
	}
	if _, err := book.ApplyFill("AAPL", models.SideBuy, 10, decimal.NewFromInt(200)); err != nil {
		t.Fatalf("second buy failed: %v", err)
	}

	position, exists := book.Get("AAPL")
	if !exists {
		t.Fatal("expected position to exist")
	}
	if position.Quantity != 20 {
		t.Errorf("expected quantity 20, got %d", position.Quantity)
	}
	if !position.AvgPrice.Equal(decimal.NewFromInt(150)) {
		t.Errorf("expected avg price 150, got %s", position.AvgPrice)
	}
}

func TestSellBooksRealizedPnL(t *testing.T) {
	book := NewPositionBook()
	book.ApplyFill("AAPL", models.SideBuy, 10, decimal.NewFromInt(100))
	book.ApplyFill("AAPL", models.SideBuy, 10, decimal.NewFromInt(200))

	realized, err := book.ApplyFill("AAPL", models.SideSell, 5, decimal.NewFromInt(180))
	if err != nil {
		t.Fatalf("sell failed: %v", err)
	}
	// 5 * (180 - 150) = 150
	if !realized.Equal(decimal.NewFromInt(150)) {
		t.Errorf("expected realized pnl 150, got %s", realized)
	}

	position, _ := book.Get("AAPL")
	if position.Quantity != 15 {
		t.Errorf("expected quantity 15, got %d", position.Quantity)
	}
	if !position.AvgPrice.Equal(decimal.NewFromInt(150)) {
		t.Errorf("avg price must not change on sell, got %s", position.AvgPrice)
	}
	if !position.RealizedPnL.Equal(decimal.NewFromInt(150)) {
		t.Errorf("expected accumulated realized pnl 150, got %s", position.RealizedPnL)
	}
}

func TestSellClampedToHeld(t *testing.T) {
	book := NewPositionBook()
	book.ApplyFill("AAPL", models.SideBuy, 10, decimal.NewFromInt(100))

	realized, err := book.ApplyFill("AAPL", models.SideSell, 50, decimal.NewFromInt(120))
	if err != nil {
		t.Fatalf("clamped sell failed: %v", err)
	}
	// Clamped to 10: 10 * (120 - 100) = 200
	if !realized.Equal(decimal.NewFromInt(200)) {
		t.Errorf("expected realized pnl 200, got %s", realized)
	}
	if _, exists := book.Get("AAPL"); exists {
		t.Error("expected position removed at zero quantity")
	}
}

func TestSellWithoutPosition(t *testing.T) {
	book := NewPositionBook()
	if _, err := book.ApplyFill("AAPL", models.SideSell, 5, decimal.NewFromInt(100)); !errors.Is(err, ErrInsufficientPosition) {
		t.Errorf("expected ErrInsufficientPosition, got %v", err)
	}
}

func TestFillRejectsNonPositiveQuantity(t *testing.T) {
	book := NewPositionBook()
	if _, err := book.ApplyFill("AAPL", models.SideBuy, 0, decimal.NewFromInt(100)); err == nil {
		t.Error("expected zero-quantity fill to fail")
	}
	if _, err := book.ApplyFill("AAPL", models.SideBuy, -5, decimal.NewFromInt(100)); err == nil {
		t.Error("expected negative-quantity fill to fail")
	}
}

func TestUpdateMark(t *testing.T) {
	book := NewPositionBook()
	book.ApplyFill("AAPL", models.SideBuy, 10, decimal.NewFromInt(100))

	book.UpdateMark("AAPL", decimal.NewFromInt(130))

	position, _ := book.Get("AAPL")
	if !position.CurrentPrice.Equal(decimal.NewFromInt(130)) {
		t.Errorf("expected current price 130, got %s", position.CurrentPrice)
	}
	if !position.UnrealizedPnL.Equal(decimal.NewFromInt(300)) {
		t.Errorf("expected unrealized pnl 300, got %s", position.UnrealizedPnL)
	}

	// Marking an unknown symbol is a no-op.
	book.UpdateMark("MSFT", decimal.NewFromInt(50))
	if book.Count() != 1 {
		t.Errorf("expected 1 position, got %d", book.Count())
	}
}

func TestAllSortedBySymbol(t *testing.T) {
	book := NewPositionBook()
	book.ApplyFill("MSFT", models.SideBuy, 1, decimal.NewFromInt(100))
	book.ApplyFill("AAPL", models.SideBuy, 1, decimal.NewFromInt(100))
	book.ApplyFill("GOOG", models.SideBuy, 1, decimal.NewFromInt(100))

	positions := book.All()
	if len(positions) != 3 {
		t.Fatalf("expected 3 positions, got %d", len(positions))
	}
	for i, symbol := range []string{"AAPL", "GOOG", "MSFT"} {
		if positions[i].Symbol != symbol {
			t.Errorf("position %d: expected %s, got %s", i, symbol, positions[i].Symbol)
		}
	}
}

func TestQuantityAccessor(t *testing.T) {
	book := NewPositionBook()
	if got := book.Quantity("AAPL"); got != 0 {
		t.Errorf("expected 0 for unknown symbol, got %d", got)
	}
	book.ApplyFill("AAPL", models.SideBuy, 7, decimal.NewFromInt(100))
	if got := book.Quantity("AAPL"); got != 7 {
		t.Errorf("expected 7, got %d", got)
	}
}
