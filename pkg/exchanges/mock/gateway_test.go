package mock

import (
	"context"
	"errors"
	"testing"

	"github.com/joocy75-hash/ai-Agent-sub002/pkg/exchanges/common"
)

func TestOrderLifecycle(t *testing.T) {
	g := NewGateway(10_000, 42)
	ctx := context.Background()

	if err := g.SetLeverage(ctx, "BTCUSDT", 5); err != nil {
		t.Fatalf("set leverage: %v", err)
	}

	fill, err := g.PlaceMarketOrder(ctx, "BTCUSDT", common.SideBuy, 1, false)
	if err != nil {
		t.Fatalf("entry: %v", err)
	}
	if fill.Status != common.StatusFilled || fill.AvgFillPrice <= 0 {
		t.Fatalf("fill = %+v", fill)
	}

	positions, err := g.GetPositions(ctx, "BTCUSDT")
	if err != nil {
		t.Fatal(err)
	}
	if len(positions) != 1 {
		t.Fatalf("positions = %d, want 1", len(positions))
	}
	pos := positions[0]
	if pos.Side != common.PositionLong || pos.Leverage != 5 || pos.Size != 1 {
		t.Errorf("position = %+v", pos)
	}
	if pos.LiquidationPrice >= pos.EntryPrice {
		t.Errorf("long liquidation %.2f must sit below entry %.2f", pos.LiquidationPrice, pos.EntryPrice)
	}

	bal, err := g.GetBalance(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if bal.UsedMargin <= 0 || bal.Available >= 10_000 {
		t.Errorf("balance after entry = %+v", bal)
	}

	if _, err := g.PlaceMarketOrder(ctx, "BTCUSDT", common.SideSell, pos.Size, true); err != nil {
		t.Fatalf("close: %v", err)
	}
	positions, _ = g.GetPositions(ctx, "BTCUSDT")
	if len(positions) != 0 {
		t.Fatalf("still %d positions after close", len(positions))
	}
	bal, _ = g.GetBalance(ctx)
	if bal.UsedMargin != 0 {
		t.Errorf("used margin = %.2f after close, want 0", bal.UsedMargin)
	}
}

func TestRejections(t *testing.T) {
	g := NewGateway(100, 1)
	ctx := context.Background()

	var apiErr *common.APIError

	if err := g.SetLeverage(ctx, "BTCUSDT", 0); !errors.As(err, &apiErr) {
		t.Errorf("leverage 0: err = %v, want APIError", err)
	}

	// Reduce-only without a position.
	if _, err := g.PlaceMarketOrder(ctx, "BTCUSDT", common.SideSell, 1, true); !errors.As(err, &apiErr) {
		t.Errorf("reduce-only flat: err = %v, want APIError", err)
	}

	// Margin too small for the notional at 1x.
	g.SetPrice("BTCUSDT", 50_000)
	_, err := g.PlaceMarketOrder(ctx, "BTCUSDT", common.SideBuy, 1, false)
	if !errors.As(err, &apiErr) || apiErr.Code != -2019 {
		t.Errorf("insufficient margin: err = %v, want code -2019", err)
	}
	if common.IsTransient(err) {
		t.Error("margin rejection must not classify as transient")
	}
}

func TestCandlesEndAtCurrentPrice(t *testing.T) {
	g := NewGateway(10_000, 7)
	g.SetPrice("ETHUSDT", 3000)

	candles, err := g.GetCandles(context.Background(), "ETHUSDT", "5m", 48)
	if err != nil {
		t.Fatal(err)
	}
	if len(candles) != 48 {
		t.Fatalf("candles = %d, want 48", len(candles))
	}
	for i, c := range candles {
		if c.High < c.Low || c.Close <= 0 || c.Volume <= 0 {
			t.Fatalf("bar %d malformed: %+v", i, c)
		}
		if i > 0 && !c.OpenTime.After(candles[i-1].OpenTime) {
			t.Fatalf("bar %d out of order", i)
		}
	}
	last := candles[len(candles)-1].Close
	if last < 2000 || last > 4000 {
		t.Errorf("walk drifted implausibly: %.2f", last)
	}
}
