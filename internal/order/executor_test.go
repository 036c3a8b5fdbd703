package order

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/joocy75-hash/ai-Agent-sub002/pkg/exchanges/common"
)

type fakeGateway struct {
	leverageErr   error
	leverageCalls int
	setLeverage   int

	orderErrs  []error // consumed per call, nil means success
	orderCalls int
	lastSide   common.Side
	lastReduce bool
	fill       common.OrderResult
}

func (f *fakeGateway) GetCandles(context.Context, string, string, int) ([]common.Candle, error) {
	return nil, nil
}

func (f *fakeGateway) GetPositions(context.Context, string) ([]common.Position, error) {
	return nil, nil
}

func (f *fakeGateway) GetBalance(context.Context) (common.Balance, error) {
	return common.Balance{}, nil
}

func (f *fakeGateway) SetLeverage(_ context.Context, _ string, leverage int) error {
	f.leverageCalls++
	if f.leverageErr != nil {
		return f.leverageErr
	}
	f.setLeverage = leverage
	return nil
}

func (f *fakeGateway) PlaceMarketOrder(_ context.Context, _ string, side common.Side, size float64, reduceOnly bool) (common.OrderResult, error) {
	call := f.orderCalls
	f.orderCalls++
	f.lastSide = side
	f.lastReduce = reduceOnly
	if call < len(f.orderErrs) && f.orderErrs[call] != nil {
		return common.OrderResult{}, f.orderErrs[call]
	}
	fill := f.fill
	if fill.FilledSize == 0 {
		fill.FilledSize = size
	}
	fill.Status = common.StatusFilled
	return fill, nil
}

func fastRetry() RetryConfig {
	return RetryConfig{Max: 3, MinWait: time.Millisecond, MaxWait: 2 * time.Millisecond}
}

func TestPlaceEntryLeverageFailureAborts(t *testing.T) {
	gw := &fakeGateway{leverageErr: &common.APIError{HTTPStatus: 400, Code: -4028, Message: "invalid leverage"}}
	x := NewExecutor(gw, fastRetry(), zap.NewNop())

	_, err := x.PlaceEntry(context.Background(), "BTCUSDT", common.SideBuy, 0.1, 5)
	if err == nil {
		t.Fatal("expected error")
	}
	if gw.orderCalls != 0 {
		t.Fatalf("order placed despite leverage failure (%d calls)", gw.orderCalls)
	}
}

func TestPlaceEntryRetriesTransient(t *testing.T) {
	gw := &fakeGateway{
		orderErrs: []error{
			&common.APIError{HTTPStatus: 503, Message: "service unavailable"},
			&common.APIError{HTTPStatus: 429, Message: "rate limited"},
			nil,
		},
		fill: common.OrderResult{AvgFillPrice: 50_000, Fee: 1.5},
	}
	x := NewExecutor(gw, fastRetry(), zap.NewNop())

	res, err := x.PlaceEntry(context.Background(), "BTCUSDT", common.SideBuy, 0.1, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gw.orderCalls != 3 {
		t.Errorf("order calls = %d, want 3", gw.orderCalls)
	}
	if res.Side != common.PositionLong {
		t.Errorf("side = %s, want LONG", res.Side)
	}
	if gw.setLeverage != 5 {
		t.Errorf("leverage = %d, want 5", gw.setLeverage)
	}
}

func TestPlaceEntryRejectionNotRetried(t *testing.T) {
	rejection := &common.APIError{HTTPStatus: 400, Code: -2019, Message: "margin is insufficient"}
	gw := &fakeGateway{orderErrs: []error{rejection, nil}}
	x := NewExecutor(gw, fastRetry(), zap.NewNop())

	_, err := x.PlaceEntry(context.Background(), "BTCUSDT", common.SideSell, 0.1, 3)
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *common.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != -2019 {
		t.Fatalf("err = %v, want the rejection surfaced", err)
	}
	if gw.orderCalls != 1 {
		t.Errorf("order calls = %d, want 1 (no retry on rejection)", gw.orderCalls)
	}
}

func TestPlaceEntryRetriesExhaust(t *testing.T) {
	transient := &common.APIError{HTTPStatus: 500, Message: "server error"}
	gw := &fakeGateway{orderErrs: []error{transient, transient, transient, transient, transient}}
	x := NewExecutor(gw, fastRetry(), zap.NewNop())

	_, err := x.PlaceEntry(context.Background(), "BTCUSDT", common.SideBuy, 0.1, 2)
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if gw.orderCalls != 4 {
		t.Errorf("order calls = %d, want 4 (initial + 3 retries)", gw.orderCalls)
	}
}

func TestClosePositionLong(t *testing.T) {
	gw := &fakeGateway{fill: common.OrderResult{AvgFillPrice: 52_000, Fee: 2}}
	x := NewExecutor(gw, fastRetry(), zap.NewNop())

	pos := &common.Position{
		Symbol: "BTCUSDT", Side: common.PositionLong,
		EntryPrice: 50_000, Size: 0.5,
	}
	res, err := x.ClosePosition(context.Background(), pos, ExitTakeProfit)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gw.lastSide != common.SideSell || !gw.lastReduce {
		t.Errorf("close order = %s reduceOnly=%v, want SELL reduce-only", gw.lastSide, gw.lastReduce)
	}
	// (52000 - 50000) * 0.5 - 2 fee
	if res.RealizedPnL != 998 {
		t.Errorf("realized pnl = %.2f, want 998", res.RealizedPnL)
	}
}

func TestClosePositionShort(t *testing.T) {
	gw := &fakeGateway{fill: common.OrderResult{AvgFillPrice: 2900, Fee: 1}}
	x := NewExecutor(gw, fastRetry(), zap.NewNop())

	pos := &common.Position{
		Symbol: "ETHUSDT", Side: common.PositionShort,
		EntryPrice: 3000, Size: 2,
	}
	res, err := x.ClosePosition(context.Background(), pos, ExitStopLoss)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gw.lastSide != common.SideBuy {
		t.Errorf("close side = %s, want BUY", gw.lastSide)
	}
	// (3000 - 2900) * 2 - 1 fee
	if res.RealizedPnL != 199 {
		t.Errorf("realized pnl = %.2f, want 199", res.RealizedPnL)
	}
}

func TestClosePositionUnknownReason(t *testing.T) {
	gw := &fakeGateway{}
	x := NewExecutor(gw, fastRetry(), zap.NewNop())

	pos := &common.Position{Symbol: "BTCUSDT", Side: common.PositionLong, EntryPrice: 100, Size: 1}
	if _, err := x.ClosePosition(context.Background(), pos, "felt like it"); err == nil {
		t.Fatal("expected error for reason outside the vocabulary")
	}
	if gw.orderCalls != 0 {
		t.Error("no order may go out with an invalid reason")
	}
}

func TestValidExitReason(t *testing.T) {
	for _, r := range []string{ExitTakeProfit, ExitStopLoss, ExitSignalReversal, ExitEmergency, ExitManual, ExitMaxHoldTime} {
		if !ValidExitReason(r) {
			t.Errorf("%s must be valid", r)
		}
	}
	for _, r := range []string{"", "liquidated", "TAKE_PROFIT"} {
		if ValidExitReason(r) {
			t.Errorf("%s must be invalid", r)
		}
	}
}
