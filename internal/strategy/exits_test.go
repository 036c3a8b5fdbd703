package strategy

import (
	"context"
	"testing"
)

func flat(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestConfiguredExitsStampEntrySignals(t *testing.T) {
	params := map[string]any{"stop_loss_percent": 2.0, "take_profit_percent": 4.0}

	tests := []struct {
		code   string
		closes []float64
		price  float64
	}{
		{"rsi", falling(20, 100, 1), 81},
		{"ma_cross", flat(30, 100), 110},
		{"bollinger", flat(25, 100), 90},
		{"ai_trend", rising(30, 100, 1), 131},
	}
	for _, tc := range tests {
		t.Run(tc.code, func(t *testing.T) {
			s := mustStrategy(t, tc.code, params)
			sig := s.GenerateSignal(context.Background(), tc.price, candlesFrom(tc.closes), nil)
			if sig.Action != ActionBuy && sig.Action != ActionSell {
				t.Fatalf("expected an entry signal, got %s (%s)", sig.Action, sig.Reason)
			}
			if sig.StopLossPct != 2 || sig.TakeProfitPct != 4 {
				t.Errorf("exits = %.1f/%.1f, want 2.0/4.0", sig.StopLossPct, sig.TakeProfitPct)
			}
		})
	}
}

func TestEntrySignalsWithoutConfiguredExits(t *testing.T) {
	s := mustStrategy(t, "rsi", nil)
	closes := falling(20, 100, 1)
	sig := s.GenerateSignal(context.Background(), closes[len(closes)-1], candlesFrom(closes), nil)
	if sig.Action != ActionBuy {
		t.Fatalf("action = %s, want buy", sig.Action)
	}
	if sig.StopLossPct != 0 || sig.TakeProfitPct != 0 {
		t.Errorf("exits = %.1f/%.1f, want disabled (0/0)", sig.StopLossPct, sig.TakeProfitPct)
	}
}

func TestNegativeExitParamsRejected(t *testing.T) {
	for _, code := range []string{"rsi", "ma_cross", "bollinger", "ai_trend"} {
		if _, err := New(code, map[string]any{"stop_loss_percent": -1.0}, Deps{}); err == nil {
			t.Errorf("%s: negative stop_loss_percent accepted", code)
		}
	}
}
