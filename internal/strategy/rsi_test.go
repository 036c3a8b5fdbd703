package strategy

import (
	"context"
	"testing"

	"github.com/joocy75-hash/ai-Agent-sub002/pkg/exchanges/common"
)

func candlesFrom(closes []float64) []common.Candle {
	out := make([]common.Candle, len(closes))
	for i, c := range closes {
		out[i] = common.Candle{Open: c, High: c, Low: c, Close: c, Volume: 1000}
	}
	return out
}

func falling(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start - float64(i)*step
	}
	return out
}

func rising(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func mustStrategy(t *testing.T, code string, params map[string]any) Strategy {
	t.Helper()
	s, err := New(code, params, Deps{Symbol: "BTCUSDT"})
	if err != nil {
		t.Fatalf("new %s: %v", code, err)
	}
	return s
}

func TestRSIBuyOnOversold(t *testing.T) {
	s := mustStrategy(t, "rsi", nil)
	closes := falling(20, 100, 1)
	sig := s.GenerateSignal(context.Background(), closes[len(closes)-1], candlesFrom(closes), nil)

	if sig.Action != ActionBuy {
		t.Fatalf("action = %s, want buy (%s)", sig.Action, sig.Reason)
	}
	if sig.Confidence <= 0 || sig.Confidence > 1 {
		t.Errorf("confidence %.2f out of (0,1]", sig.Confidence)
	}
}

func TestRSISellOnOverbought(t *testing.T) {
	s := mustStrategy(t, "rsi", nil)
	closes := rising(20, 100, 1)
	sig := s.GenerateSignal(context.Background(), closes[len(closes)-1], candlesFrom(closes), nil)

	if sig.Action != ActionSell {
		t.Fatalf("action = %s, want sell (%s)", sig.Action, sig.Reason)
	}
}

func TestRSIHoldInNeutralZone(t *testing.T) {
	s := mustStrategy(t, "rsi", nil)
	// Alternating gains and losses keep RSI near 50.
	closes := make([]float64, 20)
	p := 100.0
	for i := range closes {
		if i%2 == 0 {
			p += 1
		} else {
			p -= 1
		}
		closes[i] = p
	}
	sig := s.GenerateSignal(context.Background(), p, candlesFrom(closes), nil)
	if sig.Action != ActionHold {
		t.Fatalf("action = %s, want hold (%s)", sig.Action, sig.Reason)
	}
}

func TestRSIClosesAgainstPosition(t *testing.T) {
	s := mustStrategy(t, "rsi", nil)
	long := &common.Position{Symbol: "BTCUSDT", Side: common.PositionLong, Size: 1, EntryPrice: 90}

	closes := rising(20, 100, 1)
	sig := s.GenerateSignal(context.Background(), closes[len(closes)-1], candlesFrom(closes), long)
	if sig.Action != ActionClose {
		t.Fatalf("action = %s, want close (%s)", sig.Action, sig.Reason)
	}
	if sig.Tag != "signal_reversal" {
		t.Errorf("tag = %q, want signal_reversal", sig.Tag)
	}

	// The same overbought reading must not open a fresh short while the
	// long is still open; closing comes first.
	if sig.Action == ActionSell {
		t.Error("must close before reversing")
	}
}

func TestRSIInsufficientCandlesHolds(t *testing.T) {
	s := mustStrategy(t, "rsi", map[string]any{"period": 14})
	sig := s.GenerateSignal(context.Background(), 100, candlesFrom(falling(5, 100, 1)), nil)
	if sig.Action != ActionHold {
		t.Fatalf("action = %s, want hold", sig.Action)
	}
	if sig.Confidence != 0 {
		t.Errorf("confidence = %.2f, want 0", sig.Confidence)
	}
}

func TestRSIRejectsBadParams(t *testing.T) {
	if _, err := New("rsi", map[string]any{"period": -3}, Deps{}); err == nil {
		t.Fatal("negative period must be rejected")
	}
}

func TestRegistryUnknownCode(t *testing.T) {
	if _, err := New("no-such-strategy", nil, Deps{}); err == nil {
		t.Fatal("unknown code must error")
	}
}
