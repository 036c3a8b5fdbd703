package strategy

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/joocy75-hash/ai-Agent-sub002/pkg/exchanges/common"
)

type fakeAdvisor struct {
	signal Signal
	err    error
	calls  int
}

func (f *fakeAdvisor) AdviseSignal(_ context.Context, _ string, _ []common.Candle, proposed Signal) (Signal, error) {
	f.calls++
	if f.err != nil {
		return Signal{}, f.err
	}
	if f.signal.Action == "" {
		return proposed, nil
	}
	return f.signal, nil
}

func aiTrendWith(t *testing.T, ai AIAdvisor) Strategy {
	t.Helper()
	s, err := New("ai_trend", nil, Deps{Symbol: "BTCUSDT", AI: ai})
	if err != nil {
		t.Fatalf("new ai_trend: %v", err)
	}
	return s
}

func TestAITrendValidatedEntry(t *testing.T) {
	ai := &fakeAdvisor{signal: Signal{Action: ActionBuy, Confidence: 0.8, Reason: "model agrees"}}
	s := aiTrendWith(t, ai)

	closes := rising(30, 100, 0.5)
	sig := s.GenerateSignal(context.Background(), closes[len(closes)-1], candlesFrom(closes), nil)
	if sig.Action != ActionBuy {
		t.Fatalf("action = %s, want buy (%s)", sig.Action, sig.Reason)
	}
	if ai.calls != 1 {
		t.Errorf("advisor calls = %d, want 1", ai.calls)
	}
	if sig.SizePct == 0 {
		t.Error("validated signal must inherit the strategy size")
	}
}

func TestAITrendLowModelConfidenceHolds(t *testing.T) {
	ai := &fakeAdvisor{signal: Signal{Action: ActionBuy, Confidence: 0.2, Reason: "model doubts it"}}
	s := aiTrendWith(t, ai)

	closes := rising(30, 100, 0.5)
	sig := s.GenerateSignal(context.Background(), closes[len(closes)-1], candlesFrom(closes), nil)
	if sig.Action != ActionHold {
		t.Fatalf("action = %s, want hold (%s)", sig.Action, sig.Reason)
	}
}

func TestAITrendDegradesOnAdvisorFailure(t *testing.T) {
	ai := &fakeAdvisor{err: errors.New("model timeout")}
	s := aiTrendWith(t, ai)

	closes := rising(30, 100, 0.5)
	sig := s.GenerateSignal(context.Background(), closes[len(closes)-1], candlesFrom(closes), nil)

	// The technical proposal survives at reduced confidence.
	if sig.Action != ActionBuy {
		t.Fatalf("action = %s, want buy (%s)", sig.Action, sig.Reason)
	}
	if sig.Confidence >= 0.6 {
		t.Errorf("confidence = %.2f, want reduced below the technical 0.6", sig.Confidence)
	}
	if !strings.Contains(sig.Reason, "unvalidated") {
		t.Errorf("reason %q should note the missing validation", sig.Reason)
	}
}

func TestAITrendWithoutAdvisor(t *testing.T) {
	s := aiTrendWith(t, nil)
	closes := rising(30, 100, 0.5)
	sig := s.GenerateSignal(context.Background(), closes[len(closes)-1], candlesFrom(closes), nil)
	if sig.Action != ActionBuy {
		t.Fatalf("action = %s, want buy from the bare technical signal", sig.Action)
	}
}

func TestAITrendClosesAgainstTrend(t *testing.T) {
	ai := &fakeAdvisor{}
	s := aiTrendWith(t, ai)

	long := &common.Position{Symbol: "BTCUSDT", Side: common.PositionLong, Size: 1, EntryPrice: 120}
	closes := falling(30, 120, 0.5)
	sig := s.GenerateSignal(context.Background(), closes[len(closes)-1], candlesFrom(closes), long)
	if sig.Action != ActionClose {
		t.Fatalf("action = %s, want close (%s)", sig.Action, sig.Reason)
	}
	if sig.Tag != "signal_reversal" {
		t.Errorf("tag = %q, want signal_reversal", sig.Tag)
	}
}
