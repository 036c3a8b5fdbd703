package agents

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/joocy75-hash/ai-Agent-sub002/internal/strategy"
)

func entrySignal(action strategy.Action, confidence float64) strategy.Signal {
	return strategy.Signal{Action: action, Confidence: confidence, SizePct: 0.5}
}

func newTestValidator() *SignalValidator {
	return NewSignalValidator(DefaultValidatorConfig(), zap.NewNop())
}

func TestValidatePassesNonEntrySignals(t *testing.T) {
	v := newTestValidator()
	for _, action := range []strategy.Action{strategy.ActionClose, strategy.ActionHold} {
		got := v.Validate("i", strategy.Signal{Action: action}, RegimeResult{}, false, 0)
		if !got.Approved {
			t.Errorf("%s signal must pass untouched, got %+v", action, got)
		}
	}
}

func TestValidateConfidenceFloor(t *testing.T) {
	v := newTestValidator()
	got := v.Validate("i", entrySignal(strategy.ActionBuy, 0.3), RegimeResult{Regime: RegimeTrending}, true, 0)
	if got.Approved {
		t.Fatal("low-confidence entry must be denied")
	}
}

func TestValidateBlocksUnfavorableRegimes(t *testing.T) {
	v := newTestValidator()
	for _, regime := range []Regime{RegimeVolatile, RegimeLowVolume} {
		t.Run(string(regime), func(t *testing.T) {
			// High confidence must not override the regime block.
			got := v.Validate("i", entrySignal(strategy.ActionBuy, 0.95), RegimeResult{Regime: regime}, true, 0)
			if got.Approved {
				t.Fatal("entry must be denied")
			}
			if got.Reason != "unfavorable_regime" {
				t.Errorf("reason = %q, want unfavorable_regime", got.Reason)
			}
		})
	}
}

func TestValidateUnknownRegimeDenies(t *testing.T) {
	v := newTestValidator()
	got := v.Validate("i", entrySignal(strategy.ActionBuy, 0.9), RegimeResult{}, false, 0)
	if got.Approved {
		t.Fatal("unknown regime must deny entries")
	}
	if got.Reason != "regime_unavailable" {
		t.Errorf("reason = %q, want regime_unavailable", got.Reason)
	}
}

func TestValidateSpikeGuard(t *testing.T) {
	v := newTestValidator()
	tests := []struct {
		change float64
		want   bool
	}{
		{0.5, true},
		{3.5, false},
		{-4.0, false},
	}
	for _, tt := range tests {
		got := v.Validate("i", entrySignal(strategy.ActionBuy, 0.9), RegimeResult{Regime: RegimeTrending}, true, tt.change)
		if got.Approved != tt.want {
			t.Errorf("change %.1f%%: approved = %v, want %v (%s)", tt.change, got.Approved, tt.want, got.Reason)
		}
	}
}

func TestValidateReversalCooldown(t *testing.T) {
	v := newTestValidator()
	regime := RegimeResult{Regime: RegimeTrending}

	v.RecordClose("i", strategy.ActionBuy, time.Now())

	if got := v.Validate("i", entrySignal(strategy.ActionSell, 0.9), regime, true, 0); got.Approved {
		t.Fatal("opposite entry inside cooldown must be denied")
	}
	if got := v.Validate("i", entrySignal(strategy.ActionBuy, 0.9), regime, true, 0); !got.Approved {
		t.Fatalf("same-side re-entry is not a reversal: %s", got.Reason)
	}

	// Other instances are unaffected.
	if got := v.Validate("other", entrySignal(strategy.ActionSell, 0.9), regime, true, 0); !got.Approved {
		t.Fatalf("cooldown leaked across instances: %s", got.Reason)
	}
}

func TestValidateFrequencyCap(t *testing.T) {
	cfg := DefaultValidatorConfig()
	cfg.MaxTradesPerHour = 2
	v := NewSignalValidator(cfg, zap.NewNop())
	regime := RegimeResult{Regime: RegimeTrending}

	now := time.Now()
	v.RecordEntry("i", now.Add(-30*time.Minute))
	v.RecordEntry("i", now.Add(-10*time.Minute))

	if got := v.Validate("i", entrySignal(strategy.ActionBuy, 0.9), regime, true, 0); got.Approved {
		t.Fatal("entry above the hourly cap must be denied")
	}

	// Entries older than an hour age out.
	v.Forget("i")
	v.RecordEntry("i", now.Add(-2*time.Hour))
	if got := v.Validate("i", entrySignal(strategy.ActionBuy, 0.9), regime, true, 0); !got.Approved {
		t.Fatalf("aged-out entries must not count: %s", got.Reason)
	}
}

func TestSizeMultiplierRange(t *testing.T) {
	v := newTestValidator()
	tests := []struct {
		name       string
		confidence float64
		regime     Regime
		want       float64
	}{
		{"strong trend", 0.9, RegimeTrending, 1.0},
		{"ranging", 0.9, RegimeRanging, 0.75},
		{"breakout", 0.9, RegimeBreakout, 0.5},
		{"breakout low confidence", 0.6, RegimeBreakout, 0.4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := v.Validate("i", entrySignal(strategy.ActionBuy, tt.confidence), RegimeResult{Regime: tt.regime}, true, 0)
			if !got.Approved {
				t.Fatalf("expected approval, got %s", got.Reason)
			}
			if got.SizeMultiplier <= 0 || got.SizeMultiplier > 1 {
				t.Fatalf("multiplier %.2f out of (0,1]", got.SizeMultiplier)
			}
			if diff := got.SizeMultiplier - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("multiplier = %.2f, want %.2f", got.SizeMultiplier, tt.want)
			}
		})
	}
}
