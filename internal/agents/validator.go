package agents

import (
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/joocy75-hash/ai-Agent-sub002/internal/strategy"
)

// ValidatorConfig tunes the signal validator's rule set.
type ValidatorConfig struct {
	ConfidenceFloor  float64       // signals under this are denied
	SpikeGuardPct    float64       // deny entries after a 1-bar move larger than this %
	ReversalCooldown time.Duration // min delay between a close and an opposite entry
	MaxTradesPerHour int           // per instance
}

// DefaultValidatorConfig returns the standard rule thresholds.
func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		ConfidenceFloor:  0.5,
		SpikeGuardPct:    3.0,
		ReversalCooldown: 5 * time.Minute,
		MaxTradesPerHour: 6,
	}
}

// SignalValidator applies an ordered rule set to candidate entry signals.
// Rules run in a fixed order and the first failure denies the signal with a
// specific reason. Approved signals carry a size multiplier in (0,1] that
// composes multiplicatively with the strategy's own sizing.
type SignalValidator struct {
	cfg ValidatorConfig
	log *zap.Logger

	mu      sync.Mutex
	history map[string]*instanceHistory // instanceID -> recent activity
}

type instanceHistory struct {
	lastCloseAt   time.Time
	lastCloseSide strategy.Action // entry side that was closed
	tradeTimes    []time.Time
}

// NewSignalValidator builds the validator.
func NewSignalValidator(cfg ValidatorConfig, log *zap.Logger) *SignalValidator {
	return &SignalValidator{
		cfg:     cfg,
		log:     log.Named("validator"),
		history: make(map[string]*instanceHistory),
	}
}

// Validate checks an entry signal (buy or sell). Close and hold signals are
// not the validator's business and pass unchanged.
func (v *SignalValidator) Validate(instanceID string, sig strategy.Signal, regime RegimeResult, regimeKnown bool, lastBarChangePct float64) Validation {
	if sig.Action != strategy.ActionBuy && sig.Action != strategy.ActionSell {
		return Validation{Approved: true, SizeMultiplier: 1.0, Reason: "not an entry signal"}
	}

	// Rule 1: confidence floor.
	if sig.Confidence < v.cfg.ConfidenceFloor {
		return deny(fmt.Sprintf("confidence %.2f below floor %.2f", sig.Confidence, v.cfg.ConfidenceFloor))
	}

	// Rule 2: regime compatibility. Unknown regime is treated as
	// unfavorable; entering blind is worse than skipping a tick.
	if !regimeKnown {
		return deny("regime_unavailable")
	}
	if !regime.Regime.Entry() {
		return deny("unfavorable_regime")
	}

	// Rule 3: rate-of-change spike guard.
	if math.Abs(lastBarChangePct) >= v.cfg.SpikeGuardPct {
		return deny(fmt.Sprintf("price spike %.2f%% exceeds guard %.2f%%", lastBarChangePct, v.cfg.SpikeGuardPct))
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	h := v.history[instanceID]

	// Rule 4: anti-reversal-thrash guard.
	if h != nil && !h.lastCloseAt.IsZero() && time.Since(h.lastCloseAt) < v.cfg.ReversalCooldown {
		if h.lastCloseSide != "" && h.lastCloseSide != sig.Action {
			return deny(fmt.Sprintf("reversal within cooldown %s of last close", v.cfg.ReversalCooldown))
		}
	}

	// Rule 5: trade-frequency cap.
	if h != nil && v.cfg.MaxTradesPerHour > 0 {
		cutoff := time.Now().Add(-time.Hour)
		recent := 0
		for _, t := range h.tradeTimes {
			if t.After(cutoff) {
				recent++
			}
		}
		if recent >= v.cfg.MaxTradesPerHour {
			return deny(fmt.Sprintf("trade frequency cap %d/h reached", v.cfg.MaxTradesPerHour))
		}
	}

	return Validation{
		Approved:       true,
		Reason:         "all rules passed",
		SizeMultiplier: v.multiplier(sig, regime),
	}
}

// multiplier shrinks position size in less reliable regimes.
func (v *SignalValidator) multiplier(sig strategy.Signal, regime RegimeResult) float64 {
	m := 1.0
	switch regime.Regime {
	case RegimeBreakout, RegimeReversal:
		m = 0.5
	case RegimeRanging:
		m = 0.75
	}
	if sig.Confidence < 0.7 {
		m *= 0.8
	}
	if m <= 0 {
		m = 0.1
	}
	return m
}

// RecordEntry notes an executed entry for the frequency cap.
func (v *SignalValidator) RecordEntry(instanceID string, at time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()
	h := v.ensure(instanceID)
	h.tradeTimes = append(h.tradeTimes, at)

	// Drop stamps older than the cap window.
	cutoff := at.Add(-time.Hour)
	kept := h.tradeTimes[:0]
	for _, t := range h.tradeTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	h.tradeTimes = kept
}

// RecordClose notes a closed position so an immediate opposite entry is
// held back for the cooldown.
func (v *SignalValidator) RecordClose(instanceID string, closedSide strategy.Action, at time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()
	h := v.ensure(instanceID)
	h.lastCloseAt = at
	h.lastCloseSide = closedSide
}

// Forget drops the tracked history for a stopped instance.
func (v *SignalValidator) Forget(instanceID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.history, instanceID)
}

func (v *SignalValidator) ensure(instanceID string) *instanceHistory {
	h := v.history[instanceID]
	if h == nil {
		h = &instanceHistory{}
		v.history[instanceID] = h
	}
	return h
}

func deny(reason string) Validation {
	return Validation{Approved: false, Reason: reason, SizeMultiplier: 1.0}
}
