package risk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Store is the persistence the engine reads for rule inputs.
type Store interface {
	CountOpenTrades(ctx context.Context, userID string) (int, error)
	SumOpenMargin(ctx context.Context, userID string) (float64, error)
	GetDailyPnL(ctx context.Context, userID string, day time.Time) (float64, error)
	AddDailyPnL(ctx context.Context, userID string, day time.Time, pnl float64) error
}

// Engine enforces one user's limits. All checks and margin movements run
// under the engine's lock, so two instances racing for the same margin
// headroom resolve in some serial order and only one can win the last slot.
type Engine struct {
	userID string
	limits Limits
	store  Store
	log    *zap.Logger

	mu       sync.Mutex
	reserved map[string]float64 // instanceID -> margin held
	lastSeen time.Time
}

// NewEngine builds a per-user engine.
func NewEngine(userID string, limits Limits, store Store, log *zap.Logger) *Engine {
	return &Engine{
		userID:   userID,
		limits:   limits,
		store:    store,
		log:      log.Named("risk").With(zap.String("user_id", userID)),
		reserved: make(map[string]float64),
		lastSeen: time.Now(),
	}
}

// Restore seeds the margin ledger from persisted open trades after a
// restart. instanceID -> margin.
func (e *Engine) Restore(held map[string]float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, m := range held {
		e.reserved[id] = m
	}
}

// CheckAndReserve runs the full rule chain for an entry and, if every rule
// passes, reserves the requested margin in the same critical section.
// Rules run in a fixed order and stop at the first failure.
func (e *Engine) CheckAndReserve(ctx context.Context, req EntryRequest) (CheckResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastSeen = time.Now()

	var result CheckResult

	run := func(rr RuleResult) bool {
		result.Results = append(result.Results, rr)
		if !rr.Passed {
			failed := rr
			result.Failed = &failed
			e.log.Warn("entry denied",
				zap.String("instance_id", req.InstanceID),
				zap.String("rule", rr.Rule),
				zap.Float64("value", rr.Value),
				zap.Float64("limit", rr.Limit),
			)
			return false
		}
		return true
	}

	dailyRule, err := e.checkDailyLoss(ctx, req.TotalBalance)
	if err != nil {
		return result, err
	}
	if !run(dailyRule) {
		return result, nil
	}

	posRule, err := e.checkMaxPositions(ctx)
	if err != nil {
		return result, err
	}
	if !run(posRule) {
		return result, nil
	}

	if !run(e.checkLeverage(req.Leverage)) {
		return result, nil
	}
	capRule, err := e.checkMarginCap(ctx, req)
	if err != nil {
		return result, err
	}
	if !run(capRule) {
		return result, nil
	}

	e.reserved[req.InstanceID] = req.Margin
	result.Allowed = true
	return result, nil
}

// Release frees a reservation and books the realized result into the
// daily metrics.
func (e *Engine) Release(ctx context.Context, instanceID string, realizedPnL float64) error {
	e.mu.Lock()
	delete(e.reserved, instanceID)
	e.mu.Unlock()

	if err := e.store.AddDailyPnL(ctx, e.userID, time.Now(), realizedPnL); err != nil {
		return fmt.Errorf("release %s: %w", instanceID, err)
	}
	return nil
}

// Drop frees a reservation without booking PnL, for entries that never
// filled.
func (e *Engine) Drop(instanceID string) {
	e.mu.Lock()
	delete(e.reserved, instanceID)
	e.mu.Unlock()
}

// ReservedMargin returns the margin currently held across all instances.
func (e *Engine) ReservedMargin() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reservedLocked()
}

func (e *Engine) reservedLocked() float64 {
	sum := 0.0
	for _, m := range e.reserved {
		sum += m
	}
	return sum
}

func (e *Engine) checkDailyLoss(ctx context.Context, totalBalance float64) (RuleResult, error) {
	pnl, err := e.store.GetDailyPnL(ctx, e.userID, time.Now())
	if err != nil {
		return RuleResult{}, fmt.Errorf("daily pnl: %w", err)
	}
	lossPct := 0.0
	if pnl < 0 && totalBalance > 0 {
		lossPct = -pnl / totalBalance * 100
	}
	rr := RuleResult{
		Rule:  RuleDailyLoss,
		Value: lossPct,
		Limit: e.limits.MaxDailyLossPct,
	}
	rr.Passed = e.limits.MaxDailyLossPct <= 0 || lossPct < e.limits.MaxDailyLossPct
	if !rr.Passed {
		rr.Reason = fmt.Sprintf("daily loss %.2f%% at or above %.2f%% limit", lossPct, e.limits.MaxDailyLossPct)
	}
	return rr, nil
}

func (e *Engine) checkMaxPositions(ctx context.Context) (RuleResult, error) {
	open, err := e.store.CountOpenTrades(ctx, e.userID)
	if err != nil {
		return RuleResult{}, fmt.Errorf("open trades: %w", err)
	}
	rr := RuleResult{
		Rule:  RuleMaxPositions,
		Value: float64(open),
		Limit: float64(e.limits.MaxOpenPositions),
	}
	rr.Passed = e.limits.MaxOpenPositions <= 0 || open < e.limits.MaxOpenPositions
	if !rr.Passed {
		rr.Reason = fmt.Sprintf("%d positions open, limit %d", open, e.limits.MaxOpenPositions)
	}
	return rr, nil
}

func (e *Engine) checkLeverage(leverage int) RuleResult {
	rr := RuleResult{
		Rule:  RuleLeverage,
		Value: float64(leverage),
		Limit: float64(e.limits.MaxLeverage),
	}
	rr.Passed = e.limits.MaxLeverage <= 0 || leverage <= e.limits.MaxLeverage
	if !rr.Passed {
		rr.Reason = fmt.Sprintf("leverage %dx above limit %dx", leverage, e.limits.MaxLeverage)
	}
	return rr
}

func (e *Engine) checkMarginCap(ctx context.Context, req EntryRequest) (RuleResult, error) {
	used := e.reservedLocked()
	// The persisted ledger is the floor: right after a restart the
	// in-memory reservations may not all be rebuilt yet.
	persisted, err := e.store.SumOpenMargin(ctx, e.userID)
	if err != nil {
		return RuleResult{}, fmt.Errorf("open margin: %w", err)
	}
	if persisted > used {
		used = persisted
	}
	effectiveCap := e.limits.MarginCapPct - e.limits.SafetyBufferPct

	usedPct := 0.0
	if req.TotalBalance > 0 {
		usedPct = (used + req.Margin) / req.TotalBalance * 100
	}
	rr := RuleResult{
		Rule:  RuleMarginCap,
		Value: usedPct,
		Limit: effectiveCap,
	}
	rr.Passed = req.TotalBalance > 0 && usedPct <= effectiveCap
	if !rr.Passed {
		rr.Reason = fmt.Sprintf("margin %.2f%% of balance over effective cap %.2f%%", usedPct, effectiveCap)
	}
	return rr, nil
}

// AvailableMargin reports the headroom under the effective cap.
func (e *Engine) AvailableMargin(totalBalance float64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	budget := totalBalance * (e.limits.MarginCapPct - e.limits.SafetyBufferPct) / 100
	free := budget - e.reservedLocked()
	if free < 0 {
		return 0
	}
	return free
}
