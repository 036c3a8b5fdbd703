// Package engine runs bot instances: one goroutine per instance executing
// the tick pipeline (sync, strategy, agents, risk, execute, record) and a
// manager that owns the start/stop lifecycle.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/joocy75-hash/ai-Agent-sub002/internal/agents"
	"github.com/joocy75-hash/ai-Agent-sub002/internal/events"
	"github.com/joocy75-hash/ai-Agent-sub002/internal/order"
	"github.com/joocy75-hash/ai-Agent-sub002/internal/position"
	"github.com/joocy75-hash/ai-Agent-sub002/internal/recorder"
	"github.com/joocy75-hash/ai-Agent-sub002/internal/risk"
	"github.com/joocy75-hash/ai-Agent-sub002/internal/strategy"
	"github.com/joocy75-hash/ai-Agent-sub002/pkg/exchanges/common"
)

// State is the lifecycle state of an instance.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateError    State = "error"
)

// maxSyncFailures is the consecutive tick failure count that halts an
// instance instead of skipping another tick. Ambiguous hedge-mode syncs
// abort the tick with a warning and halt on their own shorter run.
const (
	maxSyncFailures   = 5
	maxAmbiguousSyncs = 3
)

type instance struct {
	id            string
	userID        string
	symbol        string
	allocationPct float64
	strat         strategy.Strategy
	deps          *Deps
	log           *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}

	// tick-loop state, touched only by the run goroutine after start
	tradeID        string
	trackedSide    common.PositionSide
	entryAt        time.Time
	stopLossPct    float64
	takeProfit     float64
	syncFailures   int
	ambiguousSyncs int
}

// run is the instance's tick loop. It exits when ctx is cancelled or the
// instance escalates into the error state.
func (in *instance) run(ctx context.Context) {
	defer close(in.done)

	ticker := time.NewTicker(in.deps.Cfg.TickInterval)
	defer ticker.Stop()

	in.log.Info("instance loop started", zap.String("symbol", in.symbol), zap.String("strategy", in.strat.Code()))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := in.tick(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				if in.escalate(ctx, err) {
					return
				}
			}
		}
	}
}

// tick runs one pipeline pass. A returned error means the tick could not
// complete; transient causes are absorbed by escalate's counter.
func (in *instance) tick(ctx context.Context) error {
	pos, err := in.deps.Sync.Sync(ctx, in.symbol, in.trackedSide)
	if err != nil {
		return fmt.Errorf("tick sync: %w", err)
	}
	in.syncFailures = 0
	in.ambiguousSyncs = 0

	if err := in.reconcile(ctx, pos); err != nil {
		return err
	}

	candles, err := in.deps.Gateway.GetCandles(ctx, in.symbol, in.deps.Cfg.Timeframe, in.strat.MinCandles()+1)
	if err != nil {
		return fmt.Errorf("tick candles: %w", err)
	}
	if len(candles) < in.strat.MinCandles() {
		in.log.Debug("insufficient candles", zap.Int("have", len(candles)), zap.Int("need", in.strat.MinCandles()))
		return nil
	}
	price := candles[len(candles)-1].Close

	if pos != nil {
		if closed, err := in.manageOpenPosition(ctx, pos, price); err != nil || closed {
			return err
		}
	}

	sig := in.strat.GenerateSignal(ctx, price, candles, pos)

	switch sig.Action {
	case strategy.ActionClose:
		if pos == nil {
			return nil
		}
		return in.closePosition(ctx, pos, exitReasonFor(sig), price)
	case strategy.ActionBuy, strategy.ActionSell:
		if pos != nil {
			// Reversal against the open side closes now; the opposite
			// entry waits for a clean look at the next tick.
			if reverses(sig.Action, pos.Side) {
				return in.closePosition(ctx, pos, order.ExitSignalReversal, price)
			}
			return nil
		}
		return in.tryEntry(ctx, sig, candles, price)
	default:
		return nil
	}
}

// reconcile squares the local trade record with the exchange view.
func (in *instance) reconcile(ctx context.Context, pos *common.Position) error {
	if in.tradeID != "" && pos == nil {
		// Position vanished outside the engine (manual close, liquidation).
		rec, err := in.deps.Recorder.OpenTrade(ctx, in.id)
		if err != nil {
			return fmt.Errorf("reconcile: %w", err)
		}
		if rec != nil {
			if err := in.deps.Recorder.CloseOrphan(ctx, rec, 0, order.ExitManual); err != nil {
				return fmt.Errorf("reconcile orphan: %w", err)
			}
		}
		if err := in.deps.Risk.GetOrCreate(in.userID).Release(ctx, in.id, 0); err != nil {
			in.log.Warn("margin release failed", zap.Error(err))
		}
		in.clearTracked()
		in.log.Warn("tracked position gone from exchange, record closed as manual")
	}
	if in.tradeID == "" && pos != nil {
		in.trackedSide = pos.Side
		in.log.Warn("untracked exchange position adopted",
			zap.String("side", string(pos.Side)),
			zap.Float64("size", pos.Size),
		)
	}
	return nil
}

// manageOpenPosition applies the protective exits: emergency on critical
// risk, stop loss, take profit and the maximum hold time. Returns true
// when the position was closed this tick.
func (in *instance) manageOpenPosition(ctx context.Context, pos *common.Position, price float64) (bool, error) {
	status := in.deps.RiskMon.Evaluate(pos)
	if status.Severity == agents.SeverityCritical {
		in.log.Warn("critical position risk, closing", zap.String("cause", status.Reason))
		return true, in.closePosition(ctx, pos, order.ExitEmergency, price)
	}

	movePct := priceMovePct(pos, price)
	if in.stopLossPct > 0 && movePct <= -in.stopLossPct {
		return true, in.closePosition(ctx, pos, order.ExitStopLoss, price)
	}
	if in.takeProfit > 0 && movePct >= in.takeProfit {
		return true, in.closePosition(ctx, pos, order.ExitTakeProfit, price)
	}
	if in.deps.Cfg.MaxHoldTime > 0 && !in.entryAt.IsZero() && time.Since(in.entryAt) > in.deps.Cfg.MaxHoldTime {
		return true, in.closePosition(ctx, pos, order.ExitMaxHoldTime, price)
	}
	return false, nil
}

// tryEntry runs the validation, sizing and risk chain for an entry signal
// and places the order if everything passes.
func (in *instance) tryEntry(ctx context.Context, sig strategy.Signal, candles []common.Candle, price float64) error {
	regime, known := in.deps.Regime.Cached(in.symbol)
	verdict := in.deps.Validator.Validate(in.id, sig, regime, known, lastBarChangePct(candles))
	if !verdict.Approved {
		in.log.Info("entry rejected by validator",
			zap.String("action", string(sig.Action)),
			zap.String("reason", verdict.Reason),
		)
		return nil
	}

	balance, err := in.deps.Gateway.GetBalance(ctx)
	if err != nil {
		return fmt.Errorf("entry balance: %w", err)
	}

	engine := in.deps.Risk.GetOrCreate(in.userID)
	advice, err := in.deps.Sizer.Advise(
		balance.Total, engine.ReservedMargin(), in.allocationPct,
		sig.SizePct, verdict.SizeMultiplier, price, sig.Leverage,
	)
	if err != nil {
		in.log.Info("entry skipped by sizer", zap.Error(err))
		return nil
	}

	check, err := engine.CheckAndReserve(ctx, risk.EntryRequest{
		InstanceID:   in.id,
		Margin:       advice.Margin,
		Leverage:     advice.Leverage,
		TotalBalance: balance.Total,
	})
	if err != nil {
		return fmt.Errorf("entry risk check: %w", err)
	}
	if !check.Allowed {
		in.deps.Bus.Publish(events.EventRiskDenied, events.RiskDeniedEvent{
			UserID:     in.userID,
			InstanceID: in.id,
			Symbol:     in.symbol,
			Rule:       check.Failed.Rule,
			Value:      check.Failed.Value,
			Limit:      check.Failed.Limit,
			At:         time.Now(),
		})
		return nil
	}

	side := common.SideBuy
	if sig.Action == strategy.ActionSell {
		side = common.SideSell
	}
	fill, err := in.deps.Exec.PlaceEntry(ctx, in.symbol, side, advice.Size, advice.Leverage)
	if err != nil {
		engine.Drop(in.id)
		if common.IsTransient(err) {
			return fmt.Errorf("entry order: %w", err)
		}
		in.log.Warn("entry order rejected", zap.Error(err))
		return nil
	}

	// Post-order sync confirms the fill before the record is trusted.
	pos, err := in.deps.Sync.Sync(ctx, in.symbol, fill.Side)
	if err != nil {
		in.log.Warn("post-entry sync failed", zap.Error(err))
	}

	entryPrice := fill.Order.AvgFillPrice
	size := fill.Order.FilledSize
	if pos != nil {
		entryPrice = pos.EntryPrice
		size = pos.Size
	}

	tradeID, err := in.deps.Recorder.RecordEntry(ctx, recorder.Entry{
		InstanceID: in.id,
		UserID:     in.userID,
		Symbol:     in.symbol,
		Side:       fill.Side,
		Price:      entryPrice,
		Size:       size,
		Leverage:   advice.Leverage,
		MarginUsed: advice.Margin,
		Tag:        sig.Tag,
		Fee:        fill.Order.Fee,
	})
	if err != nil {
		return fmt.Errorf("entry record: %w", err)
	}

	in.tradeID = tradeID
	in.trackedSide = fill.Side
	in.entryAt = time.Now()
	in.stopLossPct = sig.StopLossPct
	in.takeProfit = sig.TakeProfitPct
	in.deps.Validator.RecordEntry(in.id, in.entryAt)

	in.deps.Bus.Publish(events.EventPositionOpened, events.PositionEvent{
		UserID:     in.userID,
		InstanceID: in.id,
		Symbol:     in.symbol,
		Side:       string(fill.Side),
		Price:      entryPrice,
		Size:       size,
		Leverage:   advice.Leverage,
		Reason:     sig.Reason,
		At:         in.entryAt,
	})
	return nil
}

// closePosition flattens the position, writes the exit leg and releases
// the margin reservation.
func (in *instance) closePosition(ctx context.Context, pos *common.Position, reason string, price float64) error {
	result, err := in.deps.Exec.ClosePosition(ctx, pos, reason)
	if err != nil {
		return fmt.Errorf("close (%s): %w", reason, err)
	}

	// Post-order sync; a residual position means a partial close and the
	// next tick picks it up.
	if left, err := in.deps.Sync.Sync(ctx, in.symbol, pos.Side); err == nil && left != nil {
		in.log.Warn("residual position after close", zap.Float64("size", left.Size))
		return nil
	}

	if in.tradeID != "" {
		if err := in.deps.Recorder.RecordExit(ctx, in.tradeID, result.Order.AvgFillPrice, result.RealizedPnL, result.Order.Fee, reason); err != nil {
			in.log.Error("exit record failed", zap.Error(err))
		}
	}
	if err := in.deps.Risk.GetOrCreate(in.userID).Release(ctx, in.id, result.RealizedPnL); err != nil {
		in.log.Warn("margin release failed", zap.Error(err))
	}

	closedAction := strategy.ActionBuy
	if pos.Side == common.PositionShort {
		closedAction = strategy.ActionSell
	}
	in.deps.Validator.RecordClose(in.id, closedAction, time.Now())

	// One event per close; emergency closes get their own topic instead of
	// a second generic one.
	topic := events.EventPositionClosed
	if reason == order.ExitEmergency {
		topic = events.EventEmergencyExit
	}
	in.deps.Bus.Publish(topic, events.PositionEvent{
		UserID:     in.userID,
		InstanceID: in.id,
		Symbol:     in.symbol,
		Side:       string(pos.Side),
		Price:      result.Order.AvgFillPrice,
		Size:       pos.Size,
		Reason:     reason,
		PnL:        result.RealizedPnL,
		At:         time.Now(),
	})
	in.clearTracked()
	return nil
}

// escalate counts consecutive tick failures. A failed tick only logs; the
// instance halts into the error state once a counter crosses its threshold.
// Ambiguous hedge-mode syncs track their own shorter run so a persistent
// conflict halts before the general limit.
func (in *instance) escalate(ctx context.Context, err error) bool {
	in.syncFailures++
	if errors.Is(err, position.ErrAmbiguous) {
		in.ambiguousSyncs++
	} else {
		in.ambiguousSyncs = 0
	}
	in.log.Warn("tick failed",
		zap.Int("consecutive", in.syncFailures),
		zap.Int("ambiguous", in.ambiguousSyncs),
		zap.Error(err),
	)
	if in.ambiguousSyncs >= maxAmbiguousSyncs || in.syncFailures >= maxSyncFailures {
		in.log.Error("instance halted", zap.Error(err))
		in.deps.Bus.Publish(events.EventInstanceError, events.BotEvent{
			UserID:     in.userID,
			InstanceID: in.id,
			Symbol:     in.symbol,
			Detail:     err.Error(),
			At:         time.Now(),
		})
		return true
	}
	return false
}

func (in *instance) clearTracked() {
	in.tradeID = ""
	in.trackedSide = ""
	in.entryAt = time.Time{}
	in.stopLossPct = 0
	in.takeProfit = 0
}

func reverses(action strategy.Action, side common.PositionSide) bool {
	return (action == strategy.ActionBuy && side == common.PositionShort) ||
		(action == strategy.ActionSell && side == common.PositionLong)
}

func exitReasonFor(sig strategy.Signal) string {
	if order.ValidExitReason(sig.Tag) {
		return sig.Tag
	}
	return order.ExitSignalReversal
}

// priceMovePct is the position's favorable move in percent of entry price.
// Negative values are adverse.
func priceMovePct(pos *common.Position, price float64) float64 {
	if pos.EntryPrice == 0 {
		return 0
	}
	move := (price - pos.EntryPrice) / pos.EntryPrice * 100
	if pos.Side == common.PositionShort {
		move = -move
	}
	return move
}

func lastBarChangePct(candles []common.Candle) float64 {
	if len(candles) < 2 {
		return 0
	}
	prev := candles[len(candles)-2].Close
	last := candles[len(candles)-1].Close
	if prev == 0 || math.IsNaN(prev) {
		return 0
	}
	return (last - prev) / prev * 100
}
