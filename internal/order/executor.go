package order

import (
	"context"
	"fmt"
	"time"

	"github.com/jpillora/backoff"
	"go.uber.org/zap"

	"github.com/joocy75-hash/ai-Agent-sub002/pkg/exchanges/common"
)

// RetryConfig bounds the transient-failure retry loop.
type RetryConfig struct {
	Max     int // attempts after the first
	MinWait time.Duration
	MaxWait time.Duration
}

// DefaultRetryConfig returns the standard retry bounds.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{Max: 3, MinWait: 500 * time.Millisecond, MaxWait: 5 * time.Second}
}

// Executor places orders through a gateway. Transient failures are retried
// with jittered backoff; rejections surface immediately. Leverage is set
// before every entry and a leverage failure aborts the entry outright.
type Executor struct {
	gateway common.Gateway
	retry   RetryConfig
	log     *zap.Logger
}

// NewExecutor builds the executor.
func NewExecutor(gateway common.Gateway, retry RetryConfig, log *zap.Logger) *Executor {
	return &Executor{gateway: gateway, retry: retry, log: log.Named("executor")}
}

// EntryResult describes a filled entry.
type EntryResult struct {
	Order common.OrderResult
	Side  common.PositionSide
}

// PlaceEntry sets leverage and submits a market entry. The order never
// goes out if the leverage call fails, so fills always carry the intended
// leverage.
func (x *Executor) PlaceEntry(ctx context.Context, symbol string, side common.Side, size float64, leverage int) (EntryResult, error) {
	if size <= 0 {
		return EntryResult{}, fmt.Errorf("place entry %s: size %.6f not positive", symbol, size)
	}

	err := x.withRetry(ctx, "set leverage", func() error {
		return x.gateway.SetLeverage(ctx, symbol, leverage)
	})
	if err != nil {
		return EntryResult{}, fmt.Errorf("set leverage %s to %dx: %w", symbol, leverage, err)
	}

	var result common.OrderResult
	err = x.withRetry(ctx, "entry order", func() error {
		var err error
		result, err = x.gateway.PlaceMarketOrder(ctx, symbol, side, size, false)
		return err
	})
	if err != nil {
		return EntryResult{}, fmt.Errorf("entry %s %s %.6f: %w", side, symbol, size, err)
	}

	posSide := common.PositionLong
	if side == common.SideSell {
		posSide = common.PositionShort
	}
	x.log.Info("entry filled",
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.Float64("size", result.FilledSize),
		zap.Float64("price", result.AvgFillPrice),
		zap.Int("leverage", leverage),
	)
	return EntryResult{Order: result, Side: posSide}, nil
}

// CloseResult describes a completed close.
type CloseResult struct {
	Order       common.OrderResult
	RealizedPnL float64 // net of the exit fee
	Reason      string
}

// ClosePosition flattens the full position with a reduce-only market
// order and computes realized PnL from the fill, net of the exit fee.
func (x *Executor) ClosePosition(ctx context.Context, pos *common.Position, reason string) (CloseResult, error) {
	if pos == nil || pos.Size == 0 {
		return CloseResult{}, fmt.Errorf("close: no position")
	}
	if !ValidExitReason(reason) {
		return CloseResult{}, fmt.Errorf("close %s: unknown exit reason %q", pos.Symbol, reason)
	}

	side := common.SideSell
	if pos.Side == common.PositionShort {
		side = common.SideBuy
	}

	var result common.OrderResult
	err := x.withRetry(ctx, "close order", func() error {
		var err error
		result, err = x.gateway.PlaceMarketOrder(ctx, pos.Symbol, side, pos.Size, true)
		return err
	})
	if err != nil {
		return CloseResult{}, fmt.Errorf("close %s (%s): %w", pos.Symbol, reason, err)
	}

	pnl := realizedPnL(pos, result.AvgFillPrice, result.FilledSize) - result.Fee
	x.log.Info("position closed",
		zap.String("symbol", pos.Symbol),
		zap.String("reason", reason),
		zap.Float64("exit_price", result.AvgFillPrice),
		zap.Float64("realized_pnl", pnl),
	)
	return CloseResult{Order: result, RealizedPnL: pnl, Reason: reason}, nil
}

// withRetry runs fn, retrying transient errors up to the configured
// attempt count with jittered exponential backoff.
func (x *Executor) withRetry(ctx context.Context, op string, fn func() error) error {
	b := &backoff.Backoff{
		Min:    x.retry.MinWait,
		Max:    x.retry.MaxWait,
		Factor: 2,
		Jitter: true,
	}

	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !common.IsTransient(err) || attempt >= x.retry.Max {
			return err
		}
		wait := b.Duration()
		x.log.Warn("transient failure, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt+1),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func realizedPnL(pos *common.Position, exitPrice, filledSize float64) float64 {
	size := filledSize
	if size == 0 {
		size = pos.Size
	}
	if pos.Side == common.PositionShort {
		return (pos.EntryPrice - exitPrice) * size
	}
	return (exitPrice - pos.EntryPrice) * size
}
