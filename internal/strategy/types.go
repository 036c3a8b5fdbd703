// Package strategy defines the signal-generation contract and the concrete
// strategy implementations behind it.
package strategy

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/joocy75-hash/ai-Agent-sub002/pkg/exchanges/common"
)

// Action is a strategy decision.
type Action string

const (
	ActionBuy   Action = "buy"
	ActionSell  Action = "sell"
	ActionClose Action = "close"
	ActionHold  Action = "hold"
)

// Signal is produced fresh on every tick; it is never shared mutable state.
type Signal struct {
	Action     Action
	Confidence float64 // [0,1]
	Reason     string

	// Protective exits in percent of entry price; zero disables the exit.
	// Filled from the strategy's configured defaults on entry signals.
	StopLossPct   float64
	TakeProfitPct float64
	Leverage      int
	SizePct       float64 // % of the instance allocation
	Tag           string  // recorded with the trade entry
}

// Hold returns a hold signal with the given reason.
func Hold(reason string) Signal {
	return Signal{Action: ActionHold, Reason: reason}
}

// MarketReader is the read-only exchange accessor injected into strategies
// that need balance lookups. It must not be used to place orders.
type MarketReader interface {
	GetBalance(ctx context.Context) (common.Balance, error)
}

// AIAdvisor is the optional model-call accessor for AI-assisted strategies.
type AIAdvisor interface {
	AdviseSignal(ctx context.Context, symbol string, candles []common.Candle, proposed Signal) (Signal, error)
}

// Strategy generates a raw trade signal from price history and the current
// position. Implementations are pure with respect to engine state. A
// strategy receiving fewer candles than MinCandles must return hold with
// confidence 0, never an error.
type Strategy interface {
	Code() string
	MinCandles() int
	GenerateSignal(ctx context.Context, price float64, candles []common.Candle, position *common.Position) Signal
}

// Deps bundles the injected accessors available to strategy constructors.
type Deps struct {
	Symbol string // instrument the instance trades
	Market MarketReader
	AI     AIAdvisor
	Log    *zap.Logger
}

// exitConfig carries the protective-exit parameters every strategy accepts
// alongside its own. Zero disables the corresponding exit.
type exitConfig struct {
	StopLossPct   float64 `json:"stop_loss_percent"`
	TakeProfitPct float64 `json:"take_profit_percent"`
}

func (e exitConfig) validate(code string) error {
	if e.StopLossPct < 0 || e.TakeProfitPct < 0 {
		return fmt.Errorf("%s: stop_loss_percent and take_profit_percent must not be negative, got %.2f and %.2f",
			code, e.StopLossPct, e.TakeProfitPct)
	}
	return nil
}

// stamp copies the configured exits onto an entry signal that does not set
// its own.
func (e exitConfig) stamp(sig Signal) Signal {
	if sig.StopLossPct == 0 {
		sig.StopLossPct = e.StopLossPct
	}
	if sig.TakeProfitPct == 0 {
		sig.TakeProfitPct = e.TakeProfitPct
	}
	return sig
}

// decodeParams maps loosely-typed instance parameters onto a typed struct.
func decodeParams(params map[string]any, out any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode params: %w", err)
	}
	return nil
}
