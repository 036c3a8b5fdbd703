// Package agents contains the independent market analyzers that filter and
// adjust raw strategy signals: market regime, signal validation, risk
// monitoring and portfolio sizing. Each agent caches per symbol and fails
// toward a conservative default instead of aborting the tick.
package agents

import "time"

// Regime classifies current market conditions for a symbol.
type Regime string

const (
	RegimeTrending  Regime = "trending"
	RegimeRanging   Regime = "ranging"
	RegimeVolatile  Regime = "volatile"
	RegimeLowVolume Regime = "low_volume"
	RegimeBreakout  Regime = "breakout"
	RegimeReversal  Regime = "reversal"
)

// Entry reports whether new entries are acceptable in this regime.
// Volatile and low-volume conditions are a hard block.
func (r Regime) Entry() bool {
	return r != RegimeVolatile && r != RegimeLowVolume
}

// RegimeResult is the cached output of the market regime agent.
type RegimeResult struct {
	Symbol      string
	Regime      Regime
	Volatility  float64 // stddev of returns over the window
	VolumeRatio float64 // recent volume vs window average
	Momentum    float64 // rate of change over the window
	At          time.Time
}

// Severity grades how endangered the current position is.
type Severity string

const (
	SeveritySafe     Severity = "safe"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// RiskStatus is the risk monitor's verdict on an open position.
type RiskStatus struct {
	Severity            Severity
	LiquidationDistance float64 // fraction of mark price to liquidation
	DrawdownPct         float64 // unrealized loss as % of margin
	Reason              string
}

// Validation is the signal validator's verdict on a candidate signal.
type Validation struct {
	Approved       bool
	Reason         string
	SizeMultiplier float64 // (0,1]; composes multiplicatively with strategy sizing
}

// SizeAdvice is the portfolio sizer's recommendation. Advisory only; the
// risk engine remains the enforcement authority.
type SizeAdvice struct {
	Margin   float64 // USDT margin to commit
	Size     float64 // contracts at the entry price
	Leverage int
	Reason   string
}
