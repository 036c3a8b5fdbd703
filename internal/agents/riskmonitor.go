package agents

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/joocy75-hash/ai-Agent-sub002/pkg/exchanges/common"
)

// RiskMonitorConfig tunes the position risk thresholds.
type RiskMonitorConfig struct {
	WarnLiqDistance float64 // fraction of mark price; below this is a warning
	CritLiqDistance float64 // below this is critical
	WarnDrawdownPct float64 // unrealized loss as % of margin
	CritDrawdownPct float64
}

// DefaultRiskMonitorConfig returns the standard thresholds.
func DefaultRiskMonitorConfig() RiskMonitorConfig {
	return RiskMonitorConfig{
		WarnLiqDistance: 0.15,
		CritLiqDistance: 0.05,
		WarnDrawdownPct: 30,
		CritDrawdownPct: 60,
	}
}

// RiskMonitorAgent grades open positions. A critical verdict drives the
// emergency exit path in the tick loop.
type RiskMonitorAgent struct {
	cfg RiskMonitorConfig
	log *zap.Logger
}

// NewRiskMonitorAgent builds the monitor.
func NewRiskMonitorAgent(cfg RiskMonitorConfig, log *zap.Logger) *RiskMonitorAgent {
	return &RiskMonitorAgent{cfg: cfg, log: log.Named("riskmonitor")}
}

// Evaluate grades a single open position. Missing data degrades toward
// safety: if liquidation price is unknown the drawdown rules still apply.
func (a *RiskMonitorAgent) Evaluate(pos *common.Position) RiskStatus {
	if pos == nil || pos.Size == 0 {
		return RiskStatus{Severity: SeveritySafe, Reason: "no open position"}
	}

	liqDist := math.Inf(1)
	if pos.LiquidationPrice > 0 && pos.MarkPrice > 0 {
		liqDist = math.Abs(pos.MarkPrice-pos.LiquidationPrice) / pos.MarkPrice
	}

	drawdown := 0.0
	if pos.UnrealizedPnL < 0 && pos.MarginUsed > 0 {
		drawdown = -pos.UnrealizedPnL / pos.MarginUsed * 100
	}

	status := RiskStatus{
		Severity:            SeveritySafe,
		LiquidationDistance: liqDist,
		DrawdownPct:         drawdown,
		Reason:              "within limits",
	}

	switch {
	case liqDist <= a.cfg.CritLiqDistance:
		status.Severity = SeverityCritical
		status.Reason = fmt.Sprintf("liquidation distance %.1f%% below critical %.1f%%", liqDist*100, a.cfg.CritLiqDistance*100)
	case drawdown >= a.cfg.CritDrawdownPct:
		status.Severity = SeverityCritical
		status.Reason = fmt.Sprintf("drawdown %.1f%% of margin above critical %.1f%%", drawdown, a.cfg.CritDrawdownPct)
	case liqDist <= a.cfg.WarnLiqDistance:
		status.Severity = SeverityWarning
		status.Reason = fmt.Sprintf("liquidation distance %.1f%% below warning %.1f%%", liqDist*100, a.cfg.WarnLiqDistance*100)
	case drawdown >= a.cfg.WarnDrawdownPct:
		status.Severity = SeverityWarning
		status.Reason = fmt.Sprintf("drawdown %.1f%% of margin above warning %.1f%%", drawdown, a.cfg.WarnDrawdownPct)
	}

	if status.Severity != SeveritySafe {
		a.log.Warn("position risk elevated",
			zap.String("symbol", pos.Symbol),
			zap.String("severity", string(status.Severity)),
			zap.String("reason", status.Reason),
		)
	}
	return status
}
