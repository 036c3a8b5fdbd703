// Package risk enforces per-user trading limits. Every entry passes an
// ordered rule chain under a per-user lock, so a passing check and its
// margin reservation are atomic with respect to concurrent instances.
package risk

// Rule names reported in denial events and logs.
const (
	RuleDailyLoss    = "daily_loss_limit"
	RuleMaxPositions = "max_open_positions"
	RuleLeverage     = "leverage_limit"
	RuleMarginCap    = "margin_cap_exceeded"
)

// Limits are the per-user enforcement thresholds.
type Limits struct {
	MaxDailyLossPct  float64 // realized daily loss as % of balance
	MaxOpenPositions int
	MaxLeverage      int
	MarginCapPct     float64 // total used margin as % of balance
	SafetyBufferPct  float64 // subtracted from the cap before comparing
}

// EntryRequest describes a candidate entry for the rule chain.
type EntryRequest struct {
	InstanceID   string
	Margin       float64 // USDT to reserve
	Leverage     int
	TotalBalance float64
}

// RuleResult is one rule's outcome.
type RuleResult struct {
	Rule   string
	Passed bool
	Value  float64
	Limit  float64
	Reason string
}

// CheckResult aggregates the rule chain. Failed is the first failing rule
// or nil; rules after the first failure do not run.
type CheckResult struct {
	Allowed bool
	Failed  *RuleResult
	Results []RuleResult
}
