// Package order places entries and exits against an exchange gateway with
// bounded retry on transient failures.
package order

// Exit reasons recorded on a closed trade. Exactly one applies per close.
const (
	ExitTakeProfit     = "take_profit"
	ExitStopLoss       = "stop_loss"
	ExitSignalReversal = "signal_reversal"
	ExitEmergency      = "emergency"
	ExitManual         = "manual"
	ExitMaxHoldTime    = "max_hold_time"
)

// ValidExitReason reports whether reason is part of the fixed vocabulary.
func ValidExitReason(reason string) bool {
	switch reason {
	case ExitTakeProfit, ExitStopLoss, ExitSignalReversal, ExitEmergency, ExitManual, ExitMaxHoldTime:
		return true
	}
	return false
}
