package db

import "time"

// Trade statuses.
const (
	TradeOpen   = "open"
	TradeClosed = "closed"
)

// TradeRecord is one logical trade: an entry leg written at order acceptance
// and an exit leg written at close. Immutable once the exit leg lands.
type TradeRecord struct {
	ID         string
	InstanceID string
	UserID     string
	Symbol     string
	Side       string // LONG or SHORT
	EntryPrice float64
	Size       float64
	Leverage   int
	MarginUsed float64
	EntryTag   string
	EntryTime  time.Time

	ExitPrice   float64
	ExitReason  string
	RealizedPnL float64
	Fee         float64
	ExitTime    time.Time

	Status string
}

// InstanceRow is the persisted snapshot of a bot instance.
type InstanceRow struct {
	ID            string
	UserID        string
	Symbol        string
	StrategyCode  string
	Parameters    string // JSON
	AllocationPct float64
	Status        string
	IsDeleted     bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
