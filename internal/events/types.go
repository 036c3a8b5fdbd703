package events

import "time"

// Event enumerates high-level topics inside the trading engine.
type Event string

const (
	EventBotStarted     Event = "bot.started"
	EventBotStopped     Event = "bot.stopped"
	EventPositionOpened Event = "position.opened"
	EventPositionClosed Event = "position.closed"
	EventRiskDenied     Event = "risk.denied"
	EventEmergencyExit  Event = "emergency.exit"
	EventInstanceError  Event = "instance.error"
)

// BotEvent reports an instance lifecycle change.
type BotEvent struct {
	UserID     string
	InstanceID string
	Symbol     string
	Detail     string // populated on instance.error
	At         time.Time
}

// PositionEvent reports an opened or closed position with enough data to
// render a user-facing message without re-deriving anything.
type PositionEvent struct {
	UserID     string
	InstanceID string
	Symbol     string
	Side       string
	Price      float64
	Size       float64
	Leverage   int
	Reason     string
	PnL        float64 // realized, set on close only
	At         time.Time
}

// RiskDeniedEvent reports a blocked action with the specific failing rule.
type RiskDeniedEvent struct {
	UserID     string
	InstanceID string
	Symbol     string
	Rule       string
	Value      float64
	Limit      float64
	At         time.Time
}
