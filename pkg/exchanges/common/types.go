package common

import "time"

// Side denotes order side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the reverse side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// PositionSide denotes the direction of an open position.
type PositionSide string

const (
	PositionLong  PositionSide = "LONG"
	PositionShort PositionSide = "SHORT"
)

// Candle is one OHLCV bar.
type Candle struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// Position is the exchange's authoritative view of an open position.
type Position struct {
	Symbol           string
	Side             PositionSide
	EntryPrice       float64
	MarkPrice        float64
	Size             float64 // always positive; Side carries direction
	Leverage         int
	MarginUsed       float64
	LiquidationPrice float64
	UnrealizedPnL    float64
	OpenedAt         time.Time // zero when the venue does not report it
}

// Balance is the account's USDT-margined futures balance.
type Balance struct {
	Total      float64
	Available  float64
	UsedMargin float64
}

// OrderResult is the exchange ack for a placed order.
type OrderResult struct {
	ExchangeOrderID string
	ClientID        string
	AvgFillPrice    float64 // 0 when the venue acks before fill
	FilledSize      float64
	Fee             float64
	Status          OrderStatus
}

// OrderStatus normalizes exchange status into a small set.
type OrderStatus string

const (
	StatusNew      OrderStatus = "NEW"
	StatusFilled   OrderStatus = "FILLED"
	StatusPartial  OrderStatus = "PARTIAL"
	StatusRejected OrderStatus = "REJECTED"
	StatusUnknown  OrderStatus = "UNKNOWN"
)
