package common

import "context"

// Gateway abstracts a derivatives venue. All calls are fallible; errors are
// classified transient vs rejected via IsTransient so callers can decide
// whether a retry is safe.
type Gateway interface {
	// GetCandles returns up to limit bars for symbol at the given timeframe,
	// oldest first.
	GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error)

	// GetPositions returns all open positions for the symbol. Hedge mode can
	// yield more than one entry.
	GetPositions(ctx context.Context, symbol string) ([]Position, error)

	// GetBalance returns the futures account balance.
	GetBalance(ctx context.Context) (Balance, error)

	// SetLeverage sets the leverage for subsequent orders on symbol.
	SetLeverage(ctx context.Context, symbol string, leverage int) error

	// PlaceMarketOrder submits a market order. reduceOnly orders only shrink
	// an existing position and never open a new one.
	PlaceMarketOrder(ctx context.Context, symbol string, side Side, size float64, reduceOnly bool) (OrderResult, error)
}
