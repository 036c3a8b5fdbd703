// Package mock provides an in-memory Gateway for development and tests.
// Prices follow a deterministic-seedable random walk; orders fill
// instantly at the current price with a flat taker fee.
package mock

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/joocy75-hash/ai-Agent-sub002/pkg/exchanges/common"
)

const takerFeeRate = 0.0005

// Gateway simulates a USDT-M futures venue.
type Gateway struct {
	mu        sync.Mutex
	rng       *rand.Rand
	prices    map[string]float64
	positions map[string]*common.Position // one-way mode, keyed by symbol
	leverage  map[string]int
	balance   common.Balance
	orderSeq  int
}

// NewGateway builds a simulator with the given starting balance.
func NewGateway(startBalance float64, seed int64) *Gateway {
	return &Gateway{
		rng:       rand.New(rand.NewSource(seed)),
		prices:    make(map[string]float64),
		positions: make(map[string]*common.Position),
		leverage:  make(map[string]int),
		balance:   common.Balance{Total: startBalance, Available: startBalance},
	}
}

// SetPrice pins a symbol's price, mostly for tests.
func (g *Gateway) SetPrice(symbol string, price float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prices[symbol] = price
}

func (g *Gateway) priceLocked(symbol string) float64 {
	p, ok := g.prices[symbol]
	if !ok {
		p = 100 + g.rng.Float64()*10
	}
	// random walk, ±0.1% per read
	p *= 1 + (g.rng.Float64()-0.5)*0.002
	g.prices[symbol] = p
	return p
}

// GetCandles synthesizes a walk ending at the current price.
func (g *Gateway) GetCandles(_ context.Context, symbol, _ string, limit int) ([]common.Candle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	price := g.priceLocked(symbol)
	candles := make([]common.Candle, limit)
	p := price
	now := time.Now().Truncate(time.Minute)
	for i := limit - 1; i >= 0; i-- {
		step := 1 + (g.rng.Float64()-0.5)*0.004
		open := p / step
		high := max64(open, p) * (1 + g.rng.Float64()*0.001)
		low := min64(open, p) * (1 - g.rng.Float64()*0.001)
		candles[i] = common.Candle{
			OpenTime: now.Add(-time.Duration(limit-i) * time.Minute),
			Open:     open,
			High:     high,
			Low:      low,
			Close:    p,
			Volume:   1000 + g.rng.Float64()*500,
		}
		p = open
	}
	return candles, nil
}

func (g *Gateway) GetPositions(_ context.Context, symbol string) ([]common.Position, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	pos, ok := g.positions[symbol]
	if !ok {
		return nil, nil
	}
	mark := g.priceLocked(symbol)
	p := *pos
	p.MarkPrice = mark
	if p.Side == common.PositionShort {
		p.UnrealizedPnL = (p.EntryPrice - mark) * p.Size
	} else {
		p.UnrealizedPnL = (mark - p.EntryPrice) * p.Size
	}
	return []common.Position{p}, nil
}

func (g *Gateway) GetBalance(_ context.Context) (common.Balance, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.balance, nil
}

func (g *Gateway) SetLeverage(_ context.Context, symbol string, leverage int) error {
	if leverage < 1 || leverage > 125 {
		return &common.APIError{HTTPStatus: 400, Code: -4028, Message: "invalid leverage"}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.leverage[symbol] = leverage
	return nil
}

func (g *Gateway) PlaceMarketOrder(_ context.Context, symbol string, side common.Side, size float64, reduceOnly bool) (common.OrderResult, error) {
	if size <= 0 {
		return common.OrderResult{}, &common.APIError{HTTPStatus: 400, Code: -1013, Message: "invalid quantity"}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	price := g.priceLocked(symbol)
	fee := price * size * takerFeeRate
	g.orderSeq++
	result := common.OrderResult{
		ExchangeOrderID: fmt.Sprintf("mock-%d", g.orderSeq),
		AvgFillPrice:    price,
		FilledSize:      size,
		Fee:             fee,
		Status:          common.StatusFilled,
	}

	pos := g.positions[symbol]
	if reduceOnly {
		if pos == nil {
			return common.OrderResult{}, &common.APIError{HTTPStatus: 400, Code: -2022, Message: "reduce only reject"}
		}
		pnl := (price - pos.EntryPrice) * size
		if pos.Side == common.PositionShort {
			pnl = -pnl
		}
		g.balance.Total += pnl - fee
		g.balance.Available += pos.MarginUsed + pnl - fee
		g.balance.UsedMargin -= pos.MarginUsed
		if size >= pos.Size {
			delete(g.positions, symbol)
		} else {
			pos.Size -= size
		}
		return result, nil
	}

	if pos != nil {
		return common.OrderResult{}, &common.APIError{HTTPStatus: 400, Code: -2027, Message: "position already open"}
	}

	lev := g.leverage[symbol]
	if lev == 0 {
		lev = 1
	}
	margin := price * size / float64(lev)
	if margin+fee > g.balance.Available {
		return common.OrderResult{}, &common.APIError{HTTPStatus: 400, Code: -2019, Message: "margin is insufficient"}
	}

	posSide := common.PositionLong
	liq := price * (1 - 1/float64(lev))
	if side == common.SideSell {
		posSide = common.PositionShort
		liq = price * (1 + 1/float64(lev))
	}
	g.positions[symbol] = &common.Position{
		Symbol:           symbol,
		Side:             posSide,
		EntryPrice:       price,
		MarkPrice:        price,
		Size:             size,
		Leverage:         lev,
		MarginUsed:       margin,
		LiquidationPrice: liq,
		OpenedAt:         time.Now(),
	}
	g.balance.Available -= margin + fee
	g.balance.Total -= fee
	g.balance.UsedMargin += margin
	return result, nil
}

func max64(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
