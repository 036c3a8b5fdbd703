package strategy

import (
	"context"
	"fmt"

	"github.com/joocy75-hash/ai-Agent-sub002/internal/indicators"
	"github.com/joocy75-hash/ai-Agent-sub002/pkg/exchanges/common"
)

func init() {
	Register("bollinger", newBollinger)
}

// bollingerStrategy mean-reverts against the Bollinger bands: buy at the
// lower band, sell at the upper band, close when price reverts to the
// middle band.
type bollingerStrategy struct {
	period  int
	stdDev  float64
	sizePct float64
	exits   exitConfig
}

func newBollinger(params map[string]any, _ Deps) (Strategy, error) {
	p := struct {
		Period  int     `json:"period"`
		StdDev  float64 `json:"std_dev"`
		SizePct float64 `json:"size_pct"`
		exitConfig
	}{Period: 20, StdDev: 2, SizePct: 100}

	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Period <= 0 || p.StdDev <= 0 {
		return nil, fmt.Errorf("bollinger: need positive period and std_dev, got period=%d std_dev=%.2f", p.Period, p.StdDev)
	}
	if err := p.exitConfig.validate("bollinger"); err != nil {
		return nil, err
	}
	return &bollingerStrategy{period: p.Period, stdDev: p.StdDev, sizePct: p.SizePct, exits: p.exitConfig}, nil
}

func (s *bollingerStrategy) Code() string    { return "bollinger" }
func (s *bollingerStrategy) MinCandles() int { return s.period }

func (s *bollingerStrategy) GenerateSignal(_ context.Context, price float64, candles []common.Candle, position *common.Position) Signal {
	if len(candles) < s.MinCandles() {
		return Hold("insufficient candle history")
	}

	closes := closesOf(candles, price)
	mid := indicators.SMA(closes, s.period)
	sd := indicators.StdDev(closes, s.period)
	upper := mid + s.stdDev*sd
	lower := mid - s.stdDev*sd

	if sd == 0 {
		return Hold("flat band")
	}

	if position != nil {
		reverted := (position.Side == common.PositionLong && price >= mid) ||
			(position.Side == common.PositionShort && price <= mid)
		if reverted {
			return Signal{
				Action:     ActionClose,
				Confidence: 0.6,
				Reason:     fmt.Sprintf("price %.4f reverted to middle band %.4f", price, mid),
				Tag:        "take_profit",
			}
		}
		return Hold("position open, awaiting reversion")
	}

	switch {
	case price <= lower:
		return s.exits.stamp(Signal{
			Action:     ActionBuy,
			Confidence: scaleConfidence(lower-price, sd),
			Reason:     fmt.Sprintf("price %.4f under lower band %.4f", price, lower),
			SizePct:    s.sizePct,
		})
	case price >= upper:
		return s.exits.stamp(Signal{
			Action:     ActionSell,
			Confidence: scaleConfidence(price-upper, sd),
			Reason:     fmt.Sprintf("price %.4f over upper band %.4f", price, upper),
			SizePct:    s.sizePct,
		})
	}
	return Hold("price inside bands")
}
