package strategy

import (
	"context"
	"fmt"

	"github.com/joocy75-hash/ai-Agent-sub002/internal/indicators"
	"github.com/joocy75-hash/ai-Agent-sub002/pkg/exchanges/common"
)

func init() {
	Register("ma_cross", newMACross)
}

// maCrossStrategy follows fast/slow moving average crossovers. A position
// held against the current cross direction is closed before any new entry
// is considered.
type maCrossStrategy struct {
	fast    int
	slow    int
	sizePct float64
	exits   exitConfig
}

func newMACross(params map[string]any, _ Deps) (Strategy, error) {
	p := struct {
		Fast    int     `json:"fast"`
		Slow    int     `json:"slow"`
		SizePct float64 `json:"size_pct"`
		exitConfig
	}{Fast: 7, Slow: 25, SizePct: 100}

	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Fast <= 0 || p.Slow <= p.Fast {
		return nil, fmt.Errorf("ma_cross: need 0 < fast < slow, got fast=%d slow=%d", p.Fast, p.Slow)
	}
	if err := p.exitConfig.validate("ma_cross"); err != nil {
		return nil, err
	}
	return &maCrossStrategy{fast: p.Fast, slow: p.Slow, sizePct: p.SizePct, exits: p.exitConfig}, nil
}

func (s *maCrossStrategy) Code() string    { return "ma_cross" }
func (s *maCrossStrategy) MinCandles() int { return s.slow + 1 }

func (s *maCrossStrategy) GenerateSignal(_ context.Context, price float64, candles []common.Candle, position *common.Position) Signal {
	if len(candles) < s.MinCandles() {
		return Hold("insufficient candle history")
	}

	closes := closesOf(candles, price)
	fastNow := indicators.SMA(closes, s.fast)
	slowNow := indicators.SMA(closes, s.slow)
	fastPrev := indicators.SMA(closes[:len(closes)-1], s.fast)
	slowPrev := indicators.SMA(closes[:len(closes)-1], s.slow)

	goldenCross := fastPrev <= slowPrev && fastNow > slowNow
	deathCross := fastPrev >= slowPrev && fastNow < slowNow

	if position != nil {
		if position.Side == common.PositionLong && deathCross {
			return Signal{
				Action:     ActionClose,
				Confidence: 0.7,
				Reason:     fmt.Sprintf("death cross against long (fast %.4f < slow %.4f)", fastNow, slowNow),
				Tag:        "signal_reversal",
			}
		}
		if position.Side == common.PositionShort && goldenCross {
			return Signal{
				Action:     ActionClose,
				Confidence: 0.7,
				Reason:     fmt.Sprintf("golden cross against short (fast %.4f > slow %.4f)", fastNow, slowNow),
				Tag:        "signal_reversal",
			}
		}
		return Hold("position open, cross unchanged")
	}

	if goldenCross {
		return s.exits.stamp(Signal{
			Action:     ActionBuy,
			Confidence: 0.65,
			Reason:     fmt.Sprintf("golden cross (fast %.4f > slow %.4f)", fastNow, slowNow),
			SizePct:    s.sizePct,
		})
	}
	if deathCross {
		return s.exits.stamp(Signal{
			Action:     ActionSell,
			Confidence: 0.65,
			Reason:     fmt.Sprintf("death cross (fast %.4f < slow %.4f)", fastNow, slowNow),
			SizePct:    s.sizePct,
		})
	}
	return Hold("no crossover")
}
