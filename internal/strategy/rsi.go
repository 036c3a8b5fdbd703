package strategy

import (
	"context"
	"fmt"

	"github.com/joocy75-hash/ai-Agent-sub002/internal/indicators"
	"github.com/joocy75-hash/ai-Agent-sub002/pkg/exchanges/common"
)

func init() {
	Register("rsi", newRSI)
}

// rsiStrategy trades RSI overbought/oversold extremes: buy under the
// oversold threshold, sell over the overbought threshold, close an open
// position when RSI crosses back past the opposite extreme.
type rsiStrategy struct {
	period     int
	oversold   float64
	overbought float64
	sizePct    float64
	exits      exitConfig
}

func newRSI(params map[string]any, _ Deps) (Strategy, error) {
	p := struct {
		Period     int     `json:"period"`
		Oversold   float64 `json:"oversold"`
		Overbought float64 `json:"overbought"`
		SizePct    float64 `json:"size_pct"`
		exitConfig
	}{Period: 14, Oversold: 30, Overbought: 70, SizePct: 100}

	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Period <= 0 {
		return nil, fmt.Errorf("rsi: period must be positive, got %d", p.Period)
	}
	if err := p.exitConfig.validate("rsi"); err != nil {
		return nil, err
	}
	return &rsiStrategy{
		period:     p.Period,
		oversold:   p.Oversold,
		overbought: p.Overbought,
		sizePct:    p.SizePct,
		exits:      p.exitConfig,
	}, nil
}

func (s *rsiStrategy) Code() string    { return "rsi" }
func (s *rsiStrategy) MinCandles() int { return s.period + 1 }

func (s *rsiStrategy) GenerateSignal(_ context.Context, price float64, candles []common.Candle, position *common.Position) Signal {
	if len(candles) < s.MinCandles() {
		return Hold("insufficient candle history")
	}

	closes := closesOf(candles, price)
	rsi := indicators.RSI(closes, s.period)

	if position != nil {
		switch {
		case position.Side == common.PositionLong && rsi >= s.overbought:
			return Signal{
				Action:     ActionClose,
				Confidence: scaleConfidence(rsi-s.overbought, 100-s.overbought),
				Reason:     fmt.Sprintf("RSI %.1f above overbought %.1f against long", rsi, s.overbought),
				Tag:        "signal_reversal",
			}
		case position.Side == common.PositionShort && rsi <= s.oversold:
			return Signal{
				Action:     ActionClose,
				Confidence: scaleConfidence(s.oversold-rsi, s.oversold),
				Reason:     fmt.Sprintf("RSI %.1f below oversold %.1f against short", rsi, s.oversold),
				Tag:        "signal_reversal",
			}
		}
		return Hold("position open, no reversal")
	}

	switch {
	case rsi <= s.oversold:
		return s.exits.stamp(Signal{
			Action:     ActionBuy,
			Confidence: scaleConfidence(s.oversold-rsi, s.oversold),
			Reason:     fmt.Sprintf("RSI %.1f under oversold %.1f", rsi, s.oversold),
			SizePct:    s.sizePct,
		})
	case rsi >= s.overbought:
		return s.exits.stamp(Signal{
			Action:     ActionSell,
			Confidence: scaleConfidence(rsi-s.overbought, 100-s.overbought),
			Reason:     fmt.Sprintf("RSI %.1f over overbought %.1f", rsi, s.overbought),
			SizePct:    s.sizePct,
		})
	}
	return Hold("RSI in neutral zone")
}

// closesOf extracts close prices and appends the live price as the most
// recent sample.
func closesOf(candles []common.Candle, price float64) []float64 {
	closes := make([]float64, 0, len(candles)+1)
	for _, c := range candles {
		closes = append(closes, c.Close)
	}
	if price > 0 {
		closes = append(closes, price)
	}
	return closes
}

// scaleConfidence maps a threshold overshoot into (0,1].
func scaleConfidence(excess, span float64) float64 {
	if span <= 0 {
		return 0.5
	}
	c := 0.5 + excess/span
	if c > 1 {
		c = 1
	}
	if c < 0 {
		c = 0
	}
	return c
}
