package strategy

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/joocy75-hash/ai-Agent-sub002/internal/indicators"
	"github.com/joocy75-hash/ai-Agent-sub002/pkg/exchanges/common"
)

func init() {
	Register("ai_trend", newAITrend)
}

// aiTrendStrategy derives a technical trend proposal from EMA slopes and
// asks the AI advisor to confirm or adjust it. When no advisor is
// configured, or the model call fails, the technical proposal stands on its
// own with reduced confidence.
type aiTrendStrategy struct {
	symbol  string
	fastEMA int
	slowEMA int
	sizePct float64
	minConf float64
	exits   exitConfig
	ai      AIAdvisor
	log     *zap.Logger
}

func newAITrend(params map[string]any, deps Deps) (Strategy, error) {
	p := struct {
		FastEMA       int     `json:"fast_ema"`
		SlowEMA       int     `json:"slow_ema"`
		SizePct       float64 `json:"size_pct"`
		MinConfidence float64 `json:"min_confidence"`
		exitConfig
	}{FastEMA: 9, SlowEMA: 21, SizePct: 100, MinConfidence: 0.55}

	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.FastEMA <= 0 || p.SlowEMA <= p.FastEMA {
		return nil, fmt.Errorf("ai_trend: need 0 < fast_ema < slow_ema, got fast=%d slow=%d", p.FastEMA, p.SlowEMA)
	}
	if err := p.exitConfig.validate("ai_trend"); err != nil {
		return nil, err
	}
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &aiTrendStrategy{
		symbol:  deps.Symbol,
		fastEMA: p.FastEMA,
		slowEMA: p.SlowEMA,
		sizePct: p.SizePct,
		minConf: p.MinConfidence,
		exits:   p.exitConfig,
		ai:      deps.AI,
		log:     log.Named("ai_trend"),
	}, nil
}

func (s *aiTrendStrategy) Code() string    { return "ai_trend" }
func (s *aiTrendStrategy) MinCandles() int { return s.slowEMA + 1 }

func (s *aiTrendStrategy) GenerateSignal(ctx context.Context, price float64, candles []common.Candle, position *common.Position) Signal {
	if len(candles) < s.MinCandles() {
		return Hold("insufficient candle history")
	}

	closes := closesOf(candles, price)
	fast := indicators.EMA(closes, s.fastEMA)
	slow := indicators.EMA(closes, s.slowEMA)

	proposal := s.propose(price, fast, slow, position)
	if proposal.Action == ActionHold || s.ai == nil {
		return proposal
	}

	validated, err := s.ai.AdviseSignal(ctx, s.symbol, candles, proposal)
	if err != nil {
		// Model outage must not abort the tick; trade the technical signal
		// at reduced confidence.
		s.log.Warn("ai advisor unavailable, using technical signal", zap.Error(err))
		proposal.Confidence *= 0.8
		proposal.Reason += " (unvalidated)"
		return proposal
	}

	if validated.Confidence < s.minConf && validated.Action != ActionClose {
		return Hold(fmt.Sprintf("ai confidence %.2f below %.2f: %s", validated.Confidence, s.minConf, validated.Reason))
	}
	if validated.SizePct == 0 {
		validated.SizePct = s.sizePct
	}
	return s.exits.stamp(validated)
}

func (s *aiTrendStrategy) propose(price, fast, slow float64, position *common.Position) Signal {
	trendUp := fast > slow
	if position != nil {
		against := (position.Side == common.PositionLong && !trendUp) ||
			(position.Side == common.PositionShort && trendUp)
		if against {
			return Signal{
				Action:     ActionClose,
				Confidence: 0.7,
				Reason:     fmt.Sprintf("EMA trend turned against %s (fast %.4f, slow %.4f)", position.Side, fast, slow),
				Tag:        "signal_reversal",
			}
		}
		return Hold("position aligned with trend")
	}

	action := ActionSell
	if trendUp {
		action = ActionBuy
	}
	return s.exits.stamp(Signal{
		Action:     action,
		Confidence: 0.6,
		Reason:     fmt.Sprintf("EMA trend %s (fast %.4f, slow %.4f) at %.4f", direction(trendUp), fast, slow, price),
		SizePct:    s.sizePct,
	})
}

func direction(up bool) string {
	if up {
		return "up"
	}
	return "down"
}
