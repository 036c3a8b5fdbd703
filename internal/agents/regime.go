package agents

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/joocy75-hash/ai-Agent-sub002/internal/indicators"
	"github.com/joocy75-hash/ai-Agent-sub002/pkg/cache"
	"github.com/joocy75-hash/ai-Agent-sub002/pkg/exchanges/common"
)

// CandleSource provides candle history for analysis. Satisfied by any
// exchange gateway.
type CandleSource interface {
	GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]common.Candle, error)
}

// MarketRegimeAgent classifies market conditions per symbol. Results are
// cached and shared across all users trading the symbol.
type MarketRegimeAgent struct {
	source    CandleSource
	cache     *cache.TTLCache
	timeframe string
	window    int
	log       *zap.Logger

	// classification thresholds
	volatileThreshold  float64 // stddev of returns
	lowVolumeThreshold float64 // recent/average volume ratio
	trendingThreshold  float64 // |momentum|
	breakoutThreshold  float64 // single-bar range vs average
}

// NewMarketRegimeAgent builds the agent with default thresholds.
func NewMarketRegimeAgent(source CandleSource, c *cache.TTLCache, log *zap.Logger) *MarketRegimeAgent {
	return &MarketRegimeAgent{
		source:             source,
		cache:              c,
		timeframe:          "5m",
		window:             48,
		log:                log.Named("regime"),
		volatileThreshold:  0.012,
		lowVolumeThreshold: 0.4,
		trendingThreshold:  0.015,
		breakoutThreshold:  2.5,
	}
}

func regimeKey(symbol string) string { return "regime:" + symbol }

// Cached returns the cached regime for a symbol without recomputing.
func (a *MarketRegimeAgent) Cached(symbol string) (RegimeResult, bool) {
	if v, ok := a.cache.Get(regimeKey(symbol)); ok {
		if r, ok := v.(RegimeResult); ok {
			return r, true
		}
	}
	return RegimeResult{}, false
}

// Analyze returns the regime for a symbol, consulting the cache first.
func (a *MarketRegimeAgent) Analyze(ctx context.Context, symbol string) (RegimeResult, error) {
	if r, ok := a.Cached(symbol); ok {
		return r, nil
	}
	return a.Refresh(ctx, symbol)
}

// Refresh recomputes the regime from fresh candles and stores it in the
// shared cache. Called by the periodic coordinator.
func (a *MarketRegimeAgent) Refresh(ctx context.Context, symbol string) (RegimeResult, error) {
	candles, err := a.source.GetCandles(ctx, symbol, a.timeframe, a.window)
	if err != nil {
		return RegimeResult{}, fmt.Errorf("regime candles for %s: %w", symbol, err)
	}
	if len(candles) < a.window/2 {
		return RegimeResult{}, fmt.Errorf("regime: only %d candles for %s", len(candles), symbol)
	}

	result := a.classify(symbol, candles)
	a.cache.Set(regimeKey(symbol), result)
	a.log.Debug("regime refreshed",
		zap.String("symbol", symbol),
		zap.String("regime", string(result.Regime)),
		zap.Float64("volatility", result.Volatility),
		zap.Float64("volume_ratio", result.VolumeRatio),
	)
	return result, nil
}

func (a *MarketRegimeAgent) classify(symbol string, candles []common.Candle) RegimeResult {
	closes := make([]float64, len(candles))
	volumes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
		volumes[i] = c.Volume
	}

	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] != 0 {
			returns = append(returns, (closes[i]-closes[i-1])/closes[i-1])
		}
	}

	volatility := indicators.StdDev(returns, len(returns))
	momentum := indicators.ROC(closes, len(closes)-1)

	avgVolume := indicators.SMA(volumes, len(volumes))
	recentVolume := indicators.SMA(volumes, 6)
	volumeRatio := 1.0
	if avgVolume > 0 {
		volumeRatio = recentVolume / avgVolume
	}

	last := candles[len(candles)-1]
	lastRange := last.High - last.Low
	avgRange := 0.0
	for _, c := range candles {
		avgRange += c.High - c.Low
	}
	avgRange /= float64(len(candles))

	result := RegimeResult{
		Symbol:      symbol,
		Volatility:  volatility,
		VolumeRatio: volumeRatio,
		Momentum:    momentum,
		At:          time.Now(),
	}

	switch {
	case volumeRatio < a.lowVolumeThreshold:
		result.Regime = RegimeLowVolume
	case volatility > a.volatileThreshold:
		result.Regime = RegimeVolatile
	case avgRange > 0 && lastRange/avgRange > a.breakoutThreshold && volumeRatio > 1.5:
		result.Regime = RegimeBreakout
	case momentum > a.trendingThreshold || momentum < -a.trendingThreshold:
		result.Regime = RegimeTrending
	case crossedBack(closes):
		result.Regime = RegimeReversal
	default:
		result.Regime = RegimeRanging
	}
	return result
}

// crossedBack detects a short-term direction flip against the window trend.
func crossedBack(closes []float64) bool {
	if len(closes) < 12 {
		return false
	}
	long := indicators.ROC(closes, len(closes)-1)
	short := indicators.ROC(closes, 6)
	return (long > 0 && short < 0) || (long < 0 && short > 0)
}
