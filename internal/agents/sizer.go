package agents

import (
	"fmt"
	"math"

	"go.uber.org/zap"
)

// PortfolioSizer turns an instance's allocation into a concrete margin,
// size and leverage recommendation. Advisory only; the risk engine makes
// the final call.
type PortfolioSizer struct {
	maxLeverage int
	log         *zap.Logger
}

// NewPortfolioSizer builds the sizer.
func NewPortfolioSizer(maxLeverage int, log *zap.Logger) *PortfolioSizer {
	return &PortfolioSizer{maxLeverage: maxLeverage, log: log.Named("sizer")}
}

// Advise computes the margin and contract size for an entry.
// allocationPct is the instance's share of total equity, sizePct the
// strategy's requested percentage of that share, multiplier the
// validator's adjustment.
func (s *PortfolioSizer) Advise(totalBalance, openMargin, allocationPct, sizePct, multiplier, price float64, leverage int) (SizeAdvice, error) {
	if totalBalance <= 0 {
		return SizeAdvice{}, fmt.Errorf("sizer: total balance %.2f not positive", totalBalance)
	}
	if price <= 0 {
		return SizeAdvice{}, fmt.Errorf("sizer: price %.2f not positive", price)
	}
	if leverage < 1 {
		leverage = 1
	}
	if s.maxLeverage > 0 && leverage > s.maxLeverage {
		leverage = s.maxLeverage
	}
	if sizePct <= 0 || sizePct > 100 {
		sizePct = 100
	}
	if multiplier <= 0 || multiplier > 1 {
		multiplier = 1
	}

	budget := totalBalance * allocationPct / 100
	margin := budget * sizePct / 100 * multiplier

	free := totalBalance - openMargin
	if margin > free {
		margin = free
	}
	if margin <= 0 {
		return SizeAdvice{}, fmt.Errorf("sizer: no free margin (total %.2f, open %.2f)", totalBalance, openMargin)
	}

	notional := margin * float64(leverage)
	size := roundDown(notional/price, 3)
	if size <= 0 {
		return SizeAdvice{}, fmt.Errorf("sizer: margin %.2f too small for %s at price %.2f", margin, "entry", price)
	}

	return SizeAdvice{
		Margin:   margin,
		Size:     size,
		Leverage: leverage,
		Reason:   fmt.Sprintf("%.1f%% allocation, %.0f%% size, %.2fx multiplier", allocationPct, sizePct, multiplier),
	}, nil
}

func roundDown(v float64, decimals int) float64 {
	p := math.Pow10(decimals)
	return math.Floor(v*p) / p
}
