// Package position reconciles locally tracked state with the exchange.
// The exchange is authoritative: each tick and every post-order check reads
// live positions and the local view is corrected to match.
package position

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/joocy75-hash/ai-Agent-sub002/pkg/exchanges/common"
)

// ErrAmbiguous is returned when the exchange reports positions on both
// sides of a symbol and no tracked side disambiguates them. The caller
// must halt trading on the instance rather than guess.
var ErrAmbiguous = errors.New("position: ambiguous hedge-mode positions")

// Source reads live positions. Satisfied by any exchange gateway.
type Source interface {
	GetPositions(ctx context.Context, symbol string) ([]common.Position, error)
}

// Synchronizer fetches and matches the exchange position for one symbol.
type Synchronizer struct {
	source Source
	log    *zap.Logger
}

// NewSynchronizer builds a synchronizer over the given source.
func NewSynchronizer(source Source, log *zap.Logger) *Synchronizer {
	return &Synchronizer{source: source, log: log.Named("position")}
}

// Sync returns the live position for symbol, or nil when flat.
// trackedSide narrows hedge-mode results to the side this instance
// manages; pass the empty string when no position is tracked.
func (s *Synchronizer) Sync(ctx context.Context, symbol string, trackedSide common.PositionSide) (*common.Position, error) {
	raw, err := s.source.GetPositions(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("sync %s: %w", symbol, err)
	}

	want := Normalize(symbol)
	var matches []common.Position
	for _, p := range raw {
		if Normalize(p.Symbol) != want {
			continue
		}
		if p.Size == 0 {
			continue
		}
		matches = append(matches, p)
	}

	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		p := matches[0]
		return &p, nil
	}

	// Hedge mode: long and short open at once. Only a tracked side makes
	// the result unambiguous.
	if trackedSide != "" {
		for _, p := range matches {
			if p.Side == trackedSide {
				match := p
				return &match, nil
			}
		}
	}
	s.log.Error("hedge-mode conflict",
		zap.String("symbol", symbol),
		zap.Int("positions", len(matches)),
		zap.String("tracked_side", string(trackedSide)),
	)
	return nil, fmt.Errorf("%w: %s has %d sides open", ErrAmbiguous, symbol, len(matches))
}

// Normalize canonicalizes a symbol for comparison: uppercase with
// separator characters removed, so "btc-usdt", "BTC/USDT" and "BTCUSDT"
// all match.
func Normalize(symbol string) string {
	r := strings.NewReplacer("-", "", "/", "", "_", "", ":", "")
	return strings.ToUpper(r.Replace(strings.TrimSpace(symbol)))
}
