package agents

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Coordinator keeps shared agent analysis fresh for every symbol with at
// least one running instance. It refreshes on a fixed interval so tick
// loops read warm cache entries instead of each hitting the exchange.
type Coordinator struct {
	regime   *MarketRegimeAgent
	interval time.Duration
	log      *zap.Logger

	mu      sync.Mutex
	symbols map[string]int // symbol -> active instance count

	cancel context.CancelFunc
	done   chan struct{}
}

// NewCoordinator builds the coordinator.
func NewCoordinator(regime *MarketRegimeAgent, interval time.Duration, log *zap.Logger) *Coordinator {
	return &Coordinator{
		regime:   regime,
		interval: interval,
		log:      log.Named("coordinator"),
		symbols:  make(map[string]int),
	}
}

// AddSymbol registers interest in a symbol and primes its analysis.
func (c *Coordinator) AddSymbol(ctx context.Context, symbol string) {
	c.mu.Lock()
	c.symbols[symbol]++
	first := c.symbols[symbol] == 1
	c.mu.Unlock()

	if first {
		if _, err := c.regime.Refresh(ctx, symbol); err != nil {
			c.log.Warn("initial regime refresh failed", zap.String("symbol", symbol), zap.Error(err))
		}
	}
}

// RemoveSymbol drops interest in a symbol. Analysis stops once no
// instance trades it.
func (c *Coordinator) RemoveSymbol(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n := c.symbols[symbol]; n > 1 {
		c.symbols[symbol] = n - 1
	} else {
		delete(c.symbols, symbol)
	}
}

// Start launches the periodic refresh loop.
func (c *Coordinator) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})

	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.refreshAll(ctx)
			}
		}
	}()
	c.log.Info("agent coordinator started", zap.Duration("interval", c.interval))
}

// Stop halts the refresh loop and waits for it to exit.
func (c *Coordinator) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
	c.log.Info("agent coordinator stopped")
}

func (c *Coordinator) refreshAll(ctx context.Context) {
	c.mu.Lock()
	symbols := make([]string, 0, len(c.symbols))
	for s := range c.symbols {
		symbols = append(symbols, s)
	}
	c.mu.Unlock()

	for _, symbol := range symbols {
		if ctx.Err() != nil {
			return
		}
		if _, err := c.regime.Refresh(ctx, symbol); err != nil {
			// Stale cache entries stay usable until their TTL; a failed
			// refresh is logged, not escalated.
			c.log.Warn("regime refresh failed", zap.String("symbol", symbol), zap.Error(err))
		}
	}
}
