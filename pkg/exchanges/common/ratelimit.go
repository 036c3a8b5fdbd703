package common

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Budget gates request submission for one (user, venue) pair. All of a
// user's instances share the same Budget so their combined request rate
// stays under the venue limit.
type Budget struct {
	limiter *rate.Limiter

	mu            sync.RWMutex
	usedWeight    int
	weightLimit   int
	lastReset     time.Time
	resetInterval time.Duration
}

// NewBudget creates a budget allowing rps requests per second with the given
// burst, and tracks venue weight headers against weightLimit per interval
// (2400/min for Binance USDT-M futures).
func NewBudget(rps float64, burst, weightLimit int, resetInterval time.Duration) *Budget {
	return &Budget{
		limiter:       rate.NewLimiter(rate.Limit(rps), burst),
		weightLimit:   weightLimit,
		resetInterval: resetInterval,
		lastReset:     time.Now(),
	}
}

// Wait blocks until a request slot is available or ctx is done.
func (b *Budget) Wait(ctx context.Context) error {
	return b.limiter.Wait(ctx)
}

// UpdateFromHeader records the used weight reported by the venue.
func (b *Budget) UpdateFromHeader(headerValue string) {
	if headerValue == "" {
		return
	}
	weight, err := strconv.Atoi(headerValue)
	if err != nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if time.Since(b.lastReset) >= b.resetInterval {
		b.usedWeight = 0
		b.lastReset = time.Now()
	}
	b.usedWeight = weight
}

// Usage returns used weight, the limit, and usage as a percentage.
func (b *Budget) Usage() (used, limit int, percentage float64) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if time.Since(b.lastReset) >= b.resetInterval {
		return 0, b.weightLimit, 0
	}
	return b.usedWeight, b.weightLimit, float64(b.usedWeight) / float64(b.weightLimit) * 100
}

// Saturated reports whether the venue weight budget is nearly exhausted and
// non-essential requests should be skipped this window.
func (b *Budget) Saturated() bool {
	_, _, pct := b.Usage()
	return pct >= 90
}

// BudgetRegistry hands out one Budget per key (typically userID+venue).
type BudgetRegistry struct {
	mu      sync.Mutex
	budgets map[string]*Budget
	newFn   func() *Budget
}

// NewBudgetRegistry creates a registry; newFn builds the budget for a key on
// first use.
func NewBudgetRegistry(newFn func() *Budget) *BudgetRegistry {
	return &BudgetRegistry{
		budgets: make(map[string]*Budget),
		newFn:   newFn,
	}
}

// Get returns the budget for key, creating it if needed.
func (r *BudgetRegistry) Get(key string) *Budget {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.budgets[key]; ok {
		return b
	}
	b := r.newFn()
	r.budgets[key] = b
	return b
}
