package risk

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Manager holds one Engine per user and evicts idle ones.
type Manager struct {
	mu      sync.RWMutex
	engines map[string]*Engine

	limits Limits
	store  Store
	log    *zap.Logger
}

// NewManager builds the multi-user manager.
func NewManager(limits Limits, store Store, log *zap.Logger) *Manager {
	return &Manager{
		engines: make(map[string]*Engine),
		limits:  limits,
		store:   store,
		log:     log,
	}
}

// GetOrCreate returns the user's engine, creating it on first use.
func (m *Manager) GetOrCreate(userID string) *Engine {
	m.mu.RLock()
	e, ok := m.engines[userID]
	m.mu.RUnlock()
	if ok {
		return e
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.engines[userID]; ok {
		return e
	}
	e = NewEngine(userID, m.limits, m.store, m.log)
	m.engines[userID] = e
	return e
}

// CleanupIdle removes engines untouched for longer than maxIdle, unless
// they still hold margin. Returns the number removed.
func (m *Manager) CleanupIdle(maxIdle time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	now := time.Now()
	for userID, e := range m.engines {
		e.mu.Lock()
		idle := now.Sub(e.lastSeen) > maxIdle
		holding := len(e.reserved) > 0
		e.mu.Unlock()
		if idle && !holding {
			delete(m.engines, userID)
			removed++
		}
	}
	if removed > 0 {
		m.log.Info("removed idle risk engines", zap.Int("count", removed))
	}
	return removed
}

// Count returns the number of live engines.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.engines)
}
