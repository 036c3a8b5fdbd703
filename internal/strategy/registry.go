package strategy

import (
	"fmt"
	"sort"
	"sync"
)

// Constructor builds a strategy from instance parameters.
type Constructor func(params map[string]any, deps Deps) (Strategy, error)

var (
	regMu    sync.RWMutex
	registry = make(map[string]Constructor)
)

// Register makes a strategy code available to New. Called from init in each
// strategy file; registering a duplicate code panics early.
func Register(code string, ctor Constructor) {
	regMu.Lock()
	defer regMu.Unlock()
	if _, exists := registry[code]; exists {
		panic(fmt.Sprintf("strategy %q registered twice", code))
	}
	registry[code] = ctor
}

// New builds the strategy registered under code.
func New(code string, params map[string]any, deps Deps) (Strategy, error) {
	regMu.RLock()
	ctor, ok := registry[code]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown strategy code %q", code)
	}
	return ctor(params, deps)
}

// Codes returns all registered strategy codes, sorted.
func Codes() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
