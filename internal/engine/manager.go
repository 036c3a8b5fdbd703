package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/joocy75-hash/ai-Agent-sub002/internal/agents"
	"github.com/joocy75-hash/ai-Agent-sub002/internal/events"
	"github.com/joocy75-hash/ai-Agent-sub002/internal/order"
	"github.com/joocy75-hash/ai-Agent-sub002/internal/position"
	"github.com/joocy75-hash/ai-Agent-sub002/internal/recorder"
	"github.com/joocy75-hash/ai-Agent-sub002/internal/risk"
	"github.com/joocy75-hash/ai-Agent-sub002/internal/strategy"
	"github.com/joocy75-hash/ai-Agent-sub002/pkg/db"
	"github.com/joocy75-hash/ai-Agent-sub002/pkg/exchanges/common"
	"github.com/joocy75-hash/ai-Agent-sub002/pkg/market"
)

// PriceFeed supplies streamed mark prices for display PnL. Order decisions
// never read it.
type PriceFeed interface {
	Latest(symbol string) (market.MarkPrice, bool)
}

// Config tunes the tick loop.
type Config struct {
	TickInterval time.Duration
	Timeframe    string
	MaxHoldTime  time.Duration
	StopTimeout  time.Duration
}

// Deps bundles everything an instance loop needs.
type Deps struct {
	Cfg         Config
	Gateway     common.Gateway
	Sync        *position.Synchronizer
	Exec        *order.Executor
	Recorder    *recorder.Recorder
	Risk        *risk.Manager
	Regime      *agents.MarketRegimeAgent
	Validator   *agents.SignalValidator
	RiskMon     *agents.RiskMonitorAgent
	Sizer       *agents.PortfolioSizer
	Coordinator *agents.Coordinator
	AI          strategy.AIAdvisor // nil disables AI validation
	Prices      PriceFeed          // nil disables display PnL in statuses
	Store       *db.Database
	Bus         *events.Bus
	Log         *zap.Logger
}

// Manager owns the instance lifecycle. At most one loop runs per instance
// id; Start is idempotent and concurrent Starts for the same id resolve to
// a single loop.
type Manager struct {
	deps *Deps
	log  *zap.Logger

	mu      sync.Mutex
	running map[string]*instance
	states  map[string]State
}

// NewManager builds the lifecycle manager.
func NewManager(deps *Deps) *Manager {
	return &Manager{
		deps:    deps,
		log:     deps.Log.Named("engine"),
		running: make(map[string]*instance),
		states:  make(map[string]State),
	}
}

// Start launches the instance's loop. Starting a running or starting
// instance is a no-op.
func (m *Manager) Start(ctx context.Context, instanceID string) error {
	m.mu.Lock()
	switch m.states[instanceID] {
	case StateRunning, StateStarting:
		m.mu.Unlock()
		m.log.Debug("start ignored, already active", zap.String("instance_id", instanceID))
		return nil
	case StateStopping:
		m.mu.Unlock()
		return fmt.Errorf("start %s: still stopping", instanceID)
	}
	m.states[instanceID] = StateStarting
	m.mu.Unlock()

	in, err := m.build(ctx, instanceID)
	if err != nil {
		m.setState(instanceID, StateError)
		return fmt.Errorf("start %s: %w", instanceID, err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	in.cancel = cancel
	in.done = make(chan struct{})

	m.mu.Lock()
	m.running[instanceID] = in
	m.states[instanceID] = StateRunning
	m.mu.Unlock()

	m.deps.Coordinator.AddSymbol(ctx, in.symbol)
	if err := m.deps.Store.SetInstanceStatus(ctx, instanceID, string(StateRunning)); err != nil {
		m.log.Warn("status persist failed", zap.Error(err))
	}
	m.deps.Bus.Publish(events.EventBotStarted, events.BotEvent{
		UserID:     in.userID,
		InstanceID: instanceID,
		Symbol:     in.symbol,
		At:         time.Now(),
	})

	go func() {
		in.run(loopCtx)
		m.mu.Lock()
		// Only touch the registry if this loop still owns the entry; a
		// timed-out Stop keeps it registered until the loop really exits.
		if m.running[instanceID] == in {
			delete(m.running, instanceID)
			switch m.states[instanceID] {
			case StateRunning:
				// Loop exited on its own, not via Stop.
				m.states[instanceID] = StateError
			case StateStopping:
				m.states[instanceID] = StateStopped
			}
		}
		m.mu.Unlock()
	}()
	return nil
}

// build loads the instance definition, constructs its strategy and resumes
// any open trade left from a previous run.
func (m *Manager) build(ctx context.Context, instanceID string) (*instance, error) {
	row, err := m.deps.Store.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if row == nil || row.IsDeleted {
		return nil, fmt.Errorf("instance not found")
	}

	var params map[string]any
	if row.Parameters != "" {
		if err := json.Unmarshal([]byte(row.Parameters), &params); err != nil {
			return nil, fmt.Errorf("parameters: %w", err)
		}
	}

	log := m.log.With(zap.String("instance_id", instanceID), zap.String("user_id", row.UserID))
	strat, err := strategy.New(row.StrategyCode, params, strategy.Deps{
		Symbol: row.Symbol,
		Market: m.deps.Gateway,
		AI:     m.deps.AI,
		Log:    log,
	})
	if err != nil {
		return nil, err
	}

	in := &instance{
		id:            instanceID,
		userID:        row.UserID,
		symbol:        row.Symbol,
		allocationPct: row.AllocationPct,
		strat:         strat,
		deps:          m.deps,
		log:           log,
	}

	// Resume a trade opened before a restart. Stop loss and take profit
	// levels are not persisted; until the strategy closes it, protection
	// comes from the risk monitor and the hold-time cap.
	rec, err := m.deps.Recorder.OpenTrade(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		in.tradeID = rec.ID
		in.trackedSide = common.PositionSide(rec.Side)
		in.entryAt = rec.EntryTime
		m.deps.Risk.GetOrCreate(row.UserID).Restore(map[string]float64{instanceID: rec.MarginUsed})
		log.Info("resumed open trade",
			zap.String("trade_id", rec.ID),
			zap.String("side", rec.Side),
			zap.Float64("entry_price", rec.EntryPrice),
		)
	}
	return in, nil
}

// Stop cancels the instance loop and waits up to the configured timeout
// for it to exit. Stopping a stopped instance is a no-op.
func (m *Manager) Stop(ctx context.Context, instanceID string) error {
	m.mu.Lock()
	in, ok := m.running[instanceID]
	if !ok {
		m.states[instanceID] = StateStopped
		m.mu.Unlock()
		return nil
	}
	m.states[instanceID] = StateStopping
	m.mu.Unlock()

	in.cancel()
	select {
	case <-in.done:
	case <-time.After(m.deps.Cfg.StopTimeout):
		// The instance stays registered as stopping until its loop exits,
		// so a re-Start cannot run two loops for one id.
		m.log.Error("instance did not stop in time", zap.String("instance_id", instanceID))
		return fmt.Errorf("stop %s: loop did not exit within %s", instanceID, m.deps.Cfg.StopTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}

	m.mu.Lock()
	delete(m.running, instanceID)
	m.states[instanceID] = StateStopped
	m.mu.Unlock()

	m.deps.Coordinator.RemoveSymbol(in.symbol)
	m.deps.Validator.Forget(instanceID)
	if err := m.deps.Store.SetInstanceStatus(ctx, instanceID, string(StateStopped)); err != nil {
		m.log.Warn("status persist failed", zap.Error(err))
	}
	m.deps.Bus.Publish(events.EventBotStopped, events.BotEvent{
		UserID:     in.userID,
		InstanceID: instanceID,
		Symbol:     in.symbol,
		At:         time.Now(),
	})
	return nil
}

// StopAllForUser stops every running instance owned by the user.
func (m *Manager) StopAllForUser(ctx context.Context, userID string) error {
	m.mu.Lock()
	var ids []string
	for id, in := range m.running {
		if in.userID == userID {
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.Stop(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// StopAll stops every running instance, used at shutdown.
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.running))
	for id := range m.running {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.Stop(ctx, id); err != nil {
			m.log.Warn("stop failed during shutdown", zap.String("instance_id", id), zap.Error(err))
		}
	}
}

// IsRunning reports whether the instance's loop is active.
func (m *Manager) IsRunning(instanceID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.running[instanceID]
	return ok
}

// StateOf returns the instance's lifecycle state.
func (m *Manager) StateOf(instanceID string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.states[instanceID]; ok {
		return s
	}
	return StateStopped
}

// InstanceStatus is a point-in-time view of one running instance.
type InstanceStatus struct {
	InstanceID    string
	UserID        string
	Symbol        string
	State         State
	Side          string
	EntryPrice    float64
	Size          float64
	UnrealizedPnL float64 // from streamed mark price, zero when no feed
	MarkPrice     float64
	OpenedAt      time.Time
}

// Statuses reports every running instance, with display-only unrealized
// PnL computed from the streamed mark price when one is available.
func (m *Manager) Statuses(ctx context.Context) []InstanceStatus {
	m.mu.Lock()
	type entry struct {
		id, userID, symbol string
		state              State
	}
	list := make([]entry, 0, len(m.running))
	for id, in := range m.running {
		list = append(list, entry{id: id, userID: in.userID, symbol: in.symbol, state: m.states[id]})
	}
	m.mu.Unlock()

	out := make([]InstanceStatus, 0, len(list))
	for _, e := range list {
		st := InstanceStatus{InstanceID: e.id, UserID: e.userID, Symbol: e.symbol, State: e.state}
		rec, err := m.deps.Recorder.OpenTrade(ctx, e.id)
		if err != nil {
			m.log.Warn("status trade lookup failed", zap.String("instance_id", e.id), zap.Error(err))
		} else if rec != nil {
			st.Side = rec.Side
			st.EntryPrice = rec.EntryPrice
			st.Size = rec.Size
			st.OpenedAt = rec.EntryTime
			if m.deps.Prices != nil {
				if mp, ok := m.deps.Prices.Latest(e.symbol); ok {
					st.MarkPrice = mp.Price
					diff := mp.Price - rec.EntryPrice
					if rec.Side == string(common.PositionShort) {
						diff = -diff
					}
					st.UnrealizedPnL = diff * rec.Size
				}
			}
		}
		out = append(out, st)
	}
	return out
}

func (m *Manager) setState(instanceID string, s State) {
	m.mu.Lock()
	m.states[instanceID] = s
	m.mu.Unlock()
}
