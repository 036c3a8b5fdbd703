package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/joocy75-hash/ai-Agent-sub002/internal/agents"
	"github.com/joocy75-hash/ai-Agent-sub002/internal/events"
	"github.com/joocy75-hash/ai-Agent-sub002/internal/order"
	"github.com/joocy75-hash/ai-Agent-sub002/internal/position"
	"github.com/joocy75-hash/ai-Agent-sub002/internal/recorder"
	"github.com/joocy75-hash/ai-Agent-sub002/internal/risk"
	"github.com/joocy75-hash/ai-Agent-sub002/pkg/cache"
	"github.com/joocy75-hash/ai-Agent-sub002/pkg/db"
	"github.com/joocy75-hash/ai-Agent-sub002/pkg/exchanges/mock"
	"github.com/joocy75-hash/ai-Agent-sub002/pkg/market"
)

type staticFeed map[string]float64

func (f staticFeed) Latest(symbol string) (market.MarkPrice, bool) {
	p, ok := f[symbol]
	return market.MarkPrice{Symbol: symbol, Price: p, At: time.Now()}, ok
}

func newTestManager(t *testing.T) (*Manager, *db.Database) {
	t.Helper()

	database, err := db.NewInMemory()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	log := zap.NewNop()
	gateway := mock.NewGateway(10_000, 1)
	regime := agents.NewMarketRegimeAgent(gateway, cache.New(time.Minute, 64), log)

	deps := &Deps{
		Cfg: Config{
			// Long tick keeps loops idle so lifecycle behavior is isolated.
			TickInterval: time.Hour,
			Timeframe:    "5m",
			MaxHoldTime:  24 * time.Hour,
			StopTimeout:  5 * time.Second,
		},
		Gateway:     gateway,
		Sync:        position.NewSynchronizer(gateway, log),
		Exec:        order.NewExecutor(gateway, order.DefaultRetryConfig(), log),
		Recorder:    recorder.New(database, log),
		Risk:        risk.NewManager(risk.Limits{MaxOpenPositions: 3, MaxLeverage: 10, MarginCapPct: 40, SafetyBufferPct: 2}, database, log),
		Regime:      regime,
		Validator:   agents.NewSignalValidator(agents.DefaultValidatorConfig(), log),
		RiskMon:     agents.NewRiskMonitorAgent(agents.DefaultRiskMonitorConfig(), log),
		Sizer:       agents.NewPortfolioSizer(10, log),
		Coordinator: agents.NewCoordinator(regime, time.Hour, log),
		Store:       database,
		Bus:         events.NewBus(),
		Log:         log,
	}
	return NewManager(deps), database
}

func seedInstance(t *testing.T, database *db.Database, id, userID string) {
	t.Helper()
	err := database.UpsertInstance(context.Background(), db.InstanceRow{
		ID:            id,
		UserID:        userID,
		Symbol:        "BTCUSDT",
		StrategyCode:  "rsi",
		Parameters:    `{"period": 14}`,
		AllocationPct: 25,
		Status:        string(StateStopped),
	})
	if err != nil {
		t.Fatalf("seed instance: %v", err)
	}
}

func TestStartStop(t *testing.T) {
	m, database := newTestManager(t)
	seedInstance(t, database, "inst-1", "user-1")
	ctx := context.Background()

	if err := m.Start(ctx, "inst-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !m.IsRunning("inst-1") {
		t.Fatal("instance not running after Start")
	}
	if got := m.StateOf("inst-1"); got != StateRunning {
		t.Errorf("state = %s, want running", got)
	}

	if err := m.Stop(ctx, "inst-1"); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if m.IsRunning("inst-1") {
		t.Fatal("instance still running after Stop")
	}
	if got := m.StateOf("inst-1"); got != StateStopped {
		t.Errorf("state = %s, want stopped", got)
	}
}

func TestConcurrentStartsYieldOneLoop(t *testing.T) {
	m, database := newTestManager(t)
	seedInstance(t, database, "inst-1", "user-1")
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.Start(ctx, "inst-1"); err != nil {
				t.Errorf("start: %v", err)
			}
		}()
	}
	wg.Wait()

	statuses := m.Statuses(ctx)
	if len(statuses) != 1 {
		t.Fatalf("running instances = %d, want 1", len(statuses))
	}
	if err := m.Stop(ctx, "inst-1"); err != nil {
		t.Fatal(err)
	}
}

func TestStartUnknownInstance(t *testing.T) {
	m, _ := newTestManager(t)
	if err := m.Start(context.Background(), "ghost"); err == nil {
		t.Fatal("expected error")
	}
	if got := m.StateOf("ghost"); got != StateError {
		t.Errorf("state = %s, want error", got)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	m, database := newTestManager(t)
	seedInstance(t, database, "inst-1", "user-1")
	ctx := context.Background()

	if err := m.Stop(ctx, "inst-1"); err != nil {
		t.Fatalf("stop before start: %v", err)
	}
	if err := m.Start(ctx, "inst-1"); err != nil {
		t.Fatal(err)
	}
	if err := m.Stop(ctx, "inst-1"); err != nil {
		t.Fatal(err)
	}
	if err := m.Stop(ctx, "inst-1"); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func TestStopAllForUser(t *testing.T) {
	m, database := newTestManager(t)
	seedInstance(t, database, "inst-a", "user-1")
	seedInstance(t, database, "inst-b", "user-1")
	seedInstance(t, database, "inst-c", "user-2")
	ctx := context.Background()

	for _, id := range []string{"inst-a", "inst-b", "inst-c"} {
		if err := m.Start(ctx, id); err != nil {
			t.Fatalf("start %s: %v", id, err)
		}
	}

	if err := m.StopAllForUser(ctx, "user-1"); err != nil {
		t.Fatalf("stop all: %v", err)
	}
	if m.IsRunning("inst-a") || m.IsRunning("inst-b") {
		t.Error("user-1 instances still running")
	}
	if !m.IsRunning("inst-c") {
		t.Error("user-2 instance must keep running")
	}
	m.StopAll(ctx)
}

func TestRestartResumesOpenTrade(t *testing.T) {
	m, database := newTestManager(t)
	seedInstance(t, database, "inst-1", "user-1")
	ctx := context.Background()

	// A trade left open by a previous run.
	rec := recorder.New(database, zap.NewNop())
	if _, err := rec.RecordEntry(ctx, recorder.Entry{
		InstanceID: "inst-1", UserID: "user-1", Symbol: "BTCUSDT",
		Side: "LONG", Price: 50_000, Size: 0.5, Leverage: 5, MarginUsed: 500,
	}); err != nil {
		t.Fatal(err)
	}

	if err := m.Start(ctx, "inst-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer m.Stop(ctx, "inst-1")

	// The held margin must be back in the user's ledger.
	engine := m.deps.Risk.GetOrCreate("user-1")
	if got := engine.ReservedMargin(); got != 500 {
		t.Errorf("restored margin = %.2f, want 500", got)
	}
}

func TestStatusesShowStreamedPnL(t *testing.T) {
	m, database := newTestManager(t)
	m.deps.Prices = staticFeed{"BTCUSDT": 52_000}
	seedInstance(t, database, "inst-1", "user-1")
	ctx := context.Background()

	rec := recorder.New(database, zap.NewNop())
	if _, err := rec.RecordEntry(ctx, recorder.Entry{
		InstanceID: "inst-1", UserID: "user-1", Symbol: "BTCUSDT",
		Side: "LONG", Price: 50_000, Size: 0.5, Leverage: 5, MarginUsed: 500,
	}); err != nil {
		t.Fatal(err)
	}

	if err := m.Start(ctx, "inst-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer m.Stop(ctx, "inst-1")

	statuses := m.Statuses(ctx)
	if len(statuses) != 1 {
		t.Fatalf("statuses = %d, want 1", len(statuses))
	}
	st := statuses[0]
	if st.Side != "LONG" || st.EntryPrice != 50_000 {
		t.Errorf("status trade = %s @ %.0f, want LONG @ 50000", st.Side, st.EntryPrice)
	}
	if st.UnrealizedPnL != 1_000 {
		t.Errorf("unrealized pnl = %.2f, want 1000", st.UnrealizedPnL)
	}
	if st.MarkPrice != 52_000 {
		t.Errorf("mark price = %.2f, want 52000", st.MarkPrice)
	}
}
