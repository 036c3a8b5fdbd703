package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/joocy75-hash/ai-Agent-sub002/internal/agents"
	"github.com/joocy75-hash/ai-Agent-sub002/internal/engine"
	"github.com/joocy75-hash/ai-Agent-sub002/internal/events"
	"github.com/joocy75-hash/ai-Agent-sub002/internal/notify"
	"github.com/joocy75-hash/ai-Agent-sub002/internal/order"
	"github.com/joocy75-hash/ai-Agent-sub002/internal/position"
	"github.com/joocy75-hash/ai-Agent-sub002/internal/recorder"
	"github.com/joocy75-hash/ai-Agent-sub002/internal/risk"
	"github.com/joocy75-hash/ai-Agent-sub002/internal/strategy"
	"github.com/joocy75-hash/ai-Agent-sub002/pkg/cache"
	"github.com/joocy75-hash/ai-Agent-sub002/pkg/config"
	"github.com/joocy75-hash/ai-Agent-sub002/pkg/db"
	"github.com/joocy75-hash/ai-Agent-sub002/pkg/exchanges/binance/futures"
	"github.com/joocy75-hash/ai-Agent-sub002/pkg/exchanges/common"
	"github.com/joocy75-hash/ai-Agent-sub002/pkg/exchanges/mock"
	"github.com/joocy75-hash/ai-Agent-sub002/pkg/logger"
	"github.com/joocy75-hash/ai-Agent-sub002/pkg/market"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logger.Must(cfg.LogLevel, cfg.DevMode)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatal("open database", zap.Error(err))
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatal("migrate database", zap.Error(err))
	}

	bus := events.NewBus()
	notifier := notify.New(bus, &notify.LogSink{Log: log}, log)
	notifier.Start(ctx)

	var gateway common.Gateway
	if cfg.UseMockGateway {
		log.Warn("using mock gateway, no real orders will be placed")
		gateway = mock.NewGateway(10_000, time.Now().UnixNano())
	} else {
		// One weight budget per exchange account; every instance trading
		// through this key shares it.
		budgets := common.NewBudgetRegistry(func() *common.Budget {
			return common.NewBudget(10, 20, 2400, time.Minute)
		})
		budget := budgets.Get("binance-usdtm:" + cfg.BinanceAPIKey)
		client := futures.NewClient(futures.Config{
			APIKey:    cfg.BinanceAPIKey,
			APISecret: cfg.BinanceAPISecret,
			Testnet:   cfg.BinanceTestnet,
		}, budget, log)
		client.StartTimeSync(ctx)
		gateway = client
	}

	agentCache := cache.New(cfg.AgentCacheTTL, 4096)
	regime := agents.NewMarketRegimeAgent(gateway, agentCache, log)
	validator := agents.NewSignalValidator(agents.DefaultValidatorConfig(), log)
	riskMon := agents.NewRiskMonitorAgent(agents.DefaultRiskMonitorConfig(), log)
	sizer := agents.NewPortfolioSizer(cfg.MaxLeverage, log)
	coordinator := agents.NewCoordinator(regime, cfg.AgentInterval, log)
	coordinator.Start(ctx)
	defer coordinator.Stop()

	var ai strategy.AIAdvisor
	if cfg.AIEnabled {
		ai = agents.NewAIClient(cfg.AIBaseURL, cfg.AIAPIKey, cfg.AIModel)
		log.Info("ai signal validation enabled", zap.String("model", cfg.AIModel))
	}

	stream := market.NewStream(cfg.StreamSymbols, cfg.BinanceTestnet, log)
	stream.Start(ctx)

	riskMgr := risk.NewManager(risk.Limits{
		MaxDailyLossPct:  cfg.MaxDailyLossPct,
		MaxOpenPositions: cfg.MaxOpenPositions,
		MaxLeverage:      cfg.MaxLeverage,
		MarginCapPct:     cfg.MarginCapPct,
		SafetyBufferPct:  cfg.SafetyBufferPct,
	}, database, log)

	manager := engine.NewManager(&engine.Deps{
		Cfg: engine.Config{
			TickInterval: cfg.TickInterval,
			Timeframe:    cfg.Timeframe,
			MaxHoldTime:  cfg.MaxHoldTime,
			StopTimeout:  cfg.StopTimeout,
		},
		Gateway: gateway,
		Sync:    position.NewSynchronizer(gateway, log),
		Exec: order.NewExecutor(gateway, order.RetryConfig{
			Max:     cfg.RetryMax,
			MinWait: cfg.RetryMinWait,
			MaxWait: cfg.RetryMaxWait,
		}, log),
		Recorder:    recorder.New(database, log),
		Risk:        riskMgr,
		Regime:      regime,
		Validator:   validator,
		RiskMon:     riskMon,
		Sizer:       sizer,
		Coordinator: coordinator,
		AI:          ai,
		Prices:      stream,
		Store:       database,
		Bus:         bus,
		Log:         log,
	})

	if cfg.PresetsPath != "" {
		presets, err := strategy.LoadPresets(cfg.PresetsPath)
		if err != nil {
			log.Fatal("load presets", zap.Error(err))
		}
		if err := strategy.SyncPresetsToDB(ctx, database, presets); err != nil {
			log.Fatal("sync presets", zap.Error(err))
		}
		for _, p := range presets {
			if !p.AutoStart {
				continue
			}
			if err := manager.Start(ctx, p.ID); err != nil {
				log.Error("autostart failed", zap.String("instance_id", p.ID), zap.Error(err))
			}
		}
		log.Info("presets loaded", zap.Int("count", len(presets)))
	}

	go func() {
		ticker := time.NewTicker(15 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := riskMgr.CleanupIdle(time.Hour); n > 0 {
					log.Debug("idle risk engines evicted", zap.Int("count", n))
				}
			}
		}
	}()

	log.Info("trading engine running",
		zap.Bool("testnet", cfg.BinanceTestnet),
		zap.Bool("mock", cfg.UseMockGateway),
		zap.Duration("tick", cfg.TickInterval),
	)
	<-ctx.Done()

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.StopTimeout+5*time.Second)
	defer cancel()
	manager.StopAll(shutdownCtx)
	stream.Wait()
	log.Info("shutdown complete")
}
