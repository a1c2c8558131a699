// Command engine is the decision-and-execution core's process
// entrypoint: it loads Config, wires the host/adapter layer (Postgres,
// Redis, Vault, the JWT control surface) behind the core's interfaces,
// then starts the Scheduler. Grounded on the teacher's root main.go
// (config.Load -> logging.New -> event bus -> component construction ->
// signal.Notify shutdown), narrowed to this engine's own component graph.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hyperdesk/perpcore/config"
	"github.com/hyperdesk/perpcore/internal/cache"
	"github.com/hyperdesk/perpcore/internal/candle"
	"github.com/hyperdesk/perpcore/internal/engine"
	"github.com/hyperdesk/perpcore/internal/events"
	"github.com/hyperdesk/perpcore/internal/logging"
	"github.com/hyperdesk/perpcore/internal/marketdata"
	"github.com/hyperdesk/perpcore/internal/opauth"
	"github.com/hyperdesk/perpcore/internal/position"
	"github.com/hyperdesk/perpcore/internal/risk"
	"github.com/hyperdesk/perpcore/internal/server"
	"github.com/hyperdesk/perpcore/internal/store"
	"github.com/hyperdesk/perpcore/internal/testutil"
	"github.com/hyperdesk/perpcore/internal/tradegate"
	"github.com/hyperdesk/perpcore/internal/vaultauth"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Output:      cfg.Logging.Output,
		JSONFormat:  cfg.Logging.JSONFormat,
		IncludeFile: cfg.Logging.IncludeFile,
	})
	logger.Info().Msg("perpcore engine starting")

	bus := events.NewBus()

	var auth marketdata.AuthProvider
	vaultProvider, err := vaultauth.New(vaultauth.Config{
		Enabled: cfg.Vault.Enabled, Address: cfg.Vault.Address, Token: cfg.Vault.Token,
		MountPath: cfg.Vault.MountPath, SecretPath: cfg.Vault.SecretPath,
		TLSEnabled: cfg.Vault.TLSEnabled, CACert: cfg.Vault.CACert,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to construct vault auth provider")
	}
	auth = vaultProvider

	// The decision core is exchange-agnostic (ExchangeClient is an
	// interface the core never binds to a concrete SDK). Absent a real
	// exchange integration this binary runs against the in-memory fake,
	// which is sufficient to exercise the full scheduler/gate/position
	// pipeline end to end for local/self-hosted operation.
	exchange := testutil.NewFakeExchange()
	exchange.Balance = marketdata.AccountBalance{TotalEquity: 10000, FreeMargin: 10000}

	var sqlStore *store.Store
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	sqlStore, err = store.Connect(ctx, store.Config{
		Host: cfg.Postgres.Host, Port: cfg.Postgres.Port, User: cfg.Postgres.User,
		Password: cfg.Postgres.Password, Database: cfg.Postgres.Database, SSLMode: cfg.Postgres.SSLMode,
	}, logger)
	cancel()
	if err != nil {
		logger.Warn().Err(err).Msg("postgres unavailable, audit trail and config persistence disabled")
		sqlStore = nil
	} else {
		migCtx, migCancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := sqlStore.RunMigrations(migCtx); err != nil {
			logger.Fatal().Err(err).Msg("failed to run postgres migrations")
		}
		migCancel()
	}

	redisCache := cache.New(cache.Config{
		Address: cfg.Redis.Address, Password: cfg.Redis.Password,
		DB: cfg.Redis.DB, PoolSize: cfg.Redis.PoolSize, Enabled: cfg.Redis.Enabled,
	}, logger)

	fetcher := marketdata.NewPriceFetcher(exchange, logger)
	fetcher.SetCache(redisCache)

	riskCalc := risk.NewCalculator(risk.Config{
		RiskPerTradePct:  cfg.Risk.RiskPerTradePct,
		MaxDailyDrawdown: cfg.Risk.MaxDailyDrawdown,
		MaxOpenPositions: cfg.Risk.MaxOpenPositions,
	})
	riskCalc.UpdateAccountBalance(exchange.Balance.TotalEquity)

	if sqlStore != nil {
		loadCtx, loadCancel := context.WithTimeout(context.Background(), 5*time.Second)
		row, found, loadErr := sqlStore.LoadConfig(loadCtx, "default")
		loadCancel()
		if loadErr != nil {
			logger.Warn().Err(loadErr).Msg("failed to load persisted engine config, falling back to file config")
		} else if found {
			logger.Info().Str("name", row.Name).Msg("loaded persisted engine config")
			cfg.Engine.Symbols = row.Symbols
			cfg.Engine.Timeframes = make([]string, len(row.Timeframes))
			for i, tf := range row.Timeframes {
				cfg.Engine.Timeframes[i] = string(tf)
			}
			cfg.Engine.Mode = row.Mode
			cfg.Engine.Strategy = row.Strategy
			cfg.TradeGate.Leverage = row.Leverage
			cfg.TradeGate.MaxConcurrentTrades = row.MaxConcurrentTrades
			cfg.TradeGate.RSIOverbought = row.RSIOverbought
			cfg.TradeGate.RSIOversold = row.RSIOversold
			cfg.TradeGate.TPSLMode = row.TPSLMode
		}
	}

	// Gate and PositionManager reference each other (the gate tracks new
	// positions with the manager; the manager reports closures back to the
	// gate's loss-pause state machine). Break the cycle with an indirection
	// closure rather than a two-phase constructor on either type.
	var gate *tradegate.Gate
	onClosed := func(symbol string, pnl float64, reason position.ExitReason) {
		if gate != nil {
			gate.OnPositionClosed(symbol, pnl, reason)
		}
		if sqlStore != nil {
			recordCtx, recordCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer recordCancel()
			if err := sqlStore.RecordClose(recordCtx, symbol, pnl, string(reason)); err != nil {
				logger.Warn().Err(err).Msg("failed to record closed-position audit row")
			}
		}
	}
	manager := position.NewManager(exchange, auth.GetAddress(), 15*time.Second, onClosed, logger)

	gateCfg := tradegate.Config{
		MaxConcurrentTrades: cfg.TradeGate.MaxConcurrentTrades, SymbolCooldownMs: cfg.TradeGate.SymbolCooldownMs,
		GlobalCooldownMs: cfg.TradeGate.GlobalCooldownMs, MaxConsecutiveSameDir: cfg.TradeGate.MaxConsecutiveSameDir,
		UseRSIFilter: cfg.TradeGate.UseRSIFilter, RSIOverbought: cfg.TradeGate.RSIOverbought, RSIOversold: cfg.TradeGate.RSIOversold,
		MinBalanceUSD: cfg.TradeGate.MinBalanceUSD, RiskPerTradePct: cfg.TradeGate.RiskPerTradePct, MinRRR: cfg.TradeGate.MinRRR,
		MaxConsecutiveLosses: cfg.TradeGate.MaxConsecutiveLosses, PauseAfterLossesMs: cfg.TradeGate.PauseAfterLossesMs,
		Leverage: cfg.TradeGate.Leverage,
		TPSLMode: risk.TPSLMode(cfg.TradeGate.TPSLMode), ATRMultSL: cfg.TradeGate.AtrMultSL, ATRMultTP: cfg.TradeGate.AtrMultTP,
	}
	gate = tradegate.New(exchange, auth.GetAddress(), tradegate.AlwaysAllow{}, riskCalc, manager, gateCfg, logger)
	gate.SetLockMirror(redisCache)

	timeframes := make([]candle.Timeframe, 0, len(cfg.Engine.Timeframes))
	for _, tf := range cfg.Engine.Timeframes {
		timeframes = append(timeframes, candle.Timeframe(tf))
	}
	if len(timeframes) == 0 {
		timeframes = []candle.Timeframe{candle.TF15m}
	}
	symbols := cfg.Engine.Symbols
	if len(symbols) == 0 {
		symbols = []string{"BTC", "ETH"}
	}

	sched := engine.New(fetcher, exchange, gate, bus, engine.Config{
		Symbols: symbols, Timeframes: timeframes, Mode: engine.Mode(cfg.Engine.Mode),
		Strategy: cfg.Engine.Strategy, AnalysisIntervalMs: cfg.Engine.AnalysisIntervalMs,
		CandleWindow: cfg.Engine.CandleWindow, FundingLookup: cfg.Engine.FundingLookup,
	}, logger)

	var opManager *opauth.Manager
	if cfg.OpAuth.Enabled {
		opManager = opauth.NewManager(cfg.OpAuth.JWTSecret, cfg.OpAuth.AccessTokenTTL, cfg.OpAuth.OperatorID, cfg.OpAuth.OperatorPassHash)
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	if err := sched.Start(runCtx, auth); err != nil {
		logger.Fatal().Err(err).Msg("scheduler failed to start")
	}
	go manager.Run(runCtx)

	httpServer := server.New(server.Config{
		Host: cfg.Server.Host, Port: cfg.Server.Port, ProductionMode: cfg.Server.ProductionMode,
	}, sched, gate, manager, bus, opManager, sqlStore, logger)

	go func() {
		if err := httpServer.Run(runCtx); err != nil {
			logger.Error().Err(err).Msg("control surface stopped")
		}
	}()

	if sqlStore != nil {
		bus.OnTrade(func(e events.TradeEvent) {
			recordCtx, recordCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer recordCancel()
			if err := sqlStore.RecordOrder(recordCtx, e.Cycle, e.Symbol, e.Direction, e.Entry, e.Size, e.StopLoss, e.TakeProfit, e.OrderID); err != nil {
				logger.Warn().Err(err).Msg("failed to record trade audit row")
			}
		})
		bus.OnCycle(func(e events.CycleSummary) {
			recordCtx, recordCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer recordCancel()
			if err := sqlStore.RecordCycle(recordCtx, e.Cycle, e.Symbols, e.Timeframes, e.DurationMs, e.Opportunities); err != nil {
				logger.Warn().Err(err).Msg("failed to record cycle summary audit row")
			}
		})
		bus.OnAnalysis(func(e events.AnalysisSummary) {
			if e.Tradeable || e.Reason == "" {
				return
			}
			recordCtx, recordCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer recordCancel()
			if err := sqlStore.RecordRejection(recordCtx, e.Cycle, e.Symbol, e.Timeframe, e.Reason); err != nil {
				logger.Warn().Err(err).Msg("failed to record grader rejection audit row")
			}
		})
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info().Msg("shutting down")
	runCancel()
	sched.Stop()
	manager.Stop()
	if sqlStore != nil {
		sqlStore.Close()
	}
	if err := redisCache.Close(); err != nil {
		logger.Warn().Err(err).Msg("error closing redis connection")
	}
}
