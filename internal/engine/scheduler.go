// Package engine implements the Scheduler (spec §4.1): the cooperative
// cycle that drives every (symbol, timeframe) pair through PriceFetcher,
// IndicatorKit, StrategyEngine and SignalGrader, ranks the survivors and
// hands the sorted opportunity list to TradeGate. Grounded on the teacher's
// internal/scanner/scanner.go (Scanner{wg, stopChan, ticker-driven
// runScanLoop, immediate first run}), generalized from a single strategy
// scan into the spec's multi-component cycle with a CompareAndSwap
// non-reentrancy guard in place of the teacher's plain stopChan-only model.
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hyperdesk/perpcore/internal/candle"
	"github.com/hyperdesk/perpcore/internal/enginerr"
	"github.com/hyperdesk/perpcore/internal/events"
	"github.com/hyperdesk/perpcore/internal/grader"
	"github.com/hyperdesk/perpcore/internal/indicators"
	"github.com/hyperdesk/perpcore/internal/marketdata"
	"github.com/hyperdesk/perpcore/internal/strategy"
	"github.com/hyperdesk/perpcore/internal/tradegate"
	"github.com/rs/zerolog"
)

// Mode selects whether a cycle's opportunity list is handed to TradeGate
// automatically or merely surfaced for a manual operator decision.
type Mode string

const (
	ModeAuto   Mode = "auto"
	ModeManual Mode = "manual"
)

// Config is the scheduler's slice of EngineConfig (spec §3): the fields
// that shape what a cycle scans and how signals are produced, independent
// of TradeGate's own admission thresholds.
type Config struct {
	Symbols            []string
	Timeframes         []candle.Timeframe
	Mode               Mode
	Strategy           string // "ichimoku" | "smc" | "bollinger"
	AnalysisIntervalMs int64
	CandleWindow       int
	FundingLookup      bool
}

// Scheduler owns the ticker, the non-reentrancy flag and the component
// chain: PriceFetcher -> IndicatorKit -> StrategyEngine -> SignalGrader ->
// (sort) -> TradeGate.
type Scheduler struct {
	fetcher  *marketdata.PriceFetcher
	exchange marketdata.ExchangeClient
	gate     *tradegate.Gate
	bus      *events.Bus
	logger   zerolog.Logger

	cfg   Config
	mu    sync.RWMutex // guards cfg, so a running cycle sees a consistent snapshot
	cycle atomic.Int64

	isProcessing atomic.Bool
	stopCh       chan struct{}
	wg           sync.WaitGroup
}

func New(fetcher *marketdata.PriceFetcher, exchange marketdata.ExchangeClient, gate *tradegate.Gate, bus *events.Bus, cfg Config, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		fetcher:  fetcher,
		exchange: exchange,
		gate:     gate,
		bus:      bus,
		cfg:      cfg,
		logger:   logger.With().Str("component", "Scheduler").Logger(),
		stopCh:   make(chan struct{}),
	}
}

// UpdateConfig swaps in a new EngineConfig slice for the next cycle; a
// cycle already running keeps its own snapshot, so a mid-cycle edit never
// re-enters the scheduler with mixed state.
func (s *Scheduler) UpdateConfig(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}

func (s *Scheduler) snapshotConfig() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Config returns the scheduler's current config snapshot, for the control
// surface's /config endpoint.
func (s *Scheduler) Config() Config {
	return s.snapshotConfig()
}

// Cycle returns the number of cycles started so far, counting one still in
// progress.
func (s *Scheduler) Cycle() int64 {
	return s.cycle.Load()
}

// IsProcessing reports whether a cycle is currently running.
func (s *Scheduler) IsProcessing() bool {
	return s.isProcessing.Load()
}

// Start validates auth readiness (if an AuthProvider is supplied),
// reconciles positions, then fires runCycle immediately and on every
// AnalysisIntervalMs tick.
func (s *Scheduler) Start(ctx context.Context, auth marketdata.AuthProvider) error {
	if auth != nil {
		authCtx, cancel := marketdata.WithDefaultTimeout(ctx)
		defer cancel()
		if !auth.IsReady(authCtx) {
			return enginerr.New(enginerr.KindAuth, "auth provider not ready")
		}
		if err := auth.TestConnection(authCtx); err != nil {
			return enginerr.Wrap(enginerr.KindAuth, "auth connection test failed", err)
		}
	}

	if s.gate != nil {
		seedCtx, seedCancel := marketdata.WithDefaultTimeout(ctx)
		if err := s.gate.SeedBalance(seedCtx); err != nil {
			s.logger.Warn().Err(err).Msg("failed to seed account balance at startup")
		}
		seedCancel()

		reconcileCtx, reconcileCancel := marketdata.WithDefaultTimeout(ctx)
		if err := s.gate.ReconcilePositions(reconcileCtx); err != nil {
			s.logger.Warn().Err(err).Msg("failed to reconcile positions at startup")
		}
		reconcileCancel()
	}

	s.wg.Add(1)
	go s.run(ctx)
	return nil
}

func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	s.RunCycle(ctx)

	interval := time.Duration(s.snapshotConfig().AnalysisIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.RunCycle(ctx)
		}
	}
}

// opportunity pairs a tradeable GradedSignal with the indicator bundle
// TradeGate's RSI gate needs.
type opportunity struct {
	signal grader.GradedSignal
	bundle indicators.Bundle
	preset candle.TimeframePreset
}

// RunCycle executes one scheduler cycle (spec §4.1, steps 1-6). A tick that
// arrives while a previous cycle is still running is dropped, not queued
// (P9).
func (s *Scheduler) RunCycle(ctx context.Context) {
	if !s.isProcessing.CompareAndSwap(false, true) {
		s.logger.Debug().Msg("cycle already in progress, dropping tick")
		return
	}
	defer s.isProcessing.Store(false)

	cfg := s.snapshotConfig()
	n := s.cycle.Add(1)
	start := time.Now()

	opportunities := make([]opportunity, 0, len(cfg.Symbols)*len(cfg.Timeframes))
	for _, symbol := range cfg.Symbols {
		for _, tf := range cfg.Timeframes {
			opp, skip, err := s.analyzeSymbolOnTimeframe(ctx, n, symbol, tf, cfg)
			if err != nil {
				s.logger.Warn().Str("symbol", symbol).Str("timeframe", string(tf)).Err(err).Msg("pair analysis failed, skipping")
				continue
			}
			if skip {
				continue
			}
			opportunities = append(opportunities, opp)
		}
	}

	sort.SliceStable(opportunities, func(i, j int) bool {
		return rankLess(opportunities[i].signal, opportunities[j].signal)
	})

	elapsed := time.Since(start)
	s.logger.Info().
		Int64("cycle", n).
		Int("symbols", len(cfg.Symbols)).
		Int("timeframes", len(cfg.Timeframes)).
		Dur("elapsed", elapsed).
		Int("opportunities", len(opportunities)).
		Msg(fmt.Sprintf("Cycle %d — %d symbols × %d tf (%dms) — %d opportunities", n, len(cfg.Symbols), len(cfg.Timeframes), elapsed.Milliseconds(), len(opportunities)))

	if s.bus != nil {
		s.bus.PublishCycle(events.CycleSummary{
			Cycle: n, Symbols: len(cfg.Symbols), Timeframes: len(cfg.Timeframes),
			DurationMs: elapsed.Milliseconds(), Opportunities: len(opportunities),
		})
	}

	if cfg.Mode != ModeAuto || len(opportunities) == 0 || s.gate == nil {
		return
	}

	candidates := make([]tradegate.Candidate, len(opportunities))
	for i, o := range opportunities {
		candidates[i] = tradegate.Candidate{Signal: o.signal, Bundle: o.bundle, Preset: o.preset}
	}
	outcome := s.gate.Evaluate(ctx, candidates)
	if s.bus != nil && outcome.Executed {
		s.bus.PublishTrade(events.TradeEvent{
			Cycle: n, Symbol: outcome.Symbol, Direction: string(outcome.Position.Direction),
			Entry: outcome.Position.EntryPrice, Size: outcome.Position.Size,
			StopLoss: outcome.Position.StopLoss, TakeProfit: outcome.Position.TakeProfit,
			OrderID: outcome.Order.OrderID,
		})
	}
}

// analyzeSymbolOnTimeframe runs PriceFetcher -> IndicatorKit ->
// StrategyEngine -> SignalGrader for one pair. skip=true means "no
// tradeable signal, not an error".
func (s *Scheduler) analyzeSymbolOnTimeframe(ctx context.Context, cycle int64, symbol string, tf candle.Timeframe, cfg Config) (opportunity, bool, error) {
	limit := cfg.CandleWindow
	if limit <= 0 {
		limit = 250
	}

	candles, err := s.fetcher.GetCandles(ctx, symbol, tf, limit)
	if err != nil {
		return opportunity{}, false, err
	}
	if len(candles) < 60 {
		return opportunity{}, true, nil
	}

	preset, ok := candle.Preset(tf)
	if !ok {
		return opportunity{}, false, enginerr.New(enginerr.KindConfig, "no preset for timeframe "+string(tf))
	}

	bundle := indicators.AnalyzeAll(candles, indicators.DefaultParams())

	strat, ok := strategy.ForName(cfg.Strategy)
	if !ok {
		return opportunity{}, false, enginerr.New(enginerr.KindConfig, "unknown strategy "+cfg.Strategy)
	}

	stratCtx := strategy.Context{Candles: candles, Bundle: bundle, Preset: preset}
	raw, ok := strat.Analyze(symbol, tf, stratCtx)
	if !ok {
		return opportunity{}, true, nil
	}

	var funding *grader.FundingRate
	if cfg.FundingLookup {
		fundCtx, cancel := marketdata.WithDefaultTimeout(ctx)
		fr, ferr := s.exchange.GetFundingRate(fundCtx, symbol)
		cancel()
		if ferr == nil {
			funding = &grader.FundingRate{Rate: fr.Rate}
		}
	}

	graded := grader.Grade(raw, bundle, preset, funding, 0)
	if s.bus != nil {
		s.bus.PublishSignal(events.SignalEvent{
			Cycle: cycle, Symbol: symbol, Timeframe: string(tf), Direction: string(raw.Direction),
			Grade: string(graded.Grade), Quality: graded.QualityScore, WinProb: graded.WinProbability,
			Tradeable: graded.Tradeable,
		})
		s.bus.PublishAnalysis(events.AnalysisSummary{
			Cycle: cycle, Symbol: symbol, Timeframe: string(tf), Graded: true,
			Grade: string(graded.Grade), Tradeable: graded.Tradeable, Reason: graded.RejectReason,
		})
	}
	if !graded.Tradeable {
		return opportunity{}, true, nil
	}

	return opportunity{signal: graded, bundle: bundle, preset: preset}, false, nil
}

// rankLess implements the spec's sort key: grade (A>B>C>D), then
// qualityScore (gap >= 5 to matter), then winProbability (gap > 0.01),
// then confluence, then |score|.
func rankLess(a, b grader.GradedSignal) bool {
	if ra, rb := gradeRank(a.Grade), gradeRank(b.Grade); ra != rb {
		return ra > rb
	}
	if gap := a.QualityScore - b.QualityScore; abs(gap) >= 5 {
		return gap > 0
	}
	if gap := a.WinProbability - b.WinProbability; abs(gap) > 0.01 {
		return gap > 0
	}
	if a.Confluence != b.Confluence {
		return a.Confluence > b.Confluence
	}
	return absInt(a.AbsScore) > absInt(b.AbsScore)
}

func gradeRank(g grader.Letter) int {
	switch g {
	case grader.GradeA:
		return 4
	case grader.GradeB:
		return 3
	case grader.GradeC:
		return 2
	case grader.GradeD:
		return 1
	default:
		return 0
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
