// Package tradegate implements TradeGate (spec §4.6): the admission state
// machine standing between a sorted list of graded opportunities and an
// order actually reaching the exchange. Grounded on the teacher's
// internal/circuit/breaker.go (counters-with-reset-windows, config struct
// with named defaults, mu-guarded state) and internal/scanner/cache.go
// (TTL-guarded map-under-mutex) for the lock-set and cooldown-bookkeeping
// shapes; the twelve-step admission order itself has no teacher
// counterpart and is implemented from scratch.
package tradegate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hyperdesk/perpcore/internal/candle"
	"github.com/hyperdesk/perpcore/internal/enginerr"
	"github.com/hyperdesk/perpcore/internal/grader"
	"github.com/hyperdesk/perpcore/internal/indicators"
	"github.com/hyperdesk/perpcore/internal/marketdata"
	"github.com/hyperdesk/perpcore/internal/orderid"
	"github.com/hyperdesk/perpcore/internal/position"
	"github.com/hyperdesk/perpcore/internal/risk"
	"github.com/hyperdesk/perpcore/internal/strategy"
	"github.com/rs/zerolog"
)

// Config holds every threshold the admission chain consults, named after
// the spec's own field names so a reader can trace each default straight
// back to §4.6.
type Config struct {
	MaxConcurrentTrades        int
	SymbolCooldownMs           int64
	GlobalCooldownMs           int64
	MaxConsecutiveSameDir      int
	UseRSIFilter               bool
	RSIOverbought              float64
	RSIOversold                float64
	MinBalanceUSD              float64
	RiskPerTradePct            float64
	MinRRR                     float64
	MaxConsecutiveLosses       int
	PauseAfterLossesMs         int64
	Leverage                   int
	TPSLMode                   risk.TPSLMode
	ATRMultSL                  float64
	ATRMultTP                  float64
}

// DefaultConfig mirrors the spec's named defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentTrades:   3,
		SymbolCooldownMs:      10 * 60 * 1000,
		GlobalCooldownMs:      2 * 60 * 1000,
		MaxConsecutiveSameDir: 4,
		UseRSIFilter:          true,
		RSIOverbought:         75,
		RSIOversold:           25,
		MinBalanceUSD:         1,
		RiskPerTradePct:       1.5,
		MinRRR:                1.0,
		MaxConsecutiveLosses:  3,
		PauseAfterLossesMs:    30 * 60 * 1000,
		Leverage:              5,
		TPSLMode:              risk.ModeAuto,
		ATRMultSL:             1.5,
		ATRMultTP:             3.0,
	}
}

// CorrelationManager is the opaque external policy gate (§6): portfolio
// exposure per asset cluster, drawdown caps — none of it visible to the
// core.
type CorrelationManager interface {
	CanTrade(ctx context.Context, symbol string, direction strategy.Direction, real []marketdata.RawPosition) (allowed bool, reasons []string)
}

// AlwaysAllow is the permissive default CorrelationManager used in tests
// and standalone operation.
type AlwaysAllow struct{}

func (AlwaysAllow) CanTrade(context.Context, string, strategy.Direction, []marketdata.RawPosition) (bool, []string) {
	return true, nil
}

// overtradingState is OvertradingState (spec §3): lastTradeTimeBySymbol,
// lastGlobalTradeMs, consecutiveLongs/Shorts, consecutiveLosses,
// pausedUntilMs — single-writer, guarded by its own mutex.
type overtradingState struct {
	mu                    sync.Mutex
	lastTradeTimeBySymbol map[string]int64
	lastGlobalTradeMs     int64
	consecutiveLongs      int
	consecutiveShorts     int
	consecutiveLosses     int
	pausedUntilMs         int64
}

func newOvertradingState() *overtradingState {
	return &overtradingState{lastTradeTimeBySymbol: make(map[string]int64)}
}

func (s *overtradingState) paused(nowMs int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pausedUntilMs > nowMs
}

func (s *overtradingState) symbolCooldownRemaining(symbol string, nowMs, cooldownMs int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.lastTradeTimeBySymbol[symbol]
	if !ok {
		return 0
	}
	elapsed := nowMs - last
	if elapsed >= cooldownMs {
		return 0
	}
	return cooldownMs - elapsed
}

func (s *overtradingState) globalCooldownRemaining(nowMs, cooldownMs int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	elapsed := nowMs - s.lastGlobalTradeMs
	if elapsed >= cooldownMs {
		return 0
	}
	return cooldownMs - elapsed
}

func (s *overtradingState) consecutiveDirectionExceeded(dir strategy.Direction, max int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if dir == strategy.DirectionShort {
		return s.consecutiveShorts >= max
	}
	return s.consecutiveLongs >= max
}

func (s *overtradingState) recordExecution(symbol string, dir strategy.Direction, nowMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastTradeTimeBySymbol[symbol] = nowMs
	s.lastGlobalTradeMs = nowMs
	if dir == strategy.DirectionLong {
		s.consecutiveLongs++
		s.consecutiveShorts = 0
	} else {
		s.consecutiveShorts++
		s.consecutiveLongs = 0
	}
}

// OnPositionClosed implements the loss-pause contract (spec §4.8); it is
// called from Gate.OnPositionClosed, the position.Manager's onClosed
// callback.
func (s *overtradingState) OnPositionClosed(pnl float64, nowMs int64, cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pnl < 0 {
		s.consecutiveLosses++
		if s.consecutiveLosses >= cfg.MaxConsecutiveLosses {
			s.pausedUntilMs = nowMs + cfg.PauseAfterLossesMs
		}
		return
	}
	s.consecutiveLosses = 0
	s.pausedUntilMs = 0
}

// Snapshot is a read-only view of OvertradingState for the control surface.
type Snapshot struct {
	ConsecutiveLongs  int
	ConsecutiveShorts int
	ConsecutiveLosses int
	PausedUntilMs     int64
	LastGlobalTradeMs int64
}

func (s *overtradingState) snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ConsecutiveLongs:  s.consecutiveLongs,
		ConsecutiveShorts: s.consecutiveShorts,
		ConsecutiveLosses: s.consecutiveLosses,
		PausedUntilMs:     s.pausedUntilMs,
		LastGlobalTradeMs: s.lastGlobalTradeMs,
	}
}

// RejectReason is a GateRejection (spec §7): not an error, a structured
// reason logged at info level.
type RejectReason string

const (
	RejectNone                RejectReason = ""
	RejectProcessing          RejectReason = "cycle already processing"
	RejectPaused              RejectReason = "loss-pause active"
	RejectAtCapacity          RejectReason = "max concurrent trades reached"
	RejectAlreadyOpen         RejectReason = "symbol already has a real position"
	RejectLocked              RejectReason = "symbol lock held"
	RejectSymbolCooldown      RejectReason = "symbol cooldown active"
	RejectGlobalCooldown      RejectReason = "global cooldown active"
	RejectConsecutiveDirCap   RejectReason = "consecutive-direction cap reached"
	RejectRaceAbsorbed        RejectReason = "symbol appeared on re-check, absorbed"
	RejectCorrelation         RejectReason = "correlation gate"
	RejectRSI                 RejectReason = "RSI gate"
	RejectBalance             RejectReason = "balance below minimum"
	RejectRRR                 RejectReason = "RRR below minimum or invalid size"
)

// Outcome is the result of one Evaluate call.
type Outcome struct {
	Executed bool
	Symbol   string
	Reject   RejectReason
	Reasons  []string // correlation-gate detail, if rejected there
	Order    marketdata.OrderAck
	Position position.Position
}

// LockMirror is the optional second-tier symbol lock (spec §4.2/§6): a
// process-external mirror of the in-memory per-symbol mutex so a second
// engine instance sharing the same account doesn't race it into the same
// symbol. Satisfied structurally by *cache.Cache; nil disables the tier.
type LockMirror interface {
	MirrorLock(ctx context.Context, symbol string, held bool, ttl time.Duration)
	IsLockMirrored(ctx context.Context, symbol string) bool
}

const lockMirrorTTL = 30 * time.Second

// Gate is the core TradeGate state machine.
type Gate struct {
	exchange   marketdata.ExchangeClient
	address    string
	corr       CorrelationManager
	risk       *risk.Calculator
	manager    *position.Manager
	lockMirror LockMirror
	logger     zerolog.Logger
	cfg        Config

	isProcessing atomic.Bool
	locks        sync.Map // symbol -> *sync.Mutex
	state        *overtradingState
	orderIDs     *orderid.Generator
}

func New(exchange marketdata.ExchangeClient, address string, corr CorrelationManager, calc *risk.Calculator, manager *position.Manager, cfg Config, logger zerolog.Logger) *Gate {
	if corr == nil {
		corr = AlwaysAllow{}
	}
	return &Gate{
		exchange: exchange,
		address:  address,
		corr:     corr,
		risk:     calc,
		manager:  manager,
		cfg:      cfg,
		logger:   logger.With().Str("component", "TradeGate").Logger(),
		state:    newOvertradingState(),
		orderIDs: orderid.New(address),
	}
}

// OnPositionClosed should be registered as the position.Manager's onClosed
// callback (spec §4.8's loss-streak contract).
func (g *Gate) OnPositionClosed(symbol string, pnl float64, _ position.ExitReason) {
	g.state.OnPositionClosed(pnl, time.Now().UnixMilli(), g.cfg)
	if g.risk != nil {
		g.risk.RegisterPositionClose(pnl)
	}
}

// Snapshot exposes OvertradingState for the control surface.
func (g *Gate) Snapshot() Snapshot {
	return g.state.snapshot()
}

// Config returns the gate's active configuration, used by the control
// surface when persisting EngineConfig.
func (g *Gate) Config() Config {
	return g.cfg
}

// SetLockMirror wires the optional Redis-backed lock mirror; nil disables
// it.
func (g *Gate) SetLockMirror(m LockMirror) {
	g.lockMirror = m
}

// SeedBalance fetches account equity once at startup so the risk
// calculator's day-start drawdown bookkeeping isn't seeded at zero (spec
// §4.1). No-op if the gate was built without a risk calculator.
func (g *Gate) SeedBalance(ctx context.Context) error {
	if g.risk == nil {
		return nil
	}
	callCtx, cancel := marketdata.WithDefaultTimeout(ctx)
	defer cancel()
	balance, err := g.exchange.GetAccountBalance(callCtx, g.address)
	if err != nil {
		return enginerr.Wrap(enginerr.KindRetryable, "failed to seed account balance", err)
	}
	g.risk.UpdateAccountBalance(balance.TotalEquity)
	return nil
}

// ReconcilePositions runs one immediate position sync so activePositions
// reflects the real exchange state before the first scheduled cycle (spec
// §4.1, scenario S6). No-op if the gate was built without a position
// manager.
func (g *Gate) ReconcilePositions(ctx context.Context) error {
	if g.manager == nil {
		return nil
	}
	if err := g.manager.Reconcile(ctx); err != nil {
		return enginerr.Wrap(enginerr.KindRetryable, "failed to reconcile positions at startup", err)
	}
	return nil
}

func (g *Gate) symbolLock(symbol string) *sync.Mutex {
	l, _ := g.locks.LoadOrStore(symbol, &sync.Mutex{})
	return l.(*sync.Mutex)
}

// Candidate is a sorted opportunity: a graded signal, the indicator bundle
// its RSI gate needs, and the timeframe preset that produced it (RiskCalculator
// mode-based SL/TP selection consults both).
type Candidate struct {
	Signal grader.GradedSignal
	Bundle indicators.Bundle
	Preset candle.TimeframePreset
}

// Evaluate runs the admission chain against the sorted candidate list and
// executes at most one opportunity — the first that survives every gate
// (spec §4.6: "only one opportunity executed per cycle").
func (g *Gate) Evaluate(ctx context.Context, candidates []Candidate) Outcome {
	if !g.isProcessing.CompareAndSwap(false, true) {
		return Outcome{Reject: RejectProcessing}
	}
	defer g.isProcessing.Store(false)

	now := time.Now().UnixMilli()
	if g.state.paused(now) {
		return Outcome{Reject: RejectPaused}
	}

	callCtx, cancel := marketdata.WithDefaultTimeout(ctx)
	real, err := g.exchange.GetPositions(callCtx, g.address)
	cancel()
	if err != nil {
		g.logger.Warn().Err(err).Msg("failed to reconcile positions, skipping cycle")
		return Outcome{Reject: RejectAtCapacity}
	}
	if len(real) >= g.cfg.MaxConcurrentTrades {
		return Outcome{Reject: RejectAtCapacity}
	}
	realBySymbol := make(map[string]marketdata.RawPosition, len(real))
	for _, p := range real {
		realBySymbol[p.Symbol] = p
	}

	for _, c := range candidates {
		outcome := g.admit(ctx, c, realBySymbol, now)
		if outcome.Reject == RejectNone {
			return outcome
		}
		g.logger.Info().Str("symbol", c.Signal.Symbol).Str("reason", string(outcome.Reject)).Msg("candidate rejected")
	}
	return Outcome{Reject: RejectNone}
}

// admit runs steps 4-12 of the admission order for one candidate, returning
// an Outcome whose Reject is RejectNone only if the order was placed.
func (g *Gate) admit(ctx context.Context, c Candidate, realBySymbol map[string]marketdata.RawPosition, now int64) Outcome {
	symbol := c.Signal.Symbol
	dir := c.Signal.Direction

	if _, open := realBySymbol[symbol]; open {
		return Outcome{Symbol: symbol, Reject: RejectAlreadyOpen}
	}

	if g.lockMirror != nil && g.lockMirror.IsLockMirrored(ctx, symbol) {
		return Outcome{Symbol: symbol, Reject: RejectLocked}
	}

	lock := g.symbolLock(symbol)
	if !lock.TryLock() {
		return Outcome{Symbol: symbol, Reject: RejectLocked}
	}
	if g.lockMirror != nil {
		g.lockMirror.MirrorLock(ctx, symbol, true, lockMirrorTTL)
	}
	defer func() {
		if g.lockMirror != nil {
			g.lockMirror.MirrorLock(ctx, symbol, false, lockMirrorTTL)
		}
		lock.Unlock()
	}()

	if g.state.symbolCooldownRemaining(symbol, now, g.cfg.SymbolCooldownMs) > 0 {
		return Outcome{Symbol: symbol, Reject: RejectSymbolCooldown}
	}
	if g.state.globalCooldownRemaining(now, g.cfg.GlobalCooldownMs) > 0 {
		return Outcome{Symbol: symbol, Reject: RejectGlobalCooldown}
	}
	if g.state.consecutiveDirectionExceeded(dir, g.cfg.MaxConsecutiveSameDir) {
		return Outcome{Symbol: symbol, Reject: RejectConsecutiveDirCap}
	}

	recheckCtx, cancel := marketdata.WithDefaultTimeout(ctx)
	recheck, err := g.exchange.GetPositions(recheckCtx, g.address)
	cancel()
	if err == nil {
		for _, p := range recheck {
			if p.Symbol == symbol {
				return Outcome{Symbol: symbol, Reject: RejectRaceAbsorbed}
			}
		}
	}

	if allowed, reasons := g.corr.CanTrade(ctx, symbol, dir, recheck); !allowed {
		return Outcome{Symbol: symbol, Reject: RejectCorrelation, Reasons: reasons}
	}

	if g.cfg.UseRSIFilter {
		if dir == strategy.DirectionLong && c.Bundle.RSI >= g.cfg.RSIOverbought {
			return Outcome{Symbol: symbol, Reject: RejectRSI}
		}
		if dir == strategy.DirectionShort && c.Bundle.RSI <= g.cfg.RSIOversold {
			return Outcome{Symbol: symbol, Reject: RejectRSI}
		}
	}

	balCtx, cancel := marketdata.WithDefaultTimeout(ctx)
	balance, err := g.exchange.GetAccountBalance(balCtx, g.address)
	cancel()
	if err != nil || balance.TotalEquity < g.cfg.MinBalanceUSD {
		return Outcome{Symbol: symbol, Reject: RejectBalance}
	}

	if g.risk != nil {
		g.risk.UpdateAccountBalance(balance.TotalEquity)
		if ok, reason := g.risk.CanOpenPosition(); !ok {
			return Outcome{Symbol: symbol, Reject: RejectRRR, Reasons: []string{reason}}
		}
	}

	sltpCtx := risk.SLTPContext{
		Mode:           g.cfg.TPSLMode,
		TechnicalSL:    c.Signal.ChosenSL,
		TechnicalTP:    c.Signal.ChosenTP,
		TechnicalSLSrc: c.Signal.ChosenSLSource,
		TechnicalTPSrc: c.Signal.ChosenTPSource,
		ATRValue:       c.Bundle.ATR.Value,
		ATRMultSL:      g.cfg.ATRMultSL,
		ATRMultTP:      g.cfg.ATRMultTP,
		DefaultSLPct:   c.Preset.DefaultSLPct,
		DefaultTPPct:   c.Preset.DefaultTPPct,
	}
	sltp := risk.CalculateSLTP(c.Signal.Price, dir, sltpCtx, c.Preset.MinRRR)
	if c.Preset.MinRRR > 0 && !sltp.MeetsMinRRR {
		return Outcome{Symbol: symbol, Reject: RejectRRR}
	}

	size := risk.CalculatePositionSize(balance.TotalEquity, c.Signal.Price, sltp.SL, g.cfg.Leverage, g.cfg.RiskPerTradePct)
	if size <= 0 {
		return Outcome{Symbol: symbol, Reject: RejectRRR}
	}

	if err := risk.ValidateTrade(dir, c.Signal.Price, sltp.SL, sltp.TP, size, sltp.RRR, c.Preset.MinRRR); err != nil {
		return Outcome{Symbol: symbol, Reject: RejectRRR, Reasons: []string{err.Error()}}
	}

	ack, err := g.place(ctx, c, size, sltp)
	if err != nil {
		return Outcome{Symbol: symbol, Reject: RejectRRR, Reasons: []string{err.Error()}}
	}

	if g.risk != nil {
		g.risk.RegisterPositionOpen()
	}
	g.state.recordExecution(symbol, dir, time.Now().UnixMilli())
	pos := position.Position{
		Symbol: symbol, Direction: dir, EntryPrice: c.Signal.Price, Size: size,
		StopLoss: sltp.SL, TakeProfit: sltp.TP,
		OpenedAtMs: time.Now().UnixMilli(), Leverage: g.cfg.Leverage,
		AnalysisSnapshot: c.Signal,
	}
	if g.manager != nil {
		g.manager.Track(pos)
	}

	return Outcome{Executed: true, Symbol: symbol, Order: ack, Position: pos}
}

func (g *Gate) place(ctx context.Context, c Candidate, size float64, sltp risk.SLTPResult) (marketdata.OrderAck, error) {
	orderCtx, cancel := marketdata.WithDefaultTimeout(ctx)
	defer cancel()
	req := marketdata.OrderRequest{
		Symbol: c.Signal.Symbol, IsBuy: c.Signal.Direction == strategy.DirectionLong,
		Size: size, Price: c.Signal.Price, TakeProfit: sltp.TP, StopLoss: sltp.SL,
		Leverage: g.cfg.Leverage,
		ClientID: g.orderIDs.Next(c.Signal.Symbol, string(c.Signal.Direction)),
	}
	ack, err := g.exchange.PlaceOrderWithTPSL(orderCtx, req)
	if err != nil {
		return marketdata.OrderAck{}, enginerr.Wrap(enginerr.KindExecution, "order placement failed", err)
	}
	return ack, nil
}
