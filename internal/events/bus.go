// Package events implements a small typed event hub with five subscriber
// lists (log, analysis, signal, cycle, trade) in place of the source
// system's mixed string-keyed emitter. None
// of these emissions are part of the trading contract — the engine behaves
// identically whether or not anyone is subscribed.
package events

import (
	"sync"
	"time"
)

// LogEntry mirrors onLog(entry).
type LogEntry struct {
	Timestamp time.Time
	Level     string
	Component string
	Message   string
	Fields    map[string]interface{}
}

// AnalysisSummary mirrors onAnalysis(summary) — one per (symbol, timeframe)
// pass through the pipeline, whether or not it produced a tradeable signal.
type AnalysisSummary struct {
	Timestamp time.Time
	Cycle     int64
	Symbol    string
	Timeframe string
	Graded    bool
	Grade     string
	Tradeable bool
	Reason    string
}

// SignalEvent mirrors onSignal(finalSignal) — emitted for every graded
// signal, tradeable or not, before gating.
type SignalEvent struct {
	Timestamp time.Time
	Cycle     int64
	Symbol    string
	Timeframe string
	Direction string
	Grade     string
	Quality   float64
	WinProb   float64
	Tradeable bool
}

// CycleSummary is emitted once per completed scheduler cycle, independent
// of whether any opportunity was found or executed — the audit journal's
// per-cycle row.
type CycleSummary struct {
	Timestamp     time.Time
	Cycle         int64
	Symbols       int
	Timeframes    int
	DurationMs    int64
	Opportunities int
}

// TradeEvent mirrors onTrade({symbol, signal, order}).
type TradeEvent struct {
	Timestamp  time.Time
	Cycle      int64
	Symbol     string
	Direction  string
	Entry      float64
	Size       float64
	StopLoss   float64
	TakeProfit float64
	OrderID    string
}

// Bus fans each typed event out to its own subscriber list. It is the
// engine's only coupling to observability: components call Publish*, the
// host layer (internal/server) subscribes to forward events over the
// control-surface websocket.
type Bus struct {
	mu sync.RWMutex

	logSubs      []func(LogEntry)
	analysisSubs []func(AnalysisSummary)
	signalSubs   []func(SignalEvent)
	cycleSubs    []func(CycleSummary)
	tradeSubs    []func(TradeEvent)
}

func NewBus() *Bus {
	return &Bus{}
}

func (b *Bus) OnLog(fn func(LogEntry)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logSubs = append(b.logSubs, fn)
}

func (b *Bus) OnAnalysis(fn func(AnalysisSummary)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.analysisSubs = append(b.analysisSubs, fn)
}

func (b *Bus) OnSignal(fn func(SignalEvent)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.signalSubs = append(b.signalSubs, fn)
}

func (b *Bus) OnCycle(fn func(CycleSummary)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cycleSubs = append(b.cycleSubs, fn)
}

func (b *Bus) OnTrade(fn func(TradeEvent)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tradeSubs = append(b.tradeSubs, fn)
}

func (b *Bus) PublishLog(e LogEntry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.logSubs {
		go sub(e)
	}
}

func (b *Bus) PublishAnalysis(e AnalysisSummary) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.analysisSubs {
		go sub(e)
	}
}

func (b *Bus) PublishSignal(e SignalEvent) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.signalSubs {
		go sub(e)
	}
}

func (b *Bus) PublishCycle(e CycleSummary) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.cycleSubs {
		go sub(e)
	}
}

func (b *Bus) PublishTrade(e TradeEvent) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.tradeSubs {
		go sub(e)
	}
}
