// Package position implements PositionManager (spec §4.8): the
// authoritative in-process view of open positions, reconciled against the
// exchange on a ticker independent of the trading cycle. Grounded on the
// teacher's internal/orders/position_tracker.go (PositionState,
// PositionTracker{mu, logger, activePositions map[string]*PositionState})
// shape, generalized from a fill-lifecycle tracker into the spec's
// poll-and-reconcile loop with an injected onPositionClosed callback.
package position

import (
	"context"
	"sync"
	"time"

	"github.com/hyperdesk/perpcore/internal/marketdata"
	"github.com/hyperdesk/perpcore/internal/strategy"
	"github.com/rs/zerolog"
)

// ExitReason classifies how a tracked position disappeared from the
// exchange's reported positions.
type ExitReason string

const (
	ExitTakeProfit ExitReason = "take_profit"
	ExitStopLoss   ExitReason = "stop_loss"
	ExitManual     ExitReason = "manual"
	ExitUnknown    ExitReason = "unknown"
)

// Position is the spec's closed Position record.
type Position struct {
	Symbol     string
	Direction  strategy.Direction
	EntryPrice float64
	Size       float64
	StopLoss   float64
	TakeProfit float64
	OpenedAtMs int64
	Leverage   int
	FromSync   bool

	AnalysisSnapshot any // opaque: the GradedSignal that produced this position, nil when FromSync
}

// OnClosedFunc is invoked once per detected close, symbol already untracked
// by the time it runs.
type OnClosedFunc func(symbol string, pnl float64, reason ExitReason)

// Manager tracks trackedPositions: map<symbol, Position> and polls the
// exchange every pollInterval.
type Manager struct {
	exchange marketdata.ExchangeClient
	address  string
	logger   zerolog.Logger

	pollInterval time.Duration
	onClosed     OnClosedFunc

	mu       sync.RWMutex
	tracked  map[string]Position
	lastMid  map[string]float64

	stop chan struct{}
}

func NewManager(exchange marketdata.ExchangeClient, address string, pollInterval time.Duration, onClosed OnClosedFunc, logger zerolog.Logger) *Manager {
	return &Manager{
		exchange:     exchange,
		address:      address,
		pollInterval: pollInterval,
		onClosed:     onClosed,
		logger:       logger.With().Str("component", "PositionManager").Logger(),
		tracked:      make(map[string]Position),
		lastMid:      make(map[string]float64),
		stop:         make(chan struct{}),
	}
}

// Track registers a newly opened position, called by the trade gate right
// after an order is acknowledged.
func (m *Manager) Track(p Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracked[p.Symbol] = p
}

// Snapshot returns a copy of every tracked position, safe for callers that
// only need a read-only view (e.g. the control surface).
func (m *Manager) Snapshot() map[string]Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Position, len(m.tracked))
	for k, v := range m.tracked {
		out[k] = v
	}
	return out
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tracked)
}

// Run starts the poll ticker; it blocks until ctx is cancelled or Stop is
// called.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case <-ticker.C:
			if err := m.poll(ctx); err != nil {
				m.logger.Warn().Err(err).Msg("position poll failed, retrying next tick")
			}
		}
	}
}

func (m *Manager) Stop() {
	close(m.stop)
}

// Reconcile runs one poll pass immediately, independent of the ticker — used
// at Scheduler.Start so boot-time position sync doesn't wait for the first
// tick (spec §4.1).
func (m *Manager) Reconcile(ctx context.Context) error {
	return m.poll(ctx)
}

// poll fetches real positions and reconciles: untracks positions the
// exchange no longer reports (emitting onClosed), and adds any the exchange
// reports that we are not yet tracking (fromSync=true).
func (m *Manager) poll(ctx context.Context) error {
	callCtx, cancel := marketdata.WithDefaultTimeout(ctx)
	defer cancel()

	real, err := m.exchange.GetPositions(callCtx, m.address)
	if err != nil {
		return err
	}

	realBySymbol := make(map[string]marketdata.RawPosition, len(real))
	for _, p := range real {
		realBySymbol[p.Symbol] = p
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for symbol, tracked := range m.tracked {
		if _, stillOpen := realBySymbol[symbol]; stillOpen {
			continue
		}
		mid := m.lastMid[symbol]
		if mid == 0 {
			mid = tracked.EntryPrice
		}
		pnl := unrealizedPnL(tracked, mid)
		reason := exitReason(tracked, mid)
		delete(m.tracked, symbol)
		if m.onClosed != nil {
			m.onClosed(symbol, pnl, reason)
		}
	}

	for symbol, raw := range realBySymbol {
		if _, tracked := m.tracked[symbol]; tracked {
			continue
		}
		dir := strategy.DirectionLong
		if raw.Size < 0 {
			dir = strategy.DirectionShort
		}
		m.tracked[symbol] = Position{
			Symbol: symbol, Direction: dir,
			EntryPrice: raw.EntryPrice, Size: absF(raw.Size),
			OpenedAtMs: time.Now().UnixMilli(), FromSync: true,
		}
	}

	return nil
}

func unrealizedPnL(p Position, mid float64) float64 {
	if p.Direction == strategy.DirectionLong {
		return (mid - p.EntryPrice) * p.Size
	}
	return (p.EntryPrice - mid) * p.Size
}

func exitReason(p Position, mid float64) ExitReason {
	if p.TakeProfit == 0 || p.StopLoss == 0 {
		return ExitUnknown
	}
	switch p.Direction {
	case strategy.DirectionLong:
		if mid >= p.TakeProfit {
			return ExitTakeProfit
		}
		if mid <= p.StopLoss {
			return ExitStopLoss
		}
	case strategy.DirectionShort:
		if mid <= p.TakeProfit {
			return ExitTakeProfit
		}
		if mid >= p.StopLoss {
			return ExitStopLoss
		}
	}
	return ExitManual
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
