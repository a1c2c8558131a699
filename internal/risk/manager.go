// Package risk implements RiskCalculator (spec §4.7): SL/TP selection
// across four tpslModes, position sizing bounded by equity*leverage, and
// the validation pass the trade gate runs before admission. Generalizes the
// teacher's RiskManager (CalculatePositionSize method-switch over
// fixed/percent/kelly/atr, daily-drawdown bookkeeping under an RWMutex)
// into a calculateSLTP/calculatePositionSize/validateTrade contract keyed
// on an explicit mode rather than a single fixed sizing method.
package risk

import (
	"math"
	"sync"
	"time"

	"github.com/hyperdesk/perpcore/internal/enginerr"
	"github.com/hyperdesk/perpcore/internal/strategy"
)

// TPSLMode selects how Calculator derives SL/TP levels.
type TPSLMode string

const (
	ModeAuto     TPSLMode = "auto"
	ModeATR      TPSLMode = "atr"
	ModePercent  TPSLMode = "percent"
	ModeIchimoku TPSLMode = "ichimoku"
)

// Config holds the account-level risk parameters.
type Config struct {
	RiskPerTradePct  float64 // 1-2% typical
	MaxDailyDrawdown float64 // percent of equity
	MaxOpenPositions int
}

// Calculator tracks account balance and daily P&L so CanOpenPosition can
// enforce the daily-drawdown circuit, mirroring the teacher's
// RiskManager bookkeeping.
type Calculator struct {
	mu sync.RWMutex

	cfg Config

	accountBalance float64
	dailyPnL       float64
	dailyPnLReset  time.Time
	openPositions  int
}

func NewCalculator(cfg Config) *Calculator {
	return &Calculator{cfg: cfg, dailyPnLReset: time.Now().Truncate(24 * time.Hour)}
}

func (c *Calculator) UpdateAccountBalance(balance float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accountBalance = balance
}

func (c *Calculator) AccountBalance() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accountBalance
}

// CanOpenPosition reports whether the daily-drawdown and open-position
// limits permit another trade.
func (c *Calculator) CanOpenPosition() (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkDailyReset()

	if c.openPositions >= c.cfg.MaxOpenPositions {
		return false, "max open positions reached"
	}
	if c.accountBalance > 0 {
		drawdownPct := c.dailyPnL / c.accountBalance * 100
		if drawdownPct <= -c.cfg.MaxDailyDrawdown {
			return false, "daily drawdown limit reached"
		}
	}
	return true, ""
}

func (c *Calculator) RegisterPositionOpen() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.openPositions++
}

func (c *Calculator) RegisterPositionClose(pnl float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.openPositions--
	if c.openPositions < 0 {
		c.openPositions = 0
	}
	c.checkDailyReset()
	c.dailyPnL += pnl
}

func (c *Calculator) checkDailyReset() {
	today := time.Now().Truncate(24 * time.Hour)
	if today.After(c.dailyPnLReset) {
		c.dailyPnL = 0
		c.dailyPnLReset = today
	}
}

// SLTPContext supplies every input calculateSLTP's four modes might need.
type SLTPContext struct {
	Mode TPSLMode

	SupportLevel    float64
	ResistanceLevel float64
	TechnicalSL     float64 // strategy-suggested SL, 0 if none
	TechnicalTP     float64
	TechnicalSLSrc  string
	TechnicalTPSrc  string

	ATRValue    float64
	ATRMultSL   float64
	ATRMultTP   float64

	DefaultSLPct float64
	DefaultTPPct float64
}

// SLTPResult mirrors the spec's calculateSLTP return shape.
type SLTPResult struct {
	SL            float64
	TP            float64
	SLSource      string
	TPSource      string
	RiskPercent   float64
	RewardPercent float64
	RRR           float64
	MeetsMinRRR   bool
}

// CalculateSLTP dispatches on ctx.Mode per spec §4.7.
func CalculateSLTP(entry float64, dir strategy.Direction, ctx SLTPContext, minRRR float64) SLTPResult {
	var sl, tp float64
	var slSource, tpSource string

	switch ctx.Mode {
	case ModeATR:
		sl, tp = atrLevels(entry, dir, ctx)
		slSource, tpSource = "atr", "atr"
	case ModePercent:
		sl, tp = percentLevels(entry, dir, ctx)
		slSource, tpSource = "percent", "percent"
	case ModeIchimoku:
		sl, tp = ctx.TechnicalSL, ctx.TechnicalTP
		slSource, tpSource = ctx.TechnicalSLSrc, ctx.TechnicalTPSrc
	default: // auto
		if ctx.TechnicalSL != 0 {
			sl, slSource = ctx.TechnicalSL, ctx.TechnicalSLSrc
		} else {
			sl, _ = percentLevels(entry, dir, ctx)
			slSource = "percent"
		}
		if ctx.TechnicalTP != 0 {
			tp, tpSource = ctx.TechnicalTP, ctx.TechnicalTPSrc
		} else {
			_, tp = percentLevels(entry, dir, ctx)
			tpSource = "percent"
		}
	}

	result := SLTPResult{SL: sl, TP: tp, SLSource: slSource, TPSource: tpSource}

	var risk, reward float64
	if dir == strategy.DirectionLong {
		risk = entry - sl
		reward = tp - entry
	} else {
		risk = sl - entry
		reward = entry - tp
	}
	if entry != 0 {
		result.RiskPercent = risk / entry * 100
		result.RewardPercent = reward / entry * 100
	}
	if risk > 0 {
		result.RRR = reward / risk
	}
	result.MeetsMinRRR = minRRR <= 0 || result.RRR >= minRRR

	return result
}

func atrLevels(entry float64, dir strategy.Direction, ctx SLTPContext) (sl, tp float64) {
	if dir == strategy.DirectionLong {
		return entry - ctx.ATRMultSL*ctx.ATRValue, entry + ctx.ATRMultTP*ctx.ATRValue
	}
	return entry + ctx.ATRMultSL*ctx.ATRValue, entry - ctx.ATRMultTP*ctx.ATRValue
}

func percentLevels(entry float64, dir strategy.Direction, ctx SLTPContext) (sl, tp float64) {
	if dir == strategy.DirectionLong {
		return entry * (1 - ctx.DefaultSLPct/100), entry * (1 + ctx.DefaultTPPct/100)
	}
	return entry * (1 + ctx.DefaultSLPct/100), entry * (1 - ctx.DefaultTPPct/100)
}

// CalculatePositionSize sizes the position to risk riskPerTradePct of
// equity on the |entry-sl| distance, bounded by equity*leverage/entry.
// Returns 0 when the stop distance is zero or when equity or entry is not
// positive; no minimum stop distance (such as an exchange tick) is applied.
func CalculatePositionSize(equity, entry, sl float64, leverage int, riskPerTradePct float64) float64 {
	if equity <= 0 || entry <= 0 {
		return 0
	}
	distance := math.Abs(entry - sl)
	if distance <= 0 {
		return 0
	}

	riskAmount := equity * (riskPerTradePct / 100)
	size := riskAmount / distance

	maxSize := equity * float64(leverage) / entry
	if size > maxSize {
		size = maxSize
	}
	return size
}

// ValidateTrade checks direction consistency, SL/TP orientation, positive
// size and RRR before the gate admits a trade.
func ValidateTrade(dir strategy.Direction, entry, sl, tp, size, rrr, minRRR float64) error {
	if dir != strategy.DirectionLong && dir != strategy.DirectionShort {
		return enginerr.New(enginerr.KindExecution, "invalid direction")
	}
	if dir == strategy.DirectionLong && (sl >= entry || tp <= entry) {
		return enginerr.New(enginerr.KindExecution, "long SL/TP orientation invalid")
	}
	if dir == strategy.DirectionShort && (sl <= entry || tp >= entry) {
		return enginerr.New(enginerr.KindExecution, "short SL/TP orientation invalid")
	}
	if size <= 0 {
		return enginerr.New(enginerr.KindExecution, "position size must be positive")
	}
	if minRRR > 0 && rrr < minRRR {
		return enginerr.New(enginerr.KindExecution, "RRR below minimum")
	}
	return nil
}
