// Package strategy implements StrategyEngine: three variant implementations
// of a common Strategy capability, each consuming candles plus an
// IndicatorKit bundle and emitting a RawSignal with direction, score,
// confluence and suggested SL/TP candidates. Grounded on the teacher's
// internal/strategy package shape (one file per strategy,
// package-level Name()/Evaluate() methods) and on
// pattern_confluence_strategy.go's sub-analyzer composition, restructured
// around an interface so EngineConfig.strategy can select a variant at
// runtime instead of the teacher's fixed Breakout/Support strategies.
package strategy

import (
	"github.com/hyperdesk/perpcore/internal/candle"
	"github.com/hyperdesk/perpcore/internal/indicators"
)

// Direction is long or short. Strategies never emit a flat RawSignal; "no
// signal" is represented by returning (RawSignal{}, false) from Analyze.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// PriceCandidate is a suggested SL or TP level tagged with where it came
// from, so the grader can prefer technical levels over generic percent
// fallbacks (slSource/tpSource).
type PriceCandidate struct {
	Price  float64
	Source string // e.g. "ichimoku", "ema200", "bollinger", "atr", "percent"
}

// RawSignal is the uniform output every strategy variant produces,
// regardless of the primitives behind it.
type RawSignal struct {
	Symbol     string
	Timeframe  candle.Timeframe
	Strategy   string
	Direction  Direction
	AbsScore   int // 0..7, magnitude of conviction on the shared scale
	Confluence int // count of agreeing secondary indicators
	Price      float64

	SLCandidates []PriceCandidate
	TPCandidates []PriceCandidate

	Fakeout      bool
	LowLiquidity bool
}

// Context bundles everything a strategy needs beyond raw candles: the
// already-computed indicator bundle (shared across strategies so it is
// computed once per cycle) and the active preset's thresholds.
type Context struct {
	Candles []candle.Candle
	Bundle  indicators.Bundle
	Preset  candle.TimeframePreset

	EnableChikouFilter     bool // off by default; no strategy reads this flag
	EnableSupertrendFilter bool // off by default; no strategy reads this flag
	EnableSessionFilter    bool
}

// Strategy is the capability every variant implements.
type Strategy interface {
	Name() string
	Analyze(symbol string, tf candle.Timeframe, ctx Context) (RawSignal, bool)
}

// ForName resolves EngineConfig.strategy ("ichimoku"|"smc"|"bollinger") to a
// concrete Strategy. Returns (nil, false) on an unrecognised name so callers
// can surface a config error at Start.
func ForName(name string) (Strategy, bool) {
	switch name {
	case "ichimoku":
		return IchimokuStrategy{}, true
	case "smc":
		return SMCStrategy{}, true
	case "bollinger":
		return BollingerSqueezeStrategy{}, true
	default:
		return nil, false
	}
}

// clampCandidates drops any candidate closer than minDistPct or further than
// maxDistPct from price, the 0.3%/8% filter every strategy's SL/TP selection
// shares.
func clampCandidates(price float64, candidates []PriceCandidate, minDistPct, maxDistPct float64) []PriceCandidate {
	var out []PriceCandidate
	for _, c := range candidates {
		if price == 0 {
			continue
		}
		distPct := abs(c.Price-price) / price * 100
		if distPct >= minDistPct && distPct <= maxDistPct {
			out = append(out, c)
		}
	}
	return out
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// secondaryConfluence counts how many of {rsi-signal, macd-signal,
// adx-trending, vwap-signal, cvd-signal} agree with dir, the confluence
// definition every strategy variant shares.
func secondaryConfluence(b indicators.Bundle, dir Direction) int {
	count := 0
	if dir == DirectionLong {
		if b.RSI > 50 {
			count++
		}
		if b.MACD.Histogram > 0 {
			count++
		}
		if b.ADX.Direction == "up" {
			count++
		}
		if b.VWAP.Position == "above" {
			count++
		}
		if b.CVD.Trend == "rising" {
			count++
		}
	} else {
		if b.RSI < 50 {
			count++
		}
		if b.MACD.Histogram < 0 {
			count++
		}
		if b.ADX.Direction == "down" {
			count++
		}
		if b.VWAP.Position == "below" {
			count++
		}
		if b.CVD.Trend == "falling" {
			count++
		}
	}
	return count
}
