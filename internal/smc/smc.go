// Package smc implements the Smart Money Concepts primitives the SMC
// strategy variant consumes: order blocks, fair value gaps, break of
// structure, liquidity sweeps, premium/discount zones and session tags.
// Grounded on the teacher's internal/analysis/fvg.go (three-candle gap scan)
// and internal/patterns' detector shape (a DetectX(candles) []X function per
// primitive, confidence-scored), generalized from binance.Kline to
// candle.Candle and extended with the structure/liquidity primitives the
// teacher did not have.
package smc

import "github.com/hyperdesk/perpcore/internal/candle"

// Direction mirrors ichimoku.Direction without importing it — smc has no
// dependency on the Ichimoku package.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// FVGType distinguishes bullish from bearish fair value gaps.
type FVGType string

const (
	BullishFVG FVGType = "bullish"
	BearishFVG FVGType = "bearish"
)

// FVG is a three-candle fair value gap.
type FVG struct {
	Type        FVGType
	Top         float64
	Bottom      float64
	CandleIndex int
	Filled      bool
}

// DetectFVGs scans candles for three-candle gaps where the first and third
// candle's wicks do not overlap, same rule as the teacher's FVGDetector,
// filtered by minGapPercent of the gap-creating candle's price level.
func DetectFVGs(candles []candle.Candle, minGapPercent float64) []FVG {
	if len(candles) < 3 {
		return nil
	}
	var out []FVG
	for i := 0; i < len(candles)-2; i++ {
		c1, c3 := candles[i], candles[i+2]

		if c1.High < c3.Low {
			gapPct := (c3.Low - c1.High) / c1.High * 100
			if gapPct >= minGapPercent {
				out = append(out, FVG{Type: BullishFVG, Top: c3.Low, Bottom: c1.High, CandleIndex: i})
			}
		}
		if c1.Low > c3.High {
			gapPct := (c1.Low - c3.High) / c3.High * 100
			if gapPct >= minGapPercent {
				out = append(out, FVG{Type: BearishFVG, Top: c1.Low, Bottom: c3.High, CandleIndex: i})
			}
		}
	}
	markFilled(candles, out)
	return out
}

func markFilled(candles []candle.Candle, fvgs []FVG) {
	for i := range fvgs {
		fvg := &fvgs[i]
		for j := fvg.CandleIndex + 3; j < len(candles); j++ {
			c := candles[j]
			if c.Low <= fvg.Top && c.High >= fvg.Bottom {
				fvg.Filled = true
				break
			}
		}
	}
}

// OrderBlock is the last opposite-direction candle before a displacement
// move, the classic SMC "institutional footprint" zone.
type OrderBlock struct {
	Direction   Direction // direction of the displacement that followed
	Top         float64
	Bottom      float64
	CandleIndex int
	Mitigated   bool
}

// DetectOrderBlocks finds the candle immediately preceding a displacement of
// at least displacementPct, tagged with the direction of that displacement.
func DetectOrderBlocks(candles []candle.Candle, displacementPct float64) []OrderBlock {
	if len(candles) < 3 {
		return nil
	}
	var out []OrderBlock
	for i := 1; i < len(candles)-1; i++ {
		base := candles[i-1]
		move := candles[i]

		moveRange := move.Close - move.Open
		movePct := 0.0
		if move.Open != 0 {
			movePct = moveRange / move.Open * 100
		}

		switch {
		case movePct >= displacementPct && base.Close < base.Open:
			out = append(out, OrderBlock{Direction: DirectionLong, Top: base.High, Bottom: base.Low, CandleIndex: i - 1})
		case movePct <= -displacementPct && base.Close > base.Open:
			out = append(out, OrderBlock{Direction: DirectionShort, Top: base.High, Bottom: base.Low, CandleIndex: i - 1})
		}
	}
	markMitigated(candles, out)
	return out
}

func markMitigated(candles []candle.Candle, blocks []OrderBlock) {
	for i := range blocks {
		ob := &blocks[i]
		for j := ob.CandleIndex + 2; j < len(candles); j++ {
			c := candles[j]
			if c.Low <= ob.Top && c.High >= ob.Bottom {
				ob.Mitigated = true
				break
			}
		}
	}
}

// StructureEvent is a break-of-structure or change-of-character event.
type StructureEvent struct {
	Direction   Direction
	CandleIndex int
	BrokenLevel float64
}

// DetectBOS scans for a close beyond the highest high / lowest low of the
// preceding lookback bars, the simplest break-of-structure definition.
func DetectBOS(candles []candle.Candle, lookback int) []StructureEvent {
	if len(candles) < lookback+1 {
		return nil
	}
	var out []StructureEvent
	for i := lookback; i < len(candles); i++ {
		window := candles[i-lookback : i]
		hi, lo := window[0].High, window[0].Low
		for _, c := range window {
			if c.High > hi {
				hi = c.High
			}
			if c.Low < lo {
				lo = c.Low
			}
		}
		if candles[i].Close > hi {
			out = append(out, StructureEvent{Direction: DirectionLong, CandleIndex: i, BrokenLevel: hi})
		} else if candles[i].Close < lo {
			out = append(out, StructureEvent{Direction: DirectionShort, CandleIndex: i, BrokenLevel: lo})
		}
	}
	return out
}

// LiquiditySweep is a wick beyond a prior swing extreme that closes back
// inside it, the classic stop-hunt signature.
type LiquiditySweep struct {
	Direction   Direction // direction of the reversal the sweep sets up
	CandleIndex int
	SweptLevel  float64
}

// DetectLiquiditySweeps finds a bar whose wick pierces the lookback-window
// extreme but whose close reclaims it, implying liquidity was taken before
// reversing.
func DetectLiquiditySweeps(candles []candle.Candle, lookback int) []LiquiditySweep {
	if len(candles) < lookback+1 {
		return nil
	}
	var out []LiquiditySweep
	for i := lookback; i < len(candles); i++ {
		window := candles[i-lookback : i]
		hi, lo := window[0].High, window[0].Low
		for _, c := range window {
			if c.High > hi {
				hi = c.High
			}
			if c.Low < lo {
				lo = c.Low
			}
		}
		c := candles[i]
		if c.High > hi && c.Close < hi {
			out = append(out, LiquiditySweep{Direction: DirectionShort, CandleIndex: i, SweptLevel: hi})
		} else if c.Low < lo && c.Close > lo {
			out = append(out, LiquiditySweep{Direction: DirectionLong, CandleIndex: i, SweptLevel: lo})
		}
	}
	return out
}

// Zone is premium or discount, relative to the midpoint of the lookback
// range, the standard SMC "fair value" split.
type Zone string

const (
	ZonePremium  Zone = "premium"
	ZoneDiscount Zone = "discount"
	ZoneEquilibrium Zone = "equilibrium"
)

// PremiumDiscountZone classifies the latest close against the midpoint of
// the last `lookback` bars' range, with a 5% band around the midpoint
// counted as equilibrium (no edge).
func PremiumDiscountZone(candles []candle.Candle, lookback int) Zone {
	if len(candles) < lookback || lookback == 0 {
		return ZoneEquilibrium
	}
	window := candles[len(candles)-lookback:]
	hi, lo := window[0].High, window[0].Low
	for _, c := range window {
		if c.High > hi {
			hi = c.High
		}
		if c.Low < lo {
			lo = c.Low
		}
	}
	if hi == lo {
		return ZoneEquilibrium
	}
	mid := (hi + lo) / 2
	price := candles[len(candles)-1].Close
	band := (hi - lo) * 0.05
	switch {
	case price > mid+band:
		return ZonePremium
	case price < mid-band:
		return ZoneDiscount
	default:
		return ZoneEquilibrium
	}
}

// Session is the trading session a bar's timestamp falls in, used as an
// optional confluence filter (session-tag liquidity tends to cluster at
// session opens).
type Session string

const (
	SessionAsia    Session = "asia"
	SessionLondon  Session = "london"
	SessionNewYork Session = "new_york"
)

// SessionTag buckets a UTC hour-of-day into the session whose liquidity
// typically dominates it.
func SessionTag(utcHour int) Session {
	switch {
	case utcHour >= 0 && utcHour < 8:
		return SessionAsia
	case utcHour >= 8 && utcHour < 13:
		return SessionLondon
	default:
		return SessionNewYork
	}
}
