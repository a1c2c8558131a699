// Package ichimoku computes the five Ichimoku lines and the discrete
// primitive signals (TK-cross, Kumo breakout, Kumo twist, Kijun bounce) the
// Ichimoku strategy variant scores. Periods are tuned per timeframe by the
// caller; this package only knows how to compute lines over a window.
package ichimoku

import "github.com/hyperdesk/perpcore/internal/candle"

// Periods holds the three lookbacks Ichimoku is parameterised by. The
// classic 9/26/52 set is the default; shorter timeframes typically compress
// these.
type Periods struct {
	Tenkan  int
	Kijun   int
	SenkouB int
}

// DefaultPeriods returns the textbook 9/26/52 Ichimoku parameters.
func DefaultPeriods() Periods {
	return Periods{Tenkan: 9, Kijun: 26, SenkouB: 52}
}

// Lines holds the five Ichimoku values for the current bar, plus the cloud
// boundary (SenkouA/SenkouB) projected Kijun periods forward and the Chikou
// span's reference close Kijun periods back.
type Lines struct {
	Tenkan      float64
	Kijun       float64
	SenkouA     float64
	SenkouB     float64
	Chikou      float64 // current close, compared against price Kijun bars ago
	ChikouRef   float64 // the close Kijun bars in the past, Chikou's comparison point
	CloudTop    float64
	CloudBottom float64
	Bullish     bool // cloud colour: SenkouA above SenkouB
}

func midpoint(candles []candle.Candle, period int) float64 {
	if len(candles) < period {
		return 0
	}
	window := candles[len(candles)-period:]
	hi, lo := window[0].High, window[0].Low
	for _, c := range window {
		if c.High > hi {
			hi = c.High
		}
		if c.Low < lo {
			lo = c.Low
		}
	}
	return (hi + lo) / 2
}

// Compute derives all five lines from candles as of the latest bar. It
// requires at least SenkouB bars; shorter windows return a zero-value Lines
// (CloudTop==CloudBottom==0) for the caller to detect. ChikouRef is set
// only when the window holds more than Kijun bars.
func Compute(candles []candle.Candle, p Periods) Lines {
	if len(candles) < p.SenkouB {
		return Lines{}
	}

	tenkan := midpoint(candles, p.Tenkan)
	kijun := midpoint(candles, p.Kijun)
	senkouA := (tenkan + kijun) / 2
	senkouB := midpoint(candles, p.SenkouB)

	top, bottom := senkouA, senkouB
	if senkouB > senkouA {
		top, bottom = senkouB, senkouA
	}

	l := Lines{
		Tenkan: tenkan, Kijun: kijun,
		SenkouA: senkouA, SenkouB: senkouB,
		CloudTop: top, CloudBottom: bottom,
		Bullish: senkouA >= senkouB,
		Chikou:  candles[len(candles)-1].Close,
	}

	if len(candles) > p.Kijun {
		l.ChikouRef = candles[len(candles)-1-p.Kijun].Close
	}

	return l
}

// Direction is long, short or flat.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
	DirectionFlat  Direction = "flat"
)

// Primitive is one of the four discrete Ichimoku events.
type Primitive struct {
	Name      string
	Direction Direction
	Strength  float64 // 0..1
}

// MinStrength below which a detected primitive is dropped rather than
// returned with low conviction.
const MinStrength = 0.3

// DetectPrimitives returns every primitive that cleared MinStrength, given
// the current and previous bar's lines (prev may be the zero value on the
// very first evaluable bar, in which case TK-cross and Kumo-twist are
// skipped since they need two points).
func DetectPrimitives(curr, prev Lines, price float64) []Primitive {
	var out []Primitive

	if prev != (Lines{}) {
		if cross := tkCross(curr, prev); cross != nil {
			out = append(out, *cross)
		}
		if twist := kumoTwist(curr, prev); twist != nil {
			out = append(out, *twist)
		}
	}

	if breakout := kumoBreakout(curr, prev, price); breakout != nil {
		out = append(out, *breakout)
	}

	if bounce := kijunBounce(curr, price); bounce != nil {
		out = append(out, *bounce)
	}

	kept := out[:0]
	for _, p := range out {
		if p.Strength >= MinStrength {
			kept = append(kept, p)
		}
	}
	return kept
}

func tkCross(curr, prev Lines) *Primitive {
	prevDiff := prev.Tenkan - prev.Kijun
	currDiff := curr.Tenkan - curr.Kijun
	if prevDiff <= 0 && currDiff > 0 {
		return &Primitive{Name: "tk_cross", Direction: DirectionLong, Strength: strengthOf(currDiff, curr.Kijun)}
	}
	if prevDiff >= 0 && currDiff < 0 {
		return &Primitive{Name: "tk_cross", Direction: DirectionShort, Strength: strengthOf(-currDiff, curr.Kijun)}
	}
	return nil
}

func kumoBreakout(curr, prev Lines, price float64) *Primitive {
	if prev == (Lines{}) {
		if price > curr.CloudTop {
			return &Primitive{Name: "kumo_breakout", Direction: DirectionLong, Strength: 0.5}
		}
		if price < curr.CloudBottom {
			return &Primitive{Name: "kumo_breakout", Direction: DirectionShort, Strength: 0.5}
		}
		return nil
	}
	wasInsideOrBelow := price <= prev.CloudTop
	wasInsideOrAbove := price >= prev.CloudBottom
	if wasInsideOrBelow && price > curr.CloudTop {
		return &Primitive{Name: "kumo_breakout", Direction: DirectionLong, Strength: strengthOf(price-curr.CloudTop, curr.CloudTop)}
	}
	if wasInsideOrAbove && price < curr.CloudBottom {
		return &Primitive{Name: "kumo_breakout", Direction: DirectionShort, Strength: strengthOf(curr.CloudBottom-price, curr.CloudBottom)}
	}
	return nil
}

func kumoTwist(curr, prev Lines) *Primitive {
	if prev.SenkouA-prev.SenkouB <= 0 && curr.SenkouA-curr.SenkouB > 0 {
		return &Primitive{Name: "kumo_twist", Direction: DirectionLong, Strength: 0.6}
	}
	if prev.SenkouA-prev.SenkouB >= 0 && curr.SenkouA-curr.SenkouB < 0 {
		return &Primitive{Name: "kumo_twist", Direction: DirectionShort, Strength: 0.6}
	}
	return nil
}

func kijunBounce(curr Lines, price float64) *Primitive {
	if curr.Kijun == 0 {
		return nil
	}
	distPct := (price - curr.Kijun) / curr.Kijun
	const bounceBand = 0.002
	if distPct > 0 && distPct < bounceBand {
		return &Primitive{Name: "kijun_bounce", Direction: DirectionLong, Strength: 1 - distPct/bounceBand}
	}
	if distPct < 0 && -distPct < bounceBand {
		return &Primitive{Name: "kijun_bounce", Direction: DirectionShort, Strength: 1 - (-distPct)/bounceBand}
	}
	return nil
}

func strengthOf(delta, base float64) float64 {
	if base == 0 {
		return 0.5
	}
	s := delta / base * 50
	if s > 1 {
		return 1
	}
	if s < 0.3 {
		return 0.3
	}
	return s
}

// Score computes the -7..+7 Ichimoku score from the five components (spec
// §4.4.1): ±2 price-vs-cloud, ±1 Tenkan-vs-Kijun, ±1 cloud colour, ±2 Chikou
// confirmation, ±1 price-vs-Kijun.
func Score(l Lines, price float64) int {
	score := 0

	switch {
	case price > l.CloudTop:
		score += 2
	case price < l.CloudBottom:
		score -= 2
	}

	switch {
	case l.Tenkan > l.Kijun:
		score++
	case l.Tenkan < l.Kijun:
		score--
	}

	if l.Bullish {
		score++
	} else {
		score--
	}

	if l.ChikouRef != 0 {
		switch {
		case l.Chikou > l.ChikouRef:
			score += 2
		case l.Chikou < l.ChikouRef:
			score -= 2
		}
	}

	switch {
	case price > l.Kijun:
		score++
	case price < l.Kijun:
		score--
	}

	return score
}
