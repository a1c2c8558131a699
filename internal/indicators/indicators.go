// Package indicators implements IndicatorKit (spec §4.3): pure functions
// over a candle window that do not know about strategies, grading or
// exchanges. Shapes follow the teacher's strategy/indicators.go
// (package-level CalculateX functions returning small result structs) but
// operate on candle.Candle and compute a proper MACD signal line via an EMA
// of the MACD series rather than a fixed-ratio approximation.
package indicators

import (
	"math"

	"github.com/hyperdesk/perpcore/internal/candle"
)

// SMA returns the simple moving average of the last period closes.
func SMA(closes []float64, period int) float64 {
	if len(closes) < period || period <= 0 {
		return 0
	}
	sum := 0.0
	for _, c := range closes[len(closes)-period:] {
		sum += c
	}
	return sum / float64(period)
}

// emaSeries returns the full EMA series for period seeded by the SMA of the
// first `period` values, matching the usual charting convention.
func emaSeries(closes []float64, period int) []float64 {
	if len(closes) < period || period <= 0 {
		return nil
	}
	mult := 2.0 / float64(period+1)
	out := make([]float64, len(closes))
	seed := SMA(closes[:period], period)
	out[period-1] = seed
	ema := seed
	for i := period; i < len(closes); i++ {
		ema = (closes[i]-ema)*mult + ema
		out[i] = ema
	}
	return out
}

// EMA returns the most recent EMA value for period.
func EMA(closes []float64, period int) float64 {
	s := emaSeries(closes, period)
	if s == nil {
		return 0
	}
	return s[len(s)-1]
}

// RSI returns the relative strength index from simple averages of the gains
// and losses over the last period bars (no Wilder smoothing), or 50
// (neutral) when the window is too short to compute one.
func RSI(closes []float64, period int) float64 {
	if len(closes) < period+1 {
		return 50
	}
	var avgGain, avgLoss float64
	for i := len(closes) - period; i < len(closes); i++ {
		diff := closes[i] - closes[i-1]
		if diff > 0 {
			avgGain += diff
		} else {
			avgLoss += -diff
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// StochRSI returns the stochastic RSI (0..100) over an RSI series of the
// given lookback, or 50 when too short.
func StochRSI(closes []float64, rsiPeriod, stochPeriod int) float64 {
	if len(closes) < rsiPeriod+stochPeriod {
		return 50
	}
	rsiSeries := make([]float64, 0, stochPeriod)
	for i := len(closes) - stochPeriod; i < len(closes); i++ {
		rsiSeries = append(rsiSeries, RSI(closes[:i+1], rsiPeriod))
	}
	lo, hi := rsiSeries[0], rsiSeries[0]
	for _, v := range rsiSeries {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if hi == lo {
		return 50
	}
	current := rsiSeries[len(rsiSeries)-1]
	return (current - lo) / (hi - lo) * 100
}

// MACDResult holds the MACD line, its signal line and the histogram.
type MACDResult struct {
	MACD      float64
	Signal    float64
	Histogram float64
	CrossUp   bool // MACD crossed above signal on the latest bar
	CrossDown bool // MACD crossed below signal on the latest bar
}

// MACD computes the MACD line as a proper series (fast EMA - slow EMA at
// every bar) and the signal line as an EMA of that series, rather than
// approximating the signal from a single MACD value.
func MACD(closes []float64, fast, slow, signalPeriod int) MACDResult {
	if len(closes) < slow+signalPeriod {
		return MACDResult{}
	}
	fastSeries := emaSeries(closes, fast)
	slowSeries := emaSeries(closes, slow)

	// Both EMA series span the whole window; the MACD series starts at the
	// first bar where the slow EMA is seeded.
	macdSeries := make([]float64, 0, len(closes)-slow+1)
	for i := slow - 1; i < len(closes); i++ {
		macdSeries = append(macdSeries, fastSeries[i]-slowSeries[i])
	}

	signalSeries := emaSeries(macdSeries, signalPeriod)
	if signalSeries == nil {
		return MACDResult{}
	}

	macd := macdSeries[len(macdSeries)-1]
	signal := signalSeries[len(signalSeries)-1]
	hist := macd - signal

	var crossUp, crossDown bool
	if len(signalSeries) >= 2 {
		prevMACD := macdSeries[len(macdSeries)-2]
		prevSignal := signalSeries[len(signalSeries)-2]
		crossUp = prevMACD <= prevSignal && macd > signal
		crossDown = prevMACD >= prevSignal && macd < signal
	}

	return MACDResult{MACD: macd, Signal: signal, Histogram: hist, CrossUp: crossUp, CrossDown: crossDown}
}

// BollingerResult holds the band levels plus where price sits relative to
// them and whether a squeeze (narrow bandwidth) is in effect.
type BollingerResult struct {
	Upper    float64
	Mid      float64
	Lower    float64
	Position float64 // 0 = at lower band, 1 = at upper band
	Squeeze  bool
	Width    float64 // (upper-lower)/mid, used by the Bollinger-squeeze strategy
}

// Bollinger computes Bollinger Bands over period with stdDevMult standard
// deviations, flagging squeeze when bandwidth falls under squeezeThreshold.
func Bollinger(closes []float64, period int, stdDevMult, squeezeThreshold float64) BollingerResult {
	if len(closes) < period {
		return BollingerResult{}
	}
	window := closes[len(closes)-period:]
	mid := SMA(closes, period)
	var sumSq float64
	for _, c := range window {
		d := c - mid
		sumSq += d * d
	}
	stdDev := math.Sqrt(sumSq / float64(period))

	upper := mid + stdDevMult*stdDev
	lower := mid - stdDevMult*stdDev
	width := 0.0
	if mid != 0 {
		width = (upper - lower) / mid
	}

	price := closes[len(closes)-1]
	pos := 0.5
	if upper != lower {
		pos = (price - lower) / (upper - lower)
	}

	return BollingerResult{
		Upper: upper, Mid: mid, Lower: lower,
		Position: pos, Width: width, Squeeze: width < squeezeThreshold,
	}
}

// Keltner computes a Keltner channel (EMA midline +/- atrMult * ATR), used
// alongside Bollinger to detect a TTM-style squeeze.
func Keltner(candles []candle.Candle, emaPeriod, atrPeriod int, atrMult float64) (upper, lower float64) {
	closes := closesOf(candles)
	mid := EMA(closes, emaPeriod)
	atr := ATR(candles, atrPeriod).Value
	return mid + atrMult*atr, mid - atrMult*atr
}

// VolumeResult reports how the latest volume compares to its recent mean.
type VolumeResult struct {
	Ratio float64 // latest volume / mean of lookback bars
	Spike bool
}

// Volume compares the latest bar's volume against the mean of the previous
// lookback bars.
func Volume(candles []candle.Candle, lookback int, spikeRatio float64) VolumeResult {
	if len(candles) < lookback+1 {
		return VolumeResult{Ratio: 1}
	}
	window := candles[len(candles)-lookback-1 : len(candles)-1]
	var sum float64
	for _, c := range window {
		sum += c.Volume
	}
	mean := sum / float64(lookback)
	if mean == 0 {
		return VolumeResult{Ratio: 1}
	}
	ratio := candles[len(candles)-1].Volume / mean
	return VolumeResult{Ratio: ratio, Spike: ratio >= spikeRatio}
}

// VWAPResult reports price's position relative to the session VWAP.
type VWAPResult struct {
	Value    float64
	Position string // "above" | "below"
	DistPct  float64
}

// VWAP computes the volume-weighted average price over the full window
// (callers pass a session-scoped slice when a session boundary matters).
func VWAP(candles []candle.Candle) VWAPResult {
	if len(candles) == 0 {
		return VWAPResult{}
	}
	var pv, vol float64
	for _, c := range candles {
		typicalPrice := (c.High + c.Low + c.Close) / 3
		pv += typicalPrice * c.Volume
		vol += c.Volume
	}
	if vol == 0 {
		return VWAPResult{}
	}
	vwap := pv / vol
	price := candles[len(candles)-1].Close
	pos := "below"
	if price >= vwap {
		pos = "above"
	}
	dist := 0.0
	if vwap != 0 {
		dist = (price - vwap) / vwap * 100
	}
	return VWAPResult{Value: vwap, Position: pos, DistPct: dist}
}

// CVDResult reports the cumulative volume delta trend, approximating delta
// per bar as signed volume (up-close bars count as buy volume).
type CVDResult struct {
	Value      float64
	Trend      string // "rising" | "falling" | "flat"
	Divergence bool   // price made a new high/low the CVD trend did not confirm
}

// CVD computes a running cumulative volume delta over the window and flags
// a simple price/CVD divergence over the trailing lookback bars.
func CVD(candles []candle.Candle, lookback int) CVDResult {
	if len(candles) == 0 {
		return CVDResult{Trend: "flat"}
	}
	cvd := 0.0
	series := make([]float64, len(candles))
	for i, c := range candles {
		delta := c.Volume
		if c.Close < c.Open {
			delta = -c.Volume
		}
		cvd += delta
		series[i] = cvd
	}

	trend := "flat"
	if lookback > 0 && len(series) > lookback {
		delta := series[len(series)-1] - series[len(series)-1-lookback]
		if delta > 0 {
			trend = "rising"
		} else if delta < 0 {
			trend = "falling"
		}
	}

	divergence := false
	if lookback > 0 && len(candles) > lookback {
		priceUp := candles[len(candles)-1].Close > candles[len(candles)-1-lookback].Close
		cvdUp := trend == "rising"
		divergence = priceUp != cvdUp && trend != "flat"
	}

	return CVDResult{Value: cvd, Trend: trend, Divergence: divergence}
}

// ADXResult reports trend strength (0..100), a coarse bucket and the
// dominant directional indicator.
type ADXResult struct {
	Value         float64
	TrendStrength string // "range" | "developing" | "strong"
	Direction     string // "up" | "down" | "flat"
}

// ADX computes the directional index (DX) of the latest bar from
// Wilder-smoothed +DI/-DI over period; the DX values are not averaged
// further into a smoothed ADX line.
func ADX(candles []candle.Candle, period int) ADXResult {
	if len(candles) < period*2+1 {
		return ADXResult{}
	}
	var plusDM, minusDM, tr []float64
	for i := 1; i < len(candles); i++ {
		up := candles[i].High - candles[i-1].High
		down := candles[i-1].Low - candles[i].Low
		pdm, mdm := 0.0, 0.0
		if up > down && up > 0 {
			pdm = up
		}
		if down > up && down > 0 {
			mdm = down
		}
		plusDM = append(plusDM, pdm)
		minusDM = append(minusDM, mdm)
		tr = append(tr, trueRange(candles[i], candles[i-1]))
	}

	smPlusDM := wilderSmooth(plusDM, period)
	smMinusDM := wilderSmooth(minusDM, period)
	smTR := wilderSmooth(tr, period)
	if smTR == 0 {
		return ADXResult{}
	}

	plusDI := 100 * smPlusDM / smTR
	minusDI := 100 * smMinusDM / smTR
	diSum := plusDI + minusDI
	dx := 0.0
	if diSum != 0 {
		dx = 100 * math.Abs(plusDI-minusDI) / diSum
	}

	strength := "range"
	if dx >= 25 {
		strength = "strong"
	} else if dx >= 18 {
		strength = "developing"
	}

	direction := "flat"
	if plusDI > minusDI {
		direction = "up"
	} else if minusDI > plusDI {
		direction = "down"
	}

	return ADXResult{Value: dx, TrendStrength: strength, Direction: direction}
}

func wilderSmooth(series []float64, period int) float64 {
	if len(series) < period {
		return 0
	}
	sum := 0.0
	for _, v := range series[:period] {
		sum += v
	}
	smoothed := sum
	for i := period; i < len(series); i++ {
		smoothed = smoothed - smoothed/float64(period) + series[i]
	}
	return smoothed / float64(period)
}

func trueRange(c, prev candle.Candle) float64 {
	return math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prev.Close), math.Abs(c.Low-prev.Close)))
}

// ATRResult holds the raw ATR, its percent-of-price reading and a coarse
// volatility classification used by the grader's low-volatility filter.
type ATRResult struct {
	Value      float64
	Percent    float64
	Volatility string // "low" | "normal" | "high"
}

// ATR computes a Wilder average true range over period.
func ATR(candles []candle.Candle, period int) ATRResult {
	if len(candles) < period+1 {
		return ATRResult{}
	}
	trs := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		trs = append(trs, trueRange(candles[i], candles[i-1]))
	}
	atr := wilderSmooth(trs, period)
	price := candles[len(candles)-1].Close
	pct := 0.0
	if price != 0 {
		pct = atr / price * 100
	}
	vol := "normal"
	if pct < 0.5 {
		vol = "low"
	} else if pct > 2.5 {
		vol = "high"
	}
	return ATRResult{Value: atr, Percent: pct, Volatility: vol}
}

// Momentum returns the rate-of-change over period bars, in percent.
func Momentum(closes []float64, period int) float64 {
	if len(closes) <= period {
		return 0
	}
	prev := closes[len(closes)-1-period]
	if prev == 0 {
		return 0
	}
	return (closes[len(closes)-1] - prev) / prev * 100
}

// OBVResult reports the on-balance volume trend and a price/OBV divergence
// flag, mirroring CVD's shape but driven by the classic OBV accumulation
// rule (all-or-nothing volume added/subtracted on the bar's direction).
type OBVResult struct {
	Value      float64
	Divergence bool
}

// OBV computes on-balance volume over the window and flags divergence
// against price over the trailing lookback bars.
func OBV(candles []candle.Candle, lookback int) OBVResult {
	if len(candles) == 0 {
		return OBVResult{}
	}
	obv := 0.0
	series := make([]float64, len(candles))
	for i, c := range candles {
		if i > 0 {
			switch {
			case c.Close > candles[i-1].Close:
				obv += c.Volume
			case c.Close < candles[i-1].Close:
				obv -= c.Volume
			}
		}
		series[i] = obv
	}
	divergence := false
	if lookback > 0 && len(candles) > lookback {
		priceUp := candles[len(candles)-1].Close > candles[len(candles)-1-lookback].Close
		obvUp := series[len(series)-1] > series[len(series)-1-lookback]
		divergence = priceUp != obvUp
	}
	return OBVResult{Value: obv, Divergence: divergence}
}

func closesOf(candles []candle.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}
