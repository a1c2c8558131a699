package indicators

import "github.com/hyperdesk/perpcore/internal/candle"

// Bundle is the fixed set of indicator readings every strategy and the
// grader consume. AnalyzeAll is the only entry point that builds one; the
// strategy engines and grader never call the individual indicator
// functions (RSI, MACD, ...) directly.
type Bundle struct {
	RSI        float64
	StochRSI   float64
	MACD       MACDResult
	Bollinger  BollingerResult
	Volume     VolumeResult
	VWAP       VWAPResult
	CVD        CVDResult
	EMAFast    float64 // scalping EMA, short period
	EMASlow    float64 // scalping EMA, medium period
	EMA200     float64 // trend filter EMA
	ADX        ADXResult
	ATR        ATRResult
	Momentum   float64
	OBV        OBVResult
	KeltnerUp  float64
	KeltnerLo  float64
}

// Params lets callers override period lengths per timeframe. The zero value
// has every period at 0; DefaultParams holds the standard set.
type Params struct {
	RSIPeriod        int
	StochRSIPeriod   int
	MACDFast         int
	MACDSlow         int
	MACDSignal       int
	BollingerPeriod  int
	BollingerStdDev  float64
	SqueezeThreshold float64
	VolumeLookback   int
	VolumeSpikeRatio float64
	CVDLookback      int
	OBVLookback      int
	EMAFastPeriod    int
	EMASlowPeriod    int
	EMA200Period     int
	ADXPeriod        int
	ATRPeriod        int
	MomentumPeriod   int
	KeltnerEMA       int
	KeltnerATRMult   float64
}

// DefaultParams returns the standard period set used when a caller has no
// timeframe-specific override.
func DefaultParams() Params {
	return Params{
		RSIPeriod: 14, StochRSIPeriod: 14,
		MACDFast: 12, MACDSlow: 26, MACDSignal: 9,
		BollingerPeriod: 20, BollingerStdDev: 2.0, SqueezeThreshold: 0.05,
		VolumeLookback: 20, VolumeSpikeRatio: 1.5,
		CVDLookback: 20, OBVLookback: 20,
		EMAFastPeriod: 9, EMASlowPeriod: 21, EMA200Period: 200,
		ADXPeriod: 14, ATRPeriod: 14, MomentumPeriod: 10,
		KeltnerEMA: 20, KeltnerATRMult: 1.5,
	}
}

// AnalyzeAll computes every indicator IndicatorKit exposes over candles
// using params, skipping (zero-valuing) any indicator whose period exceeds
// the available window rather than erroring — callers that need a minimum
// history check the window length themselves before calling in.
func AnalyzeAll(candles []candle.Candle, params Params) Bundle {
	closes := closesOf(candles)

	up, lo := Keltner(candles, params.KeltnerEMA, params.ATRPeriod, params.KeltnerATRMult)

	return Bundle{
		RSI:       RSI(closes, params.RSIPeriod),
		StochRSI:  StochRSI(closes, params.RSIPeriod, params.StochRSIPeriod),
		MACD:      MACD(closes, params.MACDFast, params.MACDSlow, params.MACDSignal),
		Bollinger: Bollinger(closes, params.BollingerPeriod, params.BollingerStdDev, params.SqueezeThreshold),
		Volume:    Volume(candles, params.VolumeLookback, params.VolumeSpikeRatio),
		VWAP:      VWAP(candles),
		CVD:       CVD(candles, params.CVDLookback),
		EMAFast:   EMA(closes, params.EMAFastPeriod),
		EMASlow:   EMA(closes, params.EMASlowPeriod),
		EMA200:    EMA(closes, params.EMA200Period),
		ADX:       ADX(candles, params.ADXPeriod),
		ATR:       ATR(candles, params.ATRPeriod),
		Momentum:  Momentum(closes, params.MomentumPeriod),
		OBV:       OBV(candles, params.OBVLookback),
		KeltnerUp: up,
		KeltnerLo: lo,
	}
}
