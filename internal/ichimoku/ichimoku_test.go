package ichimoku

import (
	"testing"

	"github.com/hyperdesk/perpcore/internal/candle"
)

func risingCandles(n int) []candle.Candle {
	out := make([]candle.Candle, n)
	price := 100.0
	for i := 0; i < n; i++ {
		out[i] = candle.Candle{
			TimestampMs: int64((i + 1) * 60000),
			Open:        price, High: price + 1, Low: price - 0.5, Close: price + 0.8,
			Volume: 10,
		}
		price += 0.8
	}
	return out
}

func TestComputeRequiresFullHistory(t *testing.T) {
	short := risingCandles(30)
	lines := Compute(short, DefaultPeriods())
	if lines.CloudTop != 0 || lines.CloudBottom != 0 {
		t.Error("expected a zero-value Lines when history is shorter than SenkouB")
	}
}

func TestComputeOnRisingSeriesIsBullish(t *testing.T) {
	candles := risingCandles(120)
	lines := Compute(candles, DefaultPeriods())
	if !lines.Bullish {
		t.Error("a steadily rising series should produce a bullish cloud (SenkouA >= SenkouB)")
	}
	if lines.Tenkan <= lines.Kijun {
		t.Errorf("expected Tenkan above Kijun on a rising series, got tenkan=%f kijun=%f", lines.Tenkan, lines.Kijun)
	}
}

func TestScoreRangeBounds(t *testing.T) {
	candles := risingCandles(120)
	lines := Compute(candles, DefaultPeriods())
	price := candles[len(candles)-1].Close
	score := Score(lines, price)
	if score < -7 || score > 7 {
		t.Errorf("score must be within [-7,7], got %d", score)
	}
	if score <= 0 {
		t.Errorf("expected a positive score on a clearly bullish setup, got %d", score)
	}
}

func TestDetectPrimitivesSkipsCrossOnFirstBar(t *testing.T) {
	candles := risingCandles(120)
	curr := Compute(candles, DefaultPeriods())
	prims := DetectPrimitives(curr, Lines{}, candles[len(candles)-1].Close)
	for _, p := range prims {
		if p.Name == "tk_cross" || p.Name == "kumo_twist" {
			t.Errorf("should not detect %s without a previous bar's lines", p.Name)
		}
	}
}

func TestTKCrossDetectsBullishCross(t *testing.T) {
	prev := Lines{Tenkan: 99, Kijun: 100}
	curr := Lines{Tenkan: 101, Kijun: 100}
	prim := tkCross(curr, prev)
	if prim == nil || prim.Direction != DirectionLong {
		t.Error("expected a long tk_cross when Tenkan crosses above Kijun")
	}
}
