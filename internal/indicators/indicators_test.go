package indicators

import (
	"testing"

	"github.com/hyperdesk/perpcore/internal/candle"
)

func makeTrendingCandles(n int, start, step float64) []candle.Candle {
	out := make([]candle.Candle, n)
	price := start
	for i := 0; i < n; i++ {
		open := price
		close := price + step
		high := close + 0.5
		low := open - 0.5
		if step < 0 {
			high = open + 0.5
			low = close - 0.5
		}
		out[i] = candle.Candle{
			TimestampMs: int64((i + 1) * 60000),
			Open:        open, High: high, Low: low, Close: close,
			Volume: 100 + float64(i),
		}
		price = close
	}
	return out
}

func TestRSIBounds(t *testing.T) {
	up := makeTrendingCandles(30, 100, 1)
	closes := closesOf(up)
	rsi := RSI(closes, 14)
	if rsi < 50 {
		t.Errorf("RSI of a steadily rising series should be above 50, got %f", rsi)
	}

	down := makeTrendingCandles(30, 100, -1)
	rsiDown := RSI(closesOf(down), 14)
	if rsiDown > 50 {
		t.Errorf("RSI of a steadily falling series should be below 50, got %f", rsiDown)
	}
}

func TestRSIShortWindowReturnsNeutral(t *testing.T) {
	closes := []float64{100, 101, 102}
	if rsi := RSI(closes, 14); rsi != 50 {
		t.Errorf("expected neutral 50 for an undersized window, got %f", rsi)
	}
}

func TestMACDSignalIsSmoothedNotRatio(t *testing.T) {
	candles := makeTrendingCandles(60, 100, 0.8)
	result := MACD(closesOf(candles), 12, 26, 9)
	if result.Signal == result.MACD*0.8 {
		t.Error("signal line must be an EMA of the MACD series, not a fixed 0.8 ratio of the latest MACD value")
	}
}

func TestBollingerSqueezeFlagsNarrowBands(t *testing.T) {
	flat := make([]float64, 25)
	for i := range flat {
		flat[i] = 100
	}
	result := Bollinger(flat, 20, 2.0, 0.05)
	if !result.Squeeze {
		t.Error("a perfectly flat series should have zero width and flag a squeeze")
	}
}

func TestVolumeSpikeDetection(t *testing.T) {
	candles := makeTrendingCandles(25, 100, 1)
	candles[len(candles)-1].Volume = candles[len(candles)-2].Volume * 5
	result := Volume(candles, 20, 1.5)
	if !result.Spike {
		t.Errorf("a 5x volume bar should be flagged as a spike, ratio=%f", result.Ratio)
	}
}

func TestADXDetectsStrongTrend(t *testing.T) {
	candles := makeTrendingCandles(60, 100, 2)
	result := ADX(candles, 14)
	if result.Direction != "up" {
		t.Errorf("expected up direction on a steadily rising series, got %s", result.Direction)
	}
}

func TestATRPercentClassifiesVolatility(t *testing.T) {
	quiet := make([]candle.Candle, 20)
	price := 100.0
	for i := range quiet {
		quiet[i] = candle.Candle{
			TimestampMs: int64((i + 1) * 60000),
			Open:        price, High: price + 0.05, Low: price - 0.05, Close: price,
			Volume: 100,
		}
	}
	result := ATR(quiet, 14)
	if result.Volatility != "low" {
		t.Errorf("a near-flat series should classify as low volatility, got %s (pct=%f)", result.Volatility, result.Percent)
	}
}

func TestOBVDivergence(t *testing.T) {
	candles := makeTrendingCandles(30, 100, 1)
	// Put a heavy-volume down close just before the last bar, then push price
	// to a new high on the last bar with almost no volume, so OBV over the
	// lookback falls while price rises.
	last := len(candles) - 1
	candles[last-1].Close = candles[last-2].Close - 0.5
	candles[last-1].Volume = 10000
	candles[last].Volume = 0.001
	result := OBV(candles, 10)
	if !result.Divergence {
		t.Error("expected a price/OBV divergence when the breakout bar carries no volume")
	}
}

func TestAnalyzeAllProducesFullBundle(t *testing.T) {
	candles := makeTrendingCandles(250, 100, 0.3)
	bundle := AnalyzeAll(candles, DefaultParams())
	if bundle.EMA200 == 0 {
		t.Error("expected EMA200 to be populated with 250 bars of history")
	}
	if bundle.ADX.Value == 0 {
		t.Error("expected a non-zero ADX reading on a trending series")
	}
}
