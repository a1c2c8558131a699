package strategy

import (
	"testing"

	"github.com/hyperdesk/perpcore/internal/candle"
	"github.com/hyperdesk/perpcore/internal/indicators"
)

func risingCandles(n int) []candle.Candle {
	out := make([]candle.Candle, n)
	price := 100.0
	for i := 0; i < n; i++ {
		out[i] = candle.Candle{
			TimestampMs: int64((i + 1) * 60000),
			Open:        price, High: price + 1, Low: price - 0.5, Close: price + 0.8,
			Volume: 100,
		}
		price += 0.8
	}
	return out
}

func testPreset() candle.TimeframePreset {
	p, _ := candle.Preset(candle.TF15m)
	return p
}

func TestForNameResolvesKnownStrategies(t *testing.T) {
	for _, name := range []string{"ichimoku", "smc", "bollinger"} {
		if _, ok := ForName(name); !ok {
			t.Errorf("expected %q to resolve to a strategy", name)
		}
	}
	if _, ok := ForName("unknown"); ok {
		t.Error("expected an unrecognised strategy name to fail resolution")
	}
}

func TestIchimokuStrategyEmitsLongOnRisingMarket(t *testing.T) {
	candles := risingCandles(120)
	bundle := indicators.AnalyzeAll(candles, indicators.DefaultParams())
	ctx := Context{Candles: candles, Bundle: bundle, Preset: testPreset()}

	sig, ok := IchimokuStrategy{}.Analyze("BTCUSDT", candle.TF15m, ctx)
	if !ok {
		t.Fatal("expected a signal on a clearly trending rising market")
	}
	if sig.Direction != DirectionLong {
		t.Errorf("expected long direction, got %s", sig.Direction)
	}
	if sig.AbsScore < testPreset().MinScore {
		t.Errorf("AbsScore %d should clear MinScore %d", sig.AbsScore, testPreset().MinScore)
	}
}

func TestIchimokuStrategyRequiresFullHistory(t *testing.T) {
	candles := risingCandles(40)
	bundle := indicators.AnalyzeAll(candles, indicators.DefaultParams())
	ctx := Context{Candles: candles, Bundle: bundle, Preset: testPreset()}
	if _, ok := (IchimokuStrategy{}).Analyze("BTCUSDT", candle.TF15m, ctx); ok {
		t.Error("expected no signal with insufficient history for SenkouB")
	}
}

func TestBollingerSqueezeNoSignalOnFlatSeries(t *testing.T) {
	flat := make([]candle.Candle, 30)
	for i := range flat {
		flat[i] = candle.Candle{TimestampMs: int64((i + 1) * 60000), Open: 100, High: 100.1, Low: 99.9, Close: 100, Volume: 10}
	}
	bundle := indicators.AnalyzeAll(flat, indicators.DefaultParams())
	ctx := Context{Candles: flat, Bundle: bundle, Preset: testPreset()}
	if _, ok := (BollingerSqueezeStrategy{}).Analyze("BTCUSDT", candle.TF15m, ctx); ok {
		t.Error("a flat, non-breaking-out series should not emit a signal")
	}
}

func TestSMCStrategyRejectsOutOfBandRSI(t *testing.T) {
	candles := risingCandles(60)
	bundle := indicators.AnalyzeAll(candles, indicators.DefaultParams())
	bundle.RSI = 90 // force out of the 25..75 band
	ctx := Context{Candles: candles, Bundle: bundle, Preset: testPreset()}
	if _, ok := (SMCStrategy{}).Analyze("BTCUSDT", candle.TF15m, ctx); ok {
		t.Error("expected SMC strategy to reject when RSI is outside the 25..75 band")
	}
}
