package smc

import (
	"testing"

	"github.com/hyperdesk/perpcore/internal/candle"
)

func c(ts int64, o, h, l, cl float64) candle.Candle {
	return candle.Candle{TimestampMs: ts, Open: o, High: h, Low: l, Close: cl, Volume: 10}
}

func TestDetectFVGsBullishGap(t *testing.T) {
	candles := []candle.Candle{
		c(1000, 100, 101, 99, 100),
		c(2000, 100, 110, 100, 109), // displacement creator
		c(3000, 109, 112, 105, 110), // c3.Low (105) > c1.High (101): gap
	}
	fvgs := DetectFVGs(candles, 0.1)
	if len(fvgs) != 1 || fvgs[0].Type != BullishFVG {
		t.Fatalf("expected one bullish FVG, got %+v", fvgs)
	}
}

func TestDetectOrderBlocksTagsDisplacementDirection(t *testing.T) {
	candles := []candle.Candle{
		c(1000, 100, 101, 98, 99), // bearish base candle
		c(2000, 99, 115, 99, 114), // strong bullish displacement
		c(3000, 114, 116, 113, 115),
	}
	blocks := DetectOrderBlocks(candles, 1.0)
	if len(blocks) != 1 || blocks[0].Direction != DirectionLong {
		t.Fatalf("expected a long order block at the bearish base candle, got %+v", blocks)
	}
}

func TestDetectBOSOnBreakout(t *testing.T) {
	candles := make([]candle.Candle, 25)
	price := 100.0
	for i := 0; i < 24; i++ {
		candles[i] = c(int64(i+1)*1000, price, price+0.5, price-0.5, price)
	}
	candles[24] = c(25000, 100, 120, 100, 119) // breaks above the range
	events := DetectBOS(candles, 20)
	if len(events) == 0 || events[len(events)-1].Direction != DirectionLong {
		t.Fatalf("expected a long BOS event on the breakout bar, got %+v", events)
	}
}

func TestDetectLiquiditySweepReversal(t *testing.T) {
	candles := make([]candle.Candle, 22)
	price := 100.0
	for i := 0; i < 21; i++ {
		candles[i] = c(int64(i+1)*1000, price, price+0.5, price-0.5, price)
	}
	// Wick below the range low but close back above it.
	candles[21] = c(22000, 100, 100.5, 95, 100.2)
	sweeps := DetectLiquiditySweeps(candles, 20)
	if len(sweeps) == 0 || sweeps[0].Direction != DirectionLong {
		t.Fatalf("expected a long liquidity sweep, got %+v", sweeps)
	}
}

func TestPremiumDiscountZoneClassification(t *testing.T) {
	candles := make([]candle.Candle, 50)
	for i := 0; i < 49; i++ {
		candles[i] = c(int64(i+1)*1000, 100, 110, 90, 100)
	}
	candles[49] = c(50000, 100, 109, 99, 108) // close near the top of the range
	if zone := PremiumDiscountZone(candles, 50); zone != ZonePremium {
		t.Errorf("expected premium zone near the top of the range, got %s", zone)
	}
}

func TestSessionTagBuckets(t *testing.T) {
	if SessionTag(3) != SessionAsia {
		t.Error("hour 3 UTC should tag as Asia session")
	}
	if SessionTag(10) != SessionLondon {
		t.Error("hour 10 UTC should tag as London session")
	}
	if SessionTag(18) != SessionNewYork {
		t.Error("hour 18 UTC should tag as New York session")
	}
}
