package risk

import (
	"testing"

	"github.com/hyperdesk/perpcore/internal/strategy"
)

func TestCalculateSLTPAutoPrefersTechnical(t *testing.T) {
	ctx := SLTPContext{
		Mode: ModeAuto, TechnicalSL: 95, TechnicalTP: 110, TechnicalSLSrc: "ichimoku", TechnicalTPSrc: "ichimoku",
		DefaultSLPct: 1, DefaultTPPct: 2,
	}
	result := CalculateSLTP(100, strategy.DirectionLong, ctx, 1.0)
	if result.SL != 95 || result.SLSource != "ichimoku" {
		t.Errorf("expected auto mode to prefer the technical SL, got %+v", result)
	}
}

func TestCalculateSLTPAutoFallsBackToPercent(t *testing.T) {
	ctx := SLTPContext{Mode: ModeAuto, DefaultSLPct: 1, DefaultTPPct: 2}
	result := CalculateSLTP(100, strategy.DirectionLong, ctx, 1.0)
	if result.SL != 99 || result.TP != 102 {
		t.Errorf("expected percent fallback levels, got %+v", result)
	}
}

func TestCalculateSLTPATRMode(t *testing.T) {
	ctx := SLTPContext{Mode: ModeATR, ATRValue: 2, ATRMultSL: 1.5, ATRMultTP: 3}
	result := CalculateSLTP(100, strategy.DirectionShort, ctx, 1.0)
	if result.SL != 103 || result.TP != 94 {
		t.Errorf("expected ATR-derived short levels, got %+v", result)
	}
}

func TestCalculateSLTPMeetsMinRRR(t *testing.T) {
	ctx := SLTPContext{Mode: ModePercent, DefaultSLPct: 1, DefaultTPPct: 0.5}
	result := CalculateSLTP(100, strategy.DirectionLong, ctx, 1.0)
	if result.MeetsMinRRR {
		t.Error("a 1% risk for 0.5% reward should fail a minRRR of 1.0")
	}
}

func TestCalculatePositionSizeBoundedByLeverage(t *testing.T) {
	size := CalculatePositionSize(1000, 100, 99, 5, 50)
	maxSize := 1000.0 * 5 / 100
	if size > maxSize {
		t.Errorf("size %f should never exceed equity*leverage/entry (%f)", size, maxSize)
	}
}

func TestCalculatePositionSizeZeroOnTinyDistance(t *testing.T) {
	if size := CalculatePositionSize(1000, 100, 100, 5, 1); size != 0 {
		t.Errorf("expected zero size when SL distance is zero, got %f", size)
	}
}

func TestValidateTradeRejectsBadOrientation(t *testing.T) {
	if err := ValidateTrade(strategy.DirectionLong, 100, 101, 110, 1, 1.5, 1.0); err == nil {
		t.Error("expected an error when a long's SL sits above entry")
	}
}

func TestCanOpenPositionRejectsAtMaxPositions(t *testing.T) {
	c := NewCalculator(Config{RiskPerTradePct: 1, MaxDailyDrawdown: 5, MaxOpenPositions: 1})
	c.UpdateAccountBalance(1000)
	c.RegisterPositionOpen()
	if ok, _ := c.CanOpenPosition(); ok {
		t.Error("expected CanOpenPosition to reject once MaxOpenPositions is reached")
	}
}
