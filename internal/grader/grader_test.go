package grader

import (
	"testing"

	"github.com/hyperdesk/perpcore/internal/candle"
	"github.com/hyperdesk/perpcore/internal/indicators"
	"github.com/hyperdesk/perpcore/internal/strategy"
)

func basePreset() candle.TimeframePreset {
	p, _ := candle.Preset(candle.TF15m)
	return p
}

func happyPathSignal() (strategy.RawSignal, indicators.Bundle) {
	raw := strategy.RawSignal{
		Symbol: "BTCUSDT", Direction: strategy.DirectionLong,
		AbsScore: 5, Confluence: 3, Price: 100,
		SLCandidates: []strategy.PriceCandidate{{Price: 99, Source: "ichimoku"}},
		TPCandidates: []strategy.PriceCandidate{{Price: 102, Source: "ichimoku"}},
	}
	bundle := indicators.Bundle{
		RSI: 55,
		ADX: indicators.ADXResult{Value: 22, Direction: "up"},
		ATR: indicators.ATRResult{Volatility: "normal"},
	}
	return raw, bundle
}

func TestGradeHappyPathIsTradeable(t *testing.T) {
	raw, bundle := happyPathSignal()
	g := Grade(raw, bundle, basePreset(), nil, 0)
	if !g.Tradeable {
		t.Fatalf("expected a tradeable signal, got reject reason %q", g.RejectReason)
	}
	if g.Grade == GradeF {
		t.Error("a tradeable signal must not carry grade F")
	}
}

func TestGradeRejectsLowAbsScore(t *testing.T) {
	raw, bundle := happyPathSignal()
	raw.AbsScore = 1
	g := Grade(raw, bundle, basePreset(), nil, 0)
	if g.Tradeable {
		t.Error("expected rejection when absScore is below the preset minimum")
	}
	if g.RejectReason == "" {
		t.Error("expected a reject reason to be set")
	}
}

func TestGradeRejectsLongRSIAboveMax(t *testing.T) {
	raw, bundle := happyPathSignal()
	bundle.RSI = 95
	g := Grade(raw, bundle, basePreset(), nil, 0)
	if g.Tradeable {
		t.Error("expected rejection when RSI exceeds rsiLongMax for a long signal")
	}
}

func TestGradeIgnoresADXWhenZero(t *testing.T) {
	raw, bundle := happyPathSignal()
	bundle.ADX = indicators.ADXResult{Value: 0}
	g := Grade(raw, bundle, basePreset(), nil, 0)
	if !g.Tradeable {
		t.Errorf("ADX=0 should mean 'unavailable, skip filter', not a rejection; got reason %q", g.RejectReason)
	}
}

func TestGradeRejectsRRRBelowMinimum(t *testing.T) {
	raw, bundle := happyPathSignal()
	raw.TPCandidates = []strategy.PriceCandidate{{Price: 100.2, Source: "ichimoku"}}
	g := Grade(raw, bundle, basePreset(), nil, 0)
	if g.Tradeable {
		t.Error("expected rejection when RRR is below preset minimum")
	}
}

func TestWinProbabilityNeverExceedsCap(t *testing.T) {
	raw, bundle := happyPathSignal()
	raw.AbsScore = 7
	raw.Confluence = 5
	g := Grade(raw, bundle, basePreset(), &FundingRate{Rate: 2.0}, 0.05)
	if g.WinProbability > 0.92 {
		t.Errorf("win probability must be capped at 0.92, got %f", g.WinProbability)
	}
}

func TestConfluenceRelaxedAtVeryHighAbsScore(t *testing.T) {
	raw, bundle := happyPathSignal()
	raw.AbsScore = 7
	raw.Confluence = basePreset().MinConfluence - 1
	g := Grade(raw, bundle, basePreset(), nil, 0)
	if !g.Tradeable {
		t.Errorf("expected confluence requirement relaxed by 1 at absScore>=7, got reject reason %q", g.RejectReason)
	}
}
