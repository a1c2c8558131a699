// Package grader implements SignalGrader (spec §4.5): a pure function that
// turns a strategy's RawSignal into a GradedSignal by running the
// ordered filter chain, scoring quality and estimating win probability.
// Weighted-scoring style grounded on internal/confluence/scorer.go's
// CalculateConfluence (weighted total -> grade/confidence bands),
// generalized from its fixed five-factor weights to the spec's band
// thresholds and win-probability formula.
package grader

import (
	"github.com/hyperdesk/perpcore/internal/candle"
	"github.com/hyperdesk/perpcore/internal/indicators"
	"github.com/hyperdesk/perpcore/internal/strategy"
)

// Letter is the A-F quality band assigned to a graded signal.
type Letter string

const (
	GradeA Letter = "A"
	GradeB Letter = "B"
	GradeC Letter = "C"
	GradeD Letter = "D"
	GradeF Letter = "F" // tradeable=false
)

// FundingRate is the optional funding-rate bias input; nil means "not
// available, do not apply a bonus."
type FundingRate struct {
	Rate float64 // positive = longs pay shorts (bearish bias), negative = bullish bias
}

// GradedSignal is RawSignal plus the grader's verdict.
type GradedSignal struct {
	strategy.RawSignal

	Grade          Letter
	QualityScore   float64 // 0..100
	WinProbability float64 // 0..1
	Tradeable      bool
	RejectReason   string

	ChosenSL       float64
	ChosenSLSource string
	ChosenTP       float64
	ChosenTPSource string
	RRR            float64
}

// Grade runs the full filter chain (first failure sets RejectReason),
// selects SL/TP candidates, computes quality score and win probability.
func Grade(raw strategy.RawSignal, bundle indicators.Bundle, preset candle.TimeframePreset, funding *FundingRate, mtfBonus float64) GradedSignal {
	g := GradedSignal{RawSignal: raw}

	if reject := runFilters(raw, bundle, preset); reject != "" {
		g.Tradeable = false
		g.RejectReason = reject
		g.Grade = GradeF
		return g
	}

	sl, slSource, ok := pickCandidate(raw.SLCandidates)
	if !ok {
		g.Tradeable = false
		g.RejectReason = "no valid SL candidate within distance bounds"
		g.Grade = GradeF
		return g
	}
	tp, tpSource, ok := pickCandidate(raw.TPCandidates)
	if !ok {
		g.Tradeable = false
		g.RejectReason = "no valid TP candidate within distance bounds"
		g.Grade = GradeF
		return g
	}

	rrr := rewardRiskRatio(raw.Direction, raw.Price, sl, tp)
	if preset.MinRRR > 0 && rrr < preset.MinRRR {
		g.Tradeable = false
		g.RejectReason = "RRR below preset minimum"
		g.Grade = GradeF
		return g
	}

	g.ChosenSL, g.ChosenSLSource = sl, slSource
	g.ChosenTP, g.ChosenTPSource = tp, tpSource
	g.RRR = rrr

	g.QualityScore = qualityScore(raw.AbsScore, raw.Confluence, 0)
	g.WinProbability = winProbability(raw.AbsScore, g.QualityScore, raw.Direction, funding, mtfBonus)
	g.QualityScore = qualityScore(raw.AbsScore, raw.Confluence, g.WinProbability)

	if g.WinProbability < preset.MinWinProbability {
		g.Tradeable = false
		g.RejectReason = "win probability below preset minimum"
		g.Grade = GradeF
		return g
	}

	g.Grade = gradeFromQuality(g.QualityScore)
	g.Tradeable = true
	return g
}

func runFilters(raw strategy.RawSignal, bundle indicators.Bundle, preset candle.TimeframePreset) string {
	if raw.Direction != strategy.DirectionLong && raw.Direction != strategy.DirectionShort {
		return "no direction"
	}
	if raw.AbsScore < preset.MinScore {
		return "absScore below preset minimum"
	}

	minConfluence := preset.MinConfluence
	if raw.AbsScore >= 7 {
		minConfluence--
	}
	if raw.Confluence < minConfluence {
		return "confluence below preset minimum"
	}

	if raw.Direction == strategy.DirectionLong {
		if bundle.RSI > preset.RSILongMax {
			return "RSI above long-side maximum"
		}
	} else {
		if bundle.RSI < 20 || bundle.RSI > 85 {
			return "RSI outside short-side band"
		}
	}

	if bundle.ADX.Value != 0 && bundle.ADX.Value < preset.ADXMin {
		return "ADX below preset minimum"
	}

	if raw.Fakeout {
		return "fakeout flag set"
	}
	if raw.LowLiquidity {
		return "insufficient liquidity"
	}

	if bundle.ATR.Volatility == "low" && raw.AbsScore < 5 {
		return "volatility too low for this conviction level"
	}

	return ""
}

func pickCandidate(candidates []strategy.PriceCandidate) (float64, string, bool) {
	if len(candidates) == 0 {
		return 0, "", false
	}
	return candidates[0].Price, candidates[0].Source, true
}

func rewardRiskRatio(dir strategy.Direction, entry, sl, tp float64) float64 {
	var risk, reward float64
	if dir == strategy.DirectionLong {
		risk = entry - sl
		reward = tp - entry
	} else {
		risk = sl - entry
		reward = entry - tp
	}
	if risk <= 0 {
		return 0
	}
	return reward / risk
}

// qualityScore blends absScore/confluence/winProb bands into a 0..100 score.
// Called once before winProbability is known (winProb=0, contributing
// nothing) and again after, matching the spec's two-phase dependency
// (quality feeds the win-probability bonus, win-probability feeds the final
// quality score).
func qualityScore(absScore, confluence int, winProb float64) float64 {
	score := 0.0

	switch {
	case absScore >= 6:
		score += 40
	case absScore >= 5:
		score += 32
	case absScore >= 4:
		score += 24
	case absScore >= 3:
		score += 16
	default:
		score += 8
	}

	switch {
	case confluence >= 5:
		score += 35
	case confluence >= 4:
		score += 28
	case confluence >= 3:
		score += 20
	case confluence >= 2:
		score += 12
	default:
		score += 5
	}

	switch {
	case winProb >= 0.80:
		score += 25
	case winProb >= 0.70:
		score += 18
	case winProb >= 0.60:
		score += 10
	default:
		score += 0
	}

	if score > 100 {
		score = 100
	}
	return score
}

func gradeFromQuality(q float64) Letter {
	switch {
	case q >= 60:
		return GradeA
	case q >= 40:
		return GradeB
	case q >= 20:
		return GradeC
	default:
		return GradeD
	}
}

// winProbability implements the spec §4.5 formula: p = min(0.92,
// base+conf+qbon+sbon+fund), plus the multi-timeframe consensus bonus
// supplementing the base formula (a second independent timeframe agreeing
// on direction raises confidence beyond what a single timeframe's indicators
// can show).
func winProbability(absScore int, qualityScore float64, dir strategy.Direction, funding *FundingRate, mtfBonus float64) float64 {
	base := baseFromScore(absScore)
	conf := confBonus(qualityScore)
	qbon := qualityBonus(qualityScore)
	sbon := scoreBonus(absScore)

	fund := 0.0
	if funding != nil {
		// A negative rate favours longs and a positive rate favours shorts.
		bias := funding.Rate
		if dir == strategy.DirectionLong {
			bias = -bias
		}
		fund = bias * 0.025
		if fund > 0.05 {
			fund = 0.05
		}
		if fund < -0.025 {
			fund = -0.025
		}
	}

	if mtfBonus > 0.05 {
		mtfBonus = 0.05
	}
	if mtfBonus < 0 {
		mtfBonus = 0
	}

	p := base + conf + qbon + sbon + fund + mtfBonus
	if p > 0.92 {
		p = 0.92
	}
	if p < 0 {
		p = 0
	}
	return p
}

// baseFromScore maps absScore (0..7) monotonically onto 0.50..0.78.
func baseFromScore(absScore int) float64 {
	if absScore < 0 {
		absScore = 0
	}
	if absScore > 7 {
		absScore = 7
	}
	return 0.50 + float64(absScore)/7.0*0.28
}

// confBonus uses qualityScore as a stand-in for "confidence" (the
// confluence-band component already folded into it), monotone +0.04..+0.12.
func confBonus(qualityScore float64) float64 {
	switch {
	case qualityScore >= 80:
		return 0.12
	case qualityScore >= 60:
		return 0.09
	case qualityScore >= 40:
		return 0.06
	default:
		return 0.04
	}
}

// qualityBonus is grade+qualityScore driven, 0..+0.15.
func qualityBonus(qualityScore float64) float64 {
	switch {
	case qualityScore >= 85:
		return 0.15
	case qualityScore >= 70:
		return 0.10
	case qualityScore >= 50:
		return 0.05
	default:
		return 0
	}
}

// scoreBonus rewards very high-conviction absScore readings, 0..+0.06.
func scoreBonus(absScore int) float64 {
	switch {
	case absScore >= 7:
		return 0.06
	case absScore >= 6:
		return 0.03
	default:
		return 0
	}
}
