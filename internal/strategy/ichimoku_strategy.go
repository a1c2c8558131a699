package strategy

import (
	"github.com/hyperdesk/perpcore/internal/candle"
	"github.com/hyperdesk/perpcore/internal/ichimoku"
)

// IchimokuStrategy scores the five Ichimoku lines on the shared -7..+7
// scale and selects SL/TP from Ichimoku levels, falling back to EMA200 then
// Bollinger bands.
type IchimokuStrategy struct{}

func (IchimokuStrategy) Name() string { return "ichimoku" }

func (s IchimokuStrategy) Analyze(symbol string, tf candle.Timeframe, ctx Context) (RawSignal, bool) {
	periods := ichimoku.DefaultPeriods()
	if len(ctx.Candles) < periods.SenkouB+periods.Kijun {
		return RawSignal{}, false
	}

	curr := ichimoku.Compute(ctx.Candles, periods)
	if curr.CloudTop == 0 && curr.CloudBottom == 0 {
		return RawSignal{}, false
	}

	price := ctx.Candles[len(ctx.Candles)-1].Close
	score := ichimoku.Score(curr, price)

	var prev ichimoku.Lines
	if len(ctx.Candles) > periods.SenkouB+1 {
		prev = ichimoku.Compute(ctx.Candles[:len(ctx.Candles)-1], periods)
	}
	primitives := ichimoku.DetectPrimitives(curr, prev, price)
	fakeout := len(primitives) == 0 && absInt(score) < ctx.Preset.MinScore

	var dir Direction
	switch {
	case score >= ctx.Preset.MinScore:
		dir = DirectionLong
	case score <= -ctx.Preset.MinScore:
		dir = DirectionShort
	default:
		return RawSignal{}, false
	}

	confluence := secondaryConfluence(ctx.Bundle, dir)

	var slCandidates, tpCandidates []PriceCandidate
	if dir == DirectionLong {
		slCandidates = []PriceCandidate{
			{Price: curr.Kijun, Source: "ichimoku"},
			{Price: ctx.Bundle.EMA200, Source: "ema200"},
			{Price: ctx.Bundle.Bollinger.Lower, Source: "bollinger"},
		}
		tpCandidates = []PriceCandidate{
			{Price: curr.CloudTop + (price - curr.Kijun), Source: "ichimoku"},
			{Price: ctx.Bundle.Bollinger.Upper, Source: "bollinger"},
		}
	} else {
		slCandidates = []PriceCandidate{
			{Price: curr.Kijun, Source: "ichimoku"},
			{Price: ctx.Bundle.EMA200, Source: "ema200"},
			{Price: ctx.Bundle.Bollinger.Upper, Source: "bollinger"},
		}
		tpCandidates = []PriceCandidate{
			{Price: curr.CloudBottom - (curr.Kijun - price), Source: "ichimoku"},
			{Price: ctx.Bundle.Bollinger.Lower, Source: "bollinger"},
		}
	}

	return RawSignal{
		Symbol: symbol, Timeframe: tf, Strategy: s.Name(),
		Direction: dir, AbsScore: absInt(score), Confluence: confluence,
		Price:        price,
		SLCandidates: clampCandidates(price, slCandidates, 0.3, 8.0),
		TPCandidates: clampCandidates(price, tpCandidates, 0.3, 8.0),
		Fakeout:      fakeout,
	}, true
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
