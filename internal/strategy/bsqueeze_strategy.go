package strategy

import "github.com/hyperdesk/perpcore/internal/candle"

// BollingerSqueezeStrategy detects a Bollinger-inside-Keltner squeeze, its
// release, and breakout confirmation, mapping conviction onto the shared
// -7..+7 scale.
type BollingerSqueezeStrategy struct{}

func (BollingerSqueezeStrategy) Name() string { return "bollinger" }

func (s BollingerSqueezeStrategy) Analyze(symbol string, tf candle.Timeframe, ctx Context) (RawSignal, bool) {
	if len(ctx.Candles) < 2 {
		return RawSignal{}, false
	}
	bb := ctx.Bundle.Bollinger
	price := ctx.Candles[len(ctx.Candles)-1].Close

	squeezeActive := bb.Squeeze
	insideKeltner := bb.Upper <= ctx.Bundle.KeltnerUp && bb.Lower >= ctx.Bundle.KeltnerLo
	squeeze := squeezeActive && insideKeltner

	breakoutUp := price > bb.Upper && ctx.Bundle.Momentum > 0
	breakoutDown := price < bb.Lower && ctx.Bundle.Momentum < 0

	var dir Direction
	var score int
	switch {
	case squeeze && ctx.Bundle.Momentum > 0:
		dir, score = DirectionLong, 3 // squeeze still active: early/lower-conviction release read
	case squeeze && ctx.Bundle.Momentum < 0:
		dir, score = DirectionShort, 3
	case breakoutUp:
		dir, score = DirectionLong, 5
	case breakoutDown:
		dir, score = DirectionShort, 5
	default:
		return RawSignal{}, false
	}

	if bb.Position > 0.9 && dir == DirectionLong {
		score++
	}
	if bb.Position < 0.1 && dir == DirectionShort {
		score++
	}
	if score > 7 {
		score = 7
	}

	if score < ctx.Preset.MinScore {
		return RawSignal{}, false
	}

	confluence := secondaryConfluence(ctx.Bundle, dir)

	var slCandidates, tpCandidates []PriceCandidate
	if dir == DirectionLong {
		slCandidates = []PriceCandidate{
			{Price: bb.Mid, Source: "bollinger"},
			{Price: ctx.Bundle.EMA200, Source: "ema200"},
		}
		tpCandidates = []PriceCandidate{
			{Price: bb.Upper + (bb.Upper - bb.Mid), Source: "bollinger"},
		}
	} else {
		slCandidates = []PriceCandidate{
			{Price: bb.Mid, Source: "bollinger"},
			{Price: ctx.Bundle.EMA200, Source: "ema200"},
		}
		tpCandidates = []PriceCandidate{
			{Price: bb.Lower - (bb.Mid - bb.Lower), Source: "bollinger"},
		}
	}

	return RawSignal{
		Symbol: symbol, Timeframe: tf, Strategy: s.Name(),
		Direction: dir, AbsScore: score, Confluence: confluence,
		Price:        price,
		SLCandidates: clampCandidates(price, slCandidates, 0.3, 8.0),
		TPCandidates: clampCandidates(price, tpCandidates, 0.3, 8.0),
	}, true
}
