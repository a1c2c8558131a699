package strategy

import (
	"github.com/hyperdesk/perpcore/internal/candle"
	"github.com/hyperdesk/perpcore/internal/smc"
)

// SMCStrategy scores break-of-structure, order-block and liquidity-sweep
// confluence and filters on RSI band (25..75) plus an optional session
// filter, per the spec's SMC variant.
type SMCStrategy struct{}

func (SMCStrategy) Name() string { return "smc" }

func (s SMCStrategy) Analyze(symbol string, tf candle.Timeframe, ctx Context) (RawSignal, bool) {
	bundle := smc.Analyze(ctx.Candles, smc.DefaultParams())

	bosDir := bundle.LatestStructureDirection()
	if bosDir == "" {
		return RawSignal{}, false
	}

	var dir Direction
	if bosDir == smc.DirectionLong {
		dir = DirectionLong
	} else {
		dir = DirectionShort
	}

	if ctx.Bundle.RSI < 25 || ctx.Bundle.RSI > 75 {
		return RawSignal{}, false
	}

	if ctx.EnableSessionFilter && bundle.Session == smc.SessionAsia {
		return RawSignal{}, false
	}

	score := 0
	smcDir := smc.DirectionLong
	if dir == DirectionShort {
		smcDir = smc.DirectionShort
	}

	score += 2 // a confirmed BOS in this direction is the base signal

	blocks := bundle.UnmitigatedOrderBlocks(smcDir)
	if len(blocks) > 0 {
		score += 2
	}

	for _, sweep := range bundle.LiquiditySweeps {
		if sweep.Direction == smcDir {
			score++
			break
		}
	}

	for _, fvg := range bundle.FVGs {
		wantBullish := dir == DirectionLong
		if !fvg.Filled && ((wantBullish && fvg.Type == smc.BullishFVG) || (!wantBullish && fvg.Type == smc.BearishFVG)) {
			score++
			break
		}
	}

	if (dir == DirectionLong && bundle.Zone == smc.ZoneDiscount) || (dir == DirectionShort && bundle.Zone == smc.ZonePremium) {
		score++
	}

	if score > 7 {
		score = 7
	}
	if score < ctx.Preset.MinScore {
		return RawSignal{}, false
	}

	price := ctx.Candles[len(ctx.Candles)-1].Close
	confluence := secondaryConfluence(ctx.Bundle, dir)

	var slCandidates, tpCandidates []PriceCandidate
	if len(blocks) > 0 {
		ob := blocks[len(blocks)-1]
		if dir == DirectionLong {
			slCandidates = append(slCandidates, PriceCandidate{Price: ob.Bottom, Source: "order_block"})
		} else {
			slCandidates = append(slCandidates, PriceCandidate{Price: ob.Top, Source: "order_block"})
		}
	}
	slCandidates = append(slCandidates,
		PriceCandidate{Price: ctx.Bundle.EMA200, Source: "ema200"},
		PriceCandidate{Price: ctx.Bundle.Bollinger.Lower, Source: "bollinger"},
	)
	tpCandidates = append(tpCandidates,
		PriceCandidate{Price: ctx.Bundle.Bollinger.Upper, Source: "bollinger"},
		PriceCandidate{Price: ctx.Bundle.Bollinger.Lower, Source: "bollinger"},
	)

	return RawSignal{
		Symbol: symbol, Timeframe: tf, Strategy: s.Name(),
		Direction: dir, AbsScore: score, Confluence: confluence,
		Price:        price,
		SLCandidates: clampCandidates(price, slCandidates, 0.3, 8.0),
		TPCandidates: clampCandidates(price, tpCandidates, 0.3, 8.0),
		LowLiquidity: len(bundle.OrderBlocks) == 0 && len(bundle.FVGs) == 0,
	}, true
}
