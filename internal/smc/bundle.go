package smc

import (
	"time"

	"github.com/hyperdesk/perpcore/internal/candle"
)

// Bundle is the full SMC read the strategy scores against.
type Bundle struct {
	OrderBlocks     []OrderBlock
	FVGs            []FVG
	Structure       []StructureEvent
	LiquiditySweeps []LiquiditySweep
	Zone            Zone
	Session         Session
}

// Params tunes the primitive detectors; defaults suit a 15m-1h chart.
type Params struct {
	MinGapPercent      float64
	DisplacementPct    float64
	StructureLookback  int
	SweepLookback      int
	ZoneLookback       int
}

func DefaultParams() Params {
	return Params{
		MinGapPercent: 0.1, DisplacementPct: 0.8,
		StructureLookback: 20, SweepLookback: 20, ZoneLookback: 50,
	}
}

// Analyze runs every SMC primitive detector over candles and tags the
// latest bar's session from its timestamp.
func Analyze(candles []candle.Candle, p Params) Bundle {
	var sess Session
	if len(candles) > 0 {
		ts := time.UnixMilli(candles[len(candles)-1].TimestampMs).UTC()
		sess = SessionTag(ts.Hour())
	}
	return Bundle{
		OrderBlocks:     DetectOrderBlocks(candles, p.DisplacementPct),
		FVGs:            DetectFVGs(candles, p.MinGapPercent),
		Structure:       DetectBOS(candles, p.StructureLookback),
		LiquiditySweeps: DetectLiquiditySweeps(candles, p.SweepLookback),
		Zone:            PremiumDiscountZone(candles, p.ZoneLookback),
		Session:         sess,
	}
}

// LatestStructureDirection returns the direction of the most recent
// break-of-structure event, or "" if none was detected.
func (b Bundle) LatestStructureDirection() Direction {
	if len(b.Structure) == 0 {
		return ""
	}
	return b.Structure[len(b.Structure)-1].Direction
}

// UnmitigatedOrderBlocks filters to blocks price has not yet traded back
// into, the ones still actionable as an entry zone.
func (b Bundle) UnmitigatedOrderBlocks(dir Direction) []OrderBlock {
	var out []OrderBlock
	for _, ob := range b.OrderBlocks {
		if !ob.Mitigated && ob.Direction == dir {
			out = append(out, ob)
		}
	}
	return out
}
