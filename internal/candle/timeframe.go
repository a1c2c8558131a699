package candle

import (
	"encoding/json"
	"fmt"
	"time"
)

// Timeframe is one of the venue's supported candle intervals.
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF30m Timeframe = "30m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
	TF1d  Timeframe = "1d"
)

// AllTimeframes lists every supported timeframe in ascending order.
var AllTimeframes = []Timeframe{TF1m, TF5m, TF15m, TF30m, TF1h, TF4h, TF1d}

// Duration returns the canonical millisecond duration of the timeframe.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case TF1m:
		return time.Minute
	case TF5m:
		return 5 * time.Minute
	case TF15m:
		return 15 * time.Minute
	case TF30m:
		return 30 * time.Minute
	case TF1h:
		return time.Hour
	case TF4h:
		return 4 * time.Hour
	case TF1d:
		return 24 * time.Hour
	default:
		return 0
	}
}

// Valid reports whether tf is one of the seven supported timeframes.
func (tf Timeframe) Valid() bool {
	return tf.Duration() > 0
}

// MarshalJSON / UnmarshalJSON let Timeframe round-trip through Postgres
// JSONB EngineConfig rows and Redis cache keys as a plain string.
func (tf Timeframe) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(tf))
}

func (tf *Timeframe) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed := Timeframe(s)
	if !parsed.Valid() {
		return fmt.Errorf("candle: unknown timeframe %q", s)
	}
	*tf = parsed
	return nil
}

// TimeframePreset holds the read-only, per-timeframe thresholds the grader
// and strategy engines compare signals against.
type TimeframePreset struct {
	MinScore           int
	MinWinProbability  float64
	MinConfluence      int
	RSILongMax         float64
	RSIShortMin        float64
	ADXMin             float64
	MinRRR             float64
	AnalysisIntervalMs int64
	DefaultTPPct       float64
	DefaultSLPct       float64
}

// defaultPresets are the canonical per-timeframe thresholds. Values scale
// with timeframe: shorter timeframes demand more confluence and tighter
// RSI/ADX bands since noise is higher; longer timeframes relax those but
// widen default TP/SL.
var defaultPresets = map[Timeframe]TimeframePreset{
	TF1m: {
		MinScore: 4, MinWinProbability: 0.70, MinConfluence: 4,
		RSILongMax: 65, RSIShortMin: 35, ADXMin: 20, MinRRR: 1.2,
		AnalysisIntervalMs: 15_000, DefaultTPPct: 0.5, DefaultSLPct: 0.25,
	},
	TF5m: {
		MinScore: 4, MinWinProbability: 0.68, MinConfluence: 3,
		RSILongMax: 68, RSIShortMin: 32, ADXMin: 18, MinRRR: 1.1,
		AnalysisIntervalMs: 30_000, DefaultTPPct: 1.0, DefaultSLPct: 0.5,
	},
	TF15m: {
		MinScore: 3, MinWinProbability: 0.65, MinConfluence: 2,
		RSILongMax: 70, RSIShortMin: 30, ADXMin: 15, MinRRR: 1.0,
		AnalysisIntervalMs: 60_000, DefaultTPPct: 2.0, DefaultSLPct: 1.0,
	},
	TF30m: {
		MinScore: 3, MinWinProbability: 0.63, MinConfluence: 2,
		RSILongMax: 72, RSIShortMin: 28, ADXMin: 14, MinRRR: 1.0,
		AnalysisIntervalMs: 120_000, DefaultTPPct: 2.5, DefaultSLPct: 1.25,
	},
	TF1h: {
		MinScore: 3, MinWinProbability: 0.62, MinConfluence: 2,
		RSILongMax: 72, RSIShortMin: 28, ADXMin: 14, MinRRR: 1.0,
		AnalysisIntervalMs: 300_000, DefaultTPPct: 3.0, DefaultSLPct: 1.5,
	},
	TF4h: {
		MinScore: 2, MinWinProbability: 0.60, MinConfluence: 2,
		RSILongMax: 75, RSIShortMin: 25, ADXMin: 12, MinRRR: 0.9,
		AnalysisIntervalMs: 900_000, DefaultTPPct: 5.0, DefaultSLPct: 2.5,
	},
	TF1d: {
		MinScore: 2, MinWinProbability: 0.58, MinConfluence: 2,
		RSILongMax: 78, RSIShortMin: 22, ADXMin: 10, MinRRR: 0.8,
		AnalysisIntervalMs: 3_600_000, DefaultTPPct: 8.0, DefaultSLPct: 4.0,
	},
}

// Preset returns the canonical preset for tf and whether it is known.
func Preset(tf Timeframe) (TimeframePreset, bool) {
	p, ok := defaultPresets[tf]
	return p, ok
}
