// Package candle holds the OHLCV data model shared by every analysis
// component: indicators, strategies, the grader and the price fetcher all
// consume []Candle windows rather than talking to an exchange directly.
package candle

import "fmt"

// Candle is one OHLCV bar. TimestampMs is the bar's open time in Unix millis.
type Candle struct {
	TimestampMs int64
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
}

// Window is a slice of candles with helpers for checking the data-model
// invariant. Most analysis code takes a plain []Candle; Validate is not
// called by PriceFetcher or any other ingestion path.
type Window []Candle

// Validate checks the data-model invariant from the spec: low <= open,close
// <= high and strictly increasing timestamps. It returns an error naming the
// index of the first violation, or nil if the window is valid.
func (w Window) Validate() error {
	for i, c := range w {
		if c.Low > c.Open || c.Low > c.Close || c.Open > c.High || c.Close > c.High {
			return fmt.Errorf("candle[%d] violates low<=open,close<=high: %+v", i, c)
		}
		if i > 0 && c.TimestampMs <= w[i-1].TimestampMs {
			return fmt.Errorf("candle[%d] timestamp %d does not strictly increase over %d", i, c.TimestampMs, w[i-1].TimestampMs)
		}
	}
	return nil
}

// Last returns the most recent n candles, or the whole window if it has
// fewer than n entries.
func (w Window) Last(n int) Window {
	if n <= 0 || n >= len(w) {
		return w
	}
	return w[len(w)-n:]
}

// Closes extracts the close series, the input most indicator math wants.
func (w Window) Closes() []float64 {
	out := make([]float64, len(w))
	for i, c := range w {
		out[i] = c.Close
	}
	return out
}

// LatestClose returns the close of the last candle, or 0 for an empty window.
func (w Window) LatestClose() float64 {
	if len(w) == 0 {
		return 0
	}
	return w[len(w)-1].Close
}
