// Package testutil provides an in-memory marketdata.ExchangeClient stub for
// exercising the scenarios and invariants described alongside the spec
// (engineered candle windows, scripted positions, a controllable account
// balance) without a network dependency. Grounded on the teacher's
// testing style of hand-rolled fakes satisfying a narrow interface (see
// internal/orders/*_test.go's repository fakes) rather than a generated
// mock.
package testutil

import (
	"context"
	"sync"

	"github.com/hyperdesk/perpcore/internal/candle"
	"github.com/hyperdesk/perpcore/internal/marketdata"
)

// FakeExchange is a scriptable, in-memory ExchangeClient.
type FakeExchange struct {
	mu sync.Mutex

	CandlesBySymbol map[string][]candle.Candle
	Positions       []marketdata.RawPosition
	Balance         marketdata.AccountBalance
	Funding         map[string]marketdata.FundingRate
	Prices          map[string]float64

	Orders []marketdata.OrderRequest

	GetPositionsErr error
	GetCandlesErr   error
}

func NewFakeExchange() *FakeExchange {
	return &FakeExchange{
		CandlesBySymbol: make(map[string][]candle.Candle),
		Funding:         make(map[string]marketdata.FundingRate),
		Prices:          make(map[string]float64),
	}
}

func (f *FakeExchange) GetCandles(_ context.Context, symbol string, _ candle.Timeframe, _, _ int64) ([]candle.Candle, error) {
	if f.GetCandlesErr != nil {
		return nil, f.GetCandlesErr
	}
	return f.CandlesBySymbol[symbol], nil
}

func (f *FakeExchange) GetPrice(_ context.Context, symbol string) (float64, error) {
	return f.Prices[symbol], nil
}

func (f *FakeExchange) GetAllMids(context.Context) (map[string]float64, error) {
	return f.Prices, nil
}

func (f *FakeExchange) GetAccountBalance(context.Context, string) (marketdata.AccountBalance, error) {
	return f.Balance, nil
}

func (f *FakeExchange) GetPositions(context.Context, string) ([]marketdata.RawPosition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.GetPositionsErr != nil {
		return nil, f.GetPositionsErr
	}
	out := make([]marketdata.RawPosition, len(f.Positions))
	copy(out, f.Positions)
	return out, nil
}

func (f *FakeExchange) GetFundingRate(_ context.Context, symbol string) (marketdata.FundingRate, error) {
	return f.Funding[symbol], nil
}

func (f *FakeExchange) PlaceOrderWithTPSL(_ context.Context, req marketdata.OrderRequest) (marketdata.OrderAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Orders = append(f.Orders, req)
	dir := 1.0
	if !req.IsBuy {
		dir = -1.0
	}
	f.Positions = append(f.Positions, marketdata.RawPosition{Symbol: req.Symbol, Size: dir * req.Size, EntryPrice: req.Price})
	return marketdata.OrderAck{OrderID: "fake-" + req.Symbol}, nil
}

func (f *FakeExchange) ClosePosition(_ context.Context, symbol string) (marketdata.CloseAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.Positions[:0]
	for _, p := range f.Positions {
		if p.Symbol != symbol {
			kept = append(kept, p)
		}
	}
	f.Positions = kept
	return marketdata.CloseAck{OrderID: "close-" + symbol}, nil
}

// RemovePosition simulates the exchange reporting a position closed
// (TP/SL hit or manual), for PositionManager reconciliation tests.
func (f *FakeExchange) RemovePosition(symbol string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.Positions[:0]
	for _, p := range f.Positions {
		if p.Symbol != symbol {
			kept = append(kept, p)
		}
	}
	f.Positions = kept
}

// EngineeredTrendingCandles builds an n-candle ascending window (steady
// uptrend, low noise) of the shape S1 needs to drive Ichimoku's score to a
// strongly bullish reading.
func EngineeredTrendingCandles(n int, startPrice, stepPct float64) []candle.Candle {
	out := make([]candle.Candle, n)
	price := startPrice
	for i := 0; i < n; i++ {
		open := price
		close := price * (1 + stepPct/100)
		high := close * 1.002
		low := open * 0.998
		out[i] = candle.Candle{
			TimestampMs: int64(i) * candle.TF15m.Duration().Milliseconds(),
			Open:        open, High: high, Low: low, Close: close, Volume: 1000 + float64(i),
		}
		price = close
	}
	return out
}
