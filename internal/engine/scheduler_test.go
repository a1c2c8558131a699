package engine

import (
	"context"
	"testing"
	"time"

	"github.com/hyperdesk/perpcore/internal/candle"
	"github.com/hyperdesk/perpcore/internal/grader"
	"github.com/hyperdesk/perpcore/internal/marketdata"
	"github.com/hyperdesk/perpcore/internal/risk"
	"github.com/hyperdesk/perpcore/internal/strategy"
	"github.com/hyperdesk/perpcore/internal/tradegate"
	"github.com/rs/zerolog"
)

type stubExchange struct {
	candles []candle.Candle
	balance marketdata.AccountBalance
}

func (s *stubExchange) GetCandles(context.Context, string, candle.Timeframe, int64, int64) ([]candle.Candle, error) {
	return s.candles, nil
}
func (s *stubExchange) GetPrice(context.Context, string) (float64, error) { return 0, nil }
func (s *stubExchange) GetAllMids(context.Context) (map[string]float64, error) { return nil, nil }
func (s *stubExchange) GetAccountBalance(context.Context, string) (marketdata.AccountBalance, error) {
	return s.balance, nil
}
func (s *stubExchange) GetPositions(context.Context, string) ([]marketdata.RawPosition, error) {
	return nil, nil
}
func (s *stubExchange) GetFundingRate(context.Context, string) (marketdata.FundingRate, error) {
	return marketdata.FundingRate{}, nil
}
func (s *stubExchange) PlaceOrderWithTPSL(context.Context, marketdata.OrderRequest) (marketdata.OrderAck, error) {
	return marketdata.OrderAck{OrderID: "ord"}, nil
}
func (s *stubExchange) ClosePosition(context.Context, string) (marketdata.CloseAck, error) {
	return marketdata.CloseAck{}, nil
}

func risingCandles(n int) []candle.Candle {
	out := make([]candle.Candle, n)
	price := 100.0
	for i := 0; i < n; i++ {
		out[i] = candle.Candle{TimestampMs: int64(i) * 60000, Open: price, High: price + 1, Low: price - 1, Close: price + 0.8, Volume: 100}
		price += 0.8
	}
	return out
}

func TestRunCycleDropsOverlappingTick(t *testing.T) {
	exchange := &stubExchange{candles: risingCandles(260), balance: marketdata.AccountBalance{TotalEquity: 1000}}
	fetcher := marketdata.NewPriceFetcher(exchange, zerolog.Nop())
	calc := risk.NewCalculator(risk.Config{RiskPerTradePct: 1, MaxDailyDrawdown: 5, MaxOpenPositions: 3})
	gate := tradegate.New(exchange, "0xaddr", tradegate.AlwaysAllow{}, calc, nil, tradegate.DefaultConfig(), zerolog.Nop())

	sched := New(fetcher, exchange, gate, nil, Config{
		Symbols: []string{"BTC"}, Timeframes: []candle.Timeframe{candle.TF15m},
		Mode: ModeManual, Strategy: "ichimoku", AnalysisIntervalMs: 60000, CandleWindow: 260,
	}, zerolog.Nop())

	sched.isProcessing.Store(true)
	sched.RunCycle(context.Background())
	if sched.cycle.Load() != 0 {
		t.Error("expected the cycle counter to stay at 0 when a tick is dropped for overlap")
	}
	sched.isProcessing.Store(false)

	sched.RunCycle(context.Background())
	if sched.cycle.Load() != 1 {
		t.Errorf("expected cycle counter to reach 1, got %d", sched.cycle.Load())
	}
}

func TestRankLessOrdersByGradeThenQuality(t *testing.T) {
	a := makeSignal(grader.GradeA, 50, 0.7, 3, 5)
	b := makeSignal(grader.GradeA, 50, 0.7, 3, 5)
	if rankLess(a, b) || rankLess(b, a) {
		t.Error("equal-grade equal-quality signals should not strictly rank either way")
	}

	high := makeSignal(grader.GradeA, 80, 0.7, 3, 5)
	low := makeSignal(grader.GradeA, 50, 0.7, 3, 5)
	if !rankLess(high, low) {
		t.Error("expected a higher quality score (gap >= 5) within the same grade to rank first")
	}
}

func TestScheduleStopAfterStart(t *testing.T) {
	exchange := &stubExchange{candles: risingCandles(260), balance: marketdata.AccountBalance{TotalEquity: 1000}}
	fetcher := marketdata.NewPriceFetcher(exchange, zerolog.Nop())
	calc := risk.NewCalculator(risk.Config{RiskPerTradePct: 1, MaxDailyDrawdown: 5, MaxOpenPositions: 3})
	gate := tradegate.New(exchange, "0xaddr", tradegate.AlwaysAllow{}, calc, nil, tradegate.DefaultConfig(), zerolog.Nop())
	sched := New(fetcher, exchange, gate, nil, Config{
		Symbols: []string{"BTC"}, Timeframes: []candle.Timeframe{candle.TF15m},
		Mode: ModeManual, Strategy: "ichimoku", AnalysisIntervalMs: 10,
	}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := sched.Start(ctx, nil); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	sched.Stop()
}

func makeSignal(grade grader.Letter, quality, winProb float64, confluence, absScore int) grader.GradedSignal {
	return grader.GradedSignal{
		RawSignal: strategy.RawSignal{Confluence: confluence, AbsScore: absScore},
		Grade:     grade, QualityScore: quality, WinProbability: winProb,
	}
}
