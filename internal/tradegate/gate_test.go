package tradegate

import (
	"context"
	"testing"
	"time"

	"github.com/hyperdesk/perpcore/internal/candle"
	"github.com/hyperdesk/perpcore/internal/grader"
	"github.com/hyperdesk/perpcore/internal/indicators"
	"github.com/hyperdesk/perpcore/internal/marketdata"
	"github.com/hyperdesk/perpcore/internal/risk"
	"github.com/hyperdesk/perpcore/internal/strategy"
	"github.com/rs/zerolog"
)

type stubExchange struct {
	positions []marketdata.RawPosition
	balance   marketdata.AccountBalance
	orders    []marketdata.OrderRequest
}

func (s *stubExchange) GetCandles(context.Context, string, candle.Timeframe, int64, int64) ([]candle.Candle, error) {
	return nil, nil
}
func (s *stubExchange) GetPrice(context.Context, string) (float64, error) { return 0, nil }
func (s *stubExchange) GetAllMids(context.Context) (map[string]float64, error) { return nil, nil }
func (s *stubExchange) GetAccountBalance(context.Context, string) (marketdata.AccountBalance, error) {
	return s.balance, nil
}
func (s *stubExchange) GetPositions(context.Context, string) ([]marketdata.RawPosition, error) {
	return s.positions, nil
}
func (s *stubExchange) GetFundingRate(context.Context, string) (marketdata.FundingRate, error) {
	return marketdata.FundingRate{}, nil
}
func (s *stubExchange) PlaceOrderWithTPSL(ctx context.Context, req marketdata.OrderRequest) (marketdata.OrderAck, error) {
	s.orders = append(s.orders, req)
	return marketdata.OrderAck{OrderID: "test-order"}, nil
}
func (s *stubExchange) ClosePosition(context.Context, string) (marketdata.CloseAck, error) {
	return marketdata.CloseAck{}, nil
}

func happyCandidate() Candidate {
	signal := grader.GradedSignal{
		RawSignal: strategy.RawSignal{
			Symbol: "BTC", Timeframe: candle.TF15m, Strategy: "ichimoku",
			Direction: strategy.DirectionLong, AbsScore: 5, Confluence: 3, Price: 100,
		},
		Tradeable: true, ChosenSL: 97, ChosenTP: 106, RRR: 2.0,
	}
	return Candidate{Signal: signal, Bundle: indicators.Bundle{RSI: 55}}
}

func newTestGate(exchange *stubExchange) *Gate {
	calc := risk.NewCalculator(risk.Config{RiskPerTradePct: 1, MaxDailyDrawdown: 5, MaxOpenPositions: 3})
	return New(exchange, "0xaddress", AlwaysAllow{}, calc, nil, DefaultConfig(), zerolog.Nop())
}

func TestEvaluateHappyPathExecutesOrder(t *testing.T) {
	exchange := &stubExchange{balance: marketdata.AccountBalance{TotalEquity: 1000}}
	gate := newTestGate(exchange)

	outcome := gate.Evaluate(context.Background(), []Candidate{happyCandidate()})
	if !outcome.Executed {
		t.Fatalf("expected execution, got reject=%s", outcome.Reject)
	}
	if len(exchange.orders) != 1 {
		t.Fatalf("expected exactly one order placed, got %d", len(exchange.orders))
	}
	if snap := gate.Snapshot(); snap.ConsecutiveLongs != 1 {
		t.Errorf("expected consecutiveLongs=1 after a long fill, got %d", snap.ConsecutiveLongs)
	}
}

func TestEvaluateRejectsSymbolCooldown(t *testing.T) {
	exchange := &stubExchange{balance: marketdata.AccountBalance{TotalEquity: 1000}}
	gate := newTestGate(exchange)

	gate.Evaluate(context.Background(), []Candidate{happyCandidate()})
	outcome := gate.Evaluate(context.Background(), []Candidate{happyCandidate()})
	if outcome.Executed {
		t.Fatal("expected the second evaluation within the cooldown window to reject")
	}
}

func TestEvaluateRejectsAtMaxConcurrentTrades(t *testing.T) {
	exchange := &stubExchange{
		balance:   marketdata.AccountBalance{TotalEquity: 1000},
		positions: []marketdata.RawPosition{{Symbol: "ETH"}, {Symbol: "SOL"}, {Symbol: "AVAX"}},
	}
	gate := newTestGate(exchange)

	outcome := gate.Evaluate(context.Background(), []Candidate{happyCandidate()})
	if outcome.Executed || outcome.Reject != RejectAtCapacity {
		t.Fatalf("expected RejectAtCapacity, got %+v", outcome)
	}
}

func TestEvaluateRejectsWhenSymbolAlreadyHasPosition(t *testing.T) {
	exchange := &stubExchange{
		balance:   marketdata.AccountBalance{TotalEquity: 1000},
		positions: []marketdata.RawPosition{{Symbol: "BTC"}},
	}
	gate := newTestGate(exchange)

	outcome := gate.Evaluate(context.Background(), []Candidate{happyCandidate()})
	if outcome.Executed {
		t.Fatal("expected rejection because BTC already has a real position")
	}
}

func TestEvaluateRejectsDuringLossPause(t *testing.T) {
	exchange := &stubExchange{balance: marketdata.AccountBalance{TotalEquity: 1000}}
	gate := newTestGate(exchange)

	now := time.Now().UnixMilli()
	gate.state.pausedUntilMs = now + 60_000

	outcome := gate.Evaluate(context.Background(), []Candidate{happyCandidate()})
	if outcome.Executed || outcome.Reject != RejectPaused {
		t.Fatalf("expected RejectPaused, got %+v", outcome)
	}
}

func TestEvaluateRejectsLongOnOverboughtRSI(t *testing.T) {
	exchange := &stubExchange{balance: marketdata.AccountBalance{TotalEquity: 1000}}
	gate := newTestGate(exchange)

	candidate := happyCandidate()
	candidate.Bundle.RSI = 90

	outcome := gate.Evaluate(context.Background(), []Candidate{candidate})
	if outcome.Executed || outcome.Reject != RejectRSI {
		t.Fatalf("expected RejectRSI, got %+v", outcome)
	}
}

func TestOnPositionClosedTriggersLossPauseAfterThreeLosses(t *testing.T) {
	exchange := &stubExchange{balance: marketdata.AccountBalance{TotalEquity: 1000}}
	gate := newTestGate(exchange)

	for i := 0; i < 3; i++ {
		gate.OnPositionClosed("BTC", -10, "stop_loss")
	}
	if snap := gate.Snapshot(); snap.PausedUntilMs <= time.Now().UnixMilli() {
		t.Error("expected pausedUntilMs to be set in the future after 3 consecutive losses")
	}
}

func TestOnPositionClosedResetsStreakOnWin(t *testing.T) {
	exchange := &stubExchange{balance: marketdata.AccountBalance{TotalEquity: 1000}}
	gate := newTestGate(exchange)

	gate.OnPositionClosed("BTC", -10, "stop_loss")
	gate.OnPositionClosed("BTC", 20, "take_profit")
	if snap := gate.Snapshot(); snap.ConsecutiveLosses != 0 {
		t.Errorf("expected loss streak reset after a win, got %d", snap.ConsecutiveLosses)
	}
}
