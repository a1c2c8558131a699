package position

import (
	"context"
	"testing"
	"time"

	"github.com/hyperdesk/perpcore/internal/marketdata"
	"github.com/hyperdesk/perpcore/internal/testutil"
	"github.com/rs/zerolog"
)

func TestPollAddsUntrackedRealPositionAsFromSync(t *testing.T) {
	exchange := testutil.NewFakeExchange()
	exchange.Positions = []marketdata.RawPosition{{Symbol: "ETH", Size: -1.0, EntryPrice: 3000}}

	m := NewManager(exchange, "0xaddr", time.Hour, nil, zerolog.Nop())
	if err := m.poll(context.Background()); err != nil {
		t.Fatal(err)
	}

	snap := m.Snapshot()
	pos, ok := snap["ETH"]
	if !ok {
		t.Fatal("expected ETH to be tracked after reconciliation")
	}
	if !pos.FromSync {
		t.Error("expected FromSync=true for a position discovered via reconciliation")
	}
	if pos.Size != 1.0 {
		t.Errorf("expected absolute size 1.0, got %f", pos.Size)
	}
}

func TestPollFiresOnClosedWhenExchangeStopsReportingPosition(t *testing.T) {
	exchange := testutil.NewFakeExchange()
	var closedSymbol string
	var closedReason ExitReason

	m := NewManager(exchange, "0xaddr", time.Hour, func(symbol string, pnl float64, reason ExitReason) {
		closedSymbol, closedReason = symbol, reason
	}, zerolog.Nop())

	m.Track(Position{Symbol: "BTC", EntryPrice: 100, Size: 1, TakeProfit: 110, StopLoss: 95})

	if err := m.poll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if closedSymbol != "BTC" {
		t.Fatalf("expected onClosed to fire for BTC, got %q", closedSymbol)
	}
	if closedReason != ExitUnknown && closedReason != ExitManual {
		t.Errorf("unexpected exit reason %s", closedReason)
	}
	if m.Count() != 0 {
		t.Error("expected BTC to be untracked after its close was detected")
	}
}

func TestPollLeavesStillOpenPositionsTracked(t *testing.T) {
	exchange := testutil.NewFakeExchange()
	exchange.Positions = []marketdata.RawPosition{{Symbol: "BTC", Size: 1, EntryPrice: 100}}

	m := NewManager(exchange, "0xaddr", time.Hour, nil, zerolog.Nop())
	m.Track(Position{Symbol: "BTC", EntryPrice: 100, Size: 1})

	if err := m.poll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if m.Count() != 1 {
		t.Errorf("expected BTC to remain tracked, count=%d", m.Count())
	}
}
