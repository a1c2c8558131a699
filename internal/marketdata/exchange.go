// Package marketdata defines the ExchangeClient boundary (spec §6) and
// PriceFetcher (spec §4.2), the only place the core talks to an exchange.
// Every blocking call takes a context.Context with the default 10s deadline
// the caller is expected to set.
package marketdata

import (
	"context"
	"time"

	"github.com/hyperdesk/perpcore/internal/candle"
)

// RawPosition mirrors the exchange's raw position shape; both key
// spellings the spec calls out (coin/symbol, szi/size, entryPx/entryPrice)
// are normalised into this one Go struct by the adapter.
type RawPosition struct {
	Symbol     string
	Size       float64 // signed: negative = short
	EntryPrice float64
}

// AccountBalance is the exchange's account-level balance snapshot.
type AccountBalance struct {
	TotalEquity   float64
	FreeMargin    float64
	UnrealisedPnl float64
}

// FundingSignal is bullish, bearish or neutral, the coarse read the
// grader's funding bonus term consumes alongside the raw rate.
type FundingSignal string

const (
	FundingBullish FundingSignal = "bullish"
	FundingBearish FundingSignal = "bearish"
	FundingNeutral FundingSignal = "neutral"
)

// FundingRate is the raw exchange funding-rate read.
type FundingRate struct {
	Rate     float64
	Signal   FundingSignal
	Strength float64 // 0..1
}

// OrderRequest is the bracket-order request placeOrderWithTPSL sends.
type OrderRequest struct {
	Symbol     string
	IsBuy      bool
	Size       float64
	Price      float64
	TakeProfit float64
	StopLoss   float64
	Leverage   int
	ClientID   string // idempotency key, see internal/orderid
}

// OrderAck confirms a bracket order was accepted.
type OrderAck struct {
	OrderID  string
	FilledAt time.Time
}

// CloseAck confirms a position close request was accepted.
type CloseAck struct {
	OrderID string
}

// ExchangeClient is the opaque external interface the core consumes; no
// concrete exchange type ever appears in the core's call sites.
type ExchangeClient interface {
	GetCandles(ctx context.Context, symbol string, tf candle.Timeframe, startMs, endMs int64) ([]candle.Candle, error)
	GetPrice(ctx context.Context, symbol string) (float64, error)
	GetAllMids(ctx context.Context) (map[string]float64, error)
	GetAccountBalance(ctx context.Context, address string) (AccountBalance, error)
	GetPositions(ctx context.Context, address string) ([]RawPosition, error)
	GetFundingRate(ctx context.Context, symbol string) (FundingRate, error)
	PlaceOrderWithTPSL(ctx context.Context, req OrderRequest) (OrderAck, error)
	ClosePosition(ctx context.Context, symbol string) (CloseAck, error)
}

// AuthProvider is the opaque auth boundary the core checks before Start.
type AuthProvider interface {
	IsReady(ctx context.Context) bool
	TestConnection(ctx context.Context) error
	GetAddress() string
	GetBalanceAddress() string
}

// DefaultCallTimeout is the per-call deadline every ExchangeClient call
// gets when the caller has not already set one (spec §5).
const DefaultCallTimeout = 10 * time.Second

// WithDefaultTimeout returns a context bounded by DefaultCallTimeout unless
// parent already carries an earlier deadline.
func WithDefaultTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	if deadline, ok := parent.Deadline(); ok && time.Until(deadline) < DefaultCallTimeout {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, DefaultCallTimeout)
}
