package marketdata

import (
	"context"
	"errors"
	"testing"

	"github.com/hyperdesk/perpcore/internal/candle"
	"github.com/rs/zerolog"
)

type stubClient struct {
	price     float64
	priceErr  error
	candles   []candle.Candle
	candleErr error
}

func (s *stubClient) GetCandles(ctx context.Context, symbol string, tf candle.Timeframe, startMs, endMs int64) ([]candle.Candle, error) {
	if s.candleErr != nil {
		return nil, s.candleErr
	}
	return s.candles, nil
}
func (s *stubClient) GetPrice(ctx context.Context, symbol string) (float64, error) {
	if s.priceErr != nil {
		return 0, s.priceErr
	}
	return s.price, nil
}
func (s *stubClient) GetAllMids(ctx context.Context) (map[string]float64, error) { return nil, nil }
func (s *stubClient) GetAccountBalance(ctx context.Context, address string) (AccountBalance, error) {
	return AccountBalance{}, nil
}
func (s *stubClient) GetPositions(ctx context.Context, address string) ([]RawPosition, error) {
	return nil, nil
}
func (s *stubClient) GetFundingRate(ctx context.Context, symbol string) (FundingRate, error) {
	return FundingRate{}, nil
}
func (s *stubClient) PlaceOrderWithTPSL(ctx context.Context, req OrderRequest) (OrderAck, error) {
	return OrderAck{}, nil
}
func (s *stubClient) ClosePosition(ctx context.Context, symbol string) (CloseAck, error) {
	return CloseAck{}, nil
}

func TestGetPriceCachesAndRefreshes(t *testing.T) {
	client := &stubClient{price: 100}
	f := NewPriceFetcher(client, zerolog.Nop())

	price, err := f.GetPrice(context.Background(), "BTC")
	if err != nil || price != 100 {
		t.Fatalf("expected price 100, got %f err=%v", price, err)
	}

	client.price = 200
	price, err = f.GetPrice(context.Background(), "BTC")
	if err != nil || price != 100 {
		t.Fatalf("expected cached price 100 before TTL expiry, got %f", price)
	}
}

func TestGetPriceServesStaleOnError(t *testing.T) {
	client := &stubClient{price: 100}
	f := NewPriceFetcher(client, zerolog.Nop())
	if _, err := f.GetPrice(context.Background(), "BTC"); err != nil {
		t.Fatal(err)
	}

	f.mu.Lock()
	f.prices["BTC"] = cachedPrice{value: 100} // force expiry
	f.mu.Unlock()

	client.priceErr = errors.New("network down")
	price, err := f.GetPrice(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("expected stale value served without error, got %v", err)
	}
	if price != 100 {
		t.Errorf("expected stale price 100, got %f", price)
	}
}

func TestGetPriceFailsWithNoCacheAndError(t *testing.T) {
	client := &stubClient{priceErr: errors.New("down")}
	f := NewPriceFetcher(client, zerolog.Nop())
	if _, err := f.GetPrice(context.Background(), "BTC"); err == nil {
		t.Error("expected a DataError when there is no cache and the upstream call fails")
	}
}

func TestGetCandlesRefreshesWhenUndersized(t *testing.T) {
	client := &stubClient{candles: make([]candle.Candle, 10)}
	f := NewPriceFetcher(client, zerolog.Nop())
	candles, err := f.GetCandles(context.Background(), "BTC", candle.TF15m, 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(candles) != 10 {
		t.Errorf("expected 10 candles (all available), got %d", len(candles))
	}
}
