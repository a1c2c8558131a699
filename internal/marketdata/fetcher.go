package marketdata

import (
	"context"
	"sync"
	"time"

	"github.com/hyperdesk/perpcore/internal/candle"
	"github.com/hyperdesk/perpcore/internal/enginerr"
	"github.com/rs/zerolog"
)

const (
	priceTTL  = 5 * time.Second
	candleTTL = 60 * time.Second
)

type cachedPrice struct {
	value     float64
	expiresAt time.Time
}

type cachedCandles struct {
	window    []candle.Candle
	expiresAt time.Time
}

// RedisCache is the optional second-tier cache PriceFetcher mirrors through
// (spec §4.2/§6): a process-external TTL cache so a cold-started or
// second engine instance isn't forced to hit the exchange on its first
// request for a symbol the cluster already has warm. Satisfied structurally
// by *cache.Cache; nil (the default) disables the tier entirely.
type RedisCache interface {
	GetCandles(ctx context.Context, symbol string, tf candle.Timeframe) ([]candle.Candle, bool)
	PutCandles(ctx context.Context, symbol string, tf candle.Timeframe, candles []candle.Candle, ttl time.Duration)
	GetPrice(ctx context.Context, symbol string) (float64, bool)
	PutPrice(ctx context.Context, symbol string, price float64, ttl time.Duration)
}

// PriceFetcher maintains the two TTL caches the spec names: price (5s) and
// candles keyed by (symbol, timeframe) (60s). Grounded on the teacher's
// scanner.ScannerCache shape (map-under-RWMutex, per-entry ExpiresAt),
// generalized to two cache kinds and a stale-serve fallback on exchange
// error.
type PriceFetcher struct {
	client ExchangeClient
	logger zerolog.Logger
	cache  RedisCache

	mu      sync.RWMutex
	prices  map[string]cachedPrice
	candles map[string]cachedCandles
}

func NewPriceFetcher(client ExchangeClient, logger zerolog.Logger) *PriceFetcher {
	return &PriceFetcher{
		client:  client,
		logger:  logger.With().Str("component", "PriceFetcher").Logger(),
		prices:  make(map[string]cachedPrice),
		candles: make(map[string]cachedCandles),
	}
}

// SetCache wires the optional Redis-backed second tier; nil disables it.
func (f *PriceFetcher) SetCache(c RedisCache) {
	f.cache = c
}

func candleKey(symbol string, tf candle.Timeframe) string {
	return symbol + "|" + string(tf)
}

// GetPrice returns the cached price, refreshing when stale. On exchange
// error with a stale-but-present entry it serves the stale value and logs a
// warning; with no cache at all it returns a DataError.
func (f *PriceFetcher) GetPrice(ctx context.Context, symbol string) (float64, error) {
	f.mu.RLock()
	entry, ok := f.prices[symbol]
	f.mu.RUnlock()

	if ok && time.Now().Before(entry.expiresAt) {
		return entry.value, nil
	}

	if f.cache != nil {
		if price, hit := f.cache.GetPrice(ctx, symbol); hit {
			f.mu.Lock()
			f.prices[symbol] = cachedPrice{value: price, expiresAt: time.Now().Add(priceTTL)}
			f.mu.Unlock()
			return price, nil
		}
	}

	callCtx, cancel := WithDefaultTimeout(ctx)
	defer cancel()
	price, err := f.client.GetPrice(callCtx, symbol)
	if err != nil {
		if ok {
			f.logger.Warn().Str("symbol", symbol).Err(err).Msg("serving stale price after exchange error")
			return entry.value, nil
		}
		return 0, enginerr.Wrap(enginerr.KindData, "no cached price and upstream error", err)
	}

	f.mu.Lock()
	f.prices[symbol] = cachedPrice{value: price, expiresAt: time.Now().Add(priceTTL)}
	f.mu.Unlock()
	if f.cache != nil {
		f.cache.PutPrice(ctx, symbol, price, priceTTL)
	}
	return price, nil
}

// GetCandles returns the last limit candles for (symbol, tf), refreshing if
// stale or undersized.
func (f *PriceFetcher) GetCandles(ctx context.Context, symbol string, tf candle.Timeframe, limit int) ([]candle.Candle, error) {
	key := candleKey(symbol, tf)

	f.mu.RLock()
	entry, ok := f.candles[key]
	f.mu.RUnlock()

	fresh := ok && time.Now().Before(entry.expiresAt) && len(entry.window) >= limit
	if fresh {
		return candle.Window(entry.window).Last(limit), nil
	}

	if f.cache != nil {
		if cached, hit := f.cache.GetCandles(ctx, symbol, tf); hit && len(cached) >= limit {
			f.mu.Lock()
			f.candles[key] = cachedCandles{window: cached, expiresAt: time.Now().Add(candleTTL)}
			f.mu.Unlock()
			return candle.Window(cached).Last(limit), nil
		}
	}

	callCtx, cancel := WithDefaultTimeout(ctx)
	defer cancel()
	endMs := time.Now().UnixMilli()
	startMs := endMs - int64(limit)*tf.Duration().Milliseconds()
	fresh_, err := f.client.GetCandles(callCtx, symbol, tf, startMs, endMs)
	if err != nil {
		if ok {
			f.logger.Warn().Str("symbol", symbol).Str("timeframe", string(tf)).Err(err).Msg("serving stale candles after exchange error")
			return candle.Window(entry.window).Last(limit), nil
		}
		return nil, enginerr.Wrap(enginerr.KindData, "no cached candles and upstream error", err)
	}

	f.mu.Lock()
	f.candles[key] = cachedCandles{window: fresh_, expiresAt: time.Now().Add(candleTTL)}
	f.mu.Unlock()
	if f.cache != nil {
		f.cache.PutCandles(ctx, symbol, tf, fresh_, candleTTL)
	}
	return candle.Window(fresh_).Last(limit), nil
}
