// Package cache provides Redis-backed caching for candle windows, the
// latest mid prices and a cross-instance mirror of TradeGate's per-symbol
// locks, with graceful degradation on Redis outage. Grounded on the
// teacher's internal/cache/cache_service.go (CacheService's healthy/
// failureCount/checkInterval circuit-breaker-over-a-redis.Client shape),
// narrowed from its settings/admin-defaults/sequence key space to the
// three caches the engine actually needs.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hyperdesk/perpcore/internal/candle"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	prefixCandles = "perpcore:candles:%s:%s"
	prefixPrice   = "perpcore:price:%s"
	prefixLock    = "perpcore:lock:%s"
)

// Config mirrors the teacher's config.RedisConfig fields relevant here.
type Config struct {
	Address  string
	Password string
	DB       int
	PoolSize int
	Enabled  bool
}

// Cache wraps a redis.Client with the teacher's circuit-breaker pattern:
// after maxFailures consecutive errors it marks itself unhealthy and every
// operation becomes a cheap no-op (callers fall back to the in-process
// value) until a background ping recovers it.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger

	mu           sync.RWMutex
	healthy      bool
	failureCount int
	lastCheck    time.Time

	maxFailures   int
	checkInterval time.Duration
}

func New(cfg Config, logger zerolog.Logger) *Cache {
	logger = logger.With().Str("component", "Cache").Logger()
	if !cfg.Enabled {
		logger.Info().Msg("redis disabled, cache running in degraded mode permanently")
		return &Cache{logger: logger, maxFailures: 3, checkInterval: 30 * time.Second}
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	c := &Cache{client: client, logger: logger, maxFailures: 3, checkInterval: 30 * time.Second}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("initial redis connection failed, starting in degraded mode")
		return c
	}
	c.healthy = true
	c.lastCheck = time.Now()
	logger.Info().Str("address", cfg.Address).Msg("redis connected")
	return c
}

func (c *Cache) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.healthy
}

func (c *Cache) recordFailure(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failureCount++
	if c.failureCount >= c.maxFailures && c.healthy {
		c.logger.Warn().Err(err).Int("failures", c.failureCount).Msg("redis marked unhealthy, degrading to in-process fallback")
		c.healthy = false
	}
}

func (c *Cache) recordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.healthy {
		c.logger.Info().Msg("redis recovered")
	}
	c.healthy = true
	c.failureCount = 0
	c.lastCheck = time.Now()
}

func (c *Cache) checkHealth() {
	c.mu.RLock()
	due := !c.healthy && time.Since(c.lastCheck) >= c.checkInterval
	c.mu.RUnlock()
	if !due || c.client == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := c.client.Ping(ctx).Err(); err == nil {
			c.recordSuccess()
		}
	}()
}

func (c *Cache) ready() bool {
	c.checkHealth()
	return c.client != nil && c.IsHealthy()
}

// PutCandles caches a symbol/timeframe candle window. A failure is counted
// by recordFailure and swallowed — PriceFetcher already holds the
// authoritative copy in its own TTL cache.
func (c *Cache) PutCandles(ctx context.Context, symbol string, tf candle.Timeframe, candles []candle.Candle, ttl time.Duration) {
	if !c.ready() {
		return
	}
	payload, err := json.Marshal(candles)
	if err != nil {
		return
	}
	key := formatKey(prefixCandles, symbol, string(tf))
	if err := c.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		c.recordFailure(err)
		return
	}
	c.recordSuccess()
}

// GetCandles returns (nil, false) on a miss or when Redis is degraded —
// callers must treat both identically and fall through to PriceFetcher.
func (c *Cache) GetCandles(ctx context.Context, symbol string, tf candle.Timeframe) ([]candle.Candle, bool) {
	if !c.ready() {
		return nil, false
	}
	key := formatKey(prefixCandles, symbol, string(tf))
	payload, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.recordFailure(err)
		}
		return nil, false
	}
	c.recordSuccess()
	var out []candle.Candle
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, false
	}
	return out, true
}

// PutPrice mirrors the most recent mid price for cross-instance reads.
func (c *Cache) PutPrice(ctx context.Context, symbol string, price float64, ttl time.Duration) {
	if !c.ready() {
		return
	}
	key := formatKeySingle(prefixPrice, symbol)
	if err := c.client.Set(ctx, key, price, ttl).Err(); err != nil {
		c.recordFailure(err)
		return
	}
	c.recordSuccess()
}

func (c *Cache) GetPrice(ctx context.Context, symbol string) (float64, bool) {
	if !c.ready() {
		return 0, false
	}
	key := formatKeySingle(prefixPrice, symbol)
	val, err := c.client.Get(ctx, key).Float64()
	if err != nil {
		if err != redis.Nil {
			c.recordFailure(err)
		}
		return 0, false
	}
	c.recordSuccess()
	return val, true
}

// MirrorLock records that this instance holds symbol's TradeGate lock, so
// a second engine instance sharing the same Redis can observe contention
// across processes. It is advisory only — the authoritative lock is
// always the in-process sync.Map in tradegate.Gate.
func (c *Cache) MirrorLock(ctx context.Context, symbol string, held bool, ttl time.Duration) {
	if !c.ready() {
		return
	}
	key := formatKeySingle(prefixLock, symbol)
	if !held {
		c.client.Del(ctx, key)
		return
	}
	if err := c.client.Set(ctx, key, "1", ttl).Err(); err != nil {
		c.recordFailure(err)
		return
	}
	c.recordSuccess()
}

func (c *Cache) IsLockMirrored(ctx context.Context, symbol string) bool {
	if !c.ready() {
		return false
	}
	key := formatKeySingle(prefixLock, symbol)
	n, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		c.recordFailure(err)
		return false
	}
	c.recordSuccess()
	return n > 0
}

func (c *Cache) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

func formatKey(prefix, a, b string) string {
	return fmt.Sprintf(prefix, a, b)
}

func formatKeySingle(prefix, a string) string {
	return fmt.Sprintf(prefix, a)
}
