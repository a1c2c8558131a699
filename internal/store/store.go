// Package store implements the persistence boundary (spec §6): ConfigStore
// (load/save EngineConfig as JSONB) and AuditRepository (append-only cycle
// summaries, placed orders, closed positions, grader rejections) over
// Postgres via jackc/pgx/v5. Grounded on the teacher's
// internal/database/db.go (pgxpool.Pool wrapper, NewDB/Close/RunMigrations
// with embedded CREATE TABLE IF NOT EXISTS strings) and
// repository_trade_lifecycle.go's append-only-rows-over-a-pool shape.
// No core package imports store; cmd/engine and the control surface use
// *Store directly, and no ConfigStore/AuditRepository interface types are
// declared.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hyperdesk/perpcore/internal/candle"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Config mirrors the teacher's database.Config DSN fields.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// Store wraps the pgx connection pool the same way the teacher's DB did,
// generalized to serve both ConfigStore and AuditRepository instead of a
// single monolithic Repository.
type Store struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

func Connect(ctx context.Context, cfg Config, logger zerolog.Logger) (*Store, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode)

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse dsn: %w", err)
	}
	poolCfg.MaxConns = 25
	poolCfg.MinConns = 5
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute
	poolCfg.HealthCheckPeriod = time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("store: create pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	s := &Store{pool: pool, logger: logger.With().Str("component", "Store").Logger()}
	s.logger.Info().Str("database", cfg.Database).Msg("connected to postgres")
	return s, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
		s.logger.Info().Msg("postgres connection closed")
	}
}

// RunMigrations creates every table the store needs, idempotently.
func (s *Store) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS engine_configs (
			id SERIAL PRIMARY KEY,
			name VARCHAR(64) UNIQUE NOT NULL,
			config JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS cycle_summaries (
			id BIGSERIAL PRIMARY KEY,
			cycle BIGINT NOT NULL,
			symbols INT NOT NULL,
			timeframes INT NOT NULL,
			duration_ms BIGINT NOT NULL,
			opportunities INT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS placed_orders (
			id BIGSERIAL PRIMARY KEY,
			cycle BIGINT NOT NULL,
			symbol VARCHAR(20) NOT NULL,
			direction VARCHAR(5) NOT NULL,
			entry_price DECIMAL(20, 8) NOT NULL,
			size DECIMAL(20, 8) NOT NULL,
			stop_loss DECIMAL(20, 8) NOT NULL,
			take_profit DECIMAL(20, 8) NOT NULL,
			order_id VARCHAR(64) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS closed_positions (
			id BIGSERIAL PRIMARY KEY,
			symbol VARCHAR(20) NOT NULL,
			pnl DECIMAL(20, 8) NOT NULL,
			exit_reason VARCHAR(16) NOT NULL,
			closed_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS grader_rejections (
			id BIGSERIAL PRIMARY KEY,
			cycle BIGINT NOT NULL,
			symbol VARCHAR(20) NOT NULL,
			timeframe VARCHAR(5) NOT NULL,
			reason TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}

	for _, stmt := range migrations {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("store: migration failed: %w", err)
		}
	}
	s.logger.Info().Int("count", len(migrations)).Msg("migrations applied")
	return nil
}

// EngineConfigRow is the JSON-serializable slice of EngineConfig the
// ConfigStore persists — symbol universe, timeframes, mode, thresholds.
type EngineConfigRow struct {
	Name               string              `json:"name"`
	Symbols            []string            `json:"symbols"`
	Timeframes         []candle.Timeframe  `json:"timeframes"`
	Mode               string              `json:"mode"`
	Leverage           int                 `json:"leverage"`
	MaxConcurrentTrades int                `json:"maxConcurrentTrades"`
	TPSLMode           string              `json:"tpslMode"`
	Strategy           string              `json:"strategy"`
	RSIOverbought      float64             `json:"rsiOverbought"`
	RSIOversold        float64             `json:"rsiOversold"`
}

// SaveConfig upserts the named EngineConfig as JSONB.
func (s *Store) SaveConfig(ctx context.Context, row EngineConfigRow) error {
	payload, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("store: marshal config: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO engine_configs (name, config, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE SET config = EXCLUDED.config, updated_at = now()`,
		row.Name, payload)
	return err
}

// LoadConfig fetches the named EngineConfig, or (EngineConfigRow{}, false, nil) if absent.
func (s *Store) LoadConfig(ctx context.Context, name string) (EngineConfigRow, bool, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `SELECT config FROM engine_configs WHERE name = $1`, name).Scan(&payload)
	if err != nil {
		if err.Error() == "no rows in result set" {
			return EngineConfigRow{}, false, nil
		}
		return EngineConfigRow{}, false, err
	}
	var row EngineConfigRow
	if err := json.Unmarshal(payload, &row); err != nil {
		return EngineConfigRow{}, false, err
	}
	return row, true, nil
}

// RecordCycle appends one cycle summary row (audit trail, spec §5's
// "summarises each cycle" requirement persisted rather than only logged).
func (s *Store) RecordCycle(ctx context.Context, cycle int64, symbols, timeframes int, durationMs int64, opportunities int) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO cycle_summaries (cycle, symbols, timeframes, duration_ms, opportunities)
		VALUES ($1, $2, $3, $4, $5)`,
		cycle, symbols, timeframes, durationMs, opportunities)
	return err
}

// RecordOrder appends one placed-order audit row.
func (s *Store) RecordOrder(ctx context.Context, cycle int64, symbol, direction string, entry, size, sl, tp float64, orderID string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO placed_orders (cycle, symbol, direction, entry_price, size, stop_loss, take_profit, order_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		cycle, symbol, direction, entry, size, sl, tp, orderID)
	return err
}

// RecordClose appends one closed-position audit row.
func (s *Store) RecordClose(ctx context.Context, symbol string, pnl float64, exitReason string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO closed_positions (symbol, pnl, exit_reason) VALUES ($1, $2, $3)`,
		symbol, pnl, exitReason)
	return err
}

// RecordRejection appends one grader-rejection audit row.
func (s *Store) RecordRejection(ctx context.Context, cycle int64, symbol, timeframe, reason string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO grader_rejections (cycle, symbol, timeframe, reason) VALUES ($1, $2, $3, $4)`,
		cycle, symbol, timeframe, reason)
	return err
}
