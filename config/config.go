// Package config loads the engine's configuration from an optional JSON
// file, then applies environment variable overrides on top — the
// teacher's two-stage Load()/applyEnvOverrides() pattern, narrowed to the
// sections this engine actually has (no billing, AI, multi-tenant auth,
// or screener config survive).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Engine      EngineConfig      `json:"engine"`
	TradeGate   TradeGateConfig   `json:"trade_gate"`
	Risk        RiskConfig        `json:"risk"`
	Logging     LoggingConfig     `json:"logging"`
	Server      ServerConfig      `json:"server"`
	OpAuth      OpAuthConfig      `json:"op_auth"`
	Vault       VaultConfig       `json:"vault"`
	Redis       RedisConfig       `json:"redis"`
	Postgres    PostgresConfig    `json:"postgres"`
	Exchange    ExchangeConfig    `json:"exchange"`
}

// EngineConfig mirrors engine.Config's JSON-serializable fields.
type EngineConfig struct {
	Symbols            []string `json:"symbols"`
	Timeframes         []string `json:"timeframes"`
	Mode               string   `json:"mode"` // "auto" | "manual"
	Strategy           string   `json:"strategy"`
	AnalysisIntervalMs int64    `json:"analysis_interval_ms"`
	CandleWindow       int      `json:"candle_window"`
	FundingLookup      bool     `json:"funding_lookup"`
}

// TradeGateConfig mirrors tradegate.Config's JSON-serializable fields.
type TradeGateConfig struct {
	MaxConcurrentTrades   int     `json:"max_concurrent_trades"`
	SymbolCooldownMs      int64   `json:"symbol_cooldown_ms"`
	GlobalCooldownMs      int64   `json:"global_cooldown_ms"`
	MaxConsecutiveSameDir int     `json:"max_consecutive_same_dir"`
	UseRSIFilter          bool    `json:"use_rsi_filter"`
	RSIOverbought         float64 `json:"rsi_overbought"`
	RSIOversold           float64 `json:"rsi_oversold"`
	MinBalanceUSD         float64 `json:"min_balance_usd"`
	RiskPerTradePct       float64 `json:"risk_per_trade_pct"`
	MinRRR                float64 `json:"min_rrr"`
	MaxConsecutiveLosses  int     `json:"max_consecutive_losses"`
	PauseAfterLossesMs    int64   `json:"pause_after_losses_ms"`
	Leverage              int     `json:"leverage"`
	TPSLMode              string  `json:"tpsl_mode"`
	AtrMultSL             float64 `json:"atr_mult_sl"`
	AtrMultTP             float64 `json:"atr_mult_tp"`
}

// RiskConfig mirrors risk.Config's fields.
type RiskConfig struct {
	RiskPerTradePct  float64 `json:"risk_per_trade_pct"`
	MaxDailyDrawdown float64 `json:"max_daily_drawdown"`
	MaxOpenPositions int     `json:"max_open_positions"`
}

type LoggingConfig struct {
	Level       string `json:"level"`
	Output      string `json:"output"`
	JSONFormat  bool   `json:"json_format"`
	IncludeFile bool   `json:"include_file"`
}

type ServerConfig struct {
	Host           string `json:"host"`
	Port           int    `json:"port"`
	ProductionMode bool   `json:"production_mode"`
}

type OpAuthConfig struct {
	Enabled          bool          `json:"enabled"`
	JWTSecret        string        `json:"jwt_secret"`
	AccessTokenTTL   time.Duration `json:"access_token_ttl"`
	OperatorID       string        `json:"operator_id"`
	OperatorPassHash string        `json:"operator_password_hash"`
}

type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`
	SecretPath string `json:"secret_path"`
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

type PostgresConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"sslmode"`
}

type ExchangeConfig struct {
	BaseURL  string `json:"base_url"`
	TestNet  bool   `json:"testnet"`
	MockMode bool   `json:"mock_mode"`
}

func Load() (*Config, error) {
	cfg, err := loadFromFile("config.json")
	if err != nil {
		cfg = &Config{}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(file, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	return &cfg, nil
}

// applyEnvOverrides layers environment variables over the file-loaded
// config. A setting takes its environment variable when set, otherwise the
// config.json value (secrets included), otherwise a built-in default.
// Boolean settings are read only from the environment with a built-in
// default, so a boolean in config.json has no effect.
func applyEnvOverrides(cfg *Config) {
	if symbols := getEnvOrDefault("ENGINE_SYMBOLS", ""); symbols != "" {
		cfg.Engine.Symbols = strings.Split(symbols, ",")
	}
	if timeframes := getEnvOrDefault("ENGINE_TIMEFRAMES", ""); timeframes != "" {
		cfg.Engine.Timeframes = strings.Split(timeframes, ",")
	}
	cfg.Engine.Mode = getEnvOrDefault("ENGINE_MODE", orDefault(cfg.Engine.Mode, "manual"))
	cfg.Engine.Strategy = getEnvOrDefault("ENGINE_STRATEGY", orDefault(cfg.Engine.Strategy, "ichimoku"))
	cfg.Engine.AnalysisIntervalMs = getEnvInt64OrDefault("ENGINE_ANALYSIS_INTERVAL_MS", orDefaultInt64(cfg.Engine.AnalysisIntervalMs, 60000))
	cfg.Engine.CandleWindow = getEnvIntOrDefault("ENGINE_CANDLE_WINDOW", orDefaultInt(cfg.Engine.CandleWindow, 250))
	cfg.Engine.FundingLookup = getEnvOrDefault("ENGINE_FUNDING_LOOKUP", "false") == "true"

	cfg.TradeGate.MaxConcurrentTrades = getEnvIntOrDefault("GATE_MAX_CONCURRENT_TRADES", orDefaultInt(cfg.TradeGate.MaxConcurrentTrades, 3))
	cfg.TradeGate.SymbolCooldownMs = getEnvInt64OrDefault("GATE_SYMBOL_COOLDOWN_MS", orDefaultInt64(cfg.TradeGate.SymbolCooldownMs, 10*60*1000))
	cfg.TradeGate.GlobalCooldownMs = getEnvInt64OrDefault("GATE_GLOBAL_COOLDOWN_MS", orDefaultInt64(cfg.TradeGate.GlobalCooldownMs, 2*60*1000))
	cfg.TradeGate.MaxConsecutiveSameDir = getEnvIntOrDefault("GATE_MAX_CONSECUTIVE_SAME_DIR", orDefaultInt(cfg.TradeGate.MaxConsecutiveSameDir, 4))
	cfg.TradeGate.UseRSIFilter = getEnvOrDefault("GATE_USE_RSI_FILTER", "true") == "true"
	cfg.TradeGate.RSIOverbought = getEnvFloatOrDefault("GATE_RSI_OVERBOUGHT", orDefaultFloat(cfg.TradeGate.RSIOverbought, 75))
	cfg.TradeGate.RSIOversold = getEnvFloatOrDefault("GATE_RSI_OVERSOLD", orDefaultFloat(cfg.TradeGate.RSIOversold, 25))
	cfg.TradeGate.MinBalanceUSD = getEnvFloatOrDefault("GATE_MIN_BALANCE_USD", orDefaultFloat(cfg.TradeGate.MinBalanceUSD, 1))
	cfg.TradeGate.RiskPerTradePct = getEnvFloatOrDefault("GATE_RISK_PER_TRADE_PCT", orDefaultFloat(cfg.TradeGate.RiskPerTradePct, 1.5))
	cfg.TradeGate.MinRRR = getEnvFloatOrDefault("GATE_MIN_RRR", orDefaultFloat(cfg.TradeGate.MinRRR, 1.0))
	cfg.TradeGate.MaxConsecutiveLosses = getEnvIntOrDefault("GATE_MAX_CONSECUTIVE_LOSSES", orDefaultInt(cfg.TradeGate.MaxConsecutiveLosses, 3))
	cfg.TradeGate.PauseAfterLossesMs = getEnvInt64OrDefault("GATE_PAUSE_AFTER_LOSSES_MS", orDefaultInt64(cfg.TradeGate.PauseAfterLossesMs, 30*60*1000))
	cfg.TradeGate.Leverage = getEnvIntOrDefault("GATE_LEVERAGE", orDefaultInt(cfg.TradeGate.Leverage, 5))
	cfg.TradeGate.TPSLMode = getEnvOrDefault("GATE_TPSL_MODE", orDefault(cfg.TradeGate.TPSLMode, "auto"))
	cfg.TradeGate.AtrMultSL = getEnvFloatOrDefault("GATE_ATR_MULT_SL", orDefaultFloat(cfg.TradeGate.AtrMultSL, 1.5))
	cfg.TradeGate.AtrMultTP = getEnvFloatOrDefault("GATE_ATR_MULT_TP", orDefaultFloat(cfg.TradeGate.AtrMultTP, 3.0))

	cfg.Risk.RiskPerTradePct = getEnvFloatOrDefault("RISK_PER_TRADE_PCT", orDefaultFloat(cfg.Risk.RiskPerTradePct, 1.5))
	cfg.Risk.MaxDailyDrawdown = getEnvFloatOrDefault("RISK_MAX_DAILY_DRAWDOWN", orDefaultFloat(cfg.Risk.MaxDailyDrawdown, 5))
	cfg.Risk.MaxOpenPositions = getEnvIntOrDefault("RISK_MAX_OPEN_POSITIONS", orDefaultInt(cfg.Risk.MaxOpenPositions, 3))

	cfg.Logging.Level = getEnvOrDefault("LOG_LEVEL", orDefault(cfg.Logging.Level, "info"))
	cfg.Logging.Output = getEnvOrDefault("LOG_OUTPUT", orDefault(cfg.Logging.Output, "stdout"))
	cfg.Logging.JSONFormat = getEnvOrDefault("LOG_JSON", "true") == "true"
	cfg.Logging.IncludeFile = getEnvOrDefault("LOG_INCLUDE_FILE", "false") == "true"

	cfg.Server.Host = getEnvOrDefault("SERVER_HOST", orDefault(cfg.Server.Host, "0.0.0.0"))
	cfg.Server.Port = getEnvIntOrDefault("SERVER_PORT", orDefaultInt(cfg.Server.Port, 8080))
	cfg.Server.ProductionMode = getEnvOrDefault("SERVER_PRODUCTION_MODE", "false") == "true"

	cfg.OpAuth.Enabled = getEnvOrDefault("OPAUTH_ENABLED", "false") == "true"
	cfg.OpAuth.JWTSecret = getEnvOrDefault("OPAUTH_JWT_SECRET", cfg.OpAuth.JWTSecret)
	cfg.OpAuth.AccessTokenTTL = getEnvDurationOrDefault("OPAUTH_ACCESS_TOKEN_TTL", orDefaultDuration(cfg.OpAuth.AccessTokenTTL, 15*time.Minute))
	cfg.OpAuth.OperatorID = getEnvOrDefault("OPAUTH_OPERATOR_ID", orDefault(cfg.OpAuth.OperatorID, "operator"))
	cfg.OpAuth.OperatorPassHash = getEnvOrDefault("OPAUTH_OPERATOR_PASSWORD_HASH", cfg.OpAuth.OperatorPassHash)

	cfg.Vault.Enabled = getEnvOrDefault("VAULT_ENABLED", "false") == "true"
	cfg.Vault.Address = getEnvOrDefault("VAULT_ADDR", orDefault(cfg.Vault.Address, "http://localhost:8200"))
	cfg.Vault.Token = getEnvOrDefault("VAULT_TOKEN", cfg.Vault.Token)
	cfg.Vault.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", orDefault(cfg.Vault.MountPath, "secret"))
	cfg.Vault.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", orDefault(cfg.Vault.SecretPath, "perpcore/exchange"))
	cfg.Vault.TLSEnabled = getEnvOrDefault("VAULT_TLS_ENABLED", "false") == "true"
	cfg.Vault.CACert = getEnvOrDefault("VAULT_CA_CERT", cfg.Vault.CACert)

	cfg.Redis.Enabled = getEnvOrDefault("REDIS_ENABLED", "false") == "true"
	cfg.Redis.Address = getEnvOrDefault("REDIS_ADDRESS", orDefault(cfg.Redis.Address, "localhost:6379"))
	cfg.Redis.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvIntOrDefault("REDIS_DB", cfg.Redis.DB)
	cfg.Redis.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", orDefaultInt(cfg.Redis.PoolSize, 10))

	cfg.Postgres.Host = getEnvOrDefault("POSTGRES_HOST", orDefault(cfg.Postgres.Host, "localhost"))
	cfg.Postgres.Port = getEnvIntOrDefault("POSTGRES_PORT", orDefaultInt(cfg.Postgres.Port, 5432))
	cfg.Postgres.User = getEnvOrDefault("POSTGRES_USER", orDefault(cfg.Postgres.User, "perpcore"))
	cfg.Postgres.Password = getEnvOrDefault("POSTGRES_PASSWORD", cfg.Postgres.Password)
	cfg.Postgres.Database = getEnvOrDefault("POSTGRES_DATABASE", orDefault(cfg.Postgres.Database, "perpcore"))
	cfg.Postgres.SSLMode = getEnvOrDefault("POSTGRES_SSLMODE", orDefault(cfg.Postgres.SSLMode, "disable"))

	cfg.Exchange.BaseURL = getEnvOrDefault("EXCHANGE_BASE_URL", cfg.Exchange.BaseURL)
	cfg.Exchange.TestNet = getEnvOrDefault("EXCHANGE_TESTNET", "false") == "true"
	cfg.Exchange.MockMode = getEnvOrDefault("EXCHANGE_MOCK_MODE", "false") == "true"
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64OrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func orDefault(v, d string) string {
	if v == "" {
		return d
	}
	return v
}

func orDefaultInt(v, d int) int {
	if v == 0 {
		return d
	}
	return v
}

func orDefaultInt64(v, d int64) int64 {
	if v == 0 {
		return d
	}
	return v
}

func orDefaultFloat(v, d float64) float64 {
	if v == 0 {
		return d
	}
	return v
}

func orDefaultDuration(v, d time.Duration) time.Duration {
	if v == 0 {
		return d
	}
	return v
}
