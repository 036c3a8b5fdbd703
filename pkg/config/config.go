package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the trading engine.
type Config struct {
	LogLevel string
	DevMode  bool

	// Binance USDT-M futures
	BinanceTestnet   bool
	BinanceAPIKey    string
	BinanceAPISecret string
	StreamSymbols    []string
	UseMockGateway   bool

	// AI validation service (OpenAI-compatible chat endpoint)
	AIEnabled bool
	AIBaseURL string
	AIAPIKey  string
	AIModel   string

	// Engine timing
	Timeframe     string
	TickInterval  time.Duration
	AgentInterval time.Duration
	AgentCacheTTL time.Duration
	StopTimeout   time.Duration
	MaxHoldTime   time.Duration

	// Risk defaults (per user, overridable per instance)
	MaxDailyLossPct  float64 // e.g. 5.0 = 5% of balance
	MaxOpenPositions int
	MaxLeverage      int
	MarginCapPct     float64 // hard cap, e.g. 40.0
	SafetyBufferPct  float64 // e.g. 2.0

	// Transient retry
	RetryMax     int
	RetryMinWait time.Duration
	RetryMaxWait time.Duration

	// Strategy presets
	PresetsPath string

	// Database
	DBPath string
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the engine still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		DevMode:          getEnv("DEV_MODE", "false") == "true",
		BinanceTestnet:   getEnv("BINANCE_TESTNET", "false") == "true",
		BinanceAPIKey:    os.Getenv("BINANCE_API_KEY"),
		BinanceAPISecret: os.Getenv("BINANCE_API_SECRET"),
		StreamSymbols:    splitAndTrim(getEnv("STREAM_SYMBOLS", "BTCUSDT,ETHUSDT")),
		UseMockGateway:   getEnv("USE_MOCK_GATEWAY", "false") == "true",
		AIEnabled:        getEnv("AI_ENABLED", "false") == "true",
		AIBaseURL:        getEnv("AI_BASE_URL", "https://api.mistral.ai/v1"),
		AIAPIKey:         os.Getenv("AI_API_KEY"),
		AIModel:          getEnv("AI_MODEL", "mistral-small-latest"),
		Timeframe:        getEnv("TIMEFRAME", "5m"),
		TickInterval:     getEnvDuration("TICK_INTERVAL", 15*time.Second),
		AgentInterval:    getEnvDuration("AGENT_INTERVAL", 30*time.Second),
		AgentCacheTTL:    getEnvDuration("AGENT_CACHE_TTL", 45*time.Second),
		StopTimeout:      getEnvDuration("STOP_TIMEOUT", 30*time.Second),
		MaxHoldTime:      getEnvDuration("MAX_HOLD_TIME", 24*time.Hour),
		MaxDailyLossPct:  getEnvFloat("MAX_DAILY_LOSS_PCT", 5.0),
		MaxOpenPositions: getEnvInt("MAX_OPEN_POSITIONS", 3),
		MaxLeverage:      getEnvInt("MAX_LEVERAGE", 10),
		MarginCapPct:     getEnvFloat("MARGIN_CAP_PCT", 40.0),
		SafetyBufferPct:  getEnvFloat("SAFETY_BUFFER_PCT", 2.0),
		RetryMax:         getEnvInt("RETRY_MAX", 3),
		RetryMinWait:     getEnvDuration("RETRY_MIN_WAIT", 500*time.Millisecond),
		RetryMaxWait:     getEnvDuration("RETRY_MAX_WAIT", 5*time.Second),
		PresetsPath:      getEnv("PRESETS_PATH", ""),
		DBPath:           getEnv("DB_PATH", "./data/trading.db"),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
