// Package config loads process-lifetime configuration from the environment
// (optionally seeded from a .env file via godotenv for local development)
// into a single immutable struct passed into every component's constructor
// rather than read ad hoc from os.Getenv.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppMode gates live execution: PAPER is always safe, LIVE additionally
// requires AllowLiveExecution to be set.
type AppMode string

const (
	ModePaper AppMode = "PAPER"
	ModeLive  AppMode = "LIVE"
)

type Config struct {
	AppMode             AppMode
	AllowLiveExecution  bool
	PreferredBroker     string // "tradier" | "alpaca"
	TradierAPIKey       string
	TradierAccountID    string
	TradierSandbox      bool
	AlpacaAPIKey        string
	AlpacaSecretKey     string
	AlpacaPaper         bool
	DatabaseURL         string
	HMACSecret          string
	JWTSecret           string
	APIAuthToken        string
	MarketDataProvider  string
	PolygonAPIKey       string
	AlphaVantageAPIKey  string
	TwelveDataAPIKey    string
	HTTPPort            string

	// Timeouts & windows.
	BrokerTimeout      time.Duration
	MarketCacheTTL     time.Duration
	ScheduleCacheTTL   time.Duration
	RegimeFlipCooldown time.Duration
	DedupWindow        time.Duration
	DedupExpiry        time.Duration
	StaleCacheGrace    time.Duration

	PositionRefreshInterval time.Duration
	FillPollInterval        time.Duration

	// PortfolioValue feeds the per-trade risk cap in position sizing.
	PortfolioValue float64
	RiskPerTrade   float64
}

// Load reads .env (if present; missing file is not an error) and then the
// process environment, applying sensible defaults for anything unset.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		AppMode:            AppMode(strings.ToUpper(getEnv("APP_MODE", string(ModePaper)))),
		AllowLiveExecution: getBool("ALLOW_LIVE_EXECUTION", false),
		PreferredBroker:    strings.ToLower(getEnv("PREFERRED_BROKER", "alpaca")),
		TradierAPIKey:      os.Getenv("TRADIER_API_KEY"),
		TradierAccountID:   os.Getenv("TRADIER_ACCOUNT_ID"),
		TradierSandbox:     getBool("TRADIER_SANDBOX", true),
		AlpacaAPIKey:       os.Getenv("ALPACA_API_KEY"),
		AlpacaSecretKey:    os.Getenv("ALPACA_SECRET_KEY"),
		AlpacaPaper:        getBool("ALPACA_PAPER", true),
		DatabaseURL:        getEnv("DATABASE_URL", "file:optionstrat.db?_pragma=busy_timeout(5000)"),
		HMACSecret:         os.Getenv("HMAC_SECRET"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		APIAuthToken:       os.Getenv("API_AUTH_TOKEN"),
		MarketDataProvider: getEnv("MARKET_DATA_PROVIDER", "polygon"),
		PolygonAPIKey:      os.Getenv("POLYGON_API_KEY"),
		AlphaVantageAPIKey: os.Getenv("ALPHA_VANTAGE_API_KEY"),
		TwelveDataAPIKey:   os.Getenv("TWELVEDATA_API_KEY"),
		HTTPPort:           getEnv("PORT", "8080"),

		BrokerTimeout:      getDuration("BROKER_TIMEOUT_MS", 10_000),
		MarketCacheTTL:     60 * time.Second,
		ScheduleCacheTTL:   60 * time.Second,
		RegimeFlipCooldown: 900 * time.Second,
		DedupWindow:        60 * time.Second,
		DedupExpiry:        5 * time.Minute,
		StaleCacheGrace:    5 * time.Minute,

		PositionRefreshInterval: getDuration("POSITION_REFRESH_INTERVAL_MS", 30_000),
		FillPollInterval:        getDuration("FILL_POLL_INTERVAL_MS", 5_000),

		PortfolioValue: getFloat("PORTFOLIO_VALUE", 100_000),
		RiskPerTrade:   getFloat("RISK_PER_TRADE", 0.02),
	}
	return cfg
}

// IsLive reports whether both flags agree that orders may reach a live
// broker; either flag alone keeps execution paper-only.
func (c *Config) IsLive() bool {
	return c.AppMode == ModeLive && c.AllowLiveExecution
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getDuration(key string, defMillis int64) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return time.Duration(defMillis) * time.Millisecond
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Duration(defMillis) * time.Millisecond
	}
	return time.Duration(ms) * time.Millisecond
}
