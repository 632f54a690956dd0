package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"market-analyzer/internal/indicator"
	"market-analyzer/internal/portfolio"
)

// DefaultTickers is the symbol menu offered by the CLI's -list flag.
var DefaultTickers = []string{
	// NSE
	"TCS.NS", "INFY.NS", "RELIANCE.NS", "HDFCBANK.NS", "ICICIBANK.NS",
	"KOTAKBANK.NS", "SBIN.NS", "AXISBANK.NS", "ITC.NS", "LT.NS",
	"BAJFINANCE.NS", "BHARTIARTL.NS", "HINDUNILVR.NS", "ASIANPAINT.NS", "ULTRACEMCO.NS",
	"MARUTI.NS", "TITAN.NS", "SUNPHARMA.NS", "WIPRO.NS", "DRREDDY.NS",
	"ADANIENT.NS", "ADANIGREEN.NS", "ONGC.NS", "POWERGRID.NS", "HCLTECH.NS",

	// US
	"AAPL", "MSFT", "GOOGL", "AMZN", "TSLA",
	"META", "NVDA", "NFLX", "INTC", "AMD",
	"BABA", "PYPL", "BRK-B", "JPM", "V",
	"MA", "WMT", "COST", "PEP", "KO",
	"XOM", "CVX", "BA", "PFE", "JNJ",
}

// Default backtest date range when none is given.
var (
	DefaultFrom = time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	DefaultTo   = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Indicator windows
	FastWindow  int `envconfig:"FAST_WINDOW" default:"20"`
	SlowWindow  int `envconfig:"SLOW_WINDOW" default:"50"`
	TrendWindow int `envconfig:"TREND_WINDOW" default:"100"`
	RSIWindow   int `envconfig:"RSI_WINDOW" default:"14"`

	// Position sizing and exits
	InitialCash   float64 `envconfig:"INITIAL_CASH" default:"100000"`
	StopLossPct   float64 `envconfig:"STOP_LOSS_PCT" default:"0.05"`
	TakeProfitPct float64 `envconfig:"TAKE_PROFIT_PCT" default:"0.10"`

	// Infrastructure
	SQLitePath    string        `envconfig:"SQLITE_PATH" default:"data/market.db"`
	RedisAddr     string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisEnabled  bool          `envconfig:"REDIS_ENABLED" default:"false"`
	CacheTTL      time.Duration `envconfig:"CACHE_TTL" default:"1h"`
	HTTPAddr      string        `envconfig:"HTTP_ADDR" default:":8080"`
	MetricsAddr   string        `envconfig:"METRICS_ADDR" default:":9090"`
	LogLevel      string        `envconfig:"LOG_LEVEL" default:"info"`

	// Notifications (all optional)
	WebhookURL       string `envconfig:"WEBHOOK_URL"`
	TelegramBotToken string `envconfig:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID   string `envconfig:"TELEGRAM_CHAT_ID"`

	// Runs losing more than this percentage are alerted as warnings.
	AlertLossPct float64 `envconfig:"ALERT_LOSS_PCT" default:"10"`

	// API limits
	RateLimitRPS   float64 `envconfig:"RATE_LIMIT_RPS" default:"5"`
	RateLimitBurst int     `envconfig:"RATE_LIMIT_BURST" default:"10"`

	// Batch plans
	PlanWorkers int `envconfig:"PLAN_WORKERS" default:"4"`
}

// Load reads a .env file when present, then maps environment variables
// onto Config.
func Load() (*Config, error) {
	// .env is optional; real environment variables always win.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// Indicators returns the indicator windows as an indicator.Config.
func (c *Config) Indicators() indicator.Config {
	return indicator.Config{
		Fast:  c.FastWindow,
		Slow:  c.SlowWindow,
		Trend: c.TrendWindow,
		RSI:   c.RSIWindow,
	}
}

// Risk returns the sizing and exit thresholds as portfolio.RiskLimits.
func (c *Config) Risk() portfolio.RiskLimits {
	return portfolio.RiskLimits{
		InitialCash:   c.InitialCash,
		StopLossPct:   c.StopLossPct,
		TakeProfitPct: c.TakeProfitPct,
	}
}

// BacktestDefaults returns both core configs, validated.
func (c *Config) BacktestDefaults() (indicator.Config, portfolio.RiskLimits, error) {
	ind, risk := c.Indicators(), c.Risk()
	if err := ind.Validate(); err != nil {
		return ind, risk, err
	}
	if err := risk.Validate(); err != nil {
		return ind, risk, err
	}
	return ind, risk, nil
}

// SlogLevel parses LogLevel, falling back to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// TelegramEnabled reports whether both Telegram settings are present.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramBotToken != "" && c.TelegramChatID != ""
}
