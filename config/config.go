package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"tradePilot/internal/adapters/logger"
	"tradePilot/internal/ports"
)

// Gateway and audit driver names accepted by LoadConfig.
const (
	GatewayPaper   = "paper"
	GatewayBinance = "binance"

	AuditSQLite       = "sqlite"
	AuditGormPostgres = "gorm-postgres"
	AuditGormSQLite   = "gorm-sqlite"
)

// Config holds all application configuration.
type Config struct {
	// Risk
	RiskProfile string
	RiskFile    string // optional YAML overrides, hot reloaded

	// Pipeline
	Symbols           []string
	UpdateInterval    time.Duration
	HeartbeatInterval time.Duration
	AutoStart         bool
	AutoStop          bool

	// Venue
	Gateway           string
	PaperTrading      bool // binance testnet when true
	APIKey            string
	SecretKey         string
	PaperStartingCash float64

	// Connection Settings
	ConnectTimeout       time.Duration
	MaxReconnectAttempts int
	ReconnectDelay       time.Duration

	// Supervision
	MaxRestartAttempts int
	RestartBackoff     time.Duration

	// Audit trail
	AuditDriver string
	DBPath      string
	DatabaseURL string

	// Operator surface
	HTTPAddr          string // empty disables the API
	TelegramBotToken  string
	TelegramChatID    string
	DiscordWebhookURL string

	// Calendar
	MarketTimezone      string
	MarketExtraHolidays []string

	// Strategy Parameters
	StrategyShortMAPeriod int     // e.g., 20
	StrategyLongMAPeriod  int     // e.g., 50
	StrategyEMAPeriod     int     // e.g., 20
	StrategyRSIPeriod     int     // e.g., 14
	StrategyRSIOverbought float64 // e.g., 70.0
	StrategyRSIOversold   float64 // e.g., 30.0

	// Logging
	LogLevel logger.LogLevel
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Risk
	cfg.RiskProfile = strings.ToLower(getEnv("RISK_PROFILE", "balanced"))
	switch cfg.RiskProfile {
	case "conservative", "balanced", "aggressive":
	default:
		errs = append(errs, fmt.Sprintf("RISK_PROFILE must be conservative, balanced or aggressive, got %q", cfg.RiskProfile))
	}
	cfg.RiskFile = getEnv("RISK_FILE", "")

	// Pipeline
	cfg.Symbols = getEnvAsList("SYMBOLS", []string{"AAPL", "MSFT", "GOOGL"})
	if len(cfg.Symbols) == 0 {
		errs = append(errs, "SYMBOLS must list at least one symbol")
	}
	cfg.UpdateInterval, err = getEnvAsSecondsRequired("UPDATE_INTERVAL_SECONDS", 60)
	if err != nil {
		errs = append(errs, err.Error())
	}
	cfg.HeartbeatInterval, err = getEnvAsSecondsRequired("HEARTBEAT_SECONDS", 5)
	if err != nil {
		errs = append(errs, err.Error())
	}
	cfg.AutoStart = getEnvAsBool("AUTO_START", true)
	cfg.AutoStop = getEnvAsBool("AUTO_STOP", true)

	// Venue
	cfg.Gateway = strings.ToLower(getEnv("GATEWAY", GatewayPaper))
	cfg.PaperTrading = getEnvAsBool("PAPER_TRADING", true) // Default to testnet for safety
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	switch cfg.Gateway {
	case GatewayPaper:
	case GatewayBinance:
		if cfg.APIKey == "" {
			errs = append(errs, "BINANCE_API_KEY must be set when GATEWAY=binance")
		}
		if cfg.SecretKey == "" {
			errs = append(errs, "BINANCE_API_SECRET must be set when GATEWAY=binance")
		}
	default:
		errs = append(errs, fmt.Sprintf("GATEWAY must be paper or binance, got %q", cfg.Gateway))
	}

	cfg.PaperStartingCash, err = getEnvAsFloatRequired("PAPER_STARTING_CASH", 100000)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid PAPER_STARTING_CASH: %v", err))
	} else if cfg.PaperStartingCash <= 0 {
		errs = append(errs, "PAPER_STARTING_CASH must be positive")
	}

	// Connection Settings
	cfg.ConnectTimeout, err = getEnvAsSecondsRequired("CONNECT_TIMEOUT_SECONDS", 10)
	if err != nil {
		errs = append(errs, err.Error())
	}
	cfg.MaxReconnectAttempts, err = getEnvAsIntRequired("MAX_RECONNECT_ATTEMPTS", 5)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_RECONNECT_ATTEMPTS: %v", err))
	} else if cfg.MaxReconnectAttempts <= 0 {
		errs = append(errs, "MAX_RECONNECT_ATTEMPTS must be positive")
	}
	cfg.ReconnectDelay, err = getEnvAsSecondsRequired("RECONNECT_DELAY_SECONDS", 2)
	if err != nil {
		errs = append(errs, err.Error())
	}

	// Supervision
	cfg.MaxRestartAttempts, err = getEnvAsIntRequired("MAX_RESTART_ATTEMPTS", 3)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_RESTART_ATTEMPTS: %v", err))
	} else if cfg.MaxRestartAttempts < 0 {
		errs = append(errs, "MAX_RESTART_ATTEMPTS cannot be negative")
	}
	cfg.RestartBackoff, err = getEnvAsSecondsRequired("RESTART_BACKOFF_SECONDS", 5)
	if err != nil {
		errs = append(errs, err.Error())
	}

	// Audit trail
	cfg.AuditDriver = strings.ToLower(getEnv("AUDIT_DRIVER", AuditSQLite))
	cfg.DBPath = getEnv("DB_PATH", "./data/trade_pilot.db")
	cfg.DatabaseURL = getEnv("DATABASE_URL", "")
	switch cfg.AuditDriver {
	case AuditSQLite, AuditGormSQLite:
		if cfg.DBPath == "" {
			errs = append(errs, "DB_PATH must be set")
		}
	case AuditGormPostgres:
		if cfg.DatabaseURL == "" {
			errs = append(errs, "DATABASE_URL must be set when AUDIT_DRIVER=gorm-postgres")
		}
	default:
		errs = append(errs, fmt.Sprintf("AUDIT_DRIVER must be sqlite, gorm-sqlite or gorm-postgres, got %q", cfg.AuditDriver))
	}

	// Operator surface
	cfg.HTTPAddr = ":8080"
	if v, ok := os.LookupEnv("HTTP_ADDR"); ok {
		cfg.HTTPAddr = strings.TrimSpace(v)
	}
	cfg.TelegramBotToken = getEnv("TELEGRAM_BOT_TOKEN", "")
	cfg.TelegramChatID = getEnv("TELEGRAM_CHAT_ID", "")
	if (cfg.TelegramBotToken == "") != (cfg.TelegramChatID == "") {
		errs = append(errs, "TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID must be set together")
	}
	cfg.DiscordWebhookURL = getEnv("DISCORD_WEBHOOK_URL", "")

	// Calendar
	cfg.MarketTimezone = getEnv("MARKET_TIMEZONE", "America/New_York")
	cfg.MarketExtraHolidays = getEnvAsList("MARKET_EXTRA_HOLIDAYS", nil)
	for _, d := range cfg.MarketExtraHolidays {
		if _, err := time.Parse("2006-01-02", d); err != nil {
			errs = append(errs, fmt.Sprintf("MARKET_EXTRA_HOLIDAYS entry %q is not YYYY-MM-DD", d))
		}
	}

	// Strategy Parameters (using defaults if not set)
	cfg.StrategyShortMAPeriod = getEnvAsInt("STRATEGY_SHORT_MA_PERIOD", 20)
	cfg.StrategyLongMAPeriod = getEnvAsInt("STRATEGY_LONG_MA_PERIOD", 50)
	cfg.StrategyEMAPeriod = getEnvAsInt("STRATEGY_EMA_PERIOD", 20)
	cfg.StrategyRSIPeriod = getEnvAsInt("STRATEGY_RSI_PERIOD", 14)
	cfg.StrategyRSIOverbought = getEnvAsFloat("STRATEGY_RSI_OVERBOUGHT", 70.0)
	cfg.StrategyRSIOversold = getEnvAsFloat("STRATEGY_RSI_OVERSOLD", 30.0)

	if cfg.StrategyShortMAPeriod <= 0 || cfg.StrategyLongMAPeriod <= 0 || cfg.StrategyEMAPeriod <= 0 || cfg.StrategyRSIPeriod <= 0 {
		errs = append(errs, "strategy periods (MA, EMA, RSI) must be positive")
	}
	if cfg.StrategyShortMAPeriod >= cfg.StrategyLongMAPeriod {
		errs = append(errs, "STRATEGY_SHORT_MA_PERIOD must be less than STRATEGY_LONG_MA_PERIOD")
	}
	if cfg.StrategyRSIOverbought <= cfg.StrategyRSIOversold || cfg.StrategyRSIOverbought >= 100 || cfg.StrategyRSIOversold <= 0 {
		errs = append(errs, "invalid RSI thresholds (Overbought must be > Oversold, between 0-100)")
	}

	// Logging
	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: configuration validation failed: %s", ports.ErrConfiguration, strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma-separated value, dropping blanks.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvAsInt(key string, defaultValue int) int {
	value, err := getEnvAsIntRequired(key, defaultValue)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

// getEnvAsSecondsRequired reads a positive whole number of seconds.
func getEnvAsSecondsRequired(key string, defaultSeconds int) (time.Duration, error) {
	seconds, err := getEnvAsIntRequired(key, defaultSeconds)
	if err != nil {
		return 0, err
	}
	if seconds <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return time.Duration(seconds) * time.Second, nil
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	value, err := getEnvAsFloatRequired(key, defaultValue)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
