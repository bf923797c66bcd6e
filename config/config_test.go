package config

import (
	"os"
	"testing"
	"time"

	"tradePilot/internal/adapters/logger"
	"tradePilot/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"RISK_PROFILE", "RISK_FILE", "SYMBOLS", "UPDATE_INTERVAL_SECONDS", "HEARTBEAT_SECONDS",
	"AUTO_START", "AUTO_STOP", "GATEWAY", "PAPER_TRADING", "BINANCE_API_KEY", "BINANCE_API_SECRET",
	"PAPER_STARTING_CASH", "CONNECT_TIMEOUT_SECONDS", "MAX_RECONNECT_ATTEMPTS", "RECONNECT_DELAY_SECONDS",
	"MAX_RESTART_ATTEMPTS", "RESTART_BACKOFF_SECONDS", "AUDIT_DRIVER", "DB_PATH", "DATABASE_URL",
	"HTTP_ADDR", "TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID", "DISCORD_WEBHOOK_URL",
	"MARKET_TIMEZONE", "MARKET_EXTRA_HOLIDAYS", "STRATEGY_SHORT_MA_PERIOD", "STRATEGY_LONG_MA_PERIOD",
	"STRATEGY_EMA_PERIOD", "STRATEGY_RSI_PERIOD", "STRATEGY_RSI_OVERBOUGHT", "STRATEGY_RSI_OVERSOLD",
	"LOG_LEVEL",
}

// clearEnv unsets every key LoadConfig reads; t.Setenv restores them after
// the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "balanced", cfg.RiskProfile)
	assert.Equal(t, []string{"AAPL", "MSFT", "GOOGL"}, cfg.Symbols)
	assert.Equal(t, 60*time.Second, cfg.UpdateInterval)
	assert.Equal(t, 5*time.Second, cfg.HeartbeatInterval)
	assert.True(t, cfg.AutoStart)
	assert.True(t, cfg.AutoStop)
	assert.Equal(t, GatewayPaper, cfg.Gateway)
	assert.True(t, cfg.PaperTrading)
	assert.Equal(t, 100000.0, cfg.PaperStartingCash)
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 5, cfg.MaxReconnectAttempts)
	assert.Equal(t, 2*time.Second, cfg.ReconnectDelay)
	assert.Equal(t, 3, cfg.MaxRestartAttempts)
	assert.Equal(t, 5*time.Second, cfg.RestartBackoff)
	assert.Equal(t, AuditSQLite, cfg.AuditDriver)
	assert.Equal(t, "./data/trade_pilot.db", cfg.DBPath)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "America/New_York", cfg.MarketTimezone)
	assert.Empty(t, cfg.MarketExtraHolidays)
	assert.Equal(t, 20, cfg.StrategyShortMAPeriod)
	assert.Equal(t, 50, cfg.StrategyLongMAPeriod)
	assert.Equal(t, logger.LevelInfo, cfg.LogLevel)
}

func TestLoadConfigOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("RISK_PROFILE", "Aggressive")
	t.Setenv("SYMBOLS", " BTCUSDT, ,ETHUSDT ")
	t.Setenv("GATEWAY", "binance")
	t.Setenv("BINANCE_API_KEY", "k")
	t.Setenv("BINANCE_API_SECRET", "s")
	t.Setenv("AUDIT_DRIVER", "gorm-postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/pilot")
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("MARKET_EXTRA_HOLIDAYS", "2025-01-09")
	t.Setenv("AUTO_STOP", "false")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "aggressive", cfg.RiskProfile)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, cfg.Symbols)
	assert.Equal(t, GatewayBinance, cfg.Gateway)
	assert.Equal(t, AuditGormPostgres, cfg.AuditDriver)
	assert.Empty(t, cfg.HTTPAddr, "an explicitly empty HTTP_ADDR disables the API")
	assert.Equal(t, []string{"2025-01-09"}, cfg.MarketExtraHolidays)
	assert.False(t, cfg.AutoStop)
	assert.Equal(t, logger.LevelDebug, cfg.LogLevel)
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantMsg string
	}{
		{"unknown profile", map[string]string{"RISK_PROFILE": "yolo"}, "RISK_PROFILE"},
		{"binance without keys", map[string]string{"GATEWAY": "binance"}, "BINANCE_API_KEY"},
		{"unknown gateway", map[string]string{"GATEWAY": "ftx"}, "GATEWAY"},
		{"bad interval", map[string]string{"UPDATE_INTERVAL_SECONDS": "soon"}, "UPDATE_INTERVAL_SECONDS"},
		{"zero heartbeat", map[string]string{"HEARTBEAT_SECONDS": "0"}, "HEARTBEAT_SECONDS must be positive"},
		{"postgres without url", map[string]string{"AUDIT_DRIVER": "gorm-postgres"}, "DATABASE_URL"},
		{"half telegram", map[string]string{"TELEGRAM_BOT_TOKEN": "t"}, "TELEGRAM_CHAT_ID"},
		{"bad holiday", map[string]string{"MARKET_EXTRA_HOLIDAYS": "9/1/2025"}, "MARKET_EXTRA_HOLIDAYS"},
		{"ma periods", map[string]string{"STRATEGY_SHORT_MA_PERIOD": "60"}, "STRATEGY_SHORT_MA_PERIOD"},
		{"negative cash", map[string]string{"PAPER_STARTING_CASH": "-1"}, "PAPER_STARTING_CASH"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := LoadConfig()
			assert.Nil(t, cfg)
			assert.ErrorIs(t, err, ports.ErrConfiguration)
			assert.ErrorContains(t, err, tt.wantMsg)
		})
	}
}

func TestLoadConfigCollectsAllErrors(t *testing.T) {
	clearEnv(t)
	t.Setenv("GATEWAY", "binance")
	t.Setenv("AUDIT_DRIVER", "mongo")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.ErrorContains(t, err, "BINANCE_API_KEY")
	assert.ErrorContains(t, err, "BINANCE_API_SECRET")
	assert.ErrorContains(t, err, "AUDIT_DRIVER")
}
