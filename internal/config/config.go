// Package config loads application configuration from a YAML file with
// environment-variable overrides for deployment settings.
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	ListenAddr  string `yaml:"listen_addr"`
	MetricsAddr string `yaml:"metrics_addr"`

	DataSource struct {
		BaseURL        string `yaml:"base_url"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"data_source"`

	Redis struct {
		Addr            string `yaml:"addr"` // empty disables the candle cache
		Password        string `yaml:"password"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	} `yaml:"redis"`

	Backtest struct {
		Workers int    `yaml:"workers"`
		LogDir  string `yaml:"log_dir"`
	} `yaml:"backtest"`

	Notify struct {
		WebhookURL       string `yaml:"webhook_url"`
		TelegramBotToken string `yaml:"telegram_bot_token"`
		TelegramChatID   string `yaml:"telegram_chat_id"`
	} `yaml:"notify"`

	Live struct {
		LogDir              string  `yaml:"log_dir"`
		StartBalance        float64 `yaml:"start_balance"`
		PollIntervalSeconds int     `yaml:"poll_interval_seconds"`
		CandleLimit         int     `yaml:"candle_limit"`
		PositionSizePct     float64 `yaml:"position_size_pct"`
		StatusPushSeconds   int     `yaml:"status_push_seconds"`
	} `yaml:"live"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{
		ListenAddr:  ":8000",
		MetricsAddr: ":9090",
	}
	cfg.DataSource.BaseURL = "https://api.binance.com"
	cfg.DataSource.TimeoutSeconds = 10
	cfg.Redis.CacheTTLSeconds = 30
	cfg.Backtest.Workers = 8
	cfg.Backtest.LogDir = "trade_logs"
	cfg.Live.LogDir = "papertrade_trade_logs"
	cfg.Live.StartBalance = 1000
	cfg.Live.PollIntervalSeconds = 60
	cfg.Live.CandleLimit = 100
	cfg.Live.PositionSizePct = 0.10
	cfg.Live.StatusPushSeconds = 5
	return cfg
}

// Load reads the YAML config at path, falling back to defaults when the
// file does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// defaults only
	case err != nil:
		return nil, errors.Wrap(err, "read config")
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(err, "parse config")
		}
	}

	cfg.ListenAddr = getEnv("LISTEN_ADDR", cfg.ListenAddr)
	cfg.MetricsAddr = getEnv("METRICS_ADDR", cfg.MetricsAddr)
	cfg.DataSource.BaseURL = getEnv("DATA_SOURCE_URL", cfg.DataSource.BaseURL)
	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Notify.WebhookURL = getEnv("NOTIFY_WEBHOOK_URL", cfg.Notify.WebhookURL)
	cfg.Notify.TelegramBotToken = getEnv("TELEGRAM_BOT_TOKEN", cfg.Notify.TelegramBotToken)
	cfg.Notify.TelegramChatID = getEnv("TELEGRAM_CHAT_ID", cfg.Notify.TelegramChatID)
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.DataSource.BaseURL == "" {
		return errors.New("data_source.base_url is required")
	}
	if c.Live.PollIntervalSeconds <= 0 {
		return errors.New("live.poll_interval_seconds must be positive")
	}
	if c.Live.PositionSizePct <= 0 || c.Live.PositionSizePct >= 1 {
		return errors.New("live.position_size_pct must be in (0, 1)")
	}
	if c.Backtest.Workers <= 0 {
		return errors.New("backtest.workers must be positive")
	}
	return nil
}

// PollInterval returns the live polling cadence as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Live.PollIntervalSeconds) * time.Second
}

// FetchTimeout returns the data-source HTTP timeout.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.DataSource.TimeoutSeconds) * time.Second
}

// CacheTTL returns the candle cache TTL.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Redis.CacheTTLSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
