// Package config loads application configuration from docket.yaml and
// DOCKET_* environment variables.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Portal  PortalConfig  `yaml:"portal" mapstructure:"portal"`
	OCR     OCRConfig     `yaml:"ocr" mapstructure:"ocr"`
	Session SessionConfig `yaml:"session" mapstructure:"session"`
	Refresh RefreshConfig `yaml:"refresh" mapstructure:"refresh"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// PortalConfig configures the court-records portal client.
type PortalConfig struct {
	BaseURL          string  `yaml:"base_url" mapstructure:"base_url"`
	UserAgent        string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit        float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	RateBurst        int     `yaml:"rate_burst" mapstructure:"rate_burst"`
	SettleDelaySecs  int     `yaml:"settle_delay_secs" mapstructure:"settle_delay_secs"`
	TransportRetries int     `yaml:"transport_retries" mapstructure:"transport_retries"`
}

// Timeout returns the per-call portal timeout.
func (c PortalConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// SettleDelay returns the fixed wait between PDF generation and download.
func (c PortalConfig) SettleDelay() time.Duration {
	return time.Duration(c.SettleDelaySecs) * time.Second
}

// OCRConfig configures captcha solving.
type OCRConfig struct {
	Provider      string `yaml:"provider" mapstructure:"provider"`
	TesseractPath string `yaml:"tesseract_path" mapstructure:"tesseract_path"`
	MinLength     int    `yaml:"min_length" mapstructure:"min_length"`
}

// SessionConfig configures the scrape session store.
type SessionConfig struct {
	Path    string `yaml:"path" mapstructure:"path"`
	TTLMins int    `yaml:"ttl_mins" mapstructure:"ttl_mins"`
}

// TTL returns the session time-to-live.
func (c SessionConfig) TTL() time.Duration {
	return time.Duration(c.TTLMins) * time.Minute
}

// RefreshConfig configures the bulk refresh orchestrator. Workers is the
// explicit concurrency cap; each worker consumes one full portal session
// lifecycle at a time.
type RefreshConfig struct {
	Workers     int `yaml:"workers" mapstructure:"workers"`
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts"`
	StaleHours  int `yaml:"stale_hours" mapstructure:"stale_hours"`
}

// StoreConfig configures the database backend for cases and the job ledger.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// StorageConfig configures order PDF file storage.
type StorageConfig struct {
	Root string `yaml:"root" mapstructure:"root"`
}

// LogConfig configures zap.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from docket.yaml (./, ~/.config/docket/) and
// DOCKET_* environment variables.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("docket")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/docket")

	// Environment
	v.SetEnvPrefix("DOCKET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("portal.base_url", "https://services.ecourts.gov.in/ecourtindia_v6")
	v.SetDefault("portal.user_agent", "Mozilla/5.0 (Linux; Android 6.0; Nexus 5 Build/MRA58N) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/143.0.0.0 Mobile Safari/537.36")
	v.SetDefault("portal.timeout_secs", 30)
	v.SetDefault("portal.rate_limit", 2.0)
	v.SetDefault("portal.rate_burst", 4)
	v.SetDefault("portal.settle_delay_secs", 1)
	v.SetDefault("portal.transport_retries", 3)
	v.SetDefault("ocr.provider", "tesseract")
	v.SetDefault("ocr.tesseract_path", "tesseract")
	v.SetDefault("ocr.min_length", 3)
	v.SetDefault("session.path", "docket-sessions.db")
	v.SetDefault("session.ttl_mins", 15)
	v.SetDefault("refresh.workers", 8)
	v.SetDefault("refresh.max_attempts", 5)
	v.SetDefault("refresh.stale_hours", 12)
	v.SetDefault("storage.root", "./case-files")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
