package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all Gluco Guardian configuration.
type Config struct {
	Storage     StorageConfig     `mapstructure:"storage"`
	Server      ServerConfig      `mapstructure:"server"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
	Providers   ProvidersConfig   `mapstructure:"providers"`
	Alerts      AlertsConfig      `mapstructure:"alerts"`
	Lock        LockConfig        `mapstructure:"lock"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// StorageConfig defines database settings.
type StorageConfig struct {
	Path          string `mapstructure:"path"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// ServerConfig defines the HTTP API settings.
type ServerConfig struct {
	Listen       string        `mapstructure:"listen"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// SchedulerConfig defines polling and daily job settings.
type SchedulerConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Concurrency  int           `mapstructure:"concurrency"`
	SummaryAt    string        `mapstructure:"summary_at"`
	RetentionAt  string        `mapstructure:"retention_at"`
}

// CredentialsConfig holds the secret stored provider credentials are sealed with.
type CredentialsConfig struct {
	Secret string `mapstructure:"secret"`
}

// ProvidersConfig groups the upstream provider settings.
type ProvidersConfig struct {
	Share      ShareConfig      `mapstructure:"share"`
	OAuth      OAuthConfig      `mapstructure:"oauth"`
	Nightscout NightscoutConfig `mapstructure:"nightscout"`
}

// ShareConfig defines the username/password provider settings.
type ShareConfig struct {
	ApplicationID string        `mapstructure:"application_id"`
	DefaultRegion string        `mapstructure:"default_region"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// OAuthConfig defines the OAuth provider settings.
type OAuthConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	ClientID          string        `mapstructure:"client_id"`
	ClientSecret      string        `mapstructure:"client_secret"`
	RedirectURI       string        `mapstructure:"redirect_uri"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// NightscoutConfig defines the self-hosted provider settings.
type NightscoutConfig struct {
	MaxEntries int           `mapstructure:"max_entries"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// AlertsConfig defines push delivery channels.
type AlertsConfig struct {
	Slack   SlackConfig   `mapstructure:"slack"`
	Webhook WebhookConfig `mapstructure:"webhook"`
}

// SlackConfig defines Slack webhook settings.
type SlackConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	WebhookURL string `mapstructure:"webhook_url"`
	Channel    string `mapstructure:"channel"`
}

// WebhookConfig defines the push gateway webhook settings.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Secret  string `mapstructure:"secret"`
}

// LockConfig defines the sync lock backend.
type LockConfig struct {
	TTL   time.Duration `mapstructure:"ttl"`
	Redis RedisConfig   `mapstructure:"redis"`
}

// RedisConfig defines the Redis connection. An empty Addr keeps locks in process.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("find home directory: %w", err)
		}

		v.AddConfigPath(filepath.Join(home, ".glucoguard"))
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	// Defaults
	home, _ := os.UserHomeDir()
	v.SetDefault("storage.path", filepath.Join(home, ".glucoguard", "glucoguard.db"))
	v.SetDefault("storage.retention_days", 90)
	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("scheduler.poll_interval", "5m")
	v.SetDefault("scheduler.concurrency", 8)
	v.SetDefault("scheduler.summary_at", "00:05")
	v.SetDefault("scheduler.retention_at", "03:30")
	v.SetDefault("credentials.secret", "")
	v.SetDefault("providers.share.application_id", "")
	v.SetDefault("providers.share.default_region", "us")
	v.SetDefault("providers.share.timeout", "30s")
	v.SetDefault("providers.oauth.base_url", "https://api.dexcom.com")
	v.SetDefault("providers.oauth.client_id", "")
	v.SetDefault("providers.oauth.client_secret", "")
	v.SetDefault("providers.oauth.redirect_uri", "")
	v.SetDefault("providers.oauth.requests_per_minute", 60)
	v.SetDefault("providers.oauth.timeout", "30s")
	v.SetDefault("providers.nightscout.max_entries", 288)
	v.SetDefault("providers.nightscout.timeout", "15s")
	v.SetDefault("alerts.slack.channel", "#glucose-alerts")
	v.SetDefault("lock.ttl", "4m")
	v.SetDefault("lock.redis.addr", "")
	v.SetDefault("lock.redis.prefix", "glucoguard:lock:")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Environment variables
	v.SetEnvPrefix("GLUCO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}
