// Package config loads and validates the process configuration.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
	"github.com/tickwatch/tickwatch/internal/models"
)

// Config represents the complete application configuration.
type Config struct {
	Feed      FeedConfig          `mapstructure:"feed"`
	Watchlist []models.Instrument `mapstructure:"watchlist"`
	Rules     RulesConfig         `mapstructure:"rules"`
	Storage   StorageConfig       `mapstructure:"storage"`
	Server    ServerConfig        `mapstructure:"server"`
	Telegram  TelegramConfig      `mapstructure:"telegram"`
	Logging   LoggingConfig       `mapstructure:"logging"`
}

// FeedConfig holds upstream feed connection configuration.
// AuthMode selects the connect strategy: "token" appends the API key and
// access token to the websocket URL; "redirect" fetches the websocket
// URL from LoginURL first.
type FeedConfig struct {
	AuthMode       string        `mapstructure:"auth_mode"`
	WebsocketURL   string        `mapstructure:"websocket_url"`
	LoginURL       string        `mapstructure:"login_url"`
	APIKey         string        `mapstructure:"api_key"`
	AccessToken    string        `mapstructure:"access_token"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
}

// RulesConfig holds the alert rule thresholds.
type RulesConfig struct {
	RelativeVolumeMin float64       `mapstructure:"relative_volume_min"`
	ChangePercentMin  float64       `mapstructure:"change_percent_min"`
	Cooldown          time.Duration `mapstructure:"cooldown"`
}

// StorageConfig holds alert history persistence configuration.
type StorageConfig struct {
	DBPath    string `mapstructure:"db_path"`
	MaxAlerts int    `mapstructure:"max_alerts"`
}

// ServerConfig holds the HTTP/websocket subscriber surface configuration.
type ServerConfig struct {
	Addr    string `mapstructure:"addr"`
	Enabled bool   `mapstructure:"enabled"`
}

// TelegramConfig holds the optional Telegram notification configuration.
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	Enabled  bool   `mapstructure:"enabled"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	setDefaults(v)

	v.SetEnvPrefix("TICKWATCH")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	v.SetDefault("feed.auth_mode", "token")
	v.SetDefault("feed.reconnect_delay", "5s")

	v.SetDefault("rules.relative_volume_min", 2.0)
	v.SetDefault("rules.change_percent_min", 1.0)
	v.SetDefault("rules.cooldown", "5m")

	v.SetDefault("storage.db_path", "./data/tickwatch.db")
	v.SetDefault("storage.max_alerts", 10000)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.enabled", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid. Incomplete
// credentials or thresholds are fatal: the process must not begin
// streaming with a partial configuration.
func (c *Config) Validate() error {
	switch c.Feed.AuthMode {
	case "token":
		if c.Feed.WebsocketURL == "" {
			return fmt.Errorf("feed.websocket_url is required")
		}
		if c.Feed.APIKey == "" {
			return fmt.Errorf("feed.api_key is required")
		}
		if c.Feed.AccessToken == "" {
			return fmt.Errorf("feed.access_token is required")
		}
	case "redirect":
		if c.Feed.LoginURL == "" {
			return fmt.Errorf("feed.login_url is required when auth_mode is redirect")
		}
		if c.Feed.APIKey == "" {
			return fmt.Errorf("feed.api_key is required")
		}
	default:
		return fmt.Errorf("feed.auth_mode must be one of: token, redirect")
	}
	if c.Feed.ReconnectDelay < time.Second {
		return fmt.Errorf("feed.reconnect_delay must be at least 1 second")
	}

	if len(c.Watchlist) == 0 {
		return fmt.Errorf("watchlist must contain at least one instrument")
	}
	for _, inst := range c.Watchlist {
		if err := inst.Validate(); err != nil {
			return fmt.Errorf("invalid watchlist entry: %w", err)
		}
	}

	if c.Rules.RelativeVolumeMin <= 0 {
		return fmt.Errorf("rules.relative_volume_min must be positive")
	}
	if c.Rules.ChangePercentMin < 0 {
		return fmt.Errorf("rules.change_percent_min must not be negative")
	}
	if c.Rules.Cooldown < time.Second {
		return fmt.Errorf("rules.cooldown must be at least 1 second")
	}

	if c.Storage.MaxAlerts < 1 {
		return fmt.Errorf("storage.max_alerts must be at least 1")
	}
	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}

	if c.Server.Enabled && c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required when server is enabled")
	}

	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
