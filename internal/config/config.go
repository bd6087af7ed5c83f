package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	ModeCLI   = "cli"
	ModeServe = "serve"
)

// Config struct for environment variables.
type Config struct {
	Mode string `envconfig:"MODE" default:"cli"`

	SeafileBaseURL   string        `envconfig:"SEAFILE_BASE_URL" default:"https://cloud.tsinghua.edu.cn"`
	SeafileUserAgent string        `envconfig:"SEAFILE_USER_AGENT"`
	HTTPTimeout      time.Duration `envconfig:"HTTP_TIMEOUT" default:"0s"`

	ShareLink     string   `envconfig:"SHARE_LINK"`
	SharePassword string   `envconfig:"SHARE_PASSWORD"`
	TargetDir     string   `envconfig:"TARGET_DIR"`
	Select        []string `envconfig:"SELECT"`

	LogLevel          string        `envconfig:"LOG_LEVEL" default:"INFO"`
	DBPath            string        `envconfig:"DB_PATH"`
	KeepHistoryFor    time.Duration `envconfig:"KEEP_HISTORY_FOR" default:"720h"`
	CleanupInterval   time.Duration `envconfig:"CLEANUP_INTERVAL" default:"1h"`
	DiscordWebhookURL string        `envconfig:"DISCORD_WEBHOOK_URL"`

	Telemetry struct {
		Enabled      bool          `split_words:"true" default:"false"`
		ServiceName  string        `split_words:"true" default:"seafile_downloader"`
		OTLPEndpoint string        `split_words:"true"`
		OTLPInterval time.Duration `split_words:"true" default:"30s"`
	}

	Web struct {
		BindAddress     string        `split_words:"true" default:"0.0.0.0:9091"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"0s"`
		IdleTimeout     time.Duration `split_words:"true" default:"60s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
		Username        string        `split_words:"true"`
		Password        string        `split_words:"true"`
	}
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the settings each mode needs.
func (c *Config) Validate() error {
	var errs []error

	switch c.Mode {
	case ModeCLI:
		if c.ShareLink == "" {
			errs = append(errs, errors.New("SHARE_LINK is required in cli mode"))
		}

		if c.TargetDir == "" {
			errs = append(errs, errors.New("TARGET_DIR is required in cli mode"))
		}
	case ModeServe:
		if (c.Web.Username == "") != (c.Web.Password == "") {
			errs = append(errs, errors.New("WEB_USERNAME and WEB_PASSWORD must be set together"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid MODE %q: want %s or %s", c.Mode, ModeCLI, ModeServe))
	}

	if c.SeafileBaseURL == "" {
		errs = append(errs, errors.New("SEAFILE_BASE_URL must not be empty"))
	}

	if c.HTTPTimeout < 0 {
		errs = append(errs, errors.New("HTTP_TIMEOUT must not be negative"))
	}

	return errors.Join(errs...)
}

// Password returns the share password, or nil when none is configured.
func (c *Config) Password() *string {
	if c.SharePassword == "" {
		return nil
	}

	pw := c.SharePassword

	return &pw
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
