// Package config loads bot settings from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/bjaus/botdispatch"
)

// Config holds every setting of the bot binary.
type Config struct {
	Token       string        `env:"BOT_TOKEN,required"`
	Username    string        `env:"BOT_USERNAME"`
	APIBaseURL  string        `env:"BOT_API_BASE_URL" envDefault:"https://api.telegram.org"`
	HTTPTimeout time.Duration `env:"BOT_HTTP_TIMEOUT" envDefault:"60s"`

	ParseMode             string `env:"BOT_PARSE_MODE"`
	DisableWebPagePreview bool   `env:"BOT_DISABLE_WEB_PAGE_PREVIEW"`
	DynamicCallbacks      bool   `env:"BOT_DYNAMIC_CALLBACKS"`
	SuppressPreHandlerErr bool   `env:"BOT_SUPPRESS_PREHANDLER_ERRORS"`

	PollTimeout    time.Duration `env:"BOT_POLL_TIMEOUT" envDefault:"30s"`
	PollLimit      int           `env:"BOT_POLL_LIMIT" envDefault:"100"`
	AllowedUpdates []string      `env:"BOT_ALLOWED_UPDATES" envSeparator:","`
	Concurrency    int           `env:"BOT_CONCURRENCY" envDefault:"1"`

	PrivateOnly  bool    `env:"BOT_PRIVATE_ONLY"`
	AllowedUsers []int64 `env:"BOT_ALLOWED_USERS" envSeparator:","`

	RateLimit float64 `env:"BOT_RATE_LIMIT" envDefault:"30"`
	RateBurst int     `env:"BOT_RATE_BURST" envDefault:"5"`

	WebhookAddr   string `env:"BOT_WEBHOOK_ADDR"`
	WebhookPath   string `env:"BOT_WEBHOOK_PATH" envDefault:"/webhook"`
	WebhookURL    string `env:"BOT_WEBHOOK_URL"`
	WebhookSecret string `env:"BOT_WEBHOOK_SECRET"`

	AuthDSN   string `env:"BOT_AUTH_DSN"`
	AuthTable string `env:"BOT_AUTH_TABLE" envDefault:"users"`

	LogLevel  string `env:"BOT_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"BOT_LOG_FORMAT" envDefault:"text"`
}

// Load reads the given .env files (".env" when none are named; a missing
// file is not an error) and then parses the environment. Variables already
// set in the environment win over the files.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return Parse()
}

// Parse reads the configuration from the environment only.
func Parse() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values the environment parser cannot.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Token) == "" {
		errs = append(errs, errors.New("BOT_TOKEN is empty"))
	}
	switch c.ParseMode {
	case "", botdispatch.ParseModeMarkdown, botdispatch.ParseModeMarkdownV2, botdispatch.ParseModeHTML:
	default:
		errs = append(errs, fmt.Errorf("BOT_PARSE_MODE %q: want Markdown, MarkdownV2 or HTML", c.ParseMode))
	}
	if c.PollLimit < 1 || c.PollLimit > 100 {
		errs = append(errs, fmt.Errorf("BOT_POLL_LIMIT %d: want 1-100", c.PollLimit))
	}
	if c.PollTimeout < 0 {
		errs = append(errs, fmt.Errorf("BOT_POLL_TIMEOUT %s: must not be negative", c.PollTimeout))
	}
	if c.HTTPTimeout <= c.PollTimeout {
		errs = append(errs, fmt.Errorf("BOT_HTTP_TIMEOUT %s: must exceed BOT_POLL_TIMEOUT %s", c.HTTPTimeout, c.PollTimeout))
	}
	if c.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("BOT_CONCURRENCY %d: must be positive", c.Concurrency))
	}
	if c.RateLimit < 0 || c.RateBurst < 1 {
		errs = append(errs, fmt.Errorf("BOT_RATE_LIMIT %g / BOT_RATE_BURST %d: want a non-negative rate and a positive burst", c.RateLimit, c.RateBurst))
	}
	if c.WebhookAddr != "" && !strings.HasPrefix(c.WebhookPath, "/") {
		errs = append(errs, fmt.Errorf("BOT_WEBHOOK_PATH %q: must start with /", c.WebhookPath))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("BOT_LOG_FORMAT %q: want text or json", c.LogFormat))
	}
	return errors.Join(errs...)
}

// Webhook reports whether updates arrive by webhook rather than polling.
func (c *Config) Webhook() bool { return c.WebhookAddr != "" }

// PreHandlerPolicy maps the suppress flag to the router policy.
func (c *Config) PreHandlerPolicy() botdispatch.PreHandlerPolicy {
	if c.SuppressPreHandlerErr {
		return botdispatch.SuppressPreHandlerErrors
	}
	return botdispatch.PropagatePreHandlerErrors
}

// UpdateFilter builds the ingestion filter from PrivateOnly and
// AllowedUsers. It returns nil when neither is set.
func (c *Config) UpdateFilter() botdispatch.Discriminator {
	var ds []botdispatch.Discriminator
	if c.PrivateOnly {
		ds = append(ds, botdispatch.InChat(botdispatch.ChatPrivate))
	}
	if len(c.AllowedUsers) > 0 {
		ds = append(ds, botdispatch.FromUsers(c.AllowedUsers...))
	}
	switch len(ds) {
	case 0:
		return nil
	case 1:
		return ds[0]
	}
	return botdispatch.And(ds...)
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("BOT_LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	return l, nil
}

// Logger builds the slog logger described by LogLevel and LogFormat.
func (c *Config) Logger() *slog.Logger {
	level, _ := c.SlogLevel()
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
