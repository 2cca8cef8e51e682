package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjaus/botdispatch"
)

func TestParse(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv("BOT_TOKEN", "123:abc")

		cfg, err := Parse()
		require.NoError(t, err)
		assert.Equal(t, "https://api.telegram.org", cfg.APIBaseURL)
		assert.Equal(t, 60*time.Second, cfg.HTTPTimeout)
		assert.Equal(t, 30*time.Second, cfg.PollTimeout)
		assert.Equal(t, 100, cfg.PollLimit)
		assert.Equal(t, 1, cfg.Concurrency)
		assert.Equal(t, "/webhook", cfg.WebhookPath)
		assert.False(t, cfg.Webhook())
		assert.Equal(t, botdispatch.PropagatePreHandlerErrors, cfg.PreHandlerPolicy())
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("BOT_TOKEN", "123:abc")
		t.Setenv("BOT_PARSE_MODE", "HTML")
		t.Setenv("BOT_DISABLE_WEB_PAGE_PREVIEW", "true")
		t.Setenv("BOT_DYNAMIC_CALLBACKS", "true")
		t.Setenv("BOT_SUPPRESS_PREHANDLER_ERRORS", "true")
		t.Setenv("BOT_ALLOWED_UPDATES", "message,callback_query")
		t.Setenv("BOT_CONCURRENCY", "8")
		t.Setenv("BOT_WEBHOOK_ADDR", ":8443")
		t.Setenv("BOT_LOG_LEVEL", "debug")

		cfg, err := Parse()
		require.NoError(t, err)
		assert.Equal(t, botdispatch.ParseModeHTML, cfg.ParseMode)
		assert.True(t, cfg.DisableWebPagePreview)
		assert.True(t, cfg.DynamicCallbacks)
		assert.Equal(t, botdispatch.SuppressPreHandlerErrors, cfg.PreHandlerPolicy())
		assert.Equal(t, []string{"message", "callback_query"}, cfg.AllowedUpdates)
		assert.Equal(t, 8, cfg.Concurrency)
		assert.True(t, cfg.Webhook())

		level, err := cfg.SlogLevel()
		require.NoError(t, err)
		assert.Equal(t, slog.LevelDebug, level)
	})

	t.Run("token required", func(t *testing.T) {
		t.Setenv("BOT_TOKEN", "")
		os.Unsetenv("BOT_TOKEN")

		_, err := Parse()
		assert.ErrorContains(t, err, "BOT_TOKEN")
	})
}

func TestUpdateFilter(t *testing.T) {
	inspect := func(raw string) botdispatch.View {
		v, err := botdispatch.JSONInspector().Inspect([]byte(raw))
		require.NoError(t, err)
		return v
	}
	privateFrom7 := inspect(`{"update_id": 1, "message": {"message_id": 1, "chat": {"id": 7, "type": "private"}, "from": {"id": 7}}}`)
	groupFrom7 := inspect(`{"update_id": 2, "message": {"message_id": 1, "chat": {"id": -1, "type": "group"}, "from": {"id": 7}}}`)
	privateFrom8 := inspect(`{"update_id": 3, "message": {"message_id": 1, "chat": {"id": 8, "type": "private"}, "from": {"id": 8}}}`)

	t.Run("unset", func(t *testing.T) {
		assert.Nil(t, (&Config{}).UpdateFilter())
	})

	t.Run("from env", func(t *testing.T) {
		t.Setenv("BOT_TOKEN", "t")
		t.Setenv("BOT_PRIVATE_ONLY", "true")
		t.Setenv("BOT_ALLOWED_USERS", "7,9")

		cfg, err := Parse()
		require.NoError(t, err)
		assert.Equal(t, []int64{7, 9}, cfg.AllowedUsers)

		f := cfg.UpdateFilter()
		require.NotNil(t, f)
		assert.True(t, f.Match(privateFrom7))
		assert.False(t, f.Match(groupFrom7))
		assert.False(t, f.Match(privateFrom8))
	})

	t.Run("users only", func(t *testing.T) {
		f := (&Config{AllowedUsers: []int64{7}}).UpdateFilter()
		assert.True(t, f.Match(groupFrom7))
		assert.False(t, f.Match(privateFrom8))
	})
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Token:       "t",
			HTTPTimeout: time.Minute,
			PollTimeout: 30 * time.Second,
			PollLimit:   100,
			Concurrency: 1,
			RateLimit:   30,
			RateBurst:   5,
			WebhookPath: "/webhook",
			LogLevel:    "info",
			LogFormat:   "text",
		}
	}

	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"blank token", func(c *Config) { c.Token = "  " }, "BOT_TOKEN"},
		{"parse mode", func(c *Config) { c.ParseMode = "markdown" }, "BOT_PARSE_MODE"},
		{"poll limit", func(c *Config) { c.PollLimit = 500 }, "BOT_POLL_LIMIT"},
		{"http timeout", func(c *Config) { c.HTTPTimeout = 10 * time.Second }, "BOT_HTTP_TIMEOUT"},
		{"concurrency", func(c *Config) { c.Concurrency = 0 }, "BOT_CONCURRENCY"},
		{"burst", func(c *Config) { c.RateBurst = 0 }, "BOT_RATE_BURST"},
		{"webhook path", func(c *Config) { c.WebhookAddr = ":80"; c.WebhookPath = "hook" }, "BOT_WEBHOOK_PATH"},
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "BOT_LOG_LEVEL"},
		{"log format", func(c *Config) { c.LogFormat = "xml" }, "BOT_LOG_FORMAT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.modify(&c)
			assert.ErrorContains(t, c.Validate(), tt.want)
		})
	}

	t.Run("valid", func(t *testing.T) {
		c := valid()
		assert.NoError(t, c.Validate())
	})

	t.Run("reports every problem", func(t *testing.T) {
		c := valid()
		c.Token = ""
		c.Concurrency = 0
		err := c.Validate()
		assert.ErrorContains(t, err, "BOT_TOKEN")
		assert.ErrorContains(t, err, "BOT_CONCURRENCY")
	})
}

func TestLoad(t *testing.T) {
	t.Run("reads env file", func(t *testing.T) {
		t.Setenv("BOT_TOKEN", "")
		os.Unsetenv("BOT_TOKEN")
		t.Setenv("BOT_POLL_LIMIT", "")
		os.Unsetenv("BOT_POLL_LIMIT")

		path := filepath.Join(t.TempDir(), "bot.env")
		require.NoError(t, os.WriteFile(path, []byte("BOT_TOKEN=from-file\nBOT_POLL_LIMIT=25\n"), 0o600))
		t.Cleanup(func() {
			os.Unsetenv("BOT_TOKEN")
			os.Unsetenv("BOT_POLL_LIMIT")
		})

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "from-file", cfg.Token)
		assert.Equal(t, 25, cfg.PollLimit)
	})

	t.Run("environment wins over file", func(t *testing.T) {
		t.Setenv("BOT_TOKEN", "from-env")

		path := filepath.Join(t.TempDir(), "bot.env")
		require.NoError(t, os.WriteFile(path, []byte("BOT_TOKEN=from-file\n"), 0o600))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "from-env", cfg.Token)
	})

	t.Run("missing file is fine", func(t *testing.T) {
		t.Setenv("BOT_TOKEN", "t")

		_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
		assert.NoError(t, err)
	})
}
