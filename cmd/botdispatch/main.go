// Command botdispatch runs a small demo bot on top of the botdispatch
// router: fixed and pattern commands, a paged inline keyboard, inline
// queries and optional SQL-backed user tracking.
//
// Configuration comes from BOT_* environment variables (see package config).
// Updates are long-polled unless BOT_WEBHOOK_ADDR is set.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bjaus/botdispatch"
	"github.com/bjaus/botdispatch/botapi"
	"github.com/bjaus/botdispatch/config"
	"github.com/bjaus/botdispatch/sqlauth"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "botdispatch:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := cfg.Logger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := botapi.New(cfg.Token,
		botapi.WithBaseURL(cfg.APIBaseURL),
		botapi.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
		botapi.WithRateLimit(cfg.RateLimit, cfg.RateBurst),
		botapi.WithLogger(logger),
	)

	username := cfg.Username
	if username == "" {
		me, err := client.GetMe(ctx)
		if err != nil {
			return fmt.Errorf("identify bot: %w", err)
		}
		username = me.Username
	}

	exec := botdispatch.NewExecutor(client, botdispatch.WithExecutorLogger(logger))
	exec.SetParseMode(cfg.ParseMode)
	exec.SetDisableWebPagePreview(cfg.DisableWebPagePreview)

	r := botdispatch.New(
		botdispatch.WithExecutor(exec),
		botdispatch.WithLogger(logger),
		botdispatch.WithBotUsername(username),
		botdispatch.WithDynamicCallbacks(cfg.DynamicCallbacks),
		botdispatch.WithPreHandlerPolicy(cfg.PreHandlerPolicy()),
		botdispatch.WithOnFailure(func(ctx context.Context, o botdispatch.Outcome, err error, d time.Duration) {
			logger.WarnContext(ctx, "update not handled",
				"dispatch_id", o.ID, "route", o.Route.String(), "error", err, "duration", d)
		}),
	)

	var store *sqlauth.Store
	if cfg.AuthDSN != "" {
		db, err := sql.Open("sqlite", cfg.AuthDSN)
		if err != nil {
			return fmt.Errorf("open auth db: %w", err)
		}
		defer db.Close()

		store, err = sqlauth.New(db, sqlauth.Options{
			Table:  cfg.AuthTable,
			Fields: map[string]any{"page": 1, "last_seen": 0},
			Logger: logger,
		})
		if err != nil {
			return err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		r.AddPreHandler("auth", store.PreHandler())
	}

	if err := register(r, store); err != nil {
		return err
	}

	botOpts := []botdispatch.BotOption{
		botdispatch.WithBotLogger(logger),
		botdispatch.WithConcurrency(cfg.Concurrency),
		botdispatch.WithWebhookSecret(cfg.WebhookSecret),
	}
	if f := cfg.UpdateFilter(); f != nil {
		botOpts = append(botOpts, botdispatch.WithUpdateFilter(f))
	}
	b := botdispatch.NewBot(r, exec, botOpts...)

	if cfg.Webhook() {
		return serveWebhook(ctx, cfg, client, b, logger)
	}

	if err := client.DeleteWebhook(ctx, false); err != nil {
		return fmt.Errorf("switch to polling: %w", err)
	}
	logger.InfoContext(ctx, "polling for updates", "bot", username)
	offset, err := b.Poll(ctx, botdispatch.PollOptions{
		Timeout:        cfg.PollTimeout,
		Limit:          cfg.PollLimit,
		AllowedUpdates: cfg.AllowedUpdates,
	})
	logger.InfoContext(context.Background(), "polling stopped", "offset", offset)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func serveWebhook(ctx context.Context, cfg *config.Config, client *botapi.Client, b *botdispatch.Bot, logger *slog.Logger) error {
	if cfg.WebhookURL != "" {
		err := client.SetWebhook(ctx, botapi.Webhook{
			URL:            cfg.WebhookURL,
			SecretToken:    cfg.WebhookSecret,
			AllowedUpdates: cfg.AllowedUpdates,
			MaxConnections: cfg.Concurrency,
		})
		if err != nil {
			return fmt.Errorf("set webhook: %w", err)
		}
	}

	mux := http.NewServeMux()
	mux.Handle("POST "+cfg.WebhookPath, b)
	srv := &http.Server{
		Addr:              cfg.WebhookAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.InfoContext(ctx, "serving webhook", "addr", cfg.WebhookAddr, "path", cfg.WebhookPath)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

const pageSize = 5

// register wires the demo handlers.
func register(r *botdispatch.Router, store *sqlauth.Store) error {
	r.RegisterSimpleCommand("start", "Hi! Try /help.")
	r.RegisterSimpleCommand("help", "/get_<n> shows item n\n/list opens the item list")

	r.RegisterCommand("list", func(ctx context.Context, c *botdispatch.Controller, cmd botdispatch.Command) (botdispatch.Action, error) {
		page := 1
		if au, ok := botdispatch.PreHandledAs[*sqlauth.AuthUser](c.PreHandled(), "auth"); ok {
			if p, ok := au.Fields["page"].(int64); ok && p > 0 {
				page = int(p)
			}
		}
		return cmd.Message.Answer(listText(page), botdispatch.Params{"reply_markup": pager(page)}), nil
	})

	if err := r.RegisterDynamicCommand("get_%d", func(ctx context.Context, c *botdispatch.Controller, cmd botdispatch.Command) (botdispatch.Action, error) {
		return cmd.Message.Reply("Item #" + cmd.Params[1]), nil
	}); err != nil {
		return err
	}

	r.RegisterCommandFallback(func(ctx context.Context, c *botdispatch.Controller, cmd botdispatch.Command) (botdispatch.Action, error) {
		return cmd.Message.Answer("Unknown command /" + cmd.Name + ". Try /help."), nil
	})

	r.RegisterStandardMessage(func(ctx context.Context, c *botdispatch.Controller, m *botdispatch.Message) (botdispatch.Action, error) {
		if m.Text == "" {
			return botdispatch.DoNothing(), nil
		}
		return m.Reply(m.Text), nil
	})

	if err := r.RegisterDynamicCallback("page_%d", func(ctx context.Context, c *botdispatch.Controller, cb botdispatch.Callback) (botdispatch.Action, error) {
		page, err := strconv.Atoi(cb.Params[1])
		if err != nil || page < 1 {
			return cb.Query.Answer(botdispatch.Params{"text": "No such page"}), nil
		}
		actions := []botdispatch.Action{
			cb.Query.Answer(),
			cb.Query.EditText(listText(page), botdispatch.Params{"reply_markup": pager(page)}),
		}
		if store != nil {
			id := cb.Query.From.ID
			actions = append(actions, botdispatch.CallLocalFunction(func(ctx context.Context, _ ...any) (any, error) {
				return nil, store.Update(ctx, id, map[string]any{"page": page, "last_seen": time.Now().Unix()})
			}))
		}
		return botdispatch.Multiple(actions...), nil
	}); err != nil {
		return err
	}
	// The pager buttons only work through the page_%d route.
	r.EnableDynamicCallbacks()

	r.RegisterCallback("close", func(ctx context.Context, c *botdispatch.Controller, cb botdispatch.Callback) (botdispatch.Action, error) {
		if cb.Query.Message == nil {
			return cb.Query.Answer(), nil
		}
		m := cb.Query.Message
		return botdispatch.Multiple(
			cb.Query.Answer(),
			botdispatch.EditMessageReplyMarkup(m.Chat.IDString(), m.ID, false),
		), nil
	})

	r.RegisterCallback("read", func(ctx context.Context, c *botdispatch.Controller, cb botdispatch.Callback) (botdispatch.Action, error) {
		return botdispatch.Multiple(
			cb.Query.Answer(botdispatch.Params{"text": "Marked as read"}),
			cb.Query.EditText("✓ read"),
		), nil
	})

	r.RegisterCallbackFallback(func(ctx context.Context, c *botdispatch.Controller, cb botdispatch.Callback) (botdispatch.Action, error) {
		return cb.Query.Answer(botdispatch.Params{"text": "This button no longer works"}), nil
	})

	r.RegisterInlineQuery(func(ctx context.Context, c *botdispatch.Controller, q *botdispatch.InlineQuery) (botdispatch.Action, error) {
		if q.Query == "" {
			return botdispatch.DoNothing(), nil
		}
		return botdispatch.CallRemoteMethod("answerInlineQuery", botdispatch.Params{
			"inline_query_id": q.ID,
			"cache_time":      0,
			"results": []map[string]any{{
				"type":                  "article",
				"id":                    "echo",
				"title":                 "Send " + q.Query,
				"input_message_content": map[string]any{"message_text": q.Query},
				"reply_markup":          readMarkup(),
			}},
		}), nil
	})

	r.RegisterChosenInlineResult(func(ctx context.Context, c *botdispatch.Controller, res *botdispatch.ChosenInlineResult) (botdispatch.Action, error) {
		return res.EditText(res.Query+" (sent via inline mode)", botdispatch.Params{"reply_markup": readMarkup()}), nil
	})
	return nil
}

func readMarkup() map[string]any {
	return map[string]any{"inline_keyboard": [][]map[string]string{{{"text": "Mark as read", "callback_data": "read"}}}}
}

func listText(page int) string {
	first := (page-1)*pageSize + 1
	return fmt.Sprintf("Items %d-%d (page %d)", first, first+pageSize-1, page)
}

func pager(page int) map[string]any {
	row := []map[string]string{}
	if page > 1 {
		row = append(row, map[string]string{"text": "« Prev", "callback_data": "page_" + strconv.Itoa(page-1)})
	}
	row = append(row,
		map[string]string{"text": "Close", "callback_data": "close"},
		map[string]string{"text": "Next »", "callback_data": "page_" + strconv.Itoa(page+1)},
	)
	return map[string]any{"inline_keyboard": [][]map[string]string{row}}
}
