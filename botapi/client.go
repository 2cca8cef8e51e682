// Package botapi is the HTTP transport for the Telegram Bot API.
//
// Client implements botdispatch.Transport: every call is a POST of a JSON
// body to {base}/bot{token}/{method}, and the response envelope is returned
// as a botdispatch.RawResult. Outbound calls can be rate limited.
package botapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/bjaus/botdispatch"
)

// DefaultBaseURL is the public Bot API endpoint.
const DefaultBaseURL = "https://api.telegram.org"

// Client calls the Bot API over HTTP. It is safe for concurrent use.
type Client struct {
	token   string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another Bot API server, such as a local
// bot API server or a test server.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient replaces the HTTP client. Its timeout must exceed the
// long-poll timeout when the client is used for getUpdates.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

// WithRateLimit allows perSecond calls per second with the given burst.
// A non-positive rate disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
	}
}

// WithLogger sets the client's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// New creates a Client for the bot identified by token.
func New(token string, opts ...Option) *Client {
	c := &Client{
		token:   token,
		baseURL: DefaultBaseURL,
		http:    &http.Client{Timeout: 60 * time.Second},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ botdispatch.Transport = (*Client)(nil)

// Call implements botdispatch.Transport.
//
// Any response carrying a JSON envelope is returned without error,
// whatever its HTTP status; the envelope's ok flag reports API failures.
func (c *Client) Call(ctx context.Context, method string, params botdispatch.Params) (botdispatch.RawResult, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return botdispatch.RawResult{}, fmt.Errorf("%s: rate limit: %w", method, err)
		}
	}

	if params == nil {
		params = botdispatch.Params{}
	}
	body, err := json.Marshal(params)
	if err != nil {
		return botdispatch.RawResult{}, fmt.Errorf("%s: encode params: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL(method), bytes.NewReader(body))
	if err != nil {
		return botdispatch.RawResult{}, fmt.Errorf("%s: %w", method, c.redact(err))
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return botdispatch.RawResult{}, fmt.Errorf("%s: %w", method, c.redact(err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return botdispatch.RawResult{}, fmt.Errorf("%s: read response: %w", method, err)
	}

	res, err := botdispatch.ParseRawResult(data)
	if err != nil {
		return botdispatch.RawResult{}, fmt.Errorf("%s: http %d: %w", method, resp.StatusCode, err)
	}
	c.logger.DebugContext(ctx, "bot api call",
		"method", method,
		"status", resp.StatusCode,
		"ok", res.OK,
		"duration", time.Since(start),
	)
	return res, nil
}

func (c *Client) methodURL(method string) string {
	return c.baseURL + "/bot" + c.token + "/" + method
}

// redact removes the token from URLs embedded in transport errors.
func (c *Client) redact(err error) error {
	var uerr *url.Error
	if c.token != "" && errors.As(err, &uerr) {
		uerr.URL = strings.ReplaceAll(uerr.URL, c.token, "<token>")
	}
	return err
}

// call performs method and turns an API failure into an error.
func (c *Client) call(ctx context.Context, method string, params botdispatch.Params) (botdispatch.RawResult, error) {
	res, err := c.Call(ctx, method, params)
	if err != nil {
		return res, err
	}
	if apiErr := res.APIError(); apiErr != nil {
		return res, fmt.Errorf("%s: %w", method, apiErr)
	}
	return res, nil
}

// GetMe returns the bot's own account.
func (c *Client) GetMe(ctx context.Context) (botdispatch.User, error) {
	res, err := c.call(ctx, "getMe", nil)
	if err != nil {
		return botdispatch.User{}, err
	}
	r := gjson.ParseBytes(res.Result)
	if !r.Get("id").Exists() {
		return botdispatch.User{}, fmt.Errorf("getMe: result has no id")
	}
	return botdispatch.User{
		ID:           r.Get("id").Int(),
		IsBot:        r.Get("is_bot").Bool(),
		FirstName:    r.Get("first_name").String(),
		LastName:     r.Get("last_name").String(),
		Username:     r.Get("username").String(),
		LanguageCode: r.Get("language_code").String(),
	}, nil
}

// Webhook describes a setWebhook registration.
type Webhook struct {
	URL                string
	SecretToken        string
	AllowedUpdates     []string
	MaxConnections     int
	DropPendingUpdates bool
}

// SetWebhook registers the URL the API delivers updates to. Long polling
// stops working while a webhook is set.
func (c *Client) SetWebhook(ctx context.Context, w Webhook) error {
	if w.URL == "" {
		return errors.New("setWebhook: empty url")
	}
	p := botdispatch.Params{"url": w.URL}
	if w.SecretToken != "" {
		p["secret_token"] = w.SecretToken
	}
	if len(w.AllowedUpdates) > 0 {
		p["allowed_updates"] = w.AllowedUpdates
	}
	if w.MaxConnections > 0 {
		p["max_connections"] = w.MaxConnections
	}
	if w.DropPendingUpdates {
		p["drop_pending_updates"] = true
	}
	_, err := c.call(ctx, "setWebhook", p)
	return err
}

// DeleteWebhook removes the webhook so getUpdates can be used.
func (c *Client) DeleteWebhook(ctx context.Context, dropPending bool) error {
	p := botdispatch.Params{}
	if dropPending {
		p["drop_pending_updates"] = true
	}
	_, err := c.call(ctx, "deleteWebhook", p)
	return err
}
