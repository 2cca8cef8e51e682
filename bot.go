package botdispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// SecretTokenHeader carries the secret configured with setWebhook.
const SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

const maxWebhookBody = 1 << 20

// ExecutionError reports that a handler's Action could not be performed.
type ExecutionError struct {
	Kind ActionKind
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execute %s: %v", e.Kind, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Bot ties a Router to an Executor and feeds it updates from a webhook or
// from long polling.
type Bot struct {
	router      *Router
	executor    *Executor
	logger      *slog.Logger
	concurrency int
	secret      string
	filter      Discriminator
}

// BotOption configures a Bot.
type BotOption func(*Bot)

// WithBotLogger sets the bot's logger.
func WithBotLogger(l *slog.Logger) BotOption {
	return func(b *Bot) {
		b.logger = l
	}
}

// WithConcurrency bounds how many updates of one polled batch are processed
// at the same time. The default of 1 processes them in order.
func WithConcurrency(n int) BotOption {
	return func(b *Bot) {
		b.concurrency = max(n, 1)
	}
}

// WithWebhookSecret makes ServeHTTP reject requests whose
// SecretTokenHeader does not equal secret.
func WithWebhookSecret(secret string) BotOption {
	return func(b *Bot) {
		b.secret = secret
	}
}

// WithUpdateFilter drops every incoming update d does not match before it
// is decoded. Dropped updates are acknowledged and their ids still advance
// the polling offset.
func WithUpdateFilter(d Discriminator) BotOption {
	return func(b *Bot) {
		b.filter = d
	}
}

// NewBot creates a Bot. The executor performs the Actions returned by
// handlers and its transport is used for getUpdates; it is normally the
// same executor the router was given with WithExecutor.
func NewBot(r *Router, e *Executor, opts ...BotOption) *Bot {
	b := &Bot{
		router:      r,
		executor:    e,
		logger:      slog.Default(),
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Router returns the bot's router.
func (b *Bot) Router() *Router { return b.router }

// Executor returns the bot's executor.
func (b *Bot) Executor() *Executor { return b.executor }

// ProcessUpdate decodes raw, dispatches it and executes the resulting
// Action. Decode and handler errors are returned as is; a failure to
// perform the Action is returned as *ExecutionError.
//
// An update rejected by the bot's update filter is not decoded; the
// returned Outcome is skipped and carries only the update id.
func (b *Bot) ProcessUpdate(ctx context.Context, raw []byte) (Outcome, Result, error) {
	u, keep, err := b.decode(raw)
	if err != nil {
		return Outcome{}, Result{}, err
	}
	if !keep {
		b.logger.DebugContext(ctx, "update filtered", "update_id", u.ID)
		return Outcome{Update: u, Status: StatusSkipped}, Result{}, nil
	}
	return b.Handle(ctx, u)
}

// decode inspects raw and decodes it unless the update filter rejects it.
func (b *Bot) decode(raw []byte) (Update, bool, error) {
	v, err := JSONInspector().Inspect(raw)
	if err != nil {
		return Update{}, false, err
	}
	if b.filter != nil && !b.filter.Match(v) {
		id, _ := v.GetInt("update_id")
		return Update{ID: id}, false, nil
	}
	u, err := DecodeView(v)
	return u, err == nil, err
}

// Handle dispatches an already decoded update and executes its Action.
func (b *Bot) Handle(ctx context.Context, u Update) (Outcome, Result, error) {
	o, err := b.router.Dispatch(ctx, u)
	if err != nil {
		return o, Result{}, err
	}
	if o.Status != StatusHandled || o.Action.Kind() == ActionDoNothing {
		return o, Result{Kind: o.Action.Kind()}, nil
	}

	res, err := b.executor.Execute(ctx, o.Action)
	if err != nil {
		return o, res, &ExecutionError{Kind: o.Action.Kind(), Err: err}
	}
	return o, res, nil
}

// ServeHTTP accepts webhook deliveries.
//
// It answers 405 to anything but POST, 401 on a secret mismatch, 400 when
// the body is not a decodable update and 500 when the handler fails, which
// makes the platform redeliver the update. A failure to perform the
// handler's Action is logged and acknowledged with 200, since redelivery
// would repeat effects that may already have happened.
func (b *Bot) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	if b.secret != "" && req.Header.Get(SecretTokenHeader) != b.secret {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	ctx := req.Context()
	u, keep, err := b.decode(body)
	if err != nil {
		b.logger.WarnContext(ctx, "rejected webhook update", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !keep {
		b.logger.DebugContext(ctx, "update filtered", "update_id", u.ID)
		w.WriteHeader(http.StatusOK)
		return
	}

	_, _, err = b.Handle(ctx, u)
	var execErr *ExecutionError
	switch {
	case errors.As(err, &execErr):
		b.logger.ErrorContext(ctx, "action failed", "update_id", u.ID, "error", err)
	case err != nil:
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// PollOptions configures Poll.
type PollOptions struct {
	// Offset is the first update id to request; pass the last value Poll
	// returned (or reported through OnOffset) to resume after a restart.
	Offset int64

	// Timeout is the long-poll wait, sent in whole seconds. Default 30s.
	Timeout time.Duration

	// Limit caps the batch size (1-100). Default 100.
	Limit int

	// AllowedUpdates restricts the update kinds delivered.
	AllowedUpdates []string

	// MinBackoff and MaxBackoff bound the exponential delay after a failed
	// getUpdates call. Defaults 1s and 30s.
	MinBackoff time.Duration
	MaxBackoff time.Duration

	// OnOffset is called with the new offset after each processed batch.
	OnOffset func(offset int64)
}

func (o PollOptions) withDefaults() PollOptions {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.Limit <= 0 || o.Limit > 100 {
		o.Limit = 100
	}
	if o.MinBackoff <= 0 {
		o.MinBackoff = time.Second
	}
	if o.MaxBackoff < o.MinBackoff {
		o.MaxBackoff = max(30*time.Second, o.MinBackoff)
	}
	return o
}

// Poll repeatedly calls getUpdates and handles every update it returns
// until ctx is done. After each batch the offset advances to the highest
// update id seen plus one, including ids of entries that failed to decode,
// so a bad update is never fetched twice.
//
// Handler and execution errors are logged (and reported to the OnFailure
// hooks by the router) but do not stop polling. Failed getUpdates calls are
// retried with exponential backoff, honouring retry_after when the API
// sends one. Poll returns the offset to resume from and ctx's error.
func (b *Bot) Poll(ctx context.Context, opts PollOptions) (int64, error) {
	opts = opts.withDefaults()
	offset := opts.Offset
	delay := opts.MinBackoff

	for {
		if err := ctx.Err(); err != nil {
			return offset, err
		}

		updates, next, err := b.fetch(ctx, offset, opts)
		if err != nil {
			if ctx.Err() != nil {
				return offset, ctx.Err()
			}
			wait := delay
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
				wait = time.Duration(apiErr.RetryAfter) * time.Second
			}
			b.logger.WarnContext(ctx, "getUpdates failed", "error", err, "retry_in", wait)
			if !sleep(ctx, wait) {
				return offset, ctx.Err()
			}
			delay = min(delay*2, opts.MaxBackoff)
			continue
		}
		delay = opts.MinBackoff

		if next == offset {
			continue
		}
		b.processBatch(ctx, updates)
		offset = next
		if opts.OnOffset != nil {
			opts.OnOffset(offset)
		}
	}
}

// fetch calls getUpdates and returns the decodable updates and the next
// offset.
func (b *Bot) fetch(ctx context.Context, offset int64, opts PollOptions) ([]Update, int64, error) {
	p := Params{
		"offset":  offset,
		"timeout": int(opts.Timeout / time.Second),
		"limit":   opts.Limit,
	}
	if len(opts.AllowedUpdates) > 0 {
		p["allowed_updates"] = opts.AllowedUpdates
	}

	raw, err := b.executor.transport.Call(ctx, "getUpdates", p)
	if err != nil {
		return nil, offset, fmt.Errorf("get updates: %w", err)
	}
	if apiErr := raw.APIError(); apiErr != nil {
		return nil, offset, apiErr
	}

	v, err := JSONInspector().Inspect(raw.Result)
	if err != nil {
		return nil, offset, fmt.Errorf("get updates: %w", err)
	}
	items, ok := v.Array("")
	if !ok {
		return nil, offset, fmt.Errorf("get updates: result is not an array: %w", ErrInvalidJSON)
	}

	next := offset
	if id, ok := maxUpdateID(items); ok && id >= next {
		next = id + 1
	}

	updates, err := decodeItems(items, b.filter)
	var batchErr *BatchError
	switch {
	case errors.As(err, &batchErr):
		for i, e := range batchErr.Errs {
			b.logger.WarnContext(ctx, "dropped undecodable update", "index", i, "error", e)
		}
	case err != nil:
		return nil, offset, fmt.Errorf("get updates: %w", err)
	}
	return updates, next, nil
}

func (b *Bot) processBatch(ctx context.Context, updates []Update) {
	var g errgroup.Group
	g.SetLimit(b.concurrency)
	for _, u := range updates {
		g.Go(func() error {
			_, _, err := b.Handle(ctx, u)
			if err != nil {
				b.logger.ErrorContext(ctx, "update failed", "update_id", u.ID, "error", err)
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		b.logger.DebugContext(ctx, "batch finished with errors", "size", len(updates))
	}
}

func maxUpdateID(items []View) (int64, bool) {
	var highest int64
	found := false
	for _, item := range items {
		if id, ok := item.GetInt("update_id"); ok && (!found || id > highest) {
			highest, found = id, true
		}
	}
	return highest, found
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
