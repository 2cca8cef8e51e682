package botdispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrDuplicatePattern is returned when a dynamic pattern is registered
	// twice for the same update kind. The second entry could never match.
	ErrDuplicatePattern = errors.New("pattern already registered")

	// ErrNilHandler is returned when registering a dynamic route without
	// a handler.
	ErrNilHandler = errors.New("nil handler")
)

// Route names the registration that handled an update.
type Route int

const (
	// RouteNone means no handler applied and the update was skipped.
	RouteNone Route = iota
	// RouteCommand is a literal command handler.
	RouteCommand
	// RouteDynamicCommand is a command matched by a pattern.
	RouteDynamicCommand
	// RouteCommandFallback handles commands nothing else claimed.
	RouteCommandFallback
	// RouteStandardMessage handles messages that are not routed commands.
	RouteStandardMessage
	// RouteCallback is a literal callback data handler.
	RouteCallback
	// RouteDynamicCallback is callback data matched by a pattern.
	RouteDynamicCallback
	// RouteCallbackFallback handles callback data nothing else claimed.
	RouteCallbackFallback
	// RouteInlineQuery is the inline query handler.
	RouteInlineQuery
	// RouteChosenInlineResult is the chosen inline result handler.
	RouteChosenInlineResult
)

var routeNames = [...]string{
	RouteNone:               "none",
	RouteCommand:            "command",
	RouteDynamicCommand:     "dynamic_command",
	RouteCommandFallback:    "command_fallback",
	RouteStandardMessage:    "standard_message",
	RouteCallback:           "callback",
	RouteDynamicCallback:    "dynamic_callback",
	RouteCallbackFallback:   "callback_fallback",
	RouteInlineQuery:        "inline_query",
	RouteChosenInlineResult: "chosen_inline_result",
}

func (r Route) String() string {
	if r >= 0 && int(r) < len(routeNames) {
		return routeNames[r]
	}
	return fmt.Sprintf("Route(%d)", int(r))
}

// Status is the coarse result of a dispatch.
type Status int

const (
	// StatusSkipped means no handler applied; nothing ran.
	StatusSkipped Status = iota
	// StatusHandled means a handler ran and returned an Action.
	StatusHandled
	// StatusFailed means a pre-handler or the handler returned an error.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusHandled:
		return "handled"
	case StatusFailed:
		return "failed"
	default:
		return "skipped"
	}
}

// Outcome describes what Dispatch did with an update.
type Outcome struct {
	// ID identifies the dispatch; empty when skipped.
	ID     string
	Update Update
	Status Status
	Route  Route

	// Key is the routing key that selected the handler: the command name,
	// the callback data, or the matching dynamic pattern.
	Key string

	// Action is what the handler asked for. The caller executes it.
	Action Action

	PreHandled PreHandled
}

// dynamicRoute is a compiled pattern and the handler it selects.
type dynamicRoute[T any] struct {
	pattern *Pattern
	handler HandlerFunc[T]
}

// invocation is a resolved handler bound to its payload.
type invocation struct {
	route  Route
	key    string
	invoke func(ctx context.Context, c *Controller) (Action, error)
}

// Router selects and runs the handler for each update.
//
// Usage:
//  1. Create a router with New
//  2. Register handlers (RegisterCommand, RegisterCallback, ...)
//  3. Optionally add pre-handlers with AddPreHandler
//  4. Dispatch decoded updates with Dispatch
//
// Router is safe for concurrent use. Registration is expected to finish
// before dispatching starts, but registrations made later are applied
// under a write lock and each Dispatch resolves its handler against one
// consistent view of the tables.
type Router struct {
	mu sync.RWMutex

	commands         map[string]HandlerFunc[Command]
	dynamicCommands  []dynamicRoute[Command]
	commandFallback  HandlerFunc[Command]
	standardMessage  HandlerFunc[*Message]
	callbacks        map[string]HandlerFunc[Callback]
	dynamicCallbacks []dynamicRoute[Callback]
	callbackFallback HandlerFunc[Callback]
	inlineQuery      HandlerFunc[*InlineQuery]
	chosenResult     HandlerFunc[*ChosenInlineResult]

	dynamicCallbacksEnabled bool
	botUsername             string

	pre       preHandlers
	prePolicy PreHandlerPolicy

	executor *Executor
	hooks    hooks
	logger   *slog.Logger
	newID    func() string
}

// Option configures a Router.
type Option func(*Router)

// New creates a Router with the given options.
//
// Example:
//
//	r := botdispatch.New(
//	    botdispatch.WithExecutor(exec),
//	    botdispatch.WithDynamicCallbacks(true),
//	    botdispatch.WithOnFailure(func(ctx context.Context, o botdispatch.Outcome, err error, d time.Duration) {
//	        logger.Error("handler failed", "route", o.Route, "error", err)
//	    }),
//	)
func New(opts ...Option) *Router {
	r := &Router{
		commands:  make(map[string]HandlerFunc[Command]),
		callbacks: make(map[string]HandlerFunc[Callback]),
		logger:    slog.Default(),
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WithExecutor sets the Executor that Controller.Execute uses.
func WithExecutor(e *Executor) Option {
	return func(r *Router) {
		r.executor = e
	}
}

// WithLogger sets the router's logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) {
		r.logger = l
	}
}

// WithDynamicCallbacks enables or disables dynamic callback matching.
// It is disabled by default.
func WithDynamicCallbacks(enabled bool) Option {
	return func(r *Router) {
		r.dynamicCallbacksEnabled = enabled
	}
}

// WithPreHandlerPolicy sets how pre-handler errors are treated.
func WithPreHandlerPolicy(p PreHandlerPolicy) Option {
	return func(r *Router) {
		r.prePolicy = p
	}
}

// WithBotUsername makes "/cmd@username" resolve as "/cmd" when username
// matches (case-insensitively), as Telegram sends commands in groups.
func WithBotUsername(username string) Option {
	return func(r *Router) {
		r.botUsername = strings.TrimPrefix(username, "@")
	}
}

// WithIDGenerator replaces the dispatch id generator (random UUIDs).
func WithIDGenerator(fn func() string) Option {
	return func(r *Router) {
		r.newID = fn
	}
}

// EnableDynamicCallbacks turns on dynamic callback matching.
func (r *Router) EnableDynamicCallbacks() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dynamicCallbacksEnabled = true
}

// DisableDynamicCallbacks turns off dynamic callback matching. Registered
// dynamic callbacks are kept and apply again once re-enabled.
func (r *Router) DisableDynamicCallbacks() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dynamicCallbacksEnabled = false
}

// RegisterCommand sets the handler for "/name". Registering a name again
// replaces its handler; a nil handler removes it.
//
// Example:
//
//	r.RegisterCommand("help", func(ctx context.Context, c *botdispatch.Controller, cmd botdispatch.Command) (botdispatch.Action, error) {
//	    return cmd.Message.Answer("usage: /get_<id>"), nil
//	})
func (r *Router) RegisterCommand(name string, h HandlerFunc[Command]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h == nil {
		delete(r.commands, name)
		return
	}
	r.commands[name] = h
}

// RegisterSimpleCommand registers a command that answers with fixed text.
func (r *Router) RegisterSimpleCommand(name, text string, extra ...Params) {
	r.RegisterCommand(name, func(_ context.Context, _ *Controller, cmd Command) (Action, error) {
		return cmd.Message.Answer(text, extra...), nil
	})
}

// RegisterDynamicCommand adds a handler for commands matching pattern (see
// Pattern for the placeholder grammar). Dynamic commands are tried in
// registration order before literal commands; the first match wins.
func (r *Router) RegisterDynamicCommand(pattern string, h HandlerFunc[Command]) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	routes, err := addDynamic(r.dynamicCommands, pattern, h)
	if err != nil {
		return fmt.Errorf("register dynamic command: %w", err)
	}
	r.dynamicCommands = routes
	return nil
}

// RegisterCommandFallback sets the handler for commands nothing else
// matched. A nil handler removes it.
func (r *Router) RegisterCommandFallback(h HandlerFunc[Command]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commandFallback = h
}

// RegisterStandardMessage sets the handler for non-command messages and
// for commands no command route accepted. A nil handler removes it.
func (r *Router) RegisterStandardMessage(h HandlerFunc[*Message]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.standardMessage = h
}

// RegisterCallback sets the handler for callback queries whose data equals
// key. A nil handler removes it.
func (r *Router) RegisterCallback(key string, h HandlerFunc[Callback]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h == nil {
		delete(r.callbacks, key)
		return
	}
	r.callbacks[key] = h
}

// RegisterDynamicCallback adds a handler for callback data matching
// pattern. Dynamic callbacks only take part in routing while enabled
// (WithDynamicCallbacks, EnableDynamicCallbacks).
func (r *Router) RegisterDynamicCallback(pattern string, h HandlerFunc[Callback]) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	routes, err := addDynamic(r.dynamicCallbacks, pattern, h)
	if err != nil {
		return fmt.Errorf("register dynamic callback: %w", err)
	}
	r.dynamicCallbacks = routes
	return nil
}

// RegisterCallbackFallback sets the handler for callback queries nothing
// else matched. A nil handler removes it.
func (r *Router) RegisterCallbackFallback(h HandlerFunc[Callback]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbackFallback = h
}

// RegisterInlineQuery sets the inline query handler.
func (r *Router) RegisterInlineQuery(h HandlerFunc[*InlineQuery]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inlineQuery = h
}

// RegisterChosenInlineResult sets the chosen inline result handler.
func (r *Router) RegisterChosenInlineResult(h HandlerFunc[*ChosenInlineResult]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chosenResult = h
}

func addDynamic[T any](routes []dynamicRoute[T], pattern string, h HandlerFunc[T]) ([]dynamicRoute[T], error) {
	if h == nil {
		return nil, fmt.Errorf("%q: %w", pattern, ErrNilHandler)
	}
	p, err := CompilePattern(pattern)
	if err != nil {
		return nil, err
	}
	for _, rt := range routes {
		if rt.pattern.String() == pattern {
			return nil, fmt.Errorf("%q: %w", pattern, ErrDuplicatePattern)
		}
	}
	return append(routes, dynamicRoute[T]{pattern: p, handler: h}), nil
}

// Dispatch routes u to its handler and returns what happened.
//
// Messages whose text starts with '/' are treated as commands when any
// command route is registered: dynamic commands are tried first, in
// registration order, then the literal command, then the command fallback,
// and finally the standard message handler. Callback queries resolve the
// same way against their data (dynamic routes only while enabled). Inline
// queries and chosen inline results go to their single handler. Anything
// else, and any update with no applicable handler, is skipped.
//
// Pre-handlers run once a handler has been selected. Handler errors (and,
// under PropagatePreHandlerErrors, pre-handler errors) are returned as is;
// Dispatch does not recover panics.
func (r *Router) Dispatch(ctx context.Context, u Update) (Outcome, error) {
	o := Outcome{Update: u}

	inv, ok := r.resolve(u)
	if !ok {
		r.logger.DebugContext(ctx, "update skipped", "update_id", u.ID, "kind", u.Kind.String())
		r.callOnSkip(ctx, u)
		return o, nil
	}

	o.ID = r.newID()
	o.Route = inv.route
	o.Key = inv.key
	start := time.Now()

	pre, err := r.RunPreHandlers(ctx, u)
	if err != nil {
		o.Status = StatusFailed
		r.fail(ctx, o, err, time.Since(start))
		return o, err
	}
	o.PreHandled = pre

	ctx = r.callOnDispatch(ctx, o)
	c := &Controller{
		id:         o.ID,
		update:     u,
		executor:   r.executor,
		preHandled: pre,
	}

	action, err := inv.invoke(ctx, c)
	duration := time.Since(start)
	if err != nil {
		o.Status = StatusFailed
		r.fail(ctx, o, err, duration)
		return o, err
	}

	o.Status = StatusHandled
	o.Action = action
	r.logger.DebugContext(ctx, "update handled",
		"dispatch_id", o.ID,
		"update_id", u.ID,
		"route", o.Route.String(),
		"action", action.Kind().String(),
		"duration", duration,
	)
	r.callOnSuccess(ctx, o, duration)
	return o, nil
}

func (r *Router) fail(ctx context.Context, o Outcome, err error, d time.Duration) {
	r.logger.ErrorContext(ctx, "dispatch failed",
		"dispatch_id", o.ID,
		"update_id", o.Update.ID,
		"route", o.Route.String(),
		"error", err,
	)
	r.callOnFailure(ctx, o, err, d)
}

// resolve selects the handler for u against a consistent view of the tables.
func (r *Router) resolve(u Update) (invocation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	switch u.Kind {
	case KindMessage:
		return r.resolveMessage(u.Message)
	case KindCallbackQuery:
		return r.resolveCallback(u.CallbackQuery)
	case KindInlineQuery:
		if h := r.inlineQuery; h != nil {
			q := u.InlineQuery
			return invocation{route: RouteInlineQuery, key: q.Query, invoke: func(ctx context.Context, c *Controller) (Action, error) {
				return h(ctx, c, q)
			}}, true
		}
	case KindChosenInlineResult:
		if h := r.chosenResult; h != nil {
			res := u.ChosenInlineResult
			return invocation{route: RouteChosenInlineResult, key: res.ResultID, invoke: func(ctx context.Context, c *Controller) (Action, error) {
				return h(ctx, c, res)
			}}, true
		}
	}
	return invocation{}, false
}

func (r *Router) resolveMessage(m *Message) (invocation, bool) {
	hasCommands := len(r.commands) > 0 || len(r.dynamicCommands) > 0
	if m.IsCommand() && hasCommands {
		name, args := r.splitCommand(m.Text)
		cmd := Command{Message: m, Name: name, Args: args}

		for _, rt := range r.dynamicCommands {
			if params, ok := rt.pattern.Match(name); ok {
				h, cmd := rt.handler, cmd
				cmd.Params = params
				return invocation{route: RouteDynamicCommand, key: rt.pattern.String(), invoke: func(ctx context.Context, c *Controller) (Action, error) {
					return h(ctx, c, cmd)
				}}, true
			}
		}
		if h, ok := r.commands[name]; ok {
			return invocation{route: RouteCommand, key: name, invoke: func(ctx context.Context, c *Controller) (Action, error) {
				return h(ctx, c, cmd)
			}}, true
		}
		if h := r.commandFallback; h != nil {
			return invocation{route: RouteCommandFallback, key: name, invoke: func(ctx context.Context, c *Controller) (Action, error) {
				return h(ctx, c, cmd)
			}}, true
		}
	}

	if h := r.standardMessage; h != nil {
		return invocation{route: RouteStandardMessage, invoke: func(ctx context.Context, c *Controller) (Action, error) {
			return h(ctx, c, m)
		}}, true
	}
	return invocation{}, false
}

func (r *Router) resolveCallback(q *CallbackQuery) (invocation, bool) {
	if r.dynamicCallbacksEnabled {
		for _, rt := range r.dynamicCallbacks {
			if params, ok := rt.pattern.Match(q.Data); ok {
				h := rt.handler
				cb := Callback{Query: q, Params: params}
				return invocation{route: RouteDynamicCallback, key: rt.pattern.String(), invoke: func(ctx context.Context, c *Controller) (Action, error) {
					return h(ctx, c, cb)
				}}, true
			}
		}
	}

	cb := Callback{Query: q}
	if h, ok := r.callbacks[q.Data]; ok {
		return invocation{route: RouteCallback, key: q.Data, invoke: func(ctx context.Context, c *Controller) (Action, error) {
			return h(ctx, c, cb)
		}}, true
	}
	if h := r.callbackFallback; h != nil {
		return invocation{route: RouteCallbackFallback, key: q.Data, invoke: func(ctx context.Context, c *Controller) (Action, error) {
			return h(ctx, c, cb)
		}}, true
	}
	return invocation{}, false
}

// splitCommand splits "/name rest of text" on the first space into the
// command name (slash removed) and the remainder.
func (r *Router) splitCommand(text string) (name, args string) {
	token, args, _ := strings.Cut(text, " ")
	name = token[1:]
	if r.botUsername != "" {
		if base, user, ok := strings.Cut(name, "@"); ok && strings.EqualFold(user, r.botUsername) {
			name = base
		}
	}
	return name, args
}
