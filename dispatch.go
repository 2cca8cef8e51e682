package botdispatch

import (
	"context"
	"errors"
)

// ErrNoExecutor is returned by Controller.Execute when the router was
// built without an Executor.
var ErrNoExecutor = errors.New("no executor configured")

// HandlerFunc handles one routed payload. It returns the Action to perform,
// or performs effects itself through the Controller and returns DoNothing.
//
// The payload type depends on the route:
//   - commands (literal, dynamic, fallback): Command
//   - standard messages: *Message
//   - callback queries (literal, dynamic, fallback): Callback
//   - inline queries: *InlineQuery
//   - chosen inline results: *ChosenInlineResult
//
// Errors are returned to the caller of Router.Dispatch unchanged.
type HandlerFunc[T any] func(ctx context.Context, c *Controller, payload T) (Action, error)

// Command is the payload of a command route.
type Command struct {
	Message *Message

	// Name is the command without its leading slash, e.g. "help" for
	// "/help me".
	Name string

	// Args is the text following the first space, or "" if there is none.
	Args string

	// Params holds the match of a dynamic command: the whole command
	// followed by one capture per placeholder. Nil for literal and
	// fallback routes.
	Params []string
}

// Callback is the payload of a callback query route.
type Callback struct {
	Query *CallbackQuery

	// Params holds the match of a dynamic callback route: the whole data
	// string followed by one capture per placeholder. Nil otherwise.
	Params []string
}

// Controller is the request-scoped handle passed to every handler.
type Controller struct {
	id         string
	update     Update
	executor   *Executor
	preHandled PreHandled
}

// DispatchID identifies this dispatch in logs and hooks.
func (c *Controller) DispatchID() string { return c.id }

// Update returns the update being handled.
func (c *Controller) Update() Update { return c.update }

// PreHandled returns the results contributed by pre-handlers.
func (c *Controller) PreHandled() PreHandled { return c.preHandled }

// Execute performs a right away instead of returning it from the handler.
func (c *Controller) Execute(ctx context.Context, a Action) (Result, error) {
	if c.executor == nil {
		return Result{Kind: a.Kind()}, ErrNoExecutor
	}
	return c.executor.Execute(ctx, a)
}
