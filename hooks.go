package botdispatch

import (
	"context"
	"time"
)

// OnDispatchFunc is called after a handler has been selected and the
// pre-handlers have run, just before the handler executes. Use this to
// enrich the context with logging fields or trace spans; the returned
// context is passed to the handler.
type OnDispatchFunc func(ctx context.Context, o Outcome) context.Context

// OnSuccessFunc is called after the handler returns without error.
type OnSuccessFunc func(ctx context.Context, o Outcome, duration time.Duration)

// OnFailureFunc is called after the handler (or a propagated pre-handler)
// fails. The error is still returned by Dispatch.
type OnFailureFunc func(ctx context.Context, o Outcome, err error, duration time.Duration)

// OnSkipFunc is called when no handler applies to an update.
type OnSkipFunc func(ctx context.Context, u Update)

// OnPreHandlerErrorFunc is called for pre-handler errors suppressed by
// SuppressPreHandlerErrors.
type OnPreHandlerErrorFunc func(ctx context.Context, name string, err error)

// hooks holds all configured hook functions.
type hooks struct {
	onDispatch        []OnDispatchFunc
	onSuccess         []OnSuccessFunc
	onFailure         []OnFailureFunc
	onSkip            []OnSkipFunc
	onPreHandlerError []OnPreHandlerErrorFunc
}

// WithOnDispatch adds a hook called just before the handler executes.
// Multiple hooks are called in order, with context chaining through each.
//
// Example:
//
//	botdispatch.WithOnDispatch(func(ctx context.Context, o botdispatch.Outcome) context.Context {
//	    return logx.WithCtx(ctx, slog.String("route", o.Route.String()))
//	})
func WithOnDispatch(fn OnDispatchFunc) Option {
	return func(r *Router) {
		r.hooks.onDispatch = append(r.hooks.onDispatch, fn)
	}
}

// WithOnSuccess adds a hook called after the handler completes successfully.
// Multiple hooks are called in order.
//
// Example:
//
//	botdispatch.WithOnSuccess(func(ctx context.Context, o botdispatch.Outcome, d time.Duration) {
//	    metrics.Timing("dispatch.success", d, "route:"+o.Route.String())
//	})
func WithOnSuccess(fn OnSuccessFunc) Option {
	return func(r *Router) {
		r.hooks.onSuccess = append(r.hooks.onSuccess, fn)
	}
}

// WithOnFailure adds a hook called after the handler fails.
// Multiple hooks are called in order.
func WithOnFailure(fn OnFailureFunc) Option {
	return func(r *Router) {
		r.hooks.onFailure = append(r.hooks.onFailure, fn)
	}
}

// WithOnSkip adds a hook called when an update has no applicable handler.
func WithOnSkip(fn OnSkipFunc) Option {
	return func(r *Router) {
		r.hooks.onSkip = append(r.hooks.onSkip, fn)
	}
}

// WithOnPreHandlerError adds a hook called for each suppressed
// pre-handler error.
func WithOnPreHandlerError(fn OnPreHandlerErrorFunc) Option {
	return func(r *Router) {
		r.hooks.onPreHandlerError = append(r.hooks.onPreHandlerError, fn)
	}
}

func (r *Router) callOnDispatch(ctx context.Context, o Outcome) context.Context {
	for _, fn := range r.hooks.onDispatch {
		ctx = fn(ctx, o)
	}
	return ctx
}

func (r *Router) callOnSuccess(ctx context.Context, o Outcome, d time.Duration) {
	for _, fn := range r.hooks.onSuccess {
		fn(ctx, o, d)
	}
}

func (r *Router) callOnFailure(ctx context.Context, o Outcome, err error, d time.Duration) {
	for _, fn := range r.hooks.onFailure {
		fn(ctx, o, err, d)
	}
}

func (r *Router) callOnSkip(ctx context.Context, u Update) {
	for _, fn := range r.hooks.onSkip {
		fn(ctx, u)
	}
}
