package botdispatch

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"sync"
)

// PreHandlerFunc runs before the main handler of every dispatched update
// and contributes an optional result under its registration name. Returning
// a nil, false, zero or empty value opts out for this update.
type PreHandlerFunc func(ctx context.Context, u Update) (any, error)

// PreHandlerPolicy decides what a pre-handler error does to the dispatch.
type PreHandlerPolicy int

const (
	// PropagatePreHandlerErrors aborts the dispatch and returns the error.
	PropagatePreHandlerErrors PreHandlerPolicy = iota

	// SuppressPreHandlerErrors logs the error, drops that pre-handler's
	// result and carries on.
	SuppressPreHandlerErrors
)

// PreHandlerError wraps the error of a named pre-handler.
type PreHandlerError struct {
	Name string
	Err  error
}

func (e *PreHandlerError) Error() string {
	return fmt.Sprintf("pre-handler %q: %v", e.Name, e.Err)
}

func (e *PreHandlerError) Unwrap() error { return e.Err }

// PreHandled is the read-only set of pre-handler results for one dispatch,
// in pre-handler registration order.
type PreHandled struct {
	names  []string
	values map[string]any
}

// Get returns the result stored under name.
func (p PreHandled) Get(name string) (any, bool) {
	v, ok := p.values[name]
	return v, ok
}

// Names returns the names that contributed a result, in registration order.
func (p PreHandled) Names() []string { return slices.Clone(p.names) }

// Len returns the number of contributed results.
func (p PreHandled) Len() int { return len(p.names) }

// PreHandledAs returns the result stored under name if it has type T.
func PreHandledAs[T any](p PreHandled, name string) (T, bool) {
	v, ok := p.values[name]
	if !ok {
		var zero T
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

type namedPreHandler struct {
	name string
	fn   PreHandlerFunc
}

// preHandlers is an insertion-ordered, name-keyed pre-handler list.
type preHandlers struct {
	mu   sync.RWMutex
	list []namedPreHandler
}

// add registers fn under name. Re-adding a name replaces the function
// and keeps its original position.
func (p *preHandlers) add(name string, fn PreHandlerFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.list {
		if p.list[i].name == name {
			p.list[i].fn = fn
			return
		}
	}
	p.list = append(p.list, namedPreHandler{name: name, fn: fn})
}

func (p *preHandlers) remove(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.list {
		if p.list[i].name == name {
			p.list = slices.Delete(p.list, i, i+1)
			return true
		}
	}
	return false
}

func (p *preHandlers) snapshot() []namedPreHandler {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.list)
}

// AddPreHandler registers a pre-handler. Names are unique: adding an
// existing name replaces its function in place.
func (r *Router) AddPreHandler(name string, fn PreHandlerFunc) {
	r.pre.add(name, fn)
}

// RemovePreHandler unregisters a pre-handler and reports whether it existed.
func (r *Router) RemovePreHandler(name string) bool {
	return r.pre.remove(name)
}

// RunPreHandlers runs every pre-handler for u, in registration order, and
// collects their non-empty results. It is called by Dispatch once a handler
// has been selected.
func (r *Router) RunPreHandlers(ctx context.Context, u Update) (PreHandled, error) {
	out := PreHandled{values: map[string]any{}}
	for _, ph := range r.pre.snapshot() {
		v, err := ph.fn(ctx, u)
		if err != nil {
			perr := &PreHandlerError{Name: ph.name, Err: err}
			if r.prePolicy == PropagatePreHandlerErrors {
				return PreHandled{}, perr
			}
			r.logger.WarnContext(ctx, "pre-handler failed", "pre_handler", ph.name, "error", err)
			for _, fn := range r.hooks.onPreHandlerError {
				fn(ctx, ph.name, err)
			}
			continue
		}
		if isEmpty(v) {
			continue
		}
		out.names = append(out.names, ph.name)
		out.values[ph.name] = v
	}
	return out, nil
}

// isEmpty reports whether a pre-handler result counts as opting out.
func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.String, reflect.Chan:
		return rv.Len() == 0
	default:
		return rv.IsZero()
	}
}
