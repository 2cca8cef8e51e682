package botdispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Default parameter names understood by the Executor.
const (
	ParamParseMode             = "parse_mode"
	ParamDisableWebPagePreview = "disable_web_page_preview"
)

// Parse modes accepted by SetParseMode.
const (
	ParseModeMarkdown   = "Markdown"
	ParseModeMarkdownV2 = "MarkdownV2"
	ParseModeHTML       = "HTML"
)

// Result is the outcome of executing one Action.
type Result struct {
	Kind ActionKind

	// Value is the raw "result" of a successful transport call.
	Value json.RawMessage

	// Local is the return value of a CallLocalFunction action.
	Local any

	// APIError is set when the remote API answered ok=false.
	APIError *APIError

	// Err is the error that stopped this action (transport failure or the
	// local function's own error). Execute also returns it.
	Err error

	// Children holds one Result per child of a Multiple action, in order.
	Children []Result
}

// OK reports whether the action and all of its children succeeded.
func (r Result) OK() bool {
	if r.APIError != nil || r.Err != nil {
		return false
	}
	for _, c := range r.Children {
		if !c.OK() {
			return false
		}
	}
	return true
}

// Message decodes Value as a message, as returned by sendMessage and the
// message edits.
func (r Result) Message() (*Message, error) {
	if len(r.Value) == 0 {
		return nil, fmt.Errorf("result has no value")
	}
	v, err := JSONInspector().Inspect(r.Value)
	if err != nil {
		return nil, err
	}
	return decodeMessage(v, KindMessage, "result")
}

// Bool returns Value as a boolean, as returned by answerCallbackQuery and
// inline message edits.
func (r Result) Bool() (bool, bool) {
	switch string(r.Value) {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	return false, false
}

// Executor interprets Actions against a Transport.
type Executor struct {
	transport Transport
	logger    *slog.Logger

	mu       sync.RWMutex
	defaults Params
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithExecutorLogger sets the executor's logger.
func WithExecutorLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = l
	}
}

// WithDefaults seeds the default parameters.
func WithDefaults(p Params) ExecutorOption {
	return func(e *Executor) {
		e.defaults = e.defaults.merge(p)
	}
}

// NewExecutor creates an Executor calling t.
func NewExecutor(t Transport, opts ...ExecutorOption) *Executor {
	e := &Executor{
		transport: t,
		logger:    slog.Default(),
		defaults:  Params{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetParseMode sets the default parse mode for sent and edited text.
// Any value other than Markdown, MarkdownV2 or HTML clears it.
func (e *Executor) SetParseMode(mode string) {
	switch mode {
	case ParseModeMarkdown, ParseModeMarkdownV2, ParseModeHTML:
		e.SetDefaultParameter(ParamParseMode, mode)
	default:
		e.UnsetDefaultParameter(ParamParseMode)
	}
}

// SetDisableWebPagePreview sets the default link-preview flag.
func (e *Executor) SetDisableWebPagePreview(disable bool) {
	e.SetDefaultParameter(ParamDisableWebPagePreview, disable)
}

// SetDefaultParameter sets a parameter injected into every sendMessage and
// text edit unless the action's extra parameters override it.
func (e *Executor) SetDefaultParameter(name string, value any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.defaults[name] = value
}

// UnsetDefaultParameter removes a default parameter.
func (e *Executor) UnsetDefaultParameter(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.defaults, name)
}

// Defaults returns a copy of the default parameters.
func (e *Executor) Defaults() Params {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.defaults.merge()
}

// Execute performs a.
//
// Remote failures are not errors: they come back in Result.APIError. The
// returned error is non-nil only when the transport could not complete the
// call, or when a CallLocalFunction's function failed (returned unchanged).
// A Multiple action runs every child even if earlier ones fail and joins
// the children's errors.
func (e *Executor) Execute(ctx context.Context, a Action) (Result, error) {
	switch a.kind {
	case ActionDoNothing:
		return Result{Kind: a.kind}, nil

	case ActionSendMessage:
		p := e.withDefaults(Params{"chat_id": a.chatID, "text": a.text}, a.extra)
		return e.call(ctx, a.kind, "sendMessage", p)

	case ActionEditMessageText:
		p := e.withDefaults(Params{"chat_id": a.chatID, "message_id": a.messageID, "text": a.text}, a.extra)
		return e.call(ctx, a.kind, "editMessageText", p)

	case ActionEditInlineMessageText:
		p := e.withDefaults(Params{"inline_message_id": a.inlineMessageID, "text": a.text}, a.extra)
		return e.call(ctx, a.kind, "editMessageText", p)

	case ActionEditMessageReplyMarkup:
		p := Params{"chat_id": a.chatID, "message_id": a.messageID}
		if a.markup != nil {
			p["reply_markup"] = a.markup
		}
		return e.call(ctx, a.kind, "editMessageReplyMarkup", p)

	case ActionEditInlineMessageReplyMarkup:
		p := Params{"inline_message_id": a.inlineMessageID}
		if a.markup != nil {
			p["reply_markup"] = a.markup
		}
		return e.call(ctx, a.kind, "editMessageReplyMarkup", p)

	case ActionAnswerCallbackQuery:
		p := Params{"callback_query_id": a.callbackQueryID}.merge(a.extra)
		return e.call(ctx, a.kind, "answerCallbackQuery", p)

	case ActionCallRemoteMethod:
		return e.call(ctx, a.kind, a.method, a.extra.merge())

	case ActionCallLocalFunction:
		v, err := a.fn(ctx, a.args...)
		return Result{Kind: a.kind, Local: v, Err: err}, err

	case ActionMultiple:
		res := Result{Kind: a.kind, Children: make([]Result, 0, len(a.actions))}
		var errs []error
		for _, child := range a.actions {
			r, err := e.Execute(ctx, child)
			res.Children = append(res.Children, r)
			if err != nil {
				errs = append(errs, err)
			}
		}
		return res, errors.Join(errs...)
	}
	return Result{Kind: a.kind}, fmt.Errorf("execute: unknown action kind %d", int(a.kind))
}

// withDefaults layers base over the defaults and extra over both.
func (e *Executor) withDefaults(base, extra Params) Params {
	e.mu.RLock()
	p := e.defaults.merge(base, extra)
	e.mu.RUnlock()
	return p
}

func (e *Executor) call(ctx context.Context, kind ActionKind, method string, p Params) (Result, error) {
	raw, err := e.transport.Call(ctx, method, p)
	if err != nil {
		err = fmt.Errorf("call %s: %w", method, err)
		e.logger.ErrorContext(ctx, "transport call failed", "method", method, "error", err)
		return Result{Kind: kind, Err: err}, err
	}
	if apiErr := raw.APIError(); apiErr != nil {
		e.logger.WarnContext(ctx, "api call rejected",
			"method", method, "code", apiErr.Code, "description", apiErr.Description)
		return Result{Kind: kind, APIError: apiErr}, nil
	}
	e.logger.DebugContext(ctx, "api call ok", "method", method, "action", kind.String())
	return Result{Kind: kind, Value: raw.Result}, nil
}
