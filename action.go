package botdispatch

import (
	"context"
	"fmt"
	"maps"
	"slices"
)

// Params is a Bot API parameter map.
type Params map[string]any

// merge returns a copy of p overlaid with each of extra in turn.
func (p Params) merge(extra ...Params) Params {
	out := make(Params, len(p))
	maps.Copy(out, p)
	for _, e := range extra {
		maps.Copy(out, e)
	}
	return out
}

// ActionKind discriminates the Action variants.
type ActionKind int

const (
	ActionDoNothing ActionKind = iota
	ActionSendMessage
	ActionEditMessageText
	ActionEditInlineMessageText
	ActionEditMessageReplyMarkup
	ActionEditInlineMessageReplyMarkup
	ActionAnswerCallbackQuery
	ActionCallRemoteMethod
	ActionCallLocalFunction
	ActionMultiple
)

var actionKindNames = map[ActionKind]string{
	ActionDoNothing:                    "DoNothing",
	ActionSendMessage:                  "SendMessage",
	ActionEditMessageText:              "EditMessageText",
	ActionEditInlineMessageText:        "EditInlineMessageText",
	ActionEditMessageReplyMarkup:       "EditMessageReplyMarkup",
	ActionEditInlineMessageReplyMarkup: "EditInlineMessageReplyMarkup",
	ActionAnswerCallbackQuery:          "AnswerCallbackQuery",
	ActionCallRemoteMethod:             "CallRemoteMethod",
	ActionCallLocalFunction:            "CallLocalFunction",
	ActionMultiple:                     "Multiple",
}

func (k ActionKind) String() string {
	if s, ok := actionKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("ActionKind(%d)", int(k))
}

// ActionError is the panic value of an Action constructor called without
// one of its required fields.
type ActionError struct {
	Kind  ActionKind
	Field string
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s action requires %s", e.Kind, e.Field)
}

// LocalFunc is the function carried by a CallLocalFunction action.
type LocalFunc func(ctx context.Context, args ...any) (any, error)

// Action describes one deferred effect. Handlers return Actions; the
// Executor performs them. Actions are immutable: build them with the
// constructor for the wanted variant. The zero Action does nothing.
type Action struct {
	kind            ActionKind
	chatID          string
	messageID       int64
	inlineMessageID string
	callbackQueryID string
	text            string
	extra           Params
	markup          any
	method          string
	fn              LocalFunc
	args            []any
	actions         []Action
}

func mustHave(cond bool, kind ActionKind, field string) {
	if !cond {
		panic(&ActionError{Kind: kind, Field: field})
	}
}

// DoNothing returns the no-op action.
func DoNothing() Action {
	return Action{kind: ActionDoNothing}
}

// SendMessage sends text to chatID.
func SendMessage(chatID, text string, extra ...Params) Action {
	mustHave(chatID != "", ActionSendMessage, "chat id")
	mustHave(text != "", ActionSendMessage, "text")
	return Action{
		kind:   ActionSendMessage,
		chatID: chatID,
		text:   text,
		extra:  Params(nil).merge(extra...),
	}
}

// EditMessageText replaces the text of a chat message.
func EditMessageText(chatID string, messageID int64, text string, extra ...Params) Action {
	mustHave(chatID != "", ActionEditMessageText, "chat id")
	mustHave(messageID != 0, ActionEditMessageText, "message id")
	mustHave(text != "", ActionEditMessageText, "text")
	return Action{
		kind:      ActionEditMessageText,
		chatID:    chatID,
		messageID: messageID,
		text:      text,
		extra:     Params(nil).merge(extra...),
	}
}

// EditInlineMessageText replaces the text of a message sent via inline mode.
func EditInlineMessageText(inlineMessageID, text string, extra ...Params) Action {
	mustHave(inlineMessageID != "", ActionEditInlineMessageText, "inline message id")
	mustHave(text != "", ActionEditInlineMessageText, "text")
	return Action{
		kind:            ActionEditInlineMessageText,
		inlineMessageID: inlineMessageID,
		text:            text,
		extra:           Params(nil).merge(extra...),
	}
}

// EditMessageReplyMarkup replaces the inline keyboard of a chat message.
// A nil or false markup removes the keyboard.
func EditMessageReplyMarkup(chatID string, messageID int64, markup any) Action {
	mustHave(chatID != "", ActionEditMessageReplyMarkup, "chat id")
	mustHave(messageID != 0, ActionEditMessageReplyMarkup, "message id")
	return Action{
		kind:      ActionEditMessageReplyMarkup,
		chatID:    chatID,
		messageID: messageID,
		markup:    normalizeMarkup(markup),
	}
}

// EditInlineMessageReplyMarkup replaces the inline keyboard of a message
// sent via inline mode. A nil or false markup removes the keyboard.
func EditInlineMessageReplyMarkup(inlineMessageID string, markup any) Action {
	mustHave(inlineMessageID != "", ActionEditInlineMessageReplyMarkup, "inline message id")
	return Action{
		kind:            ActionEditInlineMessageReplyMarkup,
		inlineMessageID: inlineMessageID,
		markup:          normalizeMarkup(markup),
	}
}

func normalizeMarkup(markup any) any {
	if b, ok := markup.(bool); ok && !b {
		return nil
	}
	return markup
}

// AnswerCallbackQuery acknowledges a callback query.
func AnswerCallbackQuery(callbackQueryID string, extra ...Params) Action {
	mustHave(callbackQueryID != "", ActionAnswerCallbackQuery, "callback query id")
	return Action{
		kind:            ActionAnswerCallbackQuery,
		callbackQueryID: callbackQueryID,
		extra:           Params(nil).merge(extra...),
	}
}

// CallRemoteMethod calls an arbitrary Bot API method with params passed
// through unchanged.
func CallRemoteMethod(method string, params Params) Action {
	mustHave(method != "", ActionCallRemoteMethod, "method name")
	return Action{
		kind:   ActionCallRemoteMethod,
		method: method,
		extra:  params.merge(),
	}
}

// CallLocalFunction calls fn with args when executed. No transport call is made.
func CallLocalFunction(fn LocalFunc, args ...any) Action {
	mustHave(fn != nil, ActionCallLocalFunction, "function")
	return Action{
		kind: ActionCallLocalFunction,
		fn:   fn,
		args: slices.Clone(args),
	}
}

// Multiple runs actions one by one, in order.
func Multiple(actions ...Action) Action {
	return Action{
		kind:    ActionMultiple,
		actions: slices.Clone(actions),
	}
}

// Kind returns the action's variant.
func (a Action) Kind() ActionKind { return a.kind }

// ChatID returns the target chat, for message-targeted variants.
func (a Action) ChatID() string { return a.chatID }

// MessageID returns the target message, for message-targeted edits.
func (a Action) MessageID() int64 { return a.messageID }

// InlineMessageID returns the target inline message, for inline edits.
func (a Action) InlineMessageID() string { return a.inlineMessageID }

// CallbackQueryID returns the query answered by AnswerCallbackQuery.
func (a Action) CallbackQueryID() string { return a.callbackQueryID }

// Text returns the message text of send and text-edit variants.
func (a Action) Text() string { return a.text }

// Method returns the method name of a CallRemoteMethod action.
func (a Action) Method() string { return a.method }

// Extra returns a copy of the action's extra parameters.
func (a Action) Extra() Params { return a.extra.merge() }

// Markup returns the reply markup of a markup edit; nil means removal.
func (a Action) Markup() any { return a.markup }

// Actions returns a copy of the children of a Multiple action.
func (a Action) Actions() []Action { return slices.Clone(a.actions) }
