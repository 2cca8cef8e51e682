// Package botdispatch routes Telegram-style bot updates to handlers and
// performs the actions they return.
//
// An inbound update is decoded into one of a few kinds (message, callback
// query, inline query, chosen inline result, or unknown), routed to the
// handler registered for it, and the handler returns an Action: a value
// describing what to do ("send this text to that chat"). The Executor
// turns Actions into Bot API calls through a Transport. Handlers stay plain
// functions from input to data, which makes them easy to test.
//
// # Quick Start
//
//	client := botapi.New(token)
//	exec := botdispatch.NewExecutor(client)
//	exec.SetParseMode(botdispatch.ParseModeHTML)
//
//	r := botdispatch.New(botdispatch.WithExecutor(exec))
//
//	r.RegisterCommand("help", func(ctx context.Context, c *botdispatch.Controller, cmd botdispatch.Command) (botdispatch.Action, error) {
//	    return cmd.Message.Answer("<b>usage</b>: /get_&lt;id&gt;"), nil
//	})
//
//	b := botdispatch.NewBot(r, exec)
//	_, err := b.Poll(ctx, botdispatch.PollOptions{})
//
// # Routing
//
// Messages whose text starts with '/' are commands, as long as at least one
// command route exists. The text is split on the first space into the
// command name (without the slash) and the remainder, then resolved in this
// order:
//
//  1. Dynamic commands, in registration order; the first match wins
//  2. The literal command
//  3. The command fallback
//  4. The standard message handler
//
// Other messages go straight to the standard message handler. Callback
// queries resolve their data the same way: dynamic callbacks (only while
// enabled), the literal callback, then the callback fallback. Inline queries
// and chosen inline results have a single handler each. Anything without an
// applicable handler is skipped, which is not an error.
//
// # Patterns
//
// Dynamic routes use a small placeholder grammar, always matched against the
// whole candidate:
//
//   - %d: one or more ASCII digits
//   - %s: one or more ASCII letters
//   - %a: one or more ASCII letters or digits
//   - %%: a literal percent sign
//
// Everything else matches itself. A successful match yields the whole string
// followed by one capture per placeholder:
//
//	r.RegisterDynamicCommand("get_%d", h) // "/get_42" -> Params ["get_42", "42"]
//
// Malformed patterns are rejected at registration with a *PatternError.
// Registering the same pattern twice returns ErrDuplicatePattern, since the
// second entry could never match.
//
// # Actions
//
// Each Action variant has its own constructor carrying exactly the fields
// it needs: SendMessage, EditMessageText, EditInlineMessageText,
// EditMessageReplyMarkup, EditInlineMessageReplyMarkup, AnswerCallbackQuery,
// CallRemoteMethod, CallLocalFunction, Multiple and DoNothing. A constructor
// called without a required field panics with *ActionError.
//
// Message, CallbackQuery and ChosenInlineResult have helpers that build the
// common Actions for their own chat or inline message (Answer, Reply,
// EditText, EditReplyMarkup).
//
// The Executor injects its default parameters (parse mode, link previews)
// into sendMessage and the text edits; an Action's own extra parameters win.
// Remote failures come back as data in Result.APIError, never as errors.
// Multiple runs every child in order even when one fails.
//
// # Pre-Handlers
//
// Pre-handlers run, in registration order, before the selected handler of
// every update. Each contributes a value under its name, or opts out by
// returning an empty value (nil, false, zero, ""):
//
//	r.AddPreHandler("auth", store.PreHandler())
//
//	func handle(ctx context.Context, c *botdispatch.Controller, m *botdispatch.Message) (botdispatch.Action, error) {
//	    user, ok := botdispatch.PreHandledAs[*sqlauth.AuthUser](c.PreHandled(), "auth")
//	    ...
//	}
//
// By default a pre-handler error aborts the dispatch and is returned as
// *PreHandlerError. WithPreHandlerPolicy(SuppressPreHandlerErrors) logs it
// and carries on instead.
//
// # Hooks
//
// Hooks provide observability without coupling to specific logging or
// metrics systems:
//
//	r := botdispatch.New(
//	    botdispatch.WithOnDispatch(func(ctx context.Context, o botdispatch.Outcome) context.Context {
//	        return logx.WithCtx(ctx, slog.String("dispatch_id", o.ID))
//	    }),
//	    botdispatch.WithOnFailure(func(ctx context.Context, o botdispatch.Outcome, err error, d time.Duration) {
//	        metrics.Incr("dispatch.error", "route:"+o.Route.String())
//	    }),
//	)
//
// Available hooks:
//   - WithOnDispatch: Called just before the handler executes, enriches context
//   - WithOnSuccess: Called after the handler succeeds
//   - WithOnFailure: Called after a handler or pre-handler fails
//   - WithOnSkip: Called when no handler applies
//   - WithOnPreHandlerError: Called for suppressed pre-handler errors
//
// Multiple hooks of the same type are called in order.
//
// # Errors
//
// Decode returns ErrInvalidJSON for input that is not JSON and
// *MalformedUpdateError for a known kind missing a required id. Payloads of
// no known kind decode to KindUnknown without error. Handler errors are
// returned by Dispatch unchanged and panics are not recovered.
//
// # Ingestion
//
// Bot connects a Router and an Executor to the outside world. ServeHTTP
// accepts webhook deliveries; Poll long-polls getUpdates, processes each
// batch (concurrently with WithConcurrency) and advances the offset to the
// highest update id plus one.
//
// WithUpdateFilter drops updates before they are decoded. Filters are
// Discriminators over the raw payload and compose with And, Or and Not:
//
//	b := botdispatch.NewBot(r, exec, botdispatch.WithUpdateFilter(
//	    botdispatch.Or(botdispatch.InChat(botdispatch.ChatPrivate), botdispatch.FromUsers(adminID)),
//	))
//
// # Thread Safety
//
// Router, Executor and Bot are safe for concurrent use. Registration is
// expected to happen before dispatching starts; later registrations are
// applied under a lock and never observed half-done.
package botdispatch
