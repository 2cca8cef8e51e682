package botdispatch

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pingUpdate = `{"update_id": 10, "message": {"message_id": 1, "chat": {"id": 42}, "from": {"id": 7}, "text": "/ping"}}`

func newTestBot(tr *stubTransport, opts ...BotOption) *Bot {
	exec := quietExecutor(tr)
	r := quietRouter(WithExecutor(exec))
	r.RegisterCommand("ping", func(_ context.Context, _ *Controller, cmd Command) (Action, error) {
		return cmd.Message.Reply("pong"), nil
	})
	r.RegisterCommand("fail", func(context.Context, *Controller, Command) (Action, error) {
		return Action{}, errors.New("handler failed")
	})
	opts = append([]BotOption{WithBotLogger(slog.New(slog.DiscardHandler))}, opts...)
	return NewBot(r, exec, opts...)
}

func TestBot_ProcessUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("decode dispatch execute", func(t *testing.T) {
		tr := &stubTransport{}
		b := newTestBot(tr)

		o, res, err := b.ProcessUpdate(ctx, []byte(pingUpdate))
		require.NoError(t, err)
		assert.Equal(t, StatusHandled, o.Status)
		assert.True(t, res.OK())
		require.Len(t, tr.calls, 1)
		assert.Equal(t, "sendMessage", tr.calls[0].method)
		assert.Equal(t, Params{"chat_id": "42", "text": "pong", "reply_to_message_id": int64(1)}, tr.calls[0].params)
	})

	t.Run("skipped update makes no call", func(t *testing.T) {
		tr := &stubTransport{}
		b := newTestBot(tr)

		o, _, err := b.ProcessUpdate(ctx, []byte(`{"update_id": 3, "poll": {}}`))
		require.NoError(t, err)
		assert.Equal(t, StatusSkipped, o.Status)
		assert.Empty(t, tr.calls)
	})

	t.Run("malformed update", func(t *testing.T) {
		b := newTestBot(&stubTransport{})

		_, _, err := b.ProcessUpdate(ctx, []byte(`{"update_id": 3, "message": {}}`))
		var merr *MalformedUpdateError
		assert.ErrorAs(t, err, &merr)
	})

	t.Run("execution failure", func(t *testing.T) {
		netErr := errors.New("connection reset")
		tr := &stubTransport{respond: func(string, Params) (RawResult, error) { return RawResult{}, netErr }}
		b := newTestBot(tr)

		_, _, err := b.ProcessUpdate(ctx, []byte(pingUpdate))
		var execErr *ExecutionError
		require.ErrorAs(t, err, &execErr)
		assert.Equal(t, ActionSendMessage, execErr.Kind)
		assert.ErrorIs(t, err, netErr)
	})
}

func TestBot_ServeHTTP(t *testing.T) {
	post := func(b *Bot, body string, header http.Header) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
		for k, v := range header {
			req.Header[k] = v
		}
		rec := httptest.NewRecorder()
		b.ServeHTTP(rec, req)
		return rec
	}

	t.Run("handled", func(t *testing.T) {
		tr := &stubTransport{}
		rec := post(newTestBot(tr), pingUpdate, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, tr.calls, 1)
	})

	t.Run("malformed body", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, post(newTestBot(&stubTransport{}), `{"update_id":`, nil).Code)
		assert.Equal(t, http.StatusBadRequest, post(newTestBot(&stubTransport{}), `{"message": {"message_id": 1, "chat": {"id": 1}}}`, nil).Code)
	})

	t.Run("handler error", func(t *testing.T) {
		body := strings.Replace(pingUpdate, "/ping", "/fail", 1)
		assert.Equal(t, http.StatusInternalServerError, post(newTestBot(&stubTransport{}), body, nil).Code)
	})

	t.Run("execution error is acknowledged", func(t *testing.T) {
		tr := &stubTransport{respond: func(string, Params) (RawResult, error) { return RawResult{}, errors.New("down") }}
		assert.Equal(t, http.StatusOK, post(newTestBot(tr), pingUpdate, nil).Code)
	})

	t.Run("secret token", func(t *testing.T) {
		b := newTestBot(&stubTransport{}, WithWebhookSecret("s3cret"))

		assert.Equal(t, http.StatusUnauthorized, post(b, pingUpdate, nil).Code)
		assert.Equal(t, http.StatusUnauthorized, post(b, pingUpdate, http.Header{SecretTokenHeader: {"wrong"}}).Code)
		assert.Equal(t, http.StatusOK, post(b, pingUpdate, http.Header{SecretTokenHeader: {"s3cret"}}).Code)
	})

	t.Run("method not allowed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/webhook", nil)
		rec := httptest.NewRecorder()
		newTestBot(&stubTransport{}).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestBot_Poll(t *testing.T) {
	t.Run("advances offset past every fetched update", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var offsets []any
		var committed []int64
		tr := &stubTransport{}
		tr.respond = func(method string, p Params) (RawResult, error) {
			if method != "getUpdates" {
				return RawResult{OK: true, Result: json.RawMessage(`true`)}, nil
			}
			offsets = append(offsets, p["offset"])
			switch len(offsets) {
			case 1:
				return RawResult{OK: true, Result: json.RawMessage(`[` + pingUpdate + `,
					{"update_id": 12, "message": {"chat": {"id": 42}}},
					{"update_id": 11, "poll": {}}]`)}, nil
			default:
				cancel()
				return RawResult{OK: true, Result: json.RawMessage(`[]`)}, nil
			}
		}
		b := newTestBot(tr)

		offset, err := b.Poll(ctx, PollOptions{
			Offset:         5,
			Timeout:        10 * time.Second,
			Limit:          50,
			AllowedUpdates: []string{"message"},
			OnOffset:       func(o int64) { committed = append(committed, o) },
		})

		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, int64(13), offset)
		assert.Equal(t, []any{int64(5), int64(13)}, offsets)
		assert.Equal(t, []int64{13}, committed)
		assert.Equal(t, []string{"getUpdates", "sendMessage", "getUpdates"}, tr.methods())

		first := tr.calls[0].params
		assert.Equal(t, 10, first["timeout"])
		assert.Equal(t, 50, first["limit"])
		assert.Equal(t, []string{"message"}, first["allowed_updates"])
	})

	t.Run("backs off and retries after failures", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var calls atomic.Int32
		tr := &stubTransport{}
		tr.respond = func(string, Params) (RawResult, error) {
			switch calls.Add(1) {
			case 1:
				return RawResult{}, errors.New("timeout")
			case 2:
				return RawResult{ErrorCode: 502, Description: "Bad Gateway"}, nil
			default:
				cancel()
				return RawResult{OK: true, Result: json.RawMessage(`[]`)}, nil
			}
		}
		b := newTestBot(tr)

		offset, err := b.Poll(ctx, PollOptions{MinBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond})

		assert.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, offset)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("handler failures do not stop polling", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var polls atomic.Int32
		failing := strings.Replace(pingUpdate, "/ping", "/fail", 1)
		tr := &stubTransport{}
		tr.respond = func(method string, _ Params) (RawResult, error) {
			if method != "getUpdates" {
				return RawResult{OK: true, Result: json.RawMessage(`true`)}, nil
			}
			if polls.Add(1) == 1 {
				return RawResult{OK: true, Result: json.RawMessage(`[` + failing + `]`)}, nil
			}
			cancel()
			return RawResult{OK: true, Result: json.RawMessage(`[]`)}, nil
		}

		offset, err := newTestBot(tr, WithConcurrency(4)).Poll(ctx, PollOptions{})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, int64(11), offset)
		assert.Equal(t, int32(2), polls.Load())
	})

	t.Run("concurrent batch", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var batch []string
		for i := range 20 {
			batch = append(batch, strings.Replace(pingUpdate, `"update_id": 10`, `"update_id": `+strconv.Itoa(100+i), 1))
		}
		var polls atomic.Int32
		tr := &stubTransport{}
		tr.respond = func(method string, _ Params) (RawResult, error) {
			if method != "getUpdates" {
				return RawResult{OK: true, Result: json.RawMessage(`true`)}, nil
			}
			if polls.Add(1) == 1 {
				return RawResult{OK: true, Result: json.RawMessage(`[` + strings.Join(batch, ",") + `]`)}, nil
			}
			cancel()
			return RawResult{OK: true, Result: json.RawMessage(`[]`)}, nil
		}

		offset, err := newTestBot(tr, WithConcurrency(8)).Poll(ctx, PollOptions{})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, int64(120), offset)
		assert.Len(t, tr.calls, 22)
	})

	t.Run("returns immediately when cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		tr := &stubTransport{}
		offset, err := newTestBot(tr).Poll(ctx, PollOptions{Offset: 7})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, int64(7), offset)
		assert.Empty(t, tr.calls)
	})
}

func TestBot_UpdateFilter(t *testing.T) {
	ctx := context.Background()
	groupPing := `{"update_id": 20, "message": {"message_id": 2, "chat": {"id": -5, "type": "group"}, "from": {"id": 7}, "text": "/ping"}}`
	privateOnly := WithUpdateFilter(InChat(ChatPrivate))

	t.Run("process update", func(t *testing.T) {
		tr := &stubTransport{}
		b := newTestBot(tr, privateOnly)

		o, _, err := b.ProcessUpdate(ctx, []byte(groupPing))
		require.NoError(t, err)
		assert.Equal(t, StatusSkipped, o.Status)
		assert.Equal(t, int64(20), o.Update.ID)
		assert.Empty(t, tr.calls)

		o, _, err = b.ProcessUpdate(ctx, []byte(pingUpdate))
		require.NoError(t, err)
		assert.Equal(t, StatusHandled, o.Status)
	})

	t.Run("filtered updates are not decoded", func(t *testing.T) {
		b := newTestBot(&stubTransport{}, WithUpdateFilter(OfKind(KindCallbackQuery)))

		o, _, err := b.ProcessUpdate(ctx, []byte(`{"update_id": 3, "message": {}}`))
		require.NoError(t, err)
		assert.Equal(t, StatusSkipped, o.Status)
	})

	t.Run("webhook acknowledges filtered update", func(t *testing.T) {
		tr := &stubTransport{}
		req := httptest.NewRequest(http.MethodPost, "/hook", strings.NewReader(groupPing))
		rec := httptest.NewRecorder()

		newTestBot(tr, privateOnly).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, tr.calls)
	})

	t.Run("poll skips filtered updates but advances offset", func(t *testing.T) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		var fetches int
		tr := &stubTransport{}
		tr.respond = func(method string, _ Params) (RawResult, error) {
			if method != "getUpdates" {
				return RawResult{OK: true, Result: json.RawMessage(`true`)}, nil
			}
			fetches++
			if fetches == 1 {
				return RawResult{OK: true, Result: json.RawMessage(`[` + pingUpdate + `,` + groupPing + `]`)}, nil
			}
			cancel()
			return RawResult{OK: true, Result: json.RawMessage(`[]`)}, nil
		}

		offset, err := newTestBot(tr, privateOnly).Poll(ctx, PollOptions{})

		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, int64(21), offset)
		assert.Equal(t, []string{"getUpdates", "sendMessage", "getUpdates"}, tr.methods())
	})
}
