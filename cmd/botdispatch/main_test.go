package main

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjaus/botdispatch"
)

func demoRouter(t *testing.T) *botdispatch.Router {
	t.Helper()
	r := botdispatch.New(botdispatch.WithLogger(slog.New(slog.DiscardHandler)))
	require.NoError(t, register(r, nil))
	return r
}

func dispatch(t *testing.T, r *botdispatch.Router, raw string) botdispatch.Outcome {
	t.Helper()
	u, err := botdispatch.Decode([]byte(raw))
	require.NoError(t, err)
	o, err := r.Dispatch(context.Background(), u)
	require.NoError(t, err)
	return o
}

func TestRegister(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		route botdispatch.Route
		kind  botdispatch.ActionKind
	}{
		{
			name:  "start",
			raw:   `{"update_id": 1, "message": {"message_id": 1, "chat": {"id": 7}, "from": {"id": 7}, "text": "/start"}}`,
			route: botdispatch.RouteCommand,
			kind:  botdispatch.ActionSendMessage,
		},
		{
			name:  "item by pattern",
			raw:   `{"update_id": 2, "message": {"message_id": 2, "chat": {"id": 7}, "from": {"id": 7}, "text": "/get_12"}}`,
			route: botdispatch.RouteDynamicCommand,
			kind:  botdispatch.ActionSendMessage,
		},
		{
			name:  "unknown command",
			raw:   `{"update_id": 3, "message": {"message_id": 3, "chat": {"id": 7}, "from": {"id": 7}, "text": "/nope"}}`,
			route: botdispatch.RouteCommandFallback,
			kind:  botdispatch.ActionSendMessage,
		},
		{
			name:  "pager button",
			raw:   `{"update_id": 4, "callback_query": {"id": "cb", "from": {"id": 7}, "data": "page_2", "message": {"message_id": 5, "chat": {"id": 7, "type": "private"}}}}`,
			route: botdispatch.RouteDynamicCallback,
			kind:  botdispatch.ActionMultiple,
		},
		{
			name:  "read button",
			raw:   `{"update_id": 5, "callback_query": {"id": "cb", "from": {"id": 7}, "data": "read", "inline_message_id": "im-1"}}`,
			route: botdispatch.RouteCallback,
			kind:  botdispatch.ActionMultiple,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := dispatch(t, demoRouter(t), tt.raw)

			assert.Equal(t, botdispatch.StatusHandled, o.Status)
			assert.Equal(t, tt.route, o.Route)
			assert.Equal(t, tt.kind, o.Action.Kind())
		})
	}
}

func TestRegister_PagerEditsList(t *testing.T) {
	o := dispatch(t, demoRouter(t),
		`{"update_id": 4, "callback_query": {"id": "cb", "from": {"id": 7}, "data": "page_2", "message": {"message_id": 5, "chat": {"id": 7, "type": "private"}}}}`)

	actions := o.Action.Actions()
	require.Len(t, actions, 2)
	assert.Equal(t, botdispatch.ActionAnswerCallbackQuery, actions[0].Kind())
	assert.Equal(t, botdispatch.ActionEditMessageText, actions[1].Kind())
	assert.Equal(t, listText(2), actions[1].Text())
	assert.Equal(t, pager(2), actions[1].Extra()["reply_markup"])
}

func TestRegister_ChosenResultKeepsKeyboard(t *testing.T) {
	o := dispatch(t, demoRouter(t),
		`{"update_id": 6, "chosen_inline_result": {"result_id": "echo", "from": {"id": 7}, "query": "hi", "inline_message_id": "im-1"}}`)

	assert.Equal(t, botdispatch.RouteChosenInlineResult, o.Route)
	assert.Equal(t, botdispatch.ActionEditInlineMessageText, o.Action.Kind())
	assert.Equal(t, "im-1", o.Action.InlineMessageID())
	assert.Equal(t, readMarkup(), o.Action.Extra()["reply_markup"])
}
