package botdispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAction_ConstructorsRejectMissingFields(t *testing.T) {
	tests := []struct {
		name  string
		build func() Action
		kind  ActionKind
		field string
	}{
		{"send without chat", func() Action { return SendMessage("", "hi") }, ActionSendMessage, "chat id"},
		{"send without text", func() Action { return SendMessage("42", "") }, ActionSendMessage, "text"},
		{"edit without message", func() Action { return EditMessageText("42", 0, "hi") }, ActionEditMessageText, "message id"},
		{"inline edit without id", func() Action { return EditInlineMessageText("", "hi") }, ActionEditInlineMessageText, "inline message id"},
		{"markup without chat", func() Action { return EditMessageReplyMarkup("", 7, nil) }, ActionEditMessageReplyMarkup, "chat id"},
		{"inline markup without id", func() Action { return EditInlineMessageReplyMarkup("", nil) }, ActionEditInlineMessageReplyMarkup, "inline message id"},
		{"answer without id", func() Action { return AnswerCallbackQuery("") }, ActionAnswerCallbackQuery, "callback query id"},
		{"remote without method", func() Action { return CallRemoteMethod("", nil) }, ActionCallRemoteMethod, "method name"},
		{"local without function", func() Action { return CallLocalFunction(nil) }, ActionCallLocalFunction, "function"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.PanicsWithError(t, (&ActionError{Kind: tt.kind, Field: tt.field}).Error(), func() {
				tt.build()
			})
		})
	}
}

func TestAction_Constructors(t *testing.T) {
	t.Run("zero value does nothing", func(t *testing.T) {
		assert.Equal(t, ActionDoNothing, Action{}.Kind())
		assert.Equal(t, ActionDoNothing, DoNothing().Kind())
	})

	t.Run("send message merges extras in order", func(t *testing.T) {
		a := SendMessage("42", "hi", Params{"a": 1, "b": 1}, Params{"b": 2})
		assert.Equal(t, ActionSendMessage, a.Kind())
		assert.Equal(t, "42", a.ChatID())
		assert.Equal(t, "hi", a.Text())
		assert.Equal(t, Params{"a": 1, "b": 2}, a.Extra())
	})

	t.Run("extras are copied", func(t *testing.T) {
		extra := Params{"parse_mode": "HTML"}
		a := SendMessage("42", "hi", extra)
		extra["parse_mode"] = "Markdown"

		got := a.Extra()
		got["parse_mode"] = "MarkdownV2"
		assert.Equal(t, "HTML", a.Extra()["parse_mode"])
	})

	t.Run("false markup means removal", func(t *testing.T) {
		assert.Nil(t, EditMessageReplyMarkup("42", 7, false).Markup())
		assert.Nil(t, EditInlineMessageReplyMarkup("im", nil).Markup())

		kb := map[string]any{"inline_keyboard": [][]map[string]string{{{"text": "ok", "callback_data": "ok"}}}}
		assert.Equal(t, kb, EditMessageReplyMarkup("42", 7, kb).Markup())
	})

	t.Run("edits are mutually exclusive by target", func(t *testing.T) {
		chat := EditMessageText("42", 7, "x")
		inline := EditInlineMessageText("im", "x")
		assert.Empty(t, chat.InlineMessageID())
		assert.Empty(t, inline.ChatID())
		assert.Zero(t, inline.MessageID())
	})

	t.Run("multiple copies children", func(t *testing.T) {
		children := []Action{DoNothing(), SendMessage("1", "a")}
		a := Multiple(children...)
		children[0] = SendMessage("2", "b")

		got := a.Actions()
		assert.Len(t, got, 2)
		assert.Equal(t, ActionDoNothing, got[0].Kind())
	})

	t.Run("remote method keeps name and params", func(t *testing.T) {
		a := CallRemoteMethod("sendDice", Params{"chat_id": "42"})
		assert.Equal(t, "sendDice", a.Method())
		assert.Equal(t, Params{"chat_id": "42"}, a.Extra())
	})
}

func TestActionKind_String(t *testing.T) {
	assert.Equal(t, "SendMessage", ActionSendMessage.String())
	assert.Equal(t, "Multiple", ActionMultiple.String())
	assert.Equal(t, "ActionKind(42)", ActionKind(42).String())
}
