package botdispatch

import (
	"strconv"
	"time"
)

// Kind identifies which payload an Update carries.
type Kind int

const (
	KindUnknown Kind = iota
	KindMessage
	KindCallbackQuery
	KindInlineQuery
	KindChosenInlineResult
)

func (k Kind) String() string {
	switch k {
	case KindMessage:
		return "message"
	case KindCallbackQuery:
		return "callback_query"
	case KindInlineQuery:
		return "inline_query"
	case KindChosenInlineResult:
		return "chosen_inline_result"
	default:
		return "unknown"
	}
}

// Update is one inbound event. Exactly one payload pointer is set and it
// always agrees with Kind; an Unknown update carries none.
type Update struct {
	ID                 int64
	Kind               Kind
	Message            *Message
	CallbackQuery      *CallbackQuery
	InlineQuery        *InlineQuery
	ChosenInlineResult *ChosenInlineResult
}

// Sender returns the user who caused the update, or nil if there is none.
func (u Update) Sender() *User {
	switch u.Kind {
	case KindMessage:
		return u.Message.From
	case KindCallbackQuery:
		return &u.CallbackQuery.From
	case KindInlineQuery:
		return &u.InlineQuery.From
	case KindChosenInlineResult:
		return &u.ChosenInlineResult.From
	}
	return nil
}

// User is a platform account.
type User struct {
	ID           int64
	IsBot        bool
	FirstName    string
	LastName     string
	Username     string
	LanguageCode string
}

// ChatType is the kind of chat a message was posted in.
type ChatType int

const (
	ChatPrivate ChatType = iota
	ChatGroup
	ChatSupergroup
	ChatChannel
)

func (t ChatType) String() string {
	switch t {
	case ChatGroup:
		return "group"
	case ChatSupergroup:
		return "supergroup"
	case ChatChannel:
		return "channel"
	default:
		return "private"
	}
}

func parseChatType(s string) ChatType {
	switch s {
	case "group":
		return ChatGroup
	case "supergroup":
		return ChatSupergroup
	case "channel":
		return ChatChannel
	default:
		return ChatPrivate
	}
}

// Chat is the conversation a message belongs to.
type Chat struct {
	ID       int64
	Type     ChatType
	Title    string
	Username string
}

// IDString formats the chat id the way Action constructors expect it.
func (c Chat) IDString() string {
	return strconv.FormatInt(c.ID, 10)
}

// Entity marks a span of message text (command, url, mention ...).
type Entity struct {
	Type   string
	Offset int
	Length int
	URL    string
	User   *User
}

// Message is a chat message.
type Message struct {
	ID          int64
	From        *User
	Date        time.Time
	Chat        Chat
	ForwardFrom *User
	ForwardDate time.Time
	ReplyTo     *Message
	Text        string
	Caption     string
	Entities    []Entity
}

// IsCommand reports whether the message text starts with a slash.
func (m *Message) IsCommand() bool {
	return m.Text != "" && m.Text[0] == '/'
}

// Answer returns an action sending text to the message's chat.
func (m *Message) Answer(text string, extra ...Params) Action {
	return SendMessage(m.Chat.IDString(), text, extra...)
}

// Reply returns an action sending text to the message's chat as a reply
// to the message.
func (m *Message) Reply(text string, extra ...Params) Action {
	p := Params{"reply_to_message_id": m.ID}.merge(extra...)
	return SendMessage(m.Chat.IDString(), text, p)
}

// EditText returns an action replacing the message's text.
func (m *Message) EditText(text string, extra ...Params) Action {
	return EditMessageText(m.Chat.IDString(), m.ID, text, extra...)
}

// CallbackQuery is a press on an inline keyboard button.
type CallbackQuery struct {
	ID      string
	From    User
	Message *Message
	// FromInlineMode is set iff InlineMessageID is non-empty.
	FromInlineMode  bool
	InlineMessageID string
	Data            string
	ChatInstance    string
}

// Answer returns an action acknowledging the query.
func (q *CallbackQuery) Answer(extra ...Params) Action {
	return AnswerCallbackQuery(q.ID, extra...)
}

// EditText returns an action editing the message the button was attached
// to, or DoNothing if the query carries neither a message nor an inline id.
func (q *CallbackQuery) EditText(text string, extra ...Params) Action {
	switch {
	case q.FromInlineMode:
		return EditInlineMessageText(q.InlineMessageID, text, extra...)
	case q.Message != nil:
		return q.Message.EditText(text, extra...)
	default:
		return DoNothing()
	}
}

// InlineQuery is text typed after the bot's username in any chat.
type InlineQuery struct {
	ID     string
	From   User
	Query  string
	Offset string
}

// ChosenInlineResult reports which inline result the user picked.
type ChosenInlineResult struct {
	ResultID        string
	From            User
	InlineMessageID string
	Query           string
}

// EditText edits the sent inline message, or does nothing when the result
// carries no inline message id.
func (r *ChosenInlineResult) EditText(text string, extra ...Params) Action {
	if r.InlineMessageID == "" {
		return DoNothing()
	}
	return EditInlineMessageText(r.InlineMessageID, text, extra...)
}

// EditReplyMarkup replaces (or, with nil/false, removes) the inline
// message's keyboard.
func (r *ChosenInlineResult) EditReplyMarkup(markup any) Action {
	if r.InlineMessageID == "" {
		return DoNothing()
	}
	return EditInlineMessageReplyMarkup(r.InlineMessageID, markup)
}
