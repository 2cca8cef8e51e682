package botdispatch

import (
	"fmt"
	"time"
)

// MalformedUpdateError reports a payload that was recognised as a known
// update kind but lacks a field the kind cannot exist without.
type MalformedUpdateError struct {
	Kind  Kind
	Field string
}

func (e *MalformedUpdateError) Error() string {
	return fmt.Sprintf("malformed %s update: missing %s", e.Kind, e.Field)
}

// kindDecoder pairs a discriminator with the decoder for its payload.
// Order is the disambiguation order when a payload carries several keys.
type kindDecoder struct {
	kind   Kind
	disc   Discriminator
	decode func(v View, u *Update) error
}

var kindDecoders = []kindDecoder{
	{KindMessage, HasObject("message"), func(v View, u *Update) (err error) {
		u.Message, err = decodeMessage(sub(v, "message"), KindMessage, "message")
		return err
	}},
	{KindCallbackQuery, HasObject("callback_query"), func(v View, u *Update) (err error) {
		u.CallbackQuery, err = decodeCallbackQuery(sub(v, "callback_query"))
		return err
	}},
	{KindInlineQuery, HasObject("inline_query"), func(v View, u *Update) (err error) {
		u.InlineQuery, err = decodeInlineQuery(sub(v, "inline_query"))
		return err
	}},
	{KindChosenInlineResult, HasObject("chosen_inline_result"), func(v View, u *Update) (err error) {
		u.ChosenInlineResult, err = decodeChosenInlineResult(sub(v, "chosen_inline_result"))
		return err
	}},
}

// Decode parses a raw update payload.
//
// Decoding is total over shapes: a payload with none of the known update
// keys yields a KindUnknown update (with ID zero if update_id is absent).
// Errors are reserved for input that is not JSON (ErrInvalidJSON) and for
// known kinds missing a required field (*MalformedUpdateError).
func Decode(raw []byte) (Update, error) {
	v, err := JSONInspector().Inspect(raw)
	if err != nil {
		return Update{}, err
	}
	return DecodeView(v)
}

// DecodeView decodes an update from an already inspected payload.
func DecodeView(v View) (Update, error) {
	var u Update
	id, hasID := v.GetInt("update_id")
	u.ID = id

	for _, kd := range kindDecoders {
		if !kd.disc.Match(v) {
			continue
		}
		if !hasID {
			return Update{}, &MalformedUpdateError{Kind: kd.kind, Field: "update_id"}
		}
		if err := kd.decode(v, &u); err != nil {
			return Update{}, err
		}
		u.Kind = kd.kind
		return u, nil
	}
	return u, nil
}

// BatchError collects the entries of a batch that failed to decode.
type BatchError struct {
	// Errs maps the entry's position in the batch to its decode error.
	Errs map[int]error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("%d update(s) failed to decode", len(e.Errs))
}

// DecodeBatch decodes a JSON array of updates, such as the result of a
// getUpdates call. Entries that fail to decode are skipped and reported
// through a *BatchError; the returned slice still holds every good entry
// in source order.
func DecodeBatch(raw []byte) ([]Update, error) {
	v, err := JSONInspector().Inspect(raw)
	if err != nil {
		return nil, err
	}
	items, ok := v.Array("")
	if !ok {
		return nil, fmt.Errorf("decode batch: %w", ErrInvalidJSON)
	}
	return decodeItems(items, nil)
}

// decodeItems decodes the entries keep matches (all of them when keep is
// nil).
func decodeItems(items []View, keep Discriminator) ([]Update, error) {
	updates := make([]Update, 0, len(items))
	var bad map[int]error
	for i, item := range items {
		if keep != nil && !keep.Match(item) {
			continue
		}
		u, err := DecodeView(item)
		if err != nil {
			if bad == nil {
				bad = make(map[int]error)
			}
			bad[i] = err
			continue
		}
		updates = append(updates, u)
	}
	if bad != nil {
		return updates, &BatchError{Errs: bad}
	}
	return updates, nil
}

// classify returns the kind DecodeView would assign to v.
func classify(v View) Kind {
	for _, kd := range kindDecoders {
		if kd.disc.Match(v) {
			return kd.kind
		}
	}
	return KindUnknown
}

func sub(v View, path string) View {
	s, _ := v.Object(path)
	return s
}

func str(v View, path string) string {
	s, _ := v.GetString(path)
	return s
}

func unixTime(v View, path string) time.Time {
	if n, ok := v.GetInt(path); ok {
		return time.Unix(n, 0).UTC()
	}
	return time.Time{}
}

func decodeUser(v View, kind Kind, field string) (User, error) {
	id, ok := v.GetInt("id")
	if !ok {
		return User{}, &MalformedUpdateError{Kind: kind, Field: field + ".id"}
	}
	isBot, _ := v.GetBool("is_bot")
	return User{
		ID:           id,
		IsBot:        isBot,
		FirstName:    str(v, "first_name"),
		LastName:     str(v, "last_name"),
		Username:     str(v, "username"),
		LanguageCode: str(v, "language_code"),
	}, nil
}

// optionalUser decodes path if present; a present user without an id is
// still malformed.
func optionalUser(v View, path string, kind Kind, field string) (*User, error) {
	uv, ok := v.Object(path)
	if !ok {
		return nil, nil
	}
	u, err := decodeUser(uv, kind, field)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func decodeMessage(v View, kind Kind, field string) (*Message, error) {
	id, ok := v.GetInt("message_id")
	if !ok {
		return nil, &MalformedUpdateError{Kind: kind, Field: field + ".message_id"}
	}
	cv, ok := v.Object("chat")
	if !ok {
		return nil, &MalformedUpdateError{Kind: kind, Field: field + ".chat"}
	}
	chatID, ok := cv.GetInt("id")
	if !ok {
		return nil, &MalformedUpdateError{Kind: kind, Field: field + ".chat.id"}
	}

	m := &Message{
		ID:   id,
		Date: unixTime(v, "date"),
		Chat: Chat{
			ID:       chatID,
			Type:     parseChatType(str(cv, "type")),
			Title:    str(cv, "title"),
			Username: str(cv, "username"),
		},
		ForwardDate: unixTime(v, "forward_date"),
		Text:        str(v, "text"),
		Caption:     str(v, "caption"),
	}

	var err error
	if m.From, err = optionalUser(v, "from", kind, field+".from"); err != nil {
		return nil, err
	}
	if m.ForwardFrom, err = optionalUser(v, "forward_from", kind, field+".forward_from"); err != nil {
		return nil, err
	}
	if rv, ok := v.Object("reply_to_message"); ok {
		if m.ReplyTo, err = decodeMessage(rv, kind, field+".reply_to_message"); err != nil {
			return nil, err
		}
	}
	if ev, ok := v.Array("entities"); ok {
		m.Entities = make([]Entity, 0, len(ev))
		for i, e := range ev {
			ent, err := decodeEntity(e, kind, fmt.Sprintf("%s.entities.%d", field, i))
			if err != nil {
				return nil, err
			}
			m.Entities = append(m.Entities, ent)
		}
	}
	return m, nil
}

func decodeEntity(v View, kind Kind, field string) (Entity, error) {
	offset, _ := v.GetInt("offset")
	length, _ := v.GetInt("length")
	u, err := optionalUser(v, "user", kind, field+".user")
	if err != nil {
		return Entity{}, err
	}
	return Entity{
		Type:   str(v, "type"),
		Offset: int(offset),
		Length: int(length),
		URL:    str(v, "url"),
		User:   u,
	}, nil
}

func decodeCallbackQuery(v View) (*CallbackQuery, error) {
	id, ok := v.GetString("id")
	if !ok {
		return nil, &MalformedUpdateError{Kind: KindCallbackQuery, Field: "callback_query.id"}
	}
	fv, ok := v.Object("from")
	if !ok {
		return nil, &MalformedUpdateError{Kind: KindCallbackQuery, Field: "callback_query.from"}
	}
	from, err := decodeUser(fv, KindCallbackQuery, "callback_query.from")
	if err != nil {
		return nil, err
	}

	q := &CallbackQuery{
		ID:           id,
		From:         from,
		Data:         str(v, "data"),
		ChatInstance: str(v, "chat_instance"),
	}
	if mv, ok := v.Object("message"); ok {
		if q.Message, err = decodeMessage(mv, KindCallbackQuery, "callback_query.message"); err != nil {
			return nil, err
		}
	}
	if inline := str(v, "inline_message_id"); inline != "" {
		q.FromInlineMode = true
		q.InlineMessageID = inline
	}
	return q, nil
}

func decodeInlineQuery(v View) (*InlineQuery, error) {
	id, ok := v.GetString("id")
	if !ok {
		return nil, &MalformedUpdateError{Kind: KindInlineQuery, Field: "inline_query.id"}
	}
	fv, ok := v.Object("from")
	if !ok {
		return nil, &MalformedUpdateError{Kind: KindInlineQuery, Field: "inline_query.from"}
	}
	from, err := decodeUser(fv, KindInlineQuery, "inline_query.from")
	if err != nil {
		return nil, err
	}
	return &InlineQuery{
		ID:     id,
		From:   from,
		Query:  str(v, "query"),
		Offset: str(v, "offset"),
	}, nil
}

func decodeChosenInlineResult(v View) (*ChosenInlineResult, error) {
	id, ok := v.GetString("result_id")
	if !ok {
		return nil, &MalformedUpdateError{Kind: KindChosenInlineResult, Field: "chosen_inline_result.result_id"}
	}
	fv, ok := v.Object("from")
	if !ok {
		return nil, &MalformedUpdateError{Kind: KindChosenInlineResult, Field: "chosen_inline_result.from"}
	}
	from, err := decodeUser(fv, KindChosenInlineResult, "chosen_inline_result.from")
	if err != nil {
		return nil, err
	}
	return &ChosenInlineResult{
		ResultID:        id,
		From:            from,
		InlineMessageID: str(v, "inline_message_id"),
		Query:           str(v, "query"),
	}, nil
}
