package botdispatch

import "slices"

// Discriminator is a predicate over an inspected update payload. Decode
// uses one per update kind, and a Bot can be given one with
// WithUpdateFilter to drop updates before they are decoded.
type Discriminator interface {
	Match(v View) bool
}

// DiscriminatorFunc adapts a plain function to the Discriminator interface.
type DiscriminatorFunc func(v View) bool

// Match implements Discriminator.
func (f DiscriminatorFunc) Match(v View) bool { return f(v) }

// HasObject matches when path holds a JSON object. A "message": null key
// therefore does not classify an update as a message.
func HasObject(path string) Discriminator {
	return DiscriminatorFunc(func(v View) bool {
		_, ok := v.Object(path)
		return ok
	})
}

// FieldEquals matches when path holds the string value.
func FieldEquals(path, value string) Discriminator {
	return DiscriminatorFunc(func(v View) bool {
		s, ok := v.GetString(path)
		return ok && s == value
	})
}

// OfKind matches updates Decode would classify as one of kinds.
func OfKind(kinds ...Kind) Discriminator {
	return DiscriminatorFunc(func(v View) bool {
		return slices.Contains(kinds, classify(v))
	})
}

var chatPaths = []string{
	"message.chat",
	"callback_query.message.chat",
}

// InChat matches messages and callback queries whose chat has one of the
// given types. A chat without a type counts as private, as in Decode.
// Inline updates have no chat and never match.
func InChat(types ...ChatType) Discriminator {
	return DiscriminatorFunc(func(v View) bool {
		for _, p := range chatPaths {
			if chat, ok := v.Object(p); ok {
				s, _ := chat.GetString("type")
				return slices.Contains(types, parseChatType(s))
			}
		}
		return false
	})
}

var senderPaths = []string{
	"message.from.id",
	"callback_query.from.id",
	"inline_query.from.id",
	"chosen_inline_result.from.id",
}

// FromUsers matches updates sent by one of ids.
func FromUsers(ids ...int64) Discriminator {
	return DiscriminatorFunc(func(v View) bool {
		for _, p := range senderPaths {
			if id, ok := v.GetInt(p); ok {
				return slices.Contains(ids, id)
			}
		}
		return false
	})
}

// And matches when every d matches. With no arguments it always matches.
func And(ds ...Discriminator) Discriminator {
	return DiscriminatorFunc(func(v View) bool {
		for _, d := range ds {
			if !d.Match(v) {
				return false
			}
		}
		return true
	})
}

// Or matches when some d matches. With no arguments it never matches.
func Or(ds ...Discriminator) Discriminator {
	return DiscriminatorFunc(func(v View) bool {
		return slices.ContainsFunc(ds, func(d Discriminator) bool { return d.Match(v) })
	})
}

// Not inverts d.
func Not(d Discriminator) Discriminator {
	return DiscriminatorFunc(func(v View) bool { return !d.Match(v) })
}
