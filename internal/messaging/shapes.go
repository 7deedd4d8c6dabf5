package messaging

// shapeMatcher recognizes one wire layout and pulls its message out.
type shapeMatcher interface {
	Name() string
	TryExtract(env *envelope) (candidate, bool)
}

func defaultMatchers() []shapeMatcher {
	return []shapeMatcher{
		directShape{},
		arrayShape{},
		entryShape{},
		valueShape{},
	}
}

// directShape: {"message": {"type": "...", ...}} with sender and id either
// on the message or beside it.
type directShape struct{}

func (directShape) Name() string { return "direct" }

func (directShape) TryExtract(env *envelope) (candidate, bool) {
	if env.Message == nil || env.Message.Type == "" {
		return candidate{}, false
	}
	fallbackID := env.MessageID
	if fallbackID == "" {
		fallbackID = env.ID
	}
	fallbackFrom := env.From
	if fallbackFrom == "" {
		fallbackFrom = env.Phone
	}
	return candidate{
		msg:          *env.Message,
		contacts:     env.Contacts,
		fallbackID:   fallbackID,
		fallbackFrom: fallbackFrom,
	}, true
}

// arrayShape: a top-level list of messages, either the body itself or a
// top-level "messages" key. The first element is used.
type arrayShape struct{}

func (arrayShape) Name() string { return "array" }

func (arrayShape) TryExtract(env *envelope) (candidate, bool) {
	if len(env.Array) > 0 {
		return candidate{msg: env.Array[0]}, true
	}
	if len(env.Messages) > 0 {
		return candidate{msg: env.Messages[0], contacts: env.Contacts}, true
	}
	return candidate{}, false
}

// entryShape: entry[0].changes[0].value.messages[0].
type entryShape struct{}

func (entryShape) Name() string { return "entry" }

func (entryShape) TryExtract(env *envelope) (candidate, bool) {
	if len(env.Entry) == 0 || len(env.Entry[0].Changes) == 0 {
		return candidate{}, false
	}
	return fromValue(env.Entry[0].Changes[0].Value)
}

// valueShape: value.messages[0].
type valueShape struct{}

func (valueShape) Name() string { return "value" }

func (valueShape) TryExtract(env *envelope) (candidate, bool) {
	if env.Value == nil {
		return candidate{}, false
	}
	return fromValue(*env.Value)
}

func fromValue(v wireValue) (candidate, bool) {
	if len(v.Messages) == 0 {
		return candidate{}, false
	}
	return candidate{
		msg:         v.Messages[0],
		contacts:    v.Contacts,
		recipientID: v.Metadata.PhoneNumberID,
	}, true
}
