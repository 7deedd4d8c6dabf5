package messaging

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Message is the canonical inbound chat message, whatever wire shape it
// arrived in.
type Message struct {
	MessageID string
	FromPhone string
	Text      string
	ButtonID  string
	// ProfileName is the sender's display name when the payload carries contacts.
	ProfileName string
	// RecipientID is the provider id of the business number that received the message.
	RecipientID string
	// Shape names the matcher that accepted the payload.
	Shape string
}

// UserInput is what the conversation engine sees: the text body if present,
// otherwise the id of the tapped button or list row.
func (m Message) UserInput() string {
	if m.Text != "" {
		return m.Text
	}
	return m.ButtonID
}

// Normalizer tries each shape matcher in order; the first one that matches
// decides the outcome.
type Normalizer struct {
	matchers []shapeMatcher
}

// NewNormalizer builds a normalizer over the given matchers, or the default
// ordered set when none are passed.
func NewNormalizer(matchers ...shapeMatcher) *Normalizer {
	if len(matchers) == 0 {
		matchers = defaultMatchers()
	}
	return &Normalizer{matchers: matchers}
}

var defaultNormalizer = NewNormalizer()

// Normalize converts a raw webhook body with the default matchers. ok is
// false when the body holds no usable message; that is a valid outcome
// (status callbacks, malformed bodies), not an error.
func Normalize(body []byte) (Message, bool) {
	return defaultNormalizer.Normalize(body)
}

// Normalize converts a raw webhook body into a Message.
func (n *Normalizer) Normalize(body []byte) (Message, bool) {
	env, ok := parseEnvelope(body)
	if !ok {
		return Message{}, false
	}
	for _, m := range n.matchers {
		c, matched := m.TryExtract(env)
		if !matched {
			continue
		}
		msg := c.toMessage()
		msg.Shape = m.Name()
		if msg.MessageID == "" || msg.FromPhone == "" || msg.UserInput() == "" {
			return Message{}, false
		}
		return msg, true
	}
	return Message{}, false
}

type candidate struct {
	msg          wireMessage
	contacts     []wireContact
	recipientID  string
	fallbackID   string
	fallbackFrom string
}

func (c candidate) toMessage() Message {
	id := strings.TrimSpace(c.msg.ID)
	if id == "" {
		id = strings.TrimSpace(c.fallbackID)
	}
	from := c.msg.From
	if strings.TrimSpace(from) == "" {
		from = c.fallbackFrom
	}
	out := Message{
		MessageID:   id,
		FromPhone:   NormalizePhone(from),
		Text:        strings.TrimSpace(c.msg.Text.Body),
		ButtonID:    strings.TrimSpace(c.msg.buttonID()),
		RecipientID: strings.TrimSpace(c.recipientID),
	}
	if len(c.contacts) > 0 {
		out.ProfileName = strings.TrimSpace(c.contacts[0].Profile.Name)
	}
	return out
}

// wireMessage is the provider's message object. Fields are optional; shapes
// differ in which ones they fill.
type wireMessage struct {
	ID          string           `json:"id"`
	From        string           `json:"from"`
	Timestamp   string           `json:"timestamp"`
	Type        string           `json:"type"`
	Text        wireText         `json:"text"`
	Interactive *wireInteractive `json:"interactive"`
	Button      *wireButton      `json:"button"`
}

// buttonID applies the reply priority after text: button reply, list reply,
// template quick-reply payload.
func (m wireMessage) buttonID() string {
	if m.Interactive != nil {
		if m.Interactive.ButtonReply != nil && m.Interactive.ButtonReply.ID != "" {
			return m.Interactive.ButtonReply.ID
		}
		if m.Interactive.ListReply != nil && m.Interactive.ListReply.ID != "" {
			return m.Interactive.ListReply.ID
		}
	}
	if m.Button != nil {
		return m.Button.Payload
	}
	return ""
}

// wireText accepts both {"body": "..."} and a bare string.
type wireText struct {
	Body string
}

func (t *wireText) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		return json.Unmarshal(data, &t.Body)
	}
	var obj struct {
		Body string `json:"body"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil
	}
	t.Body = obj.Body
	return nil
}

type wireInteractive struct {
	Type        string     `json:"type"`
	ButtonReply *wireReply `json:"button_reply"`
	ListReply   *wireReply `json:"list_reply"`
}

type wireReply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type wireButton struct {
	Payload string `json:"payload"`
	Text    string `json:"text"`
}

type wireContact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

type wireMetadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

type wireValue struct {
	Metadata wireMetadata  `json:"metadata"`
	Contacts []wireContact `json:"contacts"`
	Messages []wireMessage `json:"messages"`
}

type wireChange struct {
	Field string    `json:"field"`
	Value wireValue `json:"value"`
}

type wireEntry struct {
	ID      string       `json:"id"`
	Changes []wireChange `json:"changes"`
}

// envelope is the union of every supported top-level layout. Each field is
// decoded independently so one malformed branch does not hide the others.
type envelope struct {
	ID        string
	MessageID string
	From      string
	Phone     string
	Message   *wireMessage
	Messages  []wireMessage
	Contacts  []wireContact
	Entry     []wireEntry
	Value     *wireValue
	// Array is set when the body itself is a JSON array of messages.
	Array []wireMessage
}

func parseEnvelope(body []byte) (*envelope, bool) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, false
	}
	env := &envelope{}
	if body[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, false
		}
		for _, item := range items {
			var m wireMessage
			if json.Unmarshal(item, &m) == nil {
				env.Array = append(env.Array, m)
			}
		}
		return env, true
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, false
	}
	decodeLoose(fields["id"], &env.ID)
	decodeLoose(fields["messageId"], &env.MessageID)
	decodeLoose(fields["from"], &env.From)
	decodeLoose(fields["phone"], &env.Phone)
	decodeLoose(fields["messages"], &env.Messages)
	decodeLoose(fields["contacts"], &env.Contacts)
	decodeLoose(fields["entry"], &env.Entry)
	if raw, ok := fields["message"]; ok {
		var m wireMessage
		if decodeLoose(raw, &m) {
			env.Message = &m
		}
	}
	if raw, ok := fields["value"]; ok {
		var v wireValue
		if decodeLoose(raw, &v) {
			env.Value = &v
		}
	}
	return env, true
}

func decodeLoose(raw json.RawMessage, dst any) bool {
	if len(raw) == 0 {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}
