package whatsappclient

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// MessageType is the kind of outbound payload.
type MessageType string

const (
	TypeText        MessageType = "text"
	TypeInteractive MessageType = "interactive"
	TypeLocation    MessageType = "location"
)

const (
	maxButtons       = 3
	maxButtonTitle   = 20
	maxListRows      = 10
	maxListRowTitle  = 24
	maxListRowDetail = 72
)

// Credentials identify the sending business number.
type Credentials struct {
	PhoneNumberID string
	AccessToken   string
}

func (c Credentials) validate() error {
	if strings.TrimSpace(c.PhoneNumberID) == "" || strings.TrimSpace(c.AccessToken) == "" {
		return errors.New("whatsappclient: phone number id and access token required")
	}
	return nil
}

// OutboundMessage is the delivery API request body.
type OutboundMessage struct {
	MessagingProduct string       `json:"messaging_product"`
	RecipientType    string       `json:"recipient_type"`
	To               string       `json:"to"`
	Type             MessageType  `json:"type"`
	Text             *Text        `json:"text,omitempty"`
	Interactive      *Interactive `json:"interactive,omitempty"`
	Location         *Location    `json:"location,omitempty"`
}

type Text struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

type Interactive struct {
	Type   string             `json:"type"`
	Header *InteractiveHeader `json:"header,omitempty"`
	Body   InteractiveText    `json:"body"`
	Footer *InteractiveText   `json:"footer,omitempty"`
	Action InteractiveAction  `json:"action"`
}

type InteractiveHeader struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type InteractiveText struct {
	Text string `json:"text"`
}

type InteractiveAction struct {
	Buttons  []ReplyButton `json:"buttons,omitempty"`
	Button   string        `json:"button,omitempty"`
	Sections []ListSection `json:"sections,omitempty"`
}

type ReplyButton struct {
	Type  string      `json:"type"`
	Reply ButtonReply `json:"reply"`
}

type ButtonReply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type ListSection struct {
	Title string    `json:"title,omitempty"`
	Rows  []ListRow `json:"rows"`
}

type ListRow struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`
}

// Menu is the provider-neutral description of a button or list menu.
type Menu struct {
	Header     string
	Body       string
	Footer     string
	ButtonText string
	Options    []MenuOption
}

type MenuOption struct {
	ID          string
	Title       string
	Description string
}

func newMessage(to string, typ MessageType) OutboundMessage {
	return OutboundMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             typ,
	}
}

// NewText builds a free-form text message.
func NewText(to, body string) OutboundMessage {
	msg := newMessage(to, TypeText)
	msg.Text = &Text{Body: body}
	return msg
}

// NewButtons builds an interactive reply-button message.
func NewButtons(to string, menu Menu) OutboundMessage {
	msg := newMessage(to, TypeInteractive)
	in := menu.interactive("button")
	for _, opt := range menu.Options {
		in.Action.Buttons = append(in.Action.Buttons, ReplyButton{
			Type:  "reply",
			Reply: ButtonReply{ID: opt.ID, Title: opt.Title},
		})
	}
	msg.Interactive = in
	return msg
}

// NewList builds an interactive single-section list message.
func NewList(to string, menu Menu) OutboundMessage {
	msg := newMessage(to, TypeInteractive)
	in := menu.interactive("list")
	in.Action.Button = menu.ButtonText
	section := ListSection{}
	for _, opt := range menu.Options {
		section.Rows = append(section.Rows, ListRow{ID: opt.ID, Title: opt.Title, Description: opt.Description})
	}
	in.Action.Sections = []ListSection{section}
	msg.Interactive = in
	return msg
}

// NewLocation builds a geo-location card.
func NewLocation(to string, loc Location) OutboundMessage {
	msg := newMessage(to, TypeLocation)
	msg.Location = &loc
	return msg
}

func (m Menu) interactive(kind string) *Interactive {
	in := &Interactive{Type: kind, Body: InteractiveText{Text: m.Body}}
	if m.Header != "" {
		in.Header = &InteractiveHeader{Type: "text", Text: m.Header}
	}
	if m.Footer != "" {
		in.Footer = &InteractiveText{Text: m.Footer}
	}
	return in
}

// Preview is a short human-readable rendering used for the message log.
func (m OutboundMessage) Preview() string {
	switch m.Type {
	case TypeText:
		if m.Text != nil {
			return m.Text.Body
		}
	case TypeInteractive:
		if m.Interactive != nil {
			return fmt.Sprintf("[%s] %s", m.Interactive.Type, m.Interactive.Body.Text)
		}
	case TypeLocation:
		if m.Location != nil {
			return fmt.Sprintf("[location] %s", m.Location.Name)
		}
	}
	return ""
}

func (m OutboundMessage) validate() error {
	if strings.TrimSpace(m.To) == "" {
		return errors.New("whatsappclient: recipient required")
	}
	switch m.Type {
	case TypeText:
		if m.Text == nil || strings.TrimSpace(m.Text.Body) == "" {
			return errors.New("whatsappclient: text body required")
		}
	case TypeInteractive:
		return m.Interactive.validate()
	case TypeLocation:
		if m.Location == nil {
			return errors.New("whatsappclient: location required")
		}
		if m.Location.Latitude == 0 && m.Location.Longitude == 0 {
			return errors.New("whatsappclient: location coordinates required")
		}
	default:
		return fmt.Errorf("whatsappclient: unsupported message type %q", m.Type)
	}
	return nil
}

func (in *Interactive) validate() error {
	if in == nil {
		return errors.New("whatsappclient: interactive content required")
	}
	if strings.TrimSpace(in.Body.Text) == "" {
		return errors.New("whatsappclient: interactive body required")
	}
	switch in.Type {
	case "button":
		if n := len(in.Action.Buttons); n == 0 || n > maxButtons {
			return fmt.Errorf("whatsappclient: button menu needs 1-%d buttons, got %d", maxButtons, n)
		}
		for _, b := range in.Action.Buttons {
			if b.Reply.ID == "" || utf8.RuneCountInString(b.Reply.Title) > maxButtonTitle || b.Reply.Title == "" {
				return fmt.Errorf("whatsappclient: invalid button %q", b.Reply.ID)
			}
		}
	case "list":
		if strings.TrimSpace(in.Action.Button) == "" {
			return errors.New("whatsappclient: list button text required")
		}
		rows := 0
		for _, s := range in.Action.Sections {
			for _, r := range s.Rows {
				if r.ID == "" || r.Title == "" || utf8.RuneCountInString(r.Title) > maxListRowTitle || utf8.RuneCountInString(r.Description) > maxListRowDetail {
					return fmt.Errorf("whatsappclient: invalid list row %q", r.ID)
				}
				rows++
			}
		}
		if rows == 0 || rows > maxListRows {
			return fmt.Errorf("whatsappclient: list needs 1-%d rows, got %d", maxListRows, rows)
		}
	default:
		return fmt.Errorf("whatsappclient: unsupported interactive type %q", in.Type)
	}
	return nil
}

// SendResponse is the delivery API's answer to a send.
type SendResponse struct {
	MessagingProduct string `json:"messaging_product"`
	Contacts         []struct {
		Input string `json:"input"`
		WaID  string `json:"wa_id"`
	} `json:"contacts"`
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// MessageID returns the provider id of the sent message, if any.
func (r *SendResponse) MessageID() string {
	if r == nil || len(r.Messages) == 0 {
		return ""
	}
	return r.Messages[0].ID
}
