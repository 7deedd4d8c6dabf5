// Package dispatch turns engine transitions into outbox effects and performs
// those effects against the delivery API, the booking endpoint and the
// operator channel.
package dispatch

import (
	"strings"

	"github.com/labbit-23/labbit-main-sub000/internal/conversation"
	"github.com/labbit-23/labbit-main-sub000/internal/events"
)

// Kind is the type of a planned effect; it is stored as the outbox kind.
type Kind string

const (
	KindSendText       Kind = "send_text"
	KindSendMenu       Kind = "send_menu"
	KindSendLocation   Kind = "send_location"
	KindCallQuickBook  Kind = "call_quickbook"
	KindNotifyOperator Kind = "notify_operator"
)

func (k Kind) Valid() bool {
	switch k {
	case KindSendText, KindSendMenu, KindSendLocation, KindCallQuickBook, KindNotifyOperator:
		return true
	}
	return false
}

// MenuKind selects one of the fixed interactive menus.
type MenuKind string

const (
	MenuMain         MenuKind = "main"
	MenuMoreServices MenuKind = "more_services"
)

// DefaultPatientName is used for bookings when the sender has no profile name.
const DefaultPatientName = "WhatsApp Patient"

type TextPayload struct {
	Text string `json:"text"`
}

type MenuPayload struct {
	Menu MenuKind `json:"menu"`
}

type LocationPayload struct{}

type NotifyPayload struct {
	Text string `json:"text"`
}

// BookingPayload carries the slots collected during the booking flow.
type BookingPayload struct {
	PatientName string `json:"patient_name"`
	Tests       string `json:"tests"`
	Area        string `json:"area"`
	Date        string `json:"date"`
	Slot        string `json:"slot"`
}

// Effect is one planned side effect of a turn.
type Effect struct {
	Kind    Kind
	Payload any
}

func (e Effect) Entry() events.NewEntry {
	return events.NewEntry{Kind: string(e.Kind), Payload: e.Payload}
}

// Entries converts a plan for the outbox.
func Entries(effects []Effect) []events.NewEntry {
	out := make([]events.NewEntry, 0, len(effects))
	for _, e := range effects {
		out = append(out, e.Entry())
	}
	return out
}

// Turn is what Plan needs to know about the inbound message.
type Turn struct {
	Phone       string
	ProfileName string
}

// Plan maps a transition to ordered effects. Operator notifications come
// before the user-facing reply. An unknown or empty reply type falls back
// to the main menu.
func Plan(t conversation.Transition, turn Turn) []Effect {
	switch t.Reply {
	case conversation.ReplyText, conversation.ReplyHandoff:
		if strings.TrimSpace(t.ReplyText) == "" {
			return mainMenu()
		}
		return []Effect{sendText(t.ReplyText)}
	case conversation.ReplyMainMenu:
		return mainMenu()
	case conversation.ReplyMoreServicesMenu:
		return []Effect{{Kind: KindSendMenu, Payload: MenuPayload{Menu: MenuMoreServices}}}
	case conversation.ReplySendLocation:
		return []Effect{{Kind: KindSendLocation, Payload: LocationPayload{}}}
	case conversation.ReplyCallQuickBook:
		name := strings.TrimSpace(turn.ProfileName)
		if name == "" {
			name = DefaultPatientName
		}
		return []Effect{{Kind: KindCallQuickBook, Payload: BookingPayload{
			PatientName: name,
			Tests:       t.Context.Tests(),
			Area:        t.Context.Area(),
			Date:        t.Context.SelectedDate(),
			Slot:        t.Context.SelectedSlot(),
		}}}
	case conversation.ReplyInternalNotify:
		effects := []Effect{{Kind: KindNotifyOperator, Payload: NotifyPayload{Text: t.NotifyText}}}
		if strings.TrimSpace(t.ReplyText) != "" {
			effects = append(effects, sendText(t.ReplyText))
		}
		return effects
	}
	return mainMenu()
}

// RequiresHandoff reports whether the turn must freeze the session.
func RequiresHandoff(t conversation.Transition) bool {
	return t.Reply == conversation.ReplyHandoff
}

func sendText(text string) Effect {
	return Effect{Kind: KindSendText, Payload: TextPayload{Text: text}}
}

func mainMenu() []Effect {
	return []Effect{{Kind: KindSendMenu, Payload: MenuPayload{Menu: MenuMain}}}
}
