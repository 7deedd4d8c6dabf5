package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labbit-23/labbit-main-sub000/internal/conversation"
)

func TestPlanMapsEveryReplyType(t *testing.T) {
	booked := conversation.Context{}.
		WithTests("CBC test").
		WithArea("Madhapur").
		WithSelectedDate("12-12-2025").
		WithSelectedSlot("7AM-9AM")

	tests := []struct {
		name  string
		tr    conversation.Transition
		kinds []Kind
	}{
		{name: "text", tr: conversation.Transition{Reply: conversation.ReplyText, ReplyText: "hi"}, kinds: []Kind{KindSendText}},
		{name: "main menu", tr: conversation.Transition{Reply: conversation.ReplyMainMenu}, kinds: []Kind{KindSendMenu}},
		{name: "more services", tr: conversation.Transition{Reply: conversation.ReplyMoreServicesMenu}, kinds: []Kind{KindSendMenu}},
		{name: "location", tr: conversation.Transition{Reply: conversation.ReplySendLocation}, kinds: []Kind{KindSendLocation}},
		{name: "handoff", tr: conversation.Transition{Reply: conversation.ReplyHandoff, ReplyText: "connecting"}, kinds: []Kind{KindSendText}},
		{name: "booking", tr: conversation.Transition{Reply: conversation.ReplyCallQuickBook, Context: booked}, kinds: []Kind{KindCallQuickBook}},
		{name: "notify", tr: conversation.Transition{Reply: conversation.ReplyInternalNotify, ReplyText: "thanks", NotifyText: "Feedback"}, kinds: []Kind{KindNotifyOperator, KindSendText}},
		{name: "unknown", tr: conversation.Transition{Reply: "SOMETHING_ELSE"}, kinds: []Kind{KindSendMenu}},
		{name: "absent", tr: conversation.Transition{}, kinds: []Kind{KindSendMenu}},
		{name: "text without copy", tr: conversation.Transition{Reply: conversation.ReplyText}, kinds: []Kind{KindSendMenu}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			effects := Plan(tt.tr, Turn{Phone: "919876543210"})
			var kinds []Kind
			for _, e := range effects {
				require.True(t, e.Kind.Valid())
				kinds = append(kinds, e.Kind)
			}
			assert.Equal(t, tt.kinds, kinds)
		})
	}
}

func TestPlanMenuSelection(t *testing.T) {
	main := Plan(conversation.Transition{Reply: "bogus"}, Turn{})
	assert.Equal(t, MenuPayload{Menu: MenuMain}, main[0].Payload)

	more := Plan(conversation.Transition{Reply: conversation.ReplyMoreServicesMenu}, Turn{})
	assert.Equal(t, MenuPayload{Menu: MenuMoreServices}, more[0].Payload)
}

func TestPlanBookingCarriesSlots(t *testing.T) {
	ctx := conversation.Context{}.
		WithTests("CBC test").
		WithArea("Madhapur").
		WithSelectedDate("12-12-2025").
		WithSelectedSlot("7AM-9AM")

	effects := Plan(conversation.Transition{Reply: conversation.ReplyCallQuickBook, Context: ctx, NewState: conversation.StateStart}, Turn{Phone: "919876543210"})
	require.Len(t, effects, 1)
	assert.Equal(t, BookingPayload{
		PatientName: DefaultPatientName,
		Tests:       "CBC test",
		Area:        "Madhapur",
		Date:        "12-12-2025",
		Slot:        "7AM-9AM",
	}, effects[0].Payload)

	named := Plan(conversation.Transition{Reply: conversation.ReplyCallQuickBook, Context: ctx}, Turn{ProfileName: "Ravi"})
	assert.Equal(t, "Ravi", named[0].Payload.(BookingPayload).PatientName)
}

func TestPlanNotifyPrecedesReply(t *testing.T) {
	effects := Plan(conversation.Transition{
		Reply:      conversation.ReplyInternalNotify,
		ReplyText:  "ack",
		NotifyText: "Report request from 919876543210: PID1",
	}, Turn{})
	require.Len(t, effects, 2)
	assert.Equal(t, NotifyPayload{Text: "Report request from 919876543210: PID1"}, effects[0].Payload)
	assert.Equal(t, TextPayload{Text: "ack"}, effects[1].Payload)

	entries := Entries(effects)
	assert.Equal(t, "notify_operator", entries[0].Kind)
	assert.Equal(t, "send_text", entries[1].Kind)
}

func TestRequiresHandoff(t *testing.T) {
	assert.True(t, RequiresHandoff(conversation.Transition{Reply: conversation.ReplyHandoff}))
	assert.False(t, RequiresHandoff(conversation.Transition{Reply: conversation.ReplyText}))
}
