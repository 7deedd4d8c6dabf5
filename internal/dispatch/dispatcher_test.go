package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labbit-23/labbit-main-sub000/internal/booking"
	"github.com/labbit-23/labbit-main-sub000/internal/events"
	"github.com/labbit-23/labbit-main-sub000/internal/lab"
	"github.com/labbit-23/labbit-main-sub000/internal/messaging/whatsappclient"
	"github.com/labbit-23/labbit-main-sub000/internal/notify"
)

type staticLabs map[string]*lab.Config

func (s staticLabs) Get(ctx context.Context, labID string) (*lab.Config, error) {
	if cfg, ok := s[labID]; ok {
		return cfg, nil
	}
	return nil, lab.ErrNotFound
}

type fakeSender struct {
	sent []whatsappclient.OutboundMessage
	err  error
}

func (f *fakeSender) Send(ctx context.Context, labID string, creds whatsappclient.Credentials, msg whatsappclient.OutboundMessage) (string, error) {
	f.sent = append(f.sent, msg)
	return "wamid.X", f.err
}

type fakeBooking struct {
	requests []booking.Request
	err      error
}

func (f *fakeBooking) CreateBooking(ctx context.Context, req booking.Request) (*booking.Response, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &booking.Response{StatusCode: http.StatusCreated}, nil
}

type fakeOperator struct {
	notes []string
	err   error
}

func (f *fakeOperator) Notify(ctx context.Context, cfg *lab.Config, body string) error {
	f.notes = append(f.notes, body)
	return f.err
}

func testLabs() staticLabs {
	return staticLabs{"lab-1": {
		ID:   "lab-1",
		Name: "Labbit Diagnostics",
		Messaging: lab.Messaging{
			PhoneNumberID: "111",
			AccessToken:   "tok",
			Location:      &lab.Location{Latitude: 17.44, Longitude: 78.38, Name: "Labbit Madhapur", Address: "Madhapur"},
			MoreServicesMenu: &lab.MenuCopy{
				Body: "Pick a service",
			},
		},
	}}
}

func outboxEntry(t *testing.T, e Effect) events.OutboxEntry {
	t.Helper()
	payload, err := json.Marshal(e.Payload)
	require.NoError(t, err)
	return events.OutboxEntry{ID: uuid.New(), SessionID: uuid.New(), LabID: "lab-1", Phone: "919876543210", Kind: string(e.Kind), Payload: payload}
}

func TestHandleSendText(t *testing.T) {
	sender := &fakeSender{}
	d := NewDispatcher(testLabs(), sender, nil, nil, nil)

	require.NoError(t, d.Handle(context.Background(), outboxEntry(t, sendText("hello"))))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, whatsappclient.TypeText, sender.sent[0].Type)
	assert.Equal(t, "hello", sender.sent[0].Text.Body)
	assert.Equal(t, "919876543210", sender.sent[0].To)
}

func TestHandleMenus(t *testing.T) {
	sender := &fakeSender{}
	d := NewDispatcher(testLabs(), sender, nil, nil, nil)

	require.NoError(t, d.Handle(context.Background(), outboxEntry(t, Effect{Kind: KindSendMenu, Payload: MenuPayload{Menu: MenuMain}})))
	require.NoError(t, d.Handle(context.Background(), outboxEntry(t, Effect{Kind: KindSendMenu, Payload: MenuPayload{Menu: MenuMoreServices}})))
	require.Len(t, sender.sent, 2)

	main := sender.sent[0].Interactive
	assert.Equal(t, "button", main.Type)
	require.Len(t, main.Action.Buttons, 3)
	assert.Equal(t, "REQUEST_REPORTS", main.Action.Buttons[0].Reply.ID)
	assert.Equal(t, "BOOK_HOME_VISIT", main.Action.Buttons[1].Reply.ID)
	assert.Equal(t, "MORE_SERVICES", main.Action.Buttons[2].Reply.ID)
	assert.Equal(t, "Labbit Diagnostics", main.Header.Text)

	more := sender.sent[1].Interactive
	assert.Equal(t, "list", more.Type)
	assert.Equal(t, "Pick a service", more.Body.Text, "lab copy overrides the default body")
	var ids []string
	for _, row := range more.Action.Sections[0].Rows {
		ids = append(ids, row.ID)
	}
	assert.Equal(t, []string{"TALK_EXECUTIVE", "LAB_TIMINGS", "SEND_LOCATION", "FEEDBACK", "MAIN_MENU"}, ids)
}

func TestHandleLocation(t *testing.T) {
	sender := &fakeSender{}
	labs := testLabs()
	d := NewDispatcher(labs, sender, nil, nil, nil)

	require.NoError(t, d.Handle(context.Background(), outboxEntry(t, Effect{Kind: KindSendLocation, Payload: LocationPayload{}})))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, 17.44, sender.sent[0].Location.Latitude)
	assert.Equal(t, "Labbit Madhapur", sender.sent[0].Location.Name)

	labs["lab-1"].Messaging.Location = nil
	err := d.Handle(context.Background(), outboxEntry(t, Effect{Kind: KindSendLocation, Payload: LocationPayload{}}))
	assert.ErrorIs(t, err, events.ErrPermanent)
}

func TestHandleBookingConfirmsAfterSuccess(t *testing.T) {
	sender := &fakeSender{}
	bk := &fakeBooking{}
	d := NewDispatcher(testLabs(), sender, bk, &fakeOperator{}, nil)

	entry := outboxEntry(t, Effect{Kind: KindCallQuickBook, Payload: BookingPayload{
		PatientName: "Ravi", Tests: "CBC test", Area: "Madhapur", Date: "12-12-2025", Slot: "7AM-9AM",
	}})
	require.NoError(t, d.Handle(context.Background(), entry))

	require.Len(t, bk.requests, 1)
	req := bk.requests[0]
	assert.Equal(t, booking.Request{
		PatientName:    "Ravi",
		Phone:          "919876543210",
		PackageName:    "CBC test",
		Area:           "Madhapur",
		Date:           "12-12-2025",
		Timeslot:       "7AM-9AM",
		Persons:        1,
		WhatsApp:       true,
		Agree:          true,
		IdempotencyKey: entry.ID.String(),
	}, req)
	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0].Text.Body, "12-12-2025")
}

func TestHandleBookingTransientFailureSendsNothing(t *testing.T) {
	sender := &fakeSender{}
	d := NewDispatcher(testLabs(), sender, &fakeBooking{err: errors.New("booking: upstream status 502")}, &fakeOperator{}, nil)

	err := d.Handle(context.Background(), outboxEntry(t, Effect{Kind: KindCallQuickBook, Payload: BookingPayload{}}))
	require.Error(t, err)
	assert.NotErrorIs(t, err, events.ErrPermanent)
	assert.Empty(t, sender.sent, "no confirmation before the booking succeeds")
}

func TestHandleBookingRejected(t *testing.T) {
	sender := &fakeSender{}
	op := &fakeOperator{}
	d := NewDispatcher(testLabs(), sender, &fakeBooking{err: booking.ErrRejected}, op, nil)

	require.NoError(t, d.Handle(context.Background(), outboxEntry(t, Effect{Kind: KindCallQuickBook, Payload: BookingPayload{Tests: "CBC"}})))
	require.Len(t, op.notes, 1)
	assert.Contains(t, op.notes[0], "Booking failed")
	require.Len(t, sender.sent, 1)
	assert.Equal(t, bookingApology, sender.sent[0].Text.Body)
}

func TestHandleBookingWithoutEndpointGoesManual(t *testing.T) {
	sender := &fakeSender{}
	op := &fakeOperator{}
	d := NewDispatcher(testLabs(), sender, nil, op, nil)

	require.NoError(t, d.Handle(context.Background(), outboxEntry(t, Effect{Kind: KindCallQuickBook, Payload: BookingPayload{Tests: "CBC"}})))
	require.Len(t, op.notes, 1)
	assert.Contains(t, op.notes[0], "Manual booking needed")
	require.Len(t, sender.sent, 1)
	assert.Equal(t, manualBookingAck, sender.sent[0].Text.Body)
}

func TestHandleNotifyOperator(t *testing.T) {
	op := &fakeOperator{}
	d := NewDispatcher(testLabs(), &fakeSender{}, nil, op, nil)
	require.NoError(t, d.Handle(context.Background(), outboxEntry(t, Effect{Kind: KindNotifyOperator, Payload: NotifyPayload{Text: "Feedback from 91: good"}})))
	assert.Equal(t, []string{"Feedback from 91: good"}, op.notes)

	op.err = notify.ErrNoChannel
	err := d.Handle(context.Background(), outboxEntry(t, Effect{Kind: KindNotifyOperator, Payload: NotifyPayload{Text: "x"}}))
	assert.ErrorIs(t, err, events.ErrPermanent)
}

func TestHandleErrorClassification(t *testing.T) {
	retryable := &fakeSender{err: &whatsappclient.APIError{StatusCode: http.StatusServiceUnavailable}}
	d := NewDispatcher(testLabs(), retryable, nil, nil, nil)
	err := d.Handle(context.Background(), outboxEntry(t, sendText("hi")))
	require.Error(t, err)
	assert.NotErrorIs(t, err, events.ErrPermanent)

	rejected := &fakeSender{err: &whatsappclient.APIError{StatusCode: http.StatusBadRequest}}
	d = NewDispatcher(testLabs(), rejected, nil, nil, nil)
	assert.ErrorIs(t, d.Handle(context.Background(), outboxEntry(t, sendText("hi"))), events.ErrPermanent)

	entry := outboxEntry(t, sendText("hi"))
	entry.LabID = "missing"
	assert.ErrorIs(t, d.Handle(context.Background(), entry), events.ErrPermanent)

	entry = outboxEntry(t, sendText("hi"))
	entry.Kind = "teleport"
	assert.ErrorIs(t, d.Handle(context.Background(), entry), events.ErrPermanent)

	entry = outboxEntry(t, sendText("hi"))
	entry.Payload = []byte(`{`)
	assert.ErrorIs(t, d.Handle(context.Background(), entry), events.ErrPermanent)
}

type fakeFollowUps struct {
	queued []events.OutboxEntry
}

func (f *fakeFollowUps) InsertEffects(ctx context.Context, q events.Querier, sessionID uuid.UUID, labID, phone string, effects []events.NewEntry, claim bool) ([]events.OutboxEntry, error) {
	var out []events.OutboxEntry
	for i, e := range effects {
		payload, err := json.Marshal(e.Payload)
		if err != nil {
			return nil, err
		}
		out = append(out, events.OutboxEntry{ID: uuid.New(), SessionID: sessionID, LabID: labID, Phone: phone, Kind: e.Kind, Payload: payload, Seq: i})
	}
	f.queued = append(f.queued, out...)
	return out, nil
}

func queuedKinds(f *fakeFollowUps) []string {
	var kinds []string
	for _, e := range f.queued {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func TestHandleBookingQueuesConfirmationSeparately(t *testing.T) {
	sender := &fakeSender{err: &whatsappclient.APIError{StatusCode: http.StatusServiceUnavailable}}
	bk := &fakeBooking{}
	followUps := &fakeFollowUps{}
	d := NewDispatcher(testLabs(), sender, bk, &fakeOperator{}, nil).WithFollowUps(followUps)

	entry := outboxEntry(t, Effect{Kind: KindCallQuickBook, Payload: BookingPayload{Date: "12-12-2025", Slot: "7AM-9AM"}})
	require.NoError(t, d.Handle(context.Background(), entry))
	require.Len(t, bk.requests, 1)
	assert.Empty(t, sender.sent)
	require.Equal(t, []string{string(KindSendText)}, queuedKinds(followUps))
	assert.Equal(t, entry.SessionID, followUps.queued[0].SessionID)

	// A failing confirmation is retried on its own; the booking is not repeated.
	confirmation := followUps.queued[0]
	require.Error(t, d.Handle(context.Background(), confirmation))
	require.Error(t, d.Handle(context.Background(), confirmation))
	assert.Len(t, bk.requests, 1)
	assert.Len(t, sender.sent, 2)
}

func TestHandleManualBookingQueuesEachStep(t *testing.T) {
	sender := &fakeSender{}
	op := &fakeOperator{}
	followUps := &fakeFollowUps{}
	d := NewDispatcher(testLabs(), sender, nil, op, nil).WithFollowUps(followUps)

	require.NoError(t, d.Handle(context.Background(), outboxEntry(t, Effect{Kind: KindCallQuickBook, Payload: BookingPayload{Tests: "CBC"}})))
	assert.Empty(t, op.notes)
	assert.Empty(t, sender.sent)
	assert.Equal(t, []string{string(KindNotifyOperator), string(KindSendText)}, queuedKinds(followUps))

	sender.err = &whatsappclient.APIError{StatusCode: http.StatusServiceUnavailable}
	require.NoError(t, d.Handle(context.Background(), followUps.queued[0]))
	require.Error(t, d.Handle(context.Background(), followUps.queued[1]))
	assert.Len(t, op.notes, 1, "retrying the acknowledgement must not notify the operator again")
}

func TestHandleRejectedBookingQueuesApology(t *testing.T) {
	followUps := &fakeFollowUps{}
	op := &fakeOperator{}
	d := NewDispatcher(testLabs(), &fakeSender{}, &fakeBooking{err: booking.ErrRejected}, op, nil).WithFollowUps(followUps)

	require.NoError(t, d.Handle(context.Background(), outboxEntry(t, Effect{Kind: KindCallQuickBook, Payload: BookingPayload{Tests: "CBC"}})))
	assert.Empty(t, op.notes)
	assert.Equal(t, []string{string(KindNotifyOperator), string(KindSendText)}, queuedKinds(followUps))
}
