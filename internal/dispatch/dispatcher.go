package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/labbit-23/labbit-main-sub000/internal/booking"
	"github.com/labbit-23/labbit-main-sub000/internal/events"
	"github.com/labbit-23/labbit-main-sub000/internal/lab"
	"github.com/labbit-23/labbit-main-sub000/internal/messaging/whatsappclient"
	"github.com/labbit-23/labbit-main-sub000/internal/notify"
	"github.com/labbit-23/labbit-main-sub000/pkg/logging"
)

const (
	defaultBookingConfirmation = "Thank you! Your home sample collection is booked for %s, %s. Our team will call you before the visit."
	bookingApology             = "Sorry, we could not book your home visit automatically. Our team will call you shortly to confirm a slot."
	manualBookingAck           = "Thank you! Our team will call you shortly to confirm your home visit."
)

type LabSource interface {
	Get(ctx context.Context, labID string) (*lab.Config, error)
}

// Sender delivers one WhatsApp message for a lab.
type Sender interface {
	Send(ctx context.Context, labID string, creds whatsappclient.Credentials, msg whatsappclient.OutboundMessage) (string, error)
}

type BookingClient interface {
	CreateBooking(ctx context.Context, req booking.Request) (*booking.Response, error)
}

type OperatorNotifier interface {
	Notify(ctx context.Context, cfg *lab.Config, body string) error
}

// FollowUpWriter queues effects that run after the current entry, each as
// its own outbox row. *events.OutboxStore satisfies it.
type FollowUpWriter interface {
	InsertEffects(ctx context.Context, q events.Querier, sessionID uuid.UUID, labID, phone string, effects []events.NewEntry, claim bool) ([]events.OutboxEntry, error)
}

// Dispatcher performs outbox effects. It implements events.DeliveryHandler;
// returned errors wrapping events.ErrPermanent are not retried.
type Dispatcher struct {
	labs     LabSource
	sender   Sender
	booking  BookingClient
	operator OperatorNotifier
	followUp FollowUpWriter
	logger   *logging.Logger
}

// NewDispatcher wires the collaborators. A nil booking client makes home
// visit requests go to the operator for manual booking.
func NewDispatcher(labs LabSource, sender Sender, bookingClient BookingClient, operator OperatorNotifier, logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{labs: labs, sender: sender, booking: bookingClient, operator: operator, logger: logger}
}

// WithFollowUps makes multi-step effects queue their later steps instead of
// performing them in the same attempt, so retrying a failed step never
// repeats one that already succeeded.
func (d *Dispatcher) WithFollowUps(w FollowUpWriter) *Dispatcher {
	d.followUp = w
	return d
}

func (d *Dispatcher) Handle(ctx context.Context, entry events.OutboxEntry) error {
	cfg, err := d.labs.Get(ctx, entry.LabID)
	if err != nil {
		if errors.Is(err, lab.ErrNotFound) {
			d.logger.Warn("lab configuration missing for outbox entry", "lab_id", entry.LabID, "event_id", entry.ID)
			return events.Permanent(err)
		}
		return err
	}

	switch Kind(entry.Kind) {
	case KindSendText:
		var p TextPayload
		if err := decode(entry, &p); err != nil {
			return err
		}
		return d.send(ctx, cfg, whatsappclient.NewText(entry.Phone, p.Text))
	case KindSendMenu:
		var p MenuPayload
		if err := decode(entry, &p); err != nil {
			return err
		}
		return d.send(ctx, cfg, buildMenu(p.Menu, entry.Phone, cfg))
	case KindSendLocation:
		if !cfg.HasLocation() {
			d.logger.Warn("location card requested but not configured", "lab_id", cfg.ID)
			return events.Permanent(fmt.Errorf("dispatch: lab %s has no location", cfg.ID))
		}
		loc := cfg.Messaging.Location
		return d.send(ctx, cfg, whatsappclient.NewLocation(entry.Phone, whatsappclient.Location{
			Latitude:  loc.Latitude,
			Longitude: loc.Longitude,
			Name:      loc.Name,
			Address:   loc.Address,
		}))
	case KindCallQuickBook:
		var p BookingPayload
		if err := decode(entry, &p); err != nil {
			return err
		}
		return d.book(ctx, cfg, entry, p)
	case KindNotifyOperator:
		var p NotifyPayload
		if err := decode(entry, &p); err != nil {
			return err
		}
		return d.notify(ctx, cfg, p.Text)
	}
	return events.Permanent(fmt.Errorf("dispatch: unknown effect kind %q", entry.Kind))
}

func (d *Dispatcher) send(ctx context.Context, cfg *lab.Config, msg whatsappclient.OutboundMessage) error {
	if _, err := d.sender.Send(ctx, cfg.ID, cfg.Credentials(), msg); err != nil {
		if whatsappclient.IsRetryable(err) {
			return err
		}
		return events.Permanent(err)
	}
	return nil
}

func (d *Dispatcher) notify(ctx context.Context, cfg *lab.Config, body string) error {
	if d.operator == nil {
		return events.Permanent(notify.ErrNoChannel)
	}
	err := d.operator.Notify(ctx, cfg, body)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, notify.ErrNoChannel):
		return events.Permanent(err)
	case whatsappclient.IsRetryable(err):
		return err
	}
	var apiErr *whatsappclient.APIError
	if errors.As(err, &apiErr) {
		return events.Permanent(err)
	}
	return err
}

// book calls the booking endpoint and only then confirms to the patient. A
// rejected booking gets an apology and an operator notification instead.
func (d *Dispatcher) book(ctx context.Context, cfg *lab.Config, entry events.OutboxEntry, p BookingPayload) error {
	summary := fmt.Sprintf("Home visit request from %s (%s): tests=%s, area=%s, date=%s, slot=%s",
		p.PatientName, entry.Phone, p.Tests, p.Area, p.Date, p.Slot)

	if d.booking == nil {
		return d.then(ctx, entry,
			Effect{Kind: KindNotifyOperator, Payload: NotifyPayload{Text: "Manual booking needed. " + summary}},
			sendText(manualBookingAck),
		)
	}

	_, err := d.booking.CreateBooking(ctx, booking.Request{
		PatientName:    p.PatientName,
		Phone:          entry.Phone,
		PackageName:    p.Tests,
		Area:           p.Area,
		Date:           p.Date,
		Timeslot:       p.Slot,
		Persons:        1,
		WhatsApp:       true,
		Agree:          true,
		IdempotencyKey: entry.ID.String(),
	})
	if err != nil {
		if !errors.Is(err, booking.ErrRejected) {
			return err
		}
		d.logger.Warn("booking rejected", "lab_id", cfg.ID, "phone", entry.Phone, "error", err)
		return d.then(ctx, entry,
			Effect{Kind: KindNotifyOperator, Payload: NotifyPayload{Text: "Booking failed, please call the patient. " + summary}},
			sendText(bookingApology),
		)
	}

	confirmation := strings.TrimSpace(cfg.Messaging.BookingConfirmation)
	if confirmation == "" {
		confirmation = fmt.Sprintf(defaultBookingConfirmation, p.Date, p.Slot)
	}
	return d.then(ctx, entry, sendText(confirmation))
}

// then runs the steps that follow entry. With a follow-up writer they are
// queued behind entry; without one they run now, and operator notices never
// block the patient's reply.
func (d *Dispatcher) then(ctx context.Context, entry events.OutboxEntry, effects ...Effect) error {
	if d.followUp != nil {
		if _, err := d.followUp.InsertEffects(ctx, nil, entry.SessionID, entry.LabID, entry.Phone, Entries(effects), false); err != nil {
			return fmt.Errorf("dispatch: queue follow-ups: %w", err)
		}
		return nil
	}
	for _, e := range effects {
		payload, err := json.Marshal(e.Payload)
		if err != nil {
			return events.Permanent(fmt.Errorf("dispatch: marshal %s payload: %w", e.Kind, err))
		}
		step := entry
		step.Kind = string(e.Kind)
		step.Payload = payload
		if err := d.Handle(ctx, step); err != nil {
			if e.Kind == KindNotifyOperator {
				d.logger.Error("failed to notify operator", "lab_id", entry.LabID, "event_id", entry.ID, "error", err)
				continue
			}
			return err
		}
	}
	return nil
}

func decode(entry events.OutboxEntry, dst any) error {
	if err := json.Unmarshal(entry.Payload, dst); err != nil {
		return events.Permanent(fmt.Errorf("dispatch: decode %s payload: %w", entry.Kind, err))
	}
	return nil
}
