// Package notify delivers operator-facing notifications: a WhatsApp message
// to the lab's internal number and, when configured, an email.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/labbit-23/labbit-main-sub000/internal/lab"
	"github.com/labbit-23/labbit-main-sub000/internal/messaging/whatsappclient"
	"github.com/labbit-23/labbit-main-sub000/pkg/logging"
)

// ErrNoChannel means neither an internal phone nor an email is configured.
var ErrNoChannel = errors.New("notify: no operator channel configured")

// TextSender sends a WhatsApp message on behalf of a lab.
type TextSender interface {
	Send(ctx context.Context, labID string, creds whatsappclient.Credentials, msg whatsappclient.OutboundMessage) (string, error)
}

// OperatorDefaults apply when the lab does not name its own contacts.
type OperatorDefaults struct {
	Phone string
	Email string
}

// Operator notifies lab staff.
type Operator struct {
	text     TextSender
	email    EmailSender
	defaults OperatorDefaults
	logger   *logging.Logger
}

func NewOperator(text TextSender, email EmailSender, defaults OperatorDefaults, logger *logging.Logger) *Operator {
	if logger == nil {
		logger = logging.Default()
	}
	return &Operator{text: text, email: email, defaults: defaults, logger: logger}
}

// Notify sends body to the lab's operators. When a WhatsApp channel exists
// its send decides the result and email is best-effort, since a retry would
// repeat the WhatsApp message as well.
func (o *Operator) Notify(ctx context.Context, cfg *lab.Config, body string) error {
	if cfg == nil {
		return errors.New("notify: lab config required")
	}
	phone := firstNonEmpty(cfg.Messaging.InternalNotifyPhone, o.defaults.Phone)
	email := firstNonEmpty(cfg.Messaging.OperatorEmail, o.defaults.Email)
	if (phone == "" || o.text == nil) && (email == "" || o.email == nil) {
		o.logger.Warn("operator notification dropped", "lab_id", cfg.ID, "reason", "no channel")
		return ErrNoChannel
	}

	textEnabled := phone != "" && o.text != nil
	if email != "" && o.email != nil {
		subject := fmt.Sprintf("[%s] WhatsApp bot notification", firstNonEmpty(cfg.Name, cfg.ID))
		if err := o.email.Send(ctx, EmailMessage{To: email, Subject: subject, Body: body}); err != nil {
			if !textEnabled {
				return err
			}
			o.logger.Warn("operator email failed", "lab_id", cfg.ID, "error", err)
		}
	}
	if !textEnabled {
		return nil
	}
	if _, err := o.text.Send(ctx, cfg.ID, cfg.Credentials(), whatsappclient.NewText(phone, body)); err != nil {
		return fmt.Errorf("notify: internal whatsapp: %w", err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
