package messaging

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/labbit-23/labbit-main-sub000/internal/messaging/whatsappclient"
	"github.com/labbit-23/labbit-main-sub000/internal/observability/metrics"
	"github.com/labbit-23/labbit-main-sub000/pkg/logging"
)

// Sender delivers one outbound message through the provider API.
type Sender interface {
	Send(ctx context.Context, creds whatsappclient.Credentials, msg whatsappclient.OutboundMessage) (*whatsappclient.SendResponse, error)
}

type messageLog interface {
	InsertMessage(ctx context.Context, q Querier, rec LogRecord) (bool, error)
}

// LoggingSender sends through the provider and records every attempt in the
// message log: successes as outbound rows, failures as status rows.
type LoggingSender struct {
	inner   Sender
	log     messageLog
	logger  *logging.Logger
	metrics *metrics.MessagingMetrics
}

// NewLoggingSender wraps inner. A nil log disables message logging.
func NewLoggingSender(inner Sender, log messageLog, logger *logging.Logger, m *metrics.MessagingMetrics) *LoggingSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &LoggingSender{inner: inner, log: log, logger: logger, metrics: m}
}

// Send delivers msg for labID and returns the provider message id. The
// returned error is the send error only; log write failures are swallowed.
func (s *LoggingSender) Send(ctx context.Context, labID string, creds whatsappclient.Credentials, msg whatsappclient.OutboundMessage) (string, error) {
	resp, err := s.inner.Send(ctx, creds, msg)
	if err != nil {
		s.metrics.ObserveOutbound(string(msg.Type), "failed")
		s.record(ctx, LogRecord{
			MessageID:  "status-" + uuid.NewString(),
			Phone:      msg.To,
			LabID:      labID,
			Text:       msg.Preview(),
			Direction:  DirectionStatus,
			RawPayload: auditPayload(msg, nil, err),
		})
		return "", err
	}
	s.metrics.ObserveOutbound(string(msg.Type), "sent")
	id := resp.MessageID()
	logID := id
	if logID == "" {
		logID = "out-" + uuid.NewString()
	}
	s.record(ctx, LogRecord{
		MessageID:  logID,
		Phone:      msg.To,
		LabID:      labID,
		Text:       msg.Preview(),
		Direction:  DirectionOutbound,
		RawPayload: auditPayload(msg, resp, nil),
	})
	return id, nil
}

func (s *LoggingSender) record(ctx context.Context, rec LogRecord) {
	if s.log == nil {
		return
	}
	if _, err := s.log.InsertMessage(ctx, nil, rec); err != nil {
		s.logger.Warn("failed to log outbound message", "error", err, "lab_id", rec.LabID, "phone", rec.Phone, "direction", rec.Direction)
	}
}

func auditPayload(msg whatsappclient.OutboundMessage, resp *whatsappclient.SendResponse, sendErr error) []byte {
	payload := map[string]any{"request": msg}
	if resp != nil {
		payload["response"] = resp
	}
	if sendErr != nil {
		payload["error"] = sendErr.Error()
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return b
}
