package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/labbit-23/labbit-main-sub000/internal/conversation"
	"github.com/labbit-23/labbit-main-sub000/internal/dispatch"
	"github.com/labbit-23/labbit-main-sub000/internal/events"
	"github.com/labbit-23/labbit-main-sub000/internal/lab"
	"github.com/labbit-23/labbit-main-sub000/internal/messaging"
	"github.com/labbit-23/labbit-main-sub000/internal/messaging/whatsappclient"
	observemetrics "github.com/labbit-23/labbit-main-sub000/internal/observability/metrics"
	"github.com/labbit-23/labbit-main-sub000/internal/session"
	"github.com/labbit-23/labbit-main-sub000/pkg/logging"
)

const maxWebhookBody = 1 << 20

var tracer = otel.Tracer("labbit.internal.http.handlers")

type messageLog interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	HasMessage(ctx context.Context, messageID string) (bool, error)
	InsertMessage(ctx context.Context, q messaging.Querier, rec messaging.LogRecord) (bool, error)
}

type sessionStore interface {
	GetOrCreate(ctx context.Context, q session.Querier, phone, labID string) (*session.Session, error)
	Update(ctx context.Context, q session.Querier, id uuid.UUID, version int64, state conversation.State, convCtx conversation.Context) error
	HandoffToHuman(ctx context.Context, q session.Querier, id uuid.UUID) error
}

type labResolver interface {
	Resolve(ctx context.Context, recipientID string) (*lab.Config, error)
}

type phoneLocker interface {
	Acquire(ctx context.Context, phone string) (func(), error)
}

type outboxWriter interface {
	InsertEffects(ctx context.Context, q events.Querier, sessionID uuid.UUID, labID, phone string, effects []events.NewEntry, claim bool) ([]events.OutboxEntry, error)
}

type effectDeliverer interface {
	DeliverNow(ctx context.Context, entries []events.OutboxEntry) int
}

// WhatsAppWebhookConfig wires the webhook handler.
type WhatsAppWebhookConfig struct {
	Messages   messageLog
	Sessions   sessionStore
	Labs       labResolver
	Locker     phoneLocker
	Outbox     outboxWriter
	Deliverer  effectDeliverer
	Normalizer *messaging.Normalizer
	// InlineDelivery delivers a turn's effects right after commit instead
	// of waiting for the background deliverer.
	InlineDelivery bool
	DeliverTimeout time.Duration
	VerifyToken    string
	AppSecret      string
	Logger         *logging.Logger
	Metrics        *observemetrics.MessagingMetrics
}

// WhatsAppWebhookHandler runs one conversation turn per inbound webhook.
type WhatsAppWebhookHandler struct {
	messages       messageLog
	sessions       sessionStore
	labs           labResolver
	locker         phoneLocker
	outbox         outboxWriter
	deliverer      effectDeliverer
	normalizer     *messaging.Normalizer
	inline         bool
	deliverTimeout time.Duration
	verifyToken    string
	appSecret      string
	logger         *logging.Logger
	metrics        *observemetrics.MessagingMetrics
}

func NewWhatsAppWebhookHandler(cfg WhatsAppWebhookConfig) *WhatsAppWebhookHandler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Normalizer == nil {
		cfg.Normalizer = messaging.NewNormalizer()
	}
	if cfg.DeliverTimeout <= 0 {
		cfg.DeliverTimeout = 20 * time.Second
	}
	return &WhatsAppWebhookHandler{
		messages:       cfg.Messages,
		sessions:       cfg.Sessions,
		labs:           cfg.Labs,
		locker:         cfg.Locker,
		outbox:         cfg.Outbox,
		deliverer:      cfg.Deliverer,
		normalizer:     cfg.Normalizer,
		inline:         cfg.InlineDelivery && cfg.Deliverer != nil,
		deliverTimeout: cfg.DeliverTimeout,
		verifyToken:    cfg.VerifyToken,
		appSecret:      cfg.AppSecret,
		logger:         cfg.Logger,
		metrics:        cfg.Metrics,
	}
}

// HandleVerification answers Meta's GET subscription challenge.
func (h *WhatsAppWebhookHandler) HandleVerification(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if h.verifyToken != "" && q.Get("hub.mode") == "subscribe" && q.Get("hub.verify_token") == h.verifyToken {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, q.Get("hub.challenge"))
		return
	}
	h.logger.Warn("whatsapp webhook verification rejected", "mode", q.Get("hub.mode"))
	http.Error(w, "forbidden", http.StatusForbidden)
}

// Turn outcomes, used for the response status and metrics.
const (
	outcomeProcessed = "processed"
	outcomeIgnored   = "ignored"
	outcomeDuplicate = "duplicate"
	outcomeNoLab     = "no_lab"
	outcomeHandoff   = "handoff"
	outcomeBusy      = "busy"
	outcomeError     = "error"
	outcomePanic     = "panic"
)

// HandleInbound processes one webhook delivery. Unusable, duplicate and
// unroutable messages are acknowledged with 200 so the provider stops
// retrying; persistence failures answer 503 so it redelivers.
func (h *WhatsAppWebhookHandler) HandleInbound(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := tracer.Start(r.Context(), "whatsapp.webhook", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()

	outcome, shape := outcomeError, ""
	defer func() {
		if rec := recover(); rec != nil {
			outcome = outcomePanic
			span.SetStatus(codes.Error, "panic")
			h.logger.Error("whatsapp webhook panic", "panic", fmt.Sprint(rec), "stack", string(debug.Stack()))
			writeJSON(w, http.StatusInternalServerError, webhookResult{Success: false})
		}
		span.SetAttributes(attribute.String("webhook.outcome", outcome))
		h.metrics.ObserveInbound(shape, outcome)
		h.metrics.ObserveWebhookLatency(outcome, time.Since(start).Seconds())
	}()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, webhookResult{Success: false})
		return
	}
	if h.appSecret != "" {
		if err := whatsappclient.VerifySignature(h.appSecret, body, r.Header.Get("X-Hub-Signature-256")); err != nil {
			h.logger.Warn("invalid whatsapp webhook signature", "error", err)
			outcome = "unauthorized"
			writeJSON(w, http.StatusUnauthorized, webhookResult{Success: false})
			return
		}
	}

	msg, ok := h.normalizer.Normalize(body)
	if !ok {
		outcome = outcomeIgnored
		writeJSON(w, http.StatusOK, webhookResult{Success: true, Status: outcome})
		return
	}
	shape = msg.Shape
	span.SetAttributes(attribute.String("whatsapp.message_id", msg.MessageID), attribute.String("whatsapp.shape", shape))

	outcome, err = h.handleMessage(ctx, msg, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		h.logger.Error("whatsapp webhook failed", "error", err, "message_id", msg.MessageID, "phone", msg.FromPhone, "outcome", outcome)
		writeJSON(w, http.StatusServiceUnavailable, webhookResult{Success: false, Status: outcome})
		return
	}
	writeJSON(w, http.StatusOK, webhookResult{Success: true, Status: outcome})
}

func (h *WhatsAppWebhookHandler) handleMessage(ctx context.Context, msg messaging.Message, body []byte) (string, error) {
	seen, err := h.messages.HasMessage(ctx, msg.MessageID)
	if err != nil {
		return outcomeError, err
	}
	if seen {
		h.logger.Debug("duplicate whatsapp message", "message_id", msg.MessageID)
		return outcomeDuplicate, nil
	}

	cfg, err := h.labs.Resolve(ctx, msg.RecipientID)
	if err != nil {
		if errors.Is(err, lab.ErrNotFound) {
			h.logger.Warn("no lab configuration for inbound message", "message_id", msg.MessageID, "recipient_id", msg.RecipientID)
			return outcomeNoLab, nil
		}
		return outcomeError, err
	}

	release, err := h.locker.Acquire(ctx, msg.FromPhone)
	if err != nil {
		if errors.Is(err, session.ErrLockBusy) {
			return outcomeBusy, err
		}
		return outcomeError, err
	}
	released := false
	unlock := func() {
		if !released {
			released = true
			release()
		}
	}
	defer unlock()

	outcome, entries, err := h.runTurn(ctx, msg, cfg, body)
	// The turn is over; delivery must not hold up the phone's next turn.
	unlock()
	if err != nil {
		if errors.Is(err, session.ErrStaleSession) {
			return outcomeBusy, err
		}
		return outcomeError, err
	}
	if h.inline && len(entries) > 0 {
		deliverCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.deliverTimeout)
		defer cancel()
		h.deliverer.DeliverNow(deliverCtx, entries)
	}
	return outcome, nil
}

// runTurn logs the message and advances the session in one transaction,
// writing the planned effects to the outbox alongside.
func (h *WhatsAppWebhookHandler) runTurn(ctx context.Context, msg messaging.Message, cfg *lab.Config, body []byte) (string, []events.OutboxEntry, error) {
	tx, err := h.messages.Begin(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	inserted, err := h.messages.InsertMessage(ctx, tx, messaging.LogRecord{
		MessageID:  msg.MessageID,
		Phone:      msg.FromPhone,
		LabID:      cfg.ID,
		Text:       msg.UserInput(),
		Direction:  messaging.DirectionInbound,
		RawPayload: body,
	})
	if err != nil {
		return "", nil, err
	}
	if !inserted {
		return outcomeDuplicate, nil, nil
	}

	sess, err := h.sessions.GetOrCreate(ctx, tx, msg.FromPhone, cfg.ID)
	if err != nil {
		return "", nil, err
	}
	if sess.Frozen() {
		if err := tx.Commit(ctx); err != nil {
			return "", nil, fmt.Errorf("commit tx: %w", err)
		}
		return outcomeHandoff, nil, nil
	}

	engine := conversation.NewEngine(conversation.WithPrompts(cfg.Prompts()))
	tr := engine.Transition(sess.State, sess.Context, msg.UserInput(), msg.FromPhone)
	effects := dispatch.Plan(tr, dispatch.Turn{Phone: msg.FromPhone, ProfileName: msg.ProfileName})

	if err := h.sessions.Update(ctx, tx, sess.ID, sess.Version, tr.NewState, tr.SessionContext()); err != nil {
		return "", nil, err
	}
	if dispatch.RequiresHandoff(tr) {
		if err := h.sessions.HandoffToHuman(ctx, tx, sess.ID); err != nil {
			return "", nil, err
		}
	}
	entries, err := h.outbox.InsertEffects(ctx, tx, sess.ID, cfg.ID, msg.FromPhone, dispatch.Entries(effects), h.inline)
	if err != nil {
		return "", nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return "", nil, fmt.Errorf("commit tx: %w", err)
	}

	h.metrics.ObserveTransition(string(sess.State), string(tr.NewState), string(tr.Reply))
	h.logger.Info("conversation turn",
		"message_id", msg.MessageID,
		"lab_id", cfg.ID,
		"phone", msg.FromPhone,
		"from_state", sess.State,
		"to_state", tr.NewState,
		"reply_type", tr.Reply,
	)
	return outcomeProcessed, entries, nil
}
