package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"

	"github.com/labbit-23/labbit-main-sub000/internal/booking"
	appconfig "github.com/labbit-23/labbit-main-sub000/internal/config"
	"github.com/labbit-23/labbit-main-sub000/internal/dispatch"
	"github.com/labbit-23/labbit-main-sub000/internal/events"
	"github.com/labbit-23/labbit-main-sub000/internal/http/handlers"
	"github.com/labbit-23/labbit-main-sub000/internal/lab"
	"github.com/labbit-23/labbit-main-sub000/internal/messaging"
	"github.com/labbit-23/labbit-main-sub000/internal/messaging/whatsappclient"
	"github.com/labbit-23/labbit-main-sub000/internal/notify"
	observemetrics "github.com/labbit-23/labbit-main-sub000/internal/observability/metrics"
	"github.com/labbit-23/labbit-main-sub000/internal/session"
	"github.com/labbit-23/labbit-main-sub000/pkg/logging"
)

// outboxLease is how long a claimed outbox entry stays invisible to other
// deliverers.
const outboxLease = time.Minute

// DB is satisfied by *pgxpool.Pool.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Services is the chatbot's service graph, shared by the API, the worker
// and the Lambda entrypoint.
type Services struct {
	Labs       *lab.CachedStore
	Messages   *messaging.Store
	Sessions   *session.Store
	Outbox     *events.OutboxStore
	Dispatcher *dispatch.Dispatcher
	Deliverer  *events.Deliverer
	Webhook    *handlers.WhatsAppWebhookHandler
	Admin      *handlers.AdminHandler
}

// BuildServices wires stores, clients and handlers. redisClient and email
// may be nil.
func BuildServices(cfg *appconfig.Config, db DB, redisClient *redis.Client, email notify.EmailSender, metrics *observemetrics.MessagingMetrics, logger *logging.Logger) (*Services, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if db == nil {
		return nil, fmt.Errorf("bootstrap: database is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	labs := lab.NewCachedStore(lab.NewStore(db), redisClient, cfg.LabCacheTTL, logger)
	messages := messaging.NewStore(db)
	sessions := session.NewStore(db)
	outbox := events.NewOutboxStore(db, outboxLease)

	waClient, err := whatsappclient.New(whatsappclient.Config{
		BaseURL:    cfg.WhatsAppAPIBaseURL,
		Timeout:    cfg.WhatsAppTimeout,
		MaxRetries: cfg.WhatsAppMaxRetries,
		Logger:     logger.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: whatsapp client: %w", err)
	}
	sender := messaging.NewLoggingSender(waClient, messages, logger, metrics)

	var bookingClient dispatch.BookingClient
	if cfg.QuickBookURL != "" {
		c, err := booking.New(booking.Config{URL: cfg.QuickBookURL, Timeout: cfg.QuickBookTimeout, Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("bootstrap: booking client: %w", err)
		}
		bookingClient = c
	} else {
		logger.Warn("QUICKBOOK_URL not set; home visit requests go to the operator")
	}

	operator := notify.NewOperator(sender, email, notify.OperatorDefaults{
		Phone: cfg.InternalNotifyPhone,
		Email: cfg.OperatorEmail,
	}, logger)
	dispatcher := dispatch.NewDispatcher(labs, sender, bookingClient, operator, logger).WithFollowUps(outbox)

	deliverer := events.NewDeliverer(outbox, dispatcher, logger).
		WithBatchSize(int32(cfg.OutboxBatchSize)).
		WithInterval(cfg.OutboxInterval).
		WithMaxAttempts(cfg.OutboxMaxAttempts).
		WithMetrics(metrics)

	webhook := handlers.NewWhatsAppWebhookHandler(handlers.WhatsAppWebhookConfig{
		Messages:       messages,
		Sessions:       sessions,
		Labs:           lab.NewResolver(labs, cfg.DefaultLabID),
		Locker:         session.NewLocker(redisClient, cfg.SessionLockTTL, cfg.SessionLockWait, logger),
		Outbox:         outbox,
		Deliverer:      deliverer,
		InlineDelivery: cfg.OutboxInlineDelivery,
		VerifyToken:    cfg.WhatsAppVerifyToken,
		AppSecret:      cfg.WhatsAppAppSecret,
		Logger:         logger,
		Metrics:        metrics,
	})

	return &Services{
		Labs:       labs,
		Messages:   messages,
		Sessions:   sessions,
		Outbox:     outbox,
		Dispatcher: dispatcher,
		Deliverer:  deliverer,
		Webhook:    webhook,
		Admin:      handlers.NewAdminHandler(sessions, labs, logger),
	}, nil
}
