package bootstrap

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/prometheus/client_golang/prometheus"

	appconfig "github.com/labbit-23/labbit-main-sub000/internal/config"
	"github.com/labbit-23/labbit-main-sub000/internal/notify"
	observemetrics "github.com/labbit-23/labbit-main-sub000/internal/observability/metrics"
	"github.com/labbit-23/labbit-main-sub000/pkg/logging"
)

func TestBuildPostgresPoolRequiresURL(t *testing.T) {
	if _, err := BuildPostgresPool(context.Background(), &appconfig.Config{}); err == nil {
		t.Fatalf("expected error without DATABASE_URL")
	}
}

func TestBuildRedisClient(t *testing.T) {
	if client := BuildRedisClient(context.Background(), &appconfig.Config{}, logging.New("error"), true); client != nil {
		t.Fatalf("expected nil client without REDIS_ADDR")
	}

	mr := miniredis.RunT(t)
	client := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: mr.Addr()}, logging.New("error"), true)
	if client == nil {
		t.Fatalf("expected client for reachable redis")
	}
	_ = client.Close()

	addr := mr.Addr()
	mr.Close()
	if client := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: addr}, logging.New("error"), true); client != nil {
		t.Fatalf("expected nil client when ping fails")
	}
}

func TestBuildEmailSender(t *testing.T) {
	ctx := context.Background()
	logger := logging.New("error")

	if _, err := BuildEmailSender(ctx, nil, logger); err == nil {
		t.Fatalf("expected error for nil config")
	}

	sender, err := BuildEmailSender(ctx, &appconfig.Config{EmailProvider: "none"}, logger)
	if err != nil || sender != nil {
		t.Fatalf("expected disabled email, got %v err=%v", sender, err)
	}

	sender, err = BuildEmailSender(ctx, &appconfig.Config{EmailProvider: "sendgrid"}, logger)
	if err != nil || sender != nil {
		t.Fatalf("expected sendgrid without key to disable email, got %v err=%v", sender, err)
	}

	sender, err = BuildEmailSender(ctx, &appconfig.Config{EmailProvider: "sendgrid", SendGridAPIKey: "SG.key", SendGridFromEmail: "lab@example.com"}, logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := sender.(*notify.SendGridSender); !ok {
		t.Fatalf("expected sendgrid sender, got %T", sender)
	}

	sender, err = BuildEmailSender(ctx, &appconfig.Config{EmailProvider: "ses"}, logger)
	if err != nil || sender != nil {
		t.Fatalf("expected ses without from address to disable email, got %v err=%v", sender, err)
	}

	sender, err = BuildEmailSender(ctx, &appconfig.Config{
		EmailProvider:      "ses",
		SESFromEmail:       "lab@example.com",
		AWSRegion:          "ap-south-1",
		AWSAccessKeyID:     "test",
		AWSSecretAccessKey: "test",
	}, logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := sender.(*notify.SESSender); !ok {
		t.Fatalf("expected ses sender, got %T", sender)
	}

	if _, err := BuildEmailSender(ctx, &appconfig.Config{EmailProvider: "pigeon"}, logger); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}

func TestBuildServices(t *testing.T) {
	if _, err := BuildServices(nil, nil, nil, nil, nil, nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
	if _, err := BuildServices(&appconfig.Config{}, nil, nil, nil, nil, nil); err == nil {
		t.Fatalf("expected error for nil database")
	}

	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	cfg := &appconfig.Config{
		QuickBookURL:         "https://quickbook.example.com/api/bookings",
		OutboxBatchSize:      10,
		OutboxMaxAttempts:    3,
		OutboxInlineDelivery: true,
	}
	svc, err := BuildServices(cfg, mock, nil, nil, observemetrics.NewMessagingMetrics(prometheus.NewRegistry()), logging.New("error"))
	if err != nil {
		t.Fatalf("build services: %v", err)
	}
	if svc.Webhook == nil || svc.Deliverer == nil || svc.Dispatcher == nil || svc.Admin == nil {
		t.Fatalf("incomplete service graph: %+v", svc)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("building services should not touch the database: %v", err)
	}
}
