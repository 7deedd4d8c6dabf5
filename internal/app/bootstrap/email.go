package bootstrap

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	appconfig "github.com/labbit-23/labbit-main-sub000/internal/config"
	"github.com/labbit-23/labbit-main-sub000/internal/notify"
	"github.com/labbit-23/labbit-main-sub000/pkg/logging"
)

// BuildEmailSender picks the operator email provider. It returns a nil
// interface when email is disabled so callers can test it directly.
func BuildEmailSender(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (notify.EmailSender, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	switch cfg.EmailProvider {
	case "", "none":
		return nil, nil
	case "sendgrid":
		from := notify.Sender{Email: cfg.SendGridFromEmail, Name: cfg.SendGridFromName}
		sender := notify.NewSendGridSender(cfg.SendGridAPIKey, from, logger)
		if sender == nil {
			logger.Warn("sendgrid selected but SENDGRID_API_KEY is empty; operator email disabled")
			return nil, nil
		}
		return sender, nil
	case "ses":
		if cfg.SESFromEmail == "" {
			logger.Warn("ses selected but SES_FROM_EMAIL is empty; operator email disabled")
			return nil, nil
		}
		awsCfg, err := LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: load aws config: %w", err)
		}
		return notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.Sender{Email: cfg.SESFromEmail}, logger), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown EMAIL_PROVIDER %q", cfg.EmailProvider)
	}
}
