package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// AdminJWTSecret signs tokens for the operator admin routes; empty disables them.
	AdminJWTSecret string

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// DefaultLabID is the tenant used when an inbound payload does not name
	// the receiving business number, or that number has no lab mapped.
	DefaultLabID string
	LabCacheTTL  time.Duration

	// WhatsApp delivery API
	WhatsAppAPIBaseURL  string
	WhatsAppTimeout     time.Duration
	WhatsAppMaxRetries  int
	WhatsAppVerifyToken string
	WhatsAppAppSecret   string

	// Booking creation endpoint
	QuickBookURL     string
	QuickBookTimeout time.Duration

	// Operator channel
	InternalNotifyPhone string
	OperatorEmail       string
	EmailProvider       string
	SendGridAPIKey      string
	SendGridFromEmail   string
	SendGridFromName    string
	SESFromEmail        string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Outbox delivery
	OutboxInlineDelivery bool
	OutboxRunInAPI       bool
	OutboxInterval       time.Duration
	OutboxBatchSize      int
	OutboxMaxAttempts    int

	// Per-phone turn serialization
	SessionLockTTL  time.Duration
	SessionLockWait time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		DefaultLabID: strings.TrimSpace(getEnv("DEFAULT_LAB_ID", "")),
		LabCacheTTL:  getEnvAsDuration("LAB_CACHE_TTL", 5*time.Minute),

		WhatsAppAPIBaseURL:  getEnv("WHATSAPP_API_BASE_URL", "https://graph.facebook.com/v20.0"),
		WhatsAppTimeout:     getEnvAsDuration("WHATSAPP_TIMEOUT", 10*time.Second),
		WhatsAppMaxRetries:  getEnvAsInt("WHATSAPP_MAX_RETRIES", 0),
		WhatsAppVerifyToken: getEnv("WHATSAPP_VERIFY_TOKEN", ""),
		WhatsAppAppSecret:   getEnv("WHATSAPP_APP_SECRET", ""),

		QuickBookURL:     getEnv("QUICKBOOK_URL", ""),
		QuickBookTimeout: getEnvAsDuration("QUICKBOOK_TIMEOUT", 15*time.Second),

		InternalNotifyPhone: getEnv("INTERNAL_NOTIFY_PHONE", ""),
		OperatorEmail:       getEnv("OPERATOR_EMAIL", ""),
		EmailProvider:       strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "none"))),
		SendGridAPIKey:      getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail:   getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:    getEnv("SENDGRID_FROM_NAME", "Lab Assistant"),
		SESFromEmail:        getEnv("SES_FROM_EMAIL", ""),

		AWSRegion:           getEnv("AWS_REGION", "ap-south-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		OutboxInlineDelivery: getEnvAsBool("OUTBOX_INLINE_DELIVERY", true),
		OutboxRunInAPI:       getEnvAsBool("OUTBOX_RUN_IN_API", true),
		OutboxInterval:       getEnvAsDuration("OUTBOX_INTERVAL", 2*time.Second),
		OutboxBatchSize:      getEnvAsInt("OUTBOX_BATCH_SIZE", 25),
		OutboxMaxAttempts:    getEnvAsInt("OUTBOX_MAX_ATTEMPTS", 5),

		SessionLockTTL:  getEnvAsDuration("SESSION_LOCK_TTL", 15*time.Second),
		SessionLockWait: getEnvAsDuration("SESSION_LOCK_WAIT", 5*time.Second),
	}
}

// EmailEnabled reports whether operator notifications should also go out by email.
func (c *Config) EmailEnabled() bool {
	if c == nil || strings.TrimSpace(c.OperatorEmail) == "" {
		return false
	}
	switch c.EmailProvider {
	case "sendgrid":
		return c.SendGridAPIKey != ""
	case "ses":
		return c.SESFromEmail != ""
	default:
		return false
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
