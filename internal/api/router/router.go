package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/labbit-23/labbit-main-sub000/internal/http/handlers"
	httpmiddleware "github.com/labbit-23/labbit-main-sub000/internal/http/middleware"
	"github.com/labbit-23/labbit-main-sub000/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger          *logging.Logger
	WhatsApp        *handlers.WhatsAppWebhookHandler
	Admin           *handlers.AdminHandler
	AdminAuthSecret string
	MetricsHandler  http.Handler
	// RequestTimeout bounds each request; zero leaves requests unbounded.
	RequestTimeout time.Duration
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	r.Get("/health", handlers.HealthHandler)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.WhatsApp != nil {
		r.Get("/webhooks/whatsapp", cfg.WhatsApp.HandleVerification)
		r.Post("/webhooks/whatsapp", cfg.WhatsApp.HandleInbound)
	}

	if cfg.Admin != nil && cfg.AdminAuthSecret != "" {
		r.Route("/admin/labs/{labID}", func(r chi.Router) {
			r.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			r.Post("/sessions/{phone}/resolve", cfg.Admin.ResolveSession)
			r.Post("/cache/invalidate", cfg.Admin.InvalidateLab)
		})
	}

	return r
}
