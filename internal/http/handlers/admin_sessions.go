package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/labbit-23/labbit-main-sub000/internal/http/middleware"
	"github.com/labbit-23/labbit-main-sub000/internal/lab"
	"github.com/labbit-23/labbit-main-sub000/internal/messaging"
	"github.com/labbit-23/labbit-main-sub000/internal/session"
	"github.com/labbit-23/labbit-main-sub000/pkg/logging"
)

type sessionResolver interface {
	Resolve(ctx context.Context, labID, phone string) error
}

type labCache interface {
	Get(ctx context.Context, labID string) (*lab.Config, error)
	Invalidate(ctx context.Context, cfg *lab.Config) error
}

// AdminHandler serves the operator endpoints: closing a handed-off
// conversation and dropping a lab's cached configuration.
type AdminHandler struct {
	sessions sessionResolver
	labs     labCache
	logger   *logging.Logger
}

func NewAdminHandler(sessions sessionResolver, labs labCache, logger *logging.Logger) *AdminHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminHandler{sessions: sessions, labs: labs, logger: logger}
}

// ResolveSession handles POST /admin/labs/{labID}/sessions/{phone}/resolve.
func (h *AdminHandler) ResolveSession(w http.ResponseWriter, r *http.Request) {
	labID := chi.URLParam(r, "labID")
	phone := messaging.NormalizePhone(chi.URLParam(r, "phone"))
	op, ok := h.authorize(w, r, labID)
	if !ok {
		return
	}
	if phone == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "phone required"})
		return
	}
	if err := h.sessions.Resolve(r.Context(), labID, phone); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no open session"})
			return
		}
		h.logger.Error("resolve session failed", "error", err, "lab_id", labID, "phone", phone)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "resolve failed"})
		return
	}
	h.logger.Info("session resolved by operator", "lab_id", labID, "phone", phone, "operator", op.Subject)
	writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

// InvalidateLab handles POST /admin/labs/{labID}/cache/invalidate.
func (h *AdminHandler) InvalidateLab(w http.ResponseWriter, r *http.Request) {
	labID := chi.URLParam(r, "labID")
	op, ok := h.authorize(w, r, labID)
	if !ok {
		return
	}
	cfg, err := h.labs.Get(r.Context(), labID)
	if err != nil {
		if errors.Is(err, lab.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "lab not found"})
			return
		}
		h.logger.Error("load lab failed", "error", err, "lab_id", labID)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
		return
	}
	if err := h.labs.Invalidate(r.Context(), cfg); err != nil {
		h.logger.Error("invalidate lab cache failed", "error", err, "lab_id", labID)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "invalidate failed"})
		return
	}
	h.logger.Info("lab cache invalidated", "lab_id", labID, "operator", op.Subject)
	writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *AdminHandler) authorize(w http.ResponseWriter, r *http.Request, labID string) (middleware.Operator, bool) {
	op, ok := middleware.OperatorFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return op, false
	}
	if labID == "" || !op.CanAccessLab(labID) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
		return op, false
	}
	return op, true
}
