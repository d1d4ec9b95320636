package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/mailbeforecart/internal/recovery"
)

// CaptureHandler serves the storefront's add-to-cart endpoints.
type CaptureHandler struct {
	svc    *recovery.Service
	logger *slog.Logger
}

func NewCaptureHandler(svc *recovery.Service, logger *slog.Logger) *CaptureHandler {
	return &CaptureHandler{svc: svc, logger: logger.With("component", "capture")}
}

func (h *CaptureHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in recovery.CaptureInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	rec, err := h.svc.Capture(r.Context(), in)
	if err != nil {
		writeError(w, h.logger, "failed to capture cart", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": rec.ID})
}

func (h *CaptureHandler) Exists(w http.ResponseWriter, r *http.Request) {
	ok, err := h.svc.EmailExists(r.Context(), r.URL.Query().Get("email"))
	if err != nil {
		writeError(w, h.logger, "failed to check email", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"exists": ok})
}

func (h *CaptureHandler) Config(w http.ResponseWriter, r *http.Request) {
	label, placeholder, err := h.svc.CaptureConfig(r.Context())
	if err != nil {
		writeError(w, h.logger, "failed to load capture config", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"field_label":       label,
		"field_placeholder": placeholder,
	})
}
