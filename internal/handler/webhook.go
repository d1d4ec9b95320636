package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/mailbeforecart/internal/recovery"
	"github.com/dukerupert/mailbeforecart/internal/webhook"
)

// WebhookHandler feeds completed purchases into the purchase resolver.
type WebhookHandler struct {
	svc          *recovery.Service
	orderSecret  string
	stripeSecret string
	now          func() time.Time
	logger       *slog.Logger
}

func NewWebhookHandler(svc *recovery.Service, orderSecret, stripeSecret string, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		svc:          svc,
		orderSecret:  orderSecret,
		stripeSecret: stripeSecret,
		now:          time.Now,
		logger:       logger.With("component", "webhook"),
	}
}

// readBody reads the whole request body, failing with *http.MaxBytesError
// once it passes maxBodyBytes.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
}

func bodyErrorStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func (h *WebhookHandler) Orders(w http.ResponseWriter, r *http.Request) {
	if h.orderSecret == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order webhook not configured"})
		return
	}

	body, err := readBody(w, r)
	if err != nil {
		writeJSON(w, bodyErrorStatus(err), map[string]string{"error": "read body"})
		return
	}

	err = webhook.VerifyOrder(h.orderSecret, r.Header.Get(webhook.TimestampHeader), r.Header.Get(webhook.SignatureHeader), body, h.now())
	if err != nil {
		h.logger.Warn("order webhook rejected", "error", err, "ip", r.RemoteAddr)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
		return
	}

	order, err := webhook.ParseOrder(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	n, err := h.svc.ResolvePurchase(r.Context(), order.OrderID, order.BillingEmail)
	if err != nil {
		writeError(w, h.logger, "failed to resolve purchase", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"resolved": n})
}

func (h *WebhookHandler) Stripe(w http.ResponseWriter, r *http.Request) {
	if h.stripeSecret == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "stripe webhook not configured"})
		return
	}

	body, err := readBody(w, r)
	if err != nil {
		http.Error(w, "read body", bodyErrorStatus(err))
		return
	}

	checkout, err := webhook.ParseStripe(body, r.Header.Get(webhook.StripeSignatureHeader), h.stripeSecret)
	switch {
	case errors.Is(err, webhook.ErrInvalidSignature):
		h.logger.Warn("stripe webhook rejected", "error", err)
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	case err != nil:
		// Unusable checkout. Acknowledge it anyway.
		h.logger.Warn("stripe checkout ignored", "error", err)
		w.WriteHeader(http.StatusOK)
		return
	case checkout == nil:
		w.WriteHeader(http.StatusOK)
		return
	}

	if _, err := h.svc.ResolvePurchase(r.Context(), checkout.SessionID, checkout.BillingEmail); err != nil {
		writeError(w, h.logger, "failed to resolve purchase", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
