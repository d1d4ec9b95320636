package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/mailbeforecart/internal/auth"
	"github.com/dukerupert/mailbeforecart/internal/middleware"
	"github.com/dukerupert/mailbeforecart/internal/store"
)

// AuthHandler signs operators in and out of the console.
type AuthHandler struct {
	operatorStore *store.OperatorStore
	sessionStore  *store.SessionStore
	secureCookie  bool
	logger        *slog.Logger
}

func NewAuthHandler(ops *store.OperatorStore, ss *store.SessionStore, secureCookie bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		operatorStore: ops,
		sessionStore:  ss,
		secureCookie:  secureCookie,
		logger:        logger.With("component", "auth"),
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	OperatorID int64     `json:"operator_id"`
	Email      string    `json:"email"`
	Role       string    `json:"role"`
	CSRFToken  string    `json:"csrf_token"`
	ExpiresAt  time.Time `json:"expires_at"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "email and password are required"})
		return
	}

	op, err := h.operatorStore.GetByEmail(r.Context(), req.Email)
	if err != nil {
		h.logger.Error("login lookup", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	// Same response for unknown email and wrong password
	if op == nil || !auth.CheckPassword(op.PasswordHash, req.Password) {
		h.logger.Warn("login failed", "email", req.Email, "ip", middleware.RealIP(r))
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid email or password"})
		return
	}

	sess, err := h.sessionStore.Create(r.Context(), op.ID)
	if err != nil {
		h.logger.Error("create session", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})

	h.logger.Info("operator signed in", "operator_id", op.ID)
	writeJSON(w, http.StatusOK, loginResponse{
		OperatorID: op.ID,
		Email:      op.Email,
		Role:       op.Role,
		CSRFToken:  sess.CSRFToken,
		ExpiresAt:  sess.ExpiresAt,
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ac, ok := auth.FromContext(r.Context())
	if ok {
		if err := h.sessionStore.Delete(r.Context(), ac.SessionID); err != nil {
			h.logger.Error("delete session", "error", err)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}
