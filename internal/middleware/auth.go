package middleware

import (
	"net/http"
	"strings"

	"github.com/dukerupert/mailbeforecart/internal/auth"
	"github.com/dukerupert/mailbeforecart/internal/store"
)

// SessionCookieName is the cookie carrying the operator session token.
const SessionCookieName = "mbc_session"

// SessionToken returns the session token from the cookie, or from an
// "Authorization: Bearer" header for non-browser clients.
func SessionToken(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

// RequireOperator validates the session and populates AuthContext.
func RequireOperator(sessionStore *store.SessionStore, operatorStore *store.OperatorStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := SessionToken(r)
			if token == "" {
				unauthorized(w)
				return
			}

			sess, err := sessionStore.GetByToken(r.Context(), token)
			if err != nil || sess == nil {
				unauthorized(w)
				return
			}

			op, err := operatorStore.GetByID(r.Context(), sess.OperatorID)
			if err != nil || op == nil {
				unauthorized(w)
				return
			}

			ac := auth.AuthContext{
				OperatorID: op.ID,
				Role:       op.Role,
				SessionID:  sess.ID,
				CSRFToken:  sess.CSRFToken,
			}

			ctx := auth.WithAuth(r.Context(), ac)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"authentication required"}` + "\n"))
}
