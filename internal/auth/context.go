package auth

import (
	"context"
	"crypto/subtle"
)

type contextKey struct{}

type AuthContext struct {
	OperatorID int64
	Role       string
	SessionID  int64
	CSRFToken  string
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

func OperatorID(ctx context.Context) int64 {
	ac, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return ac.OperatorID
}

func IsAdmin(ctx context.Context) bool {
	ac, ok := FromContext(ctx)
	if !ok {
		return false
	}
	return ac.Role == "admin"
}

// ValidToken reports whether token matches the session's CSRF token.
func ValidToken(ctx context.Context, token string) bool {
	ac, ok := FromContext(ctx)
	if !ok || ac.CSRFToken == "" || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(ac.CSRFToken), []byte(token)) == 1
}
