package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/HyphaGroup/codexd/internal/logger"
)

type contextKey string

const authContextKey contextKey = "auth"

// WithContext adds an AuthContext to the context
func WithContext(ctx context.Context, auth *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey, auth)
}

// FromContext retrieves the AuthContext from the context
func FromContext(ctx context.Context) *AuthContext {
	auth, _ := ctx.Value(authContextKey).(*AuthContext)
	return auth
}

// Validator resolves bearer secrets
type Validator interface {
	Validate(ctx context.Context, secret string) (*Token, error)
}

// Middleware rejects requests without a valid bearer token
func Middleware(v Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				jsonError(w, -32001, "Authentication required (Bearer token)", http.StatusUnauthorized)
				return
			}

			secret := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
			token, err := v.Validate(r.Context(), secret)
			if err != nil {
				logger.WithContext(r.Context()).Warn("token validation failed", "token", maskSecret(secret), "error", err)
				jsonError(w, -32001, "Invalid or expired token", http.StatusUnauthorized)
				return
			}

			ctx := WithContext(r.Context(), &AuthContext{Token: token})
			ctx = logger.WithTokenID(ctx, token.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func jsonError(w http.ResponseWriter, code int, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"jsonrpc": "2.0",
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
		"id": nil,
	})
}

func maskSecret(secret string) string {
	if len(secret) <= 12 {
		return "***"
	}
	return secret[:8] + "..." + secret[len(secret)-4:]
}
