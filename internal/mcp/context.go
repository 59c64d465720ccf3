package mcp

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/HyphaGroup/codexd/internal/logger"
)

type contextKey string

const contextKeyRemoteAddr contextKey = "codexd-remote-addr"

// WithRemoteAddr adds the remote address to context
func WithRemoteAddr(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, contextKeyRemoteAddr, addr)
}

// GetRemoteAddr extracts the remote address from context
func GetRemoteAddr(ctx context.Context) string {
	addr, _ := ctx.Value(contextKeyRemoteAddr).(string)
	return addr
}

// requestContext tags every request with an id, echoed in X-Request-ID
func requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()[:16]
		}
		w.Header().Set("X-Request-ID", requestID)

		ctx := logger.WithRequestID(r.Context(), requestID)
		ctx = WithRemoteAddr(ctx, r.RemoteAddr)
		r = r.WithContext(ctx)

		logger.WithContext(ctx).Info("http request", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr)
		next.ServeHTTP(w, r)
	})
}
