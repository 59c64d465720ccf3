// Package mcp exposes the control operations as MCP tools over streamable
// HTTP and pushes UI events to connected clients.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/HyphaGroup/codexd/internal/auth"
	"github.com/HyphaGroup/codexd/internal/backup"
	"github.com/HyphaGroup/codexd/internal/config"
	"github.com/HyphaGroup/codexd/internal/logger"
	"github.com/HyphaGroup/codexd/internal/metrics"
	"github.com/HyphaGroup/codexd/internal/notify"
	"github.com/HyphaGroup/codexd/internal/session"
	"github.com/HyphaGroup/codexd/internal/store"
	"github.com/HyphaGroup/codexd/internal/terminal"
)

// ServerConfig carries the components the tools operate on. History and
// Notifier may be nil; their tools then report the feature as disabled.
type ServerConfig struct {
	Sessions  *session.Manager
	Terminals *terminal.Manager
	Runtime   *config.Runtime
	History   *store.Store
	Backups   *backup.Manager
	Notifier  *notify.Teams
	Auth      *auth.Store
	Limiter   *auth.RateLimiter
	Pusher    *EventPusher
	Version   string
}

// Server wraps the MCP server with our managers
type Server struct {
	sessions  *session.Manager
	terminals *terminal.Manager
	runtime   *config.Runtime
	history   *store.Store
	backups   *backup.Manager
	notifier  *notify.Teams
	authStore *auth.Store
	limiter   *auth.RateLimiter
	pusher    *EventPusher
	version   string

	registry  *Registry
	mcpServer *mcp.Server
	http      *http.Server
}

// NewServer creates a new MCP server instance
func NewServer(cfg ServerConfig) *Server {
	if cfg.Limiter == nil {
		cfg.Limiter = auth.NewRateLimiter(10, 20)
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	s := &Server{
		sessions:  cfg.Sessions,
		terminals: cfg.Terminals,
		runtime:   cfg.Runtime,
		history:   cfg.History,
		backups:   cfg.Backups,
		notifier:  cfg.Notifier,
		authStore: cfg.Auth,
		limiter:   cfg.Limiter,
		pusher:    cfg.Pusher,
		version:   cfg.Version,
		registry:  NewRegistry(),
	}
	s.registerAllTools(s.registry)

	s.mcpServer = mcp.NewServer(&mcp.Implementation{
		Name:    "codexd",
		Version: s.version,
	}, nil)
	s.registry.RegisterWithMCPServer(s.mcpServer)
	return s
}

// GetRegistry returns the tool registry
func (s *Server) GetRegistry() *Registry {
	return s.registry
}

// Handler returns the HTTP handler serving /mcp, /health, /ready and /metrics
func (s *Server) Handler() http.Handler {
	mcpHandler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcpServer
	}, &mcp.StreamableHTTPOptions{
		EventStore: mcp.NewMemoryEventStore(nil),
	})

	var protected http.Handler = mcpHandler
	protected = auth.RateLimitMiddleware(s.limiter)(protected)
	protected = auth.Middleware(s.authStore)(protected)
	protected = requestContext(protected)
	protected = metrics.Middleware(protected)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealthCheck)
	mux.HandleFunc("/ready", s.handleReadinessCheck)
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/mcp", protected)
	mux.Handle("/mcp/", protected)
	return mux
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Serve(ctx context.Context, addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("🚀 codexd MCP server listening on %s", addr)
		logger.Info("💚 Health check: http://%s/health", addr)
		logger.Info("📊 Metrics: http://%s/metrics", addr)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}

// handleHealthCheck is a basic liveness check
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// handleReadinessCheck verifies the history database answers
func (s *Server) handleReadinessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if s.history != nil {
		if err := s.history.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"not ready","reason":"history database unavailable"}`))
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}

// subscribe routes future events for key to the calling MCP session
func (s *Server) subscribe(req *mcp.CallToolRequest, key string) {
	if s.pusher == nil || req == nil || req.Session == nil {
		return
	}
	s.pusher.Subscribe(key, req.Session)
}
