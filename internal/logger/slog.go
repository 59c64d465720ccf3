package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

var (
	slogger *slog.Logger
	logFile *os.File
)

// InitSlog initializes the structured logger, writing to stdout and to
// codexd-structured-YYYY-MM-DD.log. jsonOutput selects the JSON handler.
func InitSlog(logDir string, jsonOutput bool, level slog.Level) error {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return err
	}

	var err error
	logFile, err = os.OpenFile(filepath.Join(logDir, logFileName("codexd-structured")), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}

	SetSlogOutput(io.MultiWriter(os.Stdout, logFile), jsonOutput, level)
	return nil
}

// SetSlogOutput installs a structured logger writing to w
func SetSlogOutput(w io.Writer, jsonOutput bool, level slog.Level) {
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if jsonOutput {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	slogger = slog.New(handler)
	slog.SetDefault(slogger)
}

// ParseLevel maps debug/info/warn/error to a slog level, defaulting to info
func ParseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// CloseSlog closes the slog log file
func CloseSlog() error {
	if logFile != nil {
		return logFile.Close()
	}
	return nil
}

// Slog returns the slog.Logger instance for structured logging
func Slog() *slog.Logger {
	if slogger == nil {
		return slog.Default()
	}
	return slogger
}

// Context keys for structured logging
type contextKey string

const (
	ContextKeyRequestID      contextKey = "request_id"
	ContextKeyConversationID contextKey = "conversation_id"
	ContextKeyPtyID          contextKey = "pty_id"
	ContextKeyTokenID        contextKey = "token_id"
)

var contextFields = []contextKey{
	ContextKeyRequestID,
	ContextKeyConversationID,
	ContextKeyPtyID,
	ContextKeyTokenID,
}

// WithContext returns a logger carrying the ids stored in ctx
func WithContext(ctx context.Context) *slog.Logger {
	logger := Slog()
	for _, key := range contextFields {
		if v := ctx.Value(key); v != nil {
			logger = logger.With(string(key), v)
		}
	}
	return logger
}

// WithConversation stores a conversation id for WithContext
func WithConversation(ctx context.Context, conversationID string) context.Context {
	return context.WithValue(ctx, ContextKeyConversationID, conversationID)
}

// WithRequestID stores a request id for WithContext
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// WithPty stores a PTY session id for WithContext
func WithPty(ctx context.Context, ptyID string) context.Context {
	return context.WithValue(ctx, ContextKeyPtyID, ptyID)
}

// WithTokenID stores the authenticated token id for WithContext
func WithTokenID(ctx context.Context, tokenID string) context.Context {
	return context.WithValue(ctx, ContextKeyTokenID, tokenID)
}
