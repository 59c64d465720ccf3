// Package audit records mutating control operations as structured JSON lines.
package audit

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/HyphaGroup/codexd/internal/auth"
)

// Operation represents the type of auditable operation
type Operation string

const (
	OpConversationLaunch Operation = "conversation.launch"
	OpConversationCancel Operation = "conversation.cancel"
	OpApprovalRespond    Operation = "approval.respond"
	OpPtyCreate          Operation = "pty.create"
	OpPtyKill            Operation = "pty.kill"
	OpConfigUpdate       Operation = "config.update"
	OpHistoryDelete      Operation = "history.delete"
	OpHistoryBackup      Operation = "history.backup"
	OpTokenCreate        Operation = "token.create"
	OpTokenRevoke        Operation = "token.revoke"
	OpNotifySend         Operation = "notify.send"
)

// Event represents an audit log entry
type Event struct {
	Timestamp      time.Time
	Operation      Operation
	TokenID        string
	TokenScope     string
	ConversationID string
	PtyID          string
	Target         string
	Success        bool
	Error          string
	Details        map[string]any
}

// Logger handles audit logging
type Logger struct {
	mu      sync.RWMutex
	logger  *slog.Logger
	enabled bool
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// Default returns the process-wide audit logger, writing to stdout
func Default() *Logger {
	once.Do(func() {
		defaultLogger = New(os.Stdout)
	})
	return defaultLogger
}

// New creates an enabled audit logger writing JSON to w
func New(w io.Writer) *Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})
	return &Logger{logger: slog.New(handler), enabled: true}
}

// SetEnabled enables or disables audit logging
func (l *Logger) SetEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = enabled
}

// Log records an audit event
func (l *Logger) Log(event *Event) {
	l.mu.RLock()
	enabled := l.enabled
	l.mu.RUnlock()
	if !enabled {
		return
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	attrs := []any{
		slog.Bool("audit", true),
		slog.String("operation", string(event.Operation)),
		slog.Bool("success", event.Success),
		slog.Time("at", event.Timestamp),
	}
	add := func(key, val string) {
		if val != "" {
			attrs = append(attrs, slog.String(key, val))
		}
	}
	add("token_id", event.TokenID)
	add("token_scope", event.TokenScope)
	add("conversation_id", event.ConversationID)
	add("pty_id", event.PtyID)
	add("target", event.Target)
	add("error", event.Error)
	if len(event.Details) > 0 {
		attrs = append(attrs, slog.Any("details", event.Details))
	}

	l.logger.Info("AUDIT", attrs...)
}

// Record logs op for the caller found in ctx. A nil err marks success.
func (l *Logger) Record(ctx context.Context, op Operation, event Event, err error) {
	ac := auth.FromContext(ctx)
	event.Operation = op
	event.TokenID = ac.TokenID()
	event.TokenScope = ac.Scope()
	event.Success = err == nil
	if err != nil {
		event.Error = err.Error()
	}
	l.Log(&event)
}

// Record logs op using the default logger
func Record(ctx context.Context, op Operation, event Event, err error) {
	Default().Record(ctx, op, event, err)
}
