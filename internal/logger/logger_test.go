package logger

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintfAndError(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf)

	Printf("launched %s", "c1")
	Error("failed %d", 3)

	out := buf.String()
	assert.Contains(t, out, "launched c1")
	assert.Contains(t, out, "ERROR: failed 3")
}

func TestNewLoggerCreatesFile(t *testing.T) {
	dir := t.TempDir()
	var stdout, stderr bytes.Buffer

	l, err := newLogger(dir, &stdout, &stderr)
	require.NoError(t, err)
	defer func() { _ = l.logFile.Close() }()

	l.infoLogger.Printf("hello")
	l.errorLogger.Printf("boom")

	data, err := os.ReadFile(filepath.Join(dir, logFileName("codexd")))
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
	assert.Contains(t, string(data), "ERROR: boom")
	assert.Contains(t, stdout.String(), "hello")
	assert.Contains(t, stderr.String(), "boom")
}

func TestWithContextAddsFields(t *testing.T) {
	var buf bytes.Buffer
	SetSlogOutput(&buf, true, slog.LevelInfo)

	ctx := WithConversation(context.Background(), "c1")
	ctx = WithRequestID(ctx, "req-9")
	WithContext(ctx).Info("launched")

	line := buf.String()
	assert.Contains(t, line, `"conversation_id":"c1"`)
	assert.Contains(t, line, `"request_id":"req-9"`)
	assert.NotContains(t, line, "pty_id")
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetSlogOutput(&buf, false, slog.LevelWarn)

	Slog().Info("quiet")
	Slog().Warn("loud")

	assert.False(t, strings.Contains(buf.String(), "quiet"))
	assert.True(t, strings.Contains(buf.String(), "loud"))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelError, ParseLevel("ERROR"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}
