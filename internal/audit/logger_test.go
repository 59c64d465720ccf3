package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HyphaGroup/codexd/internal/auth"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestRecord_Success(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)

	ctx := auth.WithContext(context.Background(), &auth.AuthContext{
		Token: &auth.Token{ID: "tok_1", Scope: auth.ScopeAdmin},
	})
	l.Record(ctx, OpConversationLaunch, Event{
		ConversationID: "c1",
		Details:        map[string]any{"mode": "fast"},
	}, nil)

	entry := decode(t, &buf)
	assert.Equal(t, "AUDIT", entry["msg"])
	assert.Equal(t, "conversation.launch", entry["operation"])
	assert.Equal(t, true, entry["success"])
	assert.Equal(t, "tok_1", entry["token_id"])
	assert.Equal(t, "admin", entry["token_scope"])
	assert.Equal(t, "c1", entry["conversation_id"])
	assert.Equal(t, map[string]any{"mode": "fast"}, entry["details"])
	assert.NotContains(t, entry, "pty_id")
}

func TestRecord_Failure(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)

	l.Record(context.Background(), OpPtyKill, Event{PtyID: "pty-1"}, errors.New("pty session not found"))

	entry := decode(t, &buf)
	assert.Equal(t, false, entry["success"])
	assert.Equal(t, "pty session not found", entry["error"])
	assert.Equal(t, "pty-1", entry["pty_id"])
	assert.NotContains(t, entry, "token_id")
}

func TestLogger_Disabled(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)
	l.SetEnabled(false)
	l.Record(context.Background(), OpTokenCreate, Event{}, nil)
	assert.Zero(t, buf.Len())
}
