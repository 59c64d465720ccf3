package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_Workspaces(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	ws := &Workspace{ID: "w1", Path: "/tmp/project"}
	require.NoError(t, s.SaveWorkspace(ctx, ws))
	assert.Equal(t, "project", ws.Name)

	ws.Name = "Renamed"
	require.NoError(t, s.SaveWorkspace(ctx, ws))

	got, err := s.GetWorkspace(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	assert.Equal(t, "/tmp/project", got.Path)

	list, err := s.ListWorkspaces(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, s.DeleteWorkspace(ctx, "w1"))
	_, err = s.GetWorkspace(ctx, "w1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteWorkspace(ctx, "w1"), ErrNotFound)
}

func TestStore_SaveWorkspaceRequiresPath(t *testing.T) {
	s := setupTestStore(t)
	err := s.SaveWorkspace(context.Background(), &Workspace{ID: "w1"})
	assert.ErrorIs(t, err, ErrInvalidRecord)
}

func TestStore_EnsureConversationUsesDefaultWorkspace(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	c := &Conversation{ID: "c1", Title: "hello"}
	require.NoError(t, s.EnsureConversation(ctx, c))
	assert.Equal(t, DefaultWorkspaceID, c.WorkspaceID)

	_, err := s.GetWorkspace(ctx, DefaultWorkspaceID)
	require.NoError(t, err)

	// A second call keeps the original title.
	require.NoError(t, s.EnsureConversation(ctx, &Conversation{ID: "c1", Title: "other"}))
	got, err := s.GetConversation(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Title)
}

func TestStore_EnsureConversationUnknownWorkspace(t *testing.T) {
	s := setupTestStore(t)
	err := s.EnsureConversation(context.Background(), &Conversation{ID: "c1", WorkspaceID: "missing"})
	assert.Error(t, err)
}

func TestStore_Messages(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.EnsureConversation(ctx, &Conversation{ID: "c1", Title: "t"}))

	base := time.Now().Add(time.Hour)
	d := int64(1500)
	require.NoError(t, s.SaveMessage(ctx, &Message{ConversationID: "c1", Role: RoleUser, Content: "hi", Timestamp: base}))
	require.NoError(t, s.SaveMessage(ctx, &Message{
		ConversationID:   "c1",
		Role:             RoleAssistant,
		Content:          "hello",
		Thinking:         "pondering",
		ThinkingDuration: &d,
		Timestamp:        base.Add(time.Second),
	}))

	msgs, err := s.ListMessages(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hi", msgs[0].Content)
	assert.Empty(t, msgs[0].Thinking)
	assert.Nil(t, msgs[0].ThinkingDuration)
	assert.Equal(t, "pondering", msgs[1].Thinking)
	require.NotNil(t, msgs[1].ThinkingDuration)
	assert.Equal(t, int64(1500), *msgs[1].ThinkingDuration)

	conv, err := s.GetConversation(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, base.Add(time.Second).UnixMilli(), conv.UpdatedAt.UnixMilli())
}

func TestStore_SaveMessageUnknownConversation(t *testing.T) {
	s := setupTestStore(t)
	err := s.SaveMessage(context.Background(), &Message{ConversationID: "nope", Role: RoleUser, Content: "x"})
	assert.Error(t, err)
}

func TestStore_ListConversationsOrder(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveWorkspace(ctx, &Workspace{ID: "w1", Path: "/a"}))

	require.NoError(t, s.EnsureConversation(ctx, &Conversation{ID: "old", WorkspaceID: "w1"}))
	require.NoError(t, s.EnsureConversation(ctx, &Conversation{ID: "new", WorkspaceID: "w1"}))
	require.NoError(t, s.EnsureConversation(ctx, &Conversation{ID: "elsewhere"}))

	later := time.Now().Add(time.Hour)
	require.NoError(t, s.SaveMessage(ctx, &Message{ConversationID: "new", Role: RoleUser, Content: "x", Timestamp: later}))

	list, err := s.ListConversations(ctx, "w1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "new", list[0].ID)
	assert.Equal(t, "old", list[1].ID)

	all, err := s.ListConversations(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestStore_DeleteCascades(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveWorkspace(ctx, &Workspace{ID: "w1", Path: "/a"}))
	require.NoError(t, s.EnsureConversation(ctx, &Conversation{ID: "c1", WorkspaceID: "w1"}))
	require.NoError(t, s.SaveMessage(ctx, &Message{ConversationID: "c1", Role: RoleUser, Content: "x"}))

	require.NoError(t, s.DeleteWorkspace(ctx, "w1"))

	_, err := s.GetConversation(ctx, "c1")
	assert.ErrorIs(t, err, ErrNotFound)
	msgs, err := s.ListMessages(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestStore_DeleteConversationsBefore(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.EnsureConversation(ctx, &Conversation{ID: "stale"}))
	require.NoError(t, s.EnsureConversation(ctx, &Conversation{ID: "fresh"}))
	require.NoError(t, s.SaveMessage(ctx, &Message{
		ConversationID: "fresh", Role: RoleUser, Content: "x", Timestamp: time.Now().Add(time.Hour),
	}))

	n, err := s.DeleteConversationsBefore(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.GetConversation(ctx, "fresh")
	assert.NoError(t, err)
}

func TestStore_Backup(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.EnsureConversation(ctx, &Conversation{ID: "c1", Title: "kept"}))

	dir := t.TempDir()
	require.NoError(t, s.Backup(ctx, filepath.Join(dir, "history.db")))
	assert.Error(t, s.Backup(ctx, filepath.Join(dir, "history.db")), "existing destination")

	copied, err := NewStore(dir)
	require.NoError(t, err)
	defer func() { _ = copied.Close() }()
	got, err := copied.GetConversation(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "kept", got.Title)
}
