package store

import (
	"time"
)

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultWorkspaceID holds conversations launched without a workspace
const DefaultWorkspaceID = "default"

// Workspace is a named working directory grouping conversations
type Workspace struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
}

// Conversation is a persisted chat session
type Conversation struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	Title       string    `json:"title"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Message is one persisted turn of a conversation
type Message struct {
	ID               string    `json:"id"`
	ConversationID   string    `json:"conversation_id"`
	Role             string    `json:"role"`
	Content          string    `json:"content"`
	Thinking         string    `json:"thinking,omitempty"`
	ThinkingDuration *int64    `json:"thinking_duration_ms,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}
