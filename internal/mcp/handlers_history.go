package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/HyphaGroup/codexd/internal/audit"
	"github.com/HyphaGroup/codexd/internal/backup"
	"github.com/HyphaGroup/codexd/internal/store"
	"github.com/HyphaGroup/codexd/internal/validation"
)

// HistoryParams is the unified params struct for the history tool
type HistoryParams struct {
	Action string `json:"action" jsonschema:"workspaces, save_workspace, delete_workspace, conversations, messages, delete_conversation, backup or backups"`

	WorkspaceID    string `json:"workspace_id,omitempty"`
	Name           string `json:"name,omitempty" jsonschema:"workspace display name; defaults to the path base"`
	Path           string `json:"path,omitempty" jsonschema:"workspace directory"`
	ConversationID string `json:"conversation_id,omitempty"`
}

var historyActions = []string{"workspaces", "save_workspace", "delete_workspace", "conversations", "messages", "delete_conversation", "backup", "backups"}

var (
	errHistoryDisabled = errors.New("conversation history is disabled in this server's config")
	errBackupsDisabled = errors.New("history backups are not enabled (history.backup.enabled)")
)

func (s *Server) handleHistory(ctx context.Context, _ *mcp.CallToolRequest, params HistoryParams) (*mcp.CallToolResult, any, error) {
	if params.Action == "" {
		return nil, nil, missingActionError("history", historyActions)
	}
	if s.history == nil {
		return nil, nil, errHistoryDisabled
	}
	if _, err := requireAuth(ctx); err != nil {
		return nil, nil, err
	}

	switch params.Action {
	case "workspaces":
		list, err := s.history.ListWorkspaces(ctx)
		if err != nil {
			return nil, nil, err
		}
		return nil, map[string]any{"workspaces": emptyIfNil(list)}, nil

	case "save_workspace":
		if _, err := requireWriteAccess(ctx); err != nil {
			return nil, nil, err
		}
		if params.WorkspaceID != "" {
			if err := validation.ValidateID("workspace_id", params.WorkspaceID); err != nil {
				return nil, nil, err
			}
		}
		path := params.Path
		if path != "" {
			dir, err := validation.ResolveDir(path)
			if err != nil {
				return nil, nil, fmt.Errorf("invalid workspace: %w", err)
			}
			path = dir
		}
		ws := &store.Workspace{ID: params.WorkspaceID, Name: params.Name, Path: path}
		if err := s.history.SaveWorkspace(ctx, ws); err != nil {
			if errors.Is(err, store.ErrInvalidRecord) {
				return nil, nil, fmt.Errorf("invalid workspace: path is required")
			}
			return nil, nil, err
		}
		return nil, ws, nil

	case "delete_workspace":
		if _, err := requireWriteAccess(ctx); err != nil {
			return nil, nil, err
		}
		if params.WorkspaceID == "" {
			return nil, nil, fmt.Errorf("workspace_id is required")
		}
		err := s.history.DeleteWorkspace(ctx, params.WorkspaceID)
		audit.Record(ctx, audit.OpHistoryDelete, audit.Event{Target: "workspace:" + params.WorkspaceID}, err)
		if err != nil {
			return nil, nil, notFound(err, "workspace", params.WorkspaceID)
		}
		return NewTextResult(fmt.Sprintf("Workspace %s and its conversations deleted.", params.WorkspaceID)), nil, nil

	case "conversations":
		list, err := s.history.ListConversations(ctx, params.WorkspaceID)
		if err != nil {
			return nil, nil, err
		}
		return nil, map[string]any{"conversations": emptyIfNil(list)}, nil

	case "messages":
		if params.ConversationID == "" {
			return nil, nil, fmt.Errorf("conversation_id is required")
		}
		if _, err := s.history.GetConversation(ctx, params.ConversationID); err != nil {
			return nil, nil, notFound(err, "conversation", params.ConversationID)
		}
		msgs, err := s.history.ListMessages(ctx, params.ConversationID)
		if err != nil {
			return nil, nil, err
		}
		return nil, map[string]any{"conversation_id": params.ConversationID, "messages": emptyIfNil(msgs)}, nil

	case "delete_conversation":
		if _, err := requireWriteAccess(ctx); err != nil {
			return nil, nil, err
		}
		if params.ConversationID == "" {
			return nil, nil, fmt.Errorf("conversation_id is required")
		}
		err := s.history.DeleteConversation(ctx, params.ConversationID)
		audit.Record(ctx, audit.OpHistoryDelete, audit.Event{ConversationID: params.ConversationID}, err)
		if err != nil {
			return nil, nil, notFound(err, "conversation", params.ConversationID)
		}
		return NewTextResult(fmt.Sprintf("Conversation %s deleted.", params.ConversationID)), nil, nil

	case "backup":
		if _, err := requireWriteAccess(ctx); err != nil {
			return nil, nil, err
		}
		if s.backups == nil {
			return nil, nil, errBackupsDisabled
		}
		snap, err := s.backups.Snapshot(ctx)
		audit.Record(ctx, audit.OpHistoryBackup, audit.Event{Target: snapshotName(snap)}, err)
		if err != nil {
			return nil, nil, err
		}
		return nil, snap, nil

	case "backups":
		if s.backups == nil {
			return nil, nil, errBackupsDisabled
		}
		list, err := s.backups.ListSnapshots()
		if err != nil {
			return nil, nil, err
		}
		return nil, map[string]any{"directory": s.backups.Dir(), "snapshots": emptyIfNil(list)}, nil

	default:
		return nil, nil, actionError("history", params.Action, historyActions)
	}
}

func notFound(err error, kind, id string) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%s %s not found", kind, id)
	}
	return err
}

func emptyIfNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}

func snapshotName(s *backup.Snapshot) string {
	if s == nil {
		return ""
	}
	return s.Filename
}
