package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/HyphaGroup/codexd/internal/agent/codex"
	"github.com/HyphaGroup/codexd/internal/audit"
	"github.com/HyphaGroup/codexd/internal/logger"
	"github.com/HyphaGroup/codexd/internal/session"
	"github.com/HyphaGroup/codexd/internal/store"
	"github.com/HyphaGroup/codexd/internal/validation"
)

// ConversationParams is the unified params struct for the conversation tool
type ConversationParams struct {
	Action string `json:"action" jsonschema:"launch, cancel, events or list"`

	ConversationID string `json:"conversation_id,omitempty" jsonschema:"conversation to act on; launch generates one when empty"`

	// launch
	Prompt      string                 `json:"prompt,omitempty" jsonschema:"user message sent to codex"`
	History     []codex.HistoryMessage `json:"history,omitempty" jsonschema:"prior turns; only the last 10 are folded into the prompt"`
	WorkspaceID string                 `json:"workspace_id,omitempty" jsonschema:"saved workspace whose path becomes the working directory"`
	Cwd         string                 `json:"cwd,omitempty" jsonschema:"working directory; wins over workspace_id"`

	// events
	SinceIndex *int `json:"since_index,omitempty" jsonschema:"return events after this index; omit for all buffered events"`
}

var conversationActions = []string{"launch", "cancel", "events", "list"}

// LaunchResult is returned by conversation launch
type LaunchResult struct {
	ConversationID string `json:"conversation_id"`
	PID            int    `json:"pid"`
	Cwd            string `json:"cwd,omitempty"`
}

// EventsResult is returned by conversation events
type EventsResult struct {
	ConversationID string `json:"conversation_id"`
	session.EventPage
}

func (s *Server) handleConversation(ctx context.Context, request *mcp.CallToolRequest, params ConversationParams) (*mcp.CallToolResult, any, error) {
	switch params.Action {
	case "":
		return nil, nil, missingActionError("conversation", conversationActions)
	case "launch":
		return s.conversationLaunch(ctx, request, params)
	case "cancel":
		return s.conversationCancel(ctx, params)
	case "events":
		return s.conversationEvents(ctx, params)
	case "list":
		return s.conversationList(ctx)
	default:
		return nil, nil, actionError("conversation", params.Action, conversationActions)
	}
}

func (s *Server) conversationLaunch(ctx context.Context, request *mcp.CallToolRequest, params ConversationParams) (*mcp.CallToolResult, any, error) {
	if _, err := requireWriteAccess(ctx); err != nil {
		return nil, nil, err
	}
	if strings.TrimSpace(params.Prompt) == "" {
		return nil, nil, fmt.Errorf("prompt is required")
	}

	cid := params.ConversationID
	if cid == "" {
		cid = uuid.New().String()
	} else if err := validation.ValidateID("conversation_id", cid); err != nil {
		return nil, nil, err
	}
	ctx = logger.WithConversation(ctx, cid)

	cwd := params.Cwd
	if cwd != "" {
		dir, err := validation.ResolveDir(cwd)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid cwd: %w", err)
		}
		cwd = dir
	} else if params.WorkspaceID != "" && s.history != nil {
		ws, err := s.history.GetWorkspace(ctx, params.WorkspaceID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, nil, fmt.Errorf("workspace %s not found", params.WorkspaceID)
			}
			return nil, nil, err
		}
		cwd = ws.Path
	}

	// Subscribe first so the caller sees the earliest events.
	s.subscribe(request, cid)

	info, err := s.sessions.Launch(ctx, &session.LaunchRequest{
		ConversationID: cid,
		WorkspaceID:    params.WorkspaceID,
		Cwd:            cwd,
		Prompt:         params.Prompt,
		History:        params.History,
	})
	audit.Record(ctx, audit.OpConversationLaunch, audit.Event{
		ConversationID: cid,
		Details:        map[string]any{"workspace_id": params.WorkspaceID, "history": len(params.History)},
	}, err)
	if err != nil {
		return nil, nil, err
	}

	logger.WithContext(ctx).Info("conversation launched", "pid", info.PID)
	return nil, &LaunchResult{ConversationID: cid, PID: info.PID, Cwd: cwd}, nil
}

func (s *Server) conversationCancel(ctx context.Context, params ConversationParams) (*mcp.CallToolResult, any, error) {
	if _, err := requireWriteAccess(ctx); err != nil {
		return nil, nil, err
	}
	if params.ConversationID == "" {
		return nil, nil, fmt.Errorf("conversation_id is required")
	}

	err := s.sessions.Cancel(ctx, params.ConversationID)
	audit.Record(ctx, audit.OpConversationCancel, audit.Event{ConversationID: params.ConversationID}, err)
	if err != nil {
		return nil, nil, err
	}
	return NewTextResult(fmt.Sprintf("Conversation %s cancelled.", params.ConversationID)), nil, nil
}

func (s *Server) conversationEvents(ctx context.Context, params ConversationParams) (*mcp.CallToolResult, any, error) {
	if _, err := requireAuth(ctx); err != nil {
		return nil, nil, err
	}
	if params.ConversationID == "" {
		return nil, nil, fmt.Errorf("conversation_id is required")
	}

	since := -1
	if params.SinceIndex != nil {
		since = *params.SinceIndex
	}
	page, err := s.sessions.Events(params.ConversationID, since)
	if err != nil {
		return nil, nil, err
	}
	return nil, &EventsResult{ConversationID: params.ConversationID, EventPage: page}, nil
}

func (s *Server) conversationList(ctx context.Context) (*mcp.CallToolResult, any, error) {
	if _, err := requireAuth(ctx); err != nil {
		return nil, nil, err
	}
	procs := s.sessions.List()
	if procs == nil {
		procs = []session.ProcessInfo{}
	}
	return nil, map[string]any{"processes": procs}, nil
}
