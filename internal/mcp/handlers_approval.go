package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/HyphaGroup/codexd/internal/audit"
	"github.com/HyphaGroup/codexd/internal/session"
)

// ApprovalParams is the unified params struct for the approval tool
type ApprovalParams struct {
	Action         string `json:"action" jsonschema:"respond or list"`
	RequestID      string `json:"request_id,omitempty" jsonschema:"approval request to answer"`
	Approved       bool   `json:"approved,omitempty" jsonschema:"decision; false denies"`
	ConversationID string `json:"conversation_id,omitempty" jsonschema:"limit list to one conversation"`
}

var approvalActions = []string{"respond", "list"}

func (s *Server) handleApproval(ctx context.Context, _ *mcp.CallToolRequest, params ApprovalParams) (*mcp.CallToolResult, any, error) {
	switch params.Action {
	case "":
		return nil, nil, missingActionError("approval", approvalActions)
	case "respond":
		if _, err := requireWriteAccess(ctx); err != nil {
			return nil, nil, err
		}
		if params.RequestID == "" {
			return nil, nil, fmt.Errorf("request_id is required")
		}

		var cid string
		if pa, ok := s.sessions.Approvals().Get(params.RequestID); ok {
			cid = pa.ConversationID
		}
		err := s.sessions.RespondToApproval(ctx, params.RequestID, params.Approved)
		audit.Record(ctx, audit.OpApprovalRespond, audit.Event{
			ConversationID: cid,
			Target:         params.RequestID,
			Details:        map[string]any{"approved": params.Approved},
		}, err)
		if err != nil {
			return nil, nil, err
		}

		verdict := "denied"
		if params.Approved {
			verdict = "approved"
		}
		return NewTextResult(fmt.Sprintf("Request %s %s.", params.RequestID, verdict)), nil, nil
	case "list":
		if _, err := requireAuth(ctx); err != nil {
			return nil, nil, err
		}
		pending := s.sessions.Approvals().List(params.ConversationID)
		if pending == nil {
			pending = []session.PendingApproval{}
		}
		return nil, map[string]any{"pending": pending}, nil
	default:
		return nil, nil, actionError("approval", params.Action, approvalActions)
	}
}
