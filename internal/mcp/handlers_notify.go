package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/HyphaGroup/codexd/internal/audit"
	"github.com/HyphaGroup/codexd/internal/notify"
)

// NotifyParams is the unified params struct for the notify tool
type NotifyParams struct {
	Action     string `json:"action" jsonschema:"send"`
	WebhookURL string `json:"webhook_url,omitempty" jsonschema:"Teams incoming webhook; defaults to the configured one"`
	Title      string `json:"title,omitempty"`
	Content    string `json:"content,omitempty" jsonschema:"message body; long content is truncated"`
}

var notifyActions = []string{"send"}

func (s *Server) handleNotify(ctx context.Context, _ *mcp.CallToolRequest, params NotifyParams) (*mcp.CallToolResult, any, error) {
	switch params.Action {
	case "":
		return nil, nil, missingActionError("notify", notifyActions)
	case "send":
	default:
		return nil, nil, actionError("notify", params.Action, notifyActions)
	}

	if _, err := requireWriteAccess(ctx); err != nil {
		return nil, nil, err
	}
	if s.notifier == nil {
		return nil, nil, fmt.Errorf("notifications are not configured")
	}
	if params.Content == "" {
		return nil, nil, fmt.Errorf("content is required")
	}

	result, err := s.notifier.Send(ctx, params.WebhookURL, params.Title, params.Content)
	audit.Record(ctx, audit.OpNotifySend, audit.Event{Details: map[string]any{"title": params.Title}}, err)
	switch {
	case errors.Is(err, notify.ErrEmptyWebhook):
		return nil, nil, fmt.Errorf("webhook_url is required: no default webhook is configured")
	case errors.Is(err, notify.ErrRateLimited):
		return nil, nil, fmt.Errorf("notification rate limit exceeded, try again later")
	case err != nil:
		return nil, nil, err
	}
	return nil, result, nil
}
