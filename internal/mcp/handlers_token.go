package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/HyphaGroup/codexd/internal/audit"
	"github.com/HyphaGroup/codexd/internal/auth"
	"github.com/HyphaGroup/codexd/internal/validation"
)

// TokenParams is the unified params struct for the token tool
type TokenParams struct {
	Action string `json:"action" jsonschema:"create, list or revoke"`

	// create
	Name          string `json:"name,omitempty"`
	Scope         string `json:"scope,omitempty" jsonschema:"admin or admin:ro"`
	ExpiresInDays int    `json:"expires_in_days,omitempty" jsonschema:"0 never expires"`

	// revoke
	TokenID string `json:"token_id,omitempty"`
}

var tokenActions = []string{"create", "list", "revoke"}

func (s *Server) handleToken(ctx context.Context, _ *mcp.CallToolRequest, params TokenParams) (*mcp.CallToolResult, any, error) {
	if _, err := requireWriteAccess(ctx); err != nil {
		return nil, nil, err
	}

	switch params.Action {
	case "":
		return nil, nil, missingActionError("token", tokenActions)
	case "create":
		return s.tokenCreate(ctx, params)
	case "list":
		tokens, err := s.authStore.List(ctx)
		if err != nil {
			return nil, nil, err
		}
		return nil, map[string]any{"tokens": emptyIfNil(tokens)}, nil
	case "revoke":
		if params.TokenID == "" {
			return nil, nil, fmt.Errorf("token_id is required")
		}
		if params.TokenID == auth.FromContext(ctx).TokenID() {
			return nil, nil, fmt.Errorf("cannot revoke the token used for this request")
		}
		if err := validation.ValidateTokenID(params.TokenID); err != nil {
			return nil, nil, err
		}
		err := s.authStore.Revoke(ctx, params.TokenID)
		audit.Record(ctx, audit.OpTokenRevoke, audit.Event{Target: params.TokenID}, err)
		if err != nil {
			return nil, nil, err
		}
		return NewTextResult(fmt.Sprintf("✅ Token %s revoked.", params.TokenID)), nil, nil
	default:
		return nil, nil, actionError("token", params.Action, tokenActions)
	}
}

func (s *Server) tokenCreate(ctx context.Context, params TokenParams) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(params.Name) == "" {
		return nil, nil, fmt.Errorf("name is required")
	}
	if !auth.ValidScope(params.Scope) {
		return nil, nil, fmt.Errorf("invalid scope '%s'; valid scopes: %s, %s", params.Scope, auth.ScopeAdmin, auth.ScopeAdminRO)
	}

	var expires *time.Time
	if params.ExpiresInDays > 0 {
		t := time.Now().AddDate(0, 0, params.ExpiresInDays)
		expires = &t
	}

	token, secret, err := s.authStore.CreateToken(ctx, params.Name, params.Scope, expires)
	audit.Record(ctx, audit.OpTokenCreate, audit.Event{
		Target:  tokenIDOf(token),
		Details: map[string]any{"name": params.Name, "scope": params.Scope},
	}, err)
	if err != nil {
		return nil, nil, err
	}

	var b strings.Builder
	b.WriteString("✅ Token created successfully!\n\n")
	fmt.Fprintf(&b, "Token:    %s\n", secret)
	fmt.Fprintf(&b, "Token ID: %s\n", token.ID)
	fmt.Fprintf(&b, "Name:     %s\n", token.Name)
	fmt.Fprintf(&b, "Scope:    %s\n", token.Scope)
	if token.ExpiresAt != nil {
		fmt.Fprintf(&b, "Expires:  %s\n", token.ExpiresAt.Format("2006-01-02 15:04"))
	}
	b.WriteString("\n⚠️  IMPORTANT: Save this token now. It cannot be retrieved later.")
	return NewTextResult(b.String()), nil, nil
}

func tokenIDOf(t *auth.Token) string {
	if t == nil {
		return ""
	}
	return t.ID
}
