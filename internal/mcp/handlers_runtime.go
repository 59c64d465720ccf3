package mcp

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/HyphaGroup/codexd/internal/agent/codex"
	"github.com/HyphaGroup/codexd/internal/audit"
	"github.com/HyphaGroup/codexd/internal/config"
)

// RuntimeConfigParams is the unified params struct for the runtime_config tool
type RuntimeConfigParams struct {
	Action string `json:"action" jsonschema:"get or set"`

	// set; omitted fields keep their current value
	Mode             *string `json:"mode,omitempty" jsonschema:"fast or smart"`
	Model            *string `json:"model,omitempty"`
	Profile          *string `json:"profile,omitempty"`
	Sandbox          *string `json:"sandbox,omitempty" jsonschema:"read-only, workspace-write or danger-full-access"`
	ApprovalPolicy   *string `json:"approval_policy,omitempty" jsonschema:"untrusted, on-failure, on-request or never"`
	Yolo             *bool   `json:"yolo,omitempty" jsonschema:"bypass approvals and sandbox"`
	WebSearch        *bool   `json:"web_search,omitempty"`
	SkipGitRepoCheck *bool   `json:"skip_git_repo_check,omitempty"`
	Cwd              *string `json:"cwd,omitempty"`
	ExtraArgs        *string `json:"extra_args,omitempty" jsonschema:"extra codex flags; quotes group words"`
}

func (p RuntimeConfigParams) patch() config.RuntimePatch {
	return config.RuntimePatch{
		Mode:             p.Mode,
		Model:            p.Model,
		Profile:          p.Profile,
		Sandbox:          p.Sandbox,
		ApprovalPolicy:   p.ApprovalPolicy,
		Yolo:             p.Yolo,
		WebSearch:        p.WebSearch,
		SkipGitRepoCheck: p.SkipGitRepoCheck,
		Cwd:              p.Cwd,
		ExtraArgs:        p.ExtraArgs,
	}
}

var runtimeConfigActions = []string{"get", "set"}

// RuntimeStatus is returned by runtime_config get
type RuntimeStatus struct {
	Settings      config.RuntimeSettings `json:"settings"`
	CodexVersion  string                 `json:"codex_version,omitempty"`
	CodexError    string                 `json:"codex_error,omitempty"`
	ServerVersion string                 `json:"server_version"`
}

func (s *Server) handleRuntimeConfig(ctx context.Context, _ *mcp.CallToolRequest, params RuntimeConfigParams) (*mcp.CallToolResult, any, error) {
	switch params.Action {
	case "":
		return nil, nil, missingActionError("runtime_config", runtimeConfigActions)
	case "get":
		if _, err := requireAuth(ctx); err != nil {
			return nil, nil, err
		}
		settings := s.runtime.Snapshot()
		status := &RuntimeStatus{Settings: settings, ServerVersion: s.version}

		checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if v, err := codex.Version(checkCtx, settings.Binary); err != nil {
			status.CodexError = err.Error()
		} else {
			status.CodexVersion = v
		}
		return nil, status, nil
	case "set":
		if _, err := requireWriteAccess(ctx); err != nil {
			return nil, nil, err
		}
		patch := params.patch()
		settings, err := s.runtime.Update(patch)
		audit.Record(ctx, audit.OpConfigUpdate, audit.Event{Details: map[string]any{"patch": patch}}, err)
		if err != nil {
			return nil, nil, err
		}
		return nil, settings, nil
	default:
		return nil, nil, actionError("runtime_config", params.Action, runtimeConfigActions)
	}
}
