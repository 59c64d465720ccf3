package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/HyphaGroup/codexd/internal/audit"
	"github.com/HyphaGroup/codexd/internal/terminal"
)

// TerminalParams is the unified params struct for the terminal tool
type TerminalParams struct {
	Action string `json:"action" jsonschema:"create, write, kill, list, resize or run"`
	PtyID  string `json:"pty_id,omitempty" jsonschema:"terminal to act on"`

	// create
	Cwd   string `json:"cwd,omitempty" jsonschema:"working directory; defaults to home"`
	Shell string `json:"shell,omitempty" jsonschema:"shell binary; defaults to the configured shell, then $SHELL"`
	Mode  string `json:"mode,omitempty" jsonschema:"pty or pipe"`

	// create, resize
	Cols uint16 `json:"cols,omitempty"`
	Rows uint16 `json:"rows,omitempty"`

	// write
	Data string `json:"data,omitempty" jsonschema:"bytes written to the terminal input as-is"`

	// run
	Command string `json:"command,omitempty" jsonschema:"one-shot shell command"`
}

var terminalActions = []string{"create", "write", "kill", "list", "resize", "run"}

func (s *Server) handleTerminal(ctx context.Context, request *mcp.CallToolRequest, params TerminalParams) (*mcp.CallToolResult, any, error) {
	if params.Action == "" {
		return nil, nil, missingActionError("terminal", terminalActions)
	}
	if params.Action == "list" {
		if _, err := requireAuth(ctx); err != nil {
			return nil, nil, err
		}
		sessions := s.terminals.List()
		if sessions == nil {
			sessions = []terminal.SessionInfo{}
		}
		return nil, map[string]any{"terminals": sessions}, nil
	}

	if _, err := requireWriteAccess(ctx); err != nil {
		return nil, nil, err
	}

	switch params.Action {
	case "create":
		return s.terminalCreate(ctx, request, params)
	case "write":
		if params.PtyID == "" {
			return nil, nil, fmt.Errorf("pty_id is required")
		}
		if err := s.terminals.Write(params.PtyID, []byte(params.Data)); err != nil {
			return nil, nil, err
		}
		return nil, map[string]any{"pty_id": params.PtyID, "written": len(params.Data)}, nil
	case "kill":
		if params.PtyID == "" {
			return nil, nil, fmt.Errorf("pty_id is required")
		}
		err := s.terminals.Kill(ctx, params.PtyID)
		audit.Record(ctx, audit.OpPtyKill, audit.Event{PtyID: params.PtyID}, err)
		if err != nil {
			return nil, nil, err
		}
		return NewTextResult(fmt.Sprintf("Terminal %s killed.", params.PtyID)), nil, nil
	case "resize":
		if params.PtyID == "" {
			return nil, nil, fmt.Errorf("pty_id is required")
		}
		if params.Cols == 0 || params.Rows == 0 {
			return nil, nil, fmt.Errorf("cols and rows are required")
		}
		if err := s.terminals.Resize(params.PtyID, params.Cols, params.Rows); err != nil {
			return nil, nil, err
		}
		return NewTextResult(fmt.Sprintf("Terminal %s resized to %dx%d.", params.PtyID, params.Cols, params.Rows)), nil, nil
	case "run":
		if params.Command == "" {
			return nil, nil, fmt.Errorf("command is required")
		}
		result, err := terminal.RunCommand(ctx, params.Command, params.Cwd)
		if err != nil {
			return nil, nil, err
		}
		return nil, result, nil
	default:
		return nil, nil, actionError("terminal", params.Action, terminalActions)
	}
}

func (s *Server) terminalCreate(ctx context.Context, request *mcp.CallToolRequest, params TerminalParams) (*mcp.CallToolResult, any, error) {
	mode := terminal.Mode(params.Mode)
	if mode != "" && mode != terminal.ModePTY && mode != terminal.ModePipe {
		return nil, nil, fmt.Errorf("invalid mode %q: must be %q or %q", params.Mode, terminal.ModePTY, terminal.ModePipe)
	}

	// Subscribe under a preassigned id so the first prompt is pushed too.
	id := terminal.NewID()
	s.subscribe(request, id)

	info, err := s.terminals.Create(ctx, terminal.CreateOptions{
		ID:    id,
		Cwd:   params.Cwd,
		Shell: params.Shell,
		Mode:  mode,
		Cols:  params.Cols,
		Rows:  params.Rows,
	})
	audit.Record(ctx, audit.OpPtyCreate, audit.Event{PtyID: id, Details: map[string]any{"shell": params.Shell, "mode": params.Mode}}, err)
	if err != nil {
		if s.pusher != nil {
			s.pusher.Forget(id)
		}
		return nil, nil, err
	}
	return nil, info, nil
}
