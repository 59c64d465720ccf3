package codex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HyphaGroup/codexd/internal/agent"
)

func parseAll(t *testing.T, p *Parser, lines ...string) []*agent.Event {
	t.Helper()
	var out []*agent.Event
	for _, line := range lines {
		evs, _ := p.ParseLine([]byte(line))
		out = append(out, evs...)
	}
	return out
}

func TestParser_MessageDeltas(t *testing.T) {
	p := NewParser("c1")

	evs := parseAll(t, p,
		`{"type":"item.started","item":{"id":"m","type":"agent_message","text":"Hel"}}`,
		`{"type":"item.updated","item":{"id":"m","type":"agent_message","text":"Hello"}}`,
		`{"type":"item.completed","item":{"id":"m","type":"agent_message","text":"Hello world"}}`,
	)

	require.Len(t, evs, 3)
	var text string
	for _, ev := range evs {
		assert.Equal(t, agent.EventStreamDelta, ev.Type)
		assert.Equal(t, "c1", ev.ConversationID)
		text += ev.Text
	}
	assert.Equal(t, "Hello world", text)
	assert.Equal(t, 0, p.Cache().Len())
}

func TestParser_ReasoningBecomesThinking(t *testing.T) {
	p := NewParser("c1")

	evs := parseAll(t, p,
		`{"type":"item.updated","item":{"id":"r","type":"Reasoning","text":"Let me"}}`,
		`{"type":"item.streaming","item":{"id":"r","type":"reasoning","delta":{"text":" think"}}}`,
		`{"type":"item.streaming","item":{"id":"m","type":"message","delta":{"text":"ok"}}}`,
	)

	require.Len(t, evs, 3)
	assert.Equal(t, agent.EventThinkingDelta, evs[0].Type)
	assert.Equal(t, "Let me", evs[0].Text)
	assert.Equal(t, agent.EventThinkingDelta, evs[1].Type)
	assert.Equal(t, " think", evs[1].Text)
	assert.Equal(t, agent.EventStreamDelta, evs[2].Type)
	assert.Equal(t, "ok", evs[2].Text)
}

func TestParser_EmptyStreamingDeltaDropped(t *testing.T) {
	p := NewParser("c1")
	evs := parseAll(t, p, `{"type":"item.streaming","item":{"id":"m","type":"message","delta":{"text":""}}}`)
	assert.Empty(t, evs)
}

func TestParser_CompletedThenReusedID(t *testing.T) {
	p := NewParser("c1")

	evs := parseAll(t, p,
		`{"type":"item.updated","item":{"id":"a","type":"message","text":"abc"}}`,
		`{"type":"item.completed","item":{"id":"a","type":"message","text":"abcd"}}`,
		`{"type":"item.updated","item":{"id":"a","type":"message","text":"abcd"}}`,
	)

	require.Len(t, evs, 3)
	assert.Equal(t, "d", evs[1].Text)
	assert.Equal(t, "abcd", evs[2].Text)
}

func TestParser_CommandExecution(t *testing.T) {
	tests := []struct {
		name       string
		line       string
		terminalID string
		command    string
		exitCode   *int
		status     agent.ToolStatus
	}{
		{
			name:       "in progress has no exit code",
			line:       `{"type":"item.started","item":{"id":"x1","type":"command_execution","command":"ls","aggregated_output":""}}`,
			terminalID: "x1",
			command:    "ls",
			status:     agent.ToolStatusRunning,
		},
		{
			name:       "completed carries exit code",
			line:       `{"type":"item.completed","item":{"id":"x1","type":"command_execution","command":"ls","aggregated_output":"a\nb","status":"completed","exit_code":0}}`,
			terminalID: "x1",
			command:    "ls",
			exitCode:   agent.IntPtr(0),
			status:     agent.ToolStatusDone,
		},
		{
			name:       "failed without exit code defaults to -1",
			line:       `{"type":"item.completed","item":{"type":"command_execution","status":"FAILED"}}`,
			terminalID: "c1-command",
			command:    "command",
			exitCode:   agent.IntPtr(-1),
			status:     agent.ToolStatusError,
		},
		{
			name:       "declined maps to error",
			line:       `{"type":"item.updated","item":{"id":"x2","type":"command_execution","command":"rm -rf /","status":"declined","exit_code":1}}`,
			terminalID: "x2",
			command:    "rm -rf /",
			exitCode:   agent.IntPtr(1),
			status:     agent.ToolStatusError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evs := parseAll(t, NewParser("c1"), tt.line)
			require.Len(t, evs, 2)

			out, call := evs[0], evs[1]
			assert.Equal(t, agent.EventTerminalOutput, out.Type)
			assert.Equal(t, tt.terminalID, out.TerminalID)
			assert.Equal(t, tt.command, out.Command)
			assert.Equal(t, tt.exitCode, out.ExitCode)

			assert.Equal(t, agent.EventToolCall, call.Type)
			assert.Equal(t, tt.command, call.Title)
			assert.Equal(t, tt.status, call.Status)
			assert.Equal(t, out.Output, call.Output)
		})
	}
}

func TestParser_MCPToolCall(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		title  string
		output string
		status agent.ToolStatus
	}{
		{
			name:   "result string",
			line:   `{"type":"item.completed","item":{"type":"mcp_tool_call","server":"fs","tool":"read","status":"completed","result":"contents"}}`,
			title:  "fs:read",
			output: "contents",
			status: agent.ToolStatusDone,
		},
		{
			name:   "error object when no result",
			line:   `{"type":"item.completed","item":{"type":"mcp_tool_call","status":"failed","error":{"message":"boom"}}}`,
			title:  "mcp:tool",
			output: "{\n  \"message\": \"boom\"\n}",
			status: agent.ToolStatusError,
		},
		{
			name:   "null result renders empty",
			line:   `{"type":"item.started","item":{"type":"mcp_tool_call","server":"s","tool":"t","result":null}}`,
			title:  "s:t",
			output: "",
			status: agent.ToolStatusRunning,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evs := parseAll(t, NewParser("c1"), tt.line)
			require.Len(t, evs, 1)
			assert.Equal(t, agent.EventToolCall, evs[0].Type)
			assert.Equal(t, tt.title, evs[0].Title)
			assert.Equal(t, tt.output, evs[0].Output)
			assert.Equal(t, tt.status, evs[0].Status)
		})
	}
}

func TestParser_FileChange(t *testing.T) {
	evs := parseAll(t, NewParser("c1"),
		`{"type":"item.completed","item":{"type":"file_change","status":"completed","changes":[{"path":"a.go","kind":"add"}]}}`)

	require.Len(t, evs, 1)
	assert.Equal(t, "file_change", evs[0].Title)
	assert.Equal(t, agent.ToolStatusDone, evs[0].Status)
	assert.Equal(t, "[\n  {\n    \"kind\": \"add\",\n    \"path\": \"a.go\"\n  }\n]", evs[0].Output)
}

func TestParser_Errors(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{`{"type":"turn.failed","error":{"message":"rate limited"}}`, "rate limited"},
		{`{"type":"turn.failed","error":{"error":"bad request"}}`, "bad request"},
		{`{"type":"turn.failed"}`, "Turn failed"},
		{`{"type":"error","message":"stream closed"}`, "stream closed"},
		{`{"type":"error"}`, "Unknown error"},
	}

	for _, tt := range tests {
		evs := parseAll(t, NewParser("c1"), tt.line)
		require.Len(t, evs, 1, tt.line)
		assert.Equal(t, agent.EventStreamError, evs[0].Type)
		assert.Equal(t, tt.want, evs[0].Text)
	}
}

func TestParser_UnrecognizedDropped(t *testing.T) {
	evs := parseAll(t, NewParser("c1"),
		`{"type":"turn.started"}`,
		`{"type":"item.completed","item":{"type":"todo_list"}}`,
		`[1,2,3]`,
		`null`,
	)
	assert.Empty(t, evs)
}

func TestParser_RawTextForwarded(t *testing.T) {
	evs := parseAll(t, NewParser("c1"), `Reading prompt from stdin...`)
	require.Len(t, evs, 1)
	assert.Equal(t, agent.EventStreamToken, evs[0].Type)
	assert.Equal(t, "Reading prompt from stdin...", evs[0].Text)
}

func TestParser_ApprovalDetection(t *testing.T) {
	tests := []struct {
		name  string
		line  string
		want  *agent.ApprovalRequest
		drops bool
	}{
		{
			name: "type with request_id",
			line: `{"type":"exec_approval_request","request_id":"r1","title":"Run ls","description":"ls -la"}`,
			want: &agent.ApprovalRequest{RequestID: "r1", Title: "Run ls", Description: "ls -la"},
		},
		{
			name: "method with camel requestId and params",
			line: `{"method":"ApplyPatchApproval","requestId":"r2","params":{"file":"a.go"}}`,
			want: &agent.ApprovalRequest{RequestID: "r2", Title: "ApplyPatchApproval", Description: "{\n  \"file\": \"a.go\"\n}"},
		},
		{
			name: "id fallback and default title",
			line: `{"type":"approval","id":"r3","description":null}`,
			want: &agent.ApprovalRequest{RequestID: "r3", Title: "Approval requested", Description: ""},
		},
		{
			name: "whole event as description",
			line: `{"type":"approval","id":"r4"}`,
			want: &agent.ApprovalRequest{RequestID: "r4", Title: "Approval requested", Description: "{\n  \"id\": \"r4\",\n  \"type\": \"approval\"\n}"},
		},
		{
			name:  "numeric id is not a request id",
			line:  `{"type":"approval","id":7}`,
			drops: true,
		},
		{
			name:  "empty id",
			line:  `{"type":"approval","request_id":""}`,
			drops: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evs, req := NewParser("c1").ParseLine([]byte(tt.line))
			if tt.drops {
				assert.Nil(t, req)
				assert.Empty(t, evs)
				return
			}
			require.NotNil(t, req)
			assert.Equal(t, tt.want, req)
			require.Len(t, evs, 1)
			assert.Equal(t, agent.EventApprovalRequest, evs[0].Type)
			assert.Equal(t, tt.want, evs[0].Approval)
		})
	}
}

func TestParser_ApprovalShortCircuitsTaxonomy(t *testing.T) {
	// An item event whose type mentions approval is handled as an approval only.
	evs, req := NewParser("c1").ParseLine([]byte(
		`{"type":"item.approval","id":"r9","item":{"id":"m","type":"message","text":"hi"}}`))

	require.NotNil(t, req)
	require.Len(t, evs, 1)
	assert.Equal(t, agent.EventApprovalRequest, evs[0].Type)
}

func TestMapStatus(t *testing.T) {
	assert.Equal(t, agent.ToolStatusDone, MapStatus("completed"))
	assert.Equal(t, agent.ToolStatusError, MapStatus("failed"))
	assert.Equal(t, agent.ToolStatusError, MapStatus("declined"))
	assert.Equal(t, agent.ToolStatusRunning, MapStatus("in_progress"))
	assert.Equal(t, agent.ToolStatusRunning, MapStatus(""))
}

func TestEncodeApprovalResponse(t *testing.T) {
	line, err := EncodeApprovalResponse("r1", true)
	require.NoError(t, err)
	assert.Equal(t, "{\"request_id\":\"r1\",\"approved\":true}\n", string(line))
}
