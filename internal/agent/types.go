// Package agent provides the normalized event model shared by the codex
// conversation engine and the terminal subsystem.
//
// types.go - Shared types for UI event streaming
//
// This file contains:
// - EventType and Event for normalized event streaming
// - ToolStatus for tool-call progress
// - ApprovalRequest describing an agent-initiated pause
//
// Event provides a common format that the protocol parser and the PTY
// readers convert their native output into. Consumers (the MCP server,
// the event buffer, the history recorder) never see raw agent output.

package agent

import "time"

// EventType represents the kind of a UI event
type EventType string

const (
	EventThinkingDelta   EventType = "thinking-delta"
	EventStreamDelta     EventType = "stream-delta"
	EventStreamToken     EventType = "stream-token"
	EventProgress        EventType = "progress"
	EventTerminalOutput  EventType = "terminal-output"
	EventToolCall        EventType = "tool-call"
	EventApprovalRequest EventType = "approval-request"
	EventStreamEnd       EventType = "stream-end"
	EventStreamError     EventType = "stream-error"
	EventPtyData         EventType = "pty-data"
	EventPtyExit         EventType = "pty-exit"
)

// IsTerminal reports whether the event closes a process's event stream
func (t EventType) IsTerminal() bool {
	return t == EventStreamEnd || t == EventPtyExit
}

// ToolStatus is the normalized progress of a tool call
type ToolStatus string

const (
	ToolStatusRunning ToolStatus = "running"
	ToolStatusDone    ToolStatus = "done"
	ToolStatusError   ToolStatus = "error"
)

// Stream origins for pty-data events
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)

// ApprovalRequest is an agent-initiated request for human authorization
type ApprovalRequest struct {
	RequestID   string `json:"requestId"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Event is a single normalized UI event.
// ConversationID is set for conversation events, PtyID for terminal events.
type Event struct {
	Type           EventType `json:"type"`
	ConversationID string    `json:"conversationId,omitempty"`
	PtyID          string    `json:"ptyId,omitempty"`

	// Text carries deltas, raw tokens, progress text and error messages
	Text string `json:"text,omitempty"`

	// Terminal output fields
	TerminalID string `json:"terminalId,omitempty"`
	Command    string `json:"command,omitempty"`
	ExitCode   *int   `json:"exitCode,omitempty"`

	// Tool call fields
	Title  string     `json:"title,omitempty"`
	Status ToolStatus `json:"status,omitempty"`
	Output string     `json:"output,omitempty"`

	Approval *ApprovalRequest `json:"approval,omitempty"`

	// Stream end fields
	Success   bool `json:"success,omitempty"`
	Cancelled bool `json:"cancelled,omitempty"`

	// PTY data fields
	Stream string `json:"stream,omitempty"`
	Data   string `json:"data,omitempty"`

	Timestamp int64 `json:"timestamp"`
}

// NewEvent creates an event of the given type stamped with the current time
func NewEvent(t EventType, conversationID string) *Event {
	return &Event{
		Type:           t,
		ConversationID: conversationID,
		Timestamp:      time.Now().UnixMilli(),
	}
}

// IntPtr returns a pointer to v
func IntPtr(v int) *int {
	return &v
}
