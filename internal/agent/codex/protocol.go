// Package codex provides the codex CLI integration: the line-delimited JSON
// event protocol, the incremental delta parser, and launch argument building.
//
// protocol.go - Wire protocol for `codex exec --json`
//
// This file contains:
// - Message, a tagged union over the known event shapes
// - Decode, which classifies one stdout line into a Message
// - ApprovalResponse encoding written back on stdin
//
// Codex repeats the full text of an item on every update. The protocol is
// loosely typed, so fields are read leniently: a field of the wrong JSON
// type is treated as absent rather than failing the whole line.

package codex

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/HyphaGroup/codexd/internal/agent"
)

// Event types emitted by codex exec --json
const (
	TypeItemStreaming = "item.streaming"
	TypeItemStarted   = "item.started"
	TypeItemUpdated   = "item.updated"
	TypeItemCompleted = "item.completed"
	TypeTurnFailed    = "turn.failed"
	TypeError         = "error"
)

// Item types carried by item.* events
const (
	ItemReasoning        = "reasoning"
	ItemAgentMessage     = "agent_message"
	ItemMessage          = "message"
	ItemCommandExecution = "command_execution"
	ItemMCPToolCall      = "mcp_tool_call"
	ItemFileChange       = "file_change"
)

const (
	defaultApprovalTitle = "Approval requested"
	defaultTurnFailed    = "Turn failed"
	defaultErrorMessage  = "Unknown error"
)

// Message is one classified line of agent output.
type Message interface {
	isMessage()
}

// ApprovalMessage is an approval-shaped event. It takes precedence over
// every other classification.
type ApprovalMessage struct {
	Request agent.ApprovalRequest
}

// ItemStreamingMessage carries a true incremental delta.
type ItemStreamingMessage struct {
	Item Item
}

// ItemUpdateMessage is item.started, item.updated or item.completed. Text
// fields hold the full text seen so far.
type ItemUpdateMessage struct {
	Type string
	Item Item
}

// Terminal reports whether this is the item's final update.
func (m *ItemUpdateMessage) Terminal() bool {
	return m.Type == TypeItemCompleted
}

// TurnFailedMessage ends a turn with an error.
type TurnFailedMessage struct {
	Message string
}

// ErrorMessage is a protocol-level error event.
type ErrorMessage struct {
	Message string
}

// UnrecognizedMessage is valid JSON of an unknown shape. It is dropped.
type UnrecognizedMessage struct {
	Type string
}

// RawTextMessage is a stdout line that is not JSON.
type RawTextMessage struct {
	Text string
}

func (*ApprovalMessage) isMessage()      {}
func (*ItemStreamingMessage) isMessage() {}
func (*ItemUpdateMessage) isMessage()    {}
func (*TurnFailedMessage) isMessage()    {}
func (*ErrorMessage) isMessage()         {}
func (*UnrecognizedMessage) isMessage()  {}
func (*RawTextMessage) isMessage()       {}

// Item is the lenient view of an event's `item` object.
type Item struct {
	ID            string
	Type          string // lowercased
	Text          string
	DeltaText     string
	Command       string
	AggregatedOut string
	Status        string // lowercased, "in_progress" when absent
	ExitCode      *int
	Server        string
	Tool          string
	Result        string
	HasResult     bool
	Error         string
	HasError      bool
	Changes       string
}

// fields is a JSON object with lazily decoded values.
type fields map[string]json.RawMessage

func (f fields) has(key string) bool {
	_, ok := f[key]
	return ok
}

// str returns the value at key when it is a JSON string.
func (f fields) str(key string) (string, bool) {
	raw, ok := f[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func (f fields) strOr(key, def string) string {
	if s, ok := f.str(key); ok {
		return s
	}
	return def
}

func (f fields) int(key string) (int, bool) {
	raw, ok := f[key]
	if !ok || len(raw) == 0 || raw[0] == '"' {
		return 0, false
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return 0, false
	}
	v, err := n.Int64()
	if err != nil {
		return 0, false
	}
	return int(v), true
}

func (f fields) object(key string) fields {
	raw, ok := f[key]
	if !ok {
		return nil
	}
	var obj fields
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}
	return obj
}

// text renders the value at key for display.
func (f fields) text(key string) (string, bool) {
	raw, ok := f[key]
	if !ok {
		return "", false
	}
	return displayText(raw), true
}

// displayText renders a JSON value for display: strings as-is, null as
// empty, anything else as indented JSON with sorted keys.
func displayText(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return string(raw)
	}
	return string(out)
}

// Decode classifies one line of codex stdout. It never fails: lines that
// are not JSON become RawTextMessage.
func Decode(line []byte) Message {
	var obj fields
	if err := json.Unmarshal(line, &obj); err != nil || obj == nil {
		if json.Valid(line) {
			return &UnrecognizedMessage{}
		}
		return &RawTextMessage{Text: string(line)}
	}

	if req, ok := extractApproval(obj, line); ok {
		return &ApprovalMessage{Request: req}
	}

	eventType, _ := obj.str("type")
	switch eventType {
	case TypeItemStreaming:
		item := decodeItem(obj.object("item"))
		return &ItemStreamingMessage{Item: item}
	case TypeItemStarted, TypeItemUpdated, TypeItemCompleted:
		item := decodeItem(obj.object("item"))
		return &ItemUpdateMessage{Type: eventType, Item: item}
	case TypeTurnFailed:
		msg := defaultTurnFailed
		if errObj := obj.object("error"); errObj != nil {
			key := "error"
			if errObj.has("message") {
				key = "message"
			}
			if s, ok := errObj.str(key); ok {
				msg = s
			}
		}
		return &TurnFailedMessage{Message: msg}
	case TypeError:
		return &ErrorMessage{Message: obj.strOr("message", defaultErrorMessage)}
	default:
		return &UnrecognizedMessage{Type: eventType}
	}
}

// extractApproval detects approval-shaped events: `type` or `method`
// containing "approval" plus a non-empty string request id.
func extractApproval(obj fields, line []byte) (agent.ApprovalRequest, bool) {
	eventType, _ := obj.str("type")
	method, _ := obj.str("method")
	if !strings.Contains(strings.ToLower(eventType), "approval") &&
		!strings.Contains(strings.ToLower(method), "approval") {
		return agent.ApprovalRequest{}, false
	}

	// The first key present decides, even if its value is not a string.
	var requestID string
	for _, key := range []string{"requestId", "request_id", "id"} {
		if obj.has(key) {
			requestID, _ = obj.str(key)
			break
		}
	}
	if requestID == "" {
		return agent.ApprovalRequest{}, false
	}

	titleKey := "method"
	if obj.has("title") {
		titleKey = "title"
	}
	title := obj.strOr(titleKey, defaultApprovalTitle)

	var description string
	switch {
	case obj.has("description"):
		description, _ = obj.text("description")
	case obj.has("params"):
		description, _ = obj.text("params")
	default:
		description = displayText(line)
	}

	return agent.ApprovalRequest{
		RequestID:   requestID,
		Title:       title,
		Description: description,
	}, true
}

func decodeItem(obj fields) Item {
	if obj == nil {
		return Item{Status: "in_progress"}
	}

	item := Item{
		ID:            obj.strOr("id", ""),
		Type:          strings.ToLower(obj.strOr("type", "")),
		Text:          obj.strOr("text", ""),
		Command:       obj.strOr("command", "command"),
		AggregatedOut: obj.strOr("aggregated_output", ""),
		Status:        strings.ToLower(obj.strOr("status", "in_progress")),
		Server:        obj.strOr("server", "mcp"),
		Tool:          obj.strOr("tool", "tool"),
	}
	if delta := obj.object("delta"); delta != nil {
		item.DeltaText = delta.strOr("text", "")
	}
	if code, ok := obj.int("exit_code"); ok {
		item.ExitCode = &code
	}
	item.Result, item.HasResult = obj.text("result")
	item.Error, item.HasError = obj.text("error")
	if obj.has("changes") {
		item.Changes, _ = obj.text("changes")
	}
	return item
}

// ApprovalResponse is the line written to codex stdin to resolve an
// approval request.
type ApprovalResponse struct {
	RequestID string `json:"request_id"`
	Approved  bool   `json:"approved"`
}

// EncodeApprovalResponse returns the newline-terminated response line.
func EncodeApprovalResponse(requestID string, approved bool) ([]byte, error) {
	data, err := json.Marshal(ApprovalResponse{RequestID: requestID, Approved: approved})
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// MapStatus normalizes an item status for tool-call events.
func MapStatus(status string) agent.ToolStatus {
	switch strings.ToLower(status) {
	case "completed":
		return agent.ToolStatusDone
	case "failed", "declined":
		return agent.ToolStatusError
	default:
		return agent.ToolStatusRunning
	}
}

// terminalStatus reports whether a command execution has finished.
func terminalStatus(status string) bool {
	return status == "completed" || status == "failed" || status == "declined"
}
