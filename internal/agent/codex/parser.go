package codex

import (
	"github.com/HyphaGroup/codexd/internal/agent"
)

// Parser converts codex messages for one conversation process into UI
// events. It owns the process's StreamParseCache and must be driven by a
// single goroutine.
type Parser struct {
	conversationID string
	cache          *StreamParseCache
}

// NewParser creates a parser for conversationID with an empty cache
func NewParser(conversationID string) *Parser {
	return &Parser{
		conversationID: conversationID,
		cache:          NewStreamParseCache(),
	}
}

// Cache exposes the parser's delta cache
func (p *Parser) Cache() *StreamParseCache {
	return p.cache
}

// ParseLine decodes and parses one stdout line
func (p *Parser) ParseLine(line []byte) ([]*agent.Event, *agent.ApprovalRequest) {
	return p.Parse(Decode(line))
}

// Parse returns the events for msg. When msg is an approval request the
// request is also returned so the caller can register it before emitting.
func (p *Parser) Parse(msg Message) ([]*agent.Event, *agent.ApprovalRequest) {
	switch m := msg.(type) {
	case *ApprovalMessage:
		req := m.Request
		ev := p.event(agent.EventApprovalRequest)
		ev.Approval = &req
		ev.Title = req.Title
		return []*agent.Event{ev}, &req

	case *ItemStreamingMessage:
		if m.Item.DeltaText == "" {
			return nil, nil
		}
		return []*agent.Event{p.textEvent(m.Item.Type, m.Item.DeltaText)}, nil

	case *ItemUpdateMessage:
		return p.parseItem(m), nil

	case *TurnFailedMessage:
		ev := p.event(agent.EventStreamError)
		ev.Text = m.Message
		return []*agent.Event{ev}, nil

	case *ErrorMessage:
		ev := p.event(agent.EventStreamError)
		ev.Text = m.Message
		return []*agent.Event{ev}, nil

	case *RawTextMessage:
		ev := p.event(agent.EventStreamToken)
		ev.Text = m.Text
		return []*agent.Event{ev}, nil
	}

	// UnrecognizedMessage and anything unknown
	return nil, nil
}

func (p *Parser) parseItem(m *ItemUpdateMessage) []*agent.Event {
	item := m.Item

	switch item.Type {
	case ItemReasoning, ItemAgentMessage, ItemMessage:
		delta := p.cache.Delta(item.ID, item.Text, m.Terminal())
		if delta == "" {
			return nil
		}
		return []*agent.Event{p.textEvent(item.Type, delta)}

	case ItemCommandExecution:
		terminalID := item.ID
		if terminalID == "" {
			terminalID = p.conversationID + "-command"
		}

		out := p.event(agent.EventTerminalOutput)
		out.TerminalID = terminalID
		out.Command = item.Command
		out.Output = item.AggregatedOut
		if terminalStatus(item.Status) {
			code := -1
			if item.ExitCode != nil {
				code = *item.ExitCode
			}
			out.ExitCode = agent.IntPtr(code)
		}

		call := p.event(agent.EventToolCall)
		call.Title = item.Command
		call.Status = MapStatus(item.Status)
		call.Output = item.AggregatedOut
		return []*agent.Event{out, call}

	case ItemMCPToolCall:
		call := p.event(agent.EventToolCall)
		call.Title = item.Server + ":" + item.Tool
		call.Status = MapStatus(item.Status)
		if item.HasResult {
			call.Output = item.Result
		} else if item.HasError {
			call.Output = item.Error
		}
		return []*agent.Event{call}

	case ItemFileChange:
		call := p.event(agent.EventToolCall)
		call.Title = ItemFileChange
		call.Status = MapStatus(item.Status)
		call.Output = item.Changes
		return []*agent.Event{call}
	}

	return nil
}

// textEvent routes reasoning text to thinking-delta and everything else to
// stream-delta.
func (p *Parser) textEvent(itemType, text string) *agent.Event {
	t := agent.EventStreamDelta
	if itemType == ItemReasoning {
		t = agent.EventThinkingDelta
	}
	ev := p.event(t)
	ev.Text = text
	return ev
}

func (p *Parser) event(t agent.EventType) *agent.Event {
	return agent.NewEvent(t, p.conversationID)
}
