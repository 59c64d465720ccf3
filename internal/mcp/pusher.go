package mcp

import (
	"context"
	"sync"
	"time"

	mcp_sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/HyphaGroup/codexd/internal/agent"
	"github.com/HyphaGroup/codexd/internal/logger"
	"github.com/HyphaGroup/codexd/internal/metrics"
)

// EventLoggerName is the logger name on pushed event notifications
const EventLoggerName = "codexd.events"

const pushTimeout = 5 * time.Second

// LogSink receives logging notifications. *mcp.ServerSession implements it.
type LogSink interface {
	Log(ctx context.Context, params *mcp_sdk.LoggingMessageParams) error
}

// EventPusher forwards UI events to the MCP clients that started the
// conversation or terminal they belong to. Events are delivered as
// notifications/message with the event as data; clients must set a logging
// level to receive them.
//
// Emit never blocks: events queue for a single delivery goroutine and are
// dropped when the queue is full. Polling the conversation event buffer is
// the lossless path.
type EventPusher struct {
	mu   sync.Mutex
	subs map[string]map[LogSink]struct{}

	queue     chan *agent.Event
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewEventPusher starts a pusher with room for queueSize undelivered events
func NewEventPusher(queueSize int) *EventPusher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	p := &EventPusher{
		subs:  make(map[string]map[LogSink]struct{}),
		queue: make(chan *agent.Event, queueSize),
		done:  make(chan struct{}),
	}
	p.wg.Add(1)
	go p.run()
	return p
}

// Subscribe sends future events for key (a conversation or pty id) to sink
func (p *EventPusher) Subscribe(key string, sink LogSink) {
	if key == "" || sink == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	set, ok := p.subs[key]
	if !ok {
		set = make(map[LogSink]struct{})
		p.subs[key] = set
	}
	set[sink] = struct{}{}
}

// Unsubscribe removes sink from every key
func (p *EventPusher) Unsubscribe(sink LogSink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, set := range p.subs {
		delete(set, sink)
		if len(set) == 0 {
			delete(p.subs, key)
		}
	}
}

// Forget drops every subscription to key
func (p *EventPusher) Forget(key string) {
	p.mu.Lock()
	delete(p.subs, key)
	p.mu.Unlock()
}

// Subscribers returns how many sinks follow key
func (p *EventPusher) Subscribers(key string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs[key])
}

// Emit queues ev for delivery
func (p *EventPusher) Emit(ev *agent.Event) {
	select {
	case <-p.done:
		return
	default:
	}

	select {
	case p.queue <- ev:
	default:
		metrics.RecordEventDrop(string(ev.Type))
	}
}

// Close stops delivery. Queued events are discarded.
func (p *EventPusher) Close() {
	p.closeOnce.Do(func() { close(p.done) })
	p.wg.Wait()
}

func (p *EventPusher) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			return
		case ev := <-p.queue:
			p.deliver(ev)
		}
	}
}

func eventKey(ev *agent.Event) string {
	if ev.PtyID != "" {
		return ev.PtyID
	}
	return ev.ConversationID
}

func (p *EventPusher) deliver(ev *agent.Event) {
	key := eventKey(ev)

	p.mu.Lock()
	sinks := make([]LogSink, 0, len(p.subs[key]))
	for s := range p.subs[key] {
		sinks = append(sinks, s)
	}
	if ev.Type.IsTerminal() {
		delete(p.subs, key)
	}
	p.mu.Unlock()

	params := &mcp_sdk.LoggingMessageParams{
		Logger: EventLoggerName,
		Level:  "info",
		Data:   ev,
	}
	for _, s := range sinks {
		ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
		err := s.Log(ctx, params)
		cancel()
		if err != nil {
			logger.Printf("⚠️  Dropping event subscriber for %s: %v", key, err)
			p.Unsubscribe(s)
		}
	}
}
