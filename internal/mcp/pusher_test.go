package mcp

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	mcp_sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HyphaGroup/codexd/internal/agent"
	"github.com/HyphaGroup/codexd/internal/testutil"
)

type fakeSink struct {
	mu     sync.Mutex
	events []*agent.Event
	fail   bool
	block  chan struct{}
}

func (f *fakeSink) Log(_ context.Context, params *mcp_sdk.LoggingMessageParams) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("connection closed")
	}
	if params.Logger != EventLoggerName {
		return nil
	}
	if ev, ok := params.Data.(*agent.Event); ok {
		f.events = append(f.events, ev)
	}
	return nil
}

func (f *fakeSink) received() []*agent.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*agent.Event(nil), f.events...)
}

func newPusher(t *testing.T, size int) *EventPusher {
	t.Helper()
	p := NewEventPusher(size)
	t.Cleanup(p.Close)
	return p
}

func TestEventPusher_DeliversBySubscription(t *testing.T) {
	p := newPusher(t, 0)
	a, b := &fakeSink{}, &fakeSink{}
	p.Subscribe("c1", a)
	p.Subscribe("pty-1", b)

	delta := agent.NewEvent(agent.EventStreamDelta, "c1")
	delta.Text = "hi"
	p.Emit(delta)
	other := agent.NewEvent(agent.EventStreamDelta, "c2")
	p.Emit(other)
	data := agent.NewEvent(agent.EventPtyData, "")
	data.PtyID = "pty-1"
	p.Emit(data)

	testutil.Eventually(t, 5*time.Second, func() bool {
		return len(a.received()) == 1 && len(b.received()) == 1
	}, "both sinks receive their event")
	assert.Equal(t, "hi", a.received()[0].Text)
	assert.Equal(t, "pty-1", b.received()[0].PtyID)
}

func TestEventPusher_TerminalEventEndsSubscription(t *testing.T) {
	p := newPusher(t, 0)
	sink := &fakeSink{}
	p.Subscribe("c1", sink)
	assert.Equal(t, 1, p.Subscribers("c1"))

	p.Emit(agent.NewEvent(agent.EventStreamEnd, "c1"))
	testutil.Eventually(t, 5*time.Second, func() bool {
		return len(sink.received()) == 1
	}, "stream-end delivered")
	assert.Equal(t, 0, p.Subscribers("c1"))

	p.Emit(agent.NewEvent(agent.EventStreamDelta, "c1"))
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, sink.received(), 1)
}

func TestEventPusher_FailingSinkIsDropped(t *testing.T) {
	p := newPusher(t, 0)
	bad := &fakeSink{fail: true}
	p.Subscribe("c1", bad)
	p.Subscribe("c2", bad)

	p.Emit(agent.NewEvent(agent.EventStreamDelta, "c1"))
	testutil.Eventually(t, 5*time.Second, func() bool {
		return p.Subscribers("c1") == 0 && p.Subscribers("c2") == 0
	}, "failing sink unsubscribed everywhere")
}

func TestEventPusher_ForgetAndUnsubscribe(t *testing.T) {
	p := newPusher(t, 0)
	a, b := &fakeSink{}, &fakeSink{}
	p.Subscribe("c1", a)
	p.Subscribe("c1", b)
	p.Subscribe("c2", a)
	p.Subscribe("", a)
	p.Subscribe("c3", nil)

	assert.Equal(t, 2, p.Subscribers("c1"))
	assert.Equal(t, 0, p.Subscribers(""))
	assert.Equal(t, 0, p.Subscribers("c3"))

	p.Unsubscribe(a)
	assert.Equal(t, 1, p.Subscribers("c1"))
	assert.Equal(t, 0, p.Subscribers("c2"))

	p.Forget("c1")
	assert.Equal(t, 0, p.Subscribers("c1"))
}

func TestEventPusher_FullQueueDrops(t *testing.T) {
	p := newPusher(t, 1)
	sink := &fakeSink{block: make(chan struct{})}
	p.Subscribe("c1", sink)

	// The first event occupies the delivery goroutine, the second fills
	// the queue and the rest are dropped without blocking.
	for i := 0; i < 10; i++ {
		p.Emit(agent.NewEvent(agent.EventStreamDelta, "c1"))
	}
	close(sink.block)

	testutil.Eventually(t, 5*time.Second, func() bool {
		return len(sink.received()) >= 1
	}, "queued events delivered")
	time.Sleep(100 * time.Millisecond)
	assert.LessOrEqual(t, len(sink.received()), 2)
}

func TestEventPusher_EmitAfterClose(t *testing.T) {
	p := NewEventPusher(1)
	p.Close()
	p.Close()
	require.NotPanics(t, func() {
		p.Emit(agent.NewEvent(agent.EventStreamDelta, "c1"))
		p.Emit(agent.NewEvent(agent.EventStreamDelta, "c1"))
	})
}
