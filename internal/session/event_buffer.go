package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/HyphaGroup/codexd/internal/agent"
	"github.com/HyphaGroup/codexd/internal/metrics"
)

// DefaultEventBufferSize is the per-conversation event capacity
const DefaultEventBufferSize = 1000

// ErrEventsPurged means a poll asked to resume from an event that was
// already overwritten.
var ErrEventsPurged = errors.New("events have been purged")

// BufferedEvent is a UI event with its position in the conversation's log
type BufferedEvent struct {
	Index     int          `json:"index"`
	Timestamp time.Time    `json:"timestamp"`
	Event     *agent.Event `json:"event"`
}

// EventPage is the answer to one poll
type EventPage struct {
	Events    []*BufferedEvent `json:"events"`
	LastIndex int              `json:"last_index"` // -1 before the first event
	Dropped   int              `json:"dropped"`    // overwritten before anyone could read them
}

// EventBuffer keeps the newest events of one conversation in fixed slots.
// Event i lives in slot i%len(slots); indices keep growing across
// relaunches, so the oldest retained index is next-len(slots) once full.
type EventBuffer struct {
	conversationID string

	mu    sync.RWMutex
	slots []*BufferedEvent
	next  int
}

// NewEventBuffer creates a buffer holding up to size events
func NewEventBuffer(conversationID string, size int) *EventBuffer {
	if size <= 0 {
		size = DefaultEventBufferSize
	}
	return &EventBuffer{conversationID: conversationID, slots: make([]*BufferedEvent, size)}
}

// Append stores ev and returns its index
func (b *EventBuffer) Append(ev *agent.Event) int {
	b.mu.Lock()
	idx := b.next
	slot := idx % len(b.slots)
	overwrote := b.slots[slot] != nil
	b.slots[slot] = &BufferedEvent{Index: idx, Timestamp: time.Now(), Event: ev}
	b.next++
	b.mu.Unlock()

	if overwrote {
		metrics.RecordEventDrop(b.conversationID)
	}
	return idx
}

// Since returns the events after index after. -1 asks for everything still
// held. Resuming from an index whose successor was overwritten fails with
// ErrEventsPurged.
func (b *EventBuffer) Since(after int) (EventPage, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	oldest := b.oldest()
	page := EventPage{LastIndex: b.next - 1, Dropped: oldest}

	start := after + 1
	if after == -1 {
		start = oldest
	}
	if start < oldest {
		return page, fmt.Errorf("%w: asked for %d, oldest held is %d", ErrEventsPurged, start, oldest)
	}

	page.Events = []*BufferedEvent{}
	for i := start; i < b.next; i++ {
		page.Events = append(page.Events, b.slots[i%len(b.slots)])
	}
	return page, nil
}

// LastAppend returns when the newest event arrived, or the zero time
func (b *EventBuffer) LastAppend() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.next == 0 {
		return time.Time{}
	}
	return b.slots[(b.next-1)%len(b.slots)].Timestamp
}

// Len returns how many events are held
func (b *EventBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.next - b.oldest()
}

func (b *EventBuffer) oldest() int {
	if b.next > len(b.slots) {
		return b.next - len(b.slots)
	}
	return 0
}
