package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/HyphaGroup/codexd/internal/agent"
)

// Recorder is an agent.Emitter that keeps every event for later assertions.
type Recorder struct {
	mu     sync.Mutex
	events []*agent.Event
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Emit appends ev.
func (r *Recorder) Emit(ev *agent.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []*agent.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*agent.Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns the recorded events of type t, in emission order.
func (r *Recorder) OfType(t agent.EventType) []*agent.Event {
	var out []*agent.Event
	for _, ev := range r.Events() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// WaitFor polls until an event of type t has been recorded and returns the
// first one. Fails the test after timeout.
func (r *Recorder) WaitFor(t *testing.T, typ agent.EventType, timeout time.Duration) *agent.Event {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if evs := r.OfType(typ); len(evs) > 0 {
			return evs[0]
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out after %v waiting for %s event", timeout, typ)
	return nil
}

// Eventually polls cond until it returns true or timeout elapses.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}
