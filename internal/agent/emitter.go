package agent

import "sync"

// Emitter receives normalized events. Implementations must be safe for
// concurrent use: reader and monitor goroutines emit independently.
type Emitter interface {
	Emit(ev *Event)
}

// EmitterFunc adapts a function to the Emitter interface
type EmitterFunc func(ev *Event)

// Emit calls f(ev)
func (f EmitterFunc) Emit(ev *Event) {
	f(ev)
}

// Discard drops every event
var Discard Emitter = EmitterFunc(func(*Event) {})

// MultiEmitter fans events out to a dynamic set of sinks
type MultiEmitter struct {
	mu    sync.RWMutex
	sinks []Emitter
}

// NewMultiEmitter creates a fan-out emitter over the given sinks
func NewMultiEmitter(sinks ...Emitter) *MultiEmitter {
	return &MultiEmitter{sinks: sinks}
}

// Add registers another sink
func (m *MultiEmitter) Add(sink Emitter) {
	if sink == nil {
		return
	}
	m.mu.Lock()
	m.sinks = append(m.sinks, sink)
	m.mu.Unlock()
}

// Emit forwards ev to every sink in registration order
func (m *MultiEmitter) Emit(ev *Event) {
	m.mu.RLock()
	sinks := m.sinks
	m.mu.RUnlock()

	for _, s := range sinks {
		s.Emit(ev)
	}
}
