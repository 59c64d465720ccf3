package session

import (
	"sort"
	"sync"
	"time"

	"github.com/HyphaGroup/codexd/internal/agent/codex"
	"github.com/HyphaGroup/codexd/internal/metrics"
)

// PendingApproval is an approval request waiting for a human decision
type PendingApproval struct {
	RequestID      string    `json:"request_id"`
	ConversationID string    `json:"conversation_id"`
	Title          string    `json:"title,omitempty"`
	Description    string    `json:"description,omitempty"`
	CreatedAt      time.Time `json:"created_at"`

	proc *Process
}

// Broker routes approval decisions back into the issuing process's stdin.
// Lock order is registry, then broker.
type Broker struct {
	registry *Registry

	mu      sync.Mutex
	pending map[string]*PendingApproval
}

// NewBroker creates a broker resolving conversations through registry
func NewBroker(registry *Registry) *Broker {
	return &Broker{
		registry: registry,
		pending:  make(map[string]*PendingApproval),
	}
}

// Register records a pending approval issued by p. It fails with
// ErrApprovalTargetNotRunning when p is no longer the conversation's live
// process, so no approval can outlive its process.
func (b *Broker) Register(p *Process, pa *PendingApproval) error {
	pa.ConversationID = p.ConversationID
	pa.proc = p
	if pa.CreatedAt.IsZero() {
		pa.CreatedAt = time.Now()
	}

	ok := b.registry.ifCurrent(p.ConversationID, p, func() {
		b.mu.Lock()
		b.pending[pa.RequestID] = pa
		n := len(b.pending)
		b.mu.Unlock()
		metrics.SetPendingApprovals(float64(n))
	})
	if !ok {
		return ErrApprovalTargetNotRunning
	}
	return nil
}

// Respond answers the approval requestID. The pending entry is consumed
// whatever the outcome.
func (b *Broker) Respond(requestID string, approved bool) error {
	b.mu.Lock()
	pa, ok := b.pending[requestID]
	if ok {
		delete(b.pending, requestID)
	}
	n := len(b.pending)
	b.mu.Unlock()

	if !ok {
		metrics.RecordApproval("not_found")
		return ErrApprovalNotFound
	}
	metrics.SetPendingApprovals(float64(n))

	// The decision only goes to the process that asked; a relaunch of the
	// conversation must not receive it.
	p := pa.proc
	if !b.registry.ifCurrent(pa.ConversationID, p, func() {}) || p.HasExited() {
		metrics.RecordApproval("not_running")
		return ErrApprovalTargetNotRunning
	}
	input := p.Input()
	if input == nil {
		metrics.RecordApproval("no_input")
		return ErrApprovalInputUnavailable
	}

	line, err := codex.EncodeApprovalResponse(requestID, approved)
	if err != nil {
		return &IOError{Op: "encode approval response", Err: err}
	}
	if err := input.WriteLine(line); err != nil {
		metrics.RecordApproval("io_error")
		return &IOError{Op: "write approval response", Err: err}
	}

	if approved {
		metrics.RecordApproval("approved")
	} else {
		metrics.RecordApproval("denied")
	}
	return nil
}

// Purge drops every pending approval of conversationID and returns how
// many were removed.
func (b *Broker) Purge(conversationID string) int {
	b.mu.Lock()
	removed := 0
	for id, pa := range b.pending {
		if pa.ConversationID == conversationID {
			delete(b.pending, id)
			removed++
		}
	}
	n := len(b.pending)
	b.mu.Unlock()

	if removed > 0 {
		metrics.SetPendingApprovals(float64(n))
	}
	return removed
}

// Get returns the pending approval for requestID
func (b *Broker) Get(requestID string) (*PendingApproval, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	pa, ok := b.pending[requestID]
	if !ok {
		return nil, false
	}
	cp := *pa
	return &cp, true
}

// List returns pending approvals, oldest first. An empty conversationID
// lists all of them.
func (b *Broker) List(conversationID string) []PendingApproval {
	b.mu.Lock()
	out := make([]PendingApproval, 0, len(b.pending))
	for _, pa := range b.pending {
		if conversationID == "" || pa.ConversationID == conversationID {
			out = append(out, *pa)
		}
	}
	b.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].RequestID < out[j].RequestID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Len returns the number of pending approvals
func (b *Broker) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
