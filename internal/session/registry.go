package session

import (
	"sort"
	"sync"
)

// Registry maps conversation ids to their live process. Critical sections
// are pure map operations; no I/O happens under the lock.
type Registry struct {
	mu    sync.Mutex
	procs map[string]*Process
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{procs: make(map[string]*Process)}
}

// Put installs p for its conversation. The caller must have removed any
// previous process first; Put returns the one it displaced, if any.
func (r *Registry) Put(p *Process) *Process {
	r.mu.Lock()
	prev := r.procs[p.ConversationID]
	r.procs[p.ConversationID] = p
	r.mu.Unlock()

	if prev != nil {
		prev.markRemoved()
	}
	return prev
}

// Remove takes the process for id out of the registry
func (r *Registry) Remove(id string) (*Process, bool) {
	r.mu.Lock()
	p, ok := r.procs[id]
	if ok {
		delete(r.procs, id)
	}
	r.mu.Unlock()

	if ok {
		p.markRemoved()
	}
	return p, ok
}

// RemoveIf removes id only while it still maps to p. It reports whether p
// was removed, so that a monitor never evicts a replacement process.
func (r *Registry) RemoveIf(id string, p *Process) bool {
	r.mu.Lock()
	cur, ok := r.procs[id]
	if ok && cur == p {
		delete(r.procs, id)
	}
	r.mu.Unlock()

	if ok && cur == p {
		p.markRemoved()
		return true
	}
	return false
}

// Get returns the live process for id
func (r *Registry) Get(id string) (*Process, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.procs[id]
	return p, ok
}

// LookupInput returns the input handle of the live process for id
func (r *Registry) LookupInput(id string) (*InputHandle, error) {
	p, ok := r.Get(id)
	if !ok {
		return nil, ErrProcessNotFound
	}
	if p.Input() == nil {
		return nil, ErrApprovalInputUnavailable
	}
	return p.Input(), nil
}

// ifCurrent runs fn while holding the registry lock, only if id still maps
// to p. fn must not block.
func (r *Registry) ifCurrent(id string, p *Process, fn func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.procs[id]; !ok || cur != p {
		return false
	}
	fn()
	return true
}

// List returns a snapshot of every live process, ordered by conversation id
func (r *Registry) List() []ProcessInfo {
	r.mu.Lock()
	procs := make([]*Process, 0, len(r.procs))
	for _, p := range r.procs {
		procs = append(procs, p)
	}
	r.mu.Unlock()

	infos := make([]ProcessInfo, 0, len(procs))
	for _, p := range procs {
		infos = append(infos, p.Info())
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ConversationID < infos[j].ConversationID
	})
	return infos
}

// Len returns the number of live processes
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.procs)
}

// drain removes every process and returns them, for shutdown
func (r *Registry) drain() []*Process {
	r.mu.Lock()
	procs := make([]*Process, 0, len(r.procs))
	for id, p := range r.procs {
		procs = append(procs, p)
		delete(r.procs, id)
	}
	r.mu.Unlock()

	for _, p := range procs {
		p.markRemoved()
	}
	return procs
}
