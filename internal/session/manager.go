package session

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HyphaGroup/codexd/internal/agent"
	"github.com/HyphaGroup/codexd/internal/agent/codex"
	"github.com/HyphaGroup/codexd/internal/logger"
	"github.com/HyphaGroup/codexd/internal/metrics"
)

const (
	// DefaultDrainTimeout bounds how long the monitor waits for the output
	// readers after the process exits, before emitting the terminal event.
	DefaultDrainTimeout = 2 * time.Second

	maxLineSize = 1024 * 1024
)

// LaunchRequest asks for a new agent process for a conversation
type LaunchRequest struct {
	ConversationID string                 `json:"conversation_id"`
	WorkspaceID    string                 `json:"workspace_id,omitempty"`
	Cwd            string                 `json:"cwd,omitempty"` // overrides the configured working directory
	Prompt         string                 `json:"prompt"`
	History        []codex.HistoryMessage `json:"history,omitempty"`
}

// SpecBuilder turns a launch request into a spawn spec. It is the argument
// builder boundary and must not block.
type SpecBuilder func(req *LaunchRequest) (SpawnSpec, error)

// LaunchObserver is told about every successful launch
type LaunchObserver interface {
	ConversationLaunched(req *LaunchRequest, spec SpawnSpec)
}

// Config configures a Manager
type Config struct {
	BuildSpec       SpecBuilder
	Emitter         agent.Emitter
	Observers       []LaunchObserver
	EventBufferSize int
	DrainTimeout    time.Duration
}

// Manager owns the conversation process registry, the approval broker and
// the per-conversation event buffers. It implements launch, cancel and
// respond_to_approval.
type Manager struct {
	cfg       Config
	registry  *Registry
	approvals *Broker
	locks     *ConversationLocks

	buffersMu sync.RWMutex
	buffers   map[string]*EventBuffer

	closed   atomic.Bool
	monitors sync.WaitGroup
}

// NewManager creates a manager. A nil Emitter discards events.
func NewManager(cfg Config) *Manager {
	if cfg.Emitter == nil {
		cfg.Emitter = agent.Discard
	}
	if cfg.EventBufferSize <= 0 {
		cfg.EventBufferSize = DefaultEventBufferSize
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}

	registry := NewRegistry()
	return &Manager{
		cfg:       cfg,
		registry:  registry,
		approvals: NewBroker(registry),
		locks:     NewConversationLocks(),
		buffers:   make(map[string]*EventBuffer),
	}
}

// Registry exposes the process registry
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Approvals exposes the approval broker
func (m *Manager) Approvals() *Broker {
	return m.approvals
}

// Launch replaces any process running for the conversation with a new one.
// The previous process is killed best-effort; a kill failure does not fail
// the launch. On return the new process is registered.
func (m *Manager) Launch(ctx context.Context, req *LaunchRequest) (*ProcessInfo, error) {
	if m.closed.Load() {
		return nil, ErrManagerClosed
	}
	if req.ConversationID == "" {
		return nil, fmt.Errorf("conversation_id is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	spec, err := m.cfg.BuildSpec(req)
	if err != nil {
		return nil, fmt.Errorf("failed to build launch arguments: %w", err)
	}

	cid := req.ConversationID
	m.locks.Lock(cid)
	defer m.locks.Unlock(cid)

	if old, ok := m.registry.Remove(cid); ok {
		logger.Printf("🔁 Replacing running process for conversation %s (pid %d)", cid, old.PID())
		if err := old.Kill(); err != nil {
			logger.Error("Failed to kill previous process for conversation %s: %v", cid, err)
		}
	}
	m.approvals.Purge(cid)

	p, stdout, stderr, err := spawnProcess(cid, spec)
	if err != nil {
		logger.Error("Failed to launch agent for conversation %s: %v", cid, err)
		metrics.RecordLaunch("spawn_error")
		return nil, err
	}

	m.buffer(cid)
	m.registry.Put(p)
	metrics.RecordLaunch("ok")
	metrics.SetActiveProcesses(float64(m.registry.Len()))

	// Observers see the launch before any of its events.
	for _, obs := range m.cfg.Observers {
		obs.ConversationLaunched(req, spec)
	}

	p.readers.Add(2)
	go m.readStdout(p, stdout)
	go m.readStderr(p, stderr)

	m.monitors.Add(1)
	go m.monitor(p)

	logger.WithContext(ctx).Info("conversation process launched",
		"conversation_id", cid, "pid", p.PID(), "binary", spec.Binary, "dir", spec.Dir)

	info := p.Info()
	return &info, nil
}

// Cancel kills the conversation's process and drops its pending approvals.
// It returns ErrProcessNotFound when nothing was running; otherwise a
// cancelled stream-end is emitted once the readers have drained.
func (m *Manager) Cancel(ctx context.Context, conversationID string) error {
	m.locks.Lock(conversationID)
	defer m.locks.Unlock(conversationID)

	p, ok := m.registry.Remove(conversationID)
	m.approvals.Purge(conversationID)
	if !ok {
		return ErrProcessNotFound
	}
	metrics.SetActiveProcesses(float64(m.registry.Len()))

	if err := p.Kill(); err != nil {
		logger.Error("Failed to kill process for conversation %s: %v", conversationID, err)
	}
	m.waitReaders(p)

	ev := agent.NewEvent(agent.EventStreamEnd, conversationID)
	ev.Cancelled = true
	m.emit(ev)

	logger.WithContext(ctx).Info("conversation cancelled", "conversation_id", conversationID)
	return nil
}

// RespondToApproval routes a decision to the process that requested it
func (m *Manager) RespondToApproval(ctx context.Context, requestID string, approved bool) error {
	err := m.approvals.Respond(requestID, approved)
	if err != nil {
		logger.WithContext(ctx).Warn("approval response not delivered", "request_id", requestID, "error", err)
		return err
	}
	logger.WithContext(ctx).Info("approval response delivered", "request_id", requestID, "approved", approved)
	return nil
}

// List returns the running processes
func (m *Manager) List() []ProcessInfo {
	return m.registry.List()
}

// Events returns the buffered events of a conversation after sinceIndex
func (m *Manager) Events(conversationID string, sinceIndex int) (EventPage, error) {
	m.buffersMu.RLock()
	buf, ok := m.buffers[conversationID]
	m.buffersMu.RUnlock()
	if !ok {
		return EventPage{LastIndex: -1}, ErrNoEvents
	}
	return buf.Since(sinceIndex)
}

// PruneBuffers drops event buffers of conversations that have no running
// process and saw no event for maxIdle. Returns how many were dropped.
func (m *Manager) PruneBuffers(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	m.buffersMu.Lock()
	defer m.buffersMu.Unlock()

	pruned := 0
	for id, buf := range m.buffers {
		if _, running := m.registry.Get(id); running {
			continue
		}
		if buf.LastAppend().Before(cutoff) {
			delete(m.buffers, id)
			pruned++
		}
	}
	return pruned
}

// Close kills every running process. Launch fails afterwards.
func (m *Manager) Close() {
	if !m.closed.CompareAndSwap(false, true) {
		return
	}

	for _, p := range m.registry.drain() {
		m.approvals.Purge(p.ConversationID)
		if err := p.Kill(); err != nil {
			logger.Error("Failed to kill process for conversation %s: %v", p.ConversationID, err)
		}
	}
	metrics.SetActiveProcesses(0)
	m.monitors.Wait()
}

func (m *Manager) buffer(conversationID string) *EventBuffer {
	m.buffersMu.Lock()
	defer m.buffersMu.Unlock()

	buf, ok := m.buffers[conversationID]
	if !ok {
		buf = NewEventBuffer(conversationID, m.cfg.EventBufferSize)
		m.buffers[conversationID] = buf
	}
	return buf
}

func (m *Manager) emit(ev *agent.Event) {
	m.buffersMu.RLock()
	buf := m.buffers[ev.ConversationID]
	m.buffersMu.RUnlock()
	if buf != nil {
		buf.Append(ev)
	}

	metrics.RecordEvent(string(ev.Type))
	m.cfg.Emitter.Emit(ev)
}

// monitor waits for the process to exit or leave the registry. Only an exit
// observed while the process is still registered produces a terminal
// event; whoever removed it otherwise is responsible for notifying.
func (m *Manager) monitor(p *Process) {
	defer m.monitors.Done()

	select {
	case <-p.Exited():
	case <-p.removed:
		metrics.RecordProcessEnd("cancelled", time.Since(p.StartedAt).Seconds())
		return
	}

	m.waitReaders(p)

	cid := p.ConversationID
	if !m.registry.RemoveIf(cid, p) {
		metrics.RecordProcessEnd("cancelled", time.Since(p.StartedAt).Seconds())
		return
	}
	m.approvals.Purge(cid)
	metrics.SetActiveProcesses(float64(m.registry.Len()))

	code := p.ExitCode()
	ev := agent.NewEvent(agent.EventStreamEnd, cid)
	ev.ExitCode = agent.IntPtr(code)
	status := "completed"
	if code == 0 {
		ev.Success = true
	} else {
		status = "failed"
		ev.Text = fmt.Sprintf("Codex exited with code %d", code)
	}
	metrics.RecordProcessEnd(status, time.Since(p.StartedAt).Seconds())

	logger.Printf("🏁 Conversation %s process exited with code %d", cid, code)
	m.emit(ev)
}

// waitReaders blocks until both output readers finish or the drain timeout
// elapses. Grandchildren holding the pipes open can delay EOF indefinitely.
func (m *Manager) waitReaders(p *Process) {
	done := make(chan struct{})
	go func() {
		p.readers.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(m.cfg.DrainTimeout):
		logger.Printf("⚠️  Output of conversation %s not drained after %v", p.ConversationID, m.cfg.DrainTimeout)
	}
}

// readStdout feeds codex stdout through the parser. Approval requests are
// registered before their event is emitted; one that cannot be registered
// because the process is gone is dropped.
func (m *Manager) readStdout(p *Process, r io.ReadCloser) {
	defer p.readers.Done()
	defer func() { _ = r.Close() }()

	parser := codex.NewParser(p.ConversationID)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		events, req := parser.ParseLine(line)
		if req != nil {
			err := m.approvals.Register(p, &PendingApproval{
				RequestID:   req.RequestID,
				Title:       req.Title,
				Description: req.Description,
			})
			if err != nil {
				logger.Printf("Dropping approval %s for conversation %s: %v", req.RequestID, p.ConversationID, err)
				continue
			}
		}
		for _, ev := range events {
			m.emit(ev)
		}
	}

	m.finishRead(p, r, "stdout", scanner.Err())
}

// readStderr emits cleaned stderr lines as progress text
func (m *Manager) readStderr(p *Process, r io.ReadCloser) {
	defer p.readers.Done()
	defer func() { _ = r.Close() }()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for scanner.Scan() {
		cleaned := codex.CleanProgress(scanner.Text())
		if cleaned == "" {
			continue
		}
		ev := agent.NewEvent(agent.EventProgress, p.ConversationID)
		ev.Text = cleaned
		m.emit(ev)
	}

	m.finishRead(p, r, "stderr", scanner.Err())
}

// finishRead logs a reader failure and keeps draining so the child never
// blocks on a full pipe. Errors degrade to end of stream.
func (m *Manager) finishRead(p *Process, r io.Reader, stream string, err error) {
	if err == nil {
		return
	}
	if !errors.Is(err, bufio.ErrTooLong) {
		logger.Printf("Reading %s of conversation %s stopped: %v", stream, p.ConversationID, err)
		return
	}
	logger.Error("Line on %s of conversation %s exceeds %d bytes; discarding remaining output", stream, p.ConversationID, maxLineSize)
	_, _ = io.Copy(io.Discard, r)
}
