// Package terminal manages interactive shell sessions. Many sessions can
// run at once; each is identified by a generated id and reports raw output
// chunks and a single exit event.
package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/HyphaGroup/codexd/internal/agent"
	"github.com/HyphaGroup/codexd/internal/agent/codex"
	"github.com/HyphaGroup/codexd/internal/logger"
	"github.com/HyphaGroup/codexd/internal/metrics"
)

var (
	ErrSessionNotFound   = errors.New("terminal not found")
	ErrSessionExited     = errors.New("terminal has exited")
	ErrResizeUnsupported = errors.New("terminal is not attached to a pty")
	ErrManagerClosed     = errors.New("terminal manager is closed")
	ErrSessionExists     = errors.New("terminal already exists")
)

const (
	readChunkSize       = 4096
	defaultDrainTimeout = 2 * time.Second
	fallbackShell       = "/bin/bash"
)

// CreateOptions describes a new shell session. Zero values pick defaults.
type CreateOptions struct {
	ID    string `json:"id,omitempty"` // from NewID; generated when empty
	Cwd   string `json:"cwd,omitempty"`
	Shell string `json:"shell,omitempty"`
	Mode  Mode   `json:"mode,omitempty"`
	Cols  uint16 `json:"cols,omitempty"`
	Rows  uint16 `json:"rows,omitempty"`
}

// Config configures a Manager
type Config struct {
	Emitter      agent.Emitter
	Shell        string
	Mode         Mode
	DrainTimeout time.Duration
}

// Manager is the PTY session registry
type Manager struct {
	cfg Config

	mu       sync.Mutex
	sessions map[string]*Session
	starting map[string]struct{} // ids reserved by an in-flight Create

	closed   atomic.Bool
	monitors sync.WaitGroup
}

// NewManager creates an empty registry
func NewManager(cfg Config) *Manager {
	if cfg.Emitter == nil {
		cfg.Emitter = agent.Discard
	}
	if cfg.Mode == "" {
		cfg.Mode = ModePTY
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = defaultDrainTimeout
	}
	return &Manager{
		cfg:      cfg,
		sessions: make(map[string]*Session),
		starting: make(map[string]struct{}),
	}
}

// NewID returns a fresh terminal id
func NewID() string {
	return "pty-" + uuid.New().String()
}

// Create starts a shell and registers it
func (m *Manager) Create(ctx context.Context, opts CreateOptions) (*SessionInfo, error) {
	if m.closed.Load() {
		return nil, ErrManagerClosed
	}

	shell := m.resolveShell(opts.Shell)
	cwd := resolveCwd(opts.Cwd)
	mode := opts.Mode
	if mode == "" {
		mode = m.cfg.Mode
	}
	cols, rows := opts.Cols, opts.Rows
	if cols == 0 {
		cols = DefaultCols
	}
	if rows == 0 {
		rows = DefaultRows
	}

	id := opts.ID
	if id == "" {
		id = NewID()
	}
	if !m.reserve(id) {
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, id)
	}

	s, streams, err := startSession(id, shell, cwd, mode, cols, rows)
	if err != nil {
		m.mu.Lock()
		delete(m.starting, id)
		m.mu.Unlock()
		logger.Error("Failed to start terminal %s in %s: %v", shell, cwd, err)
		return nil, err
	}

	m.mu.Lock()
	delete(m.starting, id)
	m.sessions[id] = s
	n := len(m.sessions)
	m.mu.Unlock()
	metrics.SetPtySessions(float64(n))

	s.readers.Add(len(streams))
	for _, st := range streams {
		go m.read(s, st)
	}
	m.monitors.Add(1)
	go m.monitor(s)

	logger.WithContext(logger.WithPty(ctx, id)).Info("terminal created",
		"shell", shell, "cwd", cwd, "mode", string(mode), "pid", s.pid())

	info := s.Info()
	return &info, nil
}

// Write forwards data verbatim to the session's input
func (m *Manager) Write(id string, data []byte) error {
	s, ok := m.get(id)
	if !ok {
		return ErrSessionNotFound
	}
	return s.write(data)
}

// Resize changes the terminal size of a pty-mode session
func (m *Manager) Resize(id string, cols, rows uint16) error {
	s, ok := m.get(id)
	if !ok {
		return ErrSessionNotFound
	}
	return s.resize(cols, rows)
}

// Kill removes the session and terminates its process group. No exit
// event is emitted for a killed session.
func (m *Manager) Kill(ctx context.Context, id string) error {
	s, ok := m.remove(id, nil)
	if !ok {
		return ErrSessionNotFound
	}
	if err := s.kill(); err != nil {
		logger.Error("Failed to kill terminal %s: %v", id, err)
		return err
	}
	logger.WithContext(logger.WithPty(ctx, id)).Info("terminal killed")
	return nil
}

// List returns the live sessions ordered by id
func (m *Manager) List() []SessionInfo {
	m.mu.Lock()
	out := make([]SessionInfo, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Info())
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Close kills every session and waits for the monitors
func (m *Manager) Close() {
	if !m.closed.CompareAndSwap(false, true) {
		return
	}

	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		sessions = append(sessions, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.markRemoved()
		_ = s.kill()
	}
	metrics.SetPtySessions(0)
	m.monitors.Wait()
}

// reserve claims id for a session being started
func (m *Manager) reserve(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; ok {
		return false
	}
	if _, ok := m.starting[id]; ok {
		return false
	}
	m.starting[id] = struct{}{}
	return true
}

func (m *Manager) get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// remove takes id out of the registry. A non-nil want restricts removal
// to that exact session.
func (m *Manager) remove(id string, want *Session) (*Session, bool) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok && want != nil && s != want {
		ok = false
	}
	if ok {
		delete(m.sessions, id)
	}
	n := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return nil, false
	}
	s.markRemoved()
	metrics.SetPtySessions(float64(n))
	return s, true
}

func (m *Manager) resolveShell(requested string) string {
	if requested = strings.TrimSpace(requested); requested != "" {
		return requested
	}
	if m.cfg.Shell != "" {
		return m.cfg.Shell
	}
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return fallbackShell
}

func resolveCwd(requested string) string {
	if strings.TrimSpace(requested) == "" {
		if home, err := os.UserHomeDir(); err == nil {
			return home
		}
		return "."
	}
	return codex.ExpandTilde(requested)
}

// read forwards raw output chunks until end of stream
func (m *Manager) read(s *Session, st stream) {
	defer s.readers.Done()

	var chunker utf8Chunker
	buf := make([]byte, readChunkSize)
	for {
		n, err := st.r.Read(buf)
		if n > 0 {
			if data := chunker.next(buf[:n]); data != "" {
				m.emitData(s, st.name, data)
			}
		}
		if err != nil {
			// A pty master reports EIO once the shell side is gone.
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) && s.tty == nil {
				logger.Printf("Reading %s of terminal %s stopped: %v", st.name, s.ID, err)
			}
			break
		}
	}
	if rest := chunker.flush(); rest != "" {
		m.emitData(s, st.name, rest)
	}
}

func (m *Manager) emitData(s *Session, streamName, data string) {
	ev := agent.NewEvent(agent.EventPtyData, "")
	ev.PtyID = s.ID
	ev.Stream = streamName
	ev.Data = data
	m.cfg.Emitter.Emit(ev)
}

// monitor waits for exit or removal. Only an exit observed while the
// session is still registered emits pty-exit.
func (m *Manager) monitor(s *Session) {
	defer m.monitors.Done()
	defer s.closeIO()

	select {
	case <-s.exited:
	case <-s.removed:
		m.waitReaders(s)
		return
	}

	m.waitReaders(s)
	if _, ok := m.remove(s.ID, s); !ok {
		return
	}

	ev := agent.NewEvent(agent.EventPtyExit, "")
	ev.PtyID = s.ID
	ev.ExitCode = agent.IntPtr(s.exitCode)
	logger.Printf("Terminal %s exited with code %d", s.ID, s.exitCode)
	m.cfg.Emitter.Emit(ev)
}

func (m *Manager) waitReaders(s *Session) {
	done := make(chan struct{})
	go func() {
		s.readers.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(m.cfg.DrainTimeout):
		// Closing our descriptors unblocks the readers.
		s.closeIO()
		select {
		case <-done:
		case <-time.After(m.cfg.DrainTimeout):
			logger.Printf("⚠️  Output of terminal %s not drained after close", s.ID)
		}
	}
}
