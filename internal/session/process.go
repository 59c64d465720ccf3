package session

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/HyphaGroup/codexd/internal/procattr"
)

// SpawnSpec describes how to start one agent process
type SpawnSpec struct {
	Binary string
	Args   []string
	Dir    string
	Env    []string // appended to the daemon's environment

	// NoStdin starts the child with stdin on the null device. Approval
	// decisions cannot be delivered to such a process.
	NoStdin bool

	// Prompt is the full prompt carried in Args, kept for history.
	Prompt string
}

// InputHandle serializes whole-line writes to a child's stdin. It is the
// only path to the stream; the launcher and the approval broker share it.
type InputHandle struct {
	mu     sync.Mutex
	w      io.WriteCloser
	closed bool
}

func newInputHandle(w io.WriteCloser) *InputHandle {
	return &InputHandle{w: w}
}

// WriteLine writes line followed by a newline, unless line already ends
// with one, as a single write.
func (h *InputHandle) WriteLine(line []byte) error {
	if len(line) == 0 || line[len(line)-1] != '\n' {
		buf := make([]byte, len(line)+1)
		copy(buf, line)
		buf[len(line)] = '\n'
		line = buf
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrInputClosed
	}
	if _, err := h.w.Write(line); err != nil {
		return err
	}
	return nil
}

// Close closes the stream. Further writes fail with ErrInputClosed.
func (h *InputHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	return h.w.Close()
}

// Process is one running agent process bound to a conversation.
type Process struct {
	ConversationID string
	StartedAt      time.Time

	cmd   *exec.Cmd
	input *InputHandle

	exited   chan struct{} // closed once Wait returns
	exitCode int

	removed     chan struct{} // closed when taken out of the registry
	removedOnce sync.Once

	readers sync.WaitGroup
}

// ProcessInfo is a snapshot of a registered process
type ProcessInfo struct {
	ConversationID string    `json:"conversation_id"`
	PID            int       `json:"pid"`
	StartedAt      time.Time `json:"started_at"`
	AcceptsInput   bool      `json:"accepts_input"`
}

// spawnProcess starts the child and returns its output streams. stdout and
// stderr use os.Pipe so that Wait does not close them before the readers
// have drained.
func spawnProcess(conversationID string, spec SpawnSpec) (*Process, io.ReadCloser, io.ReadCloser, error) {
	cmd := exec.Command(spec.Binary, spec.Args...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	procattr.Set(cmd)

	var input *InputHandle
	if !spec.NoStdin {
		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, nil, nil, &SpawnError{Binary: spec.Binary, Err: err}
		}
		input = newInputHandle(stdin)
	}

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, nil, nil, &SpawnError{Binary: spec.Binary, Err: fmt.Errorf("stdout pipe: %w", err)}
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		closeAll(stdoutR, stdoutW)
		return nil, nil, nil, &SpawnError{Binary: spec.Binary, Err: fmt.Errorf("stderr pipe: %w", err)}
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		closeAll(stdoutR, stdoutW, stderrR, stderrW)
		return nil, nil, nil, &SpawnError{Binary: spec.Binary, Err: err}
	}
	// The child holds its own copies of the write ends.
	closeAll(stdoutW, stderrW)

	p := &Process{
		ConversationID: conversationID,
		StartedAt:      time.Now(),
		cmd:            cmd,
		input:          input,
		exited:         make(chan struct{}),
		removed:        make(chan struct{}),
	}
	go p.wait()

	return p, stdoutR, stderrR, nil
}

func (p *Process) wait() {
	_ = p.cmd.Wait()
	p.exitCode = -1
	if p.cmd.ProcessState != nil {
		p.exitCode = p.cmd.ProcessState.ExitCode()
	}
	close(p.exited)
}

// Input returns the shared input handle, or nil if the process takes no input
func (p *Process) Input() *InputHandle {
	return p.input
}

// PID returns the OS process id
func (p *Process) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Exited is closed once the process has been reaped
func (p *Process) Exited() <-chan struct{} {
	return p.exited
}

// HasExited reports whether the process has been reaped
func (p *Process) HasExited() bool {
	select {
	case <-p.exited:
		return true
	default:
		return false
	}
}

// ExitCode returns the exit status, or -1 if the process was killed by a
// signal. Only meaningful after Exited is closed.
func (p *Process) ExitCode() int {
	<-p.exited
	return p.exitCode
}

// Kill terminates the process and its process group. Best effort.
func (p *Process) Kill() error {
	return procattr.KillGroup(p.cmd.Process)
}

// markRemoved signals the monitor that the process left the registry
func (p *Process) markRemoved() {
	p.removedOnce.Do(func() { close(p.removed) })
}

// Info returns a snapshot for listing
func (p *Process) Info() ProcessInfo {
	return ProcessInfo{
		ConversationID: p.ConversationID,
		PID:            p.PID(),
		StartedAt:      p.StartedAt,
		AcceptsInput:   p.input != nil,
	}
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}
