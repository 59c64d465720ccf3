package terminal

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/creack/pty"

	"github.com/HyphaGroup/codexd/internal/agent"
	"github.com/HyphaGroup/codexd/internal/procattr"
)

// Mode selects how a shell is attached
type Mode string

const (
	// ModePTY runs the shell on a pseudo-terminal (stdin and stdout on the
	// tty, stderr on a pipe).
	ModePTY Mode = "pty"
	// ModePipe runs the shell on plain pipes.
	ModePipe Mode = "pipe"
)

// Default terminal size for ModePTY
const (
	DefaultCols = 120
	DefaultRows = 32
)

// Session is one interactive shell
type Session struct {
	ID        string
	Shell     string
	Cwd       string
	Mode      Mode
	StartedAt time.Time

	cmd *exec.Cmd

	inputMu sync.Mutex
	input   io.Writer
	tty     *os.File // pty master, nil in pipe mode

	closers   []io.Closer
	closeOnce sync.Once

	exited   chan struct{}
	exitCode int

	removed     chan struct{}
	removedOnce sync.Once

	readers sync.WaitGroup
}

// SessionInfo describes a live session for listing
type SessionInfo struct {
	ID        string    `json:"id"`
	Shell     string    `json:"shell"`
	Cwd       string    `json:"cwd"`
	Mode      Mode      `json:"mode"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
}

type stream struct {
	name string
	r    io.Reader
}

// startSession launches shell in cwd and returns its output streams
func startSession(id, shell, cwd string, mode Mode, cols, rows uint16) (*Session, []stream, error) {
	cmd := exec.Command(shell)
	cmd.Dir = cwd

	s := &Session{
		ID:        id,
		Shell:     shell,
		Cwd:       cwd,
		Mode:      mode,
		cmd:       cmd,
		exited:    make(chan struct{}),
		removed:   make(chan struct{}),
		StartedAt: time.Now(),
	}

	var streams []stream
	var err error
	switch mode {
	case ModePTY:
		streams, err = s.attachPTY(cols, rows)
	case ModePipe:
		streams, err = s.attachPipes()
	default:
		err = fmt.Errorf("unknown terminal mode %q", mode)
	}
	if err != nil {
		return nil, nil, err
	}

	go s.wait()
	return s, streams, nil
}

func (s *Session) attachPTY(cols, rows uint16) ([]stream, error) {
	ptmx, tty, err := pty.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open pty: %w", err)
	}
	if err := pty.Setsize(ptmx, &pty.Winsize{Cols: cols, Rows: rows}); err != nil {
		_ = ptmx.Close()
		_ = tty.Close()
		return nil, fmt.Errorf("failed to size pty: %w", err)
	}

	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		_ = ptmx.Close()
		_ = tty.Close()
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	s.cmd.Stdin = tty
	s.cmd.Stdout = tty
	s.cmd.Stderr = stderrW
	s.cmd.Env = append(os.Environ(), "TERM=xterm-256color")
	procattr.SetSession(s.cmd, 0)

	if err := s.cmd.Start(); err != nil {
		for _, f := range []*os.File{ptmx, tty, stderrR, stderrW} {
			_ = f.Close()
		}
		return nil, err
	}
	_ = tty.Close()
	_ = stderrW.Close()

	s.tty = ptmx
	s.input = ptmx
	s.closers = []io.Closer{ptmx, stderrR}
	return []stream{{agent.StreamStdout, ptmx}, {agent.StreamStderr, stderrR}}, nil
}

func (s *Session) attachPipes() ([]stream, error) {
	stdin, err := s.cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		_ = stdin.Close()
		_ = stdoutR.Close()
		_ = stdoutW.Close()
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	s.cmd.Stdout = stdoutW
	s.cmd.Stderr = stderrW
	procattr.Set(s.cmd)

	if err := s.cmd.Start(); err != nil {
		_ = stdin.Close()
		for _, f := range []*os.File{stdoutR, stdoutW, stderrR, stderrW} {
			_ = f.Close()
		}
		return nil, err
	}
	_ = stdoutW.Close()
	_ = stderrW.Close()

	s.input = stdin
	s.closers = []io.Closer{stdin, stdoutR, stderrR}
	return []stream{{agent.StreamStdout, stdoutR}, {agent.StreamStderr, stderrR}}, nil
}

func (s *Session) wait() {
	_ = s.cmd.Wait()
	s.exitCode = -1
	if s.cmd.ProcessState != nil {
		s.exitCode = s.cmd.ProcessState.ExitCode()
	}
	close(s.exited)
}

// write forwards raw bytes to the shell's input
func (s *Session) write(data []byte) error {
	s.inputMu.Lock()
	defer s.inputMu.Unlock()

	select {
	case <-s.exited:
		return ErrSessionExited
	default:
	}
	if _, err := s.input.Write(data); err != nil {
		return fmt.Errorf("failed to write to terminal: %w", err)
	}
	return nil
}

func (s *Session) resize(cols, rows uint16) error {
	if s.tty == nil {
		return ErrResizeUnsupported
	}
	return pty.Setsize(s.tty, &pty.Winsize{Cols: cols, Rows: rows})
}

func (s *Session) kill() error {
	return procattr.KillGroup(s.cmd.Process)
}

// closeIO releases every descriptor held by the daemon side
func (s *Session) closeIO() {
	s.closeOnce.Do(func() {
		s.inputMu.Lock()
		defer s.inputMu.Unlock()
		for _, c := range s.closers {
			_ = c.Close()
		}
	})
}

func (s *Session) markRemoved() {
	s.removedOnce.Do(func() { close(s.removed) })
}

func (s *Session) pid() int {
	if s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// Info returns a listing snapshot
func (s *Session) Info() SessionInfo {
	return SessionInfo{
		ID:        s.ID,
		Shell:     s.Shell,
		Cwd:       s.Cwd,
		Mode:      s.Mode,
		PID:       s.pid(),
		StartedAt: s.StartedAt,
	}
}
