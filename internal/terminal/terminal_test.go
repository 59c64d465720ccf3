package terminal

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HyphaGroup/codexd/internal/agent"
	"github.com/HyphaGroup/codexd/internal/testutil"
)

const waitTimeout = 10 * time.Second

// output collects pty-data per session
type output struct {
	mu  sync.Mutex
	buf map[string]*strings.Builder
}

func (o *output) Emit(ev *agent.Event) {
	if ev.Type != agent.EventPtyData {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.buf == nil {
		o.buf = make(map[string]*strings.Builder)
	}
	b, ok := o.buf[ev.PtyID]
	if !ok {
		b = &strings.Builder{}
		o.buf[ev.PtyID] = b
	}
	b.WriteString(ev.Data)
}

func (o *output) text(id string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if b, ok := o.buf[id]; ok {
		return b.String()
	}
	return ""
}

func newTestManager(t *testing.T) (*Manager, *testutil.Recorder, *output) {
	t.Helper()
	rec := testutil.NewRecorder()
	out := &output{}
	m := NewManager(Config{
		Emitter: agent.NewMultiEmitter(rec, out),
		Shell:   "/bin/sh",
		Mode:    ModePipe,
	})
	t.Cleanup(m.Close)
	return m, rec, out
}

func requirePTY(t *testing.T) {
	t.Helper()
	ptmx, tty, err := pty.Open()
	if err != nil {
		t.Skipf("pseudo-terminals unavailable: %v", err)
	}
	_ = ptmx.Close()
	_ = tty.Close()
}

func TestManager_PipeSession(t *testing.T) {
	m, rec, out := newTestManager(t)
	ctx := context.Background()

	info, err := m.Create(ctx, CreateOptions{Cwd: t.TempDir()})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(info.ID, "pty-"))
	assert.Equal(t, "/bin/sh", info.Shell)
	assert.Equal(t, ModePipe, info.Mode)

	require.NoError(t, m.Write(info.ID, []byte("echo hello; echo oops >&2\n")))
	testutil.Eventually(t, waitTimeout, func() bool {
		return strings.Contains(out.text(info.ID), "hello") && strings.Contains(out.text(info.ID), "oops")
	}, "shell output arrives")

	var sawStderr bool
	for _, ev := range rec.OfType(agent.EventPtyData) {
		if ev.Stream == agent.StreamStderr && strings.Contains(ev.Data, "oops") {
			sawStderr = true
		}
	}
	assert.True(t, sawStderr, "stderr chunks are tagged with their stream")

	require.NoError(t, m.Write(info.ID, []byte("exit 3\n")))
	exit := rec.WaitFor(t, agent.EventPtyExit, waitTimeout)
	assert.Equal(t, info.ID, exit.PtyID)
	require.NotNil(t, exit.ExitCode)
	assert.Equal(t, 3, *exit.ExitCode)

	assert.Empty(t, m.List())
	assert.ErrorIs(t, m.Write(info.ID, []byte("x")), ErrSessionNotFound)
	assert.Len(t, rec.OfType(agent.EventPtyExit), 1)

	events := rec.Events()
	assert.Equal(t, agent.EventPtyExit, events[len(events)-1].Type)
}

func TestManager_PTYSession(t *testing.T) {
	requirePTY(t)
	m, rec, out := newTestManager(t)

	info, err := m.Create(context.Background(), CreateOptions{Mode: ModePTY, Cols: 80, Rows: 24})
	require.NoError(t, err)
	assert.Equal(t, ModePTY, info.Mode)

	// The tty echoes input, so look for the evaluated result only.
	require.NoError(t, m.Write(info.ID, []byte("echo hi$((1+1))\n")))
	testutil.Eventually(t, waitTimeout, func() bool {
		return strings.Contains(out.text(info.ID), "hi2")
	}, "pty output arrives")

	require.NoError(t, m.Resize(info.ID, 100, 40))

	require.NoError(t, m.Write(info.ID, []byte("exit 0\n")))
	exit := rec.WaitFor(t, agent.EventPtyExit, waitTimeout)
	require.NotNil(t, exit.ExitCode)
	assert.Equal(t, 0, *exit.ExitCode)
}

func TestManager_ResizePipeSession(t *testing.T) {
	m, _, _ := newTestManager(t)
	info, err := m.Create(context.Background(), CreateOptions{})
	require.NoError(t, err)

	assert.ErrorIs(t, m.Resize(info.ID, 80, 24), ErrResizeUnsupported)
	assert.ErrorIs(t, m.Resize("missing", 80, 24), ErrSessionNotFound)
}

func TestManager_Kill(t *testing.T) {
	m, rec, _ := newTestManager(t)
	ctx := context.Background()

	info, err := m.Create(ctx, CreateOptions{})
	require.NoError(t, err)
	require.Len(t, m.List(), 1)

	require.NoError(t, m.Kill(ctx, info.ID))
	assert.Empty(t, m.List())
	assert.ErrorIs(t, m.Kill(ctx, info.ID), ErrSessionNotFound)

	time.Sleep(300 * time.Millisecond)
	assert.Empty(t, rec.OfType(agent.EventPtyExit), "a killed session emits no exit event")
}

func TestManager_ListSortedAndIndependent(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := m.Create(ctx, CreateOptions{})
		require.NoError(t, err)
	}

	list := m.List()
	require.Len(t, list, 3)
	for i := 1; i < len(list); i++ {
		assert.Less(t, list[i-1].ID, list[i].ID)
	}
	assert.NotEqual(t, list[0].PID, list[1].PID)
}

func TestManager_CreateFailure(t *testing.T) {
	m, _, _ := newTestManager(t)
	_, err := m.Create(context.Background(), CreateOptions{Shell: "/nonexistent/shell"})
	assert.Error(t, err)
	assert.Empty(t, m.List())
}

func TestManager_DuplicateID(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Create(ctx, CreateOptions{ID: "dup", Shell: "/nonexistent/shell"})
	require.Error(t, err)

	// A failed start releases the id.
	_, err = m.Create(ctx, CreateOptions{ID: "dup"})
	require.NoError(t, err)
	_, err = m.Create(ctx, CreateOptions{ID: "dup"})
	assert.ErrorIs(t, err, ErrSessionExists)
}

func TestManager_ConcurrentCreateSameID(t *testing.T) {
	m, _, _ := newTestManager(t)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Create(context.Background(), CreateOptions{ID: "same"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	created := 0
	for err := range errs {
		if err == nil {
			created++
			continue
		}
		assert.ErrorIs(t, err, ErrSessionExists)
	}
	assert.Equal(t, 1, created)
	assert.Len(t, m.List(), 1)
}

func TestManager_Closed(t *testing.T) {
	m, _, _ := newTestManager(t)
	info, err := m.Create(context.Background(), CreateOptions{})
	require.NoError(t, err)

	m.Close()
	assert.Empty(t, m.List())
	assert.ErrorIs(t, m.Write(info.ID, []byte("x")), ErrSessionNotFound)

	_, err = m.Create(context.Background(), CreateOptions{})
	assert.ErrorIs(t, err, ErrManagerClosed)
}

func TestResolveShell(t *testing.T) {
	m := NewManager(Config{Shell: "/bin/zsh"})
	assert.Equal(t, "/bin/dash", m.resolveShell(" /bin/dash "))
	assert.Equal(t, "/bin/zsh", m.resolveShell(""))

	t.Setenv("SHELL", "/usr/bin/fish")
	assert.Equal(t, "/usr/bin/fish", NewManager(Config{}).resolveShell(""))

	t.Setenv("SHELL", "")
	assert.Equal(t, fallbackShell, NewManager(Config{}).resolveShell(""))
}

func TestRunCommand(t *testing.T) {
	dir := t.TempDir()

	res, err := RunCommand(context.Background(), "pwd; echo err >&2; exit 4", dir)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 4, res.ExitCode)
	assert.Contains(t, res.Stdout, dir)
	assert.Equal(t, "err\n", res.Stderr)
	assert.True(t, strings.HasPrefix(res.CommandID, "cmd-"))

	res, err = RunCommand(context.Background(), "true", dir)
	require.NoError(t, err)
	assert.True(t, res.Success)

	_, err = RunCommand(context.Background(), "  ", dir)
	assert.Error(t, err)

	_, err = RunCommand(context.Background(), "true", "/nonexistent/dir")
	assert.Error(t, err)
}

func TestRunCommandCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	res, err := RunCommand(ctx, "sleep 30", "")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Less(t, time.Since(start), 10*time.Second)
}
