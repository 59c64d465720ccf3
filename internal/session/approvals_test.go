package session

import (
	"bufio"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroker_RespondUnknown(t *testing.T) {
	b := NewBroker(NewRegistry())
	assert.ErrorIs(t, b.Respond("nope", true), ErrApprovalNotFound)
}

func TestBroker_RespondWritesDecisionLine(t *testing.T) {
	r := NewRegistry()
	b := NewBroker(r)

	// Spawned directly so the test can read what the child echoes back.
	p, stdout, stderr, err := spawnProcess("c1", SpawnSpec{
		Binary: "/bin/sh",
		Args:   []string{"-c", `read line; printf '%s\n' "$line"`},
	})
	require.NoError(t, err)
	defer func() { _ = p.Kill(); _ = stdout.Close(); _ = stderr.Close() }()
	r.Put(p)

	require.NoError(t, b.Register(p, &PendingApproval{RequestID: "r1", Title: "Run ls"}))
	assert.Equal(t, 1, b.Len())

	pa, ok := b.Get("r1")
	require.True(t, ok)
	assert.Equal(t, "c1", pa.ConversationID)
	assert.False(t, pa.CreatedAt.IsZero())

	require.NoError(t, b.Respond("r1", true))
	assert.Equal(t, 0, b.Len())

	lines := make(chan string, 1)
	go func() {
		sc := bufio.NewScanner(stdout)
		if sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	select {
	case line := <-lines:
		assert.Equal(t, `{"request_id":"r1","approved":true}`, line)
	case <-time.After(5 * time.Second):
		t.Fatal("child never echoed the decision")
	}

	assert.ErrorIs(t, b.Respond("r1", false), ErrApprovalNotFound)
}

func TestBroker_RegisterRequiresCurrentProcess(t *testing.T) {
	r := NewRegistry()
	b := NewBroker(r)

	p := startProcess(t, "c1", "sleep 30")
	err := b.Register(p, &PendingApproval{RequestID: "r1"})
	assert.ErrorIs(t, err, ErrApprovalTargetNotRunning)

	replacement := startProcess(t, "c1", "sleep 30")
	r.Put(replacement)
	err = b.Register(p, &PendingApproval{RequestID: "r2"})
	assert.ErrorIs(t, err, ErrApprovalTargetNotRunning)
	assert.Equal(t, 0, b.Len())
}

func TestBroker_RespondAfterExit(t *testing.T) {
	r := NewRegistry()
	b := NewBroker(r)

	p := startProcess(t, "c1", "sleep 30")
	r.Put(p)
	require.NoError(t, b.Register(p, &PendingApproval{RequestID: "r1"}))

	require.NoError(t, p.Kill())
	select {
	case <-p.Exited():
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit")
	}

	assert.ErrorIs(t, b.Respond("r1", true), ErrApprovalTargetNotRunning)
	assert.ErrorIs(t, b.Respond("r1", true), ErrApprovalNotFound)
}

func TestBroker_RespondAfterRemoval(t *testing.T) {
	r := NewRegistry()
	b := NewBroker(r)

	p := startProcess(t, "c1", "sleep 30")
	r.Put(p)
	require.NoError(t, b.Register(p, &PendingApproval{RequestID: "r1"}))
	r.Remove("c1")

	assert.ErrorIs(t, b.Respond("r1", true), ErrApprovalTargetNotRunning)
}

func TestBroker_RespondIgnoresRelaunchedProcess(t *testing.T) {
	r := NewRegistry()
	b := NewBroker(r)

	old := startProcess(t, "c1", "sleep 30")
	r.Put(old)
	require.NoError(t, b.Register(old, &PendingApproval{RequestID: "r1"}))

	next, stdout, stderr, err := spawnProcess("c1", SpawnSpec{
		Binary: "/bin/sh",
		Args:   []string{"-c", `read line; printf '%s\n' "$line"`},
	})
	require.NoError(t, err)
	defer func() { _ = next.Kill(); _ = stdout.Close(); _ = stderr.Close() }()
	r.Put(next)

	assert.ErrorIs(t, b.Respond("r1", true), ErrApprovalTargetNotRunning)
	assert.Equal(t, 0, b.Len())

	// The first line the new process reads is ours, not the decision.
	require.NoError(t, next.Input().WriteLine([]byte("marker")))
	lines := make(chan string, 1)
	go func() {
		sc := bufio.NewScanner(stdout)
		if sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()
	select {
	case line := <-lines:
		assert.Equal(t, "marker", line)
	case <-time.After(5 * time.Second):
		t.Fatal("new process never echoed")
	}
}

func TestBroker_RespondWithoutStdin(t *testing.T) {
	r := NewRegistry()
	b := NewBroker(r)

	p, stdout, stderr, err := spawnProcess("c1", SpawnSpec{
		Binary:  "/bin/sh",
		Args:    []string{"-c", "sleep 30"},
		NoStdin: true,
	})
	require.NoError(t, err)
	defer func() { _ = p.Kill(); _ = stdout.Close(); _ = stderr.Close() }()
	r.Put(p)

	assert.Nil(t, p.Input())
	assert.False(t, p.Info().AcceptsInput)
	_, err = r.LookupInput("c1")
	assert.ErrorIs(t, err, ErrApprovalInputUnavailable)

	require.NoError(t, b.Register(p, &PendingApproval{RequestID: "r1"}))
	assert.ErrorIs(t, b.Respond("r1", true), ErrApprovalInputUnavailable)
	assert.ErrorIs(t, b.Respond("r1", true), ErrApprovalNotFound)
}

func TestBroker_PurgeIsPerConversation(t *testing.T) {
	r := NewRegistry()
	b := NewBroker(r)

	p1 := startProcess(t, "c1", "sleep 30")
	p2 := startProcess(t, "c2", "sleep 30")
	r.Put(p1)
	r.Put(p2)

	require.NoError(t, b.Register(p1, &PendingApproval{RequestID: "a"}))
	require.NoError(t, b.Register(p1, &PendingApproval{RequestID: "b"}))
	require.NoError(t, b.Register(p2, &PendingApproval{RequestID: "c"}))

	assert.Equal(t, 2, b.Purge("c1"))
	assert.Equal(t, 0, b.Purge("c1"))

	_, ok := b.Get("a")
	assert.False(t, ok)
	_, ok = b.Get("c")
	assert.True(t, ok)
	assert.Len(t, b.List("c2"), 1)
	assert.Empty(t, b.List("c1"))
}

func TestBroker_ListOldestFirst(t *testing.T) {
	r := NewRegistry()
	b := NewBroker(r)
	p := startProcess(t, "c1", "sleep 30")
	r.Put(p)

	now := time.Now()
	require.NoError(t, b.Register(p, &PendingApproval{RequestID: "late", CreatedAt: now.Add(time.Second)}))
	require.NoError(t, b.Register(p, &PendingApproval{RequestID: "early", CreatedAt: now}))

	list := b.List("")
	require.Len(t, list, 2)
	assert.Equal(t, "early", list[0].RequestID)
	assert.Equal(t, "late", list[1].RequestID)
}
