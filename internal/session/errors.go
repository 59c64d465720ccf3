package session

import (
	"errors"
	"fmt"
)

var (
	// ErrApprovalNotFound means the request id is unknown: already answered,
	// never issued, or purged when its conversation ended.
	ErrApprovalNotFound = errors.New("approval request not found")

	// ErrApprovalTargetNotRunning means the approval is known but the
	// conversation's process is no longer running.
	ErrApprovalTargetNotRunning = errors.New("conversation process is not running")

	// ErrApprovalInputUnavailable means the process does not accept input.
	ErrApprovalInputUnavailable = errors.New("conversation process does not accept input")

	// ErrProcessNotFound is returned for operations against a conversation
	// with no live process.
	ErrProcessNotFound = errors.New("no running process for conversation")

	// ErrInputClosed is returned when writing to a closed input handle.
	ErrInputClosed = errors.New("input stream closed")
)

// SpawnError reports that the agent process could not be started.
type SpawnError struct {
	Binary string
	Err    error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to start %s: %v", e.Binary, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// IOError reports a failed read or write on a process stream.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// ErrNoEvents is returned when polling a conversation that never launched.
var ErrNoEvents = errors.New("no events recorded for conversation")

// ErrManagerClosed is returned by Launch after Close.
var ErrManagerClosed = errors.New("session manager is closed")
