package terminal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/google/uuid"

	"github.com/HyphaGroup/codexd/internal/procattr"
)

// CommandResult is the outcome of a one-shot shell command
type CommandResult struct {
	CommandID string `json:"command_id"`
	Success   bool   `json:"success"`
	Stdout    string `json:"stdout"`
	Stderr    string `json:"stderr"`
	ExitCode  int    `json:"exit_code"`
}

// RunCommand runs command through sh -c in cwd with no input and captures
// its output. A non-zero exit is reported in the result; only a failure to
// start is an error. Cancelling ctx kills the whole process group.
func RunCommand(ctx context.Context, command, cwd string) (*CommandResult, error) {
	if strings.TrimSpace(command) == "" {
		return nil, errors.New("command is required")
	}

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	cmd.Dir = resolveCwd(cwd)
	procattr.Set(cmd)
	cmd.Cancel = func() error { return procattr.KillGroup(cmd.Process) }

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return nil, fmt.Errorf("failed to run command: %w", err)
	}

	res := &CommandResult{
		CommandID: "cmd-" + uuid.New().String(),
		Stdout:    strings.ToValidUTF8(stdout.String(), "�"),
		Stderr:    strings.ToValidUTF8(stderr.String(), "�"),
		ExitCode:  -1,
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}
	res.Success = err == nil
	return res, nil
}
