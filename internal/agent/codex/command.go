package codex

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// DefaultBinary is the codex executable looked up on PATH
const DefaultBinary = "codex"

// Command builds an exec.Cmd for the codex binary. On macOS the PATH is
// extended with the usual user-level install locations, since launchd
// services start with a minimal PATH.
func Command(ctx context.Context, binary string, args ...string) *exec.Cmd {
	if binary == "" {
		binary = DefaultBinary
	}
	cmd := exec.CommandContext(ctx, binary, args...)
	if env := LaunchEnv(); env != nil {
		cmd.Env = append(os.Environ(), env...)
	}
	return cmd
}

// LaunchEnv returns the environment overrides for a codex child, or nil
// when the inherited environment is used as is.
func LaunchEnv() []string {
	if runtime.GOOS != "darwin" {
		return nil
	}
	return []string{"PATH=" + enrichedPath(os.Getenv("PATH"))}
}

func enrichedPath(current string) string {
	home, _ := os.UserHomeDir()
	if home == "" {
		home = "/Users/" + os.Getenv("USER")
	}

	extra := []string{
		"/opt/homebrew/bin",
		"/opt/homebrew/sbin",
		"/usr/local/bin",
		"/usr/local/sbin",
		"/usr/local/share/npm/bin",
		filepath.Join(home, ".local/bin"),
		filepath.Join(home, ".volta/bin"),
		filepath.Join(home, ".fnm/aliases/default/bin"),
		filepath.Join(home, ".cargo/bin"),
		filepath.Join(home, ".bun/bin"),
	}

	nvmDir := os.Getenv("NVM_DIR")
	if nvmDir == "" {
		nvmDir = filepath.Join(home, ".nvm")
	}
	if entries, err := os.ReadDir(filepath.Join(nvmDir, "versions", "node")); err == nil {
		for _, e := range entries {
			bin := filepath.Join(nvmDir, "versions", "node", e.Name(), "bin")
			if _, err := os.Stat(bin); err == nil {
				extra = append(extra, bin)
			}
		}
	}

	if current != "" {
		extra = append(extra, current)
	}
	return strings.Join(extra, string(os.PathListSeparator))
}

// CommandResult is the captured outcome of a one-shot codex invocation
type CommandResult struct {
	Success  bool   `json:"success"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
}

// Run executes `codex <subcommand> <args...>` in cwd and captures output.
// A non-zero exit is reported in the result, not as an error.
func Run(ctx context.Context, binary, cwd, subcommand string, args ...string) (*CommandResult, error) {
	cmd := Command(ctx, binary, append([]string{subcommand}, args...)...)
	cmd.Dir = ExpandTilde(cwd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := &CommandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: -1,
	}
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return nil, fmt.Errorf("failed to run %s %s: %w", binary, subcommand, err)
	}
	result.Success = err == nil
	return result, nil
}

// Version returns the output of `codex --version`, which doubles as an
// availability check.
func Version(ctx context.Context, binary string) (string, error) {
	out, err := Command(ctx, binary, "--version").Output()
	if err != nil {
		return "", fmt.Errorf("codex binary unavailable: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}
