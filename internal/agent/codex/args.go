package codex

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// MaxHistoryMessages is how many prior messages are folded into the prompt
const MaxHistoryMessages = 10

// Sandbox modes accepted by `codex exec -s`
const (
	SandboxReadOnly         = "read-only"
	SandboxWorkspaceWrite   = "workspace-write"
	SandboxDangerFullAccess = "danger-full-access"
)

// Approval policies accepted by codex's approval_policy setting
const (
	ApprovalUntrusted = "untrusted"
	ApprovalOnFailure = "on-failure"
	ApprovalOnRequest = "on-request"
	ApprovalNever     = "never"
)

// ExecConfig is the runtime configuration that shapes a `codex exec` launch
type ExecConfig struct {
	Model            string
	Profile          string
	Sandbox          string
	ApprovalPolicy   string
	Yolo             bool
	WebSearch        bool
	SkipGitRepoCheck bool
	Cwd              string
	CwdOverride      string
	ExtraArgs        string
}

// HistoryMessage is one prior turn of a conversation
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// BuildExecArgs returns the prompt actually sent, the working directory and
// the argument vector for `codex exec`.
func BuildExecArgs(prompt string, history []HistoryMessage, cfg ExecConfig) (fullPrompt, cwd string, args []string) {
	fullPrompt = FoldHistory(prompt, history)

	requested := cfg.Cwd
	if strings.TrimSpace(cfg.CwdOverride) != "" {
		requested = cfg.CwdOverride
	}
	cwd = ExpandTilde(requested)

	args = []string{"exec", "--json"}
	if cfg.Model != "" {
		args = append(args, "-m", cfg.Model)
	}
	if profile := strings.TrimSpace(cfg.Profile); profile != "" {
		args = append(args, "-p", profile)
	}

	if cfg.Yolo {
		args = append(args, "--dangerously-bypass-approvals-and-sandbox")
	} else {
		args = append(args, "-s", NormalizeSandbox(cfg.Sandbox))
		args = append(args, "--config", fmt.Sprintf("approval_policy=%q", NormalizeApprovalPolicy(cfg.ApprovalPolicy)))
	}

	if cfg.WebSearch {
		args = append(args, "--search")
	}

	args = append(args, "-C", cwd)

	if cfg.SkipGitRepoCheck {
		args = append(args, "--skip-git-repo-check")
	}

	args = append(args, ParseExtraArgs(cfg.ExtraArgs)...)
	args = append(args, fullPrompt)
	return fullPrompt, cwd, args
}

// FoldHistory prefixes prompt with the last MaxHistoryMessages messages.
func FoldHistory(prompt string, history []HistoryMessage) string {
	if len(history) == 0 {
		return prompt
	}
	if len(history) > MaxHistoryMessages {
		history = history[len(history)-MaxHistoryMessages:]
	}

	lines := make([]string, 0, len(history))
	for _, msg := range history {
		prefix := "User"
		if msg.Role == "assistant" {
			prefix = "Assistant"
		}
		lines = append(lines, prefix+": "+msg.Content)
	}
	return "[Previous conversation]\n" + strings.Join(lines, "\n") + "\n\n[Current question]\n" + prompt
}

// NormalizeSandbox maps unknown sandbox modes to workspace-write
func NormalizeSandbox(mode string) string {
	switch mode {
	case SandboxReadOnly, SandboxDangerFullAccess:
		return mode
	default:
		return SandboxWorkspaceWrite
	}
}

// NormalizeApprovalPolicy maps unknown policies to on-request
func NormalizeApprovalPolicy(policy string) string {
	switch policy {
	case ApprovalUntrusted, ApprovalOnFailure, ApprovalNever:
		return policy
	default:
		return ApprovalOnRequest
	}
}

// ParseExtraArgs splits raw on whitespace. Single or double quotes group a
// token and are dropped; there are no escapes.
func ParseExtraArgs(raw string) []string {
	var (
		args    []string
		current strings.Builder
		quote   rune
	)

	for _, ch := range raw {
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			} else {
				current.WriteRune(ch)
			}
		case ch == '"' || ch == '\'':
			quote = ch
		case unicode.IsSpace(ch):
			if current.Len() > 0 {
				args = append(args, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(ch)
		}
	}

	if current.Len() > 0 {
		args = append(args, current.String())
	}
	return args
}

// ExpandTilde replaces a leading ~ with the user's home directory
func ExpandTilde(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") && !strings.HasPrefix(path, `~\`) {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, path[2:])
}
