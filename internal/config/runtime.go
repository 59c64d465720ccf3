package config

import (
	"fmt"
	"sync"

	"github.com/HyphaGroup/codexd/internal/agent/codex"
)

// Agent modes. The mode is reported back to clients but does not change
// the codex arguments.
const (
	ModeFast  = "fast"
	ModeSmart = "smart"
)

func validateMode(mode string) error {
	switch mode {
	case ModeFast, ModeSmart:
		return nil
	}
	return fmt.Errorf("codex.mode must be %q or %q, got %q", ModeFast, ModeSmart, mode)
}

// RuntimeSettings is a snapshot of the agent settings used at launch
type RuntimeSettings struct {
	Binary           string `json:"binary"`
	Mode             string `json:"mode"`
	Model            string `json:"model,omitempty"`
	Profile          string `json:"profile,omitempty"`
	Sandbox          string `json:"sandbox"`
	ApprovalPolicy   string `json:"approval_policy"`
	Yolo             bool   `json:"yolo"`
	WebSearch        bool   `json:"web_search"`
	SkipGitRepoCheck bool   `json:"skip_git_repo_check"`
	Cwd              string `json:"cwd,omitempty"`
	ExtraArgs        string `json:"extra_args,omitempty"`
}

// RuntimePatch changes a subset of the runtime settings. Nil fields are
// left untouched.
type RuntimePatch struct {
	Mode             *string `json:"mode,omitempty"`
	Model            *string `json:"model,omitempty"`
	Profile          *string `json:"profile,omitempty"`
	Sandbox          *string `json:"sandbox,omitempty"`
	ApprovalPolicy   *string `json:"approval_policy,omitempty"`
	Yolo             *bool   `json:"yolo,omitempty"`
	WebSearch        *bool   `json:"web_search,omitempty"`
	SkipGitRepoCheck *bool   `json:"skip_git_repo_check,omitempty"`
	Cwd              *string `json:"cwd,omitempty"`
	ExtraArgs        *string `json:"extra_args,omitempty"`
}

// Runtime holds the mutable agent settings. Every launch reads a snapshot,
// so an update never affects a process that is already running.
type Runtime struct {
	mu       sync.RWMutex
	settings RuntimeSettings
}

// NewRuntime seeds the runtime settings from the codex config section
func NewRuntime(c CodexSection) *Runtime {
	binary := c.Binary
	if binary == "" {
		binary = codex.DefaultBinary
	}
	mode := c.Mode
	if mode == "" {
		mode = ModeSmart
	}
	return &Runtime{settings: RuntimeSettings{
		Binary:           binary,
		Mode:             mode,
		Model:            c.Model,
		Profile:          c.Profile,
		Sandbox:          codex.NormalizeSandbox(c.Sandbox),
		ApprovalPolicy:   codex.NormalizeApprovalPolicy(c.ApprovalPolicy),
		Yolo:             c.Yolo,
		WebSearch:        c.WebSearch,
		SkipGitRepoCheck: c.SkipGitRepoCheck,
		Cwd:              c.Cwd,
		ExtraArgs:        c.ExtraArgs,
	}}
}

// Snapshot returns the current settings
func (r *Runtime) Snapshot() RuntimeSettings {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.settings
}

// Update applies p atomically and returns the resulting settings. An
// invalid mode rejects the whole patch.
func (r *Runtime) Update(p RuntimePatch) (RuntimeSettings, error) {
	if p.Mode != nil {
		if err := validateMode(*p.Mode); err != nil {
			return r.Snapshot(), err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s := &r.settings
	if p.Mode != nil {
		s.Mode = *p.Mode
	}
	if p.Model != nil {
		s.Model = *p.Model
	}
	if p.Profile != nil {
		s.Profile = *p.Profile
	}
	if p.Sandbox != nil {
		s.Sandbox = codex.NormalizeSandbox(*p.Sandbox)
	}
	if p.ApprovalPolicy != nil {
		s.ApprovalPolicy = codex.NormalizeApprovalPolicy(*p.ApprovalPolicy)
	}
	if p.Yolo != nil {
		s.Yolo = *p.Yolo
	}
	if p.WebSearch != nil {
		s.WebSearch = *p.WebSearch
	}
	if p.SkipGitRepoCheck != nil {
		s.SkipGitRepoCheck = *p.SkipGitRepoCheck
	}
	if p.Cwd != nil {
		s.Cwd = *p.Cwd
	}
	if p.ExtraArgs != nil {
		s.ExtraArgs = *p.ExtraArgs
	}
	return *s, nil
}

// ExecConfig converts the settings into launch arguments. cwdOverride,
// when non-blank, replaces the configured working directory.
func (s RuntimeSettings) ExecConfig(cwdOverride string) codex.ExecConfig {
	return codex.ExecConfig{
		Model:            s.Model,
		Profile:          s.Profile,
		Sandbox:          s.Sandbox,
		ApprovalPolicy:   s.ApprovalPolicy,
		Yolo:             s.Yolo,
		WebSearch:        s.WebSearch,
		SkipGitRepoCheck: s.SkipGitRepoCheck,
		Cwd:              s.Cwd,
		CwdOverride:      cwdOverride,
		ExtraArgs:        s.ExtraArgs,
	}
}
