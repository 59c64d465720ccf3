// Package config loads codexd.jsonc and holds the mutable runtime agent
// settings applied to every launch.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/HyphaGroup/codexd/internal/agent/codex"
)

// FileName is the configuration file looked up in the config directories
const FileName = "codexd.jsonc"

// Config is the codexd.jsonc file format
type Config struct {
	Server   ServerSection   `json:"server"`
	Paths    PathsSection    `json:"paths"`
	Codex    CodexSection    `json:"codex"`
	History  HistorySection  `json:"history"`
	Notify   NotifySection   `json:"notify"`
	Limits   LimitsSection   `json:"limits"`
	Terminal TerminalSection `json:"terminal"`
}

// ServerSection contains HTTP server settings
type ServerSection struct {
	Address  string `json:"address"`
	JSONLogs bool   `json:"json_logs"`
	LogLevel string `json:"log_level"`
}

// PathsSection holds on-disk locations
type PathsSection struct {
	DataDir string `json:"data_dir"`
	LogDir  string `json:"log_dir"`
}

// CodexSection holds the initial runtime agent settings
type CodexSection struct {
	Binary           string `json:"binary"`
	Mode             string `json:"mode"`
	Model            string `json:"model"`
	Profile          string `json:"profile"`
	Sandbox          string `json:"sandbox"`
	ApprovalPolicy   string `json:"approval_policy"`
	Yolo             bool   `json:"yolo"`
	WebSearch        bool   `json:"web_search"`
	SkipGitRepoCheck bool   `json:"skip_git_repo_check"`
	Cwd              string `json:"cwd"`
	ExtraArgs        string `json:"extra_args"`
}

// HistorySection controls conversation history persistence
type HistorySection struct {
	Enabled         *bool         `json:"enabled"`
	RetentionDays   int           `json:"retention_days"`
	CleanupSchedule string        `json:"cleanup_schedule"`
	Backup          BackupSection `json:"backup"`
}

// BackupSection controls compressed snapshots of history.db
type BackupSection struct {
	Enabled   bool   `json:"enabled"`
	Directory string `json:"directory"` // relative paths are under paths.data_dir
	Retention int    `json:"retention"`
	Schedule  string `json:"schedule"`
}

// IsEnabled reports whether history is recorded. Defaults to true.
func (h HistorySection) IsEnabled() bool {
	return h.Enabled == nil || *h.Enabled
}

// NotifySection configures outbound Teams notifications
type NotifySection struct {
	TeamsWebhookURL string  `json:"teams_webhook_url"`
	RatePerMinute   float64 `json:"rate_per_minute"`
}

// LimitsSection bounds request rates and per-conversation resources
type LimitsSection struct {
	RequestsPerSecond float64 `json:"requests_per_second"`
	Burst             int     `json:"burst"`
	EventBufferSize   int     `json:"event_buffer_size"`
	DrainTimeoutMs    int     `json:"drain_timeout_ms"`
	BufferIdleMinutes int     `json:"buffer_idle_minutes"`
}

// DrainTimeout returns the reader drain timeout as a duration
func (l LimitsSection) DrainTimeout() time.Duration {
	return time.Duration(l.DrainTimeoutMs) * time.Millisecond
}

// BufferIdle returns how long an idle event buffer is kept
func (l LimitsSection) BufferIdle() time.Duration {
	return time.Duration(l.BufferIdleMinutes) * time.Minute
}

// TerminalSection configures interactive shell sessions
type TerminalSection struct {
	Shell string `json:"shell"`
	Mode  string `json:"mode"`
}

// Terminal modes
const (
	TerminalModePTY  = "pty"
	TerminalModePipe = "pipe"
)

// FindConfigPath returns the path to codexd.jsonc using precedence:
// 1. configDir/codexd.jsonc (if configDir specified)
// 2. ./config/codexd.jsonc
// 3. ~/.codexd/codexd.jsonc
func FindConfigPath(configDir string) (string, error) {
	if configDir != "" {
		path := filepath.Join(configDir, FileName)
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("%s not found in %s", FileName, configDir)
		}
		return absOr(path), nil
	}

	candidates := []string{filepath.Join("config", FileName)}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".codexd", FileName))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return absOr(path), nil
		}
	}
	return "", fmt.Errorf("%s not found; tried: %v", FileName, candidates)
}

func absOr(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}

// Load reads and validates a config file. A missing path yields the
// defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		if err := json.Unmarshal(StripJSONComments(data), &cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", FileName, err)
	}
	return &cfg, nil
}

// Default returns a config with every default applied
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Address == "" {
		cfg.Server.Address = "127.0.0.1:8765"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = "info"
	}

	home, _ := os.UserHomeDir()
	if cfg.Paths.DataDir == "" {
		cfg.Paths.DataDir = filepath.Join(home, ".codexd", "data")
	}
	if cfg.Paths.LogDir == "" {
		cfg.Paths.LogDir = filepath.Join(home, ".codexd", "logs")
	}
	cfg.Paths.DataDir = codex.ExpandTilde(cfg.Paths.DataDir)
	cfg.Paths.LogDir = codex.ExpandTilde(cfg.Paths.LogDir)

	if cfg.Codex.Binary == "" {
		cfg.Codex.Binary = codex.DefaultBinary
	}
	if cfg.Codex.Mode == "" {
		cfg.Codex.Mode = ModeSmart
	}

	if cfg.History.RetentionDays == 0 {
		cfg.History.RetentionDays = 30
	}
	if cfg.History.CleanupSchedule == "" {
		cfg.History.CleanupSchedule = "0 3 * * *"
	}

	if cfg.History.Backup.Directory == "" {
		cfg.History.Backup.Directory = "backups"
	}
	cfg.History.Backup.Directory = codex.ExpandTilde(cfg.History.Backup.Directory)
	if !filepath.IsAbs(cfg.History.Backup.Directory) {
		cfg.History.Backup.Directory = filepath.Join(cfg.Paths.DataDir, cfg.History.Backup.Directory)
	}
	if cfg.History.Backup.Retention == 0 {
		cfg.History.Backup.Retention = 7
	}
	if cfg.History.Backup.Schedule == "" {
		cfg.History.Backup.Schedule = "30 3 * * *"
	}

	if cfg.Notify.RatePerMinute == 0 {
		cfg.Notify.RatePerMinute = 6
	}

	if cfg.Limits.RequestsPerSecond == 0 {
		cfg.Limits.RequestsPerSecond = 10
	}
	if cfg.Limits.Burst == 0 {
		cfg.Limits.Burst = 20
	}
	if cfg.Limits.EventBufferSize == 0 {
		cfg.Limits.EventBufferSize = 1000
	}
	if cfg.Limits.DrainTimeoutMs == 0 {
		cfg.Limits.DrainTimeoutMs = 2000
	}
	if cfg.Limits.BufferIdleMinutes == 0 {
		cfg.Limits.BufferIdleMinutes = 60
	}

	if cfg.Terminal.Mode == "" {
		cfg.Terminal.Mode = TerminalModePTY
	}
}

// Validate rejects values that would fail at runtime
func (c *Config) Validate() error {
	var errs []error

	if err := validateMode(c.Codex.Mode); err != nil {
		errs = append(errs, err)
	}
	if c.History.RetentionDays < 0 {
		errs = append(errs, errors.New("history.retention_days must not be negative"))
	}
	if _, err := cron.ParseStandard(c.History.CleanupSchedule); err != nil {
		errs = append(errs, fmt.Errorf("history.cleanup_schedule: %w", err))
	}
	if c.History.Backup.Retention < 0 {
		errs = append(errs, errors.New("history.backup.retention must not be negative"))
	}
	if _, err := cron.ParseStandard(c.History.Backup.Schedule); err != nil {
		errs = append(errs, fmt.Errorf("history.backup.schedule: %w", err))
	}
	if c.Notify.RatePerMinute < 0 {
		errs = append(errs, errors.New("notify.rate_per_minute must not be negative"))
	}
	if c.Limits.RequestsPerSecond < 0 || c.Limits.Burst < 0 {
		errs = append(errs, errors.New("limits.requests_per_second and limits.burst must not be negative"))
	}
	if c.Limits.EventBufferSize < 0 || c.Limits.DrainTimeoutMs < 0 || c.Limits.BufferIdleMinutes < 0 {
		errs = append(errs, errors.New("limits must not be negative"))
	}
	switch c.Terminal.Mode {
	case TerminalModePTY, TerminalModePipe:
	default:
		errs = append(errs, fmt.Errorf("terminal.mode must be %q or %q", TerminalModePTY, TerminalModePipe))
	}

	return errors.Join(errs...)
}
