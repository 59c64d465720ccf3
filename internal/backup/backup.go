// Package backup takes scheduled, compressed snapshots of the history
// database and prunes old ones.
package backup

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/HyphaGroup/codexd/internal/logger"
)

const (
	filePrefix  = "history_"
	fileSuffix  = ".db.gz"
	stampLayout = "20060102_150405.000"
)

var ErrSnapshotNotFound = errors.New("snapshot not found")

// Source writes a consistent copy of a database to dest. *store.Store
// implements it.
type Source interface {
	Backup(ctx context.Context, dest string) error
}

// Config holds backup configuration.
type Config struct {
	Source    Source
	BackupDir string
	Retention int    // snapshots to keep; 0 keeps all
	Schedule  string // standard 5-field cron; empty disables automation
}

// Snapshot describes one backup file.
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`
	Filename  string    `json:"filename"`
	SizeBytes int64     `json:"size_bytes"`
}

// Manager handles snapshot creation, listing and restore.
type Manager struct {
	cfg  Config
	cron *cron.Cron

	mu      sync.Mutex // serializes snapshots
	started bool
}

// New creates a new backup Manager.
func New(cfg Config) (*Manager, error) {
	if cfg.Source == nil {
		return nil, errors.New("backup source is required")
	}
	if err := os.MkdirAll(cfg.BackupDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	return &Manager{cfg: cfg, cron: cron.New()}, nil
}

// Dir returns the directory snapshots are written to
func (m *Manager) Dir() string {
	return m.cfg.BackupDir
}

// Start schedules automatic snapshots when a schedule is configured.
func (m *Manager) Start() error {
	if m.cfg.Schedule == "" || m.started {
		return nil
	}
	_, err := m.cron.AddFunc(m.cfg.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if _, err := m.Snapshot(ctx); err != nil {
			logger.Printf("⚠️  History backup failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid backup schedule %q: %w", m.cfg.Schedule, err)
	}
	m.cron.Start()
	m.started = true
	logger.Printf("📦 History backups scheduled (%s, retention=%d)", m.cfg.Schedule, m.cfg.Retention)
	return nil
}

// Stop halts automatic snapshots and waits for a running one.
func (m *Manager) Stop() {
	if !m.started {
		return
	}
	<-m.cron.Stop().Done()
	m.started = false
	logger.Println("📦 History backups stopped")
}

// Snapshot copies the database and compresses the copy.
func (m *Manager) Snapshot(ctx context.Context) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	filename := filePrefix + now.Format(stampLayout) + fileSuffix
	raw := filepath.Join(m.cfg.BackupDir, "."+strings.TrimSuffix(filename, ".gz")+".tmp")
	_ = os.Remove(raw)
	defer func() { _ = os.Remove(raw) }()

	if err := m.cfg.Source.Backup(ctx, raw); err != nil {
		return nil, err
	}

	target := filepath.Join(m.cfg.BackupDir, filename)
	if err := compressFile(raw, target); err != nil {
		_ = os.Remove(target)
		return nil, fmt.Errorf("failed to compress backup: %w", err)
	}

	stat, err := os.Stat(target)
	if err != nil {
		return nil, err
	}
	logger.Printf("📦 Created backup: %s (%d bytes)", filename, stat.Size())
	m.enforceRetention()

	return &Snapshot{Timestamp: now, Filename: filename, SizeBytes: stat.Size()}, nil
}

// ListSnapshots returns the available snapshots, newest first.
func (m *Manager) ListSnapshots() ([]Snapshot, error) {
	entries, err := os.ReadDir(m.cfg.BackupDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var snapshots []Snapshot
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)
		ts, err := time.Parse(stampLayout, stamp)
		if err != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		snapshots = append(snapshots, Snapshot{Timestamp: ts, Filename: name, SizeBytes: info.Size()})
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].Timestamp.After(snapshots[j].Timestamp)
	})
	return snapshots, nil
}

// Restore decompresses a snapshot to dest. dest must not exist, so a live
// database is never overwritten.
func (m *Manager) Restore(filename, dest string) error {
	if filepath.Base(filename) != filename || !strings.HasSuffix(filename, fileSuffix) {
		return fmt.Errorf("%w: %s", ErrSnapshotNotFound, filename)
	}
	src, err := os.Open(filepath.Join(m.cfg.BackupDir, filename))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrSnapshotNotFound, filename)
		}
		return fmt.Errorf("failed to open backup: %w", err)
	}
	defer func() { _ = src.Close() }()

	gr, err := gzip.NewReader(src)
	if err != nil {
		return fmt.Errorf("failed to decompress backup: %w", err)
	}
	defer func() { _ = gr.Close() }()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	if _, err := io.Copy(out, gr); err != nil {
		_ = out.Close()
		_ = os.Remove(dest)
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}
	if err := out.Close(); err != nil {
		return err
	}

	logger.Printf("📦 Restored %s to %s", filename, dest)
	return nil
}

// enforceRetention removes old backups beyond the retention limit.
func (m *Manager) enforceRetention() {
	if m.cfg.Retention <= 0 {
		return
	}
	snapshots, err := m.ListSnapshots()
	if err != nil || len(snapshots) <= m.cfg.Retention {
		return
	}
	for _, s := range snapshots[m.cfg.Retention:] {
		if err := os.Remove(filepath.Join(m.cfg.BackupDir, s.Filename)); err == nil {
			logger.Printf("📦 Removed old backup: %s", s.Filename)
		}
	}
}

func compressFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	gw := gzip.NewWriter(out)
	if _, err := io.Copy(gw, in); err != nil {
		_ = gw.Close()
		_ = out.Close()
		return err
	}
	if err := gw.Close(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
