// Package cleanup runs the daemon's periodic housekeeping: history
// retention, idle event buffers, stale rate limiters and disk checks.
package cleanup

import (
	"context"
	"fmt"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/HyphaGroup/codexd/internal/logger"
)

// HistoryPruner deletes conversations idle since before cutoff.
type HistoryPruner interface {
	DeleteConversationsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// BufferPruner drops event buffers of finished conversations.
type BufferPruner interface {
	PruneBuffers(maxIdle time.Duration) int
}

// LimiterPruner forgets rate limiters that have gone unused.
type LimiterPruner interface {
	Cleanup(maxAge time.Duration) int
}

// Config holds cleanup configuration.
type Config struct {
	DataDir string

	History          HistoryPruner // nil disables retention
	HistoryRetention time.Duration
	HistorySchedule  string // standard 5-field cron

	Buffers    BufferPruner
	BufferIdle time.Duration

	Limiters LimiterPruner

	// Interval drives buffer, limiter and disk checks.
	Interval         time.Duration
	DiskWarnPercent  float64
	DiskErrorPercent float64
}

// Cleaner performs periodic resource cleanup.
type Cleaner struct {
	cfg  Config
	cron *cron.Cron

	mu      sync.Mutex
	started bool
}

// New creates a Cleaner, filling in defaults for unset fields.
func New(cfg Config) *Cleaner {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.HistorySchedule == "" {
		cfg.HistorySchedule = "0 3 * * *"
	}
	if cfg.DiskWarnPercent == 0 {
		cfg.DiskWarnPercent = 80
	}
	if cfg.DiskErrorPercent == 0 {
		cfg.DiskErrorPercent = 90
	}
	return &Cleaner{cfg: cfg, cron: cron.New()}
}

// Start schedules the cleanup jobs.
func (c *Cleaner) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil
	}

	if c.cfg.History != nil && c.cfg.HistoryRetention > 0 {
		if _, err := c.cron.AddFunc(c.cfg.HistorySchedule, func() { c.PruneHistory(context.Background()) }); err != nil {
			return fmt.Errorf("failed to schedule history cleanup: %w", err)
		}
	}
	every := fmt.Sprintf("@every %s", c.cfg.Interval)
	if _, err := c.cron.AddFunc(every, c.runHousekeeping); err != nil {
		return fmt.Errorf("failed to schedule housekeeping: %w", err)
	}

	c.cron.Start()
	c.started = true
	logger.Printf("🧹 Cleanup started (history=%q retention=%v, interval=%v)",
		c.cfg.HistorySchedule, c.cfg.HistoryRetention, c.cfg.Interval)
	return nil
}

// Stop halts scheduling and waits for running jobs.
func (c *Cleaner) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return
	}
	<-c.cron.Stop().Done()
	c.started = false
	logger.Println("🧹 Cleanup stopped")
}

// PruneHistory deletes conversations older than the retention window.
func (c *Cleaner) PruneHistory(ctx context.Context) int64 {
	if c.cfg.History == nil || c.cfg.HistoryRetention <= 0 {
		return 0
	}
	cutoff := time.Now().Add(-c.cfg.HistoryRetention)
	n, err := c.cfg.History.DeleteConversationsBefore(ctx, cutoff)
	if err != nil {
		logger.Error("history cleanup failed: %v", err)
		return 0
	}
	if n > 0 {
		logger.Printf("🧹 Removed %d conversations idle since %s", n, cutoff.Format(time.RFC3339))
	}
	return n
}

func (c *Cleaner) runHousekeeping() {
	if c.cfg.Buffers != nil && c.cfg.BufferIdle > 0 {
		if n := c.cfg.Buffers.PruneBuffers(c.cfg.BufferIdle); n > 0 {
			logger.Printf("🧹 Dropped %d idle event buffers", n)
		}
	}
	if c.cfg.Limiters != nil {
		c.cfg.Limiters.Cleanup(time.Hour)
	}
	c.checkDiskUsage()
}

func (c *Cleaner) checkDiskUsage() {
	if c.cfg.DataDir == "" {
		return
	}
	_, _, usedPercent, err := DiskUsage(c.cfg.DataDir)
	if err != nil {
		return
	}

	if usedPercent >= c.cfg.DiskErrorPercent {
		logger.Printf("🔴 CRITICAL: Disk usage at %.1f%% (data dir)", usedPercent)
	} else if usedPercent >= c.cfg.DiskWarnPercent {
		logger.Printf("🟠 WARNING: Disk usage at %.1f%% (data dir)", usedPercent)
	}
}

// DiskUsage returns usage stats for the filesystem holding path.
func DiskUsage(path string) (usedBytes, totalBytes uint64, usedPercent float64, err error) {
	var stat syscall.Statfs_t
	if err = syscall.Statfs(path, &stat); err != nil {
		return
	}

	totalBytes = stat.Blocks * uint64(stat.Bsize)
	freeBytes := stat.Bfree * uint64(stat.Bsize)
	usedBytes = totalBytes - freeBytes
	if totalBytes > 0 {
		usedPercent = float64(usedBytes) / float64(totalBytes) * 100
	}
	return
}
