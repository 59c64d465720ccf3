package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/HyphaGroup/codexd/internal/agent"
	"github.com/HyphaGroup/codexd/internal/agent/codex"
	"github.com/HyphaGroup/codexd/internal/auth"
	"github.com/HyphaGroup/codexd/internal/backup"
	"github.com/HyphaGroup/codexd/internal/cleanup"
	"github.com/HyphaGroup/codexd/internal/config"
	"github.com/HyphaGroup/codexd/internal/logger"
	"github.com/HyphaGroup/codexd/internal/mcp"
	"github.com/HyphaGroup/codexd/internal/notify"
	"github.com/HyphaGroup/codexd/internal/session"
	"github.com/HyphaGroup/codexd/internal/store"
	"github.com/HyphaGroup/codexd/internal/terminal"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig()
		if err != nil {
			return err
		}
		if serveAddr != "" {
			cfg.Server.Address = serveAddr
		}
		return runServer(cmd.Context(), cfg, path)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.address)")
}

func runServer(parent context.Context, cfg *config.Config, configPath string) error {
	if err := logger.Init(cfg.Paths.LogDir); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Close() }()
	if err := logger.InitSlog(cfg.Paths.LogDir, cfg.Server.JSONLogs, logger.ParseLevel(cfg.Server.LogLevel)); err != nil {
		return fmt.Errorf("failed to initialize structured logger: %w", err)
	}
	defer func() { _ = logger.CloseSlog() }()

	logger.Println("🧠 codexd - Codex conversation server")
	if configPath != "" {
		logger.Printf("⚙️  Config: %s", configPath)
	} else {
		logger.Println("⚙️  No codexd.jsonc found, using defaults")
	}

	if err := os.MkdirAll(cfg.Paths.DataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	authStore, err := auth.NewStore(cfg.Paths.DataDir)
	if err != nil {
		return fmt.Errorf("failed to initialize auth store: %w", err)
	}
	defer func() { _ = authStore.Close() }()
	logger.Printf("🔐 Auth database: %s/auth.db", cfg.Paths.DataDir)

	runtime := config.NewRuntime(cfg.Codex)
	checkCtx, cancel := context.WithTimeout(parent, 10*time.Second)
	if v, err := codex.Version(checkCtx, runtime.Snapshot().Binary); err != nil {
		logger.Printf("⚠️  %v", err)
		logger.Println("   Conversations will fail to launch until codex is installed")
	} else {
		logger.Printf("🤖 %s", v)
	}
	cancel()

	pusher := mcp.NewEventPusher(cfg.Limits.EventBufferSize)
	defer pusher.Close()

	emitters := []agent.Emitter{pusher}
	var observers []session.LaunchObserver
	var history *store.Store
	if cfg.History.IsEnabled() {
		history, err = store.NewStore(cfg.Paths.DataDir)
		if err != nil {
			return fmt.Errorf("failed to initialize history store: %w", err)
		}
		defer func() { _ = history.Close() }()
		recorder := session.NewHistoryRecorder(history)
		emitters = append(emitters, recorder)
		observers = append(observers, recorder)
		logger.Printf("🗂️  History database: %s/history.db (retention %d days)", cfg.Paths.DataDir, cfg.History.RetentionDays)
	}

	var backups *backup.Manager
	if history != nil && cfg.History.Backup.Enabled {
		backups, err = backup.New(backup.Config{
			Source:    history,
			BackupDir: cfg.History.Backup.Directory,
			Retention: cfg.History.Backup.Retention,
			Schedule:  cfg.History.Backup.Schedule,
		})
		if err != nil {
			return err
		}
		if err := backups.Start(); err != nil {
			return err
		}
		defer backups.Stop()
	}

	sessions := session.NewManager(session.Config{
		BuildSpec:       specBuilder(runtime),
		Emitter:         agent.NewMultiEmitter(emitters...),
		Observers:       observers,
		EventBufferSize: cfg.Limits.EventBufferSize,
		DrainTimeout:    cfg.Limits.DrainTimeout(),
	})
	defer sessions.Close()

	terminals := terminal.NewManager(terminal.Config{
		Emitter:      pusher,
		Shell:        cfg.Terminal.Shell,
		Mode:         terminal.Mode(cfg.Terminal.Mode),
		DrainTimeout: cfg.Limits.DrainTimeout(),
	})
	defer terminals.Close()

	limiter := auth.NewRateLimiter(cfg.Limits.RequestsPerSecond, cfg.Limits.Burst)

	cleanupCfg := cleanup.Config{
		DataDir:    cfg.Paths.DataDir,
		Buffers:    sessions,
		BufferIdle: cfg.Limits.BufferIdle(),
		Limiters:   limiter,
	}
	if history != nil && cfg.History.RetentionDays > 0 {
		cleanupCfg.History = history
		cleanupCfg.HistoryRetention = time.Duration(cfg.History.RetentionDays) * 24 * time.Hour
		cleanupCfg.HistorySchedule = cfg.History.CleanupSchedule
	}
	cleaner := cleanup.New(cleanupCfg)
	if err := cleaner.Start(); err != nil {
		return fmt.Errorf("failed to start cleanup: %w", err)
	}
	defer cleaner.Stop()

	server := mcp.NewServer(mcp.ServerConfig{
		Sessions:  sessions,
		Terminals: terminals,
		Runtime:   runtime,
		History:   history,
		Backups:   backups,
		Notifier:  notify.NewTeams(cfg.Notify.TeamsWebhookURL, cfg.Notify.RatePerMinute),
		Auth:      authStore,
		Limiter:   limiter,
		Pusher:    pusher,
		Version:   Version,
	})

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Serve(ctx, cfg.Server.Address); err != nil {
		return err
	}
	logger.Println("⚠️  Shutting down: stopping conversations and terminals")
	return nil
}

// specBuilder turns a launch request into a codex exec invocation using the
// runtime settings current at launch time.
func specBuilder(runtime *config.Runtime) session.SpecBuilder {
	return func(req *session.LaunchRequest) (session.SpawnSpec, error) {
		settings := runtime.Snapshot()
		prompt, cwd, args := codex.BuildExecArgs(req.Prompt, req.History, settings.ExecConfig(req.Cwd))
		return session.SpawnSpec{
			Binary: settings.Binary,
			Args:   args,
			Dir:    cwd,
			Env:    codex.LaunchEnv(),
			Prompt: prompt,
		}, nil
	}
}
