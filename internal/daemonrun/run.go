// Package daemonrun wires and runs the fieldsyncd process.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"fieldsync/internal/config"
	"fieldsync/internal/connectivity"
	"fieldsync/internal/daemon"
	"fieldsync/internal/freshness"
	"fieldsync/internal/ipc"
	"fieldsync/internal/logging"
	"fieldsync/internal/notifications"
	"fieldsync/internal/queue"
	"fieldsync/internal/submit"
	"fieldsync/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	// LogLevel overrides logging.level from the config when set.
	LogLevel    string
	Development bool
}

// Runtime holds the wired daemon components.
type Runtime struct {
	Daemon *daemon.Daemon
	Engine *queue.Engine
	Logger *slog.Logger
}

// Build wires the store, submitter, message hub and background processor
// into a daemon. The caller owns the returned store.
func Build(cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	store, err := queue.OpenDurable(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open queue store: %w", err)
	}
	engine := queue.NewEngine(store, freshness.New(cfg.FreshnessWindow()), logger)

	hub := notifications.NewHub(cfg.Notifications.HubCapacity)
	publisher := notifications.NewService(cfg, hub, logger)
	client := submit.NewClient(submit.ConfigFrom(cfg), logger)
	background := workflow.NewBackground(engine, client, publisher, workflow.PolicyFrom(cfg), cfg.Sync.Tag, logger)

	d, err := daemon.New(cfg, daemon.Deps{
		Engine:     engine,
		Background: background,
		Hub:        hub,
		Checker:    connectivity.ProbeFromConfig(cfg),
	}, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("create daemon: %w", err)
	}
	return &Runtime{Daemon: d, Engine: engine, Logger: logger}, nil
}

// Run starts the fieldsyncd runtime loop and blocks until a signal arrives
// or cmdCtx ends.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logCfg := *cfg
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		logCfg.Logging.Level = level
	}
	if opts.Development {
		logCfg.Logging.Format = "console"
	}
	logger, err := logging.NewFromConfig(&logCfg, "fieldsyncd")
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logConfigSnapshot(logger, cfg)

	rt, err := Build(cfg, logger)
	if err != nil {
		logger.Error("daemon setup failed",
			logging.Error(err),
			logging.EventType("daemon_setup_failed"),
			logging.ErrorHint("check the queue database path and permissions"),
		)
		return err
	}
	defer rt.Daemon.Close()

	// Start takes the instance lock, so a second daemon fails here before it
	// can claim the socket of the first.
	if err := rt.Daemon.Start(signalCtx); err != nil {
		logger.Error("daemon start failed",
			logging.Error(err),
			logging.EventType("daemon_start_failed"),
			logging.ErrorHint("another fieldsyncd may already be running"),
			logging.Impact("queued orders are not delivered in the background"),
		)
		return err
	}

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	ipcServer, err := ipc.NewServer(signalCtx, cfg.Paths.SocketPath, rt.Daemon, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	logger.Info("fieldsyncd started",
		logging.EventType("daemon_started"),
		logging.String("socket", cfg.Paths.SocketPath),
		logging.String("api_addr", rt.Daemon.APIAddr()),
		logging.Int("pid", os.Getpid()),
	)

	<-signalCtx.Done()
	logger.Info("fieldsyncd shutting down", logging.EventType("daemon_stopping"))
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logConfigSnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	logger.Info("configuration snapshot",
		logging.EventType("config_snapshot"),
		logging.Bool("endpoint_configured", strings.TrimSpace(cfg.Submit.Endpoint) != ""),
		logging.Bool("token_present", strings.TrimSpace(cfg.Submit.APIToken) != ""),
		logging.String("queue_db", cfg.QueueDBPath()),
		logging.String("fallback", cfg.Queue.Fallback),
		logging.Duration("freshness_window", cfg.FreshnessWindow()),
		logging.Int("max_retries", cfg.Queue.MaxRetries),
		logging.Duration("periodic_interval", cfg.PeriodicInterval()),
		logging.Bool("ntfy_enabled", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
		logging.Bool("redis_enabled", strings.TrimSpace(cfg.Notifications.RedisAddr) != ""),
		logging.Bool("api_enabled", strings.TrimSpace(cfg.Paths.APIBind) != ""),
	)
}
