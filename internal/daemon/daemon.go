package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"fieldsync/internal/api"
	"fieldsync/internal/config"
	"fieldsync/internal/connectivity"
	"fieldsync/internal/logging"
	"fieldsync/internal/metrics"
	"fieldsync/internal/notifications"
	"fieldsync/internal/preflight"
	"fieldsync/internal/queue"
	"fieldsync/internal/workflow"
)

// Daemon owns the background processor and enforces single-instance execution.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	engine     *queue.Engine
	background *workflow.Background
	hub        *notifications.Hub
	checker    connectivity.Checker
	queueSvc   *api.QueueService
	apiServer  *apiServer

	lockPath string
	lock     *flock.Flock

	wake chan struct{}

	mu       sync.Mutex
	skip     chan struct{}
	lastPass *api.PassSummary
	nextWake time.Time

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Deps bundles the collaborators a daemon needs.
type Deps struct {
	Engine     *queue.Engine
	Background *workflow.Background
	Hub        *notifications.Hub
	// Checker gates passes and drives the connectivity watcher. Nil means
	// always online and no watcher.
	Checker connectivity.Checker
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, deps Deps, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || deps.Engine == nil || deps.Background == nil {
		return nil, errors.New("daemon requires config, queue engine, and background processor")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if deps.Hub == nil {
		deps.Hub = notifications.NewHub(cfg.Notifications.HubCapacity)
	}

	d := &Daemon{
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "daemon"),
		engine:     deps.Engine,
		background: deps.Background,
		hub:        deps.Hub,
		checker:    deps.Checker,
		queueSvc:   api.NewQueueService(deps.Engine),
		lockPath:   cfg.LockPath(),
		lock:       flock.New(cfg.LockPath()),
		wake:       make(chan struct{}, 1),
	}
	if deps.Checker != nil {
		deps.Background.SetChecker(deps.Checker)
	}
	deps.Background.SetSleeper(d.sleep)

	srv, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.apiServer = srv
	return d, nil
}

// Start acquires the daemon lock and launches the processing loop.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another fieldsync daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.apiServer.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return err
	}
	d.cancel = cancel
	d.running.Store(true)

	for _, result := range preflight.Failed(preflight.RunAll(runCtx, d.cfg)) {
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.ErrorHint("run fieldsync status for details"),
			logging.Impact("deliveries may fail until resolved"),
		)
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run(runCtx)
	}()
	if d.checker != nil && d.cfg.ConnectivityInterval() > 0 {
		watcher := connectivity.NewWatcher(d.checker, d.cfg.ConnectivityInterval(), func(context.Context) {
			d.RequestPass()
		}, d.logger)
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			watcher.Run(runCtx)
		}()
	}

	d.logger.Info("fieldsync daemon started",
		logging.String("lock", d.lockPath),
		logging.SyncTag(d.background.Tag()),
		logging.String("storage", d.engine.Store().Kind()),
	)
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	d.apiServer.stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock",
			logging.Error(err),
			logging.EventType("lock_release_failed"),
			logging.ErrorHint("remove the lock file if the next start fails"),
		)
	}
	d.running.Store(false)
	d.logger.Info("fieldsync daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return d.engine.Store().Close()
}

// Running reports whether the processing loop is active.
func (d *Daemon) Running() bool { return d.running.Load() }

// Hub exposes the message hub for long-polling clients.
func (d *Daemon) Hub() *notifications.Hub { return d.hub }

// Queue returns the queue service used by IPC and HTTP handlers.
func (d *Daemon) Queue() *api.QueueService { return d.queueSvc }

// APIAddr returns the bound HTTP address, or "" when the API is disabled.
func (d *Daemon) APIAddr() string { return d.apiServer.addr() }

// RequestPass asks the loop to run a pass. Requests coalesce.
func (d *Daemon) RequestPass() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// ProcessQueue runs a background pass now. It waits for any running pass to
// finish first.
func (d *Daemon) ProcessQueue(ctx context.Context) (notifications.Summary, error) {
	summary, err := d.background.ProcessQueue(ctx)
	pass := &api.PassSummary{Summary: summary, FinishedAt: time.Now().UTC().Format(time.RFC3339)}
	if err != nil {
		pass.Error = err.Error()
	}
	d.mu.Lock()
	d.lastPass = pass
	d.mu.Unlock()
	d.refreshDepth(ctx)
	return summary, err
}

// SkipWaiting cuts a running backoff sleep short. When no sleep is in
// progress it requests a pass instead. It reports whether a sleep was cut.
func (d *Daemon) SkipWaiting() bool {
	d.mu.Lock()
	ch := d.skip
	d.skip = nil
	d.mu.Unlock()
	if ch != nil {
		close(ch)
		d.logger.Info("backoff skipped on request", logging.EventType("skip_waiting"))
		return true
	}
	d.RequestPass()
	return false
}

func (d *Daemon) sleep(ctx context.Context, dur time.Duration) error {
	if dur <= 0 {
		return ctx.Err()
	}
	ch := make(chan struct{})
	d.mu.Lock()
	d.skip = ch
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		if d.skip == ch {
			d.skip = nil
		}
		d.mu.Unlock()
	}()

	timer := time.NewTimer(dur)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	case <-ch:
		return nil
	}
}

func (d *Daemon) run(ctx context.Context) {
	interval := d.cfg.PeriodicInterval()
	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	d.runPass(ctx, "startup")
	for {
		d.setNextWake(interval)
		select {
		case <-ctx.Done():
			return
		case <-tick:
			d.runPass(ctx, "periodic")
		case <-d.wake:
			d.runPass(ctx, "requested")
		}
	}
}

func (d *Daemon) runPass(ctx context.Context, trigger string) {
	_, err := d.ProcessQueue(ctx)
	switch {
	case err == nil:
	case errors.Is(err, workflow.ErrOffline):
		d.logger.Debug("offline; background pass skipped", logging.String("trigger", trigger))
	case ctx.Err() != nil:
	default:
		d.logger.Error("background pass failed",
			logging.String("trigger", trigger),
			logging.Error(err),
			logging.EventType("pass_failed"),
			logging.ErrorHint("check queue database access"),
		)
	}
}

func (d *Daemon) setNextWake(interval time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if interval <= 0 {
		d.nextWake = time.Time{}
		return
	}
	d.nextWake = time.Now().Add(interval)
}

func (d *Daemon) refreshDepth(ctx context.Context) {
	stats, err := d.queueSvc.Stats(context.WithoutCancel(ctx))
	if err != nil {
		return
	}
	statuses := make([]string, 0, len(stats.Counts))
	for status := range stats.Counts {
		statuses = append(statuses, status)
	}
	metrics.SetQueueDepth(stats.Counts, statuses)
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) api.DaemonStatus {
	status := api.DaemonStatus{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Tag:          d.background.Tag(),
		Online:       true,
		QueueDBPath:  d.cfg.QueueDBPath(),
		LockFilePath: d.lockPath,
		SocketPath:   d.cfg.Paths.SocketPath,
	}
	if d.engine.Store().Kind() == queue.StoreKindLog {
		status.QueueDBPath = d.cfg.QueueLogPath()
	}
	if d.checker != nil {
		status.Online = d.checker.Online(ctx)
	}
	if stats, err := d.queueSvc.Stats(ctx); err == nil {
		status.Queue = stats
	} else {
		d.logger.Warn("queue stats unavailable",
			logging.Error(err),
			logging.EventType("queue_stats_failed"),
			logging.ErrorHint("check queue database access"),
		)
	}

	d.mu.Lock()
	if d.lastPass != nil {
		pass := *d.lastPass
		status.LastPass = &pass
	}
	if !d.nextWake.IsZero() {
		status.NextWakeAt = d.nextWake.UTC().Format(time.RFC3339)
	}
	d.mu.Unlock()
	return status
}

// DatabaseHealth returns detailed database diagnostics when SQLite backs the queue.
func (d *Daemon) DatabaseHealth(ctx context.Context) (queue.DatabaseHealth, error) {
	store, ok := d.engine.Store().(*queue.SQLiteStore)
	if !ok {
		return queue.DatabaseHealth{DBPath: d.cfg.QueueLogPath(), Error: "queue is using the log fallback"}, nil
	}
	return store.CheckHealth(ctx)
}
