// Package connectivity answers whether the submit endpoint is reachable and
// signals when it becomes reachable again.
package connectivity

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"fieldsync/internal/config"
	"fieldsync/internal/logging"
)

// Checker reports current connectivity.
type Checker interface {
	Online(ctx context.Context) bool
}

// Static is a Checker with a fixed answer.
type Static bool

func (s Static) Online(context.Context) bool { return bool(s) }

// Probe treats any HTTP response from URL as online; only transport failures
// count as offline. Results are cached for TTL.
type Probe struct {
	url    string
	client *http.Client
	ttl    time.Duration

	mu        sync.Mutex
	checkedAt time.Time
	online    bool
}

// NewProbe returns a probe. An empty URL always reports online so the
// delivery attempt itself decides.
func NewProbe(url string, timeout, ttl time.Duration) *Probe {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Probe{
		url:    strings.TrimSpace(url),
		client: &http.Client{Timeout: timeout},
		ttl:    ttl,
	}
}

// ProbeFromConfig probes sync.connectivity_url with the submit timeout and
// caches answers for half the watcher interval.
func ProbeFromConfig(cfg *config.Config) *Probe {
	if cfg == nil {
		return NewProbe("", 0, 0)
	}
	return NewProbe(cfg.Sync.ConnectivityURL, cfg.SubmitTimeout(), cfg.ConnectivityInterval()/2)
}

func (p *Probe) Online(ctx context.Context) bool {
	if p.url == "" {
		return true
	}
	p.mu.Lock()
	if p.ttl > 0 && !p.checkedAt.IsZero() && time.Since(p.checkedAt) < p.ttl {
		online := p.online
		p.mu.Unlock()
		return online
	}
	p.mu.Unlock()

	online := p.check(ctx)

	p.mu.Lock()
	p.online = online
	p.checkedAt = time.Now()
	p.mu.Unlock()
	return online
}

// Invalidate drops the cached answer.
func (p *Probe) Invalidate() {
	p.mu.Lock()
	p.checkedAt = time.Time{}
	p.mu.Unlock()
}

func (p *Probe) check(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

// Watcher polls a Checker and calls OnRestore on each offline to online
// transition.
type Watcher struct {
	checker   Checker
	interval  time.Duration
	onRestore func(context.Context)
	logger    *slog.Logger
}

// NewWatcher builds a watcher. Invalidating probes are refreshed each tick.
func NewWatcher(checker Checker, interval time.Duration, onRestore func(context.Context), logger *slog.Logger) *Watcher {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Watcher{
		checker:   checker,
		interval:  interval,
		onRestore: onRestore,
		logger:    logging.NewComponentLogger(logger, "connectivity"),
	}
}

// Run blocks until ctx ends.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	online := w.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := w.poll(ctx)
			if now && !online {
				w.logger.Info("connectivity restored", logging.EventType("connectivity_restored"))
				if w.onRestore != nil {
					w.onRestore(ctx)
				}
			} else if !now && online {
				w.logger.Info("connectivity lost", logging.EventType("connectivity_lost"))
			}
			online = now
		}
	}
}

func (w *Watcher) poll(ctx context.Context) bool {
	if probe, ok := w.checker.(*Probe); ok {
		probe.Invalidate()
	}
	return w.checker.Online(ctx)
}
