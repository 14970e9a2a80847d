package connectivity_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"fieldsync/internal/connectivity"
	"fieldsync/internal/logging"
)

func TestProbeTreatsAnyResponseAsOnline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if !connectivity.NewProbe(srv.URL, time.Second, 0).Online(context.Background()) {
		t.Fatal("a 503 still proves the network path works")
	}
}

func TestProbeOfflineWhenUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()
	if connectivity.NewProbe(url, time.Second, 0).Online(context.Background()) {
		t.Fatal("expected offline for closed server")
	}
}

func TestProbeCachesWithinTTL(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	probe := connectivity.NewProbe(srv.URL, time.Second, time.Minute)
	probe.Online(context.Background())
	probe.Online(context.Background())
	if hits.Load() != 1 {
		t.Fatalf("expected cached answer, got %d hits", hits.Load())
	}
	probe.Invalidate()
	probe.Online(context.Background())
	if hits.Load() != 2 {
		t.Fatalf("expected refresh after invalidate, got %d hits", hits.Load())
	}
}

func TestEmptyProbeURLIsOnline(t *testing.T) {
	if !connectivity.NewProbe("", 0, 0).Online(context.Background()) {
		t.Fatal("empty url should report online")
	}
}

type flipChecker struct{ online atomic.Bool }

func (f *flipChecker) Online(context.Context) bool { return f.online.Load() }

func TestWatcherSignalsRestoration(t *testing.T) {
	checker := &flipChecker{}
	restored := make(chan struct{}, 4)
	watcher := connectivity.NewWatcher(checker, 10*time.Millisecond, func(context.Context) {
		restored <- struct{}{}
	}, logging.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go watcher.Run(ctx)

	time.Sleep(30 * time.Millisecond)
	checker.online.Store(true)

	select {
	case <-restored:
	case <-time.After(2 * time.Second):
		t.Fatal("expected restore callback")
	}
	time.Sleep(50 * time.Millisecond)
	if len(restored) != 0 {
		t.Fatalf("restore should fire once per transition, extra=%d", len(restored))
	}
}
