package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"fieldsync/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Backoff is shortened so retry paths run quickly; processors under test
// normally replace the sleeper anyway.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Paths.SocketPath = shortSocketPath(t)
	cfgVal.Submit.Endpoint = "http://127.0.0.1:1/orders"
	cfgVal.Sync.ConnectivityURL = ""
	cfgVal.Logging.Level = "error"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithEndpoint points the submit client at url.
func WithEndpoint(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Submit.Endpoint = url
		b.cfg.Sync.ConnectivityURL = url
	}
}

// WithMaxRetries overrides the retry bound.
func WithMaxRetries(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Queue.MaxRetries = n
	}
}

// WithFallback selects the store fallback mode.
func WithFallback(mode string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Queue.Fallback = mode
	}
}

// WithPermanentPolicy selects how permanent rejections are counted.
func WithPermanentPolicy(policy string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Submit.PermanentFailurePolicy = policy
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}

// shortSocketPath keeps unix socket paths under the sun_path limit, which
// t.TempDir paths can exceed.
func shortSocketPath(t testing.TB) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "fsync")
	if err != nil {
		t.Fatalf("mkdir socket dir: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return filepath.Join(dir, "fs.sock")
}
