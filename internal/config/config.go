package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory, socket, and bind address configuration.
type Paths struct {
	StateDir   string `toml:"state_dir"`
	LogDir     string `toml:"log_dir"`
	SocketPath string `toml:"socket_path"`
	APIBind    string `toml:"api_bind"`
	APIToken   string `toml:"api_token"`
}

// Submit contains configuration for the order submit endpoint.
type Submit struct {
	Endpoint               string `toml:"endpoint"`
	APIToken               string `toml:"api_token"`
	TimeoutSeconds         int    `toml:"timeout_seconds"`
	Immediate              bool   `toml:"immediate"`
	ImmediateRetries       int    `toml:"immediate_retries"`
	PermanentFailurePolicy string `toml:"permanent_failure_policy"`
	RateLimitPerMinute     int    `toml:"rate_limit_per_minute"`
	RateLimitBurst         int    `toml:"rate_limit_burst"`
	CircuitBreaker         bool   `toml:"circuit_breaker"`
	BreakerMinRequests     int    `toml:"breaker_min_requests"`
	BreakerFailures        int    `toml:"breaker_failures"`
	BreakerRecoverySeconds int    `toml:"breaker_recovery_seconds"`
}

// Queue contains queue lifecycle and retry policy settings.
type Queue struct {
	FreshnessWindowSeconds int    `toml:"freshness_window_seconds"`
	MaxRetries             int    `toml:"max_retries"`
	BackoffBaseSeconds     int    `toml:"backoff_base_seconds"`
	BackoffCapSeconds      int    `toml:"backoff_cap_seconds"`
	SendingLeaseSeconds    int    `toml:"sending_lease_seconds"`
	PollIntervalSeconds    int    `toml:"poll_interval_seconds"`
	Fallback               string `toml:"fallback"`
}

// Sync contains background processing triggers for the daemon.
type Sync struct {
	Tag                         string `toml:"tag"`
	PeriodicIntervalSeconds     int    `toml:"periodic_interval_seconds"`
	ConnectivityURL             string `toml:"connectivity_url"`
	ConnectivityIntervalSeconds int    `toml:"connectivity_interval_seconds"`
}

// Notifications contains configuration for message fan-out.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	RedisAddr      string `toml:"redis_addr"`
	RedisChannel   string `toml:"redis_channel"`
	HubCapacity    int    `toml:"hub_capacity"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for fieldsync.
//
// Configuration sections by subsystem:
//   - Paths: state, logs, IPC socket and the daemon HTTP bind address
//   - Submit: order endpoint, timeouts and client resilience
//   - Queue: freshness window, retry policy and store fallback
//   - Sync: daemon wake-up triggers
//   - Notifications: ntfy and Redis mirrors of daemon messages
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Submit        Submit        `toml:"submit"`
	Queue         Queue         `toml:"queue"`
	Sync          Sync          `toml:"sync"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("fieldsync.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// QueueDBPath returns the SQLite database location.
func (c *Config) QueueDBPath() string {
	return filepath.Join(c.Paths.StateDir, "queue.db")
}

// QueueLogPath returns the append-only fallback log location.
func (c *Config) QueueLogPath() string {
	return filepath.Join(c.Paths.StateDir, "queue.jsonl")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "fieldsyncd.lock")
}

// PIDPath returns the file fieldsyncd writes its process id to.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "fieldsyncd.pid")
}

// SubmitTimeout is the hard deadline for a single delivery attempt.
func (c *Config) SubmitTimeout() time.Duration {
	return seconds(c.Submit.TimeoutSeconds)
}

// FreshnessWindow is the maximum age of a recorded geolocation.
func (c *Config) FreshnessWindow() time.Duration {
	return seconds(c.Queue.FreshnessWindowSeconds)
}

// BackoffBase is the first backoff step between failed attempts.
func (c *Config) BackoffBase() time.Duration {
	return seconds(c.Queue.BackoffBaseSeconds)
}

// BackoffCap bounds the exponential backoff.
func (c *Config) BackoffCap() time.Duration {
	return seconds(c.Queue.BackoffCapSeconds)
}

// SendingLease is how long a record may remain in sending before it is reclaimed.
func (c *Config) SendingLease() time.Duration {
	return seconds(c.Queue.SendingLeaseSeconds)
}

// PollInterval is the foreground polling cadence.
func (c *Config) PollInterval() time.Duration {
	return seconds(c.Queue.PollIntervalSeconds)
}

// PeriodicInterval is the daemon's periodic wake-up cadence.
func (c *Config) PeriodicInterval() time.Duration {
	return seconds(c.Sync.PeriodicIntervalSeconds)
}

// ConnectivityInterval is how often the connectivity probe runs.
func (c *Config) ConnectivityInterval() time.Duration {
	return seconds(c.Sync.ConnectivityIntervalSeconds)
}

func seconds(value int) time.Duration {
	return time.Duration(value) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
