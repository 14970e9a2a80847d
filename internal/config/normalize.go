package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeSubmit()
	c.normalizeQueue()
	c.normalizeSync()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.StateDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.SocketPath) == "" {
		c.Paths.SocketPath = filepath.Join(c.Paths.StateDir, "fieldsync.sock")
	}
	if c.Paths.SocketPath, err = expandPath(c.Paths.SocketPath); err != nil {
		return fmt.Errorf("paths.socket_path: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

func (c *Config) normalizeSubmit() {
	c.Submit.Endpoint = strings.TrimSpace(c.Submit.Endpoint)
	if c.Submit.Endpoint == "" {
		if value, ok := os.LookupEnv("FIELDSYNC_ENDPOINT"); ok {
			c.Submit.Endpoint = strings.TrimSpace(value)
		}
	}
	c.Submit.APIToken = strings.TrimSpace(c.Submit.APIToken)
	if c.Submit.APIToken == "" {
		if value, ok := os.LookupEnv("FIELDSYNC_API_TOKEN"); ok {
			c.Submit.APIToken = strings.TrimSpace(value)
		}
	}
	if c.Submit.TimeoutSeconds <= 0 {
		c.Submit.TimeoutSeconds = defaultSubmitTimeoutSeconds
	}
	if c.Submit.ImmediateRetries < 0 {
		c.Submit.ImmediateRetries = 0
	}
	c.Submit.PermanentFailurePolicy = strings.ToLower(strings.TrimSpace(c.Submit.PermanentFailurePolicy))
	switch c.Submit.PermanentFailurePolicy {
	case "":
		c.Submit.PermanentFailurePolicy = PermanentPolicyUniform
	case "fail-fast", "failfast":
		c.Submit.PermanentFailurePolicy = PermanentPolicyFailFast
	}
	if c.Submit.RateLimitPerMinute < 0 {
		c.Submit.RateLimitPerMinute = 0
	}
	if c.Submit.RateLimitPerMinute > 0 && c.Submit.RateLimitBurst <= 0 {
		c.Submit.RateLimitBurst = 1
	}
}

func (c *Config) normalizeQueue() {
	if c.Queue.FreshnessWindowSeconds <= 0 {
		c.Queue.FreshnessWindowSeconds = defaultFreshnessWindowSeconds
	}
	c.Queue.Fallback = strings.ToLower(strings.TrimSpace(c.Queue.Fallback))
	if c.Queue.Fallback == "" {
		c.Queue.Fallback = FallbackAuto
	}
}

func (c *Config) normalizeSync() {
	c.Sync.Tag = strings.TrimSpace(c.Sync.Tag)
	if c.Sync.Tag == "" {
		c.Sync.Tag = defaultSyncTag
	}
	c.Sync.ConnectivityURL = strings.TrimSpace(c.Sync.ConnectivityURL)
	if c.Sync.ConnectivityURL == "" {
		c.Sync.ConnectivityURL = c.Submit.Endpoint
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	c.Notifications.RedisAddr = strings.TrimSpace(c.Notifications.RedisAddr)
	if c.Notifications.RedisAddr == "" {
		if value, ok := os.LookupEnv("REDIS_ADDR"); ok {
			c.Notifications.RedisAddr = strings.TrimSpace(value)
		}
	}
	c.Notifications.RedisChannel = strings.TrimSpace(c.Notifications.RedisChannel)
	if c.Notifications.RedisChannel == "" {
		c.Notifications.RedisChannel = defaultRedisChannel
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
	if c.Notifications.HubCapacity <= 0 {
		c.Notifications.HubCapacity = defaultHubCapacity
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
