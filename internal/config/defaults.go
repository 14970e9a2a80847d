package config

const (
	defaultConfigPath             = "~/.config/fieldsync/config.toml"
	defaultStateDir               = "~/.local/share/fieldsync"
	defaultAPIBind                = "127.0.0.1:7491"
	defaultSubmitTimeoutSeconds   = 10
	defaultImmediateRetries       = 1
	defaultBreakerMinRequests     = 5
	defaultBreakerFailures        = 5
	defaultBreakerRecoverySeconds = 30
	defaultFreshnessWindowSeconds = 90
	defaultMaxRetries             = 5
	defaultBackoffBaseSeconds     = 2
	defaultBackoffCapSeconds      = 16
	defaultSendingLeaseSeconds    = 60
	defaultPollIntervalSeconds    = 30
	defaultSyncTag                = "submission-queue"
	defaultPeriodicSeconds        = 300
	defaultConnectivitySeconds    = 15
	defaultNotifyRequestTimeout   = 10
	defaultRedisChannel           = "fieldsync:messages"
	defaultHubCapacity            = 256
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
)

// Permanent failure policies for non-transient 4xx rejections.
const (
	PermanentPolicyUniform  = "uniform"
	PermanentPolicyFailFast = "fail_fast"
)

// Store fallback modes.
const (
	FallbackAuto   = "auto"
	FallbackNever  = "never"
	FallbackAlways = "always"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			APIBind:  defaultAPIBind,
		},
		Submit: Submit{
			TimeoutSeconds:         defaultSubmitTimeoutSeconds,
			Immediate:              true,
			ImmediateRetries:       defaultImmediateRetries,
			PermanentFailurePolicy: PermanentPolicyUniform,
			BreakerMinRequests:     defaultBreakerMinRequests,
			BreakerFailures:        defaultBreakerFailures,
			BreakerRecoverySeconds: defaultBreakerRecoverySeconds,
		},
		Queue: Queue{
			FreshnessWindowSeconds: defaultFreshnessWindowSeconds,
			MaxRetries:             defaultMaxRetries,
			BackoffBaseSeconds:     defaultBackoffBaseSeconds,
			BackoffCapSeconds:      defaultBackoffCapSeconds,
			SendingLeaseSeconds:    defaultSendingLeaseSeconds,
			PollIntervalSeconds:    defaultPollIntervalSeconds,
			Fallback:               FallbackAuto,
		},
		Sync: Sync{
			Tag:                         defaultSyncTag,
			PeriodicIntervalSeconds:     defaultPeriodicSeconds,
			ConnectivityIntervalSeconds: defaultConnectivitySeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			RedisChannel:   defaultRedisChannel,
			HubCapacity:    defaultHubCapacity,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
