package preflight

import (
	"context"
	"strings"

	"fieldsync/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckEndpoint(ctx, "Submit endpoint", cfg.Submit.Endpoint, cfg.Submit.APIToken),
	}

	if url := strings.TrimSpace(cfg.Sync.ConnectivityURL); url != "" && url != strings.TrimSpace(cfg.Submit.Endpoint) {
		results = append(results, CheckEndpoint(ctx, "Connectivity probe", url, ""))
	}
	if addr := strings.TrimSpace(cfg.Notifications.RedisAddr); addr != "" {
		results = append(results, CheckRedis(ctx, addr))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
