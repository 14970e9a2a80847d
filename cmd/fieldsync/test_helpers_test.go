package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"fieldsync/internal/config"
	"fieldsync/internal/daemon"
	"fieldsync/internal/ipc"
	"fieldsync/internal/logging"
	"fieldsync/internal/notifications"
	"fieldsync/internal/queue"
	"fieldsync/internal/testsupport"
	"fieldsync/internal/workflow"
)

type cliTestEnv struct {
	cfg        *config.Config
	engine     *queue.Engine
	daemon     *daemon.Daemon
	submitter  *testsupport.ScriptedSubmitter
	socketPath string
	configPath string
}

// newCLIConfig writes cfg to a config file under a private HOME and returns
// its path.
func newCLIConfig(t *testing.T, opts ...testsupport.ConfigOption) (*config.Config, string) {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	cfg.Paths.APIBind = ""

	homeDir := filepath.Join(testsupport.BaseDir(cfg), "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)

	configPath := filepath.Join(homeDir, ".config", "fieldsync", "config.toml")
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	writeTestConfig(t, configPath, cfg)
	return cfg, configPath
}

// setupCLITestEnv starts a daemon IPC server backed by a scripted submitter.
func setupCLITestEnv(t *testing.T, steps ...testsupport.Step) *cliTestEnv {
	t.Helper()
	cfg, configPath := newCLIConfig(t)
	return startCLIDaemon(t, cfg, configPath, steps...)
}

// startCLIDaemon serves cfg over IPC without starting background passes.
func startCLIDaemon(t *testing.T, cfg *config.Config, configPath string, steps ...testsupport.Step) *cliTestEnv {
	t.Helper()
	logger := logging.NewNop()
	engine := testsupport.NewEngine(t, cfg, testsupport.MustOpenStore(t, cfg))
	submitter := testsupport.NewScriptedSubmitter(steps...)
	hub := notifications.NewHub(32)
	background := workflow.NewBackground(engine, submitter, hub, workflow.PolicyFrom(cfg), cfg.Sync.Tag, logger)
	background.SetSleeper(func(context.Context, time.Duration) error { return nil })

	d, err := daemon.New(cfg, daemon.Deps{Engine: engine, Background: background, Hub: hub}, logger)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	srv, err := ipc.NewServer(ctx, cfg.Paths.SocketPath, d, logger)
	if err != nil {
		cancel()
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping CLI test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Stop()
	})

	return &cliTestEnv{
		cfg:        cfg,
		engine:     engine,
		daemon:     d,
		submitter:  submitter,
		socketPath: cfg.Paths.SocketPath,
		configPath: configPath,
	}
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	return runCLIWithInput(t, nil, args, socket, configPath)
}

func runCLIWithInput(t *testing.T, stdin io.Reader, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	if stdin != nil {
		cmd.SetIn(stdin)
	}
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

// missingSocket returns a socket path nothing listens on.
func missingSocket(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "absent.sock")
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
