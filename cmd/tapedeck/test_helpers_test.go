package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"tapedeck/internal/config"
	"tapedeck/internal/daemon"
	"tapedeck/internal/ipc"
	"tapedeck/internal/logging"
	"tapedeck/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	daemon     *daemon.Daemon
	launcher   *testsupport.IdleLauncher
	socketPath string
	configPath string
	logPath    string
}

// newOfflineEnv writes a config file but starts no daemon.
func newOfflineEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()
	t.Setenv("TAPEDECK_SOURCE_URL", "")
	t.Setenv("TAPEDECK_API_TOKEN", "")
	opts = append([]testsupport.ConfigOption{testsupport.WithSourceURL("rtsp://127.0.0.1:1/stream")}, opts...)
	cfg := testsupport.NewConfig(t, opts...)
	cfg.Paths.APIBind = ""
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{
		cfg:        cfg,
		socketPath: cfg.SocketPath(),
		configPath: configPath,
		logPath:    filepath.Join(cfg.Paths.StateDir, "tapedeck-test.log"),
	}
}

// setupCLITestEnv runs a daemon with an idle capture behind a real socket.
func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()
	env := newOfflineEnv(t, opts...)

	store := testsupport.MustOpenHistory(t, env.cfg)
	env.launcher = &testsupport.IdleLauncher{}
	d, err := daemon.New(env.cfg, store, logging.NewNop(),
		daemon.WithLauncher(env.launcher),
		daemon.WithLogPath(env.logPath),
	)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	env.daemon = d

	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		cancel()
		t.Fatalf("daemon Start: %v", err)
	}
	srv, err := ipc.NewServer(ctx, env.socketPath, d, logging.NewNop())
	if err != nil {
		cancel()
		_ = d.Close()
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping CLI test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	t.Cleanup(func() {
		srv.Close()
		cancel()
		_ = d.Close()
	})
	return env
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func (e *cliTestEnv) run(t *testing.T, args ...string) string {
	t.Helper()
	out, _, err := runCLI(t, args, e.socketPath, e.configPath)
	if err != nil {
		t.Fatalf("tapedeck %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(line + "\n")
	return err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
