package daemon_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"tapedeck/internal/api"
	"tapedeck/internal/capture"
	"tapedeck/internal/config"
	"tapedeck/internal/daemon"
	"tapedeck/internal/logging"
	"tapedeck/internal/segments"
	"tapedeck/internal/testsupport"
)

func newDaemon(t *testing.T, cfg *config.Config, launcher capture.Launcher) *daemon.Daemon {
	t.Helper()
	store := testsupport.MustOpenHistory(t, cfg)
	d, err := daemon.New(cfg, store, logging.NewNop(), daemon.WithLauncher(launcher))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Stop)
	return d
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	launcher := &testsupport.IdleLauncher{}
	d := newDaemon(t, cfg, launcher)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, "capture running", func() bool {
		return d.Status(ctx).Capture.State == "running"
	})
	if launcher.Launches() < 1 {
		t.Fatal("expected a capture launch")
	}

	waitFor(t, "api listener", func() bool { return d.APIAddr() != "" })
	resp, err := http.Get("http://" + d.APIAddr() + "/api/status")
	if err != nil {
		t.Fatalf("GET /api/status: %v", err)
	}
	defer resp.Body.Close()
	var payload api.DaemonStatus
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !payload.Running || payload.Capture.State != "running" || payload.Capture.PID == 0 {
		t.Fatalf("unexpected status payload: %#v", payload.Capture)
	}

	done := d.Done()
	d.Stop()
	select {
	case <-done:
	default:
		t.Fatal("Done should be closed after Stop")
	}
	if d.Status(ctx).Running {
		t.Fatal("expected daemon to report stopped")
	}

	lock := flock.New(cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil || !ok {
		t.Fatalf("expected lock to be released (ok=%v err=%v)", ok, err)
	}
	_ = lock.Unlock()

	summary, cycles, _, err := d.History(ctx, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if summary.Cycles != 1 || len(cycles) != 1 || cycles[0].Outcome != "stopped" {
		t.Fatalf("expected one stopped cycle, got %#v", cycles)
	}
}

func TestDaemonRejectsSecondStart(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newDaemon(t, cfg, &testsupport.IdleLauncher{})
	ctx := context.Background()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := d.Start(ctx); !errors.Is(err, daemon.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}

	other := newDaemon(t, cfg, &testsupport.IdleLauncher{})
	if err := other.Start(ctx); !errors.Is(err, daemon.ErrAlreadyRunning) {
		t.Fatalf("expected lock contention to be reported, got %v", err)
	}
}

func TestDaemonOperationsRequireRunning(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newDaemon(t, cfg, &testsupport.IdleLauncher{})

	if _, err := d.RequestRestart("test"); !errors.Is(err, daemon.ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning from RequestRestart, got %v", err)
	}
	if _, err := d.Prune(context.Background()); !errors.Is(err, daemon.ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning from Prune, got %v", err)
	}
	status := d.APIStatus(context.Background())
	if status.Running || status.Capture.State != "stopped" {
		t.Fatalf("unexpected offline status: %#v", status)
	}
}

func TestDaemonRestartStartsNewCycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	launcher := &testsupport.IdleLauncher{}
	d := newDaemon(t, cfg, launcher)
	ctx := context.Background()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "first launch", func() bool { return launcher.Launches() == 1 })
	waitFor(t, "capture running", func() bool { return d.Status(ctx).Capture.State == "running" })

	requested, err := d.RequestRestart("operator test")
	if err != nil || !requested {
		t.Fatalf("RequestRestart = %v, %v", requested, err)
	}
	waitFor(t, "second launch", func() bool { return launcher.Launches() == 2 })
}

func TestDaemonPruneAppliesCaps(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithRetention(1, "1 GiB"))
	if err := os.MkdirAll(cfg.Paths.OutputDir, 0o755); err != nil {
		t.Fatalf("mkdir output: %v", err)
	}
	paths := testsupport.WriteSegments(t, cfg.Paths.OutputDir, cfg.SegmentExtension(), 10, 10, 10)
	d := newDaemon(t, cfg, &testsupport.IdleLauncher{})
	ctx := context.Background()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := d.Prune(ctx); err != nil {
		t.Fatalf("Prune: %v", err)
	}
	files, err := segments.List(cfg.Paths.OutputDir, cfg.SegmentExtension())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(files) != 1 || files[0].Path != paths[2] {
		t.Fatalf("expected only the newest segment to remain, got %#v", files)
	}
	if _, err := os.Stat(filepath.Clean(paths[0])); !os.IsNotExist(err) {
		t.Fatalf("expected oldest segment removed, stat err=%v", err)
	}
}

// stubbornLauncher hands out processes that ignore every polite signal and
// take a while to die after SIGKILL.
type stubbornLauncher struct {
	reaped atomic.Bool
}

func (l *stubbornLauncher) Launch(context.Context, capture.Options) (capture.Process, error) {
	return &stubbornProcess{launcher: l, exit: make(chan int, 1)}, nil
}

type stubbornProcess struct {
	launcher *stubbornLauncher
	once     sync.Once
	exit     chan int
}

func (p *stubbornProcess) Pid() int              { return 4321 }
func (p *stubbornProcess) SendQuit(string) error { return nil }
func (p *stubbornProcess) Interrupt() error      { return nil }
func (p *stubbornProcess) Terminate() error      { return nil }

func (p *stubbornProcess) Kill() error {
	p.once.Do(func() {
		time.AfterFunc(200*time.Millisecond, func() { p.exit <- 137 })
	})
	return nil
}

func (p *stubbornProcess) Wait() (int, error) {
	code := <-p.exit
	p.launcher.reaped.Store(true)
	return code, nil
}

func TestStopWaitsForReapPastBudget(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)
	launcher := &stubbornLauncher{}
	d, err := daemon.New(cfg, store, logging.NewNop(),
		daemon.WithLauncher(launcher),
		daemon.WithStopBudget(50*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "capture running", func() bool { return d.Status(ctx).Capture.State == "running" })

	d.Stop()
	if !launcher.reaped.Load() {
		t.Fatal("Stop returned before the capture process was reaped")
	}
	select {
	case <-d.Done():
	default:
		t.Fatal("expected Done to be closed after Stop")
	}
}
