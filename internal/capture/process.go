// Package capture starts and signals the external capture program.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"

	"tapedeck/internal/logging"
)

// ErrNotStarted is returned when signalling a process that never started.
var ErrNotStarted = errors.New("capture process not started")

// Process is the control surface the supervisor needs from a running capture.
type Process interface {
	Pid() int
	// SendQuit writes the textual quit command to the process input.
	SendQuit(command string) error
	Interrupt() error
	Terminate() error
	Kill() error
	// Wait blocks until the process exits and returns its exit code. A
	// process killed by a signal reports 128 plus the signal number.
	Wait() (int, error)
}

// Launcher starts capture processes.
type Launcher interface {
	Launch(ctx context.Context, opts Options) (Process, error)
}

// ExecLauncher runs the capture program with os/exec. Program output is
// logged at debug level, one record per line.
type ExecLauncher struct {
	Logger *slog.Logger
}

// Launch starts the program described by opts. The context only scopes the
// start; the process is stopped through the Process methods.
func (l ExecLauncher) Launch(ctx context.Context, opts Options) (Process, error) {
	return l.LaunchCommand(ctx, opts.FFmpegPath, opts.Args(), opts.OutputDir)
}

// LaunchCommand starts an arbitrary program with a quit-capable stdin pipe.
func (l ExecLauncher) LaunchCommand(ctx context.Context, path string, args []string, dir string) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cmd := exec.Command(path, args...)
	cmd.Dir = dir
	configureCommand(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("capture stdin: %w", err)
	}
	out := &lineLogger{logger: logging.NewComponentLogger(l.Logger, "ffmpeg")}
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("start %s: %w", path, err)
	}
	return &execProcess{cmd: cmd, stdin: stdin, out: out}, nil
}

type execProcess struct {
	cmd   *exec.Cmd
	out   *lineLogger
	mu    sync.Mutex
	stdin io.WriteCloser
}

func (p *execProcess) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *execProcess) SendQuit(command string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stdin == nil {
		return os.ErrClosed
	}
	if !strings.HasSuffix(command, "\n") {
		command += "\n"
	}
	_, err := io.WriteString(p.stdin, command)
	return err
}

func (p *execProcess) Interrupt() error {
	if p.cmd.Process == nil {
		return ErrNotStarted
	}
	return interruptProcess(p.cmd.Process)
}

func (p *execProcess) Terminate() error {
	if p.cmd.Process == nil {
		return ErrNotStarted
	}
	return terminateProcess(p.cmd.Process)
}

func (p *execProcess) Kill() error {
	if p.cmd.Process == nil {
		return ErrNotStarted
	}
	return p.cmd.Process.Kill()
}

func (p *execProcess) Wait() (int, error) {
	err := p.cmd.Wait()
	p.mu.Lock()
	if p.stdin != nil {
		_ = p.stdin.Close()
		p.stdin = nil
	}
	p.mu.Unlock()
	p.out.flush()

	if p.cmd.ProcessState == nil {
		return -1, err
	}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return exitCode(p.cmd.ProcessState), err
	}
	return exitCode(p.cmd.ProcessState), nil
}

// lineLogger turns program output into debug log lines.
type lineLogger struct {
	mu     sync.Mutex
	logger *slog.Logger
	buf    []byte
}

func (w *lineLogger) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, p...)
	for {
		idx := indexLineEnd(w.buf)
		if idx < 0 {
			break
		}
		w.emit(string(w.buf[:idx]))
		w.buf = w.buf[idx+1:]
	}
	return len(p), nil
}

func (w *lineLogger) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) > 0 {
		w.emit(string(w.buf))
		w.buf = nil
	}
}

func (w *lineLogger) emit(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	w.logger.Debug(line)
}

// indexLineEnd treats carriage returns as line ends; ffmpeg redraws its
// progress line with them.
func indexLineEnd(b []byte) int {
	for i, c := range b {
		if c == '\n' || c == '\r' {
			return i
		}
	}
	return -1
}
