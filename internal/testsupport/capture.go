package testsupport

import (
	"context"
	"sync"
	"sync/atomic"

	"tapedeck/internal/capture"
)

// IdleLauncher hands out fake capture processes that record nothing and
// exit once signalled.
type IdleLauncher struct {
	launches atomic.Int32
}

// Launches reports how many processes were started.
func (l *IdleLauncher) Launches() int {
	return int(l.launches.Load())
}

// Launch implements capture.Launcher.
func (l *IdleLauncher) Launch(context.Context, capture.Options) (capture.Process, error) {
	n := l.launches.Add(1)
	return &idleProcess{pid: 9000 + int(n), exit: make(chan int, 1)}, nil
}

type idleProcess struct {
	pid  int
	once sync.Once
	exit chan int
}

func (p *idleProcess) finish(code int) {
	p.once.Do(func() { p.exit <- code })
}

func (p *idleProcess) Pid() int              { return p.pid }
func (p *idleProcess) SendQuit(string) error { p.finish(255); return nil }
func (p *idleProcess) Interrupt() error      { p.finish(255); return nil }
func (p *idleProcess) Terminate() error      { p.finish(143); return nil }
func (p *idleProcess) Kill() error           { p.finish(137); return nil }
func (p *idleProcess) Wait() (int, error)    { return <-p.exit, nil }
