package supervisor

import (
	"context"
	"errors"
	"sync"
	"time"

	"tapedeck/internal/capture"
)

// fakeProcess exits when one of the actions listed in honor is delivered.
type fakeProcess struct {
	pid   int
	honor map[string]int
	exit  chan int

	mu       sync.Mutex
	calls    []string
	callTime map[string]time.Time
	failAll  bool
}

func newFakeProcess(pid int, honor map[string]int) *fakeProcess {
	return &fakeProcess{pid: pid, honor: honor, exit: make(chan int, 1), callTime: map[string]time.Time{}}
}

func (p *fakeProcess) record(action string) error {
	p.mu.Lock()
	p.calls = append(p.calls, action)
	p.callTime[action] = time.Now()
	fail := p.failAll
	p.mu.Unlock()
	if code, ok := p.honor[action]; ok {
		p.finish(code)
	}
	if fail {
		return errors.New("no such process")
	}
	return nil
}

func (p *fakeProcess) finish(code int) {
	select {
	case p.exit <- code:
	default:
	}
}

func (p *fakeProcess) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *fakeProcess) CalledAt(action string) time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.callTime[action]
}

func (p *fakeProcess) Pid() int              { return p.pid }
func (p *fakeProcess) SendQuit(string) error { return p.record("quit") }
func (p *fakeProcess) Interrupt() error      { return p.record("interrupt") }
func (p *fakeProcess) Terminate() error      { return p.record("terminate") }
func (p *fakeProcess) Kill() error           { p.finish(137); return p.record("kill") }
func (p *fakeProcess) Wait() (int, error)    { return <-p.exit, nil }

// fakeLauncher hands out processes built by next and publishes each launch.
type fakeLauncher struct {
	mu       sync.Mutex
	next     func(n int) (*fakeProcess, error)
	launched chan *fakeProcess
	count    int
}

func newFakeLauncher(next func(n int) (*fakeProcess, error)) *fakeLauncher {
	return &fakeLauncher{next: next, launched: make(chan *fakeProcess, 64)}
}

func (l *fakeLauncher) Launch(_ context.Context, _ capture.Options) (capture.Process, error) {
	l.mu.Lock()
	l.count++
	n := l.count
	l.mu.Unlock()
	proc, err := l.next(n)
	if err != nil {
		return nil, err
	}
	l.launched <- proc
	return proc, nil
}

func (l *fakeLauncher) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

type memoryRecorder struct {
	mu     sync.Mutex
	cycles []Cycle
}

func (r *memoryRecorder) RecordCycle(_ context.Context, cycle Cycle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cycles = append(r.cycles, cycle)
	return nil
}

func (r *memoryRecorder) Cycles() []Cycle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Cycle(nil), r.cycles...)
}

// monitorFunc adapts a function to Monitor.
type monitorFunc func(ctx context.Context, requestRestart func(string) bool)

func (f monitorFunc) Watch(ctx context.Context, requestRestart func(string) bool) {
	f(ctx, requestRestart)
}
