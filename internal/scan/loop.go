package scan

import (
	"sync"
	"time"

	"github.com/zombor/arcade-scan/internal/clock"
)

// FrameScheduler is the host's per-frame callback facility
type FrameScheduler interface {
	// Schedule arranges for fn to run on the next frame. The returned func cancels it.
	Schedule(fn func()) (cancel func())
}

// TickScheduler schedules frames on a fixed interval
type TickScheduler struct {
	clock    clock.Clock
	interval time.Duration
}

// NewTickScheduler creates a TickScheduler firing every interval
func NewTickScheduler(clk clock.Clock, interval time.Duration) *TickScheduler {
	if clk == nil {
		clk = clock.Real{}
	}
	return &TickScheduler{clock: clk, interval: interval}
}

// Schedule runs fn after one frame interval
func (t *TickScheduler) Schedule(fn func()) func() {
	timer := t.clock.AfterFunc(t.interval, fn)
	return func() { timer.Stop() }
}

// Loop drives a self-rescheduling tick handler. Each Start opens a new
// generation; ticks and Next calls from older generations do nothing.
type Loop struct {
	scheduler FrameScheduler
	// handler returns true when it started async work that will call Next itself
	handler func(gen uint64) bool

	mu      sync.Mutex
	gen     uint64
	running bool
	cancel  func()
}

// NewLoop creates a stopped Loop
func NewLoop(scheduler FrameScheduler, handler func(gen uint64) bool) *Loop {
	return &Loop{scheduler: scheduler, handler: handler}
}

// Start begins a new generation and schedules its first tick
func (l *Loop) Start() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopLocked()
	l.gen++
	l.running = true
	l.scheduleLocked(l.gen)
	return l.gen
}

// Stop cancels the pending tick. No tick does work after Stop returns.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopLocked()
}

// Next schedules the following tick of generation gen
func (l *Loop) Next(gen uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running || gen != l.gen || l.cancel != nil {
		return
	}
	l.scheduleLocked(gen)
}

// Running reports whether the loop is started
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

func (l *Loop) stopLocked() {
	l.running = false
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
}

func (l *Loop) scheduleLocked(gen uint64) {
	l.cancel = l.scheduler.Schedule(func() { l.tick(gen) })
}

func (l *Loop) tick(gen uint64) {
	l.mu.Lock()
	if !l.running || gen != l.gen {
		l.mu.Unlock()
		return
	}
	l.cancel = nil
	l.mu.Unlock()

	if !l.handler(gen) {
		l.Next(gen)
	}
}
