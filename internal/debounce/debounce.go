// Package debounce keeps at most one scheduled task per key. Scheduling again
// replaces the pending task and restarts its quiet period; Flush and Close run
// pending tasks immediately.
package debounce

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type task struct {
	fn    func()
	timer clockwork.Timer
}

// Group is a set of debounced tasks sharing one quiet period.
type Group struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	delay   time.Duration
	pending map[string]*task
	closed  bool
}

// New creates a Group. A nil clock uses the real clock.
func New(clock clockwork.Clock, delay time.Duration) *Group {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Group{
		clock:   clock,
		delay:   delay,
		pending: make(map[string]*task),
	}
}

// Schedule runs fn after the quiet period unless key is scheduled again
// first. Once the group is closed, or with no quiet period, fn runs
// immediately.
func (g *Group) Schedule(key string, fn func()) {
	g.mu.Lock()
	if g.closed || g.delay <= 0 {
		g.mu.Unlock()
		fn()
		return
	}

	if old, ok := g.pending[key]; ok {
		old.timer.Stop()
	}
	t := &task{fn: fn}
	g.pending[key] = t
	t.timer = g.clock.AfterFunc(g.delay, func() { g.fire(key, t) })
	g.mu.Unlock()
}

// fire runs t if it is still the pending task for key.
func (g *Group) fire(key string, t *task) {
	g.mu.Lock()
	if g.pending[key] != t {
		g.mu.Unlock()
		return
	}
	delete(g.pending, key)
	g.mu.Unlock()

	t.fn()
}

// Flush runs the pending task for key now. It reports whether one existed.
func (g *Group) Flush(key string) bool {
	t := g.take(key)
	if t == nil {
		return false
	}
	t.fn()
	return true
}

// Cancel drops the pending task for key without running it.
func (g *Group) Cancel(key string) bool {
	return g.take(key) != nil
}

func (g *Group) take(key string) *task {
	g.mu.Lock()
	defer g.mu.Unlock()

	t, ok := g.pending[key]
	if !ok {
		return nil
	}
	delete(g.pending, key)
	t.timer.Stop()
	return t
}

// Pending returns the number of scheduled tasks.
func (g *Group) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}

// Close flushes every pending task and makes later Schedule calls run
// immediately.
func (g *Group) Close() {
	g.mu.Lock()
	g.closed = true
	tasks := make([]*task, 0, len(g.pending))
	for key, t := range g.pending {
		t.timer.Stop()
		tasks = append(tasks, t)
		delete(g.pending, key)
	}
	g.mu.Unlock()

	for _, t := range tasks {
		t.fn()
	}
}
