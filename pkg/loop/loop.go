// Package loop implements the frame driver: it turns an external periodic
// tick into delta-time and runs per-frame update and render callbacks.
//
// A Loop is owned by a single goroutine, the one calling Tick or Step. Every
// method except Post must be called from that goroutine.
package loop

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// Loop is the frame driver. Construct it with New.
type Loop struct {
	clock  Clock
	logger *slog.Logger

	dt      float64
	elapsed float64
	frame   uint64
	paused  bool
	last    time.Time
	panics  uint64

	update callbackSet
	render callbackSet

	mu       sync.Mutex
	queue    []func()
	draining bool
}

// Option configures a Loop.
type Option func(*Loop)

// WithClock sets the clock used by Tick.
func WithClock(c Clock) Option {
	return func(l *Loop) {
		l.clock = c
	}
}

// WithLogger sets the logger used to report recovered callback panics.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		l.logger = logger
	}
}

// New creates a Loop. The first Tick measures delta-time from this call.
func New(opts ...Option) *Loop {
	l := &Loop{
		clock:  SystemClock,
		logger: slog.New(slog.DiscardHandler),
		update: newCallbackSet(),
		render: newCallbackSet(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With("component", "loop")
	l.last = l.clock.Now()
	return l
}

// Tick samples the clock and runs one frame. It is the entry point for
// external tick sources such as a display refresh or a ticker.
func (l *Loop) Tick() {
	if l.paused {
		l.Drain()
		return
	}
	now := l.clock.Now()
	dt := now.Sub(l.last).Seconds()
	l.last = now
	l.runFrame(dt)
}

// Step runs one frame with an explicit delta in seconds instead of sampling
// the clock. Use it for fixed-rate headless driving.
func (l *Loop) Step(dt float64) {
	if l.paused {
		l.Drain()
		return
	}
	l.runFrame(dt)
}

func (l *Loop) runFrame(dt float64) {
	if dt < 0 {
		dt = 0
	}
	l.dt = dt
	l.elapsed += dt
	l.frame++

	l.invoke(&l.update, "update")
	l.Drain()
	l.invoke(&l.render, "render")
	l.Drain()
}

// invoke runs a stable snapshot of set. Entries removed after the snapshot
// was taken are skipped.
func (l *Loop) invoke(set *callbackSet, phase string) {
	for _, e := range set.snapshot() {
		if !set.current(e) {
			continue
		}
		l.call(phase, e.cb.name, e.cb.fn)
	}
}

func (l *Loop) call(phase, name string, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			l.panics++
			l.logger.Error("callback panicked",
				"phase", phase,
				"callback", name,
				"frame", l.frame,
				"panic", fmt.Sprint(p),
				"stack", string(debug.Stack()),
			)
		}
	}()
	fn()
}

// Pause stops invoking callbacks and holds delta-time at zero. Ticks still
// drain posted jobs.
func (l *Loop) Pause() {
	l.paused = true
	l.dt = 0
}

// Resume restarts callbacks. The paused interval is not counted in the next
// delta-time.
func (l *Loop) Resume() {
	l.paused = false
	l.Sync()
}

// Sync resets the last-tick reference to now, so the next Tick does not count
// time spent before this call.
func (l *Loop) Sync() {
	l.last = l.clock.Now()
}

// Paused reports whether the loop is paused.
func (l *Loop) Paused() bool {
	return l.paused
}

// DeltaTime returns the seconds elapsed between the previous two frames.
func (l *Loop) DeltaTime() float64 {
	return l.dt
}

// Elapsed returns the sum of all delta-times.
func (l *Loop) Elapsed() float64 {
	return l.elapsed
}

// Frame returns the number of frames run.
func (l *Loop) Frame() uint64 {
	return l.frame
}

// AddUpdate registers cb to run every frame before render callbacks.
func (l *Loop) AddUpdate(cb *Callback) {
	l.update.add(cb)
}

// RemoveUpdate unregisters cb. It is safe to call from inside a callback.
func (l *Loop) RemoveUpdate(cb *Callback) {
	l.update.remove(cb)
}

// HasUpdate reports whether cb is registered as an update callback.
func (l *Loop) HasUpdate(cb *Callback) bool {
	return l.update.has(cb)
}

// AddRender registers cb to run every frame after update callbacks.
func (l *Loop) AddRender(cb *Callback) {
	l.render.add(cb)
}

// RemoveRender unregisters cb.
func (l *Loop) RemoveRender(cb *Callback) {
	l.render.remove(cb)
}

// OnUpdate wraps fn in a Callback and registers it as an update callback.
func (l *Loop) OnUpdate(fn func()) *Callback {
	cb := NewCallback(fn)
	l.AddUpdate(cb)
	return cb
}

// OnRender wraps fn in a Callback and registers it as a render callback.
func (l *Loop) OnRender(fn func()) *Callback {
	cb := NewCallback(fn)
	l.AddRender(cb)
	return cb
}

// Post queues job to run on the loop goroutine during the next drain. It is
// the only Loop method that is safe to call from any goroutine.
func (l *Loop) Post(job func()) {
	l.mu.Lock()
	l.queue = append(l.queue, job)
	l.mu.Unlock()
}

// Drain runs queued jobs until the queue is empty, including jobs queued by
// the jobs themselves. A nested call from inside a job returns immediately.
func (l *Loop) Drain() {
	if l.draining {
		return
	}
	l.draining = true
	defer func() { l.draining = false }()

	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return
		}
		job := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		l.call("job", "", job)
	}
}

// Stats is a point-in-time view of a Loop.
type Stats struct {
	Frame     uint64
	Elapsed   float64
	DeltaTime float64
	Paused    bool
	Updates   int
	Renders   int
	Pending   int
	Panics    uint64
}

// Stats returns the current counters.
func (l *Loop) Stats() Stats {
	l.mu.Lock()
	pending := len(l.queue)
	l.mu.Unlock()
	return Stats{
		Frame:     l.frame,
		Elapsed:   l.elapsed,
		DeltaTime: l.dt,
		Paused:    l.paused,
		Updates:   l.update.len(),
		Renders:   l.render.len(),
		Pending:   pending,
		Panics:    l.panics,
	}
}
