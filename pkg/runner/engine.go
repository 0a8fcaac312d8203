// Package runner implements the cooperative task tree.
//
// A Runner drives a procedure, a plain Go function that suspends itself by
// calling Co.Yield with something to wait for: a child task, a tween, a sleep,
// a race, a state-container await or any other awaitable. The procedure runs
// on a coroutine (iter.Pull), so exactly one piece of code runs at a time and
// control only changes hands at yields. Resumptions are posted to the frame
// loop's job queue and never recurse.
//
// Cancelling a runner flags it and, synchronously and depth-first, every
// cancellable child it has adopted. A cancelled runner is never resumed
// again: the next time it would be, its coroutine is released instead, which
// unwinds the procedure through its deferred calls.
package runner

import (
	"cmp"
	"log/slog"
	"slices"

	"github.com/me/cadence/pkg/future"
	"github.com/me/cadence/pkg/loop"
	"github.com/me/cadence/pkg/tween"
)

// Transition describes one runner state change. Hooks receive every
// transition in the order they happen.
type Transition struct {
	ID       string
	Name     string
	ParentID string
	From     State
	To       State
	Err      error
	Frame    uint64
	Elapsed  float64
}

// Hook observes runner transitions.
type Hook func(Transition)

// Stats counts runners by outcome.
type Stats struct {
	Spawned   int `json:"spawned"`
	Live      int `json:"live"`
	Completed int `json:"completed"`
	Cancelled int `json:"cancelled"`
	Failed    int `json:"failed"`
}

// Engine spawns runners on a frame loop and keeps track of the live ones.
// Like the loop, it belongs to the loop goroutine.
type Engine struct {
	loop    *loop.Loop
	logger  *slog.Logger
	onError func(*Runner, error)
	hooks   []Hook

	seq   uint64
	live  map[string]*Runner
	stats Stats
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithErrorSink sets a function called when a procedure returns an error or
// panics. Failures are logged whether or not a sink is set.
func WithErrorSink(fn func(r *Runner, err error)) Option {
	return func(e *Engine) {
		e.onError = fn
	}
}

// WithHook adds a transition observer.
func WithHook(h Hook) Option {
	return func(e *Engine) {
		e.hooks = append(e.hooks, h)
	}
}

// NewEngine creates an Engine driven by lp.
func NewEngine(lp *loop.Loop, opts ...Option) *Engine {
	e := &Engine{
		loop:   lp,
		logger: slog.New(slog.DiscardHandler),
		live:   make(map[string]*Runner),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "runner")
	return e
}

// AddHook adds a transition observer after construction.
func (e *Engine) AddHook(h Hook) {
	e.hooks = append(e.hooks, h)
}

// Loop returns the frame loop the engine schedules on.
func (e *Engine) Loop() *loop.Loop {
	return e.loop
}

// Sleep returns a future that settles with true once the loop has fed at
// least seconds of delta-time to it.
func (e *Engine) Sleep(seconds float64) *future.Future[bool] {
	f := future.New[bool]()
	remaining := seconds
	var cb *loop.Callback
	cb = loop.Named("sleep", func() {
		remaining -= e.loop.DeltaTime()
		if remaining <= 0 {
			e.loop.RemoveUpdate(cb)
			f.Resolve(true)
		}
	})
	e.loop.AddUpdate(cb)
	return f
}

// Tween starts a tween on the engine's loop. See tween.New.
func (e *Engine) Tween(from []any, to []tween.Values, duration float64, opts ...tween.Option) *tween.Handle {
	return tween.New(e.loop, from, to, duration, opts...)
}

// Find returns the live runner with the given ID, or nil.
func (e *Engine) Find(id string) *Runner {
	return e.live[id]
}

// Stats returns runner counters.
func (e *Engine) Stats() Stats {
	s := e.stats
	s.Live = len(e.live)
	return s
}

// CancelAll cancels every live runner.
func (e *Engine) CancelAll() {
	for _, r := range e.liveRunners() {
		r.Cancel()
	}
}

// Info is a read-only view of a runner and its live child runners.
type Info struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	State       string `json:"state"`
	Cancellable bool   `json:"cancellable"`
	Cancelled   bool   `json:"cancelled"`
	Tweens      int    `json:"tweens"`
	Children    []Info `json:"children,omitempty"`
}

// Tasks returns the tree of live runners. A live runner whose parent has
// finished is listed at the top level.
func (e *Engine) Tasks() []Info {
	var roots []Info
	for _, r := range e.liveRunners() {
		if r.parent == nil || e.live[r.parent.id] == nil {
			roots = append(roots, e.info(r))
		}
	}
	return roots
}

func (e *Engine) info(r *Runner) Info {
	in := Info{
		ID:          r.id,
		Name:        r.name,
		State:       r.state.String(),
		Cancellable: r.cancellable,
		Cancelled:   r.cancelled,
	}
	for _, c := range r.children {
		switch c := c.(type) {
		case *Runner:
			if e.live[c.id] != nil {
				in.Children = append(in.Children, e.info(c))
			}
		case *tween.Handle:
			if !c.Finished() {
				in.Tweens++
			}
		}
	}
	return in
}

func (e *Engine) liveRunners() []*Runner {
	rs := make([]*Runner, 0, len(e.live))
	for _, r := range e.live {
		rs = append(rs, r)
	}
	slices.SortFunc(rs, func(a, b *Runner) int { return cmp.Compare(a.seq, b.seq) })
	return rs
}

func (e *Engine) track(r *Runner) {
	e.seq++
	r.seq = e.seq
	e.live[r.id] = r
	e.stats.Spawned++
}

func (e *Engine) untrack(r *Runner) {
	delete(e.live, r.id)
	switch {
	case r.err != nil:
		e.stats.Failed++
	case r.state == StateCancelled:
		e.stats.Cancelled++
	default:
		e.stats.Completed++
	}
}

func (e *Engine) notify(r *Runner, from, to State) {
	e.logger.Debug("task transition", "task_id", r.id, "name", r.name, "from", from, "to", to)
	if len(e.hooks) == 0 {
		return
	}
	t := Transition{
		ID:      r.id,
		Name:    r.name,
		From:    from,
		To:      to,
		Err:     r.err,
		Frame:   e.loop.Frame(),
		Elapsed: e.loop.Elapsed(),
	}
	if r.parent != nil {
		t.ParentID = r.parent.id
	}
	for _, h := range e.hooks {
		h(t)
	}
}

func (e *Engine) report(r *Runner, err error) {
	e.logger.Error("task failed", "task_id", r.id, "name", r.name, "error", err)
	if e.onError != nil {
		e.onError(r, err)
	}
}
