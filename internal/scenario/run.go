package scenario

import (
	"fmt"
	"log/slog"
	"math"
	"reflect"
	"slices"

	"github.com/me/cadence/internal/easingexpr"
	"github.com/me/cadence/pkg/easing"
	"github.com/me/cadence/pkg/event"
	"github.com/me/cadence/pkg/future"
	"github.com/me/cadence/pkg/loop"
	"github.com/me/cadence/pkg/runner"
	"github.com/me/cadence/pkg/tween"
)

// Run is one execution of a scenario on a loop and engine. All methods must
// be called on the loop goroutine.
type Run struct {
	sc      *Scenario
	loop    *loop.Loop
	engine  *runner.Engine
	state   *event.Event[map[string]any]
	objects map[string]map[string]float64
	curves  map[string]easing.Func
	handles map[string]*runner.Runner
	roots   []*runner.Runner
	logger  *slog.Logger
	onLog   []func(task, msg string)
}

// Option configures a Run.
type Option func(*Run)

// WithLogger sets the run logger. Log steps are written to it at INFO.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Run) {
		r.logger = logger
	}
}

// OnLog adds an observer for log steps.
func OnLog(fn func(task, msg string)) Option {
	return func(r *Run) {
		r.onLog = append(r.onLog, fn)
	}
}

// New prepares sc to run on eng. Objects and state are copied, so a scenario
// can be run more than once.
func New(sc *Scenario, eng *runner.Engine, opts ...Option) (*Run, error) {
	r := &Run{
		sc:      sc,
		loop:    eng.Loop(),
		engine:  eng,
		objects: make(map[string]map[string]float64, len(sc.Objects)),
		curves:  make(map[string]easing.Func),
		handles: make(map[string]*runner.Runner),
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "scenario", "scenario", sc.Name)

	initial := make(map[string]any, len(sc.State))
	for k, v := range sc.State {
		initial[k] = v
	}
	r.state = event.New(initial)
	for name, fields := range sc.Objects {
		obj := make(map[string]float64, len(fields))
		for k, v := range fields {
			obj[k] = v
		}
		r.objects[name] = obj
	}

	for _, name := range sortedKeys(sc.Tasks) {
		if err := r.prepare(sc.Tasks[name].Steps); err != nil {
			return nil, fmt.Errorf("task %s: %w", name, err)
		}
	}
	return r, nil
}

// prepare compiles every easing used by steps.
func (r *Run) prepare(steps []Step) error {
	for _, s := range steps {
		switch {
		case s.Tween != nil:
			if _, ok := r.curves[s.Tween.Easing]; ok {
				continue
			}
			f, err := easingexpr.Resolve(s.Tween.Easing, easingexpr.WithLogger(r.logger))
			if err != nil {
				return err
			}
			r.curves[s.Tween.Easing] = f
		case s.Race != nil:
			for _, name := range sortedKeys(s.Race.Branches) {
				if err := r.prepare(s.Race.Branches[name]); err != nil {
					return err
				}
			}
		case s.Repeat != nil:
			if err := r.prepare(s.Repeat.Steps); err != nil {
				return err
			}
		case s.Loop != nil:
			if err := r.prepare(s.Loop); err != nil {
				return err
			}
		}
	}
	return nil
}

// State returns the scenario's state container.
func (r *Run) State() *event.Event[map[string]any] {
	return r.state
}

// Object returns the live fields of a named object.
func (r *Run) Object(name string) map[string]float64 {
	return r.objects[name]
}

// Handle returns the runner started under name by fork or spawn.
func (r *Run) Handle(name string) *runner.Runner {
	return r.handles[name]
}

// Start spawns the tasks listed under run.
func (r *Run) Start() {
	r.logger.Info("scenario started", "tasks", r.sc.Run)
	for _, name := range r.sc.Run {
		r.roots = append(r.roots, r.spawn(name, name, false))
	}
}

// Finished reports whether every root task, every task started by fork or
// spawn, and their descendants are done.
func (r *Run) Finished() bool {
	for _, root := range r.roots {
		if !root.Finished() {
			return false
		}
	}
	for _, h := range r.handles {
		if !h.Finished() {
			return false
		}
	}
	return len(r.roots) > 0
}

// Stop cancels all live tasks. The cancellations settle on the next drain.
func (r *Run) Stop() {
	r.engine.CancelAll()
}

// Result summarizes a headless run.
type Result struct {
	Frames    uint64
	Simulated float64
	Finished  bool // false when the duration ran out first
	Tasks     runner.Stats
}

// RunHeadless starts the scenario and steps the loop by step seconds until
// every task finishes or the scenario duration runs out, then cancels what
// is left.
func (r *Run) RunHeadless(step float64) Result {
	limit := r.sc.Duration
	if limit <= 0 {
		limit = DefaultDuration
	}
	if len(r.roots) == 0 {
		r.Start()
	}
	start := r.loop.Elapsed()
	for !r.Finished() && r.loop.Elapsed()-start < limit-1e-9 {
		r.loop.Step(step)
	}
	finished := r.Finished()
	if !finished {
		r.logger.Info("scenario duration reached, cancelling tasks", "duration", limit)
		r.Stop()
		r.loop.Drain()
	}
	res := Result{
		Frames:    r.loop.Frame(),
		Simulated: r.loop.Elapsed() - start,
		Finished:  finished,
		Tasks:     r.engine.Stats(),
	}
	r.logger.Info("scenario finished", "frames", res.Frames, "simulated", res.Simulated, "completed", finished)
	return res
}

func (r *Run) spawn(task, handle string, detached bool) *runner.Runner {
	opts := []runner.SpawnOption{runner.Named(handle)}
	if detached {
		opts = append(opts, runner.Detached())
	}
	return r.engine.Spawn(r.proc(task, r.sc.Tasks[task].Steps), opts...)
}

func (r *Run) proc(task string, steps []Step) runner.Proc {
	return func(co *runner.Co) error {
		return r.exec(co, task, steps)
	}
}

func (r *Run) exec(co *runner.Co, task string, steps []Step) error {
	for i, s := range steps {
		if err := r.step(co, task, s); err != nil {
			kind, _ := s.Kind()
			return fmt.Errorf("%s step %d (%s): %w", task, i, kind, err)
		}
	}
	return nil
}

func (r *Run) step(co *runner.Co, task string, s Step) error {
	switch {
	case s.Tween != nil:
		return r.tween(co, s.Tween)

	case s.Sleep != nil:
		co.Sleep(*s.Sleep)

	case s.Emit != nil:
		if _, err := r.state.Emit(event.Patch(s.Emit)); err != nil {
			return err
		}

	case s.Add != nil:
		patch := make(event.Patch, len(s.Add))
		for k, delta := range s.Add {
			cur, _ := r.state.Field(k)
			n, ok := number(cur)
			if !ok {
				return fmt.Errorf("add to %q: current value %v is not a number", k, cur)
			}
			patch[k] = n + delta
		}
		if _, err := r.state.Emit(patch); err != nil {
			return err
		}

	case s.Await != nil:
		r.await(co, s.Await)

	case s.Fork != nil:
		child := co.Fork(r.proc(s.Fork.Task, r.sc.Tasks[s.Fork.Task].Steps), forkOpts(s.Fork)...)
		r.handles[s.Fork.Handle()] = child

	case s.Spawn != nil:
		r.handles[s.Spawn.Handle()] = r.spawn(s.Spawn.Task, s.Spawn.Handle(), s.Spawn.Detached)

	case s.Cancel != "":
		h, ok := r.handles[s.Cancel]
		if !ok {
			return fmt.Errorf("cancel: no task started as %q", s.Cancel)
		}
		h.Cancel()

	case s.Join != "":
		h, ok := r.handles[s.Join]
		if !ok {
			return fmt.Errorf("join: no task started as %q", s.Join)
		}
		co.Join(h)

	case s.Race != nil:
		return r.race(co, task, s.Race)

	case s.Repeat != nil:
		for range s.Repeat.Times {
			if err := r.exec(co, task, s.Repeat.Steps); err != nil {
				return err
			}
		}

	case s.Loop != nil:
		for {
			if err := r.exec(co, task, s.Loop); err != nil {
				return err
			}
		}

	case s.Log != "":
		r.logger.Info("scenario log", "task", task, "message", s.Log, "frame", r.loop.Frame())
		for _, fn := range r.onLog {
			fn(task, s.Log)
		}
	}
	return nil
}

func forkOpts(ref *TaskRef) []runner.SpawnOption {
	opts := []runner.SpawnOption{runner.Named(ref.Handle())}
	if ref.Detached {
		opts = append(opts, runner.Detached())
	}
	return opts
}

func (r *Run) tween(co *runner.Co, t *TweenStep) error {
	names := t.Names()
	from := make([]any, 0, len(names))
	to := make([]tween.Values, 0, len(names))
	for _, name := range names {
		obj, ok := r.objects[name]
		if !ok {
			return fmt.Errorf("tween: unknown object %q", name)
		}
		vals := make(tween.Values, len(t.To))
		for k, v := range t.To {
			vals[k] = v
		}
		from = append(from, obj)
		to = append(to, vals)
	}
	opts := []tween.Option{tween.WithEasing(r.curves[t.Easing])}
	if t.Uncancellable {
		opts = append(opts, tween.Uncancellable())
	}
	co.Tween(from, to, t.Duration, opts...)
	return nil
}

func (r *Run) await(co *runner.Co, a *AwaitStep) {
	if len(a.Until) > 0 && matches(r.state.Get(), a.Until) {
		return
	}
	for {
		snap := runner.AwaitState(co, r.state.Await(a.Keys...))
		if matches(snap, a.Until) {
			return
		}
	}
}

func (r *Run) race(co *runner.Co, task string, rs *RaceStep) error {
	names := sortedKeys(rs.Branches)
	entries := make(map[string]future.Awaitable, len(names))
	branches := make(map[string]*runner.Runner, len(names))
	for _, name := range names {
		child := co.Fork(r.proc(task+"."+name, rs.Branches[name]), runner.Named(task+".race."+name))
		entries[name] = child.Done()
		branches[name] = child
	}

	res := co.Race(entries)
	if err := branches[res.Key].Err(); err != nil {
		return fmt.Errorf("race branch %s: %w", res.Key, err)
	}
	if rs.CancelLosers {
		for _, name := range names {
			if name != res.Key {
				branches[name].Cancel()
			}
		}
	}
	if rs.Winner != "" {
		if _, err := r.state.Emit(event.Patch{rs.Winner: res.Key}); err != nil {
			return err
		}
	}
	return nil
}

// matches reports whether every field in want equals the snapshot's value.
// Numbers compare by value whatever their Go type.
func matches(snap map[string]any, want map[string]any) bool {
	for k, w := range want {
		got := snap[k]
		gn, gok := number(got)
		wn, wok := number(w)
		if gok && wok {
			if math.Abs(gn-wn) > 1e-9 {
				return false
			}
			continue
		}
		if !reflect.DeepEqual(got, w) {
			return false
		}
	}
	return true
}

func number(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

// Roots returns the runners spawned by Start, in run order.
func (r *Run) Roots() []*runner.Runner {
	return slices.Clone(r.roots)
}
