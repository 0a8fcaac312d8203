package runner

import (
	"errors"
	"fmt"
	"iter"
	"runtime/debug"
	"slices"

	"github.com/google/uuid"

	"github.com/me/cadence/pkg/future"
	"github.com/me/cadence/pkg/tween"
)

// ErrPanicked is wrapped by every PanicError.
var ErrPanicked = errors.New("procedure panicked")

// PanicError is the failure recorded when a procedure panics.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("procedure panicked: %v", e.Value)
}

func (e *PanicError) Unwrap() error {
	return ErrPanicked
}

// Proc is the body of a task. It runs until it returns, suspending at every
// Co.Yield. A non-nil error is reported to the engine's error sink and
// recorded on the runner; it does not affect siblings or the parent.
type Proc func(co *Co) error

// released unwinds a procedure whose runner is being cancelled.
type released struct{}

// child is anything a runner can cancel along with itself.
type child interface {
	Cancel()
	Cancellable() bool
	Finished() bool
}

// Runner drives one procedure on a coroutine.
type Runner struct {
	id     string
	name   string
	seq    uint64
	engine *Engine
	parent *Runner

	cancellable bool
	cancelled   bool
	state       State
	children    []child

	co   *Co
	next func() (Yieldable, bool)
	stop func()
	err  error
	done *future.Future[State]
}

// SpawnOption configures a new runner.
type SpawnOption func(*Runner)

// Named labels the runner in logs, hooks and task listings.
func Named(name string) SpawnOption {
	return func(r *Runner) {
		r.name = name
	}
}

// Detached makes the runner ignore cancellation from a parent that adopts
// it. Cancel on the runner itself still works.
func Detached() SpawnOption {
	return func(r *Runner) {
		r.cancellable = false
	}
}

// Spawn creates a runner for proc and runs it up to its first yield before
// returning.
func (e *Engine) Spawn(proc Proc, opts ...SpawnOption) *Runner {
	r := &Runner{
		id:          "task_" + uuid.New().String(),
		engine:      e,
		cancellable: true,
		state:       StateCreated,
		done:        future.New[State](),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.co = &Co{r: r}
	r.next, r.stop = iter.Pull(r.sequence(proc))
	e.track(r)
	r.advance(nil)
	return r
}

func (r *Runner) sequence(proc Proc) iter.Seq[Yieldable] {
	return func(yield func(Yieldable) bool) {
		r.co.yield = yield
		defer func() {
			if p := recover(); p != nil {
				if _, ok := p.(released); ok {
					return
				}
				r.err = &PanicError{Value: p, Stack: debug.Stack()}
			}
		}()
		if err := proc(r.co); err != nil {
			r.err = err
		}
	}
}

// advance resumes the procedure with v and waits on whatever it yields next.
func (r *Runner) advance(v any) {
	if r.state.IsTerminal() {
		return
	}
	if r.cancelled {
		r.release()
		return
	}
	if r.state == StateRunning {
		panic(fmt.Sprintf("runner: %s resumed while running", r.id))
	}

	r.setState(StateRunning)
	r.co.resume = v
	y, ok := r.next()
	if !ok {
		r.complete()
		return
	}
	r.setState(StateSuspended)
	r.dispatch(y)
}

func (r *Runner) dispatch(y Yieldable) {
	switch y := y.(type) {
	case nil:
		r.post(nil)
	case ChildTask:
		if y.Runner != nil {
			r.adopt(y.Runner)
		}
		r.post(y.Runner)
	case TweenWait:
		if y.Handle == nil {
			r.post(nil)
			return
		}
		r.adopt(y.Handle)
		y.Handle.Done().Then(func(struct{}) { r.post(y.Handle) })
	case SleepWait:
		if y.Done == nil {
			r.post(false)
			return
		}
		y.Done.Then(func(ok bool) { r.post(ok) })
	case RaceWait:
		if y.Done == nil {
			r.post(RaceResult{})
			return
		}
		y.Done.Then(func(res RaceResult) { r.post(res) })
	case StateWait:
		if y.Done == nil {
			r.post(nil)
			return
		}
		y.Done.Subscribe(r.post)
	case Plain:
		if y.Awaitable == nil {
			r.post(nil)
			return
		}
		y.Awaitable.Subscribe(r.post)
	default:
		panic(fmt.Sprintf("runner: unsupported yieldable %T", y))
	}
}

// post schedules a resumption on the loop's job queue, so a wake-up never
// runs on the stack of whoever settled the awaited value.
func (r *Runner) post(v any) {
	r.engine.loop.Post(func() { r.advance(v) })
}

func (r *Runner) adopt(c child) {
	if !c.Cancellable() {
		return
	}
	r.children = slices.DeleteFunc(r.children, func(x child) bool { return x.Finished() })
	r.children = append(r.children, c)
	if cr, ok := c.(*Runner); ok && cr.parent == nil {
		cr.parent = r
	}
	if r.cancelled {
		c.Cancel()
	}
}

// Cancel flags the runner and every cancellable descendant before returning.
// A suspended runner is released on the next job drain; a running one is
// released after it yields. Cancelling twice, or after the runner finished,
// is harmless.
func (r *Runner) Cancel() {
	if r.cancelled {
		return
	}
	r.cancelled = true
	for _, c := range r.children {
		c.Cancel()
	}
	if !r.state.IsTerminal() {
		r.engine.loop.Post(r.release)
	}
}

// release unwinds the coroutine, running the procedure's deferred calls.
func (r *Runner) release() {
	if r.state.IsTerminal() {
		return
	}
	r.stop()
	r.setState(StateCancelled)
	if r.err != nil {
		r.engine.report(r, r.err)
	}
	r.finish()
}

func (r *Runner) complete() {
	to := StateCompleted
	if r.cancelled {
		to = StateCancelled
	}
	r.setState(to)
	if r.err != nil {
		r.engine.report(r, r.err)
	}
	r.finish()
}

func (r *Runner) finish() {
	r.engine.untrack(r)
	r.done.Resolve(r.state)
}

func (r *Runner) setState(to State) {
	from := r.state
	if !from.CanTransitionTo(to) {
		panic(fmt.Sprintf("runner: %s: invalid transition %s -> %s", r.id, from, to))
	}
	r.state = to
	r.engine.notify(r, from, to)
}

// ID returns the runner's unique ID.
func (r *Runner) ID() string { return r.id }

// Name returns the label given with Named.
func (r *Runner) Name() string { return r.name }

// State returns the current lifecycle state.
func (r *Runner) State() State { return r.state }

// Parent returns the runner that adopted r, or nil.
func (r *Runner) Parent() *Runner { return r.parent }

// Cancellable reports whether a parent's cancellation reaches r.
func (r *Runner) Cancellable() bool { return r.cancellable }

// Cancelled reports whether Cancel reached r. It never flips back.
func (r *Runner) Cancelled() bool { return r.cancelled }

// Err returns the error the procedure returned or the PanicError it died of.
func (r *Runner) Err() error { return r.err }

// Done settles with the terminal state once the runner finishes.
func (r *Runner) Done() *future.Future[State] { return r.done }

// Finished reports whether r and every descendant it tracks have settled.
func (r *Runner) Finished() bool {
	if !r.state.IsTerminal() {
		return false
	}
	for _, c := range r.children {
		if !c.Finished() {
			return false
		}
	}
	return true
}

// Co is a procedure's handle on its own runner.
type Co struct {
	r      *Runner
	yield  func(Yieldable) bool
	resume any
}

// Yield suspends the procedure until y is satisfied and returns the value it
// resumed with. If the runner is cancelled while suspended, Yield does not
// return: the procedure unwinds through its deferred calls instead.
func (co *Co) Yield(y Yieldable) any {
	if !co.yield(y) {
		panic(released{})
	}
	v := co.resume
	co.resume = nil
	return v
}

// Next gives up control until the next scheduling opportunity.
func (co *Co) Next() {
	co.Yield(nil)
}

// Sleep suspends for seconds of loop time.
func (co *Co) Sleep(seconds float64) bool {
	ok, _ := co.Yield(SleepWait{Done: co.r.engine.Sleep(seconds)}).(bool)
	return ok
}

// Tween starts a tween, adopts it and waits for it to settle.
func (co *Co) Tween(from []any, to []tween.Values, duration float64, opts ...tween.Option) *tween.Handle {
	h := co.r.engine.Tween(from, to, duration, opts...)
	co.Yield(TweenWait{Handle: h})
	return h
}

// Await suspends until a settles and returns its value.
func (co *Co) Await(a future.Awaitable) any {
	return co.Yield(Plain{Awaitable: a})
}

// Race suspends until the first of entries settles.
func (co *Co) Race(entries map[string]future.Awaitable) RaceResult {
	res, _ := co.Yield(RaceWait{Done: Race(entries)}).(RaceResult)
	return res
}

// Fork spawns a child task, adopts it and returns without waiting for it.
func (co *Co) Fork(proc Proc, opts ...SpawnOption) *Runner {
	c := co.r.engine.Spawn(proc, opts...)
	co.Yield(ChildTask{Runner: c})
	return c
}

// Join waits for c to finish and returns its terminal state.
func (co *Co) Join(c *Runner) State {
	s, _ := co.Yield(Plain{Awaitable: c.Done()}).(State)
	return s
}

// Runner returns the runner executing the procedure.
func (co *Co) Runner() *Runner { return co.r }

// Engine returns the engine the runner belongs to.
func (co *Co) Engine() *Engine { return co.r.engine }

// Cancelled reports whether the runner has been cancelled. A procedure that
// has not yielded yet may check this to stop early.
func (co *Co) Cancelled() bool { return co.r.cancelled }

// AwaitState waits on a state-container future and returns the snapshot it
// settles with.
func AwaitState[C any](co *Co, f *future.Future[C]) C {
	v, _ := co.Yield(StateWait{Done: f}).(C)
	return v
}
