package runner

import (
	"github.com/me/cadence/pkg/future"
	"github.com/me/cadence/pkg/tween"
)

// Yieldable is what a procedure hands to Co.Yield. The set of variants is
// closed: ChildTask, TweenWait, SleepWait, RaceWait, StateWait and Plain.
// A nil Yieldable resumes the procedure on the next scheduling opportunity.
type Yieldable interface {
	yieldable()
}

// ChildTask adopts Runner as a child (if it is cancellable) and resumes the
// parent with it right away. It does not wait for the child; use
// Co.Await(child.Done()) to join.
type ChildTask struct {
	Runner *Runner
}

// TweenWait adopts the tween as a child (if cancellable) and resumes with the
// handle once it settles.
type TweenWait struct {
	Handle *tween.Handle
}

// SleepWait resumes with true once the sleep elapses.
type SleepWait struct {
	Done *future.Future[bool]
}

// RaceWait resumes with the RaceResult of a race.
type RaceWait struct {
	Done *future.Future[RaceResult]
}

// StateWait resumes with the snapshot produced by a state container emit.
type StateWait struct {
	Done future.Awaitable
}

// Plain resumes with the value of any awaitable.
type Plain struct {
	Awaitable future.Awaitable
}

func (ChildTask) yieldable() {}
func (TweenWait) yieldable() {}
func (SleepWait) yieldable() {}
func (RaceWait) yieldable()  {}
func (StateWait) yieldable() {}
func (Plain) yieldable()     {}
