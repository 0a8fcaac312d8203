// Package future provides the settle-exactly-once value that tasks suspend on.
//
// A Future is not safe for concurrent use. Resolve it from the goroutine that
// drives the frame loop; other goroutines should hand work over with
// loop.Loop.Post.
package future

// Awaitable is anything that settles exactly once and can report its value.
// If the value has already settled, Subscribe calls fn immediately.
type Awaitable interface {
	Subscribe(fn func(v any))
}

// Future holds a value of type T that becomes available once.
type Future[T any] struct {
	settled bool
	value   T
	waiters []func(T)
}

// New returns an unsettled future.
func New[T any]() *Future[T] {
	return &Future[T]{}
}

// Resolved returns a future that has already settled with v.
func Resolved[T any](v T) *Future[T] {
	return &Future[T]{settled: true, value: v}
}

// Resolve settles the future with v and runs its waiters in subscription
// order. It returns false, and does nothing, if the future already settled.
func (f *Future[T]) Resolve(v T) bool {
	if f.settled {
		return false
	}
	f.settled = true
	f.value = v
	waiters := f.waiters
	f.waiters = nil
	for _, w := range waiters {
		w(v)
	}
	return true
}

// Settled reports whether Resolve has been called.
func (f *Future[T]) Settled() bool {
	return f.settled
}

// Value returns the settled value and whether the future has settled.
func (f *Future[T]) Value() (T, bool) {
	return f.value, f.settled
}

// Then registers fn to run with the settled value.
func (f *Future[T]) Then(fn func(T)) {
	if f.settled {
		fn(f.value)
		return
	}
	f.waiters = append(f.waiters, fn)
}

// Subscribe implements Awaitable.
func (f *Future[T]) Subscribe(fn func(v any)) {
	f.Then(func(v T) { fn(v) })
}
