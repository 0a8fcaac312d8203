// Package event implements the reactive state container: a record whose
// snapshots are replaced, never mutated, on every emit, with listeners and
// one-shot waiters that tasks suspend on.
//
// The record type C is either a struct (keys are the state tag, the json tag
// or the field name of exported fields) or a map with string keys.
//
// An Event is not safe for concurrent use; emit from the loop goroutine.
package event

import (
	"errors"
	"fmt"
	"reflect"
	"slices"

	"github.com/me/cadence/pkg/future"
)

var (
	// ErrUnknownKey is returned when a patch names a key the record lacks.
	ErrUnknownKey = errors.New("unknown key")
	// ErrTypeMismatch is returned when a patch value does not fit its field.
	ErrTypeMismatch = errors.New("type mismatch")
)

// Patch is a partial record: the keys to set and their new values.
type Patch map[string]any

// Listener is a durable subscription returned by On and OnOnce.
type Listener[C any] struct {
	fn      func(snapshot C, changed []string)
	once    bool
	removed bool
}

type waiter[C any] struct {
	keys []string
	done *future.Future[C]
}

func (w *waiter[C]) matches(changed []string) bool {
	if len(w.keys) == 0 {
		return true
	}
	for _, k := range w.keys {
		if slices.Contains(changed, k) {
			return true
		}
	}
	return false
}

// Event holds the current snapshot of a record of type C.
type Event[C any] struct {
	schema    *schema
	snapshot  C
	listeners []*Listener[C]
	waiters   []*waiter[C]
}

// New creates an Event with an initial snapshot. It panics if C is neither a
// struct nor a map with string keys.
func New[C any](initial C) *Event[C] {
	return &Event[C]{
		schema:   newSchema(reflect.TypeOf(&initial).Elem()),
		snapshot: initial,
	}
}

// Get returns the current snapshot.
func (e *Event[C]) Get() C {
	return e.snapshot
}

// Field returns the current value of one key.
func (e *Event[C]) Field(key string) (any, bool) {
	return e.schema.field(reflect.ValueOf(&e.snapshot).Elem(), key)
}

// Keys returns the record keys, in field order for structs and sorted for maps.
func (e *Event[C]) Keys() []string {
	return e.schema.keys(reflect.ValueOf(&e.snapshot).Elem())
}

// Fields returns the current snapshot as a map keyed by record key.
func (e *Event[C]) Fields() map[string]any {
	v := reflect.ValueOf(&e.snapshot).Elem()
	out := make(map[string]any)
	for _, k := range e.schema.keys(v) {
		if val, ok := e.schema.field(v, k); ok {
			out[k] = val
		}
	}
	return out
}

// Emit merges p onto the current snapshot, replaces it, notifies listeners
// with the changed keys and resolves every waiter watching one of them.
// A patch with an unknown key or an ill-typed value leaves the state
// untouched and returns an error.
func (e *Event[C]) Emit(p Patch) (C, error) {
	next, changed, err := e.schema.merge(reflect.ValueOf(&e.snapshot).Elem(), p)
	if err != nil {
		return e.snapshot, fmt.Errorf("emit: %w", err)
	}
	snap := next.Interface().(C)
	e.snapshot = snap

	// Waiters matched here belong to this emit even if a listener emits again.
	var matched, kept []*waiter[C]
	for _, w := range e.waiters {
		if w.matches(changed) {
			matched = append(matched, w)
		} else {
			kept = append(kept, w)
		}
	}
	e.waiters = kept

	for _, l := range slices.Clone(e.listeners) {
		if l.removed {
			continue
		}
		if l.once {
			e.Off(l)
		}
		l.fn(snap, changed)
	}

	for _, w := range matched {
		w.done.Resolve(snap)
	}
	return snap, nil
}

// Await returns a future that resolves with the snapshot produced by the next
// emit that sets one of keys, or by the next emit at all if keys is empty.
// The current value is never replayed. Await panics on a key the record type
// does not have.
func (e *Event[C]) Await(keys ...string) *future.Future[C] {
	for _, k := range keys {
		if !e.schema.has(k) {
			panic(fmt.Sprintf("event: await: %v: %q", ErrUnknownKey, k))
		}
	}
	f := future.New[C]()
	e.waiters = append(e.waiters, &waiter[C]{keys: slices.Clone(keys), done: f})
	return f
}

// Waiting returns the number of pending waiters.
func (e *Event[C]) Waiting() int {
	return len(e.waiters)
}

// On subscribes fn to every emit.
func (e *Event[C]) On(fn func(snapshot C, changed []string)) *Listener[C] {
	l := &Listener[C]{fn: fn}
	e.listeners = append(e.listeners, l)
	return l
}

// OnOnce subscribes fn to the next emit only.
func (e *Event[C]) OnOnce(fn func(snapshot C, changed []string)) *Listener[C] {
	l := &Listener[C]{fn: fn, once: true}
	e.listeners = append(e.listeners, l)
	return l
}

// Off removes a listener. Removing it twice is a no-op.
func (e *Event[C]) Off(l *Listener[C]) {
	if l == nil || l.removed {
		return
	}
	l.removed = true
	e.listeners = slices.DeleteFunc(e.listeners, func(x *Listener[C]) bool { return x == l })
}
