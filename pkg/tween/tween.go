// Package tween interpolates numeric fields of caller-owned objects over time.
//
// A tween mutates the targets it is given: it keeps a non-owning reference to
// each target and writes its animated fields every frame until the tween
// settles. Callers must not assume the fields hold their original values while
// a tween is running.
//
// Simulation runs at a fixed step of 1/60 s so the eased curve does not depend
// on frame timing; each frame the live value is blended between the last two
// simulated values by the leftover fraction of a step.
package tween

import (
	"sort"

	"github.com/me/cadence/pkg/easing"
	"github.com/me/cadence/pkg/future"
	"github.com/me/cadence/pkg/loop"
)

// FixedStep is the simulation step in seconds.
const FixedStep = 1.0 / 60

// epsilon absorbs float drift when comparing accumulated time against steps.
const epsilon = 1e-9

// Values are the end values for one target, by field name. Entries that are
// not numbers are ignored.
type Values map[string]any

// Option configures a tween.
type Option func(*Handle)

// WithEasing sets the easing curve. The default is linear.
func WithEasing(f func(t float64) float64) Option {
	return func(h *Handle) {
		if f != nil {
			h.easing = f
		}
	}
}

// OnUpdate sets an observer called every frame with the rendered values of
// each target, and once more with the final values.
func OnUpdate(fn func(values []map[string]float64)) Option {
	return func(h *Handle) {
		h.onUpdate = fn
	}
}

// Uncancellable keeps the tween running when the task that yielded it is
// cancelled. Cancel on the handle still works.
func Uncancellable() Option {
	return func(h *Handle) {
		h.cancellable = false
	}
}

type channel struct {
	target  int
	key     string
	field   field
	initial float64
	to      float64
	prev    float64
	cur     float64
}

// Handle is a running tween.
type Handle struct {
	lp       *loop.Loop
	channels []channel
	targets  int

	duration float64
	elapsed  float64
	steps    int
	acc      float64

	easing      func(float64) float64
	onUpdate    func([]map[string]float64)
	cancellable bool
	cancelled   bool

	cb   *loop.Callback
	done *future.Future[struct{}]
}

// New starts a tween that drives from[i] towards to[i] over duration seconds.
// Only keys that are numeric on both sides animate; other keys, and targets
// without a matching entry in to, are left alone. A duration <= 0 snaps the
// targets and settles before New returns.
func New(lp *loop.Loop, from []any, to []Values, duration float64, opts ...Option) *Handle {
	h := &Handle{
		lp:          lp,
		duration:    duration,
		easing:      easing.Linear,
		cancellable: true,
		done:        future.New[struct{}](),
	}
	for _, opt := range opts {
		opt(h)
	}

	h.targets = min(len(from), len(to))
	for i := 0; i < h.targets; i++ {
		keys := make([]string, 0, len(to[i]))
		for k := range to[i] {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			end, ok := toFloat(to[i][k])
			if !ok {
				continue
			}
			f, ok := resolveField(from[i], k)
			if !ok {
				continue
			}
			start := f.get()
			h.channels = append(h.channels, channel{
				target: i, key: k, field: f,
				initial: start, to: end, prev: start, cur: start,
			})
		}
	}

	if duration <= 0 {
		h.finish()
		return h
	}
	h.cb = loop.Named("tween", h.frame)
	lp.AddUpdate(h.cb)
	return h
}

func (h *Handle) frame() {
	if h.cancelled {
		h.lp.RemoveUpdate(h.cb)
		h.done.Resolve(struct{}{})
		return
	}

	h.step(h.lp.DeltaTime())
	if h.complete() {
		h.lp.RemoveUpdate(h.cb)
		h.finish()
		return
	}
	h.render()
}

// step consumes whole fixed steps from the accumulator.
func (h *Handle) step(dt float64) {
	h.acc += dt
	for h.acc >= FixedStep-epsilon {
		h.acc -= FixedStep
		h.steps++
		h.elapsed = float64(h.steps) * FixedStep

		progress := h.easing(min(h.elapsed/h.duration, 1))
		for i := range h.channels {
			c := &h.channels[i]
			c.prev = c.cur
			c.cur = easing.Lerp(c.initial, c.to, progress)
		}

		if h.complete() {
			h.acc = 0
			return
		}
	}
}

// render writes the blend of the last two simulated values to the targets.
func (h *Handle) render() {
	alpha := min(max(h.acc/FixedStep, 0), 1)
	for i := range h.channels {
		c := &h.channels[i]
		c.field.set(easing.Lerp(c.prev, c.cur, alpha))
	}
	h.notify(func(c *channel) float64 { return easing.Lerp(c.prev, c.cur, alpha) })
}

// finish snaps every field to its end value and settles the tween. The
// observer sees the final values after the tween has settled, so a panicking
// observer cannot keep it alive.
func (h *Handle) finish() {
	for i := range h.channels {
		c := &h.channels[i]
		c.prev, c.cur = c.to, c.to
		c.field.set(c.to)
	}
	h.done.Resolve(struct{}{})
	h.notify(func(c *channel) float64 { return c.to })
}

func (h *Handle) notify(value func(*channel) float64) {
	if h.onUpdate == nil {
		return
	}
	values := make([]map[string]float64, h.targets)
	for i := range values {
		values[i] = make(map[string]float64)
	}
	for i := range h.channels {
		c := &h.channels[i]
		values[c.target][c.key] = value(c)
	}
	h.onUpdate(values)
}

func (h *Handle) complete() bool {
	return h.elapsed >= h.duration-epsilon
}

// Cancel stops the tween on the next update tick, leaving targets at their
// last rendered values. Cancelling a settled tween does nothing.
func (h *Handle) Cancel() {
	h.cancelled = true
}

// Cancelled reports whether Cancel was called.
func (h *Handle) Cancelled() bool {
	return h.cancelled
}

// Cancellable reports whether a parent task may cancel this tween.
func (h *Handle) Cancellable() bool {
	return h.cancellable
}

// Done settles once, when the tween completes or is cancelled.
func (h *Handle) Done() *future.Future[struct{}] {
	return h.done
}

// Finished reports whether the tween has settled.
func (h *Handle) Finished() bool {
	return h.done.Settled()
}

// Elapsed returns the simulated seconds consumed so far.
func (h *Handle) Elapsed() float64 {
	return h.elapsed
}

// Duration returns the tween duration in seconds.
func (h *Handle) Duration() float64 {
	return h.duration
}

// Keys returns the animated keys of target i.
func (h *Handle) Keys(i int) []string {
	var keys []string
	for _, c := range h.channels {
		if c.target == i {
			keys = append(keys, c.key)
		}
	}
	return keys
}
