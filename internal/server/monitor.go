package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/me/cadence/pkg/event"
	"github.com/me/cadence/pkg/loop"
	"github.com/me/cadence/pkg/model"
	"github.com/me/cadence/pkg/runner"
)

// ErrNoState is returned by state operations when no state container is
// attached to the monitor.
var ErrNoState = errors.New("no state container attached")

// StateSource is a state container seen through the debug API.
type StateSource interface {
	Fields() map[string]any
	Emit(p event.Patch) error
}

type eventState[C any] struct {
	ev *event.Event[C]
}

func (s eventState[C]) Fields() map[string]any { return s.ev.Fields() }

func (s eventState[C]) Emit(p event.Patch) error {
	_, err := s.ev.Emit(p)
	return err
}

// EventState adapts an event container to StateSource.
func EventState[C any](ev *event.Event[C]) StateSource {
	return eventState[C]{ev: ev}
}

// Monitor is the bridge between HTTP handlers and the loop goroutine. The
// loop publishes snapshots for handlers to read; handlers hand commands to
// the loop with Do.
type Monitor struct {
	loop   *loop.Loop
	engine *runner.Engine
	state  StateSource
	every  uint64

	mu   sync.RWMutex
	snap model.Snapshot
	cb   *loop.Callback
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithState exposes a state container through GET and POST /state.
func WithState(s StateSource) MonitorOption {
	return func(m *Monitor) {
		m.state = s
	}
}

// PublishEvery sets how many frames pass between snapshots. The default is 6.
func PublishEvery(frames uint64) MonitorOption {
	return func(m *Monitor) {
		m.every = max(frames, 1)
	}
}

// NewMonitor creates a monitor for lp and eng. Call Attach on the loop
// goroutine to start publishing.
func NewMonitor(lp *loop.Loop, eng *runner.Engine, opts ...MonitorOption) *Monitor {
	m := &Monitor{loop: lp, engine: eng, every: 6}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Attach publishes a first snapshot and registers a render callback that
// publishes every few frames. It must run on the loop goroutine.
func (m *Monitor) Attach() {
	m.Publish()
	m.cb = loop.Named("monitor", func() {
		if m.loop.Frame()%m.every == 0 {
			m.Publish()
		}
	})
	m.loop.AddRender(m.cb)
}

// Detach stops publishing. It must run on the loop goroutine.
func (m *Monitor) Detach() {
	if m.cb != nil {
		m.loop.RemoveRender(m.cb)
	}
}

// Publish captures the current loop, task and state view. It must run on the
// loop goroutine.
func (m *Monitor) Publish() {
	st := m.loop.Stats()
	snap := model.Snapshot{
		Loop: model.LoopStatus{
			Frame:     st.Frame,
			Elapsed:   st.Elapsed,
			DeltaTime: st.DeltaTime,
			Paused:    st.Paused,
			Updates:   st.Updates,
			Renders:   st.Renders,
			Pending:   st.Pending,
			Panics:    st.Panics,
		},
		Tasks:    taskNodes(m.engine.Tasks()),
		Captured: time.Now().UTC(),
	}
	c := m.engine.Stats()
	snap.Counts = model.TaskCounts{
		Spawned:   c.Spawned,
		Live:      c.Live,
		Completed: c.Completed,
		Cancelled: c.Cancelled,
		Failed:    c.Failed,
	}
	if m.state != nil {
		snap.State = m.state.Fields()
	}

	m.mu.Lock()
	m.snap = snap
	m.mu.Unlock()
}

func taskNodes(infos []runner.Info) []model.TaskNode {
	nodes := make([]model.TaskNode, 0, len(infos))
	for _, in := range infos {
		nodes = append(nodes, model.TaskNode{
			ID:          in.ID,
			Name:        in.Name,
			State:       in.State,
			Cancellable: in.Cancellable,
			Cancelled:   in.Cancelled,
			Tweens:      in.Tweens,
			Children:    taskNodes(in.Children),
		})
	}
	return nodes
}

// Snapshot returns the last published snapshot. Safe from any goroutine.
func (m *Monitor) Snapshot() model.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap
}

// HasState reports whether a state container is attached.
func (m *Monitor) HasState() bool {
	return m.state != nil
}

// Do runs fn on the loop goroutine, publishes a fresh snapshot and returns
// fn's error. It blocks until the loop drains its job queue or ctx ends, so
// the loop must be driven by something else.
func (m *Monitor) Do(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	m.loop.Post(func() {
		err := fn()
		m.Publish()
		done <- err
	})
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pause pauses the loop.
func (m *Monitor) Pause(ctx context.Context) error {
	return m.Do(ctx, func() error {
		m.loop.Pause()
		return nil
	})
}

// Resume resumes the loop.
func (m *Monitor) Resume(ctx context.Context) error {
	return m.Do(ctx, func() error {
		m.loop.Resume()
		return nil
	})
}

// Cancel cancels the live task with the given ID. It reports false if no
// such task is live.
func (m *Monitor) Cancel(ctx context.Context, id string) (bool, error) {
	found := false
	err := m.Do(ctx, func() error {
		r := m.engine.Find(id)
		if r == nil {
			return nil
		}
		found = true
		r.Cancel()
		return nil
	})
	return found, err
}

// Emit applies a patch to the attached state container.
func (m *Monitor) Emit(ctx context.Context, p event.Patch) error {
	if m.state == nil {
		return ErrNoState
	}
	return m.Do(ctx, func() error {
		return m.state.Emit(p)
	})
}
