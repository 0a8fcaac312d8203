package loop

import (
	"bytes"
	"log/slog"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type manualClock struct {
	now time.Time
}

func (c *manualClock) Now() time.Time { return c.now }

func (c *manualClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func testLoop(t *testing.T) (*Loop, *manualClock) {
	t.Helper()
	clock := &manualClock{now: time.Unix(1000, 0)}
	return New(WithClock(clock)), clock
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestTick_DeltaAndElapsed(t *testing.T) {
	l, clock := testLoop(t)

	clock.advance(16 * time.Millisecond)
	l.Tick()
	if !almostEqual(l.DeltaTime(), 0.016) {
		t.Errorf("DeltaTime() = %v, want 0.016", l.DeltaTime())
	}

	clock.advance(34 * time.Millisecond)
	l.Tick()
	if !almostEqual(l.DeltaTime(), 0.034) {
		t.Errorf("DeltaTime() = %v, want 0.034", l.DeltaTime())
	}
	if !almostEqual(l.Elapsed(), 0.05) {
		t.Errorf("Elapsed() = %v, want 0.05", l.Elapsed())
	}
	if l.Frame() != 2 {
		t.Errorf("Frame() = %d, want 2", l.Frame())
	}
}

func TestTick_UpdateBeforeRender(t *testing.T) {
	l, _ := testLoop(t)
	var order []string
	l.OnRender(func() { order = append(order, "render") })
	l.OnUpdate(func() { order = append(order, "update1") })
	l.OnUpdate(func() { order = append(order, "update2") })

	l.Step(0.1)

	want := []string{"update1", "update2", "render"}
	if diff := cmp.Diff(want, order); diff != "" {
		t.Errorf("call order mismatch (-want +got):\n%s", diff)
	}
}

func TestPause_HoldsDeltaAndSkipsCallbacks(t *testing.T) {
	l, clock := testLoop(t)
	calls := 0
	l.OnUpdate(func() { calls++ })

	clock.advance(10 * time.Millisecond)
	l.Tick()
	l.Pause()

	clock.advance(5 * time.Second)
	l.Tick()
	if calls != 1 {
		t.Errorf("calls while paused = %d, want 1", calls)
	}
	if l.DeltaTime() != 0 {
		t.Errorf("DeltaTime() while paused = %v, want 0", l.DeltaTime())
	}

	l.Resume()
	clock.advance(20 * time.Millisecond)
	l.Tick()
	if !almostEqual(l.DeltaTime(), 0.02) {
		t.Errorf("DeltaTime() after resume = %v, want 0.02 (paused interval excluded)", l.DeltaTime())
	}
	if calls != 2 {
		t.Errorf("calls after resume = %d, want 2", calls)
	}
}

func TestAddUpdate_SameCallbackOnce(t *testing.T) {
	l, _ := testLoop(t)
	calls := 0
	cb := NewCallback(func() { calls++ })
	l.AddUpdate(cb)
	l.AddUpdate(cb)

	l.Step(0.1)
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRemoveDuringTick_NotInvoked(t *testing.T) {
	l, _ := testLoop(t)
	var second *Callback
	secondCalls := 0
	l.OnUpdate(func() { l.RemoveUpdate(second) })
	second = l.OnUpdate(func() { secondCalls++ })

	l.Step(0.1)
	if secondCalls != 0 {
		t.Errorf("removed callback invoked %d times, want 0", secondCalls)
	}
	if l.HasUpdate(second) {
		t.Error("callback still registered after removal")
	}
}

func TestAddDuringTick_RunsNextTick(t *testing.T) {
	l, _ := testLoop(t)
	added := 0
	var adder *Callback
	adder = l.OnUpdate(func() {
		l.OnUpdate(func() { added++ })
		l.RemoveUpdate(adder)
	})

	l.Step(0.1)
	if added != 0 {
		t.Errorf("callback added mid-tick ran %d times this tick, want 0", added)
	}
	l.Step(0.1)
	if added != 1 {
		t.Errorf("callback added mid-tick ran %d times next tick, want 1", added)
	}
}

func TestCallbackPanic_Isolated(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	l := New(WithLogger(logger))

	after := 0
	rendered := 0
	l.AddUpdate(Named("boom", func() { panic("bad frame") }))
	l.OnUpdate(func() { after++ })
	l.AddRender(Named("render-boom", func() { panic("bad render") }))
	l.OnRender(func() { rendered++ })

	l.Step(0.1)
	if after != 1 || rendered != 1 {
		t.Errorf("after = %d, rendered = %d, want 1, 1", after, rendered)
	}
	if got := l.Stats().Panics; got != 2 {
		t.Errorf("Stats().Panics = %d, want 2", got)
	}
	if !strings.Contains(buf.String(), "callback=boom") {
		t.Errorf("expected panic log naming the callback, got: %s", buf.String())
	}
}

func TestPost_DrainedBeforeRender(t *testing.T) {
	l, _ := testLoop(t)
	value := 0
	seen := -1
	l.OnUpdate(func() {
		l.Post(func() { value = 7 })
	})
	l.OnRender(func() { seen = value })

	l.Step(0.1)
	if seen != 7 {
		t.Errorf("render saw %d, want 7", seen)
	}
}

func TestDrain_ChainedJobsIterative(t *testing.T) {
	l, _ := testLoop(t)
	const depth = 100000
	n := 0
	var job func()
	job = func() {
		n++
		if n < depth {
			l.Post(job)
		}
	}
	l.Post(job)
	l.Drain()
	if n != depth {
		t.Errorf("ran %d jobs, want %d", n, depth)
	}
}

func TestDrain_RunsWhilePaused(t *testing.T) {
	l, _ := testLoop(t)
	l.Pause()
	ran := false
	l.Post(func() { ran = true })
	l.Tick()
	if !ran {
		t.Error("posted job did not run on a paused tick")
	}
}

func TestStats(t *testing.T) {
	l, _ := testLoop(t)
	l.OnUpdate(func() {})
	l.OnRender(func() {})
	l.Post(func() {})

	got := l.Stats()
	want := Stats{Updates: 1, Renders: 1, Pending: 1}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Stats() mismatch (-want +got):\n%s", diff)
	}
}
