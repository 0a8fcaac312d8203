package tween

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/me/cadence/pkg/easing"
	"github.com/me/cadence/pkg/loop"
)

type sprite struct {
	X        float64 `tween:"x"`
	Y        float64 `tween:"y"`
	Rotation float64 `json:"rotation"`
	Frame    int
	Name     string
}

func runUntil(t *testing.T, lp *loop.Loop, h *Handle, dts []float64, observe func()) {
	t.Helper()
	for i := 0; !h.Finished(); i++ {
		if i > 10000 {
			t.Fatal("tween did not finish within 10000 frames")
		}
		lp.Step(dts[i%len(dts)])
		if observe != nil {
			observe()
		}
	}
}

func TestTween_LinearEndsExactly(t *testing.T) {
	lp := loop.New()
	s := &sprite{}
	h := New(lp, []any{s}, []Values{{"x": 100}}, 1)

	prev := s.X
	runUntil(t, lp, h, []float64{FixedStep}, func() {
		if s.X < prev {
			t.Fatalf("x decreased from %v to %v", prev, s.X)
		}
		prev = s.X
	})

	if s.X != 100 {
		t.Errorf("x = %v, want exactly 100", s.X)
	}
	if lp.Stats().Updates != 0 {
		t.Errorf("update callbacks = %d after finish, want 0", lp.Stats().Updates)
	}
}

func TestTween_MonotonicUnderJitter(t *testing.T) {
	lp := loop.New()
	s := &sprite{}
	h := New(lp, []any{s}, []Values{{"x": 100}}, 0.75)

	prev := s.X
	runUntil(t, lp, h, []float64{0.004, 0.05, 0.021, 0.0, 0.1, 0.013}, func() {
		if s.X < prev {
			t.Fatalf("x decreased from %v to %v", prev, s.X)
		}
		if s.X < 0 || s.X > 100 {
			t.Fatalf("x = %v outside [0, 100]", s.X)
		}
		prev = s.X
	})
	if s.X != 100 {
		t.Errorf("x = %v, want 100", s.X)
	}
}

func TestTween_FixedStepFollowsEasing(t *testing.T) {
	lp := loop.New()
	s := &sprite{}
	New(lp, []any{s}, []Values{{"x": 100}}, 1, WithEasing(easing.InQuad))

	for range 30 {
		lp.Step(FixedStep)
	}
	// With a whole step consumed per frame the render blend sits on the
	// previous simulated value.
	want := 100 * easing.InQuad(29.0/60)
	if math.Abs(s.X-want) > 1e-6 {
		t.Errorf("x after 30 steps = %v, want %v", s.X, want)
	}
}

func TestTween_RenderBlend(t *testing.T) {
	lp := loop.New()
	s := &sprite{}
	New(lp, []any{s}, []Values{{"x": 60}}, 1)

	lp.Step(1.5 * FixedStep)
	// One step consumed (cur = 1, prev = 0), half a step left over.
	if math.Abs(s.X-0.5) > 1e-6 {
		t.Errorf("x = %v, want 0.5", s.X)
	}
}

func TestTween_CancelLeavesPartialValue(t *testing.T) {
	lp := loop.New()
	s := &sprite{}
	h := New(lp, []any{s}, []Values{{"x": 100}}, 1)

	for range 10 {
		lp.Step(FixedStep)
	}
	h.Cancel()
	if h.Finished() {
		t.Fatal("tween settled synchronously on Cancel, want next tick")
	}
	lp.Step(FixedStep)
	if !h.Finished() {
		t.Fatal("cancelled tween did not settle on the next tick")
	}

	partial := s.X
	if partial < 0 || partial >= 100 {
		t.Errorf("x = %v after cancel, want in [0, 100)", partial)
	}
	for range 100 {
		lp.Step(FixedStep)
	}
	if s.X != partial {
		t.Errorf("x changed after cancel: %v -> %v", partial, s.X)
	}
}

func TestTween_ZeroDurationSnapsSynchronously(t *testing.T) {
	lp := loop.New()
	s := &sprite{X: 3}
	var final []map[string]float64
	h := New(lp, []any{s}, []Values{{"x": 42}}, 0, OnUpdate(func(v []map[string]float64) { final = v }))

	if !h.Finished() {
		t.Error("zero-duration tween not settled on return")
	}
	if s.X != 42 {
		t.Errorf("x = %v, want 42", s.X)
	}
	if lp.Stats().Updates != 0 {
		t.Errorf("zero-duration tween registered %d update callbacks", lp.Stats().Updates)
	}
	if diff := cmp.Diff([]map[string]float64{{"x": 42}}, final); diff != "" {
		t.Errorf("observer values mismatch (-want +got):\n%s", diff)
	}
}

func TestTween_IgnoresMismatchedFields(t *testing.T) {
	lp := loop.New()
	s := &sprite{Name: "box"}
	h := New(lp, []any{s, &sprite{}}, []Values{{
		"x":        10,
		"Name":     "other",
		"missing":  5,
		"rotation": "fast",
	}}, 0)

	if diff := cmp.Diff([]string{"x"}, h.Keys(0)); diff != "" {
		t.Errorf("animated keys mismatch (-want +got):\n%s", diff)
	}
	if h.Keys(1) != nil {
		t.Errorf("surplus target animated keys = %v, want none", h.Keys(1))
	}
	if s.Name != "box" || s.X != 10 {
		t.Errorf("sprite = %+v", s)
	}
}

func TestTween_TargetKinds(t *testing.T) {
	lp := loop.New()
	s := &sprite{}
	floats := map[string]float64{"alpha": 0}
	mixed := map[string]any{"n": 0, "label": "x"}
	h := New(lp, []any{s, floats, mixed}, []Values{
		{"Frame": 10, "rotation": 90},
		{"alpha": 1},
		{"n": 7, "label": 3},
	}, 0.5)

	runUntil(t, lp, h, []float64{0.02}, nil)

	if s.Frame != 10 || s.Rotation != 90 {
		t.Errorf("sprite = %+v, want Frame 10 Rotation 90", s)
	}
	if floats["alpha"] != 1 {
		t.Errorf("alpha = %v, want 1", floats["alpha"])
	}
	if mixed["n"] != 7 {
		t.Errorf("n = %#v, want int 7", mixed["n"])
	}
	if mixed["label"] != "x" {
		t.Errorf("label = %v, want untouched", mixed["label"])
	}
}

func TestTween_NarrowIntegersClamp(t *testing.T) {
	lp := loop.New()
	var pix struct {
		Tilt  int8
		Shade uint8
		Depth uint16
	}
	h := New(lp, []any{&pix}, []Values{{"Tilt": 200, "Shade": -40, "Depth": 1e9}}, 0.25)

	runUntil(t, lp, h, []float64{FixedStep}, func() {
		if pix.Tilt < 0 {
			t.Fatalf("Tilt wrapped to %d", pix.Tilt)
		}
	})

	if pix.Tilt != math.MaxInt8 || pix.Shade != 0 || pix.Depth != math.MaxUint16 {
		t.Errorf("fields = %+v, want Tilt %d Shade 0 Depth %d", pix, math.MaxInt8, math.MaxUint16)
	}
}

func TestTween_ObserverSeesFinalValues(t *testing.T) {
	lp := loop.New()
	a := &sprite{}
	b := &sprite{}
	var calls int
	var last []map[string]float64
	h := New(lp, []any{a, b}, []Values{{"x": 100, "y": 50}, {"x": -20}}, 0.2,
		OnUpdate(func(v []map[string]float64) {
			calls++
			last = v
		}))

	runUntil(t, lp, h, []float64{FixedStep}, nil)

	want := []map[string]float64{{"x": 100, "y": 50}, {"x": -20}}
	if diff := cmp.Diff(want, last); diff != "" {
		t.Errorf("final observer values mismatch (-want +got):\n%s", diff)
	}
	if calls < 2 {
		t.Errorf("observer calls = %d, want per-frame calls plus a final one", calls)
	}
}

func TestTween_PanickingObserverStillSettles(t *testing.T) {
	lp := loop.New()
	s := &sprite{}
	h := New(lp, []any{s}, []Values{{"x": 100}}, 0.1,
		OnUpdate(func([]map[string]float64) { panic("boom") }))

	for range 600 {
		lp.Step(FixedStep)
		if h.Finished() {
			break
		}
	}

	if !h.Finished() {
		t.Fatal("tween with a panicking observer never settled")
	}
	if s.X != 100 {
		t.Errorf("x = %v, want 100", s.X)
	}
	if math.Abs(h.Elapsed()-0.1) > 1e-9 {
		t.Errorf("Elapsed() = %v, want 0.1", h.Elapsed())
	}
	if got := lp.Stats().Updates; got != 0 {
		t.Errorf("update callbacks = %d after finish, want 0", got)
	}
	if lp.Stats().Panics == 0 {
		t.Error("observer panics were not counted by the loop")
	}
}

func TestTween_PausedLoopHoldsTween(t *testing.T) {
	lp := loop.New()
	s := &sprite{}
	h := New(lp, []any{s}, []Values{{"x": 100}}, 0.1)

	lp.Pause()
	for range 20 {
		lp.Step(FixedStep)
	}
	if h.Finished() || s.X != 0 {
		t.Errorf("tween advanced while paused: x = %v", s.X)
	}
}
