package event

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/me/cadence/pkg/future"
)

type box struct {
	Count   int     `state:"count"`
	Running bool    `state:"running"`
	Label   string  `json:"label"`
	Speed   float64 // keyed by field name
	hidden  int
}

func TestEmit_MergeLaw(t *testing.T) {
	ev := New(box{Label: "a"})
	patches := []Patch{
		{"count": 1},
		{"running": true},
		{"count": 2, "label": "b"},
		{},
		{"Speed": 1.5},
	}
	want := box{Label: "a"}
	apply := []func(*box){
		func(b *box) { b.Count = 1 },
		func(b *box) { b.Running = true },
		func(b *box) { b.Count = 2; b.Label = "b" },
		func(b *box) {},
		func(b *box) { b.Speed = 1.5 },
	}

	for i, p := range patches {
		got, err := ev.Emit(p)
		if err != nil {
			t.Fatalf("Emit(%v): %v", p, err)
		}
		apply[i](&want)
		if diff := cmp.Diff(want, got, cmp.AllowUnexported(box{})); diff != "" {
			t.Errorf("after patch %d returned snapshot mismatch (-want +got):\n%s", i, diff)
		}
		if diff := cmp.Diff(want, ev.Get(), cmp.AllowUnexported(box{})); diff != "" {
			t.Errorf("after patch %d Get() mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestEmit_PriorSnapshotsUnchanged(t *testing.T) {
	ev := New(map[string]any{"count": 0})
	first := ev.Get()

	if _, err := ev.Emit(Patch{"count": 1, "other": true}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	second := ev.Get()
	if _, err := ev.Emit(Patch{"count": 2}); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	if diff := cmp.Diff(map[string]any{"count": 0}, first); diff != "" {
		t.Errorf("first snapshot changed (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]any{"count": 1, "other": true}, second); diff != "" {
		t.Errorf("second snapshot changed (-want +got):\n%s", diff)
	}
	if got := ev.Get()["count"]; got != 2 {
		t.Errorf("current count = %v, want 2", got)
	}
}

func TestEmit_Errors(t *testing.T) {
	ev := New(box{Count: 3})

	tests := []struct {
		name  string
		patch Patch
		want  error
	}{
		{"unknown key", Patch{"missing": 1}, ErrUnknownKey},
		{"unexported field", Patch{"hidden": 1}, ErrUnknownKey},
		{"wrong type", Patch{"running": "yes"}, ErrTypeMismatch},
		{"nil for int", Patch{"count": nil}, ErrTypeMismatch},
		{"fraction for int", Patch{"count": 1.7}, ErrTypeMismatch},
		{"huge float for int", Patch{"count": 1e300}, ErrTypeMismatch},
		{"NaN for int", Patch{"count": math.NaN()}, ErrTypeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, err := ev.Emit(tt.patch)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Emit error = %v, want %v", err, tt.want)
			}
			if snap.Count != 3 || ev.Get().Count != 3 {
				t.Errorf("state changed on failed emit: %+v", ev.Get())
			}
		})
	}
}

func TestEmit_NumericCoercion(t *testing.T) {
	ev := New(box{})
	if _, err := ev.Emit(Patch{"count": 4.0, "Speed": 2}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if got := ev.Get(); got.Count != 4 || got.Speed != 2 {
		t.Errorf("Get() = %+v, want Count 4, Speed 2", got)
	}
}

type gauge struct {
	Level uint8   `state:"level"`
	Tilt  int8    `state:"tilt"`
	Ratio float32 `state:"ratio"`
}

func TestEmit_NumericRange(t *testing.T) {
	tests := []struct {
		name  string
		patch Patch
		ok    bool
	}{
		{"uint in range", Patch{"level": 255}, true},
		{"uint from whole float", Patch{"level": 3.0}, true},
		{"negative into uint", Patch{"level": -1}, false},
		{"uint overflow", Patch{"level": 256}, false},
		{"negative float into uint", Patch{"level": -2.0}, false},
		{"int8 overflow", Patch{"tilt": 200}, false},
		{"int8 from uint", Patch{"tilt": uint64(100)}, true},
		{"large uint into int8", Patch{"tilt": uint64(1 << 63)}, false},
		{"float32 in range", Patch{"ratio": 0.5}, true},
		{"float32 overflow", Patch{"ratio": 1e300}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := New(gauge{Level: 7, Tilt: -3, Ratio: 1})
			_, err := ev.Emit(tt.patch)
			if tt.ok {
				if err != nil {
					t.Fatalf("Emit(%v): %v", tt.patch, err)
				}
				return
			}
			if !errors.Is(err, ErrTypeMismatch) {
				t.Fatalf("Emit(%v) error = %v, want %v", tt.patch, err, ErrTypeMismatch)
			}
			if got := ev.Get(); got != (gauge{Level: 7, Tilt: -3, Ratio: 1}) {
				t.Errorf("state changed on failed emit: %+v", got)
			}
		})
	}
}

func TestAwait_KeyFilter(t *testing.T) {
	ev := New(box{})
	countDone := ev.Await("count")
	anyDone := ev.Await()

	ev.Emit(Patch{"running": true})
	if countDone.Settled() {
		t.Error("await(count) resolved by an emit that did not set count")
	}
	if !anyDone.Settled() {
		t.Error("await() not resolved by an emit")
	}

	ev.Emit(Patch{"count": 5})
	got, ok := countDone.Value()
	if !ok {
		t.Fatal("await(count) not resolved by an emit setting count")
	}
	if got.Count != 5 || !got.Running {
		t.Errorf("resolved snapshot = %+v, want Count 5 Running true", got)
	}
	if ev.Waiting() != 0 {
		t.Errorf("Waiting() = %d, want 0", ev.Waiting())
	}
}

func TestAwait_MultipleKeys(t *testing.T) {
	ev := New(box{})
	f := ev.Await("count", "label")
	ev.Emit(Patch{"label": "x"})
	if !f.Settled() {
		t.Error("await(count, label) not resolved by label")
	}
}

func TestAwait_NeverReplays(t *testing.T) {
	ev := New(box{Count: 9})
	ev.Emit(Patch{"count": 10})

	f := ev.Await("count")
	if f.Settled() {
		t.Error("await resolved with a value emitted before registration")
	}
}

func TestAwait_UnknownKeyPanics(t *testing.T) {
	ev := New(box{})
	defer func() {
		if recover() == nil {
			t.Error("Await with unknown key did not panic")
		}
	}()
	ev.Await("nope")
}

func TestAwait_ResolvedInSubscriptionOrder(t *testing.T) {
	ev := New(box{})
	var order []int
	for i := range 3 {
		ev.Await("count").Then(func(box) { order = append(order, i) })
	}
	ev.Emit(Patch{"count": 1})
	if diff := cmp.Diff([]int{0, 1, 2}, order); diff != "" {
		t.Errorf("resolution order mismatch (-want +got):\n%s", diff)
	}
}

func TestEmit_ReentrantFromWaiter(t *testing.T) {
	ev := New(box{})
	var second box
	ev.Await("count").Then(func(b box) {
		ev.Await("count").Then(func(b box) { second = b })
		ev.Emit(Patch{"count": b.Count + 1})
	})

	ev.Emit(Patch{"count": 1})
	if second.Count != 2 {
		t.Errorf("re-entrant emit resolved count = %d, want 2", second.Count)
	}
	if got := ev.Get().Count; got != 2 {
		t.Errorf("Get().Count = %d, want 2", got)
	}
}

func TestEmit_ReentrantFromListener(t *testing.T) {
	ev := New(box{})
	first := ev.Await("count")
	var later *future.Future[box]
	l := ev.On(func(b box, _ []string) {
		if b.Count == 1 {
			later = ev.Await("count")
			ev.Emit(Patch{"count": 2})
		}
	})
	defer ev.Off(l)

	ev.Emit(Patch{"count": 1})
	if got, ok := first.Value(); !ok || got.Count != 1 {
		t.Errorf("outer waiter = %+v (settled %v), want count 1", got, ok)
	}
	if got, ok := later.Value(); !ok || got.Count != 2 {
		t.Errorf("nested waiter = %+v (settled %v), want count 2", got, ok)
	}
}

func TestListeners(t *testing.T) {
	ev := New(box{})
	var durable [][]string
	var once int
	l := ev.On(func(_ box, changed []string) { durable = append(durable, changed) })
	ev.OnOnce(func(box, []string) { once++ })

	ev.Emit(Patch{"running": true, "count": 1})
	ev.Emit(Patch{"label": "z"})
	ev.Off(l)
	ev.Off(l)
	ev.Emit(Patch{"count": 2})

	want := [][]string{{"count", "running"}, {"label"}}
	if diff := cmp.Diff(want, durable); diff != "" {
		t.Errorf("listener calls mismatch (-want +got):\n%s", diff)
	}
	if once != 1 {
		t.Errorf("once listener calls = %d, want 1", once)
	}
}

func TestKeysAndFields(t *testing.T) {
	ev := New(box{Count: 1, Label: "l"})
	if diff := cmp.Diff([]string{"count", "running", "label", "Speed"}, ev.Keys()); diff != "" {
		t.Errorf("Keys() mismatch (-want +got):\n%s", diff)
	}
	fields := ev.Fields()
	if fields["count"] != 1 || fields["label"] != "l" {
		t.Errorf("Fields() = %v", fields)
	}
	if v, ok := ev.Field("running"); !ok || v != false {
		t.Errorf("Field(running) = %v, %v", v, ok)
	}
}

func TestNew_RejectsUnsupportedRecord(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("New[int] did not panic")
		}
	}()
	New(42)
}
