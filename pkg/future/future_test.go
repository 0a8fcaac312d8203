package future

import "testing"

func TestFuture_ResolveOnce(t *testing.T) {
	f := New[int]()
	var got []int
	f.Then(func(v int) { got = append(got, v) })

	if !f.Resolve(1) {
		t.Fatal("first Resolve returned false")
	}
	if f.Resolve(2) {
		t.Error("second Resolve returned true")
	}
	if len(got) != 1 || got[0] != 1 {
		t.Errorf("waiter calls = %v, want [1]", got)
	}
	if v, ok := f.Value(); !ok || v != 1 {
		t.Errorf("Value() = %d, %v, want 1, true", v, ok)
	}
}

func TestFuture_ThenAfterSettle(t *testing.T) {
	f := Resolved("done")
	called := false
	f.Then(func(v string) {
		called = v == "done"
	})
	if !called {
		t.Error("Then on a settled future did not run immediately")
	}
}

func TestFuture_SubscriptionOrder(t *testing.T) {
	f := New[struct{}]()
	var order []int
	for i := range 3 {
		f.Subscribe(func(any) { order = append(order, i) })
	}
	f.Resolve(struct{}{})
	for i, v := range order {
		if v != i {
			t.Fatalf("order = %v, want [0 1 2]", order)
		}
	}
}

func TestFuture_ResolveFromWaiter(t *testing.T) {
	a := New[int]()
	b := New[int]()
	a.Then(func(v int) { b.Resolve(v * 2) })
	var got int
	b.Then(func(v int) { got = v })

	a.Resolve(21)
	if got != 42 {
		t.Errorf("chained value = %d, want 42", got)
	}
}
