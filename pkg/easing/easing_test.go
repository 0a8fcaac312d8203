package easing

import (
	"math"
	"testing"
)

func TestCurves_Endpoints(t *testing.T) {
	for _, name := range Names() {
		f, _ := ByName(name)
		if got := f(0); math.Abs(got) > 1e-9 {
			t.Errorf("%s(0) = %v, want 0", name, got)
		}
		if got := f(1); math.Abs(got-1) > 1e-9 {
			t.Errorf("%s(1) = %v, want 1", name, got)
		}
	}
}

func TestCurves_Midpoints(t *testing.T) {
	tests := []struct {
		name string
		f    Func
		t    float64
		want float64
	}{
		{"linear", Linear, 0.25, 0.25},
		{"inQuad", InQuad, 0.5, 0.25},
		{"outQuad", OutQuad, 0.5, 0.75},
		{"inOutQuad", InOutQuad, 0.5, 0.5},
		{"inCubic", InCubic, 0.5, 0.125},
		{"inOutCubic", InOutCubic, 0.25, 0.0625},
		{"inOutSine", InOutSine, 0.5, 0.5},
		{"inQuint", InQuint, 0.5, 0.03125},
	}
	for _, tt := range tests {
		if got := tt.f(tt.t); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("%s(%v) = %v, want %v", tt.name, tt.t, got, tt.want)
		}
	}
}

func TestLerp(t *testing.T) {
	if got := Lerp(10, 20, 0.5); got != 15 {
		t.Errorf("Lerp(10, 20, 0.5) = %v, want 15", got)
	}
}

func TestByName_Unknown(t *testing.T) {
	if _, ok := ByName("bounce"); ok {
		t.Error("ByName(bounce) = ok, want missing")
	}
}
