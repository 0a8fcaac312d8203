package easingexpr

import (
	"bytes"
	"errors"
	"log/slog"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/me/cadence/pkg/easing"
)

func TestCompile_Expressions(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want func(float64) float64
	}{
		{"smoothstep", "t*t*(3-2*t)", func(t float64) float64 { return t * t * (3 - 2*t) }},
		{"builtin call", "easeOutQuad(t)", easing.OutQuad},
		{"math", "Math.sin(t * Math.PI / 2)", easing.OutSine},
		{"body", "if (t < 0.5) { return 0; } return 1;", func(t float64) float64 {
			if t < 0.5 {
				return 0
			}
			return 1
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Compile(tt.expr)
			if err != nil {
				t.Fatalf("Compile(%q): %v", tt.expr, err)
			}
			for _, x := range []float64{0, 0.1, 0.5, 0.9, 1} {
				if got, want := c.Eval(x), tt.want(x); math.Abs(got-want) > 1e-12 {
					t.Errorf("Eval(%v) = %v, want %v", x, got, want)
				}
			}
			if c.Source() != tt.expr {
				t.Errorf("Source() = %q", c.Source())
			}
		})
	}
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{"empty", "  "},
		{"syntax", "t *"},
		{"unknown identifier", "bounce(t)"},
		{"not finite", "1 / t"},
		{"nan", "Math.sqrt(-1 - t)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Compile(tt.expr); err == nil {
				t.Errorf("Compile(%q) succeeded, want error", tt.expr)
			}
		})
	}
}

func TestEval_RuntimeFailureFallsBackToLinear(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	c, err := Compile("if (t > 1) { throw new Error('overshoot'); } return t * t;", WithLogger(logger))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	if got := c.Eval(2); got != 2 {
		t.Errorf("Eval(2) = %v, want linear 2", got)
	}
	c.Eval(3)
	if n := strings.Count(buf.String(), "easing expression failed"); n != 1 {
		t.Errorf("failure logged %d times, want 1", n)
	}
	if got := c.Func()(0.5); got != 0.25 {
		t.Errorf("Func()(0.5) = %v, want 0.25", got)
	}
}

func TestCompile_Timeout(t *testing.T) {
	start := time.Now()
	_, err := Compile("while (true) {} return t", WithTimeout(20*time.Millisecond))
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Compile error = %v, want %v", err, ErrTimeout)
	}
	if d := time.Since(start); d > 2*time.Second {
		t.Errorf("Compile took %v", d)
	}
}

func TestEval_TimeoutFallsBackToLinear(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	c, err := Compile("if (t > 1) { for (;;) {} } return t * t;",
		WithLogger(logger), WithTimeout(20*time.Millisecond))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if got := c.Eval(0.5); got != 0.25 {
		t.Errorf("Eval(0.5) = %v, want 0.25", got)
	}

	if got := c.Eval(2); got != 2 {
		t.Errorf("Eval(2) = %v, want linear 2", got)
	}
	if got := c.Eval(0.5); got != 0.5 {
		t.Errorf("Eval(0.5) after timeout = %v, want linear 0.5", got)
	}
	if !strings.Contains(buf.String(), "timed out") {
		t.Errorf("timeout not logged: %s", buf.String())
	}
}

func TestResolve(t *testing.T) {
	f, err := Resolve("")
	if err != nil || f(0.3) != 0.3 {
		t.Errorf("Resolve(\"\") = linear? err %v", err)
	}
	f, err = Resolve("easeInCubic")
	if err != nil || f(0.5) != easing.InCubic(0.5) {
		t.Errorf("Resolve(easeInCubic) err %v", err)
	}
	f, err = Resolve("1 - (1 - t) * (1 - t)")
	if err != nil || math.Abs(f(0.5)-0.75) > 1e-12 {
		t.Errorf("Resolve(expression) err %v", err)
	}
	if _, err := Resolve("nope("); err == nil {
		t.Error("Resolve of a bad expression succeeded")
	}
}
