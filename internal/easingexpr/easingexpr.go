// Package easingexpr compiles JavaScript easing expressions (goja).
//
// An expression is evaluated with t bound to the tween progress in [0, 1],
// for example "t*t*(3-2*t)" or "easeOutQuad(t) * 0.5 + t * 0.5". Every
// built-in curve is callable by its registry name, and Math is available.
// Source containing a return statement is treated as a function body.
package easingexpr

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/dop251/goja"

	"github.com/me/cadence/pkg/easing"
)

var (
	// ErrNotFinite is returned when a sample evaluates to NaN or an infinity.
	ErrNotFinite = errors.New("easing expression is not finite")
	// ErrTimeout is returned when one evaluation runs longer than the limit.
	ErrTimeout = errors.New("easing expression timed out")
)

// DefaultTimeout bounds a single evaluation.
const DefaultTimeout = 50 * time.Millisecond

// samples are the progress values checked at compile time.
var samples = []float64{0, 0.25, 0.5, 0.75, 1}

// Curve is a compiled expression. A Curve owns its VM and is not safe for
// concurrent use, which matches tweens running on a single loop goroutine.
type Curve struct {
	src     string
	vm      *goja.Runtime
	fn      goja.Callable
	logger  *slog.Logger
	timeout time.Duration
	failed  bool
	stuck   bool
}

// Option configures Compile.
type Option func(*Curve)

// WithLogger sets the logger used to report runtime script errors.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Curve) {
		c.logger = logger
	}
}

// WithTimeout bounds each evaluation. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(c *Curve) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// Compile parses src and checks that it yields a finite number over [0, 1].
func Compile(src string, opts ...Option) (*Curve, error) {
	c := &Curve{src: src, logger: slog.New(slog.DiscardHandler), timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(c)
	}

	code := strings.TrimSpace(src)
	if code == "" {
		return nil, errors.New("empty easing expression")
	}

	vm := goja.New()
	for _, name := range easing.Names() {
		f, _ := easing.ByName(name)
		if err := vm.Set(name, func(t float64) float64 { return f(t) }); err != nil {
			return nil, fmt.Errorf("set %s: %w", name, err)
		}
	}

	var wrapped string
	if strings.Contains(code, "return") {
		wrapped = fmt.Sprintf("(function(t) { %s })", code)
	} else {
		wrapped = fmt.Sprintf("(function(t) { return (%s); })", code)
	}
	prog, err := goja.Compile("easing", wrapped, true)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", src, err)
	}
	val, err := vm.RunProgram(prog)
	if err != nil {
		return nil, fmt.Errorf("load %q: %w", src, err)
	}
	fn, ok := goja.AssertFunction(val)
	if !ok {
		return nil, fmt.Errorf("compile %q: not a function", src)
	}
	c.vm = vm
	c.fn = fn

	for _, t := range samples {
		if _, err := c.call(t); err != nil {
			return nil, fmt.Errorf("evaluate %q at t=%v: %w", src, t, err)
		}
	}
	return c, nil
}

func (c *Curve) call(t float64) (float64, error) {
	fired := make(chan struct{})
	timer := time.AfterFunc(c.timeout, func() {
		c.vm.Interrupt(ErrTimeout)
		close(fired)
	})
	v, err := c.fn(goja.Undefined(), c.vm.ToValue(t))
	if !timer.Stop() {
		<-fired
	}
	c.vm.ClearInterrupt()

	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return 0, fmt.Errorf("%w after %s", ErrTimeout, c.timeout)
	}
	if err != nil {
		return 0, err
	}
	f := v.ToFloat()
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, ErrNotFinite
	}
	return f, nil
}

// Eval returns the eased progress for t. A script error at runtime falls back
// to linear and is logged once. After a timeout the script is not run again.
func (c *Curve) Eval(t float64) float64 {
	if c.stuck {
		return easing.Linear(t)
	}
	v, err := c.call(t)
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			c.stuck = true
		}
		if !c.failed {
			c.failed = true
			c.logger.Warn("easing expression failed, using linear", "expr", c.src, "t", t, "error", err)
		}
		return easing.Linear(t)
	}
	return v
}

// Func returns Eval as an easing function.
func (c *Curve) Func() easing.Func {
	return c.Eval
}

// Source returns the expression the curve was compiled from.
func (c *Curve) Source() string {
	return c.src
}

// Resolve returns the built-in curve called name, or compiles name as an
// expression when no built-in matches. An empty name is linear.
func Resolve(name string, opts ...Option) (easing.Func, error) {
	if name == "" {
		return easing.Linear, nil
	}
	if f, ok := easing.ByName(name); ok {
		return f, nil
	}
	c, err := Compile(name, opts...)
	if err != nil {
		return nil, err
	}
	return c.Func(), nil
}
