// Package easing provides easing curves for tweens. Every curve maps
// normalized time t in [0,1] to progress, with f(0) = 0 and f(1) = 1.
package easing

import (
	"math"
	"sort"
)

// Func is an easing curve.
type Func func(t float64) float64

// Lerp interpolates between a and b.
func Lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

func Linear(t float64) float64 { return t }

func InQuad(t float64) float64  { return t * t }
func OutQuad(t float64) float64 { return 1 - (1-t)*(1-t) }
func InOutQuad(t float64) float64 {
	if t < 0.5 {
		return 2 * t * t
	}
	return 1 - math.Pow(-2*t+2, 2)/2
}

func InCubic(t float64) float64  { return t * t * t }
func OutCubic(t float64) float64 { return 1 - math.Pow(1-t, 3) }
func InOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - math.Pow(-2*t+2, 3)/2
}

func InQuart(t float64) float64  { return math.Pow(t, 4) }
func OutQuart(t float64) float64 { return 1 - math.Pow(1-t, 4) }
func InOutQuart(t float64) float64 {
	if t < 0.5 {
		return 8 * math.Pow(t, 4)
	}
	return 1 - math.Pow(-2*t+2, 4)/2
}

func InQuint(t float64) float64  { return math.Pow(t, 5) }
func OutQuint(t float64) float64 { return 1 - math.Pow(1-t, 5) }
func InOutQuint(t float64) float64 {
	if t < 0.5 {
		return 16 * math.Pow(t, 5)
	}
	return 1 - math.Pow(-2*t+2, 5)/2
}

func InSine(t float64) float64    { return 1 - math.Cos(t*math.Pi/2) }
func OutSine(t float64) float64   { return math.Sin(t * math.Pi / 2) }
func InOutSine(t float64) float64 { return -(math.Cos(math.Pi*t) - 1) / 2 }

func InCirc(t float64) float64  { return 1 - math.Sqrt(1-t*t) }
func OutCirc(t float64) float64 { return math.Sqrt(1 - (t-1)*(t-1)) }
func InOutCirc(t float64) float64 {
	if t < 0.5 {
		return (1 - math.Sqrt(1-(2*t)*(2*t))) / 2
	}
	return (math.Sqrt(1-(-2*t+2)*(-2*t+2)) + 1) / 2
}

var registry = map[string]Func{
	"linear":         Linear,
	"easeInQuad":     InQuad,
	"easeOutQuad":    OutQuad,
	"easeInOutQuad":  InOutQuad,
	"easeInCubic":    InCubic,
	"easeOutCubic":   OutCubic,
	"easeInOutCubic": InOutCubic,
	"easeInQuart":    InQuart,
	"easeOutQuart":   OutQuart,
	"easeInOutQuart": InOutQuart,
	"easeInQuint":    InQuint,
	"easeOutQuint":   OutQuint,
	"easeInOutQuint": InOutQuint,
	"easeInSine":     InSine,
	"easeOutSine":    OutSine,
	"easeInOutSine":  InOutSine,
	"easeInCirc":     InCirc,
	"easeOutCirc":    OutCirc,
	"easeInOutCirc":  InOutCirc,
}

// ByName looks up a curve by its conventional name, e.g. "easeInOutSine".
func ByName(name string) (Func, bool) {
	f, ok := registry[name]
	return f, ok
}

// Names returns the registered curve names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
