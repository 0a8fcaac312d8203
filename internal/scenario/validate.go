package scenario

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/me/cadence/internal/easingexpr"
	"github.com/me/cadence/pkg/model"
)

// Load reads and parses the scenario file at path.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	sc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if sc.Name == "" {
		sc.Name = strings.TrimSuffix(baseName(path), ".yaml")
	}
	return sc, nil
}

func baseName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}

// Validate checks references, step shapes and values.
// Returns nil if valid, or an *model.APIError with FieldError details.
func Validate(sc *Scenario) *model.APIError {
	v := &validator{sc: sc, easings: make(map[string]bool)}

	if len(sc.Tasks) == 0 {
		v.fail("tasks", "at least one task is required")
	}
	if len(sc.Run) == 0 {
		v.fail("run", "at least one task must be listed under run")
	}
	for i, name := range sc.Run {
		if _, ok := sc.Tasks[name]; !ok {
			v.fail(fmt.Sprintf("run[%d]", i), fmt.Sprintf("unknown task %q", name))
		}
	}
	if sc.FPS < 0 || sc.FPS > 1000 {
		v.fail("fps", "must be in 0..1000")
	}
	if sc.Duration < 0 {
		v.fail("duration", "must not be negative")
	}

	for _, name := range sortedKeys(sc.Tasks) {
		v.steps("tasks."+name+".steps", sc.Tasks[name].Steps)
	}
	if len(v.errs) == 0 {
		v.errs = append(v.errs, checkEagerCycles(sc)...)
	}

	if len(v.errs) == 0 {
		return nil
	}
	return model.NewValidationError("scenario validation failed", v.errs...)
}

type validator struct {
	sc      *Scenario
	errs    []model.FieldError
	easings map[string]bool
}

func (v *validator) fail(path, msg string) {
	v.errs = append(v.errs, model.FieldError{Path: path, Message: msg})
}

func (v *validator) steps(path string, steps []Step) {
	for i, s := range steps {
		v.step(fmt.Sprintf("%s[%d]", path, i), s)
	}
}

func (v *validator) step(path string, s Step) {
	kind, n := s.Kind()
	switch {
	case n == 0:
		v.fail(path, "step has no action")
		return
	case n > 1:
		v.fail(path, fmt.Sprintf("step has %d actions, want exactly one", n))
		return
	}

	switch kind {
	case "tween":
		t := s.Tween
		names := t.Names()
		if len(names) == 0 {
			v.fail(path+".tween", "target or targets is required")
		}
		for _, name := range names {
			if _, ok := v.sc.Objects[name]; !ok {
				v.fail(path+".tween", fmt.Sprintf("unknown object %q", name))
			}
		}
		if len(t.To) == 0 {
			v.fail(path+".tween.to", "at least one field is required")
		}
		if t.Duration < 0 {
			v.fail(path+".tween.duration", "must not be negative")
		}
		if t.Easing != "" && !v.easings[t.Easing] {
			if _, err := easingexpr.Resolve(t.Easing); err != nil {
				v.fail(path+".tween.easing", err.Error())
			} else {
				v.easings[t.Easing] = true
			}
		}
	case "sleep":
		if *s.Sleep < 0 {
			v.fail(path+".sleep", "must not be negative")
		}
	case "emit":
		for k := range s.Emit {
			v.stateKey(path+".emit", k)
		}
	case "add":
		for k := range s.Add {
			v.stateKey(path+".add", k)
		}
	case "await":
		for _, k := range s.Await.Keys {
			v.stateKey(path+".await", k)
		}
		for k := range s.Await.Until {
			v.stateKey(path+".await.until", k)
		}
	case "fork", "spawn":
		ref := s.Fork
		if kind == "spawn" {
			ref = s.Spawn
		}
		if _, ok := v.sc.Tasks[ref.Task]; !ok {
			v.fail(path+"."+kind, fmt.Sprintf("unknown task %q", ref.Task))
		}
	case "race":
		if len(s.Race.Branches) == 0 {
			v.fail(path+".race.branches", "at least one branch is required")
		}
		for _, name := range sortedKeys(s.Race.Branches) {
			v.steps(path+".race.branches."+name, s.Race.Branches[name])
		}
		if s.Race.Winner != "" {
			v.stateKey(path+".race.winner", s.Race.Winner)
		}
	case "repeat":
		if s.Repeat.Times < 0 {
			v.fail(path+".repeat.times", "must not be negative")
		}
		v.steps(path+".repeat.steps", s.Repeat.Steps)
	case "loop":
		v.steps(path+".loop", s.Loop)
		if !suspends(s.Loop) {
			v.fail(path+".loop", "loop body never suspends; add a sleep, tween, await, join or race")
		}
	}
}

// stateKey checks that key exists in the initial state. A scenario that
// declares no state at all accepts any key.
func (v *validator) stateKey(path, key string) {
	if len(v.sc.State) == 0 {
		return
	}
	if _, ok := v.sc.State[key]; !ok {
		v.fail(path, fmt.Sprintf("unknown state key %q", key))
	}
}

// suspends reports whether running steps always yields at least once.
func suspends(steps []Step) bool {
	for _, s := range steps {
		if stepSuspends(s) {
			return true
		}
	}
	return false
}

func stepSuspends(s Step) bool {
	kind, _ := s.Kind()
	switch kind {
	case "tween", "sleep", "fork", "join", "race":
		return true
	case "await":
		// an await whose condition already holds returns at once
		return len(s.Await.Until) == 0
	case "repeat":
		return s.Repeat.Times > 0 && suspends(s.Repeat.Steps)
	case "loop":
		return suspends(s.Loop)
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
