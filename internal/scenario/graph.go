package scenario

import (
	"fmt"
	"sort"
	"strings"

	"github.com/me/cadence/pkg/model"
)

// A spawned task runs up to its first suspension before Spawn returns, so a
// task that starts itself (directly or through others) before suspending
// recurses without bound. eagerStarts collects the tasks a step list starts
// before it first suspends, and whether it suspends at all.
func eagerStarts(steps []Step, out map[string]bool) bool {
	for _, s := range steps {
		kind, _ := s.Kind()
		switch kind {
		case "fork":
			out[s.Fork.Task] = true
			return true
		case "spawn":
			out[s.Spawn.Task] = true
		case "race":
			for _, branch := range s.Race.Branches {
				eagerStarts(branch, out)
			}
			return true
		case "repeat":
			if s.Repeat.Times > 0 && eagerStarts(s.Repeat.Steps, out) {
				return true
			}
		case "loop":
			if eagerStarts(s.Loop, out) {
				return true
			}
		default:
			if stepSuspends(s) {
				return true
			}
		}
	}
	return false
}

// checkEagerCycles finds cycles among eager starts with Kahn's algorithm.
func checkEagerCycles(sc *Scenario) []model.FieldError {
	forward := make(map[string][]string, len(sc.Tasks))
	inDegree := make(map[string]int, len(sc.Tasks))
	for name := range sc.Tasks {
		inDegree[name] += 0
		started := make(map[string]bool)
		eagerStarts(sc.Tasks[name].Steps, started)
		for dep := range started {
			if dep == name {
				return []model.FieldError{{
					Path:    "tasks." + name,
					Message: fmt.Sprintf("task %q starts itself before suspending", name),
				}}
			}
			forward[name] = append(forward[name], dep)
			inDegree[dep]++
		}
	}

	var queue []string
	for name, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, name)
		}
	}
	sort.Strings(queue)

	visited := 0
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		visited++
		succ := forward[node]
		sort.Strings(succ)
		for _, s := range succ {
			inDegree[s]--
			if inDegree[s] == 0 {
				queue = append(queue, s)
			}
		}
	}

	if visited == len(inDegree) {
		return nil
	}
	var cycle []string
	for name, deg := range inDegree {
		if deg > 0 {
			cycle = append(cycle, name)
		}
	}
	sort.Strings(cycle)
	return []model.FieldError{{
		Path:    "tasks",
		Message: "tasks start each other before suspending: " + strings.Join(cycle, ", "),
	}}
}
