// Package scenario loads YAML choreographies and runs them on the task
// engine.
//
// A scenario declares a shared state record, named objects with numeric
// fields for tweens to animate, and named tasks made of steps. The tasks
// listed under run are spawned when the scenario starts; everything else is
// reached through fork, spawn and race.
package scenario

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// DefaultDuration bounds headless runs of scenarios that set no duration.
const DefaultDuration = 60.0

// Scenario is a parsed choreography.
type Scenario struct {
	Name     string                        `yaml:"name"`
	FPS      int                           `yaml:"fps,omitempty"`
	Duration float64                       `yaml:"duration,omitempty"` // simulated seconds before remaining tasks are cancelled
	Seed     int64                         `yaml:"seed,omitempty"`
	State    map[string]any                `yaml:"state,omitempty"`
	Objects  map[string]map[string]float64 `yaml:"objects,omitempty"`
	Tasks    map[string]Task               `yaml:"tasks"`
	Run      []string                      `yaml:"run"`
}

// Task is a named list of steps.
type Task struct {
	Steps []Step `yaml:"steps"`
}

// Step is one action. Exactly one field is set.
type Step struct {
	Tween  *TweenStep         `yaml:"tween,omitempty"`
	Sleep  *float64           `yaml:"sleep,omitempty"`
	Emit   map[string]any     `yaml:"emit,omitempty"`
	Add    map[string]float64 `yaml:"add,omitempty"`
	Await  *AwaitStep         `yaml:"await,omitempty"`
	Fork   *TaskRef           `yaml:"fork,omitempty"`
	Spawn  *TaskRef           `yaml:"spawn,omitempty"`
	Cancel string             `yaml:"cancel,omitempty"`
	Join   string             `yaml:"join,omitempty"`
	Race   *RaceStep          `yaml:"race,omitempty"`
	Repeat *RepeatStep        `yaml:"repeat,omitempty"`
	Loop   []Step             `yaml:"loop,omitempty"`
	Log    string             `yaml:"log,omitempty"`
}

// Kind names the action of a step and reports how many actions are set.
func (s Step) Kind() (string, int) {
	kind, n := "", 0
	set := func(name string, ok bool) {
		if ok {
			if n == 0 {
				kind = name
			}
			n++
		}
	}
	set("tween", s.Tween != nil)
	set("sleep", s.Sleep != nil)
	set("emit", s.Emit != nil)
	set("add", s.Add != nil)
	set("await", s.Await != nil)
	set("fork", s.Fork != nil)
	set("spawn", s.Spawn != nil)
	set("cancel", s.Cancel != "")
	set("join", s.Join != "")
	set("race", s.Race != nil)
	set("repeat", s.Repeat != nil)
	set("loop", s.Loop != nil)
	set("log", s.Log != "")
	return kind, n
}

// TweenStep animates objects and waits for the tween to settle.
type TweenStep struct {
	Target        string             `yaml:"target,omitempty"`
	Targets       []string           `yaml:"targets,omitempty"`
	To            map[string]float64 `yaml:"to"`
	Duration      float64            `yaml:"duration"`
	Easing        string             `yaml:"easing,omitempty"` // registry name or a JavaScript expression of t
	Uncancellable bool               `yaml:"uncancellable,omitempty"`
}

// Names returns Target followed by Targets.
func (t TweenStep) Names() []string {
	var names []string
	if t.Target != "" {
		names = append(names, t.Target)
	}
	return append(names, t.Targets...)
}

// AwaitStep waits for the next emit that sets one of Keys. With Until, it
// keeps waiting until every listed field equals its value.
type AwaitStep struct {
	Keys  []string       `yaml:"keys,omitempty"`
	Until map[string]any `yaml:"until,omitempty"`
}

// UnmarshalYAML accepts a key, a list of keys or the full mapping.
func (a *AwaitStep) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		a.Keys = []string{node.Value}
		return nil
	case yaml.SequenceNode:
		return node.Decode(&a.Keys)
	default:
		type plain AwaitStep
		return node.Decode((*plain)(a))
	}
}

// TaskRef starts a named task. As names the handle for cancel and join.
type TaskRef struct {
	Task     string `yaml:"task"`
	As       string `yaml:"as,omitempty"`
	Detached bool   `yaml:"detached,omitempty"`
}

// UnmarshalYAML accepts a bare task name or the full mapping.
func (r *TaskRef) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		r.Task = node.Value
		return nil
	}
	type plain TaskRef
	return node.Decode((*plain)(r))
}

// Handle returns the name the started runner is stored under.
func (r TaskRef) Handle() string {
	if r.As != "" {
		return r.As
	}
	return r.Task
}

// RaceStep runs branches as child tasks and resumes when the first one
// finishes. Losers keep running unless CancelLosers is set. Winner names a
// state key that receives the winning branch name.
type RaceStep struct {
	Branches     map[string][]Step `yaml:"branches"`
	CancelLosers bool              `yaml:"cancel_losers,omitempty"`
	Winner       string            `yaml:"winner,omitempty"`
}

// RepeatStep runs Steps Times times.
type RepeatStep struct {
	Times int    `yaml:"times"`
	Steps []Step `yaml:"steps"`
}

// Parse decodes and validates a scenario.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if apiErr := Validate(&sc); apiErr != nil {
		return nil, apiErr
	}
	return &sc, nil
}
