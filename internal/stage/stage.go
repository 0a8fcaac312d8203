// Package stage is the terminal demo: a box that wanders around a field
// while a counter ticks, all choreographed by tasks on the frame loop.
package stage

import (
	"log/slog"
	"math/rand/v2"
	"strconv"

	"github.com/me/cadence/pkg/easing"
	"github.com/me/cadence/pkg/event"
	"github.com/me/cadence/pkg/runner"
	"github.com/me/cadence/pkg/tween"
)

const (
	rotateDuration = 2.0
	moveDuration   = 3.0
)

// Box is the sprite. Positions are field coordinates with the origin at the
// centre of the field.
type Box struct {
	X        float64 `tween:"x"`
	Y        float64 `tween:"y"`
	Rotation float64 `tween:"rotation"`
	Text     string
}

// BoxState is the demo's shared record.
type BoxState struct {
	Count   int  `state:"count" json:"count"`
	Running bool `state:"running" json:"running"`
}

// Stage owns the box, its state container and the tasks that move it.
type Stage struct {
	engine *runner.Engine
	logger *slog.Logger
	rng    *rand.Rand

	box    Box
	state  *event.Event[BoxState]
	curve  easing.Func
	width  float64
	height float64
	flow   *runner.Runner
	tasks  []*runner.Runner
}

// New creates a stage on eng with a field of width by height cells. The
// seed fixes the sequence of random targets.
func New(eng *runner.Engine, width, height int, seed uint64, logger *slog.Logger) *Stage {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Stage{
		engine: eng,
		logger: logger.With("component", "stage"),
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		state:  event.New(BoxState{}),
		curve:  easing.InOutSine,
		width:  float64(width),
		height: float64(height),
	}
}

// Start spawns the click and counter tasks.
func (s *Stage) Start() {
	s.tasks = append(s.tasks,
		s.engine.Spawn(s.click, runner.Named("click")),
		s.engine.Spawn(s.counter, runner.Named("counter")),
	)
}

// Stop cancels every task the stage started.
func (s *Stage) Stop() {
	for _, r := range s.tasks {
		r.Cancel()
	}
	if s.flow != nil {
		s.flow.Cancel()
	}
}

// Toggle flips running, which starts or cancels the box flow.
func (s *Stage) Toggle() {
	if _, err := s.state.Emit(event.Patch{"running": !s.state.Get().Running}); err != nil {
		s.logger.Error("toggle failed", "error", err)
	}
}

// Resize sets the field size in cells.
func (s *Stage) Resize(width, height int) {
	s.width, s.height = float64(width), float64(height)
}

// SetEasing replaces the curve used by tweens started from now on.
func (s *Stage) SetEasing(f easing.Func) {
	s.curve = f
}

// Box returns a copy of the sprite.
func (s *Stage) Box() Box { return s.box }

// State returns the demo's state container.
func (s *Stage) State() *event.Event[BoxState] { return s.state }

// Engine returns the task engine the stage runs on.
func (s *Stage) Engine() *runner.Engine { return s.engine }

// Flow returns the runner moving the box, or nil if it was never started.
func (s *Stage) Flow() *runner.Runner { return s.flow }

func (s *Stage) click(co *runner.Co) error {
	for {
		st := runner.AwaitState(co, s.state.Await("running"))
		if st.Running {
			if s.flow == nil || s.flow.State().IsTerminal() {
				s.flow = s.engine.Spawn(s.move, runner.Named("flow"))
			}
			continue
		}
		if s.flow != nil {
			s.flow.Cancel()
		}
	}
}

func (s *Stage) move(co *runner.Co) error {
	for {
		if _, err := s.state.Emit(event.Patch{"count": s.state.Get().Count + 1}); err != nil {
			return err
		}
		co.Fork(s.rotate, runner.Named("rotate"))

		x := (s.rng.Float64() - 0.5) * s.width
		y := (s.rng.Float64() - 0.5) * s.height
		co.Tween([]any{&s.box}, []tween.Values{{"x": x, "y": y}}, moveDuration, tween.WithEasing(s.curve))
	}
}

func (s *Stage) rotate(co *runner.Co) error {
	rotation := s.rng.Float64() * 360
	co.Tween([]any{&s.box}, []tween.Values{{"rotation": rotation}}, rotateDuration, tween.WithEasing(s.curve))
	return nil
}

func (s *Stage) counter(co *runner.Co) error {
	for {
		st := runner.AwaitState(co, s.state.Await("count"))
		s.box.Text = strconv.Itoa(st.Count)
	}
}
