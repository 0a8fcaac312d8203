package stage

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/me/cadence/pkg/loop"
	"github.com/me/cadence/pkg/runner"
)

type manualClock struct {
	now time.Time
}

func (c *manualClock) Now() time.Time { return c.now }

func (c *manualClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newStage(t *testing.T) (*Stage, *loop.Loop, *manualClock) {
	t.Helper()
	clock := &manualClock{now: time.Unix(1000, 0)}
	lp := loop.New(loop.WithClock(clock))
	return New(runner.NewEngine(lp), 40, 10, 7, nil), lp, clock
}

func step(lp *loop.Loop, seconds float64) {
	for n := int(seconds * 60); n > 0; n-- {
		lp.Step(1.0 / 60)
	}
}

func TestStage_ToggleRunsAndCancelsFlow(t *testing.T) {
	st, lp, _ := newStage(t)
	st.Start()

	st.Toggle()
	lp.Drain()
	flow := st.Flow()
	if flow == nil || flow.State().IsTerminal() {
		t.Fatal("toggle did not start the flow")
	}
	lp.Drain()
	if got := st.State().Get().Count; got != 1 {
		t.Errorf("count = %d, want 1 right after start", got)
	}
	if st.Box().Text != "1" {
		t.Errorf("box text = %q, want 1", st.Box().Text)
	}

	step(lp, moveDuration+0.1)
	if got := st.State().Get().Count; got != 2 {
		t.Errorf("count = %d, want 2 after one move", got)
	}
	moved := st.Box()
	if moved.X == 0 && moved.Y == 0 {
		t.Error("box did not move")
	}
	if moved.X < -20 || moved.X > 20 || moved.Y < -5 || moved.Y > 5 {
		t.Errorf("box left the field: %+v", moved)
	}

	st.Toggle()
	lp.Drain()
	if flow.State() != runner.StateCancelled {
		t.Errorf("flow state = %v, want CANCELLED", flow.State())
	}
	lp.Drain()
	before := st.Box()
	step(lp, 1)
	if after := st.Box(); after.X != before.X || after.Y != before.Y || after.Rotation != before.Rotation {
		t.Errorf("box kept moving after stop: %+v -> %+v", before, after)
	}
	if live := st.Engine().Stats().Live; live != 2 {
		t.Errorf("live tasks = %d, want click and counter only", live)
	}
}

func TestStage_ToggleAgainStartsNewFlow(t *testing.T) {
	st, lp, _ := newStage(t)
	st.Start()

	st.Toggle()
	lp.Drain()
	first := st.Flow()
	st.Toggle()
	lp.Drain()
	st.Toggle()
	lp.Drain()
	if st.Flow() == first {
		t.Error("flow was not restarted")
	}
	if got := st.State().Get().Count; got != 2 {
		t.Errorf("count = %d, want 2", got)
	}
}

func TestGlyph(t *testing.T) {
	tests := []struct {
		rotation float64
		want     string
	}{
		{0, "│"},
		{44, "╱"},
		{90, "─"},
		{135, "╲"},
		{180, "│"},
		{-45, "╲"},
	}
	for _, tt := range tests {
		if got := glyph(tt.rotation); got != tt.want {
			t.Errorf("glyph(%v) = %q, want %q", tt.rotation, got, tt.want)
		}
	}
}

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune(" ")}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestModel_Update(t *testing.T) {
	st, lp, clock := newStage(t)
	m := NewModel(st, 60)
	if m.Init() == nil {
		t.Fatal("Init returned no tick")
	}
	m.Update(tea.WindowSizeMsg{Width: 60, Height: 20})

	m.Update(keyMsg(" "))
	lp.Drain()
	if !st.State().Get().Running {
		t.Fatal("space did not toggle running")
	}

	clock.advance(100 * time.Millisecond)
	_, cmd := m.Update(frameMsg(clock.now))
	if cmd == nil {
		t.Error("frame did not schedule the next tick")
	}
	if lp.Frame() != 1 || lp.Elapsed() < 0.09 {
		t.Errorf("frame %d elapsed %v after one tick", lp.Frame(), lp.Elapsed())
	}

	m.Update(keyMsg("p"))
	if !lp.Paused() {
		t.Error("p did not pause")
	}
	m.Update(keyMsg("p"))
	if lp.Paused() {
		t.Error("second p did not resume")
	}
	m.Update(tea.BlurMsg{})
	if !lp.Paused() {
		t.Error("blur did not pause")
	}
	m.Update(tea.FocusMsg{})
	if lp.Paused() {
		t.Error("focus did not resume")
	}

	view := m.View()
	if !strings.Contains(view, "count 1") {
		t.Errorf("view lacks counter:\n%s", view)
	}
}

func TestModel_EasingInput(t *testing.T) {
	st, _, _ := newStage(t)
	m := NewModel(st, 60)
	m.Init()

	m.Update(keyMsg("e"))
	if !m.editing {
		t.Fatal("e did not open the easing input")
	}
	m.Update(keyMsg("t*t"))
	m.Update(keyMsg("enter"))
	if m.editing || m.err != nil || m.easing != "t*t" {
		t.Errorf("after enter: editing=%v err=%v easing=%q", m.editing, m.err, m.easing)
	}
	if got := st.curve(0.5); got != 0.25 {
		t.Errorf("curve(0.5) = %v, want 0.25", got)
	}

	m.Update(keyMsg("e"))
	m.Update(keyMsg("t *"))
	m.Update(keyMsg("enter"))
	if m.err == nil {
		t.Error("bad expression was accepted")
	}
	if m.easing != "t*t" {
		t.Errorf("easing = %q, want previous kept", m.easing)
	}

	m.Update(keyMsg("e"))
	m.Update(keyMsg("esc"))
	if m.editing {
		t.Error("esc did not close the input")
	}
}

func TestModel_Quit(t *testing.T) {
	st, _, _ := newStage(t)
	m := NewModel(st, 60)
	m.Init()
	m.Update(keyMsg(" "))

	_, cmd := m.Update(keyMsg("q"))
	if cmd == nil {
		t.Fatal("q returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not quit")
	}
	if live := st.Engine().Stats().Live; live != 0 {
		t.Errorf("live tasks after quit = %d, want 0", live)
	}
}
