package stage

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/me/cadence/internal/easingexpr"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	fieldStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444"))

	boxStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#1A1A1A")).
			Background(lipgloss.Color("#98FB98"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	pausedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD700"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))
)

// Minimum field size in cells.
const (
	minWidth  = 20
	minHeight = 6
)

type keyMap struct {
	Toggle key.Binding
	Pause  key.Binding
	Easing key.Binding
	Help   key.Binding
	Quit   key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Pause, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Toggle, k.Pause}, {k.Easing, k.Help, k.Quit}}
}

var keys = keyMap{
	Toggle: key.NewBinding(key.WithKeys(" ", "enter"), key.WithHelp("space", "run/stop")),
	Pause:  key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "pause loop")),
	Easing: key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "easing expr")),
	Help:   key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "more")),
	Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

// frameMsg drives one loop tick.
type frameMsg time.Time

func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return frameMsg(t)
	})
}

// Model is the bubbletea model for the demo. Every tick message ticks the
// frame loop, so all task code runs on the bubbletea update goroutine.
type Model struct {
	stage    *Stage
	interval time.Duration
	help     help.Model
	input    textinput.Model
	editing  bool
	easing   string
	err      error
	width    int
	height   int
}

// NewModel wraps st. fps sets the tick rate.
func NewModel(st *Stage, fps int) *Model {
	if fps <= 0 {
		fps = 60
	}
	in := textinput.New()
	in.Placeholder = "t*t*(3-2*t)"
	in.Prompt = "easing> "
	in.CharLimit = 200
	return &Model{
		stage:    st,
		interval: time.Second / time.Duration(fps),
		help:     help.New(),
		input:    in,
		easing:   "easeInOutSine",
	}
}

func (m *Model) Init() tea.Cmd {
	m.stage.Engine().Loop().Sync()
	m.stage.Start()
	return tick(m.interval)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	lp := m.stage.Engine().Loop()
	switch msg := msg.(type) {
	case frameMsg:
		lp.Tick()
		return m, tick(m.interval)

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		w, h := m.fieldSize()
		m.stage.Resize(w, h)
		return m, nil

	case tea.FocusMsg:
		lp.Resume()
		return m, nil

	case tea.BlurMsg:
		lp.Pause()
		return m, nil

	case tea.KeyMsg:
		if m.editing {
			return m.updateInput(msg)
		}
		switch {
		case key.Matches(msg, keys.Quit):
			m.stage.Stop()
			lp.Drain()
			return m, tea.Quit
		case key.Matches(msg, keys.Toggle):
			m.stage.Toggle()
		case key.Matches(msg, keys.Pause):
			if lp.Paused() {
				lp.Resume()
			} else {
				lp.Pause()
			}
		case key.Matches(msg, keys.Easing):
			m.editing = true
			m.input.SetValue("")
			return m, m.input.Focus()
		case key.Matches(msg, keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		}
	}
	return m, nil
}

func (m *Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.editing = false
		m.input.Blur()
		return m, nil
	case tea.KeyEnter:
		src := strings.TrimSpace(m.input.Value())
		m.editing = false
		m.input.Blur()
		if src == "" {
			return m, nil
		}
		f, err := easingexpr.Resolve(src)
		if err != nil {
			m.err = err
			return m, nil
		}
		m.err = nil
		m.easing = src
		m.stage.SetEasing(f)
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// fieldSize returns the inner field size for the current window.
func (m *Model) fieldSize() (int, int) {
	w, h := m.width-2, m.height-6
	return max(w, minWidth), max(h, minHeight)
}

func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("cadence"))
	b.WriteString(" ")
	b.WriteString(m.status())
	b.WriteString("\n")
	b.WriteString(fieldStyle.Render(m.field()))
	b.WriteString("\n")
	switch {
	case m.editing:
		b.WriteString(m.input.View())
	case m.err != nil:
		b.WriteString(errorStyle.Render(m.err.Error()))
	default:
		b.WriteString(statusStyle.Render("easing: " + m.easing))
	}
	b.WriteString("\n")
	b.WriteString(m.help.View(keys))
	return b.String()
}

func (m *Model) status() string {
	lp := m.stage.Engine().Loop()
	st := m.stage.State().Get()
	line := fmt.Sprintf("count %d  frame %d  %.1fs  tasks %d",
		st.Count, lp.Frame(), lp.Elapsed(), m.stage.Engine().Stats().Live)
	if lp.Paused() {
		return statusStyle.Render(line) + " " + pausedStyle.Render("paused")
	}
	return statusStyle.Render(line)
}

// field draws the box at its position. The glyph follows the rotation.
func (m *Model) field() string {
	w, h := m.fieldSize()
	box := m.stage.Box()
	col := clamp(int(math.Round(box.X+float64(w)/2)), 0, w-1)
	row := clamp(int(math.Round(box.Y+float64(h)/2)), 0, h-1)

	label := glyph(box.Rotation) + box.Text
	width := lipgloss.Width(label)
	if col+width > w {
		col = max(w-width, 0)
	}

	lines := make([]string, h)
	blank := strings.Repeat(" ", w)
	for i := range lines {
		lines[i] = blank
	}
	rest := max(w-col-width, 0)
	lines[row] = strings.Repeat(" ", col) + boxStyle.Render(label) + strings.Repeat(" ", rest)
	return strings.Join(lines, "\n")
}

var glyphs = [...]string{"│", "╱", "─", "╲"}

func glyph(rotation float64) string {
	i := int(math.Round(rotation/45)) % len(glyphs)
	if i < 0 {
		i += len(glyphs)
	}
	return glyphs[i]
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

// Run shows the demo until the user quits or ctx is cancelled.
func Run(ctx context.Context, st *Stage, fps int) error {
	p := tea.NewProgram(NewModel(st, fps),
		tea.WithContext(ctx),
		tea.WithAltScreen(),
		tea.WithReportFocus(),
	)
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
