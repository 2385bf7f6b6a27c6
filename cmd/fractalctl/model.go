package main

import (
	"fmt"
	"slices"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	mandel "github.com/marben/mandel_remote"
	"github.com/marben/mandel_remote/channel"
)

const (
	refreshInterval = 250 * time.Millisecond
	// panStep is the pan distance in screen pixels per arrow key.
	panStep = mandel.ScreenWidth / 10
	// wheelDelta is the deltaY of one wheel notch.
	wheelDelta = 100
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Width(12)
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	hintStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB86C"))
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)

	stateStyles = map[channel.State]lipgloss.Style{
		channel.Disconnected: lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5555")),
		channel.Connecting:   lipgloss.NewStyle().Foreground(lipgloss.Color("#F1FA8C")),
		channel.Open:         lipgloss.NewStyle().Foreground(lipgloss.Color("#50FA7B")),
		channel.Closed:       lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	}
)

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// model is the terminal stand-in for the fractal screen. The terminal area
// maps onto the backend screen, so the pointer readout matches what the
// backend renders under the same relative position.
type model struct {
	sup     *channel.Supervisor
	regions *mandel.RegionWatcher

	width, height int
	pointerX      int
	pointerY      int
	hasPointer    bool
	nextRegion    int
}

func newModel(sup *channel.Supervisor, regions *mandel.RegionWatcher) model {
	return model{sup: sup, regions: regions}
}

func (m model) Init() tea.Cmd {
	return tick()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	v := m.sup.Viewport

	switch msg := msg.(type) {
	case tickMsg:
		return m, tick()

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height

	case tea.MouseMsg:
		switch msg.Type {
		case tea.MouseWheelUp:
			v.ScrollWheel(-wheelDelta)
		case tea.MouseWheelDown:
			v.ScrollWheel(wheelDelta)
		case tea.MouseMotion:
			m.pointerX, m.pointerY, m.hasPointer = msg.X, msg.Y, true
		}

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "left":
			m.pan(-panStep, 0)
		case "right":
			m.pan(panStep, 0)
		case "up":
			m.pan(0, -panStep)
		case "down":
			m.pan(0, panStep)
		case "z":
			v.AdjustZoom(1)
		case "Z", "x":
			v.AdjustZoom(-1)
		case "+", "=":
			v.AdjustIterations(1)
		case "-", "_":
			v.AdjustIterations(-1)
		case "j":
			v.ToggleMode()
		case "c":
			v.SetColorScheme(nextScheme(m.scheme()))
		case "r":
			v.JumpTo(mandel.Regions[m.nextRegion%len(mandel.Regions)])
			m.nextRegion++
		case "enter":
			if r, near := m.regions.Current(); near {
				v.JumpTo(r)
			}
		case "0":
			v.SetZoom(mandel.MinZoom)
			v.SetCenter(mandel.DefaultCenterX, mandel.DefaultCenterY)
		}
	}
	return m, nil
}

// pan moves the center by a screen-pixel offset at the current zoom.
func (m model) pan(dx, dy float64) {
	s := m.sup.Viewport.Snapshot()
	re, im := mandel.PixelToComplex(mandel.ScreenWidth/2+dx, mandel.ScreenHeight/2+dy, s.ZoomLevel, s.CenterX, s.CenterY)
	m.sup.Viewport.SetCenter(re, im)
}

// scheme returns the scheme the user last picked, committed or not.
func (m model) scheme() string {
	if name, ok := m.sup.Viewport.PendingColorScheme(); ok {
		return name
	}
	return m.sup.Viewport.ColorScheme()
}

func nextScheme(cur string) string {
	i := slices.Index(mandel.ColorSchemes, cur)
	return mandel.ColorSchemes[(i+1)%len(mandel.ColorSchemes)]
}

// pointerPixel maps the terminal cell under the pointer to a screen pixel.
func (m model) pointerPixel() (px, py float64, ok bool) {
	if !m.hasPointer || m.width <= 0 || m.height <= 0 {
		return 0, 0, false
	}
	px = (float64(m.pointerX) + 0.5) / float64(m.width) * mandel.ScreenWidth
	py = (float64(m.pointerY) + 0.5) / float64(m.height) * mandel.ScreenHeight
	return px, py, true
}

func (m model) View() string {
	s := m.sup.Viewport.Snapshot()

	row := func(label, value string) string {
		return labelStyle.Render(label) + valueStyle.Render(value)
	}

	lines := []string{
		titleStyle.Render("fractal viewport"),
		"",
		row("center", fmt.Sprintf("%.9f %+.9fi", s.CenterX, s.CenterY)),
		row("zoom", fmt.Sprintf("%d (x%g)", s.ZoomLevel, mandel.Magnification(s.ZoomLevel))),
		row("iterations", fmt.Sprintf("2^%d = %d", s.MaxIterations, 1<<s.MaxIterations)),
		row("mode", s.Mode.String()),
		row("colours", m.schemeLabel(s.ColorScheme)),
	}

	if px, py, ok := m.pointerPixel(); ok {
		re, im, _ := m.sup.Viewport.Readout(px, py)
		lines = append(lines, row("pointer", fmt.Sprintf("%.9f %+.9fi", re, im)))
	}

	if f, ok := m.sup.Frames.Current(); ok {
		age := time.Since(f.Received).Truncate(time.Millisecond)
		lines = append(lines, row("frame", fmt.Sprintf("%d bytes, %s ago", len(f.Data), age)))
	}

	params, frames, gesture := m.sup.States()
	lines = append(lines, "",
		row("params", stateStyles[params].Render(params.String())),
		row("frames", stateStyles[frames].Render(frames.String())),
		row("gesture", stateStyles[gesture].Render(gesture.String())),
	)
	if status := m.sup.Gesture.Status(); status != "" {
		lines = append(lines, row("", helpStyle.Render(status)))
	}

	if r, near := m.regions.Current(); near {
		lines = append(lines, "", hintStyle.Render(fmt.Sprintf("near %s, press enter to snap", r.DisplayName)))
	}

	lines = append(lines, "", helpStyle.Render("arrows pan  z/x zoom  +/- iterations  j julia  c colours  r regions  0 reset  q quit"))
	return boxStyle.Render(strings.Join(lines, "\n"))
}

func (m model) schemeLabel(committed string) string {
	if pending, ok := m.sup.Viewport.PendingColorScheme(); ok && pending != committed {
		return fmt.Sprintf("%s (-> %s)", committed, pending)
	}
	return committed
}
