// Package tui draws a render model as a terminal grid: one row per duty
// status, one column per fixed slice of the day, followed by the totals.
package tui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/okian/eldlog/internal/domain/projection"
	"github.com/okian/eldlog/internal/domain/render"
	"github.com/okian/eldlog/internal/domain/status"
)

const (
	defaultCellsPerHour = 4
	labelWidth          = 15
	filled              = "█"
	empty               = "·"
)

var statusColors = map[status.Status]lipgloss.Color{
	status.OffDuty:      lipgloss.Color("#4C9AFF"),
	status.SleeperBerth: lipgloss.Color("#8777D9"),
	status.Driving:      lipgloss.Color("#36B37E"),
	status.OnDuty:       lipgloss.Color("#FFAB00"),
}

// Timeline renders models for one terminal.
type Timeline struct {
	cellsPerHour int

	title   lipgloss.Style
	muted   lipgloss.Style
	label   lipgloss.Style
	warn    lipgloss.Style
	pending lipgloss.Style
	rows    map[status.Status]lipgloss.Style
}

// Option configures a Timeline.
type Option func(*Timeline)

// WithCellsPerHour sets the horizontal resolution.
func WithCellsPerHour(n int) Option {
	return func(t *Timeline) {
		if n > 0 {
			t.cellsPerHour = n
		}
	}
}

// New creates a Timeline whose color profile is detected from w.
func New(w io.Writer, opts ...Option) *Timeline {
	r := lipgloss.NewRenderer(w)
	t := &Timeline{
		cellsPerHour: defaultCellsPerHour,
		title:        r.NewStyle().Bold(true),
		muted:        r.NewStyle().Foreground(lipgloss.Color("#666666")),
		label:        r.NewStyle().Width(labelWidth),
		warn:         r.NewStyle().Foreground(lipgloss.Color("#FF5630")).Bold(true),
		pending:      r.NewStyle().Foreground(lipgloss.Color("#666666")).Blink(true),
		rows:         make(map[status.Status]lipgloss.Style, status.Count),
	}
	for s, c := range statusColors {
		t.rows[s] = r.NewStyle().Foreground(c)
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Render draws m. Off Duty is the top row.
func (t *Timeline) Render(m render.Model) string {
	cells := t.columns(m)

	lines := []string{t.header(m), t.label.Render("") + t.muted.Render(t.axis(m, len(cells)))}
	for _, s := range status.Order() {
		lines = append(lines, t.label.Render(status.Label(s))+t.row(s, cells))
	}
	lines = append(lines, "", t.totals(m))
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

type column struct {
	status  status.Status
	drawn   bool
	pending bool
}

// columns samples the step path at the start of every cell.
func (t *Timeline) columns(m render.Model) []column {
	step := time.Hour / time.Duration(t.cellsPerHour)
	pl := projection.Polyline{Vertices: m.Vertices, Extent: m.Extent}
	var out []column
	for at := m.Window.Start; at.Before(m.Window.End); at = at.Add(step) {
		c := column{}
		if s, ok := pl.StatusAt(at); ok && at.Before(m.Extent) {
			c.status, c.drawn = s, true
		}
		for _, v := range m.Vertices {
			if v.Pending && !v.Time.Before(at) && v.Time.Before(at.Add(step)) {
				c.pending = true
			}
		}
		out = append(out, c)
	}
	return out
}

func (t *Timeline) row(s status.Status, cells []column) string {
	var b strings.Builder
	style := t.rows[s]
	for _, c := range cells {
		switch {
		case c.drawn && c.status == s && c.pending:
			b.WriteString(t.pending.Render(filled))
		case c.drawn && c.status == s:
			b.WriteString(style.Render(filled))
		default:
			b.WriteString(t.muted.Render(empty))
		}
	}
	return b.String()
}

// axis places hour labels that fit in their slot; long ones are cut to a
// letter.
func (t *Timeline) axis(m render.Model, width int) string {
	line := []rune(strings.Repeat(" ", width))
	for i, tick := range m.HourlyTicks {
		col := i * t.cellsPerHour
		if col >= width {
			break
		}
		label := tick.Label
		if len(label) >= t.cellsPerHour {
			label = label[:1]
		}
		copy(line[col:], []rune(label))
	}
	return string(line)
}

func (t *Timeline) header(m render.Model) string {
	parts := []string{t.title.Render("Daily log " + m.Window.Start.Format("2006-01-02"))}
	if m.Pending > 0 {
		parts = append(parts, t.muted.Render(fmt.Sprintf("%d pending", m.Pending)))
	}
	if m.Stale {
		parts = append(parts, t.warn.Render("stale"))
	}
	if m.Banner != "" {
		parts = append(parts, t.warn.Render(m.Banner))
	}
	if len(m.Vertices) == 0 {
		parts = append(parts, t.muted.Render("no status records"))
	}
	return strings.Join(parts, "  ")
}

func (t *Timeline) totals(m render.Model) string {
	lines := make([]string, 0, len(m.Totals)+1)
	for _, tl := range m.Totals {
		lines = append(lines, t.label.Render(tl.Label)+tl.Formatted)
	}
	lines = append(lines, t.title.Render(t.label.Render("Total"))+m.TotalSum)
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
