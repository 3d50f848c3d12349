// Package render builds the presentation model of a timeline: the step
// polyline, grid ticks and formatted totals. A render pass is an explicit
// call to Build with a consistent snapshot of the event list.
package render

import (
	"time"

	"github.com/okian/eldlog/internal/domain/axis"
	"github.com/okian/eldlog/internal/domain/model"
	"github.com/okian/eldlog/internal/domain/projection"
	"github.com/okian/eldlog/internal/domain/segment"
	"github.com/okian/eldlog/internal/domain/status"
)

// Input is one snapshot of the timeline state.
type Input struct {
	Events    model.EventList
	Version   uint64
	Stale     bool
	Banner    string
	Dropped   int
	Fallbacks int
}

// TotalLine is the formatted total of one status.
type TotalLine struct {
	Status    status.Status `json:"status"`
	Label     string        `json:"label"`
	Seconds   int64         `json:"seconds"`
	Formatted string        `json:"formatted"`
}

// Model is what the presentation layer draws.
type Model struct {
	Window      axis.DayWindow      `json:"window"`
	Vertices    []projection.Vertex `json:"vertices"`
	Steps       []projection.Point  `json:"steps"`
	Extent      time.Time           `json:"extent"`
	HourlyTicks []axis.Tick         `json:"hourly_ticks"`
	FineTicks   []time.Time         `json:"fine_ticks"`
	Totals      []TotalLine         `json:"totals"`
	TotalSum    string              `json:"total_sum"`

	Version     uint64    `json:"version"`
	Pending     int       `json:"pending"`
	Stale       bool      `json:"stale"`
	Banner      string    `json:"banner,omitempty"`
	Dropped     int       `json:"dropped"`
	Fallbacks   int       `json:"fallbacks"`
	GeneratedAt time.Time `json:"generated_at"`

	// Durations are the unformatted totals.
	Durations segment.Totals `json:"-"`
}

// Build runs a render pass for the day containing now.
func Build(in Input, now time.Time) Model {
	w := axis.DayWindowFor(now)
	totals := segment.Aggregate(segment.Segment(in.Events))
	pl := projection.Project(in.Events, w, now)

	m := Model{
		Window:      w,
		Vertices:    pl.Vertices,
		Steps:       pl.Steps(),
		Extent:      pl.Extent,
		HourlyTicks: axis.LabelledHourlyTicks(w),
		FineTicks:   axis.FifteenMinuteTicks(w),
		TotalSum:    segment.FormatDuration(totals.Sum()),
		Version:     in.Version,
		Pending:     in.Events.PendingCount(),
		Stale:       in.Stale,
		Banner:      in.Banner,
		Dropped:     in.Dropped,
		Fallbacks:   in.Fallbacks,
		GeneratedAt: now,
		Durations:   totals,
	}
	if m.Vertices == nil {
		m.Vertices = []projection.Vertex{}
	}
	if m.Steps == nil {
		m.Steps = []projection.Point{}
	}
	for _, e := range totals.Ordered() {
		m.Totals = append(m.Totals, TotalLine{
			Status:    e.Status,
			Label:     status.Label(e.Status),
			Seconds:   int64(e.Duration / time.Second),
			Formatted: e.Formatted,
		})
	}
	return m
}

// Total returns the formatted total for s.
func (m Model) Total(s status.Status) string {
	for _, t := range m.Totals {
		if t.Status == s {
			return t.Formatted
		}
	}
	return segment.FormatDuration(0)
}

// HourLabels returns the hourly tick labels in order.
func (m Model) HourLabels() []string {
	out := make([]string, len(m.HourlyTicks))
	for i, t := range m.HourlyTicks {
		out[i] = t.Label
	}
	return out
}
