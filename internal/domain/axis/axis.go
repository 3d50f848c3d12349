// Package axis derives the day window a timeline is drawn against and the
// tick series for its grid.
package axis

import (
	"time"
)

const fineStep = 15 * time.Minute

// DayWindow is the local calendar day [Start, End).
type DayWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// DayWindowFor returns the calendar day containing now, in now's location.
// End is the next local midnight, so DST days are 23 or 25 hours long.
func DayWindowFor(now time.Time) DayWindow {
	y, m, d := now.Date()
	loc := now.Location()
	return DayWindow{
		Start: time.Date(y, m, d, 0, 0, 0, 0, loc),
		End:   time.Date(y, m, d+1, 0, 0, 0, 0, loc),
	}
}

// Duration is the length of the window.
func (w DayWindow) Duration() time.Duration { return w.End.Sub(w.Start) }

// Contains reports whether t lies in [Start, End).
func (w DayWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Clamp bounds t to [Start, End].
func (w DayWindow) Clamp(t time.Time) time.Time {
	switch {
	case t.Before(w.Start):
		return w.Start
	case t.After(w.End):
		return w.End
	}
	return t
}

// Equal reports whether both windows cover the same instants.
func (w DayWindow) Equal(o DayWindow) bool {
	return w.Start.Equal(o.Start) && w.End.Equal(o.End)
}

// HourlyTicks returns every hour boundary from Start to End inclusive.
func HourlyTicks(w DayWindow) []time.Time {
	ticks := make([]time.Time, 0, 26)
	for t := w.Start; !t.After(w.End); t = t.Add(time.Hour) {
		ticks = append(ticks, t)
	}
	return ticks
}

// FifteenMinuteTicks returns every quarter-hour boundary in [Start, End).
func FifteenMinuteTicks(w DayWindow) []time.Time {
	ticks := make([]time.Time, 0, 100)
	for t := w.Start; t.Before(w.End); t = t.Add(fineStep) {
		ticks = append(ticks, t)
	}
	return ticks
}

// FormatHourLabel names an hour tick: "Midnight" at 00, "Noon" at 12,
// otherwise the zero-padded hour.
func FormatHourLabel(t time.Time) string {
	switch h := t.Format("15"); h {
	case "00":
		return "Midnight"
	case "12":
		return "Noon"
	default:
		return h
	}
}

// Tick is a labelled hour tick.
type Tick struct {
	Time  time.Time `json:"time"`
	Label string    `json:"label"`
}

// LabelledHourlyTicks pairs HourlyTicks with their labels.
func LabelledHourlyTicks(w DayWindow) []Tick {
	hours := HourlyTicks(w)
	out := make([]Tick, len(hours))
	for i, t := range hours {
		out[i] = Tick{Time: t, Label: FormatHourLabel(t)}
	}
	return out
}
