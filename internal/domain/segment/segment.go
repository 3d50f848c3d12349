// Package segment cuts an event list into intervals and totals the time
// spent in each status.
package segment

import (
	"fmt"
	"sort"
	"time"

	"github.com/okian/eldlog/internal/domain/model"
	"github.com/okian/eldlog/internal/domain/status"
)

// Segment returns one interval per consecutive pair of events. The input is
// re-sorted (stably) on a copy first; callers may pass speculative appends.
func Segment(events model.EventList) []model.Interval {
	if len(events) < 2 {
		return []model.Interval{}
	}
	sorted := events
	if !events.IsSorted() {
		sorted = events.Sorted()
	}
	out := make([]model.Interval, 0, len(sorted)-1)
	for i := 0; i < len(sorted)-1; i++ {
		out = append(out, model.Interval{
			Status: sorted[i].Status,
			Start:  sorted[i].Time,
			End:    sorted[i+1].Time,
		})
	}
	return out
}

// CloseAt returns a copy of events with the open final status closed at at:
// a synthetic event repeating the last status is appended when the last
// event precedes at. Used when a day is accounted as finished.
func CloseAt(events model.EventList, at time.Time) model.EventList {
	sorted := events.Sorted()
	last, ok := sorted.Last()
	if !ok || !last.Time.Before(at) {
		return sorted
	}
	return append(sorted, model.StatusEvent{Time: at, Status: last.Status})
}

// Totals is the time spent per canonical status.
type Totals map[status.Status]time.Duration

// NewTotals returns totals with every canonical status at zero.
func NewTotals() Totals {
	t := make(Totals, status.Count)
	for _, s := range status.Order() {
		t[s] = 0
	}
	return t
}

// Aggregate sums interval durations by status. Every interval counts,
// whether or not it lies inside the displayed day.
func Aggregate(intervals []model.Interval) Totals {
	t := NewTotals()
	for _, iv := range intervals {
		d := iv.Duration()
		if d < 0 {
			// unreachable for Segment output
			continue
		}
		t[iv.Status] += d
	}
	return t
}

// Sum is the total across statuses.
func (t Totals) Sum() time.Duration {
	var sum time.Duration
	for _, d := range t {
		sum += d
	}
	return sum
}

// Get returns the total for s.
func (t Totals) Get(s status.Status) time.Duration { return t[s] }

// Equal reports whether both totals hold the same durations.
func (t Totals) Equal(o Totals) bool {
	if len(t) != len(o) {
		return false
	}
	for s, d := range t {
		if od, ok := o[s]; !ok || od != d {
			return false
		}
	}
	return true
}

// Entry is one line of ordered totals.
type Entry struct {
	Status    status.Status
	Duration  time.Duration
	Formatted string
}

// Ordered returns the totals in display order with formatted durations.
func (t Totals) Ordered() []Entry {
	order := status.Order()
	out := make([]Entry, 0, len(order))
	for _, s := range order {
		out = append(out, Entry{Status: s, Duration: t[s], Formatted: FormatDuration(t[s])})
	}
	return out
}

// FormatDuration renders d as "Hh Mm", flooring both parts.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	return fmt.Sprintf("%dh %dm", h, m)
}

// Sorted returns statuses that have time recorded, longest first.
func (t Totals) Sorted() []status.Status {
	out := make([]status.Status, 0, len(t))
	for s, d := range t {
		if d > 0 {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if t[out[i]] == t[out[j]] {
			return out[i] < out[j]
		}
		return t[out[i]] > t[out[j]]
	})
	return out
}
