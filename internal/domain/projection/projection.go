// Package projection maps events onto timeline coordinates with step-hold
// semantics: a status holds until the next event starts, then steps.
package projection

import (
	"time"

	"github.com/okian/eldlog/internal/domain/axis"
	"github.com/okian/eldlog/internal/domain/model"
	"github.com/okian/eldlog/internal/domain/status"
)

// Vertex is a status change on the plot.
type Vertex struct {
	Time     time.Time     `json:"time"`
	Status   status.Status `json:"status"`
	Level    int           `json:"level"`
	Pending  bool          `json:"pending,omitempty"`
	Fallback bool          `json:"fallback,omitempty"`
}

// Point is a corner of the drawn step path.
type Point struct {
	Time  time.Time `json:"time"`
	Level int       `json:"level"`
}

// Polyline is the projected timeline for one day window.
type Polyline struct {
	Vertices []Vertex `json:"vertices"`
	// Extent is where the final open status stops being drawn.
	Extent time.Time `json:"extent"`
}

// Empty reports whether nothing is drawn.
func (p Polyline) Empty() bool { return len(p.Vertices) == 0 }

// Project places events in w. The status in force at w.Start (the last event
// before the window) is carried in as the first vertex; later vertices are
// clamped to the window; the final status extends to min(now, w.End).
func Project(events model.EventList, w axis.DayWindow, now time.Time) Polyline {
	sorted := events
	if !events.IsSorted() {
		sorted = events.Sorted()
	}

	var (
		out     []Vertex
		carried *Vertex
	)
	for _, e := range sorted {
		if !e.Time.Before(w.End) {
			break
		}
		v := vertexOf(e)
		if v.Time.Before(w.Start) {
			v.Time = w.Start
			carried = &v
			continue
		}
		if carried != nil && v.Time.After(w.Start) {
			out = append(out, *carried)
		}
		carried = nil
		out = append(out, v)
	}
	if carried != nil {
		out = append(out, *carried)
	}

	pl := Polyline{Vertices: out}
	if len(out) == 0 {
		return pl
	}
	end := w.End
	if now.Before(end) {
		end = now
	}
	if last := out[len(out)-1].Time; end.Before(last) {
		end = last
	}
	pl.Extent = w.Clamp(end)
	return pl
}

// vertexOf re-resolves the status so the renderer never gets an
// unplottable value.
func vertexOf(e model.StatusEvent) Vertex {
	st, fallback := e.Status, e.Fallback
	if !st.Valid() {
		st, fallback = status.OffDuty, true
	}
	return Vertex{Time: e.Time, Status: st, Level: st.Level(), Pending: e.Pending(), Fallback: fallback}
}

// Steps expands the polyline into the horizontal and vertical corners of
// the drawn path, ending at Extent.
func (p Polyline) Steps() []Point {
	if p.Empty() {
		return nil
	}
	pts := make([]Point, 0, 2*len(p.Vertices)+1)
	for i, v := range p.Vertices {
		if i > 0 {
			pts = append(pts, Point{Time: v.Time, Level: p.Vertices[i-1].Level})
		}
		pts = append(pts, Point{Time: v.Time, Level: v.Level})
	}
	last := p.Vertices[len(p.Vertices)-1]
	pts = append(pts, Point{Time: p.Extent, Level: last.Level})
	return pts
}

// StatusAt returns the status held at t, if any event precedes it.
func (p Polyline) StatusAt(t time.Time) (status.Status, bool) {
	var (
		st    status.Status
		found bool
	)
	for _, v := range p.Vertices {
		if v.Time.After(t) {
			break
		}
		st, found = v.Status, true
	}
	if found && t.After(p.Extent) {
		return st, false
	}
	return st, found
}
