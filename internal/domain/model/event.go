// Package model contains domain models passed between layers.
package model

import (
	"sort"
	"time"

	"github.com/okian/eldlog/internal/domain/status"
)

// StatusEvent is a change of duty status at an instant.
type StatusEvent struct {
	Time   time.Time
	Status status.Status

	// PendingOp is the id of the unconfirmed submission that produced this
	// event; empty once confirmed or when the event came from a fetch.
	PendingOp string

	// Fallback marks an event whose status could not be resolved and was
	// displayed as OffDuty instead.
	Fallback bool

	// RemoteID is the collaborator's record id, when known.
	RemoteID string
}

// Pending reports whether the event is awaiting confirmation.
func (e StatusEvent) Pending() bool { return e.PendingOp != "" }

// SameChange reports whether e and o describe the same status change,
// ignoring bookkeeping fields.
func (e StatusEvent) SameChange(o StatusEvent) bool {
	return e.Status == o.Status && e.Time.Equal(o.Time)
}

// EventList is a sequence of status events, ascending by time once sorted.
// Equal timestamps are legal; ties keep arrival order.
type EventList []StatusEvent

// Clone returns an independent copy.
func (l EventList) Clone() EventList {
	if l == nil {
		return nil
	}
	out := make(EventList, len(l))
	copy(out, l)
	return out
}

// Sorted returns a stably sorted copy.
func (l EventList) Sorted() EventList {
	out := l.Clone()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}

// IsSorted reports whether l is ascending by time.
func (l EventList) IsSorted() bool {
	return sort.SliceIsSorted(l, func(i, j int) bool { return l[i].Time.Before(l[j].Time) })
}

// PendingCount returns the number of unconfirmed events.
func (l EventList) PendingCount() int {
	n := 0
	for _, e := range l {
		if e.Pending() {
			n++
		}
	}
	return n
}

// Last returns the latest event by position.
func (l EventList) Last() (StatusEvent, bool) {
	if len(l) == 0 {
		return StatusEvent{}, false
	}
	return l[len(l)-1], true
}

// Interval is the span between two consecutive events, holding the status
// of the first.
type Interval struct {
	Status status.Status
	Start  time.Time
	End    time.Time
}

// Duration is End - Start.
func (iv Interval) Duration() time.Duration { return iv.End.Sub(iv.Start) }
