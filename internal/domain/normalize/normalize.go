// Package normalize turns raw status-log records into a canonical, sorted
// event list. Malformed records never fail the batch: bad timestamps are
// dropped and counted, unknown statuses are displayed as off duty and flagged.
package normalize

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/okian/eldlog/internal/domain/model"
	"github.com/okian/eldlog/internal/domain/status"
	"github.com/okian/eldlog/pkg/logger"
	"github.com/okian/eldlog/pkg/metrics"
)

// Issue describes one record the normalizer could not take at face value.
type Issue struct {
	Index int
	Value string
	Err   error
}

// Dropped reports whether the record was removed from the output.
func (i Issue) Dropped() bool { return errors.Is(i.Err, model.ErrUnparseableTimestamp) }

// Result is the output of a normalization pass.
type Result struct {
	Events    model.EventList
	Dropped   int
	Fallbacks int
	Issues    []Issue
}

// Normalizer converts collaborator records into events.
type Normalizer struct {
	location *time.Location
	logger   logger.Logger
}

// Option applies a configuration option to the Normalizer.
type Option func(*Normalizer)

// WithLocation sets the zone naive timestamps are interpreted in.
func WithLocation(loc *time.Location) Option {
	return func(n *Normalizer) {
		if loc != nil {
			n.location = loc
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(n *Normalizer) {
		if l != nil {
			n.logger = l
		}
	}
}

// New creates a Normalizer.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{location: time.Local}
	for _, opt := range opts {
		opt(n)
	}
	if n.logger == nil {
		n.logger = logger.Get().Named("normalize")
	}
	return n
}

// Location returns the zone naive timestamps are read in.
func (n *Normalizer) Location() *time.Location { return n.location }

// Normalize converts records into a stably sorted event list.
func (n *Normalizer) Normalize(ctx context.Context, records []model.RawRecord) Result {
	res := Result{Events: make(model.EventList, 0, len(records))}

	for i, rec := range records {
		ts, err := ParseTime(rec.Time, n.location)
		if err != nil {
			res.Dropped++
			res.Issues = append(res.Issues, Issue{Index: i, Value: rec.Time.Text, Err: err})
			continue
		}

		st, ok := status.Match(rec.Status)
		if !ok {
			st, ok = status.Match(rec.StatusDisplay)
		}
		ev := model.StatusEvent{Time: ts, Status: st, RemoteID: rec.ID.String()}
		if !ok {
			ev.Status, ev.Fallback = status.OffDuty, true
			res.Fallbacks++
			res.Issues = append(res.Issues, Issue{
				Index: i,
				Value: rec.Status,
				Err:   fmt.Errorf("%w: %q", model.ErrUnknownStatusCode, rec.Status),
			})
		}
		res.Events = append(res.Events, ev)
	}

	sort.SliceStable(res.Events, func(i, j int) bool {
		return res.Events[i].Time.Before(res.Events[j].Time)
	})

	metrics.RecordEventsNormalized(len(res.Events))
	if res.Dropped > 0 {
		metrics.RecordEventsDropped(res.Dropped)
		n.logger.Warn(ctx, "dropped records with unparseable time",
			logger.Int("dropped", res.Dropped),
			logger.Int("received", len(records)),
		)
	}
	if res.Fallbacks > 0 {
		metrics.RecordStatusFallbacks(res.Fallbacks)
		n.logger.Warn(ctx, "unknown status codes shown as off duty",
			logger.Int("fallbacks", res.Fallbacks),
		)
	}
	return res
}
