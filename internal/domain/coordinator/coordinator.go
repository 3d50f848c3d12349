// Package coordinator owns the timeline's event list and applies appends
// optimistically: a submitted status change shows up immediately, is
// confirmed when the collaborator accepts it, and is discarded by a full
// refetch when it does not.
//
// Each append is an Operation moving Idle -> Pending -> Confirmed or
// RolledBack. Any number of operations may be pending at once and they may
// settle in any order.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/okian/eldlog/internal/domain/model"
	"github.com/okian/eldlog/internal/domain/normalize"
	"github.com/okian/eldlog/internal/domain/render"
	"github.com/okian/eldlog/internal/domain/status"
	"github.com/okian/eldlog/pkg/logger"
	"github.com/okian/eldlog/pkg/metrics"
)

const (
	defaultHistory = 1024
	tracerName     = "github.com/okian/eldlog/coordinator"

	bannerFetch   = "The status log could not be loaded; showing the last known data."
	bannerRestore = "Showing saved data; the status log has not been reloaded yet."
)

// Fetcher loads the authoritative status log.
type Fetcher interface {
	ListStatusLogs(ctx context.Context) ([]model.RawRecord, error)
}

// Dispatcher hands a submission over for delivery to the collaborator. It
// returns false when the submission cannot be accepted.
type Dispatcher interface {
	Dispatch(ctx context.Context, sub model.Submission) bool
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, sub model.Submission) bool

// Dispatch calls f.
func (f DispatcherFunc) Dispatch(ctx context.Context, sub model.Submission) bool { return f(ctx, sub) }

// Snapshot is a consistent copy of the timeline state.
type Snapshot struct {
	Events    model.EventList
	Version   uint64
	Pending   int
	Stale     bool
	Banner    string
	Dropped   int
	Fallbacks int
	FetchedAt time.Time
}

// RenderInput converts the snapshot for a render pass.
func (s Snapshot) RenderInput() render.Input {
	return render.Input{
		Events:    s.Events,
		Version:   s.Version,
		Stale:     s.Stale,
		Banner:    s.Banner,
		Dropped:   s.Dropped,
		Fallbacks: s.Fallbacks,
	}
}

type confirmedEvent struct {
	event model.StatusEvent
	seq   uint64
}

// Coordinator is the single writer of a session's event list.
type Coordinator struct {
	fetcher    Fetcher
	dispatcher Dispatcher
	normalizer *normalize.Normalizer
	session    *model.Session
	logger     logger.Logger
	tracer     trace.Tracer
	now        func() time.Time
	onChange   func(Snapshot)
	onFetched  func(context.Context, []model.RawRecord)
	history    int

	mu sync.Mutex
	// base is the last fetched list; confirmed holds accepted appends the
	// next fetch has not yet reflected; pending is in submission order.
	base      model.EventList
	confirmed []confirmedEvent
	pending   []*Operation
	ops       map[string]*Operation
	settled   []string
	seq       uint64
	// fetchGen numbers fetches as they start; applied is the newest one
	// whose result is installed.
	fetchGen  uint64
	applied   uint64
	version   uint64
	fetchErr  string
	submitErr string
	stale     bool
	dropped   int
	fallbacks int
	fetchedAt time.Time
	closed    bool
}

// New creates a Coordinator reading from fetcher and submitting through
// dispatcher.
func New(fetcher Fetcher, dispatcher Dispatcher, opts ...Option) *Coordinator {
	c := &Coordinator{
		fetcher:    fetcher,
		dispatcher: dispatcher,
		now:        time.Now,
		history:    defaultHistory,
		ops:        make(map[string]*Operation),
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Get().Named("coordinator")
	}
	if c.session == nil {
		c.session = model.NewSession("", time.Local)
	}
	if c.normalizer == nil {
		c.normalizer = normalize.New(normalize.WithLocation(c.session.Location()), normalize.WithLogger(c.logger))
	}
	return c
}

// Session returns the session the coordinator is bound to.
func (c *Coordinator) Session() *model.Session { return c.session }

// Refresh replaces the event list with a fresh fetch. On failure the last
// known good list is kept and marked stale.
func (c *Coordinator) Refresh(ctx context.Context) error {
	ctx, span := c.tracer.Start(ctx, "coordinator.refresh")
	defer span.End()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	startSeq := c.seq
	c.fetchGen++
	gen := c.fetchGen
	c.mu.Unlock()

	records, err := c.fetcher.ListStatusLogs(ctx)
	if err != nil {
		span.RecordError(err)
		metrics.RecordFetchFailure()

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return nil
		}
		if gen < c.applied {
			c.mu.Unlock()
			return fmt.Errorf("%w: %w", model.ErrRemoteFetchFailure, err)
		}
		c.stale = true
		c.fetchErr = bannerFetch
		snap := c.mutateLocked()
		c.mu.Unlock()

		c.logger.Warn(ctx, "status log fetch failed; keeping last known good", logger.Error(err))
		c.notify(snap)
		return fmt.Errorf("%w: %w", model.ErrRemoteFetchFailure, err)
	}

	res := c.normalizer.Normalize(ctx, records)
	span.SetAttributes(
		attribute.Int("events", len(res.Events)),
		attribute.Int("dropped", res.Dropped),
		attribute.Int("fallbacks", res.Fallbacks),
	)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	if gen < c.applied {
		c.mu.Unlock()
		span.SetAttributes(attribute.Bool("superseded", true))
		c.logger.Debug(ctx, "discarding fetch overtaken by a newer one",
			logger.Int64("generation", int64(gen)),
			logger.Int64("applied", int64(c.applied)),
		)
		return nil
	}
	c.applied = gen
	c.applyLocked(res, startSeq)
	c.stale = false
	c.fetchErr = ""
	snap := c.mutateLocked()
	c.mu.Unlock()

	if c.onFetched != nil {
		c.onFetched(ctx, records)
	}
	c.notify(snap)
	return nil
}

// Restore seeds the list from previously saved records and marks it stale.
func (c *Coordinator) Restore(ctx context.Context, records []model.RawRecord) {
	res := c.normalizer.Normalize(ctx, records)

	c.mu.Lock()
	if c.closed || c.applied > 0 {
		c.mu.Unlock()
		return
	}
	c.applyLocked(res, c.seq)
	c.stale = true
	if c.fetchErr == "" {
		c.fetchErr = bannerRestore
	}
	snap := c.mutateLocked()
	c.mu.Unlock()

	c.logger.Info(ctx, "restored saved status log", logger.Int("events", len(res.Events)))
	c.notify(snap)
}

// applyLocked installs a normalized list as the new base. Confirmed appends
// that settled after the fetch started survive unless the fetch holds more
// copies of the same change than the list it replaces.
func (c *Coordinator) applyLocked(res normalize.Result, keepAfter uint64) {
	prev := countChanges(c.base)
	next := countChanges(res.Events)

	c.base = res.Events
	c.dropped = res.Dropped
	c.fallbacks = res.Fallbacks
	c.fetchedAt = c.now()

	kept := c.confirmed[:0]
	for _, ce := range c.confirmed {
		if ce.seq <= keepAfter {
			continue
		}
		k := keyOf(ce.event)
		if next[k] > prev[k] {
			next[k]--
			continue
		}
		kept = append(kept, ce)
	}
	c.confirmed = kept
}

// Submit validates a user-entered status change and applies it
// optimistically. Invalid input fails with model.ErrInvalidInput and
// changes nothing.
func (c *Coordinator) Submit(ctx context.Context, rawStatus, rawTime string) (*Operation, error) {
	st, ok := status.Match(rawStatus)
	if !ok {
		metrics.RecordSubmission("invalid")
		return nil, fmt.Errorf("%w: unknown status %q", model.ErrInvalidInput, rawStatus)
	}
	ts, err := normalize.ParseTimeString(rawTime, c.session.Location())
	if err != nil {
		metrics.RecordSubmission("invalid")
		return nil, fmt.Errorf("%w: %w", model.ErrInvalidInput, err)
	}
	return c.SubmitEvent(ctx, st, ts)
}

// SubmitEvent is Submit for already typed values.
func (c *Coordinator) SubmitEvent(ctx context.Context, st status.Status, ts time.Time) (*Operation, error) {
	if !st.Valid() {
		metrics.RecordSubmission("invalid")
		return nil, fmt.Errorf("%w: status %d is not canonical", model.ErrInvalidInput, uint8(st))
	}
	if ts.IsZero() {
		metrics.RecordSubmission("invalid")
		return nil, fmt.Errorf("%w: missing time", model.ErrInvalidInput)
	}

	ctx, span := c.tracer.Start(ctx, "coordinator.submit", trace.WithAttributes(
		attribute.String("status", status.ToWire(st)),
	))
	defer span.End()

	op := newOperation(model.Submission{
		OperationID: uuid.NewString(),
		Status:      st,
		Time:        ts,
		TripID:      c.session.TripID(),
		SubmittedAt: c.now(),
	})
	span.SetAttributes(attribute.String("operation_id", op.ID()))

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	op.begin()
	c.ops[op.ID()] = op
	c.pending = append(c.pending, op)
	snap := c.mutateLocked()
	c.mu.Unlock()

	metrics.RecordSubmission("pending")
	c.logger.Debug(ctx, "status change applied optimistically",
		logger.String("operation", op.ID()),
		logger.String("status", status.ToWire(st)),
		logger.Time("time", ts),
	)
	c.notify(snap)

	if !c.dispatcher.Dispatch(ctx, op.Submission()) {
		span.RecordError(ErrDispatchRefused)
		if err := c.RollBack(ctx, op.ID(), ErrDispatchRefused); err != nil {
			c.logger.Warn(ctx, "reload after refused dispatch failed", logger.Error(err))
		}
		return op, fmt.Errorf("%w: %w", model.ErrRemoteSubmitFailure, ErrDispatchRefused)
	}
	return op, nil
}

// Confirm settles a pending operation as accepted. remoteID is the
// collaborator's id for the created record; the user-entered status and
// time are kept. Responses for settled operations, or arriving after Close,
// are ignored.
func (c *Coordinator) Confirm(ctx context.Context, id, remoteID string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	op, ok := c.ops[id]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrOperationNotFound, id)
	}
	if !op.settle(Confirmed, remoteID, nil, c.now()) {
		c.mu.Unlock()
		return nil
	}
	c.removePendingLocked(op)
	c.seq++
	sub := op.Submission()
	ev := model.StatusEvent{Time: sub.Time, Status: sub.Status, RemoteID: remoteID}
	c.confirmed = append(c.confirmed, confirmedEvent{event: ev, seq: c.seq})
	c.submitErr = ""
	c.retireLocked(op)
	snap := c.mutateLocked()
	c.mu.Unlock()

	metrics.RecordSubmission("confirmed")
	c.logger.Debug(ctx, "status change confirmed",
		logger.String("operation", id),
		logger.String("remote_id", remoteID),
	)
	c.notify(snap)
	return nil
}

// RollBack settles a pending operation as failed, removes its speculative
// event and reloads the full list from the collaborator. The returned error
// is the reload failure, if any; the submit failure is recorded on the
// operation.
func (c *Coordinator) RollBack(ctx context.Context, id string, cause error) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	op, ok := c.ops[id]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrOperationNotFound, id)
	}
	failure := model.ErrRemoteSubmitFailure
	if cause != nil {
		failure = fmt.Errorf("%w: %w", model.ErrRemoteSubmitFailure, cause)
	}
	if !op.settle(RolledBack, "", failure, c.now()) {
		c.mu.Unlock()
		return nil
	}
	c.removePendingLocked(op)
	c.retireLocked(op)
	sub := op.Submission()
	c.submitErr = fmt.Sprintf("Could not save %s at %s; the log was reloaded.",
		status.Label(sub.Status), sub.Time.In(c.session.Location()).Format("15:04"))
	snap := c.mutateLocked()
	c.mu.Unlock()

	metrics.RecordSubmission("rolled_back")
	c.logger.Warn(ctx, "status change rolled back",
		logger.String("operation", id),
		logger.Error(failure),
	)
	c.notify(snap)

	if err := c.Refresh(ctx); err != nil && !errors.Is(err, ErrClosed) {
		return err
	}
	return nil
}

// Operation looks up an operation by id.
func (c *Coordinator) Operation(id string) (*Operation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	op, ok := c.ops[id]
	return op, ok
}

// PendingOperations returns the unsettled operations in submission order.
func (c *Coordinator) PendingOperations() []*Operation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Operation, len(c.pending))
	copy(out, c.pending)
	return out
}

// Snapshot returns a consistent copy of the current state.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Close tears the coordinator down. Pending operations settle as rolled
// back with ErrClosed; later responses and fetches are ignored.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	now := c.now()
	for _, op := range c.pending {
		op.settle(RolledBack, "", ErrClosed, now)
	}
	c.pending = nil
}

// Closed reports whether Close was called.
func (c *Coordinator) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Coordinator) eventsLocked() model.EventList {
	out := make(model.EventList, 0, len(c.base)+len(c.confirmed)+len(c.pending))
	out = append(out, c.base...)
	for _, ce := range c.confirmed {
		out = append(out, ce.event)
	}
	for _, op := range c.pending {
		sub := op.Submission()
		out = append(out, model.StatusEvent{Time: sub.Time, Status: sub.Status, PendingOp: op.ID()})
	}
	return out.Sorted()
}

func (c *Coordinator) snapshotLocked() Snapshot {
	events := c.eventsLocked()
	banner := c.fetchErr
	if c.submitErr != "" {
		if banner != "" {
			banner += " "
		}
		banner += c.submitErr
	}
	return Snapshot{
		Events:    events,
		Version:   c.version,
		Pending:   len(c.pending),
		Stale:     c.stale,
		Banner:    banner,
		Dropped:   c.dropped,
		Fallbacks: c.fallbacks,
		FetchedAt: c.fetchedAt,
	}
}

func (c *Coordinator) mutateLocked() Snapshot {
	c.version++
	return c.snapshotLocked()
}

func (c *Coordinator) notify(s Snapshot) {
	metrics.UpdatePendingOperations(s.Pending)
	metrics.UpdateEventListSize(len(s.Events))
	if c.onChange != nil {
		c.onChange(s)
	}
}

func (c *Coordinator) removePendingLocked(op *Operation) {
	for i, p := range c.pending {
		if p == op {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return
		}
	}
}

// retireLocked keeps settled operations queryable up to the history limit.
func (c *Coordinator) retireLocked(op *Operation) {
	c.settled = append(c.settled, op.ID())
	for len(c.settled) > c.history {
		delete(c.ops, c.settled[0])
		c.settled = c.settled[1:]
	}
}

// changeKey identifies a status change the way SameChange compares them.
type changeKey struct {
	at     int64
	status status.Status
}

func keyOf(ev model.StatusEvent) changeKey {
	return changeKey{at: ev.Time.UnixNano(), status: ev.Status}
}

func countChanges(list model.EventList) map[changeKey]int {
	out := make(map[changeKey]int, len(list))
	for _, e := range list {
		out[keyOf(e)]++
	}
	return out
}
