// Package service wires the timeline engine to its collaborators and
// implements the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/eldlog/internal/adapters/collaborator"
	eventqueue "github.com/okian/eldlog/internal/adapters/mq/queue"
	workerpool "github.com/okian/eldlog/internal/adapters/mq/worker"
	"github.com/okian/eldlog/internal/adapters/report"
	"github.com/okian/eldlog/internal/adapters/repository"
	"github.com/okian/eldlog/internal/domain/axis"
	"github.com/okian/eldlog/internal/domain/coordinator"
	"github.com/okian/eldlog/internal/domain/model"
	"github.com/okian/eldlog/internal/domain/render"
	"github.com/okian/eldlog/pkg/logger"
	"github.com/okian/eldlog/pkg/metrics"
)

// ErrNotStarted is returned by calls that need a running service.
var ErrNotStarted = errors.New("service not started")

// ErrNoExporter is returned by Export when no sink is configured.
var ErrNoExporter = errors.New("report export not configured")

// Service owns one driver session: the coordinator, the submission queue
// and workers, the snapshot store and the latest render model.
type Service struct {
	mu sync.RWMutex

	// Core components
	source   collaborator.Source
	store    repository.Store
	exporter *report.Exporter
	session  *model.Session
	coord    *coordinator.Coordinator
	queue    *eventqueue.InMemoryQueue
	pool     *workerpool.Pool

	// Configuration
	workerCount     int
	queueSize       int
	requestTimeout  time.Duration
	dayTickInterval time.Duration
	now             func() time.Time

	// Render state; renderMu orders render passes and listener delivery.
	renderMu  sync.Mutex
	model     render.Model
	listeners map[int]func(render.Model)
	nextID    int

	// State
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of submission workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the submission queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithRequestTimeout bounds each delivery to the collaborator.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.requestTimeout = d
		}
	}
}

// WithDayTickInterval sets how often the day window is checked for rollover.
func WithDayTickInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.dayTickInterval = d
		}
	}
}

// WithSession binds the service to a driver session.
func WithSession(sess *model.Session) Option {
	return func(s *Service) {
		if sess != nil {
			s.session = sess
		}
	}
}

// WithStore sets the last-known-good snapshot store.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithExporter enables Export.
func WithExporter(e *report.Exporter) Option {
	return func(s *Service) {
		s.exporter = e
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service reading from and writing to source.
func New(source collaborator.Source, opts ...Option) *Service {
	s := &Service{
		source:          source,
		workerCount:     runtime.NumCPU(),
		queueSize:       256,
		requestTimeout:  5 * time.Second,
		dayTickInterval: 30 * time.Second,
		now:             time.Now,
		listeners:       make(map[int]func(render.Model)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.session == nil {
		s.session = model.NewSession("", time.Local)
	}
	if s.store == nil {
		s.store = repository.NewMemoryStore()
	}
	return s
}

// Start builds the pipeline, loads the status log and starts the workers
// and the day ticker. A failed first load is not fatal: the saved snapshot,
// if any, is shown as stale.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.logger.Info(ctx, "starting timeline service...", logger.String("trip", s.session.TripID()))

	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	s.coord = coordinator.New(s.source, s.queue,
		coordinator.WithSession(s.session),
		coordinator.WithClock(s.now),
		coordinator.WithOnChange(s.onChange),
		coordinator.WithFetchHook(s.saveSnapshot),
	)
	s.pool = workerpool.NewPool(s.workerCount, s.queue, s.source, s.coord,
		workerpool.WithRequestTimeout(s.requestTimeout),
	)

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.pool.Start(runCtx)

	s.renderMu.Lock()
	s.model = render.Build(s.coord.Snapshot().RenderInput(), s.localNow())
	s.renderMu.Unlock()

	if err := s.coord.Refresh(ctx); err != nil {
		s.logger.Warn(ctx, "initial status log load failed", logger.Error(err))
		s.restore(ctx)
	}

	s.wg.Add(1)
	go s.dayTicker(runCtx)

	s.started = true
	s.logger.Info(ctx, "timeline service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
	)
	return nil
}

// Stop delivers queued submissions, then closes the session. Submissions
// still pending afterwards settle as rolled back.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping timeline service...")

	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Error(ctx, "worker pool shutdown failed", logger.Error(err))
	}
	s.coord.Close()
	s.cancel()
	s.wg.Wait()

	if err := s.store.Close(); err != nil {
		s.logger.Warn(ctx, "snapshot store close failed", logger.Error(err))
	}

	s.started = false
	s.logger.Info(ctx, "timeline service stopped")
}

func (s *Service) restore(ctx context.Context) {
	snap, err := s.store.Load(ctx, repository.Key(s.session.TripID()))
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn(ctx, "snapshot load failed", logger.Error(err))
		}
		return
	}
	s.coord.Restore(ctx, snap.Records)
}

func (s *Service) saveSnapshot(ctx context.Context, records []model.RawRecord) {
	tripID := s.session.TripID()
	if err := s.store.Save(ctx, repository.Key(tripID), repository.Snapshot{TripID: tripID, Records: records}); err != nil {
		s.logger.Warn(ctx, "snapshot save failed", logger.Error(err))
	}
}

// onChange runs a render pass for a coordinator snapshot. Notifications can
// arrive out of order, so an older version never replaces a newer model.
func (s *Service) onChange(snap coordinator.Snapshot) {
	s.renderMu.Lock()
	defer s.renderMu.Unlock()
	if snap.Version < s.model.Version {
		return
	}
	s.renderLocked(snap.RenderInput())
}

func (s *Service) renderLocked(in render.Input) {
	start := time.Now()
	s.model = render.Build(in, s.localNow())
	metrics.RecordRenderPass(float64(time.Since(start).Microseconds()) / 1000)
	for _, fn := range s.listeners {
		fn(s.model)
	}
}

func (s *Service) localNow() time.Time {
	return s.now().In(s.session.Location())
}

// dayTicker re-renders when the local day changes.
func (s *Service) dayTicker(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.dayTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkDay()
		}
	}
}

// checkDay renders again if now falls outside the current model's window.
func (s *Service) checkDay() bool {
	w := axis.DayWindowFor(s.localNow())

	s.renderMu.Lock()
	defer s.renderMu.Unlock()
	if s.model.Window.Equal(w) {
		return false
	}
	s.logger.Info(context.Background(), "day window rolled over", logger.Time("start", w.Start))
	s.renderLocked(s.coord.Snapshot().RenderInput())
	return true
}

// Subscribe registers fn for every render pass and returns its cancel
// function. fn runs while render passes are serialized and must not block.
func (s *Service) Subscribe(fn func(render.Model)) func() {
	s.renderMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.renderMu.Unlock()

	return func() {
		s.renderMu.Lock()
		delete(s.listeners, id)
		s.renderMu.Unlock()
	}
}

// Timeline returns the latest render model.
func (s *Service) Timeline(_ context.Context) render.Model {
	s.renderMu.Lock()
	defer s.renderMu.Unlock()
	return s.model
}

func (s *Service) running() (*coordinator.Coordinator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.coord, nil
}

// Submit applies a user-entered status change optimistically and queues
// it for delivery.
func (s *Service) Submit(ctx context.Context, rawStatus, rawTime string) (*coordinator.Operation, error) {
	c, err := s.running()
	if err != nil {
		return nil, err
	}
	return c.Submit(ctx, rawStatus, rawTime)
}

// Operation looks up a submission by id.
func (s *Service) Operation(_ context.Context, id string) (*coordinator.Operation, error) {
	c, err := s.running()
	if err != nil {
		return nil, err
	}
	op, ok := c.Operation(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", coordinator.ErrOperationNotFound, id)
	}
	return op, nil
}

// Refresh reloads the status log.
func (s *Service) Refresh(ctx context.Context) error {
	c, err := s.running()
	if err != nil {
		return err
	}
	return c.Refresh(ctx)
}

// DailyReport fetches the collaborator's summary of the day.
func (s *Service) DailyReport(ctx context.Context) (model.DailyReport, error) {
	return s.source.DailyReport(ctx)
}

// Raster returns the PNG of the current timeline.
func (s *Service) Raster(ctx context.Context) ([]byte, error) {
	if s.exporter == nil {
		return nil, ErrNoExporter
	}
	return s.exporter.Raster(ctx, s.Timeline(ctx))
}

// Document returns the XLSX daily log of the current timeline.
func (s *Service) Document(ctx context.Context) ([]byte, error) {
	if s.exporter == nil {
		return nil, ErrNoExporter
	}
	rep, err := s.DailyReport(ctx)
	if err != nil {
		return nil, err
	}
	doc, _, err := s.exporter.Document(ctx, s.Timeline(ctx), rep)
	return doc, err
}

// Export reloads the log and fetches the daily report concurrently, then
// writes the day's artifacts to the configured sink. A failed reload still
// exports the last known good timeline, marked stale.
func (s *Service) Export(ctx context.Context) (report.Artifact, error) {
	if s.exporter == nil {
		return report.Artifact{}, ErrNoExporter
	}
	c, err := s.running()
	if err != nil {
		return report.Artifact{}, err
	}

	var rep model.DailyReport
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := c.Refresh(gctx); err != nil {
			s.logger.Warn(ctx, "export continues with last known good timeline", logger.Error(err))
		}
		return nil
	})
	g.Go(func() error {
		var err error
		rep, err = s.source.DailyReport(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return report.Artifact{}, fmt.Errorf("export: %w", err)
	}
	return s.exporter.Export(ctx, s.Timeline(ctx), rep)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"tripID":      s.session.TripID(),
		"timezone":    s.session.Location().String(),
	}

	if s.started {
		snap := s.coord.Snapshot()
		queueLen := s.queue.Len(ctx)

		stats["queueLength"] = queueLen
		stats["version"] = snap.Version
		stats["events"] = len(snap.Events)
		stats["pending"] = snap.Pending
		stats["stale"] = snap.Stale
		stats["dropped"] = snap.Dropped
		stats["fallbacks"] = snap.Fallbacks
		stats["fetchedAt"] = snap.FetchedAt

		s.renderMu.Lock()
		stats["subscribers"] = len(s.listeners)
		s.renderMu.Unlock()

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateWorkerCount(s.workerCount)
	}

	return stats
}
