// Package worker delivers queued status change submissions to the
// collaborator and reports each outcome back to the coordinator.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/okian/eldlog/internal/domain/model"
	"github.com/okian/eldlog/pkg/logger"
	"github.com/okian/eldlog/pkg/metrics"
)

const (
	defaultRequestTimeout = 10 * time.Second
	poolShutdownTimeout   = 30 * time.Second
)

// Sender creates a status log record on the collaborator and returns its id.
type Sender interface {
	CreateStatusLog(ctx context.Context, sub model.Submission) (string, error)
}

// Reconciler receives the outcome of a delivery.
type Reconciler interface {
	Confirm(ctx context.Context, operationID, remoteID string) error
	RollBack(ctx context.Context, operationID string, cause error) error
}

// Queue defines how workers receive submissions.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.Submission
}

// Worker processes submissions.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker delivers one submission at a time.
type InMemoryWorker struct {
	queue      Queue
	sender     Sender
	reconciler Reconciler
	name       string
	timeout    time.Duration

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a worker reading from queue.
func NewInMemoryWorker(queue Queue, sender Sender, reconciler Reconciler, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:      queue,
		sender:     sender,
		reconciler: reconciler,
		name:       "worker",
		timeout:    defaultRequestTimeout,
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named(w.name)
	}
	return w
}

// Run delivers submissions until the queue is closed and drained, ctx
// ends, or Shutdown is called.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	items := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case sub, ok := <-items:
			if !ok {
				return
			}
			metrics.RecordQueueDequeue()
			if !sub.SubmittedAt.IsZero() {
				metrics.RecordQueueProcessingLatency(float64(time.Since(sub.SubmittedAt).Milliseconds()))
			}
			if err := w.process(ctx, sub); err != nil {
				w.logger.Error(ctx, "error reconciling submission",
					logger.String("operation", sub.OperationID),
					logger.Error(err),
				)
			}
		}
	}
}

// Shutdown stops the worker and waits for it to return.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

// process sends one submission and settles its operation. The returned
// error is a reconciliation failure; delivery failures are reported to the
// reconciler as a rollback.
func (w *InMemoryWorker) process(ctx context.Context, sub model.Submission) error {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	sendCtx, cancel := context.WithTimeout(ctx, w.timeout)
	remoteID, err := w.sender.CreateStatusLog(sendCtx, sub)
	cancel()

	if err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "submit_failed")
		w.logger.Warn(ctx, "submission rejected or undeliverable",
			logger.String("operation", sub.OperationID),
			logger.Error(err),
		)
		if rbErr := w.reconciler.RollBack(ctx, sub.OperationID, err); rbErr != nil {
			return fmt.Errorf("roll back %s: %w", sub.OperationID, rbErr)
		}
		return nil
	}

	if err := w.reconciler.Confirm(ctx, sub.OperationID, remoteID); err != nil {
		return fmt.Errorf("confirm %s: %w", sub.OperationID, err)
	}
	return nil
}

// Pool runs several workers over one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger
}

// NewPool creates workerCount workers. Options apply to every worker.
func NewPool(workerCount int, queue Queue, sender Sender, reconciler Reconciler, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   queue,
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := 0; i < workerCount; i++ {
		workerOpts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		pool.workers[i] = NewInMemoryWorker(queue, sender, reconciler, workerOpts...)
	}

	metrics.UpdateWorkerCount(workerCount)
	metrics.UpdateWorkerActiveCount(0)
	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	metrics.UpdateWorkerActiveCount(len(p.workers))
}

// Shutdown closes the queue, lets the workers deliver what is already
// queued, and stops them when ctx or the pool timeout ends first.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	drainCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-drainCtx.Done():
			p.logger.Warn(ctx, "worker did not drain in time", logger.Int("worker_id", i))
			stopCtx, stop := context.WithTimeout(context.Background(), w.timeout)
			_ = w.Shutdown(stopCtx)
			stop()
		}
	}
	metrics.UpdateWorkerActiveCount(0)
	return nil
}
