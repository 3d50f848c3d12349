package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/eldlog/internal/domain/model"
	"github.com/okian/eldlog/internal/domain/status"
)

func submission(id string) model.Submission {
	return model.Submission{
		OperationID: id,
		Status:      status.Driving,
		Time:        time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC),
		TripID:      "trip-1",
		SubmittedAt: time.Now(),
	}
}

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}

	if !q.Enqueue(ctx, submission("op1")) {
		t.Error("expected enqueue to succeed")
	}
	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	sub := <-q.Dequeue(ctx)
	if sub.OperationID != "op1" {
		t.Errorf("expected op1, got %v", sub.OperationID)
	}
	if sub.Status != status.Driving || sub.TripID != "trip-1" {
		t.Errorf("submission altered in transit: %+v", sub)
	}
	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if err := q.Offer(ctx, submission("op1")); err != nil {
		t.Errorf("expected offer to succeed, got %v", err)
	}
	if !q.Dispatch(ctx, submission("op2")) {
		t.Error("expected dispatch to succeed")
	}

	if err := q.Offer(ctx, submission("op3")); !errors.Is(err, ErrFull) {
		t.Errorf("expected ErrFull, got %v", err)
	}
	if q.Enqueue(ctx, submission("op3")) {
		t.Error("expected enqueue to fail when full")
	}
	if l := q.Len(ctx); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}
}

func TestInMemoryQueue_CancelledContext(t *testing.T) {
	q := NewInMemoryQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := q.Offer(ctx, submission("op1")); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if l := q.Len(context.Background()); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_ConcurrentAccess(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(100))
	ctx := context.Background()
	producers := 10
	perProducer := 50

	var consumed sync.Map
	var consumers sync.WaitGroup
	for i := 0; i < 4; i++ {
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			for sub := range q.Dequeue(ctx) {
				if _, dup := consumed.LoadOrStore(sub.OperationID, true); dup {
					t.Errorf("submission %s delivered twice", sub.OperationID)
				}
			}
		}()
	}

	var producersWG sync.WaitGroup
	for i := 0; i < producers; i++ {
		producersWG.Add(1)
		go func(id int) {
			defer producersWG.Done()
			for j := 0; j < perProducer; j++ {
				sub := submission(fmt.Sprintf("op%d_%d", id, j))
				for !q.Enqueue(ctx, sub) {
					time.Sleep(time.Millisecond)
				}
			}
		}(i)
	}
	producersWG.Wait()
	_ = q.Close()
	consumers.Wait()

	count := 0
	consumed.Range(func(_, _ any) bool {
		count++
		return true
	})
	if count != producers*perProducer {
		t.Errorf("expected %d submissions, got %d", producers*perProducer, count)
	}
}

func TestInMemoryQueue_GracefulShutdown(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(10))
	ctx := context.Background()

	if !q.Enqueue(ctx, submission("op1")) || !q.Enqueue(ctx, submission("op2")) {
		t.Fatal("expected enqueue to succeed")
	}
	if q.IsClosed() {
		t.Error("expected queue to be open initially")
	}

	if err := q.Close(); err != nil {
		t.Errorf("expected close to succeed, got error: %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to be closed after Close()")
	}
	if err := q.Offer(ctx, submission("op3")); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}

	// Waiting submissions drain before the channel reports closed.
	var drained []string
	timeout := time.After(100 * time.Millisecond)
	ch := q.Dequeue(ctx)
	for {
		select {
		case sub, ok := <-ch:
			if !ok {
				if len(drained) != 2 {
					t.Errorf("expected 2 drained submissions, got %v", drained)
				}
				if err := q.Close(); err != nil {
					t.Errorf("expected second close to succeed, got error: %v", err)
				}
				return
			}
			drained = append(drained, sub.OperationID)
		case <-timeout:
			t.Fatal("expected dequeue channel to be closed within timeout")
		}
	}
}
