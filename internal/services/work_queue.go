package services

import (
	"context"
	"log"
	"sync"

	"oracle-backend/internal/metrics"

	"github.com/google/uuid"
)

// WorkQueue is a bounded-concurrency executor for request processor
// invocations. Units of work are independent; no ordering is guaranteed
// across them. Drain blocks until every queued and in-flight unit finished,
// which the shutdown path uses so no fulfillment is abandoned mid-flight.
type WorkQueue struct {
	jobs    chan queueJob
	workers int

	workerWG  sync.WaitGroup // running worker goroutines
	pendingWG sync.WaitGroup // queued + in-flight units

	startOnce sync.Once
	stopOnce  sync.Once
}

type queueJob struct {
	id  string
	run func(ctx context.Context)
}

// NewWorkQueue creates a work queue with the given worker count.
func NewWorkQueue(workers int) *WorkQueue {
	if workers <= 0 {
		workers = 3
	}
	return &WorkQueue{
		jobs:    make(chan queueJob, 256),
		workers: workers,
	}
}

// Start launches the worker pool. The context bounds every unit of work;
// cancelling it makes in-flight units wind down and the workers exit once
// the job channel is closed.
func (q *WorkQueue) Start(ctx context.Context) {
	q.startOnce.Do(func() {
		log.Printf("🚀 [Queue] Starting work queue with %d workers", q.workers)
		for i := 0; i < q.workers; i++ {
			q.workerWG.Add(1)
			go q.worker(ctx)
		}
	})
}

func (q *WorkQueue) worker(ctx context.Context) {
	defer q.workerWG.Done()
	for job := range q.jobs {
		job.run(ctx)
		metrics.QueueDepth.Dec()
		q.pendingWG.Done()
	}
}

// Add enqueues a unit of work. Every unit gets a correlation id so its log
// lines can be tied together. Returns false once the queue is stopped.
func (q *WorkQueue) Add(name string, run func(ctx context.Context)) bool {
	jobID := uuid.New().String()
	q.pendingWG.Add(1)
	metrics.QueueDepth.Inc()

	defer func() {
		// Enqueueing on a stopped queue just drops the unit.
		if r := recover(); r != nil {
			q.pendingWG.Done()
			metrics.QueueDepth.Dec()
			log.Printf("⚠️ [Queue] Dropped unit %s (%s): queue stopped", name, jobID)
		}
	}()

	q.jobs <- queueJob{id: jobID, run: run}
	return true
}

// Drain waits until the queue is idle or the context expires.
func (q *WorkQueue) Drain(ctx context.Context) error {
	idle := make(chan struct{})
	go func() {
		q.pendingWG.Wait()
		close(idle)
	}()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop closes the queue and waits for the workers to exit. Call Drain first
// when in-flight work should finish.
func (q *WorkQueue) Stop() {
	q.stopOnce.Do(func() {
		close(q.jobs)
		q.workerWG.Wait()
		log.Printf("✅ [Queue] Work queue stopped")
	})
}
