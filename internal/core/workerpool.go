package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

var (
	ErrQueueFull   = errors.New("processing queue is full")
	ErrPoolStopped = errors.New("worker pool is shutting down")
)

type job struct {
	ctx  context.Context
	run  func(ctx context.Context)
	done chan struct{}
	// err is set when the job was skipped or panicked; read only after done
	// is closed.
	err error
}

// WorkerPool bounds the number of pipeline runs executing at once. Jobs that
// do not fit into the queue are rejected instead of blocking the caller.
type WorkerPool struct {
	workers  int
	jobQueue chan *job
	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once

	activeJobs    atomic.Int64
	completedJobs atomic.Int64
	rejectedJobs  atomic.Int64
}

func NewWorkerPool(workers, queueSize int) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	p := &WorkerPool{
		workers:  workers,
		jobQueue: make(chan *job, queueSize),
		stopChan: make(chan struct{}),
	}
	for i := range workers {
		p.wg.Add(1)
		go p.worker(i)
	}
	slog.Info("worker pool started", "workers", workers, "queue_capacity", queueSize)
	return p
}

// Stop waits for running jobs to finish. Queued jobs that were not picked up
// are abandoned and their submitters receive ErrPoolStopped.
func (p *WorkerPool) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopChan)
		p.wg.Wait()
		slog.Info("worker pool stopped",
			"completed", p.completedJobs.Load(),
			"rejected", p.rejectedJobs.Load())
	})
}

// SubmitAndWait queues fn and blocks until it has run, ctx is done or the pool
// stops. fn receives ctx and must observe its cancellation.
func (p *WorkerPool) SubmitAndWait(ctx context.Context, fn func(ctx context.Context)) error {
	select {
	case <-p.stopChan:
		return ErrPoolStopped
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	j := &job{ctx: ctx, run: fn, done: make(chan struct{})}
	select {
	case p.jobQueue <- j:
	default:
		p.rejectedJobs.Add(1)
		return fmt.Errorf("%w (%d/%d)", ErrQueueFull, len(p.jobQueue), cap(p.jobQueue))
	}

	select {
	case <-j.done:
		return j.err
	case <-ctx.Done():
		return ctx.Err()
	case <-p.stopChan:
		// a worker may still be finishing this job
		select {
		case <-j.done:
			return j.err
		default:
			return ErrPoolStopped
		}
	}
}

func (p *WorkerPool) worker(workerID int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopChan:
			return
		case j := <-p.jobQueue:
			p.execute(workerID, j)
		}
	}
}

func (p *WorkerPool) execute(workerID int, j *job) {
	defer close(j.done)
	if err := j.ctx.Err(); err != nil {
		slog.Debug("worker pool: skipping cancelled job", "worker", workerID)
		j.err = err
		return
	}

	p.activeJobs.Add(1)
	defer p.activeJobs.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("worker pool: job panicked", "worker", workerID, "panic", r)
			j.err = fmt.Errorf("job panicked: %v", r)
		}
		p.completedJobs.Add(1)
	}()
	j.run(j.ctx)
}

func (p *WorkerPool) ActiveJobs() int64 {
	return p.activeJobs.Load()
}

func (p *WorkerPool) CompletedJobs() int64 {
	return p.completedJobs.Load()
}

func (p *WorkerPool) RejectedJobs() int64 {
	return p.rejectedJobs.Load()
}

func (p *WorkerPool) QueueLength() int {
	return len(p.jobQueue)
}

func (p *WorkerPool) QueueCapacity() int {
	return cap(p.jobQueue)
}

func (p *WorkerPool) Workers() int {
	return p.workers
}
