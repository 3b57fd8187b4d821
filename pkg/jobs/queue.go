package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrQueueClosed is returned when enqueueing on a queue that is not running.
var ErrQueueClosed = errors.New("queue not running")

// Job is a unit of background work. Kind selects the registered handler.
type Job struct {
	ID       string
	Kind     string
	Payload  interface{}
	Attempt  int
	Enqueued time.Time
}

// Handler processes a job of one kind.
type Handler func(context.Context, Job) error

// Options tunes the worker pool.
type Options struct {
	Workers    int
	Buffer     int
	MaxRetries int
	Backoff    time.Duration
	Logger     *zap.Logger
}

// Stats is a snapshot of queue counters.
type Stats struct {
	Processed int64
	Failed    int64
	Retried   int64
	Pending   int
}

// Queue dispatches jobs to handlers on a fixed pool of goroutines. Failed jobs
// are retried with linear backoff until MaxRetries is exhausted.
type Queue struct {
	name string
	opts Options

	mu       sync.RWMutex
	handlers map[string]Handler
	running  bool
	ctx      context.Context
	cancel   context.CancelFunc

	jobs chan Job
	wg   sync.WaitGroup

	processed atomic.Int64
	failed    atomic.Int64
	retried   atomic.Int64
}

// New creates a queue; handlers are attached with Register before Start.
func New(name string, opts Options) *Queue {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Buffer <= 0 {
		opts.Buffer = opts.Workers * 8
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Backoff <= 0 {
		opts.Backoff = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Queue{
		name:     name,
		opts:     opts,
		handlers: make(map[string]Handler),
		jobs:     make(chan Job, opts.Buffer),
	}
}

// Register binds a handler to a job kind, replacing any previous binding.
func (q *Queue) Register(kind string, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[kind] = h
}

// Start launches the workers. Calling Start twice is a no-op.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	q.running = true
	for i := 0; i < q.opts.Workers; i++ {
		q.wg.Add(1)
		go q.work(i + 1)
	}
	q.opts.Logger.Info("queue started", zap.String("queue", q.name), zap.Int("workers", q.opts.Workers))
}

// Stop cancels the workers and blocks until they return.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	q.cancel()
	q.mu.Unlock()

	q.wg.Wait()
	q.opts.Logger.Info("queue stopped", zap.String("queue", q.name))
}

// Enqueue schedules a job. It fails fast when the kind has no handler.
func (q *Queue) Enqueue(job Job) error {
	q.mu.RLock()
	running, ctx := q.running, q.ctx
	_, known := q.handlers[job.Kind]
	q.mu.RUnlock()

	if !running {
		return fmt.Errorf("%s: %w", q.name, ErrQueueClosed)
	}
	if !known {
		return fmt.Errorf("%s: no handler for job kind %q", q.name, job.Kind)
	}
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", q.name, ErrQueueClosed)
	case q.jobs <- job:
		return nil
	}
}

// Stats returns the current counters.
func (q *Queue) Stats() Stats {
	return Stats{
		Processed: q.processed.Load(),
		Failed:    q.failed.Load(),
		Retried:   q.retried.Load(),
		Pending:   len(q.jobs),
	}
}

func (q *Queue) work(id int) {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.jobs:
			q.run(id, job)
		}
	}
}

func (q *Queue) run(workerID int, job Job) {
	q.mu.RLock()
	h := q.handlers[job.Kind]
	q.mu.RUnlock()

	err := q.safeCall(h, job)
	if err == nil {
		q.processed.Add(1)
		return
	}
	q.retry(workerID, job, err)
}

func (q *Queue) safeCall(h Handler, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return h(q.ctx, job)
}

func (q *Queue) retry(workerID int, job Job, cause error) {
	log := q.opts.Logger.With(
		zap.String("queue", q.name),
		zap.Int("worker", workerID),
		zap.String("job_id", job.ID),
		zap.String("kind", job.Kind),
	)

	job.Attempt++
	if job.Attempt > q.opts.MaxRetries {
		q.failed.Add(1)
		log.Error("job failed permanently", zap.Int("attempts", job.Attempt), zap.Error(cause))
		return
	}
	q.retried.Add(1)
	delay := q.opts.Backoff * time.Duration(job.Attempt)
	log.Warn("job failed, scheduling retry", zap.Int("attempt", job.Attempt), zap.Duration("delay", delay), zap.Error(cause))

	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-q.ctx.Done():
		case <-timer.C:
			if err := q.Enqueue(job); err != nil {
				log.Error("requeue failed", zap.Error(err))
			}
		}
	}()
}
