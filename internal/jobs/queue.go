package jobs

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/Togather-Foundation/historia/internal/metrics"
	"github.com/rs/zerolog"
)

const DefaultQueueCapacity = 100

var ErrQueueStopped = errors.New("job queue stopped")

// Job is a unit of background work. It receives the worker's context.
type Job func(ctx context.Context) error

type queuedJob struct {
	name     string
	run      Job
	enqueued time.Time
}

// Queue is a bounded FIFO of jobs drained by a single worker. Enqueue blocks
// while the queue is full.
type Queue struct {
	jobs    chan queuedJob
	stopped chan struct{}
	logger  zerolog.Logger
}

func NewQueue(capacity int, logger zerolog.Logger) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Queue{
		jobs:    make(chan queuedJob, capacity),
		stopped: make(chan struct{}),
		logger:  logger.With().Str("component", "job_queue").Logger(),
	}
}

// Enqueue adds a job, waiting for space when the queue is full. It returns
// the caller's context error if the caller gives up first, or
// ErrQueueStopped once the worker has exited.
func (q *Queue) Enqueue(ctx context.Context, name string, job Job) error {
	if job == nil {
		return fmt.Errorf("enqueue %s: nil job", name)
	}
	item := queuedJob{name: name, run: job, enqueued: time.Now()}

	select {
	case <-q.stopped:
		return ErrQueueStopped
	default:
	}

	select {
	case q.jobs <- item:
		metrics.JobQueueDepth.Set(float64(len(q.jobs)))
		q.logger.Debug().Str("job", name).Int("depth", len(q.jobs)).Msg("job enqueued")
		return nil
	case <-q.stopped:
		return ErrQueueStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len reports the number of jobs waiting to run.
func (q *Queue) Len() int {
	return len(q.jobs)
}

func (q *Queue) Cap() int {
	return cap(q.jobs)
}

// Run executes queued jobs one at a time until ctx is cancelled. Job errors
// and panics are logged and never stop the worker. Jobs still queued at
// shutdown are dropped.
func (q *Queue) Run(ctx context.Context) {
	defer close(q.stopped)

	q.logger.Info().Int("capacity", cap(q.jobs)).Msg("job worker started")
	for {
		// select picks at random among ready cases, so shutdown is checked
		// before and after every dequeue.
		if ctx.Err() != nil {
			q.shutdown(0)
			return
		}
		select {
		case <-ctx.Done():
			q.shutdown(0)
			return
		case item := <-q.jobs:
			if ctx.Err() != nil {
				q.shutdown(1)
				return
			}
			metrics.JobQueueDepth.Set(float64(len(q.jobs)))
			q.execute(ctx, item)
		}
	}
}

// shutdown logs the jobs left behind; taken is a job already dequeued but
// never started.
func (q *Queue) shutdown(taken int) {
	if n := len(q.jobs) + taken; n > 0 {
		q.logger.Warn().Int("dropped", n).Msg("job worker stopping with queued jobs")
	}
	q.logger.Info().Msg("job worker stopped")
}

func (q *Queue) execute(ctx context.Context, item queuedJob) {
	logger := q.logger.With().Str("job", item.name).Logger()
	start := time.Now()
	result := "success"

	defer func() {
		if r := recover(); r != nil {
			result = "panic"
			logger.Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("job panicked")
		}
		elapsed := time.Since(start)
		metrics.JobsProcessedTotal.WithLabelValues(item.name, result).Inc()
		metrics.JobDuration.WithLabelValues(item.name).Observe(elapsed.Seconds())
	}()

	logger.Debug().Dur("waited", start.Sub(item.enqueued)).Msg("job started")
	if err := item.run(ctx); err != nil {
		result = "error"
		logger.Error().Err(err).Dur("duration", time.Since(start)).Msg("job failed")
		return
	}
	logger.Info().Dur("duration", time.Since(start)).Msg("job completed")
}
