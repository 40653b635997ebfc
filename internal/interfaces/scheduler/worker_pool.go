package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	jobTracer          = otel.Tracer("finsight/scheduler")
	jobMeter           = otel.Meter("finsight/scheduler")
	jobDuration, _     = jobMeter.Float64Histogram("scheduler.job.duration", metric.WithDescription("Job execution duration in seconds"), metric.WithUnit("s"))
	jobTotal, _        = jobMeter.Int64Counter("scheduler.job.total", metric.WithDescription("Total jobs executed by status"))
	jobQueueDropped, _ = jobMeter.Int64Counter("scheduler.job.queue_dropped", metric.WithDescription("Jobs dropped before running, by reason"))
)

var (
	// ErrQueueFull is returned by Submit when the job buffer is full.
	ErrQueueFull = errors.New("job queue full")
	// ErrPoolClosed is returned by Submit after shutdown has begun.
	ErrPoolClosed = errors.New("worker pool is shut down")
)

// PoolConfig holds the worker pool settings.
type PoolConfig struct {
	WorkerCount int
	JobDelay    time.Duration // pause after each job, per worker
	JobTimeout  time.Duration
	QueueSize   int
}

// WorkerPool runs jobs on a fixed set of goroutines fed by a buffered channel.
type WorkerPool struct {
	workerCount int
	jobDelay    time.Duration
	jobTimeout  time.Duration
	jobs        chan Job
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	log         zerolog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewWorkerPool creates a worker pool. Start must be called before jobs run.
func NewWorkerPool(cfg PoolConfig, log zerolog.Logger) *WorkerPool {
	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = 1
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 2 * time.Minute
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		workerCount: cfg.WorkerCount,
		jobDelay:    cfg.JobDelay,
		jobTimeout:  cfg.JobTimeout,
		jobs:        make(chan Job, cfg.QueueSize),
		ctx:         ctx,
		cancel:      cancel,
		log:         log.With().Str("component", "worker_pool").Logger(),
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start() {
	wp.log.Info().Int("workers", wp.workerCount).Msg("Starting worker pool")

	for i := 1; i <= wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for {
		select {
		case <-wp.ctx.Done():
			wp.log.Debug().Int("worker", id).Msg("Worker shutting down")
			return

		case job, ok := <-wp.jobs:
			if !ok {
				return
			}

			wp.processJob(id, job)

			if wp.jobDelay > 0 {
				select {
				case <-time.After(wp.jobDelay):
				case <-wp.ctx.Done():
					return
				}
			}
		}
	}
}

// processJob executes a single job with logging and telemetry.
func (wp *WorkerPool) processJob(workerID int, job Job) {
	ctx, cancel := context.WithTimeout(wp.ctx, wp.jobTimeout)
	defer cancel()

	ctx, span := jobTracer.Start(ctx, "job.execute",
		trace.WithAttributes(
			attribute.Int("worker.id", workerID),
			attribute.String("job.description", job.Description()),
			attribute.String("job.user_id", job.UserID()),
		),
	)
	defer span.End()

	log := wp.log.With().
		Int("worker", workerID).
		Str("job", job.Description()).
		Str("user_id", job.UserID()).
		Logger()

	start := time.Now()
	err := job.Execute(ctx)
	jobDuration.Record(ctx, time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		jobTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "error")))
		log.Error().Err(err).Dur("took", time.Since(start)).Msg("Job failed")
		return
	}

	jobTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "success")))
	log.Info().Dur("took", time.Since(start)).Msg("Job completed")
}

// Submit queues a job without blocking. It returns ErrQueueFull when the
// buffer is full and ErrPoolClosed once shutdown has begun.
func (wp *WorkerPool) Submit(job Job) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	if wp.closed {
		return ErrPoolClosed
	}

	select {
	case wp.jobs <- job:
		return nil
	default:
		jobQueueDropped.Add(context.Background(), 1, metric.WithAttributes(attribute.String("reason", "queue_full")))
		wp.log.Warn().Str("user_id", job.UserID()).Str("job", job.Description()).Msg("Job queue full, dropping job")
		return fmt.Errorf("%w: dropping %s for user %s", ErrQueueFull, job.Description(), job.UserID())
	}
}

// SubmitBatch queues every job it can and returns how many were accepted.
func (wp *WorkerPool) SubmitBatch(jobs []Job) int {
	submitted := 0
	for _, job := range jobs {
		if err := wp.Submit(job); err != nil {
			continue
		}
		submitted++
	}
	wp.log.Info().Int("submitted", submitted).Int("total", len(jobs)).Msg("Submitted jobs to worker pool")
	return submitted
}

// Dispatch queues fn as a one-off job.
func (wp *WorkerPool) Dispatch(userID, description string, fn func(ctx context.Context) error) error {
	return wp.Submit(FuncJob{User: userID, Desc: description, Fn: fn})
}

// Shutdown stops accepting jobs and waits up to timeout for queued jobs to
// drain. Jobs still running after the timeout have their context cancelled,
// and jobs still queued are dropped with a warning naming their user.
func (wp *WorkerPool) Shutdown(timeout time.Duration) {
	wp.mu.Lock()
	if wp.closed {
		wp.mu.Unlock()
		return
	}
	wp.closed = true
	close(wp.jobs)
	wp.mu.Unlock()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		wp.log.Info().Msg("Worker pool: all workers finished")
	case <-time.After(timeout):
		wp.log.Warn().Dur("timeout", timeout).Msg("Worker pool: timeout reached, cancelling running jobs")
	}
	wp.cancel()

	if dropped := wp.drain(); dropped > 0 {
		wp.log.Warn().Int("dropped", dropped).Msg("Worker pool: queued jobs dropped at shutdown")
	}
}

// drain empties the closed queue, logging every job that never ran. Workers
// may still take a job concurrently; that job then runs with a cancelled
// context and is logged as failed.
func (wp *WorkerPool) drain() int {
	dropped := 0
	for job := range wp.jobs {
		dropped++
		jobQueueDropped.Add(context.Background(), 1, metric.WithAttributes(attribute.String("reason", "shutdown")))
		wp.log.Warn().
			Str("user_id", job.UserID()).
			Str("job", job.Description()).
			Msg("Dropping queued job")
	}
	return dropped
}
