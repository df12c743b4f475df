package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/lexdrill/internal/domain"
	"github.com/kailas-cloud/lexdrill/internal/metrics"
)

// Handler processes one job. A returned error schedules a retry.
type Handler interface {
	Handle(ctx context.Context, job *Job) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job *Job) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, job *Job) error { return f(ctx, job) }

// ErrPermanent marks a handler error that must not be retried.
var ErrPermanent = errors.New("permanent job failure")

// Worker polls the queue with a fixed number of goroutines.
type Worker struct {
	queue       *Queue
	handlers    map[domain.JobType]Handler
	concurrency int
	poll        time.Duration
	logger      *zap.Logger
}

// NewWorker creates a worker.
func NewWorker(q *Queue, concurrency int, poll time.Duration, logger *zap.Logger) *Worker {
	if concurrency <= 0 {
		concurrency = 1
	}
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	return &Worker{
		queue:       q,
		handlers:    make(map[domain.JobType]Handler),
		concurrency: concurrency,
		poll:        poll,
		logger:      logger,
	}
}

// Handle registers h for a job type. Not safe to call after Run.
func (w *Worker) Handle(t domain.JobType, h Handler) {
	w.handlers[t] = h
}

// Run blocks until ctx is cancelled and all goroutines have exited.
func (w *Worker) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := range w.concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.loop(ctx, i)
		}()
	}
	wg.Wait()
}

func (w *Worker) loop(ctx context.Context, id int) {
	log := w.logger.With(zap.Int("worker", id))
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		processed, err := w.ProcessOne(ctx)
		if err != nil && ctx.Err() == nil {
			log.Warn("queue poll failed", zap.Error(err))
		}
		if processed {
			timer.Reset(0)
		} else {
			timer.Reset(w.poll)
		}
	}
}

// ProcessOne dequeues and handles a single job. It reports whether a job was taken.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	job, err := w.queue.Dequeue(ctx)
	if errors.Is(err, ErrEmpty) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	start := time.Now()
	herr := w.dispatch(ctx, job)
	metrics.QueueJobDuration.WithLabelValues(string(job.Type)).Observe(time.Since(start).Seconds())

	log := w.logger.With(zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
	switch {
	case herr == nil:
		metrics.QueueJobsTotal.WithLabelValues(string(job.Type), "completed").Inc()
		return true, w.queue.Complete(ctx, job)

	case errors.Is(herr, ErrPermanent):
		metrics.QueueJobsTotal.WithLabelValues(string(job.Type), "failed").Inc()
		log.Error("queue job rejected", zap.Error(herr))
		return true, w.queue.Complete(ctx, job)

	default:
		retried, err := w.queue.Retry(ctx, job, herr)
		if err != nil {
			return true, err
		}
		if retried {
			metrics.QueueJobsTotal.WithLabelValues(string(job.Type), "retried").Inc()
			log.Warn("queue job failed, retrying", zap.Int("attempt", job.Attempts), zap.Error(herr))
		} else {
			metrics.QueueJobsTotal.WithLabelValues(string(job.Type), "failed").Inc()
		}
		return true, nil
	}
}

func (w *Worker) dispatch(ctx context.Context, job *Job) (err error) {
	h, ok := w.handlers[job.Type]
	if !ok {
		return fmt.Errorf("%w: no handler for %q", ErrPermanent, job.Type)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.Handle(ctx, job)
}
