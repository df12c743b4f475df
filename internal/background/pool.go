// Package background runs bounded fire-and-forget tasks off the request path.
package background

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/lexdrill/internal/metrics"
)

const defaultTaskTimeout = 30 * time.Second

// Pool runs tasks with a concurrency limit. Tasks submitted while the pool is
// saturated or closed are dropped and counted.
type Pool struct {
	g       errgroup.Group
	base    context.Context
	cancel  context.CancelFunc
	timeout time.Duration
	logger  *zap.Logger
	closed  atomic.Bool
}

// New creates a pool that runs at most limit tasks at once.
func New(limit int, logger *zap.Logger) *Pool {
	if limit <= 0 {
		limit = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{base: ctx, cancel: cancel, timeout: defaultTaskTimeout, logger: logger}
	p.g.SetLimit(limit)
	return p
}

// Go submits a named task. It reports false when the task was dropped.
// The task context is detached from any request and bounded by the task timeout.
func (p *Pool) Go(name string, fn func(ctx context.Context) error) bool {
	if p.closed.Load() {
		metrics.BackgroundTasksTotal.WithLabelValues(name, "dropped").Inc()
		return false
	}
	ok := p.g.TryGo(func() error {
		ctx, cancel := context.WithTimeout(p.base, p.timeout)
		defer cancel()
		if err := run(ctx, fn); err != nil {
			metrics.BackgroundTasksTotal.WithLabelValues(name, "error").Inc()
			p.logger.Warn("background task failed", zap.String("task", name), zap.Error(err))
			return nil
		}
		metrics.BackgroundTasksTotal.WithLabelValues(name, "ok").Inc()
		return nil
	})
	if !ok {
		metrics.BackgroundTasksTotal.WithLabelValues(name, "dropped").Inc()
		p.logger.Debug("background pool saturated, task dropped", zap.String("task", name))
	}
	return ok
}

// Close stops accepting tasks and waits for running ones.
func (p *Pool) Close() {
	p.closed.Store(true)
	_ = p.g.Wait()
	p.cancel()
}

func run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}
