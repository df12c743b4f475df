// Package cron runs the periodic maintenance jobs: settling idle sessions,
// sweeping the replenishment buffer and promoting delayed queue jobs.
package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

// Settler flushes idle learner sessions.
type Settler interface {
	SettleInactive(ctx context.Context, idle time.Duration) (int, error)
}

// Sweeper drains the replenishment buffer.
type Sweeper interface {
	BufferSize(ctx context.Context) (int64, error)
	FlushBuffer(ctx context.Context) (int, error)
}

// Promoter moves due delayed jobs back to the pending set.
type Promoter interface {
	PromoteDelayed(ctx context.Context) (int, error)
}

// Locker grants a short-lived lock so only one instance runs a tick.
type Locker interface {
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
}

// Config holds job intervals.
type Config struct {
	KeyPrefix      string
	SettleInterval time.Duration
	SettleIdle     time.Duration
	SweepInterval  time.Duration
	PromoteEvery   time.Duration
	// TaskTimeout bounds a single run of any job.
	TaskTimeout time.Duration
	// Owner identifies this instance in lock values.
	Owner string
}

func (c *Config) applyDefaults() {
	if c.SettleInterval <= 0 {
		c.SettleInterval = time.Minute
	}
	if c.SettleIdle <= 0 {
		c.SettleIdle = 5 * time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 30 * time.Second
	}
	if c.PromoteEvery <= 0 {
		c.PromoteEvery = time.Second
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = 30 * time.Second
	}
	if c.Owner == "" {
		c.Owner = "lexdrill"
	}
}

// Scheduler wraps a gocron scheduler in UTC with singleton jobs.
type Scheduler struct {
	scheduler *gocron.Scheduler
	settler   Settler
	sweeper   Sweeper
	promoter  Promoter
	locker    Locker
	cfg       Config
	logger    *zap.Logger
}

// New creates a scheduler. Any of settler, sweeper and promoter may be nil to
// skip that job; a nil locker runs every tick locally.
func New(settler Settler, sweeper Sweeper, promoter Promoter, locker Locker, cfg Config, logger *zap.Logger) *Scheduler {
	cfg.applyDefaults()
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		settler:   settler,
		sweeper:   sweeper,
		promoter:  promoter,
		locker:    locker,
		cfg:       cfg,
		logger:    logger,
	}
}

// Start registers the jobs and runs them in the background.
func (s *Scheduler) Start() error {
	if s.settler != nil {
		if _, err := s.scheduler.Every(s.cfg.SettleInterval).Do(s.run, "settle", lockTTL(s.cfg.SettleInterval), s.Settle); err != nil {
			return fmt.Errorf("schedule settle: %w", err)
		}
	}
	if s.sweeper != nil {
		if _, err := s.scheduler.Every(s.cfg.SweepInterval).Do(s.run, "sweep", lockTTL(s.cfg.SweepInterval), s.Sweep); err != nil {
			return fmt.Errorf("schedule sweep: %w", err)
		}
	}
	if s.promoter != nil {
		if _, err := s.scheduler.Every(s.cfg.PromoteEvery).Do(s.run, "promote", time.Duration(0), s.Promote); err != nil {
			return fmt.Errorf("schedule promote: %w", err)
		}
	}
	s.scheduler.StartAsync()
	s.logger.Info("periodic jobs started",
		zap.Duration("settle_interval", s.cfg.SettleInterval),
		zap.Duration("sweep_interval", s.cfg.SweepInterval),
		zap.Duration("promote_every", s.cfg.PromoteEvery),
	)
	return nil
}

// lockTTL expires the lock shortly before the next tick.
func lockTTL(interval time.Duration) time.Duration {
	return interval * 9 / 10
}

// Stop terminates all scheduled jobs.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

// run executes one tick under a timeout. A positive lockTTL takes a cluster-wide
// lock first and skips the tick when another instance holds it.
func (s *Scheduler) run(name string, lockTTL time.Duration, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.TaskTimeout)
	defer cancel()

	if lockTTL > 0 && s.locker != nil {
		ok, err := s.locker.SetNX(ctx, s.cfg.KeyPrefix+"cron:lock:"+name, s.cfg.Owner, lockTTL)
		if err != nil {
			s.logger.Warn("cron lock failed", zap.String("job", name), zap.Error(err))
			return
		}
		if !ok {
			return
		}
	}
	if err := fn(ctx); err != nil {
		s.logger.Warn("cron job failed", zap.String("job", name), zap.Error(err))
	}
}

// Settle flushes sessions idle for at least the configured idle time.
func (s *Scheduler) Settle(ctx context.Context) error {
	n, err := s.settler.SettleInactive(ctx, s.cfg.SettleIdle)
	if err != nil {
		return fmt.Errorf("settle sessions: %w", err)
	}
	if n > 0 {
		s.logger.Info("idle sessions settled", zap.Int("users", n))
	}
	return nil
}

// Sweep flushes a non-empty buffer regardless of the flush threshold, so a
// quiet buffer does not wait forever.
func (s *Scheduler) Sweep(ctx context.Context) error {
	size, err := s.sweeper.BufferSize(ctx)
	if err != nil {
		return fmt.Errorf("read buffer size: %w", err)
	}
	if size == 0 {
		return nil
	}
	jobs, err := s.sweeper.FlushBuffer(ctx)
	if err != nil {
		return fmt.Errorf("sweep buffer: %w", err)
	}
	s.logger.Debug("replenish buffer swept", zap.Int64("buffered", size), zap.Int("jobs", jobs))
	return nil
}

// Promote requeues delayed jobs that are due.
func (s *Scheduler) Promote(ctx context.Context) error {
	n, err := s.promoter.PromoteDelayed(ctx)
	if err != nil {
		return fmt.Errorf("promote delayed jobs: %w", err)
	}
	if n > 0 {
		s.logger.Debug("delayed jobs promoted", zap.Int("jobs", n))
	}
	return nil
}
