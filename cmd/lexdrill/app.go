package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/lexdrill/internal/background"
	"github.com/kailas-cloud/lexdrill/internal/config"
	dbRedis "github.com/kailas-cloud/lexdrill/internal/db/redis"
	"github.com/kailas-cloud/lexdrill/internal/domain"
	"github.com/kailas-cloud/lexdrill/internal/metrics"
	"github.com/kailas-cloud/lexdrill/internal/queue"
	"github.com/kailas-cloud/lexdrill/internal/repository/budget"
	"github.com/kailas-cloud/lexdrill/internal/repository/injection"
	"github.com/kailas-cloud/lexdrill/internal/repository/inventory"
	"github.com/kailas-cloud/lexdrill/internal/sqlstore"
	"github.com/kailas-cloud/lexdrill/internal/srs"
	openaiGen "github.com/kailas-cloud/lexdrill/internal/transport/openai"
	drilluc "github.com/kailas-cloud/lexdrill/internal/usecase/drill"
	"github.com/kailas-cloud/lexdrill/internal/usecase/generation"
	"github.com/kailas-cloud/lexdrill/internal/usecase/grading"
	healthuc "github.com/kailas-cloud/lexdrill/internal/usecase/health"
	replenishuc "github.com/kailas-cloud/lexdrill/internal/usecase/replenish"
	"github.com/kailas-cloud/lexdrill/internal/usecase/selection"
	sessionuc "github.com/kailas-cloud/lexdrill/internal/usecase/session"
)

// app is the composition root shared by all commands.
type app struct {
	store     *dbRedis.Store
	sql       *sqlstore.DB
	catalog   *sqlstore.Catalog
	progress  *sqlstore.Progress
	queue     *queue.Queue
	pool      *background.Pool
	inventory *inventory.Cache
	sessions  *sessionuc.Service
	selector  *selection.Service
	drills    *drilluc.Service
	generator *openaiGen.Generator
	budgeted  *generation.BudgetedGenerator
	health    *healthuc.Service
}

func secs(n int) time.Duration { return time.Duration(n) * time.Second }

func buildApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	metrics.Register()

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Redis.Addrs,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("create kv store: %w", err)
	}
	if err := store.WaitForReady(ctx, secs(cfg.Redis.ReadinessTimeout)); err != nil {
		store.Close()
		return nil, fmt.Errorf("kv store not ready: %w", err)
	}
	logger.Info("Connected to kv store",
		zap.String("driver", cfg.Redis.Driver),
		zap.Strings("addrs", cfg.Redis.Addrs),
	)

	sqlDB, err := sqlstore.Open(ctx, sqlstore.Config{
		Driver:       cfg.SQL.Driver,
		DSN:          cfg.SQL.DSN,
		MaxOpenConns: cfg.SQL.MaxOpenConns,
		Migrate:      cfg.SQL.Migrate,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open sql store: %w", err)
	}
	logger.Info("Connected to sql store", zap.String("driver", sqlDB.Driver()))

	a := &app{
		store:    store,
		sql:      sqlDB,
		catalog:  sqlstore.NewCatalog(sqlDB),
		progress: sqlstore.NewProgress(sqlDB),
	}
	prefix := cfg.Storage.KeyPrefix

	a.queue = queue.New(store, queue.Config{
		Name:        cfg.Queue.Name,
		KeyPrefix:   prefix,
		MaxAttempts: cfg.Queue.MaxAttempts,
		BackoffBase: time.Duration(cfg.Queue.BackoffBaseMs) * time.Millisecond,
	}, logger.Named("queue"))
	a.pool = background.New(cfg.Inventory.BackgroundLimit, logger.Named("background"))

	perMode := make(map[domain.Mode]int, len(cfg.Inventory.BatchesPerMode))
	for m, n := range cfg.Inventory.BatchesPerMode {
		perMode[domain.Mode(m)] = n
	}
	a.inventory = inventory.New(store, a.queue, a.pool, inventory.Config{
		KeyPrefix:      prefix,
		LowWatermark:   cfg.Inventory.LowWatermark,
		FlushThreshold: cfg.Inventory.FlushThreshold,
		FlushBatchSize: cfg.Inventory.FlushBatchSize,
		ItemsPerBatch:  cfg.Inventory.ItemsPerBatch,
		DefaultBatches: cfg.Inventory.DefaultBatches,
		BatchesPerMode: perMode,
	}, logger.Named("inventory"))

	injections := injection.New(store, prefix, logger.Named("injection"))
	a.sessions = sessionuc.New(
		store,
		a.progress,
		srs.New(srs.Config{
			RequestRetention: cfg.SRS.RequestRetention,
			MaximumInterval:  cfg.SRS.MaximumInterval,
		}),
		injections,
		grading.New(nil),
		sessionuc.Config{
			KeyPrefix:   prefix,
			WindowTTL:   secs(cfg.Session.WindowTTLSec),
			StaleAfter:  secs(cfg.Session.StaleWindowSec),
			Parallelism: cfg.Session.SettleParallelism,
		},
		logger.Named("session"),
	)

	a.selector, err = selection.New(a.progress, a.catalog, logger,
		selection.WithRatios(selection.Ratios{
			Rescue: cfg.Selection.RescueRatio,
			Review: cfg.Selection.ReviewRatio,
		}),
		selection.WithRescueThresholds(domain.RescueThresholds{
			VisualBelow: cfg.Selection.VisualRescueBelow,
			LogicBelow:  cfg.Selection.LogicRescueBelow,
		}),
		selection.WithSlotCount(cfg.Selection.SlotCount),
	)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create selection service: %w", err)
	}

	a.drills = drilluc.New(a.selector, a.inventory, a.catalog, injections, a.pool, logger.Named("drill"))

	if cfg.Generator.APIKey != "" {
		host, _ := os.Hostname()
		a.generator = openaiGen.NewGenerator(&openaiGen.Config{
			APIKey:  cfg.Generator.APIKey,
			BaseURL: cfg.Generator.BaseURL,
			Model:   cfg.Generator.Model,
			User:    host,
			Timeout: secs(cfg.Generator.TimeoutSec),
			Logger:  logger.Named("generator"),
		})
		tracker := generation.NewBudgetTracker(prefix, generation.BudgetLimits{
			Daily:   cfg.Generator.Budget.DailyTokenLimit,
			Monthly: cfg.Generator.Budget.MonthlyTokenLimit,
			Action:  generation.BudgetAction(cfg.Generator.Budget.Action),
		}, logger.Named("budget")).WithStore(ctx, budget.New(store, 48*time.Hour, 62*24*time.Hour))
		a.budgeted = generation.NewBudgetedGenerator(a.generator, tracker, logger.Named("generator"))
	}

	// a nil *Generator must not become a non-nil interface
	var genCheck healthuc.GeneratorChecker
	if a.generator != nil {
		genCheck = a.generator
	}
	a.health = healthuc.New(store, sqlDB, genCheck)
	return a, nil
}

// replenisher returns the queue handler, or an error when no generator is configured.
func (a *app) replenisher(logger *zap.Logger) (*replenishuc.Handler, error) {
	if a.generator == nil {
		return nil, fmt.Errorf("generator.api_key is required to process replenishment jobs")
	}
	return replenishuc.New(a.catalog, a.budgeted, a.inventory, logger.Named("replenish")), nil
}

// Close drains background work and releases connections.
func (a *app) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
	if a.sql != nil {
		_ = a.sql.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
}
