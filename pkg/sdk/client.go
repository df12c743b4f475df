package lexdrill

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/lexdrill/internal/background"
	dbRedis "github.com/kailas-cloud/lexdrill/internal/db/redis"
	"github.com/kailas-cloud/lexdrill/internal/domain"
	"github.com/kailas-cloud/lexdrill/internal/queue"
	"github.com/kailas-cloud/lexdrill/internal/repository/injection"
	"github.com/kailas-cloud/lexdrill/internal/repository/inventory"
	"github.com/kailas-cloud/lexdrill/internal/sqlstore"
	"github.com/kailas-cloud/lexdrill/internal/srs"
	openaiGen "github.com/kailas-cloud/lexdrill/internal/transport/openai"
	drilluc "github.com/kailas-cloud/lexdrill/internal/usecase/drill"
	healthuc "github.com/kailas-cloud/lexdrill/internal/usecase/health"
	replenishuc "github.com/kailas-cloud/lexdrill/internal/usecase/replenish"
	"github.com/kailas-cloud/lexdrill/internal/usecase/selection"
	sessionuc "github.com/kailas-cloud/lexdrill/internal/usecase/session"
)

const (
	defaultReadinessTimeout = 10 * time.Second
	defaultKeyPrefix        = "lexdrill:"
	workerPoll              = 500 * time.Millisecond
)

// Internal interfaces, replaced by fakes in tests.
type selectionUseCase interface {
	SelectBuckets(
		ctx context.Context, userID string, track domain.Track, slotCount int, buckets []domain.Bucket,
	) ([]domain.Candidate, error)
}

type drillUseCase interface {
	NextBatch(ctx context.Context, userID string, mode domain.Mode, limit int) ([]domain.ServedDrill, error)
}

type sessionUseCase interface {
	Submit(ctx context.Context, a sessionuc.Answer) (sessionuc.SubmitResult, error)
	Flush(ctx context.Context, userID string) (sessionuc.FlushResult, error)
}

type catalogStore interface {
	Get(ctx context.Context, id int64) (*domain.LearningItem, error)
	Upsert(ctx context.Context, items []domain.LearningItem) (int, error)
}

type inventoryUseCase interface {
	Stats(ctx context.Context, userID string) (map[domain.Mode]int, error)
	ClearAll(ctx context.Context, userID string) (int, error)
}

type healthUseCase interface {
	Check(ctx context.Context) healthuc.Report
}

type workerRunner interface {
	Run(ctx context.Context)
}

// Client is the lexdrill SDK entry point. Safe for concurrent use.
type Client struct {
	selection selectionUseCase
	drills    drillUseCase
	sessions  sessionUseCase
	catalog   catalogStore
	inventory inventoryUseCase
	health    healthUseCase
	worker    workerRunner
	closers   []func()
	obs       *observer
}

// New connects to both stores and wires the engine.
// The provided context is used for connecting and the initial readiness check.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{keyPrefix: defaultKeyPrefix, workers: 1}
	for _, o := range opts {
		o.apply(cfg)
	}

	if len(cfg.addrs) == 0 {
		return nil, errors.New("lexdrill: kv store address required (use WithValkey or WithRedis)")
	}
	if cfg.sqlDSN == "" {
		return nil, errors.New("lexdrill: sql store required (use WithPostgres or WithSQLite)")
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	store, err := dbRedis.NewStore(dbRedis.Config{Addrs: cfg.addrs, Password: cfg.password})
	if err != nil {
		return nil, fmt.Errorf("lexdrill: create kv store: %w", err)
	}
	if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
		store.Close()
		return nil, fmt.Errorf("lexdrill: kv store not ready: %w", err)
	}

	sqlDB, err := sqlstore.Open(ctx, sqlstore.Config{Driver: cfg.sqlDriver, DSN: cfg.sqlDSN, Migrate: true})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("lexdrill: open sql store: %w", err)
	}

	c, err := wireClient(store, sqlDB, cfg)
	if err != nil {
		_ = sqlDB.Close()
		store.Close()
		return nil, err
	}
	c.obs = obs
	return c, nil
}

func wireClient(store *dbRedis.Store, sqlDB *sqlstore.DB, cfg *clientConfig) (*Client, error) {
	logger := zap.NewNop()
	prefix := cfg.keyPrefix

	catalog := sqlstore.NewCatalog(sqlDB)
	progress := sqlstore.NewProgress(sqlDB)
	pool := background.New(16, logger)
	q := queue.New(store, queue.Config{Name: "drill-generation", KeyPrefix: prefix}, logger)
	cache := inventory.New(store, q, pool, inventory.Config{KeyPrefix: prefix}, logger)
	injections := injection.New(store, prefix, logger)

	sel, err := selection.New(progress, catalog, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("lexdrill: selection: %w", err)
	}

	var gen replenishuc.Generator
	var genCheck healthuc.GeneratorChecker
	switch {
	case cfg.openAI != nil:
		g := openaiGen.NewGenerator(&openaiGen.Config{
			APIKey:  cfg.openAI.apiKey,
			BaseURL: cfg.openAI.baseURL,
			Model:   cfg.openAI.model,
			Logger:  logger,
		})
		gen, genCheck = g, g
	case cfg.generator != nil:
		gen = &generatorAdapter{inner: cfg.generator}
	}

	c := &Client{
		selection: sel,
		drills:    drilluc.New(sel, cache, catalog, injections, pool, logger),
		sessions:  sessionuc.New(store, progress, srs.New(srs.Config{}), injections, nil, sessionuc.Config{KeyPrefix: prefix}, logger),
		catalog:   catalog,
		inventory: cache,
		health:    healthuc.New(store, sqlDB, genCheck),
		closers: []func(){
			pool.Close,
			func() { _ = sqlDB.Close() },
			store.Close,
		},
	}
	if gen != nil {
		w := queue.NewWorker(q, cfg.workers, workerPoll, logger)
		replenishuc.New(catalog, gen, cache, logger).Register(w)
		c.worker = w
	}
	return c, nil
}

// Close waits for background refills and releases all connections.
func (c *Client) Close() {
	for _, fn := range c.closers {
		fn()
	}
}

// RunWorker processes replenishment jobs until ctx is cancelled.
// Requires WithGenerator or WithOpenAI.
func (c *Client) RunWorker(ctx context.Context) error {
	if c.worker == nil {
		return errors.New("lexdrill: no generator configured (use WithGenerator or WithOpenAI)")
	}
	c.worker.Run(ctx)
	return nil
}
