package inventory

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/lexdrill/internal/db/dbtest"
	"github.com/kailas-cloud/lexdrill/internal/domain"
	"github.com/kailas-cloud/lexdrill/internal/queue"
)

type enqueued struct {
	Type domain.JobType
	Req  domain.ReplenishRequest
	Opts queue.EnqueueOptions
}

// mockQueue records jobs and deduplicates explicit ids like the real queue.
type mockQueue struct {
	mu         sync.Mutex
	jobs       []enqueued
	ids        map[string]bool
	enqueueErr error
}

func newMockQueue() *mockQueue {
	return &mockQueue{ids: make(map[string]bool)}
}

func (m *mockQueue) Enqueue(_ context.Context, t domain.JobType, payload any, opts queue.EnqueueOptions) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.enqueueErr != nil {
		return false, m.enqueueErr
	}
	if opts.JobID != "" {
		if m.ids[opts.JobID] {
			return false, nil
		}
		m.ids[opts.JobID] = true
	}
	req, _ := payload.(domain.ReplenishRequest)
	m.jobs = append(m.jobs, enqueued{Type: t, Req: req, Opts: opts})
	return true, nil
}

func (m *mockQueue) Exists(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ids[id], nil
}

func (m *mockQueue) all() []enqueued {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]enqueued(nil), m.jobs...)
}

// syncRunner runs tasks inline so tests observe their effects immediately.
type syncRunner struct {
	mu    sync.Mutex
	names []string
	errs  []error
}

func (r *syncRunner) Go(name string, fn func(ctx context.Context) error) bool {
	err := fn(context.Background())
	r.mu.Lock()
	r.names = append(r.names, name)
	r.errs = append(r.errs, err)
	r.mu.Unlock()
	return true
}

type fixture struct {
	cache  *Cache
	store  *dbtest.Store
	queue  *mockQueue
	runner *syncRunner
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "t:"
	}
	f := &fixture{store: dbtest.New(), queue: newMockQueue(), runner: &syncRunner{}}
	f.store.HandleStringScript(popScript.Name, emulatePop)
	f.cache = New(f.store, f.queue, f.runner, cfg, zap.NewNop())
	f.cache.now = func() time.Time { return time.Unix(1_800_000_000, 0) }
	return f
}

// emulatePop mirrors popScript.
func emulatePop(s *dbtest.Store, keys, args []string) (string, bool, error) {
	v := s.LPopLocked(keys[0])
	if v == nil {
		return "", false, nil
	}
	left, err := s.HIncrByLocked(keys[1], args[0], -1)
	if err != nil {
		return "", false, err
	}
	if left < 0 {
		s.HSetLocked(keys[1], map[string]string{args[0]: "0"})
	}
	return string(v), true, nil
}

func drill(mode domain.Mode, itemID int64, payload string) domain.Drill {
	return domain.Drill{
		Meta:    domain.DrillMeta{Mode: mode, ItemID: itemID, Source: domain.SourceGenerator},
		Payload: json.RawMessage(`"` + payload + `"`),
	}
}
