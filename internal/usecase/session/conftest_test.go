package session

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/lexdrill/internal/db/dbtest"
	"github.com/kailas-cloud/lexdrill/internal/domain"
)

var t0 = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type progressKey struct {
	user string
	item int64
}

type mockProgress struct {
	mu        sync.Mutex
	records   map[progressKey]*domain.ProgressRecord
	upserts   int
	getErr    error
	upsertErr error
	adjustErr error
	// onGet runs once, before the next Get reads
	onGet func()
}

func newMockProgress() *mockProgress {
	return &mockProgress{records: make(map[progressKey]*domain.ProgressRecord)}
}

func (m *mockProgress) Get(_ context.Context, userID string, itemID int64, _ domain.Track) (*domain.ProgressRecord, error) {
	m.mu.Lock()
	hook := m.onGet
	m.onGet = nil
	m.mu.Unlock()
	if hook != nil {
		hook()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	rec, ok := m.records[progressKey{userID, itemID}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *mockProgress) Upsert(_ context.Context, rec *domain.ProgressRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.upserts++
	cp := *rec
	k := progressKey{rec.UserID, rec.ItemID}
	if prev, ok := m.records[k]; ok {
		// dimensions are owned by AdjustDimension once the row exists
		cp.Dimensions = prev.Dimensions
	}
	m.records[k] = &cp
	return nil
}

func (m *mockProgress) AdjustDimension(
	_ context.Context, userID string, itemID int64, track domain.Track, dim domain.Dimension, delta int,
) (domain.DimensionScores, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.adjustErr != nil {
		return domain.DimensionScores{}, m.adjustErr
	}
	k := progressKey{userID, itemID}
	rec, ok := m.records[k]
	if !ok {
		rec = &domain.ProgressRecord{UserID: userID, ItemID: itemID, Track: track, Dimensions: domain.NewDimensionScores()}
		m.records[k] = rec
	}
	rec.Dimensions.Adjust(dim, delta)
	return rec.Dimensions, nil
}

func (m *mockProgress) record(user string, item int64) *domain.ProgressRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[progressKey{user, item}]
}

type schedCall struct {
	card   domain.Card
	rating domain.Rating
}

// fakeScheduler moves every card to Review, due one day after now.
type fakeScheduler struct {
	mu    sync.Mutex
	calls []schedCall
}

func (f *fakeScheduler) Next(card domain.Card, rating domain.Rating, now time.Time) domain.Card {
	f.mu.Lock()
	f.calls = append(f.calls, schedCall{card, rating})
	f.mu.Unlock()
	next := card
	next.State = domain.StateReview
	next.Reps++
	next.Stability = float64(rating)
	next.Due = now.Add(24 * time.Hour)
	next.LastReview = &now
	if rating == domain.Again {
		next.State = domain.StateRelearning
		next.Lapses++
	}
	return next
}

func (f *fakeScheduler) ratings() []domain.Rating {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Rating, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.rating
	}
	return out
}

type scheduled struct {
	user string
	inj  domain.Injection
	at   time.Time
}

type mockInjections struct {
	items []scheduled
	err   error
}

func (m *mockInjections) Schedule(_ context.Context, userID string, inj domain.Injection, at time.Time) error {
	if m.err != nil {
		return m.err
	}
	m.items = append(m.items, scheduled{userID, inj, at})
	return nil
}

type fixture struct {
	svc        *Service
	store      *dbtest.Store
	progress   *mockProgress
	scheduler  *fakeScheduler
	injections *mockInjections
	clock      *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:      newStore(),
		progress:   newMockProgress(),
		scheduler:  &fakeScheduler{},
		injections: &mockInjections{},
	}
	now := t0
	f.clock = &now
	f.svc = New(f.store, f.progress, f.scheduler, f.injections, nil, Config{KeyPrefix: "t:"}, zap.NewNop())
	f.svc.now = func() time.Time { return *f.clock }
	return f
}

// newStore returns an in-memory store with the session scripts emulated.
func newStore() *dbtest.Store {
	s := dbtest.New()
	s.HandleScript(clearActiveScript.Name, func(s *dbtest.Store, keys, args []string) (int64, error) {
		cutoff, _ := strconv.ParseFloat(args[1], 64)
		for _, m := range s.ZRangeLocked(keys[0], -1e300, cutoff) {
			if m.Member == args[0] {
				s.ZRemLocked(keys[0], m.Member)
				return 1, nil
			}
		}
		return 0, nil
	})
	return s
}

func (f *fixture) advance(d time.Duration) { *f.clock = f.clock.Add(d) }

func windowKey(user string, item int64) string {
	return fmt.Sprintf("t:window:%s:%d", user, item)
}
