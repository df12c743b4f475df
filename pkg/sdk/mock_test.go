package lexdrill

import (
	"context"

	"github.com/kailas-cloud/lexdrill/internal/domain"
	healthuc "github.com/kailas-cloud/lexdrill/internal/usecase/health"
	sessionuc "github.com/kailas-cloud/lexdrill/internal/usecase/session"
)

// --- selectionUseCase mock ---

type mockSelection struct {
	selectFn func(ctx context.Context, userID string, track domain.Track, slots int, buckets []domain.Bucket) ([]domain.Candidate, error)
}

func (m *mockSelection) SelectBuckets(
	ctx context.Context, userID string, track domain.Track, slots int, buckets []domain.Bucket,
) ([]domain.Candidate, error) {
	return m.selectFn(ctx, userID, track, slots, buckets)
}

// --- drillUseCase mock ---

type mockDrills struct {
	nextFn func(ctx context.Context, userID string, mode domain.Mode, limit int) ([]domain.ServedDrill, error)
}

func (m *mockDrills) NextBatch(ctx context.Context, userID string, mode domain.Mode, limit int) ([]domain.ServedDrill, error) {
	return m.nextFn(ctx, userID, mode, limit)
}

// --- sessionUseCase mock ---

type mockSessions struct {
	submitFn func(ctx context.Context, a sessionuc.Answer) (sessionuc.SubmitResult, error)
	flushFn  func(ctx context.Context, userID string) (sessionuc.FlushResult, error)
}

func (m *mockSessions) Submit(ctx context.Context, a sessionuc.Answer) (sessionuc.SubmitResult, error) {
	return m.submitFn(ctx, a)
}

func (m *mockSessions) Flush(ctx context.Context, userID string) (sessionuc.FlushResult, error) {
	return m.flushFn(ctx, userID)
}

// --- catalogStore mock ---

type mockCatalog struct {
	getFn    func(ctx context.Context, id int64) (*domain.LearningItem, error)
	upsertFn func(ctx context.Context, items []domain.LearningItem) (int, error)
}

func (m *mockCatalog) Get(ctx context.Context, id int64) (*domain.LearningItem, error) {
	return m.getFn(ctx, id)
}

func (m *mockCatalog) Upsert(ctx context.Context, items []domain.LearningItem) (int, error) {
	return m.upsertFn(ctx, items)
}

// --- inventoryUseCase mock ---

type mockInventory struct {
	statsFn func(ctx context.Context, userID string) (map[domain.Mode]int, error)
	clearFn func(ctx context.Context, userID string) (int, error)
}

func (m *mockInventory) Stats(ctx context.Context, userID string) (map[domain.Mode]int, error) {
	return m.statsFn(ctx, userID)
}

func (m *mockInventory) ClearAll(ctx context.Context, userID string) (int, error) {
	return m.clearFn(ctx, userID)
}

// --- healthUseCase mock ---

type mockHealth struct {
	report healthuc.Report
}

func (m *mockHealth) Check(context.Context) healthuc.Report { return m.report }

// --- workerRunner mock ---

type mockWorker struct {
	runs int
}

func (m *mockWorker) Run(context.Context) { m.runs++ }
