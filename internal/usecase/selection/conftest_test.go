package selection

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/kailas-cloud/lexdrill/internal/domain"
)

// --- mock progress/catalog queries ---

type mockProgress struct {
	rescueFn func(limit int) ([]domain.Candidate, error)
	reviewFn func(limit int) ([]domain.Candidate, error)

	rescueLimit atomic.Int64
	reviewLimit atomic.Int64
}

func (m *mockProgress) RescueCandidates(
	_ context.Context, _ string, _ domain.Track, _ domain.RescueThresholds, limit int,
) ([]domain.Candidate, error) {
	m.rescueLimit.Store(int64(limit))
	if m.rescueFn != nil {
		return m.rescueFn(limit)
	}
	return nil, nil
}

func (m *mockProgress) DueReviews(
	_ context.Context, _ string, _ domain.Track, _ time.Time, limit int,
) ([]domain.Candidate, error) {
	m.reviewLimit.Store(int64(limit))
	if m.reviewFn != nil {
		return m.reviewFn(limit)
	}
	return nil, nil
}

type mockCatalog struct {
	newFn func(limit int) ([]domain.LearningItem, error)
}

func (m *mockCatalog) NewCandidates(_ context.Context, _ string, _ domain.Track, limit int) ([]domain.LearningItem, error) {
	if m.newFn != nil {
		return m.newFn(limit)
	}
	return nil, nil
}

var errBoom = errors.New("connection reset")

// candidates builds n candidates with ids start..start+n-1, respecting the query limit.
func candidates(start int64, n int) func(limit int) ([]domain.Candidate, error) {
	return func(limit int) ([]domain.Candidate, error) {
		out := make([]domain.Candidate, 0, n)
		for i := 0; i < n && i < limit; i++ {
			id := start + int64(i)
			out = append(out, domain.Candidate{
				Item: domain.LearningItem{ID: id, Word: fmt.Sprintf("w%d", id)},
			})
		}
		return out, nil
	}
}

func items(start int64, n int) func(limit int) ([]domain.LearningItem, error) {
	return func(limit int) ([]domain.LearningItem, error) {
		out := make([]domain.LearningItem, 0, n)
		for i := 0; i < n && i < limit; i++ {
			id := start + int64(i)
			out = append(out, domain.LearningItem{ID: id, Word: fmt.Sprintf("w%d", id)})
		}
		return out, nil
	}
}

func countBuckets(cs []domain.Candidate) map[domain.Bucket]int {
	m := make(map[domain.Bucket]int)
	for _, c := range cs {
		m[c.Bucket]++
	}
	return m
}
