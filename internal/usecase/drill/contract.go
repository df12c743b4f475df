package drill

import (
	"context"
	"time"

	"github.com/kailas-cloud/lexdrill/internal/domain"
)

// Selector picks candidate items for a session.
type Selector interface {
	Select(ctx context.Context, userID string, slotCount int) []domain.Candidate
}

// Inventory serves cached drills and accepts urgent replenishment.
type Inventory interface {
	PopBatch(ctx context.Context, userID string, groups map[domain.Mode][]int64) map[int64]*domain.Drill
	TriggerBatchEmergency(ctx context.Context, userID string, mode domain.Mode, itemIDs []int64) (bool, error)
}

// InjectionSource yields remedial drills that are due.
type InjectionSource interface {
	PopDue(ctx context.Context, userID string, now time.Time, limit int) ([]domain.Injection, error)
}

// Catalog loads items by id.
type Catalog interface {
	ItemsByIDs(ctx context.Context, ids []int64) ([]domain.LearningItem, error)
}

// Runner runs fire-and-forget tasks.
type Runner interface {
	Go(name string, fn func(ctx context.Context) error) bool
}
