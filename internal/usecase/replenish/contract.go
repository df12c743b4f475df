package replenish

import (
	"context"

	"github.com/kailas-cloud/lexdrill/internal/domain"
)

// Generator produces drill content for a set of items. The drills are aligned
// by index with items; a shorter result leaves the tail without content.
type Generator interface {
	Generate(ctx context.Context, mode domain.Mode, items []domain.LearningItem) (domain.Generation, error)
}

// Catalog loads items by id.
type Catalog interface {
	ItemsByIDs(ctx context.Context, ids []int64) ([]domain.LearningItem, error)
}

// Inventory accepts generated drills.
type Inventory interface {
	Push(ctx context.Context, userID string, mode domain.Mode, itemID int64, drill domain.Drill) (bool, error)
}
