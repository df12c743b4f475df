package chi

import (
	"context"

	"github.com/kailas-cloud/lexdrill/internal/domain"
	healthuc "github.com/kailas-cloud/lexdrill/internal/usecase/health"
	sessionuc "github.com/kailas-cloud/lexdrill/internal/usecase/session"
)

// Selector runs the candidate funnel.
type Selector interface {
	SelectBuckets(
		ctx context.Context, userID string, track domain.Track, slotCount int, buckets []domain.Bucket,
	) ([]domain.Candidate, error)
}

// DrillServer assembles drill batches.
type DrillServer interface {
	NextBatch(ctx context.Context, userID string, mode domain.Mode, limit int) ([]domain.ServedDrill, error)
}

// Sessions records answers and commits windows.
type Sessions interface {
	Submit(ctx context.Context, a sessionuc.Answer) (sessionuc.SubmitResult, error)
	Flush(ctx context.Context, userID string) (sessionuc.FlushResult, error)
}

// Inventory exposes per-user inventory administration.
type Inventory interface {
	Stats(ctx context.Context, userID string) (map[domain.Mode]int, error)
	ClearAll(ctx context.Context, userID string) (int, error)
	ClearMode(ctx context.Context, userID string, mode domain.Mode) (int, error)
}

// Catalog reads and imports learning items.
type Catalog interface {
	Get(ctx context.Context, id int64) (*domain.LearningItem, error)
	Upsert(ctx context.Context, items []domain.LearningItem) (int, error)
}

// HealthChecker reports dependency health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}
