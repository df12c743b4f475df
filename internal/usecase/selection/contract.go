package selection

import (
	"context"
	"time"

	"github.com/kailas-cloud/lexdrill/internal/domain"
)

// ProgressQuery fetches Rescue and Review candidates from progress records.
type ProgressQuery interface {
	RescueCandidates(
		ctx context.Context, userID string, track domain.Track,
		th domain.RescueThresholds, limit int,
	) ([]domain.Candidate, error)

	DueReviews(
		ctx context.Context, userID string, track domain.Track,
		now time.Time, limit int,
	) ([]domain.Candidate, error)
}

// CatalogQuery fetches never-seen items in survival order.
type CatalogQuery interface {
	NewCandidates(ctx context.Context, userID string, track domain.Track, limit int) ([]domain.LearningItem, error)
}
