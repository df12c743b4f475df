package session

import (
	"context"
	"time"

	"github.com/kailas-cloud/lexdrill/internal/db"
	"github.com/kailas-cloud/lexdrill/internal/domain"
)

// windowStore is the KV subset used for session windows (ISP).
type windowStore interface {
	Del(ctx context.Context, keys ...string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
	Scan(ctx context.Context, pattern string) ([]string, error)
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error)
	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZRem(ctx context.Context, key string, members ...string) error
	ZRangeByScore(ctx context.Context, key string, minScore, maxScore float64) ([]string, error)
	EvalInt(ctx context.Context, script *db.Script, keys, args []string) (int64, error)
}

// ProgressRepository loads and stores scheduling state.
type ProgressRepository interface {
	Get(ctx context.Context, userID string, itemID int64, track domain.Track) (*domain.ProgressRecord, error)
	Upsert(ctx context.Context, rec *domain.ProgressRecord) error
	AdjustDimension(
		ctx context.Context, userID string, itemID int64, track domain.Track, dim domain.Dimension, delta int,
	) (domain.DimensionScores, error)
}

// InjectionScheduler queues remedial drills.
type InjectionScheduler interface {
	Schedule(ctx context.Context, userID string, inj domain.Injection, at time.Time) error
}
