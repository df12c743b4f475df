// Package injection keeps per-user queues of remedial drills that become due
// a few minutes after a failed answer.
package injection

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/lexdrill/internal/domain"
)

// store is the consumer interface for injections (ISP).
type store interface {
	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZRem(ctx context.Context, key string, members ...string) error
	ZRangeByScore(ctx context.Context, key string, minScore, maxScore float64) ([]string, error)
	ZCard(ctx context.Context, key string) (int64, error)
}

// Repo implements session.InjectionScheduler and drill.InjectionSource.
type Repo struct {
	store  store
	prefix string
	logger *zap.Logger
}

// New creates an injection repository.
func New(s store, keyPrefix string, logger *zap.Logger) *Repo {
	return &Repo{store: s, prefix: keyPrefix, logger: logger}
}

func (r *Repo) key(userID string) string {
	return r.prefix + "injection:" + userID
}

// Schedule queues inj to become due at at.
func (r *Repo) Schedule(ctx context.Context, userID string, inj domain.Injection, at time.Time) error {
	inj.Source = domain.SourceInjection
	data, err := json.Marshal(inj)
	if err != nil {
		return fmt.Errorf("marshal injection: %w", err)
	}
	if err := r.store.ZAdd(ctx, r.key(userID), float64(at.UnixMilli()), string(data)); err != nil {
		return fmt.Errorf("schedule injection: %w", err)
	}
	return nil
}

// PopDue removes and returns up to limit injections due at now, oldest first.
func (r *Repo) PopDue(ctx context.Context, userID string, now time.Time, limit int) ([]domain.Injection, error) {
	if limit <= 0 {
		return nil, nil
	}
	key := r.key(userID)
	members, err := r.store.ZRangeByScore(ctx, key, 0, float64(now.UnixMilli()))
	if err != nil {
		return nil, fmt.Errorf("read injections: %w", err)
	}
	if len(members) > limit {
		members = members[:limit]
	}
	if len(members) == 0 {
		return nil, nil
	}
	if err := r.store.ZRem(ctx, key, members...); err != nil {
		return nil, fmt.Errorf("remove injections: %w", err)
	}

	out := make([]domain.Injection, 0, len(members))
	for _, m := range members {
		var inj domain.Injection
		if err := json.Unmarshal([]byte(m), &inj); err != nil {
			r.logger.Warn("dropping malformed injection", zap.String("user_id", userID), zap.Error(err))
			continue
		}
		out = append(out, inj)
	}
	return out, nil
}

// Pending returns the number of queued injections, due or not.
func (r *Repo) Pending(ctx context.Context, userID string) (int64, error) {
	return r.store.ZCard(ctx, r.key(userID))
}
