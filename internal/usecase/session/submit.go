package session

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/lexdrill/internal/domain"
	"github.com/kailas-cloud/lexdrill/internal/usecase/grading"
)

// Answer is one graded drill attempt as reported by a client.
type Answer struct {
	UserID    string
	ItemID    int64
	Grade     domain.InputGrade
	Elapsed   time.Duration
	IsRetry   bool
	Mode      domain.Mode
	DrillType domain.DrillType
}

// SubmitResult describes what Submit recorded.
type SubmitResult struct {
	Rating     domain.Rating           `json:"rating"`
	Dimension  domain.Dimension        `json:"dimension,omitempty"`
	Dimensions *domain.DimensionScores `json:"dimensions,omitempty"`
	Injected   bool                    `json:"injected"`
}

// Submit normalizes an answer into a rating, records it in the session window,
// nudges the drill type's dimension score and, on failure, schedules an easier
// remedial drill. Only the window write is required to succeed.
func (s *Service) Submit(ctx context.Context, a Answer) (SubmitResult, error) {
	if a.UserID == "" || a.ItemID <= 0 {
		return SubmitResult{}, fmt.Errorf("%w: user and item are required", domain.ErrInvalidRequest)
	}
	if a.Grade != domain.GradePass && a.Grade != domain.GradeFail {
		return SubmitResult{}, fmt.Errorf("%w: grade must be pass or fail", domain.ErrInvalidRequest)
	}
	if a.Mode != "" && !a.Mode.Valid() {
		return SubmitResult{}, fmt.Errorf("%w: %q", domain.ErrInvalidMode, a.Mode)
	}

	rating := s.normalizer.Normalize(a.Grade, a.Elapsed, a.IsRetry, a.Mode)
	rating = grading.ApplyDrillTypeWeight(rating, a.DrillType)
	if err := s.RecordEvent(ctx, a.UserID, a.ItemID, rating); err != nil {
		return SubmitResult{}, err
	}

	res := SubmitResult{Rating: rating}
	log := s.logger.With(zap.String("user_id", a.UserID), zap.Int64("item_id", a.ItemID))

	if a.Grade == domain.GradeFail && s.injections != nil {
		now := s.now()
		inj := domain.Injection{ItemID: a.ItemID, DrillType: remedialType(a.DrillType), InjectedAt: now}
		if err := s.injections.Schedule(ctx, a.UserID, inj, now.Add(s.cfg.InjectionDelay)); err != nil {
			log.Warn("schedule remedial drill failed", zap.Error(err))
		} else {
			res.Injected = true
		}
	}

	if a.DrillType != "" {
		dim := a.DrillType.Dimension()
		delta := s.cfg.DimensionStep
		if a.Grade == domain.GradeFail {
			delta = -delta
		}
		scores, err := s.progress.AdjustDimension(ctx, a.UserID, a.ItemID, s.cfg.Track, dim, delta)
		if err != nil {
			log.Warn("dimension update failed", zap.String("dimension", string(dim)), zap.Error(err))
		} else {
			res.Dimension = dim
			res.Dimensions = &scores
		}
	}
	return res, nil
}

// remedialType picks the drill shown after a failure: one step easier, bottoming out at S_V_O.
func remedialType(failed domain.DrillType) domain.DrillType {
	if next, ok := failed.Downgrade(); ok {
		return next
	}
	return domain.DrillSVO
}
