// Package selection picks the next learning items through a Rescue/Review/New funnel.
package selection

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/lexdrill/internal/domain"
	"github.com/kailas-cloud/lexdrill/internal/metrics"
)

// DefaultSlotCount is used when a caller asks for zero or fewer slots.
const DefaultSlotCount = 20

// Ratios split the slot budget between Rescue and Review; New gets the remainder.
type Ratios struct {
	Rescue float64
	Review float64
}

// DefaultRatios is the 30/50/20 funnel.
var DefaultRatios = Ratios{Rescue: 0.3, Review: 0.5}

// Caps are per-bucket slot limits for one selection.
type Caps struct {
	Rescue int
	Review int
	New    int
}

// ComputeCaps rounds Rescue and Review up and leaves the remainder for New.
func (r Ratios) ComputeCaps(slotCount int) Caps {
	rescue := int(math.Ceil(float64(slotCount) * r.Rescue))
	review := int(math.Ceil(float64(slotCount) * r.Review))
	return Caps{Rescue: rescue, Review: review, New: max(0, slotCount-rescue-review)}
}

// Service runs the candidate funnel.
type Service struct {
	progress   ProgressQuery
	catalog    CatalogQuery
	ratios     Ratios
	thresholds domain.RescueThresholds
	slotCount  int
	now        func() time.Time
	logger     *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithRatios overrides the funnel split.
func WithRatios(r Ratios) Option {
	return func(s *Service) { s.ratios = r }
}

// WithRescueThresholds overrides the weak-dimension cut-offs.
func WithRescueThresholds(th domain.RescueThresholds) Option {
	return func(s *Service) { s.thresholds = th }
}

// WithSlotCount overrides the default slot count.
func WithSlotCount(n int) Option {
	return func(s *Service) { s.slotCount = n }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a selection service. Ratios that leave no room for any bucket are rejected.
func New(progress ProgressQuery, catalog CatalogQuery, logger *zap.Logger, opts ...Option) (*Service, error) {
	s := &Service{
		progress:   progress,
		catalog:    catalog,
		ratios:     DefaultRatios,
		thresholds: domain.DefaultRescueThresholds,
		slotCount:  DefaultSlotCount,
		now:        time.Now,
		logger:     logger.Named("selection"),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := s.ratios
	if r.Rescue < 0 || r.Review < 0 || r.Rescue+r.Review > 1 {
		return nil, fmt.Errorf("%w: rescue=%.2f review=%.2f", domain.ErrInvalidSelectionConfig, r.Rescue, r.Review)
	}
	if s.slotCount <= 0 {
		return nil, fmt.Errorf("%w: slot count %d", domain.ErrInvalidSelectionConfig, s.slotCount)
	}
	return s, nil
}

// AllBuckets is the full funnel in waterfall order.
var AllBuckets = []domain.Bucket{domain.BucketRescue, domain.BucketReview, domain.BucketNew}

// Select runs the full funnel on the visual track. Data-layer faults degrade to
// shorter results and are never returned.
func (s *Service) Select(ctx context.Context, userID string, slotCount int) []domain.Candidate {
	out, _ := s.SelectBuckets(ctx, userID, domain.TrackVisual, slotCount, AllBuckets)
	return out
}

// SelectBuckets runs the funnel restricted to buckets. An empty bucket list is a
// configuration error; everything else degrades silently.
func (s *Service) SelectBuckets(
	ctx context.Context, userID string, track domain.Track, slotCount int, buckets []domain.Bucket,
) ([]domain.Candidate, error) {
	if len(buckets) == 0 {
		return nil, fmt.Errorf("%w: no buckets requested", domain.ErrInvalidSelectionConfig)
	}
	if slotCount <= 0 {
		slotCount = s.slotCount
	}

	start := time.Now()
	defer func() { metrics.SelectionDuration.Observe(time.Since(start).Seconds()) }()

	caps := s.ratios.ComputeCaps(slotCount)
	sets := s.fetch(ctx, userID, track, slotCount, caps, buckets)
	out := waterfall(slotCount, caps, sets)

	counts := make(map[domain.Bucket]int, 3)
	for _, c := range out {
		counts[c.Bucket]++
	}
	for _, b := range AllBuckets {
		metrics.SelectionCandidates.WithLabelValues(string(b)).Add(float64(counts[b]))
	}

	s.logger.Debug("selection complete",
		zap.String("user_id", userID),
		zap.String("track", string(track)),
		zap.Int("slots", slotCount),
		zap.Int("rescue", counts[domain.BucketRescue]),
		zap.Int("review", counts[domain.BucketReview]),
		zap.Int("new", counts[domain.BucketNew]),
	)

	return out, nil
}

type bucketSets struct {
	rescue []domain.Candidate
	review []domain.Candidate
	fresh  []domain.Candidate
}

// fetch queries the requested buckets in parallel. A failing bucket is logged and left empty.
func (s *Service) fetch(
	ctx context.Context, userID string, track domain.Track,
	slotCount int, caps Caps, buckets []domain.Bucket,
) bucketSets {
	var (
		sets bucketSets
		g    errgroup.Group
		now  = s.now()
	)
	// Extra rows survive dedup losses and feed the backfill pass.
	buffer := slotCount

	for _, b := range buckets {
		switch b {
		case domain.BucketRescue:
			g.Go(func() error {
				res, err := s.progress.RescueCandidates(ctx, userID, track, s.thresholds, caps.Rescue)
				sets.rescue = s.degrade(b, userID, res, err)
				return nil
			})
		case domain.BucketReview:
			g.Go(func() error {
				res, err := s.progress.DueReviews(ctx, userID, track, now, caps.Review+caps.Rescue+buffer)
				sets.review = s.degrade(b, userID, res, err)
				return nil
			})
		case domain.BucketNew:
			g.Go(func() error {
				items, err := s.catalog.NewCandidates(ctx, userID, track, caps.New+buffer)
				res := make([]domain.Candidate, len(items))
				for i, it := range items {
					res[i] = domain.Candidate{Item: it, Bucket: domain.BucketNew}
				}
				sets.fresh = s.degrade(b, userID, res, err)
				return nil
			})
		}
	}
	_ = g.Wait() // bucket goroutines never fail

	return sets
}

func (s *Service) degrade(b domain.Bucket, userID string, res []domain.Candidate, err error) []domain.Candidate {
	if err == nil {
		return res
	}
	metrics.SelectionBucketErrorsTotal.WithLabelValues(string(b)).Inc()
	s.logger.Warn("bucket query failed, treating as empty",
		zap.String("bucket", string(b)),
		zap.String("user_id", userID),
		zap.Error(err),
	)
	return nil
}

// waterfall fills slots Rescue -> Review -> New with one dedup set, then backfills
// from leftover Review and New candidates.
func waterfall(slotCount int, caps Caps, sets bucketSets) []domain.Candidate {
	out := make([]domain.Candidate, 0, slotCount)
	seen := make(map[int64]struct{}, slotCount)

	take := func(src []domain.Candidate, bucket domain.Bucket, limit int) (taken int, rest []domain.Candidate) {
		limit = min(limit, slotCount-len(out))
		for _, c := range src {
			if _, dup := seen[c.Item.ID]; dup {
				continue
			}
			if taken >= limit {
				rest = append(rest, c)
				continue
			}
			seen[c.Item.ID] = struct{}{}
			c.Bucket = bucket
			out = append(out, c)
			taken++
		}
		return taken, rest
	}

	rescued, _ := take(sets.rescue, domain.BucketRescue, caps.Rescue)
	_, reviewRest := take(sets.review, domain.BucketReview, caps.Review+(caps.Rescue-rescued))
	_, newRest := take(sets.fresh, domain.BucketNew, slotCount-len(out))

	if len(out) < slotCount {
		take(reviewRest, domain.BucketReview, slotCount-len(out))
	}
	if len(out) < slotCount {
		take(newRest, domain.BucketNew, slotCount-len(out))
	}
	return out
}
