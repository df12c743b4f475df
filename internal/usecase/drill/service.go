// Package drill assembles a batch of drills for a learner: remedial injections
// first, then selected items served from the inventory or a deterministic fallback.
package drill

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/lexdrill/internal/domain"
	"github.com/kailas-cloud/lexdrill/internal/metrics"
	"github.com/kailas-cloud/lexdrill/internal/usecase/selection"
)

// Batch size bounds.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Service implements NextBatch.
type Service struct {
	selector   Selector
	inventory  Inventory
	catalog    Catalog
	injections InjectionSource
	bg         Runner
	logger     *zap.Logger
	now        func() time.Time
}

// New creates a drill service. injections may be nil.
func New(
	selector Selector, inventory Inventory, catalog Catalog, injections InjectionSource, bg Runner, logger *zap.Logger,
) *Service {
	return &Service{
		selector:   selector,
		inventory:  inventory,
		catalog:    catalog,
		injections: injections,
		bg:         bg,
		logger:     logger,
		now:        time.Now,
	}
}

// NextBatch returns up to limit drills. Cache misses never block: they are served
// from a template and replenished asynchronously.
func (s *Service) NextBatch(ctx context.Context, userID string, mode domain.Mode, limit int) ([]domain.ServedDrill, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user is required", domain.ErrInvalidRequest)
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidMode, mode)
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)
	now := s.now()

	served := s.injected(ctx, userID, mode, limit, now)
	seen := make(map[int64]struct{}, limit)
	for _, d := range served {
		seen[d.Candidate.Item.ID] = struct{}{}
	}
	remaining := limit - len(served)
	if remaining <= 0 {
		return served, nil
	}

	var cands []domain.Candidate
	for _, c := range s.selector.Select(ctx, userID, remaining) {
		if _, dup := seen[c.Item.ID]; dup {
			continue
		}
		seen[c.Item.ID] = struct{}{}
		cands = append(cands, c)
	}

	modes := make([]domain.Mode, len(cands))
	groups := make(map[domain.Mode][]int64)
	for i, c := range cands {
		m, err := s.itemMode(mode, c)
		if err != nil {
			return nil, err
		}
		modes[i] = m
		groups[m] = append(groups[m], c.Item.ID)
	}

	hits := s.inventory.PopBatch(ctx, userID, groups)
	misses := make(map[domain.Mode][]int64)
	for i, c := range cands {
		m := modes[i]
		if d, ok := hits[c.Item.ID]; ok {
			d.Meta.Source = domain.SourceInventory
			served = append(served, domain.ServedDrill{Candidate: c, Mode: m, Drill: *d})
			metrics.DrillsServedTotal.WithLabelValues(string(domain.SourceInventory)).Inc()
			continue
		}
		served = append(served, domain.ServedDrill{Candidate: c, Mode: m, Drill: BuildFallback(c.Item, m, "", now)})
		misses[m] = append(misses[m], c.Item.ID)
		metrics.DrillsServedTotal.WithLabelValues(string(domain.SourceFallback)).Inc()
	}
	s.replenish(userID, misses)

	if len(cands) > 0 {
		s.logger.Info("drill batch served",
			zap.String("user_id", userID),
			zap.String("mode", string(mode)),
			zap.Int("served", len(served)),
			zap.Int("hits", len(hits)),
			zap.Float64("hit_rate", float64(len(hits))/float64(len(cands))),
		)
	}
	return served, nil
}

// injected drains due remedial drills. Failures only cost the injections.
func (s *Service) injected(ctx context.Context, userID string, mode domain.Mode, limit int, now time.Time) []domain.ServedDrill {
	if s.injections == nil {
		return nil
	}
	due, err := s.injections.PopDue(ctx, userID, now, limit)
	if err != nil {
		s.logger.Warn("read injections failed", zap.String("user_id", userID), zap.Error(err))
		return nil
	}
	if len(due) == 0 {
		return nil
	}

	ids := make([]int64, len(due))
	for i, inj := range due {
		ids[i] = inj.ItemID
	}
	items, err := s.catalog.ItemsByIDs(ctx, ids)
	if err != nil {
		s.logger.Warn("load injected items failed", zap.String("user_id", userID), zap.Error(err))
		return nil
	}
	byID := make(map[int64]domain.LearningItem, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}

	out := make([]domain.ServedDrill, 0, len(due))
	seen := make(map[int64]struct{}, len(due))
	for _, inj := range due {
		it, ok := byID[inj.ItemID]
		if !ok {
			continue
		}
		if _, dup := seen[it.ID]; dup {
			continue
		}
		seen[it.ID] = struct{}{}
		m, err := selection.ResolveMode(mode, 0)
		if err != nil {
			m = mode
		}
		d := BuildFallback(it, m, inj.DrillType, now)
		d.Meta.Source = domain.SourceInjection
		out = append(out, domain.ServedDrill{
			Candidate: domain.Candidate{Item: it, Bucket: domain.BucketRescue},
			Mode:      m,
			Drill:     d,
		})
		metrics.DrillsServedTotal.WithLabelValues(string(domain.SourceInjection)).Inc()
	}
	return out
}

// itemMode resolves a mixed mode to a scenario using the item's stability.
func (s *Service) itemMode(mode domain.Mode, c domain.Candidate) (domain.Mode, error) {
	if !mode.IsMixed() {
		return mode, nil
	}
	var stability float64
	if c.Progress != nil {
		stability = c.Progress.Stability
	}
	return selection.ResolveMode(mode, stability)
}

func (s *Service) replenish(userID string, misses map[domain.Mode][]int64) {
	if s.bg == nil {
		return
	}
	for mode, ids := range misses {
		s.bg.Go("emergency_replenish", func(ctx context.Context) error {
			_, err := s.inventory.TriggerBatchEmergency(ctx, userID, mode, ids)
			return err
		})
	}
}
