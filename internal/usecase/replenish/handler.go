// Package replenish fills the drill inventory from queued replenishment jobs.
package replenish

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/lexdrill/internal/domain"
	"github.com/kailas-cloud/lexdrill/internal/queue"
)

// Handler consumes replenish_one and replenish_batch jobs.
type Handler struct {
	catalog   Catalog
	generator Generator
	inventory Inventory
	logger    *zap.Logger
	now       func() time.Time
}

// New creates a replenishment handler.
func New(catalog Catalog, generator Generator, inventory Inventory, logger *zap.Logger) *Handler {
	return &Handler{
		catalog:   catalog,
		generator: generator,
		inventory: inventory,
		logger:    logger,
		now:       time.Now,
	}
}

// Register binds the handler to both replenishment job types.
func (h *Handler) Register(w *queue.Worker) {
	w.Handle(domain.JobReplenishOne, h)
	w.Handle(domain.JobReplenishBatch, h)
}

// Handle implements queue.Handler. A malformed payload or an exhausted token
// budget is permanent; other generator and storage errors are returned for retry.
func (h *Handler) Handle(ctx context.Context, job *queue.Job) error {
	var req domain.ReplenishRequest
	if err := job.Decode(&req); err != nil {
		return fmt.Errorf("%w: %w", queue.ErrPermanent, err)
	}
	if req.UserID == "" || !req.Mode.IsScenario() || len(req.ItemIDs) == 0 {
		return fmt.Errorf("%w: invalid replenish request for user %q mode %q",
			queue.ErrPermanent, req.UserID, req.Mode)
	}

	log := h.logger.With(
		zap.String("job_id", job.ID),
		zap.String("user_id", req.UserID),
		zap.String("mode", string(req.Mode)),
	)
	if req.CorrelationID != "" {
		log = log.With(zap.String("correlation_id", req.CorrelationID))
	}

	items, err := h.catalog.ItemsByIDs(ctx, req.ItemIDs)
	if err != nil {
		return fmt.Errorf("load items: %w", err)
	}
	if len(items) == 0 {
		log.Warn("replenish job references no known items", zap.Int64s("item_ids", req.ItemIDs))
		return nil
	}

	gen, err := h.generator.Generate(ctx, req.Mode, items)
	if errors.Is(err, domain.ErrGeneratorQuotaExceeded) {
		// the next watermark check re-enqueues once the budget resets
		log.Warn("generator budget exhausted, dropping job", zap.Int("items", len(items)))
		return fmt.Errorf("%w: %w", queue.ErrPermanent, err)
	}
	if err != nil {
		return fmt.Errorf("generate drills: %w", err)
	}
	drills := gen.Drills
	if len(drills) < len(items) {
		log.Warn("generator returned fewer drills than requested",
			zap.Int("requested", len(items)), zap.Int("returned", len(drills)))
	}

	now := h.now()
	pushed := 0
	for i, d := range drills {
		if i >= len(items) {
			break
		}
		it := items[i]
		d.Meta.Mode = req.Mode
		d.Meta.ItemID = it.ID
		d.Meta.Word = it.Word
		if d.Meta.Source == "" {
			d.Meta.Source = domain.SourceGenerator
		}
		if d.Meta.CreatedAt.IsZero() {
			d.Meta.CreatedAt = now
		}

		ok, err := h.inventory.Push(ctx, req.UserID, req.Mode, it.ID, d)
		if err != nil {
			return fmt.Errorf("push drill for item %d: %w", it.ID, err)
		}
		if !ok {
			log.Info("inventory at capacity, stopping replenishment", zap.Int("pushed", pushed))
			break
		}
		pushed++
	}

	log.Info("inventory replenished", zap.Int("items", len(items)), zap.Int("pushed", pushed))
	return nil
}
