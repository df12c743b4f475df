package generation

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/lexdrill/internal/domain"
	"github.com/kailas-cloud/lexdrill/internal/metrics"
)

// Generator is the wrapped drill generator.
type Generator interface {
	Generate(ctx context.Context, mode domain.Mode, items []domain.LearningItem) (domain.Generation, error)
}

// Budget enforces and records token use.
type Budget interface {
	Check(ctx context.Context) error
	Record(ctx context.Context, tokens int64)
	RemainingDaily() int64
	RemainingMonthly() int64
}

// BudgetedGenerator checks the budget before each call and records usage after.
// Request metrics stay in transport/openai; this layer owns the budget gauges.
type BudgetedGenerator struct {
	inner  Generator
	budget Budget
	logger *zap.Logger
}

// NewBudgetedGenerator wraps inner. A nil budget passes calls through.
func NewBudgetedGenerator(inner Generator, budget Budget, logger *zap.Logger) *BudgetedGenerator {
	return &BudgetedGenerator{inner: inner, budget: budget, logger: logger}
}

// Generate implements the replenishment Generator.
func (g *BudgetedGenerator) Generate(
	ctx context.Context, mode domain.Mode, items []domain.LearningItem,
) (domain.Generation, error) {
	if g.budget != nil {
		if err := g.budget.Check(ctx); err != nil {
			g.logger.Error("Generator budget exceeded",
				zap.String("mode", string(mode)),
				zap.Int("items", len(items)),
				zap.Error(err),
			)
			return domain.Generation{}, fmt.Errorf("budget check: %w", err)
		}
	}

	start := time.Now()
	gen, err := g.inner.Generate(ctx, mode, items)
	if err != nil {
		g.logger.Error("Drill generation failed",
			zap.String("mode", string(mode)),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return domain.Generation{}, fmt.Errorf("generate: %w", err)
	}

	if g.budget != nil && gen.TotalTokens() > 0 {
		g.budget.Record(ctx, int64(gen.TotalTokens()))
		remaining := metrics.GeneratorBudgetTokensRemaining
		remaining.WithLabelValues("daily").Set(float64(g.budget.RemainingDaily()))
		remaining.WithLabelValues("monthly").Set(float64(g.budget.RemainingMonthly()))
	}
	return gen, nil
}
