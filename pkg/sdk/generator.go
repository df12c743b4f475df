package lexdrill

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kailas-cloud/lexdrill/internal/domain"
)

// Generator produces drill payloads for items in one scenario mode.
// The result is aligned with items by index and may be shorter.
type Generator interface {
	Generate(ctx context.Context, mode Mode, items []Item) ([]json.RawMessage, error)
}

// generatorAdapter wraps a public Generator to satisfy the replenishment handler.
type generatorAdapter struct {
	inner Generator
}

func (a *generatorAdapter) Generate(
	ctx context.Context, mode domain.Mode, items []domain.LearningItem,
) (domain.Generation, error) {
	in := make([]Item, len(items))
	for i := range items {
		in[i] = itemFromDomain(&items[i])
	}
	payloads, err := a.inner.Generate(ctx, Mode(mode), in)
	if err != nil {
		return domain.Generation{}, fmt.Errorf("%w: %w", domain.ErrGeneratorFailed, err)
	}
	out := make([]domain.Drill, 0, len(payloads))
	for _, p := range payloads {
		out = append(out, domain.Drill{Payload: p})
	}
	return domain.Generation{Drills: out}, nil
}
