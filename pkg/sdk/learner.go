package lexdrill

import (
	"context"
	"fmt"
	"time"

	"github.com/kailas-cloud/lexdrill/internal/domain"
	"github.com/kailas-cloud/lexdrill/internal/usecase/selection"
	sessionuc "github.com/kailas-cloud/lexdrill/internal/usecase/session"
)

// Select runs the rescue, review and new funnel for a learner. slots <= 0 uses the default.
func (c *Client) Select(ctx context.Context, userID string, slots int) (_ []Candidate, err error) {
	start := time.Now()
	defer func() { c.obs.observe("select", start, err) }()

	found, err := c.selection.SelectBuckets(ctx, userID, domain.TrackVisual, slots, selection.AllBuckets)
	if err != nil {
		return nil, fmt.Errorf("select: %w", err)
	}
	out := make([]Candidate, len(found))
	for i := range found {
		out[i] = candidateFromDomain(&found[i])
	}
	return out, nil
}

// NextDrills returns up to limit drills. Items without cached drills get a
// template drill and are queued for generation.
func (c *Client) NextDrills(ctx context.Context, userID string, mode Mode, limit int) (_ []Drill, err error) {
	start := time.Now()
	defer func() { c.obs.observe("next_drills", start, err) }()

	served, err := c.drills.NextBatch(ctx, userID, domain.Mode(mode), limit)
	if err != nil {
		return nil, fmt.Errorf("next drills: %w", err)
	}
	out := make([]Drill, len(served))
	for i := range served {
		out[i] = drillFromDomain(&served[i])
	}
	return out, nil
}

// Submit records an answer in the learner's session window.
// Progress is committed on Flush or after the session goes idle.
func (c *Client) Submit(ctx context.Context, a Answer) (_ SubmitResult, err error) {
	start := time.Now()
	defer func() { c.obs.observe("submit", start, err) }()

	grade := domain.GradeFail
	if a.Pass {
		grade = domain.GradePass
	}
	res, err := c.sessions.Submit(ctx, sessionuc.Answer{
		UserID:    a.UserID,
		ItemID:    a.ItemID,
		Grade:     grade,
		Elapsed:   a.Elapsed,
		IsRetry:   a.IsRetry,
		Mode:      domain.Mode(a.Mode),
		DrillType: domain.DrillType(a.DrillType),
	})
	if err != nil {
		return SubmitResult{}, fmt.Errorf("submit: %w", err)
	}
	return SubmitResult{Rating: int(res.Rating), Injected: res.Injected}, nil
}

// Flush commits every pending session window of a learner.
func (c *Client) Flush(ctx context.Context, userID string) (_ FlushResult, err error) {
	start := time.Now()
	defer func() { c.obs.observe("flush", start, err) }()

	res, err := c.sessions.Flush(ctx, userID)
	if err != nil {
		return FlushResult{}, fmt.Errorf("flush: %w", err)
	}
	return FlushResult{
		Committed: res.Flushed,
		Skipped:   res.Skipped,
		Stale:     res.Stale,
		Failed:    res.Failed,
	}, nil
}

// Item loads one catalog entry. Returns ErrNotFound for unknown ids.
func (c *Client) Item(ctx context.Context, id int64) (_ Item, err error) {
	start := time.Now()
	defer func() { c.obs.observe("item", start, err) }()

	it, err := c.catalog.Get(ctx, id)
	if err != nil {
		return Item{}, fmt.Errorf("get item %d: %w", id, err)
	}
	return itemFromDomain(it), nil
}

// ImportItems inserts or replaces catalog entries.
func (c *Client) ImportItems(ctx context.Context, items []Item) (_ int, err error) {
	start := time.Now()
	defer func() { c.obs.observe("import_items", start, err) }()

	in := make([]domain.LearningItem, len(items))
	for i, it := range items {
		if it.ID <= 0 || it.Word == "" {
			return 0, fmt.Errorf("%w: item %d needs an id and a word", ErrInvalidRequest, i)
		}
		in[i] = itemToDomain(it)
	}
	n, err := c.catalog.Upsert(ctx, in)
	if err != nil {
		return 0, fmt.Errorf("import items: %w", err)
	}
	return n, nil
}

// InventoryStats returns cached drill counts per mode.
func (c *Client) InventoryStats(ctx context.Context, userID string) (_ map[Mode]int, err error) {
	start := time.Now()
	defer func() { c.obs.observe("inventory_stats", start, err) }()

	stats, err := c.inventory.Stats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("inventory stats: %w", err)
	}
	out := make(map[Mode]int, len(stats))
	for m, n := range stats {
		out[Mode(m)] = n
	}
	return out, nil
}

// ClearInventory deletes every cached drill of a learner.
func (c *Client) ClearInventory(ctx context.Context, userID string) (_ int, err error) {
	start := time.Now()
	defer func() { c.obs.observe("clear_inventory", start, err) }()

	n, err := c.inventory.ClearAll(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("clear inventory: %w", err)
	}
	return n, nil
}
