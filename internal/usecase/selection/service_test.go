package selection

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/lexdrill/internal/domain"
)

func newService(t *testing.T, p *mockProgress, c *mockCatalog, opts ...Option) *Service {
	t.Helper()
	s, err := New(p, c, zap.NewNop(), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestComputeCaps(t *testing.T) {
	tests := []struct {
		slots int
		want  Caps
	}{
		{20, Caps{Rescue: 6, Review: 10, New: 4}},
		{10, Caps{Rescue: 3, Review: 5, New: 2}},
		{7, Caps{Rescue: 3, Review: 4, New: 0}},
		{1, Caps{Rescue: 1, Review: 1, New: 0}},
	}
	for _, tc := range tests {
		if diff := cmp.Diff(tc.want, DefaultRatios.ComputeCaps(tc.slots)); diff != "" {
			t.Errorf("ComputeCaps(%d) mismatch (-want +got):\n%s", tc.slots, diff)
		}
	}
}

func TestSelect_FullFunnel(t *testing.T) {
	p := &mockProgress{
		rescueFn: candidates(100, 10),
		reviewFn: candidates(200, 20),
	}
	c := &mockCatalog{newFn: items(300, 10)}

	got := newService(t, p, c).Select(context.Background(), "u1", 20)

	counts := countBuckets(got)
	want := map[domain.Bucket]int{domain.BucketRescue: 6, domain.BucketReview: 10, domain.BucketNew: 4}
	if diff := cmp.Diff(want, counts); diff != "" {
		t.Fatalf("bucket counts mismatch (-want +got):\n%s", diff)
	}
	// Rescue keeps source (priority) order.
	if got[0].Item.ID != 100 || got[5].Item.ID != 105 {
		t.Errorf("expected rescue ids 100..105 first, got %d..%d", got[0].Item.ID, got[5].Item.ID)
	}
	// Review keeps most-overdue-first order.
	if got[6].Item.ID != 200 || got[6].Bucket != domain.BucketReview {
		t.Errorf("expected first review id 200, got %+v", got[6])
	}
}

func TestSelect_RescueCappedLocally(t *testing.T) {
	// Source ignores the limit and returns 10 rows.
	p := &mockProgress{rescueFn: func(int) ([]domain.Candidate, error) {
		return candidates(1, 10)(100)
	}}
	got := newService(t, p, &mockCatalog{}).Select(context.Background(), "u1", 20)

	if n := countBuckets(got)[domain.BucketRescue]; n != 6 {
		t.Errorf("expected 6 rescue items, got %d", n)
	}
}

func TestSelect_RescueShortfallSpillsIntoReview(t *testing.T) {
	p := &mockProgress{reviewFn: candidates(200, 30)}
	c := &mockCatalog{newFn: items(300, 10)}

	got := newService(t, p, c).Select(context.Background(), "u1", 20)

	counts := countBuckets(got)
	if counts[domain.BucketReview] != 16 || counts[domain.BucketNew] != 4 {
		t.Errorf("expected review=16 new=4, got %v", counts)
	}
	if len(got) != 20 {
		t.Errorf("expected 20 items, got %d", len(got))
	}
	if p.reviewLimit.Load() < 16 {
		t.Errorf("review fetch limit %d cannot cover spillover", p.reviewLimit.Load())
	}
}

func TestSelect_DedupAttributesToEarlierBucket(t *testing.T) {
	p := &mockProgress{
		rescueFn: candidates(1, 3),  // ids 1,2,3
		reviewFn: candidates(2, 10), // ids 2..11, overlap on 2,3
	}
	got := newService(t, p, &mockCatalog{}).Select(context.Background(), "u1", 20)

	seen := make(map[int64]domain.Bucket)
	for _, c := range got {
		if _, dup := seen[c.Item.ID]; dup {
			t.Fatalf("duplicate item %d", c.Item.ID)
		}
		seen[c.Item.ID] = c.Bucket
	}
	if seen[2] != domain.BucketRescue || seen[3] != domain.BucketRescue {
		t.Errorf("overlapping ids should be attributed to rescue, got %v %v", seen[2], seen[3])
	}
	if len(got) != 11 {
		t.Errorf("expected 11 unique items, got %d", len(got))
	}
}

func TestSelect_BackfillFromReviewWhenNewShort(t *testing.T) {
	p := &mockProgress{reviewFn: candidates(200, 40)}
	c := &mockCatalog{newFn: items(300, 1)}

	got := newService(t, p, c).Select(context.Background(), "u1", 20)

	counts := countBuckets(got)
	if len(got) != 20 {
		t.Fatalf("expected full selection after backfill, got %d", len(got))
	}
	if counts[domain.BucketNew] != 1 || counts[domain.BucketReview] != 19 {
		t.Errorf("expected review=19 new=1, got %v", counts)
	}
}

func TestSelect_ExhaustedSourcesReturnShort(t *testing.T) {
	p := &mockProgress{rescueFn: candidates(1, 2)}
	c := &mockCatalog{newFn: items(10, 3)}

	got := newService(t, p, c).Select(context.Background(), "u1", 20)
	if len(got) != 5 {
		t.Errorf("expected 5 items, got %d", len(got))
	}
}

func TestSelect_FailingBucketDegrades(t *testing.T) {
	p := &mockProgress{
		rescueFn: func(int) ([]domain.Candidate, error) { return nil, errBoom },
		reviewFn: candidates(200, 30),
	}
	c := &mockCatalog{newFn: func(int) ([]domain.LearningItem, error) { return nil, errBoom }}

	got := newService(t, p, c).Select(context.Background(), "u1", 20)

	if len(got) != 20 {
		t.Fatalf("expected review to fill all 20 slots, got %d", len(got))
	}
	for _, cand := range got {
		if cand.Bucket != domain.BucketReview {
			t.Fatalf("unexpected bucket %s", cand.Bucket)
		}
	}
}

func TestSelect_InvariantsAcrossSlotCounts(t *testing.T) {
	p := &mockProgress{
		rescueFn: candidates(1, 8),
		reviewFn: candidates(5, 25), // overlaps rescue on 5..8
	}
	c := &mockCatalog{newFn: items(20, 15)} // overlaps review on 20..29

	s := newService(t, p, c)
	for slots := 1; slots <= 40; slots++ {
		got := s.Select(context.Background(), "u1", slots)
		caps := DefaultRatios.ComputeCaps(slots)

		if len(got) > slots {
			t.Fatalf("slots=%d: selected %d", slots, len(got))
		}
		ids := make(map[int64]struct{})
		for _, c := range got {
			if _, dup := ids[c.Item.ID]; dup {
				t.Fatalf("slots=%d: duplicate id %d", slots, c.Item.ID)
			}
			ids[c.Item.ID] = struct{}{}
		}
		if n := countBuckets(got)[domain.BucketRescue]; n > caps.Rescue {
			t.Fatalf("slots=%d: rescue %d exceeds cap %d", slots, n, caps.Rescue)
		}
	}
}

func TestSelect_DefaultSlotCount(t *testing.T) {
	p := &mockProgress{reviewFn: candidates(1, 50)}
	got := newService(t, p, &mockCatalog{}).Select(context.Background(), "u1", 0)
	if len(got) != DefaultSlotCount {
		t.Errorf("expected %d items, got %d", DefaultSlotCount, len(got))
	}
}

func TestSelectBuckets_EmptyBucketListFailsLoud(t *testing.T) {
	s := newService(t, &mockProgress{}, &mockCatalog{})
	_, err := s.SelectBuckets(context.Background(), "u1", domain.TrackVisual, 20, nil)
	if !errors.Is(err, domain.ErrInvalidSelectionConfig) {
		t.Fatalf("expected ErrInvalidSelectionConfig, got %v", err)
	}
}

func TestSelectBuckets_ReviewOnly(t *testing.T) {
	p := &mockProgress{
		rescueFn: candidates(1, 10),
		reviewFn: candidates(100, 30),
	}
	s := newService(t, p, &mockCatalog{newFn: items(500, 10)})

	got, err := s.SelectBuckets(context.Background(), "u1", domain.TrackAudio, 10,
		[]domain.Bucket{domain.BucketReview})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 10 {
		t.Fatalf("expected 10 review items, got %d", len(got))
	}
	if countBuckets(got)[domain.BucketReview] != 10 {
		t.Errorf("expected only review items, got %v", countBuckets(got))
	}
}

func TestNew_InvalidRatios(t *testing.T) {
	_, err := New(&mockProgress{}, &mockCatalog{}, zap.NewNop(), WithRatios(Ratios{Rescue: 0.7, Review: 0.5}))
	if !errors.Is(err, domain.ErrInvalidSelectionConfig) {
		t.Fatalf("expected ErrInvalidSelectionConfig, got %v", err)
	}
}
