package lexdrill

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kailas-cloud/lexdrill/internal/domain"
	healthuc "github.com/kailas-cloud/lexdrill/internal/usecase/health"
	sessionuc "github.com/kailas-cloud/lexdrill/internal/usecase/session"
)

func TestNew_RequiresKVAddress(t *testing.T) {
	_, err := New(context.Background(), WithSQLite("file::memory:"))
	if err == nil || !strings.Contains(err.Error(), "WithValkey") {
		t.Fatalf("expected kv address error, got %v", err)
	}
}

func TestNew_RequiresSQL(t *testing.T) {
	_, err := New(context.Background(), WithRedis("localhost:6379", ""))
	if err == nil || !strings.Contains(err.Error(), "WithSQLite") {
		t.Fatalf("expected sql error, got %v", err)
	}
}

func TestSelect(t *testing.T) {
	mock := &mockSelection{
		selectFn: func(_ context.Context, userID string, track domain.Track, slots int, buckets []domain.Bucket) ([]domain.Candidate, error) {
			if userID != "u1" || track != domain.TrackVisual || slots != 5 {
				t.Errorf("got (%q, %q, %d)", userID, track, slots)
			}
			if len(buckets) != 3 {
				t.Errorf("buckets = %v, want full funnel", buckets)
			}
			return []domain.Candidate{
				{Item: domain.LearningItem{ID: 1, Word: "zeal"}, Bucket: domain.BucketNew},
				{
					Item:     domain.LearningItem{ID: 2, Word: "abate"},
					Bucket:   domain.BucketReview,
					Progress: &domain.ProgressRecord{Stability: 12.5},
				},
			}, nil
		},
	}

	c := &Client{selection: mock}
	got, err := c.Select(context.Background(), "u1", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Item.Word != "zeal" || got[0].Bucket != "new" || got[0].Stability != 0 {
		t.Errorf("got[0] = %+v", got[0])
	}
	if got[1].Stability != 12.5 {
		t.Errorf("Stability = %v, want 12.5", got[1].Stability)
	}
}

func TestSelect_Error(t *testing.T) {
	mock := &mockSelection{
		selectFn: func(context.Context, string, domain.Track, int, []domain.Bucket) ([]domain.Candidate, error) {
			return nil, domain.ErrInvalidSelectionConfig
		},
	}
	c := &Client{selection: mock}
	if _, err := c.Select(context.Background(), "u1", 0); !errors.Is(err, domain.ErrInvalidSelectionConfig) {
		t.Errorf("err = %v", err)
	}
}

func TestNextDrills(t *testing.T) {
	created := time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC)
	mock := &mockDrills{
		nextFn: func(_ context.Context, userID string, mode domain.Mode, limit int) ([]domain.ServedDrill, error) {
			if mode != domain.ModeL1Mixed || limit != 10 {
				t.Errorf("mode = %q, limit = %d", mode, limit)
			}
			return []domain.ServedDrill{{
				Candidate: domain.Candidate{Item: domain.LearningItem{ID: 7, Word: "zeal"}, Bucket: domain.BucketRescue},
				Mode:      domain.ModePhrase,
				Drill: domain.Drill{
					Meta: domain.DrillMeta{
						DrillType: domain.DrillVisualTrap,
						Source:    domain.SourceInventory,
						CreatedAt: created,
					},
					Payload: json.RawMessage(`{"q":"?"}`),
				},
			}}, nil
		},
	}

	c := &Client{drills: mock}
	got, err := c.NextDrills(context.Background(), "u1", ModeL1Mixed, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := Drill{
		ItemID:    7,
		Word:      "zeal",
		Bucket:    "rescue",
		Mode:      ModePhrase,
		DrillType: "VISUAL_TRAP",
		Source:    "inventory",
		CreatedAt: created,
		Payload:   json.RawMessage(`{"q":"?"}`),
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].ItemID != want.ItemID || got[0].Mode != want.Mode || got[0].DrillType != want.DrillType ||
		got[0].Source != want.Source || !got[0].CreatedAt.Equal(want.CreatedAt) || string(got[0].Payload) != string(want.Payload) {
		t.Errorf("got %+v, want %+v", got[0], want)
	}
}

func TestNextDrills_InvalidMode(t *testing.T) {
	mock := &mockDrills{
		nextFn: func(_ context.Context, _ string, mode domain.Mode, _ int) ([]domain.ServedDrill, error) {
			return nil, domain.ErrInvalidMode
		},
	}
	c := &Client{drills: mock}
	if _, err := c.NextDrills(context.Background(), "u1", "BOGUS", 1); !errors.Is(err, ErrInvalidMode) {
		t.Errorf("err = %v, want ErrInvalidMode", err)
	}
}

func TestSubmit_MapsAnswer(t *testing.T) {
	tests := []struct {
		name string
		pass bool
		want domain.InputGrade
	}{
		{"pass", true, domain.GradePass},
		{"fail", false, domain.GradeFail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got sessionuc.Answer
			mock := &mockSessions{
				submitFn: func(_ context.Context, a sessionuc.Answer) (sessionuc.SubmitResult, error) {
					got = a
					return sessionuc.SubmitResult{Rating: domain.Good, Injected: !tt.pass}, nil
				},
			}
			c := &Client{sessions: mock}
			res, err := c.Submit(context.Background(), Answer{
				UserID:    "u1",
				ItemID:    3,
				Pass:      tt.pass,
				Elapsed:   4 * time.Second,
				Mode:      ModeSyntax,
				DrillType: "S_V_O",
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Grade != tt.want || got.ItemID != 3 || got.Elapsed != 4*time.Second {
				t.Errorf("answer = %+v", got)
			}
			if got.DrillType != domain.DrillSVO || got.Mode != domain.ModeSyntax {
				t.Errorf("drill type = %q, mode = %q", got.DrillType, got.Mode)
			}
			if res.Rating != 3 || res.Injected == tt.pass {
				t.Errorf("result = %+v", res)
			}
		})
	}
}

func TestFlush(t *testing.T) {
	mock := &mockSessions{
		flushFn: func(_ context.Context, userID string) (sessionuc.FlushResult, error) {
			return sessionuc.FlushResult{Flushed: 4, Skipped: 1, Stale: 2}, nil
		},
	}
	c := &Client{sessions: mock}
	got, err := c.Flush(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != (FlushResult{Committed: 4, Skipped: 1, Stale: 2}) {
		t.Errorf("got %+v", got)
	}
}

func TestImportItems(t *testing.T) {
	var stored []domain.LearningItem
	mock := &mockCatalog{
		upsertFn: func(_ context.Context, items []domain.LearningItem) (int, error) {
			stored = items
			return len(items), nil
		},
	}
	c := &Client{catalog: mock}
	n, err := c.ImportItems(context.Background(), []Item{
		{ID: 1, Word: "zeal", Example: "Full of zeal."},
		{ID: 2, Word: "abate"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("n = %d, want 2", n)
	}
	if stored[0].Example == nil || *stored[0].Example != "Full of zeal." {
		t.Errorf("example = %v", stored[0].Example)
	}
	if stored[1].Example != nil {
		t.Errorf("empty example should stay nil")
	}
}

func TestImportItems_Invalid(t *testing.T) {
	mock := &mockCatalog{
		upsertFn: func(context.Context, []domain.LearningItem) (int, error) {
			t.Fatal("upsert must not be called")
			return 0, nil
		},
	}
	c := &Client{catalog: mock}
	_, err := c.ImportItems(context.Background(), []Item{{ID: 1}})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("err = %v, want ErrInvalidRequest", err)
	}
}

func TestItem_NotFound(t *testing.T) {
	mock := &mockCatalog{
		getFn: func(context.Context, int64) (*domain.LearningItem, error) {
			return nil, domain.ErrNotFound
		},
	}
	c := &Client{catalog: mock}
	if _, err := c.Item(context.Background(), 9); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestInventory(t *testing.T) {
	mock := &mockInventory{
		statsFn: func(context.Context, string) (map[domain.Mode]int, error) {
			return map[domain.Mode]int{domain.ModeSyntax: 12, domain.ModeBlitz: 0}, nil
		},
		clearFn: func(context.Context, string) (int, error) { return 3, nil },
	}
	c := &Client{inventory: mock}

	stats, err := c.InventoryStats(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats[ModeSyntax] != 12 || len(stats) != 2 {
		t.Errorf("stats = %v", stats)
	}
	n, err := c.ClearInventory(context.Background(), "u1")
	if err != nil || n != 3 {
		t.Errorf("ClearInventory = %d, %v", n, err)
	}
}

func TestHealth(t *testing.T) {
	c := &Client{health: &mockHealth{report: healthuc.Report{
		Status: healthuc.Degraded,
		Checks: map[string]healthuc.CheckResult{"kv": healthuc.CheckOK, "sql": healthuc.CheckError},
	}}}
	got := c.Health(context.Background())
	if got.Status != "degraded" || got.Checks["sql"] != "error" || got.Checks["kv"] != "ok" {
		t.Errorf("got %+v", got)
	}
}

func TestRunWorker(t *testing.T) {
	c := &Client{}
	if err := c.RunWorker(context.Background()); err == nil {
		t.Error("expected error without generator")
	}

	w := &mockWorker{}
	c.worker = w
	if err := c.RunWorker(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.runs != 1 {
		t.Errorf("runs = %d, want 1", w.runs)
	}
}

type stubGenerator struct {
	gotMode  Mode
	gotItems []Item
	err      error
}

func (g *stubGenerator) Generate(_ context.Context, mode Mode, items []Item) ([]json.RawMessage, error) {
	g.gotMode, g.gotItems = mode, items
	if g.err != nil {
		return nil, g.err
	}
	return []json.RawMessage{json.RawMessage(`{"a":1}`)}, nil
}

func TestGeneratorAdapter(t *testing.T) {
	ex := "An example."
	stub := &stubGenerator{}
	a := &generatorAdapter{inner: stub}

	gen, err := a.Generate(context.Background(), domain.ModeBlitz, []domain.LearningItem{
		{ID: 1, Word: "zeal", Example: &ex},
		{ID: 2, Word: "abate"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stub.gotMode != ModeBlitz || len(stub.gotItems) != 2 || stub.gotItems[0].Example != ex {
		t.Errorf("generator saw mode %q, items %+v", stub.gotMode, stub.gotItems)
	}
	if len(gen.Drills) != 1 || string(gen.Drills[0].Payload) != `{"a":1}` {
		t.Errorf("drills = %+v", gen.Drills)
	}

	stub.err = errors.New("quota")
	if _, err := a.Generate(context.Background(), domain.ModeBlitz, nil); !errors.Is(err, ErrGeneratorFailed) {
		t.Errorf("err = %v, want ErrGeneratorFailed", err)
	}
}

func TestObserver_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs, err := newObserver(nil, reg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mock := &mockSessions{
		flushFn: func(context.Context, string) (sessionuc.FlushResult, error) {
			return sessionuc.FlushResult{}, errors.New("kv down")
		},
	}
	c := &Client{sessions: mock, obs: obs}
	_, _ = c.Flush(context.Background(), "u1")
	_, _ = c.Flush(context.Background(), "u1")

	if got := testutil.ToFloat64(obs.metrics.operations.WithLabelValues("flush", "error")); got != 2 {
		t.Errorf("flush errors = %v, want 2", got)
	}

	// a second client on the same registry reuses the collectors
	obs2, err := newObserver(nil, reg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if obs2.metrics.operations != obs.metrics.operations {
		t.Error("expected reused counter")
	}
}
