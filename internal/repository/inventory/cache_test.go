package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/lexdrill/internal/db"
	"github.com/kailas-cloud/lexdrill/internal/domain"
	"github.com/kailas-cloud/lexdrill/internal/queue"
)

func TestCapacity(t *testing.T) {
	f := newFixture(t, Config{BatchesPerMode: map[domain.Mode]int{domain.ModeBlitz: 2}})
	assert.Equal(t, 50, f.cache.Capacity(domain.ModePhrase))
	assert.Equal(t, 20, f.cache.Capacity(domain.ModeBlitz))
}

func TestPushPop_FIFOAndCounter(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	for _, p := range []string{"first", "second"} {
		ok, err := f.cache.Push(ctx, "u1", domain.ModePhrase, 7, drill(domain.ModePhrase, 7, p))
		require.NoError(t, err)
		require.True(t, ok)
	}
	stats, err := f.cache.Stats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, stats[domain.ModePhrase])

	d, ok := f.cache.Pop(ctx, "u1", domain.ModePhrase, 7)
	require.True(t, ok)
	assert.JSONEq(t, `"first"`, string(d.Payload))

	stats, err = f.cache.Stats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats[domain.ModePhrase])
}

func TestPush_RejectsAtCapacity(t *testing.T) {
	f := newFixture(t, Config{ItemsPerBatch: 1, DefaultBatches: 2})
	ctx := context.Background()

	for i := range 2 {
		ok, err := f.cache.Push(ctx, "u1", domain.ModeSyntax, int64(i), drill(domain.ModeSyntax, int64(i), "x"))
		require.NoError(t, err)
		require.True(t, ok)
	}
	full, err := f.cache.IsFull(ctx, "u1", domain.ModeSyntax)
	require.NoError(t, err)
	assert.True(t, full)

	ok, err := f.cache.Push(ctx, "u1", domain.ModeSyntax, 9, drill(domain.ModeSyntax, 9, "x"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, f.store.List("t:user:u1:mode:SYNTAX:vocab:9:drills"))

	// other modes are independent
	ok, err = f.cache.Push(ctx, "u1", domain.ModePhrase, 9, drill(domain.ModePhrase, 9, "x"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPush_StoreErrorReturned(t *testing.T) {
	f := newFixture(t, Config{})
	f.store.Fail(db.OpMulti, errors.New("down"))
	ok, err := f.cache.Push(context.Background(), "u1", domain.ModePhrase, 1, drill(domain.ModePhrase, 1, "x"))
	require.Error(t, err)
	assert.False(t, ok)
}

func TestPop_MissStillChecksWatermark(t *testing.T) {
	f := newFixture(t, Config{FlushThreshold: 100})
	_, ok := f.cache.Pop(context.Background(), "u1", domain.ModePhrase, 3)
	assert.False(t, ok)

	require.Equal(t, []string{"watermark"}, f.runner.names)
	assert.Equal(t, []string{"u1:PHRASE:3"}, f.store.Members("t:buffer:replenish_drills"))
}

func TestPop_StoreErrorIsMiss(t *testing.T) {
	f := newFixture(t, Config{})
	f.store.Fail(db.OpEval, errors.New("down"))
	d, ok := f.cache.Pop(context.Background(), "u1", domain.ModePhrase, 3)
	assert.False(t, ok)
	assert.Nil(t, d)
}

func TestPop_TakesDrillAndCounterTogether(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	_, err := f.cache.Push(ctx, "u1", domain.ModeSyntax, 7, drill(domain.ModeSyntax, 7, "only"))
	require.NoError(t, err)

	_, ok := f.cache.Pop(ctx, "u1", domain.ModeSyntax, 7)
	require.True(t, ok)
	assert.Equal(t, 1, f.store.Calls(db.OpEval))
	assert.Zero(t, f.store.Calls(db.OpLPop))
	assert.Zero(t, f.store.Calls(db.OpHIncrBy), "counter moves inside the pop")

	stats, err := f.cache.Stats(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, stats[domain.ModeSyntax])
}

func TestPop_ClampsDriftedCounter(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	_, err := f.cache.Push(ctx, "u1", domain.ModePhrase, 2, drill(domain.ModePhrase, 2, "x"))
	require.NoError(t, err)
	require.NoError(t, f.store.HSet(ctx, "t:user:u1:inventory:stats", map[string]string{"PHRASE": "0"}))

	_, ok := f.cache.Pop(ctx, "u1", domain.ModePhrase, 2)
	require.True(t, ok)
	v, err := f.store.HGet(ctx, "t:user:u1:inventory:stats", "PHRASE")
	require.NoError(t, err)
	assert.Equal(t, "0", v)
}

func TestCheckWatermark_AboveThresholdNotBuffered(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	for range 3 {
		_, err := f.cache.Push(ctx, "u1", domain.ModePhrase, 1, drill(domain.ModePhrase, 1, "x"))
		require.NoError(t, err)
	}
	require.NoError(t, f.cache.CheckWatermark(ctx, "u1", domain.ModePhrase, 1))
	assert.Empty(t, f.store.Members("t:buffer:replenish_drills"))
}

func TestCheckWatermark_SkipsWhenEmergencyInFlight(t *testing.T) {
	f := newFixture(t, Config{FlushThreshold: 100})
	ctx := context.Background()
	ok, err := f.cache.TriggerEmergency(ctx, "u1", domain.ModePhrase, 4)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, f.cache.CheckWatermark(ctx, "u1", domain.ModePhrase, 4, 5))
	assert.Equal(t, []string{"u1:PHRASE:5"}, f.store.Members("t:buffer:replenish_drills"))
}

func TestCheckWatermark_FlushesAtThreshold(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	require.NoError(t, f.cache.CheckWatermark(ctx, "u1", domain.ModePhrase, 1, 2, 3, 4))
	assert.Empty(t, f.queue.all(), "four entries stay buffered")

	require.NoError(t, f.cache.CheckWatermark(ctx, "u1", domain.ModePhrase, 5))
	jobs := f.queue.all()
	require.Len(t, jobs, 1)
	assert.Equal(t, domain.JobReplenishBatch, jobs[0].Type)
	assert.Equal(t, queue.PriorityBatch, jobs[0].Opts.Priority)
	assert.Empty(t, jobs[0].Opts.JobID)
	ids := append([]int64(nil), jobs[0].Req.ItemIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, ids)
	assert.NotEmpty(t, jobs[0].Req.CorrelationID)
	assert.Empty(t, f.store.Members("t:buffer:replenish_drills"))
}

func TestFlushBuffer_GroupsByUserAndMode(t *testing.T) {
	f := newFixture(t, Config{FlushBatchSize: 10})
	ctx := context.Background()
	_, err := f.store.SAdd(ctx, "t:buffer:replenish_drills",
		"org:42:PHRASE:1", "org:42:PHRASE:2", "org:42:SYNTAX:3", "u2:PHRASE:4", "garbage",
	)
	require.NoError(t, err)

	n, err := f.cache.FlushBuffer(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got := map[string][]int64{}
	for _, j := range f.queue.all() {
		k := j.Req.UserID + "|" + string(j.Req.Mode)
		ids := append(got[k], j.Req.ItemIDs...)
		sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
		got[k] = ids
	}
	assert.Equal(t, map[string][]int64{
		"org:42|PHRASE": {1, 2},
		"org:42|SYNTAX": {3},
		"u2|PHRASE":     {4},
	}, got)
}

func TestFlushBuffer_RespectsBatchSize(t *testing.T) {
	f := newFixture(t, Config{FlushBatchSize: 10})
	ctx := context.Background()
	for i := range 25 {
		_, err := f.store.SAdd(ctx, "t:buffer:replenish_drills", fmt.Sprintf("u1:PHRASE:%d", i))
		require.NoError(t, err)
	}
	_, err := f.cache.FlushBuffer(ctx)
	require.NoError(t, err)
	size, err := f.cache.BufferSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(15), size)
}

func TestFlushBuffer_RebuffersOnEnqueueError(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	_, err := f.store.SAdd(ctx, "t:buffer:replenish_drills", "u1:PHRASE:1")
	require.NoError(t, err)
	f.queue.enqueueErr = errors.New("queue down")

	n, err := f.cache.FlushBuffer(ctx)
	require.Error(t, err)
	assert.Zero(t, n)
	assert.Equal(t, []string{"u1:PHRASE:1"}, f.store.Members("t:buffer:replenish_drills"))
}

func TestFlushBuffer_Empty(t *testing.T) {
	f := newFixture(t, Config{})
	n, err := f.cache.FlushBuffer(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestTriggerEmergency_Dedup(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	ok, err := f.cache.TriggerEmergency(ctx, "u1", domain.ModePhrase, 9)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.cache.TriggerEmergency(ctx, "u1", domain.ModePhrase, 9)
	require.NoError(t, err)
	assert.False(t, ok)

	jobs := f.queue.all()
	require.Len(t, jobs, 1)
	assert.Equal(t, "replenish:u1:PHRASE:9", jobs[0].Opts.JobID)
	assert.Equal(t, queue.PriorityEmergency, jobs[0].Opts.Priority)
	assert.Equal(t, domain.JobReplenishOne, jobs[0].Type)
}

func TestTriggerBatchEmergency(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	ok, err := f.cache.TriggerBatchEmergency(ctx, "u1", domain.ModeBlitz, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.cache.TriggerBatchEmergency(ctx, "u1", domain.ModeBlitz, []int64{1, 2})
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.cache.TriggerBatchEmergency(ctx, "u1", domain.ModeBlitz, []int64{3})
	require.NoError(t, err)
	assert.False(t, ok, "same minute is deduplicated")

	jobs := f.queue.all()
	require.Len(t, jobs, 1)
	assert.Equal(t, "replenish-batch:u1:BLITZ:30000000", jobs[0].Opts.JobID)
	assert.Equal(t, []int64{1, 2}, jobs[0].Req.ItemIDs)
}

func TestPopBatch(t *testing.T) {
	f := newFixture(t, Config{FlushThreshold: 100})
	ctx := context.Background()
	_, err := f.cache.Push(ctx, "u1", domain.ModePhrase, 1, drill(domain.ModePhrase, 1, "p1"))
	require.NoError(t, err)
	_, err = f.cache.Push(ctx, "u1", domain.ModeSyntax, 2, drill(domain.ModeSyntax, 2, "s2"))
	require.NoError(t, err)

	got := f.cache.PopBatch(ctx, "u1", map[domain.Mode][]int64{
		domain.ModePhrase: {1, 3},
		domain.ModeSyntax: {2},
	})
	require.Len(t, got, 2)
	assert.JSONEq(t, `"p1"`, string(got[1].Payload))
	assert.JSONEq(t, `"s2"`, string(got[2].Payload))

	stats, err := f.cache.Stats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, stats[domain.ModePhrase])
	assert.Equal(t, 0, stats[domain.ModeSyntax])
	assert.Len(t, f.store.Members("t:buffer:replenish_drills"), 3)
}

func TestCounts(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	for range 2 {
		_, err := f.cache.Push(ctx, "u1", domain.ModePhrase, 1, drill(domain.ModePhrase, 1, "x"))
		require.NoError(t, err)
	}
	got, err := f.cache.Counts(ctx, "u1", domain.ModePhrase, []int64{1, 2})
	require.NoError(t, err)
	assert.Equal(t, map[int64]int{1: 2, 2: 0}, got)
}

func TestClearAll_DeletesInChunks(t *testing.T) {
	f := newFixture(t, Config{DefaultBatches: 100})
	ctx := context.Background()
	for i := range 150 {
		_, err := f.cache.Push(ctx, "u1", domain.ModePhrase, int64(i), drill(domain.ModePhrase, int64(i), "x"))
		require.NoError(t, err)
	}
	_, err := f.cache.Push(ctx, "u2", domain.ModePhrase, 1, drill(domain.ModePhrase, 1, "x"))
	require.NoError(t, err)

	n, err := f.cache.ClearAll(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 151, n)
	assert.Equal(t, 2, f.store.Calls(db.OpDel))

	stats, err := f.cache.Stats(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, stats)
	assert.Len(t, f.store.List("t:user:u2:mode:PHRASE:vocab:1:drills"), 1)
}

func TestClearMode(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	_, err := f.cache.Push(ctx, "u1", domain.ModePhrase, 1, drill(domain.ModePhrase, 1, "x"))
	require.NoError(t, err)
	_, err = f.cache.Push(ctx, "u1", domain.ModeSyntax, 1, drill(domain.ModeSyntax, 1, "x"))
	require.NoError(t, err)

	n, err := f.cache.ClearMode(ctx, "u1", domain.ModePhrase)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stats, err := f.cache.Stats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, stats[domain.ModePhrase])
	assert.Equal(t, 1, stats[domain.ModeSyntax])
}

func TestParseBufferMember(t *testing.T) {
	tests := []struct {
		in     string
		user   string
		mode   domain.Mode
		item   int64
		wantOK bool
	}{
		{"u1:PHRASE:7", "u1", domain.ModePhrase, 7, true},
		{"tenant:u:1:SYNTAX:42", "tenant:u:1", domain.ModeSyntax, 42, true},
		{"PHRASE:7", "", "", 0, false},
		{"u1:PHRASE:x", "", "", 0, false},
		{"u1::7", "", "", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			user, mode, item, ok := parseBufferMember(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.user, user)
				assert.Equal(t, tt.mode, mode)
				assert.Equal(t, tt.item, item)
			}
		})
	}
}

func TestUserPatternEscapesGlob(t *testing.T) {
	k := keys{prefix: "p:"}
	assert.Equal(t, `p:user:a\*b:mode:*:vocab:*:drills`, k.userPattern("a*b", ""))
	assert.Equal(t, "p:user:u:mode:PHRASE:vocab:*:drills", k.userPattern("u", domain.ModePhrase))
}
