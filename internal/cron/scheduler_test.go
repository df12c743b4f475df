package cron

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kailas-cloud/lexdrill/internal/db/dbtest"
)

type mockSettler struct {
	idle  time.Duration
	calls atomic.Int32
	err   error
}

func (m *mockSettler) SettleInactive(_ context.Context, idle time.Duration) (int, error) {
	m.idle = idle
	m.calls.Add(1)
	return 2, m.err
}

type mockSweeper struct {
	size    int64
	flushes int
}

func (m *mockSweeper) BufferSize(context.Context) (int64, error) { return m.size, nil }

func (m *mockSweeper) FlushBuffer(context.Context) (int, error) {
	m.flushes++
	return 1, nil
}

type mockPromoter struct {
	called chan struct{}
}

func (m *mockPromoter) PromoteDelayed(context.Context) (int, error) {
	select {
	case m.called <- struct{}{}:
	default:
	}
	return 0, nil
}

func TestSettle_UsesIdle(t *testing.T) {
	st := &mockSettler{}
	s := New(st, nil, nil, nil, Config{SettleIdle: 7 * time.Minute}, zap.NewNop())

	require.NoError(t, s.Settle(context.Background()))
	assert.Equal(t, 7*time.Minute, st.idle)

	st.err = errors.New("redis down")
	assert.ErrorIs(t, s.Settle(context.Background()), st.err)
}

func TestSweep_SkipsEmptyBuffer(t *testing.T) {
	sw := &mockSweeper{}
	s := New(nil, sw, nil, nil, Config{}, zap.NewNop())

	require.NoError(t, s.Sweep(context.Background()))
	assert.Equal(t, 0, sw.flushes)

	sw.size = 3
	require.NoError(t, s.Sweep(context.Background()))
	assert.Equal(t, 1, sw.flushes)
}

func TestRun_LockSkipsSecondInstance(t *testing.T) {
	store := dbtest.New()
	st := &mockSettler{}
	a := New(st, nil, nil, store, Config{Owner: "a"}, zap.NewNop())
	b := New(st, nil, nil, store, Config{Owner: "b"}, zap.NewNop())

	a.run("settle", time.Minute, a.Settle)
	b.run("settle", time.Minute, b.Settle)
	assert.Equal(t, int32(1), st.calls.Load())

	// unlocked jobs always run
	b.run("settle", 0, b.Settle)
	assert.Equal(t, int32(2), st.calls.Load())
}

func TestStart_RunsJobs(t *testing.T) {
	pr := &mockPromoter{called: make(chan struct{}, 1)}
	s := New(nil, nil, pr, nil, Config{}, zap.NewNop())

	require.NoError(t, s.Start())
	defer s.Stop()

	select {
	case <-pr.called:
	case <-time.After(3 * time.Second):
		t.Fatal("promote job did not run")
	}
}

func TestLockTTL(t *testing.T) {
	assert.Equal(t, 54*time.Second, lockTTL(time.Minute))
}
