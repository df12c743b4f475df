// Package inventory caches pre-generated drills per (user, mode, item) in Redis
// and decides when to ask for more.
package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/lexdrill/internal/db"
	"github.com/kailas-cloud/lexdrill/internal/domain"
	"github.com/kailas-cloud/lexdrill/internal/metrics"
	"github.com/kailas-cloud/lexdrill/internal/queue"
)

const deleteChunk = 100

// store is the consumer interface for the drill cache (ISP).
type store interface {
	Del(ctx context.Context, keys ...string) (int64, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGet(ctx context.Context, key, field string) (string, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error)
	PushCounted(ctx context.Context, p db.CountedPush) (int64, error)
	LPopMulti(ctx context.Context, keys []string) ([][]byte, error)
	LLen(ctx context.Context, key string) (int64, error)
	LLenMulti(ctx context.Context, keys []string) ([]int64, error)
	SAdd(ctx context.Context, key string, members ...string) (int64, error)
	SCard(ctx context.Context, key string) (int64, error)
	SPop(ctx context.Context, key string, count int64) ([]string, error)
	EvalString(ctx context.Context, script *db.Script, keys, args []string) (string, error)
}

// JobQueue accepts replenishment jobs.
type JobQueue interface {
	Enqueue(ctx context.Context, jobType domain.JobType, payload any, opts queue.EnqueueOptions) (bool, error)
	Exists(ctx context.Context, jobID string) (bool, error)
}

// Runner runs fire-and-forget tasks.
type Runner interface {
	Go(name string, fn func(ctx context.Context) error) bool
}

// Config holds cache thresholds.
type Config struct {
	KeyPrefix      string
	LowWatermark   int
	FlushThreshold int
	FlushBatchSize int
	ItemsPerBatch  int
	DefaultBatches int
	BatchesPerMode map[domain.Mode]int
}

func (c *Config) applyDefaults() {
	if c.LowWatermark <= 0 {
		c.LowWatermark = 3
	}
	if c.FlushThreshold <= 0 {
		c.FlushThreshold = 5
	}
	if c.FlushBatchSize <= 0 {
		c.FlushBatchSize = 10
	}
	if c.ItemsPerBatch <= 0 {
		c.ItemsPerBatch = 10
	}
	if c.DefaultBatches <= 0 {
		c.DefaultBatches = 5
	}
}

// Cache is the drill inventory. Safe for concurrent use.
type Cache struct {
	store  store
	queue  JobQueue
	bg     Runner
	cfg    Config
	keys   keys
	logger *zap.Logger
	now    func() time.Time
}

// New creates a cache.
func New(s store, q JobQueue, bg Runner, cfg Config, logger *zap.Logger) *Cache {
	cfg.applyDefaults()
	return &Cache{
		store:  s,
		queue:  q,
		bg:     bg,
		cfg:    cfg,
		keys:   keys{prefix: cfg.KeyPrefix},
		logger: logger,
		now:    time.Now,
	}
}

// Capacity returns the maximum number of drills kept for one mode.
func (c *Cache) Capacity(mode domain.Mode) int {
	batches, ok := c.cfg.BatchesPerMode[mode]
	if !ok || batches <= 0 {
		batches = c.cfg.DefaultBatches
	}
	return batches * c.cfg.ItemsPerBatch
}

// Push appends a drill. It returns false without writing when the mode is at capacity.
func (c *Cache) Push(ctx context.Context, userID string, mode domain.Mode, itemID int64, drill domain.Drill) (bool, error) {
	count, err := c.modeCount(ctx, userID, mode)
	if err != nil {
		metrics.InventoryPushTotal.WithLabelValues(string(mode), "error").Inc()
		return false, err
	}
	if capacity := c.Capacity(mode); count >= capacity {
		metrics.InventoryPushTotal.WithLabelValues(string(mode), "rejected").Inc()
		c.logger.Warn("inventory full, push rejected",
			zap.String("user_id", userID),
			zap.String("mode", string(mode)),
			zap.Int("count", count),
			zap.Int("capacity", capacity),
		)
		return false, nil
	}

	data, err := json.Marshal(drill)
	if err != nil {
		return false, fmt.Errorf("marshal drill: %w", err)
	}
	_, err = c.store.PushCounted(ctx, db.CountedPush{
		List:    c.keys.drills(userID, mode, itemID),
		Value:   data,
		Counter: c.keys.stats(userID),
		Field:   string(mode),
	})
	if err != nil {
		metrics.InventoryPushTotal.WithLabelValues(string(mode), "error").Inc()
		return false, fmt.Errorf("push drill: %w", err)
	}
	metrics.InventoryPushTotal.WithLabelValues(string(mode), "ok").Inc()
	return true, nil
}

// popScript takes the list head of KEYS[1] and decrements the ARGV[1] counter
// of KEYS[2] in one step, clamping it at zero. Replies nil on an empty list.
var popScript = db.NewScript("inventory_pop", `
local v = redis.call('LPOP', KEYS[1])
if not v then
	return false
end
if redis.call('HINCRBY', KEYS[2], ARGV[1], -1) < 0 then
	redis.call('HSET', KEYS[2], ARGV[1], '0')
end
return v
`)

// Pop takes the oldest drill for an item. Store failures are logged and reported
// as a miss. Either way a watermark check is scheduled in the background.
func (c *Cache) Pop(ctx context.Context, userID string, mode domain.Mode, itemID int64) (*domain.Drill, bool) {
	key := c.keys.drills(userID, mode, itemID)
	defer c.scheduleWatermark(userID, mode, []int64{itemID})

	raw, err := c.store.EvalString(ctx, popScript, []string{key, c.keys.stats(userID)}, []string{string(mode)})
	switch {
	case errors.Is(err, db.ErrKeyNotFound):
		metrics.InventoryPopTotal.WithLabelValues(string(mode), "miss").Inc()
		return nil, false
	case err != nil:
		metrics.InventoryPopTotal.WithLabelValues(string(mode), "error").Inc()
		c.logger.Warn("inventory pop failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}

	d, ok := c.decode(key, []byte(raw))
	if !ok {
		metrics.InventoryPopTotal.WithLabelValues(string(mode), "error").Inc()
		return nil, false
	}
	metrics.InventoryPopTotal.WithLabelValues(string(mode), "hit").Inc()
	return d, true
}

// PopBatch pops one drill per requested item in a single round trip, then
// releases the counters per mode. Missing items are absent from the result.
func (c *Cache) PopBatch(ctx context.Context, userID string, groups map[domain.Mode][]int64) map[int64]*domain.Drill {
	type ref struct {
		mode   domain.Mode
		itemID int64
	}
	var refs []ref
	var keyList []string
	for mode, ids := range groups {
		for _, id := range ids {
			refs = append(refs, ref{mode, id})
			keyList = append(keyList, c.keys.drills(userID, mode, id))
		}
	}
	out := make(map[int64]*domain.Drill, len(refs))
	if len(refs) == 0 {
		return out
	}
	defer func() {
		for mode, ids := range groups {
			c.scheduleWatermark(userID, mode, ids)
		}
	}()

	vals, err := c.store.LPopMulti(ctx, keyList)
	if err != nil {
		c.logger.Warn("inventory batch pop failed", zap.String("user_id", userID), zap.Error(err))
		for _, r := range refs {
			metrics.InventoryPopTotal.WithLabelValues(string(r.mode), "error").Inc()
		}
		return out
	}

	popped := make(map[domain.Mode]int64)
	for i, r := range refs {
		if vals[i] == nil {
			metrics.InventoryPopTotal.WithLabelValues(string(r.mode), "miss").Inc()
			continue
		}
		popped[r.mode]++
		d, ok := c.decode(keyList[i], vals[i])
		if !ok {
			metrics.InventoryPopTotal.WithLabelValues(string(r.mode), "error").Inc()
			continue
		}
		metrics.InventoryPopTotal.WithLabelValues(string(r.mode), "hit").Inc()
		out[r.itemID] = d
	}
	for mode, n := range popped {
		c.release(ctx, userID, mode, n)
	}
	return out
}

// CheckWatermark buffers items whose lists fell below the low watermark and
// flushes the buffer when it is large enough. Items with an emergency job in
// flight are skipped.
func (c *Cache) CheckWatermark(ctx context.Context, userID string, mode domain.Mode, itemIDs ...int64) error {
	if len(itemIDs) == 0 {
		return nil
	}
	keyList := make([]string, len(itemIDs))
	for i, id := range itemIDs {
		keyList[i] = c.keys.drills(userID, mode, id)
	}
	lens, err := c.store.LLenMulti(ctx, keyList)
	if err != nil {
		return fmt.Errorf("llen: %w", err)
	}

	var low []string
	for i, id := range itemIDs {
		if lens[i] >= int64(c.cfg.LowWatermark) {
			continue
		}
		inFlight, err := c.queue.Exists(ctx, emergencyJobID(userID, mode, id))
		if err != nil {
			return fmt.Errorf("check emergency job: %w", err)
		}
		if inFlight {
			continue
		}
		low = append(low, bufferMember(userID, mode, id))
	}
	if len(low) == 0 {
		return nil
	}
	if _, err := c.store.SAdd(ctx, c.keys.buffer(), low...); err != nil {
		return fmt.Errorf("buffer replenish: %w", err)
	}
	_, err = c.FlushBufferIfReady(ctx)
	return err
}

// FlushBufferIfReady flushes once the buffer reaches the flush threshold.
func (c *Cache) FlushBufferIfReady(ctx context.Context) (int, error) {
	size, err := c.store.SCard(ctx, c.keys.buffer())
	if err != nil {
		return 0, fmt.Errorf("buffer size: %w", err)
	}
	metrics.ReplenishBufferSize.Set(float64(size))
	if size < int64(c.cfg.FlushThreshold) {
		return 0, nil
	}
	return c.FlushBuffer(ctx)
}

// BufferSize returns the number of buffered replenishment requests.
func (c *Cache) BufferSize(ctx context.Context) (int64, error) {
	return c.store.SCard(ctx, c.keys.buffer())
}

// FlushBuffer drains up to FlushBatchSize buffered entries into one low-priority
// batch job per (user, mode). Returns the number of jobs enqueued.
func (c *Cache) FlushBuffer(ctx context.Context) (int, error) {
	members, err := c.store.SPop(ctx, c.keys.buffer(), int64(c.cfg.FlushBatchSize))
	if err != nil {
		return 0, fmt.Errorf("drain buffer: %w", err)
	}
	if len(members) == 0 {
		return 0, nil
	}

	type group struct {
		userID  string
		mode    domain.Mode
		ids     []int64
		members []string
	}
	var order []string
	groups := make(map[string]*group)
	for _, m := range members {
		userID, mode, id, ok := parseBufferMember(m)
		if !ok {
			c.logger.Warn("dropping malformed buffer entry", zap.String("member", m))
			continue
		}
		gk := userID + "\x00" + string(mode)
		g, exists := groups[gk]
		if !exists {
			g = &group{userID: userID, mode: mode}
			groups[gk] = g
			order = append(order, gk)
		}
		g.ids = append(g.ids, id)
		g.members = append(g.members, m)
	}

	enqueued := 0
	var firstErr error
	for _, gk := range order {
		g := groups[gk]
		req := domain.ReplenishRequest{
			UserID:        g.userID,
			Mode:          g.mode,
			ItemIDs:       g.ids,
			CorrelationID: uuid.NewString(),
		}
		ok, err := c.queue.Enqueue(ctx, domain.JobReplenishBatch, req, queue.EnqueueOptions{Priority: queue.PriorityBatch})
		if err != nil {
			metrics.ReplenishEnqueuedTotal.WithLabelValues("batch", "error").Inc()
			c.logger.Warn("enqueue replenish batch failed",
				zap.String("user_id", g.userID), zap.String("mode", string(g.mode)), zap.Error(err))
			// keep the requests for the next flush
			if _, aerr := c.store.SAdd(ctx, c.keys.buffer(), g.members...); aerr != nil {
				c.logger.Error("re-buffer failed", zap.Error(aerr))
			}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if ok {
			enqueued++
			metrics.ReplenishEnqueuedTotal.WithLabelValues("batch", "enqueued").Inc()
		}
	}
	c.logger.Debug("replenish buffer flushed", zap.Int("entries", len(members)), zap.Int("jobs", enqueued))
	return enqueued, firstErr
}

// TriggerEmergency enqueues a high-priority single-item job, deduplicated per key.
func (c *Cache) TriggerEmergency(ctx context.Context, userID string, mode domain.Mode, itemID int64) (bool, error) {
	req := domain.ReplenishRequest{UserID: userID, Mode: mode, ItemIDs: []int64{itemID}}
	ok, err := c.queue.Enqueue(ctx, domain.JobReplenishOne, req, queue.EnqueueOptions{
		Priority: queue.PriorityEmergency,
		JobID:    emergencyJobID(userID, mode, itemID),
	})
	c.countEmergency("emergency", ok, err)
	return ok, err
}

// TriggerBatchEmergency enqueues a high-priority job for many items, deduplicated
// per (user, mode) within the current minute.
func (c *Cache) TriggerBatchEmergency(ctx context.Context, userID string, mode domain.Mode, itemIDs []int64) (bool, error) {
	if len(itemIDs) == 0 {
		return false, nil
	}
	req := domain.ReplenishRequest{
		UserID:        userID,
		Mode:          mode,
		ItemIDs:       itemIDs,
		CorrelationID: uuid.NewString(),
	}
	ok, err := c.queue.Enqueue(ctx, domain.JobReplenishBatch, req, queue.EnqueueOptions{
		Priority: queue.PriorityEmergency,
		JobID:    batchEmergencyJobID(userID, mode, c.now().Unix()/60),
	})
	c.countEmergency("emergency_batch", ok, err)
	return ok, err
}

func (c *Cache) countEmergency(kind string, ok bool, err error) {
	switch {
	case err != nil:
		metrics.ReplenishEnqueuedTotal.WithLabelValues(kind, "error").Inc()
	case ok:
		metrics.ReplenishEnqueuedTotal.WithLabelValues(kind, "enqueued").Inc()
	default:
		metrics.ReplenishEnqueuedTotal.WithLabelValues(kind, "duplicate").Inc()
	}
}

// IsFull reports whether a mode reached capacity.
func (c *Cache) IsFull(ctx context.Context, userID string, mode domain.Mode) (bool, error) {
	count, err := c.modeCount(ctx, userID, mode)
	if err != nil {
		return false, err
	}
	return count >= c.Capacity(mode), nil
}

// Stats returns the per-mode drill counters of a user.
func (c *Cache) Stats(ctx context.Context, userID string) (map[domain.Mode]int, error) {
	raw, err := c.store.HGetAll(ctx, c.keys.stats(userID))
	if err != nil {
		return nil, fmt.Errorf("inventory stats: %w", err)
	}
	out := make(map[domain.Mode]int, len(raw))
	for f, v := range raw {
		n, err := strconv.Atoi(v)
		if err != nil {
			continue
		}
		out[domain.Mode(f)] = max(0, n)
	}
	return out, nil
}

// Counts returns the list length per item for one mode.
func (c *Cache) Counts(ctx context.Context, userID string, mode domain.Mode, itemIDs []int64) (map[int64]int, error) {
	keyList := make([]string, len(itemIDs))
	for i, id := range itemIDs {
		keyList[i] = c.keys.drills(userID, mode, id)
	}
	out := make(map[int64]int, len(itemIDs))
	if len(keyList) == 0 {
		return out, nil
	}
	lens, err := c.store.LLenMulti(ctx, keyList)
	if err != nil {
		return nil, fmt.Errorf("inventory counts: %w", err)
	}
	for i, id := range itemIDs {
		out[id] = int(lens[i])
	}
	return out, nil
}

// ClearAll deletes every drill list and the counters of a user.
func (c *Cache) ClearAll(ctx context.Context, userID string) (int, error) {
	found, err := c.store.Scan(ctx, c.keys.userPattern(userID, ""))
	if err != nil {
		return 0, fmt.Errorf("scan inventory: %w", err)
	}
	return c.deleteKeys(ctx, append(found, c.keys.stats(userID)))
}

// ClearMode deletes the drill lists of one mode and zeroes its counter.
func (c *Cache) ClearMode(ctx context.Context, userID string, mode domain.Mode) (int, error) {
	found, err := c.store.Scan(ctx, c.keys.userPattern(userID, mode))
	if err != nil {
		return 0, fmt.Errorf("scan inventory: %w", err)
	}
	n, err := c.deleteKeys(ctx, found)
	if err != nil {
		return n, err
	}
	if err := c.store.HSet(ctx, c.keys.stats(userID), map[string]string{string(mode): "0"}); err != nil {
		return n, fmt.Errorf("reset counter: %w", err)
	}
	return n, nil
}

func (c *Cache) deleteKeys(ctx context.Context, keyList []string) (int, error) {
	total := 0
	for start := 0; start < len(keyList); start += deleteChunk {
		end := min(start+deleteChunk, len(keyList))
		n, err := c.store.Del(ctx, keyList[start:end]...)
		total += int(n)
		if err != nil {
			return total, fmt.Errorf("delete inventory keys: %w", err)
		}
	}
	return total, nil
}

func (c *Cache) modeCount(ctx context.Context, userID string, mode domain.Mode) (int, error) {
	v, err := c.store.HGet(ctx, c.keys.stats(userID), string(mode))
	if errors.Is(err, db.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read inventory counter: %w", err)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse inventory counter %q: %w", v, err)
	}
	return n, nil
}

// release decrements the counter after pops. A counter that drifted below zero is reset.
func (c *Cache) release(ctx context.Context, userID string, mode domain.Mode, n int64) {
	key := c.keys.stats(userID)
	left, err := c.store.HIncrBy(ctx, key, string(mode), -n)
	if err != nil {
		c.logger.Warn("inventory counter update failed", zap.String("key", key), zap.Error(err))
		return
	}
	if left < 0 {
		if err := c.store.HSet(ctx, key, map[string]string{string(mode): "0"}); err != nil {
			c.logger.Warn("inventory counter reset failed", zap.String("key", key), zap.Error(err))
		}
	}
}

func (c *Cache) decode(key string, raw []byte) (*domain.Drill, bool) {
	var d domain.Drill
	if err := json.Unmarshal(raw, &d); err != nil {
		c.logger.Warn("dropping undecodable drill", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return &d, true
}

func (c *Cache) scheduleWatermark(userID string, mode domain.Mode, itemIDs []int64) {
	if c.bg == nil || len(itemIDs) == 0 {
		return
	}
	ids := append([]int64(nil), itemIDs...)
	c.bg.Go("watermark", func(ctx context.Context) error {
		return c.CheckWatermark(ctx, userID, mode, ids...)
	})
}
