// Package queue is a Redis-backed priority job queue with deduplicated job ids,
// delayed retries and a polling worker.
package queue

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
)

// Priorities used by the replenishment pipeline. Lower runs first.
const (
	PriorityEmergency = 1
	PriorityBatch     = 5
)

const (
	priorityScale      = 1e13
	defaultMaxAttempts = 3
	defaultBackoff     = 5 * time.Second
	defaultVisibility  = 5 * time.Minute
	promoteBatch       = 100
	// jobTTL caps how long a job id can block duplicates.
	jobTTL = 24 * time.Hour
)

// ErrEmpty is returned by Dequeue when no job is ready.
var ErrEmpty = errors.New("queue: empty")

// Store is the subset of db.Store the queue needs.
type Store interface {
	db.KeyStore
	db.HashStore
	db.SortedSetStore
	db.Scripter
}

// Job is a unit of work.
type Job struct {
	ID          string
	Type        domain.JobType
	Payload     json.RawMessage
	Priority    int
	Attempts    int
	MaxAttempts int
	EnqueuedAt  time.Time
	LastError   string
}

// Decode unmarshals the payload into v.
func (j *Job) Decode(v any) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("decode job %s payload: %w", j.ID, err)
	}
	return nil
}

// EnqueueOptions tune one Enqueue call.
type EnqueueOptions struct {
	Priority int
	// JobID deduplicates: a job with the same id still queued or running wins.
	JobID string
}

// Config holds queue settings.
type Config struct {
	Name        string
	KeyPrefix   string
	MaxAttempts int
	BackoffBase time.Duration
	// Visibility bounds how long a dequeued job may run before it is requeued.
	Visibility time.Duration
}

// Queue is safe for concurrent use.
type Queue struct {
	store       Store
	keys        keys
	maxAttempts int
	backoff     time.Duration
	visibility  time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// New creates a queue.
func New(store Store, cfg Config, logger *zap.Logger) *Queue {
	q := &Queue{
		store:       store,
		keys:        newKeys(cfg.KeyPrefix, cfg.Name),
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.BackoffBase,
		visibility:  cfg.Visibility,
		logger:      logger,
		now:         time.Now,
	}
	if q.maxAttempts <= 0 {
		q.maxAttempts = defaultMaxAttempts
	}
	if q.backoff <= 0 {
		q.backoff = defaultBackoff
	}
	if q.visibility <= 0 {
		q.visibility = defaultVisibility
	}
	return q
}

var enqueueScript = db.NewScript("queue_enqueue", `
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1],
	'id', ARGV[1], 'type', ARGV[2], 'payload', ARGV[3], 'priority', ARGV[4],
	'attempts', '0', 'max_attempts', ARGV[5], 'enqueued_at', ARGV[6])
redis.call('EXPIRE', KEYS[1], tonumber(ARGV[8]))
redis.call('ZADD', KEYS[2], ARGV[7], ARGV[1])
return 1
`)

// promoteScript moves due members of KEYS[1] into the pending set KEYS[2],
// restoring each job's priority score.
var promoteScript = db.NewScript("queue_promote", `
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[3]))
local moved = 0
for _, id in ipairs(ids) do
	redis.call('ZREM', KEYS[1], id)
	local p = redis.call('HGET', ARGV[2] .. id, 'priority')
	if p then
		redis.call('ZADD', KEYS[2], tonumber(p) * 1e13 + tonumber(ARGV[1]), id)
		moved = moved + 1
	end
end
return moved
`)

// Enqueue adds a job. Returns false when a job with the same id already exists.
func (q *Queue) Enqueue(ctx context.Context, jobType domain.JobType, payload any, opts EnqueueOptions) (bool, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("marshal job payload: %w", err)
	}
	id := opts.JobID
	if id == "" {
		id = uuid.NewString()
	}
	nowMs := q.now().UnixMilli()

	added, err := q.store.EvalInt(ctx, enqueueScript,
		[]string{q.keys.job(id), q.keys.pending()},
		[]string{
			id,
			string(jobType),
			string(body),
			strconv.Itoa(opts.Priority),
			strconv.Itoa(q.maxAttempts),
			strconv.FormatInt(nowMs, 10),
			formatScore(score(opts.Priority, nowMs)),
			strconv.Itoa(int(jobTTL.Seconds())),
		},
	)
	if err != nil {
		return false, fmt.Errorf("enqueue %s: %w", id, err)
	}
	return added == 1, nil
}

// Exists reports whether a job id is queued, delayed or running.
func (q *Queue) Exists(ctx context.Context, jobID string) (bool, error) {
	return q.store.Exists(ctx, q.keys.job(jobID))
}

// dequeueScript pops the best pending id and marks it active with deadline
// ARGV[1] in one step. Ids whose body expired are dropped. Replies nil when
// nothing is pending.
var dequeueScript = db.NewScript("queue_dequeue", `
while true do
	local m = redis.call('ZPOPMIN', KEYS[1])
	if #m == 0 then
		return false
	end
	if redis.call('EXISTS', ARGV[2] .. m[1]) == 1 then
		redis.call('ZADD', KEYS[2], ARGV[1], m[1])
		return m[1]
	end
end
`)

// Dequeue pops the highest-priority job. Returns ErrEmpty when none is ready.
// The id is active before its body is read, so a failed read leaves the job
// for PromoteDelayed once the visibility timeout passes.
func (q *Queue) Dequeue(ctx context.Context) (*Job, error) {
	for {
		deadline := q.now().Add(q.visibility).UnixMilli()
		id, err := q.store.EvalString(ctx, dequeueScript,
			[]string{q.keys.pending(), q.keys.active()},
			[]string{strconv.FormatInt(deadline, 10), q.keys.jobPrefix()},
		)
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, ErrEmpty
		}
		if err != nil {
			return nil, fmt.Errorf("dequeue: %w", err)
		}

		fields, err := q.store.HGetAll(ctx, q.keys.job(id))
		if err != nil {
			return nil, fmt.Errorf("load job %s: %w", id, err)
		}
		if len(fields) == 0 {
			// body expired between the pop and the read
			q.logger.Warn("queue job body missing", zap.String("job_id", id))
			if err := q.store.ZRem(ctx, q.keys.active(), id); err != nil {
				return nil, fmt.Errorf("drop job %s: %w", id, err)
			}
			continue
		}
		return parseJob(id, fields), nil
	}
}

// Complete removes a finished job and frees its id.
func (q *Queue) Complete(ctx context.Context, job *Job) error {
	if err := q.store.ZRem(ctx, q.keys.active(), job.ID); err != nil {
		return fmt.Errorf("complete %s: %w", job.ID, err)
	}
	if _, err := q.store.Del(ctx, q.keys.job(job.ID)); err != nil {
		return fmt.Errorf("complete %s: %w", job.ID, err)
	}
	return nil
}

// Retry schedules a failed job with exponential backoff. It returns false when
// the job exhausted its attempts and was dropped.
func (q *Queue) Retry(ctx context.Context, job *Job, cause error) (bool, error) {
	key := q.keys.job(job.ID)
	attempts, err := q.store.HIncrBy(ctx, key, "attempts", 1)
	if err != nil {
		return false, fmt.Errorf("retry %s: %w", job.ID, err)
	}
	job.Attempts = int(attempts)

	maxAttempts := job.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = q.maxAttempts
	}
	if job.Attempts >= maxAttempts {
		q.logger.Error("queue job failed permanently",
			zap.String("job_id", job.ID),
			zap.String("type", string(job.Type)),
			zap.Int("attempts", job.Attempts),
			zap.Error(cause),
		)
		return false, q.Complete(ctx, job)
	}

	if cause != nil {
		if err := q.store.HSet(ctx, key, map[string]string{"last_error": cause.Error()}); err != nil {
			return false, fmt.Errorf("retry %s: %w", job.ID, err)
		}
	}
	if err := q.store.ZRem(ctx, q.keys.active(), job.ID); err != nil {
		return false, fmt.Errorf("retry %s: %w", job.ID, err)
	}
	runAt := q.now().Add(q.Backoff(job.Attempts))
	if err := q.store.ZAdd(ctx, q.keys.delayed(), float64(runAt.UnixMilli()), job.ID); err != nil {
		return false, fmt.Errorf("retry %s: %w", job.ID, err)
	}
	return true, nil
}

// Backoff returns the delay before the given attempt: base * 2^(attempt-1).
func (q *Queue) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return q.backoff << (attempt - 1)
}

// PromoteDelayed moves due retries and timed-out active jobs back to pending.
func (q *Queue) PromoteDelayed(ctx context.Context) (int, error) {
	now := strconv.FormatInt(q.now().UnixMilli(), 10)
	total := 0
	for _, src := range []string{q.keys.delayed(), q.keys.active()} {
		n, err := q.store.EvalInt(ctx, promoteScript,
			[]string{src, q.keys.pending()},
			[]string{now, q.keys.jobPrefix(), strconv.Itoa(promoteBatch)},
		)
		if err != nil {
			return total, fmt.Errorf("promote %s: %w", src, err)
		}
		total += int(n)
	}
	return total, nil
}

// Pending returns the number of ready jobs.
func (q *Queue) Pending(ctx context.Context) (int64, error) {
	return q.store.ZCard(ctx, q.keys.pending())
}

func score(priority int, nowMs int64) float64 {
	return float64(priority)*priorityScale + float64(nowMs)
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 0, 64)
}

func parseJob(id string, f map[string]string) *Job {
	j := &Job{
		ID:        id,
		Type:      domain.JobType(f["type"]),
		Payload:   json.RawMessage(f["payload"]),
		LastError: f["last_error"],
	}
	j.Priority, _ = strconv.Atoi(f["priority"])
	j.Attempts, _ = strconv.Atoi(f["attempts"])
	j.MaxAttempts, _ = strconv.Atoi(f["max_attempts"])
	if ms, err := strconv.ParseInt(f["enqueued_at"], 10, 64); err == nil {
		j.EnqueuedAt = time.UnixMilli(ms)
	}
	return j
}
