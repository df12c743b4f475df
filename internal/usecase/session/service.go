// Package session aggregates rating events per (user, item) in Redis windows and
// commits one scheduling update per window on flush.
package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/lexdrill/internal/db"
	"github.com/kailas-cloud/lexdrill/internal/domain"
	"github.com/kailas-cloud/lexdrill/internal/metrics"
	"github.com/kailas-cloud/lexdrill/internal/srs"
	"github.com/kailas-cloud/lexdrill/internal/usecase/grading"
)

// Window hash fields.
const (
	fieldLastGrade = "lastGrade"
	fieldAttempts  = "attempts"
	fieldHasAgain  = "hasAgain"
	fieldUpdatedAt = "updatedAt"
)

// Config holds aggregation settings.
type Config struct {
	KeyPrefix string
	Track     domain.Track
	// WindowTTL bounds the life of an unflushed window.
	WindowTTL time.Duration
	// StaleAfter is the age after which an ungraded window is discarded.
	StaleAfter time.Duration
	// Parallelism bounds concurrent user flushes in SettleInactive.
	Parallelism    int
	InjectionDelay time.Duration
	DimensionStep  int
}

func (c *Config) applyDefaults() {
	if c.Track == "" {
		c.Track = domain.TrackVisual
	}
	if c.WindowTTL <= 0 {
		c.WindowTTL = time.Hour
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 30 * time.Minute
	}
	if c.Parallelism <= 0 {
		c.Parallelism = 4
	}
	if c.InjectionDelay <= 0 {
		c.InjectionDelay = 3 * time.Minute
	}
	if c.DimensionStep <= 0 {
		c.DimensionStep = 5
	}
}

// FlushResult counts window outcomes of one flush.
type FlushResult struct {
	Flushed int `json:"flushed"`
	Skipped int `json:"skipped"`
	Stale   int `json:"stale"`
	Failed  int `json:"failed"`
}

// Service is the session aggregator.
type Service struct {
	store      windowStore
	progress   ProgressRepository
	scheduler  srs.Scheduler
	injections InjectionScheduler
	normalizer *grading.Normalizer
	cfg        Config
	logger     *zap.Logger
	now        func() time.Time
}

// New creates a session service. injections may be nil to disable error injection.
func New(
	store windowStore,
	progress ProgressRepository,
	scheduler srs.Scheduler,
	injections InjectionScheduler,
	normalizer *grading.Normalizer,
	cfg Config,
	logger *zap.Logger,
) *Service {
	cfg.applyDefaults()
	if normalizer == nil {
		normalizer = grading.New(nil)
	}
	return &Service{
		store:      store,
		progress:   progress,
		scheduler:  scheduler,
		injections: injections,
		normalizer: normalizer,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *Service) windowKey(userID string, itemID int64) string {
	return s.cfg.KeyPrefix + "window:" + userID + ":" + strconv.FormatInt(itemID, 10)
}

func (s *Service) activeKey() string {
	return s.cfg.KeyPrefix + "active_sessions"
}

// RecordEvent folds one rating into the (user, item) window and marks the user active.
func (s *Service) RecordEvent(ctx context.Context, userID string, itemID int64, rating domain.Rating) error {
	if !rating.Valid() {
		return fmt.Errorf("%w: %d", domain.ErrInvalidRating, int(rating))
	}
	now := s.now()
	key := s.windowKey(userID, itemID)

	fields := map[string]string{
		fieldLastGrade: strconv.Itoa(int(rating)),
		fieldUpdatedAt: strconv.FormatInt(now.UnixMilli(), 10),
	}
	if rating == domain.Again {
		fields[fieldHasAgain] = "true"
	}
	if err := s.store.HSet(ctx, key, fields); err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	if _, err := s.store.HIncrBy(ctx, key, fieldAttempts, 1); err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	if err := s.store.Expire(ctx, key, s.cfg.WindowTTL, false); err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	if err := s.store.ZAdd(ctx, s.activeKey(), float64(now.UnixMilli()), userID); err != nil {
		return fmt.Errorf("mark session active: %w", err)
	}
	metrics.SessionEventsTotal.WithLabelValues(rating.String()).Inc()
	return nil
}

// clearActiveScript removes ARGV[1] from the active set KEYS[1] unless it was
// touched after ARGV[2] (unix ms).
var clearActiveScript = db.NewScript("session_clear_active", `
local sc = redis.call('ZSCORE', KEYS[1], ARGV[1])
if sc and tonumber(sc) <= tonumber(ARGV[2]) then
	return redis.call('ZREM', KEYS[1], ARGV[1])
end
return 0
`)

// Flush commits every window of a user. Windows are processed sequentially;
// a failed window is left intact for the next flush.
func (s *Service) Flush(ctx context.Context, userID string) (FlushResult, error) {
	var res FlushResult
	start := s.now()
	pattern := s.cfg.KeyPrefix + "window:" + db.EscapeGlob(userID) + ":*"
	found, err := s.store.Scan(ctx, pattern)
	if err != nil {
		return res, fmt.Errorf("scan windows: %w", err)
	}

	base := s.cfg.KeyPrefix + "window:" + userID + ":"
	for _, key := range found {
		itemID, ok := parseItemID(key, base)
		if !ok {
			// belongs to a user whose id extends this one
			continue
		}
		switch s.flushWindow(ctx, userID, itemID, key) {
		case outcomeFlushed:
			res.Flushed++
		case outcomeSkipped:
			res.Skipped++
		case outcomeStale:
			res.Stale++
		case outcomeFailed:
			res.Failed++
		}
	}

	if res.Failed == 0 && res.Skipped == 0 {
		// an event recorded after the scan keeps the user active
		_, err := s.store.EvalInt(ctx, clearActiveScript,
			[]string{s.activeKey()},
			[]string{userID, strconv.FormatInt(start.UnixMilli(), 10)},
		)
		if err != nil {
			return res, fmt.Errorf("clear active session: %w", err)
		}
	}
	if res.Flushed+res.Stale+res.Failed+res.Skipped > 0 {
		s.logger.Info("session flushed",
			zap.String("user_id", userID),
			zap.Int("flushed", res.Flushed),
			zap.Int("skipped", res.Skipped),
			zap.Int("stale", res.Stale),
			zap.Int("failed", res.Failed),
		)
	}
	return res, nil
}

type outcome int

const (
	outcomeNone outcome = iota
	outcomeFlushed
	outcomeSkipped
	outcomeStale
	outcomeFailed
)

func (s *Service) flushWindow(ctx context.Context, userID string, itemID int64, key string) outcome {
	log := s.logger.With(zap.String("user_id", userID), zap.Int64("item_id", itemID))

	fields, err := s.store.HGetAll(ctx, key)
	if err != nil {
		log.Warn("read window failed", zap.Error(err))
		metrics.SessionWindowsTotal.WithLabelValues("failed").Inc()
		return outcomeFailed
	}
	if len(fields) == 0 {
		return outcomeNone
	}

	now := s.now()
	w := parseWindow(userID, itemID, fields)
	rating := w.FinalRating()
	if !rating.Valid() {
		if w.UpdatedAt.IsZero() || now.Sub(w.UpdatedAt) > s.cfg.StaleAfter {
			log.Warn("discarding stale window without grade", zap.Time("updated_at", w.UpdatedAt))
			if _, err := s.store.Del(ctx, key); err != nil {
				log.Warn("delete stale window failed", zap.Error(err))
			}
			metrics.SessionWindowsTotal.WithLabelValues("stale").Inc()
			return outcomeStale
		}
		metrics.SessionWindowsTotal.WithLabelValues("skipped").Inc()
		return outcomeSkipped
	}

	rec, err := s.progress.Get(ctx, userID, itemID, s.cfg.Track)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		log.Warn("load progress failed", zap.Error(err))
		metrics.SessionWindowsTotal.WithLabelValues("failed").Inc()
		return outcomeFailed
	}

	next := s.scheduler.Next(domain.CardFromRecord(rec, now), rating, now)
	if err := s.progress.Upsert(ctx, applyCard(rec, userID, itemID, s.cfg.Track, next, now)); err != nil {
		log.Warn("commit progress failed", zap.Error(err))
		metrics.SessionWindowsTotal.WithLabelValues("failed").Inc()
		return outcomeFailed
	}

	if _, err := s.store.Del(ctx, key); err != nil {
		// record is committed; the window will be re-applied on the next flush
		log.Error("delete committed window failed", zap.Error(err))
	}
	metrics.SessionWindowsTotal.WithLabelValues("committed").Inc()
	return outcomeFlushed
}

// SettleInactive flushes users idle for at least idle. Returns the number of
// users flushed without error.
func (s *Service) SettleInactive(ctx context.Context, idle time.Duration) (int, error) {
	cutoff := s.now().Add(-idle).UnixMilli()
	users, err := s.store.ZRangeByScore(ctx, s.activeKey(), 0, float64(cutoff))
	if err != nil {
		return 0, fmt.Errorf("list idle sessions: %w", err)
	}
	if len(users) == 0 {
		return 0, nil
	}

	var settled atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Parallelism)
	for _, u := range users {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			res, err := s.Flush(gctx, u)
			if err != nil {
				s.logger.Warn("settle session failed", zap.String("user_id", u), zap.Error(err))
				return nil
			}
			if res.Failed == 0 {
				settled.Add(1)
				metrics.SessionsSettledTotal.Inc()
			}
			return nil
		})
	}
	_ = g.Wait()
	return int(settled.Load()), ctx.Err()
}

func applyCard(
	rec *domain.ProgressRecord, userID string, itemID int64, track domain.Track, c domain.Card, now time.Time,
) *domain.ProgressRecord {
	out := &domain.ProgressRecord{
		UserID:     userID,
		ItemID:     itemID,
		Track:      track,
		Dimensions: domain.NewDimensionScores(),
	}
	if rec != nil {
		out.Dimensions = rec.Dimensions
	}
	due := c.Due
	reviewed := now
	out.Stability = c.Stability
	out.Difficulty = c.Difficulty
	out.State = c.State
	out.Status = domain.StatusFromState(c.State)
	out.Reps = c.Reps
	out.Lapses = c.Lapses
	out.LastReviewAt = &reviewed
	out.NextReviewAt = &due
	return out
}

func parseWindow(userID string, itemID int64, f map[string]string) domain.SessionWindow {
	w := domain.SessionWindow{UserID: userID, ItemID: itemID}
	if r, err := domain.ParseRating(f[fieldLastGrade]); err == nil {
		w.LastGrade = r
	}
	w.Attempts, _ = strconv.Atoi(f[fieldAttempts])
	w.HasAgain, _ = strconv.ParseBool(f[fieldHasAgain])
	if ms, err := strconv.ParseInt(f[fieldUpdatedAt], 10, 64); err == nil {
		w.UpdatedAt = time.UnixMilli(ms)
	}
	return w
}

func parseItemID(key, base string) (int64, bool) {
	rest, ok := strings.CutPrefix(key, base)
	if !ok || rest == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
