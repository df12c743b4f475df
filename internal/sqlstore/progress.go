package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/lexdrill/internal/domain"
)

const progressColumns = `p.user_id, p.item_id, p.track, p.stability, p.difficulty, p.state, p.status,
	p.reps, p.lapses, p.last_review_at, p.next_review_at,
	p.dim_visual, p.dim_audio, p.dim_context, p.dim_meaning, p.dim_logic, p.updated_at`

const upsertProgress = `INSERT INTO progress
	(user_id, item_id, track, stability, difficulty, state, status, reps, lapses,
	 last_review_at, next_review_at, dim_visual, dim_audio, dim_context, dim_meaning, dim_logic, updated_at)
	VALUES (:user_id, :item_id, :track, :stability, :difficulty, :state, :status, :reps, :lapses,
	 :last_review_at, :next_review_at, :dim_visual, :dim_audio, :dim_context, :dim_meaning, :dim_logic, :updated_at)
	ON CONFLICT (user_id, item_id, track) DO UPDATE SET
		stability = excluded.stability,
		difficulty = excluded.difficulty,
		state = excluded.state,
		status = excluded.status,
		reps = excluded.reps,
		lapses = excluded.lapses,
		last_review_at = excluded.last_review_at,
		next_review_at = excluded.next_review_at,
		updated_at = excluded.updated_at`

// dimensionColumns whitelists the column each dimension score lives in.
var dimensionColumns = map[domain.Dimension]string{
	domain.DimVisual:  "dim_visual",
	domain.DimAudio:   "dim_audio",
	domain.DimContext: "dim_context",
	domain.DimMeaning: "dim_meaning",
	domain.DimLogic:   "dim_logic",
}

// adjustDimension inserts a fresh record or shifts one dimension column in place,
// clamped to 0..100. CASE keeps it portable: sqlite lacks GREATEST/LEAST and
// postgres MIN/MAX are aggregates.
func adjustDimension(col string) string {
	shifted := "progress." + col + " + :delta"
	return `INSERT INTO progress
	(user_id, item_id, track, state, status,
	 dim_visual, dim_audio, dim_context, dim_meaning, dim_logic, updated_at)
	VALUES (:user_id, :item_id, :track, :state, :status,
	 :dim_visual, :dim_audio, :dim_context, :dim_meaning, :dim_logic, :updated_at)
	ON CONFLICT (user_id, item_id, track) DO UPDATE SET
		` + col + ` = CASE
			WHEN ` + shifted + ` > 100 THEN 100
			WHEN ` + shifted + ` < 0 THEN 0
			ELSE ` + shifted + ` END
	RETURNING dim_visual, dim_audio, dim_context, dim_meaning, dim_logic`
}

// Progress persists per-(user, item, track) scheduling state.
type Progress struct {
	db  *DB
	now func() time.Time
}

// NewProgress creates a progress repository.
func NewProgress(db *DB) *Progress {
	return &Progress{db: db, now: time.Now}
}

// Get loads one record. Returns domain.ErrNotFound when absent.
func (p *Progress) Get(ctx context.Context, userID string, itemID int64, track domain.Track) (*domain.ProgressRecord, error) {
	q := p.db.Rebind(`SELECT ` + progressColumns + ` FROM progress p
		WHERE p.user_id = ? AND p.item_id = ? AND p.track = ?`)

	var row progressRow
	if err := p.db.GetContext(ctx, &row, q, userID, itemID, string(track)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get progress: %w", err)
	}
	return row.toDomain(), nil
}

// Upsert writes the scheduling state of a record, keyed by (user, item, track).
// Dimension scores are only written when the row is created; afterwards they
// belong to AdjustDimension, so a flush never overwrites a concurrent adjustment.
func (p *Progress) Upsert(ctx context.Context, rec *domain.ProgressRecord) error {
	if rec.Track == "" {
		rec.Track = domain.TrackVisual
	}
	if _, err := p.db.NamedExecContext(ctx, upsertProgress, progressRowFrom(rec, p.now())); err != nil {
		return fmt.Errorf("upsert progress: %w", err)
	}
	return nil
}

// AdjustDimension shifts one dimension score by delta in a single statement,
// creating the record if needed. Scheduling columns are left untouched.
func (p *Progress) AdjustDimension(
	ctx context.Context, userID string, itemID int64, track domain.Track, dim domain.Dimension, delta int,
) (domain.DimensionScores, error) {
	col, ok := dimensionColumns[dim]
	if !ok {
		return domain.DimensionScores{}, fmt.Errorf("%w: unknown dimension %q", domain.ErrInvalidRequest, dim)
	}
	if track == "" {
		track = domain.TrackVisual
	}

	fresh := domain.NewDimensionScores()
	fresh.Adjust(dim, delta)
	args := struct {
		progressRow
		Delta int `db:"delta"`
	}{
		progressRow: progressRowFrom(&domain.ProgressRecord{
			UserID:     userID,
			ItemID:     itemID,
			Track:      track,
			State:      domain.StateNew,
			Status:     domain.StatusNew,
			Dimensions: fresh,
		}, p.now()),
		Delta: delta,
	}

	q, params, err := p.db.BindNamed(adjustDimension(col), args)
	if err != nil {
		return domain.DimensionScores{}, fmt.Errorf("bind adjust dimension: %w", err)
	}
	var out domain.DimensionScores
	row := p.db.QueryRowxContext(ctx, q, params...)
	if err := row.Scan(&out.Visual, &out.Audio, &out.Context, &out.Meaning, &out.Logic); err != nil {
		return domain.DimensionScores{}, fmt.Errorf("adjust dimension: %w", err)
	}
	return out, nil
}

// RescueCandidates returns in-progress items with a weak visual or logic score,
// highest catalog priority first.
func (p *Progress) RescueCandidates(
	ctx context.Context, userID string, track domain.Track, th domain.RescueThresholds, limit int,
) ([]domain.Candidate, error) {
	if limit <= 0 {
		return nil, nil
	}
	q := p.db.Rebind(`SELECT ` + itemColumns + `, ` + progressColumns + `
		FROM progress p JOIN items i ON i.id = p.item_id
		WHERE p.user_id = ? AND p.track = ?
			AND p.status IN ('LEARNING', 'REVIEW')
			AND (p.dim_visual < ? OR p.dim_logic < ?)
		ORDER BY i.priority DESC, i.frequency DESC, i.id ASC
		LIMIT ?`)

	var rows []candidateRow
	err := p.db.SelectContext(ctx, &rows, q, userID, string(track), th.VisualBelow, th.LogicBelow, limit)
	if err != nil {
		return nil, fmt.Errorf("select rescue candidates: %w", err)
	}
	return toCandidates(rows, domain.BucketRescue), nil
}

// DueReviews returns records whose next review is at or before now, most overdue first.
func (p *Progress) DueReviews(
	ctx context.Context, userID string, track domain.Track, now time.Time, limit int,
) ([]domain.Candidate, error) {
	if limit <= 0 {
		return nil, nil
	}
	q := p.db.Rebind(`SELECT ` + itemColumns + `, ` + progressColumns + `
		FROM progress p JOIN items i ON i.id = p.item_id
		WHERE p.user_id = ? AND p.track = ?
			AND p.next_review_at IS NOT NULL AND p.next_review_at <= ?
		ORDER BY p.next_review_at ASC, i.id ASC
		LIMIT ?`)

	var rows []candidateRow
	if err := p.db.SelectContext(ctx, &rows, q, userID, string(track), now.UTC(), limit); err != nil {
		return nil, fmt.Errorf("select due reviews: %w", err)
	}
	return toCandidates(rows, domain.BucketReview), nil
}

func toCandidates(rows []candidateRow, b domain.Bucket) []domain.Candidate {
	out := make([]domain.Candidate, len(rows))
	for i, r := range rows {
		out[i] = r.toCandidate(b)
	}
	return out
}
