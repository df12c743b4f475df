package sqlstore

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/kailas-cloud/lexdrill/internal/domain"
)

type itemRow struct {
	ID           int64          `db:"id"`
	Word         string         `db:"word"`
	Definition   string         `db:"definition"`
	PartOfSpeech string         `db:"part_of_speech"`
	Frequency    float64        `db:"frequency"`
	Priority     int            `db:"priority"`
	Example      sql.NullString `db:"example"`
	Collocations sql.NullString `db:"collocations"`
	Phrases      sql.NullString `db:"phrases"`
}

func (r itemRow) toDomain() domain.LearningItem {
	it := domain.LearningItem{
		ID:           r.ID,
		Word:         r.Word,
		Definition:   r.Definition,
		PartOfSpeech: r.PartOfSpeech,
		Frequency:    r.Frequency,
		Priority:     r.Priority,
		Collocations: decodeList(r.Collocations),
		Phrases:      decodeList(r.Phrases),
	}
	if r.Example.Valid {
		ex := r.Example.String
		it.Example = &ex
	}
	return it
}

func itemRowFrom(it domain.LearningItem) itemRow {
	r := itemRow{
		ID:           it.ID,
		Word:         it.Word,
		Definition:   it.Definition,
		PartOfSpeech: domain.NormalizePartOfSpeech(it.PartOfSpeech),
		Frequency:    it.Frequency,
		Priority:     it.Priority,
		Collocations: encodeList(it.Collocations),
		Phrases:      encodeList(it.Phrases),
	}
	if it.Example != nil {
		r.Example = sql.NullString{String: *it.Example, Valid: true}
	}
	return r
}

type progressRow struct {
	UserID       string       `db:"user_id"`
	ItemID       int64        `db:"item_id"`
	Track        string       `db:"track"`
	Stability    float64      `db:"stability"`
	Difficulty   float64      `db:"difficulty"`
	State        int          `db:"state"`
	Status       string       `db:"status"`
	Reps         int          `db:"reps"`
	Lapses       int          `db:"lapses"`
	LastReviewAt sql.NullTime `db:"last_review_at"`
	NextReviewAt sql.NullTime `db:"next_review_at"`
	DimVisual    int          `db:"dim_visual"`
	DimAudio     int          `db:"dim_audio"`
	DimContext   int          `db:"dim_context"`
	DimMeaning   int          `db:"dim_meaning"`
	DimLogic     int          `db:"dim_logic"`
	UpdatedAt    time.Time    `db:"updated_at"`
}

func (r progressRow) toDomain() *domain.ProgressRecord {
	return &domain.ProgressRecord{
		UserID:       r.UserID,
		ItemID:       r.ItemID,
		Track:        domain.Track(r.Track),
		Stability:    r.Stability,
		Difficulty:   r.Difficulty,
		State:        domain.State(r.State),
		Status:       domain.Status(r.Status),
		Reps:         r.Reps,
		Lapses:       r.Lapses,
		LastReviewAt: fromNullTime(r.LastReviewAt),
		NextReviewAt: fromNullTime(r.NextReviewAt),
		Dimensions: domain.DimensionScores{
			Visual:  r.DimVisual,
			Audio:   r.DimAudio,
			Context: r.DimContext,
			Meaning: r.DimMeaning,
			Logic:   r.DimLogic,
		},
	}
}

func progressRowFrom(rec *domain.ProgressRecord, now time.Time) progressRow {
	return progressRow{
		UserID:       rec.UserID,
		ItemID:       rec.ItemID,
		Track:        string(rec.Track),
		Stability:    rec.Stability,
		Difficulty:   rec.Difficulty,
		State:        int(rec.State),
		Status:       string(rec.Status),
		Reps:         rec.Reps,
		Lapses:       rec.Lapses,
		LastReviewAt: toNullTime(rec.LastReviewAt),
		NextReviewAt: toNullTime(rec.NextReviewAt),
		DimVisual:    rec.Dimensions.Visual,
		DimAudio:     rec.Dimensions.Audio,
		DimContext:   rec.Dimensions.Context,
		DimMeaning:   rec.Dimensions.Meaning,
		DimLogic:     rec.Dimensions.Logic,
		UpdatedAt:    now.UTC(),
	}
}

// candidateRow is an item joined with the learner's progress.
type candidateRow struct {
	itemRow
	progressRow
}

func (r candidateRow) toCandidate(b domain.Bucket) domain.Candidate {
	return domain.Candidate{
		Item:     r.itemRow.toDomain(),
		Bucket:   b,
		Progress: r.progressRow.toDomain(),
	}
}

func toNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func fromNullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func encodeList(v []string) sql.NullString {
	if len(v) == 0 {
		return sql.NullString{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

func decodeList(s sql.NullString) []string {
	if !s.Valid || s.String == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s.String), &out); err != nil {
		return nil
	}
	return out
}
