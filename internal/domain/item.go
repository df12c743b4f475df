package domain

import (
	"strings"
	"time"
)

// DimensionScores holds 0-100 skill scores per dimension.
type DimensionScores struct {
	Visual  int `json:"visual"`
	Audio   int `json:"audio"`
	Context int `json:"context"`
	Meaning int `json:"meaning"`
	Logic   int `json:"logic"`
}

// DefaultDimensionScore is the starting score of a fresh progress record.
const DefaultDimensionScore = 50

// NewDimensionScores returns scores initialised to DefaultDimensionScore.
func NewDimensionScores() DimensionScores {
	v := DefaultDimensionScore
	return DimensionScores{Visual: v, Audio: v, Context: v, Meaning: v, Logic: v}
}

// Adjust adds delta to one dimension, clamped to 0..100.
func (d *DimensionScores) Adjust(dim Dimension, delta int) {
	clamp := func(v int) int {
		return max(0, min(100, v))
	}
	switch dim {
	case DimVisual:
		d.Visual = clamp(d.Visual + delta)
	case DimAudio:
		d.Audio = clamp(d.Audio + delta)
	case DimContext:
		d.Context = clamp(d.Context + delta)
	case DimMeaning:
		d.Meaning = clamp(d.Meaning + delta)
	case DimLogic:
		d.Logic = clamp(d.Logic + delta)
	}
}

// LearningItem is an immutable catalog entry.
type LearningItem struct {
	ID           int64    `json:"id"`
	Word         string   `json:"word"`
	Definition   string   `json:"definition"`
	PartOfSpeech string   `json:"part_of_speech"`
	Frequency    float64  `json:"frequency"`
	Priority     int      `json:"priority"`
	Example      *string  `json:"example,omitempty"`
	Collocations []string `json:"collocations,omitempty"`
	Phrases      []string `json:"phrases,omitempty"`
}

// Canonical parts of speech, ranked for new-item selection.
const (
	PartVerb      = "verb"
	PartNoun      = "noun"
	PartAdjective = "adjective"
)

// NormalizePartOfSpeech maps dictionary abbreviations ("v.", "n.", "adj.")
// to canonical names. Unknown values are lower-cased and kept.
func NormalizePartOfSpeech(pos string) string {
	p := strings.ToLower(strings.TrimSpace(pos))
	switch strings.TrimSuffix(p, ".") {
	case "v", "vt", "vi", "verb":
		return PartVerb
	case "n", "noun":
		return PartNoun
	case "adj", "a", "adjective":
		return PartAdjective
	}
	return p
}

// ProgressRecord is the per-(user, item, track) scheduling state.
type ProgressRecord struct {
	UserID       string          `json:"user_id"`
	ItemID       int64           `json:"item_id"`
	Track        Track           `json:"track"`
	Stability    float64         `json:"stability"`
	Difficulty   float64         `json:"difficulty"`
	State        State           `json:"state"`
	Status       Status          `json:"status"`
	Reps         int             `json:"reps"`
	Lapses       int             `json:"lapses"`
	LastReviewAt *time.Time      `json:"last_review_at,omitempty"`
	NextReviewAt *time.Time      `json:"next_review_at,omitempty"`
	Dimensions   DimensionScores `json:"dimensions"`
}

// Card is the value exchanged with the scheduling algorithm.
type Card struct {
	Due           time.Time
	Stability     float64
	Difficulty    float64
	ElapsedDays   float64
	ScheduledDays float64
	Reps          int
	Lapses        int
	State         State
	LastReview    *time.Time
}

// NewCard returns an unseen card due now.
func NewCard(now time.Time) Card {
	return Card{Due: now, State: StateNew}
}

// CardFromRecord builds the algorithm input from a stored record.
func CardFromRecord(rec *ProgressRecord, now time.Time) Card {
	if rec == nil {
		return NewCard(now)
	}
	c := Card{
		Due:        now,
		Stability:  rec.Stability,
		Difficulty: rec.Difficulty,
		Reps:       rec.Reps,
		Lapses:     rec.Lapses,
		State:      rec.State,
		LastReview: rec.LastReviewAt,
	}
	if rec.NextReviewAt != nil {
		c.Due = *rec.NextReviewAt
	}
	if rec.LastReviewAt != nil {
		c.ElapsedDays = max(0, now.Sub(*rec.LastReviewAt).Hours()/24)
	}
	return c
}
