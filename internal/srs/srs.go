// Package srs adapts the FSRS spaced-repetition algorithm to domain cards.
package srs

import (
	"math"
	"time"

	fsrs "github.com/open-spaced-repetition/go-fsrs/v3"

	"github.com/kailas-cloud/lexdrill/internal/domain"
)

// Scheduler computes the next card state after a review.
type Scheduler interface {
	Next(card domain.Card, rating domain.Rating, now time.Time) domain.Card
}

// Config tunes the algorithm. Zero values keep library defaults.
type Config struct {
	RequestRetention float64
	MaximumInterval  float64
}

// FSRS is the default Scheduler.
type FSRS struct {
	f *fsrs.FSRS
}

var _ Scheduler = (*FSRS)(nil)

// New creates an FSRS scheduler.
func New(cfg Config) *FSRS {
	p := fsrs.DefaultParam()
	if cfg.RequestRetention > 0 && cfg.RequestRetention < 1 {
		p.RequestRetention = cfg.RequestRetention
	}
	if cfg.MaximumInterval > 0 {
		p.MaximumInterval = cfg.MaximumInterval
	}
	return &FSRS{f: fsrs.NewFSRS(p)}
}

// Next schedules card for rating at now. Invalid ratings leave the card unchanged.
func (s *FSRS) Next(card domain.Card, rating domain.Rating, now time.Time) domain.Card {
	if !rating.Valid() {
		return card
	}
	logs := s.f.Repeat(toFSRS(card), now)
	info, ok := logs[fsrs.Rating(rating)]
	if !ok {
		return card
	}
	return fromFSRS(info.Card)
}

func toFSRS(c domain.Card) fsrs.Card {
	out := fsrs.Card{
		Due:           c.Due,
		Stability:     c.Stability,
		Difficulty:    c.Difficulty,
		ElapsedDays:   uint64(math.Max(0, math.Floor(c.ElapsedDays))),
		ScheduledDays: uint64(math.Max(0, math.Round(c.ScheduledDays))),
		Reps:          uint64(max(0, c.Reps)),
		Lapses:        uint64(max(0, c.Lapses)),
		State:         fsrs.State(c.State),
	}
	if c.LastReview != nil {
		out.LastReview = *c.LastReview
	}
	return out
}

func fromFSRS(c fsrs.Card) domain.Card {
	out := domain.Card{
		Due:           c.Due,
		Stability:     c.Stability,
		Difficulty:    c.Difficulty,
		ElapsedDays:   float64(c.ElapsedDays),
		ScheduledDays: float64(c.ScheduledDays),
		Reps:          int(c.Reps),
		Lapses:        int(c.Lapses),
		State:         domain.State(c.State),
	}
	if !c.LastReview.IsZero() {
		lr := c.LastReview
		out.LastReview = &lr
	}
	return out
}
