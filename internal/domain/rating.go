package domain

import (
	"fmt"
	"strconv"
)

// Rating is the four-level grade consumed by the scheduling algorithm.
type Rating int

// Rating values match the FSRS convention.
const (
	Again Rating = 1
	Hard  Rating = 2
	Good  Rating = 3
	Easy  Rating = 4
)

// Valid reports whether r is one of Again..Easy.
func (r Rating) Valid() bool { return r >= Again && r <= Easy }

func (r Rating) String() string {
	switch r {
	case Again:
		return "again"
	case Hard:
		return "hard"
	case Good:
		return "good"
	case Easy:
		return "easy"
	default:
		return fmt.Sprintf("rating(%d)", int(r))
	}
}

// ParseRating converts the numeric string stored in a session window.
func ParseRating(s string) (Rating, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidRating, s)
	}
	r := Rating(n)
	if !r.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidRating, n)
	}
	return r, nil
}

// InputGrade is the learner-facing pass/fail outcome of a drill.
type InputGrade string

// Input grade values.
const (
	GradePass InputGrade = "pass"
	GradeFail InputGrade = "fail"
)

// State is the scheduling-algorithm state of a card.
type State int

// Card states.
const (
	StateNew State = iota
	StateLearning
	StateReview
	StateRelearning
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateLearning:
		return "learning"
	case StateReview:
		return "review"
	case StateRelearning:
		return "relearning"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Status is the coarse learner-facing progress label.
type Status string

// Status values.
const (
	StatusNew      Status = "NEW"
	StatusLearning Status = "LEARNING"
	StatusReview   Status = "REVIEW"
)

// StatusFromState maps an algorithm state to the learner-facing status.
// Relearning is shown as Learning.
func StatusFromState(s State) Status {
	switch s {
	case StateLearning, StateRelearning:
		return StatusLearning
	case StateReview:
		return StatusReview
	default:
		return StatusNew
	}
}

// Track is an independent learning dimension with its own progress record.
type Track string

// Tracks.
const (
	TrackVisual Track = "visual"
	TrackAudio  Track = "audio"
)

// Valid reports whether t is a known track.
func (t Track) Valid() bool { return t == TrackVisual || t == TrackAudio }
