// Package grading turns learner outcomes into scheduling ratings.
package grading

import (
	"time"

	"github.com/kailas-cloud/lexdrill/internal/domain"
)

// Thresholds are response-time cut-offs for one mode.
// Faster than Easy rates Easy, slower than Hard rates Hard.
type Thresholds struct {
	Easy time.Duration
	Hard time.Duration
}

// DefaultThresholds applies to every mode without its own entry.
var DefaultThresholds = Thresholds{Easy: 1500 * time.Millisecond, Hard: 5000 * time.Millisecond}

var builtin = map[domain.Mode]Thresholds{
	domain.ModePhrase: {Easy: 1000 * time.Millisecond, Hard: 3000 * time.Millisecond},
	domain.ModeSyntax: {Easy: 2500 * time.Millisecond, Hard: 8000 * time.Millisecond},
}

// Normalizer maps (grade, elapsed, retry, mode) to a Rating using a threshold table.
type Normalizer struct {
	table map[domain.Mode]Thresholds
}

// New creates a Normalizer with the built-in table, overridden per mode by overrides.
func New(overrides map[domain.Mode]Thresholds) *Normalizer {
	table := make(map[domain.Mode]Thresholds, len(builtin)+len(overrides))
	for m, t := range builtin {
		table[m] = t
	}
	for m, t := range overrides {
		table[m] = t
	}
	return &Normalizer{table: table}
}

// Thresholds returns the cut-offs used for mode.
func (n *Normalizer) Thresholds(mode domain.Mode) Thresholds {
	if t, ok := n.table[mode]; ok {
		return t
	}
	return DefaultThresholds
}

// Normalize converts a learner outcome into a Rating.
// A fail is always Again; a retry that passes is capped at Good.
func (n *Normalizer) Normalize(input domain.InputGrade, elapsed time.Duration, isRetry bool, mode domain.Mode) domain.Rating {
	if input == domain.GradeFail {
		return domain.Again
	}
	if isRetry {
		return domain.Good
	}

	t := n.Thresholds(mode)
	switch {
	case elapsed < t.Easy:
		return domain.Easy
	case elapsed > t.Hard:
		return domain.Hard
	default:
		return domain.Good
	}
}

var defaultNormalizer = New(nil)

// Normalize uses the built-in threshold table.
func Normalize(input domain.InputGrade, elapsed time.Duration, isRetry bool, mode domain.Mode) domain.Rating {
	return defaultNormalizer.Normalize(input, elapsed, isRetry, mode)
}

// ApplyDrillTypeWeight downgrades Easy to Good on the easiest drill type.
func ApplyDrillTypeWeight(r domain.Rating, drillType domain.DrillType) domain.Rating {
	if drillType == domain.DrillSVO && r == domain.Easy {
		return domain.Good
	}
	return r
}
