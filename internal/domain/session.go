package domain

import "time"

// SessionWindow accumulates rating events for one (user, item) between flushes.
type SessionWindow struct {
	UserID    string
	ItemID    int64
	LastGrade Rating // zero when the window carries no grade
	Attempts  int
	HasAgain  bool
	UpdatedAt time.Time
}

// FinalRating collapses the window: any Again wins, otherwise the last grade.
func (w SessionWindow) FinalRating() Rating {
	if w.HasAgain {
		return Again
	}
	return w.LastGrade
}
