package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrInvalidRating signals a rating outside Again..Easy.
	ErrInvalidRating = errors.New("invalid rating")
	// ErrInvalidMode signals an unknown drill mode.
	ErrInvalidMode = errors.New("invalid mode")
	// ErrNoScenarios signals an empty allowed-scenario list; this is a caller configuration error.
	ErrNoScenarios = errors.New("no allowed scenarios")
	// ErrInvalidSelectionConfig signals slot ratios that cannot produce a funnel.
	ErrInvalidSelectionConfig = errors.New("invalid selection config")
	// ErrInventoryFull signals a per-mode inventory at capacity.
	ErrInventoryFull = errors.New("inventory full")
	// ErrGeneratorFailed signals a content generator failure.
	ErrGeneratorFailed = errors.New("drill generator failed")
	// ErrGeneratorQuotaExceeded signals an exhausted generator token budget.
	ErrGeneratorQuotaExceeded = errors.New("generator token budget exceeded")
	// ErrInvalidRequest signals malformed input from a caller.
	ErrInvalidRequest = errors.New("invalid request")
)

// CapacityError wraps ErrInventoryFull with the observed count.
type CapacityError struct {
	Mode     Mode
	Count    int
	Capacity int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%s: mode %s holds %d/%d", ErrInventoryFull.Error(), e.Mode, e.Count, e.Capacity)
}

func (e *CapacityError) Unwrap() error { return ErrInventoryFull }
