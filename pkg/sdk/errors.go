package lexdrill

import "github.com/kailas-cloud/lexdrill/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrNotFound        = domain.ErrNotFound
	ErrInvalidRequest  = domain.ErrInvalidRequest
	ErrInvalidMode     = domain.ErrInvalidMode
	ErrInvalidRating   = domain.ErrInvalidRating
	ErrInventoryFull   = domain.ErrInventoryFull
	ErrGeneratorFailed = domain.ErrGeneratorFailed
)
