package health

import "context"

// Pinger checks store availability. Both the key-value store and the SQL
// store satisfy it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// GeneratorChecker checks content generator availability.
type GeneratorChecker interface {
	HealthCheck(ctx context.Context) error
}
