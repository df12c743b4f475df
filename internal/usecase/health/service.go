// Package health aggregates dependency checks for the health endpoint.
package health

import (
	"context"
	"sync"
	"time"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
	// Unhealthy indicates every store is down.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Check names.
const (
	CheckKV        = "kv"
	CheckSQL       = "sql"
	CheckGenerator = "generator"
)

const defaultTimeout = 2 * time.Second

// Report aggregates health check results.
type Report struct {
	Status Status                 `json:"status"`
	Checks map[string]CheckResult `json:"checks"`
}

// Service coordinates health checks.
type Service struct {
	kv        Pinger
	sql       Pinger
	generator GeneratorChecker
	timeout   time.Duration
}

// New creates a Service. generator can be nil.
func New(kv, sql Pinger, generator GeneratorChecker) *Service {
	return &Service{kv: kv, sql: sql, generator: generator, timeout: defaultTimeout}
}

// Check runs all checks concurrently, each bounded by a short timeout.
// The generator never makes the service unhealthy on its own.
func (s *Service) Check(ctx context.Context) Report {
	pings := map[string]func(context.Context) error{
		CheckKV:  s.kv.Ping,
		CheckSQL: s.sql.Ping,
	}
	if s.generator != nil {
		pings[CheckGenerator] = s.generator.HealthCheck
	}

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		checks = make(map[string]CheckResult, len(pings))
	)
	for name, ping := range pings {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()
			res := CheckOK
			if err := ping(cctx); err != nil {
				res = CheckError
			}
			mu.Lock()
			checks[name] = res
			mu.Unlock()
		}()
	}
	wg.Wait()

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}
	if checks[CheckKV] == CheckError && checks[CheckSQL] == CheckError {
		status = Unhealthy
	}

	return Report{Status: status, Checks: checks}
}
