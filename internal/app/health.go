package app

import (
	"context"
	"sort"
	"time"
)

const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"

	healthCheckTimeout = 3 * time.Second
)

type ComponentHealth struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type HealthReport struct {
	Status     string                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	CheckedAt  time.Time                  `json:"checked_at"`
}

// Health runs every registered check with its own timeout. Any failing
// component marks the whole report degraded.
func (s *RAGService) Health(ctx context.Context) HealthReport {
	report := HealthReport{
		Status:     StatusHealthy,
		Components: make(map[string]ComponentHealth, len(s.checks)),
		CheckedAt:  time.Now(),
	}

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		err := s.checks[name](checkCtx)
		cancel()
		if err != nil {
			report.Status = StatusDegraded
			report.Components[name] = ComponentHealth{Status: StatusDegraded, Error: err.Error()}
			continue
		}
		report.Components[name] = ComponentHealth{Status: StatusHealthy}
	}
	return report
}
