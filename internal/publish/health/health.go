// Package health provides system health monitoring and the operational HTTP
// surface: health probes, prometheus metrics, and the manual run trigger.
package health

import (
	"context"

	"github.com/venuepost/publisher/internal/core/domain"
	"github.com/venuepost/publisher/internal/infra/storage"
	"github.com/venuepost/publisher/internal/publish/resilience"
)

// SystemStatus represents the overall health state of the system.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// Report contains the full health report.
type Report struct {
	SystemStatus SystemStatus               `json:"system_status"`
	Database     string                     `json:"database"`
	Queue        map[domain.QueueStatus]int `json:"queue"`
	Breakers     map[string]string          `json:"breakers"`
}

// Pinger checks database liveness. Nil in the no-database fallback mode.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Monitor aggregates health signals from the queue, the breakers and the
// database.
type Monitor struct {
	queue    storage.QueueRepository
	breakers *resilience.BreakerRegistry
	db       Pinger

	// FailedBacklogThreshold is how many failed items degrade the system
	// status. Zero means the backlog never degrades it.
	FailedBacklogThreshold int
}

// NewMonitor creates a health monitor. db may be nil.
func NewMonitor(queue storage.QueueRepository, breakers *resilience.BreakerRegistry, db Pinger) *Monitor {
	return &Monitor{queue: queue, breakers: breakers, db: db, FailedBacklogThreshold: 50}
}

// CheckHealth performs all health checks. An unreachable database is
// critical; an open breaker or a large failed backlog is degraded.
func (m *Monitor) CheckHealth(ctx context.Context) *Report {
	report := &Report{
		SystemStatus: StatusHealthy,
		Database:     "ok",
		Breakers:     make(map[string]string),
	}

	if m.db != nil {
		if err := m.db.PingContext(ctx); err != nil {
			report.Database = err.Error()
			report.SystemStatus = StatusCritical
		}
	} else {
		report.Database = "none"
	}

	for service, state := range m.breakers.States() {
		report.Breakers[service] = state.String()
		if state == resilience.StateOpen && report.SystemStatus == StatusHealthy {
			report.SystemStatus = StatusDegraded
		}
	}

	counts, err := m.queue.CountByStatus(ctx)
	if err == nil {
		report.Queue = counts
		if m.FailedBacklogThreshold > 0 &&
			counts[domain.QueueStatusFailed] >= m.FailedBacklogThreshold &&
			report.SystemStatus == StatusHealthy {
			report.SystemStatus = StatusDegraded
		}
	}

	return report
}
