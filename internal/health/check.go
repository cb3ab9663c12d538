// Package health implements HealthCheck from the component table: an
// on-demand aggregator over KeyPool and CircuitBreaker status, kept
// current by subscribing to the shared events.Bus instead of polling.
package health

import (
	"sync"
	"time"

	"github.com/tra-cli/tra/internal/breaker"
	"github.com/tra-cli/tra/internal/events"
	"github.com/tra-cli/tra/internal/keypool"
)

// Status is the tri-state health of one component or of the whole system.
type Status string

const (
	Healthy   Status = "healthy"
	Degraded  Status = "degraded"
	Unhealthy Status = "unhealthy"
)

// ComponentHealth is the status of one subsystem.
type ComponentHealth struct {
	Name   string
	Status Status
	Detail string
}

// Report is the result of one PerformHealthCheck call.
type Report struct {
	Overall    Status
	Components []ComponentHealth
	CheckedAt  time.Time
}

// lowAvailabilityRatio is the available/max token ratio below which the
// key pool is reported degraded rather than healthy.
const lowAvailabilityRatio = 0.3

// Service aggregates component status on demand. It subscribes to the
// shared bus so breaker flapping between checks is still visible in the
// next report, without running a background poller.
type Service struct {
	pool    *keypool.Pool
	breaker *breaker.Breaker

	mu            sync.Mutex
	breakerEvents int
}

// New builds a Service and subscribes it to bus for breaker transitions.
func New(pool *keypool.Pool, br *breaker.Breaker, bus *events.Bus) *Service {
	s := &Service{pool: pool, breaker: br}
	if bus != nil {
		bus.OnBreakerStateChanged(func(evt events.BreakerStateChanged) {
			s.mu.Lock()
			s.breakerEvents++
			s.mu.Unlock()
		})
	}
	return s
}

// flapThreshold is the number of breaker transitions observed since the
// last check at or above which the breaker is reported degraded even if it has
// since settled back to CLOSED.
const flapThreshold = 3

// PerformHealthCheck aggregates KeyPool and CircuitBreaker status into a
// single report.
func (s *Service) PerformHealthCheck() Report {
	components := []ComponentHealth{
		s.keyPoolHealth(),
		s.breakerHealth(),
	}

	overall := Healthy
	for _, c := range components {
		if c.Status == Unhealthy {
			overall = Unhealthy
			break
		}
		if c.Status == Degraded {
			overall = Degraded
		}
	}

	return Report{Overall: overall, Components: components, CheckedAt: time.Now()}
}

func (s *Service) keyPoolHealth() ComponentHealth {
	active := s.pool.GetActiveSlotCount()
	if active == 0 {
		return ComponentHealth{Name: "keypool", Status: Unhealthy, Detail: "no active credential slots"}
	}

	capacity := s.pool.GetCapacity()
	if capacity.Max == 0 {
		return ComponentHealth{Name: "keypool", Status: Unhealthy, Detail: "zero capacity"}
	}
	if float64(capacity.Available)/float64(capacity.Max) < lowAvailabilityRatio {
		return ComponentHealth{Name: "keypool", Status: Degraded, Detail: "rate-limit tokens running low"}
	}
	return ComponentHealth{Name: "keypool", Status: Healthy}
}

func (s *Service) breakerHealth() ComponentHealth {
	metrics := s.breaker.GetMetrics()

	s.mu.Lock()
	flaps := s.breakerEvents
	s.breakerEvents = 0
	s.mu.Unlock()

	switch metrics.State {
	case breaker.Open:
		return ComponentHealth{Name: "circuit_breaker", Status: Unhealthy, Detail: "breaker is open"}
	case breaker.HalfOpen:
		return ComponentHealth{Name: "circuit_breaker", Status: Degraded, Detail: "breaker is probing recovery"}
	default:
		if flaps >= flapThreshold {
			return ComponentHealth{Name: "circuit_breaker", Status: Degraded, Detail: "breaker has been flapping"}
		}
		return ComponentHealth{Name: "circuit_breaker", Status: Healthy}
	}
}
