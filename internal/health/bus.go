package health

import "time"

// DefaultBusStaleAfter is how long a bus ping may age before the bus is degraded.
const DefaultBusStaleAfter = 2 * time.Minute

// BusEndpointHealth is the health of one messaging endpoint.
type BusEndpointHealth struct {
	Name         string    `json:"name"`
	Status       Status    `json:"status"`
	LastActivity time.Time `json:"last_activity,omitempty"`
}

// BusHealth is the messaging-bus health of a stack using bus integration.
type BusHealth struct {
	TransportKey     string              `json:"transport_key"`
	HasCriticalError bool                `json:"has_critical_error"`
	CriticalError    string              `json:"critical_error,omitempty"`
	LastPing         time.Time           `json:"last_ping,omitempty"`
	StaleAfter       time.Duration       `json:"stale_after,omitempty"`
	Endpoints        []BusEndpointHealth `json:"endpoints,omitempty"`
	CheckedAt        time.Time           `json:"checked_at"`
}

// Status derives the bus status. A critical error is Unhealthy, a missing ping
// is Unknown and a stale ping is Degraded; endpoint statuses are folded in.
func (b BusHealth) Status() Status {
	if b.HasCriticalError {
		return StatusUnhealthy
	}
	if b.LastPing.IsZero() {
		return StatusUnknown
	}
	status := StatusHealthy
	staleAfter := b.StaleAfter
	if staleAfter <= 0 {
		staleAfter = DefaultBusStaleAfter
	}
	checkedAt := b.CheckedAt
	if checkedAt.IsZero() {
		checkedAt = time.Now()
	}
	if checkedAt.Sub(b.LastPing) > staleAfter {
		status = StatusDegraded
	}
	for _, endpoint := range b.Endpoints {
		status = status.CombineWith(endpoint.Status)
	}
	return status
}
