package health

import (
	"fmt"
	"strings"
)

// ServiceHealth is the health of one monitored container.
type ServiceHealth struct {
	Name          string `json:"name"`
	Status        Status `json:"status"`
	ContainerID   string `json:"container_id,omitempty"`
	ContainerName string `json:"container_name,omitempty"`
	Reason        string `json:"reason,omitempty"`
	RestartCount  int    `json:"restart_count"`
}

// NewServiceHealth validates and builds a ServiceHealth value.
func NewServiceHealth(name string, status Status, containerID, containerName, reason string, restartCount int) (ServiceHealth, error) {
	if strings.TrimSpace(name) == "" {
		return ServiceHealth{}, fmt.Errorf("service name is required")
	}
	if restartCount < 0 {
		return ServiceHealth{}, fmt.Errorf("restart count must be >= 0, got %d", restartCount)
	}
	return ServiceHealth{
		Name:          name,
		Status:        status,
		ContainerID:   containerID,
		ContainerName: containerName,
		Reason:        reason,
		RestartCount:  restartCount,
	}, nil
}

// SelfHealth is the container-level health of a stack.
type SelfHealth struct {
	Services []ServiceHealth `json:"services"`
}

// NewSelfHealth copies services into a SelfHealth value.
func NewSelfHealth(services []ServiceHealth) SelfHealth {
	return SelfHealth{Services: append([]ServiceHealth(nil), services...)}
}

// Status returns the worst service status, or Unknown without services.
func (s SelfHealth) Status() Status {
	statuses := make([]Status, 0, len(s.Services))
	for _, service := range s.Services {
		statuses = append(statuses, service.Status)
	}
	return Aggregate(statuses...)
}

// HealthyCount counts services reporting Healthy.
func (s SelfHealth) HealthyCount() int {
	count := 0
	for _, service := range s.Services {
		if service.Status == StatusHealthy {
			count++
		}
	}
	return count
}

// Service returns the named service health.
func (s SelfHealth) Service(name string) (ServiceHealth, bool) {
	for _, service := range s.Services {
		if service.Name == name {
			return service, true
		}
	}
	return ServiceHealth{}, false
}
