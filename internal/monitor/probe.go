package monitor

import (
	"context"
	"sort"
	"strings"

	"github.com/readystackgo/rsgo/internal/deployment"
	"github.com/readystackgo/rsgo/internal/docker"
	"github.com/readystackgo/rsgo/internal/health"
)

// serviceHealth maps the stack's containers to service health. Services the
// deployment recorded but which have no container are reported Unhealthy.
// Restart counts are looked up by container id.
func serviceHealth(d *deployment.Deployment, containers []docker.Container, restarts map[string]int) ([]health.ServiceHealth, error) {
	byService := make(map[string]docker.Container, len(containers))
	for _, ctr := range containers {
		name := ctr.Labels[docker.LabelContext]
		if name == "" {
			name = ctr.Name
		}
		if existing, ok := byService[name]; ok && existing.Created.After(ctr.Created) {
			continue
		}
		byService[name] = ctr
	}

	var services []health.ServiceHealth
	for _, expected := range d.Services() {
		if _, ok := byService[expected.Name]; ok {
			continue
		}
		service, err := health.NewServiceHealth(expected.Name, health.StatusUnhealthy, expected.ContainerID, expected.ContainerName, "container not found", 0)
		if err != nil {
			return nil, err
		}
		services = append(services, service)
	}
	for name, ctr := range byService {
		status, reason := containerStatus(ctr)
		service, err := health.NewServiceHealth(name, status, ctr.ID, ctr.Name, reason, restarts[ctr.ID])
		if err != nil {
			return nil, err
		}
		services = append(services, service)
	}

	sort.Slice(services, func(i, j int) bool { return services[i].Name < services[j].Name })
	return services, nil
}

// containerStatus maps Docker state and health check output to a status.
func containerStatus(ctr docker.Container) (health.Status, string) {
	switch strings.ToLower(ctr.State) {
	case "running":
		switch ctr.Health() {
		case "unhealthy":
			return health.StatusUnhealthy, "health check failing"
		case "starting":
			return health.StatusDegraded, "health check starting"
		default:
			return health.StatusHealthy, ""
		}
	case "restarting":
		return health.StatusDegraded, "restarting"
	case "paused":
		return health.StatusDegraded, "paused"
	case "removing":
		return health.StatusDegraded, "being removed"
	case "created":
		return health.StatusUnknown, "created but not started"
	case "exited", "dead":
		reason := ctr.State
		if ctr.Status != "" {
			reason = ctr.Status
		}
		return health.StatusUnhealthy, reason
	default:
		return health.StatusUnknown, "unknown state " + ctr.State
	}
}

// restartCounts inspects each container for its restart count. Containers
// that cannot be inspected are left out and count as 0.
func (m *Monitor) restartCounts(ctx context.Context, containers []docker.Container) map[string]int {
	counts := make(map[string]int, len(containers))
	for _, ctr := range containers {
		n, err := m.docker.RestartCount(ctx, ctr.ID)
		if err != nil {
			m.metrics.IncDockerAPIErrors()
			m.logger.Debug().Err(err).Str("container", ctr.Name).Msg("failed to inspect restart count")
			continue
		}
		counts[ctr.ID] = n
	}
	return counts
}
