package docker

import (
	"context"
	"time"
)

// Labels attached to every container created by rsgo. Removal and grouping
// depend on their exact presence and values.
const (
	LabelStack       = "rsgo.stack"
	LabelContext     = "rsgo.context"
	LabelEnvironment = "rsgo.environment"
)

// Container is the subset of container state rsgo inspects.
type Container struct {
	ID      string
	Name    string
	Image   string
	State   string
	Status  string
	Labels  map[string]string
	Created time.Time

	// RestartCount is not reported by listing, see Client.RestartCount.
	RestartCount int
}

// Health returns the health check state parsed from the status line, or ""
// when the container has no health check.
func (c Container) Health() string {
	switch {
	case containsFold(c.Status, "(healthy)"):
		return "healthy"
	case containsFold(c.Status, "(unhealthy)"):
		return "unhealthy"
	case containsFold(c.Status, "(health: starting)"):
		return "starting"
	default:
		return ""
	}
}

// CreateContainerRequest describes a container to create and start.
type CreateContainerRequest struct {
	Name           string
	Image          string
	Env            map[string]string
	Ports          []string
	Volumes        []string
	Networks       []string
	NetworkAliases []string
	Labels         map[string]string
	RestartPolicy  string
}

// Client is the Docker capability consumed by the deployment engine and the
// health monitor.
type Client interface {
	// ListContainers returns all containers, running or not, carrying every given label.
	ListContainers(ctx context.Context, labels map[string]string) ([]Container, error)

	// GetContainerByName returns the container with the exact name, or nil.
	GetContainerByName(ctx context.Context, name string) (*Container, error)

	// RestartCount returns how often the daemon restarted the container.
	RestartCount(ctx context.Context, id string) (int, error)

	// RemoveContainer removes a container, optionally killing it first.
	RemoveContainer(ctx context.Context, id string, force bool) error

	// PullImage pulls image:tag from its registry.
	PullImage(ctx context.Context, image, tag string) error

	// ImageExists reports whether the image reference is present locally.
	ImageExists(ctx context.Context, ref string) (bool, error)

	// CreateAndStartContainer creates and starts a container and returns its id.
	CreateAndStartContainer(ctx context.Context, req CreateContainerRequest) (string, error)

	// EnsureNetwork creates a bridge network unless it exists.
	EnsureNetwork(ctx context.Context, name string) error

	// Ping validates connectivity to the Docker daemon.
	Ping(ctx context.Context) error

	// Close releases resources associated with the client.
	Close() error
}
