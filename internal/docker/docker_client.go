package docker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/go-connections/nat"
	"github.com/rs/zerolog"
)

const (
	defaultAPITimeout    = 30 * time.Second
	defaultPullTimeout   = 10 * time.Minute
	defaultPullRetries   = 2
	defaultRetryDelay    = time.Second
	defaultRestartPolicy = "unless-stopped"
)

// DockerClient implements Client using the official Docker Go SDK.
type DockerClient struct {
	api         dockerAPI
	timeout     time.Duration
	pullTimeout time.Duration
	pullRetries uint64
	retryDelay  time.Duration
	logger      zerolog.Logger
}

// Option customises a DockerClient.
type Option func(*DockerClient)

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *DockerClient) {
		c.logger = logger
	}
}

// WithPullRetries sets how often a failed image pull is retried.
func WithPullRetries(retries int, delay time.Duration) Option {
	return func(c *DockerClient) {
		if retries >= 0 {
			c.pullRetries = uint64(retries)
		}
		if delay > 0 {
			c.retryDelay = delay
		}
	}
}

// WithPullTimeout bounds a single image pull.
func WithPullTimeout(timeout time.Duration) Option {
	return func(c *DockerClient) {
		if timeout > 0 {
			c.pullTimeout = timeout
		}
	}
}

// NewDockerClient initializes a Docker client for the given API host. An empty
// host uses DOCKER_HOST and the other standard environment variables.
func NewDockerClient(host string, timeout time.Duration, opts ...Option) (*DockerClient, error) {
	if timeout <= 0 {
		timeout = defaultAPITimeout
	}

	clientOpts := []client.Opt{
		client.FromEnv,
		client.WithAPIVersionNegotiation(),
	}
	if host != "" {
		clientOpts = append(clientOpts, client.WithHost(host))
	}

	api, err := client.NewClientWithOpts(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}

	return newDockerClient(&dockerClientAdapter{client: api}, timeout, opts...), nil
}

func newDockerClient(api dockerAPI, timeout time.Duration, opts ...Option) *DockerClient {
	c := &DockerClient{
		api:         api,
		timeout:     timeout,
		pullTimeout: defaultPullTimeout,
		pullRetries: defaultPullRetries,
		retryDelay:  defaultRetryDelay,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ping validates connectivity to the Docker daemon.
func (c *DockerClient) Ping(ctx context.Context) error {
	if c == nil || c.api == nil {
		return errors.New("docker client is not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	_, err := c.api.Ping(ctx)
	return err
}

// ListContainers returns all containers carrying every given label.
func (c *DockerClient) ListContainers(ctx context.Context, labels map[string]string) ([]Container, error) {
	args := filters.NewArgs()
	for _, key := range sortedKeys(labels) {
		args.Add("label", key+"="+labels[key])
	}
	return c.list(ctx, args)
}

// GetContainerByName returns the container with the exact name, or nil when absent.
func (c *DockerClient) GetContainerByName(ctx context.Context, name string) (*Container, error) {
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return nil, errors.New("container name is required")
	}
	containers, err := c.list(ctx, filters.NewArgs(filters.Arg("name", "^/"+name+"$")))
	if err != nil {
		return nil, err
	}
	for _, ctr := range containers {
		if ctr.Name == name {
			found := ctr
			return &found, nil
		}
	}
	return nil, nil
}

func (c *DockerClient) list(ctx context.Context, args filters.Args) ([]Container, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.api.ContainerList(ctx, container.ListOptions{All: true, Filters: args})
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}
	out := make([]Container, 0, len(raw))
	for _, ctr := range raw {
		out = append(out, Container{
			ID:      ctr.ID,
			Name:    ContainerName(ctr.Names),
			Image:   ctr.Image,
			State:   ctr.State,
			Status:  ctr.Status,
			Labels:  ctr.Labels,
			Created: time.Unix(ctr.Created, 0).UTC(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// RestartCount returns how often the daemon restarted the container.
func (c *DockerClient) RestartCount(ctx context.Context, id string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	info, err := c.api.ContainerInspect(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("inspect container %s: %w", id, err)
	}
	if info.ContainerJSONBase == nil {
		return 0, nil
	}
	return info.RestartCount, nil
}

// RemoveContainer removes a container. Missing containers are not an error.
func (c *DockerClient) RemoveContainer(ctx context.Context, id string, force bool) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.api.ContainerRemove(ctx, id, container.RemoveOptions{Force: force, RemoveVolumes: false})
	if err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("remove container %s: %w", id, err)
	}
	return nil
}

// PullImage pulls image:tag, retrying transient failures with exponential backoff.
func (c *DockerClient) PullImage(ctx context.Context, imageName, tag string) error {
	ref := imageName
	if tag != "" {
		ref = imageName + ":" + tag
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryDelay
	policy.MaxElapsedTime = 0

	attempt := 0
	operation := func() error {
		attempt++
		err := c.pullOnce(ctx, ref)
		if err == nil {
			return nil
		}
		if errdefs.IsNotFound(err) || errdefs.IsUnauthorized(err) || errdefs.IsForbidden(err) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		c.logger.Warn().Err(err).Str("image", ref).Int("attempt", attempt).Msg("image pull failed")
		return err
	}

	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, c.pullRetries), ctx)); err != nil {
		return fmt.Errorf("pull image %s: %w", ref, err)
	}
	return nil
}

func (c *DockerClient) pullOnce(ctx context.Context, ref string) error {
	ctx, cancel := context.WithTimeout(ctx, c.pullTimeout)
	defer cancel()

	stream, err := c.api.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return err
	}
	defer stream.Close()
	// The pull only completes once the progress stream is drained.
	if _, err := io.Copy(io.Discard, stream); err != nil {
		return fmt.Errorf("read pull progress: %w", err)
	}
	return nil
}

// ImageExists reports whether the image is present in the local image store.
func (c *DockerClient) ImageExists(ctx context.Context, ref string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.api.ImageInspect(ctx, ref)
	switch {
	case err == nil:
		return true, nil
	case errdefs.IsNotFound(err):
		return false, nil
	default:
		return false, fmt.Errorf("inspect image %s: %w", ref, err)
	}
}

// CreateAndStartContainer creates a container attached to the requested
// networks and starts it. A container that fails to start is removed.
func (c *DockerClient) CreateAndStartContainer(ctx context.Context, req CreateContainerRequest) (string, error) {
	if req.Name == "" || req.Image == "" {
		return "", errors.New("container name and image are required")
	}
	exposed, bindings, err := nat.ParsePortSpecs(req.Ports)
	if err != nil {
		return "", fmt.Errorf("parse ports for %s: %w", req.Name, err)
	}
	policy := req.RestartPolicy
	if policy == "" {
		policy = defaultRestartPolicy
	}

	config := &container.Config{
		Image:        req.Image,
		Env:          envList(req.Env),
		Labels:       req.Labels,
		ExposedPorts: exposed,
	}
	hostConfig := &container.HostConfig{
		Binds:         req.Volumes,
		PortBindings:  bindings,
		RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyMode(policy)},
	}
	var networking *network.NetworkingConfig
	if len(req.Networks) > 0 {
		primary := req.Networks[0]
		hostConfig.NetworkMode = container.NetworkMode(primary)
		networking = &network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{
				primary: {Aliases: req.NetworkAliases},
			},
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	created, err := c.api.ContainerCreate(ctx, config, hostConfig, networking, req.Name)
	if err != nil {
		return "", fmt.Errorf("create container %s: %w", req.Name, err)
	}
	for _, extra := range req.Networks[min(1, len(req.Networks)):] {
		if err := c.api.NetworkConnect(ctx, extra, created.ID, &network.EndpointSettings{Aliases: req.NetworkAliases}); err != nil {
			c.cleanup(created.ID)
			return "", fmt.Errorf("connect %s to network %s: %w", req.Name, extra, err)
		}
	}
	if err := c.api.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		c.cleanup(created.ID)
		return "", fmt.Errorf("start container %s: %w", req.Name, err)
	}
	return created.ID, nil
}

func (c *DockerClient) cleanup(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	if err := c.api.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil && !errdefs.IsNotFound(err) {
		c.logger.Warn().Err(err).Str("container_id", id).Msg("failed to remove container after start failure")
	}
}

// EnsureNetwork creates a bridge network unless one with the name exists.
func (c *DockerClient) EnsureNetwork(ctx context.Context, name string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	_, err := c.api.NetworkInspect(ctx, name, network.InspectOptions{})
	if err == nil {
		return nil
	}
	if !errdefs.IsNotFound(err) {
		return fmt.Errorf("inspect network %s: %w", name, err)
	}
	_, err = c.api.NetworkCreate(ctx, name, network.CreateOptions{
		Driver: "bridge",
		Labels: map[string]string{"rsgo.managed": "true"},
	})
	if err != nil && !errdefs.IsConflict(err) {
		return fmt.Errorf("create network %s: %w", name, err)
	}
	return nil
}

// Close releases resources associated with the client.
func (c *DockerClient) Close() error {
	if c == nil || c.api == nil {
		return nil
	}
	return c.api.Close()
}

func envList(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for _, key := range sortedKeys(env) {
		out = append(out, key+"="+env[key])
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
