package docker

import (
	"context"
	"io"

	dockertypes "github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
)

// dockerAPI defines the subset of Docker client operations used by DockerClient.
// Tests inject mock implementations instead of a real daemon.
type dockerAPI interface {
	Ping(ctx context.Context) (dockertypes.Ping, error)
	ContainerList(ctx context.Context, options container.ListOptions) ([]dockertypes.Container, error)
	ContainerInspect(ctx context.Context, id string) (dockertypes.ContainerJSON, error)
	ContainerRemove(ctx context.Context, id string, options container.RemoveOptions) error
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networking *network.NetworkingConfig, name string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, id string, options container.StartOptions) error
	ImagePull(ctx context.Context, ref string, options image.PullOptions) (io.ReadCloser, error)
	ImageInspect(ctx context.Context, ref string) error
	NetworkInspect(ctx context.Context, name string, options network.InspectOptions) (network.Inspect, error)
	NetworkCreate(ctx context.Context, name string, options network.CreateOptions) (network.CreateResponse, error)
	NetworkConnect(ctx context.Context, networkID, containerID string, config *network.EndpointSettings) error
	Close() error
}

var _ dockerAPI = (*dockerClientAdapter)(nil)

// dockerClientAdapter wraps the official Docker client to satisfy dockerAPI.
// It hides the platform argument of ContainerCreate and the raw body of
// ImageInspectWithRaw.
type dockerClientAdapter struct {
	client *client.Client
}

func (a *dockerClientAdapter) Ping(ctx context.Context) (dockertypes.Ping, error) {
	return a.client.Ping(ctx)
}

func (a *dockerClientAdapter) ContainerList(ctx context.Context, options container.ListOptions) ([]dockertypes.Container, error) {
	return a.client.ContainerList(ctx, options)
}

func (a *dockerClientAdapter) ContainerInspect(ctx context.Context, id string) (dockertypes.ContainerJSON, error) {
	return a.client.ContainerInspect(ctx, id)
}

func (a *dockerClientAdapter) ContainerRemove(ctx context.Context, id string, options container.RemoveOptions) error {
	return a.client.ContainerRemove(ctx, id, options)
}

func (a *dockerClientAdapter) ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networking *network.NetworkingConfig, name string) (container.CreateResponse, error) {
	return a.client.ContainerCreate(ctx, config, hostConfig, networking, nil, name)
}

func (a *dockerClientAdapter) ContainerStart(ctx context.Context, id string, options container.StartOptions) error {
	return a.client.ContainerStart(ctx, id, options)
}

func (a *dockerClientAdapter) ImagePull(ctx context.Context, ref string, options image.PullOptions) (io.ReadCloser, error) {
	return a.client.ImagePull(ctx, ref, options)
}

func (a *dockerClientAdapter) ImageInspect(ctx context.Context, ref string) error {
	_, _, err := a.client.ImageInspectWithRaw(ctx, ref)
	return err
}

func (a *dockerClientAdapter) NetworkInspect(ctx context.Context, name string, options network.InspectOptions) (network.Inspect, error) {
	return a.client.NetworkInspect(ctx, name, options)
}

func (a *dockerClientAdapter) NetworkCreate(ctx context.Context, name string, options network.CreateOptions) (network.CreateResponse, error) {
	return a.client.NetworkCreate(ctx, name, options)
}

func (a *dockerClientAdapter) NetworkConnect(ctx context.Context, networkID, containerID string, config *network.EndpointSettings) error {
	return a.client.NetworkConnect(ctx, networkID, containerID, config)
}

func (a *dockerClientAdapter) Close() error {
	return a.client.Close()
}
