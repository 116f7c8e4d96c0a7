// Package dockertest provides an in-memory docker.Client for tests.
package dockertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/readystackgo/rsgo/internal/docker"
)

// Fake is an in-memory docker.Client recording calls. Map fields may be set
// before use; the fake is safe for concurrent use once running.
type Fake struct {
	mu     sync.Mutex
	calls  []string
	nextID int

	Containers map[string]docker.Container
	Images     map[string]bool
	Networks   map[string]bool

	PullErr   map[string]error
	CreateErr map[string]error
	RemoveErr map[string]error
	ListErr   error

	// OnPull runs before an image pull, outside the fake's lock.
	OnPull func(ref string)
}

var _ docker.Client = (*Fake)(nil)

// NewFake returns an empty fake daemon.
func NewFake() *Fake {
	return &Fake{
		Containers: map[string]docker.Container{},
		Images:     map[string]bool{},
		Networks:   map[string]bool{},
		PullErr:    map[string]error{},
		CreateErr:  map[string]error{},
		RemoveErr:  map[string]error{},
	}
}

func (f *Fake) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

// Calls returns the recorded calls, e.g. "pull api:1.0" or "create shop-api".
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Created returns the current containers keyed by name.
func (f *Fake) Created() map[string]docker.Container {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]docker.Container, len(f.Containers))
	for _, ctr := range f.Containers {
		out[ctr.Name] = ctr
	}
	return out
}

// Put adds or replaces a container.
func (f *Fake) Put(ctr docker.Container) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Containers[ctr.ID] = ctr
}

// SetState changes the state and status line of the named container.
func (f *Fake) SetState(name, state, status string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, ctr := range f.Containers {
		if ctr.Name == name {
			ctr.State = state
			ctr.Status = status
			f.Containers[id] = ctr
			return true
		}
	}
	return false
}

func (f *Fake) ListContainers(ctx context.Context, labels map[string]string) ([]docker.Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	var out []docker.Container
	for _, ctr := range f.Containers {
		match := true
		for k, v := range labels {
			if ctr.Labels[k] != v {
				match = false
				break
			}
		}
		if match {
			out = append(out, ctr)
		}
	}
	return out, nil
}

func (f *Fake) GetContainerByName(ctx context.Context, name string) (*docker.Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ctr := range f.Containers {
		if ctr.Name == name {
			found := ctr
			return &found, nil
		}
	}
	return nil, nil
}

func (f *Fake) RestartCount(ctx context.Context, id string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ctr, ok := f.Containers[id]
	if !ok {
		return 0, fmt.Errorf("container %s not found", id)
	}
	return ctr.RestartCount, nil
}

func (f *Fake) RemoveContainer(ctx context.Context, id string, force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("remove %s", id)
	if err := f.RemoveErr[id]; err != nil {
		return err
	}
	delete(f.Containers, id)
	return nil
}

func (f *Fake) PullImage(ctx context.Context, image, tag string) error {
	ref := image + ":" + tag
	if f.OnPull != nil {
		f.OnPull(ref)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("pull %s", ref)
	if err := f.PullErr[ref]; err != nil {
		return err
	}
	f.Images[ref] = true
	return nil
}

func (f *Fake) ImageExists(ctx context.Context, ref string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Images[ref], nil
}

func (f *Fake) CreateAndStartContainer(ctx context.Context, req docker.CreateContainerRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("create %s", req.Name)
	if err := f.CreateErr[req.Name]; err != nil {
		return "", err
	}
	f.nextID++
	id := fmt.Sprintf("c%d", f.nextID)
	f.Containers[id] = docker.Container{
		ID:      id,
		Name:    req.Name,
		Image:   req.Image,
		State:   "running",
		Status:  "Up 1 second",
		Labels:  req.Labels,
		Created: time.Now(),
	}
	return id, nil
}

func (f *Fake) EnsureNetwork(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("network %s", name)
	f.Networks[name] = true
	return nil
}

func (f *Fake) Ping(ctx context.Context) error { return nil }

func (f *Fake) Close() error { return nil }
